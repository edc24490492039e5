package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestCounters(t *testing.T) {
	m := New()

	m.CodeIssued("verification")
	m.CodeIssued("verification")
	m.CodeIssued("reset")
	m.EmailFailed()

	assert.Equal(t, 2.0, counterValue(t, m.CodesIssued.WithLabelValues("verification")))
	assert.Equal(t, 1.0, counterValue(t, m.CodesIssued.WithLabelValues("reset")))
	assert.Equal(t, 1.0, counterValue(t, m.EmailFailures))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CodeIssued("reset")
		m.EmailFailed()
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.CodeIssued("reset")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `showdex_codes_issued_total{purpose="reset"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNewTwice(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
