package notify

import (
	"context"
	"log/slog"
)

// LogSender records that an email would have been sent without delivering
// it. It is used when no SMTP password is configured. The body carries the
// code, so only the recipient and subject are logged.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Warn("email delivery disabled, message dropped",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}
