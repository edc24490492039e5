package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/showdex/internal/apperror"
	"github.com/sakif/showdex/internal/auth"
	"github.com/sakif/showdex/internal/metrics"
	"github.com/sakif/showdex/internal/model"
	"github.com/sakif/showdex/internal/notify"
	"github.com/sakif/showdex/internal/repository"
)

// =========================================================================
// FAKES
// =========================================================================
//
// Hand-written in-memory stand-ins for the repositories and the sender.
// They follow the same contract as the real stores (conflict fields,
// conditional code issue, compare-and-swap consume) so the services can be
// tested without a database.

var (
	_ repository.UserRepository = (*fakeUserRepo)(nil)
	_ repository.ShowRepository = (*fakeShowRepo)(nil)
	_ notify.Sender             = (*recordingSender)(nil)
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User

	// beforeIssue runs inside IssueCode before the active-code check.
	beforeIssue func(u *model.User)
	// err, when set, is returned by every lookup.
	err error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.ID]; ok {
		return apperror.Conflict("id", "User ID already exists")
	}
	for _, u := range f.users {
		if u.Login == user.Login {
			return apperror.Conflict("login", "Username already exists")
		}
		if u.Email == user.Email {
			return apperror.Conflict("email", "Email already exists")
		}
	}
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeUserRepo) find(match func(*model.User) bool) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if match(u) {
			found := *u
			return &found, nil
		}
	}
	return nil, apperror.NotFound("user", "?")
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.ID == id })
}

func (f *fakeUserRepo) GetByLogin(_ context.Context, login string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.Login == login })
}

func (f *fakeUserRepo) GetByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	if u, err := f.GetByLogin(ctx, identifier); err == nil {
		return u, nil
	}
	return f.find(func(u *model.User) bool { return u.Email == identifier })
}

func (f *fakeUserRepo) FindByCode(_ context.Context, purpose model.CodePurpose, identifier, code string) (*model.User, error) {
	return f.find(func(u *model.User) bool {
		return (u.Login == identifier || u.Email == identifier) && u.Code(purpose).Value == code
	})
}

func (f *fakeUserRepo) IssueCode(_ context.Context, userID string, purpose model.CodePurpose, code model.Code, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	if f.beforeIssue != nil {
		f.beforeIssue(u)
	}
	if u.Code(purpose).ActiveAt(now) {
		return apperror.Conflict("code", "an active code already exists")
	}
	u.SetCode(purpose, code)
	return nil
}

func (f *fakeUserRepo) ConsumeVerification(_ context.Context, userID, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok || u.Verification.Value != code {
		return apperror.NotFound("user", userID)
	}
	u.IsVerified = true
	u.Verification = model.Code{}
	return nil
}

func (f *fakeUserRepo) ConsumeReset(_ context.Context, userID, token, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok || u.Reset.Value != token {
		return apperror.NotFound("user", userID)
	}
	u.PasswordHash = passwordHash
	u.Reset = model.Code{}
	return nil
}

func (f *fakeUserRepo) Ping(context.Context) error { return nil }

// stored returns the current record for login, failing the test if absent.
func (f *fakeUserRepo) stored(t *testing.T, login string) model.User {
	t.Helper()
	u, err := f.GetByLogin(context.Background(), login)
	if err != nil {
		t.Fatalf("user %q not stored: %v", login, err)
	}
	return *u
}

func (f *fakeUserRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

type fakeShowRepo struct {
	shows  []model.Show
	nextID int
	err    error
}

func (f *fakeShowRepo) index(userID, title string) int {
	for i, s := range f.shows {
		if s.UserID == userID && s.Title == title {
			return i
		}
	}
	return -1
}

func (f *fakeShowRepo) Create(_ context.Context, show *model.Show) error {
	if f.err != nil {
		return f.err
	}
	if f.index(show.UserID, show.Title) >= 0 {
		return apperror.Conflict("show", "Show already exists")
	}
	f.nextID++
	show.ID = fmt.Sprintf("show-%d", f.nextID)
	f.shows = append(f.shows, *show)
	return nil
}

func (f *fakeShowRepo) Update(_ context.Context, oldTitle string, show *model.Show) error {
	i := f.index(show.UserID, oldTitle)
	if i < 0 {
		return apperror.NotFound("show", oldTitle)
	}
	if j := f.index(show.UserID, show.Title); j >= 0 && j != i {
		return apperror.Conflict("show", "Show already exists")
	}
	f.shows[i].Title, f.shows[i].Genre, f.shows[i].Rating = show.Title, show.Genre, show.Rating
	return nil
}

func (f *fakeShowRepo) Delete(_ context.Context, userID, title string) error {
	i := f.index(userID, title)
	if i < 0 {
		return apperror.NotFound("show", title)
	}
	f.shows = append(f.shows[:i], f.shows[i+1:]...)
	return nil
}

func (f *fakeShowRepo) Search(_ context.Context, q model.ShowQuery) ([]model.Show, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []model.Show{}
	for _, s := range f.shows {
		if s.UserID != q.UserID {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(s.Title), strings.ToLower(q.Term)) {
			continue
		}
		if q.Genre != "" && string(s.Genre) != q.Genre {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func (r *recordingSender) last(t *testing.T) notify.Message {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		t.Fatal("no email sent")
	}
	return r.sent[len(r.sent)-1]
}

// =========================================================================
// HELPERS
// =========================================================================

var t0 = time.Date(2025, 7, 14, 18, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	users    *fakeUserRepo
	sender   *recordingSender
	clock    *fakeClock
	metrics  *metrics.Metrics
	codes    *CodeIssuer
	accounts *AccountService
	flows    *VerificationService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv wires the account and verification services to fakes. Codes
// are deterministic: "c0de01", "c0de02", ...
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		users:   newFakeUserRepo(),
		sender:  &recordingSender{},
		clock:   &fakeClock{now: t0},
		metrics: metrics.New(),
	}
	logger := discardLogger()
	passwords := auth.NewPasswordServiceForTest(bcrypt.MinCost)

	env.codes = NewCodeIssuer(env.users, env.sender, env.metrics, logger, DefaultCodeTTL)
	env.codes.SetClock(env.clock.Now)
	var n int
	env.codes.generate = func() (string, error) {
		n++
		return fmt.Sprintf("c0de%02x", n), nil
	}

	env.accounts = NewAccountService(env.users, passwords, env.codes, logger)
	env.flows = NewVerificationService(env.users, passwords, env.codes, logger)
	return env
}

func alice() RegisterInput {
	return RegisterInput{
		Login:     "alice",
		Password:  "Abc123!",
		FirstName: "Alice",
		LastName:  "Liddell",
		Email:     "a@x.com",
	}
}

// register creates and returns alice's account, failing the test on error.
func (e *testEnv) register(t *testing.T, in RegisterInput) *RegisterResult {
	t.Helper()
	res, err := e.accounts.Register(context.Background(), in)
	if err != nil {
		t.Fatalf("Register(%s) error: %v", in.Login, err)
	}
	return res
}

// registerVerified creates alice and verifies her.
func (e *testEnv) registerVerified(t *testing.T) *RegisterResult {
	t.Helper()
	res := e.register(t, alice())
	if err := e.flows.Verify(context.Background(), "alice", res.Code.Value); err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	return res
}
