package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/sakif/showdex/internal/apperror"
	"github.com/sakif/showdex/internal/model"
	"github.com/sakif/showdex/internal/notify"
)

// Register alice, fail with a wrong code, verify with the real one, then
// log in and see the account verified with no code attached.
func TestVerificationScenario(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	reg := env.register(t, alice())
	c1 := reg.Code.Value

	err := env.flows.Verify(ctx, "alice", "ffffff")
	wantAppError(t, err, apperror.ErrInvalidCredential, "Invalid identifier or code.")

	if err := env.flows.Verify(ctx, "alice", c1); err != nil {
		t.Fatalf("Verify(C1) error: %v", err)
	}
	stored := env.users.stored(t, "alice")
	if !stored.IsVerified || !stored.Verification.IsZero() {
		t.Fatalf("after verify: verified=%v code=%+v", stored.IsVerified, stored.Verification)
	}

	// The code was cleared, so it cannot be used twice.
	err = env.flows.Verify(ctx, "alice", c1)
	wantAppError(t, err, apperror.ErrInvalidCredential, "Invalid identifier or code.")

	res, err := env.accounts.Login(ctx, "alice", "Abc123!")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if !res.User.IsVerified || res.VerificationCode != "" {
		t.Errorf("login: verified=%v code=%q", res.User.IsVerified, res.VerificationCode)
	}
}

func TestVerify_ByEmail(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, alice())

	if err := env.flows.Verify(context.Background(), "a@x.com", reg.Code.Value); err != nil {
		t.Fatalf("Verify by email error: %v", err)
	}
}

func TestVerify_ExpiryIsCheckedOnlyAfterAMatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	reg := env.register(t, alice())

	// The expiry instant itself counts as expired.
	env.clock.Advance(DefaultCodeTTL)

	err := env.flows.Verify(ctx, "alice", reg.Code.Value)
	wantAppError(t, err, apperror.ErrExpired, "Verification code expired.")

	err = env.flows.Verify(ctx, "alice", "ffffff")
	wantAppError(t, err, apperror.ErrInvalidCredential, "Invalid identifier or code.")

	if env.users.stored(t, "alice").IsVerified {
		t.Error("an expired code must not verify the account")
	}
}

func TestVerify_JustBeforeExpiry(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, alice())
	env.clock.Advance(DefaultCodeTTL - time.Nanosecond)

	if err := env.flows.Verify(context.Background(), "alice", reg.Code.Value); err != nil {
		t.Fatalf("Verify error: %v", err)
	}
}

func TestVerify_CodeBelongingToAnotherUser(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, alice())
	bob := alice()
	bob.Login, bob.Email, bob.FirstName = "bob", "b@x.com", "Bob"
	bobReg := env.register(t, bob)

	err := env.flows.Verify(context.Background(), "alice", bobReg.Code.Value)
	wantAppError(t, err, apperror.ErrInvalidCredential, "Invalid identifier or code.")
}

func TestVerify_CodeIsMatchedExactly(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	code := env.register(t, alice()).Code.Value

	for _, attempt := range []string{" " + code + " ", code + "\n", strings.ToUpper(code)} {
		err := env.flows.Verify(ctx, "alice", attempt)
		wantAppError(t, err, apperror.ErrInvalidCredential, "Invalid identifier or code.")
	}
	if env.users.stored(t, "alice").IsVerified {
		t.Fatal("a padded or re-cased code must not verify the account")
	}

	// The identifier is still trimmed.
	if err := env.flows.Verify(ctx, " alice ", code); err != nil {
		t.Fatalf("Verify with padded identifier error: %v", err)
	}
}

func TestVerify_Validation(t *testing.T) {
	env := newTestEnv(t)
	for _, tc := range [][2]string{{"", "abc123"}, {"alice", ""}, {"  ", " "}} {
		err := env.flows.Verify(context.Background(), tc[0], tc[1])
		wantAppError(t, err, apperror.ErrValidation, "Identifier and code required.")
	}
}

func TestResend(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown account", func(t *testing.T) {
		env := newTestEnv(t)
		res, err := env.flows.Resend(ctx, "ghost")
		if err != nil {
			t.Fatalf("Resend error: %v", err)
		}
		if res.Outcome != OutcomeUnknownAccount {
			t.Errorf("outcome = %v", res.Outcome)
		}
		if env.sender.count() != 0 {
			t.Error("no email for unknown accounts")
		}
	})

	t.Run("active code is kept", func(t *testing.T) {
		env := newTestEnv(t)
		reg := env.register(t, alice())
		env.clock.Advance(time.Minute)

		first, err := env.flows.Resend(ctx, "alice")
		if err != nil {
			t.Fatalf("Resend error: %v", err)
		}
		second, err := env.flows.Resend(ctx, "a@x.com")
		if err != nil {
			t.Fatalf("Resend error: %v", err)
		}

		for _, res := range []*IssueResult{first, second} {
			if res.Outcome != OutcomeActive || !res.Expires.Equal(reg.Code.Expires) {
				t.Errorf("got %v until %v, want active until %v", res.Outcome, res.Expires, reg.Code.Expires)
			}
		}
		if stored := env.users.stored(t, "alice"); stored.Verification != reg.Code {
			t.Errorf("stored code changed to %+v", stored.Verification)
		}
		if env.sender.count() != 1 {
			t.Errorf("emails = %d, want only the registration email", env.sender.count())
		}
	})

	t.Run("expired code is replaced", func(t *testing.T) {
		env := newTestEnv(t)
		reg := env.register(t, alice())
		env.clock.Advance(DefaultCodeTTL + time.Second)

		res, err := env.flows.Resend(ctx, "alice")
		if err != nil {
			t.Fatalf("Resend error: %v", err)
		}
		if res.Outcome != OutcomeIssued {
			t.Fatalf("outcome = %v, want issued", res.Outcome)
		}
		want := t0.Add(DefaultCodeTTL + time.Second + DefaultCodeTTL)
		if !res.Expires.Equal(want) {
			t.Errorf("expires %v, want %v", res.Expires, want)
		}

		stored := env.users.stored(t, "alice")
		if stored.Verification.Value == reg.Code.Value {
			t.Error("expected a new code")
		}
		msg := env.sender.last(t)
		if msg.Subject != notify.SubjectResend || !strings.Contains(msg.Body, stored.Verification.Value) {
			t.Errorf("resend email %+v", msg)
		}

		// The old code is gone; the new one verifies.
		err = env.flows.Verify(ctx, "alice", reg.Code.Value)
		wantAppError(t, err, apperror.ErrInvalidCredential, "")
		if err := env.flows.Verify(ctx, "alice", stored.Verification.Value); err != nil {
			t.Fatalf("Verify(new code) error: %v", err)
		}
	})

	t.Run("verified account", func(t *testing.T) {
		env := newTestEnv(t)
		env.registerVerified(t)

		_, err := env.flows.Resend(ctx, "alice")
		wantAppError(t, err, apperror.ErrRejected, "Account is already verified.")
	})

	t.Run("concurrent issue wins", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, alice())
		env.clock.Advance(DefaultCodeTTL)

		other := model.Code{Value: "0ther1", Expires: env.clock.Now().Add(DefaultCodeTTL)}
		env.users.beforeIssue = func(u *model.User) { u.Verification = other }

		res, err := env.flows.Resend(ctx, "alice")
		if err != nil {
			t.Fatalf("Resend error: %v", err)
		}
		if res.Outcome != OutcomeActive || !res.Expires.Equal(other.Expires) {
			t.Errorf("got %v until %v, want the concurrent code", res.Outcome, res.Expires)
		}
		if env.sender.count() != 1 {
			t.Error("the losing request must not send an email")
		}
	})

	t.Run("send failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, alice())
		env.clock.Advance(DefaultCodeTTL)
		env.sender.err = errors.New("relay down")

		_, err := env.flows.Resend(ctx, "alice")
		wantAppError(t, err, apperror.ErrDelivery, "")
		if !env.users.stored(t, "alice").Verification.ActiveAt(env.clock.Now()) {
			t.Error("new code must stay stored after a failed send")
		}
	})
}

func TestForgotPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown account", func(t *testing.T) {
		env := newTestEnv(t)
		res, err := env.flows.ForgotPassword(ctx, "ghost@x.com")
		if err != nil {
			t.Fatalf("ForgotPassword error: %v", err)
		}
		if res.Outcome != OutcomeUnknownAccount {
			t.Errorf("outcome = %v", res.Outcome)
		}
	})

	t.Run("unverified account", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, alice())

		_, err := env.flows.ForgotPassword(ctx, "alice")
		wantAppError(t, err, apperror.ErrRejected, "Account must be verified to reset password.")
	})

	t.Run("issues once while active", func(t *testing.T) {
		env := newTestEnv(t)
		env.registerVerified(t)

		first, err := env.flows.ForgotPassword(ctx, "a@x.com")
		if err != nil {
			t.Fatalf("ForgotPassword error: %v", err)
		}
		if first.Outcome != OutcomeIssued || !first.Expires.Equal(t0.Add(DefaultCodeTTL)) {
			t.Fatalf("first = %+v", first)
		}
		msg := env.sender.last(t)
		stored := env.users.stored(t, "alice")
		if msg.Subject != notify.SubjectReset || !strings.Contains(msg.Body, "Token: "+stored.Reset.Value) {
			t.Errorf("reset email %+v", msg)
		}
		if !stored.Verification.IsZero() {
			t.Error("reset must not touch the verification slot")
		}

		env.clock.Advance(5 * time.Minute)
		second, err := env.flows.ForgotPassword(ctx, "alice")
		if err != nil {
			t.Fatalf("ForgotPassword error: %v", err)
		}
		if second.Outcome != OutcomeActive || !second.Expires.Equal(first.Expires) {
			t.Errorf("second = %+v", second)
		}
	})

	t.Run("validation", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.flows.ForgotPassword(ctx, " ")
		wantAppError(t, err, apperror.ErrValidation, "Identifier required.")
	})
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()

	// setup returns an env holding verified alice with an issued reset token.
	setup := func(t *testing.T) (*testEnv, string) {
		env := newTestEnv(t)
		env.registerVerified(t)
		if _, err := env.flows.ForgotPassword(ctx, "alice"); err != nil {
			t.Fatalf("ForgotPassword error: %v", err)
		}
		return env, env.users.stored(t, "alice").Reset.Value
	}

	t.Run("success", func(t *testing.T) {
		env, token := setup(t)

		if err := env.flows.ResetPassword(ctx, "alice", token, "NewPass#1"); err != nil {
			t.Fatalf("ResetPassword error: %v", err)
		}
		if !env.users.stored(t, "alice").Reset.IsZero() {
			t.Error("token must be cleared")
		}
		if _, err := env.accounts.Login(ctx, "alice", "NewPass#1"); err != nil {
			t.Errorf("login with new password: %v", err)
		}
		_, err := env.accounts.Login(ctx, "alice", "Abc123!")
		wantAppError(t, err, apperror.ErrInvalidCredential, "")

		err = env.flows.ResetPassword(ctx, "alice", token, "Another#2")
		wantAppError(t, err, apperror.ErrInvalidCredential, "Invalid identifier or reset token.")
	})

	t.Run("wrong token", func(t *testing.T) {
		env, _ := setup(t)
		err := env.flows.ResetPassword(ctx, "alice", "ffffff", "NewPass#1")
		wantAppError(t, err, apperror.ErrInvalidCredential, "Invalid identifier or reset token.")
	})

	t.Run("padded token", func(t *testing.T) {
		env, token := setup(t)
		err := env.flows.ResetPassword(ctx, "alice", " "+token+" ", "NewPass#1")
		wantAppError(t, err, apperror.ErrInvalidCredential, "Invalid identifier or reset token.")
		if env.users.stored(t, "alice").Reset.Value != token {
			t.Error("a rejected reset must keep the token")
		}
	})

	t.Run("expired token", func(t *testing.T) {
		env, token := setup(t)
		env.clock.Advance(DefaultCodeTTL)

		err := env.flows.ResetPassword(ctx, "a@x.com", token, "NewPass#1")
		wantAppError(t, err, apperror.ErrExpired, "Reset token expired.")
	})

	t.Run("weak password", func(t *testing.T) {
		env, token := setup(t)
		err := env.flows.ResetPassword(ctx, "alice", token, "weak")
		wantAppError(t, err, apperror.ErrValidation, "Password must be at least 7 characters, contain a symbol, and a capital letter.")
		if env.users.stored(t, "alice").Reset.Value != token {
			t.Error("a rejected reset must keep the token")
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		env, token := setup(t)
		err := env.flows.ResetPassword(ctx, "alice", token, "")
		wantAppError(t, err, apperror.ErrValidation, "Identifier, reset token, and new password required.")
	})
}

func TestCodesIssuedMetric(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t)
	if _, err := env.flows.ForgotPassword(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}

	for _, purpose := range []model.CodePurpose{model.PurposeVerification, model.PurposeReset} {
		var m dto.Metric
		if err := env.metrics.CodesIssued.WithLabelValues(string(purpose)).Write(&m); err != nil {
			t.Fatal(err)
		}
		if got := m.GetCounter().GetValue(); got != 1 {
			t.Errorf("%s codes issued = %v, want 1", purpose, got)
		}
	}
}
