// Package notify delivers the account emails: the verification code sent at
// registration, a resent verification code, and the password reset token.
//
// Senders are opaque to the services. A Send either succeeds or returns an
// error; retries are left to the user (resend / forgot password).
package notify

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"
)

// Message is one plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

const (
	SubjectVerify      = "Verify Your Account"
	SubjectResend      = "Your Verification Code"
	SubjectReset       = "Password Reset Request"
	verifyTemplateBody = `Hello {{.FirstName}},

Your verification code is: {{.Code}}

This code is valid for {{.Minutes}} minutes.`
	resendTemplateBody = `Hello {{.FirstName}},

Your new verification code is: {{.Code}}

It expires in {{.Minutes}} minutes.`
	resetTemplateBody = `Hello {{.FirstName}},

Use the code below to reset your password. It expires in {{.Minutes}} minutes.

Token: {{.Code}}`
)

var (
	verifyTemplate = template.Must(template.New("verify").Parse(verifyTemplateBody))
	resendTemplate = template.Must(template.New("resend").Parse(resendTemplateBody))
	resetTemplate  = template.Must(template.New("reset").Parse(resetTemplateBody))
)

type codeData struct {
	FirstName string
	Code      string
	Minutes   int
}

func render(tpl *template.Template, to, subject, firstName, code string, ttl time.Duration) (Message, error) {
	var buf bytes.Buffer
	data := codeData{FirstName: firstName, Code: code, Minutes: int(ttl.Round(time.Minute) / time.Minute)}
	if err := tpl.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("notify: rendering %s: %w", tpl.Name(), err)
	}
	return Message{To: to, Subject: subject, Body: buf.String()}, nil
}

// VerificationEmail is sent right after registration.
func VerificationEmail(to, firstName, code string, ttl time.Duration) (Message, error) {
	return render(verifyTemplate, to, SubjectVerify, firstName, code, ttl)
}

// ResendEmail carries a replacement verification code.
func ResendEmail(to, firstName, code string, ttl time.Duration) (Message, error) {
	return render(resendTemplate, to, SubjectResend, firstName, code, ttl)
}

// ResetEmail carries a password reset token.
func ResetEmail(to, firstName, token string, ttl time.Duration) (Message, error) {
	return render(resetTemplate, to, SubjectReset, firstName, token, ttl)
}
