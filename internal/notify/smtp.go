package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"
)

// SMTPConfig holds the relay settings. The defaults in config point at
// SendGrid's relay, which takes the literal username "apikey" and the API
// key as password.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	Timeout  time.Duration
}

// SMTPSender delivers mail through an SMTP relay, upgrading to TLS with
// STARTTLS whenever the server offers it.
type SMTPSender struct {
	cfg    SMTPConfig
	from   mail.Address
	logger *slog.Logger
}

// NewSMTPSender returns a sender for cfg.
func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SMTPSender{
		cfg:    cfg,
		from:   mail.Address{Name: cfg.FromName, Address: cfg.From},
		logger: logger,
	}
}

// Send dials the relay, authenticates and submits msg. The whole exchange is
// bounded by the context deadline or the configured timeout, whichever is
// earlier.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	deadline := time.Now().Add(s.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("notify: dialing %s: %w", addr, err)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("notify: setting deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("notify: creating SMTP client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("notify: starting TLS: %w", err)
		}
	}

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("notify: authenticating: %w", err)
		}
	}

	if err := client.Mail(s.from.Address); err != nil {
		return fmt.Errorf("notify: MAIL FROM: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("notify: RCPT TO: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("notify: DATA: %w", err)
	}
	if _, err := w.Write(buildMessage(s.from, msg, time.Now())); err != nil {
		w.Close()
		return fmt.Errorf("notify: writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("notify: finishing message: %w", err)
	}

	if err := client.Quit(); err != nil {
		s.logger.Warn("smtp quit failed", slog.String("error", err.Error()))
	}

	s.logger.Info("email sent", slog.String("to", msg.To), slog.String("subject", msg.Subject))
	return nil
}

// buildMessage renders RFC 5322 headers and a UTF-8 plain-text body with
// CRLF line endings.
func buildMessage(from mail.Address, msg Message, now time.Time) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from.String())
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", now.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.Write(bytes.ReplaceAll(normalizeNewlines([]byte(msg.Body)), []byte("\n"), []byte("\r\n")))
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func normalizeNewlines(b []byte) []byte {
	return bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
}
