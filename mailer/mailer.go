// Package mailer delivers password reset links. SMTP sends real mail through
// go-mail; LogNotifier only logs and is meant for local development.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/go-mail/mail/v2"
	"github.com/rs/zerolog/log"

	"github.com/user/taskdesk-go/config"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	passwordResetTemplate = "password_reset.tmpl"
	sendAttempts          = 3
	retryDelay            = 500 * time.Millisecond
)

// ResetData is the template data of the password reset email.
type ResetData struct {
	Email     string
	Link      string
	ExpiresIn string
}

// Message is a rendered email.
type Message struct {
	Subject   string
	PlainBody string
	HTMLBody  string
}

// Render executes the subject, plainBody and htmlBody blocks of the named template.
func Render(name string, data any) (*Message, error) {
	tmpl, err := template.New("email").ParseFS(templateFS, "templates/"+name)
	if err != nil {
		return nil, fmt.Errorf("parse email template %s: %w", name, err)
	}

	var subject, plainBody, htmlBody bytes.Buffer
	if err := tmpl.ExecuteTemplate(&subject, "subject", data); err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	if err := tmpl.ExecuteTemplate(&plainBody, "plainBody", data); err != nil {
		return nil, fmt.Errorf("render plain body: %w", err)
	}
	if err := tmpl.ExecuteTemplate(&htmlBody, "htmlBody", data); err != nil {
		return nil, fmt.Errorf("render html body: %w", err)
	}
	return &Message{Subject: subject.String(), PlainBody: plainBody.String(), HTMLBody: htmlBody.String()}, nil
}

// SMTP sends mail through an SMTP relay.
type SMTP struct {
	dialer *mail.Dialer
	sender string
	ttl    time.Duration
}

// NewSMTP creates an SMTP notifier. tokenTTL is only used in the email text.
func NewSMTP(cfg config.MailConfig, tokenTTL time.Duration) *SMTP {
	dialer := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.Timeout = 10 * time.Second
	return &SMTP{dialer: dialer, sender: cfg.Sender, ttl: tokenTTL}
}

// SendPasswordReset mails link to the given address, retrying transient failures.
func (m *SMTP) SendPasswordReset(ctx context.Context, to, link string) error {
	rendered, err := Render(passwordResetTemplate, ResetData{Email: to, Link: link, ExpiresIn: m.ttl.String()})
	if err != nil {
		return err
	}

	msg := mail.NewMessage()
	msg.SetHeader("To", to)
	msg.SetHeader("From", m.sender)
	msg.SetHeader("Subject", rendered.Subject)
	msg.SetBody("text/plain", rendered.PlainBody)
	msg.AddAlternative("text/html", rendered.HTMLBody)

	for attempt := 1; attempt <= sendAttempts; attempt++ {
		err = m.dialer.DialAndSend(msg)
		if err == nil {
			return nil
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("smtp send failed")
		if attempt == sendAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return fmt.Errorf("send password reset email after %d attempts: %w", sendAttempts, err)
}

// LogNotifier writes reset links to the log instead of sending them.
type LogNotifier struct{}

// SendPasswordReset logs the link at info level.
func (LogNotifier) SendPasswordReset(_ context.Context, to, link string) error {
	log.Info().Str("to", to).Str("link", link).Msg("password reset link (mail delivery disabled)")
	return nil
}
