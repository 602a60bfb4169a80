package mailer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/user/taskdesk-go/config"
)

func TestRenderPasswordReset(t *testing.T) {
	link := "http://localhost:3000/reset-password?token=abc123"
	msg, err := Render(passwordResetTemplate, ResetData{Email: "alice@example.com", Link: link, ExpiresIn: "30m0s"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if msg.Subject != "Reset your taskdesk password" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	for name, body := range map[string]string{"plain": msg.PlainBody, "html": msg.HTMLBody} {
		if !strings.Contains(body, "alice@example.com") {
			t.Errorf("%s body missing email", name)
		}
		if !strings.Contains(body, "30m0s") {
			t.Errorf("%s body missing expiry", name)
		}
	}
	if !strings.Contains(msg.PlainBody, link) {
		t.Errorf("plain body missing link:\n%s", msg.PlainBody)
	}
	// html/template escapes & and friends inside attributes, but this link has none.
	if !strings.Contains(msg.HTMLBody, `href="`+link+`"`) {
		t.Errorf("html body missing href:\n%s", msg.HTMLBody)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	if _, err := Render("missing.tmpl", nil); err == nil {
		t.Fatal("Render of a missing template succeeded")
	}
}

func TestSMTPGivesUpWhenContextDone(t *testing.T) {
	// Port 1 on localhost refuses connections immediately.
	m := NewSMTP(config.MailConfig{Host: "127.0.0.1", Port: 1, Sender: "taskdesk <no-reply@taskdesk.local>"}, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.SendPasswordReset(ctx, "alice@example.com", "http://localhost/reset-password?token=x"); err == nil {
		t.Fatal("SendPasswordReset succeeded without a relay")
	}
}

func TestLogNotifier(t *testing.T) {
	if err := (LogNotifier{}).SendPasswordReset(context.Background(), "a@example.com", "http://x"); err != nil {
		t.Fatal(err)
	}
}
