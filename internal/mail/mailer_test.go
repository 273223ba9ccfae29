package mail

import (
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/chatdeck/chatdeck/internal/config"
)

type capturedMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func newTestMailer(t *testing.T) (*Mailer, *capturedMail) {
	t.Helper()
	m := NewMailer(&config.MailConfig{
		Enabled: true,
		SMTP: config.SMTPConfig{
			Host: "smtp.example.com",
			Port: 587,
			From: "noreply@chatdeck.app",
		},
	})
	captured := &capturedMail{}
	m.send = func(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
		captured.addr = addr
		captured.from = from
		captured.to = to
		captured.msg = string(msg)
		return nil
	}
	return m, captured
}

func TestSendOTP(t *testing.T) {
	m, captured := newTestMailer(t)

	if err := m.SendOTP("alice@example.com", "482913", 10*time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured.addr != "smtp.example.com:587" {
		t.Errorf("addr = %q", captured.addr)
	}
	if len(captured.to) != 1 || captured.to[0] != "alice@example.com" {
		t.Errorf("to = %v", captured.to)
	}
	if !strings.Contains(captured.msg, "482913") {
		t.Error("message body missing the code")
	}
	if !strings.Contains(captured.msg, "expires in 10 minutes") {
		t.Error("message body missing the TTL")
	}
	if !strings.Contains(captured.msg, "From: noreply@chatdeck.app") {
		t.Error("message missing From header")
	}
	if !strings.Contains(captured.msg, "Subject: Your Chatdeck sign-in code") {
		t.Error("message missing Subject header")
	}
}

func TestSendPasswordReset(t *testing.T) {
	m, captured := newTestMailer(t)

	url := "https://chatdeck.app/reset?token=abc123"
	if err := m.SendPasswordReset("bob@example.com", url, time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(captured.msg, url) {
		t.Error("message body missing the reset link")
	}
	if !strings.Contains(captured.msg, "expires in 60 minutes") {
		t.Error("message body missing the TTL")
	}
}

func TestSendFailsWhenNotConfigured(t *testing.T) {
	m := NewMailer(&config.MailConfig{Enabled: true})
	if err := m.SendOTP("alice@example.com", "482913", 10*time.Minute); err == nil {
		t.Error("expected error when SMTP host is unset")
	}

	m = NewMailer(&config.MailConfig{Enabled: false, SMTP: config.SMTPConfig{Host: "smtp.example.com"}})
	if m.Enabled() {
		t.Error("Enabled() should be false when mail.enabled is false")
	}
}
