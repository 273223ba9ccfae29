// Package mail sends transactional email over SMTP: one-time login codes and
// password-reset links. Delivery is best-effort; callers decide whether a
// failed send aborts the surrounding operation.
package mail

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/chatdeck/chatdeck/internal/config"
	"github.com/chatdeck/chatdeck/internal/telemetry"
)

// Mail kinds, used as the kind label on mail_send_failures_total.
const (
	KindOTP   = "otp"
	KindReset = "password_reset"
)

// sendFunc delivers an assembled message. Tests swap it out; production uses
// the SMTP paths below.
type sendFunc func(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error

// Mailer composes and delivers the platform's transactional emails.
type Mailer struct {
	cfg  *config.MailConfig
	send sendFunc
}

// NewMailer creates a Mailer from the mail configuration.
func NewMailer(cfg *config.MailConfig) *Mailer {
	m := &Mailer{cfg: cfg}
	m.send = m.deliver
	return m
}

// Enabled reports whether outbound mail is configured for this deployment.
func (m *Mailer) Enabled() bool {
	return m.cfg.Enabled && m.cfg.SMTP.Host != ""
}

// SendOTP emails a one-time login code. The code's lifetime is included so
// the message stays accurate when the TTL is reconfigured.
func (m *Mailer) SendOTP(toEmail, code string, ttl time.Duration) error {
	subject := "Your Chatdeck sign-in code"
	body := strings.Join([]string{
		fmt.Sprintf("Your sign-in code is: %s", code),
		"",
		fmt.Sprintf("It expires in %d minutes. If you did not request this code, ignore this email.", int(ttl.Minutes())),
		"",
		"— Chatdeck",
	}, "\r\n")

	return m.sendPlainText(KindOTP, toEmail, subject, body)
}

// SendPasswordReset emails a single-use password reset link.
func (m *Mailer) SendPasswordReset(toEmail, resetURL string, ttl time.Duration) error {
	subject := "Reset your Chatdeck password"
	body := strings.Join([]string{
		"A password reset was requested for your account.",
		"",
		"To choose a new password, open this link:",
		"  " + resetURL,
		"",
		fmt.Sprintf("The link expires in %d minutes and can be used once.", int(ttl.Minutes())),
		"If you did not request a reset, your password is unchanged and you can ignore this email.",
		"",
		"— Chatdeck",
	}, "\r\n")

	return m.sendPlainText(KindReset, toEmail, subject, body)
}

func (m *Mailer) sendPlainText(kind, toEmail, subject, body string) error {
	if !m.Enabled() {
		telemetry.MailSendFailuresTotal.WithLabelValues(kind).Inc()
		return fmt.Errorf("mail is not configured")
	}

	smtpCfg := &m.cfg.SMTP
	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n",
		smtpCfg.From, toEmail, subject,
	)
	msg := []byte(headers + body + "\r\n")

	addr := fmt.Sprintf("%s:%d", smtpCfg.Host, smtpCfg.Port)
	auth := smtp.PlainAuth("", smtpCfg.Username, smtpCfg.Password, smtpCfg.Host)

	if err := m.send(addr, smtpCfg.Host, auth, smtpCfg.From, []string{toEmail}, msg); err != nil {
		telemetry.MailSendFailuresTotal.WithLabelValues(kind).Inc()
		return err
	}
	return nil
}

// deliver sends over implicit TLS when UseTLS is set (port 465 / SMTPS),
// otherwise plain SMTP with STARTTLS upgrade where the server offers it.
func (m *Mailer) deliver(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	if m.cfg.SMTP.UseTLS {
		return sendMailTLS(addr, host, auth, from, to, msg)
	}
	return smtp.SendMail(addr, auth, from, to, msg)
}

// sendMailTLS connects via implicit TLS (port 465 / SMTPS) and sends a
// message. When the TLS dial fails it falls back to the standard SendMail
// path, which performs the STARTTLS upgrade servers on port 587 expect, so
// UseTLS=true always means an encrypted connection either way.
func sendMailTLS(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	tlsConfig := &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return smtp.SendMail(addr, auth, from, to, msg)
	}
	defer conn.Close()

	hostname, _, _ := net.SplitHostPort(addr)
	c, err := smtp.NewClient(conn, hostname)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer c.Quit() //nolint:errcheck

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}
