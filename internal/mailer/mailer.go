// Package mailer delivers transactional mail over SMTP. When no SMTP
// host is configured (development), mail is logged instead of sent.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/swg-labs/smssend-api/pkg/config"
)

// Mailer sends account mail through a configured SMTP relay.
type Mailer struct {
	config     config.SMTPConfig
	appBaseURL string
	logger     *zap.Logger
	send       func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New constructs a Mailer. With an empty SMTP host every send degrades
// to a log line, which keeps local development free of a mail relay.
func New(cfg config.SMTPConfig, appBaseURL string, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Mailer{
		config:     cfg,
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
		logger:     logger,
	}
	m.send = m.sendWithDeadline
	return m
}

// SendVerificationEmail mails the opaque verification token as a
// clickable link.
func (m *Mailer) SendVerificationEmail(ctx context.Context, to, token string) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", m.appBaseURL, url.QueryEscape(token))
	subject := "Confirm your email address"
	body := fmt.Sprintf(
		"Welcome to smssend!\r\n\r\nPlease confirm your email address by opening the link below:\r\n\r\n%s\r\n\r\nThe link expires in 48 hours. If you did not create an account, ignore this message.\r\n",
		link,
	)
	return m.deliver(ctx, to, subject, body)
}

// SendPasswordResetEmail mails the short reset code. The code is typed
// by hand, so the mail repeats it prominently instead of linking.
func (m *Mailer) SendPasswordResetEmail(ctx context.Context, to, code string) error {
	subject := "Your password reset code"
	body := fmt.Sprintf(
		"Someone requested a password reset for this address.\r\n\r\nYour reset code is:\r\n\r\n    %s\r\n\r\nThe code expires in 15 minutes and works once. If this was not you, ignore this message.\r\n",
		code,
	)
	return m.deliver(ctx, to, subject, body)
}

func (m *Mailer) deliver(ctx context.Context, to, subject, body string) error {
	if m.config.Host == "" {
		m.logger.Info("smtp not configured, mail suppressed",
			zap.String("to", to),
			zap.String("subject", subject),
		)
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	msg := strings.Join([]string{
		"From: " + m.config.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	var auth smtp.Auth
	if m.config.User != "" {
		auth = smtp.PlainAuth("", m.config.User, m.config.Password, m.config.Host)
	}

	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)
	if err := m.send(addr, auth, m.config.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

// sendWithDeadline is smtp.SendMail with a bounded connection: one
// deadline covers the dial and the whole SMTP conversation, so a hung
// relay cannot stall a request.
func (m *Mailer) sendWithDeadline(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	timeout := m.config.Timeout
	if timeout <= 0 {
		timeout = 12 * time.Second
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return err
	}
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		conn.Close()
		return err
	}

	client, err := smtp.NewClient(conn, m.config.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if m.config.StartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return fmt.Errorf("smtp server %s does not offer STARTTLS", m.config.Host)
		}
		if err := client.StartTLS(&tls.Config{ServerName: m.config.Host}); err != nil {
			return err
		}
	}

	if a != nil {
		if err := client.Auth(a); err != nil {
			return err
		}
	}

	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
