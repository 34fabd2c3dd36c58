package mailer

import (
	"context"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/swg-labs/smssend-api/pkg/config"
)

func TestMailerSuppressedWithoutHost(t *testing.T) {
	m := New(config.SMTPConfig{}, "https://app.example.com", zap.NewNop())
	require.NoError(t, m.SendVerificationEmail(context.Background(), "user@example.com", "tok"))
	require.NoError(t, m.SendPasswordResetEmail(context.Background(), "user@example.com", "ABCD2345"))
}

func TestMailerVerificationLink(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	m := New(config.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "no-reply@example.com"}, "https://app.example.com/", zap.NewNop())
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	require.NoError(t, m.SendVerificationEmail(context.Background(), "user@example.com", "abc+def"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "no-reply@example.com", gotFrom)
	assert.Equal(t, []string{"user@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "https://app.example.com/verify-email?token=abc%2Bdef")
	assert.Contains(t, string(gotMsg), "Subject: Confirm your email address")
}

func TestMailerResetCodeBody(t *testing.T) {
	var gotMsg []byte
	m := New(config.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "no-reply@example.com"}, "https://app.example.com", zap.NewNop())
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotMsg = msg
		return nil
	}

	require.NoError(t, m.SendPasswordResetEmail(context.Background(), "user@example.com", "WXYZ2345"))
	assert.Contains(t, string(gotMsg), "WXYZ2345")
	assert.False(t, strings.Contains(string(gotMsg), "verify-email"))
}

func TestMailerHungRelayTimesOut(t *testing.T) {
	// A relay that accepts the connection but never sends a greeting.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	m := New(config.SMTPConfig{
		Host:    host,
		Port:    port,
		From:    "no-reply@example.com",
		Timeout: 200 * time.Millisecond,
	}, "https://app.example.com", zap.NewNop())

	start := time.Now()
	err = m.SendVerificationEmail(context.Background(), "user@example.com", "tok")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
