package transport

import (
	"context"
	"errors"
	"net/smtp"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaypoint/notifier/internal/config"
	"github.com/relaypoint/notifier/internal/domain"
)

func rendered(email, phone string, tokens ...string) *domain.RenderedNotification {
	return &domain.RenderedNotification{
		RoutedEvent: domain.RoutedEvent{
			EnrichedEvent: domain.EnrichedEvent{
				SubmittedEvent: domain.SubmittedEvent{
					EventID:   "e1",
					EventType: domain.EventAccount,
					UserID:    "u1",
					Priority:  domain.PriorityNormal,
					CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
				},
				UserEmail:      email,
				UserPhone:      phone,
				UserPushTokens: tokens,
			},
		},
		Subject: "Welcome!",
		Body:    "<p>Hello Alice</p>",
	}
}

func smtpCfg() config.SMTPConfig {
	return config.SMTPConfig{
		Host:     "mail.ex.com",
		Port:     587,
		Username: "mailer",
		Password: "secret",
		From:     "no-reply@ex.com",
		FromName: "RelayPoint",
	}
}

func TestEmailAdapter_Send(t *testing.T) {
	a, err := NewEmailAdapter(smtpCfg())
	require.NoError(t, err)

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	a.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	res, err := a.Send(context.Background(), rendered("alice@ex.com", ""))
	require.NoError(t, err)

	assert.Equal(t, "mail.ex.com:587", gotAddr)
	assert.Equal(t, "no-reply@ex.com", gotFrom)
	assert.Equal(t, []string{"alice@ex.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: Welcome!\r\n")
	assert.Contains(t, string(gotMsg), "From: RelayPoint <no-reply@ex.com>\r\n")
	assert.Contains(t, string(gotMsg), "<p>Hello Alice</p>")
	assert.Equal(t, "alice@ex.com", res.Recipient)
	assert.Equal(t, "smtp", res.Metadata["transport"])
}

func TestEmailAdapter_MissingRecipientIsTerminal(t *testing.T) {
	a, err := NewEmailAdapter(smtpCfg())
	require.NoError(t, err)

	_, err = a.Send(context.Background(), rendered("", ""))
	require.Error(t, err)
	assert.False(t, domain.IsTransient(err), "no address will ever appear; retrying is pointless")
}

func TestEmailAdapter_ServerErrorIsTransient(t *testing.T) {
	a, err := NewEmailAdapter(smtpCfg())
	require.NoError(t, err)
	a.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("451 try again later")
	}

	_, err = a.Send(context.Background(), rendered("alice@ex.com", ""))
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}

func TestNewEmailAdapter_RequiresHost(t *testing.T) {
	cfg := smtpCfg()
	cfg.Host = ""
	_, err := NewEmailAdapter(cfg)
	assert.Error(t, err)
}

func TestSMSAdapter(t *testing.T) {
	a := NewSMSAdapter(zerolog.Nop())

	res, err := a.Send(context.Background(), rendered("", "+61400000000"))
	require.NoError(t, err)
	assert.Equal(t, "+61400000000", res.Recipient)

	_, err = a.Send(context.Background(), rendered("", ""))
	require.Error(t, err)
	assert.False(t, domain.IsTransient(err))
}

func TestPushAdapter(t *testing.T) {
	a := NewPushAdapter(zerolog.Nop())

	res, err := a.Send(context.Background(), rendered("", "", "tok1", "tok2"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Metadata["devices"])

	_, err = a.Send(context.Background(), rendered("", ""))
	require.Error(t, err)
	assert.False(t, domain.IsTransient(err))
}

func TestInAppAdapter_NeverFails(t *testing.T) {
	a := NewInAppAdapter(zerolog.Nop())
	res, err := a.Send(context.Background(), rendered("", ""))
	require.NoError(t, err)
	assert.Equal(t, "u1", res.Recipient)
}
