package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaypoint/notifier/internal/config"
	"github.com/relaypoint/notifier/internal/domain"
	"github.com/relaypoint/notifier/internal/ops"
)

func TestBuildTransport(t *testing.T) {
	lg := zerolog.Nop()
	opsSrv := ops.NewServer(":0", nil, lg)
	cfg := &config.Config{}

	email, bc, err := buildTransport(domain.ChannelEmail, cfg, opsSrv, lg)
	require.NoError(t, err)
	assert.Equal(t, "smtp", email.Name())
	assert.Nil(t, bc)

	sms, bc, err := buildTransport(domain.ChannelSMS, cfg, opsSrv, lg)
	require.NoError(t, err)
	assert.Equal(t, "sms-sim", sms.Name())
	assert.Nil(t, bc)

	push, bc, err := buildTransport(domain.ChannelPush, cfg, opsSrv, lg)
	require.NoError(t, err)
	assert.Equal(t, "push-sim", push.Name())
	assert.Nil(t, bc)

	_, _, err = buildTransport(domain.Channel("pigeon"), cfg, opsSrv, lg)
	assert.Error(t, err)
}
