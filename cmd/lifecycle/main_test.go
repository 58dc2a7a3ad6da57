package main

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/linepay-preapproval/internal/adapter"
	"github.com/yourorg/linepay-preapproval/internal/adapter/linepay/linepaytest"
	"github.com/yourorg/linepay-preapproval/internal/config"
)

func testConfig(baseURL string) *config.Config {
	lifecycle := config.DefaultLifecycle()
	lifecycle.PollInterval = 5 * time.Millisecond
	lifecycle.MaxPollAttempts = 20
	lifecycle.ChargeAmount = decimal.NewFromInt(50)
	return &config.Config{
		ChannelID:     "1234567890",
		ChannelSecret: "s3cr3t",
		Sandbox:       true,
		BaseURL:       baseURL,
		Timeout:       2 * time.Second,
		LogFile:       "line.log",
		LogLevel:      "info",
		Lifecycle:     lifecycle,
	}
}

func TestRun_MalformedChargePolicyStopsBeforeProvider(t *testing.T) {
	fake := linepaytest.NewServer("1234567890", "s3cr3t")
	defer fake.Close()

	cfg := testConfig(fake.URL)
	cfg.ChargePolicy = "amount <"

	err := run(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "charge policy")
	assert.Empty(t, fake.Operations(), "no provider call is made with a broken policy")
}

func TestRun_CompletesAgainstFakeProvider(t *testing.T) {
	fake := linepaytest.NewServer("1234567890", "s3cr3t")
	defer fake.Close()

	cfg := testConfig(fake.URL)
	cfg.ChargePolicy = "amount <= 100"

	require.NoError(t, run(context.Background(), cfg, zap.NewNop()))
	ops := fake.Operations()
	require.NotEmpty(t, ops)
	assert.Equal(t, adapter.OpReserve, ops[0])
	assert.Contains(t, ops, adapter.OpPayPreapproved)
	assert.Equal(t, adapter.OpCheckRegKey, ops[len(ops)-1])
}
