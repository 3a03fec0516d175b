package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/practicebooks/internal/observability/context"
	"github.com/smallbiznis/practicebooks/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsOnlyKnownFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	WithContext(context.Background(), base).Info("bare")

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = correlation.ContextWithCorrelationID(ctx, "req-1")
	ctx = obscontext.WithOrgID(ctx, "42")
	ctx = obscontext.WithActor(ctx, "contractor", "7")
	WithContext(ctx, base).Info("request")

	run := correlation.ContextWithCorrelationID(context.Background(), "run-9")
	run = obscontext.WithActor(run, "system", "scheduler")
	WithContext(run, base).Info("sweep")

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Empty(t, entries[0].ContextMap())

	fields := entries[1].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "42", fields["org_id"])
	assert.Equal(t, "contractor", fields["actor_type"])
	assert.Equal(t, "7", fields["actor_id"])
	assert.NotContains(t, fields, "correlation_id")

	fields = entries[2].ContextMap()
	assert.Equal(t, "run-9", fields["correlation_id"])
	assert.Equal(t, "scheduler", fields["actor_id"])
	assert.NotContains(t, fields, "request_id")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "chatty"})
	assert.Error(t, err)

	log, err := New(nil, Config{Level: "warn", Format: "console"})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
}
