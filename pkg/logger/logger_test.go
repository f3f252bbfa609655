package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(t *testing.T) (*Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return FromZap(zap.New(core)), logs
}

func TestWithContext_AddsRequestAndUserFields(t *testing.T) {
	l, logs := newObserved(t)

	ctx := context.WithValue(context.Background(), RequestIdKey, "req-1")
	ctx = context.WithValue(ctx, UserIdKey, "user-1")
	l.WithContext(ctx).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	require.Equal(t, "req-1", fields["request_id"])
	require.Equal(t, "user-1", fields["user_id"])
}

func TestWithContext_NilContextDoesNotPanic(t *testing.T) {
	l, logs := newObserved(t)

	//nolint:staticcheck // nil context is tolerated on purpose
	l.WithContext(nil).Info("no ctx")

	require.Equal(t, 1, logs.Len())
	require.Empty(t, logs.All()[0].ContextMap())
}

func TestNamed_AddsComponent(t *testing.T) {
	l, logs := newObserved(t)

	l.Named("key_exchange").Logger.Warn("careful")

	require.Equal(t, "key_exchange", logs.All()[0].ContextMap()["component"])
}

func TestNewModes(t *testing.T) {
	require.NotNil(t, New(ProductionMode).Logger)
	require.NotNil(t, New(DevelopmentMode).Logger)
	require.NotNil(t, NewNop().Logger)
}
