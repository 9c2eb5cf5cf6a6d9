package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"mission-dispatch/internal/common/config"
	"mission-dispatch/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), logger.NewTestLogger(t), "probe", 5, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_GivesUp(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), logger.NewTestLogger(t), "probe", 3, time.Millisecond, func() error {
		calls++
		return errors.New("connection refused")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "probe failed after 3 attempts")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRetryWithBackoff_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryWithBackoff(ctx, logger.NewTestLogger(t), "probe", 10, time.Hour, func() error {
		calls++
		cancel()
		return errors.New("unavailable")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestTracing_DisabledIsNoop(t *testing.T) {
	shutdown := Tracing(config.TracingConfig{}, "test", logger.NewTestLogger(t))
	assert.NoError(t, shutdown(context.Background()))
}
