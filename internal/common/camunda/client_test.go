package camunda

import (
	"context"
	"errors"
	"testing"
	"time"

	commonerrors "mission-dispatch/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(maxRetries int) *Client {
	return &Client{config: &ClientConfig{
		RequestTimeout: time.Second,
		RetryConfig: &RetryConfig{
			MaxRetries: maxRetries,
			BaseDelay:  time.Millisecond,
			MaxDelay:   2 * time.Millisecond,
		},
	}}
}

func TestIsRetryableZeebeError(t *testing.T) {
	assert.True(t, isRetryableZeebeError(errors.New("rpc error: code = Unavailable desc = connection refused")))
	assert.True(t, isRetryableZeebeError(errors.New("context deadline exceeded")))
	assert.True(t, isRetryableZeebeError(errors.New("RESOURCE_EXHAUSTED: backpressure")))
	assert.False(t, isRetryableZeebeError(errors.New("rpc error: code = InvalidArgument desc = bad variables")))
}

func TestExecuteWithRetry_RetriesTransientErrors(t *testing.T) {
	calls := 0
	err := testClient(3).ExecuteWithRetry(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("unavailable")
		}
		return nil
	}, "publish-message:mission-claimed")

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetry_ExhaustedIsRetryablePublishFailure(t *testing.T) {
	calls := 0
	err := testClient(2).ExecuteWithRetry(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("connection reset by peer")
	}, "publish-message:mission-claimed")

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	stdErr := commonerrors.AsStandard(err)
	assert.Equal(t, commonerrors.ErrCodePublishFailed, stdErr.Code)
	assert.True(t, stdErr.Retryable)
	assert.Contains(t, stdErr.Details, "after 3 attempts")
}

func TestExecuteWithRetry_PermanentErrorIsNotRetried(t *testing.T) {
	calls := 0
	err := testClient(5).ExecuteWithRetry(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("invalid argument: message name is empty")
	}, "publish-message:")

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, commonerrors.ErrCodeInternal, commonerrors.AsStandard(err).Code)
}

func TestExecuteWithRetry_StopsWhenCancelled(t *testing.T) {
	c := testClient(5)
	c.config.RetryConfig.BaseDelay = time.Hour
	c.config.RetryConfig.MaxDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	err := c.ExecuteWithRetry(ctx, func(ctx context.Context) error {
		cancel()
		return errors.New("timeout")
	}, "publish-message:mission-assigned")

	assert.ErrorIs(t, err, context.Canceled)
}
