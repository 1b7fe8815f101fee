package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/customeros/mailsync/config"
)

var (
	errServer = errors.New("503")
	errClient = errors.New("404")
)

func testConfig() *config.BreakerConfig {
	return &config.BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, ConsecutiveFailures: 3}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := New("test", testConfig(), nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := b.Execute(ctx, "op", func() error { return errServer })
		assert.ErrorIs(t, err, errServer)
	}

	calls := 0
	err := b.Execute(ctx, "op", func() error { calls++; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, 0, calls)
	assert.Equal(t, "open", b.State())
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	b := New("test", testConfig(), nil, func(err error) bool { return !errors.Is(err, errClient) })
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		err := b.Execute(ctx, "op", func() error { return errClient })
		assert.ErrorIs(t, err, errClient)
	}

	err := b.Execute(ctx, "op", func() error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_CancelledContext(t *testing.T) {
	b := New("test", testConfig(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Execute(ctx, "op", func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
