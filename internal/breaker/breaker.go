package breaker

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/internal/logger"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// Breaker guards calls to one remote API.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	trips  func(error) bool
	logger logger.Logger
}

// New creates a breaker. trips decides whether a failed call counts against
// the breaker; a nil trips counts every error.
func New(name string, cfg *config.BreakerConfig, log logger.Logger, trips func(error) bool) *Breaker {
	if cfg == nil {
		cfg = &config.BreakerConfig{}
	}
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures >= failures ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if log != nil {
				log.Warnf("circuit breaker %s: state changed from %s to %s", name, from.String(), to.String())
			}
		},
	}

	return &Breaker{
		cb:     gobreaker.NewCircuitBreaker(settings),
		trips:  trips,
		logger: log,
	}
}

func (b *Breaker) Execute(ctx context.Context, operation string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// errors the breaker should not count are reported as successes and
	// handed back to the caller here
	var passthrough error
	_, err := b.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if b.trips != nil && !b.trips(err) {
				passthrough = err
				return nil, nil
			}
			return nil, err
		}
		return nil, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		if b.logger != nil {
			b.logger.Warnf("circuit breaker rejected %s: state=%s", operation, b.cb.State().String())
		}
		return ErrOpen
	}
	if err != nil {
		return err
	}
	return passthrough
}

func (b *Breaker) State() string {
	return b.cb.State().String()
}
