package payment

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Breaker stops calling a provider that keeps failing. Client errors (4xx)
// are the caller's fault and do not count against the provider.
type Breaker struct {
	next    Provider
	create  *gobreaker.CircuitBreaker[*Order]
	capture *gobreaker.CircuitBreaker[*CapturedOrder]
}

func NewBreaker(next Provider, logger *zap.Logger) *Breaker {
	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: isProviderSuccess,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("payment circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}
	}
	return &Breaker{
		next:    next,
		create:  gobreaker.NewCircuitBreaker[*Order](settings("payment-create")),
		capture: gobreaker.NewCircuitBreaker[*CapturedOrder](settings("payment-capture")),
	}
}

func (b *Breaker) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	o, err := b.create.Execute(func() (*Order, error) {
		return b.next.CreateOrder(ctx, req)
	})
	return o, translateBreakerError(err)
}

func (b *Breaker) CaptureOrder(ctx context.Context, orderID string) (*CapturedOrder, error) {
	o, err := b.capture.Execute(func() (*CapturedOrder, error) {
		return b.next.CaptureOrder(ctx, orderID)
	})
	return o, translateBreakerError(err)
}

// GetOrder shares the capture breaker: both hit the same order endpoints.
func (b *Breaker) GetOrder(ctx context.Context, orderID string) (*CapturedOrder, error) {
	o, err := b.capture.Execute(func() (*CapturedOrder, error) {
		return b.next.GetOrder(ctx, orderID)
	})
	return o, translateBreakerError(err)
}

func isProviderSuccess(err error) bool {
	if err == nil {
		return true
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return !perr.Temporary()
	}
	return false
}

func translateBreakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Join(ErrProviderUnavailable, err)
	}
	return err
}
