package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingProvider struct {
	calls int
	err   error
}

func (p *countingProvider) CreateOrder(context.Context, OrderRequest) (*Order, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &Order{ID: "o1", Status: StatusCreated}, nil
}

func (p *countingProvider) CaptureOrder(context.Context, string) (*CapturedOrder, error) {
	p.calls++
	return nil, p.err
}

func (p *countingProvider) GetOrder(context.Context, string) (*CapturedOrder, error) {
	p.calls++
	return nil, p.err
}

func TestBreaker_OpensAfterServerErrors(t *testing.T) {
	inner := &countingProvider{err: &ProviderError{Op: "capture order", StatusCode: 503}}
	b := NewBreaker(inner, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := b.CaptureOrder(ctx, "o1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrProviderUnavailable)
	}

	_, err := b.CaptureOrder(ctx, "o1")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, 5, inner.calls)
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	inner := &countingProvider{err: &ProviderError{Op: "capture order", StatusCode: 422}}
	b := NewBreaker(inner, zap.NewNop())

	for i := 0; i < 10; i++ {
		_, err := b.CaptureOrder(context.Background(), "o1")
		var perr *ProviderError
		require.True(t, errors.As(err, &perr))
	}
	assert.Equal(t, 10, inner.calls)
}

func TestBreaker_PassesThrough(t *testing.T) {
	b := NewBreaker(&countingProvider{}, zap.NewNop())

	o, err := b.CreateOrder(context.Background(), OrderRequest{})
	require.NoError(t, err)
	assert.Equal(t, "o1", o.ID)
}
