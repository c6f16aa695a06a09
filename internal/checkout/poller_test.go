package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockReconciler struct {
	Calls []string
	Err   error
}

func (m *MockReconciler) Reconcile(_ context.Context, orderID string) (Outcome, error) {
	m.Calls = append(m.Calls, orderID)
	if m.Err != nil {
		return Outcome{}, m.Err
	}
	return Outcome{Kind: OutcomeSuccess}, nil
}

func TestPoller_PublishesCompletedOrdersOnce(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()
	require.NoError(t, ledger.Save(ctx, newRecord("done", domain.OrderStatusCompleted)))
	require.NoError(t, ledger.Save(ctx, newRecord("open", domain.OrderStatusCreated)))
	pub := &MockPublisher{}
	p := NewOutboxPoller(ledger, &MockReconciler{}, pub, time.Second, time.Second, zap.NewNop())

	p.publishCompleted(ctx)
	p.publishCompleted(ctx)

	assert.Equal(t, []string{"done"}, pub.Published)
	rec, err := ledger.Get(ctx, "done")
	require.NoError(t, err)
	assert.True(t, rec.Published)
}

func TestPoller_PublishFailureRetriesLater(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()
	require.NoError(t, ledger.Save(ctx, newRecord("done", domain.OrderStatusCompleted)))
	pub := &MockPublisher{Err: errors.New("broker unavailable")}
	p := NewOutboxPoller(ledger, &MockReconciler{}, pub, time.Second, time.Second, zap.NewNop())

	p.publishCompleted(ctx)

	rec, err := ledger.Get(ctx, "done")
	require.NoError(t, err)
	assert.False(t, rec.Published)

	pub.Err = nil
	p.publishCompleted(ctx)
	assert.Equal(t, []string{"done"}, pub.Published)
}

func TestPoller_RecoversCapturedOrders(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()
	require.NoError(t, ledger.Save(ctx, newRecord("stuck", domain.OrderStatusCaptured)))
	require.NoError(t, ledger.Save(ctx, newRecord("unsure", domain.OrderStatusCaptureUnknown)))
	require.NoError(t, ledger.Save(ctx, newRecord("done", domain.OrderStatusCompleted)))
	rec := &MockReconciler{}
	p := NewOutboxPoller(ledger, rec, &MockPublisher{}, time.Second, time.Second, zap.NewNop())

	p.recoverCaptured(ctx)

	assert.Equal(t, []string{"stuck", "unsure"}, rec.Calls)
}

func TestPoller_RunEndToEnd(t *testing.T) {
	f := newFixture("client-id")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	order := startCheckout(t, f)
	f.carts.SetClearErr(errors.New("redis unavailable"))
	_, err := f.orch.Approve(ctx, sid, order.ID)
	require.NoError(t, err)
	f.carts.SetClearErr(nil)

	pub := &MockPublisher{}
	p := NewOutboxPoller(f.ledger, f.orch, pub, 10*time.Millisecond, 10*time.Millisecond, zap.NewNop())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return pub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	rec, err := f.ledger.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, rec.Status)
	assert.True(t, rec.Published)

	cancel()
	<-done
}

func TestPoller_RecoversLostCaptureResponse(t *testing.T) {
	f := newFixture("client-id")
	ctx := context.Background()
	order := startCheckout(t, f)
	f.provider.SetLostErr(context.DeadlineExceeded)

	outcome, err := f.orch.Approve(ctx, sid, order.ID)
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, outcome.Kind)
	f.provider.SetLostErr(nil)

	p := NewOutboxPoller(f.ledger, f.orch, &MockPublisher{}, time.Second, time.Second, zap.NewNop())
	p.recoverCaptured(ctx)

	rec, err := f.ledger.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, rec.Status)

	c, err := f.carts.Get(ctx, sid)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	_, capture, _ := f.provider.Calls()
	assert.Equal(t, 1, capture)
}
