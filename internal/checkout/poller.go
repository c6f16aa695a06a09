package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"go.uber.org/zap"
)

const pollBatchSize = 100

// EventPublisher sends the completion event of an order downstream.
type EventPublisher interface {
	PublishCheckoutCompleted(ctx context.Context, rec *domain.OrderRecord) error
}

type reconciler interface {
	Reconcile(ctx context.Context, orderID string) (Outcome, error)
}

// OutboxPoller publishes completed orders and finishes orders that were
// captured but never completed.
type OutboxPoller struct {
	eventTick    time.Duration
	recoveryTick time.Duration
	ledger       Ledger
	reconciler   reconciler
	publisher    EventPublisher
	logger       *zap.Logger
}

func NewOutboxPoller(ledger Ledger, r reconciler, publisher EventPublisher, eventTick, recoveryTick time.Duration, logger *zap.Logger) *OutboxPoller {
	if eventTick <= 0 {
		eventTick = time.Second
	}
	if recoveryTick <= 0 {
		recoveryTick = 5 * time.Second
	}
	return &OutboxPoller{
		eventTick:    eventTick,
		recoveryTick: recoveryTick,
		ledger:       ledger,
		reconciler:   r,
		publisher:    publisher,
		logger:       logger,
	}
}

// Run blocks until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	recoveryTicker := time.NewTicker(p.recoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()

	for {
		select {
		case <-eventTicker.C:
			p.publishCompleted(ctx)
		case <-recoveryTicker.C:
			p.recoverCaptured(ctx)
		case <-ctx.Done():
			p.logger.Info("outbox poller stopped")
			return
		}
	}
}

func (p *OutboxPoller) publishCompleted(ctx context.Context) {
	records, err := p.ledger.ListUnpublished(ctx, pollBatchSize)
	if err != nil {
		p.logger.Error("failed to fetch unpublished orders", zap.Error(err))
		return
	}

	for _, rec := range records {
		if err := p.publisher.PublishCheckoutCompleted(ctx, rec); err != nil {
			p.logger.Error("failed to publish order event", zap.String("order_id", rec.OrderID), zap.Error(err))
			continue
		}
		if err := p.ledger.MarkPublished(ctx, rec.OrderID); err != nil {
			p.logger.Error("failed to mark order published", zap.String("order_id", rec.OrderID), zap.Error(err))
		}
	}
}

// recoverCaptured reconciles orders the provider charged, or may have
// charged, whose cart was never cleared.
func (p *OutboxPoller) recoverCaptured(ctx context.Context) {
	for _, status := range []domain.OrderStatus{domain.OrderStatusCaptured, domain.OrderStatusCaptureUnknown} {
		records, err := p.ledger.ListByStatus(ctx, status, pollBatchSize)
		if err != nil {
			p.logger.Error("failed to fetch orders for recovery", zap.String("status", string(status)), zap.Error(err))
			continue
		}

		for _, rec := range records {
			outcome, err := p.reconciler.Reconcile(ctx, rec.OrderID)
			switch {
			case errors.Is(err, ErrCaptureInFlight):
				// the capture path is finishing it
			case err != nil:
				p.logger.Error("failed to recover order", zap.String("order_id", rec.OrderID), zap.Error(err))
			case outcome.Kind == OutcomeSuccess:
				p.logger.Info("order recovered", zap.String("order_id", rec.OrderID))
			default:
				p.logger.Warn("order not recovered", zap.String("order_id", rec.OrderID), zap.Error(outcome.Err))
			}
		}
	}
}
