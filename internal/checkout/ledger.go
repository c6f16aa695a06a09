package checkout

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
)

// Ledger records provider orders and their lifecycle.
type Ledger interface {
	// Save inserts or updates a record. The published flag is never reset.
	Save(ctx context.Context, rec *domain.OrderRecord) error
	Get(ctx context.Context, orderID string) (*domain.OrderRecord, error)
	ListByStatus(ctx context.Context, status domain.OrderStatus, limit int) ([]*domain.OrderRecord, error)
	// ListUnpublished returns completed orders whose event has not been sent.
	ListUnpublished(ctx context.Context, limit int) ([]*domain.OrderRecord, error)
	MarkPublished(ctx context.Context, orderID string) error
}

type MemoryLedger struct {
	mu      sync.RWMutex
	records map[string]*domain.OrderRecord
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]*domain.OrderRecord)}
}

func (l *MemoryLedger) Save(_ context.Context, rec *domain.OrderRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	stored := *rec
	if existing, ok := l.records[rec.OrderID]; ok {
		stored.CreatedAt = existing.CreatedAt
		stored.Published = existing.Published || rec.Published
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	l.records[rec.OrderID] = &stored
	return nil
}

func (l *MemoryLedger) Get(_ context.Context, orderID string) (*domain.OrderRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	out := *rec
	return &out, nil
}

func (l *MemoryLedger) ListByStatus(_ context.Context, status domain.OrderStatus, limit int) ([]*domain.OrderRecord, error) {
	return l.list(limit, func(r *domain.OrderRecord) bool { return r.Status == status }), nil
}

func (l *MemoryLedger) ListUnpublished(_ context.Context, limit int) ([]*domain.OrderRecord, error) {
	return l.list(limit, func(r *domain.OrderRecord) bool {
		return r.Status == domain.OrderStatusCompleted && !r.Published
	}), nil
}

func (l *MemoryLedger) MarkPublished(_ context.Context, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	rec.Published = true
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// list returns matching records oldest first.
func (l *MemoryLedger) list(limit int, match func(*domain.OrderRecord) bool) []*domain.OrderRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*domain.OrderRecord, 0)
	for _, rec := range l.records {
		if match(rec) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
