package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
)

// maxPending caps the notifications kept for a session that never drains.
const maxPending = 20

// Notifier delivers user-facing messages about a payment attempt.
type Notifier interface {
	Notify(ctx context.Context, sessionID string, n domain.Notification)
}

type mailbox struct {
	items   []domain.Notification
	touched time.Time
}

// Inbox queues notifications per session until the front-end drains them.
// Only the newest maxPending are kept, and mailboxes idle for longer than
// the ttl are dropped by Prune.
type Inbox struct {
	mu      sync.Mutex
	ttl     time.Duration
	pending map[string]*mailbox
}

func NewInbox(ttl time.Duration) *Inbox {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Inbox{ttl: ttl, pending: make(map[string]*mailbox)}
}

func (i *Inbox) Notify(_ context.Context, sessionID string, n domain.Notification) {
	i.mu.Lock()
	defer i.mu.Unlock()

	box, ok := i.pending[sessionID]
	if !ok {
		box = &mailbox{}
		i.pending[sessionID] = box
	}
	box.items = append(box.items, n)
	if len(box.items) > maxPending {
		box.items = box.items[len(box.items)-maxPending:]
	}
	box.touched = time.Now()
}

// Drain returns and forgets the queued notifications, oldest first.
func (i *Inbox) Drain(sessionID string) []domain.Notification {
	i.mu.Lock()
	defer i.mu.Unlock()

	box, ok := i.pending[sessionID]
	if !ok {
		return []domain.Notification{}
	}
	delete(i.pending, sessionID)
	return box.items
}

// Prune drops mailboxes nobody drained within the ttl.
func (i *Inbox) Prune(now time.Time) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	n := 0
	for sessionID, box := range i.pending {
		if now.Sub(box.touched) > i.ttl {
			delete(i.pending, sessionID)
			n++
		}
	}
	return n
}
