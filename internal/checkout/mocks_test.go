package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/payment"
	"go.uber.org/zap"
)

// MockProvider wraps the sandbox, counts calls and can block or fail them.
type MockProvider struct {
	*payment.Sandbox

	mu           sync.Mutex
	createCalls  int
	captureCalls int
	getCalls     int
	CreateErr    error
	CaptureErr   error
	// when set, CaptureOrder captures at the sandbox and then returns this
	LostErr error
	// when set, CaptureOrder signals Started and waits on Release
	Started chan struct{}
	Release chan struct{}
}

func NewMockProvider() *MockProvider {
	return &MockProvider{Sandbox: payment.NewSandbox(payment.AlwaysApprove{})}
}

func (m *MockProvider) CreateOrder(ctx context.Context, req payment.OrderRequest) (*payment.Order, error) {
	m.mu.Lock()
	m.createCalls++
	err := m.CreateErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.Sandbox.CreateOrder(ctx, req)
}

func (m *MockProvider) CaptureOrder(ctx context.Context, orderID string) (*payment.CapturedOrder, error) {
	m.mu.Lock()
	m.captureCalls++
	err, lost := m.CaptureErr, m.LostErr
	started, release := m.Started, m.Release
	m.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	captured, err := m.Sandbox.CaptureOrder(ctx, orderID)
	if err == nil && lost != nil {
		return nil, lost
	}
	return captured, err
}

func (m *MockProvider) SetLostErr(err error) {
	m.mu.Lock()
	m.LostErr = err
	m.mu.Unlock()
}

func (m *MockProvider) GetOrder(ctx context.Context, orderID string) (*payment.CapturedOrder, error) {
	m.mu.Lock()
	m.getCalls++
	m.mu.Unlock()
	return m.Sandbox.GetOrder(ctx, orderID)
}

func (m *MockProvider) Calls() (create, capture, get int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls, m.captureCalls, m.getCalls
}

// FlakyCarts fails Clear while ClearErr is set.
type FlakyCarts struct {
	*cart.Service

	mu       sync.Mutex
	ClearErr error
}

func (f *FlakyCarts) Clear(ctx context.Context, sessionID string) (*domain.Cart, error) {
	f.mu.Lock()
	err := f.ClearErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Service.Clear(ctx, sessionID)
}

func (f *FlakyCarts) SetClearErr(err error) {
	f.mu.Lock()
	f.ClearErr = err
	f.mu.Unlock()
}

// MockPublisher records published orders.
type MockPublisher struct {
	mu        sync.Mutex
	Published []string
	Err       error
}

func (m *MockPublisher) PublishCheckoutCompleted(_ context.Context, rec *domain.OrderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Published = append(m.Published, rec.OrderID)
	return nil
}

func (m *MockPublisher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Published)
}

type fixture struct {
	carts    *FlakyCarts
	provider *MockProvider
	ledger   *MemoryLedger
	inbox    *Inbox
	orch     *Orchestrator
}

func newFixture(clientID string) *fixture {
	carts := &FlakyCarts{Service: cart.NewService(cart.NewMemoryRepository(), catalog.NewStaticRepository(), zap.NewNop())}
	f := &fixture{
		carts:    carts,
		provider: NewMockProvider(),
		ledger:   NewMemoryLedger(),
		inbox:    NewInbox(time.Hour),
	}
	f.orch = NewOrchestrator(f.carts, f.provider, f.ledger, f.inbox, Options{ClientID: clientID}, zap.NewNop())
	return f
}
