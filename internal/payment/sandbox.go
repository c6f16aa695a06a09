package payment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

// Decider chooses whether the sandbox approves a capture.
type Decider interface {
	Approve() (bool, string)
}

type AlwaysApprove struct{}

func (AlwaysApprove) Approve() (bool, string) {
	return true, ""
}

// RandomDecider declines roughly FailurePercent of captures.
type RandomDecider struct {
	FailurePercent int
}

func (r RandomDecider) Approve() (bool, string) {
	return decide(rand.Intn(100), r.FailurePercent)
}

func decide(roll, failurePercent int) (bool, string) {
	if roll >= failurePercent {
		return true, ""
	}
	if roll%2 == 0 {
		return false, "INSTRUMENT_DECLINED"
	}
	return false, "PAYER_ACTION_REQUIRED"
}

// Sandbox is an in-process provider for local runs and tests. Orders live in
// memory and are treated as approved by the buyer as soon as they exist.
type Sandbox struct {
	mu         sync.Mutex
	orders     map[string]*sandboxOrder
	decider    Decider
	payerEmail string
}

type sandboxOrder struct {
	request  OrderRequest
	status   string
	captured *CapturedOrder
}

func NewSandbox(decider Decider) *Sandbox {
	if decider == nil {
		decider = AlwaysApprove{}
	}
	return &Sandbox{
		orders:     make(map[string]*sandboxOrder),
		decider:    decider,
		payerEmail: "sb-buyer@example.com",
	}
}

func (s *Sandbox) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Intent != IntentCapture || len(req.PurchaseUnits) == 0 {
		return nil, &ProviderError{Op: "create order", StatusCode: 422, Name: "UNPROCESSABLE_ENTITY", Message: "invalid order request"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.orders[id] = &sandboxOrder{request: req, status: StatusCreated}
	return &Order{ID: id, Status: StatusCreated}, nil
}

func (s *Sandbox) CaptureOrder(ctx context.Context, orderID string) (*CapturedOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, &ProviderError{Op: "capture order", StatusCode: 404, Name: "RESOURCE_NOT_FOUND", Message: fmt.Sprintf("order %s not found", orderID)}
	}
	// repeated captures answer with the first result
	if o.captured != nil {
		return o.captured, nil
	}

	if ok, reason := s.decider.Approve(); !ok {
		return nil, &ProviderError{Op: "capture order", StatusCode: 422, Name: "UNPROCESSABLE_ENTITY", Message: reason}
	}

	o.status = StatusCompleted
	o.captured = &CapturedOrder{
		ID:     orderID,
		Status: StatusCompleted,
		Payer: Payer{
			EmailAddress: s.payerEmail,
			PayerID:      "SANDBOXPAYER",
		},
		PurchaseUnits: []CapturedUnit{{Amount: o.request.PurchaseUnits[0].Amount}},
	}
	return o.captured, nil
}

func (s *Sandbox) GetOrder(ctx context.Context, orderID string) (*CapturedOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, &ProviderError{Op: "get order", StatusCode: 404, Name: "RESOURCE_NOT_FOUND", Message: fmt.Sprintf("order %s not found", orderID)}
	}
	if o.captured != nil {
		return o.captured, nil
	}
	return &CapturedOrder{
		ID:            orderID,
		Status:        o.status,
		PurchaseUnits: []CapturedUnit{{Amount: o.request.PurchaseUnits[0].Amount}},
	}, nil
}
