package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/payment"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartStore is the part of the cart service checkout depends on.
type CartStore interface {
	Get(ctx context.Context, sessionID string) (*domain.Cart, error)
	Clear(ctx context.Context, sessionID string) (*domain.Cart, error)
}

type SurfaceKind string

const (
	SurfaceSuppressed  SurfaceKind = "suppressed"
	SurfaceConfigError SurfaceKind = "config_error"
	SurfacePayable     SurfaceKind = "payable"
)

// Surface describes what the front-end should render for checkout.
type Surface struct {
	Kind      SurfaceKind     `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	ItemCount int             `json:"item_count"`
	Currency  string          `json:"currency,omitempty"`
	Intent    string          `json:"intent,omitempty"`
	ClientID  string          `json:"client_id,omitempty"`
	Message   string          `json:"message,omitempty"`
}

type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// Outcome is the result of a finished payment attempt.
type Outcome struct {
	Kind  OutcomeKind
	Order *payment.CapturedOrder
	Err   error
}

// State is a snapshot of a session's payment attempt.
type State struct {
	Status  domain.CheckoutStatus `json:"status"`
	OrderID string                `json:"order_id,omitempty"`
}

type attempt struct {
	status  domain.CheckoutStatus
	orderID string
	touched time.Time
}

type Options struct {
	ClientID       string
	CaptureTimeout time.Duration
	// AttemptTTL is how long an untouched attempt is remembered.
	AttemptTTL time.Duration
}

// Orchestrator drives one payment attempt per session: it presents the
// payment surface, creates the provider order, captures on approval and
// turns every outcome into a notification.
type Orchestrator struct {
	carts    CartStore
	provider payment.Provider
	ledger   Ledger
	notifier Notifier
	opts     Options
	logger   *zap.Logger

	mu       sync.Mutex
	attempts map[string]*attempt
	// orders currently being captured or reconciled
	inflight map[string]struct{}
}

func NewOrchestrator(carts CartStore, provider payment.Provider, ledger Ledger, notifier Notifier, opts Options, logger *zap.Logger) *Orchestrator {
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = 15 * time.Second
	}
	if opts.AttemptTTL <= 0 {
		opts.AttemptTTL = 24 * time.Hour
	}
	return &Orchestrator{
		carts:    carts,
		provider: provider,
		ledger:   ledger,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
		attempts: make(map[string]*attempt),
		inflight: make(map[string]struct{}),
	}
}

// Present decides which payment surface the session gets. An empty cart
// suppresses the surface; a missing client id fails closed.
func (o *Orchestrator) Present(ctx context.Context, sessionID string) (*Surface, error) {
	c, err := o.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	total := c.Total()
	if !total.IsPositive() {
		return &Surface{Kind: SurfaceSuppressed, Amount: decimal.Zero}, nil
	}

	if o.opts.ClientID == "" {
		o.logger.Error("payment client id is not configured", zap.String("session_id", sessionID))
		return &Surface{Kind: SurfaceConfigError, Message: domain.MessageConfigurationError}, nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	a := o.attemptLocked(sessionID)
	if a.status == domain.CheckoutStatusCapturing {
		return nil, ErrCaptureInFlight
	}
	if a.status.IsTerminal() {
		// a finished attempt starts over
		a.status = domain.CheckoutStatusIdle
	}
	if a.status == domain.CheckoutStatusIdle {
		if err := transition(a, domain.CheckoutStatusAwaitingApproval); err != nil {
			return nil, err
		}
	}
	// re-presenting abandons any order created for the previous surface
	a.orderID = ""

	return &Surface{
		Kind:      SurfacePayable,
		Amount:    total,
		ItemCount: len(c.Items),
		Currency:  payment.CurrencyUSD,
		Intent:    payment.IntentCapture,
		ClientID:  o.opts.ClientID,
	}, nil
}

// CreateOrder creates the provider order for the current cart contents.
func (o *Orchestrator) CreateOrder(ctx context.Context, sessionID string) (*payment.Order, payment.OrderRequest, error) {
	if o.opts.ClientID == "" {
		return nil, payment.OrderRequest{}, ErrPaymentNotConfigured
	}
	if err := o.expect(sessionID, domain.CheckoutStatusAwaitingApproval); err != nil {
		return nil, payment.OrderRequest{}, err
	}

	c, err := o.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, payment.OrderRequest{}, fmt.Errorf("failed to load cart: %w", err)
	}
	if c.IsEmpty() || !c.Total().IsPositive() {
		return nil, payment.OrderRequest{}, ErrEmptyCart
	}

	req := payment.NewOrderRequest(c.Total(), len(c.Items))
	order, err := o.provider.CreateOrder(ctx, req)
	if err != nil {
		o.logger.Error("provider order creation failed", zap.String("session_id", sessionID), zap.Error(err))
		o.failAttempt(ctx, sessionID, "", domain.MessagePaymentFailed)
		return nil, req, fmt.Errorf("failed to create provider order: %w", err)
	}

	rec := &domain.OrderRecord{
		OrderID:   order.ID,
		SessionID: sessionID,
		Status:    domain.OrderStatusCreated,
		Amount:    c.Total(),
		Currency:  payment.CurrencyUSD,
		ItemCount: len(c.Items),
	}
	if err := o.ledger.Save(ctx, rec); err != nil {
		o.logger.Error("failed to record order", zap.String("order_id", order.ID), zap.Error(err))
		o.failAttempt(ctx, sessionID, order.ID, domain.MessagePaymentFailed)
		return nil, req, fmt.Errorf("failed to record order: %w", err)
	}

	o.mu.Lock()
	if a, ok := o.attempts[sessionID]; ok && a.status == domain.CheckoutStatusAwaitingApproval {
		a.orderID = order.ID
	}
	o.mu.Unlock()

	logger.WithContext(ctx, o.logger).Info("checkout order created",
		zap.String("session_id", sessionID),
		zap.String("order_id", order.ID),
		zap.String("amount", rec.Amount.StringFixed(2)))
	return order, req, nil
}

// Approve captures an order the buyer approved at the provider. While the
// capture runs the session is gated and further Approve calls are rejected
// with ErrCaptureInFlight.
func (o *Orchestrator) Approve(ctx context.Context, sessionID, orderID string) (Outcome, error) {
	o.mu.Lock()
	a, ok := o.attempts[sessionID]
	if !ok {
		o.mu.Unlock()
		return Outcome{}, ErrNoCheckout
	}
	if a.status == domain.CheckoutStatusCapturing {
		o.mu.Unlock()
		return Outcome{}, ErrCaptureInFlight
	}
	if a.orderID != orderID && a.status == domain.CheckoutStatusAwaitingApproval {
		o.mu.Unlock()
		return Outcome{}, ErrOrderMismatch
	}
	if _, busy := o.inflight[orderID]; busy {
		o.mu.Unlock()
		return Outcome{}, ErrCaptureInFlight
	}
	if err := transition(a, domain.CheckoutStatusCapturing); err != nil {
		o.mu.Unlock()
		return Outcome{}, err
	}
	o.inflight[orderID] = struct{}{}
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.inflight, orderID)
		o.mu.Unlock()
	}()

	// the capture outlives the request that started it, bounded by its own timeout
	captureCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.CaptureTimeout)
	defer cancel()

	log := logger.WithContext(ctx, o.logger).With(zap.String("session_id", sessionID), zap.String("order_id", orderID))

	rec, err := o.ledger.Get(captureCtx, orderID)
	if err != nil {
		log.Error("order missing from ledger", zap.Error(err))
		o.finishFailed(captureCtx, sessionID, orderID, domain.MessagePaymentFailed)
		return Outcome{Kind: OutcomeFailed, Err: err}, nil
	}

	var captured *payment.CapturedOrder
	switch rec.Status {
	case domain.OrderStatusCompleted:
		log.Info("order already completed by reconciliation")
		o.succeed(a, log)
		return Outcome{Kind: OutcomeSuccess, Order: recordToCaptured(rec)}, nil
	case domain.OrderStatusCaptured:
		log.Info("order already captured, skipping provider capture")
		captured, err = o.provider.GetOrder(captureCtx, orderID)
	default:
		// the provider answers a repeated capture of one order with the first result
		captured, err = o.provider.CaptureOrder(captureCtx, orderID)
	}
	if err == nil && !captured.Completed() {
		err = fmt.Errorf("%w: status %s", ErrNotCaptured, captured.Status)
	}
	if err != nil {
		if rec.Status == domain.OrderStatusCaptured || !captureRejected(err) {
			log.Warn("capture outcome unknown, order left for reconciliation", zap.Error(err))
			if rec.Status != domain.OrderStatusCaptured {
				rec.Status = domain.OrderStatusCaptureUnknown
				if saveErr := o.ledger.Save(captureCtx, rec); saveErr != nil {
					log.Error("failed to record unknown capture", zap.Error(saveErr))
				}
			}
			o.mu.Lock()
			if err := transition(a, domain.CheckoutStatusAwaitingApproval); err != nil {
				log.Warn("unexpected checkout state after capture", zap.Error(err))
			}
			o.mu.Unlock()
			o.notify(captureCtx, sessionID, domain.NotificationError, domain.MessagePaymentUnconfirmed, orderID)
			return Outcome{Kind: OutcomeFailed, Err: err}, nil
		}

		log.Error("payment capture failed", zap.Error(err))
		rec.Status = domain.OrderStatusFailed
		if saveErr := o.ledger.Save(captureCtx, rec); saveErr != nil {
			log.Error("failed to record failed order", zap.Error(saveErr))
		}
		o.finishFailed(captureCtx, sessionID, orderID, domain.MessagePaymentFailed)
		return Outcome{Kind: OutcomeFailed, Err: err}, nil
	}

	if err := o.complete(captureCtx, rec, captured); err != nil {
		log.Error("post-capture processing failed, order left for reconciliation", zap.Error(err))
		o.finishFailed(captureCtx, sessionID, orderID, domain.MessagePostCaptureFailed)
		return Outcome{Kind: OutcomeFailed, Order: captured, Err: err}, nil
	}

	o.succeed(a, log)
	log.Info("payment captured", zap.String("payer_id", captured.Payer.PayerID))
	return Outcome{Kind: OutcomeSuccess, Order: captured}, nil
}

// Fail handles an error reported by the provider. The cart is left intact.
func (o *Orchestrator) Fail(ctx context.Context, sessionID string, cause string) (Outcome, error) {
	orderID, err := o.leaveAwaiting(sessionID, domain.CheckoutStatusFailed)
	if err != nil {
		return Outcome{}, err
	}

	o.logger.Warn("provider reported payment error",
		zap.String("session_id", sessionID),
		zap.String("order_id", orderID),
		zap.String("cause", cause))

	if orderID != "" {
		if rec, err := o.ledger.Get(ctx, orderID); err == nil && rec.Status == domain.OrderStatusCreated {
			rec.Status = domain.OrderStatusFailed
			if err := o.ledger.Save(ctx, rec); err != nil {
				o.logger.Error("failed to record failed order", zap.String("order_id", orderID), zap.Error(err))
			}
		}
	}

	o.notify(ctx, sessionID, domain.NotificationError, domain.MessagePaymentFailed, orderID)
	return Outcome{Kind: OutcomeFailed, Err: errors.New(cause)}, nil
}

// Cancel handles the buyer closing the provider dialog. Nothing is captured
// and the cart is left intact.
func (o *Orchestrator) Cancel(ctx context.Context, sessionID string) (Outcome, error) {
	orderID, err := o.leaveAwaiting(sessionID, domain.CheckoutStatusCancelled)
	if err != nil {
		return Outcome{}, err
	}

	o.logger.Info("payment cancelled", zap.String("session_id", sessionID), zap.String("order_id", orderID))
	o.notify(ctx, sessionID, domain.NotificationInfo, domain.MessagePaymentCancelled, orderID)
	return Outcome{Kind: OutcomeCancelled}, nil
}

// Reconcile finishes an order the provider has completed but the storefront
// has not. Calling it for an already completed order has no side effects.
func (o *Orchestrator) Reconcile(ctx context.Context, orderID string) (Outcome, error) {
	rec, err := o.ledger.Get(ctx, orderID)
	if err != nil {
		return Outcome{}, err
	}
	return o.reconcile(ctx, rec)
}

// ReconcileForSession is Reconcile limited to orders of one session. Orders
// of other sessions are reported as not found.
func (o *Orchestrator) ReconcileForSession(ctx context.Context, sessionID, orderID string) (Outcome, error) {
	rec, err := o.ledger.Get(ctx, orderID)
	if err != nil {
		return Outcome{}, err
	}
	if rec.SessionID != sessionID {
		return Outcome{}, ErrOrderNotFound
	}
	return o.reconcile(ctx, rec)
}

func (o *Orchestrator) reconcile(ctx context.Context, rec *domain.OrderRecord) (Outcome, error) {
	orderID := rec.OrderID
	if rec.Status == domain.OrderStatusCompleted {
		return Outcome{Kind: OutcomeSuccess, Order: recordToCaptured(rec)}, nil
	}

	o.mu.Lock()
	if _, busy := o.inflight[orderID]; busy {
		o.mu.Unlock()
		return Outcome{}, ErrCaptureInFlight
	}
	o.inflight[orderID] = struct{}{}
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.inflight, orderID)
		o.mu.Unlock()
	}()

	// another caller may have finished the order before the gate was taken
	rec, err := o.ledger.Get(ctx, orderID)
	if err != nil {
		return Outcome{}, err
	}
	if rec.Status == domain.OrderStatusCompleted {
		return Outcome{Kind: OutcomeSuccess, Order: recordToCaptured(rec)}, nil
	}

	captured, err := o.provider.GetOrder(ctx, orderID)
	if errors.Is(err, payment.ErrOrderNotFound) || (err == nil && captured.Status == payment.StatusVoided) {
		o.abandon(ctx, rec)
		return Outcome{Kind: OutcomeFailed, Order: captured, Err: ErrNotCaptured}, nil
	}
	if err != nil {
		return Outcome{Kind: OutcomeFailed, Err: err}, fmt.Errorf("failed to read provider order: %w", err)
	}
	if !captured.Completed() {
		return Outcome{Kind: OutcomeFailed, Order: captured, Err: ErrNotCaptured}, nil
	}

	if err := o.complete(ctx, rec, captured); err != nil {
		return Outcome{Kind: OutcomeFailed, Order: captured, Err: err}, fmt.Errorf("failed to reconcile order: %w", err)
	}

	o.mu.Lock()
	// the buyer may still be looking at a surface waiting on this order
	if a, ok := o.attempts[rec.SessionID]; ok && a.orderID == orderID && a.status == domain.CheckoutStatusAwaitingApproval {
		a.status = domain.CheckoutStatusSuccess
		a.touched = time.Now()
	}
	o.mu.Unlock()

	o.logger.Info("order reconciled", zap.String("order_id", orderID), zap.String("session_id", rec.SessionID))
	return Outcome{Kind: OutcomeSuccess, Order: captured}, nil
}

// abandon marks an order the provider no longer knows as failed. Captured
// orders are left alone since the provider already reported them charged.
func (o *Orchestrator) abandon(ctx context.Context, rec *domain.OrderRecord) {
	if rec.Status == domain.OrderStatusCaptured {
		o.logger.Error("captured order missing at provider", zap.String("order_id", rec.OrderID))
		return
	}
	rec.Status = domain.OrderStatusFailed
	if err := o.ledger.Save(ctx, rec); err != nil {
		o.logger.Error("failed to record abandoned order", zap.String("order_id", rec.OrderID), zap.Error(err))
		return
	}
	o.logger.Info("order abandoned at provider", zap.String("order_id", rec.OrderID))
}

// Prune forgets attempts nobody touched for AttemptTTL. Attempts in the
// middle of a capture are kept.
func (o *Orchestrator) Prune(now time.Time) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := 0
	for sessionID, a := range o.attempts {
		if a.status != domain.CheckoutStatusCapturing && now.Sub(a.touched) > o.opts.AttemptTTL {
			delete(o.attempts, sessionID)
			n++
		}
	}
	return n
}

// State returns the session's current attempt status.
func (o *Orchestrator) State(sessionID string) State {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, ok := o.attempts[sessionID]
	if !ok {
		return State{Status: domain.CheckoutStatusIdle}
	}
	return State{Status: a.status, OrderID: a.orderID}
}

// complete moves a captured order through CAPTURED to COMPLETED, clears the
// cart in between and sends the success notification.
func (o *Orchestrator) complete(ctx context.Context, rec *domain.OrderRecord, captured *payment.CapturedOrder) error {
	rec.Status = domain.OrderStatusCaptured
	rec.PayerEmail = captured.Payer.EmailAddress
	rec.PayerID = captured.Payer.PayerID
	if amount, err := captured.CapturedAmount(); err == nil {
		rec.Amount = amount
	}
	if err := o.ledger.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to record capture: %w", err)
	}

	if _, err := o.carts.Clear(ctx, rec.SessionID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}

	rec.Status = domain.OrderStatusCompleted
	if err := o.ledger.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}

	o.notify(ctx, rec.SessionID, domain.NotificationSuccess, domain.MessagePaymentSucceeded, rec.OrderID)
	return nil
}

func (o *Orchestrator) attemptLocked(sessionID string) *attempt {
	a, ok := o.attempts[sessionID]
	if !ok {
		a = &attempt{status: domain.CheckoutStatusIdle}
		o.attempts[sessionID] = a
	}
	a.touched = time.Now()
	return a
}

func (o *Orchestrator) expect(sessionID string, status domain.CheckoutStatus) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, ok := o.attempts[sessionID]
	if !ok {
		return ErrNoCheckout
	}
	if a.status == domain.CheckoutStatusCapturing {
		return ErrCaptureInFlight
	}
	if a.status != status {
		return fmt.Errorf("%w: checkout is %s", ErrIllegalTransition, a.status)
	}
	return nil
}

// leaveAwaiting ends an attempt that never reached capture and returns it to
// idle through the given intermediate status.
func (o *Orchestrator) leaveAwaiting(sessionID string, via domain.CheckoutStatus) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, ok := o.attempts[sessionID]
	if !ok {
		return "", ErrNoCheckout
	}
	if a.status == domain.CheckoutStatusCapturing {
		return "", ErrCaptureInFlight
	}
	if err := transition(a, via); err != nil {
		return "", err
	}
	orderID := a.orderID
	if err := transition(a, domain.CheckoutStatusIdle); err != nil {
		return orderID, err
	}
	delete(o.attempts, sessionID)
	return orderID, nil
}

// failAttempt ends an attempt that is awaiting approval with an error
// notification.
func (o *Orchestrator) failAttempt(ctx context.Context, sessionID, orderID, message string) {
	if _, err := o.leaveAwaiting(sessionID, domain.CheckoutStatusFailed); err != nil {
		o.logger.Warn("could not fail checkout attempt", zap.String("session_id", sessionID), zap.Error(err))
	}
	o.notify(ctx, sessionID, domain.NotificationError, message, orderID)
}

// finishFailed ends a capturing attempt with an error notification.
func (o *Orchestrator) finishFailed(ctx context.Context, sessionID, orderID, message string) {
	o.mu.Lock()
	if a, ok := o.attempts[sessionID]; ok {
		if err := transition(a, domain.CheckoutStatusFailed); err == nil && transition(a, domain.CheckoutStatusIdle) == nil {
			delete(o.attempts, sessionID)
		}
	}
	o.mu.Unlock()

	o.notify(ctx, sessionID, domain.NotificationError, message, orderID)
}

func (o *Orchestrator) notify(ctx context.Context, sessionID string, level domain.NotificationLevel, message, orderID string) {
	o.notifier.Notify(ctx, sessionID, domain.Notification{
		Level:     level,
		Message:   message,
		OrderID:   orderID,
		CreatedAt: time.Now().UTC(),
	})
}

func (o *Orchestrator) succeed(a *attempt, log *zap.Logger) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := transition(a, domain.CheckoutStatusSuccess); err != nil {
		log.Warn("unexpected checkout state after capture", zap.Error(err))
	}
}

func transition(a *attempt, to domain.CheckoutStatus) error {
	if !domain.CanTransitionTo(a.status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, a.status, to)
	}
	a.status = to
	a.touched = time.Now()
	return nil
}

// captureRejected reports whether err proves the provider did not take the
// payment. Timeouts, transport errors and 5xx answers prove nothing.
func captureRejected(err error) bool {
	if errors.Is(err, ErrNotCaptured) {
		return true
	}
	var perr *payment.ProviderError
	return errors.As(err, &perr) && !perr.Temporary()
}

func recordToCaptured(rec *domain.OrderRecord) *payment.CapturedOrder {
	return &payment.CapturedOrder{
		ID:     rec.OrderID,
		Status: payment.StatusCompleted,
		Payer: payment.Payer{
			EmailAddress: rec.PayerEmail,
			PayerID:      rec.PayerID,
		},
		PurchaseUnits: []payment.CapturedUnit{{
			Amount: payment.Amount{CurrencyCode: rec.Currency, Value: rec.Amount.StringFixed(2)},
		}},
	}
}
