// Package payment drives the one-time license payment. The provider's checkout
// widget runs outside the desk and reports its result to the desk callback
// route; the adapter turns that report into a single awaitable outcome per
// order, then verifies the payment with the clinic API.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dukerupert/clinicdesk/internal/model"
)

// Outcome is the checkout widget's reported result.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeError     Outcome = "error"
)

// ParseOutcome maps a callback status to an Outcome. Unknown values map to
// OutcomeError.
func ParseOutcome(s string) Outcome {
	switch Outcome(s) {
	case OutcomeSuccess, OutcomeCancelled:
		return Outcome(s)
	}
	return OutcomeError
}

var (
	ErrUnknownOrder = errors.New("unknown payment order")
	ErrTimeout      = errors.New("payment timed out")
	ErrCancelled    = errors.New("payment cancelled")
	ErrFailed       = errors.New("payment failed")
)

const defaultTimeout = 10 * time.Minute

// API is the subset of the clinic client the adapter calls.
type API interface {
	InitiatePayment(ctx context.Context) (model.PaymentOrder, error)
	VerifyPayment(ctx context.Context, orderID string) error
}

// SessionRefresher re-reads the identity so the new payment status shows.
type SessionRefresher interface {
	Refresh(ctx context.Context) error
}

type Adapter struct {
	api     API
	session SessionRefresher
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	pending map[string]chan Outcome
}

func NewAdapter(api API, session SessionRefresher, timeout time.Duration, logger zerolog.Logger) *Adapter {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Adapter{
		api:     api,
		session: session,
		timeout: timeout,
		logger:  logger,
		pending: make(map[string]chan Outcome),
	}
}

// Begin creates a provider order and registers it as awaiting an outcome.
func (a *Adapter) Begin(ctx context.Context) (model.PaymentOrder, error) {
	order, err := a.api.InitiatePayment(ctx)
	if err != nil {
		return model.PaymentOrder{}, err
	}
	a.mu.Lock()
	a.pending[order.OrderID] = make(chan Outcome, 1)
	a.mu.Unlock()
	a.logger.Info().Str("order_id", order.OrderID).Str("amount", order.Amount.String()).Msg("payment started")
	return order, nil
}

// Complete records the widget's outcome for orderID. Only the first report for
// an order counts; later ones are ignored.
func (a *Adapter) Complete(orderID string, outcome Outcome) error {
	a.mu.Lock()
	ch, ok := a.pending[orderID]
	a.mu.Unlock()
	if !ok {
		return ErrUnknownOrder
	}
	select {
	case ch <- outcome:
		a.logger.Info().Str("order_id", orderID).Str("outcome", string(outcome)).Msg("payment outcome received")
	default:
		a.logger.Debug().Str("order_id", orderID).Msg("duplicate payment outcome ignored")
	}
	return nil
}

// Pending reports whether orderID is awaiting an outcome.
func (a *Adapter) Pending(orderID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.pending[orderID]
	return ok
}

// Await blocks until the outcome for orderID arrives, the adapter timeout
// passes or ctx is done. Timeouts resolve to OutcomeError. The order is
// forgotten once Await returns.
func (a *Adapter) Await(ctx context.Context, orderID string) (Outcome, error) {
	a.mu.Lock()
	ch, ok := a.pending[orderID]
	a.mu.Unlock()
	if !ok {
		return OutcomeError, ErrUnknownOrder
	}
	defer func() {
		a.mu.Lock()
		delete(a.pending, orderID)
		a.mu.Unlock()
	}()

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()

	select {
	case outcome := <-ch:
		return outcome, nil
	case <-timer.C:
		return OutcomeError, ErrTimeout
	case <-ctx.Done():
		return OutcomeError, ctx.Err()
	}
}

// Finish waits for orderID's outcome and, on success, verifies the payment and
// refreshes the session. Verification failures are returned; a failed session
// refresh is only logged because the payment itself went through.
func (a *Adapter) Finish(ctx context.Context, orderID string) (Outcome, error) {
	outcome, err := a.Await(ctx, orderID)
	if err != nil {
		return outcome, err
	}
	switch outcome {
	case OutcomeCancelled:
		return outcome, ErrCancelled
	case OutcomeError:
		return outcome, ErrFailed
	}

	if err := a.api.VerifyPayment(ctx, orderID); err != nil {
		return OutcomeError, fmt.Errorf("verify payment %s: %w", orderID, err)
	}
	if err := a.session.Refresh(ctx); err != nil {
		a.logger.Warn().Err(err).Str("order_id", orderID).Msg("session refresh after payment failed")
	}
	return OutcomeSuccess, nil
}

// Pay runs the whole flow. show is called with the order so the caller can
// open the checkout widget.
func (a *Adapter) Pay(ctx context.Context, show func(model.PaymentOrder)) (Outcome, error) {
	order, err := a.Begin(ctx)
	if err != nil {
		return OutcomeError, err
	}
	if show != nil {
		show(order)
	}
	return a.Finish(ctx, order.OrderID)
}
