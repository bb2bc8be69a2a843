// Package checkout turns a cart snapshot and customer details into a remote order.
package checkout

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cafe/pkg/cart"
	"cafe/pkg/failure"
	"cafe/pkg/orders"
	"cafe/pkg/state"
)

const fallbackReason = "Failed to create order"

var (
	// ErrEmptyCart is returned when the cart snapshot has no items.
	ErrEmptyCart = failure.Validation("empty cart")
	// ErrMissingCustomerInfo is returned when the client name or phone is blank.
	ErrMissingCustomerInfo = failure.Validation("missing customer info")
	// ErrSubmissionInFlight is returned while an earlier submission has not resolved yet.
	ErrSubmissionInFlight = failure.Validation("submission already in progress")
)

var validate = validator.New()

// CustomerInfo is what the customer types into the checkout form.
type CustomerInfo struct {
	ClientName string `json:"client_name" validate:"required"`
	Phone      string `json:"phone" validate:"required"`
}

// Request is the body of the create-order call.
type Request struct {
	Items      []cart.LineItem `json:"cart_items"`
	ClientName string          `json:"client_name"`
	Phone      string          `json:"phone"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// Confirmation identifies the order the remote service created.
type Confirmation struct {
	OrderID     string        `json:"order_id"`
	OrderNumber orders.Number `json:"order_number"`
}

// Remote creates orders. idempotencyKey is unique per attempt.
type Remote interface {
	CreateOrder(ctx context.Context, idempotencyKey string, req Request) (orders.Order, error)
}

// Status is the submission lifecycle as the UI sees it.
type Status struct {
	Phase        state.Phase   `json:"phase"`
	Confirmation *Confirmation `json:"confirmation,omitempty"`
	Error        string        `json:"error,omitempty"`
}

func cloneStatus(s Status) Status {
	if s.Confirmation != nil {
		c := *s.Confirmation
		s.Confirmation = &c
	}
	return s
}

// SubmittedHook runs after a confirmed submission, outside the flow's state.
type SubmittedHook func(ctx context.Context, c Confirmation) error

// Option configures a Flow.
type Option func(*Flow)

// WithLogger sets the logger; nil keeps slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithSubmittedHook registers the callback invoked after every successful submission.
func WithSubmittedHook(hook SubmittedHook) Option {
	return func(f *Flow) { f.hook = hook }
}

// WithKeyFunc replaces the idempotency key generator.
func WithKeyFunc(fn func() string) Option {
	return func(f *Flow) {
		if fn != nil {
			f.newKey = fn
		}
	}
}

// Flow runs at most one order submission at a time.
type Flow struct {
	box    *state.Box[Status]
	remote Remote
	logger *slog.Logger
	hook   SubmittedHook
	newKey func() string
}

// NewFlow starts idle.
func NewFlow(remote Remote, opts ...Option) *Flow {
	f := &Flow{remote: remote, logger: slog.Default(), newKey: uuid.NewString}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(slog.String("component", "checkout"))
	f.box = state.New(Status{Phase: state.PhaseIdle}, cloneStatus)
	return f
}

// Snapshot returns the current submission status.
func (f *Flow) Snapshot(ctx context.Context) (Status, error) {
	return f.box.Snapshot(ctx)
}

// Subscribe streams the latest status after every change.
func (f *Flow) Subscribe(ctx context.Context) (<-chan Status, func(), error) {
	return f.box.Subscribe(ctx)
}

// Submit validates the input, sends one create-order request and records the outcome. The cart
// is only read; clearing it is left to the submitted hook.
func (f *Flow) Submit(ctx context.Context, snapshot cart.State, info CustomerInfo) (Confirmation, error) {
	info.ClientName = strings.TrimSpace(info.ClientName)
	info.Phone = strings.TrimSpace(info.Phone)

	var invalid error
	_, err := f.box.Update(ctx, func(st *Status) error {
		if st.Phase == state.PhasePending {
			return ErrSubmissionInFlight
		}
		st.Confirmation = nil
		if invalid = check(snapshot, info); invalid != nil {
			st.Phase = state.PhaseFailed
			st.Error = failure.Reason(invalid, fallbackReason)
			return nil
		}
		st.Phase = state.PhasePending
		st.Error = ""
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSubmissionInFlight) {
			f.logger.Warn("submission rejected", slog.String("reason", err.Error()))
		}
		return Confirmation{}, err
	}
	if invalid != nil {
		f.logger.Warn("submission rejected", slog.String("reason", invalid.Error()))
		return Confirmation{}, invalid
	}

	items := cart.CloneItems(snapshot.Items)
	_, total := cart.Totals(items)
	req := Request{Items: items, ClientName: info.ClientName, Phone: info.Phone, TotalPrice: total}
	key := f.newKey()

	created, err := f.remote.CreateOrder(ctx, key, req)
	// outcomes are recorded even after the caller stopped waiting
	settle := context.WithoutCancel(ctx)
	if err != nil {
		f.logger.Warn("order submission failed",
			slog.String("idempotency_key", key),
			slog.String("kind", failure.KindOf(err).String()),
			slog.String("error", err.Error()))
		reason := failure.Reason(err, fallbackReason)
		if _, uerr := f.box.Update(settle, func(st *Status) error {
			st.Phase = state.PhaseFailed
			st.Error = reason
			return nil
		}); uerr != nil {
			return Confirmation{}, uerr
		}
		return Confirmation{}, err
	}

	conf := Confirmation{OrderID: created.ID, OrderNumber: created.OrderNumber}
	_, err = f.box.Update(settle, func(st *Status) error {
		st.Phase = state.PhaseSucceeded
		st.Confirmation = &conf
		st.Error = ""
		return nil
	})
	if err != nil {
		return Confirmation{}, err
	}
	f.logger.Info("order submitted",
		slog.String("order_id", conf.OrderID),
		slog.String("order_number", string(conf.OrderNumber)),
		slog.Int("items", len(items)))

	if f.hook != nil {
		if err := f.hook(settle, conf); err != nil {
			f.logger.Warn("submitted hook failed", slog.String("order_id", conf.OrderID), slog.String("error", err.Error()))
		}
	}
	return conf, nil
}

func check(snapshot cart.State, info CustomerInfo) error {
	if len(snapshot.Items) == 0 {
		return ErrEmptyCart
	}
	if err := validate.Struct(info); err != nil {
		return ErrMissingCustomerInfo
	}
	return nil
}

// ClearError drops the failure reason and returns a failed flow to idle.
func (f *Flow) ClearError(ctx context.Context) error {
	_, err := f.box.Update(ctx, func(st *Status) error {
		st.Error = ""
		if st.Phase == state.PhaseFailed {
			st.Phase = state.PhaseIdle
		}
		return nil
	})
	return err
}

// Reset forgets the last confirmation. A submission in flight is left alone.
func (f *Flow) Reset(ctx context.Context) error {
	_, err := f.box.Update(ctx, func(st *Status) error {
		if st.Phase == state.PhasePending {
			return nil
		}
		*st = Status{Phase: state.PhaseIdle}
		return nil
	})
	return err
}

// Shutdown stops the owning goroutine; a submission resolving afterwards does not run the hook.
func (f *Flow) Shutdown() {
	f.box.Close()
}
