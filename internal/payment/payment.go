package payment

import (
	"context"
	"fmt"

	apperr "dinesync/internal/xpkg/errors"
	"dinesync/pkg/logger"
	"dinesync/pkg/models"
)

// Outcome is what the hosted payment widget reported back: the
// onSuccess / onPending / onError / onClose callbacks of the provider's
// checkout popup.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomePending
	OutcomeError
	OutcomeClosed
)

// Widget is the hosted checkout popup. Given the opaque token from the
// payment API it blocks until the customer finishes or dismisses it.
type Widget interface {
	Pay(ctx context.Context, token string) (Outcome, string)
}

// API is the slice of the REST client the flow needs.
type API interface {
	CreatePayment(ctx context.Context, orderID int) (*models.PaymentToken, error)
}

// Sink is the payment side of the order lifecycle store.
type Sink interface {
	ApplyPaymentEvent(orderID int, status models.PaymentStatus) bool
}

// Flow drives one checkout attempt. The client never self-assigns paid:
// success and pending both leave local state at pending, and only a
// server-confirmed event (push or poll) moves it to paid.
type Flow struct {
	api    API
	widget Widget
	store  Sink
	logger *logger.Logger
}

func NewFlow(api API, widget Widget, store Sink, log *logger.Logger) *Flow {
	return &Flow{
		api:    api,
		widget: widget,
		store:  store,
		logger: log,
	}
}

// Checkout creates a payment for the order and runs the widget. On
// provider error or dismissal no local state is mutated and the order
// stays retry-eligible.
func (f *Flow) Checkout(ctx context.Context, orderID int) error {
	token, err := f.api.CreatePayment(ctx, orderID)
	if err != nil {
		return err
	}

	outcome, message := f.widget.Pay(ctx, token.Token)
	switch outcome {
	case OutcomeSuccess, OutcomePending:
		f.store.ApplyPaymentEvent(orderID, models.PaymentStatusPending)
		f.logger.Info("", "payment_submitted",
			fmt.Sprintf("payment for order %d awaiting server confirmation", orderID))
		return nil
	case OutcomeClosed:
		f.logger.Info("", "payment_cancelled",
			fmt.Sprintf("checkout for order %d dismissed", orderID))
		return apperr.ErrPaymentCancelled
	default:
		f.logger.Error("", "payment_provider_error", message, nil)
		return fmt.Errorf("%w: %s", apperr.ErrPaymentProvider, message)
	}
}
