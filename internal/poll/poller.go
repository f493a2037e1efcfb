package poll

import (
	"context"
	"sync"
	"time"

	"dinesync/pkg/logger"
	"dinesync/pkg/models"
)

// Tracker is the slice of the order lifecycle store the poller drives.
type Tracker interface {
	TrackedID() int
	Terminal() bool
	PaymentPending() bool
	LoadOrder(ctx context.Context, id int) (*models.Order, error)
	ApplyPaymentEvent(orderID int, status models.PaymentStatus) bool
}

// PaymentAPI checks the payment status out of band of the push channel.
type PaymentAPI interface {
	GetPaymentStatus(ctx context.Context, orderID int) (models.PaymentStatus, error)
}

// Surface receives the user-facing side of transient failures: the view
// shows a dismissible notification instead of silently going stale.
type Surface interface {
	Append(n models.Notification) models.Notification
	Alert(message, severity string)
}

// Poller reconciles the tracked order independently of push delivery:
// the view is never more than one interval stale even if the push
// channel silently fails. A poll result and a push event may race; the
// store's rank rule decides, regardless of source.
type Poller struct {
	store    Tracker
	payments PaymentAPI
	surface  Surface
	logger   *logger.Logger

	orderEvery   time.Duration
	paymentEvery time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(store Tracker, payments PaymentAPI, surface Surface, log *logger.Logger, orderEvery, paymentEvery time.Duration) *Poller {
	return &Poller{
		store:        store,
		payments:     payments,
		surface:      surface,
		logger:       log,
		orderEvery:   orderEvery,
		paymentEvery: paymentEvery,
	}
}

// Start begins polling, scoped to ctx and to the lifetime of the
// viewing context. A previous run is stopped first, so the timers never
// leak across navigation.
func (p *Poller) Start(ctx context.Context) {
	p.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go p.run(runCtx, done)
}

// Stop cancels the current run and waits for it to wind down. Safe to
// call on every exit path, including when never started.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	orderTicker := time.NewTicker(p.orderEvery)
	defer orderTicker.Stop()
	paymentTicker := time.NewTicker(p.paymentEvery)
	defer paymentTicker.Stop()

	// One dismissible notification per failure streak; every failed tick
	// still raises a transient alert.
	failing := false

	for {
		select {
		case <-ctx.Done():
			return

		case <-orderTicker.C:
			if p.store.Terminal() {
				p.logger.Info("", "polling_stopped", "order and payment reached terminal state")
				return
			}
			id := p.store.TrackedID()
			if id == 0 {
				continue
			}
			if _, err := p.store.LoadOrder(ctx, id); err != nil {
				// Transient; the next tick retries without clearing state.
				p.logger.Warn("", "order_poll_failed", err.Error())
				p.surfaceFailure(&failing, "Unable to refresh order status. Retrying...")
				continue
			}
			failing = false

		case <-paymentTicker.C:
			if !p.store.PaymentPending() {
				continue
			}
			id := p.store.TrackedID()
			if id == 0 {
				continue
			}
			status, err := p.payments.GetPaymentStatus(ctx, id)
			if err != nil {
				p.logger.Warn("", "payment_poll_failed", err.Error())
				p.surfaceFailure(&failing, "Unable to check payment status. Retrying...")
				continue
			}
			// The sticky rule in the store guards against regressions,
			// e.g. a poll answering "pending" after a push confirmed "paid".
			p.store.ApplyPaymentEvent(id, status)
		}
	}
}

func (p *Poller) surfaceFailure(failing *bool, message string) {
	p.surface.Alert(message, "error")
	if *failing {
		return
	}
	*failing = true
	p.surface.Append(models.Notification{
		Type:    models.NotificationConnectionIssue,
		Message: message,
	})
}
