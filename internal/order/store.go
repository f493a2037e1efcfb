package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	apperr "dinesync/internal/xpkg/errors"
	"dinesync/pkg/logger"
	"dinesync/pkg/models"
)

// statusRank is the canonical ordering used to reject stale or
// out-of-order status updates. cancelled is handled separately: it is
// absorbing and accepted from any non-cancelled state.
var statusRank = map[models.OrderStatus]int{
	models.OrderStatusPending:   0,
	models.OrderStatusConfirmed: 1,
	models.OrderStatusPreparing: 2,
	models.OrderStatusReady:     3,
	models.OrderStatusServed:    4,
	models.OrderStatusCompleted: 5,
}

const happyPathSteps = 6

// Progress maps a status to a 0-100 display value, monotonic along the
// canonical ordering. cancelled always yields 0: the original UI swaps
// the progress bar for a cancelled banner.
func Progress(status models.OrderStatus) float64 {
	rank, ok := statusRank[status]
	if !ok {
		return 0
	}
	return float64(rank+1) / happyPathSteps * 100
}

// API is the slice of the REST client the store needs.
type API interface {
	GetOrder(ctx context.Context, id int) (*models.Order, error)
	RequestAssistance(ctx context.Context, orderID int) error
}

// Store is the single source of truth for the order the user is
// watching. Push events and poll results both land here; the rank rule
// makes them commute, so no state can regress regardless of delivery
// order or duplication.
type Store struct {
	api    API
	logger *logger.Logger

	mu        sync.Mutex
	trackedID int
	current   *models.Order
	notFound  bool
	// Client-local, never server-confirmed. Reset only by a full load.
	assistanceRequested bool
}

func NewStore(api API, log *logger.Logger) *Store {
	return &Store{
		api:    api,
		logger: log,
	}
}

// Track begins tracking the given order id, e.g. when the tracking view
// for it opens. Switching to a different id drops the previous order.
func (s *Store) Track(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trackedID == id {
		return
	}
	s.trackedID = id
	s.current = nil
	s.notFound = false
	s.assistanceRequested = false
}

// Adopt takes ownership of an order handed over by the cart at
// checkout.
func (s *Store) Adopt(o *models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackedID = o.ID
	s.current = cloneOrder(o)
	s.notFound = false
	s.assistanceRequested = false
}

// LoadOrder fetches the full order representation and replaces the local
// one unconditionally; a full fetch is always authoritative over partial
// events. If the tracked id changed while the request was in flight the
// response is discarded, not applied.
func (s *Store) LoadOrder(ctx context.Context, id int) (*models.Order, error) {
	o, err := s.api.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.mu.Lock()
			if s.trackedID == id {
				s.notFound = true
			}
			s.mu.Unlock()
		}
		// Transient failures keep the existing state; the next poll
		// tick retries.
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trackedID != id {
		s.logger.Debug("", "stale_response_discarded",
			fmt.Sprintf("discarding response for order %d, now tracking %d", id, s.trackedID))
		return nil, nil
	}
	s.current = cloneOrder(o)
	s.notFound = false
	s.assistanceRequested = false
	return cloneOrder(o), nil
}

// ApplyStatusEvent applies a point status update for the tracked order.
// Events of lower or equal rank than the held status are no-ops, which
// makes the event stream idempotent and commutative. Reports whether the
// update was applied.
func (s *Store) ApplyStatusEvent(orderID int, status models.OrderStatus, eventTime time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.ID != orderID {
		return false
	}
	if s.current.Status == models.OrderStatusCancelled {
		return false
	}
	if status == models.OrderStatusCancelled {
		s.setStatusLocked(status, eventTime)
		return true
	}

	newRank, ok := statusRank[status]
	if !ok {
		s.logger.Warn("", "unknown_status_rejected", string(status))
		return false
	}
	if newRank <= statusRank[s.current.Status] {
		return false
	}
	s.setStatusLocked(status, eventTime)
	return true
}

func (s *Store) setStatusLocked(status models.OrderStatus, eventTime time.Time) {
	s.current.Status = status
	if !eventTime.IsZero() {
		s.current.UpdatedAt = eventTime
	}
	s.logger.Info("", "order_status_applied",
		fmt.Sprintf("order %d is now %s", s.current.ID, status))
}

// ApplyPaymentEvent applies a payment status update. Payment
// confirmation is sticky: once paid, only an explicit refund is
// accepted. Reports whether the update was applied.
func (s *Store) ApplyPaymentEvent(orderID int, status models.PaymentStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.ID != orderID {
		return false
	}
	cur := s.current.PaymentStatus
	switch {
	case status == cur:
		return false
	case status == models.PaymentStatusRefunded:
	case cur == models.PaymentStatusPaid || cur == models.PaymentStatusRefunded:
		return false
	}
	s.current.PaymentStatus = status
	s.logger.Info("", "payment_status_applied",
		fmt.Sprintf("order %d payment is now %s", orderID, status))
	return true
}

// RequestAssistance asks staff to come over. The local flag flips
// optimistically and is never revoked by the client; only a full order
// load resets it, since it is not server-confirmed state.
func (s *Store) RequestAssistance(ctx context.Context) error {
	s.mu.Lock()
	id := s.trackedID
	if id == 0 {
		s.mu.Unlock()
		return apperr.ErrNotFound
	}
	s.assistanceRequested = true
	s.mu.Unlock()

	if err := s.api.RequestAssistance(ctx, id); err != nil {
		s.logger.Error("", "assistance_request_failed", "assistance request did not reach the server", err)
		return err
	}
	return nil
}

func (s *Store) AssistanceRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assistanceRequested
}

// NotFound reports the terminal "order not found" view state.
func (s *Store) NotFound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notFound
}

func (s *Store) TrackedID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trackedID
}

// Order returns a snapshot of the tracked order, or nil.
func (s *Store) Order() *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneOrder(s.current)
}

// Terminal reports whether both the order and payment tracks are done
// and polling can stop.
func (s *Store) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return false
	}
	return s.current.Status.Terminal() && s.current.PaymentStatus.Settled()
}

// PaymentPending reports whether the fast payment poll should run.
func (s *Store) PaymentPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.PaymentStatus == models.PaymentStatusPending
}

func cloneOrder(o *models.Order) *models.Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.OrderItems = append([]models.OrderItem(nil), o.OrderItems...)
	return &clone
}
