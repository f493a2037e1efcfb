package poll

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	apperr "dinesync/internal/xpkg/errors"
	"dinesync/pkg/logger"
	"dinesync/pkg/models"
)

// fakeTracker records poll activity and mimics the store's rank and
// sticky rules closely enough for the scheduling behavior under test.
type fakeTracker struct {
	mu             sync.Mutex
	trackedID      int
	terminal       bool
	paymentPending bool
	payment        models.PaymentStatus
	loads          int
	loadErr        error
}

func (f *fakeTracker) TrackedID() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trackedID
}

func (f *fakeTracker) Terminal() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminal
}

func (f *fakeTracker) PaymentPending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paymentPending
}

func (f *fakeTracker) LoadOrder(ctx context.Context, id int) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return &models.Order{ID: id}, nil
}

func (f *fakeTracker) setLoadErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadErr = err
}

func (f *fakeTracker) ApplyPaymentEvent(orderID int, status models.PaymentStatus) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Sticky rule: paid regresses for nothing but a refund.
	if f.payment == models.PaymentStatusPaid && status != models.PaymentStatusRefunded {
		return false
	}
	f.payment = status
	f.paymentPending = status == models.PaymentStatusPending
	return true
}

func (f *fakeTracker) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

type fakePayments struct {
	mu     sync.Mutex
	status models.PaymentStatus
	calls  int
}

func (f *fakePayments) GetPaymentStatus(ctx context.Context, orderID int) (models.PaymentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.status, nil
}

type fakeSurface struct {
	mu            sync.Mutex
	notifications []models.Notification
	alerts        []string
}

func (f *fakeSurface) Append(n models.Notification) models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
	return n
}

func (f *fakeSurface) Alert(message, severity string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, severity+": "+message)
}

func (f *fakeSurface) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notifications), len(f.alerts)
}

func newTestPoller(tracker *fakeTracker, payments *fakePayments) *Poller {
	return New(tracker, payments, &fakeSurface{}, logger.NewLogger("test"), 10*time.Millisecond, 5*time.Millisecond)
}

func TestPollerLoadsTrackedOrder(t *testing.T) {
	tracker := &fakeTracker{trackedID: 1}
	p := newTestPoller(tracker, &fakePayments{status: models.PaymentStatusUnpaid})

	p.Start(context.Background())
	defer p.Stop()

	deadline := time.After(time.Second)
	for tracker.loadCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("poller never loaded the tracked order")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPollerStopsOnTerminal(t *testing.T) {
	tracker := &fakeTracker{trackedID: 1, terminal: true}
	p := newTestPoller(tracker, &fakePayments{})

	p.Start(context.Background())
	defer p.Stop()

	time.Sleep(50 * time.Millisecond)
	if tracker.loadCount() != 0 {
		t.Fatalf("loads = %d, want 0 once terminal", tracker.loadCount())
	}
}

func TestPollerPaymentTick(t *testing.T) {
	tracker := &fakeTracker{trackedID: 1, paymentPending: true, payment: models.PaymentStatusPending}
	payments := &fakePayments{status: models.PaymentStatusPaid}
	p := newTestPoller(tracker, payments)

	p.Start(context.Background())
	defer p.Stop()

	deadline := time.After(time.Second)
	for {
		tracker.mu.Lock()
		paid := tracker.payment == models.PaymentStatusPaid
		tracker.mu.Unlock()
		if paid {
			break
		}
		select {
		case <-deadline:
			t.Fatal("payment poll never applied the settled status")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// A poll answering "pending" after payment was confirmed must not
// revert it; the fast tick also stops once payment leaves pending.
func TestPollerDoesNotRevertConfirmedPayment(t *testing.T) {
	tracker := &fakeTracker{trackedID: 1, payment: models.PaymentStatusPaid}
	payments := &fakePayments{status: models.PaymentStatusPending}
	p := newTestPoller(tracker, payments)

	p.Start(context.Background())
	defer p.Stop()

	time.Sleep(50 * time.Millisecond)
	tracker.mu.Lock()
	payment := tracker.payment
	tracker.mu.Unlock()
	if payment != models.PaymentStatusPaid {
		t.Fatalf("payment = %s, want paid", payment)
	}
	payments.mu.Lock()
	calls := payments.calls
	payments.mu.Unlock()
	if calls != 0 {
		t.Fatalf("payment checks = %d, want 0 when payment is not pending", calls)
	}
}

// Repeated load failures must reach the user, not just the logs: every
// failed tick raises an alert and the first of a streak also lands a
// dismissible notification.
func TestPollerSurfacesLoadFailures(t *testing.T) {
	tracker := &fakeTracker{trackedID: 1, loadErr: apperr.ErrNetwork}
	surface := &fakeSurface{}
	p := New(tracker, &fakePayments{}, surface, logger.NewLogger("test"), 10*time.Millisecond, 5*time.Millisecond)

	p.Start(context.Background())
	defer p.Stop()

	deadline := time.After(time.Second)
	for {
		_, alerts := surface.counts()
		if alerts >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("poll failures never surfaced an alert")
		case <-time.After(5 * time.Millisecond):
		}
	}

	notifications, _ := surface.counts()
	if notifications != 1 {
		t.Fatalf("notifications = %d, want exactly 1 per failure streak", notifications)
	}
	surface.mu.Lock()
	n := surface.notifications[0]
	alert := surface.alerts[0]
	surface.mu.Unlock()
	if n.Type != models.NotificationConnectionIssue || n.Message == "" {
		t.Fatalf("unexpected notification %+v", n)
	}
	if !strings.HasPrefix(alert, "error: ") {
		t.Fatalf("alert severity = %q, want error", alert)
	}
}

// A recovery ends the streak; the next failure surfaces a fresh
// notification.
func TestPollerFailureStreakResetsOnSuccess(t *testing.T) {
	tracker := &fakeTracker{trackedID: 1, loadErr: apperr.ErrServer}
	surface := &fakeSurface{}
	p := New(tracker, &fakePayments{}, surface, logger.NewLogger("test"), 10*time.Millisecond, 5*time.Millisecond)

	p.Start(context.Background())
	defer p.Stop()

	waitNotifications := func(want int) {
		t.Helper()
		deadline := time.After(time.Second)
		for {
			notifications, _ := surface.counts()
			if notifications >= want {
				return
			}
			select {
			case <-deadline:
				t.Fatalf("never reached %d notifications", want)
			case <-time.After(5 * time.Millisecond):
			}
		}
	}

	waitNotifications(1)
	tracker.setLoadErr(nil)
	time.Sleep(50 * time.Millisecond)
	tracker.setLoadErr(apperr.ErrServer)
	waitNotifications(2)
}

func TestPollerStopIsIdempotent(t *testing.T) {
	p := newTestPoller(&fakeTracker{trackedID: 1}, &fakePayments{})

	p.Stop() // never started
	p.Start(context.Background())
	p.Stop()
	p.Stop()
}

func TestPollerRestartReplacesRun(t *testing.T) {
	tracker := &fakeTracker{trackedID: 1}
	p := newTestPoller(tracker, &fakePayments{})

	p.Start(context.Background())
	p.Start(context.Background())
	p.Stop()

	// After Stop, no further loads may happen.
	settled := tracker.loadCount()
	time.Sleep(50 * time.Millisecond)
	if got := tracker.loadCount(); got != settled {
		t.Fatalf("loads kept running after Stop: %d -> %d", settled, got)
	}
}

func TestPollerHonorsParentContext(t *testing.T) {
	tracker := &fakeTracker{trackedID: 1}
	p := newTestPoller(tracker, &fakePayments{})

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()

	time.Sleep(30 * time.Millisecond)
	settled := tracker.loadCount()
	time.Sleep(50 * time.Millisecond)
	if got := tracker.loadCount(); got != settled {
		t.Fatalf("loads kept running after context cancel: %d -> %d", settled, got)
	}
	p.Stop()
}
