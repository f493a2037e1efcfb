package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	apperr "dinesync/internal/xpkg/errors"
	"dinesync/pkg/logger"
	"dinesync/pkg/models"
)

// Sink is the slice of the order lifecycle store events are fed into.
// Both methods report whether the update was applied, which gates the
// notification surface: replayed events rejected by the rank rule never
// produce duplicate notifications.
type Sink interface {
	ApplyStatusEvent(orderID int, status models.OrderStatus, eventTime time.Time) bool
	ApplyPaymentEvent(orderID int, status models.PaymentStatus) bool
}

// Surface receives notifications and transient alerts.
type Surface interface {
	Append(n models.Notification) models.Notification
	Alert(message, severity string)
}

// Sound is the optional audio cue for order_ready; errors are swallowed.
type Sound interface {
	Play() error
}

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	maxSeenEvents  = 512
)

// Client maintains exactly one live websocket connection per active
// identity. Reconnects are transparent to consumers; a connection for a
// superseded identity never delivers events because its context is
// cancelled before a new one is opened.
type Client struct {
	wsURL   string
	store   Sink
	surface Surface
	sound   Sound
	logger  *logger.Logger
	dialer  *websocket.Dialer

	mu       sync.Mutex
	identity models.IdentityKey
	active   bool
	conn     *websocket.Conn
	cancel   context.CancelFunc
	done     chan struct{}

	seenMu    sync.Mutex
	seen      map[string]struct{}
	seenOrder []string
}

func NewClient(wsURL string, store Sink, surface Surface, sound Sound, log *logger.Logger) *Client {
	return &Client{
		wsURL:   wsURL,
		store:   store,
		surface: surface,
		sound:   sound,
		logger:  log,
		dialer:  websocket.DefaultDialer,
		seen:    make(map[string]struct{}),
	}
}

// Connect opens the channel for the given identity. Calling it again
// with the same identity is a no-op; a different identity tears the
// existing connection down first.
func (c *Client) Connect(identity models.IdentityKey) error {
	c.mu.Lock()
	if c.active && c.identity == identity {
		c.mu.Unlock()
		return nil
	}
	c.teardownLocked()

	conn, err := c.dial(identity)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.identity = identity
	c.active = true
	c.conn = conn
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.logger.Info("", "push_connected", "push channel connected as "+identity.String())
	go c.run(ctx, conn, identity, done)
	return nil
}

// Disconnect tears the channel down. Safe to call when never connected
// and from multiple lifecycle hooks.
func (c *Client) Disconnect() {
	c.mu.Lock()
	done := c.done
	c.teardownLocked()
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Client) teardownLocked() {
	if !c.active {
		return
	}
	c.active = false
	c.cancel()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.done = nil
	c.logger.Info("", "push_disconnected", "push channel closed for "+c.identity.String())
}

func (c *Client) dial(identity models.IdentityKey) (*websocket.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	q := u.Query()
	q.Set("role", string(identity.Role))
	if identity.Role == models.RoleStaff {
		q.Set("staff_id", strconv.Itoa(identity.StaffID))
	} else {
		q.Set("table_id", strconv.Itoa(identity.TableID))
	}
	u.RawQuery = q.Encode()

	conn, _, err := c.dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrNetwork, err)
	}
	return conn, nil
}

// run reads until the connection drops, then redials with capped
// exponential backoff for as long as the identity is still current.
func (c *Client) run(ctx context.Context, conn *websocket.Conn, identity models.IdentityKey, done chan struct{}) {
	defer close(done)
	for {
		c.readAll(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("", "push_connection_lost", "push connection lost, reconnecting")

		backoff := initialBackoff
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			next, err := c.dial(identity)
			if err == nil {
				conn = next
				break
			}
			c.logger.Debug("", "push_reconnect_failed", err.Error())
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		c.mu.Lock()
		if !c.active || c.identity != identity || ctx.Err() != nil {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()
		c.logger.Info("", "push_reconnected", "push channel reconnected as "+identity.String())
	}
}

func (c *Client) readAll(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var ev models.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		c.logger.Warn("", "push_bad_payload", err.Error())
		return
	}
	if ev.EventID != "" && c.alreadySeen(ev.EventID) {
		c.logger.Debug("", "push_duplicate_dropped", ev.EventID)
		return
	}

	switch ev.Type {
	case models.EventOrderStatusUpdated:
		var d models.OrderStatusUpdatedData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			c.logger.Warn("", "push_bad_payload", err.Error())
			return
		}
		if !c.store.ApplyStatusEvent(d.OrderID, d.Status, time.Now()) {
			return
		}
		msg := d.Message
		if msg == "" {
			msg = "Order update: " + models.OrderStatusLabels[d.Status]
		}
		c.notify(models.NotificationOrderStatusUpdated, d.OrderID, msg, "info")

	case models.EventOrderReady:
		var d models.OrderReadyData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			c.logger.Warn("", "push_bad_payload", err.Error())
			return
		}
		if !c.store.ApplyStatusEvent(d.OrderID, models.OrderStatusReady, time.Now()) {
			return
		}
		c.notify(models.NotificationOrderReady, d.OrderID, "Your order is ready to be served!", "success")
		if c.sound != nil {
			// Best effort; a missing or broken audio device is not an error.
			if err := c.sound.Play(); err != nil {
				c.logger.Debug("", "sound_failed", err.Error())
			}
		}

	case models.EventPaymentConfirmed:
		var d models.PaymentConfirmedData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			c.logger.Warn("", "push_bad_payload", err.Error())
			return
		}
		if !c.store.ApplyPaymentEvent(d.OrderID, models.PaymentStatusPaid) {
			return
		}
		c.notify(models.NotificationPaymentConfirmed, d.OrderID, "Payment confirmed! Thank you.", "success")

	default:
		c.logger.Debug("", "push_unknown_event", string(ev.Type))
	}
}

func (c *Client) notify(kind string, orderID int, message, severity string) {
	c.surface.Append(models.Notification{
		OrderID: &orderID,
		Type:    kind,
		Message: message,
	})
	c.surface.Alert(message, severity)
}

// alreadySeen records the event id and reports whether it was seen
// before. The set is bounded; old ids fall out in insertion order.
func (c *Client) alreadySeen(id string) bool {
	c.seenMu.Lock()
	defer c.seenMu.Unlock()
	if _, ok := c.seen[id]; ok {
		return true
	}
	c.seen[id] = struct{}{}
	c.seenOrder = append(c.seenOrder, id)
	if len(c.seenOrder) > maxSeenEvents {
		delete(c.seen, c.seenOrder[0])
		c.seenOrder = c.seenOrder[1:]
	}
	return false
}
