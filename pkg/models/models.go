package models

import (
	"encoding/json"
	"strconv"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusServed    OrderStatus = "served"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether order tracking can stop for this status.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Settled reports whether the payment track needs no further polling.
func (p PaymentStatus) Settled() bool {
	return p == PaymentStatusPaid || p == PaymentStatusRefunded || p == PaymentStatusFailed
}

var OrderStatusLabels = map[OrderStatus]string{
	OrderStatusPending:   "Pending",
	OrderStatusConfirmed: "Confirmed",
	OrderStatusPreparing: "Preparing",
	OrderStatusReady:     "Ready",
	OrderStatusServed:    "Served",
	OrderStatusCompleted: "Completed",
	OrderStatusCancelled: "Cancelled",
}

var PaymentStatusLabels = map[PaymentStatus]string{
	PaymentStatusUnpaid:   "Unpaid",
	PaymentStatusPending:  "Payment Pending",
	PaymentStatusPaid:     "Paid",
	PaymentStatusFailed:   "Payment Failed",
	PaymentStatusRefunded: "Refunded",
}

type MenuItem struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type OrderItem struct {
	ID         int       `json:"id"`
	OrderID    int       `json:"order_id"`
	MenuItemID int       `json:"menu_item_id"`
	Quantity   int       `json:"quantity"`
	UnitPrice  float64   `json:"unit_price"`
	Subtotal   float64   `json:"subtotal"`
	Notes      *string   `json:"notes"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	MenuItem *MenuItem `json:"menu_item,omitempty"`
}

// Order is the server-authoritative order representation. The monetary
// breakdown is computed server-side; GrandTotal is never recomputed on
// receipt.
type Order struct {
	ID            int           `json:"id"`
	OrderNumber   string        `json:"order_number"`
	SessionID     int           `json:"session_id"`
	TableID       int           `json:"table_id"`
	Status        OrderStatus   `json:"status"`
	TotalAmount   float64       `json:"total_amount"`
	TaxAmount     float64       `json:"tax_amount"`
	ServiceCharge float64       `json:"service_charge"`
	GrandTotal    float64       `json:"grand_total"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentMethod *string       `json:"payment_method"`
	Notes         *string       `json:"notes"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`

	OrderItems []OrderItem `json:"order_items,omitempty"`
}

type CreateOrderRequest struct {
	Items []OrderItemRequest `json:"items"`
	Notes *string            `json:"notes,omitempty"`
}

type OrderItemRequest struct {
	MenuItemID int     `json:"menu_item_id"`
	Quantity   int     `json:"quantity"`
	Notes      *string `json:"notes,omitempty"`
}

type Session struct {
	ID           int        `json:"id"`
	SessionToken string     `json:"session_token"`
	TableID      int        `json:"table_id"`
	CustomerName *string    `json:"customer_name"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at"`
}

type StaffIdentity struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
)

// IdentityKey parameterizes the push channel connection: a customer is
// keyed by table, a staff member by staff id.
type IdentityKey struct {
	Role    Role
	TableID int
	StaffID int
}

func (k IdentityKey) String() string {
	if k.Role == RoleStaff {
		return "staff:" + strconv.Itoa(k.StaffID)
	}
	return "table:" + strconv.Itoa(k.TableID)
}

type Notification struct {
	ID        string     `json:"id"`
	OrderID   *int       `json:"order_id,omitempty"`
	Type      string     `json:"type"`
	Message   string     `json:"message"`
	IsRead    bool       `json:"is_read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

const (
	NotificationOrderStatusUpdated = "order_status_updated"
	NotificationOrderReady         = "order_ready"
	NotificationPaymentConfirmed   = "payment_confirmed"
	NotificationAssistanceRequest  = "assistance_request"
	NotificationConnectionIssue    = "connection_issue"
)

type EventType string

const (
	EventOrderStatusUpdated EventType = "order_status_updated"
	EventOrderReady         EventType = "order_ready"
	EventPaymentConfirmed   EventType = "payment_confirmed"
)

// Event is the push channel envelope. EventID may be empty when the
// producer does not stamp one; Target is routing metadata for the
// gateway and is ignored by consumers.
type Event struct {
	EventID string          `json:"event_id,omitempty"`
	Type    EventType       `json:"type"`
	Target  string          `json:"target,omitempty"`
	Data    json.RawMessage `json:"data"`
}

type OrderStatusUpdatedData struct {
	OrderID int         `json:"order_id"`
	Status  OrderStatus `json:"status"`
	Message string      `json:"message"`
}

type OrderReadyData struct {
	OrderID int `json:"order_id"`
}

type PaymentConfirmedData struct {
	OrderID int `json:"order_id"`
}

type PaymentToken struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

type PaymentStatusResponse struct {
	OrderID       int           `json:"order_id"`
	PaymentStatus PaymentStatus `json:"payment_status"`
}
