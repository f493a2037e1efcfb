package cart

import (
	"context"
	"fmt"
	"sync"

	apperr "dinesync/internal/xpkg/errors"
	"dinesync/pkg/models"
)

// Display-only percentages; the server recomputes the authoritative
// breakdown on order creation.
const (
	TaxPercent     = 10
	ServicePercent = 5
)

type Line struct {
	MenuItemID int
	Name       string
	UnitPrice  float64
	Quantity   int
	Notes      string
}

type Totals struct {
	Subtotal      float64
	Tax           float64
	ServiceCharge float64
	Total         float64
}

// API creates orders on the server.
type API interface {
	CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error)
}

// Adopter receives the created order; in practice the order lifecycle
// store, which owns it from then on.
type Adopter interface {
	Adopt(o *models.Order)
}

// Cart builds an order payload from selected menu items. Lines keep
// insertion order; adding an item already present bumps its quantity.
type Cart struct {
	mu    sync.Mutex
	lines []Line
}

func New() *Cart {
	return &Cart{}
}

func (c *Cart) Add(item models.MenuItem, quantity int, notes string) {
	if quantity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.lines {
		if c.lines[i].MenuItemID == item.ID && c.lines[i].Notes == notes {
			c.lines[i].Quantity += quantity
			return
		}
	}
	c.lines = append(c.lines, Line{
		MenuItemID: item.ID,
		Name:       item.Name,
		UnitPrice:  item.Price,
		Quantity:   quantity,
		Notes:      notes,
	})
}

// SetQuantity updates the line keyed by item and notes, the same key Add
// merges on; zero or negative removes it.
func (c *Cart) SetQuantity(menuItemID int, notes string, quantity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.lines {
		if c.lines[i].MenuItemID != menuItemID || c.lines[i].Notes != notes {
			continue
		}
		if quantity <= 0 {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
		} else {
			c.lines[i].Quantity = quantity
		}
		return
	}
}

func (c *Cart) Remove(menuItemID int, notes string) {
	c.SetQuantity(menuItemID, notes, 0)
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
}

func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Line(nil), c.lines...)
}

func (c *Cart) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines) == 0
}

// Totals computes the display breakdown shown before checkout.
func (c *Cart) Totals() Totals {
	c.mu.Lock()
	defer c.mu.Unlock()
	var t Totals
	for _, line := range c.lines {
		t.Subtotal += line.UnitPrice * float64(line.Quantity)
	}
	t.Tax = t.Subtotal * TaxPercent / 100
	t.ServiceCharge = t.Subtotal * ServicePercent / 100
	t.Total = t.Subtotal + t.Tax + t.ServiceCharge
	return t
}

// Checkout submits the cart and hands the created order to the
// lifecycle store. The cart empties only after the server accepts.
func (c *Cart) Checkout(ctx context.Context, api API, tracker Adopter, notes string) (*models.Order, error) {
	c.mu.Lock()
	if len(c.lines) == 0 {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: cart is empty", apperr.ErrValidation)
	}
	req := &models.CreateOrderRequest{}
	if notes != "" {
		req.Notes = &notes
	}
	for _, line := range c.lines {
		item := models.OrderItemRequest{
			MenuItemID: line.MenuItemID,
			Quantity:   line.Quantity,
		}
		if line.Notes != "" {
			n := line.Notes
			item.Notes = &n
		}
		req.Items = append(req.Items, item)
	}
	c.mu.Unlock()

	order, err := api.CreateOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	c.Clear()
	tracker.Adopt(order)
	return order, nil
}
