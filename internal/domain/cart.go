package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidQuantity = errors.New("quantity must be positive")

type CartItem struct {
	Product
	Quantity int       `json:"quantity"`
	AddedAt  time.Time `json:"added_at"`
}

// Subtotal is price × quantity for a single row.
func (i CartItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart holds the products selected during one session. A product appears at
// most once; repeated additions increase its quantity.
type Cart struct {
	SessionID string     `json:"session_id"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func NewCart(sessionID string) *Cart {
	now := time.Now()
	return &Cart{
		SessionID: sessionID,
		Items:     []CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Add puts one unit of the product in the cart.
func (c *Cart) Add(p Product) {
	// quantity 1 never fails
	_ = c.AddQuantity(p, 1)
}

func (c *Cart) AddQuantity(p Product, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	now := time.Now()
	c.UpdatedAt = now
	for i := range c.Items {
		if c.Items[i].ID == p.ID {
			c.Items[i].Quantity += quantity
			return nil
		}
	}
	c.Items = append(c.Items, CartItem{Product: p, Quantity: quantity, AddedAt: now})
	return nil
}

// Remove drops every row with the given product id. Unknown ids are ignored.
func (c *Cart) Remove(productID int64) {
	kept := c.Items[:0]
	removed := false
	for _, item := range c.Items {
		if item.ID == productID {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	c.Items = kept
	if removed {
		c.UpdatedAt = time.Now()
	}
}

func (c *Cart) Clear() {
	c.Items = []CartItem{}
	c.UpdatedAt = time.Now()
}

// Snapshot returns a copy of the rows so callers cannot mutate the cart through it.
func (c *Cart) Snapshot() []CartItem {
	out := make([]CartItem, len(c.Items))
	copy(out, c.Items)
	return out
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Count is the number of units across all rows.
func (c *Cart) Count() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}
