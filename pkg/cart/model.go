package cart

import (
	"fmt"

	"github.com/shopspring/decimal"

	"cafe/pkg/catalog"
	"cafe/pkg/failure"
)

// MaxQuantity is the largest quantity one line may hold.
const MaxQuantity = 999

var (
	// ErrNegativePrice is returned when a product with a price below zero is added.
	ErrNegativePrice = failure.Validation("product price must not be negative")
	// ErrQuantityLimit is returned when a line would exceed MaxQuantity.
	ErrQuantityLimit = failure.Validation(fmt.Sprintf("quantity must not exceed %d", MaxQuantity))
)

// LineItem is one product in the cart with the price captured when it was added.
type LineItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Image       string          `json:"image"`
}

// Subtotal is UnitPrice × Quantity.
func (l LineItem) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// State is the cart as the UI sees it. TotalItems and TotalPrice are derived by recompute
// after every mutation and are never written anywhere else.
type State struct {
	Items      []LineItem      `json:"items"`
	TotalItems int             `json:"total_items"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Visible    bool            `json:"is_open"`
}

// Totals computes item count and price for items.
func Totals(items []LineItem) (int, decimal.Decimal) {
	count := 0
	total := decimal.Zero
	for _, item := range items {
		count += item.Quantity
		total = total.Add(item.Subtotal())
	}
	return count, total
}

func (s *State) recompute() {
	s.TotalItems, s.TotalPrice = Totals(s.Items)
}

func (s *State) index(productID string) int {
	for i := range s.Items {
		if s.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Add increases the quantity of an existing line or appends a new one priced at p.Price.
// Quantities below one count as one. The cart is left unchanged when the line would exceed
// MaxQuantity.
func (s *State) Add(p catalog.Product, quantity int) error {
	if p.Price.IsNegative() {
		return ErrNegativePrice
	}
	if quantity < 1 {
		quantity = 1
	}
	if quantity > MaxQuantity {
		return ErrQuantityLimit
	}
	if i := s.index(p.ID); i >= 0 {
		if s.Items[i].Quantity > MaxQuantity-quantity {
			return ErrQuantityLimit
		}
		s.Items[i].Quantity += quantity
	} else {
		s.Items = append(s.Items, LineItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			UnitPrice:   p.Price,
			Quantity:    quantity,
			Image:       p.Image,
		})
	}
	s.recompute()
	return nil
}

// Remove deletes the line for productID. Unknown ids are ignored.
func (s *State) Remove(productID string) {
	if i := s.index(productID); i >= 0 {
		s.Items = append(s.Items[:i], s.Items[i+1:]...)
	}
	s.recompute()
}

// SetQuantity sets the quantity exactly; zero or less removes the line.
func (s *State) SetQuantity(productID string, quantity int) error {
	if quantity <= 0 {
		s.Remove(productID)
		return nil
	}
	if quantity > MaxQuantity {
		return ErrQuantityLimit
	}
	if i := s.index(productID); i >= 0 {
		s.Items[i].Quantity = quantity
	}
	s.recompute()
	return nil
}

// Clear empties the cart and zeroes both totals.
func (s *State) Clear() {
	s.Items = []LineItem{}
	s.recompute()
}

func (s *State) Open()   { s.Visible = true }
func (s *State) Close()  { s.Visible = false }
func (s *State) Toggle() { s.Visible = !s.Visible }

// IsEmpty reports whether the cart holds no lines.
func (s State) IsEmpty() bool { return len(s.Items) == 0 }

// Clone returns a deep copy, safe to hand to another goroutine.
func (s State) Clone() State {
	s.Items = CloneItems(s.Items)
	return s
}

// CloneItems copies a slice of line items.
func CloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}
