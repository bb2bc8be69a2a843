package orders

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cafe/pkg/cart"
)

// Status is the lifecycle position of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
)

// ParseStatus accepts the three lifecycle values, case-insensitively.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusPending, StatusReady, StatusDelivered:
		return s, nil
	default:
		return "", ErrUnknownStatus
	}
}

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusReady:
		return 1
	case StatusDelivered:
		return 2
	default:
		return -1
	}
}

// CanAdvance reports whether moving from one status to another keeps the lifecycle forward-only.
// Repeating the current status is allowed.
func CanAdvance(from, to Status) bool {
	if from.rank() < 0 || to.rank() < 0 {
		return false
	}
	return to.rank() >= from.rank()
}

// Number is the user-facing order number. The backend may encode it as a JSON number or string.
type Number string

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Number(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("order number: %w", err)
	}
	*n = Number(num.String())
	return nil
}

// timestampLayouts covers RFC 3339 and the zone-less ISO form Python backends emit.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// Timestamp decodes creation times with or without a zone offset; zone-less values are UTC.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
			t.Time = time.Time{}
			return nil
		}
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unsupported timestamp %q", raw)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// Order mirrors the remote order document.
type Order struct {
	ID          string          `json:"id"`
	OrderNumber Number          `json:"order_number"`
	ClientName  string          `json:"client_name"`
	Phone       string          `json:"phone"`
	Items       []cart.LineItem `json:"cart_items"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	Status      Status          `json:"status"`
	CreatedAt   Timestamp       `json:"created_at"`
}

// Stats is the dashboard aggregate. It is read-only for the engine.
type Stats struct {
	TotalProducts   int             `json:"total_products"`
	TotalOrders     int             `json:"total_orders"`
	ActiveOrders    int             `json:"active_orders"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	PendingOrders   int             `json:"pending_orders"`
	ReadyOrders     int             `json:"ready_orders"`
	DeliveredOrders int             `json:"delivered_orders"`
}

// StatusFilter selects which active orders a view shows.
type StatusFilter string

const (
	FilterAll     StatusFilter = "all"
	FilterPending StatusFilter = "pending"
	FilterReady   StatusFilter = "ready"
)

// ParseStatusFilter rejects "delivered": delivered orders never sit in the active collection.
func ParseStatusFilter(raw string) (StatusFilter, error) {
	switch f := StatusFilter(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterPending, FilterReady:
		return f, nil
	default:
		return "", ErrUnsupportedFilter
	}
}

// Filter returns the orders matching f without modifying the input.
func Filter(orders []Order, f StatusFilter) []Order {
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if f == FilterAll || f == "" || string(o.Status) == string(f) {
			out = append(out, o)
		}
	}
	return out
}

// CloneOrder deep-copies an order including its line items.
func CloneOrder(o Order) Order {
	o.Items = cart.CloneItems(o.Items)
	return o
}

func cloneOrders(src []Order) []Order {
	if src == nil {
		return nil
	}
	out := make([]Order, len(src))
	for i, o := range src {
		out[i] = CloneOrder(o)
	}
	return out
}
