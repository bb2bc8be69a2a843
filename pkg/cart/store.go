// Package cart holds the in-memory shopping cart. It performs no network I/O.
package cart

import (
	"context"
	"log/slog"

	"cafe/pkg/catalog"
	"cafe/pkg/state"
)

// Store owns the cart State on a dedicated goroutine.
type Store struct {
	box    *state.Box[State]
	logger *slog.Logger
}

// NewStore starts with an empty, hidden cart.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	initial := State{Items: []LineItem{}}
	initial.recompute()
	return &Store{
		box:    state.New(initial, State.Clone),
		logger: logger.With(slog.String("component", "cart")),
	}
}

// Snapshot returns a copy of the cart.
func (s *Store) Snapshot(ctx context.Context) (State, error) {
	return s.box.Snapshot(ctx)
}

// Subscribe streams the latest cart after every change.
func (s *Store) Subscribe(ctx context.Context) (<-chan State, func(), error) {
	return s.box.Subscribe(ctx)
}

// AddItem adds quantity units of p, merging with an existing line for the same product.
func (s *Store) AddItem(ctx context.Context, p catalog.Product, quantity int) (State, error) {
	st, err := s.box.Update(ctx, func(c *State) error {
		return c.Add(p, quantity)
	})
	if err != nil {
		return st, err
	}
	s.logger.Debug("item added", slog.String("product_id", p.ID), slog.Int("total_items", st.TotalItems))
	return st, nil
}

// RemoveItem deletes a line; removing an absent product is not an error.
func (s *Store) RemoveItem(ctx context.Context, productID string) (State, error) {
	return s.box.Update(ctx, func(c *State) error {
		c.Remove(productID)
		return nil
	})
}

// SetQuantity sets a line's quantity exactly, removing it when quantity <= 0.
func (s *Store) SetQuantity(ctx context.Context, productID string, quantity int) (State, error) {
	return s.box.Update(ctx, func(c *State) error {
		return c.SetQuantity(productID, quantity)
	})
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) (State, error) {
	return s.box.Update(ctx, func(c *State) error {
		c.Clear()
		return nil
	})
}

// Open shows the cart.
func (s *Store) Open(ctx context.Context) (State, error) {
	return s.box.Update(ctx, func(c *State) error {
		c.Open()
		return nil
	})
}

// Close hides the cart. It does not stop the store; see Shutdown.
func (s *Store) Close(ctx context.Context) (State, error) {
	return s.box.Update(ctx, func(c *State) error {
		c.Close()
		return nil
	})
}

// Toggle flips visibility.
func (s *Store) Toggle(ctx context.Context) (State, error) {
	return s.box.Update(ctx, func(c *State) error {
		c.Toggle()
		return nil
	})
}

// Shutdown stops the owning goroutine.
func (s *Store) Shutdown() {
	s.box.Close()
}
