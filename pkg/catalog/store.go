// Package catalog keeps the read-through product cache and the category list derived from it.
package catalog

import (
	"context"
	"log/slog"
	"strings"

	"cafe/pkg/failure"
	"cafe/pkg/state"
)

// Operation names recorded in State.Ops.
const (
	OpFetch  = "fetch"
	OpGet    = "get"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Remote is the product service the store reads through.
type Remote interface {
	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id string) (Product, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	UpdateProduct(ctx context.Context, p Product) (Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// State is the snapshot handed to the UI layer.
type State struct {
	Products   []Product `json:"products"`
	Categories []string  `json:"categories"`
	Current    *Product  `json:"current,omitempty"`
	Ops        state.Ops `json:"ops"`
	Error      string    `json:"error,omitempty"`
}

func cloneState(s State) State {
	s.Products = cloneProducts(s.Products)
	s.Categories = append([]string(nil), s.Categories...)
	if s.Current != nil {
		current := *s.Current
		s.Current = &current
	}
	s.Ops = s.Ops.Clone()
	return s
}

// Store applies remote catalog changes locally only after the remote confirmed them.
type Store struct {
	box    *state.Box[State]
	remote Remote
	logger *slog.Logger
}

// NewStore starts the owning goroutine. A nil logger falls back to slog.Default.
func NewStore(remote Remote, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		box:    state.New(State{Products: []Product{}, Categories: []string{}, Ops: state.Ops{}}, cloneState),
		remote: remote,
		logger: logger.With(slog.String("component", "catalog")),
	}
}

// Snapshot returns a copy of the current catalog state.
func (s *Store) Snapshot(ctx context.Context) (State, error) {
	return s.box.Snapshot(ctx)
}

// Subscribe streams the latest catalog snapshot after every change.
func (s *Store) Subscribe(ctx context.Context) (<-chan State, func(), error) {
	return s.box.Subscribe(ctx)
}

// FetchAll replaces the product cache wholesale and recomputes the categories from scratch.
func (s *Store) FetchAll(ctx context.Context) ([]Product, error) {
	if err := s.begin(ctx, OpFetch); err != nil {
		return nil, err
	}
	products, err := s.remote.ListProducts(ctx)
	if err != nil {
		return nil, s.fail(ctx, OpFetch, err, "Failed to fetch products")
	}
	if products == nil {
		products = []Product{}
	}
	err = s.commit(ctx, func(st *State) error {
		st.Products = cloneProducts(products)
		st.Categories = deriveCategories(products)
		st.Ops[OpFetch] = state.PhaseSucceeded
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("products fetched", slog.Int("count", len(products)))
	return products, nil
}

// Get loads one product and makes it the current one.
func (s *Store) Get(ctx context.Context, id string) (Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Product{}, s.fail(ctx, OpGet, ErrMissingID, "Product not found")
	}
	if err := s.begin(ctx, OpGet); err != nil {
		return Product{}, err
	}
	p, err := s.remote.GetProduct(ctx, id)
	if err != nil {
		return Product{}, s.fail(ctx, OpGet, err, "Product not found")
	}
	err = s.commit(ctx, func(st *State) error {
		current := p
		st.Current = &current
		st.Ops[OpGet] = state.PhaseSucceeded
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

// Create validates p, sends it to the remote catalog and appends the stored product.
func (s *Store) Create(ctx context.Context, p Product) (Product, error) {
	if err := p.Validate(); err != nil {
		return Product{}, s.fail(ctx, OpCreate, err, "Failed to create product")
	}
	if err := s.begin(ctx, OpCreate); err != nil {
		return Product{}, err
	}
	created, err := s.remote.CreateProduct(ctx, p)
	if err != nil {
		return Product{}, s.fail(ctx, OpCreate, err, "Failed to create product")
	}
	err = s.commit(ctx, func(st *State) error {
		st.Products = append(st.Products, created)
		st.Categories = addCategory(st.Categories, created.Category)
		st.Ops[OpCreate] = state.PhaseSucceeded
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.logger.Info("product created", slog.String("product_id", created.ID), slog.String("category", created.Category))
	return created, nil
}

// Update replaces the product with the same id once the remote confirmed the change.
// Categories are never removed, even when the old category is no longer used.
func (s *Store) Update(ctx context.Context, p Product) (Product, error) {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		return Product{}, s.fail(ctx, OpUpdate, ErrMissingID, "Failed to update product")
	}
	if err := p.Validate(); err != nil {
		return Product{}, s.fail(ctx, OpUpdate, err, "Failed to update product")
	}
	if err := s.begin(ctx, OpUpdate); err != nil {
		return Product{}, err
	}
	updated, err := s.remote.UpdateProduct(ctx, p)
	if err != nil {
		return Product{}, s.fail(ctx, OpUpdate, err, "Failed to update product")
	}
	if updated.ID == "" {
		updated.ID = p.ID
	}
	err = s.commit(ctx, func(st *State) error {
		for i := range st.Products {
			if st.Products[i].ID == updated.ID {
				st.Products[i] = updated
				break
			}
		}
		current := updated
		st.Current = &current
		st.Ops[OpUpdate] = state.PhaseSucceeded
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.logger.Info("product updated", slog.String("product_id", updated.ID))
	return updated, nil
}

// Delete removes the product locally after the remote deleted it.
func (s *Store) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return s.fail(ctx, OpDelete, ErrMissingID, "Failed to delete product")
	}
	if err := s.begin(ctx, OpDelete); err != nil {
		return err
	}
	if err := s.remote.DeleteProduct(ctx, id); err != nil {
		return s.fail(ctx, OpDelete, err, "Failed to delete product")
	}
	err := s.commit(ctx, func(st *State) error {
		kept := st.Products[:0]
		for _, p := range st.Products {
			if p.ID != id {
				kept = append(kept, p)
			}
		}
		st.Products = kept
		if st.Current != nil && st.Current.ID == id {
			st.Current = nil
		}
		st.Ops[OpDelete] = state.PhaseSucceeded
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("product deleted", slog.String("product_id", id))
	return nil
}

// ClearCurrent forgets the product loaded by Get or Update.
func (s *Store) ClearCurrent(ctx context.Context) error {
	_, err := s.box.Update(ctx, func(st *State) error {
		st.Current = nil
		return nil
	})
	return err
}

// ClearError resets the error the UI has displayed.
func (s *Store) ClearError(ctx context.Context) error {
	_, err := s.box.Update(ctx, func(st *State) error {
		st.Error = ""
		return nil
	})
	return err
}

// Shutdown stops the owning goroutine; late remote results are ignored afterwards.
func (s *Store) Shutdown() {
	s.box.Close()
}

// commit applies a result the remote service already confirmed. Cancellation of ctx is ignored so
// only Shutdown can drop it.
func (s *Store) commit(ctx context.Context, fn func(*State) error) error {
	_, err := s.box.Update(context.WithoutCancel(ctx), fn)
	return err
}

func (s *Store) begin(ctx context.Context, op string) error {
	_, err := s.box.Update(ctx, func(st *State) error {
		st.Ops[op] = state.PhasePending
		st.Error = ""
		return nil
	})
	return err
}

// fail records the user-facing reason and returns cause unchanged.
func (s *Store) fail(ctx context.Context, op string, cause error, fallback string) error {
	reason := failure.Reason(cause, fallback)
	s.logger.Warn("catalog operation failed",
		slog.String("op", op),
		slog.String("kind", failure.KindOf(cause).String()),
		slog.String("error", cause.Error()))
	err := s.commit(ctx, func(st *State) error {
		st.Ops[op] = state.PhaseFailed
		st.Error = reason
		return nil
	})
	if err != nil {
		return err
	}
	return cause
}
