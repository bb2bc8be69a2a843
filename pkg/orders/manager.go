// Package orders is the admin-side view over remote order state. It keeps the active and history
// collections in step with confirmed server changes.
package orders

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"cafe/pkg/failure"
	"cafe/pkg/state"
)

// Operation names recorded in State.Ops.
const (
	OpFetchActive  = "fetch_active"
	OpFetchHistory = "fetch_history"
	OpUpdateStatus = "update_status"
	OpDelete       = "delete"
	OpBulkDelete   = "bulk_delete"
	OpClearHistory = "clear_history"
	OpStats        = "stats"
)

// Remote is the order service the manager reconciles with.
type Remote interface {
	ListActiveOrders(ctx context.Context) ([]Order, error)
	ListOrderHistory(ctx context.Context) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status Status) error
	DeleteOrder(ctx context.Context, id string) error
	BulkDeleteOrders(ctx context.Context, ids []string) error
	ClearOrderHistory(ctx context.Context) error
	DashboardStats(ctx context.Context) (Stats, error)
}

// State is the snapshot handed to the admin UI. An order lives in exactly one of Active and
// History; History is most-recent-first.
type State struct {
	Active   []Order      `json:"active"`
	History  []Order      `json:"history"`
	Filter   StatusFilter `json:"filter"`
	Selected []string     `json:"selected"`
	Stats    *Stats       `json:"stats,omitempty"`
	Ops      state.Ops    `json:"ops"`
	Error    string       `json:"error,omitempty"`

	// per-order sequence of dispatched and applied status updates
	issued  map[string]uint64
	applied map[string]uint64
}

// Filtered returns the active orders matching the current filter.
func (s State) Filtered() []Order {
	return Filter(s.Active, s.Filter)
}

// IsSelected reports whether id is part of the bulk selection.
func (s State) IsSelected(id string) bool {
	for _, sel := range s.Selected {
		if sel == id {
			return true
		}
	}
	return false
}

// Find looks id up in both collections.
func (s State) Find(id string) (Order, bool) {
	if i := indexOf(s.Active, id); i >= 0 {
		return s.Active[i], true
	}
	if i := indexOf(s.History, id); i >= 0 {
		return s.History[i], true
	}
	return Order{}, false
}

func cloneState(s State) State {
	s.Active = cloneOrders(s.Active)
	s.History = cloneOrders(s.History)
	s.Selected = append([]string(nil), s.Selected...)
	if s.Stats != nil {
		stats := *s.Stats
		s.Stats = &stats
	}
	s.Ops = s.Ops.Clone()
	s.issued = cloneSeq(s.issued)
	s.applied = cloneSeq(s.applied)
	return s
}

func cloneSeq(src map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func indexOf(orders []Order, id string) int {
	for i := range orders {
		if orders[i].ID == id {
			return i
		}
	}
	return -1
}

func removeAt(orders []Order, i int) []Order {
	out := make([]Order, 0, len(orders)-1)
	out = append(out, orders[:i]...)
	return append(out, orders[i+1:]...)
}

func without(orders []Order, ids map[string]struct{}) []Order {
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if _, drop := ids[o.ID]; !drop {
			out = append(out, o)
		}
	}
	return out
}

// applyStatus moves the order between collections so that History holds exactly the delivered ones.
func (s *State) applyStatus(id string, to Status) {
	if i := indexOf(s.Active, id); i >= 0 {
		o := s.Active[i]
		o.Status = to
		if to == StatusDelivered {
			s.Active = removeAt(s.Active, i)
			s.History = append([]Order{o}, s.History...)
			return
		}
		s.Active[i] = o
		return
	}
	if i := indexOf(s.History, id); i >= 0 {
		o := s.History[i]
		o.Status = to
		if to == StatusDelivered {
			s.History[i] = o
			return
		}
		s.History = removeAt(s.History, i)
		s.Active = append(s.Active, o)
	}
}

func (s *State) deselect(ids map[string]struct{}) {
	kept := make([]string, 0, len(s.Selected))
	for _, id := range s.Selected {
		if _, drop := ids[id]; !drop {
			kept = append(kept, id)
		}
	}
	s.Selected = kept
}

// pruneSelection drops selected ids that no longer exist in either collection.
func (s *State) pruneSelection() {
	kept := make([]string, 0, len(s.Selected))
	for _, id := range s.Selected {
		if _, ok := s.Find(id); ok {
			kept = append(kept, id)
		}
	}
	s.Selected = kept
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger; nil keeps slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithStatusRegression allows transitions that move an order backwards, e.g. ready to pending.
func WithStatusRegression(allow bool) Option {
	return func(m *Manager) { m.allowRegression = allow }
}

// Manager applies remote order changes locally only after the remote confirmed them.
type Manager struct {
	box             *state.Box[State]
	remote          Remote
	logger          *slog.Logger
	allowRegression bool
}

// NewManager starts the owning goroutine with empty collections.
func NewManager(remote Remote, opts ...Option) *Manager {
	m := &Manager{remote: remote, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(slog.String("component", "orders"))
	m.box = state.New(State{
		Active:   []Order{},
		History:  []Order{},
		Filter:   FilterAll,
		Selected: []string{},
		Ops:      state.Ops{},
		issued:   map[string]uint64{},
		applied:  map[string]uint64{},
	}, cloneState)
	return m
}

// Snapshot returns a copy of the current order state.
func (m *Manager) Snapshot(ctx context.Context) (State, error) {
	return m.box.Snapshot(ctx)
}

// Subscribe streams the latest order state after every change.
func (m *Manager) Subscribe(ctx context.Context) (<-chan State, func(), error) {
	return m.box.Subscribe(ctx)
}

// FetchActive replaces the active collection with the server's list.
func (m *Manager) FetchActive(ctx context.Context) error {
	if err := m.begin(ctx, OpFetchActive); err != nil {
		return err
	}
	list, err := m.remote.ListActiveOrders(ctx)
	if err != nil {
		return m.fail(ctx, OpFetchActive, err, "Failed to fetch orders")
	}
	err = m.commit(ctx, func(st *State) error {
		st.Active = nonNil(cloneOrders(list))
		st.pruneSelection()
		st.Ops[OpFetchActive] = state.PhaseSucceeded
		return nil
	})
	if err == nil {
		m.logger.Debug("active orders fetched", slog.Int("count", len(list)))
	}
	return err
}

// FetchHistory replaces the history collection with the server's list.
func (m *Manager) FetchHistory(ctx context.Context) error {
	if err := m.begin(ctx, OpFetchHistory); err != nil {
		return err
	}
	list, err := m.remote.ListOrderHistory(ctx)
	if err != nil {
		return m.fail(ctx, OpFetchHistory, err, "Failed to fetch order history")
	}
	err = m.commit(ctx, func(st *State) error {
		st.History = nonNil(cloneOrders(list))
		st.pruneSelection()
		st.Ops[OpFetchHistory] = state.PhaseSucceeded
		return nil
	})
	if err == nil {
		m.logger.Debug("order history fetched", slog.Int("count", len(list)))
	}
	return err
}

// Refresh fetches both collections concurrently; each is applied on its own success.
func (m *Manager) Refresh(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return m.FetchActive(ctx) })
	g.Go(func() error { return m.FetchHistory(ctx) })
	return g.Wait()
}

// FetchStats loads the dashboard aggregate.
func (m *Manager) FetchStats(ctx context.Context) (Stats, error) {
	if err := m.begin(ctx, OpStats); err != nil {
		return Stats{}, err
	}
	stats, err := m.remote.DashboardStats(ctx)
	if err != nil {
		return Stats{}, m.fail(ctx, OpStats, err, "Failed to fetch dashboard stats")
	}
	err = m.commit(ctx, func(st *State) error {
		s := stats
		st.Stats = &s
		st.Ops[OpStats] = state.PhaseSucceeded
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// UpdateStatus sends the transition and, once confirmed, applies it. A delivered order leaves
// Active and lands at the head of History in the same state update.
func (m *Manager) UpdateStatus(ctx context.Context, id string, to Status) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return m.fail(ctx, OpUpdateStatus, ErrMissingID, "Failed to update order status")
	}
	if to.rank() < 0 {
		return m.fail(ctx, OpUpdateStatus, ErrUnknownStatus, "Failed to update order status")
	}

	var seq uint64
	_, err := m.box.Update(ctx, func(st *State) error {
		if current, ok := st.Find(id); ok && !m.allowRegression && !CanAdvance(current.Status, to) {
			return ErrStatusRegression
		}
		st.issued[id]++
		seq = st.issued[id]
		st.Ops[OpUpdateStatus] = state.PhasePending
		st.Error = ""
		return nil
	})
	if errors.Is(err, ErrStatusRegression) {
		return m.fail(ctx, OpUpdateStatus, err, "Failed to update order status")
	}
	if err != nil {
		return err
	}

	if err := m.remote.UpdateOrderStatus(ctx, id, to); err != nil {
		return m.fail(ctx, OpUpdateStatus, err, "Failed to update order status")
	}

	stale := false
	err = m.commit(ctx, func(st *State) error {
		st.Ops[OpUpdateStatus] = state.PhaseSucceeded
		if seq < st.applied[id] {
			stale = true
			return nil
		}
		st.applied[id] = seq
		st.applyStatus(id, to)
		return nil
	})
	if err != nil {
		return err
	}
	if stale {
		m.logger.Warn("status update resolved after a newer one; dropped",
			slog.String("order_id", id),
			slog.String("status", string(to)),
			slog.Uint64("seq", seq))
		return nil
	}
	m.logger.Info("order status updated", slog.String("order_id", id), slog.String("status", string(to)))
	return nil
}

// DeleteOrder removes the order from whichever collection holds it.
func (m *Manager) DeleteOrder(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return m.fail(ctx, OpDelete, ErrMissingID, "Failed to delete order")
	}
	if err := m.begin(ctx, OpDelete); err != nil {
		return err
	}
	if err := m.remote.DeleteOrder(ctx, id); err != nil {
		return m.fail(ctx, OpDelete, err, "Failed to delete order")
	}
	drop := map[string]struct{}{id: {}}
	err := m.commit(ctx, func(st *State) error {
		st.Active = without(st.Active, drop)
		st.History = without(st.History, drop)
		st.deselect(drop)
		st.Ops[OpDelete] = state.PhaseSucceeded
		return nil
	})
	if err == nil {
		m.logger.Info("order deleted", slog.String("order_id", id))
	}
	return err
}

// BulkDelete removes every listed order from both collections in one remote call. Nothing
// changes locally when the remote call fails.
func (m *Manager) BulkDelete(ctx context.Context, ids []string) error {
	unique := make([]string, 0, len(ids))
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, seen := drop[id]; seen {
			continue
		}
		drop[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return m.fail(ctx, OpBulkDelete, ErrNoOrdersSelected, "Failed to delete orders")
	}
	if err := m.begin(ctx, OpBulkDelete); err != nil {
		return err
	}
	if err := m.remote.BulkDeleteOrders(ctx, unique); err != nil {
		return m.fail(ctx, OpBulkDelete, err, "Failed to delete orders")
	}
	err := m.commit(ctx, func(st *State) error {
		st.Active = without(st.Active, drop)
		st.History = without(st.History, drop)
		st.deselect(drop)
		st.Ops[OpBulkDelete] = state.PhaseSucceeded
		return nil
	})
	if err == nil {
		m.logger.Info("orders deleted", slog.Int("count", len(unique)))
	}
	return err
}

// BulkDeleteSelected deletes the current selection.
func (m *Manager) BulkDeleteSelected(ctx context.Context) error {
	st, err := m.box.Snapshot(ctx)
	if err != nil {
		return err
	}
	return m.BulkDelete(ctx, st.Selected)
}

// ClearHistory empties History after the remote confirmed it. Active is untouched.
func (m *Manager) ClearHistory(ctx context.Context) error {
	if err := m.begin(ctx, OpClearHistory); err != nil {
		return err
	}
	if err := m.remote.ClearOrderHistory(ctx); err != nil {
		return m.fail(ctx, OpClearHistory, err, "Failed to clear history")
	}
	err := m.commit(ctx, func(st *State) error {
		drop := make(map[string]struct{}, len(st.History))
		for _, o := range st.History {
			drop[o.ID] = struct{}{}
		}
		st.History = []Order{}
		st.deselect(drop)
		st.Ops[OpClearHistory] = state.PhaseSucceeded
		return nil
	})
	if err == nil {
		m.logger.Info("order history cleared")
	}
	return err
}

// SetFilter changes the status filter used by State.Filtered.
func (m *Manager) SetFilter(ctx context.Context, raw string) (State, error) {
	f, err := ParseStatusFilter(raw)
	if err != nil {
		return State{}, err
	}
	return m.box.Update(ctx, func(st *State) error {
		st.Filter = f
		return nil
	})
}

// ToggleSelected adds id to the selection or removes it when already selected.
func (m *Manager) ToggleSelected(ctx context.Context, id string) (State, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return State{}, ErrMissingID
	}
	return m.box.Update(ctx, func(st *State) error {
		if st.IsSelected(id) {
			st.deselect(map[string]struct{}{id: {}})
			return nil
		}
		st.Selected = append(st.Selected, id)
		return nil
	})
}

// SelectFiltered selects every active order visible under the current filter.
func (m *Manager) SelectFiltered(ctx context.Context) (State, error) {
	return m.box.Update(ctx, func(st *State) error {
		for _, o := range st.Filtered() {
			if !st.IsSelected(o.ID) {
				st.Selected = append(st.Selected, o.ID)
			}
		}
		return nil
	})
}

// ClearSelection empties the selection.
func (m *Manager) ClearSelection(ctx context.Context) (State, error) {
	return m.box.Update(ctx, func(st *State) error {
		st.Selected = []string{}
		return nil
	})
}

// ClearError resets the error the UI has displayed.
func (m *Manager) ClearError(ctx context.Context) error {
	_, err := m.box.Update(ctx, func(st *State) error {
		st.Error = ""
		return nil
	})
	return err
}

// Shutdown stops the owning goroutine; late remote results are ignored afterwards.
func (m *Manager) Shutdown() {
	m.box.Close()
}

// commit applies a result the remote service already confirmed. Cancellation of ctx is ignored so
// only Shutdown can drop it.
func (m *Manager) commit(ctx context.Context, fn func(*State) error) error {
	_, err := m.box.Update(context.WithoutCancel(ctx), fn)
	return err
}

func (m *Manager) begin(ctx context.Context, op string) error {
	_, err := m.box.Update(ctx, func(st *State) error {
		st.Ops[op] = state.PhasePending
		st.Error = ""
		return nil
	})
	return err
}

// fail records the user-facing reason and returns cause unchanged.
func (m *Manager) fail(ctx context.Context, op string, cause error, fallback string) error {
	m.logger.Warn("order operation failed",
		slog.String("op", op),
		slog.String("kind", failure.KindOf(cause).String()),
		slog.String("error", cause.Error()))
	reason := failure.Reason(cause, fallback)
	err := m.commit(ctx, func(st *State) error {
		st.Ops[op] = state.PhaseFailed
		st.Error = reason
		return nil
	})
	if err != nil {
		return err
	}
	return cause
}

func nonNil(orders []Order) []Order {
	if orders == nil {
		return []Order{}
	}
	return orders
}
