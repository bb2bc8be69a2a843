package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"cafe/pkg/catalog"
	"cafe/pkg/gallery"
	"cafe/pkg/orders"
	"cafe/pkg/session"
)

type loginPayload struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type statusPayload struct {
	Status string `json:"status" validate:"required"`
}

type filterPayload struct {
	Filter string `json:"filter"`
}

type bulkDeletePayload struct {
	OrderIDs []string `json:"order_ids"`
}

type productPayload struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category" validate:"required"`
	Image       string          `json:"image"`
}

func (p productPayload) product(id string) catalog.Product {
	return catalog.Product{
		ID:          id,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Category:    p.Category,
		Image:       p.Image,
	}
}

// ordersResponse adds the filtered view to the order state.
type ordersResponse struct {
	orders.State
	Filtered []orders.Order `json:"filtered"`
}

func newOrdersResponse(st orders.State) ordersResponse {
	return ordersResponse{State: st, Filtered: st.Filtered()}
}

// login exchanges credentials for a session token.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if err := s.decode(r, &payload); err != nil {
		s.respondFailure(w, err, "Login failed")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	if err := s.session.Login(ctx, payload.Username, payload.Password); err != nil {
		s.respondFailure(w, err, "Login failed")
		return
	}
	s.writeSession(ctx, w)
}

// logout forgets the token locally.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), localTimeout)
	defer cancel()

	if err := s.session.Logout(ctx); err != nil {
		s.respondFailure(w, err, "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// sessionState reports the session without contacting the remote service.
func (s *Server) sessionState(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), localTimeout)
	defer cancel()
	s.writeSession(ctx, w)
}

// verify revalidates the stored token. An expired token is reported as an unauthenticated session,
// not as an error.
func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	if _, err := s.session.Verify(ctx); err != nil && !errors.Is(err, session.ErrSessionExpired) {
		s.respondFailure(w, err, "Token invalid")
		return
	}
	s.writeSession(ctx, w)
}

func (s *Server) writeSession(ctx context.Context, w http.ResponseWriter) {
	st, err := s.session.Snapshot(ctx)
	if err != nil {
		s.respondFailure(w, err, "session unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// dashboard loads the aggregate counters.
func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	stats, err := s.orders.FetchStats(ctx)
	if err != nil {
		s.respondFailure(w, err, "Failed to fetch dashboard stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// listOrders returns both collections with the filtered view and selection.
func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), localTimeout)
	defer cancel()
	s.writeOrders(ctx, w)
}

func (s *Server) writeOrders(ctx context.Context, w http.ResponseWriter) {
	st, err := s.orders.Snapshot(ctx)
	if err != nil {
		s.respondFailure(w, err, "orders unavailable")
		return
	}
	writeJSON(w, http.StatusOK, newOrdersResponse(st))
}

// refreshOrders fetches active orders and history concurrently.
func (s *Server) refreshOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	if err := s.orders.Refresh(ctx); err != nil {
		s.respondFailure(w, err, "Failed to fetch orders")
		return
	}
	s.writeOrders(ctx, w)
}

// setOrderFilter switches the status filter of the active view.
func (s *Server) setOrderFilter(w http.ResponseWriter, r *http.Request) {
	var payload filterPayload
	if err := s.decode(r, &payload); err != nil {
		s.respondFailure(w, err, "invalid filter")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), localTimeout)
	defer cancel()

	st, err := s.orders.SetFilter(ctx, payload.Filter)
	if err != nil {
		s.respondFailure(w, err, "invalid filter")
		return
	}
	writeJSON(w, http.StatusOK, newOrdersResponse(st))
}

// toggleOrderSelection adds or removes one order from the bulk selection.
func (s *Server) toggleOrderSelection(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), localTimeout)
	defer cancel()

	st, err := s.orders.ToggleSelected(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, err, "invalid selection")
		return
	}
	writeJSON(w, http.StatusOK, newOrdersResponse(st))
}

// selectFilteredOrders selects every order in the filtered view.
func (s *Server) selectFilteredOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), localTimeout)
	defer cancel()

	st, err := s.orders.SelectFiltered(ctx)
	if err != nil {
		s.respondFailure(w, err, "orders unavailable")
		return
	}
	writeJSON(w, http.StatusOK, newOrdersResponse(st))
}

// clearOrderSelection empties the bulk selection.
func (s *Server) clearOrderSelection(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), localTimeout)
	defer cancel()

	st, err := s.orders.ClearSelection(ctx)
	if err != nil {
		s.respondFailure(w, err, "orders unavailable")
		return
	}
	writeJSON(w, http.StatusOK, newOrdersResponse(st))
}

// updateOrderStatus advances one order; delivered orders move to history.
func (s *Server) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var payload statusPayload
	if err := s.decode(r, &payload); err != nil {
		s.respondFailure(w, err, "invalid status")
		return
	}
	status, err := orders.ParseStatus(payload.Status)
	if err != nil {
		s.respondFailure(w, err, "invalid status")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	if err := s.orders.UpdateStatus(ctx, chi.URLParam(r, "id"), status); err != nil {
		s.respondFailure(w, err, "Failed to update order status")
		return
	}
	s.writeOrders(ctx, w)
}

// deleteOrder removes one order from either collection.
func (s *Server) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	if err := s.orders.DeleteOrder(ctx, chi.URLParam(r, "id")); err != nil {
		s.respondFailure(w, err, "Failed to delete order")
		return
	}
	s.writeOrders(ctx, w)
}

// bulkDeleteOrders deletes the listed ids, or the current selection when the list is empty.
func (s *Server) bulkDeleteOrders(w http.ResponseWriter, r *http.Request) {
	var payload bulkDeletePayload
	if r.ContentLength != 0 {
		if err := s.decode(r, &payload); err != nil {
			s.respondFailure(w, err, "invalid request")
			return
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	var err error
	if len(payload.OrderIDs) == 0 {
		err = s.orders.BulkDeleteSelected(ctx)
	} else {
		err = s.orders.BulkDelete(ctx, payload.OrderIDs)
	}
	if err != nil {
		s.respondFailure(w, err, "Failed to delete orders")
		return
	}
	s.writeOrders(ctx, w)
}

// clearOrderHistory deletes every delivered order.
func (s *Server) clearOrderHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	if err := s.orders.ClearHistory(ctx); err != nil {
		s.respondFailure(w, err, "Failed to clear history")
		return
	}
	s.writeOrders(ctx, w)
}

// clearOrdersError drops the displayed order failure.
func (s *Server) clearOrdersError(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), localTimeout)
	defer cancel()

	if err := s.orders.ClearError(ctx); err != nil {
		s.respondFailure(w, err, "orders unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listProducts returns the admin view of the catalog, always fresh from the remote service.
func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	if _, err := s.catalog.FetchAll(ctx); err != nil {
		s.respondFailure(w, err, "Failed to fetch products")
		return
	}
	st, err := s.catalog.Snapshot(ctx)
	if err != nil {
		s.respondFailure(w, err, "catalog unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// createProduct adds a product to the remote catalog.
func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var payload productPayload
	if err := s.decode(r, &payload); err != nil {
		s.respondFailure(w, err, "Failed to create product")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	created, err := s.catalog.Create(ctx, payload.product(""))
	if err != nil {
		s.respondFailure(w, err, "Failed to create product")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// updateProduct replaces the product identified by the path.
func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	var payload productPayload
	if err := s.decode(r, &payload); err != nil {
		s.respondFailure(w, err, "Failed to update product")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	updated, err := s.catalog.Update(ctx, payload.product(chi.URLParam(r, "id")))
	if err != nil {
		s.respondFailure(w, err, "Failed to update product")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// deleteProduct removes a product from the remote catalog.
func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	if err := s.catalog.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		s.respondFailure(w, err, "Failed to delete product")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// uploadImage adds an image to the gallery.
func (s *Server) uploadImage(w http.ResponseWriter, r *http.Request) {
	var payload gallery.Upload
	if err := decodeJSON(r, &payload); err != nil {
		s.respondFailure(w, err, "Failed to upload image")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	img, err := s.gallery.Upload(ctx, payload)
	if err != nil {
		s.respondFailure(w, err, "Failed to upload image")
		return
	}
	writeJSON(w, http.StatusCreated, img)
}

// deleteImage removes an image from the gallery.
func (s *Server) deleteImage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	if err := s.gallery.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		s.respondFailure(w, err, "Failed to delete image")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
