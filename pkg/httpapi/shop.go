package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"cafe/pkg/cart"
	"cafe/pkg/catalog"
	"cafe/pkg/checkout"
	"cafe/pkg/failure"
	"cafe/pkg/state"
)

type cartItemPayload struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"max=999"`
}

type quantityPayload struct {
	Quantity int `json:"quantity" validate:"max=999"`
}

// menuResponse is the storefront view over the catalog.
type menuResponse struct {
	Products   []catalog.Product `json:"products"`
	Categories []string          `json:"categories"`
	Error      string            `json:"error,omitempty"`
}

// getCart returns the current cart with its derived totals.
func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), localTimeout)
	defer cancel()

	st, err := s.cart.Snapshot(ctx)
	if err != nil {
		s.respondFailure(w, err, "cart unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// addCartItem resolves the product from the catalog cache, or the remote catalog when it is not
// cached, and adds it to the cart.
func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request) {
	var payload cartItemPayload
	if err := s.decode(r, &payload); err != nil {
		s.respondFailure(w, err, "invalid cart item")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	product, err := s.lookupProduct(ctx, payload.ProductID)
	if err != nil {
		s.respondFailure(w, err, "Product not found")
		return
	}
	st, err := s.cart.AddItem(ctx, product, payload.Quantity)
	if err != nil {
		s.respondFailure(w, err, "unable to add item")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) lookupProduct(ctx context.Context, id string) (catalog.Product, error) {
	id = strings.TrimSpace(id)
	cached, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return catalog.Product{}, err
	}
	for _, p := range cached.Products {
		if p.ID == id {
			return p, nil
		}
	}
	return s.catalog.Get(ctx, id)
}

// setCartQuantity sets a line's quantity exactly; zero or less removes it.
func (s *Server) setCartQuantity(w http.ResponseWriter, r *http.Request) {
	var payload quantityPayload
	if err := s.decode(r, &payload); err != nil {
		s.respondFailure(w, err, "invalid quantity")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), localTimeout)
	defer cancel()

	st, err := s.cart.SetQuantity(ctx, chi.URLParam(r, "productID"), payload.Quantity)
	if err != nil {
		s.respondFailure(w, err, "unable to update cart")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// removeCartItem deletes one line; unknown products are ignored.
func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), localTimeout)
	defer cancel()

	st, err := s.cart.RemoveItem(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		s.respondFailure(w, err, "unable to update cart")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// clearCart empties the cart.
func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), localTimeout)
	defer cancel()

	st, err := s.cart.Clear(ctx)
	if err != nil {
		s.respondFailure(w, err, "unable to clear cart")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// cartVisibility adapts open, close and toggle to handlers.
func (s *Server) cartVisibility(op func(*cart.Store, context.Context) (cart.State, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), localTimeout)
		defer cancel()

		st, err := op(s.cart, ctx)
		if err != nil {
			s.respondFailure(w, err, "cart unavailable")
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// checkoutStatus reports the submission lifecycle.
func (s *Server) checkoutStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), localTimeout)
	defer cancel()

	st, err := s.checkout.Snapshot(ctx)
	if err != nil {
		s.respondFailure(w, err, "checkout unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// submitOrder sends the current cart with the customer's details. The flow validates the input.
func (s *Server) submitOrder(w http.ResponseWriter, r *http.Request) {
	var info checkout.CustomerInfo
	if err := decodeJSON(r, &info); err != nil {
		s.respondFailure(w, err, "invalid checkout request")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	snapshot, err := s.cart.Snapshot(ctx)
	if err != nil {
		s.respondFailure(w, err, "cart unavailable")
		return
	}
	conf, err := s.checkout.Submit(ctx, snapshot, info)
	if err != nil {
		s.logger.Info("order submission refused",
			slog.String("reason", failure.Reason(err, "Failed to create order")),
			slog.String("kind", failure.KindOf(err).String()))
		s.respondFailure(w, err, "Failed to create order")
		return
	}
	writeJSON(w, http.StatusCreated, conf)
}

// resetCheckout forgets the last confirmation.
func (s *Server) resetCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), localTimeout)
	defer cancel()

	if err := s.checkout.Reset(ctx); err != nil {
		s.respondFailure(w, err, "checkout unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// clearCheckoutError drops the displayed submission failure.
func (s *Server) clearCheckoutError(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), localTimeout)
	defer cancel()

	if err := s.checkout.ClearError(ctx); err != nil {
		s.respondFailure(w, err, "checkout unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// menu serves the cached catalog filtered by category and search, loading it on first use.
func (s *Server) menu(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	st, err := s.catalog.Snapshot(ctx)
	if err != nil {
		s.respondFailure(w, err, "menu unavailable")
		return
	}
	if st.Ops.Phase(catalog.OpFetch) == state.PhaseIdle {
		if _, err := s.catalog.FetchAll(ctx); err != nil {
			s.respondFailure(w, err, "Failed to fetch products")
			return
		}
		if st, err = s.catalog.Snapshot(ctx); err != nil {
			s.respondFailure(w, err, "menu unavailable")
			return
		}
	}
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, menuResponse{
		Products:   catalog.Filter(st.Products, q.Get("category"), q.Get("search")),
		Categories: st.Categories,
		Error:      st.Error,
	})
}

// refreshMenu reloads the catalog from the remote service.
func (s *Server) refreshMenu(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	if _, err := s.catalog.FetchAll(ctx); err != nil {
		s.respondFailure(w, err, "Failed to fetch products")
		return
	}
	st, err := s.catalog.Snapshot(ctx)
	if err != nil {
		s.respondFailure(w, err, "menu unavailable")
		return
	}
	writeJSON(w, http.StatusOK, menuResponse{Products: st.Products, Categories: st.Categories})
}

// getProduct loads one product and makes it the catalog's current product.
func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	p, err := s.catalog.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, err, "Product not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// listGallery fetches the gallery for the public page.
func (s *Server) listGallery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	images, err := s.gallery.FetchAll(ctx)
	if err != nil {
		s.respondFailure(w, err, "Failed to fetch gallery images")
		return
	}
	writeJSON(w, http.StatusOK, images)
}
