// Package httpapi exposes the café engine as a JSON API for the storefront and admin UIs.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cafe/pkg/cart"
	"cafe/pkg/catalog"
	"cafe/pkg/checkout"
	"cafe/pkg/failure"
	"cafe/pkg/gallery"
	"cafe/pkg/orders"
	"cafe/pkg/session"
	"cafe/pkg/state"
)

const (
	requestIDHeader = "X-Request-ID"
	remoteTimeout   = 5 * time.Second
	localTimeout    = 3 * time.Second
)

// Deps are the engine components the server drives. Metrics defaults to the global prometheus
// handler when nil.
type Deps struct {
	Cart     *cart.Store
	Checkout *checkout.Flow
	Orders   *orders.Manager
	Catalog  *catalog.Store
	Session  *session.Session
	Gallery  *gallery.Store
	Metrics  http.Handler
	Logger   *slog.Logger
}

// Server wires HTTP endpoints to the engine's state containers.
type Server struct {
	cart     *cart.Store
	checkout *checkout.Flow
	orders   *orders.Manager
	catalog  *catalog.Store
	session  *session.Session
	gallery  *gallery.Store
	metrics  http.Handler
	validate *validator.Validate
	logger   *slog.Logger
}

// New checks that every component is present.
func New(d Deps) (*Server, error) {
	if d.Cart == nil || d.Checkout == nil || d.Orders == nil || d.Catalog == nil || d.Session == nil || d.Gallery == nil {
		return nil, errors.New("httpapi: all engine components are required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = promhttp.Handler()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &Server{
		cart:     d.Cart,
		checkout: d.Checkout,
		orders:   d.Orders,
		catalog:  d.Catalog,
		session:  d.Session,
		gallery:  d.Gallery,
		metrics:  d.Metrics,
		validate: v,
		logger:   d.Logger.With(slog.String("component", "httpapi")),
	}, nil
}

// Handler exposes the router with storefront, admin and operational endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestID)
	r.Use(s.accessLog)

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", s.metrics)

	r.Route("/api", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", s.getCart)
			r.Delete("/", s.clearCart)
			r.Post("/items", s.addCartItem)
			r.Put("/items/{productID}", s.setCartQuantity)
			r.Delete("/items/{productID}", s.removeCartItem)
			r.Post("/open", s.cartVisibility((*cart.Store).Open))
			r.Post("/close", s.cartVisibility((*cart.Store).Close))
			r.Post("/toggle", s.cartVisibility((*cart.Store).Toggle))
		})
		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", s.checkoutStatus)
			r.Post("/", s.submitOrder)
			r.Delete("/", s.resetCheckout)
			r.Delete("/error", s.clearCheckoutError)
		})
		r.Get("/menu", s.menu)
		r.Post("/menu/refresh", s.refreshMenu)
		r.Get("/menu/{id}", s.getProduct)
		r.Get("/gallery", s.listGallery)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", s.login)
			r.Post("/logout", s.logout)
			r.Get("/session", s.sessionState)
			r.Post("/verify", s.verify)

			r.Group(func(r chi.Router) {
				r.Use(s.requireSession)
				r.Get("/dashboard", s.dashboard)

				r.Route("/orders", func(r chi.Router) {
					r.Get("/", s.listOrders)
					r.Post("/refresh", s.refreshOrders)
					r.Put("/filter", s.setOrderFilter)
					r.Post("/select-all", s.selectFilteredOrders)
					r.Delete("/selection", s.clearOrderSelection)
					r.Post("/bulk-delete", s.bulkDeleteOrders)
					r.Delete("/history", s.clearOrderHistory)
					r.Delete("/error", s.clearOrdersError)
					r.Post("/{id}/select", s.toggleOrderSelection)
					r.Put("/{id}/status", s.updateOrderStatus)
					r.Delete("/{id}", s.deleteOrder)
				})

				r.Route("/products", func(r chi.Router) {
					r.Get("/", s.listProducts)
					r.Post("/", s.createProduct)
					r.Get("/{id}", s.getProduct)
					r.Put("/{id}", s.updateProduct)
					r.Delete("/{id}", s.deleteProduct)
				})

				r.Post("/gallery", s.uploadImage)
				r.Delete("/gallery/{id}", s.deleteImage)
			})
		})
	})
	return r
}

// health answers liveness probes without touching the remote API.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestID propagates or assigns an id so log lines of one request can be correlated.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// accessLog records method, route and status of every request at debug level.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request served",
			slog.String("request_id", ww.Header().Get(requestIDHeader)),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)))
	})
}

// requireSession lets only authenticated admins through. A token whose exp has passed is checked
// with the remote service before it is trusted.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
		defer cancel()

		st, err := s.session.Snapshot(ctx)
		if err != nil {
			s.respondFailure(w, err, "session unavailable")
			return
		}
		authenticated := st.Authenticated
		if authenticated && st.Expired(time.Now()) {
			authenticated, _ = s.session.Verify(ctx)
		}
		if !authenticated {
			s.respondError(w, "not authenticated", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return failure.Validation("invalid JSON")
	}
	return nil
}

// decode reads a JSON body into dst and runs struct validation on it.
func (s *Server) decode(r *http.Request, dst any) error {
	if err := decodeJSON(r, dst); err != nil {
		return err
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Tag() == "required" {
				return failure.Validation(fmt.Sprintf("%s is required", fe.Field()))
			}
			return failure.Validation(fmt.Sprintf("invalid %s", fe.Field()))
		}
		return failure.Validation(err.Error())
	}
	return nil
}

// statusFor maps the failure taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, checkout.ErrSubmissionInFlight):
		return http.StatusConflict
	case errors.Is(err, state.ErrBusy), errors.Is(err, state.ErrClosed):
		return http.StatusServiceUnavailable
	}
	switch failure.KindOf(err) {
	case failure.KindValidation:
		return http.StatusBadRequest
	case failure.KindAuthExpiry:
		return http.StatusUnauthorized
	case failure.KindRejection:
		switch failure.StatusOf(err) {
		case http.StatusUnauthorized, http.StatusForbidden:
			return http.StatusUnauthorized
		case http.StatusNotFound:
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	case failure.KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondFailure writes the user-facing reason of err with the matching status.
func (s *Server) respondFailure(w http.ResponseWriter, err error, fallback string) {
	status := statusFor(err)
	message := failure.Reason(err, fallback)
	if status == http.StatusServiceUnavailable {
		message = err.Error()
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", slog.Int("status", status), slog.String("error", err.Error()))
	}
	s.respondError(w, message, status)
}

// respondError keeps JSON formatting consistent across endpoints.
func (s *Server) respondError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
