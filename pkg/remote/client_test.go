package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cafe/pkg/cart"
	"cafe/pkg/catalog"
	"cafe/pkg/checkout"
	"cafe/pkg/failure"
	"cafe/pkg/orders"
	"cafe/pkg/storage/tokenstore"
)

func newServer(t *testing.T, mux *http.ServeMux) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateOrderSendsKeyTokenAndNumericPrices(t *testing.T) {
	var (
		gotKey  string
		gotAuth string
		gotBody map[string]any
	)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/orders", func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(IdempotencyHeader)
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"o1","order_number":17,"client_name":"Ann","phone":"555","cart_items":[],"total_price":12.5,"status":"pending","created_at":"2024-05-01T10:00:00"}`)
	})
	srv := newServer(t, mux)

	tokens := tokenstore.NewMemoryStore()
	require.NoError(t, tokens.Save(context.Background(), "tok"))
	c := New(srv.URL+"/api", WithTokenSource(tokens))

	req := checkout.Request{
		Items:      []cart.LineItem{{ProductID: "p1", ProductName: "Latte", UnitPrice: decimal.RequireFromString("6.25"), Quantity: 2}},
		ClientName: "Ann",
		Phone:      "555",
		TotalPrice: decimal.RequireFromString("12.50"),
	}
	o, err := c.CreateOrder(context.Background(), "key-1", req)
	require.NoError(t, err)

	assert.Equal(t, "key-1", gotKey)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, 12.5, gotBody["total_price"])
	items := gotBody["cart_items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, 6.25, items[0].(map[string]any)["price"])

	assert.Equal(t, "o1", o.ID)
	assert.Equal(t, orders.Number("17"), o.OrderNumber)
	assert.Equal(t, orders.StatusPending, o.Status)
}

func TestRejectionCarriesDetail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/orders/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"Order not found"}`)
	})
	mux.HandleFunc("DELETE /api/orders/history/clear", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("POST /api/orders/bulk-delete", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"detail":[{"loc":["body","order_ids"],"msg":"field required"}]}`)
	})
	srv := newServer(t, mux)
	c := New(srv.URL + "/api")
	ctx := context.Background()

	err := c.UpdateOrderStatus(ctx, "42", orders.StatusReady)
	require.True(t, failure.IsRejection(err))
	assert.Equal(t, http.StatusNotFound, failure.StatusOf(err))
	assert.Equal(t, "Order not found", failure.Reason(err, "fallback"))

	err = c.ClearOrderHistory(ctx)
	require.True(t, failure.IsRejection(err))
	assert.Equal(t, "Failed to clear history", failure.Reason(err, "Failed to clear history"))

	err = c.BulkDeleteOrders(ctx, nil)
	require.True(t, failure.IsRejection(err))
	assert.Equal(t, "fallback", failure.Reason(err, "fallback"))
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).ListActiveOrders(context.Background())
	assert.True(t, failure.IsTransport(err))
	assert.Equal(t, "Failed to fetch orders", failure.Reason(err, "Failed to fetch orders"))
}

func TestNoTokenNoAuthorizationHeader(t *testing.T) {
	var auth []string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/products", func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Values("Authorization")
		_, _ = io.WriteString(w, `[{"id":"1","name":"Latte","price":"4.50","category":"Coffee"},{"id":"2","name":"Bun","price":3,"category":"Bakery"}]`)
	})
	srv := newServer(t, mux)

	products, err := New(srv.URL, WithTokenSource(tokenstore.NewMemoryStore())).ListProducts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, auth)
	require.Len(t, products, 2)
	assert.True(t, products[0].Price.Equal(decimal.RequireFromString("4.5")))
	assert.True(t, products[1].Price.Equal(decimal.NewFromInt(3)))
}

func TestProductWriteUsesIDInPath(t *testing.T) {
	var path string
	var body map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /products/{id}", func(w http.ResponseWriter, r *http.Request) {
		path = r.PathValue("id")
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = io.WriteString(w, `{"id":"p 1","name":"Mocha","price":5,"category":"Coffee"}`)
	})
	srv := newServer(t, mux)

	p, err := New(srv.URL).UpdateProduct(context.Background(), catalog.Product{ID: "p 1", Name: "Mocha", Price: decimal.NewFromInt(5), Category: "Coffee"})
	require.NoError(t, err)
	assert.Equal(t, "p 1", path)
	assert.Equal(t, "Mocha", p.Name)
	assert.Equal(t, float64(5), body["price"])
	_, hasID := body["id"]
	assert.False(t, hasID)
}

func TestVerifyAndLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/login", func(w http.ResponseWriter, r *http.Request) {
		var creds credentialsBody
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != "admin123" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"Incorrect username or password"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"jwt","token_type":"bearer","user":{"username":"admin"}}`)
	})
	mux.HandleFunc("GET /admin/verify", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer jwt" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"valid":true,"user":{"username":"admin"}}`)
	})
	srv := newServer(t, mux)
	tokens := tokenstore.NewMemoryStore()
	c := New(srv.URL, WithTokenSource(tokens))
	ctx := context.Background()

	_, err := c.Login(ctx, "admin", "nope")
	assert.Equal(t, "Incorrect username or password", failure.Reason(err, "Login failed"))

	res, err := c.Login(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.Equal(t, "jwt", res.AccessToken)

	_, err = c.Verify(ctx)
	assert.Equal(t, http.StatusUnauthorized, failure.StatusOf(err))

	require.NoError(t, tokens.Save(ctx, res.AccessToken))
	user, err := c.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)
}

func TestMetricsRecordOutcomes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})
	mux.HandleFunc("GET /orders/history", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	srv := newServer(t, mux)

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c := New(srv.URL, WithMetrics(m), WithRateLimit(100, 10))
	ctx := context.Background()

	list, err := c.ListActiveOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = c.ListOrderHistory(ctx)
	require.Error(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Requests.WithLabelValues("list_orders", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Requests.WithLabelValues("list_history", "rejected")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Latency))
}
