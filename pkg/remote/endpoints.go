package remote

import (
	"context"
	"net/http"
	"net/url"

	"cafe/pkg/catalog"
	"cafe/pkg/checkout"
	"cafe/pkg/gallery"
	"cafe/pkg/orders"
	"cafe/pkg/session"
)

// Login calls POST /admin/login.
func (c *Client) Login(ctx context.Context, username, password string) (session.LoginResult, error) {
	var out session.LoginResult
	err := c.do(ctx, request{op: "login", method: http.MethodPost, path: "/admin/login",
		body: credentialsBody{Username: username, Password: password}}, &out)
	return out, err
}

// Verify calls GET /admin/verify with the stored token.
func (c *Client) Verify(ctx context.Context) (session.User, error) {
	var out struct {
		User session.User `json:"user"`
	}
	err := c.do(ctx, request{op: "verify", method: http.MethodGet, path: "/admin/verify"}, &out)
	return out.User, err
}

// DashboardStats calls GET /admin/dashboard.
func (c *Client) DashboardStats(ctx context.Context) (orders.Stats, error) {
	var out orders.Stats
	err := c.do(ctx, request{op: "dashboard", method: http.MethodGet, path: "/admin/dashboard"}, &out)
	return out, err
}

// ListProducts calls GET /products.
func (c *Client) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	var out []catalog.Product
	err := c.do(ctx, request{op: "list_products", method: http.MethodGet, path: "/products"}, &out)
	return out, err
}

// GetProduct calls GET /products/{id}.
func (c *Client) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	var out catalog.Product
	err := c.do(ctx, request{op: "get_product", method: http.MethodGet, path: "/products/" + url.PathEscape(id)}, &out)
	return out, err
}

// CreateProduct calls POST /products.
func (c *Client) CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	var out catalog.Product
	err := c.do(ctx, request{op: "create_product", method: http.MethodPost, path: "/products", body: newProductBody(p)}, &out)
	return out, err
}

// UpdateProduct calls PUT /products/{id}.
func (c *Client) UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	var out catalog.Product
	err := c.do(ctx, request{op: "update_product", method: http.MethodPut, path: "/products/" + url.PathEscape(p.ID),
		body: newProductBody(p)}, &out)
	return out, err
}

// DeleteProduct calls DELETE /products/{id}.
func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	return c.do(ctx, request{op: "delete_product", method: http.MethodDelete, path: "/products/" + url.PathEscape(id)}, nil)
}

// CreateOrder calls POST /orders. The key is sent as the Idempotency-Key header.
func (c *Client) CreateOrder(ctx context.Context, idempotencyKey string, req checkout.Request) (orders.Order, error) {
	var out orders.Order
	r := request{op: "create_order", method: http.MethodPost, path: "/orders", body: newOrderBody(req)}
	if idempotencyKey != "" {
		r.headers = map[string]string{IdempotencyHeader: idempotencyKey}
	}
	err := c.do(ctx, r, &out)
	return out, err
}

// ListActiveOrders calls GET /orders.
func (c *Client) ListActiveOrders(ctx context.Context) ([]orders.Order, error) {
	var out []orders.Order
	err := c.do(ctx, request{op: "list_orders", method: http.MethodGet, path: "/orders"}, &out)
	return out, err
}

// ListOrderHistory calls GET /orders/history.
func (c *Client) ListOrderHistory(ctx context.Context) ([]orders.Order, error) {
	var out []orders.Order
	err := c.do(ctx, request{op: "list_history", method: http.MethodGet, path: "/orders/history"}, &out)
	return out, err
}

// UpdateOrderStatus calls PUT /orders/{id}/status.
func (c *Client) UpdateOrderStatus(ctx context.Context, id string, status orders.Status) error {
	return c.do(ctx, request{op: "update_status", method: http.MethodPut, path: "/orders/" + url.PathEscape(id) + "/status",
		body: statusBody{Status: string(status)}}, nil)
}

// DeleteOrder calls DELETE /orders/{id}.
func (c *Client) DeleteOrder(ctx context.Context, id string) error {
	return c.do(ctx, request{op: "delete_order", method: http.MethodDelete, path: "/orders/" + url.PathEscape(id)}, nil)
}

// BulkDeleteOrders calls POST /orders/bulk-delete.
func (c *Client) BulkDeleteOrders(ctx context.Context, ids []string) error {
	return c.do(ctx, request{op: "bulk_delete", method: http.MethodPost, path: "/orders/bulk-delete",
		body: bulkDeleteBody{OrderIDs: ids}}, nil)
}

// ClearOrderHistory calls DELETE /orders/history/clear.
func (c *Client) ClearOrderHistory(ctx context.Context) error {
	return c.do(ctx, request{op: "clear_history", method: http.MethodDelete, path: "/orders/history/clear"}, nil)
}

// ListGalleryImages calls GET /gallery.
func (c *Client) ListGalleryImages(ctx context.Context) ([]gallery.Image, error) {
	var out []gallery.Image
	err := c.do(ctx, request{op: "list_gallery", method: http.MethodGet, path: "/gallery"}, &out)
	return out, err
}

// UploadGalleryImage calls POST /gallery.
func (c *Client) UploadGalleryImage(ctx context.Context, u gallery.Upload) (gallery.Image, error) {
	var out gallery.Image
	err := c.do(ctx, request{op: "upload_gallery", method: http.MethodPost, path: "/gallery", body: u}, &out)
	return out, err
}

// DeleteGalleryImage calls DELETE /gallery/{id}.
func (c *Client) DeleteGalleryImage(ctx context.Context, id string) error {
	return c.do(ctx, request{op: "delete_gallery", method: http.MethodDelete, path: "/gallery/" + url.PathEscape(id)}, nil)
}
