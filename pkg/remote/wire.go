package remote

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"cafe/pkg/cart"
	"cafe/pkg/catalog"
	"cafe/pkg/checkout"
)

// number renders a decimal as a bare JSON number; the API rejects quoted prices.
func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

type productBody struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Price       json.Number `json:"price"`
	Category    string      `json:"category"`
	Image       string      `json:"image,omitempty"`
}

func newProductBody(p catalog.Product) productBody {
	return productBody{
		Name:        p.Name,
		Description: p.Description,
		Price:       number(p.Price),
		Category:    p.Category,
		Image:       p.Image,
	}
}

type lineItemBody struct {
	ProductID   string      `json:"product_id"`
	ProductName string      `json:"product_name"`
	Price       json.Number `json:"price"`
	Quantity    int         `json:"quantity"`
	Image       string      `json:"image,omitempty"`
}

type orderBody struct {
	Items      []lineItemBody `json:"cart_items"`
	ClientName string         `json:"client_name"`
	Phone      string         `json:"phone"`
	TotalPrice json.Number    `json:"total_price"`
}

func newOrderBody(req checkout.Request) orderBody {
	items := make([]lineItemBody, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, newLineItemBody(it))
	}
	return orderBody{
		Items:      items,
		ClientName: req.ClientName,
		Phone:      req.Phone,
		TotalPrice: number(req.TotalPrice),
	}
}

func newLineItemBody(it cart.LineItem) lineItemBody {
	return lineItemBody{
		ProductID:   it.ProductID,
		ProductName: it.ProductName,
		Price:       number(it.UnitPrice),
		Quantity:    it.Quantity,
		Image:       it.Image,
	}
}

type statusBody struct {
	Status string `json:"status"`
}

type bulkDeleteBody struct {
	OrderIDs []string `json:"order_ids"`
}

type credentialsBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
