package catalog

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"cafe/pkg/failure"
)

var (
	// ErrInvalidProduct is returned when name or category is blank.
	ErrInvalidProduct = failure.Validation("name and category are required")
	// ErrNegativePrice is returned for prices below zero.
	ErrNegativePrice = failure.Validation("price must not be negative")
	// ErrMissingID is returned by operations that address an existing product.
	ErrMissingID = failure.Validation("product id is required")
)

var validate = validator.New()

// Validate normalises whitespace and checks the rules the remote catalog would reject anyway.
func (p *Product) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	p.Description = strings.TrimSpace(p.Description)
	if err := validate.Struct(p); err != nil {
		return ErrInvalidProduct
	}
	if p.Price.IsNegative() {
		return ErrNegativePrice
	}
	return nil
}
