package catalog

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Product is one menu entry as owned by the remote catalog.
type Product struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category" validate:"required"`
	Image       string          `json:"image"`
}

// FilterAll disables the category filter.
const FilterAll = "all"

// Filter narrows products by category and a case-insensitive search over name and description.
func Filter(products []Product, category, search string) []Product {
	category = strings.TrimSpace(category)
	needle := strings.ToLower(strings.TrimSpace(search))
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if category != "" && category != FilterAll && p.Category != category {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.Description), needle) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// deriveCategories lists distinct categories in first-seen order.
func deriveCategories(products []Product) []string {
	categories := make([]string, 0)
	for _, p := range products {
		categories = addCategory(categories, p.Category)
	}
	return categories
}

// addCategory appends category unless it is already present.
func addCategory(categories []string, category string) []string {
	for _, c := range categories {
		if c == category {
			return categories
		}
	}
	return append(categories, category)
}

func cloneProducts(src []Product) []Product {
	if src == nil {
		return nil
	}
	out := make([]Product, len(src))
	copy(out, src)
	return out
}
