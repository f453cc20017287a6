// Package model defines the canonical expense record shared by all providers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the stored representation of an order timestamp: an ISO-8601
// instant at second precision. None of the provider date formats carry a
// sub-second component, so parsing and re-formatting loses nothing.
const DateLayout = "2006-01-02T15:04:05"

// MissingRestaurant is stored when a provider omits the restaurant name.
const MissingRestaurant = "NA"

// Expense is one completed order, normalized from any provider's wire schema.
type Expense struct {
	Date       time.Time
	OrderID    string
	Restaurant string
	FoodItems  string
	PostStatus string
	Cost       float64
}

// Item is a single ordered dish with its quantity.
type Item struct {
	Quantity string
	Name     string
}

// FormatItems renders ordered items as one human-readable string, e.g.
// "2 x Margherita, 1 x Garlic Bread".
func FormatItems(items []Item) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%s x %s", item.Quantity, item.Name))
	}
	return strings.Join(parts, ", ")
}
