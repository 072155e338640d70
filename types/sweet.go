package types

import (
	"strings"
	"time"
)

// Sweet represents a catalog item in the shop.
// Stock is tracked as a single non-negative quantity per item.
type Sweet struct {
	// ID is the opaque unique identifier of the sweet.
	ID string `json:"id" db:"id"`

	// Name is the display name. It is unique across all sweets.
	Name string `json:"name" db:"name"`

	// Category is a free-form grouping label (e.g. "Indian", "Western").
	Category string `json:"category" db:"category"`

	// Price is the unit price. Never negative.
	Price float64 `json:"price" db:"price"`

	// Quantity is the number of units currently in stock. Never negative.
	Quantity int `json:"quantity" db:"quantity"`

	// CreatedAt is the timestamp at which the sweet was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent change to the sweet.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SweetPatch is a partial update. A nil field is left unchanged; a non-nil
// field replaces the stored value, including explicit zero values.
type SweetPatch struct {
	Name     *string  `json:"name,omitempty"`
	Category *string  `json:"category,omitempty"`
	Price    *float64 `json:"price,omitempty"`
	Quantity *int     `json:"quantity,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p SweetPatch) Empty() bool {
	return p.Name == nil && p.Category == nil && p.Price == nil && p.Quantity == nil
}

// Apply returns a copy of s with the supplied fields merged in.
func (p SweetPatch) Apply(s Sweet) Sweet {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Category != nil {
		s.Category = *p.Category
	}
	if p.Price != nil {
		s.Price = *p.Price
	}
	if p.Quantity != nil {
		s.Quantity = *p.Quantity
	}
	return s
}

// SearchFilter narrows a catalog query. Every field is optional and the
// provided ones are combined with AND. Name and Category match as
// case-insensitive substrings; price bounds are inclusive.
type SearchFilter struct {
	Name     string
	Category string
	MinPrice *float64
	MaxPrice *float64
}

// Matches reports whether s satisfies every provided filter.
func (f SearchFilter) Matches(s Sweet) bool {
	if f.Name != "" && !containsFold(s.Name, f.Name) {
		return false
	}
	if f.Category != "" && !containsFold(s.Category, f.Category) {
		return false
	}
	if f.MinPrice != nil && s.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && s.Price > *f.MaxPrice {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
