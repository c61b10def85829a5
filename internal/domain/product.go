package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product represents a catalog record. Code (the article) is unique among
// non-deleted products and never changes after creation.
type Product struct {
	ID          uuid.UUID           `json:"id" db:"id"`
	Code        string              `json:"article" db:"article"`
	Name        string              `json:"name" db:"name"`
	Description *string             `json:"description" db:"description"`
	Price       decimal.Decimal     `json:"price" db:"price"`
	SalePrice   decimal.NullDecimal `json:"sale_price" db:"sale_price"`
	OnSale      bool                `json:"is_on_sale" db:"is_on_sale"`
	Quantity    int                 `json:"quantity" db:"quantity"`
	Category    *string             `json:"category" db:"category"`
	Weight      decimal.NullDecimal `json:"weight" db:"weight"`
	ImageRef    *string             `json:"image_url" db:"image_url"`
	Deleted     bool                `json:"is_deleted" db:"is_deleted"`
	CreatedAt   time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at" db:"updated_at"`
}

// HasImage reports whether an asset is attached
func (p *Product) HasImage() bool {
	return p.ImageRef != nil && *p.ImageRef != ""
}

// Clone returns a deep copy so callers can mutate without aliasing pointers.
func (p *Product) Clone() *Product {
	c := *p
	c.Description = cloneString(p.Description)
	c.Category = cloneString(p.Category)
	c.ImageRef = cloneString(p.ImageRef)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
