package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ProductView is the externally visible shape of a product.
type ProductView struct {
	ID              string              `json:"id"`
	Code            string              `json:"article"`
	Name            string              `json:"name"`
	Description     *string             `json:"description"`
	Price           decimal.Decimal     `json:"price"`
	SalePrice       decimal.NullDecimal `json:"salePrice"`
	OnSale          bool                `json:"isOnSale"`
	DiscountPercent int64               `json:"discountPercent"`
	Quantity        int                 `json:"quantity"`
	Category        *string             `json:"category"`
	Weight          decimal.NullDecimal `json:"weight"`
	ImageRef        *string             `json:"imageReference"`
	ImageURL        string              `json:"imageUrl,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// Page is one slice of an ordered listing. Page numbers start at 1.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPage fills in the derived page count
func NewPage[T any](items []T, page, pageSize, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	return Page[T]{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}
}

// DiscountPercent is round((price - salePrice) / price * 100) for a product
// on sale with a sale price and positive price, and 0 otherwise.
func DiscountPercent(price decimal.Decimal, salePrice decimal.NullDecimal, onSale bool) int64 {
	if !onSale || !salePrice.Valid || !price.IsPositive() {
		return 0
	}
	return price.Sub(salePrice.Decimal).Div(price).Mul(hundred).Round(0).IntPart()
}

// PublicImageURL turns a stored reference into an absolute URL. Fully
// qualified references pass through unchanged.
func PublicImageURL(ref *string, baseURL string) string {
	if ref == nil || *ref == "" {
		return ""
	}
	if strings.HasPrefix(*ref, "http://") || strings.HasPrefix(*ref, "https://") {
		return *ref
	}
	base := strings.TrimRight(baseURL, "/")
	if strings.HasPrefix(*ref, "/") {
		return base + *ref
	}
	return base + "/" + *ref
}

// ToView maps a stored product to its response shape
func ToView(p *Product, baseURL string) ProductView {
	return ProductView{
		ID:              p.ID.String(),
		Code:            p.Code,
		Name:            p.Name,
		Description:     p.Description,
		Price:           p.Price,
		SalePrice:       p.SalePrice,
		OnSale:          p.OnSale,
		DiscountPercent: DiscountPercent(p.Price, p.SalePrice, p.OnSale),
		Quantity:        p.Quantity,
		Category:        p.Category,
		Weight:          p.Weight,
		ImageRef:        p.ImageRef,
		ImageURL:        PublicImageURL(p.ImageRef, baseURL),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// ToViews maps a slice, never returning nil
func ToViews(products []*Product, baseURL string) []ProductView {
	views := make([]ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, ToView(p, baseURL))
	}
	return views
}
