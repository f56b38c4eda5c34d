package catalog

import (
	"fmt"
	"time"

	"github.com/ariefcatur/astro-motors/internal/apperr"
	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryClassic Category = "classic"
	CategorySports  Category = "sports"
	CategoryLuxury  Category = "luxury"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryClassic, CategorySports, CategoryLuxury:
		return true
	}
	return false
}

type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	OldPrice    decimal.NullDecimal
	ImageURL    string
	Category    Category
	Stock       int
	IsOffer     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p Product) Available() bool { return p.Stock > 0 }

func (p Product) Validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: name is required", apperr.ErrValidation)
	case p.Price.IsNegative():
		return fmt.Errorf("%w: price must be >= 0", apperr.ErrValidation)
	case p.OldPrice.Valid && p.OldPrice.Decimal.IsNegative():
		return fmt.Errorf("%w: old price must be >= 0", apperr.ErrValidation)
	case p.Stock < 0:
		return fmt.Errorf("%w: stock must be >= 0", apperr.ErrValidation)
	case !p.Category.Valid():
		return fmt.Errorf("%w: unknown category %q", apperr.ErrValidation, p.Category)
	}
	return nil
}

// Patch is a partial update: nil fields keep the stored value.
type Patch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	OldPrice    *decimal.NullDecimal
	ImageURL    *string
	Category    *Category
	Stock       *int
	IsOffer     *bool
}

func (pt Patch) Apply(p Product) Product {
	if pt.Name != nil {
		p.Name = *pt.Name
	}
	if pt.Description != nil {
		p.Description = *pt.Description
	}
	if pt.Price != nil {
		p.Price = pt.Price.Round(2)
	}
	if pt.OldPrice != nil {
		p.OldPrice = *pt.OldPrice
	}
	if pt.ImageURL != nil {
		p.ImageURL = *pt.ImageURL
	}
	if pt.Category != nil {
		p.Category = *pt.Category
	}
	if pt.Stock != nil {
		p.Stock = *pt.Stock
	}
	if pt.IsOffer != nil {
		p.IsOffer = *pt.IsOffer
	}
	return p
}

// StockError reports a product that cannot cover the requested quantity.
type StockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return apperr.ErrInsufficientStock }

type Filter struct {
	Category  Category
	OfferOnly bool
}
