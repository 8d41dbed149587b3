package domain

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Categories presented by the UI. The remote API accepts any string.
const (
	CategoryProduct = "Product"
	CategoryService = "Service"
)

var maxTaxRate = decimal.NewFromInt(100)

// Product represents a catalog item as seen by the client
type Product struct {
	// ID is minted per decode and never persisted; use PersistentID for identity.
	ID         string
	Image      *string
	Price      decimal.Decimal
	Name       string
	Category   string
	TaxRate    decimal.Decimal
	IsFavorite bool
}

// NewProduct creates a product with a fresh ephemeral identifier
func NewProduct(name, category string, price, taxRate decimal.Decimal, image *string) Product {
	return Product{
		ID:       uuid.New().String(),
		Image:    image,
		Price:    price,
		Name:     name,
		Category: category,
		TaxRate:  taxRate,
	}
}

// PersistentID is the stable identity used for favorite tracking.
func (p Product) PersistentID() string {
	return p.Name
}

// HasImage reports whether the product carries a non-blank image URI
func (p Product) HasImage() bool {
	return p.Image != nil && strings.TrimSpace(*p.Image) != ""
}

// PendingWrite is a product creation accepted locally but not yet confirmed
// by the server. The JSON layout is the persisted queue format.
type PendingWrite struct {
	Name     string          `json:"name"`
	Category string          `json:"type"`
	Price    decimal.Decimal `json:"price"`
	TaxRate  decimal.Decimal `json:"tax"`
	Image    []byte          `json:"imageData,omitempty"`
}

// SubmissionResult is the server's answer to a product submission
type SubmissionResult struct {
	Success   bool
	Message   string
	Product   Product
	ProductID int64
}

// FavoriteSet maps a product persistent identifier to its favorite flag.
// A missing key means "not favorite".
type FavoriteSet map[string]bool

// IsFavorite reports the flag for key, defaulting to false
func (f FavoriteSet) IsFavorite(key string) bool {
	return f[key]
}

// SortMode selects the ordering of the filtered product view
type SortMode string

const (
	SortDefault         SortMode = "default"
	SortPriceAscending  SortMode = "price_asc"
	SortPriceDescending SortMode = "price_desc"
)

// ParseSortMode maps a wire value to a SortMode, falling back to SortDefault
func ParseSortMode(s string) SortMode {
	switch SortMode(s) {
	case SortPriceAscending:
		return SortPriceAscending
	case SortPriceDescending:
		return SortPriceDescending
	default:
		return SortDefault
	}
}

// Validate checks a new product before it is handed to the catalog
func (w PendingWrite) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return ErrInvalidProductName
	}
	if !w.Price.IsPositive() {
		return ErrInvalidProductPrice
	}
	if w.TaxRate.IsNegative() || w.TaxRate.GreaterThan(maxTaxRate) {
		return ErrInvalidTaxRate
	}
	return nil
}
