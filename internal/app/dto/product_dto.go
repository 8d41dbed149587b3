package dto

import (
	"github.com/mrops-br/offline-catalog/internal/domain"
	"github.com/shopspring/decimal"
)

// ProductResponse represents a product in the filtered view
type ProductResponse struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Category   string          `json:"category"`
	Price      decimal.Decimal `json:"price"`
	TaxRate    decimal.Decimal `json:"tax"`
	Image      *string         `json:"image,omitempty"`
	IsFavorite bool            `json:"is_favorite"`
}

// StateResponse is a snapshot of the coordinator's observable state
type StateResponse struct {
	IsLoading     bool   `json:"is_loading"`
	IsOffline     bool   `json:"is_offline"`
	SearchText    string `json:"search_text"`
	FavoritesOnly bool   `json:"favorites_only"`
	SortMode      string `json:"sort_mode"`
	ErrorMessage  string `json:"error_message,omitempty"`
	AlertMessage  string `json:"alert_message,omitempty"`
	ProductCount  int    `json:"product_count"`
	PendingCount  int    `json:"pending_count"`
}

// AddProductResult reports the outcome of an add request.
// Queued is set when the product was stored locally for a later sync.
type AddProductResult struct {
	Success bool   `json:"success"`
	Queued  bool   `json:"queued"`
	Message string `json:"message"`
}

// ToProductResponse converts a domain Product to ProductResponse
func ToProductResponse(p domain.Product) *ProductResponse {
	return &ProductResponse{
		ID:         p.ID,
		Name:       p.Name,
		Category:   p.Category,
		Price:      p.Price,
		TaxRate:    p.TaxRate,
		Image:      p.Image,
		IsFavorite: p.IsFavorite,
	}
}

// ToProductResponseList converts a list of domain Products to ProductResponse list
func ToProductResponseList(products []domain.Product) []*ProductResponse {
	responses := make([]*ProductResponse, len(products))
	for i, p := range products {
		responses[i] = ToProductResponse(p)
	}
	return responses
}
