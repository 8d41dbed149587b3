package remote

import (
	"fmt"
	"strings"

	"github.com/mrops-br/offline-catalog/internal/domain"
	"github.com/shopspring/decimal"
)

// productPayload mirrors the API product schema. Pointer fields let the
// decoder tell an absent key from a zero value.
type productPayload struct {
	Image       *string          `json:"image"`
	Price       *decimal.Decimal `json:"price"`
	ProductName *string          `json:"product_name"`
	ProductType *string          `json:"product_type"`
	Tax         *decimal.Decimal `json:"tax"`
}

type submitResponse struct {
	Message        *string         `json:"message"`
	ProductDetails *productPayload `json:"product_details"`
	ProductID      *int64          `json:"product_id"`
	Success        *bool           `json:"success"`
}

func (p *productPayload) missing() []string {
	var fields []string
	if p.Price == nil {
		fields = append(fields, "price")
	}
	if p.ProductName == nil {
		fields = append(fields, "product_name")
	}
	if p.ProductType == nil {
		fields = append(fields, "product_type")
	}
	if p.Tax == nil {
		fields = append(fields, "tax")
	}
	return fields
}

func (p *productPayload) toDomain() (domain.Product, error) {
	if fields := p.missing(); len(fields) > 0 {
		return domain.Product{}, fmt.Errorf("%w: product missing %s", domain.ErrDecoding, strings.Join(fields, ", "))
	}
	return domain.NewProduct(*p.ProductName, *p.ProductType, *p.Price, *p.Tax, p.Image), nil
}

// toDomain validates the envelope. product_details and product_id are only
// required when the server reports success.
func (r *submitResponse) toDomain() (*domain.SubmissionResult, error) {
	var fields []string
	if r.Success == nil {
		fields = append(fields, "success")
	}
	if r.Message == nil {
		fields = append(fields, "message")
	}
	if r.Success != nil && *r.Success {
		if r.ProductDetails == nil {
			fields = append(fields, "product_details")
		}
		if r.ProductID == nil {
			fields = append(fields, "product_id")
		}
	}
	if len(fields) > 0 {
		return nil, fmt.Errorf("%w: response missing %s", domain.ErrDecoding, strings.Join(fields, ", "))
	}

	result := &domain.SubmissionResult{
		Success: *r.Success,
		Message: *r.Message,
	}
	if r.ProductID != nil {
		result.ProductID = *r.ProductID
	}
	if r.ProductDetails != nil {
		product, err := r.ProductDetails.toDomain()
		if err != nil {
			return nil, err
		}
		result.Product = product
	}
	return result, nil
}
