package service

import (
	"context"
	"errors"
	"fmt"

	"salescore/internal/repository"
	"salescore/internal/tax"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

// QuoteRequest carries decimal values as strings so the JSON layer never
// touches binary floats. unit_price and rate_percent default to the
// product master record; billing_mode is normalized and defaults to the
// tenant setting.
type QuoteRequest struct {
	ProductID   string `json:"product_id"`
	UnitPrice   string `json:"unit_price"`
	Quantity    string `json:"quantity" binding:"required"`
	RatePercent string `json:"rate_percent"`
	BillingMode string `json:"billing_mode"`
}

// --- Interface ---

// QuoteService resolves the tax configuration for a line (product master
// rate or per-line override, tenant default billing mode) and runs the tax
// engine. The engine itself stays stateless.
type QuoteService interface {
	ComputeQuote(ctx context.Context, req QuoteRequest) (tax.LineQuote, error)
}

type quoteService struct {
	productRepo repository.ProductRepository
	defaultMode tax.BillingMode
}

func NewQuoteService(productRepo repository.ProductRepository, defaultMode tax.BillingMode) QuoteService {
	if !defaultMode.Valid() {
		defaultMode = tax.BillingExclusiveGST
	}
	return &quoteService{productRepo: productRepo, defaultMode: defaultMode}
}

func (s *quoteService) ComputeQuote(ctx context.Context, req QuoteRequest) (tax.LineQuote, error) {
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		return tax.LineQuote{}, fmt.Errorf("%w: quantity %q", tax.ErrInvalidInput, req.Quantity)
	}

	unitPrice, ratePercent, err := s.resolvePriceAndRate(ctx, req)
	if err != nil {
		return tax.LineQuote{}, err
	}

	mode := tax.NormalizeBillingMode(req.BillingMode, s.defaultMode)
	return tax.ComputeLineAmounts(unitPrice, quantity, ratePercent, mode)
}

func (s *quoteService) resolvePriceAndRate(ctx context.Context, req QuoteRequest) (decimal.Decimal, decimal.Decimal, error) {
	var unitPrice, ratePercent decimal.Decimal
	havePrice, haveRate := false, false

	if req.UnitPrice != "" {
		parsed, err := decimal.NewFromString(req.UnitPrice)
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("%w: unit_price %q", tax.ErrInvalidInput, req.UnitPrice)
		}
		unitPrice, havePrice = parsed, true
	}
	if req.RatePercent != "" {
		parsed, err := decimal.NewFromString(req.RatePercent)
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("%w: rate_percent %q", tax.ErrInvalidInput, req.RatePercent)
		}
		ratePercent, haveRate = parsed, true
	}

	if havePrice && haveRate {
		return unitPrice, ratePercent, nil
	}

	// Fall back to the product master record for whatever is missing.
	if req.ProductID == "" {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: product_id required when unit_price or rate_percent is omitted", tax.ErrInvalidInput)
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: product_id %q", tax.ErrInvalidInput, req.ProductID)
	}
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, decimal.Zero, fmt.Errorf("product not found: %s", req.ProductID)
		}
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to find product %s: %w", req.ProductID, err)
	}

	if !havePrice {
		unitPrice = product.UnitPrice
	}
	if !haveRate {
		ratePercent = product.TaxRatePercent
	}
	return unitPrice, ratePercent, nil
}
