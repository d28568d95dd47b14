package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"salescore/internal/ledger"
	"salescore/internal/model"
	"salescore/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateProductRequest struct {
	SKU            string `json:"sku" binding:"required"`
	Name           string `json:"name" binding:"required"`
	OnHand         int    `json:"on_hand" binding:"min=0"`
	UnitPrice      string `json:"unit_price" binding:"required"`
	TaxRatePercent string `json:"tax_rate_percent"`
}

type UpdateProductRequest struct {
	SKU            string `json:"sku" binding:"required"`
	Name           string `json:"name" binding:"required"`
	UnitPrice      string `json:"unit_price" binding:"required"`
	TaxRatePercent string `json:"tax_rate_percent"`
}

type ProductResponse struct {
	ID             string `json:"id"`
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	OnHand         int    `json:"on_hand"`
	UnitPrice      string `json:"unit_price"`
	TaxRatePercent string `json:"tax_rate_percent"`
}

// --- Interface ---

type ProductService interface {
	GetProducts(ctx context.Context, page, limit int, search string) ([]ProductResponse, int64, error)
	CreateProduct(ctx context.Context, userID string, req CreateProductRequest) (ProductResponse, error)
	UpdateProduct(ctx context.Context, userID string, id string, req UpdateProductRequest) (ProductResponse, error)
	GetAvailability(ctx context.Context, id string) (ledger.Availability, error)
	GetMovements(ctx context.Context, id string, page, limit int) ([]model.StockMovement, int64, error)
}

type productService struct {
	productRepo  repository.ProductRepository
	movementRepo repository.MovementRepository
	resolver     *ledger.AvailabilityResolver
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
}

func NewProductService(
	productRepo repository.ProductRepository,
	movementRepo repository.MovementRepository,
	resolver *ledger.AvailabilityResolver,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) ProductService {
	return &productService{
		productRepo:  productRepo,
		movementRepo: movementRepo,
		resolver:     resolver,
		auditRepo:    auditRepo,
		txManager:    txManager,
	}
}

func (s *productService) GetProducts(ctx context.Context, page, limit int, search string) ([]ProductResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	products, total, err := s.productRepo.List(ctx, page, limit, search)
	if err != nil {
		return nil, 0, err
	}

	res := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		res = append(res, toProductResponse(&p))
	}

	return res, total, nil
}

func (s *productService) CreateProduct(ctx context.Context, userID string, req CreateProductRequest) (ProductResponse, error) {
	unitPrice, ratePercent, err := parseProductDecimals(req.UnitPrice, req.TaxRatePercent)
	if err != nil {
		return ProductResponse{}, err
	}

	product := model.Product{
		SKU:            req.SKU,
		Name:           req.Name,
		OnHand:         req.OnHand,
		UnitPrice:      unitPrice,
		TaxRatePercent: ratePercent,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.productRepo.Create(txCtx, &product); err != nil {
			return fmt.Errorf("failed to create product: %w", err)
		}

		details, _ := json.Marshal(req)
		audit := &model.AuditLog{
			UserID:     parseUserID(userID),
			Action:     model.ActionCreateProduct,
			EntityID:   product.ID.String(),
			EntityName: product.Name,
			Details:    string(details),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return ProductResponse{}, err
	}

	return toProductResponse(&product), nil
}

func (s *productService) UpdateProduct(ctx context.Context, userID string, id string, req UpdateProductRequest) (ProductResponse, error) {
	productID, err := uuid.Parse(id)
	if err != nil {
		return ProductResponse{}, fmt.Errorf("invalid product id: %w", err)
	}

	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ProductResponse{}, errors.New("product not found")
		}
		return ProductResponse{}, fmt.Errorf("database error: %w", err)
	}

	unitPrice, ratePercent, err := parseProductDecimals(req.UnitPrice, req.TaxRatePercent)
	if err != nil {
		return ProductResponse{}, err
	}

	product.SKU = req.SKU
	product.Name = req.Name
	product.UnitPrice = unitPrice
	product.TaxRatePercent = ratePercent

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.productRepo.Update(txCtx, product); err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}

		details, _ := json.Marshal(req)
		audit := &model.AuditLog{
			UserID:     parseUserID(userID),
			Action:     model.ActionUpdateProduct,
			EntityID:   product.ID.String(),
			EntityName: product.Name,
			Details:    string(details),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return ProductResponse{}, err
	}

	return toProductResponse(product), nil
}

func (s *productService) GetAvailability(ctx context.Context, id string) (ledger.Availability, error) {
	productID, err := uuid.Parse(id)
	if err != nil {
		return ledger.Availability{}, fmt.Errorf("invalid product id: %w", err)
	}
	return s.resolver.GetAvailable(ctx, productID)
}

func (s *productService) GetMovements(ctx context.Context, id string, page, limit int) ([]model.StockMovement, int64, error) {
	productID, err := uuid.Parse(id)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid product id: %w", err)
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return s.movementRepo.ListByProduct(ctx, productID, page, limit)
}

// --- helpers ---

func parseProductDecimals(priceStr, rateStr string) (decimal.Decimal, decimal.Decimal, error) {
	unitPrice, err := decimal.NewFromString(priceStr)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid unit_price: %w", err)
	}
	ratePercent := decimal.Zero
	if rateStr != "" {
		ratePercent, err = decimal.NewFromString(rateStr)
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("invalid tax_rate_percent: %w", err)
		}
	}
	if unitPrice.IsNegative() || ratePercent.IsNegative() {
		return decimal.Zero, decimal.Zero, errors.New("unit_price and tax_rate_percent must be non-negative")
	}
	return unitPrice, ratePercent, nil
}

func toProductResponse(p *model.Product) ProductResponse {
	return ProductResponse{
		ID:             p.ID.String(),
		SKU:            p.SKU,
		Name:           p.Name,
		OnHand:         p.OnHand,
		UnitPrice:      p.UnitPrice.StringFixed(2),
		TaxRatePercent: p.TaxRatePercent.StringFixed(2),
	}
}
