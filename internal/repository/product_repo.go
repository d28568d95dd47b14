package repository

import (
	"context"
	"fmt"

	"salescore/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	Update(ctx context.Context, product *model.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	FindBySKU(ctx context.Context, sku string) (*model.Product, error)
	List(ctx context.Context, page, limit int, search string) ([]model.Product, int64, error)

	// ledger.InventoryStore
	GetOnHand(ctx context.Context, productID uuid.UUID) (int, error)
	DecrementOnHand(ctx context.Context, productID uuid.UUID, qty int) (int, error)
	IncrementOnHand(ctx context.Context, productID uuid.UUID, qty int) (int, error)
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(ctx context.Context, product *model.Product) error {
	return GetDB(ctx, r.db).Create(product).Error
}

func (r *productRepository) Update(ctx context.Context, product *model.Product) error {
	return GetDB(ctx, r.db).Save(product).Error
}

func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var product model.Product
	if err := GetDB(ctx, r.db).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) FindBySKU(ctx context.Context, sku string) (*model.Product, error) {
	var product model.Product
	if err := GetDB(ctx, r.db).Where("sku = ?", sku).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) List(ctx context.Context, page, limit int, search string) ([]model.Product, int64, error) {
	var products []model.Product
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Product{})
	if search != "" {
		db = db.Where("name ILIKE ?", "%"+search+"%")
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("created_at desc").Offset(offset).Limit(limit).Find(&products).Error; err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

func (r *productRepository) GetOnHand(ctx context.Context, productID uuid.UUID) (int, error) {
	var product model.Product
	if err := GetDB(ctx, r.db).Select("on_hand").First(&product, "id = ?", productID).Error; err != nil {
		return 0, err
	}
	return product.OnHand, nil
}

func (r *productRepository) DecrementOnHand(ctx context.Context, productID uuid.UUID, qty int) (int, error) {
	return r.applyDelta(ctx, productID, -qty)
}

func (r *productRepository) IncrementOnHand(ctx context.Context, productID uuid.UUID, qty int) (int, error) {
	return r.applyDelta(ctx, productID, qty)
}

// applyDelta re-reads the row FOR UPDATE so concurrent writers from other
// instances serialize at the database even when the in-process product lock
// is not shared with them.
func (r *productRepository) applyDelta(ctx context.Context, productID uuid.UUID, delta int) (int, error) {
	db := GetDB(ctx, r.db)

	var product model.Product
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", productID).First(&product).Error; err != nil {
		return 0, err
	}

	stockAfter := product.OnHand + delta
	if stockAfter < 0 {
		return 0, fmt.Errorf("on-hand for product %s would go negative (%d)", productID, stockAfter)
	}

	if err := db.Model(&product).Update("on_hand", stockAfter).Error; err != nil {
		return 0, err
	}
	return stockAfter, nil
}
