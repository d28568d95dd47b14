package repository

import (
	"context"

	"salescore/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ApprovalRepository interface {
	Create(ctx context.Context, decision *model.ApprovalDecision) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalDecision, error)
	FindBySource(ctx context.Context, sourceType string, sourceID uuid.UUID) (*model.ApprovalDecision, error)
	List(ctx context.Context, status string, page, limit int) ([]model.ApprovalDecision, int64, error)
	Update(ctx context.Context, decision *model.ApprovalDecision) error
}

type approvalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) Create(ctx context.Context, decision *model.ApprovalDecision) error {
	return GetDB(ctx, r.db).Create(decision).Error
}

func (r *approvalRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalDecision, error) {
	var decision model.ApprovalDecision
	if err := GetDB(ctx, r.db).First(&decision, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &decision, nil
}

func (r *approvalRepository) FindBySource(ctx context.Context, sourceType string, sourceID uuid.UUID) (*model.ApprovalDecision, error) {
	var decision model.ApprovalDecision
	err := GetDB(ctx, r.db).
		Where("source_type = ? AND source_id = ?", sourceType, sourceID).
		First(&decision).Error
	if err != nil {
		return nil, err
	}
	return &decision, nil
}

func (r *approvalRepository) List(ctx context.Context, status string, page, limit int) ([]model.ApprovalDecision, int64, error) {
	var decisions []model.ApprovalDecision
	var total int64

	query := GetDB(ctx, r.db).Model(&model.ApprovalDecision{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&decisions).Error; err != nil {
		return nil, 0, err
	}

	return decisions, total, nil
}

func (r *approvalRepository) Update(ctx context.Context, decision *model.ApprovalDecision) error {
	return GetDB(ctx, r.db).Save(decision).Error
}
