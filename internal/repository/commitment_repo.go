package repository

import (
	"context"
	"errors"

	"salescore/internal/ledger"
	"salescore/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CommitmentRepository interface {
	ledger.CommitmentStore
	ListBySource(ctx context.Context, sourceType string, sourceID uuid.UUID) ([]model.Commitment, error)
}

type commitmentRepository struct {
	db *gorm.DB
}

func NewCommitmentRepository(db *gorm.DB) CommitmentRepository {
	return &commitmentRepository{db: db}
}

func (r *commitmentRepository) Create(ctx context.Context, c *model.Commitment) error {
	return GetDB(ctx, r.db).Create(c).Error
}

func (r *commitmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Commitment, error) {
	var c model.Commitment
	if err := GetDB(ctx, r.db).First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledger.ErrCommitmentNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *commitmentRepository) FindActiveByLineItem(ctx context.Context, sourceType string, sourceID, lineItemID uuid.UUID) (*model.Commitment, error) {
	var c model.Commitment
	err := GetDB(ctx, r.db).
		Where("source_type = ? AND source_id = ? AND line_item_id = ? AND state = ?",
			sourceType, sourceID, lineItemID, model.CommitmentActive).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledger.ErrCommitmentNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *commitmentRepository) ListActiveBySource(ctx context.Context, sourceType string, sourceID uuid.UUID) ([]model.Commitment, error) {
	var commitments []model.Commitment
	err := GetDB(ctx, r.db).
		Where("source_type = ? AND source_id = ? AND state = ?", sourceType, sourceID, model.CommitmentActive).
		Order("created_at asc").
		Find(&commitments).Error
	if err != nil {
		return nil, err
	}
	return commitments, nil
}

func (r *commitmentRepository) ListBySource(ctx context.Context, sourceType string, sourceID uuid.UUID) ([]model.Commitment, error) {
	var commitments []model.Commitment
	err := GetDB(ctx, r.db).
		Where("source_type = ? AND source_id = ?", sourceType, sourceID).
		Order("created_at asc").
		Find(&commitments).Error
	if err != nil {
		return nil, err
	}
	return commitments, nil
}

func (r *commitmentRepository) SumActiveOutbound(ctx context.Context, productID uuid.UUID) (int, error) {
	var total int64
	err := GetDB(ctx, r.db).Model(&model.Commitment{}).
		Where("product_id = ? AND state = ? AND direction = ?",
			productID, model.CommitmentActive, model.DirectionOutbound).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

func (r *commitmentRepository) UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int) error {
	return GetDB(ctx, r.db).Model(&model.Commitment{}).
		Where("id = ?", id).Update("quantity", quantity).Error
}

func (r *commitmentRepository) SetState(ctx context.Context, id uuid.UUID, state string) error {
	return GetDB(ctx, r.db).Model(&model.Commitment{}).
		Where("id = ?", id).Update("state", state).Error
}
