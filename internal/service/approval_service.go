package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"salescore/internal/ledger"
	"salescore/internal/model"
	"salescore/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateApprovalRequestDTO struct {
	SourceType  string `json:"source_type" binding:"required,oneof=SALES_ORDER PURCHASE_ORDER"`
	SourceID    string `json:"source_id" binding:"required"`
	RequestedBy string `json:"requested_by"`
}

type ApprovalFilter struct {
	Status string // PENDING, APPROVED, REJECTED or empty for all
	Page   int
	Limit  int
}

type RejectRequestDTO struct {
	Reason string `json:"reason"`
}

type ApprovalDecisionResponse struct {
	ID              string  `json:"id"`
	SourceType      string  `json:"source_type"`
	SourceID        string  `json:"source_id"`
	Status          string  `json:"status"`
	RequestedBy     *string `json:"requested_by"`
	DecidedBy       *string `json:"decided_by"`
	DecidedAt       *string `json:"decided_at"`
	RejectionReason string  `json:"rejection_reason"`
	CreatedAt       string  `json:"created_at"`
}

// --- Interface ---

// ApprovalService records and decides approval requests for order sources.
// It also implements ApprovalGate for the lifecycle coordinator. Rejecting a
// request releases the source's commitments immediately — for ledger
// purposes a rejection is a terminal-without-fulfillment transition.
type ApprovalService interface {
	ApprovalGate
	CreateRequest(ctx context.Context, req CreateApprovalRequestDTO) (ApprovalDecisionResponse, error)
	ListRequests(ctx context.Context, filter ApprovalFilter) ([]ApprovalDecisionResponse, int64, error)
	Approve(ctx context.Context, id string, userID string) (ApprovalDecisionResponse, error)
	Reject(ctx context.Context, id string, userID string, reason string) (ApprovalDecisionResponse, error)
}

type approvalService struct {
	approvalRepo repository.ApprovalRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
	ledger       *ledger.Ledger
}

func NewApprovalService(
	approvalRepo repository.ApprovalRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	l *ledger.Ledger,
) ApprovalService {
	return &approvalService{
		approvalRepo: approvalRepo,
		auditRepo:    auditRepo,
		txManager:    txManager,
		ledger:       l,
	}
}

// Status implements ApprovalGate. A source without a recorded decision is
// PENDING — orders may never fulfill without an explicit approval.
func (s *approvalService) Status(ctx context.Context, sourceType string, sourceID uuid.UUID) (string, error) {
	decision, err := s.approvalRepo.FindBySource(ctx, sourceType, sourceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.ApprovalPending, nil
		}
		return "", fmt.Errorf("failed to query approval decision: %w", err)
	}
	return decision.Status, nil
}

func (s *approvalService) CreateRequest(ctx context.Context, req CreateApprovalRequestDTO) (ApprovalDecisionResponse, error) {
	sourceID, err := uuid.Parse(req.SourceID)
	if err != nil {
		return ApprovalDecisionResponse{}, fmt.Errorf("invalid source_id: %w", err)
	}

	decision := model.ApprovalDecision{
		SourceType:  req.SourceType,
		SourceID:    sourceID,
		Status:      model.ApprovalPending,
		RequestedBy: parseUserID(req.RequestedBy),
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.approvalRepo.Create(txCtx, &decision); createErr != nil {
			return fmt.Errorf("failed to create approval request: %w", createErr)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"source_type": req.SourceType,
			"source_id":   req.SourceID,
		})
		audit := &model.AuditLog{
			UserID:     decision.RequestedBy,
			Action:     model.ActionCreateApprovalRequest,
			EntityID:   decision.ID.String(),
			EntityName: req.SourceType,
			Details:    string(details),
		}
		if auditErr := s.auditRepo.Log(txCtx, audit); auditErr != nil {
			return fmt.Errorf("failed to write audit log: %w", auditErr)
		}
		return nil
	})
	if err != nil {
		return ApprovalDecisionResponse{}, err
	}

	return toApprovalResponse(&decision), nil
}

func (s *approvalService) ListRequests(ctx context.Context, filter ApprovalFilter) ([]ApprovalDecisionResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	decisions, total, err := s.approvalRepo.List(ctx, filter.Status, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch approval requests: %w", err)
	}

	result := make([]ApprovalDecisionResponse, 0, len(decisions))
	for i := range decisions {
		result = append(result, toApprovalResponse(&decisions[i]))
	}
	return result, total, nil
}

func (s *approvalService) Approve(ctx context.Context, id string, userID string) (ApprovalDecisionResponse, error) {
	return s.decide(ctx, id, userID, model.ApprovalApproved, "")
}

// Reject marks the decision REJECTED and releases every active commitment of
// the source in the same transaction.
func (s *approvalService) Reject(ctx context.Context, id string, userID string, reason string) (ApprovalDecisionResponse, error) {
	return s.decide(ctx, id, userID, model.ApprovalRejected, reason)
}

func (s *approvalService) decide(ctx context.Context, id, userID, status, reason string) (ApprovalDecisionResponse, error) {
	decisionID, err := uuid.Parse(id)
	if err != nil {
		return ApprovalDecisionResponse{}, fmt.Errorf("invalid approval request id: %w", err)
	}
	deciderID, err := uuid.Parse(userID)
	if err != nil {
		return ApprovalDecisionResponse{}, fmt.Errorf("invalid user id: %w", err)
	}

	var decision *model.ApprovalDecision
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		decision, err = s.approvalRepo.FindByID(txCtx, decisionID)
		if err != nil {
			return fmt.Errorf("approval request not found: %w", err)
		}
		if decision.Status != model.ApprovalPending {
			return fmt.Errorf("approval request is already %s", decision.Status)
		}

		now := time.Now()
		decision.Status = status
		decision.DecidedBy = &deciderID
		decision.DecidedAt = &now
		decision.RejectionReason = reason

		if saveErr := s.approvalRepo.Update(txCtx, decision); saveErr != nil {
			return fmt.Errorf("failed to update approval request: %w", saveErr)
		}

		action := model.ActionApproveRequest
		if status == model.ApprovalRejected {
			action = model.ActionRejectRequest
			// Rejection returns the source's reserved capacity right away.
			if _, relErr := s.ledger.ReleaseSource(txCtx, decision.SourceType, decision.SourceID); relErr != nil {
				return fmt.Errorf("failed to release commitments on rejection: %w", relErr)
			}
		}

		details, _ := json.Marshal(map[string]interface{}{
			"source_type": decision.SourceType,
			"source_id":   decision.SourceID.String(),
			"reason":      reason,
		})
		audit := &model.AuditLog{
			UserID:     &deciderID,
			Action:     action,
			EntityID:   decision.ID.String(),
			EntityName: decision.SourceType,
			Details:    string(details),
		}
		if auditErr := s.auditRepo.Log(txCtx, audit); auditErr != nil {
			return fmt.Errorf("failed to write audit log: %w", auditErr)
		}
		return nil
	})
	if err != nil {
		return ApprovalDecisionResponse{}, err
	}

	return toApprovalResponse(decision), nil
}

func toApprovalResponse(d *model.ApprovalDecision) ApprovalDecisionResponse {
	resp := ApprovalDecisionResponse{
		ID:              d.ID.String(),
		SourceType:      d.SourceType,
		SourceID:        d.SourceID.String(),
		Status:          d.Status,
		RejectionReason: d.RejectionReason,
		CreatedAt:       d.CreatedAt.Format(time.RFC3339),
	}
	if d.RequestedBy != nil {
		v := d.RequestedBy.String()
		resp.RequestedBy = &v
	}
	if d.DecidedBy != nil {
		v := d.DecidedBy.String()
		resp.DecidedBy = &v
	}
	if d.DecidedAt != nil {
		v := d.DecidedAt.Format(time.RFC3339)
		resp.DecidedAt = &v
	}
	return resp
}
