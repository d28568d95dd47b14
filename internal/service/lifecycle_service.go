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
)

var (
	// ErrApprovalPending blocks a fulfillment transition until the order's
	// approval decision exists and is APPROVED.
	ErrApprovalPending = errors.New("approval decision is pending")

	// ErrApprovalRejected marks a fulfillment transition refused by the
	// approval workflow; the source's capacity has been released.
	ErrApprovalRejected = errors.New("approval decision was rejected")
)

// ApprovalGate reports the approval status for a source. Sources without a
// recorded decision are PENDING.
type ApprovalGate interface {
	Status(ctx context.Context, sourceType string, sourceID uuid.UUID) (string, error)
}

// Broadcaster pushes availability snapshots to connected clients after a
// ledger mutation. Implemented by the websocket hub.
type Broadcaster interface {
	BroadcastAvailability(a ledger.Availability)
}

// --- DTOs ---

type LineItemEvent struct {
	SourceType string    `json:"source_type" binding:"required,oneof=DEAL SALES_ORDER PURCHASE_ORDER"`
	SourceID   uuid.UUID `json:"source_id" binding:"required"`
	LineItemID uuid.UUID `json:"line_item_id" binding:"required"`
	ProductID  uuid.UUID `json:"product_id"`
	Quantity   int       `json:"quantity"`
}

// LineItemResult reports what the ledger actually applied. When the edit
// over-requested stock the quantity is clamped to the available amount and
// Clamped is set so the caller can warn and auto-correct the line item.
type LineItemResult struct {
	CommitmentID uuid.UUID `json:"commitment_id"`
	RequestedQty int       `json:"requested_qty"`
	AppliedQty   int       `json:"applied_qty"`
	Clamped      bool      `json:"clamped"`
	Released     bool      `json:"released"`
}

type StageChangeEvent struct {
	SourceType string    `json:"source_type" binding:"required,oneof=DEAL SALES_ORDER PURCHASE_ORDER"`
	SourceID   uuid.UUID `json:"source_id" binding:"required"`
	OldStage   string    `json:"old_stage"`
	NewStage   string    `json:"new_stage" binding:"required"`
}

// StageChangeResult says what the transition did to the source's commitments.
type StageChangeResult struct {
	Outcome   string `json:"outcome"` // NO_ACTION, RELEASED, FULFILLED
	Fulfilled int    `json:"fulfilled"`
	Released  int    `json:"released"`
}

const (
	OutcomeNoAction  = "NO_ACTION"
	OutcomeReleased  = "RELEASED"
	OutcomeFulfilled = "FULFILLED"
)

// --- Interface ---

// CommitmentLifecycleService reacts to line-item edits and stage transitions
// of deals and orders, translating them into ledger operations.
type CommitmentLifecycleService interface {
	OnLineItemAdded(ctx context.Context, userID string, ev LineItemEvent) (LineItemResult, error)
	OnLineItemChanged(ctx context.Context, userID string, ev LineItemEvent) (LineItemResult, error)
	OnLineItemRemoved(ctx context.Context, userID string, ev LineItemEvent) (LineItemResult, error)
	OnSourceStageChanged(ctx context.Context, userID string, ev StageChangeEvent) (StageChangeResult, error)
}

type lifecycleService struct {
	ledger    *ledger.Ledger
	resolver  *ledger.AvailabilityResolver
	commits   repository.CommitmentRepository
	gate      ApprovalGate
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	hub       Broadcaster
}

func NewCommitmentLifecycleService(
	l *ledger.Ledger,
	resolver *ledger.AvailabilityResolver,
	commits repository.CommitmentRepository,
	gate ApprovalGate,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	hub Broadcaster,
) CommitmentLifecycleService {
	return &lifecycleService{
		ledger:    l,
		resolver:  resolver,
		commits:   commits,
		gate:      gate,
		auditRepo: auditRepo,
		txManager: txManager,
		hub:       hub,
	}
}

// --- Line item events ---

func (s *lifecycleService) OnLineItemAdded(ctx context.Context, userID string, ev LineItemEvent) (LineItemResult, error) {
	if ev.Quantity <= 0 || ev.ProductID == uuid.Nil {
		return LineItemResult{}, ledger.ErrInvalidInput
	}

	result := LineItemResult{RequestedQty: ev.Quantity, AppliedQty: ev.Quantity}

	commitment, err := s.ledger.Reserve(ctx, ev.ProductID, ev.SourceType, ev.SourceID, ev.LineItemID, ev.Quantity)
	if err != nil {
		var insufficient *ledger.InsufficientStockError
		if !errors.As(err, &insufficient) || insufficient.Available <= 0 {
			return LineItemResult{}, err
		}
		// Over-request: warn and auto-correct down to what is left rather
		// than failing the user's edit outright.
		commitment, err = s.ledger.Reserve(ctx, ev.ProductID, ev.SourceType, ev.SourceID, ev.LineItemID, insufficient.Available)
		if err != nil {
			return LineItemResult{}, err
		}
		result.AppliedQty = insufficient.Available
		result.Clamped = true
	}

	result.CommitmentID = commitment.ID
	s.audit(ctx, userID, model.ActionReserveStock, commitment.ID.String(), ev, result)
	s.broadcast(ctx, ev.ProductID)
	return result, nil
}

func (s *lifecycleService) OnLineItemChanged(ctx context.Context, userID string, ev LineItemEvent) (LineItemResult, error) {
	commitment, err := s.commits.FindActiveByLineItem(ctx, ev.SourceType, ev.SourceID, ev.LineItemID)
	if err != nil {
		return LineItemResult{}, err
	}

	// A line item edited down to zero destroys its commitment; quantity
	// zero is never stored.
	if ev.Quantity <= 0 {
		if err := s.ledger.Release(ctx, commitment.ID); err != nil {
			return LineItemResult{}, err
		}
		result := LineItemResult{CommitmentID: commitment.ID, RequestedQty: ev.Quantity, Released: true}
		s.audit(ctx, userID, model.ActionReleaseStock, commitment.ID.String(), ev, result)
		s.broadcast(ctx, commitment.ProductID)
		return result, nil
	}

	result := LineItemResult{CommitmentID: commitment.ID, RequestedQty: ev.Quantity, AppliedQty: ev.Quantity}

	if err := s.ledger.Adjust(ctx, commitment.ID, ev.Quantity); err != nil {
		var insufficient *ledger.InsufficientStockError
		if !errors.As(err, &insufficient) || insufficient.Available <= 0 {
			return LineItemResult{}, err
		}
		// Available already includes the commitment's own quantity here.
		if err := s.ledger.Adjust(ctx, commitment.ID, insufficient.Available); err != nil {
			return LineItemResult{}, err
		}
		result.AppliedQty = insufficient.Available
		result.Clamped = true
	}

	s.audit(ctx, userID, model.ActionAdjustReserve, commitment.ID.String(), ev, result)
	s.broadcast(ctx, commitment.ProductID)
	return result, nil
}

func (s *lifecycleService) OnLineItemRemoved(ctx context.Context, userID string, ev LineItemEvent) (LineItemResult, error) {
	commitment, err := s.commits.FindActiveByLineItem(ctx, ev.SourceType, ev.SourceID, ev.LineItemID)
	if err != nil {
		return LineItemResult{}, err
	}

	if err := s.ledger.Release(ctx, commitment.ID); err != nil {
		return LineItemResult{}, err
	}

	result := LineItemResult{CommitmentID: commitment.ID, RequestedQty: commitment.Quantity, Released: true}
	s.audit(ctx, userID, model.ActionReleaseStock, commitment.ID.String(), ev, result)
	s.broadcast(ctx, commitment.ProductID)
	return result, nil
}

// --- Stage transitions ---

// OnSourceStageChanged maps a stage transition to its ledger meaning.
// Fulfillment of a multi-item source is all-or-nothing: any item failure
// rolls every deduction back and the transition is rejected, leaving the
// source in its prior stage.
func (s *lifecycleService) OnSourceStageChanged(ctx context.Context, userID string, ev StageChangeEvent) (StageChangeResult, error) {
	switch model.ClassifyStage(ev.SourceType, ev.NewStage) {
	case model.StageTerminalRelease:
		return s.releaseSource(ctx, userID, ev)
	case model.StageTerminalFulfill:
		return s.fulfillSource(ctx, userID, ev)
	default:
		return StageChangeResult{Outcome: OutcomeNoAction}, nil
	}
}

func (s *lifecycleService) releaseSource(ctx context.Context, userID string, ev StageChangeEvent) (StageChangeResult, error) {
	affected := s.affectedProducts(ctx, ev.SourceType, ev.SourceID)

	var released int
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		n, err := s.ledger.ReleaseSource(txCtx, ev.SourceType, ev.SourceID)
		if err != nil {
			return err
		}
		released = n
		return s.auditTx(txCtx, userID, model.ActionReleaseSource, ev.SourceID.String(), ev, n)
	})
	if err != nil {
		return StageChangeResult{}, err
	}

	s.broadcastAll(ctx, affected)
	return StageChangeResult{Outcome: OutcomeReleased, Released: released}, nil
}

func (s *lifecycleService) fulfillSource(ctx context.Context, userID string, ev StageChangeEvent) (StageChangeResult, error) {
	// Deals fulfill on WON directly; order sources are gated by the
	// approval workflow first.
	if ev.SourceType != model.SourceTypeDeal {
		status, err := s.gate.Status(ctx, ev.SourceType, ev.SourceID)
		if err != nil {
			return StageChangeResult{}, err
		}
		switch status {
		case model.ApprovalApproved:
			// fall through to fulfillment
		case model.ApprovalRejected:
			// A rejection is a terminal-without-fulfillment transition for
			// ledger purposes: capacity comes back, stock stays untouched.
			result, relErr := s.releaseSource(ctx, userID, ev)
			if relErr != nil {
				return StageChangeResult{}, relErr
			}
			result.Outcome = OutcomeReleased
			return result, &ledger.TransitionRejectedError{
				SourceType: ev.SourceType,
				SourceID:   ev.SourceID,
				Cause:      ErrApprovalRejected,
			}
		default:
			return StageChangeResult{}, &ledger.TransitionRejectedError{
				SourceType: ev.SourceType,
				SourceID:   ev.SourceID,
				Cause:      ErrApprovalPending,
			}
		}
	}

	affected := s.affectedProducts(ctx, ev.SourceType, ev.SourceID)

	var fulfilled int
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		n, err := s.ledger.FulfillSource(txCtx, ev.SourceType, ev.SourceID)
		if err != nil {
			return err
		}
		fulfilled = n
		return s.auditTx(txCtx, userID, model.ActionFulfillSource, ev.SourceID.String(), ev, n)
	})
	if err != nil {
		return StageChangeResult{}, &ledger.TransitionRejectedError{
			SourceType: ev.SourceType,
			SourceID:   ev.SourceID,
			Cause:      err,
		}
	}

	s.broadcastAll(ctx, affected)
	return StageChangeResult{Outcome: OutcomeFulfilled, Fulfilled: fulfilled}, nil
}

// --- helpers ---

func (s *lifecycleService) affectedProducts(ctx context.Context, sourceType string, sourceID uuid.UUID) []uuid.UUID {
	commitments, err := s.commits.ListActiveBySource(ctx, sourceType, sourceID)
	if err != nil {
		return nil
	}
	seen := make(map[uuid.UUID]struct{}, len(commitments))
	var products []uuid.UUID
	for i := range commitments {
		if _, ok := seen[commitments[i].ProductID]; ok {
			continue
		}
		seen[commitments[i].ProductID] = struct{}{}
		products = append(products, commitments[i].ProductID)
	}
	return products
}

func (s *lifecycleService) broadcast(ctx context.Context, productID uuid.UUID) {
	if s.hub == nil {
		return
	}
	snapshot, err := s.resolver.GetAvailable(ctx, productID)
	if err != nil {
		return
	}
	s.hub.BroadcastAvailability(snapshot)
}

func (s *lifecycleService) broadcastAll(ctx context.Context, products []uuid.UUID) {
	for _, id := range products {
		s.broadcast(ctx, id)
	}
}

// audit writes a best-effort audit row outside any transaction.
func (s *lifecycleService) audit(ctx context.Context, userID, action, entityID string, ev, result interface{}) {
	details, _ := json.Marshal(map[string]interface{}{"event": ev, "result": result})
	entry := &model.AuditLog{
		UserID:   parseUserID(userID),
		Action:   action,
		EntityID: entityID,
		Details:  string(details),
	}
	_ = s.auditRepo.Log(ctx, entry)
}

// auditTx writes an audit row inside the stage-transition transaction so a
// rolled-back transition leaves no audit trace of a fulfillment that never
// happened.
func (s *lifecycleService) auditTx(txCtx context.Context, userID, action, entityID string, ev interface{}, count int) error {
	details, _ := json.Marshal(map[string]interface{}{"event": ev, "commitments": count})
	entry := &model.AuditLog{
		UserID:   parseUserID(userID),
		Action:   action,
		EntityID: entityID,
		Details:  string(details),
	}
	if err := s.auditRepo.Log(txCtx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func parseUserID(userID string) *uuid.UUID {
	if userID == "" {
		return nil
	}
	parsed, err := uuid.Parse(userID)
	if err != nil {
		return nil
	}
	return &parsed
}
