package model

import "github.com/google/uuid"

// SourceRef identifies the deal or order a commitment belongs to. The source
// records themselves are owned by the CRM/order modules; this core only sees
// their line-item and stage events.
type SourceRef struct {
	Type string    `json:"type"`
	ID   uuid.UUID `json:"id"`
}

// Deal pipeline stages
const (
	StageDealOpen        = "OPEN"
	StageDealNegotiation = "NEGOTIATION"
	StageDealWon         = "WON"
	StageDealLost        = "LOST"
)

// Sales/purchase order statuses
const (
	StageOrderDraft       = "DRAFT"
	StageOrderConfirmed   = "CONFIRMED"
	StageOrderApprovedFor = "APPROVED_FOR_SHIPMENT"
	StageOrderCancelled   = "CANCELLED"
	StageOrderRejected    = "REJECTED"
)

// StageKind classifies a stage for ledger purposes.
type StageKind int

const (
	StageOpen            StageKind = iota // reservation edits still allowed
	StageTerminalRelease                  // lost/cancelled: return capacity, no stock change
	StageTerminalFulfill                  // won/approved: permanent stock movement
)

// ClassifyStage maps a source stage to its ledger meaning. Unknown stages are
// treated as open so stray collaborator states never move stock.
func ClassifyStage(sourceType, stage string) StageKind {
	switch sourceType {
	case SourceTypeDeal:
		switch stage {
		case StageDealWon:
			return StageTerminalFulfill
		case StageDealLost:
			return StageTerminalRelease
		}
	case SourceTypeSalesOrder, SourceTypePurchaseOrder:
		switch stage {
		case StageOrderApprovedFor:
			return StageTerminalFulfill
		case StageOrderCancelled, StageOrderRejected:
			return StageTerminalRelease
		}
	}
	return StageOpen
}
