package model

import (
	"time"

	"github.com/google/uuid"
)

// ApprovalStatus enum constants
const (
	ApprovalPending  = "PENDING"
	ApprovalApproved = "APPROVED"
	ApprovalRejected = "REJECTED"
)

// ApprovalDecision gates whether an order source may reach its
// terminal-with-fulfillment stage. One row per (source_type, source_id).
type ApprovalDecision struct {
	ID              uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SourceType      string     `gorm:"type:varchar(20);not null;uniqueIndex:idx_approvals_source" json:"source_type"`
	SourceID        uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_approvals_source" json:"source_id"`
	Status          string     `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	RequestedBy     *uuid.UUID `gorm:"type:uuid;index" json:"requested_by"`
	DecidedBy       *uuid.UUID `gorm:"type:uuid" json:"decided_by"`
	DecidedAt       *time.Time `json:"decided_at"`
	RejectionReason string     `gorm:"type:text" json:"rejection_reason"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
