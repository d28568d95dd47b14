package model

import (
	"time"

	"github.com/google/uuid"
)

// SourceType enum constants
const (
	SourceTypeDeal          = "DEAL"
	SourceTypeSalesOrder    = "SALES_ORDER"
	SourceTypePurchaseOrder = "PURCHASE_ORDER"
)

// CommitmentState enum constants
const (
	CommitmentActive    = "ACTIVE"
	CommitmentReleased  = "RELEASED"
	CommitmentFulfilled = "FULFILLED"
)

// Commitment direction: outbound commitments (deals, sales orders) consume
// stock on fulfillment; inbound ones (purchase orders) add to it.
const (
	DirectionOutbound = -1
	DirectionInbound  = 1
)

// Commitment reserves a quantity of one product against an in-flight deal or
// order line item. Only ACTIVE outbound commitments count against sellable
// availability; terminal rows are kept for the audit trail.
type Commitment struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProductID  uuid.UUID `gorm:"type:uuid;not null;index" json:"product_id"`
	Product    Product   `gorm:"foreignKey:ProductID" json:"-"`
	SourceType string    `gorm:"type:varchar(20);not null;index:idx_commitments_source" json:"source_type"` // DEAL, SALES_ORDER, PURCHASE_ORDER
	SourceID   uuid.UUID `gorm:"type:uuid;not null;index:idx_commitments_source" json:"source_id"`
	LineItemID uuid.UUID `gorm:"type:uuid;not null;index" json:"line_item_id"`
	Quantity   int       `gorm:"type:int;not null" json:"quantity"` // always > 0
	Direction  int       `gorm:"type:int;not null;default:-1" json:"direction"`
	State      string    `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"state"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Active reports whether the commitment still counts toward availability.
func (c *Commitment) Active() bool {
	return c.State == CommitmentActive
}

// DirectionFor returns the stock direction implied by a source type.
func DirectionFor(sourceType string) int {
	if sourceType == SourceTypePurchaseOrder {
		return DirectionInbound
	}
	return DirectionOutbound
}
