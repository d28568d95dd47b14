package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is the inventory master record. OnHand is the physical quantity;
// sellable availability is OnHand minus active outbound commitments.
type Product struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SKU            string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"sku"`
	Name           string          `gorm:"type:varchar(255);not null" json:"name"`
	OnHand         int             `gorm:"type:int;default:0;not null" json:"on_hand"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	TaxRatePercent decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0" json:"tax_rate_percent"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"-"`
}

// MovementType enum constants
const (
	MovementIn  = "IN"
	MovementOut = "OUT"
)

// StockMovement records every permanent on-hand change strictly,
// one row per fulfilled commitment.
type StockMovement struct {
	ID            uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProductID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"product_id"`
	CommitmentID  *uuid.UUID `gorm:"type:uuid;index" json:"commitment_id"` // Nullable in case of manual adjustments
	SourceType    string     `gorm:"type:varchar(20)" json:"source_type"`
	SourceID      *uuid.UUID `gorm:"type:uuid;index" json:"source_id"`
	MovementType  string     `gorm:"type:varchar(10);not null" json:"movement_type"` // IN, OUT
	QuantityDelta int        `gorm:"type:int;not null" json:"quantity_delta"`
	StockAfter    int        `gorm:"type:int;not null" json:"stock_after"`
	CreatedAt     time.Time  `json:"created_at"`
}
