package ledger

import (
	"context"

	"github.com/google/uuid"
)

// AvailabilityResolver answers "how much can I still allocate" for UI
// pre-validation. Reads do not take the product lock and may be slightly
// stale the moment they return; the authoritative check happens inside
// Reserve/Adjust. Callers must not treat this value as a guarantee.
type AvailabilityResolver struct {
	inv     InventoryStore
	commits CommitmentStore
}

func NewAvailabilityResolver(inv InventoryStore, commits CommitmentStore) *AvailabilityResolver {
	return &AvailabilityResolver{inv: inv, commits: commits}
}

// Availability is an advisory snapshot of a product's sellable quantity.
type Availability struct {
	ProductID uuid.UUID `json:"product_id"`
	OnHand    int       `json:"on_hand"`
	Committed int       `json:"committed"`
	Available int       `json:"available"`
}

// GetAvailable returns onHand, committed, and their difference.
func (r *AvailabilityResolver) GetAvailable(ctx context.Context, productID uuid.UUID) (Availability, error) {
	onHand, err := r.inv.GetOnHand(ctx, productID)
	if err != nil {
		return Availability{}, err
	}
	committed, err := r.commits.SumActiveOutbound(ctx, productID)
	if err != nil {
		return Availability{}, err
	}
	return Availability{
		ProductID: productID,
		OnHand:    onHand,
		Committed: committed,
		Available: onHand - committed,
	}, nil
}
