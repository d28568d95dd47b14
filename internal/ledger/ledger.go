package ledger

import (
	"context"
	"time"

	"salescore/internal/model"

	"github.com/google/uuid"
)

// InventoryStore is the on-hand quantity side of the product master.
// Implementations must apply changes atomically within the ambient
// transaction (the gorm implementation locks the product row FOR UPDATE).
type InventoryStore interface {
	GetOnHand(ctx context.Context, productID uuid.UUID) (int, error)
	// DecrementOnHand subtracts qty and returns the stock level after.
	DecrementOnHand(ctx context.Context, productID uuid.UUID, qty int) (int, error)
	// IncrementOnHand adds qty (inbound purchase-order fulfillment) and
	// returns the stock level after.
	IncrementOnHand(ctx context.Context, productID uuid.UUID, qty int) (int, error)
}

// CommitmentStore persists commitments and their state transitions.
type CommitmentStore interface {
	Create(ctx context.Context, c *model.Commitment) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Commitment, error)
	FindActiveByLineItem(ctx context.Context, sourceType string, sourceID, lineItemID uuid.UUID) (*model.Commitment, error)
	ListActiveBySource(ctx context.Context, sourceType string, sourceID uuid.UUID) ([]model.Commitment, error)
	SumActiveOutbound(ctx context.Context, productID uuid.UUID) (int, error)
	UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int) error
	SetState(ctx context.Context, id uuid.UUID, state string) error
}

// MovementStore appends to the permanent stock-movement journal.
type MovementStore interface {
	Record(ctx context.Context, m *model.StockMovement) error
}

// TxRunner wraps a function in a storage transaction. A failure inside fn
// must undo everything fn did.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// Ledger is the authoritative record of quantity committed against each
// product. Every mutating operation holds the product's lock for its whole
// check-then-write section, so two concurrent reservations can never both
// succeed when their combined quantity exceeds availability.
type Ledger struct {
	inv       InventoryStore
	commits   CommitmentStore
	movements MovementStore
	tx        TxRunner
	locks     *productLocks
}

func New(inv InventoryStore, commits CommitmentStore, movements MovementStore, tx TxRunner) *Ledger {
	return NewWithLockWait(inv, commits, movements, tx, defaultLockWait)
}

// NewWithLockWait overrides the contention window before ErrBusy.
func NewWithLockWait(inv InventoryStore, commits CommitmentStore, movements MovementStore, tx TxRunner, maxWait time.Duration) *Ledger {
	return &Ledger{
		inv:       inv,
		commits:   commits,
		movements: movements,
		tx:        tx,
		locks:     newProductLocks(maxWait),
	}
}

// Reserve creates an ACTIVE commitment for qty units of a product.
// Availability is re-checked under the product lock at the moment of
// reservation; an over-request fails with *InsufficientStockError and no
// side effects. Inbound (purchase-order) reservations do not consume
// sellable capacity and skip the check.
func (l *Ledger) Reserve(ctx context.Context, productID uuid.UUID, sourceType string, sourceID, lineItemID uuid.UUID, qty int) (*model.Commitment, error) {
	if qty <= 0 || productID == uuid.Nil {
		return nil, ErrInvalidInput
	}

	if err := l.locks.acquire(productID); err != nil {
		return nil, err
	}
	defer l.locks.release(productID)

	direction := model.DirectionFor(sourceType)
	commitment := &model.Commitment{
		ProductID:  productID,
		SourceType: sourceType,
		SourceID:   sourceID,
		LineItemID: lineItemID,
		Quantity:   qty,
		Direction:  direction,
		State:      model.CommitmentActive,
	}

	err := l.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if direction == model.DirectionOutbound {
			available, err := l.available(txCtx, productID)
			if err != nil {
				return err
			}
			if qty > available {
				return &InsufficientStockError{ProductID: productID, Requested: qty, Available: available}
			}
		}
		return l.commits.Create(txCtx, commitment)
	})
	if err != nil {
		return nil, err
	}
	return commitment, nil
}

// Adjust changes an active commitment's quantity. The new quantity is
// validated against available + oldQuantity; on overflow the old quantity
// stays intact and *InsufficientStockError is returned.
func (l *Ledger) Adjust(ctx context.Context, commitmentID uuid.UUID, newQty int) error {
	if newQty <= 0 {
		return ErrInvalidInput
	}

	commitment, err := l.commits.FindByID(ctx, commitmentID)
	if err != nil {
		return err
	}

	if err := l.locks.acquire(commitment.ProductID); err != nil {
		return err
	}
	defer l.locks.release(commitment.ProductID)

	return l.tx.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := l.commits.FindByID(txCtx, commitmentID)
		if err != nil {
			return err
		}
		if !current.Active() {
			return ErrCommitmentNotActive
		}

		if current.Direction == model.DirectionOutbound {
			available, err := l.available(txCtx, current.ProductID)
			if err != nil {
				return err
			}
			// The commitment's own quantity is already counted as committed,
			// so it is headroom for its own adjustment.
			if newQty > available+current.Quantity {
				return &InsufficientStockError{
					ProductID: current.ProductID,
					Requested: newQty,
					Available: available + current.Quantity,
				}
			}
		}
		return l.commits.UpdateQuantity(txCtx, commitmentID, newQty)
	})
}

// Release returns the commitment's capacity to the pool with no stock
// change. The freed quantity is available to others immediately.
func (l *Ledger) Release(ctx context.Context, commitmentID uuid.UUID) error {
	commitment, err := l.commits.FindByID(ctx, commitmentID)
	if err != nil {
		return err
	}

	if err := l.locks.acquire(commitment.ProductID); err != nil {
		return err
	}
	defer l.locks.release(commitment.ProductID)

	return l.tx.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := l.commits.FindByID(txCtx, commitmentID)
		if err != nil {
			return err
		}
		if !current.Active() {
			return ErrCommitmentNotActive
		}
		return l.commits.SetState(txCtx, commitmentID, model.CommitmentReleased)
	})
}

// Fulfill converts a commitment into a permanent stock change: on-hand moves
// by Direction x Quantity, a stock movement is journaled, and the commitment
// leaves the committed total in the same transaction — the units are never
// counted twice.
func (l *Ledger) Fulfill(ctx context.Context, commitmentID uuid.UUID) error {
	commitment, err := l.commits.FindByID(ctx, commitmentID)
	if err != nil {
		return err
	}

	if err := l.locks.acquire(commitment.ProductID); err != nil {
		return err
	}
	defer l.locks.release(commitment.ProductID)

	return l.tx.RunInTx(ctx, func(txCtx context.Context) error {
		return l.fulfillLocked(txCtx, commitmentID)
	})
}

// fulfillLocked runs the fulfillment body assuming the caller already holds
// the product lock and an ambient transaction (the coordinator's
// all-or-nothing stage transition path).
func (l *Ledger) fulfillLocked(ctx context.Context, commitmentID uuid.UUID) error {
	current, err := l.commits.FindByID(ctx, commitmentID)
	if err != nil {
		return err
	}
	if !current.Active() {
		return ErrCommitmentNotActive
	}

	var stockAfter int
	movementType := model.MovementIn
	if current.Direction == model.DirectionOutbound {
		movementType = model.MovementOut
		onHand, err := l.inv.GetOnHand(ctx, current.ProductID)
		if err != nil {
			return err
		}
		// Committed quantity should never exceed on-hand; if it does some
		// other writer broke the invariant and this fulfillment must fail.
		if current.Quantity > onHand {
			return &InsufficientStockError{
				ProductID: current.ProductID,
				Requested: current.Quantity,
				Available: onHand,
			}
		}
		stockAfter, err = l.inv.DecrementOnHand(ctx, current.ProductID, current.Quantity)
		if err != nil {
			return err
		}
	} else {
		stockAfter, err = l.inv.IncrementOnHand(ctx, current.ProductID, current.Quantity)
		if err != nil {
			return err
		}
	}

	movement := &model.StockMovement{
		ProductID:     current.ProductID,
		CommitmentID:  &current.ID,
		SourceType:    current.SourceType,
		SourceID:      &current.SourceID,
		MovementType:  movementType,
		QuantityDelta: current.Quantity * current.Direction,
		StockAfter:    stockAfter,
	}
	if err := l.movements.Record(ctx, movement); err != nil {
		return err
	}

	return l.commits.SetState(ctx, current.ID, model.CommitmentFulfilled)
}

// FulfillSource fulfills every active commitment of one source as a single
// logical operation inside one transaction. Any item failure rolls the whole
// batch back; a mix of some items deducted and others not is never left
// behind.
func (l *Ledger) FulfillSource(ctx context.Context, sourceType string, sourceID uuid.UUID) (int, error) {
	commitments, err := l.commits.ListActiveBySource(ctx, sourceType, sourceID)
	if err != nil {
		return 0, err
	}
	if len(commitments) == 0 {
		return 0, nil
	}

	products := distinctProducts(commitments)
	locked, err := l.acquireAll(products)
	if err != nil {
		return 0, err
	}
	defer l.releaseAll(locked)

	err = l.tx.RunInTx(ctx, func(txCtx context.Context) error {
		for i := range commitments {
			if err := l.fulfillLocked(txCtx, commitments[i].ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(commitments), nil
}

// ReleaseSource releases every active commitment of one source.
func (l *Ledger) ReleaseSource(ctx context.Context, sourceType string, sourceID uuid.UUID) (int, error) {
	commitments, err := l.commits.ListActiveBySource(ctx, sourceType, sourceID)
	if err != nil {
		return 0, err
	}
	if len(commitments) == 0 {
		return 0, nil
	}

	products := distinctProducts(commitments)
	locked, err := l.acquireAll(products)
	if err != nil {
		return 0, err
	}
	defer l.releaseAll(locked)

	err = l.tx.RunInTx(ctx, func(txCtx context.Context) error {
		for i := range commitments {
			current, err := l.commits.FindByID(txCtx, commitments[i].ID)
			if err != nil {
				return err
			}
			if !current.Active() {
				continue
			}
			if err := l.commits.SetState(txCtx, current.ID, model.CommitmentReleased); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(commitments), nil
}

// CurrentAvailable is onHand minus the active outbound committed total.
func (l *Ledger) CurrentAvailable(ctx context.Context, productID uuid.UUID) (int, error) {
	return l.available(ctx, productID)
}

func (l *Ledger) available(ctx context.Context, productID uuid.UUID) (int, error) {
	onHand, err := l.inv.GetOnHand(ctx, productID)
	if err != nil {
		return 0, err
	}
	committed, err := l.commits.SumActiveOutbound(ctx, productID)
	if err != nil {
		return 0, err
	}
	return onHand - committed, nil
}

// acquireAll takes the locks of several products in sorted order so two
// overlapping multi-product transitions cannot deadlock. On ErrBusy every
// lock taken so far is released.
func (l *Ledger) acquireAll(products []uuid.UUID) ([]uuid.UUID, error) {
	locked := make([]uuid.UUID, 0, len(products))
	for _, id := range products {
		if err := l.locks.acquire(id); err != nil {
			l.releaseAll(locked)
			return nil, err
		}
		locked = append(locked, id)
	}
	return locked, nil
}

func (l *Ledger) releaseAll(products []uuid.UUID) {
	for _, id := range products {
		l.locks.release(id)
	}
}

func distinctProducts(commitments []model.Commitment) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(commitments))
	out := make([]uuid.UUID, 0, len(commitments))
	for i := range commitments {
		id := commitments[i].ProductID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	// Stable lock order across callers.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && lessUUID(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func lessUUID(a, b uuid.UUID) bool {
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
