package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"salescore/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errProductNotSeeded = errors.New("product not seeded")

// memStore is an in-memory stand-in for the gorm repositories. A single
// struct backs all three store interfaces so a transaction snapshot covers
// stock, commitments and movements together.
type memStore struct {
	mu        sync.Mutex
	onHand    map[uuid.UUID]int
	commits   map[uuid.UUID]model.Commitment
	movements []model.StockMovement
}

func newMemStore() *memStore {
	return &memStore{
		onHand:  make(map[uuid.UUID]int),
		commits: make(map[uuid.UUID]model.Commitment),
	}
}

func (s *memStore) GetOnHand(_ context.Context, productID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qty, ok := s.onHand[productID]
	if !ok {
		return 0, errProductNotSeeded
	}
	return qty, nil
}

func (s *memStore) DecrementOnHand(_ context.Context, productID uuid.UUID, qty int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onHand[productID] -= qty
	return s.onHand[productID], nil
}

func (s *memStore) IncrementOnHand(_ context.Context, productID uuid.UUID, qty int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onHand[productID] += qty
	return s.onHand[productID], nil
}

func (s *memStore) Create(_ context.Context, c *model.Commitment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	s.commits[c.ID] = *c
	return nil
}

func (s *memStore) FindByID(_ context.Context, id uuid.UUID) (*model.Commitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commits[id]
	if !ok {
		return nil, ErrCommitmentNotFound
	}
	return &c, nil
}

func (s *memStore) FindActiveByLineItem(_ context.Context, sourceType string, sourceID, lineItemID uuid.UUID) (*model.Commitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.commits {
		if c.SourceType == sourceType && c.SourceID == sourceID && c.LineItemID == lineItemID && c.Active() {
			c := c
			return &c, nil
		}
	}
	return nil, ErrCommitmentNotFound
}

func (s *memStore) ListActiveBySource(_ context.Context, sourceType string, sourceID uuid.UUID) ([]model.Commitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Commitment
	for _, c := range s.commits {
		if c.SourceType == sourceType && c.SourceID == sourceID && c.Active() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) SumActiveOutbound(_ context.Context, productID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, c := range s.commits {
		if c.ProductID == productID && c.Active() && c.Direction == model.DirectionOutbound {
			total += c.Quantity
		}
	}
	return total, nil
}

func (s *memStore) UpdateQuantity(_ context.Context, id uuid.UUID, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commits[id]
	if !ok {
		return ErrCommitmentNotFound
	}
	c.Quantity = quantity
	s.commits[id] = c
	return nil
}

func (s *memStore) SetState(_ context.Context, id uuid.UUID, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commits[id]
	if !ok {
		return ErrCommitmentNotFound
	}
	c.State = state
	s.commits[id] = c
	return nil
}

func (s *memStore) Record(_ context.Context, m *model.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	s.movements = append(s.movements, *m)
	return nil
}

type memSnapshot struct {
	onHand    map[uuid.UUID]int
	commits   map[uuid.UUID]model.Commitment
	movements []model.StockMovement
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		onHand:    make(map[uuid.UUID]int, len(s.onHand)),
		commits:   make(map[uuid.UUID]model.Commitment, len(s.commits)),
		movements: append([]model.StockMovement(nil), s.movements...),
	}
	for k, v := range s.onHand {
		snap.onHand[k] = v
	}
	for k, v := range s.commits {
		snap.commits[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onHand = snap.onHand
	s.commits = snap.commits
	s.movements = snap.movements
}

type memTxKey struct{}

// memTx mimics the transaction manager: a failed fn restores the snapshot,
// a nested call joins the outer transaction instead of opening its own.
type memTx struct {
	store *memStore
}

func (t *memTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	snap := t.store.snapshot()
	err := fn(context.WithValue(ctx, memTxKey{}, struct{}{}))
	if err != nil {
		t.store.restore(snap)
	}
	return err
}

func newTestLedger(store *memStore) *Ledger {
	return NewWithLockWait(store, store, store, &memTx{store: store}, 100*time.Millisecond)
}

func seedProduct(store *memStore, qty int) uuid.UUID {
	id := uuid.New()
	store.onHand[id] = qty
	return id
}

func TestReserve_ConsumesAvailability(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store)
	productID := seedProduct(store, 10)

	c, err := l.Reserve(ctx, productID, model.SourceTypeDeal, uuid.New(), uuid.New(), 6)
	require.NoError(t, err)
	assert.Equal(t, model.CommitmentActive, c.State)
	assert.Equal(t, model.DirectionOutbound, c.Direction)

	available, err := l.CurrentAvailable(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 4, available)

	// On-hand is untouched until fulfillment.
	onHand, err := store.GetOnHand(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 10, onHand)
}

func TestReserve_InsufficientStock(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store)
	productID := seedProduct(store, 10)

	_, err := l.Reserve(ctx, productID, model.SourceTypeDeal, uuid.New(), uuid.New(), 10)
	require.NoError(t, err)

	_, err = l.Reserve(ctx, productID, model.SourceTypeDeal, uuid.New(), uuid.New(), 1)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, productID, insufficient.ProductID)
	assert.Equal(t, 1, insufficient.Requested)
	assert.Equal(t, 0, insufficient.Available)

	// The failed reservation must leave no trace.
	committed, err := store.SumActiveOutbound(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 10, committed)
}

func TestReserve_InvalidInput(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store)
	productID := seedProduct(store, 10)

	_, err := l.Reserve(ctx, productID, model.SourceTypeDeal, uuid.New(), uuid.New(), 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = l.Reserve(ctx, productID, model.SourceTypeDeal, uuid.New(), uuid.New(), -3)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = l.Reserve(ctx, uuid.Nil, model.SourceTypeDeal, uuid.New(), uuid.New(), 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestReserve_InboundSkipsAvailabilityCheck(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store)
	productID := seedProduct(store, 0)

	c, err := l.Reserve(ctx, productID, model.SourceTypePurchaseOrder, uuid.New(), uuid.New(), 50)
	require.NoError(t, err)
	assert.Equal(t, model.DirectionInbound, c.Direction)

	// Inbound commitments never count against sellable capacity.
	available, err := l.CurrentAvailable(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 0, available)
}

func TestReserve_ConcurrentOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := NewWithLockWait(store, store, store, &memTx{store: store}, 2*time.Second)
	productID := seedProduct(store, 5)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.Reserve(ctx, productID, model.SourceTypeDeal, uuid.New(), uuid.New(), 3)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			var insufficient *InsufficientStockError
			require.ErrorAs(t, err, &insufficient)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one of two 3-unit reservations on 5 units may win")

	committed, err := store.SumActiveOutbound(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 3, committed)
}

func TestAdjust_OwnQuantityIsHeadroom(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store)
	productID := seedProduct(store, 10)

	c, err := l.Reserve(ctx, productID, model.SourceTypeDeal, uuid.New(), uuid.New(), 8)
	require.NoError(t, err)

	// available is 2, but 8 of the committed total is this commitment's own.
	require.NoError(t, l.Adjust(ctx, c.ID, 10))

	err = l.Adjust(ctx, c.ID, 11)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 10, insufficient.Available)

	// Failed adjustment keeps the previous quantity.
	current, err := store.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, current.Quantity)
}

func TestAdjust_Validation(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store)
	productID := seedProduct(store, 10)

	c, err := l.Reserve(ctx, productID, model.SourceTypeDeal, uuid.New(), uuid.New(), 4)
	require.NoError(t, err)

	assert.ErrorIs(t, l.Adjust(ctx, c.ID, 0), ErrInvalidInput)
	assert.ErrorIs(t, l.Adjust(ctx, uuid.New(), 2), ErrCommitmentNotFound)

	require.NoError(t, l.Release(ctx, c.ID))
	assert.ErrorIs(t, l.Adjust(ctx, c.ID, 2), ErrCommitmentNotActive)
}

func TestRelease_RestoresCapacity(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store)
	productID := seedProduct(store, 10)

	c, err := l.Reserve(ctx, productID, model.SourceTypeDeal, uuid.New(), uuid.New(), 10)
	require.NoError(t, err)

	require.NoError(t, l.Release(ctx, c.ID))

	available, err := l.CurrentAvailable(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 10, available)

	// Releasing twice is a no-op failure, not silent success.
	assert.ErrorIs(t, l.Release(ctx, c.ID), ErrCommitmentNotActive)
}

func TestFulfill_MovesStockOnce(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store)
	productID := seedProduct(store, 10)
	sourceID := uuid.New()

	c, err := l.Reserve(ctx, productID, model.SourceTypeDeal, sourceID, uuid.New(), 4)
	require.NoError(t, err)

	require.NoError(t, l.Fulfill(ctx, c.ID))

	onHand, err := store.GetOnHand(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 6, onHand)

	// The commitment left the committed total in the same step, so
	// availability stays at 6 rather than dropping to 2.
	available, err := l.CurrentAvailable(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 6, available)

	require.Len(t, store.movements, 1)
	m := store.movements[0]
	assert.Equal(t, model.MovementOut, m.MovementType)
	assert.Equal(t, -4, m.QuantityDelta)
	assert.Equal(t, 6, m.StockAfter)
	require.NotNil(t, m.CommitmentID)
	assert.Equal(t, c.ID, *m.CommitmentID)

	// Fulfilling again must not double-deduct.
	assert.ErrorIs(t, l.Fulfill(ctx, c.ID), ErrCommitmentNotActive)
	onHand, _ = store.GetOnHand(ctx, productID)
	assert.Equal(t, 6, onHand)
}

func TestFulfill_InboundIncrementsStock(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store)
	productID := seedProduct(store, 3)

	c, err := l.Reserve(ctx, productID, model.SourceTypePurchaseOrder, uuid.New(), uuid.New(), 20)
	require.NoError(t, err)
	require.NoError(t, l.Fulfill(ctx, c.ID))

	onHand, err := store.GetOnHand(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 23, onHand)

	require.Len(t, store.movements, 1)
	assert.Equal(t, model.MovementIn, store.movements[0].MovementType)
	assert.Equal(t, 20, store.movements[0].QuantityDelta)
}

func TestFulfillSource_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store)
	productA := seedProduct(store, 10)
	productB := seedProduct(store, 10)
	sourceID := uuid.New()

	_, err := l.Reserve(ctx, productA, model.SourceTypeDeal, sourceID, uuid.New(), 4)
	require.NoError(t, err)
	_, err = l.Reserve(ctx, productB, model.SourceTypeDeal, sourceID, uuid.New(), 6)
	require.NoError(t, err)

	// Sabotage product B behind the ledger's back so its fulfillment fails.
	store.mu.Lock()
	store.onHand[productB] = 2
	store.mu.Unlock()

	n, err := l.FulfillSource(ctx, model.SourceTypeDeal, sourceID)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 0, n)

	// Product A's deduction was rolled back with the batch.
	onHandA, _ := store.GetOnHand(ctx, productA)
	assert.Equal(t, 10, onHandA)
	assert.Empty(t, store.movements)

	remaining, err := store.ListActiveBySource(ctx, model.SourceTypeDeal, sourceID)
	require.NoError(t, err)
	assert.Len(t, remaining, 2, "both commitments stay ACTIVE after rollback")
}

func TestFulfillSource_MultipleProducts(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store)
	productA := seedProduct(store, 10)
	productB := seedProduct(store, 10)
	sourceID := uuid.New()

	_, err := l.Reserve(ctx, productA, model.SourceTypeDeal, sourceID, uuid.New(), 4)
	require.NoError(t, err)
	_, err = l.Reserve(ctx, productB, model.SourceTypeDeal, sourceID, uuid.New(), 6)
	require.NoError(t, err)

	n, err := l.FulfillSource(ctx, model.SourceTypeDeal, sourceID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	onHandA, _ := store.GetOnHand(ctx, productA)
	onHandB, _ := store.GetOnHand(ctx, productB)
	assert.Equal(t, 6, onHandA)
	assert.Equal(t, 4, onHandB)
	assert.Len(t, store.movements, 2)
}

func TestFulfillSource_NoCommitments(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store)

	n, err := l.FulfillSource(ctx, model.SourceTypeDeal, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReleaseSource_ReleasesAll(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store)
	productA := seedProduct(store, 10)
	productB := seedProduct(store, 10)
	sourceID := uuid.New()

	_, err := l.Reserve(ctx, productA, model.SourceTypeDeal, sourceID, uuid.New(), 4)
	require.NoError(t, err)
	_, err = l.Reserve(ctx, productB, model.SourceTypeDeal, sourceID, uuid.New(), 6)
	require.NoError(t, err)

	n, err := l.ReleaseSource(ctx, model.SourceTypeDeal, sourceID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	availableA, _ := l.CurrentAvailable(ctx, productA)
	availableB, _ := l.CurrentAvailable(ctx, productB)
	assert.Equal(t, 10, availableA)
	assert.Equal(t, 10, availableB)

	onHandA, _ := store.GetOnHand(ctx, productA)
	assert.Equal(t, 10, onHandA, "release never touches on-hand")
	assert.Empty(t, store.movements)
}

func TestReserve_BusyOnContendedProduct(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := NewWithLockWait(store, store, store, &memTx{store: store}, 30*time.Millisecond)
	productID := seedProduct(store, 10)

	// Hold the product's lock so the reservation times out.
	require.NoError(t, l.locks.acquire(productID))
	defer l.locks.release(productID)

	_, err := l.Reserve(ctx, productID, model.SourceTypeDeal, uuid.New(), uuid.New(), 1)
	assert.ErrorIs(t, err, ErrBusy)
}

func TestAvailabilityResolver_Snapshot(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store)
	resolver := NewAvailabilityResolver(store, store)
	productID := seedProduct(store, 10)

	_, err := l.Reserve(ctx, productID, model.SourceTypeDeal, uuid.New(), uuid.New(), 3)
	require.NoError(t, err)

	a, err := resolver.GetAvailable(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, productID, a.ProductID)
	assert.Equal(t, 10, a.OnHand)
	assert.Equal(t, 3, a.Committed)
	assert.Equal(t, 7, a.Available)
}

func TestDistinctProducts_SortedAndDeduplicated(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	c := uuid.MustParse("00000000-0000-0000-0000-000000000003")

	commitments := []model.Commitment{
		{ProductID: c}, {ProductID: a}, {ProductID: b}, {ProductID: a}, {ProductID: c},
	}
	got := distinctProducts(commitments)
	require.Equal(t, []uuid.UUID{a, b, c}, got)
}
