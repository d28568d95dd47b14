package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultLockWait bounds how long a writer blocks on a contended product
// before giving up with ErrBusy. Ledger critical sections are short and
// synchronous, so anything beyond this indicates a stuck peer.
const defaultLockWait = 2 * time.Second

// productLocks serializes mutating operations per product. Operations on
// different products proceed in parallel; the slot channel acts as a
// single-owner semaphore per product ID.
type productLocks struct {
	mu      sync.Mutex
	slots   map[uuid.UUID]chan struct{}
	maxWait time.Duration
}

func newProductLocks(maxWait time.Duration) *productLocks {
	if maxWait <= 0 {
		maxWait = defaultLockWait
	}
	return &productLocks{
		slots:   make(map[uuid.UUID]chan struct{}),
		maxWait: maxWait,
	}
}

func (l *productLocks) slot(productID uuid.UUID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[productID]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[productID] = s
	}
	return s
}

// acquire takes the product's slot or fails with ErrBusy after maxWait.
func (l *productLocks) acquire(productID uuid.UUID) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slot(productID) <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrBusy
	}
}

func (l *productLocks) release(productID uuid.UUID) {
	<-l.slot(productID)
}
