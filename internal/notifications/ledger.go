package notifications

import "sync"

const defaultLedgerCapacity = 500

// Ledger is a bounded set of incident ids already announced to chat targets.
// When full, the oldest id is evicted. It is process-local.
type Ledger struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string // ring buffer, insertion order
	head  int
	size  int
}

// NewLedger creates a ledger holding at most capacity ids.
func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = defaultLedgerCapacity
	}
	return &Ledger{
		ids:   make(map[string]struct{}, capacity),
		order: make([]string, capacity),
	}
}

// Contains reports whether id was marked and not yet evicted.
func (l *Ledger) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.ids[id]
	return ok
}

// Mark adds ids, evicting the oldest entries on overflow.
// Ids already present keep their original position.
func (l *Ledger) Mark(ids ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range ids {
		if _, ok := l.ids[id]; ok {
			continue
		}

		if l.size == len(l.order) {
			delete(l.ids, l.order[l.head])
			l.order[l.head] = id
			l.head = (l.head + 1) % len(l.order)
		} else {
			l.order[(l.head+l.size)%len(l.order)] = id
			l.size++
		}
		l.ids[id] = struct{}{}
	}

	ledgerSize.Set(float64(l.size))
}

// Len returns the number of ids held.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Capacity returns the maximum number of ids held.
func (l *Ledger) Capacity() int {
	return len(l.order)
}
