package mempool

import "sync"

// recencySet is a bounded first-in-first-out membership set over transaction
// hashes. Admitting past capacity evicts the oldest entry, so a hash that
// falls out can be admitted again; downstream tolerates that false negative.
type recencySet struct {
	mu       sync.Mutex
	capacity int
	order    []string
	seen     map[string]struct{}
}

func newRecencySet(capacity int) *recencySet {
	if capacity <= 0 {
		capacity = 1000
	}
	return &recencySet{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		seen:     make(map[string]struct{}, capacity),
	}
}

// Admit records hash and reports whether it was new. A duplicate leaves the
// set unchanged and keeps its original eviction position.
func (r *recencySet) Admit(hash string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.seen[hash]; dup {
		return false
	}
	if len(r.order) >= r.capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.seen, oldest)
	}
	r.order = append(r.order, hash)
	r.seen[hash] = struct{}{}
	return true
}

func (r *recencySet) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}
