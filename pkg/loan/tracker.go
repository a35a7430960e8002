package loan

import "sync"

// Tracker is the per-entity container of outstanding loans: every sample
// buffer currently lent out to application code, findable by the buffer the
// application hands back. A writer or reader owns one Tracker and drains it
// on teardown. Operations are short and serialized by a single mutex.
type Tracker struct {
	mu    sync.Mutex
	loans []*Sample
}

// NewTracker creates a Tracker with room for capacity outstanding loans
// before its backing storage grows (by doubling, via append).
func NewTracker(capacity int) *Tracker {
	if capacity < 1 {
		capacity = 1
	}
	return &Tracker{loans: make([]*Sample, 0, capacity)}
}

// Add records s as outstanding, taking over one reference: the Tracker
// releases it when the loan is removed via Free, not on FindAndRemove or
// Pop (those transfer the reference back to the caller).
func (t *Tracker) Add(s *Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loans = append(t.loans, s)
}

// FindAndRemove locates the outstanding loan whose buffer backs sample
// (linear scan — outstanding counts per entity are small), removes it, and
// returns it with the Tracker's reference transferred to the caller. Nil if
// no held loan backs sample.
func (t *Tracker) FindAndRemove(sample []byte) *Sample {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.loans {
		if sameBacking(s.buf, sample) {
			t.loans = append(t.loans[:i], t.loans[i+1:]...)
			return s
		}
	}
	return nil
}

// Pop removes and returns any outstanding loan (the most recently added),
// transferring the Tracker's reference to the caller. Nil when empty.
func (t *Tracker) Pop() *Sample {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.loans) == 0 {
		return nil
	}
	s := t.loans[len(t.loans)-1]
	t.loans = t.loans[:len(t.loans)-1]
	return s
}

// Free releases one reference on every loan still outstanding and empties
// the Tracker. The first release error is returned; the drain continues
// past it so no loan is left stranded.
func (t *Tracker) Free() error {
	t.mu.Lock()
	loans := t.loans
	t.loans = nil
	t.mu.Unlock()

	var firstErr error
	for _, s := range loans {
		if err := s.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Len returns the number of outstanding loans.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.loans)
}

// sameBacking reports whether two slices share a backing array start —
// the Go analogue of comparing the sample pointers a C caller would hand
// back.
func sameBacking(a, b []byte) bool {
	return len(a) > 0 && len(b) > 0 && &a[0] == &b[0]
}
