// Package loan implements the refcounted sample-buffer pool a serdata can
// hold in place of owning its own serialized bytes: a "loan" from a heap or
// shared-memory (PSMX) origin, released back to its pool when the last
// reference drops. Grounded on dds_loaned_sample.c / dds_heap_loan.c /
// dds__loaned_sample.h (see DESIGN.md): one reference is always owned by
// whichever serdata currently holds the loan.
package loan

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ddscore/cdrx/internal/logger"
	"github.com/ddscore/cdrx/pkg/codecmetrics"
)

// Origin identifies where a loan's backing memory came from.
type Origin uint8

const (
	OriginHeap Origin = iota
	OriginPSMX
)

func (o Origin) String() string {
	if o == OriginPSMX {
		return "psmx"
	}
	return "heap"
}

// State describes what a loan's buffer currently holds, mirroring the
// loaned-sample state enum of the reference material: raw sample memory
// (key-only or full data) or serialized CDR bytes (key-only or full data).
type State uint8

const (
	StateUnset State = iota
	StateRawKey
	StateRawData
	StateSerializedKey
	StateSerializedData
)

func (s State) String() string {
	switch s {
	case StateRawKey:
		return "raw_key"
	case StateRawData:
		return "raw_data"
	case StateSerializedKey:
		return "serialized_key"
	case StateSerializedData:
		return "serialized_data"
	default:
		return "unset"
	}
}

// IsSerialized reports whether the loan's bytes are CDR (header + payload)
// rather than raw sample memory.
func (s State) IsSerialized() bool {
	return s == StateSerializedKey || s == StateSerializedData
}

// Metadata travels with a loan across the process boundary: what the buffer
// holds, the CDR encapsulation identifier and options of serialized
// contents, and the instance/type identities the publishing side stamped.
type Metadata struct {
	State         State
	CDRIdentifier uint16
	CDROptions    uint16
	InstanceID    uint64
	TypeID        uint64
}

// Sample is one loaned buffer: refcounted, origin-tagged memory a serdata
// can reference instead of copying.
type Sample struct {
	buf    []byte
	origin Origin
	meta   Metadata
	refs   atomic.Int32
	pool   *Pool // nil if not pool-backed
}

// Bytes returns the loaned buffer. Callers must not retain it past the
// matching Release call.
func (s *Sample) Bytes() []byte { return s.buf }

// Origin reports where this loan's memory came from.
func (s *Sample) Origin() Origin { return s.origin }

// Metadata returns the loan's descriptive metadata.
func (s *Sample) Metadata() Metadata { return s.meta }

// SetMetadata stamps the loan's metadata; callers do this before handing the
// loan to a serdata constructor that branches on the loan's state.
func (s *Sample) SetMetadata(m Metadata) { s.meta = m }

// Retain increments the loan's refcount, returning the same *Sample for
// chaining.
func (s *Sample) Retain() *Sample {
	s.refs.Add(1)
	return s
}

// Release decrements the loan's refcount, returning the buffer to its pool
// (or letting it be garbage collected, for heap loans with no pool) once
// the count reaches zero. Calling Release more times than a loan was
// retained is a contract violation.
func (s *Sample) Release() error {
	n := s.refs.Add(-1)
	if n < 0 {
		return fmt.Errorf("loan: release called with refcount already zero")
	}
	if n == 0 {
		if s.pool != nil {
			s.pool.put(s)
		}
		logger.Debug("loan: released", logger.KeyLoanSize, len(s.buf))
	}
	return nil
}

// RefCount returns the loan's current reference count, for tests and
// diagnostics.
func (s *Sample) RefCount() int32 { return s.refs.Load() }

// Pool is a capacity-bounded, mutex-protected freelist of heap-backed
// loans, sized in bytes, that doubles its capacity when a request exceeds
// what is currently available rather than failing outright — matching the
// upstream loan pool's grow-on-demand behavior (see DESIGN.md).
type Pool struct {
	mu       sync.Mutex
	free     []*Sample
	capacity int
	lent     int // buffers handed out by Acquire and not yet back through put
}

// NewPool creates a loan pool with the given initial free-list capacity
// (number of buffers it can hold without growing).
func NewPool(initialCapacity int) *Pool {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &Pool{capacity: initialCapacity}
}

// Acquire returns a loan of at least size bytes, reusing a pooled buffer
// large enough to satisfy size where possible, or allocating a fresh one
// otherwise. The returned Sample starts with refcount 1, owned by the
// caller.
func (p *Pool) Acquire(size int) *Sample {
	p.mu.Lock()
	for i, s := range p.free {
		if cap(s.buf) >= size {
			p.free = append(p.free[:i], p.free[i+1:]...)
			p.lent++
			occupancy := len(p.free)
			p.mu.Unlock()
			recordOccupancy(occupancy)
			s.buf = s.buf[:size]
			s.meta = Metadata{}
			s.refs.Store(1)
			return s
		}
	}
	if len(p.free)+p.lent >= p.capacity {
		p.capacity *= 2
	}
	p.lent++
	p.mu.Unlock()

	s := &Sample{buf: make([]byte, size), origin: OriginHeap, pool: p}
	s.refs.Store(1)
	return s
}

func (p *Pool) put(s *Sample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lent--
	if len(p.free) >= p.capacity {
		return // drop it; let GC reclaim, pool stays at capacity
	}
	p.free = append(p.free, s)
	recordOccupancy(len(p.free))
}

func recordOccupancy(n int) {
	if rec := codecmetrics.New(); rec != nil {
		rec.RecordLoanPool(OriginHeap.String(), n)
	}
}

// Len returns the number of buffers currently sitting in the free list, for
// tests and pkg/codecmetrics gauges.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// FromPSMX wraps a shared-memory-origin buffer the caller already owns
// (e.g. handed to it by a PSMX plugin) as a Sample with refcount 1 and no
// backing pool — Release on a PSMX loan never recycles anything here since
// the shared-memory segment's lifecycle belongs to the PSMX plugin, not
// this pool.
func FromPSMX(buf []byte, meta Metadata) *Sample {
	s := &Sample{buf: buf, origin: OriginPSMX, meta: meta}
	s.refs.Store(1)
	return s
}
