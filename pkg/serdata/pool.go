package serdata

import (
	"fmt"
	"sync"
	"time"

	"github.com/ddscore/cdrx/internal/cdrstream"
	"github.com/ddscore/cdrx/internal/codec"
	"github.com/ddscore/cdrx/internal/typedesc"
	"github.com/ddscore/cdrx/pkg/codecmetrics"
)

// MaxPoolSize bounds how many freed Serdata instances per type a Pool will
// hold onto before it starts letting the GC reclaim them outright.
// Grounded on dds_serdata_default.c's MAX_POOL_SIZE (see DESIGN.md).
const MaxPoolSize = 8192

// MaxSizeForPool is the largest owned data payload (in bytes) a Serdata may
// carry and still be eligible for pooling; larger samples are released to
// the GC instead of recycled, mirroring MAX_SIZE_FOR_POOL.
const MaxSizeForPool = 256

// Pool recycles Serdata instances for one registered type, avoiding a fresh
// allocation (and fresh keyhash/hash zeroing) on every construct/release
// cycle for small, high-frequency samples. Adapted from bufpool.Pool's
// sync.Pool-backed tiering, sized to one object class instead of three.
type Pool struct {
	desc *typedesc.TypeDescriptor
	free sync.Pool
	sem  chan struct{} // bounds the free list to MaxPoolSize entries
}

// NewPool creates an empty Pool recycling samples of desc's type. capacity
// overrides MaxPoolSize; 0 or negative falls back to the default.
func NewPool(desc *typedesc.TypeDescriptor, capacity int) *Pool {
	if capacity <= 0 {
		capacity = MaxPoolSize
	}
	p := &Pool{desc: desc, sem: make(chan struct{}, capacity)}
	p.free.New = func() any { return &Serdata{} }
	return p
}

// FromSample is FromSample backed by this pool: the container comes from
// the free list when one is available, and returns to it when the last
// reference drops (payloads up to MaxSizeForPool only).
func (p *Pool) FromSample(order cdrstream.ByteOrder, xcdrVersion uint8, sample any) (*Serdata, error) {
	start := time.Now()
	out := cdrstream.NewOutputStream(order, xcdrVersion, nil)
	err := codec.WriteSample(out, p.desc.Ops, sample)
	observeWrite(start, err)
	if err != nil {
		return nil, fmt.Errorf("serdata: pool from sample: %w", err)
	}
	keyBytes, err := codec.ExtractKeyFromData(p.desc, sample)
	if err != nil {
		return nil, fmt.Errorf("serdata: pool from sample: %w", err)
	}
	s := p.get()
	fillFromKeyBytes(s, p.desc, order, xcdrVersion, keyBytes)
	s.kind = KindData
	s.data = out.Buf
	return s, nil
}

// get returns a zeroed Serdata ready for a construct function to populate,
// reused from the free list when available.
func (p *Pool) get() *Serdata {
	s := p.free.Get().(*Serdata)
	s.pool = p
	select {
	case <-p.sem:
	default:
		// a fresh instance from free.New, or the GC already cleared the
		// slot this Serdata occupied; either way there's nothing to drain
	}
	p.record()
	return s
}

// put returns s to the free list once its refcount has reached zero, unless
// its owned payload is too large to be worth recycling or the free list is
// already at capacity.
func (p *Pool) put(s *Serdata) {
	if len(s.data) > MaxSizeForPool {
		return
	}
	select {
	case p.sem <- struct{}{}:
		s.reset()
		p.free.Put(s)
	default:
		// at capacity, let the GC take it
	}
	p.record()
}

// Len returns the current free-list occupancy, for tests and gauges.
func (p *Pool) Len() int { return len(p.sem) }

func (p *Pool) record() {
	if rec := codecmetrics.New(); rec != nil {
		rec.RecordSerdataPool(p.desc.Name, len(p.sem))
	}
}
