// Package bufpool provides a tiered buffer pool for efficient memory reuse.
//
// The buffer pool provides reusable byte slices for serialization scratch
// space, reducing GC pressure and allocation overhead. This matters most on
// the codec hot paths, where a process may serialize thousands of samples
// per second into buffers that live only as long as one operation.
//
// # Design Rationale
//
// The pool uses three size tiers to balance memory efficiency with reuse:
//   - Small buffers (default 4KB): covers typical serialized samples
//   - Medium buffers (default 64KB): reassembled fragmented samples
//   - Large buffers (default 1MB): bulk payloads (large sequences, blobs)
//
// Buffers larger than the large tier are allocated directly and not pooled
// to avoid keeping very large buffers in memory indefinitely.
//
// # Thread Safety
//
// All operations are thread-safe via sync.Pool. Safe for concurrent use
// across multiple writers and goroutines.
//
// # Usage
//
//	buf := bufpool.Get(size)
//	defer bufpool.Put(buf)
//	// ... use buf ...
package bufpool

import (
	"sync"

	"github.com/ddscore/cdrx/internal/alloc"
)

// Default buffer size classes.
// These can be overridden when creating a custom pool with NewPool.
const (
	// DefaultSmallSize covers typical serialized samples (4KB)
	DefaultSmallSize = 4 << 10

	// DefaultMediumSize covers reassembled fragment chains (64KB)
	DefaultMediumSize = 64 << 10

	// DefaultLargeSize covers bulk payloads (1MB)
	DefaultLargeSize = 1 << 20
)

// Pool manages a set of byte slice pools organized by size class.
// It automatically selects the appropriate pool based on requested size
// and provides fallback allocation for oversized requests.
type Pool struct {
	small      sync.Pool
	medium     sync.Pool
	large      sync.Pool
	smallSize  int
	mediumSize int
	largeSize  int
}

// Config holds configuration for creating a custom buffer pool.
type Config struct {
	// SmallSize is the size of small buffers (default: 4KB)
	SmallSize int

	// MediumSize is the size of medium buffers (default: 64KB)
	MediumSize int

	// LargeSize is the size of large buffers (default: 1MB)
	LargeSize int
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		SmallSize:  DefaultSmallSize,
		MediumSize: DefaultMediumSize,
		LargeSize:  DefaultLargeSize,
	}
}

// NewPool creates a new buffer pool with the given configuration.
// If config is nil, default values are used.
func NewPool(cfg *Config) *Pool {
	if cfg == nil {
		defaultCfg := DefaultConfig()
		cfg = &defaultCfg
	}

	// Apply defaults for zero values
	if cfg.SmallSize <= 0 {
		cfg.SmallSize = DefaultSmallSize
	}
	if cfg.MediumSize <= 0 {
		cfg.MediumSize = DefaultMediumSize
	}
	if cfg.LargeSize <= 0 {
		cfg.LargeSize = DefaultLargeSize
	}

	p := &Pool{
		smallSize:  cfg.SmallSize,
		mediumSize: cfg.MediumSize,
		largeSize:  cfg.LargeSize,
	}

	p.small = sync.Pool{
		New: func() any {
			buf := make([]byte, p.smallSize)
			return &buf
		},
	}
	p.medium = sync.Pool{
		New: func() any {
			buf := make([]byte, p.mediumSize)
			return &buf
		},
	}
	p.large = sync.Pool{
		New: func() any {
			buf := make([]byte, p.largeSize)
			return &buf
		},
	}

	return p
}

// Get returns a byte slice of at least the requested size.
// The returned slice may be larger than requested to use pooled buffers efficiently.
//
// The caller must call Put() when finished with the buffer to return it to the pool.
// Failing to call Put() will cause memory leaks as buffers accumulate outside the pool.
//
// For sizes larger than LargeSize, a new slice is allocated directly
// and will not be pooled (to avoid keeping very large buffers in memory).
//
// Parameters:
//   - size: Minimum required buffer size in bytes
//
// Returns:
//   - A byte slice of at least the requested size
//   - The slice capacity may exceed size to align with pool size classes
func (p *Pool) Get(size int) []byte {
	var bufPtr *[]byte

	switch {
	case size <= p.smallSize:
		bufPtr = p.small.Get().(*[]byte)
	case size <= p.mediumSize:
		bufPtr = p.medium.Get().(*[]byte)
	case size <= p.largeSize:
		bufPtr = p.large.Get().(*[]byte)
	default:
		// For very large payloads, allocate directly without pooling.
		// This prevents keeping oversized buffers in memory indefinitely.
		buf := make([]byte, size)
		return buf
	}

	// Return slice with exact requested length but backed by pooled buffer
	buf := *bufPtr
	return buf[:size]
}

// Put returns a buffer to the pool for reuse.
// The buffer must have been obtained from Get() and should not be used after Put().
//
// Buffers larger than LargeSize are not pooled and will be GC'd normally.
// This is intentional to avoid memory bloat from occasional large payloads.
//
// Thread Safety: Safe to call concurrently from multiple goroutines.
//
// Parameters:
//   - buf: The buffer to return to the pool (must be from Get())
func (p *Pool) Put(buf []byte) {
	// Ignore nil buffers
	if buf == nil {
		return
	}

	// Determine which pool this buffer belongs to based on capacity
	capacity := cap(buf)

	switch capacity {
	case p.smallSize:
		// Reset length to full capacity for next use
		fullBuf := buf[:cap(buf)]
		p.small.Put(&fullBuf)
	case p.mediumSize:
		fullBuf := buf[:cap(buf)]
		p.medium.Put(&fullBuf)
	case p.largeSize:
		fullBuf := buf[:cap(buf)]
		p.large.Put(&fullBuf)
	default:
		// Don't pool oversized or undersized buffers
		// They will be garbage collected normally
		return
	}
}

// poolAllocator adapts a Pool to the alloc.Allocator vtable the stream
// layer takes, so output streams can grow through pooled buffers.
type poolAllocator struct {
	p *Pool
}

// Allocator returns an alloc.Allocator backed by p. Buffers handed out by
// it come from (and return to) p's size classes; a stream torn down with
// Free gives its backing array back to the pool.
func (p *Pool) Allocator() alloc.Allocator {
	return poolAllocator{p: p}
}

func (a poolAllocator) Malloc(size int) []byte {
	if size <= 0 {
		return nil
	}
	return a.p.Get(size)
}

func (a poolAllocator) Realloc(buf []byte, newSize int) []byte {
	if newSize <= cap(buf) {
		return buf[:newSize]
	}
	grown := a.p.Get(newSize)
	copy(grown, buf)
	a.p.Put(buf)
	return grown
}

func (a poolAllocator) Free(buf []byte) {
	a.p.Put(buf)
}

// =============================================================================
// Global Pool
// =============================================================================

// globalPool is the package-level buffer pool with default configuration.
// It's initialized once and shared across all users of the package.
var globalPool = NewPool(nil)

// DefaultAllocator is the global pool behind the alloc.Allocator vtable,
// for callers wiring pooled growth into a stream without managing their own
// Pool instance.
var DefaultAllocator alloc.Allocator = poolAllocator{p: globalPool}

// Get returns a byte slice of at least the requested size from the global pool.
// This is a convenience function for the common case.
//
// Usage:
//
//	buf := bufpool.Get(size)
//	defer bufpool.Put(buf)
//	// ... use buf ...
func Get(size int) []byte {
	return globalPool.Get(size)
}

// Put returns a buffer to the global pool.
// Always pair this with Get() using defer to ensure buffers are returned.
//
// Usage:
//
//	buf := bufpool.Get(size)
//	defer bufpool.Put(buf)
func Put(buf []byte) {
	globalPool.Put(buf)
}

// GetUint32 is a convenience wrapper that accepts uint32 size.
// Useful at call sites working with wire-format lengths, which CDR carries
// as uint32.
func GetUint32(size uint32) []byte {
	return globalPool.Get(int(size))
}
