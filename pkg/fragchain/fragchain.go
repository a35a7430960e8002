// Package fragchain assembles the scatter/gather byte chains
// pkg/serdata.FromSerChain and FromSerIOV consume: a chain of received RTPS
// fragments, or an arbitrary iovec-style list of buffers, coalesced into one
// contiguous byte slice the codec engine can read from.
package fragchain

import "fmt"

// Fragment is one piece of a fragmented sample, identified by its byte
// offset within the reassembled whole.
type Fragment struct {
	Offset int
	Data   []byte
}

// Chain is an ordered list of fragments covering (eventually) one
// contiguous byte range. Fragments may overlap — retransmitted ranges
// arrive more than once — but a complete chain has no gaps.
type Chain struct {
	fragments []Fragment
	total     int
}

// NewChain creates an empty chain that expects total bytes once complete.
func NewChain(total int) *Chain {
	return &Chain{total: total}
}

// Add inserts a fragment into the chain, keeping fragments sorted by offset.
// A fragment reaching outside [0, total) is rejected.
func (c *Chain) Add(f Fragment) error {
	if f.Offset < 0 || f.Offset+len(f.Data) > c.total {
		return fmt.Errorf("fragchain: fragment [%d, %d) outside expected range [0, %d)", f.Offset, f.Offset+len(f.Data), c.total)
	}
	i := 0
	for ; i < len(c.fragments); i++ {
		if c.fragments[i].Offset > f.Offset {
			break
		}
	}
	c.fragments = append(c.fragments, Fragment{})
	copy(c.fragments[i+1:], c.fragments[i:])
	c.fragments[i] = f
	return nil
}

// Complete reports whether the chain's fragments cover [0, total) with no
// gaps. Overlapping fragments are fine.
func (c *Chain) Complete() bool {
	covered := 0
	for _, f := range c.fragments {
		if f.Offset > covered {
			return false
		}
		if end := f.Offset + len(f.Data); end > covered {
			covered = end
		}
	}
	return covered == c.total
}

// FirstCovers reports whether the chain's first fragment starts at offset 0
// and carries at least n bytes — the "first fragment contains the CDR
// header" requirement serdata construction enforces.
func (c *Chain) FirstCovers(n int) bool {
	return len(c.fragments) > 0 && c.fragments[0].Offset == 0 && len(c.fragments[0].Data) >= n
}

// Assemble coalesces the chain into one contiguous slice, or an error if
// the chain is not yet Complete. Overlapping ranges are written in arrival
// order within each offset; a retransmitted range is expected to carry the
// same bytes.
func (c *Chain) Assemble() ([]byte, error) {
	if !c.Complete() {
		return nil, fmt.Errorf("fragchain: chain is not complete (have fragments covering a gapped or short range, want %d bytes)", c.total)
	}
	out := make([]byte, c.total)
	for _, f := range c.fragments {
		copy(out[f.Offset:], f.Data)
	}
	return out, nil
}

// IOV is one entry of a scatter/gather buffer list, the Go analogue of a
// POSIX struct iovec, used when a transport hands the codec engine a
// sample's bytes as several discontiguous segments instead of fragments
// needing reassembly tracking.
type IOV struct {
	Base []byte
}

// AssembleIOV coalesces a scatter/gather list into one contiguous slice.
func AssembleIOV(segments []IOV) []byte {
	total := 0
	for _, s := range segments {
		total += len(s.Base)
	}
	out := make([]byte, 0, total)
	for _, s := range segments {
		out = append(out, s.Base...)
	}
	return out
}
