// Package serdata implements the sample container the codec and keyhash
// packages feed into and read out of: a refcounted box around either owned
// serialized bytes, a canonical 16-byte keyhash, or a loaned buffer,
// convertible between those forms without always paying for a full decode.
// Grounded on dds_serdata_default.c / ddsi_serdata.h (see DESIGN.md).
package serdata

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ddscore/cdrx/internal/cdrstream"
	"github.com/ddscore/cdrx/internal/keyhash"
	"github.com/ddscore/cdrx/internal/logger"
	"github.com/ddscore/cdrx/internal/typedesc"
	"github.com/ddscore/cdrx/pkg/loan"
)

// Kind is what a Serdata actually holds: nothing yet, only a key, or a full
// data sample. Mirrors SDK_EMPTY/SDK_KEY/SDK_DATA (see DESIGN.md).
type Kind uint8

const (
	KindEmpty Kind = iota
	KindKey
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindKey:
		return "key"
	case KindData:
		return "data"
	default:
		return "empty"
	}
}

// keyBufKind tags how a Serdata's key bytes are stored, mirroring
// KEYBUFTYPE_UNSET/STATIC/DYNALLOC/DYNALIAS.
type keyBufKind uint8

const (
	keyBufUnset keyBufKind = iota
	keyBufStatic
	keyBufDynAlloc
	keyBufDynAlias
)

// Serdata is the sample container. Zero value is not usable; construct one
// via the From* functions in construct.go.
type Serdata struct {
	desc  *typedesc.TypeDescriptor
	kind  Kind
	refs  atomic.Int32
	order cdrstream.ByteOrder
	xcdr  uint8

	data []byte     // owned serialized sample bytes, nil if loan-backed
	ln   *loan.Sample // set if the sample bytes come from a loan instead

	keyKind   keyBufKind
	keyStatic [keyhash.Size]byte // used when keyLen <= keyhash.Size
	keyLen    int                // valid key byte count in keyStatic, when keyKind == keyBufStatic
	keyDyn    []byte             // used when the key is larger (rare: hashed form covers this)

	hash          uint32
	keyHashBytes  [keyhash.Size]byte
	keyHashIsMD5  bool

	ts         time.Time
	statusInfo uint32

	pool *Pool
}

// Timestamp returns the source timestamp stamped on this sample, zero if
// none was set.
func (s *Serdata) Timestamp() time.Time { return s.ts }

// SetTimestamp stamps the sample's source timestamp.
func (s *Serdata) SetTimestamp(t time.Time) { s.ts = t }

// StatusInfo returns the RTPS statusinfo word carried alongside the sample
// (dispose/unregister bits).
func (s *Serdata) StatusInfo() uint32 { return s.statusInfo }

// SetStatusInfo sets the RTPS statusinfo word.
func (s *Serdata) SetStatusInfo(v uint32) { s.statusInfo = v }

// Descriptor returns the TypeDescriptor this sample was constructed
// against.
func (s *Serdata) Descriptor() *typedesc.TypeDescriptor { return s.desc }

// Kind returns whether this container holds nothing, only a key, or a full
// sample.
func (s *Serdata) Kind() Kind { return s.kind }

// Hash returns the 32-bit in-process hash used to bucket this sample in
// local hash tables (internal/keyhash.Mix of desc.BaseHash and the key
// bytes).
func (s *Serdata) Hash() uint32 { return s.hash }

// Retain increments the serdata's own refcount (distinct from any
// underlying loan's refcount) and returns s for chaining.
func (s *Serdata) Retain() *Serdata {
	s.refs.Add(1)
	return s
}

// Release decrements the serdata's refcount, returning its loan (if any)
// and itself (if pool-backed) once the count reaches zero.
func (s *Serdata) Release() error {
	n := s.refs.Add(-1)
	if n < 0 {
		return fmt.Errorf("serdata: release called with refcount already zero")
	}
	if n == 0 {
		if s.ln != nil {
			if err := s.ln.Release(); err != nil {
				return fmt.Errorf("serdata: releasing backing loan: %w", err)
			}
		}
		logger.Debug("serdata: released", logger.SerdataKind(s.kind.String()), logger.Hash(s.hash))
		if s.pool != nil {
			s.pool.put(s)
		}
	}
	return nil
}

// RefCount returns the current refcount, for tests and diagnostics.
func (s *Serdata) RefCount() int32 { return s.refs.Load() }

// GetKeyhash returns the sample's 16-byte keyhash and whether computing it
// fell back to MD5 (true) or used the raw zero-padded key bytes (false).
func (s *Serdata) GetKeyhash() ([keyhash.Size]byte, bool) {
	return s.keyHashBytes, s.keyHashIsMD5
}

// Key returns s's canonical big-endian XCDR2 key bytes as actually stored —
// the view keyKind classifies as static (inline, keyLen <= keyhash.Size) or
// dynamically allocated (heap slice) — independent of whatever form
// GetKeyhash's digest took. Returns nil if no key bytes are held
// (KindEmpty). A Serdata built via FromKeyhash returns the leading
// KeyWorstCaseSizeXCDR2 bytes of the keyhash, which for its fixed-size key
// are the key bytes themselves.
func (s *Serdata) Key() []byte {
	switch s.keyKind {
	case keyBufStatic:
		return s.keyStatic[:s.keyLen]
	case keyBufDynAlloc, keyBufDynAlias:
		return s.keyDyn
	default:
		return nil
	}
}

// Eqkey reports whether s and other identify the same instance: equal
// keyhash bytes under the same registered type.
func (s *Serdata) Eqkey(other *Serdata) bool {
	if other == nil || s.desc != other.desc {
		return false
	}
	return s.keyHashBytes == other.keyHashBytes
}

func (s *Serdata) reset() {
	s.desc = nil
	s.kind = KindEmpty
	s.refs.Store(0)
	s.data = nil
	s.ln = nil
	s.keyKind = keyBufUnset
	s.keyStatic = [keyhash.Size]byte{}
	s.keyLen = 0
	s.keyDyn = nil
	s.hash = 0
	s.keyHashBytes = [keyhash.Size]byte{}
	s.keyHashIsMD5 = false
	s.ts = time.Time{}
	s.statusInfo = 0
}
