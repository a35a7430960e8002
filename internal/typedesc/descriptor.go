// Package typedesc builds and interns the per-type descriptor the codec
// engine consults for every operation: size/alignment of the Go
// representation, the op-stream tree, the two key-ordering views
// (declaration order and member-id order), and the memcpy-fast-path
// eligibility check.
package typedesc

import (
	"fmt"
	"hash/fnv"
	"reflect"
	"sort"

	"github.com/ddscore/cdrx/internal/keyhash"
	"github.com/ddscore/cdrx/internal/ops"
)

// KeyField locates one key-tagged field within a type's Go value: Path is
// the chain of struct-field indices from the root value down to the
// aggregate containing Field, and Field is that aggregate's own ops.Field
// descriptor for the key member itself.
type KeyField struct {
	Path  []int
	Field ops.Field
}

// TypeDescriptor is the fully resolved, process-wide-interned description
// of one registered Go type's wire representation. It is the Go analogue of
// dds_cdrstream_desc (see DESIGN.md).
type TypeDescriptor struct {
	Name   string
	GoType reflect.Type
	Ops    *ops.Aggregate

	Size  int // reflect.Type.Size() of GoType
	Align int // reflect.Type.Align() of GoType

	Flags          ops.DataTypeFlags
	NestingDepth   int
	MinXCDRVersion uint8

	KeysDeclOrder     []KeyField // in field-declaration order
	KeysMemberIDOrder []KeyField // sorted by member id, for XCDR2 key CDR

	// KeyWorstCaseSizeXCDR2 is the largest number of XCDR2 key bytes any
	// value of this type can produce, and HasFixedKeyXCDR2 reports whether
	// that bound is a fixed, value-independent quantity no larger than
	// keyhash.Size. A string/wstring/sequence key member (bounded or not)
	// makes HasFixedKeyXCDR2 false regardless of the current value's actual
	// length, since the worst case is taken over the type, not one sample —
	// this is what keyhash.Compute and FromKeyhash consult to decide between
	// the raw key view and the MD5 fallback.
	KeyWorstCaseSizeXCDR2 uint32
	HasFixedKeyXCDR2      bool

	// OptimizedSizeXCDR1/2 are >0 only when this implementation judges the
	// Go in-memory representation of GoType to be byte-identical to its
	// XCDR1/XCDR2 wire form and a memcpy fast path could be used safely.
	// This implementation always returns 0 for both: see DESIGN.md
	// "check_optimize" entry for why Go's struct layout (field padding,
	// slice headers, bool representation across architectures) cannot be
	// relied upon to equal the wire form without unsafe-pointer tricks this
	// module deliberately avoids. The zero value keeps the "if optimized
	// then bytes match" contract vacuously true rather than silently wrong.
	OptimizedSizeXCDR1 int
	OptimizedSizeXCDR2 int

	// BaseHash seeds keyhash.Mix so that two types whose key encodings
	// happen to produce identical byte sequences still hash to different
	// buckets. Derived from Name, not from registration order, so it is
	// stable across process restarts.
	BaseHash uint32
}

// New builds a TypeDescriptor for goType/agg without interning it in a
// Registry. Most callers should use Registry.Register instead.
func New(name string, goType reflect.Type, agg *ops.Aggregate) (*TypeDescriptor, error) {
	if goType.Kind() == reflect.Ptr {
		goType = goType.Elem()
	}
	if goType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("typedesc: %s: root Go type must be a struct, got %s", name, goType.Kind())
	}

	depth, err := ops.NestingDepth(agg)
	if err != nil {
		return nil, fmt.Errorf("typedesc: %s: %w", name, err)
	}

	decl := collectKeys(agg, nil)
	byMemberID := make([]KeyField, len(decl))
	copy(byMemberID, decl)
	sort.SliceStable(byMemberID, func(i, j int) bool {
		if byMemberID[i].Field.MemberID != byMemberID[j].Field.MemberID {
			return byMemberID[i].Field.MemberID < byMemberID[j].Field.MemberID
		}
		return byMemberID[i].Field.Name < byMemberID[j].Field.Name
	})

	keyFields := make([]ops.Field, len(byMemberID))
	for i, k := range byMemberID {
		keyFields[i] = k.Field
	}
	worstCaseSize, fixed := ops.WorstCaseKeySizeXCDR2(keyFields)

	return &TypeDescriptor{
		Name:                  name,
		GoType:                goType,
		Ops:                   agg,
		Size:                  int(goType.Size()),
		Align:                 goType.Align(),
		Flags:                 ops.ComputeDataTypeFlags(agg),
		NestingDepth:          depth,
		MinXCDRVersion:        ops.MinimumXCDRVersion(agg),
		KeysDeclOrder:         decl,
		KeysMemberIDOrder:     byMemberID,
		KeyWorstCaseSizeXCDR2: worstCaseSize,
		HasFixedKeyXCDR2:      fixed && worstCaseSize <= keyhash.Size,
		BaseHash:              baseHash(name),
	}, nil
}

func collectKeys(agg *ops.Aggregate, path []int) []KeyField {
	if agg == nil {
		return nil
	}
	var out []KeyField
	for _, f := range agg.Fields {
		fieldPath := append(append([]int{}, path...), f.FieldIndex)
		if f.Flags.Has(ops.FlagKey) {
			out = append(out, KeyField{Path: fieldPath, Field: f})
		}
		if f.Kind == ops.KStruct {
			out = append(out, collectKeys(f.Nested, fieldPath)...)
		}
	}
	return out
}

func baseHash(name string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return h.Sum32()
}

// CountOps returns the total number of addressable fields in agg's entire
// tree (struct members, array/sequence elements, union arms), the Go
// analogue of dds_stream_countops — useful for sizing log/metrics labels
// and for a cheap structural-equality pre-check before a full comparison.
func CountOps(agg *ops.Aggregate) int {
	if agg == nil {
		return 0
	}
	n := 0
	for _, f := range agg.Fields {
		n++
		n += countFieldOps(&f)
	}
	return n
}

func countFieldOps(f *ops.Field) int {
	switch f.Kind {
	case ops.KStruct:
		return CountOps(f.Nested)
	case ops.KArray, ops.KSequence:
		if f.Elem == nil {
			return 0
		}
		return 1 + countFieldOps(f.Elem)
	case ops.KUnion:
		if f.Union == nil {
			return 0
		}
		n := 0
		for _, c := range f.Union.Cases {
			n += 1 + countFieldOps(&c.Field)
		}
		return n
	default:
		return 0
	}
}
