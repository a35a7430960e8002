package ops

// DataTypeFlags is a bitmask summarizing which wire features an aggregate's
// op-stream exercises, mirroring dds_stream_data_types's "does this type use
// strings / sequences / unions / ..." summary (see DESIGN.md). It lets
// callers short-circuit expensive passes (e.g. skip UTF-16 validation
// entirely for a type with no KWString field anywhere in its tree).
type DataTypeFlags uint32

const (
	DTString DataTypeFlags = 1 << iota
	DTWString
	DTSequence
	DTArray
	DTUnion
	DTNestedStruct
	DTOptional
	DTExternal
	DTAppendable
	DTMutable
	DTEnumBitmask
)

// ComputeDataTypeFlags walks agg's full field tree and returns the union of
// every DataTypeFlags bit exercised anywhere within it.
func ComputeDataTypeFlags(agg *Aggregate) DataTypeFlags {
	var flags DataTypeFlags
	walkDataTypeFlags(agg, &flags)
	return flags
}

func walkDataTypeFlags(agg *Aggregate, flags *DataTypeFlags) {
	if agg == nil {
		return
	}
	switch agg.Ext {
	case Appendable:
		*flags |= DTAppendable
	case Mutable:
		*flags |= DTMutable
	}
	for _, f := range agg.Fields {
		fieldDataTypeFlags(&f, flags)
	}
}

func fieldDataTypeFlags(f *Field, flags *DataTypeFlags) {
	if f.Flags.Has(FlagOptional) {
		*flags |= DTOptional
	}
	if f.Flags.Has(FlagExternal) {
		*flags |= DTExternal
	}
	switch f.Kind {
	case KString:
		*flags |= DTString
	case KWString:
		*flags |= DTWString
	case KEnum, KBitmask:
		*flags |= DTEnumBitmask
	case KArray:
		*flags |= DTArray
		if f.Elem != nil {
			fieldDataTypeFlags(f.Elem, flags)
		}
	case KSequence:
		*flags |= DTSequence
		if f.Elem != nil {
			fieldDataTypeFlags(f.Elem, flags)
		}
	case KStruct:
		*flags |= DTNestedStruct
		walkDataTypeFlags(f.Nested, flags)
	case KUnion:
		*flags |= DTUnion
		if f.Union != nil {
			for _, c := range f.Union.Cases {
				fieldDataTypeFlags(&c.Field, flags)
			}
		}
	}
}

// MinimumXCDRVersion returns 1 if every aggregate in agg's tree is Final and
// no member is @external, or 2 if any aggregate is Appendable or Mutable or
// any member is @external. Grounded on
// dds_stream_minimum_xcdr_version (see DESIGN.md).
func MinimumXCDRVersion(agg *Aggregate) uint8 {
	flags := ComputeDataTypeFlags(agg)
	if flags&(DTMutable|DTExternal) != 0 {
		return 2
	}
	if flags&DTAppendable != 0 {
		return 2
	}
	return 1
}

// KeyFlags reports whether agg has at least one FlagKey field among its own
// fields or those of its nested struct members at any depth, whether any
// such key field lives inside a nested struct, and whether any key field is
// itself optional.
type KeyFlags struct {
	HasKeys       bool
	KeyInNested   bool
	KeyOptional   bool
}

// ComputeKeyFlags walks agg's direct fields and, recursively, the fields of
// every nested struct member, and reports which KeyFlags apply. Union arms
// and array/sequence elements are not visited.
func ComputeKeyFlags(agg *Aggregate) KeyFlags {
	var kf KeyFlags
	walkKeyFlags(agg, &kf, false)
	return kf
}

func walkKeyFlags(agg *Aggregate, kf *KeyFlags, nested bool) {
	if agg == nil {
		return
	}
	for _, f := range agg.Fields {
		if f.Flags.Has(FlagKey) {
			kf.HasKeys = true
			if nested {
				kf.KeyInNested = true
			}
			if f.Flags.Has(FlagOptional) {
				kf.KeyOptional = true
			}
		}
		if f.Kind == KStruct {
			walkKeyFlags(f.Nested, kf, true)
		}
	}
}

// WorstCaseFieldSizeXCDR2 returns the number of bytes f's XCDR2 encoding
// occupies in the worst case the field's declared type allows (starting at
// a fresh encapsulation offset), and whether that worst case is a fixed,
// value-independent quantity at all. A string or wstring key is never
// fixed, even when bounded: a bound caps how long the value may be, it does
// not pin how long it is, so the worst case still varies with the value.
// Sequences are never fixed for the same reason, and a union key is
// conservatively treated as variable since its wire size depends on which
// arm is active. Grounded on dds_stream_key_flags's worst-case sizing pass
// (see DESIGN.md).
func WorstCaseFieldSizeXCDR2(f *Field) (size uint32, fixed bool) {
	return worstCaseAdvanceXCDR2(f, 0)
}

func alignUp(off, a uint32) uint32 {
	if a <= 1 {
		return off
	}
	return off + (a-off%a)%a
}

// worstCaseAdvanceXCDR2 advances off across f's encoding, including the
// alignment padding f's position forces, under XCDR2's rules (8-byte
// primitives align to 4).
func worstCaseAdvanceXCDR2(f *Field, off uint32) (uint32, bool) {
	if f == nil {
		return off, true
	}
	switch f.Kind {
	case KBool, KInt8, KUint8:
		return off + 1, true
	case KInt16, KUint16:
		return alignUp(off, 2) + 2, true
	case KInt32, KUint32, KFloat32:
		return alignUp(off, 4) + 4, true
	case KInt64, KUint64, KFloat64:
		return alignUp(off, 4) + 8, true
	case KEnum, KBitmask:
		switch f.Width {
		case 8:
			return off + 1, true
		case 16:
			return alignUp(off, 2) + 2, true
		default:
			return alignUp(off, 4) + 4, true
		}
	case KString, KWString, KSequence:
		return 0, false
	case KArray:
		if f.Elem != nil && !f.Elem.Kind.IsPrimitive() && f.Elem.Kind != KEnum && f.Elem.Kind != KBitmask {
			off = alignUp(off, 4) + 4 // DHEADER wrapping the whole array under XCDR2
		}
		for i := uint32(0); i < f.Bound; i++ {
			var ok bool
			off, ok = worstCaseAdvanceXCDR2(f.Elem, off)
			if !ok {
				return 0, false
			}
		}
		return off, true
	case KStruct:
		return worstCaseAggregateAdvanceXCDR2(f.Nested, off)
	default: // KUnion and anything unrecognized: conservatively variable
		return 0, false
	}
}

// worstCaseAggregateAdvanceXCDR2 advances off across every field in agg, or
// reports variable if agg is itself Appendable/Mutable (its DHEADER-framed
// body length isn't pinned by the type alone) or any field is variable.
func worstCaseAggregateAdvanceXCDR2(agg *Aggregate, off uint32) (uint32, bool) {
	if agg == nil {
		return off, true
	}
	if agg.Ext != Final {
		return 0, false
	}
	for i := range agg.Fields {
		var ok bool
		off, ok = worstCaseAdvanceXCDR2(&agg.Fields[i], off)
		if !ok {
			return 0, false
		}
	}
	return off, true
}

// WorstCaseKeySizeXCDR2 advances a single offset across keys, the set of
// key-member leaf fields in canonical member-id order, reporting the type's
// overall worst-case XCDR2 key size (alignment padding included) and
// whether it is fixed. An empty key set is fixed with size 0.
func WorstCaseKeySizeXCDR2(keys []Field) (size uint32, fixed bool) {
	var off uint32
	for i := range keys {
		var ok bool
		off, ok = worstCaseAdvanceXCDR2(&keys[i], off)
		if !ok {
			return 0, false
		}
	}
	return off, true
}
