// Package codec is the engine that walks a type's op-stream (internal/ops)
// against an actual Go value via reflection, implementing every operation
// the upstream dds_cdrstream.h exposes: write, read, normalize, key
// extraction, size computation, printing, and freeing. Byte-order and XCDR
// version come from the internal/cdrstream stream the caller constructs; a
// single engine handles both XCDR versions and either byte order.
package codec

import (
	"fmt"
	"math"
	"reflect"

	"github.com/ddscore/cdrx/internal/cdrstream"
	"github.com/ddscore/cdrx/internal/logger"
	"github.com/ddscore/cdrx/internal/ops"
	"github.com/ddscore/cdrx/internal/typedesc"
)

// WriteSample serializes sample (a pointer to the Go struct agg describes)
// onto out, applying agg's own extensibility framing (DHEADER for
// Appendable/Mutable, EMHEADER-addressed members for Mutable).
func WriteSample(out *cdrstream.OutputStream, agg *ops.Aggregate, sample any) error {
	v, err := rootValue(sample)
	if err != nil {
		return err
	}
	logger.Debug("codec: write sample", logger.Operation("write"), logger.XCDRVersion(out.XCDRVersion))
	return writeAggregate(out, agg, v, false)
}

// WriteKey serializes only keys' key-tagged fields (per
// typedesc.TypeDescriptor.KeysMemberIDOrder) onto out, the representation
// used for instance-identity comparisons and keyhash computation.
func WriteKey(out *cdrstream.OutputStream, keys []typedesc.KeyField, sample any) error {
	v, err := rootValue(sample)
	if err != nil {
		return err
	}
	for _, k := range keys {
		fv, f, err := resolvePath(v, k.Path, k.Field)
		if err != nil {
			return err
		}
		if err := writeField(out, f, fv, false); err != nil {
			return err
		}
	}
	return nil
}

func rootValue(sample any) (reflect.Value, error) {
	v := reflect.ValueOf(sample)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}, fmt.Errorf("%w: sample must be a non-nil pointer to struct, got %T", ErrContract, sample)
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: sample must point to a struct, got %s", ErrContract, v.Kind())
	}
	return v, nil
}

func resolvePath(root reflect.Value, path []int, leaf ops.Field) (reflect.Value, *ops.Field, error) {
	v := root
	for _, idx := range path[:len(path)-1] {
		if v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return reflect.Value{}, nil, fmt.Errorf("%w: nil pointer while resolving key path", ErrValidation)
			}
			v = v.Elem()
		}
		v = v.Field(idx)
	}
	if v.Kind() == reflect.Ptr && !v.IsNil() {
		v = v.Elem()
	}
	return v.Field(path[len(path)-1]), &leaf, nil
}

func writeAggregate(out *cdrstream.OutputStream, agg *ops.Aggregate, v reflect.Value, _ bool) error {
	switch agg.Ext {
	case ops.Appendable:
		if out.XCDRVersion != 2 {
			// XCDR1 has no delimited framing; an appendable aggregate
			// encodes like a final one and appendability only works at the
			// message tail.
			return writeFields(out, agg, v, false)
		}
		off := out.WriteDelimitedHeader()
		if err := writeFields(out, agg, v, false); err != nil {
			return err
		}
		out.FinishDelimitedHeader(off)
		return nil
	case ops.Mutable:
		if out.XCDRVersion != 2 {
			return writeFieldsMutableXCDR1(out, agg, v)
		}
		off := out.WriteDelimitedHeader()
		if err := writeFieldsMutable(out, agg, v); err != nil {
			return err
		}
		out.FinishDelimitedHeader(off)
		return nil
	default:
		return writeFields(out, agg, v, false)
	}
}

func writeFields(out *cdrstream.OutputStream, agg *ops.Aggregate, v reflect.Value, inMutable bool) error {
	for i := range agg.Fields {
		f := &agg.Fields[i]
		if err := writeField(out, f, v.Field(f.FieldIndex), inMutable); err != nil {
			return fmt.Errorf("codec: write field %q: %w", f.Name, err)
		}
	}
	return nil
}

func writeFieldsMutable(out *cdrstream.OutputStream, agg *ops.Aggregate, v reflect.Value) error {
	for i := range agg.Fields {
		f := &agg.Fields[i]
		fv := v.Field(f.FieldIndex)

		if f.Flags.Has(ops.FlagOptional) {
			if fv.Kind() != reflect.Ptr {
				return fmt.Errorf("%w: mutable optional field %q must be a pointer", ErrContract, f.Name)
			}
			if fv.IsNil() {
				continue // absent optional member: omit entirely, no EMHEADER
			}
		}

		lc := lengthCodeFor(f)
		if ops.Kind(f.Kind).IsPrimitive() || f.Kind == ops.KEnum || f.Kind == ops.KBitmask {
			out.WriteEMHeader(cdrstream.EMHeader{MemberID: f.MemberID, MustUnderstand: f.Flags.Has(ops.FlagMustUnderstand), LengthCode: lc})
			if err := writeField(out, f, fv, true); err != nil {
				return fmt.Errorf("codec: write mutable field %q: %w", f.Name, err)
			}
			continue
		}

		out.WriteEMHeader(cdrstream.EMHeader{MemberID: f.MemberID, MustUnderstand: f.Flags.Has(ops.FlagMustUnderstand), LengthCode: cdrstream.LCNextInt4})
		lenOff := out.ReservePlaceholder()
		bodyStart := out.Len()
		if err := writeField(out, f, fv, true); err != nil {
			return fmt.Errorf("codec: write mutable field %q: %w", f.Name, err)
		}
		out.PatchU32(lenOff, uint32(out.Len()-bodyStart))
	}
	return nil
}

// writeFieldsMutableXCDR1 emits agg's members as a classic XCDR1 parameter
// list: a short-form header for fixed-width members whose id is below
// cdrstream.PIDMaxShortID, the extended form for everything else, an
// absent optional member as a
// zero-length parameter, and a sentinel closing the list. Parameter bodies
// are padded to a 4-byte boundary with the pad counted in the declared
// length, so the next header needs no realignment on read.
func writeFieldsMutableXCDR1(out *cdrstream.OutputStream, agg *ops.Aggregate, v reflect.Value) error {
	for i := range agg.Fields {
		f := &agg.Fields[i]
		fv := v.Field(f.FieldIndex)

		absent := false
		if f.Flags.Has(ops.FlagOptional) {
			if fv.Kind() != reflect.Ptr {
				return fmt.Errorf("%w: mutable optional field %q must be a pointer", ErrContract, f.Name)
			}
			absent = fv.IsNil()
		}

		mu := f.Flags.Has(ops.FlagMustUnderstand)
		short := f.MemberID < cdrstream.PIDMaxShortID && (absent || plFixedWidth(f))
		var lenOff int
		if short {
			lenOff = out.WritePLShortHeader(uint16(f.MemberID), mu)
		} else {
			lenOff = out.WritePLExtendedHeader(f.MemberID, mu)
		}
		if absent {
			continue // zero-length parameter, its header length is already 0
		}

		bodyStart := out.Len()
		if err := writeField(out, f, fv, true); err != nil {
			return fmt.Errorf("codec: write mutable field %q: %w", f.Name, err)
		}
		out.AlignTo(4)
		bodyLen := uint32(out.Len() - bodyStart)
		if short {
			out.PatchU16(lenOff, uint16(bodyLen))
		} else {
			out.PatchU32(lenOff, bodyLen)
		}
	}
	out.WritePLSentinel()
	return nil
}

// plFixedWidth reports whether f's encoding has a fixed byte width small
// enough that a short-form parameter header's 16-bit length always fits.
func plFixedWidth(f *ops.Field) bool {
	return f.Kind.IsPrimitive() || f.Kind == ops.KEnum || f.Kind == ops.KBitmask
}

func lengthCodeFor(f *ops.Field) uint8 {
	switch f.Kind {
	case ops.KBool, ops.KInt8, ops.KUint8:
		return cdrstream.LC1Byte
	case ops.KInt16, ops.KUint16:
		return cdrstream.LC2Byte
	case ops.KInt32, ops.KUint32, ops.KFloat32:
		return cdrstream.LC4Byte
	case ops.KInt64, ops.KUint64, ops.KFloat64:
		return cdrstream.LC8Byte
	case ops.KEnum, ops.KBitmask:
		switch f.Width {
		case 8:
			return cdrstream.LC1Byte
		case 16:
			return cdrstream.LC2Byte
		default:
			return cdrstream.LC4Byte
		}
	default:
		return cdrstream.LCNextInt4
	}
}

// writeField handles a field's optional/external pointer indirection before
// dispatching to writeValue for the underlying kind.
func writeField(out *cdrstream.OutputStream, f *ops.Field, fv reflect.Value, inMutable bool) error {
	isPtr := f.Flags.Has(ops.FlagOptional) || f.Flags.Has(ops.FlagExternal)
	if !isPtr {
		return writeValue(out, f, fv, inMutable)
	}

	if fv.Kind() != reflect.Ptr {
		return fmt.Errorf("%w: @external/@optional field %q must be a Go pointer, got %s", ErrContract, f.Name, fv.Kind())
	}

	if fv.IsNil() {
		switch {
		case !f.Flags.Has(ops.FlagOptional) && (f.Kind == ops.KString || f.Kind == ops.KWString):
			// @external string/wstring with no optional fallback encodes
			// as an empty string rather than being rejected.
			return writeValue(out, f, reflect.ValueOf(""), inMutable)
		case !f.Flags.Has(ops.FlagOptional):
			return fmt.Errorf("%w: @external field %q is nil and not @optional", ErrValidation, f.Name)
		case inMutable:
			// Caller already skipped emission for absent mutable optional
			// members; reaching here means a non-member-addressed absent
			// optional (e.g. inside a union arm) — encode presence=false.
			out.WriteU8(0)
			return nil
		default:
			out.WriteU8(0)
			return nil
		}
	}

	if f.Flags.Has(ops.FlagOptional) && !inMutable {
		out.WriteU8(1)
	}
	return writeValue(out, f, fv.Elem(), inMutable)
}

func writeValue(out *cdrstream.OutputStream, f *ops.Field, fv reflect.Value, inMutable bool) error {
	switch f.Kind {
	case ops.KBool, ops.KInt8, ops.KUint8, ops.KInt16, ops.KUint16,
		ops.KInt32, ops.KUint32, ops.KInt64, ops.KUint64,
		ops.KFloat32, ops.KFloat64, ops.KEnum, ops.KBitmask:
		return writePrimitive(out, f, fv)

	case ops.KString:
		return writeString(out, f, fv)

	case ops.KWString:
		return writeWString(out, f, fv)

	case ops.KArray:
		n := fv.Len()
		if out.XCDRVersion == 2 && !isPrimitiveElem(f.Elem) {
			off := out.WriteDelimitedHeader()
			for i := 0; i < n; i++ {
				if err := writeField(out, f.Elem, fv.Index(i), inMutable); err != nil {
					return err
				}
			}
			out.FinishDelimitedHeader(off)
			return nil
		}
		for i := 0; i < n; i++ {
			if err := writeField(out, f.Elem, fv.Index(i), inMutable); err != nil {
				return err
			}
		}
		return nil

	case ops.KSequence:
		n := fv.Len()
		if f.Bound != 0 && uint32(n) > f.Bound {
			return fmt.Errorf("%w: sequence length %d exceeds bound %d", ErrValidation, n, f.Bound)
		}
		out.WriteU32(uint32(n))
		for i := 0; i < n; i++ {
			if err := writeField(out, f.Elem, fv.Index(i), inMutable); err != nil {
				return err
			}
		}
		return nil

	case ops.KStruct:
		return writeAggregate(out, f.Nested, fv, inMutable)

	case ops.KUnion:
		return writeUnion(out, f.Union, fv, inMutable)

	default:
		return fmt.Errorf("%w: unrecognized field kind %d for %q", ErrContract, f.Kind, f.Name)
	}
}

func writePrimitive(out *cdrstream.OutputStream, f *ops.Field, fv reflect.Value) error {
	switch f.Kind {
	case ops.KBool:
		if fv.Bool() {
			out.WriteU8(1)
		} else {
			out.WriteU8(0)
		}
	case ops.KInt8:
		out.WriteU8(uint8(fv.Int()))
	case ops.KUint8:
		out.WriteU8(uint8(fv.Uint()))
	case ops.KInt16:
		out.WriteU16(uint16(fv.Int()))
	case ops.KUint16:
		out.WriteU16(uint16(fv.Uint()))
	case ops.KInt32:
		out.WriteU32(uint32(fv.Int()))
	case ops.KUint32:
		out.WriteU32(uint32(fv.Uint()))
	case ops.KInt64:
		out.WriteU64(uint64(fv.Int()))
	case ops.KUint64:
		out.WriteU64(uint64(fv.Uint()))
	case ops.KFloat32:
		out.WriteU32(math.Float32bits(float32(fv.Float())))
	case ops.KFloat64:
		out.WriteU64(math.Float64bits(fv.Float()))
	case ops.KEnum:
		writeWidth(out, f.Width, uint64(fv.Int()))
	case ops.KBitmask:
		writeWidth(out, f.Width, fv.Uint())
	default:
		return fmt.Errorf("%w: %q is not a primitive kind", ErrContract, f.Name)
	}
	return nil
}

func writeWidth(out *cdrstream.OutputStream, width uint8, v uint64) {
	switch width {
	case 8:
		out.WriteU8(uint8(v))
	case 16:
		out.WriteU16(uint16(v))
	default:
		out.WriteU32(uint32(v))
	}
}

func writeString(out *cdrstream.OutputStream, f *ops.Field, fv reflect.Value) error {
	s := fv.String()
	if f.Bound != 0 && uint32(len(s)) > f.Bound {
		return fmt.Errorf("%w: string length %d exceeds bound %d", ErrValidation, len(s), f.Bound)
	}
	out.WriteU32(uint32(len(s)) + 1)
	out.WriteBytes([]byte(s))
	out.WriteU8(0)
	return nil
}
