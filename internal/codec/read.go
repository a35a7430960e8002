package codec

import (
	"fmt"
	"math"
	"reflect"
	"unicode/utf16"

	"github.com/ddscore/cdrx/internal/cdrstream"
	"github.com/ddscore/cdrx/internal/logger"
	"github.com/ddscore/cdrx/internal/ops"
)

// ReadSample deserializes in's bytes into sample (a pointer to the Go
// struct agg describes), undoing whatever extensibility framing WriteSample
// applied.
func ReadSample(in *cdrstream.InputStream, agg *ops.Aggregate, sample any) error {
	v, err := rootValue(sample)
	if err != nil {
		return err
	}
	logger.Debug("codec: read sample", logger.Operation("read"), logger.XCDRVersion(in.XCDRVersion))
	return readAggregate(in, agg, v)
}

func readAggregate(in *cdrstream.InputStream, agg *ops.Aggregate, v reflect.Value) error {
	switch agg.Ext {
	case ops.Appendable:
		if in.XCDRVersion != 2 {
			return readFields(in, agg, v)
		}
		bodyLen, err := in.ReadDelimitedHeader()
		if err != nil {
			return err
		}
		end := in.Index + int(bodyLen)
		if err := readFieldsAppendable(in, agg, v, end); err != nil {
			return err
		}
		if in.Index < end {
			if err := in.Skip(end - in.Index); err != nil {
				return err
			}
		}
		return nil
	case ops.Mutable:
		if in.XCDRVersion != 2 {
			return readFieldsMutableXCDR1(in, agg, v)
		}
		bodyLen, err := in.ReadDelimitedHeader()
		if err != nil {
			return err
		}
		end := in.Index + int(bodyLen)
		if err := readFieldsMutable(in, agg, v, end); err != nil {
			return err
		}
		if in.Index < end {
			if err := in.Skip(end - in.Index); err != nil {
				return err
			}
		}
		return nil
	default:
		return readFields(in, agg, v)
	}
}

func readFields(in *cdrstream.InputStream, agg *ops.Aggregate, v reflect.Value) error {
	for i := range agg.Fields {
		f := &agg.Fields[i]
		if err := readField(in, f, v.Field(f.FieldIndex), false); err != nil {
			return fmt.Errorf("codec: read field %q: %w", f.Name, err)
		}
	}
	return nil
}

// readFieldsAppendable reads agg's fields in declaration order until end is
// reached, then default-initializes any trailing fields the writer's
// shorter DHEADER body didn't include — the forward-compatibility rule a
// reader of a newer revision applies against an older writer.
func readFieldsAppendable(in *cdrstream.InputStream, agg *ops.Aggregate, v reflect.Value, end int) error {
	for i := range agg.Fields {
		f := &agg.Fields[i]
		fv := v.Field(f.FieldIndex)
		if in.Index >= end {
			fv.Set(reflect.Zero(fv.Type()))
			continue
		}
		if err := readField(in, f, fv, false); err != nil {
			return fmt.Errorf("codec: read field %q: %w", f.Name, err)
		}
	}
	return nil
}

func readFieldsMutable(in *cdrstream.InputStream, agg *ops.Aggregate, v reflect.Value, end int) error {
	byID := make(map[uint32]*ops.Field, len(agg.Fields))
	seen := make(map[uint32]bool, len(agg.Fields))
	for i := range agg.Fields {
		byID[agg.Fields[i].MemberID] = &agg.Fields[i]
	}

	for in.Index < end {
		emh, err := in.ReadEMHeader()
		if err != nil {
			return err
		}
		f, known := byID[emh.MemberID]
		if !known {
			if err := skipMember(in, emh); err != nil {
				return fmt.Errorf("codec: skip unknown member %d: %w", emh.MemberID, err)
			}
			continue
		}
		seen[f.MemberID] = true

		if cdrstream.IsNextInt(emh.LengthCode) {
			memberLen, err := in.ReadU32()
			if err != nil {
				return err
			}
			memberEnd := in.Index + int(memberLen)
			if err := readField(in, f, v.Field(f.FieldIndex), true); err != nil {
				return fmt.Errorf("codec: read mutable field %q: %w", f.Name, err)
			}
			if in.Index < memberEnd {
				if err := in.Skip(memberEnd - in.Index); err != nil {
					return err
				}
			}
		} else {
			if err := readField(in, f, v.Field(f.FieldIndex), true); err != nil {
				return fmt.Errorf("codec: read mutable field %q: %w", f.Name, err)
			}
		}
	}

	// Known members the writer's wire form never carried (missing from an
	// older writer, or omitted because absent-and-optional) are
	// default-initialized rather than left holding whatever the caller's
	// sample value carried in.
	for i := range agg.Fields {
		f := &agg.Fields[i]
		if !seen[f.MemberID] {
			fv := v.Field(f.FieldIndex)
			fv.Set(reflect.Zero(fv.Type()))
		}
	}
	return nil
}

// readFieldsMutableXCDR1 reads a classic XCDR1 parameter list until its
// sentinel: unknown member ids are skipped by their declared length, a
// zero-length parameter for an optional member means absent, and known
// members the writer never sent come back default-initialized.
func readFieldsMutableXCDR1(in *cdrstream.InputStream, agg *ops.Aggregate, v reflect.Value) error {
	byID := make(map[uint32]*ops.Field, len(agg.Fields))
	seen := make(map[uint32]bool, len(agg.Fields))
	for i := range agg.Fields {
		byID[agg.Fields[i].MemberID] = &agg.Fields[i]
	}

	for {
		hdr, err := in.ReadPLHeader()
		if err != nil {
			return err
		}
		if hdr.Sentinel {
			break
		}
		memberEnd := in.Index + int(hdr.Length)

		f, known := byID[hdr.MemberID]
		if !known {
			if err := in.Skip(int(hdr.Length)); err != nil {
				return fmt.Errorf("codec: skip unknown member %d: %w", hdr.MemberID, err)
			}
			continue
		}
		seen[f.MemberID] = true
		fv := v.Field(f.FieldIndex)

		if hdr.Length == 0 && f.Flags.Has(ops.FlagOptional) {
			fv.Set(reflect.Zero(fv.Type()))
			continue
		}
		if err := readField(in, f, fv, true); err != nil {
			return fmt.Errorf("codec: read mutable field %q: %w", f.Name, err)
		}
		if in.Index < memberEnd {
			if err := in.Skip(memberEnd - in.Index); err != nil {
				return err
			}
		}
	}

	for i := range agg.Fields {
		f := &agg.Fields[i]
		if !seen[f.MemberID] {
			fv := v.Field(f.FieldIndex)
			fv.Set(reflect.Zero(fv.Type()))
		}
	}
	return nil
}

func skipMember(in *cdrstream.InputStream, emh cdrstream.EMHeader) error {
	if !cdrstream.IsNextInt(emh.LengthCode) {
		n, err := cdrstream.MemberByteLength(emh.LengthCode)
		if err != nil {
			return err
		}
		a := n
		if in.XCDRVersion == 2 && a > 4 {
			a = 4
		}
		if err := in.AlignTo(a); err != nil {
			return err
		}
		return in.Skip(n)
	}
	n, err := in.ReadU32()
	if err != nil {
		return err
	}
	return in.Skip(int(n))
}

// readField mirrors writeField's optional/external pointer handling.
func readField(in *cdrstream.InputStream, f *ops.Field, fv reflect.Value, inMutable bool) error {
	isPtr := f.Flags.Has(ops.FlagOptional) || f.Flags.Has(ops.FlagExternal)
	if !isPtr {
		return readValue(in, f, fv, inMutable)
	}

	if f.Flags.Has(ops.FlagOptional) && !inMutable {
		present, err := in.ReadU8()
		if err != nil {
			return err
		}
		if present == 0 {
			fv.Set(reflect.Zero(fv.Type()))
			return nil
		}
	}

	elemType := fv.Type().Elem()
	newElem := reflect.New(elemType)
	if err := readValue(in, f, newElem.Elem(), inMutable); err != nil {
		return err
	}
	fv.Set(newElem)
	return nil
}

func readValue(in *cdrstream.InputStream, f *ops.Field, fv reflect.Value, inMutable bool) error {
	switch f.Kind {
	case ops.KBool, ops.KInt8, ops.KUint8, ops.KInt16, ops.KUint16,
		ops.KInt32, ops.KUint32, ops.KInt64, ops.KUint64,
		ops.KFloat32, ops.KFloat64, ops.KEnum, ops.KBitmask:
		return readPrimitive(in, f, fv)

	case ops.KString:
		s, err := readString(in, f)
		if err != nil {
			return err
		}
		fv.SetString(s)
		return nil

	case ops.KWString:
		s, err := readWString(in, f)
		if err != nil {
			return err
		}
		fv.SetString(s)
		return nil

	case ops.KArray:
		n := fv.Len()
		if in.XCDRVersion == 2 && !isPrimitiveElem(f.Elem) {
			bodyLen, err := in.ReadDelimitedHeader()
			if err != nil {
				return err
			}
			end := in.Index + int(bodyLen)
			for i := 0; i < n; i++ {
				if err := readField(in, f.Elem, fv.Index(i), inMutable); err != nil {
					return err
				}
			}
			if in.Index < end {
				if err := in.Skip(end - in.Index); err != nil {
					return err
				}
			}
			return nil
		}
		for i := 0; i < n; i++ {
			if err := readField(in, f.Elem, fv.Index(i), inMutable); err != nil {
				return err
			}
		}
		return nil

	case ops.KSequence:
		n, err := in.ReadU32()
		if err != nil {
			return err
		}
		if f.Bound != 0 && n > f.Bound {
			return fmt.Errorf("%w: sequence length %d exceeds bound %d", ErrEncoding, n, f.Bound)
		}
		slice := reflect.MakeSlice(fv.Type(), int(n), int(n))
		for i := 0; i < int(n); i++ {
			if err := readField(in, f.Elem, slice.Index(i), inMutable); err != nil {
				return err
			}
		}
		fv.Set(slice)
		return nil

	case ops.KStruct:
		return readAggregate(in, f.Nested, fv)

	case ops.KUnion:
		return readUnion(in, f.Union, fv, inMutable)

	default:
		return fmt.Errorf("%w: unrecognized field kind %d for %q", ErrContract, f.Kind, f.Name)
	}
}

func readPrimitive(in *cdrstream.InputStream, f *ops.Field, fv reflect.Value) error {
	switch f.Kind {
	case ops.KBool:
		b, err := in.ReadU8()
		if err != nil {
			return err
		}
		fv.SetBool(b != 0)
	case ops.KInt8:
		b, err := in.ReadU8()
		if err != nil {
			return err
		}
		fv.SetInt(int64(int8(b)))
	case ops.KUint8:
		b, err := in.ReadU8()
		if err != nil {
			return err
		}
		fv.SetUint(uint64(b))
	case ops.KInt16:
		u, err := in.ReadU16()
		if err != nil {
			return err
		}
		fv.SetInt(int64(int16(u)))
	case ops.KUint16:
		u, err := in.ReadU16()
		if err != nil {
			return err
		}
		fv.SetUint(uint64(u))
	case ops.KInt32:
		u, err := in.ReadU32()
		if err != nil {
			return err
		}
		fv.SetInt(int64(int32(u)))
	case ops.KUint32:
		u, err := in.ReadU32()
		if err != nil {
			return err
		}
		fv.SetUint(uint64(u))
	case ops.KInt64:
		u, err := in.ReadU64()
		if err != nil {
			return err
		}
		fv.SetInt(int64(u))
	case ops.KUint64:
		u, err := in.ReadU64()
		if err != nil {
			return err
		}
		fv.SetUint(u)
	case ops.KFloat32:
		u, err := in.ReadU32()
		if err != nil {
			return err
		}
		fv.SetFloat(float64(math.Float32frombits(u)))
	case ops.KFloat64:
		u, err := in.ReadU64()
		if err != nil {
			return err
		}
		fv.SetFloat(math.Float64frombits(u))
	case ops.KEnum:
		u, err := readWidth(in, f.Width)
		if err != nil {
			return err
		}
		fv.SetInt(int64(int32(u)))
	case ops.KBitmask:
		u, err := readWidth(in, f.Width)
		if err != nil {
			return err
		}
		fv.SetUint(u)
	default:
		return fmt.Errorf("%w: %q is not a primitive kind", ErrContract, f.Name)
	}
	return nil
}

func readWidth(in *cdrstream.InputStream, width uint8) (uint64, error) {
	switch width {
	case 8:
		v, err := in.ReadU8()
		return uint64(v), err
	case 16:
		v, err := in.ReadU16()
		return uint64(v), err
	default:
		v, err := in.ReadU32()
		return uint64(v), err
	}
}

func readString(in *cdrstream.InputStream, f *ops.Field) (string, error) {
	n, err := in.ReadU32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", fmt.Errorf("%w: string length field is zero, must include terminating NUL", ErrEncoding)
	}
	if f.Bound != 0 && n-1 > f.Bound {
		return "", fmt.Errorf("%w: string length %d exceeds bound %d", ErrEncoding, n-1, f.Bound)
	}
	b, err := in.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	if b[len(b)-1] != 0 {
		return "", fmt.Errorf("%w: string is not NUL-terminated", ErrEncoding)
	}
	return string(b[:len(b)-1]), nil
}

func readWString(in *cdrstream.InputStream, f *ops.Field) (string, error) {
	n, err := in.ReadU32()
	if err != nil {
		return "", err
	}
	if f.Bound != 0 && n > f.Bound {
		return "", fmt.Errorf("%w: wstring length %d exceeds bound %d", ErrEncoding, n, f.Bound)
	}
	units := make([]uint16, n)
	for i := range units {
		units[i], err = in.ReadU16()
		if err != nil {
			return "", err
		}
	}
	return string(utf16.Decode(units)), nil
}

func readUnion(in *cdrstream.InputStream, u *ops.UnionDesc, fv reflect.Value, inMutable bool) error {
	discField := &ops.Field{Name: "$disc", Kind: u.DiscKind, Width: 32}
	discFv := fv.Field(u.DiscIdx)
	if err := readPrimitive(in, discField, discFv); err != nil {
		return err
	}
	disc, err := discriminatorValue(u.DiscKind, discFv)
	if err != nil {
		return err
	}

	c := selectCase(u, disc)
	if c == nil {
		return fmt.Errorf("%w: union discriminator %d matches no case and no default arm", ErrEncoding, disc)
	}
	return readField(in, &c.Field, fv.Field(c.Field.FieldIndex), inMutable)
}
