package codec

import (
	"fmt"

	"github.com/ddscore/cdrx/internal/cdrstream"
	"github.com/ddscore/cdrx/internal/logger"
	"github.com/ddscore/cdrx/internal/ops"
)

// Policy carries the validation knobs Normalize consults for the checks the
// wire format itself leaves open. pkg/typeconfig's EnumRangePolicy maps onto
// RejectOutOfRangeEnum at the call site.
type Policy struct {
	// RejectOutOfRangeEnum fails normalization when an enum value read off
	// the wire exceeds the field's declared highest enumerator (ops.Field
	// Bound, for KEnum fields that declare one). Off by default: an unknown
	// enumerator from a newer peer is accepted as-is.
	RejectOutOfRangeEnum bool
}

// Normalize validates buf (the payload following a sample's CDR header) as a
// well-formed encoding of agg and converts it to native byte order in
// place: every multi-byte primitive is byte-swapped as it is visited, and
// booleans are clamped to 0/1. On success it returns the number of validated
// bytes — trailing slack past the encoded sample is permitted and left
// untouched — and the buffer can from then on be read with
// cdrstream.NativeOrder without any further byte-order checks. On failure
// the buffer's contents are unspecified (a prefix may already be swapped).
//
// Normalizing an already-native buffer (order == cdrstream.NativeOrder) is
// idempotent: the walk re-validates but swaps nothing.
func Normalize(buf []byte, order cdrstream.ByteOrder, xcdrVersion uint8, agg *ops.Aggregate, pol Policy) (int, error) {
	n := &normalizer{
		buf:  buf,
		from: order,
		swap: order != cdrstream.NativeOrder,
		xcdr: xcdrVersion,
		pol:  pol,
	}
	logger.Debug("codec: normalize", logger.Operation("normalize"), logger.XCDRVersion(xcdrVersion))
	if err := n.aggregate(agg); err != nil {
		return 0, fmt.Errorf("codec: normalize: %w", err)
	}
	return n.idx, nil
}

// NormalizeData is an alias kept for parity with dds_stream_normalize_data,
// which normalizes a sample's data representation specifically (as opposed
// to its key representation, which callers validate via ExtractKeyFromKey's
// own error return).
func NormalizeData(buf []byte, order cdrstream.ByteOrder, xcdrVersion uint8, agg *ops.Aggregate, pol Policy) (int, error) {
	return Normalize(buf, order, xcdrVersion, agg, pol)
}

// normalizer is the in-place validation/byte-swap cursor. Unlike
// cdrstream.InputStream it mutates the bytes it walks over; the two must
// agree exactly on alignment and layout so that a normalized buffer reads
// back without error.
type normalizer struct {
	buf  []byte
	idx  int
	from cdrstream.ByteOrder
	swap bool
	xcdr uint8
	pol  Policy
}

func (n *normalizer) alignTo(a int) error {
	if a <= 1 {
		return nil
	}
	pad := (a - n.idx%a) % a
	if n.idx+pad > len(n.buf) {
		return fmt.Errorf("%w: alignment padding runs past end of buffer", ErrEncoding)
	}
	n.idx += pad
	return nil
}

func (n *normalizer) need(c int) error {
	if n.idx+c > len(n.buf) {
		return fmt.Errorf("%w: %d bytes needed at index %d, buffer holds %d", ErrEncoding, c, n.idx, len(n.buf))
	}
	return nil
}

func (n *normalizer) u8() (uint8, error) {
	if err := n.need(1); err != nil {
		return 0, err
	}
	v := n.buf[n.idx]
	n.idx++
	return v, nil
}

func (n *normalizer) u16() (uint16, error) {
	if err := n.alignTo(2); err != nil {
		return 0, err
	}
	if err := n.need(2); err != nil {
		return 0, err
	}
	b := n.buf[n.idx : n.idx+2]
	v := n.from.Binary().Uint16(b)
	if n.swap {
		b[0], b[1] = b[1], b[0]
	}
	n.idx += 2
	return v, nil
}

func (n *normalizer) u32() (uint32, error) {
	if err := n.alignTo(4); err != nil {
		return 0, err
	}
	if err := n.need(4); err != nil {
		return 0, err
	}
	b := n.buf[n.idx : n.idx+4]
	v := n.from.Binary().Uint32(b)
	if n.swap {
		b[0], b[3] = b[3], b[0]
		b[1], b[2] = b[2], b[1]
	}
	n.idx += 4
	return v, nil
}

func (n *normalizer) u64() (uint64, error) {
	a := 8
	if n.xcdr == 2 {
		a = 4
	}
	if err := n.alignTo(a); err != nil {
		return 0, err
	}
	if err := n.need(8); err != nil {
		return 0, err
	}
	b := n.buf[n.idx : n.idx+8]
	v := n.from.Binary().Uint64(b)
	if n.swap {
		for i := 0; i < 4; i++ {
			b[i], b[7-i] = b[7-i], b[i]
		}
	}
	n.idx += 8
	return v, nil
}

func (n *normalizer) skip(c int) error {
	if err := n.need(c); err != nil {
		return err
	}
	n.idx += c
	return nil
}

func (n *normalizer) aggregate(agg *ops.Aggregate) error {
	switch agg.Ext {
	case ops.Appendable:
		if n.xcdr != 2 {
			// No DHEADER under XCDR1; an appendable aggregate encodes like
			// a final one.
			return n.plainFields(agg)
		}
		end, err := n.delimitedEnd()
		if err != nil {
			return err
		}
		for i := range agg.Fields {
			if n.idx >= end {
				break // shorter writer; trailing members default at read time
			}
			f := &agg.Fields[i]
			if err := n.field(f, false); err != nil {
				return fmt.Errorf("field %q: %w", f.Name, err)
			}
			if n.idx > end {
				return fmt.Errorf("%w: field %q runs past its DHEADER body", ErrEncoding, f.Name)
			}
		}
		n.idx = end // surplus trailing bytes from a newer writer stay unswapped
		return nil
	case ops.Mutable:
		if n.xcdr != 2 {
			return n.mutableFieldsXCDR1(agg)
		}
		return n.mutableFields(agg)
	default:
		return n.plainFields(agg)
	}
}

func (n *normalizer) plainFields(agg *ops.Aggregate) error {
	for i := range agg.Fields {
		f := &agg.Fields[i]
		if err := n.field(f, false); err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	return nil
}

func (n *normalizer) delimitedEnd() (int, error) {
	bodyLen, err := n.u32()
	if err != nil {
		return 0, err
	}
	end := n.idx + int(bodyLen)
	if end > len(n.buf) {
		return 0, fmt.Errorf("%w: DHEADER body length %d runs past end of buffer", ErrEncoding, bodyLen)
	}
	return end, nil
}

func (n *normalizer) mutableFields(agg *ops.Aggregate) error {
	end, err := n.delimitedEnd()
	if err != nil {
		return err
	}
	byID := make(map[uint32]*ops.Field, len(agg.Fields))
	for i := range agg.Fields {
		byID[agg.Fields[i].MemberID] = &agg.Fields[i]
	}

	for n.idx < end {
		word, err := n.u32()
		if err != nil {
			return err
		}
		emh := cdrstream.UnpackEMHeader(word)
		f, known := byID[emh.MemberID]

		if !known {
			if emh.MustUnderstand {
				return fmt.Errorf("%w: unknown member id %d has must-understand set", ErrEncoding, emh.MemberID)
			}
			// Skipped members stay in wire byte order: nothing downstream
			// interprets bytes it has no op for.
			if cdrstream.IsNextInt(emh.LengthCode) {
				memberLen, err := n.u32()
				if err != nil {
					return err
				}
				if err := n.skip(int(memberLen)); err != nil {
					return err
				}
			} else {
				width, err := cdrstream.MemberByteLength(emh.LengthCode)
				if err != nil {
					return err
				}
				a := width
				if n.xcdr == 2 && a > 4 {
					a = 4
				}
				if err := n.alignTo(a); err != nil {
					return err
				}
				if err := n.skip(width); err != nil {
					return err
				}
			}
			continue
		}

		if cdrstream.IsNextInt(emh.LengthCode) {
			memberLen, err := n.u32()
			if err != nil {
				return err
			}
			memberEnd := n.idx + int(memberLen)
			if memberEnd > end {
				return fmt.Errorf("%w: member %d length %d runs past parameter list", ErrEncoding, emh.MemberID, memberLen)
			}
			if err := n.field(f, true); err != nil {
				return fmt.Errorf("member %q: %w", f.Name, err)
			}
			if n.idx > memberEnd {
				return fmt.Errorf("%w: member %q runs past its declared length", ErrEncoding, f.Name)
			}
			n.idx = memberEnd
		} else {
			if err := n.field(f, true); err != nil {
				return fmt.Errorf("member %q: %w", f.Name, err)
			}
		}
	}
	if n.idx != end {
		return fmt.Errorf("%w: parameter list overruns its DHEADER body", ErrEncoding)
	}
	return nil
}

// mutableFieldsXCDR1 walks a classic XCDR1 parameter list in place until
// its sentinel: PID words and lengths are swapped as they are visited,
// unknown members are skipped (rejected if must-understand), and each known
// member's body is validated against its declared length.
func (n *normalizer) mutableFieldsXCDR1(agg *ops.Aggregate) error {
	byID := make(map[uint32]*ops.Field, len(agg.Fields))
	for i := range agg.Fields {
		byID[agg.Fields[i].MemberID] = &agg.Fields[i]
	}

	for {
		if err := n.alignTo(4); err != nil {
			return err
		}
		pid, err := n.u16()
		if err != nil {
			return err
		}
		slen, err := n.u16()
		if err != nil {
			return err
		}
		mu := pid&cdrstream.PIDFlagMustUnderstand != 0

		var id uint32
		var length int
		switch pid & cdrstream.PIDIDMask {
		case cdrstream.PIDSentinel:
			return nil
		case cdrstream.PIDExtended:
			if slen < cdrstream.PIDExtendedHeaderLength {
				return fmt.Errorf("%w: extended parameter header extension length %d, need %d", ErrEncoding, slen, cdrstream.PIDExtendedHeaderLength)
			}
			eid, err := n.u32()
			if err != nil {
				return err
			}
			elen, err := n.u32()
			if err != nil {
				return err
			}
			if surplus := int(slen) - int(cdrstream.PIDExtendedHeaderLength); surplus > 0 {
				if err := n.skip(surplus); err != nil {
					return err
				}
			}
			id = eid & 0x0fffffff
			length = int(elen)
		default:
			id = uint32(pid & cdrstream.PIDIDMask)
			length = int(slen)
		}

		memberEnd := n.idx + length
		if memberEnd > len(n.buf) {
			return fmt.Errorf("%w: parameter length %d runs past end of buffer", ErrEncoding, length)
		}

		f, known := byID[id]
		if !known {
			if mu {
				return fmt.Errorf("%w: unknown member id %d has must-understand set", ErrEncoding, id)
			}
			// Skipped members stay in wire byte order: nothing downstream
			// interprets bytes it has no op for.
			n.idx = memberEnd
			continue
		}
		if length == 0 && f.Flags.Has(ops.FlagOptional) {
			continue // absent optional member
		}
		if err := n.field(f, true); err != nil {
			return fmt.Errorf("member %q: %w", f.Name, err)
		}
		if n.idx > memberEnd {
			return fmt.Errorf("%w: member %q runs past its declared length", ErrEncoding, f.Name)
		}
		n.idx = memberEnd
	}
}

func (n *normalizer) field(f *ops.Field, inMutable bool) error {
	if f.Flags.Has(ops.FlagOptional) && !inMutable {
		pos := n.idx
		present, err := n.u8()
		if err != nil {
			return err
		}
		if present > 1 {
			n.buf[pos] = 1
			present = 1
		}
		if present == 0 {
			return nil
		}
	}
	return n.value(f, inMutable)
}

func (n *normalizer) value(f *ops.Field, inMutable bool) error {
	switch f.Kind {
	case ops.KBool:
		pos := n.idx
		b, err := n.u8()
		if err != nil {
			return err
		}
		if b > 1 {
			n.buf[pos] = 1
		}
		return nil

	case ops.KInt8, ops.KUint8:
		_, err := n.u8()
		return err

	case ops.KInt16, ops.KUint16:
		_, err := n.u16()
		return err

	case ops.KInt32, ops.KUint32, ops.KFloat32:
		_, err := n.u32()
		return err

	case ops.KInt64, ops.KUint64, ops.KFloat64:
		_, err := n.u64()
		return err

	case ops.KEnum:
		v, err := n.width(f.Width)
		if err != nil {
			return err
		}
		if n.pol.RejectOutOfRangeEnum && f.Bound != 0 && v > uint64(f.Bound) {
			return fmt.Errorf("%w: enum value %d exceeds highest declared enumerator %d", ErrValidation, v, f.Bound)
		}
		return nil

	case ops.KBitmask:
		_, err := n.width(f.Width)
		return err

	case ops.KString:
		return n.cstring(f)

	case ops.KWString:
		return n.wstring(f)

	case ops.KArray:
		return n.array(f, inMutable)

	case ops.KSequence:
		count, err := n.u32()
		if err != nil {
			return err
		}
		if f.Bound != 0 && count > f.Bound {
			return fmt.Errorf("%w: sequence length %d exceeds bound %d", ErrEncoding, count, f.Bound)
		}
		for i := uint32(0); i < count; i++ {
			if err := n.field(f.Elem, inMutable); err != nil {
				return err
			}
		}
		return nil

	case ops.KStruct:
		return n.aggregate(f.Nested)

	case ops.KUnion:
		return n.union(f.Union, inMutable)

	default:
		return fmt.Errorf("%w: unrecognized field kind %d for %q", ErrContract, f.Kind, f.Name)
	}
}

func (n *normalizer) array(f *ops.Field, inMutable bool) error {
	if n.xcdr == 2 && !isPrimitiveElem(f.Elem) {
		end, err := n.delimitedEnd()
		if err != nil {
			return err
		}
		for i := uint32(0); i < f.Bound; i++ {
			if err := n.field(f.Elem, inMutable); err != nil {
				return err
			}
		}
		if n.idx > end {
			return fmt.Errorf("%w: array body runs past its DHEADER", ErrEncoding)
		}
		n.idx = end
		return nil
	}
	for i := uint32(0); i < f.Bound; i++ {
		if err := n.field(f.Elem, inMutable); err != nil {
			return err
		}
	}
	return nil
}

func (n *normalizer) width(w uint8) (uint64, error) {
	switch w {
	case 8:
		v, err := n.u8()
		return uint64(v), err
	case 16:
		v, err := n.u16()
		return uint64(v), err
	default:
		v, err := n.u32()
		return uint64(v), err
	}
}

func (n *normalizer) cstring(f *ops.Field) error {
	length, err := n.u32()
	if err != nil {
		return err
	}
	if length == 0 {
		return fmt.Errorf("%w: string length field is zero, must include terminating NUL", ErrEncoding)
	}
	if f.Bound != 0 && length-1 > f.Bound {
		return fmt.Errorf("%w: string length %d exceeds bound %d", ErrEncoding, length-1, f.Bound)
	}
	if err := n.need(int(length)); err != nil {
		return err
	}
	if n.buf[n.idx+int(length)-1] != 0 {
		return fmt.Errorf("%w: string is not NUL-terminated", ErrEncoding)
	}
	n.idx += int(length)
	return nil
}

func (n *normalizer) wstring(f *ops.Field) error {
	count, err := n.u32()
	if err != nil {
		return err
	}
	if f.Bound != 0 && count > f.Bound {
		return fmt.Errorf("%w: wstring length %d exceeds bound %d", ErrEncoding, count, f.Bound)
	}
	expectLow := false
	for i := uint32(0); i < count; i++ {
		u, err := n.u16()
		if err != nil {
			return err
		}
		isHigh := u >= 0xd800 && u < 0xdc00
		isLow := u >= 0xdc00 && u < 0xe000
		switch {
		case expectLow && !isLow:
			return fmt.Errorf("%w: wstring has unpaired high surrogate", ErrEncoding)
		case !expectLow && isLow:
			return fmt.Errorf("%w: wstring has unpaired low surrogate", ErrEncoding)
		}
		expectLow = isHigh
	}
	if expectLow {
		return fmt.Errorf("%w: wstring ends with unpaired high surrogate", ErrEncoding)
	}
	return nil
}

func (n *normalizer) union(u *ops.UnionDesc, inMutable bool) error {
	var disc int32
	switch u.DiscKind {
	case ops.KBool, ops.KInt8, ops.KUint8:
		pos := n.idx
		v, err := n.u8()
		if err != nil {
			return err
		}
		if u.DiscKind == ops.KBool && v > 1 {
			n.buf[pos] = 1
			v = 1
		}
		if u.DiscKind == ops.KInt8 {
			disc = int32(int8(v))
		} else {
			disc = int32(v)
		}
	case ops.KInt16, ops.KUint16:
		v, err := n.u16()
		if err != nil {
			return err
		}
		if u.DiscKind == ops.KInt16 {
			disc = int32(int16(v))
		} else {
			disc = int32(v)
		}
	default:
		v, err := n.u32()
		if err != nil {
			return err
		}
		disc = int32(v)
	}

	c := selectCase(u, disc)
	if c == nil {
		return fmt.Errorf("%w: union discriminator %d matches no case and no default arm", ErrEncoding, disc)
	}
	return n.field(&c.Field, inMutable)
}

// isPrimitiveElem reports whether a collection element encodes as a bare
// fixed-width scalar, which under XCDR2 exempts the collection from the
// DHEADER that wraps arrays of anything more structured.
func isPrimitiveElem(f *ops.Field) bool {
	if f == nil {
		return true
	}
	return f.Kind.IsPrimitive() || f.Kind == ops.KEnum || f.Kind == ops.KBitmask
}
