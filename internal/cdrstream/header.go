package cdrstream

import "fmt"

// EncodingVersion identifies which XCDR revision a sample's bytes follow.
type EncodingVersion uint8

const (
	EncodingUndef EncodingVersion = 0
	EncodingXCDR1 EncodingVersion = 1
	EncodingXCDR2 EncodingVersion = 2
)

// EncodingFormat identifies the outer framing an encapsulation identifier
// selects: plain CDR, delimited (appendable, DHEADER-prefixed), or
// parameter-list (mutable, EMHEADER-addressed members).
type EncodingFormat uint8

const (
	FormatPlain EncodingFormat = iota
	FormatDelimited
	FormatParameterList
)

// Representation identifiers from the RTPS/DDS-XTypes encapsulation table,
// combining XCDR version, outer format, and byte order into the 16-bit
// value that prefixes every serialized sample on the wire.
const (
	idCDRBe     uint16 = 0x0000
	idCDRLe     uint16 = 0x0001
	idPLCDRBe   uint16 = 0x0002
	idPLCDRLe   uint16 = 0x0003
	idCDR2Be    uint16 = 0x0006
	idCDR2Le    uint16 = 0x0007
	idDCDR2Be   uint16 = 0x0008
	idDCDR2Le   uint16 = 0x0009
	idPLCDR2Be  uint16 = 0x000a
	idPLCDR2Le  uint16 = 0x000b
)

// Header is the 4-byte CDR encapsulation header (identifier + options) that
// precedes every serialized sample and key, per dds_cdr_header (see
// DESIGN.md).
type Header struct {
	Identifier uint16
	Options    uint16
}

// HeaderPaddingMask masks the reserved low bits of Options. Both
// ddsi_serdata_cdr.c and dds_serdata_default.c apply this mask consistently
// (see DESIGN.md Open Questions: resolved as 0x3, not 0x2).
const HeaderPaddingMask uint16 = 0x3

// BuildHeader packs a byte order, XCDR version, and outer format into a
// Header's identifier field.
func BuildHeader(order ByteOrder, version EncodingVersion, format EncodingFormat) (Header, error) {
	var id uint16
	switch {
	case version == EncodingXCDR1 && format == FormatPlain && order == BigEndian:
		id = idCDRBe
	case version == EncodingXCDR1 && format == FormatPlain && order == LittleEndian:
		id = idCDRLe
	case version == EncodingXCDR1 && format == FormatParameterList && order == BigEndian:
		id = idPLCDRBe
	case version == EncodingXCDR1 && format == FormatParameterList && order == LittleEndian:
		id = idPLCDRLe
	case version == EncodingXCDR2 && format == FormatPlain && order == BigEndian:
		id = idCDR2Be
	case version == EncodingXCDR2 && format == FormatPlain && order == LittleEndian:
		id = idCDR2Le
	case version == EncodingXCDR2 && format == FormatDelimited && order == BigEndian:
		id = idDCDR2Be
	case version == EncodingXCDR2 && format == FormatDelimited && order == LittleEndian:
		id = idDCDR2Le
	case version == EncodingXCDR2 && format == FormatParameterList && order == BigEndian:
		id = idPLCDR2Be
	case version == EncodingXCDR2 && format == FormatParameterList && order == LittleEndian:
		id = idPLCDR2Le
	default:
		return Header{}, fmt.Errorf("cdrstream: no representation identifier for xcdr=%d format=%d order=%s", version, format, order)
	}
	return Header{Identifier: id}, nil
}

// Decode reports the byte order, XCDR version, and outer format a header's
// identifier selects.
func (h Header) Decode() (order ByteOrder, version EncodingVersion, format EncodingFormat, err error) {
	switch h.Identifier {
	case idCDRBe:
		return BigEndian, EncodingXCDR1, FormatPlain, nil
	case idCDRLe:
		return LittleEndian, EncodingXCDR1, FormatPlain, nil
	case idPLCDRBe:
		return BigEndian, EncodingXCDR1, FormatParameterList, nil
	case idPLCDRLe:
		return LittleEndian, EncodingXCDR1, FormatParameterList, nil
	case idCDR2Be:
		return BigEndian, EncodingXCDR2, FormatPlain, nil
	case idCDR2Le:
		return LittleEndian, EncodingXCDR2, FormatPlain, nil
	case idDCDR2Be:
		return BigEndian, EncodingXCDR2, FormatDelimited, nil
	case idDCDR2Le:
		return LittleEndian, EncodingXCDR2, FormatDelimited, nil
	case idPLCDR2Be:
		return BigEndian, EncodingXCDR2, FormatParameterList, nil
	case idPLCDR2Le:
		return LittleEndian, EncodingXCDR2, FormatParameterList, nil
	default:
		return 0, 0, 0, fmt.Errorf("cdrstream: unrecognized representation identifier 0x%04x", h.Identifier)
	}
}

// WriteHeader encodes h as 4 big-endian-packed bytes (identifier, then
// options), matching the wire layout of dds_cdr_header.
func WriteHeader(h Header) []byte {
	out := make([]byte, 4)
	out[0] = byte(h.Identifier >> 8)
	out[1] = byte(h.Identifier)
	out[2] = byte(h.Options >> 8)
	out[3] = byte(h.Options)
	return out
}

// ReadHeader decodes the leading 4 bytes of buf as a Header and returns the
// remaining bytes.
func ReadHeader(buf []byte) (Header, []byte, error) {
	if len(buf) < 4 {
		return Header{}, nil, fmt.Errorf("cdrstream: buffer too short for CDR header: %d bytes", len(buf))
	}
	h := Header{
		Identifier: uint16(buf[0])<<8 | uint16(buf[1]),
		Options:    uint16(buf[2])<<8 | uint16(buf[3]),
	}
	return h, buf[4:], nil
}

// WriteDelimitedHeader reserves and returns the offset of a 4-byte DHEADER
// placeholder for an appendable aggregate's body length, to be filled in by
// FinishDelimitedHeader once the body has been written.
func (s *OutputStream) WriteDelimitedHeader() int {
	return s.ReservePlaceholder()
}

// FinishDelimitedHeader patches the DHEADER reserved at off with the number
// of bytes written to the stream since off+4.
func (s *OutputStream) FinishDelimitedHeader(off int) {
	bodyLen := uint32(len(s.Buf) - off - 4)
	s.PatchU32(off, bodyLen)
}

// ReadDelimitedHeader reads a DHEADER and returns the byte length of the
// body that follows.
func (s *InputStream) ReadDelimitedHeader() (uint32, error) {
	return s.ReadU32()
}

// Classic XCDR1 parameter-list encoding: a 16-bit PID word carrying a
// 14-bit member id plus two flag bits, followed by a 16-bit parameter
// length. Ids that don't fit 14 bits (or parameters needing a 32-bit
// length) use the extended form: a PID_EXTENDED header whose 8-byte
// extension carries a 4-byte member id and a 4-byte length. PID_SENTINEL
// closes the list.
const (
	PIDExtended           uint16 = 0x3f01
	PIDSentinel           uint16 = 0x3f02
	PIDFlagImplExt        uint16 = 0x8000
	PIDFlagMustUnderstand uint16 = 0x4000
	PIDIDMask             uint16 = 0x3fff

	// PIDExtendedHeaderLength is the byte length of the extended header's
	// extension (member id word + length word).
	PIDExtendedHeaderLength uint16 = 8

	// PIDMaxShortID is the first member id that cannot ride in a short-form
	// PID: ids at or above it collide with the reserved PID range.
	PIDMaxShortID uint32 = 0x3f00
)

// PLHeader is one decoded XCDR1 parameter header. Sentinel marks the
// list-closing PID_SENTINEL, in which case the other fields are zero.
type PLHeader struct {
	MemberID       uint32
	MustUnderstand bool
	Length         uint32
	Sentinel       bool
}

// WritePLShortHeader emits a short-form parameter header for id with a
// zero length, returning the offset of the 2-byte length field for the
// caller to patch once the parameter body is written.
func (s *OutputStream) WritePLShortHeader(id uint16, mustUnderstand bool) int {
	s.AlignTo(4)
	pid := id & PIDIDMask
	if mustUnderstand {
		pid |= PIDFlagMustUnderstand
	}
	s.WriteU16(pid)
	lenOff := s.Len()
	s.WriteU16(0)
	return lenOff
}

// WritePLExtendedHeader emits an extended-form parameter header for id with
// a zero length, returning the offset of the 4-byte length word to patch.
func (s *OutputStream) WritePLExtendedHeader(id uint32, mustUnderstand bool) int {
	s.AlignTo(4)
	pid := PIDExtended
	if mustUnderstand {
		pid |= PIDFlagMustUnderstand
	}
	s.WriteU16(pid)
	s.WriteU16(PIDExtendedHeaderLength)
	s.WriteU32(id & 0x0fffffff)
	lenOff := s.Len()
	s.WriteU32(0)
	return lenOff
}

// WritePLSentinel closes a parameter list.
func (s *OutputStream) WritePLSentinel() {
	s.AlignTo(4)
	s.WriteU16(PIDSentinel)
	s.WriteU16(0)
}

// ReadPLHeader reads one parameter header in either form, resolving the
// extended indirection and skipping any header-extension bytes beyond the
// 8 this module understands.
func (s *InputStream) ReadPLHeader() (PLHeader, error) {
	if err := s.AlignTo(4); err != nil {
		return PLHeader{}, err
	}
	pid, err := s.ReadU16()
	if err != nil {
		return PLHeader{}, err
	}
	slen, err := s.ReadU16()
	if err != nil {
		return PLHeader{}, err
	}
	mu := pid&PIDFlagMustUnderstand != 0
	switch pid & PIDIDMask {
	case PIDSentinel:
		return PLHeader{Sentinel: true}, nil
	case PIDExtended:
		if slen < PIDExtendedHeaderLength {
			return PLHeader{}, fmt.Errorf("cdrstream: extended parameter header extension length %d, need %d", slen, PIDExtendedHeaderLength)
		}
		id, err := s.ReadU32()
		if err != nil {
			return PLHeader{}, err
		}
		length, err := s.ReadU32()
		if err != nil {
			return PLHeader{}, err
		}
		if surplus := int(slen) - int(PIDExtendedHeaderLength); surplus > 0 {
			if err := s.Skip(surplus); err != nil {
				return PLHeader{}, err
			}
		}
		return PLHeader{MemberID: id & 0x0fffffff, MustUnderstand: mu, Length: length}, nil
	default:
		return PLHeader{MemberID: uint32(pid & PIDIDMask), MustUnderstand: mu, Length: uint32(slen)}, nil
	}
}

// EMHeader is one XCDR2 parameter-list member header: a 28-bit member id,
// a must-understand bit, and a 3-bit length code selecting how the member's
// byte length is determined.
type EMHeader struct {
	MemberID       uint32
	MustUnderstand bool
	LengthCode     uint8 // 0..7
}

// Length-code meanings, per the XTypes EMHEADER table: LC 0-3 select a
// fixed 1/2/4/8-byte member with no extra length field; LC 4-7 select a
// variable-length member whose byte length is given by a following 4-byte
// NEXTINT field, with the member's own data aligned to 4/1/2/8 bytes
// respectively.
const (
	LC1Byte uint8 = iota
	LC2Byte
	LC4Byte
	LC8Byte
	LCNextInt4
	LCNextInt1
	LCNextInt2
	LCNextInt8
)

func lengthCodeAlignment(lc uint8) int {
	switch lc {
	case LC1Byte, LCNextInt1:
		return 1
	case LC2Byte, LCNextInt2:
		return 2
	case LC4Byte, LCNextInt4:
		return 4
	case LC8Byte, LCNextInt8:
		return 8
	default:
		return 4
	}
}

// PackEMHeader encodes h into its 32-bit wire word: bit 31 must-understand,
// bits 30-28 length code, bits 27-0 member id.
func PackEMHeader(h EMHeader) uint32 {
	var word uint32
	if h.MustUnderstand {
		word |= 1 << 31
	}
	word |= uint32(h.LengthCode&0x7) << 28
	word |= h.MemberID & 0x0fffffff
	return word
}

// UnpackEMHeader decodes a 32-bit wire word into an EMHeader.
func UnpackEMHeader(word uint32) EMHeader {
	return EMHeader{
		MustUnderstand: word&(1<<31) != 0,
		LengthCode:     uint8((word >> 28) & 0x7),
		MemberID:       word & 0x0fffffff,
	}
}

// WriteEMHeader writes the packed EMHeader word. Callers using LCNextInt*
// must follow with a ReservePlaceholder/PatchU32 pair (or
// WriteMemberNextInt) for the member's byte length, aligned as
// lengthCodeAlignment(h.LengthCode) requires.
func (s *OutputStream) WriteEMHeader(h EMHeader) {
	s.WriteU32(PackEMHeader(h))
}

// ReadEMHeader reads one packed EMHeader word.
func (s *InputStream) ReadEMHeader() (EMHeader, error) {
	word, err := s.ReadU32()
	if err != nil {
		return EMHeader{}, err
	}
	return UnpackEMHeader(word), nil
}

// MemberByteLength returns the byte length of a member encoded with a fixed
// (non-NEXTINT) length code, or an error if lc does not identify a fixed
// width.
func MemberByteLength(lc uint8) (int, error) {
	switch lc {
	case LC1Byte:
		return 1, nil
	case LC2Byte:
		return 2, nil
	case LC4Byte:
		return 4, nil
	case LC8Byte:
		return 8, nil
	default:
		return 0, fmt.Errorf("cdrstream: length code %d is not a fixed-width code", lc)
	}
}

// IsNextInt reports whether lc requires a following 4-byte NEXTINT length
// field rather than encoding a fixed width.
func IsNextInt(lc uint8) bool {
	return lc >= LCNextInt4
}
