// Package cdrstream implements the CDR (Common Data Representation) stream
// objects the codec engine reads from and writes to: growable, naturally
// aligned byte buffers with an explicit byte order, plus the small set of
// header encodings (CDR encapsulation header, DHEADER, EMHEADER) that XCDR
// v1/v2 extensibility relies on.
//
// The buffer-plus-cursor shape follows the same conventions as XDR codec
// helpers (RFC 4506), generalized from XDR's fixed 4-byte alignment to
// CDR's natural alignment, where a field is padded to the alignment of its
// own type (1/2/4/8 bytes) rather than always to 4.
package cdrstream

import (
	"encoding/binary"
	"fmt"

	"github.com/ddscore/cdrx/internal/alloc"
)

// ByteOrder selects how multi-byte primitives are written/read.
type ByteOrder uint8

const (
	BigEndian ByteOrder = iota
	LittleEndian
)

// Binary returns the encoding/binary implementation of this byte order.
func (o ByteOrder) Binary() binary.ByteOrder {
	if o == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func (o ByteOrder) String() string {
	if o == LittleEndian {
		return "le"
	}
	return "be"
}

// NativeOrder is the byte order of the host this process runs on. Normalize
// converts received payloads to this order in place; everything downstream
// of a successful normalize reads with NativeOrder and never re-checks.
var NativeOrder = func() ByteOrder {
	var probe [2]byte
	binary.NativeEndian.PutUint16(probe[:], 0x0102)
	if probe[0] == 0x02 {
		return LittleEndian
	}
	return BigEndian
}()

// OutputStream is a growable write buffer with CDR alignment tracked
// relative to the start of the stream's payload (i.e. the first byte after
// any encapsulation header the caller wrote separately).
type OutputStream struct {
	Buf         []byte
	Order       ByteOrder
	XCDRVersion uint8
	alloc       alloc.Allocator
}

// NewOutputStream creates an empty output stream with an initial capacity
// of alloc.ChunkSize bytes and the given byte order and XCDR version.
func NewOutputStream(order ByteOrder, xcdrVersion uint8, a alloc.Allocator) *OutputStream {
	if a == nil {
		a = alloc.Heap
	}
	return &OutputStream{
		Buf:         a.Malloc(alloc.GrowToChunk(alloc.ChunkSize))[:0],
		Order:       order,
		XCDRVersion: xcdrVersion,
		alloc:       a,
	}
}

// Reset empties the stream for reuse without releasing its backing array.
func (s *OutputStream) Reset() { s.Buf = s.Buf[:0] }

// Len returns the number of bytes written so far.
func (s *OutputStream) Len() int { return len(s.Buf) }

// ensure grows the backing array, in alloc.ChunkSize increments, so that at
// least extra more bytes can be appended without reallocating again.
func (s *OutputStream) ensure(extra int) {
	need := len(s.Buf) + extra
	if need <= cap(s.Buf) {
		return
	}
	grown := s.alloc.Realloc(s.Buf[:cap(s.Buf)], alloc.GrowToChunk(need))
	s.Buf = grown[:len(s.Buf)]
}

// AlignTo pads the stream with zero bytes until Len() is a multiple of n
// (n must be 1, 2, 4, or 8), CDR's "natural alignment" rule.
func (s *OutputStream) AlignTo(n int) {
	if n <= 1 {
		return
	}
	pad := (n - len(s.Buf)%n) % n
	if pad == 0 {
		return
	}
	s.ensure(pad)
	for i := 0; i < pad; i++ {
		s.Buf = append(s.Buf, 0)
	}
}

// WriteBytes appends raw bytes with no alignment or padding.
func (s *OutputStream) WriteBytes(p []byte) {
	s.ensure(len(p))
	s.Buf = append(s.Buf, p...)
}

func (s *OutputStream) WriteU8(v uint8) {
	s.ensure(1)
	s.Buf = append(s.Buf, v)
}

func (s *OutputStream) WriteU16(v uint16) {
	s.AlignTo(2)
	s.ensure(2)
	b := make([]byte, 2)
	s.Order.Binary().PutUint16(b, v)
	s.Buf = append(s.Buf, b...)
}

func (s *OutputStream) WriteU32(v uint32) {
	s.AlignTo(4)
	s.ensure(4)
	b := make([]byte, 4)
	s.Order.Binary().PutUint32(b, v)
	s.Buf = append(s.Buf, b...)
}

// align8 is the alignment of an 8-byte primitive under the stream's XCDR
// version: natural 8 under XCDR1, capped at 4 under XCDR2, whose natural
// alignment never exceeds 4.
func align8(xcdrVersion uint8) int {
	if xcdrVersion == 2 {
		return 4
	}
	return 8
}

func (s *OutputStream) WriteU64(v uint64) {
	s.AlignTo(align8(s.XCDRVersion))
	s.ensure(8)
	b := make([]byte, 8)
	s.Order.Binary().PutUint64(b, v)
	s.Buf = append(s.Buf, b...)
}

// ReservePlaceholder reserves 4 bytes (aligned) for a length field to be
// patched later (DHEADER / PLC NEXTINT), returning its offset.
func (s *OutputStream) ReservePlaceholder() int {
	s.AlignTo(4)
	off := len(s.Buf)
	s.WriteU32(0)
	return off
}

// PatchU32 overwrites the 4 bytes at off with v, used to fill in a
// previously reserved length placeholder once the body length is known.
func (s *OutputStream) PatchU32(off int, v uint32) {
	s.Order.Binary().PutUint32(s.Buf[off:off+4], v)
}

// PatchU16 overwrites the 2 bytes at off with v, the short-form parameter
// header's length counterpart to PatchU32.
func (s *OutputStream) PatchU16(off int, v uint16) {
	s.Order.Binary().PutUint16(s.Buf[off:off+2], v)
}

// InputStream is a read cursor over a byte slice with CDR alignment tracked
// relative to the slice's start.
type InputStream struct {
	Buf         []byte
	Index       int
	Order       ByteOrder
	XCDRVersion uint8
}

// NewInputStream wraps buf for reading with the given byte order and XCDR
// version.
func NewInputStream(buf []byte, order ByteOrder, xcdrVersion uint8) *InputStream {
	return &InputStream{Buf: buf, Order: order, XCDRVersion: xcdrVersion}
}

// Remaining returns the number of unread bytes.
func (s *InputStream) Remaining() int { return len(s.Buf) - s.Index }

// AlignTo advances Index to the next n-byte boundary, erroring if that
// would run past the end of the buffer.
func (s *InputStream) AlignTo(n int) error {
	if n <= 1 {
		return nil
	}
	pad := (n - s.Index%n) % n
	if pad == 0 {
		return nil
	}
	if s.Index+pad > len(s.Buf) {
		return fmt.Errorf("cdrstream: alignment padding runs past end of buffer")
	}
	s.Index += pad
	return nil
}

// ReadBytes consumes and returns the next n raw bytes with no alignment.
func (s *InputStream) ReadBytes(n int) ([]byte, error) {
	if n < 0 || s.Index+n > len(s.Buf) {
		return nil, fmt.Errorf("cdrstream: read of %d bytes at index %d runs past end of %d-byte buffer", n, s.Index, len(s.Buf))
	}
	b := s.Buf[s.Index : s.Index+n]
	s.Index += n
	return b, nil
}

func (s *InputStream) ReadU8() (uint8, error) {
	b, err := s.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (s *InputStream) ReadU16() (uint16, error) {
	if err := s.AlignTo(2); err != nil {
		return 0, err
	}
	b, err := s.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return s.Order.Binary().Uint16(b), nil
}

func (s *InputStream) ReadU32() (uint32, error) {
	if err := s.AlignTo(4); err != nil {
		return 0, err
	}
	b, err := s.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return s.Order.Binary().Uint32(b), nil
}

func (s *InputStream) ReadU64() (uint64, error) {
	if err := s.AlignTo(align8(s.XCDRVersion)); err != nil {
		return 0, err
	}
	b, err := s.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return s.Order.Binary().Uint64(b), nil
}

// Skip advances Index by n bytes with no alignment, used to skip over a
// member whose length is already known (e.g. an unrecognized mutable-type
// member past must-understand checking).
func (s *InputStream) Skip(n int) error {
	_, err := s.ReadBytes(n)
	return err
}
