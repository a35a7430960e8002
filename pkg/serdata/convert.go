package serdata

import (
	"fmt"
	"reflect"
	"time"

	"github.com/ddscore/cdrx/internal/cdrstream"
	"github.com/ddscore/cdrx/internal/codec"
	"github.com/ddscore/cdrx/internal/ops"
)

// ToSer returns the wire bytes for s: a 4-byte CDR encapsulation header
// (identifier + options, selected from s's byte order, XCDR version, and
// descriptor's root extensibility), the serialized payload, and zero
// padding out to a 4-byte boundary with the pad count folded into the
// header's options, per the on-the-wire "header + payload + padding"
// contract. A loan-backed Serdata built without a CDR form (FromLoanedSample
// with needCDR false) has no wire bytes to hand out.
func (s *Serdata) ToSer() ([]byte, error) {
	if s.kind != KindData {
		return nil, fmt.Errorf("%w: serdata: ToSer requires KindData, got %s", codec.ErrContract, s.kind)
	}
	payload := s.data
	if payload == nil {
		return nil, fmt.Errorf("%w: serdata: ToSer on a loan-backed sample with no serialized form", codec.ErrLoan)
	}
	format := formatFor(s.desc.Ops.Ext, s.xcdr)
	hdr, err := cdrstream.BuildHeader(s.order, cdrstream.EncodingVersion(s.xcdr), format)
	if err != nil {
		return nil, fmt.Errorf("serdata: ToSer: %w", err)
	}
	pad := (4 - len(payload)%4) % 4
	hdr.Options = uint16(pad) & cdrstream.HeaderPaddingMask

	out := make([]byte, 0, 4+len(payload)+pad)
	out = append(out, cdrstream.WriteHeader(hdr)...)
	out = append(out, payload...)
	for i := 0; i < pad; i++ {
		out = append(out, 0)
	}
	return out, nil
}

// formatFor selects the outer CDR framing a root aggregate's extensibility
// and XCDR version require: FINAL is always plain, APPENDABLE gets a
// DHEADER under XCDR2 (XCDR1 appendable has no distinct top-level framing),
// and MUTABLE is addressed as a parameter list in both versions.
func formatFor(ext ops.Extensibility, xcdrVersion uint8) cdrstream.EncodingFormat {
	switch ext {
	case ops.Mutable:
		return cdrstream.FormatParameterList
	case ops.Appendable:
		if xcdrVersion == 2 {
			return cdrstream.FormatDelimited
		}
		return cdrstream.FormatPlain
	default:
		return cdrstream.FormatPlain
	}
}

// Size returns the full wire size of s — 4-byte CDR header, payload, and
// trailing pad out to a 4-byte boundary — without materializing the bytes.
// This is what a writer history cache budgets against before calling
// ToSerRef. Zero for a Serdata with no serialized form.
func (s *Serdata) Size() int {
	if s.kind != KindData || s.data == nil {
		return 0
	}
	pad := (4 - len(s.data)%4) % 4
	return 4 + len(s.data) + pad
}

// ToSerRef is ToSer plus a Retain, for callers that hand the returned bytes
// to something outliving the current scope and will Release s themselves
// when done with them.
func (s *Serdata) ToSerRef() ([]byte, error) {
	buf, err := s.ToSer()
	if err != nil {
		return nil, err
	}
	s.Retain()
	return buf, nil
}

// ToSerUnref is the inverse of ToSerRef: release the reference taken by a
// prior ToSerRef once the caller is done with the bytes.
func (s *Serdata) ToSerUnref() error {
	return s.Release()
}

// ToSample decodes s's serialized payload into a fresh value of its
// descriptor's Go type and returns a pointer to it.
func (s *Serdata) ToSample() (any, error) {
	if s.kind != KindData {
		return nil, fmt.Errorf("%w: serdata: ToSample requires KindData, got %s", codec.ErrContract, s.kind)
	}
	payload := s.data
	if payload == nil {
		return nil, fmt.Errorf("%w: serdata: ToSample on a loan-backed sample with no serialized form", codec.ErrLoan)
	}
	sample := reflect.New(s.desc.GoType).Interface()
	in := cdrstream.NewInputStream(payload, s.order, s.xcdr)
	start := time.Now()
	err := codec.ReadSample(in, s.desc.Ops, sample)
	observeRead(start, err)
	if err != nil {
		return nil, fmt.Errorf("serdata: ToSample: %w", err)
	}
	return sample, nil
}

// ToUntyped returns a type-stripped SDK_KEY Serdata carrying only s's
// keyhash: for a KindData input this extracts the key from the decoded
// sample first, and for a KindKey input, already in that form, it returns a
// new KindKey Serdata with s's keyhash and hash. Mirrors ddsi_serdata_to_untyped's "value irrelevant, only
// identity matters" contract (see DESIGN.md).
func (s *Serdata) ToUntyped() (*Serdata, error) {
	switch s.kind {
	case KindData:
		sample, err := s.ToSample()
		if err != nil {
			return nil, err
		}
		keyBytes, err := codec.ExtractKeyFromData(s.desc, sample)
		if err != nil {
			return nil, fmt.Errorf("serdata: ToUntyped: %w", err)
		}
		u := newFromKeyBytes(s.desc, s.order, s.xcdr, keyBytes)
		u.kind = KindKey
		return u, nil
	case KindKey:
		u := &Serdata{
			desc:         s.desc,
			kind:         KindKey,
			order:        s.order,
			xcdr:         s.xcdr,
			keyKind:      s.keyKind,
			keyHashBytes: s.keyHashBytes,
			keyHashIsMD5: s.keyHashIsMD5,
			hash:         s.hash,
		}
		u.refs.Store(1)
		return u, nil
	default:
		return nil, fmt.Errorf("%w: serdata: ToUntyped requires KindKey or KindData, got %s", codec.ErrContract, s.kind)
	}
}

// Print renders s's sample (or key, for a KindKey Serdata) as a debug
// string via the codec's reflective printer.
func (s *Serdata) Print() (string, error) {
	switch s.kind {
	case KindData:
		sample, err := s.ToSample()
		if err != nil {
			return "", err
		}
		return codec.PrintSample(s.desc.Ops, sample)
	case KindKey:
		if s.keyHashIsMD5 {
			return fmt.Sprintf("(key, md5 hash %x)", s.keyHashBytes), nil
		}
		key, err := codec.ExtractKeyFromKey(s.desc, s.keyHashBytes[:])
		if err != nil {
			return "", err
		}
		return codec.PrintKey(s.desc, key)
	default:
		return "(empty)", nil
	}
}
