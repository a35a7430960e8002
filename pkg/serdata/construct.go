package serdata

import (
	"fmt"
	"reflect"
	"time"

	"github.com/ddscore/cdrx/internal/cdrstream"
	"github.com/ddscore/cdrx/internal/codec"
	"github.com/ddscore/cdrx/internal/keyhash"
	"github.com/ddscore/cdrx/internal/typedesc"
	"github.com/ddscore/cdrx/pkg/fragchain"
	"github.com/ddscore/cdrx/pkg/loan"
)

// FromSample serializes sample (a pointer to desc.GoType) and wraps the
// resulting bytes as a KindData Serdata, computing its keyhash and
// in-process hash directly from sample without a redundant decode.
func FromSample(desc *typedesc.TypeDescriptor, order cdrstream.ByteOrder, xcdrVersion uint8, sample any) (*Serdata, error) {
	start := time.Now()
	out := cdrstream.NewOutputStream(order, xcdrVersion, nil)
	err := codec.WriteSample(out, desc.Ops, sample)
	observeWrite(start, err)
	if err != nil {
		return nil, fmt.Errorf("serdata: from sample: %w", err)
	}
	keyBytes, err := codec.ExtractKeyFromData(desc, sample)
	if err != nil {
		return nil, fmt.Errorf("serdata: from sample: %w", err)
	}
	s := newFromKeyBytes(desc, order, xcdrVersion, keyBytes)
	s.kind = KindData
	s.data = out.Buf
	return s, nil
}

// FromSer wraps a complete wire buffer (4-byte CDR header, payload, trailing
// pad) as a KindData Serdata with the default normalization policy. See
// FromSerWithPolicy.
func FromSer(desc *typedesc.TypeDescriptor, data []byte) (*Serdata, error) {
	return FromSerWithPolicy(desc, data, codec.Policy{})
}

// FromSerWithPolicy validates data's CDR header (rejecting identifiers this
// module doesn't recognize), copies the payload into a private buffer,
// normalizes it in place to native byte order, extracts the key, and wraps
// the result as a KindData Serdata. The header's identifier selects byte
// order and XCDR version; its options' low 2 bits give the trailing pad
// count, which is stripped before normalization. After construction the
// Serdata's payload is native-endian and well-formed; ToSample never
// re-validates it.
func FromSerWithPolicy(desc *typedesc.TypeDescriptor, data []byte, pol codec.Policy) (*Serdata, error) {
	payload, order, version, err := splitWire(data)
	if err != nil {
		return nil, fmt.Errorf("%w: serdata: from ser: %w", codec.ErrContract, err)
	}
	xcdrVersion := uint8(version)

	start := time.Now()
	actual, err := codec.Normalize(payload, order, xcdrVersion, desc.Ops, pol)
	observeNormalize(start, err)
	if err != nil {
		return nil, fmt.Errorf("serdata: from ser: %w", err)
	}
	payload = payload[:actual]

	scratch := reflect.New(desc.GoType).Interface()
	in := cdrstream.NewInputStream(payload, cdrstream.NativeOrder, xcdrVersion)
	start = time.Now()
	err = codec.ReadSample(in, desc.Ops, scratch)
	observeRead(start, err)
	if err != nil {
		return nil, fmt.Errorf("serdata: from ser: %w", err)
	}
	keyBytes, err := codec.ExtractKeyFromData(desc, scratch)
	if err != nil {
		return nil, fmt.Errorf("serdata: from ser: %w", err)
	}
	s := newFromKeyBytes(desc, cdrstream.NativeOrder, xcdrVersion, keyBytes)
	s.kind = KindData
	s.data = payload
	return s, nil
}

// FromSerKey wraps a received key submessage (4-byte CDR header followed by
// the type's key fields in that encoding's key order) as a KindKey Serdata.
// XCDR1 key representations are converted to the canonical XCDR2 member-id
// ordering, so the resulting key bytes and keyhash match what the same
// instance's data samples produce.
func FromSerKey(desc *typedesc.TypeDescriptor, data []byte) (*Serdata, error) {
	payload, order, version, err := splitWire(data)
	if err != nil {
		return nil, fmt.Errorf("%w: serdata: from ser key: %w", codec.ErrContract, err)
	}
	keyBytes, err := codec.KeyBytesFromWireKey(desc, payload, order, uint8(version))
	if err != nil {
		return nil, fmt.Errorf("serdata: from ser key: %w", err)
	}
	s := newFromKeyBytes(desc, cdrstream.NativeOrder, uint8(version), keyBytes)
	s.kind = KindKey
	return s, nil
}

// splitWire validates the leading CDR header and returns a private copy of
// the payload with the header's declared trailing pad stripped.
func splitWire(data []byte) ([]byte, cdrstream.ByteOrder, cdrstream.EncodingVersion, error) {
	hdr, body, err := cdrstream.ReadHeader(data)
	if err != nil {
		return nil, 0, 0, err
	}
	order, version, _, err := hdr.Decode()
	if err != nil {
		return nil, 0, 0, err
	}
	pad := int(hdr.Options & cdrstream.HeaderPaddingMask)
	if pad > len(body) {
		return nil, 0, 0, fmt.Errorf("pad count %d exceeds %d-byte body", pad, len(body))
	}
	payload := make([]byte, len(body)-pad)
	copy(payload, body[:len(body)-pad])
	return payload, order, version, nil
}

// FromSerIOV reassembles a scatter/gather byte chain and delegates to
// FromSer. The first iovec must begin with the 4-byte CDR header.
func FromSerIOV(desc *typedesc.TypeDescriptor, segments []fragchain.IOV) (*Serdata, error) {
	if len(segments) == 0 || len(segments[0].Base) < 4 {
		return nil, fmt.Errorf("%w: serdata: from ser iov: first segment must carry the 4-byte CDR header", codec.ErrContract)
	}
	return FromSer(desc, fragchain.AssembleIOV(segments))
}

// FromSerChain assembles a received fragment chain and delegates to FromSer.
// The chain must be complete and its first fragment must carry the 4-byte
// CDR header.
func FromSerChain(desc *typedesc.TypeDescriptor, chain *fragchain.Chain) (*Serdata, error) {
	if !chain.FirstCovers(4) {
		return nil, fmt.Errorf("%w: serdata: from ser chain: first fragment must carry the 4-byte CDR header", codec.ErrContract)
	}
	data, err := chain.Assemble()
	if err != nil {
		return nil, fmt.Errorf("%w: serdata: from ser chain: %w", codec.ErrContract, err)
	}
	return FromSer(desc, data)
}

// FromKeyhash wraps an already-computed 16-byte keyhash as a KindKey
// Serdata with no recoverable data bytes — the representation used for a
// dispose/unregister submessage that carries only the instance's keyhash.
// Rejects desc types whose worst-case key is not fixed-size: an MD5-hashed
// keyhash is not invertible, so a Serdata built this way could never
// recover its key bytes on demand (e.g. for Print or ExtractKeyFromKey),
// and callers need that failure at construction time rather than a silent,
// permanently keyless instance.
func FromKeyhash(desc *typedesc.TypeDescriptor, hash [keyhash.Size]byte) (*Serdata, error) {
	if !desc.HasFixedKeyXCDR2 {
		return nil, fmt.Errorf("%w: serdata: from keyhash: %s has a variable-size key; its keyhash is an MD5 digest and cannot be reconstructed into key bytes", codec.ErrContract, desc.Name)
	}
	s := &Serdata{
		desc:         desc,
		kind:         KindKey,
		order:        cdrstream.BigEndian,
		xcdr:         2,
		keyKind:      keyBufStatic,
		keyStatic:    hash,
		keyLen:       int(desc.KeyWorstCaseSizeXCDR2),
		keyHashBytes: hash,
	}
	s.hash = keyhashMix(desc, hash[:])
	s.refs.Store(1)
	return s, nil
}

// FromLoanedSample builds a KindData Serdata for a user sample whose memory
// is owned by a loan. When needCDR is false — every subscriber can reach the
// loan's memory directly, so no wire form is needed — only the key is
// extracted and no serialization happens; ToSer on the result fails. The
// Serdata takes over the caller's reference to ln.
func FromLoanedSample(desc *typedesc.TypeDescriptor, order cdrstream.ByteOrder, xcdrVersion uint8, sample any, ln *loan.Sample, needCDR bool) (*Serdata, error) {
	keyBytes, err := codec.ExtractKeyFromData(desc, sample)
	if err != nil {
		return nil, fmt.Errorf("serdata: from loaned sample: %w", err)
	}
	s := newFromKeyBytes(desc, order, xcdrVersion, keyBytes)
	s.kind = KindData
	if needCDR {
		out := cdrstream.NewOutputStream(order, xcdrVersion, nil)
		if err := codec.WriteSample(out, desc.Ops, sample); err != nil {
			return nil, fmt.Errorf("serdata: from loaned sample: %w", err)
		}
		s.data = out.Buf
	}
	s.ln = ln
	return s, nil
}

// FromPSMX builds a Serdata from a shared-memory loan, branching on what the
// loan's metadata says the buffer holds. Serialized contents (key or data)
// are copied out of the shared segment, normalized to native byte order, and
// owned by the Serdata; the loan reference handed in is released once the
// copy is made. Raw-layout loans are rejected: this codec has no
// memcpy-safe type representation to borrow them through (see DESIGN.md),
// and an unset state is a malformed loan. Both are loan errors per the
// error taxonomy.
func FromPSMX(desc *typedesc.TypeDescriptor, ln *loan.Sample) (*Serdata, error) {
	meta := ln.Metadata()
	if !meta.State.IsSerialized() {
		return nil, fmt.Errorf("%w: serdata: from psmx: unsupported loan state %s", codec.ErrLoan, meta.State)
	}

	var (
		s   *Serdata
		err error
	)
	if meta.State == loan.StateSerializedKey {
		s, err = FromSerKey(desc, ln.Bytes())
	} else {
		s, err = FromSer(desc, ln.Bytes())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: serdata: from psmx: %w", codec.ErrLoan, err)
	}
	if err := ln.Release(); err != nil {
		return nil, fmt.Errorf("serdata: from psmx: %w", err)
	}
	return s, nil
}

func newFromKeyBytes(desc *typedesc.TypeDescriptor, order cdrstream.ByteOrder, xcdrVersion uint8, keyBytesBE []byte) *Serdata {
	s := &Serdata{}
	fillFromKeyBytes(s, desc, order, xcdrVersion, keyBytesBE)
	return s
}

// fillFromKeyBytes populates a fresh or pool-recycled Serdata with its
// identity fields (key view, keyhash, in-process hash) and one reference.
func fillFromKeyBytes(s *Serdata, desc *typedesc.TypeDescriptor, order cdrstream.ByteOrder, xcdrVersion uint8, keyBytesBE []byte) {
	s.desc = desc
	s.order = order
	s.xcdr = xcdrVersion
	s.keyHashBytes, s.keyHashIsMD5 = keyhash.Compute(keyBytesBE, desc.HasFixedKeyXCDR2)
	if len(keyBytesBE) <= keyhash.Size {
		s.keyKind = keyBufStatic
		s.keyLen = copy(s.keyStatic[:], keyBytesBE)
	} else {
		s.keyKind = keyBufDynAlloc
		s.keyDyn = keyBytesBE
	}
	s.hash = keyhashMix(desc, keyBytesBE)
	s.refs.Store(1)
}

func keyhashMix(desc *typedesc.TypeDescriptor, keyBytesBE []byte) uint32 {
	return keyhash.Mix(desc.BaseHash, keyBytesBE)
}
