package serdata

import (
	"crypto/md5"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddscore/cdrx/internal/cdrstream"
	"github.com/ddscore/cdrx/internal/codec"
	"github.com/ddscore/cdrx/internal/keyhash"
	"github.com/ddscore/cdrx/internal/ops"
	"github.com/ddscore/cdrx/internal/typedesc"
	"github.com/ddscore/cdrx/pkg/fragchain"
	"github.com/ddscore/cdrx/pkg/loan"
)

type point struct {
	ID   uint32
	X    int32
	Y    int32
	Name string
}

func pointAgg(ext ops.Extensibility) *ops.Aggregate {
	return &ops.Aggregate{Ext: ext, Fields: []ops.Field{
		{Name: "ID", FieldIndex: 0, Kind: ops.KUint32, Flags: ops.FlagKey, MemberID: 1},
		{Name: "X", FieldIndex: 1, Kind: ops.KInt32, MemberID: 2},
		{Name: "Y", FieldIndex: 2, Kind: ops.KInt32, MemberID: 3},
		{Name: "Name", FieldIndex: 3, Kind: ops.KString, Bound: 32, MemberID: 4},
	}}
}

func pointDesc(t *testing.T, ext ops.Extensibility) *typedesc.TypeDescriptor {
	t.Helper()
	desc, err := typedesc.New("point", reflect.TypeOf(point{}), pointAgg(ext))
	require.NoError(t, err)
	return desc
}

func samplePoint() *point {
	return &point{ID: 42, X: -7, Y: 13, Name: "origin"}
}

func TestFromSampleToSer_HeaderRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		ext  ops.Extensibility
		xcdr uint8
	}{
		{"FinalXCDR1BE", ops.Final, 1},
		{"FinalXCDR2LE", ops.Final, 2},
		{"AppendableXCDR2", ops.Appendable, 2},
		{"MutableXCDR1BE", ops.Mutable, 1},
		{"MutableXCDR2", ops.Mutable, 2},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			order := cdrstream.BigEndian
			if c.xcdr == 2 {
				order = cdrstream.LittleEndian
			}
			desc := pointDesc(t, c.ext)
			src := samplePoint()

			s, err := FromSample(desc, order, c.xcdr, src)
			require.NoError(t, err)
			defer s.Release()

			wire, err := s.ToSer()
			require.NoError(t, err)
			assert.GreaterOrEqual(t, len(wire), 4)
			assert.Equal(t, 0, len(wire)%4)
			assert.Equal(t, len(wire), s.Size())

			hdr, body, err := cdrstream.ReadHeader(wire)
			require.NoError(t, err)
			decOrder, decVersion, _, err := hdr.Decode()
			require.NoError(t, err)
			assert.Equal(t, order, decOrder)
			assert.Equal(t, cdrstream.EncodingVersion(c.xcdr), decVersion)

			pad := int(hdr.Options & cdrstream.HeaderPaddingMask)
			assert.LessOrEqual(t, pad, len(body))

			back, err := FromSer(desc, wire)
			require.NoError(t, err)
			defer back.Release()

			sample, err := back.ToSample()
			require.NoError(t, err)
			assert.Equal(t, *src, *sample.(*point))
			assert.Equal(t, s.Hash(), back.Hash())
		})
	}
}

func TestFromSer_RejectsUnknownIdentifier(t *testing.T) {
	desc := pointDesc(t, ops.Final)
	junk := []byte{0xff, 0xff, 0x00, 0x00, 1, 2, 3, 4}
	_, err := FromSer(desc, junk)
	assert.Error(t, err)
}

func TestFromSer_RejectsShortBuffer(t *testing.T) {
	desc := pointDesc(t, ops.Final)
	_, err := FromSer(desc, []byte{0x00, 0x06})
	assert.Error(t, err)
}

func TestToUntyped(t *testing.T) {
	desc := pointDesc(t, ops.Final)
	src := samplePoint()

	s, err := FromSample(desc, cdrstream.LittleEndian, 2, src)
	require.NoError(t, err)
	defer s.Release()

	key, err := s.ToUntyped()
	require.NoError(t, err)
	defer key.Release()

	assert.Equal(t, KindKey, key.Kind())
	assert.True(t, s.Eqkey(key))

	keyOfKey, err := key.ToUntyped()
	require.NoError(t, err)
	defer keyOfKey.Release()
	assert.Equal(t, KindKey, keyOfKey.Kind())
	assert.True(t, s.Eqkey(keyOfKey))
}

func TestFromSer_PayloadIsNativeAfterConstruction(t *testing.T) {
	// Serialize in the non-native order; FromSer must normalize the private
	// payload copy so ToSample reads it without byte-order branching.
	foreign := cdrstream.BigEndian
	if cdrstream.NativeOrder == cdrstream.BigEndian {
		foreign = cdrstream.LittleEndian
	}
	desc := pointDesc(t, ops.Final)
	src := samplePoint()

	s, err := FromSample(desc, foreign, 2, src)
	require.NoError(t, err)
	defer s.Release()
	wire, err := s.ToSer()
	require.NoError(t, err)

	back, err := FromSer(desc, wire)
	require.NoError(t, err)
	defer back.Release()

	sample, err := back.ToSample()
	require.NoError(t, err)
	assert.Equal(t, *src, *sample.(*point))
	assert.Equal(t, s.Hash(), back.Hash())
	assert.True(t, s.Eqkey(back))
}

func TestFromSerChain(t *testing.T) {
	desc := pointDesc(t, ops.Final)
	src := samplePoint()
	s, err := FromSample(desc, cdrstream.LittleEndian, 2, src)
	require.NoError(t, err)
	defer s.Release()
	wire, err := s.ToSer()
	require.NoError(t, err)

	t.Run("ReassemblesFragmentedWire", func(t *testing.T) {
		c := fragchain.NewChain(len(wire))
		mid := len(wire) / 2
		require.NoError(t, c.Add(fragchain.Fragment{Offset: mid, Data: wire[mid:]}))
		require.NoError(t, c.Add(fragchain.Fragment{Offset: 0, Data: wire[:mid]}))

		back, err := FromSerChain(desc, c)
		require.NoError(t, err)
		defer back.Release()
		sample, err := back.ToSample()
		require.NoError(t, err)
		assert.Equal(t, *src, *sample.(*point))
	})

	t.Run("FirstFragmentMustCarryHeader", func(t *testing.T) {
		c := fragchain.NewChain(len(wire))
		require.NoError(t, c.Add(fragchain.Fragment{Offset: 0, Data: wire[:2]}))
		require.NoError(t, c.Add(fragchain.Fragment{Offset: 2, Data: wire[2:]}))
		_, err := FromSerChain(desc, c)
		require.Error(t, err)
		assert.ErrorIs(t, err, codec.ErrContract)
	})
}

// twoKeys declares its key fields so that member-id order (B, A) differs
// from declaration order (A, B) — the shape that detects any constructor
// not emitting canonical member-id-ordered key bytes.
type twoKeys struct {
	A uint32
	B uint16
}

func twoKeysDesc(t *testing.T) *typedesc.TypeDescriptor {
	t.Helper()
	agg := &ops.Aggregate{Ext: ops.Final, Fields: []ops.Field{
		{Name: "A", FieldIndex: 0, Kind: ops.KUint32, Flags: ops.FlagKey, MemberID: 2},
		{Name: "B", FieldIndex: 1, Kind: ops.KUint16, Flags: ops.FlagKey, MemberID: 1},
	}}
	desc, err := typedesc.New("twoKeys", reflect.TypeOf(twoKeys{}), agg)
	require.NoError(t, err)
	return desc
}

func TestFromSerKey_CanonicalAcrossEncodings(t *testing.T) {
	desc := twoKeysDesc(t)

	// XCDR1 BE key submessage: fields in declaration order (A, B).
	xcdr1 := []byte{
		0x00, 0x00, 0x00, 0x00, // identifier CDR_BE, options 0
		0x01, 0x02, 0x03, 0x04, // A
		0x05, 0x06, // B
	}
	// XCDR2 BE key submessage: fields in member-id order (B, A).
	xcdr2 := []byte{
		0x00, 0x06, 0x00, 0x00, // identifier CDR2_BE, options 0
		0x05, 0x06, 0x00, 0x00, // B + alignment pad
		0x01, 0x02, 0x03, 0x04, // A
	}

	k1, err := FromSerKey(desc, xcdr1)
	require.NoError(t, err)
	defer k1.Release()
	k2, err := FromSerKey(desc, xcdr2)
	require.NoError(t, err)
	defer k2.Release()

	assert.Equal(t, KindKey, k1.Kind())
	assert.True(t, k1.Eqkey(k2))
	assert.Equal(t, k1.Hash(), k2.Hash())

	// And both match what the same logical value produces from a sample.
	s, err := FromSample(desc, cdrstream.LittleEndian, 2, &twoKeys{A: 0x01020304, B: 0x0506})
	require.NoError(t, err)
	defer s.Release()
	assert.True(t, s.Eqkey(k1))
}

// A fixed-size key is its own keyhash, zero-padded; a string key always
// hashes through MD5.
func TestKeyhashFixedVersusMD5(t *testing.T) {
	t.Run("FixedInt32Key", func(t *testing.T) {
		type oneKey struct{ K int32 }
		agg := &ops.Aggregate{Ext: ops.Final, Fields: []ops.Field{
			{Name: "K", FieldIndex: 0, Kind: ops.KInt32, Flags: ops.FlagKey, MemberID: 1},
		}}
		desc, err := typedesc.New("oneKey", reflect.TypeOf(oneKey{}), agg)
		require.NoError(t, err)
		require.True(t, desc.HasFixedKeyXCDR2)

		s, err := FromSample(desc, cdrstream.BigEndian, 2, &oneKey{K: 1})
		require.NoError(t, err)
		defer s.Release()

		hash, usedMD5 := s.GetKeyhash()
		assert.False(t, usedMD5)
		want := [keyhash.Size]byte{0x00, 0x00, 0x00, 0x01}
		assert.Equal(t, want, hash)
	})

	t.Run("StringKeyUsesMD5", func(t *testing.T) {
		type strKey struct{ K string }
		agg := &ops.Aggregate{Ext: ops.Final, Fields: []ops.Field{
			{Name: "K", FieldIndex: 0, Kind: ops.KString, Flags: ops.FlagKey, MemberID: 1},
		}}
		desc, err := typedesc.New("strKey", reflect.TypeOf(strKey{}), agg)
		require.NoError(t, err)
		require.False(t, desc.HasFixedKeyXCDR2)

		s, err := FromSample(desc, cdrstream.BigEndian, 2, &strKey{K: "hello"})
		require.NoError(t, err)
		defer s.Release()

		hash, usedMD5 := s.GetKeyhash()
		assert.True(t, usedMD5)
		keyBytes, err := codec.ExtractKeyFromData(desc, &strKey{K: "hello"})
		require.NoError(t, err)
		assert.Equal(t, [keyhash.Size]byte(md5.Sum(keyBytes)), hash)
	})
}

func TestKeylessTypeHashIsBaseHash(t *testing.T) {
	type plain struct {
		A int32
		B int32
	}
	agg := &ops.Aggregate{Ext: ops.Final, Fields: []ops.Field{
		{Name: "A", FieldIndex: 0, Kind: ops.KInt32},
		{Name: "B", FieldIndex: 1, Kind: ops.KInt32},
	}}
	desc, err := typedesc.New("plain", reflect.TypeOf(plain{}), agg)
	require.NoError(t, err)

	s1, err := FromSample(desc, cdrstream.LittleEndian, 2, &plain{A: 1, B: 2})
	require.NoError(t, err)
	defer s1.Release()
	s2, err := FromSample(desc, cdrstream.LittleEndian, 2, &plain{A: 3, B: 4})
	require.NoError(t, err)
	defer s2.Release()

	assert.Equal(t, desc.BaseHash, s1.Hash())
	assert.Equal(t, desc.BaseHash, s2.Hash())
	assert.True(t, s1.Eqkey(s2)) // no key: every sample is the one instance
}

func TestFromKeyhash(t *testing.T) {
	t.Run("FixedKeyTypeAccepted", func(t *testing.T) {
		type oneKey struct{ K int32 }
		agg := &ops.Aggregate{Ext: ops.Final, Fields: []ops.Field{
			{Name: "K", FieldIndex: 0, Kind: ops.KInt32, Flags: ops.FlagKey, MemberID: 1},
		}}
		desc, err := typedesc.New("oneKeyB", reflect.TypeOf(oneKey{}), agg)
		require.NoError(t, err)

		s, err := FromSample(desc, cdrstream.BigEndian, 2, &oneKey{K: 9})
		require.NoError(t, err)
		defer s.Release()
		hash, _ := s.GetKeyhash()

		k, err := FromKeyhash(desc, hash)
		require.NoError(t, err)
		defer k.Release()
		assert.Equal(t, KindKey, k.Kind())
		assert.True(t, s.Eqkey(k))
	})

	t.Run("VariableKeyTypeRejected", func(t *testing.T) {
		type strKey struct{ K string }
		agg := &ops.Aggregate{Ext: ops.Final, Fields: []ops.Field{
			{Name: "K", FieldIndex: 0, Kind: ops.KString, Flags: ops.FlagKey, MemberID: 1},
		}}
		desc, err := typedesc.New("strKeyB", reflect.TypeOf(strKey{}), agg) // string key member -> variable
		require.NoError(t, err)
		_, err = FromKeyhash(desc, [keyhash.Size]byte{1})
		require.Error(t, err)
		assert.ErrorIs(t, err, codec.ErrContract)
	})
}

func TestFromLoanedSample(t *testing.T) {
	desc := pointDesc(t, ops.Final)
	src := samplePoint()

	t.Run("WithCDR", func(t *testing.T) {
		p := loan.NewPool(2)
		ln := p.Acquire(64)
		s, err := FromLoanedSample(desc, cdrstream.LittleEndian, 2, src, ln, true)
		require.NoError(t, err)

		sample, err := s.ToSample()
		require.NoError(t, err)
		assert.Equal(t, *src, *sample.(*point))

		require.NoError(t, s.Release())
		assert.Equal(t, int32(0), ln.RefCount()) // serdata owned the loan ref
	})

	t.Run("WithoutCDROnlyKeyAvailable", func(t *testing.T) {
		p := loan.NewPool(2)
		ln := p.Acquire(64)
		s, err := FromLoanedSample(desc, cdrstream.LittleEndian, 2, src, ln, false)
		require.NoError(t, err)
		defer s.Release()

		_, err = s.ToSer()
		require.Error(t, err)
		assert.ErrorIs(t, err, codec.ErrLoan)
		_, err = s.ToSample()
		require.Error(t, err)
		assert.ErrorIs(t, err, codec.ErrLoan)

		full, err := FromSample(desc, cdrstream.LittleEndian, 2, src)
		require.NoError(t, err)
		defer full.Release()
		assert.True(t, full.Eqkey(s))
	})
}

func TestFromPSMX(t *testing.T) {
	desc := pointDesc(t, ops.Final)
	src := samplePoint()
	s, err := FromSample(desc, cdrstream.LittleEndian, 2, src)
	require.NoError(t, err)
	defer s.Release()
	wire, err := s.ToSer()
	require.NoError(t, err)

	t.Run("SerializedDataLoanCopiedAndReleased", func(t *testing.T) {
		ln := loan.FromPSMX(wire, loan.Metadata{State: loan.StateSerializedData})
		got, err := FromPSMX(desc, ln)
		require.NoError(t, err)
		defer got.Release()

		assert.Equal(t, int32(0), ln.RefCount())
		sample, err := got.ToSample()
		require.NoError(t, err)
		assert.Equal(t, *src, *sample.(*point))
	})

	t.Run("RawLoanRejected", func(t *testing.T) {
		ln := loan.FromPSMX([]byte{1, 2, 3}, loan.Metadata{State: loan.StateRawData})
		_, err := FromPSMX(desc, ln)
		require.Error(t, err)
		assert.ErrorIs(t, err, codec.ErrLoan)
		assert.Equal(t, int32(1), ln.RefCount()) // still the caller's to release
	})

	t.Run("UnsetStateRejected", func(t *testing.T) {
		ln := loan.FromPSMX(wire, loan.Metadata{})
		_, err := FromPSMX(desc, ln)
		require.Error(t, err)
		assert.ErrorIs(t, err, codec.ErrLoan)
	})
}

func TestPool(t *testing.T) {
	desc := pointDesc(t, ops.Final)
	p := NewPool(desc, 4)
	src := samplePoint()

	s, err := p.FromSample(cdrstream.LittleEndian, 2, src)
	require.NoError(t, err)
	sample, err := s.ToSample()
	require.NoError(t, err)
	assert.Equal(t, *src, *sample.(*point))

	require.NoError(t, s.Release())
	assert.Equal(t, 1, p.Len()) // small payload recycled

	s2, err := p.FromSample(cdrstream.LittleEndian, 2, src)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Len()) // free-list slot drained by reuse
	assert.Equal(t, KindData, s2.Kind())
	require.NoError(t, s2.Release())
}

func TestTimestampAndStatusInfo(t *testing.T) {
	desc := pointDesc(t, ops.Final)
	s, err := FromSample(desc, cdrstream.LittleEndian, 2, samplePoint())
	require.NoError(t, err)
	defer s.Release()

	assert.True(t, s.Timestamp().IsZero())
	now := time.Unix(1700000000, 42)
	s.SetTimestamp(now)
	s.SetStatusInfo(0x3)
	assert.Equal(t, now, s.Timestamp())
	assert.Equal(t, uint32(0x3), s.StatusInfo())
}
