package codec

import (
	"github.com/ddscore/cdrx/internal/cdrstream"
	"github.com/ddscore/cdrx/internal/ops"
	"github.com/ddscore/cdrx/internal/typedesc"
	"github.com/ddscore/cdrx/pkg/bufpool"
)

// SizeOf returns the number of bytes WriteSample would produce for sample
// under the given byte order and XCDR version, without keeping the bytes.
// The upstream dds_stream_getsize_sample computes this without writing to a
// buffer at all; this implementation writes to a throwaway OutputStream
// backed by bufpool's scratch buffers and measures it; see DESIGN.md's
// pkg/bufpool entry.
func SizeOf(agg *ops.Aggregate, order cdrstream.ByteOrder, xcdrVersion uint8, sample any) (int, error) {
	out := cdrstream.NewOutputStream(order, xcdrVersion, bufpool.DefaultAllocator)
	err := WriteSample(out, agg, sample)
	n := out.Len()
	bufpool.Put(out.Buf)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// SizeOfKey returns the number of bytes WriteKey would produce for desc's
// key fields of sample, in canonical big-endian XCDR2 form.
func SizeOfKey(desc *typedesc.TypeDescriptor, sample any) (int, error) {
	out := cdrstream.NewOutputStream(cdrstream.BigEndian, 2, bufpool.DefaultAllocator)
	err := WriteKey(out, desc.KeysMemberIDOrder, sample)
	n := out.Len()
	bufpool.Put(out.Buf)
	if err != nil {
		return 0, err
	}
	return n, nil
}
