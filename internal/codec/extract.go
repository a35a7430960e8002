package codec

import (
	"fmt"
	"reflect"

	"github.com/ddscore/cdrx/internal/cdrstream"
	"github.com/ddscore/cdrx/internal/typedesc"
)

// ExtractKeyFromData serializes desc's key-tagged fields out of sample (a
// pointer to desc.GoType) as canonical big-endian XCDR2 key bytes, the form
// internal/keyhash.Compute and internal/keyhash.Mix expect. Grounded on
// dds_stream_extract_key_from_data (see DESIGN.md).
func ExtractKeyFromData(desc *typedesc.TypeDescriptor, sample any) ([]byte, error) {
	out := cdrstream.NewOutputStream(cdrstream.BigEndian, 2, nil)
	if err := WriteKey(out, desc.KeysMemberIDOrder, sample); err != nil {
		return nil, fmt.Errorf("codec: extract key from data: %w", err)
	}
	return out.Buf, nil
}

// KeyBytesFromWireKey converts a received CDR key representation (the
// payload following its encapsulation header, in any supported byte order
// and XCDR version) into canonical big-endian XCDR2 key bytes. XCDR1 key
// submessages carry the key fields in declaration order; XCDR2 in member-id
// order. Either way the fields are decoded into a scratch sample and
// re-emitted in canonical member-id order, so the output is byte-identical
// for a given logical key value regardless of the input form.
func KeyBytesFromWireKey(desc *typedesc.TypeDescriptor, payload []byte, order cdrstream.ByteOrder, xcdrVersion uint8) ([]byte, error) {
	keys := desc.KeysMemberIDOrder
	if xcdrVersion == 1 {
		keys = desc.KeysDeclOrder
	}
	sample := reflect.New(desc.GoType)
	in := cdrstream.NewInputStream(payload, order, xcdrVersion)
	v := sample.Elem()
	for _, k := range keys {
		fv, f, err := resolvePath(v, k.Path, k.Field)
		if err != nil {
			return nil, fmt.Errorf("codec: key from wire key: %w", err)
		}
		if err := readField(in, f, fv, false); err != nil {
			return nil, fmt.Errorf("codec: key from wire key: read field %q: %w", f.Name, err)
		}
	}
	return ExtractKeyFromData(desc, sample.Interface())
}

// ExtractKeyFromKey deserializes previously-extracted big-endian XCDR2 key
// bytes back into a fresh desc.GoType value with only its key fields
// populated (every other field is its zero value). Grounded on
// dds_stream_extract_key_from_key (see DESIGN.md).
func ExtractKeyFromKey(desc *typedesc.TypeDescriptor, keyBytes []byte) (any, error) {
	sample := reflect.New(desc.GoType)
	in := cdrstream.NewInputStream(keyBytes, cdrstream.BigEndian, 2)
	v := sample.Elem()
	for _, k := range desc.KeysMemberIDOrder {
		fv, f, err := resolvePath(v, k.Path, k.Field)
		if err != nil {
			return nil, fmt.Errorf("codec: extract key from key: %w", err)
		}
		if err := readField(in, f, fv, false); err != nil {
			return nil, fmt.Errorf("codec: extract key from key: read field %q: %w", f.Name, err)
		}
	}
	return sample.Interface(), nil
}
