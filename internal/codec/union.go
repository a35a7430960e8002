package codec

import (
	"fmt"
	"reflect"
	"unicode/utf16"

	"github.com/ddscore/cdrx/internal/cdrstream"
	"github.com/ddscore/cdrx/internal/ops"
)

func writeWString(out *cdrstream.OutputStream, f *ops.Field, fv reflect.Value) error {
	units := utf16.Encode([]rune(fv.String()))
	if f.Bound != 0 && uint32(len(units)) > f.Bound {
		return fmt.Errorf("%w: wstring length %d exceeds bound %d", ErrValidation, len(units), f.Bound)
	}
	out.WriteU32(uint32(len(units)))
	for _, u := range units {
		out.WriteU16(u)
	}
	return nil
}

// writeUnion writes a union's discriminator followed by the single arm it
// selects. fv is the union's own Go struct value: Union.DiscIdx addresses
// the discriminator field within it, and each case's Field.FieldIndex
// addresses that arm's storage field within the same struct.
func writeUnion(out *cdrstream.OutputStream, u *ops.UnionDesc, fv reflect.Value, inMutable bool) error {
	discVal := fv.Field(u.DiscIdx)
	disc, err := discriminatorValue(u.DiscKind, discVal)
	if err != nil {
		return err
	}

	discField := &ops.Field{Name: "$disc", Kind: u.DiscKind, Width: 32}
	if err := writePrimitive(out, discField, discVal); err != nil {
		return err
	}

	c := selectCase(u, disc)
	if c == nil {
		return fmt.Errorf("%w: union discriminator %d matches no case and no default arm", ErrValidation, disc)
	}
	return writeField(out, &c.Field, fv.Field(c.Field.FieldIndex), inMutable)
}

// selectCase resolves disc to a union arm: an explicit label match wins over
// the default arm regardless of the order the cases are declared in.
func selectCase(u *ops.UnionDesc, disc int32) *ops.UnionCase {
	var def *ops.UnionCase
	for i := range u.Cases {
		c := &u.Cases[i]
		if c.Default {
			def = c
			continue
		}
		if c.MatchLabel(disc) {
			return c
		}
	}
	return def
}

func discriminatorValue(kind ops.Kind, v reflect.Value) (int32, error) {
	switch kind {
	case ops.KBool:
		if v.Bool() {
			return 1, nil
		}
		return 0, nil
	case ops.KInt8, ops.KInt16, ops.KInt32, ops.KInt64, ops.KEnum:
		return int32(v.Int()), nil
	case ops.KUint8, ops.KUint16, ops.KUint32, ops.KUint64, ops.KBitmask:
		return int32(v.Uint()), nil
	default:
		return 0, fmt.Errorf("%w: kind %d is not a valid union discriminator type", ErrContract, kind)
	}
}
