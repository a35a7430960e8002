package codec

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/ddscore/cdrx/internal/ops"
	"github.com/ddscore/cdrx/internal/typedesc"
)

// PrintSample renders sample as a human-readable "Field: value, ..." string
// driven by agg, the Go analogue of dds_stream_print_sample — used for
// diagnostics and cmd/cdrdump output, never for wire encoding.
func PrintSample(agg *ops.Aggregate, sample any) (string, error) {
	v, err := rootValue(sample)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := printAggregate(&b, agg, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

// PrintKey renders only desc's key-tagged fields of sample.
func PrintKey(desc *typedesc.TypeDescriptor, sample any) (string, error) {
	v, err := rootValue(sample)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("{")
	for i, k := range desc.KeysDeclOrder {
		if i > 0 {
			b.WriteString(", ")
		}
		fv, f, err := resolvePath(v, k.Path, k.Field)
		if err != nil {
			return "", err
		}
		b.WriteString(f.Name)
		b.WriteString(": ")
		if err := printField(&b, f, fv); err != nil {
			return "", err
		}
	}
	b.WriteString("}")
	return b.String(), nil
}

func printAggregate(b *strings.Builder, agg *ops.Aggregate, v reflect.Value) error {
	b.WriteString("{")
	for i := range agg.Fields {
		f := &agg.Fields[i]
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name)
		b.WriteString(": ")
		if err := printField(b, f, v.Field(f.FieldIndex)); err != nil {
			return err
		}
	}
	b.WriteString("}")
	return nil
}

func printField(b *strings.Builder, f *ops.Field, fv reflect.Value) error {
	if (f.Flags.Has(ops.FlagOptional) || f.Flags.Has(ops.FlagExternal)) && fv.Kind() == reflect.Ptr {
		if fv.IsNil() {
			b.WriteString("<absent>")
			return nil
		}
		fv = fv.Elem()
	}

	switch f.Kind {
	case ops.KStruct:
		return printAggregate(b, f.Nested, fv)
	case ops.KUnion:
		return printUnion(b, f.Union, fv)
	case ops.KArray, ops.KSequence:
		b.WriteString("[")
		for i := 0; i < fv.Len(); i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := printField(b, f.Elem, fv.Index(i)); err != nil {
				return err
			}
		}
		b.WriteString("]")
		return nil
	default:
		fmt.Fprintf(b, "%v", fv.Interface())
		return nil
	}
}

func printUnion(b *strings.Builder, u *ops.UnionDesc, fv reflect.Value) error {
	disc, err := discriminatorValue(u.DiscKind, fv.Field(u.DiscIdx))
	if err != nil {
		return err
	}
	fmt.Fprintf(b, "<disc=%d> ", disc)
	c := selectCase(u, disc)
	if c == nil {
		return fmt.Errorf("%w: union discriminator %d matches no case and no default arm", ErrValidation, disc)
	}
	return printField(b, &c.Field, fv.Field(c.Field.FieldIndex))
}
