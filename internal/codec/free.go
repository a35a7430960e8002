package codec

import (
	"reflect"

	"github.com/ddscore/cdrx/internal/ops"
)

// FreeSample zeroes every heap-referencing field (strings, slices, boxed
// optional/external pointers) in sample so a decoded value can be returned
// to a pool for reuse without pinning the memory of its last contents. Go's
// garbage collector, not this function, reclaims that memory — FreeSample
// only severs sample's references to it, the idiomatic-Go analogue of
// dds_stream_free_sample's explicit deallocation (see DESIGN.md).
func FreeSample(agg *ops.Aggregate, sample any) error {
	v, err := rootValue(sample)
	if err != nil {
		return err
	}
	freeAggregate(agg, v)
	return nil
}

func freeAggregate(agg *ops.Aggregate, v reflect.Value) {
	for i := range agg.Fields {
		f := &agg.Fields[i]
		freeField(f, v.Field(f.FieldIndex))
	}
}

func freeField(f *ops.Field, fv reflect.Value) {
	if (f.Flags.Has(ops.FlagOptional) || f.Flags.Has(ops.FlagExternal)) && fv.Kind() == reflect.Ptr {
		if fv.IsNil() {
			return
		}
		inner := fv.Elem()
		freeValue(f, inner)
		fv.Set(reflect.Zero(fv.Type()))
		return
	}
	freeValue(f, fv)
}

func freeValue(f *ops.Field, fv reflect.Value) {
	switch f.Kind {
	case ops.KString, ops.KWString:
		fv.SetString("")
	case ops.KArray:
		for i := 0; i < fv.Len(); i++ {
			freeField(f.Elem, fv.Index(i))
		}
	case ops.KSequence:
		for i := 0; i < fv.Len(); i++ {
			freeField(f.Elem, fv.Index(i))
		}
		fv.Set(reflect.Zero(fv.Type()))
	case ops.KStruct:
		freeAggregate(f.Nested, fv)
	case ops.KUnion:
		if f.Union == nil {
			return
		}
		for _, c := range f.Union.Cases {
			freeField(&c.Field, fv.Field(c.Field.FieldIndex))
		}
	}
}
