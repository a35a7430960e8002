package ops

import "fmt"

// MaxNestingDepth is the bound the upstream op-stream interpreter enforces
// on recursive aggregate nesting (structs-in-structs, sequences-of-structs,
// unions-of-structs...). Grounded on dds_cdrstream.h's
// DDS_CDRSTREAM_MAX_NESTING_DEPTH (see DESIGN.md).
const MaxNestingDepth = 32

// NestingDepth walks an aggregate's field tree and returns the deepest chain
// of nested aggregates it contains, or an error if that chain exceeds
// MaxNestingDepth. A flat aggregate with no nested struct/union/array/
// sequence-of-struct members has depth 1.
func NestingDepth(agg *Aggregate) (int, error) {
	return nestingDepth(agg, 0)
}

func nestingDepth(agg *Aggregate, depth int) (int, error) {
	if agg == nil {
		return depth, nil
	}
	depth++
	if depth > MaxNestingDepth {
		return depth, fmt.Errorf("ops: nesting depth %d exceeds maximum %d", depth, MaxNestingDepth)
	}
	max := depth
	for _, f := range agg.Fields {
		d, err := fieldNestingDepth(&f, depth)
		if err != nil {
			return d, err
		}
		if d > max {
			max = d
		}
	}
	return max, nil
}

func fieldNestingDepth(f *Field, depth int) (int, error) {
	switch f.Kind {
	case KStruct:
		return nestingDepth(f.Nested, depth)
	case KArray, KSequence:
		if f.Elem == nil {
			return depth, nil
		}
		return fieldNestingDepth(f.Elem, depth)
	case KUnion:
		if f.Union == nil {
			return depth, nil
		}
		max := depth
		for _, c := range f.Union.Cases {
			d, err := fieldNestingDepth(&c.Field, depth)
			if err != nil {
				return d, err
			}
			if d > max {
				max = d
			}
		}
		return max, nil
	default:
		return depth, nil
	}
}
