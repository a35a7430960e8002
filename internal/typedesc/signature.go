package typedesc

import (
	"fmt"
	"strings"

	"github.com/ddscore/cdrx/internal/ops"
)

// Signature renders agg's entire op-stream tree as a canonical string so two
// independently built Aggregates with the same shape compare equal as
// strings. Used by Registry to dedupe registrations by structure rather
// than by pointer identity or by the caller-supplied type name.
func Signature(agg *ops.Aggregate) string {
	var b strings.Builder
	writeAggregateSignature(&b, agg)
	return b.String()
}

func writeAggregateSignature(b *strings.Builder, agg *ops.Aggregate) {
	if agg == nil {
		b.WriteString("<nil>")
		return
	}
	fmt.Fprintf(b, "agg(ext=%d,n=%d){", agg.Ext, len(agg.Fields))
	for _, f := range agg.Fields {
		writeFieldSignature(b, &f)
	}
	b.WriteString("}")
}

func writeFieldSignature(b *strings.Builder, f *ops.Field) {
	fmt.Fprintf(b, "f(k=%d,fl=%d,w=%d,bnd=%d,mid=%d)", f.Kind, f.Flags, f.Width, f.Bound, f.MemberID)
	switch f.Kind {
	case ops.KStruct:
		writeAggregateSignature(b, f.Nested)
	case ops.KArray, ops.KSequence:
		if f.Elem != nil {
			writeFieldSignature(b, f.Elem)
		}
	case ops.KUnion:
		if f.Union == nil {
			break
		}
		fmt.Fprintf(b, "u(dk=%d,n=%d)[", f.Union.DiscKind, len(f.Union.Cases))
		for _, c := range f.Union.Cases {
			fmt.Fprintf(b, "c(def=%v,labels=%v)", c.Default, c.Labels)
			writeFieldSignature(b, &c.Field)
		}
		b.WriteString("]")
	}
}
