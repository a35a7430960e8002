package codec

import "errors"

// Sentinel errors classifying codec failures, mirroring the error taxonomy
// the codec/serdata packages log under logger.KeyErrorKind (see DESIGN.md).
// Callers use errors.Is to classify a failure without string-matching
// messages.
var (
	// ErrEncoding covers malformed wire bytes encountered while reading or
	// normalizing: truncated buffers, bad alignment, invalid UTF-16.
	ErrEncoding = errors.New("codec: encoding error")

	// ErrValidation covers in-memory values that violate a declared bound:
	// oversize strings/sequences/arrays, non-optional nil pointers, union
	// discriminators matching no case. Normalize also reports an enum value
	// above its highest declared enumerator under this sentinel.
	ErrValidation = errors.New("codec: validation error")

	// ErrResource covers allocation/capacity failures: a pool exhausted, a
	// requested buffer too large to service.
	ErrResource = errors.New("codec: resource error")

	// ErrContract covers programmer-error misuse of the API itself: wrong
	// reflect.Kind for a declared field, nil descriptor, type mismatch
	// between a TypeDescriptor and the sample passed to it.
	ErrContract = errors.New("codec: contract violation")

	// ErrLoan covers failures specific to loaned-sample handling: a loan in
	// a state a Serdata cannot be built from, a loan whose contents fail to
	// parse, and a loan-backed sample with no serialized form to hand out.
	ErrLoan = errors.New("codec: loan error")
)
