package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging across the codec, serdata, and
// type-registry packages. Use these keys consistently so the resulting log
// records can be aggregated and queried without per-caller string literals.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Codec operation
	// ========================================================================
	KeyOperation   = "operation"     // write, read, normalize, extract_key, size, print, free
	KeyTypeName    = "type_name"     // registered type name
	KeyXCDR        = "xcdr_version"  // 1 or 2
	KeyExtensib    = "extensibility" // final, appendable, mutable
	KeyOpcode      = "opcode"        // decoded opcode mnemonic
	KeyMemberID    = "member_id"     // XCDR2 EMHEADER member id
	KeyFieldOffset = "field_offset"  // in-memory byte offset of an ADR field
	KeyNestDepth   = "nesting_depth"

	// ========================================================================
	// Stream / buffer state
	// ========================================================================
	KeyStreamIndex = "stream_index" // cursor position in a stream
	KeyStreamSize  = "stream_size"  // allocated stream capacity
	KeyByteOrder   = "byte_order"   // le, be, native

	// ========================================================================
	// Serdata / key handling
	// ========================================================================
	KeySerdataKind = "serdata_kind" // empty, key, data
	KeyKeyBufType  = "key_buftype"  // unset, static, dynalloc, dynalias
	KeyKeySize     = "key_size"
	KeyKeyHash     = "keyhash"  // hex-encoded 16-byte keyhash
	KeyUsedMD5     = "used_md5" // whether the keyhash fell back to MD5
	KeyHash        = "hash"     // 32-bit serdata hash

	// ========================================================================
	// Loan handling
	// ========================================================================
	KeyLoanOrigin = "loan_origin" // heap, psmx
	KeyLoanSize   = "loan_size"

	// ========================================================================
	// Operation outcome
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorKind  = "error_kind" // encoding, validation, resource, contract, loan
)

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Operation returns a slog.Attr for the codec operation name.
func Operation(name string) slog.Attr {
	return slog.String(KeyOperation, name)
}

// TypeName returns a slog.Attr for the registered type name.
func TypeName(name string) slog.Attr {
	return slog.String(KeyTypeName, name)
}

// XCDRVersion returns a slog.Attr for the XCDR version in use (1 or 2).
func XCDRVersion(v uint8) slog.Attr {
	return slog.Int(KeyXCDR, int(v))
}

// Opcode returns a slog.Attr for a decoded opcode mnemonic.
func Opcode(name string) slog.Attr {
	return slog.String(KeyOpcode, name)
}

// MemberID returns a slog.Attr for an XCDR2 EMHEADER member id.
func MemberID(id uint32) slog.Attr {
	return slog.Uint64(KeyMemberID, uint64(id))
}

// FieldOffset returns a slog.Attr for an ADR field's in-memory byte offset.
func FieldOffset(off uint32) slog.Attr {
	return slog.Uint64(KeyFieldOffset, uint64(off))
}

// SerdataKind returns a slog.Attr for the serdata kind (empty, key, data).
func SerdataKind(kind string) slog.Attr {
	return slog.String(KeySerdataKind, kind)
}

// KeyHashAttr returns a slog.Attr for a hex-encoded 16-byte keyhash.
func KeyHashAttr(hex string) slog.Attr {
	return slog.String(KeyKeyHash, hex)
}

// Hash returns a slog.Attr for a 32-bit serdata hash.
func Hash(h uint32) slog.Attr {
	return slog.Uint64(KeyHash, uint64(h))
}

// ErrorAttr returns a slog.Attr carrying an error's message.
func ErrorAttr(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// Err returns a slog.Attr for an error, or a zero-value (empty key) Attr if
// err is nil so that callers can unconditionally pass it to log calls.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorKind returns a slog.Attr classifying an error per the core's taxonomy:
// encoding, validation, resource, contract, or loan.
func ErrorKind(kind string) slog.Attr {
	return slog.String(KeyErrorKind, kind)
}

// HandleHex formats arbitrary bytes (e.g. keyhash, opaque key) as a hex string
// attribute under the given key. Kept generic so callers are not forced
// through typed helpers for one-off diagnostic fields.
func HandleHex(key string, b []byte) slog.Attr {
	return slog.String(key, fmt.Sprintf("%x", b))
}
