package serdata

import (
	"errors"
	"time"

	"github.com/ddscore/cdrx/internal/codec"
	"github.com/ddscore/cdrx/pkg/codecmetrics"
)

// errorKindOf maps a codec sentinel error onto the metrics label
// vocabulary. Unclassified failures count as encoding errors, the broadest
// wire-shaped bucket.
func errorKindOf(err error) codecmetrics.ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, codec.ErrValidation):
		return codecmetrics.ErrorKindValidation
	case errors.Is(err, codec.ErrResource):
		return codecmetrics.ErrorKindResource
	case errors.Is(err, codec.ErrContract):
		return codecmetrics.ErrorKindContract
	case errors.Is(err, codec.ErrLoan):
		return codecmetrics.ErrorKindLoan
	default:
		return codecmetrics.ErrorKindEncoding
	}
}

func observeWrite(start time.Time, err error) {
	if rec := codecmetrics.New(); rec != nil {
		rec.ObserveWrite(time.Since(start), err == nil, errorKindOf(err))
	}
}

func observeRead(start time.Time, err error) {
	if rec := codecmetrics.New(); rec != nil {
		rec.ObserveRead(time.Since(start), err == nil, errorKindOf(err))
	}
}

func observeNormalize(start time.Time, err error) {
	if rec := codecmetrics.New(); rec != nil {
		rec.ObserveNormalize(time.Since(start), err == nil, errorKindOf(err))
	}
}
