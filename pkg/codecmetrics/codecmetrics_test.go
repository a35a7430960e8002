package codecmetrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_DisabledReturnsNil(t *testing.T) {
	enabled = false
	assert.Nil(t, New())
}

func TestNew_EnabledNoConstructorReturnsNil(t *testing.T) {
	enabled = true
	defer func() { enabled = false }()
	prev := newPrometheusRec
	newPrometheusRec = nil
	defer func() { newPrometheusRec = prev }()

	assert.Nil(t, New())
}

func TestRegisterConstructor(t *testing.T) {
	enabled = true
	defer func() { enabled = false }()

	RegisterConstructor(func() Recorder { return fakeRecorder{} })
	defer func() { newPrometheusRec = nil }()

	rec := New()
	assert.NotNil(t, rec)
	rec.ObserveWrite(time.Millisecond, true, ErrorKindEncoding)
}

type fakeRecorder struct{}

func (fakeRecorder) ObserveWrite(time.Duration, bool, ErrorKind)     {}
func (fakeRecorder) ObserveRead(time.Duration, bool, ErrorKind)      {}
func (fakeRecorder) ObserveNormalize(time.Duration, bool, ErrorKind) {}
func (fakeRecorder) RecordSerdataPool(string, int)                  {}
func (fakeRecorder) RecordLoanPool(string, int)                     {}
