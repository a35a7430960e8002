package main

import (
	"reflect"

	"github.com/ddscore/cdrx/internal/ops"
	"github.com/ddscore/cdrx/internal/typedesc"
)

// Reading is a small built-in sample type registered at startup so the
// list/dump/roundtrip subcommands have something concrete to work against
// without requiring an IDL front end.
type Reading struct {
	SensorID uint32
	Seq      uint64
	Value    float64
	Unit     string
	Tags     []string
}

func readingAgg(ext ops.Extensibility) *ops.Aggregate {
	return &ops.Aggregate{Ext: ext, Fields: []ops.Field{
		{Name: "SensorID", FieldIndex: 0, Kind: ops.KUint32, Flags: ops.FlagKey, MemberID: 1},
		{Name: "Seq", FieldIndex: 1, Kind: ops.KUint64, Flags: ops.FlagKey, MemberID: 2},
		{Name: "Value", FieldIndex: 2, Kind: ops.KFloat64, MemberID: 3},
		{Name: "Unit", FieldIndex: 3, Kind: ops.KString, Bound: 16, MemberID: 4},
		{Name: "Tags", FieldIndex: 4, Kind: ops.KSequence, Bound: 8, MemberID: 5,
			Elem: &ops.Field{Kind: ops.KString, Bound: 32}},
	}}
}

// Beacon is a second built-in type using Mutable extensibility, so `list`
// and `dump` have an example exercising the EMHEADER/DHEADER path alongside
// Reading's Final encoding.
type Beacon struct {
	DeviceID uint32
	RSSI     int32
}

func beaconAgg() *ops.Aggregate {
	return &ops.Aggregate{Ext: ops.Mutable, Fields: []ops.Field{
		{Name: "DeviceID", FieldIndex: 0, Kind: ops.KUint32, Flags: ops.FlagKey, MemberID: 1},
		{Name: "RSSI", FieldIndex: 1, Kind: ops.KInt32, MemberID: 2},
	}}
}

// registerBuiltinTypes interns every built-in type in typedesc.Default so
// subcommands can look them up by name.
func registerBuiltinTypes() error {
	if _, err := typedesc.Default.Register("Reading", reflect.TypeOf(Reading{}), readingAgg(ops.Final)); err != nil {
		return err
	}
	if _, err := typedesc.Default.Register("Beacon", reflect.TypeOf(Beacon{}), beaconAgg()); err != nil {
		return err
	}
	return nil
}

// sampleFor returns a representative value for one of the built-in types,
// for roundtrip to serialize when the caller doesn't supply its own.
func sampleFor(name string) any {
	switch name {
	case "Reading":
		return &Reading{SensorID: 7, Seq: 42, Value: 21.5, Unit: "C", Tags: []string{"outdoor", "calibrated"}}
	case "Beacon":
		return &Beacon{DeviceID: 99, RSSI: -63}
	default:
		return nil
	}
}
