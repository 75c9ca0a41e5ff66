// Package plc exchanges typed, named tags with a Logix family PLC.
package plc

import (
	"math"
	"strings"
)

// Type is the PLC data type of a tag.
type Type int

const (
	Bool Type = iota
	Int
	DInt
	Real
)

func (t Type) String() string {
	switch t {
	case Bool:
		return "BOOL"
	case Int:
		return "INT"
	case DInt:
		return "DINT"
	case Real:
		return "REAL"
	}
	return "UNKNOWN"
}

// ParseType converts a PLC type name to a Type.
func ParseType(s string) (Type, bool) {
	switch strings.ToUpper(s) {
	case "BOOL":
		return Bool, true
	case "INT":
		return Int, true
	case "DINT":
		return DInt, true
	case "REAL":
		return Real, true
	}
	return 0, false
}

// Coerce converts v to the representable value for t.
func (t Type) Coerce(v float64) float64 {
	switch t {
	case Bool:
		if v != 0 {
			return 1
		}
		return 0
	case Int:
		return float64(int16(clamp(v, math.MinInt16, math.MaxInt16)))
	case DInt:
		return float64(int32(clamp(v, math.MinInt32, math.MaxInt32)))
	}
	return v
}

// clamp limits v to [min, max] so integer conversion is defined. NaN
// becomes zero.
func clamp(v, min, max float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < min:
		return min
	case v > max:
		return max
	}
	return v
}

// MaxBatch is the largest number of tags read in one request. Larger
// requests overflow the transport's message size.
const MaxBatch = 14

// A Driver is the transport to the PLC. Implementations need not be safe
// for concurrent use; the Registry serializes all calls.
type Driver interface {
	// Initialize (re)establishes communication.
	Initialize() error

	// Read returns the current values of the named tags, in order.
	Read(names []string) ([]float64, error)

	// Write sets a single tag.
	Write(name string, t Type, value float64) error
}
