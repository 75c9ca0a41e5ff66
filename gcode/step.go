package gcode

import (
	"strconv"
	"strings"
)

// A Step is one parsed action of a line: SetAxis, SetVelocity, SetLine,
// Function or MCode.
type Step interface {
	String() string
	step()
}

// SetAxis sets the X, Y or Z target.
type SetAxis struct {
	Axis  byte
	Value float64
}

// SetVelocity sets the seek velocity.
type SetVelocity struct{ Value float64 }

// SetLine records the line number.
type SetLine struct{ Number int }

// Function runs a machine function with its parameters.
type Function struct {
	Code   FunctionCode
	Params []string
}

// MCode is a standard M word.
type MCode struct{ Code int }

func (SetAxis) step()     {}
func (SetVelocity) step() {}
func (SetLine) step()     {}
func (Function) step()    {}
func (MCode) step()       {}

func (s SetAxis) String() string     { return string(s.Axis) + FormatFloat(s.Value) }
func (s SetVelocity) String() string { return "F" + FormatFloat(s.Value) }
func (s SetLine) String() string     { return "N" + strconv.Itoa(s.Number) }
func (s MCode) String() string       { return "M" + strconv.Itoa(s.Code) }
func (s Function) String() string {
	parts := make([]string, 0, len(s.Params)+1)
	parts = append(parts, "G"+strconv.Itoa(int(s.Code)))
	for _, p := range s.Params {
		parts = append(parts, "P"+p)
	}
	return strings.Join(parts, " ")
}

// Format writes steps as a canonical line.
func Format(steps []Step) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = s.String()
	}
	return strings.Join(parts, " ")
}
