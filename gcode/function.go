package gcode

import "strconv"

// FunctionCode is the number of a machine specific G function.
type FunctionCode int

const (
	Latch        FunctionCode = 100
	WireLength   FunctionCode = 101
	SeekTransfer FunctionCode = 102
	PinCenter    FunctionCode = 103
	Clip         FunctionCode = 104
	Offset       FunctionCode = 105
	HeadLocation FunctionCode = 106
	Delay        FunctionCode = 107
	ArmCorrect   FunctionCode = 108
	AnchorPoint  FunctionCode = 109
)

var functionNames = map[FunctionCode]string{
	Latch:        "LATCH",
	WireLength:   "WIRE_LENGTH",
	SeekTransfer: "SEEK_TRANSFER",
	PinCenter:    "PIN_CENTER",
	Clip:         "CLIP",
	Offset:       "OFFSET",
	HeadLocation: "HEAD_LOCATION",
	Delay:        "DELAY",
	ArmCorrect:   "ARM_CORRECT",
	AnchorPoint:  "ANCHOR_POINT",
}

// Known reports whether c is a supported function.
func (c FunctionCode) Known() bool {
	_, ok := functionNames[c]
	return ok
}

func (c FunctionCode) String() string {
	if name, ok := functionNames[c]; ok {
		return name
	}
	return "G" + strconv.Itoa(int(c))
}

// M codes with meaning to the executor. Others are accepted and ignored.
const (
	MPause      = 0
	MOptionStop = 1
	MEnd        = 2
	MEndRewind  = 30
)
