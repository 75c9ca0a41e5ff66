package vm

import (
	"math"
	"strconv"
	"strings"

	"github.com/mastercactapus/apawinder/calibration"
	"github.com/mastercactapus/apawinder/coord"
	"github.com/mastercactapus/apawinder/gcode"
	"github.com/mastercactapus/apawinder/headcomp"
)

// Interpreter applies steps to registers. It holds only configuration;
// all state lives in Registers.
type Interpreter struct {
	Machine *calibration.Machine

	// Calibration of the layer being wound. Pin functions fail without it.
	Calibration *calibration.Layer

	// HeadZ is the Z of each head position, used to track Z after G106.
	HeadZ [4]float64
}

// Run applies a line. Change flags are cleared first. On error the
// registers are returned unmodified.
func (in *Interpreter) Run(r Registers, line int, text string, steps []gcode.Step) (Registers, error) {
	next := r
	next.Changed = 0
	next.WireLength = 0
	next.Delay = 0
	if line > 0 {
		next.Line = line
	}
	for _, s := range steps {
		var err error
		next, err = in.Step(next, s)
		if e, ok := err.(*gcode.Error); ok {
			e.Text = text
			if e.Line == 0 {
				e.Line = next.Line
			}
		}
		if err != nil {
			return r, err
		}
	}
	return next, nil
}

// Step applies a single step.
func (in *Interpreter) Step(r Registers, s gcode.Step) (Registers, error) {
	switch s := s.(type) {
	case gcode.SetAxis:
		switch s.Axis {
		case 'X':
			r.Position.X = s.Value
			r.Changed |= ChangeXY
		case 'Y':
			r.Position.Y = s.Value
			r.Changed |= ChangeXY
		case 'Z':
			r.Position.Z = s.Value
			r.Changed |= ChangeZ
		}
	case gcode.SetVelocity:
		r.Velocity = math.Min(s.Value, in.Machine.MaxVelocity)
		r.Changed |= ChangeVelocity
	case gcode.SetLine:
		r.Line = s.Number
	case gcode.MCode:
		switch s.Code {
		case gcode.MPause, gcode.MOptionStop:
			r.Changed |= ChangePause
		case gcode.MEnd, gcode.MEndRewind:
			r.Changed |= ChangeEnd
		}
	case gcode.Function:
		return in.function(r, s)
	}
	return r, nil
}

func (in *Interpreter) function(r Registers, f gcode.Function) (Registers, error) {
	fail := func(token, msg string) error {
		return &gcode.Error{Line: r.Line, Token: token, Family: "G" + strconv.Itoa(int(f.Code)), Msg: msg}
	}
	param := func(i int) string {
		if i < len(f.Params) {
			return "P" + f.Params[i]
		}
		return f.String()
	}

	switch f.Code {
	case gcode.Latch:
		r.Changed |= ChangeLatch

	case gcode.WireLength:
		v, err := f.ParamFloat(0)
		if err != nil {
			return r, fail(param(0), "expected wire length")
		}
		r.WireLength += v
		r.Changed |= ChangeWireLength

	case gcode.SeekTransfer:
		seg := coord.Segment{Start: r.Anchor, Finish: r.Position}
		if p, ok := in.Machine.TransferBox().IntersectSegment(seg); ok {
			r.Position.X, r.Position.Y = p.X, p.Y
		}
		r.Changed |= ChangeXY

	case gcode.PinCenter:
		if len(f.Params) < 2 || len(f.Params) > 3 {
			return r, fail(f.String(), "expected two pins and optional axes")
		}
		if in.Calibration == nil {
			return r, fail(f.String(), "no calibration loaded")
		}
		a, err := in.Calibration.Pin(f.Params[0])
		if err != nil {
			return r, fail(param(0), err.Error())
		}
		b, err := in.Calibration.Pin(f.Params[1])
		if err != nil {
			return r, fail(param(1), err.Error())
		}
		axes := "XY"
		if len(f.Params) == 3 {
			axes = f.Params[2]
		}
		c := a.Center(b)
		switch axes {
		case "X":
			r.Position.X = c.X
		case "Y":
			r.Position.Y = c.Y
		case "XY":
			r.Position.X, r.Position.Y = c.X, c.Y
		default:
			return r, fail(param(2), "axes must be X, Y or XY")
		}
		r.Changed |= ChangeXY

	case gcode.Clip:
		r.Position = in.Machine.TransferBox().Clip(r.Position)
		r.Changed |= ChangeXY

	case gcode.Offset:
		if len(f.Params) == 0 {
			return r, fail(f.String(), "expected offsets")
		}
		for i, p := range f.Params {
			if len(p) < 2 {
				return r, fail(param(i), "expected axis and offset")
			}
			v, err := strconv.ParseFloat(p[1:], 64)
			if err != nil {
				return r, fail(param(i), "invalid offset")
			}
			switch p[0] {
			case 'X':
				r.Position.X += v
				r.Changed |= ChangeXY
			case 'Y':
				r.Position.Y += v
				r.Changed |= ChangeXY
			case 'Z':
				r.Position.Z += v
				r.Changed |= ChangeZ
			default:
				return r, fail(param(i), "unknown axis")
			}
		}

	case gcode.HeadLocation:
		n, err := f.ParamInt(0)
		if err != nil || n < 0 || n > 3 {
			return r, fail(param(0), "head location must be 0-3")
		}
		r.Head = n
		r.Position.Z = in.HeadZ[n]
		r.Changed |= ChangeHead

	case gcode.Delay:
		n, err := f.ParamInt(0)
		if err != nil || n < 0 {
			return r, fail(param(0), "expected tick count")
		}
		r.Delay = n
		r.Changed |= ChangeDelay

	case gcode.ArmCorrect:
		comp := headcomp.Compensator{
			ArmLength: in.Machine.HeadArmLength,
			Transfer:  in.Machine.TransferBox(),
			Anchor:    r.Anchor,
		}
		p := comp.Correct(r.Position)
		r.Position.X, r.Position.Y = p.X, p.Y
		r.Changed |= ChangeXY

	case gcode.AnchorPoint:
		if len(f.Params) < 1 || len(f.Params) > 2 {
			return r, fail(f.String(), "expected pin and optional orientation")
		}
		if in.Calibration == nil {
			return r, fail(f.String(), "no calibration loaded")
		}
		pin, err := in.Calibration.Pin(f.Params[0])
		if err != nil {
			return r, fail(param(0), err.Error())
		}
		var o headcomp.Orientation
		if len(f.Params) == 2 && f.Params[1] != "0" {
			o, err = headcomp.ParseOrientation(strings.TrimSpace(f.Params[1]))
			if err != nil {
				return r, fail(param(1), err.Error())
			}
		}
		r.AnchorPin = f.Params[0]
		r.Orientation = o
		r.Anchor = headcomp.Contact(pin, in.Machine.PinDiameter, o)
		r.Changed |= ChangeAnchor

	default:
		return r, fail(f.String(), "unsupported function")
	}
	return r, nil
}
