// Package machine wraps the winder PLC tags in axis, head, sensor and
// camera objects and drives the PLC side move state machine.
package machine

import (
	"math"

	"github.com/mastercactapus/apawinder/plc"
	"go.uber.org/multierr"
)

// Axis is one servo axis of the machine.
type Axis struct {
	Name string

	reg *plc.Registry

	position *plc.Tag
	speed    *plc.Tag
	dir      *plc.Tag

	actualPos *plc.Tag
	actualVel *plc.Tag
	accel     *plc.Tag
	moving    *plc.Tag
	fault     *plc.Tag

	seekStart float64
	stops     int
}

// NewAxis registers the tags of the named axis.
func NewAxis(reg *plc.Registry, name string) *Axis {
	tag := func(suffix string, typ plc.Type, attr plc.Attr) *plc.Tag {
		return reg.MustRegister(plc.AxisTag(name, suffix), typ, attr, 0)
	}
	return &Axis{
		Name: name,
		reg:  reg,

		position: tag(plc.AxisPosition, plc.Real, plc.Write),
		speed:    tag(plc.AxisSpeed, plc.Real, plc.Write),
		dir:      tag(plc.AxisDir, plc.DInt, plc.Write),

		actualPos: tag(plc.AxisActualPos, plc.Real, plc.Read|plc.Polled),
		actualVel: tag(plc.AxisActualVel, plc.Real, plc.Read|plc.Polled),
		accel:     tag(plc.AxisCommandAccel, plc.Real, plc.Read|plc.Polled),
		moving:    tag(plc.AxisMoving, plc.Bool, plc.Read|plc.Polled),
		fault:     tag(plc.AxisFault, plc.Bool, plc.Read|plc.Polled),
	}
}

// Stop zeroes the commanded speed of the axis.
func (a *Axis) Stop() error {
	a.stops++
	return a.speed.Set(0)
}

// Stops returns how many times Stop has been called.
func (a *Axis) Stops() int { return a.stops }

// SetDesiredPosition writes the seek target and remembers where the seek
// began.
func (a *Axis) SetDesiredPosition(p float64) error {
	a.seekStart = a.Position()
	return a.position.Set(p)
}

// DesiredPosition is the last written seek target.
func (a *Axis) DesiredPosition() float64 { return a.position.Get() }

// SeekStartPosition is the position the axis had when the current seek
// was requested.
func (a *Axis) SeekStartPosition() float64 { return a.seekStart }

// SetVelocity writes a signed jog velocity as speed and direction.
func (a *Axis) SetVelocity(v float64) error {
	dir := 1.0
	if v < 0 {
		dir = -1
	}
	return multierr.Combine(
		a.speed.Set(math.Abs(v)),
		a.dir.Set(dir),
	)
}

func (a *Axis) Position() float64     { return a.actualPos.Get() }
func (a *Axis) Velocity() float64     { return a.actualVel.Get() }
func (a *Axis) Acceleration() float64 { return a.accel.Get() }

// IsSeeking reports whether the PLC says the axis is in motion.
func (a *Axis) IsSeeking() bool { return a.moving.Bool() }

// IsFunctional is false if the PLC is down or the axis module reports a
// fault.
func (a *Axis) IsFunctional() bool {
	return a.reg.IsFunctional() && !a.fault.Bool()
}
