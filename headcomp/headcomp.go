// Package headcomp converts wire targets into head positions. The wire
// leaves the head over a roller at the end of an arm, so the head must be
// placed further along the wire direction than the point the wire should
// pass through.
package headcomp

import (
	"math"
	"strings"

	"github.com/mastercactapus/apawinder/coord"
	"github.com/pkg/errors"
)

// Orientation names the quadrant of a pin the wire wraps. The first
// letter is the main direction and the optional second letter turns it 45
// degrees toward that side.
type Orientation string

var orientationAngles = map[Orientation]float64{
	"":   0,
	"T":  90,
	"B":  270,
	"R":  0,
	"L":  180,
	"TR": 45,
	"TL": 135,
	"BR": 315,
	"BL": 225,
	"RT": 45,
	"RB": -45,
	"LT": 135,
	"LB": 225,
}

// ParseOrientation validates an orientation string.
func ParseOrientation(s string) (Orientation, error) {
	o := Orientation(strings.ToUpper(s))
	if _, ok := orientationAngles[o]; !ok {
		return "", errors.Errorf("unknown orientation %q", s)
	}
	return o, nil
}

// Angle is the direction from the pin center to the wire contact point,
// in degrees counter-clockwise from +X.
func (o Orientation) Angle() float64 { return orientationAngles[o] }

// Contact returns where a wire wrapped on a pin with orientation o
// touches the pin. An empty orientation means the pin center.
func Contact(pin coord.Point, pinDiameter float64, o Orientation) coord.Point {
	if o == "" {
		return pin
	}
	return pin.Offset(pinDiameter/2, o.Angle()*math.Pi/180)
}

// Compensator corrects head targets relative to the anchor pin.
type Compensator struct {
	ArmLength float64
	Transfer  coord.Box

	Anchor coord.Point
}

// scale is how far the head must travel along the anchor line, as a
// factor of the distance to the target. ok is false when the head is
// level with the anchor and no correction applies.
func (c *Compensator) scale(target coord.Point) (float64, bool) {
	dz := math.Abs(target.Z - c.Anchor.Z)
	if dz < coord.Epsilon {
		return 1, false
	}
	return (dz + c.ArmLength) / dz, true
}

// CorrectX returns the head X that puts the wire through target.
func (c *Compensator) CorrectX(target coord.Point) float64 {
	s, ok := c.scale(target)
	if !ok {
		return target.X
	}
	return c.Anchor.X + (target.X-c.Anchor.X)*s
}

// CorrectY returns the head Y that puts the wire through target.
func (c *Compensator) CorrectY(target coord.Point) float64 {
	s, ok := c.scale(target)
	if !ok {
		return target.Y
	}
	return c.Anchor.Y + (target.Y-c.Anchor.Y)*s
}

// Correct applies the arm correction to a transfer target. A target on
// or beyond the left or right transfer edge moves along that edge in Y.
// Otherwise X is corrected, unless that would push the head past a side
// edge, in which case the target is moved to where the anchor line meets
// that edge and Y is corrected instead.
func (c *Compensator) Correct(target coord.Point) coord.Point {
	if target.X <= c.Transfer.Left || target.X >= c.Transfer.Right {
		target.Y = c.CorrectY(target)
		return target
	}

	x := c.CorrectX(target)
	edge := math.NaN()
	switch {
	case x < c.Transfer.Left:
		edge = c.Transfer.Left
	case x > c.Transfer.Right:
		edge = c.Transfer.Right
	}
	if math.IsNaN(edge) {
		target.X = x
		return target
	}

	line := coord.Segment{Start: c.Anchor, Finish: target}
	edgeLine := coord.Segment{Start: coord.Point{X: edge, Y: c.Transfer.Bottom}, Finish: coord.Point{X: edge, Y: c.Transfer.Top}}
	p, ok := line.Intersection(edgeLine)
	if !ok {
		target.X = edge
		return target
	}
	p.Z = target.Z
	p.Y = c.CorrectY(p)
	return p
}
