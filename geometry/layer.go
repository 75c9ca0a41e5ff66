// Package geometry describes the pin layout of the four APA wire layers.
package geometry

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/mastercactapus/apawinder/coord"
	"github.com/pkg/errors"
)

// Side is one of the four edges of the APA frame.
type Side int

const (
	Bottom Side = iota
	Right
	Top
	Left
)

func (s Side) String() string {
	switch s {
	case Bottom:
		return "bottom"
	case Right:
		return "right"
	case Top:
		return "top"
	case Left:
		return "left"
	}
	return "unknown"
}

// Edge lays out Count pins along one side. The first pin is StartX,StartY
// from the last pin of the previous edge (or from the layer origin for
// the first edge); each following pin is DX,DY from the one before.
type Edge struct {
	Count          int
	DX, DY         float64
	StartX, StartY float64
}

// Grid is the four edges walked counter-clockwise from the bottom left.
type Grid [4]Edge

// Count is the number of pins in the grid.
func (g Grid) Count() int {
	var n int
	for _, e := range g {
		n += e.Count
	}
	return n
}

// Layer is the geometry of one wire layer.
type Layer struct {
	Name string
	Pins int

	GridFront, GridBack Grid

	StartPinFront, StartPinBack   int
	DirectionFront, DirectionBack int

	// APAOffset places the pin grid origin relative to the APA, and
	// APALocation places the APA in the machine frame.
	APAOffset   coord.Point
	APALocation coord.Point

	FrontZ, BackZ               float64
	PartialZFront, PartialZBack float64
	Overshoot                   float64

	PinDiameter float64

	// WireAngle is the direction of front wires in degrees from +X.
	WireAngle float64
}

// Pin is a named pin with its nominal location in layer coordinates.
type Pin struct {
	Name     string
	Number   int
	Front    bool
	Side     Side
	Location coord.Point
}

// Origin is where layer coordinates start in the machine frame.
func (l *Layer) Origin() coord.Point { return l.APALocation.Add(l.APAOffset) }

// PinRadius is half the pin diameter.
func (l *Layer) PinRadius() float64 { return l.PinDiameter / 2 }

// PinName returns the name of pin number n on a side of the APA.
func PinName(front bool, n int) string {
	if front {
		return "F" + strconv.Itoa(n)
	}
	return "B" + strconv.Itoa(n)
}

// ParsePinName splits a pin name into side and number.
func ParsePinName(name string) (front bool, n int, err error) {
	switch {
	case strings.HasPrefix(name, "F"):
		front = true
	case strings.HasPrefix(name, "B"):
	default:
		return false, 0, errors.Errorf("bad pin name %q", name)
	}
	n, err = strconv.Atoi(name[1:])
	if err != nil {
		return false, 0, errors.Errorf("bad pin name %q", name)
	}
	return front, n, nil
}

func (l *Layer) number(front bool, index int) int {
	start, dir := l.StartPinFront, l.DirectionFront
	if !front {
		start, dir = l.StartPinBack, l.DirectionBack
	}
	n := (start - 1 + dir*index) % l.Pins
	if n < 0 {
		n += l.Pins
	}
	return n + 1
}

func (l *Layer) walk(front bool) []Pin {
	g, z := l.GridFront, l.FrontZ
	if !front {
		g, z = l.GridBack, l.BackZ
	}
	res := make([]Pin, 0, g.Count())
	var x, y float64
	for side, e := range g {
		x += e.StartX
		y += e.StartY
		for i := 0; i < e.Count; i++ {
			if i > 0 {
				x += e.DX
				y += e.DY
			}
			n := l.number(front, len(res))
			res = append(res, Pin{
				Name:     PinName(front, n),
				Number:   n,
				Front:    front,
				Side:     Side(side),
				Location: coord.Point{X: round(x), Y: round(y), Z: z},
			})
		}
	}
	return res
}

// round drops accumulated float error below a micron.
func round(v float64) float64 { return math.Round(v*1e4) / 1e4 }

// PinList returns every front pin followed by every back pin, each side in
// grid order.
func (l *Layer) PinList() []Pin {
	return append(l.walk(true), l.walk(false)...)
}

// Locations returns the nominal location of every pin by name.
func (l *Layer) Locations() map[string]coord.Point {
	res := make(map[string]coord.Point, 2*l.Pins)
	for _, p := range l.PinList() {
		res[p.Name] = p.Location
	}
	return res
}

// PinsBySide returns the names of the pins on one side of the APA, sorted
// by pin number.
func (l *Layer) PinsBySide(front bool) []string {
	pins := l.walk(front)
	sort.Slice(pins, func(i, j int) bool { return pins[i].Number < pins[j].Number })
	res := make([]string, len(pins))
	for i, p := range pins {
		res[i] = p.Name
	}
	return res
}

// Pin looks up one pin.
func (l *Layer) Pin(name string) (Pin, error) {
	front, n, err := ParsePinName(name)
	if err != nil {
		return Pin{}, err
	}
	if n < 1 || n > l.Pins {
		return Pin{}, errors.Errorf("pin %s out of range 1-%d for layer %s", name, l.Pins, l.Name)
	}
	for _, p := range l.walk(front) {
		if p.Number == n {
			return p, nil
		}
	}
	return Pin{}, errors.Errorf("pin %s not found", name)
}

// Validate checks that the grids hold exactly Pins pins.
func (l *Layer) Validate() error {
	if l.GridFront.Count() != l.Pins || l.GridBack.Count() != l.Pins {
		return errors.Errorf("layer %s: grids hold %d/%d pins, want %d",
			l.Name, l.GridFront.Count(), l.GridBack.Count(), l.Pins)
	}
	if abs(l.DirectionFront) != 1 || abs(l.DirectionBack) != 1 {
		return errors.Errorf("layer %s: pin direction must be 1 or -1", l.Name)
	}
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
