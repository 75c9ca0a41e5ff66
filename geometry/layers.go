package geometry

import (
	"math"
	"strings"

	"github.com/mastercactapus/apawinder/coord"
	"github.com/pkg/errors"
)

// APA frame dimensions covered by the pins.
const (
	apaWidth  = 6060.0
	apaHeight = 2300.0

	pinDiameter = 2.43
)

var apaLocation = coord.Point{X: 650, Y: 180}

// columnGrid places count pins up the right end and count pins down the
// left end of the APA.
func columnGrid(count int) Grid {
	pitch := apaHeight / float64(count-1)
	return Grid{
		Bottom: {},
		Right:  {Count: count, DY: pitch, StartX: apaWidth},
		Top:    {},
		Left:   {Count: count, DY: -pitch, StartX: -apaWidth},
	}
}

// diagonalGrid places pins on all four sides. Long sides carry long pins
// and short sides carry short pins.
func diagonalGrid(long, short int) Grid {
	px := apaWidth / float64(long)
	py := apaHeight / float64(short)
	if short%2 == 1 {
		// corner pins on the short sides
		py = apaHeight / float64(short-1)
		return Grid{
			Bottom: {Count: long, DX: px, StartX: px / 2},
			Right:  {Count: short, DY: py, StartX: px / 2},
			Top:    {Count: long, DX: -px, StartX: -px / 2},
			Left:   {Count: short, DY: -py, StartX: -px / 2},
		}
	}
	return Grid{
		Bottom: {Count: long, DX: px, StartX: px / 2},
		Right:  {Count: short, DY: py, StartX: px / 2, StartY: py / 2},
		Top:    {Count: long, DX: -px, StartX: -px / 2, StartY: py / 2},
		Left:   {Count: short, DY: -py, StartX: -px / 2, StartY: -py / 2},
	}
}

func wireAngle(g Grid) float64 {
	return math.Atan2(math.Abs(g[Right].DY), math.Abs(g[Bottom].DX)) * 180 / math.Pi
}

// X is the first wire layer: wires run the length of the APA between two
// columns of 480 pins.
func X() *Layer {
	g := columnGrid(480)
	return &Layer{
		Name:           "X",
		Pins:           960,
		GridFront:      g,
		GridBack:       g,
		StartPinFront:  1,
		StartPinBack:   960,
		DirectionFront: 1,
		DirectionBack:  -1,
		APALocation:    apaLocation,
		FrontZ:         118,
		BackZ:          300,
		PartialZFront:  153,
		PartialZBack:   265,
		Overshoot:      15,
		PinDiameter:    pinDiameter,
	}
}

// V is the first diagonal layer.
func V() *Layer {
	g := diagonalGrid(800, 400)
	return &Layer{
		Name:           "V",
		Pins:           2400,
		GridFront:      g,
		GridBack:       g,
		StartPinFront:  1,
		StartPinBack:   2400,
		DirectionFront: 1,
		DirectionBack:  -1,
		APALocation:    apaLocation,
		FrontZ:         110,
		BackZ:          308,
		PartialZFront:  145,
		PartialZBack:   273,
		Overshoot:      15,
		PinDiameter:    pinDiameter,
		WireAngle:      wireAngle(g),
	}
}

// U is the second diagonal layer, mirrored from V.
func U() *Layer {
	g := diagonalGrid(800, 401)
	return &Layer{
		Name:           "U",
		Pins:           2402,
		GridFront:      g,
		GridBack:       g,
		StartPinFront:  1,
		StartPinBack:   2402,
		DirectionFront: 1,
		DirectionBack:  -1,
		APALocation:    apaLocation,
		FrontZ:         102,
		BackZ:          316,
		PartialZFront:  137,
		PartialZBack:   281,
		Overshoot:      15,
		PinDiameter:    pinDiameter,
		WireAngle:      180 - wireAngle(g),
	}
}

// G is the grid layer, wound like X with one more pin per column.
func G() *Layer {
	g := columnGrid(481)
	return &Layer{
		Name:           "G",
		Pins:           962,
		GridFront:      g,
		GridBack:       g,
		StartPinFront:  1,
		StartPinBack:   962,
		DirectionFront: 1,
		DirectionBack:  -1,
		APALocation:    apaLocation,
		FrontZ:         94,
		BackZ:          324,
		PartialZFront:  129,
		PartialZBack:   289,
		Overshoot:      15,
		PinDiameter:    pinDiameter,
	}
}

// Names lists the layers in winding order.
var Names = []string{"X", "V", "U", "G"}

// ByName returns the geometry of a layer.
func ByName(name string) (*Layer, error) {
	switch strings.ToUpper(name) {
	case "X":
		return X(), nil
	case "V":
		return V(), nil
	case "U":
		return U(), nil
	case "G":
		return G(), nil
	}
	return nil, errors.Errorf("unknown layer %q", name)
}
