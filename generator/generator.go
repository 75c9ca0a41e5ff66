package generator

import (
	"fmt"
	"strconv"

	"github.com/mastercactapus/apawinder/calibration"
	"github.com/mastercactapus/apawinder/gcode"
	"github.com/mastercactapus/apawinder/geometry"
	"github.com/mastercactapus/apawinder/recipe"
)

// head locations used by G106
const (
	headFront = 1
	headBack  = 2
)

// Options tune the generated G-code.
type Options struct {
	// Velocity is set at the start of each file when non-zero.
	Velocity float64

	// Progress, if set, is called after each leg of the net.
	Progress func(done, total int)
}

// Result is a generated layer.
type Result struct {
	Layer *geometry.Layer
	Net   *Net
	Path  Path

	// Halves are the G-code lines of the two recipe files.
	Halves [2][]string

	Calibration *calibration.Layer
}

// FileName is the recipe file name of one half of a layer.
func FileName(layer string, half int) string {
	return fmt.Sprintf("%s-layer-%d.gc", layer, half)
}

// WireLength is the wire consumed by the whole layer.
func (r *Result) WireLength() float64 { return r.Path.Length() }

// Recipes wraps both halves as hashed recipes.
func (r *Result) Recipes() [2]*recipe.Recipe {
	var res [2]*recipe.Recipe
	for i, lines := range r.Halves {
		desc := fmt.Sprintf("%s layer, half %d of 2, %d pins", r.Layer.Name, i+1, r.Layer.Pins)
		res[i] = recipe.New(desc, lines)
	}
	return res
}

// Generate plans layer l and writes its G-code.
func Generate(l *geometry.Layer, opt Options) (*Result, error) {
	net, err := NewNet(l)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Layer:       l,
		Net:         net,
		Path:        net.Path(),
		Calibration: calibration.Nominal(l),
	}

	legs := len(net.Nodes) - 1
	half := legs / 2
	for i := 0; i < legs; i++ {
		h := 0
		if i >= half {
			h = 1
		}
		if len(res.Halves[h]) == 0 {
			res.Halves[h] = numbered(nil, preamble(net.Nodes[i], opt))
		}
		res.Halves[h] = numbered(res.Halves[h], leg(net, res.Path, i))
		if opt.Progress != nil {
			opt.Progress(i+1, legs)
		}
	}
	return res, nil
}

// numbered appends steps to lines as the next N-numbered line.
func numbered(lines []string, steps []gcode.Step) []string {
	n := gcode.SetLine{Number: len(lines) + 1}
	return append(lines, gcode.Format(append([]gcode.Step{n}, steps...)))
}

// preamble puts the head on the side of the first pin of a file.
func preamble(start Node, opt Options) []gcode.Step {
	var steps []gcode.Step
	if opt.Velocity > 0 {
		steps = append(steps, gcode.SetVelocity{Value: opt.Velocity})
	}
	return append(steps, headStep(start.Pin.Front))
}

func headStep(front bool) gcode.Step {
	loc := headFront
	if !front {
		loc = headBack
	}
	return gcode.Function{Code: gcode.HeadLocation, Params: []string{strconv.Itoa(loc)}}
}

// leg writes the line that carries the wire from node i to node i+1.
func leg(net *Net, path Path, i int) []gcode.Step {
	a, b := net.Nodes[i], net.Nodes[i+1]
	length := gcode.Function{Code: gcode.WireLength, Params: []string{gcode.FormatFloat(path.Segment(i))}}

	if a.Pin.Front != b.Pin.Front {
		// wrap around the frame to the other face
		return []gcode.Step{headStep(b.Pin.Front), length}
	}

	steps := []gcode.Step{
		gcode.Function{Code: gcode.AnchorPoint, Params: []string{a.Pin.Name, string(a.Orientation)}},
		gcode.Function{Code: gcode.PinCenter, Params: []string{b.Pin.Name, net.Neighbor(b).Name, "XY"}},
		gcode.Function{Code: gcode.SeekTransfer},
	}
	if net.Layer.WireAngle == 0 {
		// wires level across the frame leave the head level with the pins
		steps = append(steps, gcode.Function{Code: gcode.ArmCorrect})
	}
	if o := net.Layer.Overshoot; o > 0 {
		t := tangent[b.Pin.Side]
		axis, dir := "X", t.X
		if t.X == 0 {
			axis, dir = "Y", t.Y
		}
		v := o * dir * float64(b.Centering)
		steps = append(steps, gcode.Function{Code: gcode.Offset, Params: []string{axis + gcode.FormatFloat(v)}})
	}
	return append(steps, gcode.Function{Code: gcode.Clip}, length)
}
