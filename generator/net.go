// Package generator plans the wire path over a layer's pins and writes
// it as recipe G-code.
package generator

import (
	"math"

	"github.com/mastercactapus/apawinder/coord"
	"github.com/mastercactapus/apawinder/geometry"
	"github.com/mastercactapus/apawinder/headcomp"
)

// Node is one pin touched by the wire.
type Node struct {
	Pin geometry.Pin

	// Orientation is the quadrant of the pin the wire wraps.
	Orientation headcomp.Orientation

	// Centering is the direction, in pin steps along the grid, of the
	// neighbor the wire is hooked against.
	Centering int

	index int
}

// Net is the order in which the wire touches the pins of a layer.
type Net struct {
	Layer *geometry.Layer
	Nodes []Node

	front, back []geometry.Pin
	center      coord.Point
}

var (
	edgeLetter = [...]string{
		geometry.Bottom: "B",
		geometry.Right:  "R",
		geometry.Top:    "T",
		geometry.Left:   "L",
	}
	// lateral letter for centering +1 and -1
	lateralLetter = [...][2]string{
		geometry.Bottom: {"R", "L"},
		geometry.Right:  {"T", "B"},
		geometry.Top:    {"L", "R"},
		geometry.Left:   {"B", "T"},
	}
	// direction of increasing pin index along each edge
	tangent = [...]coord.Point{
		geometry.Bottom: {X: 1},
		geometry.Right:  {Y: 1},
		geometry.Top:    {X: -1},
		geometry.Left:   {Y: -1},
	}
)

func mod(a, n int) int {
	a %= n
	if a < 0 {
		a += n
	}
	return a
}

func bounds(pins []geometry.Pin) coord.Box {
	b := coord.Box{Left: math.Inf(1), Bottom: math.Inf(1), Right: math.Inf(-1), Top: math.Inf(-1)}
	for _, p := range pins {
		b.Left = math.Min(b.Left, p.Location.X)
		b.Right = math.Max(b.Right, p.Location.X)
		b.Bottom = math.Min(b.Bottom, p.Location.Y)
		b.Top = math.Max(b.Top, p.Location.Y)
	}
	return b
}

func nearest(pins []geometry.Pin, p coord.Point) int {
	best, dist := 0, math.Inf(1)
	for i, pin := range pins {
		if d := pin.Location.DistanceXY(p.X, p.Y); d < dist {
			best, dist = i, d
		}
	}
	return best
}

// pairing follows a wire at angle degrees from the first pin across the
// face and returns the index of the pin it lands on. Straight wires pair
// pin i with pin c-i, so c is the same for every pin of the face.
func pairing(pins []geometry.Pin, box coord.Box, angle float64) int {
	start := pins[0].Location
	best, dist := 0, -1.0
	for _, a := range []float64{angle, angle + 180} {
		seg := coord.Segment{Start: start, Finish: start.Offset(1, a*math.Pi/180)}
		exit, ok := box.IntersectSegment(seg)
		if !ok {
			continue
		}
		// the wrong way leaves the box where it starts
		if d := start.DistanceXY(exit.X, exit.Y); d > dist {
			best, dist = nearest(pins, exit), d
		}
	}
	return best
}

// NewNet plans the order the wire visits the pins of l. Each turn runs
// across the front face, wraps to the back at the far pin, runs back
// across the back face and wraps to the front again. When a turn would
// land on a pin already wound the wire moves on to the next free pin.
func NewNet(l *geometry.Layer) (*Net, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	all := l.PinList()
	n := &Net{Layer: l, front: all[:l.Pins], back: all[l.Pins:]}

	box := bounds(n.front)
	n.center = coord.Point{X: (box.Left + box.Right) / 2, Y: (box.Top + box.Bottom) / 2}
	cf := pairing(n.front, box, l.WireAngle)
	cb := pairing(n.back, box, 180-l.WireAngle)
	if mod(cb-cf, l.Pins) == 0 {
		// wires straight across both faces climb one pin per turn
		cb = cf + 1
	}

	used := make([]bool, l.Pins)
	i := 0
	hooked := false
	for {
		if used[i] {
			i = n.nextFree(used, i)
			if i < 0 {
				break
			}
			hooked = false
		}
		j := mod(cf-i, l.Pins)
		used[i], used[j] = true, true

		if hooked {
			// arrived by wrapping from the back
			prev := n.Nodes[len(n.Nodes)-1]
			n.add(true, i, prev.Centering)
		} else {
			n.add(true, i, n.centering(n.front[i], n.front[j].Location))
		}
		if j != i {
			n.add(true, j, n.centering(n.front[j], n.front[i].Location))
		}
		n.add(false, j, n.Nodes[len(n.Nodes)-1].Centering)

		k := mod(cb-j, l.Pins)
		if k != j {
			n.add(false, k, n.centering(n.back[k], n.back[j].Location))
		}
		i, hooked = k, true
	}
	return n, nil
}

func (n *Net) nextFree(used []bool, from int) int {
	for d := 1; d < len(used); d++ {
		if i := mod(from+d, len(used)); !used[i] {
			return i
		}
	}
	return -1
}

// centering is the direction along the pin's edge that a wire arriving
// from the given point is travelling. A wire square to the edge hooks
// toward the middle of the edge.
func (n *Net) centering(pin geometry.Pin, from coord.Point) int {
	t := tangent[pin.Side]
	d := pin.Location.Sub(from)
	dot := d.X*t.X + d.Y*t.Y
	if math.Abs(dot) < coord.Epsilon {
		d = n.center.Sub(pin.Location)
		dot = d.X*t.X + d.Y*t.Y
	}
	if dot < 0 {
		return -1
	}
	return 1
}

func (n *Net) add(front bool, index, centering int) {
	pin := n.back[index]
	if front {
		pin = n.front[index]
	}
	lat := lateralLetter[pin.Side][0]
	if centering < 0 {
		lat = lateralLetter[pin.Side][1]
	}
	n.Nodes = append(n.Nodes, Node{
		Pin:         pin,
		Orientation: headcomp.Orientation(edgeLetter[pin.Side] + lat),
		Centering:   centering,
		index:       index,
	})
}

// Neighbor is the pin next to node in its centering direction.
func (n *Net) Neighbor(node Node) geometry.Pin {
	pins := n.back
	if node.Pin.Front {
		pins = n.front
	}
	return pins[mod(node.index+node.Centering, len(pins))]
}

// Path is the wire centerline through the contact point of every node,
// in the machine frame. Its length is the wire consumed.
func (n *Net) Path() Path {
	origin := n.Layer.Origin()
	res := make(Path, len(n.Nodes))
	for i, node := range n.Nodes {
		res[i] = headcomp.Contact(origin.Add(node.Pin.Location), n.Layer.PinDiameter, node.Orientation)
	}
	return res
}

// Path is a polyline in the machine frame.
type Path []coord.Point

// Length is the 3D length of the path.
func (p Path) Length() float64 {
	var l float64
	for i := 1; i < len(p); i++ {
		l += p[i-1].Distance(p[i])
	}
	return l
}

// Segment is the length of the i'th leg.
func (p Path) Segment(i int) float64 { return p[i].Distance(p[i+1]) }
