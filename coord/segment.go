package coord

import "math"

// Segment is a directed line through two locations.
type Segment struct{ Start, Finish Point }

func (s Segment) DeltaX() float64 { return s.Finish.X - s.Start.X }
func (s Segment) DeltaY() float64 { return s.Finish.Y - s.Start.Y }

// IsDegenerate reports whether the segment has no XY direction.
func (s Segment) IsDegenerate() bool {
	return math.Abs(s.DeltaX()) < Epsilon && math.Abs(s.DeltaY()) < Epsilon
}

// Length is the 3D length of the segment.
func (s Segment) Length() float64 { return s.Start.Distance(s.Finish) }

// Slope is Δy/Δx; vertical segments have an infinite slope.
func (s Segment) Slope() float64 {
	dx := s.DeltaX()
	if dx == 0 {
		return math.Inf(sign(s.DeltaY()))
	}
	return s.DeltaY() / dx
}

// Intercept is the Y intercept of the line through the segment. Vertical
// lines have no Y intercept and return NaN.
func (s Segment) Intercept() float64 {
	m := s.Slope()
	if math.IsInf(m, 0) {
		return math.NaN()
	}
	return s.Start.Y - m*s.Start.X
}

// Intersection returns the XY point where the lines through s and o cross.
// ok is false for parallel or degenerate lines.
func (s Segment) Intersection(o Segment) (p Point, ok bool) {
	if s.IsDegenerate() || o.IsDegenerate() {
		return p, false
	}
	d := s.DeltaX()*o.DeltaY() - s.DeltaY()*o.DeltaX()
	if math.Abs(d) < epsilonSq {
		return p, false
	}
	t := ((o.Start.X-s.Start.X)*o.DeltaY() - (o.Start.Y-s.Start.Y)*o.DeltaX()) / d
	p = s.Start.Add(s.Finish.Sub(s.Start).Mul(t))
	// a vertical or horizontal partner pins the shared coordinate exactly
	if o.DeltaX() == 0 {
		p.X = o.Start.X
	} else if o.DeltaY() == 0 {
		p.Y = o.Start.Y
	}
	return p, true
}

func sign(v float64) int {
	if v < 0 {
		return -1
	}
	return 1
}
