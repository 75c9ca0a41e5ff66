package coord

import "math"

// Box is an axis aligned rectangle in the XY plane. Top is the larger Y.
type Box struct{ Left, Top, Right, Bottom float64 }

// Contains reports whether p lies inside or on the edge of the box.
func (b Box) Contains(p Point) bool {
	return p.X >= b.Left-Epsilon && p.X <= b.Right+Epsilon && p.Y >= b.Bottom-Epsilon && p.Y <= b.Top+Epsilon
}

// Clip clamps the XY coordinates of p into the box.
func (b Box) Clip(p Point) Point {
	p.X = math.Max(b.Left, math.Min(b.Right, p.X))
	p.Y = math.Max(b.Bottom, math.Min(b.Top, p.Y))
	return p
}

// IntersectSegment returns the first point where a ray starting at s.Start
// and heading through s.Finish leaves the box. Z is carried from s.Finish.
// ok is false if the segment has no direction.
func (b Box) IntersectSegment(s Segment) (p Point, ok bool) {
	if s.IsDegenerate() {
		return p, false
	}
	dx, dy := s.DeltaX(), s.DeltaY()

	tx, ty := math.Inf(1), math.Inf(1)
	var edgeX, edgeY float64
	if dx > 0 {
		edgeX = b.Right
		tx = (b.Right - s.Start.X) / dx
	} else if dx < 0 {
		edgeX = b.Left
		tx = (b.Left - s.Start.X) / dx
	}
	if dy > 0 {
		edgeY = b.Top
		ty = (b.Top - s.Start.Y) / dy
	} else if dy < 0 {
		edgeY = b.Bottom
		ty = (b.Bottom - s.Start.Y) / dy
	}

	p = s.Finish
	if tx <= ty {
		p.X = edgeX
		p.Y = s.Start.Y + dy*tx
	} else {
		p.X = s.Start.X + dx*ty
		p.Y = edgeY
	}
	return p, true
}

// OnEdge reports which edges p lies on, within Epsilon.
func (b Box) OnEdge(p Point) (left, top, right, bottom bool) {
	return math.Abs(p.X-b.Left) <= Epsilon, math.Abs(p.Y-b.Top) <= Epsilon,
		math.Abs(p.X-b.Right) <= Epsilon, math.Abs(p.Y-b.Bottom) <= Epsilon
}
