package coord

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSegment_Slope(t *testing.T) {
	s := Segment{Start: Point{X: 0, Y: 1}, Finish: Point{X: 2, Y: 5}}
	assert.Equal(t, 2.0, s.Slope())
	assert.Equal(t, 1.0, s.Intercept())

	v := Segment{Start: Point{X: 3, Y: 0}, Finish: Point{X: 3, Y: 5}}
	assert.True(t, math.IsInf(v.Slope(), 1))
	assert.True(t, math.IsNaN(v.Intercept()))
}

func TestSegment_Intersection(t *testing.T) {
	a := Segment{Start: Point{X: 0, Y: 0}, Finish: Point{X: 10, Y: 10}}
	edge := Segment{Start: Point{X: 4, Y: -100}, Finish: Point{X: 4, Y: 100}}

	p, ok := a.Intersection(edge)
	assert.True(t, ok)
	assert.Equal(t, 4.0, p.X)
	assert.InDelta(t, 4, p.Y, 1e-9)

	_, ok = a.Intersection(Segment{Start: Point{X: 0, Y: 1}, Finish: Point{X: 1, Y: 2}})
	assert.False(t, ok, "parallel")
}

func TestBox_IntersectSegment(t *testing.T) {
	b := Box{Left: 0, Top: 100, Right: 200, Bottom: 0}

	p, ok := b.IntersectSegment(Segment{Start: Point{X: 50, Y: 50}, Finish: Point{X: 60, Y: 52}})
	assert.True(t, ok)
	assert.Equal(t, 200.0, p.X)
	assert.InDelta(t, 80, p.Y, 1e-9)
	assert.True(t, b.Contains(p))

	p, ok = b.IntersectSegment(Segment{Start: Point{X: 50, Y: 50}, Finish: Point{X: 60, Y: 55}})
	assert.True(t, ok)
	assert.InDelta(t, 150, p.X, 1e-9)
	assert.Equal(t, 100.0, p.Y)

	p, ok = b.IntersectSegment(Segment{Start: Point{X: 50, Y: 50}, Finish: Point{X: 50, Y: 10}})
	assert.True(t, ok)
	assert.Equal(t, Point{X: 50, Y: 0}, p)

	_, ok = b.IntersectSegment(Segment{Start: Point{X: 50, Y: 50}, Finish: Point{X: 50, Y: 50}})
	assert.False(t, ok)
}

func TestBox_Clip(t *testing.T) {
	b := Box{Left: 0, Top: 100, Right: 200, Bottom: 0}
	assert.Equal(t, Point{X: 200, Y: 0, Z: 3}, b.Clip(Point{X: 250, Y: -4, Z: 3}))
	assert.Equal(t, Point{X: 20, Y: 30}, b.Clip(Point{X: 20, Y: 30}))
}
