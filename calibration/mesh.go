package calibration

import (
	"math"

	"github.com/fogleman/delaunay"
	"github.com/mastercactapus/apawinder/coord"
	"github.com/pkg/errors"
)

// Sample is a measured error at a nominal XY location.
type Sample struct {
	X, Y   float64
	DX, DY float64
}

type meshTriangle struct {
	coord.Triangle
	s [3]Sample
}

// Mesh interpolates pin location errors between measured pins. Inside the
// triangulated area the error is blended from the three surrounding
// samples; outside it the nearest sample is used.
type Mesh struct {
	minX, minY, maxX, maxY float64
	triangles              []meshTriangle
	samples                []Sample
}

// NewMesh triangulates samples. Collinear samples produce a mesh that
// only does nearest sample lookup.
func NewMesh(samples []Sample) (*Mesh, error) {
	if len(samples) == 0 {
		return nil, errors.New("need at least 1 sample to create a mesh")
	}
	mesh := &Mesh{
		minX:    samples[0].X,
		minY:    samples[0].Y,
		maxX:    samples[0].X,
		maxY:    samples[0].Y,
		samples: samples,
	}

	points2d := make([]delaunay.Point, 0, len(samples))
	m := make(map[delaunay.Point]Sample, len(samples))
	var d delaunay.Point
	for _, s := range samples {
		mesh.minX = math.Min(mesh.minX, s.X)
		mesh.minY = math.Min(mesh.minY, s.Y)
		mesh.maxX = math.Max(mesh.maxX, s.X)
		mesh.maxY = math.Max(mesh.maxY, s.Y)

		d.X = s.X
		d.Y = s.Y
		if _, ok := m[d]; ok {
			continue
		}
		m[d] = s
		points2d = append(points2d, d)
	}
	mesh.minX -= coord.Epsilon
	mesh.minY -= coord.Epsilon
	mesh.maxX += coord.Epsilon
	mesh.maxY += coord.Epsilon

	if len(points2d) < 3 {
		return mesh, nil
	}
	tri, err := delaunay.Triangulate(points2d)
	if err != nil {
		// collinear: nearest sample only
		return mesh, nil
	}

	mesh.triangles = make([]meshTriangle, 0, len(tri.Triangles)/3)
	for i := 0; i < len(tri.Triangles); i += 3 {
		var t meshTriangle
		for j := 0; j < 3; j++ {
			t.s[j] = m[tri.Points[tri.Triangles[i+j]]]
		}
		t.A = coord.Point{X: t.s[0].X, Y: t.s[0].Y}
		t.B = coord.Point{X: t.s[1].X, Y: t.s[1].Y}
		t.C = coord.Point{X: t.s[2].X, Y: t.s[2].Y}
		mesh.triangles = append(mesh.triangles, t)
	}
	return mesh, nil
}

// Offset returns the interpolated error at x, y.
func (m *Mesh) Offset(x, y float64) (dx, dy float64) {
	if x >= m.minX && x <= m.maxX && y >= m.minY && y <= m.maxY {
		for _, t := range m.triangles {
			if !t.ContainsXY(x, y) {
				continue
			}
			wa, wb, wc, ok := t.Weights(x, y)
			if !ok {
				continue
			}
			return wa*t.s[0].DX + wb*t.s[1].DX + wc*t.s[2].DX,
				wa*t.s[0].DY + wb*t.s[1].DY + wc*t.s[2].DY
		}
	}
	return m.nearest(x, y)
}

func (m *Mesh) nearest(x, y float64) (dx, dy float64) {
	best := math.Inf(1)
	for _, s := range m.samples {
		d := math.Hypot(s.X-x, s.Y-y)
		if d < best {
			best = d
			dx, dy = s.DX, s.DY
		}
	}
	return dx, dy
}
