package calibration

import (
	"math"

	"github.com/mastercactapus/apawinder/coord"
	"github.com/mastercactapus/apawinder/geometry"
	"github.com/mastercactapus/apawinder/machine"
	"github.com/pkg/errors"
)

// ScanPass is one straight camera sweep along a row of pins. Start and
// Finish are motor positions.
type ScanPass struct {
	Side      geometry.Side
	Start     coord.Point
	Finish    coord.Point
	TriggerDX float64
	TriggerDY float64
	Pins      []string
}

// Scan measures the pins of one side of a layer with the camera.
type Scan struct {
	Passes []ScanPass

	// MinMatch drops captures with a worse template match.
	MinMatch float64

	layer   *geometry.Layer
	nominal *Layer
	mach    *Machine

	measured map[string]coord.Point
	quality  map[string]float64
}

// NewScan plans a scan of the front or back pins. Passes alternate
// direction so each starts near where the previous one ended.
func NewScan(l *geometry.Layer, nominal *Layer, m *Machine, front bool) *Scan {
	s := &Scan{
		MinMatch: 0.5,
		layer:    l,
		nominal:  nominal,
		mach:     m,
		measured: make(map[string]coord.Point),
		quality:  make(map[string]float64),
	}
	grid := l.GridFront
	if !front {
		grid = l.GridBack
	}

	bySide := make(map[geometry.Side][]string)
	for _, p := range l.PinList() {
		if p.Front == front {
			bySide[p.Side] = append(bySide[p.Side], p.Name)
		}
	}
	camera := coord.Point{X: m.CameraOffsetX, Y: m.CameraOffsetY}
	for side := geometry.Bottom; side <= geometry.Left; side++ {
		pins := bySide[side]
		if len(pins) == 0 {
			continue
		}
		if len(s.Passes)%2 == 1 {
			reversed := make([]string, len(pins))
			for i, name := range pins {
				reversed[len(pins)-1-i] = name
			}
			pins = reversed
		}
		first, _ := nominal.Pin(pins[0])
		last, _ := nominal.Pin(pins[len(pins)-1])
		e := grid[side]
		s.Passes = append(s.Passes, ScanPass{
			Side:      side,
			Start:     first.Sub(camera),
			Finish:    last.Sub(camera),
			TriggerDX: math.Abs(e.DX),
			TriggerDY: math.Abs(e.DY),
			Pins:      pins,
		})
	}
	return s
}

// Record matches camera captures taken during a pass to its pins and
// returns how many pins were measured.
func (s *Scan) Record(pass int, caps []machine.CameraCapture) int {
	p := s.Passes[pass]
	pitch := math.Max(p.TriggerDX, p.TriggerDY)
	var n int
	for _, c := range caps {
		if c.Match < s.MinMatch {
			continue
		}
		loc := coord.Point{
			X: c.MotorX + s.mach.CameraOffsetX + c.CameraX/s.mach.PixelsPerMM,
			Y: c.MotorY + s.mach.CameraOffsetY + c.CameraY/s.mach.PixelsPerMM,
		}
		name, ok := s.nearest(p.Pins, loc, pitch/2)
		if !ok {
			continue
		}
		if q, seen := s.quality[name]; seen && q >= c.Match {
			continue
		}
		s.measured[name] = loc
		s.quality[name] = c.Match
		n++
	}
	return n
}

func (s *Scan) nearest(pins []string, loc coord.Point, max float64) (string, bool) {
	best := math.Inf(1)
	var res string
	for _, name := range pins {
		nom, err := s.nominal.Pin(name)
		if err != nil {
			continue
		}
		d := nom.DistanceXY(loc.X, loc.Y)
		if d < best {
			best, res = d, name
		}
	}
	return res, best <= max
}

// Measured returns the number of pins measured so far.
func (s *Scan) Measured() int { return len(s.measured) }

// Result builds a calibration from the nominal one. Measured pins take
// their measured location; the rest are corrected by interpolating the
// measured errors.
func (s *Scan) Result() (*Layer, error) {
	if len(s.measured) == 0 {
		return nil, errors.New("scan measured no pins")
	}
	samples := make([]Sample, 0, len(s.measured))
	for name, loc := range s.measured {
		nom, err := s.nominal.Pin(name)
		if err != nil {
			return nil, err
		}
		samples = append(samples, Sample{X: nom.X, Y: nom.Y, DX: loc.X - nom.X, DY: loc.Y - nom.Y})
	}
	mesh, err := NewMesh(samples)
	if err != nil {
		return nil, err
	}

	res := New(s.nominal.Name)
	res.Offset = s.nominal.Offset
	res.ZFront = s.nominal.ZFront
	res.ZBack = s.nominal.ZBack
	for name, nom := range s.nominal.Locations {
		abs := s.nominal.Offset.Add(nom)
		dx, dy := mesh.Offset(abs.X, abs.Y)
		res.Locations[name] = coord.Point{X: nom.X + dx, Y: nom.Y + dy, Z: nom.Z}
	}
	for name, loc := range s.measured {
		nom := s.nominal.Locations[name]
		res.Locations[name] = coord.Point{X: loc.X - res.Offset.X, Y: loc.Y - res.Offset.Y, Z: nom.Z}
	}
	if _, err = res.Marshal(); err != nil {
		return nil, err
	}
	return res, nil
}
