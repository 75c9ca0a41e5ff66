package calibration

import (
	"testing"

	"github.com/mastercactapus/apawinder/geometry"
	"github.com/mastercactapus/apawinder/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanPlan(t *testing.T) {
	l := geometry.X()
	m := DefaultMachine()
	m.CameraOffsetX = 30
	s := NewScan(l, Nominal(l), m, true)

	// the X layer only has pins on the right and left ends
	require.Len(t, s.Passes, 2)
	assert.Equal(t, geometry.Right, s.Passes[0].Side)
	assert.Equal(t, "F1", s.Passes[0].Pins[0])
	assert.Equal(t, 650+6060-30.0, s.Passes[0].Start.X)
	assert.InDelta(t, 2300.0/479, s.Passes[0].TriggerDY, 1e-9)

	// the second pass runs backwards to start near the first one's end
	assert.Equal(t, "F960", s.Passes[1].Pins[0])
	assert.InDelta(t, 180, s.Passes[1].Start.Y, 1e-6)
}

func TestScanResult(t *testing.T) {
	l := geometry.X()
	m := DefaultMachine()
	nominal := Nominal(l)
	s := NewScan(l, nominal, m, true)

	// every pin on the right column sits 0.2mm further right than nominal
	var caps []machine.CameraCapture
	for _, name := range s.Passes[0].Pins[:100] {
		p, err := nominal.Pin(name)
		require.NoError(t, err)
		caps = append(caps, machine.CameraCapture{
			MotorX:  p.X - 1,
			MotorY:  p.Y,
			CameraX: 1.2 * m.PixelsPerMM,
			Match:   0.9,
			Status:  1,
		})
	}
	caps = append(caps, machine.CameraCapture{MotorX: 0, MotorY: 0, Match: 0.9, Status: 1})
	caps = append(caps, machine.CameraCapture{MotorX: 6710, MotorY: 180, Match: 0.1, Status: 1})
	assert.Equal(t, 100, s.Record(0, caps))
	assert.Equal(t, 100, s.Measured())

	res, err := s.Result()
	require.NoError(t, err)
	require.NoError(t, res.Check(l))
	assert.NotEmpty(t, res.Hash)

	p, err := res.Pin("F1")
	require.NoError(t, err)
	assert.InDelta(t, 6710.2, p.X, 1e-6)

	// an unmeasured pin near the measured ones is moved with them
	p, err = res.Pin("F200")
	require.NoError(t, err)
	nom, _ := nominal.Pin("F200")
	assert.InDelta(t, nom.X+0.2, p.X, 1e-6)
}

func TestScanEmpty(t *testing.T) {
	l := geometry.G()
	s := NewScan(l, Nominal(l), DefaultMachine(), false)
	_, err := s.Result()
	assert.Error(t, err)
}
