package headcomp

import (
	"testing"

	"github.com/mastercactapus/apawinder/coord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrientation(t *testing.T) {
	o, err := ParseOrientation("tr")
	require.NoError(t, err)
	assert.Equal(t, 45.0, o.Angle())

	_, err = ParseOrientation("XX")
	assert.Error(t, err)

	for s, want := range map[string]float64{"BL": 225, "RB": -45, "LT": 135, "T": 90} {
		o, err := ParseOrientation(s)
		require.NoError(t, err)
		assert.Equal(t, want, o.Angle(), s)
	}
}

func TestContact(t *testing.T) {
	pin := coord.Point{X: 10, Y: 10}
	assert.Equal(t, pin, Contact(pin, 2, ""))

	p := Contact(pin, 2, "T")
	assert.InDelta(t, 10, p.X, 1e-9)
	assert.InDelta(t, 11, p.Y, 1e-9)

	p = Contact(pin, 2, "BL")
	assert.InDelta(t, 10-0.7071, p.X, 1e-4)
	assert.InDelta(t, 10-0.7071, p.Y, 1e-4)
}

func newComp() *Compensator {
	return &Compensator{
		ArmLength: 100,
		Transfer:  coord.Box{Left: 500, Top: 2600, Right: 6860, Bottom: 60},
		Anchor:    coord.Point{X: 1000, Y: 1000, Z: 0},
	}
}

func TestCorrectXY(t *testing.T) {
	c := newComp()
	target := coord.Point{X: 1200, Y: 1500, Z: 100}
	// (100 + 100) / 100 doubles the offset from the anchor
	assert.InDelta(t, 1400, c.CorrectX(target), 1e-9)
	assert.InDelta(t, 2000, c.CorrectY(target), 1e-9)

	// level with the anchor nothing changes
	target.Z = 0
	assert.Equal(t, 1200.0, c.CorrectX(target))
	assert.Equal(t, 1500.0, c.CorrectY(target))
}

func TestCorrectAtEdge(t *testing.T) {
	c := newComp()
	target := coord.Point{X: 500, Y: 1100, Z: 100}
	p := c.Correct(target)
	assert.Equal(t, 500.0, p.X)
	assert.InDelta(t, 1200, p.Y, 1e-9)
}

func TestCorrectInside(t *testing.T) {
	c := newComp()
	p := c.Correct(coord.Point{X: 1100, Y: 2600, Z: 100})
	assert.InDelta(t, 1200, p.X, 1e-9)
	assert.Equal(t, 2600.0, p.Y)
}

func TestCorrectCrossingEdge(t *testing.T) {
	c := newComp()
	// X correction would land at 200, left of the transfer edge
	p := c.Correct(coord.Point{X: 600, Y: 1200, Z: 100})
	assert.Equal(t, 500.0, p.X)

	// the line from the anchor meets x=500 at y=1250
	assert.InDelta(t, 1000+(1250-1000)*2.0, p.Y, 1e-9)
	assert.Equal(t, 100.0, p.Z)
}
