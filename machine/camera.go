package machine

import (
	"github.com/mastercactapus/apawinder/plc"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// CameraCapture is one record from the camera FIFO.
type CameraCapture struct {
	MotorX, MotorY   float64
	CameraX, CameraY float64
	Match            float64
	Status           int
}

// Camera drives the position triggered vision camera.
type Camera struct {
	reg *plc.Registry

	trigger     *plc.Tag
	enable      *plc.Tag
	posTriggers *plc.Tag
	xDelta      *plc.Tag
	yDelta      *plc.Tag
	readFIFO    *plc.Tag
	fifo        [plc.CameraFIFOFieldCount]*plc.Tag
}

// NewCamera registers the camera tags.
func NewCamera(reg *plc.Registry) *Camera {
	c := &Camera{
		reg:         reg,
		trigger:     reg.MustRegister(plc.TagCamTrigger, plc.Bool, plc.Write, 0),
		enable:      reg.MustRegister(plc.TagCamEnable, plc.Bool, plc.Write, 0),
		posTriggers: reg.MustRegister(plc.TagCamPosTriggers, plc.Bool, plc.Write, 0),
		xDelta:      reg.MustRegister(plc.TagCamXDelta, plc.Real, plc.Write, 0),
		yDelta:      reg.MustRegister(plc.TagCamYDelta, plc.Real, plc.Write, 0),
		readFIFO:    reg.MustRegister(plc.TagCamReadFIFO, plc.Bool, plc.Write, 0),
	}
	for i := range c.fifo {
		c.fifo[i] = reg.MustRegister(plc.CameraFIFOTag(i), plc.Real, plc.Read, 0)
	}
	return c
}

// Enable turns the camera on or off. Turning it off also stops position
// triggers.
func (c *Camera) Enable(on bool) error {
	if !on {
		return multierr.Combine(c.posTriggers.SetBool(false), c.enable.SetBool(false))
	}
	return c.enable.SetBool(true)
}

// Trigger takes one picture now.
func (c *Camera) Trigger() error { return c.trigger.SetBool(true) }

// StartPositionTriggers takes a picture every dx of X travel or dy of Y
// travel. A zero delta disables triggers on that axis.
func (c *Camera) StartPositionTriggers(dx, dy float64) error {
	return multierr.Combine(
		c.xDelta.Set(dx),
		c.yDelta.Set(dy),
		c.posTriggers.SetBool(true),
	)
}

// StopPositionTriggers disables position triggers.
func (c *Camera) StopPositionTriggers() error { return c.posTriggers.SetBool(false) }

// ReadFIFO drains up to max records from the camera FIFO.
func (c *Camera) ReadFIFO(max int) ([]CameraCapture, error) {
	var res []CameraCapture
	for len(res) < max {
		if err := c.readFIFO.SetBool(true); err != nil {
			return res, errors.Wrap(err, "advance FIFO")
		}
		if err := c.reg.Refresh(c.fifo[:]...); err != nil {
			return res, err
		}
		rec := CameraCapture{
			MotorX:  c.fifo[0].Get(),
			MotorY:  c.fifo[1].Get(),
			CameraX: c.fifo[2].Get(),
			CameraY: c.fifo[3].Get(),
			Match:   c.fifo[4].Get(),
			Status:  c.fifo[5].Int(),
		}
		if rec.Status == 0 {
			break
		}
		res = append(res, rec)
	}
	return res, nil
}
