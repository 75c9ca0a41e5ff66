package control

import (
	"github.com/mastercactapus/apawinder/machine"
	"github.com/pkg/errors"
)

// Operator requests. Each one only sets a flag for the next Update; the
// errors returned here are early refusals for the operator's benefit.

func (c *Control) refuse(what string) error {
	err := errors.Wrapf(ErrRefused, "%s in %s/%s", what, c.mode, c.stop)
	c.log.Warnf("%v", err)
	return err
}

// Start requests winding from the current recipe line.
func (c *Control) Start() error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if !c.isMovementReady() {
		return c.refuse("start")
	}
	if !c.exec.IsLoaded() {
		return c.refuse("start without recipe")
	}
	if c.exec.IsDone() {
		return c.refuse("start with recipe complete")
	}
	c.req.start = true
	return nil
}

// Stop requests the current operation to stop.
func (c *Control) Stop() {
	c.mx.Lock()
	c.req.stop = true
	c.mx.Unlock()
}

// Acknowledge clears a released E-stop or a PLC error.
func (c *Control) Acknowledge() {
	c.mx.Lock()
	c.req.ack = true
	c.mx.Unlock()
}

func (c *Control) canMove(what string, jog bool) error {
	if c.isMovementReady() || (jog && c.mode == ModeManual && c.jogging) {
		return nil
	}
	return c.refuse(what)
}

// JogXY requests a jog at the given velocities. Zero stops the jog.
func (c *Control) JogXY(vx, vy float64) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if err := c.canMove("jog", true); err != nil {
		return err
	}
	c.req.jogXY = &[2]float64{vx, vy}
	return nil
}

// JogZ requests a Z jog. Zero stops the jog.
func (c *Control) JogZ(v float64) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if err := c.canMove("jog", true); err != nil {
		return err
	}
	c.req.jogZ = &v
	return nil
}

// SeekXY requests a move to (x, y). A velocity of zero uses the maximum.
func (c *Control) SeekXY(x, y, v float64) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if err := c.canMove("seek", false); err != nil {
		return err
	}
	c.req.seekXY = &seekRequest{x: x, y: y, v: v}
	return nil
}

// SeekZ requests a Z move.
func (c *Control) SeekZ(z, v float64) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if err := c.canMove("seek", false); err != nil {
		return err
	}
	c.req.seekZ = &seekRequest{x: z, v: v}
	return nil
}

// SetHead requests a head position.
func (c *Control) SetHead(p machine.HeadPosition) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if !p.Valid() {
		return errors.Errorf("invalid head position %d", int(p))
	}
	if err := c.canMove("head", false); err != nil {
		return err
	}
	c.req.head = &p
	return nil
}

// GCode requests a single manual line.
func (c *Control) GCode(line string) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if err := c.canMove("gcode", false); err != nil {
		return err
	}
	c.req.gcode = &line
	return nil
}

// Calibrate requests a camera scan of the front or back pins of the
// current layer.
func (c *Control) Calibrate(front bool) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if err := c.canMove("calibrate", false); err != nil {
		return err
	}
	c.req.calibrate = &front
	return nil
}
