package control

import (
	"github.com/mastercactapus/apawinder/calibration"
	"github.com/pkg/errors"
)

// fifoBatch is the most camera records read per tick.
const fifoBatch = 32

// scanner runs a camera scan one pass at a time.
type scanner struct {
	scan     *calibration.Scan
	pass     int
	issued   bool
	sweeping bool
}

func (c *Control) startScan(front bool) {
	if c.Layer == nil {
		c.fail(errors.New("calibrate: no layer selected"))
		return
	}
	nominal := c.exec.Interpreter().Calibration
	if nominal == nil || nominal.Name != c.Layer.Name {
		nominal = calibration.Nominal(c.Layer)
	}
	scan := calibration.NewScan(c.Layer, nominal, c.cal, front)
	if len(scan.Passes) == 0 {
		c.fail(errors.Errorf("calibrate: layer %s has no pins to scan", c.Layer.Name))
		return
	}
	c.log.Infof("calibrate: scanning %d passes of layer %s", len(scan.Passes), c.Layer.Name)
	c.scan = &scanner{scan: scan}
	c.setMode(ModeCalibrate)
}

func (c *Control) stopScan() {
	if err := c.m.Camera.Enable(false); err != nil {
		c.log.Debugf("camera: %v", err)
	}
	c.scan = nil
}

func (c *Control) readCaptures() error {
	caps, err := c.m.Camera.ReadFIFO(fifoBatch)
	if err != nil {
		return err
	}
	if len(caps) > 0 {
		n := c.scan.scan.Record(c.scan.pass, caps)
		c.log.Debugf("calibrate: %d captures, %d pins", len(caps), n)
	}
	return nil
}

func (c *Control) updateCalibrate(req requests) {
	if req.stop {
		if err := c.m.Logic.StopSeek(); err != nil {
			c.fail(err)
		}
		c.log.Infof("calibrate: aborted")
		c.stopScan()
		c.setMode(ModeStop)
		return
	}
	if err := c.stepScan(); err != nil {
		c.fail(errors.Wrap(err, "calibrate"))
		if err := c.m.Logic.StopSeek(); err != nil {
			c.log.Debugf("stop: %v", err)
		}
		c.stopScan()
		c.setMode(ModeStop)
	}
}

func (c *Control) stepScan() error {
	s := c.scan
	if s.sweeping {
		if err := c.readCaptures(); err != nil {
			return err
		}
		if !c.m.IsMovementReady() {
			return nil
		}
		// drain what the last moves of the sweep captured
		for {
			n := s.scan.Measured()
			caps, err := c.m.Camera.ReadFIFO(fifoBatch)
			if err != nil {
				return err
			}
			if len(caps) == 0 {
				break
			}
			s.scan.Record(s.pass, caps)
			c.log.Debugf("calibrate: %d more pins", s.scan.Measured()-n)
		}
		if err := c.m.Camera.StopPositionTriggers(); err != nil {
			return err
		}
		s.sweeping = false
		s.pass++
		if s.pass == len(s.scan.Passes) {
			return c.finishScan()
		}
		return nil
	}

	if !c.m.IsMovementReady() {
		return nil
	}
	p := s.scan.Passes[s.pass]
	if !s.issued {
		s.issued = true
		return c.m.Logic.SetXYPosition(p.Start.X, p.Start.Y, c.cal.MaxVelocity, 0, 0)
	}
	if err := c.m.Camera.Enable(true); err != nil {
		return err
	}
	if err := c.m.Camera.StartPositionTriggers(p.TriggerDX, p.TriggerDY); err != nil {
		return err
	}
	s.issued = false
	s.sweeping = true
	return c.m.Logic.SetXYPosition(p.Finish.X, p.Finish.Y, c.cal.MaxSlowVelocity, 0, 0)
}

func (c *Control) finishScan() error {
	scan := c.scan.scan
	c.stopScan()
	res, err := scan.Result()
	if err != nil {
		return err
	}
	if c.OnCalibrated != nil {
		if err = c.OnCalibrated(res); err != nil {
			return err
		}
	}
	c.exec.Interpreter().Calibration = res
	c.log.Infof("calibrate: layer %s, %d of %d pins measured", res.Name, scan.Measured(), len(res.Locations))
	c.setMode(ModeStop)
	return nil
}
