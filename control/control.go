// Package control is the top level state machine of the winder. It owns
// move sequencing: operator requests only set flags that Update acts on.
package control

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/mastercactapus/apawinder/calibration"
	"github.com/mastercactapus/apawinder/coord"
	"github.com/mastercactapus/apawinder/executor"
	"github.com/mastercactapus/apawinder/geometry"
	"github.com/mastercactapus/apawinder/machine"
	"github.com/pkg/errors"
)

var (
	// ErrHardwareFault is reported when the PLC is unreachable or an axis
	// faults.
	ErrHardwareFault = errors.New("hardware fault")
	// ErrRefused is returned for requests the current mode does not
	// accept.
	ErrRefused = errors.New("request refused")
)

// retryTicks is how often a lost PLC connection is retried.
const retryTicks = 10

type seekRequest struct{ x, y, v float64 }

type requests struct {
	start, stop, ack bool

	jogXY     *[2]float64
	jogZ      *float64
	seekXY    *seekRequest
	seekZ     *seekRequest
	head      *machine.HeadPosition
	gcode     *string
	calibrate *bool
}

// Control sequences the winder modes.
type Control struct {
	mx sync.Mutex

	m    *machine.Machine
	exec *executor.Executor
	cal  *calibration.Machine
	log  golog.Logger
	now  func() time.Time

	mode    Mode
	stop    StopState
	req     requests
	lastErr error
	ticks   int

	jogging   bool
	limitsSet bool
	eot       bool
	windStart time.Time
	scan      *scanner

	// Layer is used to plan calibration scans.
	Layer *geometry.Layer

	// OnWindStop is called when winding stops for any reason.
	OnWindStop func(line int, pos coord.Point, d time.Duration)
	// OnCalibrated is called with the result of a completed scan before it
	// is made active. An error rejects the result.
	OnCalibrated func(*calibration.Layer) error
}

// New creates a controller in ModeHardware.
func New(m *machine.Machine, exec *executor.Executor, cal *calibration.Machine, log golog.Logger) *Control {
	return &Control{m: m, exec: exec, cal: cal, log: log, now: time.Now}
}

// Machine returns the machine being controlled.
func (c *Control) Machine() *machine.Machine { return c.m }

// Executor returns the recipe executor.
func (c *Control) Executor() *executor.Executor { return c.exec }

// Mode returns the current mode.
func (c *Control) Mode() Mode {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.mode
}

// StopState returns the sub-state of ModeStop.
func (c *Control) StopState() StopState {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.stop
}

// IsMovementReady reports whether a new operation may start.
func (c *Control) IsMovementReady() bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.isMovementReady()
}

func (c *Control) isMovementReady() bool {
	return c.mode == ModeStop && c.stop == StopIdle && c.limitsSet && !c.req.start
}

// LastError returns the most recent recipe, range or hardware error.
func (c *Control) LastError() error {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.lastErr
}

// Tick polls inputs and updates the state machine. It is called at a
// fixed rate.
func (c *Control) Tick() {
	c.mx.Lock()
	defer c.mx.Unlock()
	if err := c.m.PollInputs(); err != nil {
		c.log.Debugf("poll: %v", err)
	}
	c.update()
}

func (c *Control) setMode(m Mode) {
	if c.mode == m {
		return
	}
	c.log.Infof("mode %s -> %s", c.mode, m)
	if c.mode == ModeWind && c.OnWindStop != nil {
		pos := coord.Point{X: c.m.X.Position(), Y: c.m.Y.Position(), Z: c.m.Z.Position()}
		c.OnWindStop(c.exec.Line(), pos, c.now().Sub(c.windStart))
	}
	if m == ModeWind {
		c.windStart = c.now()
	}
	c.mode = m
}

func (c *Control) fail(err error) {
	c.lastErr = err
	c.log.Errorf("%v", err)
}

// Update runs one step of the active mode. PLC loss, E-stop, PLC errors
// and travel limits are checked first and override every mode.
func (c *Control) Update() {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.update()
}

func (c *Control) update() {
	c.ticks++
	req := c.req
	c.req = requests{}

	if !c.m.IsFunctional() {
		c.limitsSet = false
		if c.mode != ModeHardware {
			c.abort()
			c.fail(ErrHardwareFault)
			c.setMode(ModeHardware)
		}
		c.updateHardware(req)
		return
	}

	if c.m.Sensors.EStop() {
		if c.mode != ModeStop || c.stop != StopEStop {
			c.log.Errorf("ESTOP")
			if err := c.m.HardStop(); err != nil {
				c.log.Errorf("hard stop: %v", err)
			}
			c.abortOperation()
			c.stop = StopEStop
			c.setMode(ModeStop)
		}
		if req.start {
			c.log.Warnf("start refused: ESTOP")
		}
		return
	}

	// a held limit switch only faults once so the axis can be jogged off it
	eot := c.m.Sensors.EndOfTravel()
	tripped := eot && !c.eot
	c.eot = eot
	if c.mode != ModeHardware && (tripped || c.m.Logic.IsError()) {
		latched := c.mode == ModeStop && (c.stop == StopEStop || c.stop == StopFault)
		if !latched {
			reason := "end of travel"
			if c.m.Logic.IsError() {
				reason = fmt.Sprintf("PLC error %d", c.m.Logic.ErrorCode())
			}
			c.fault(reason)
			return
		}
	}

	switch c.mode {
	case ModeHardware:
		c.updateHardware(req)
	case ModeStop:
		c.updateStop(req)
	case ModeWind:
		c.updateWind(req)
	case ModeManual:
		c.updateManual(req)
	case ModeCalibrate:
		c.updateCalibrate(req)
	}
}

// fault stops all motion and holds STOP until the operator acknowledges.
func (c *Control) fault(reason string) {
	if err := c.m.HardStop(); err != nil {
		c.log.Errorf("hard stop: %v", err)
	}
	c.abortOperation()
	c.fail(errors.Wrap(ErrHardwareFault, reason))
	c.stop = StopFault
	c.setMode(ModeStop)
}

// abort stops everything after the PLC is lost. Writes may fail.
func (c *Control) abort() {
	if err := c.m.HardStop(); err != nil {
		c.log.Debugf("hard stop: %v", err)
	}
	c.abortOperation()
}

// abortOperation stops the executor or scan of the current mode.
func (c *Control) abortOperation() {
	switch c.mode {
	case ModeWind:
		c.exec.Stop()
	case ModeManual:
		c.exec.Cancel()
		c.jogging = false
	case ModeCalibrate:
		c.stopScan()
	}
}

func (c *Control) updateHardware(req requests) {
	if !c.m.Reg.IsFunctional() {
		if c.ticks%retryTicks != 1 {
			return
		}
		if err := c.m.Reg.Initialize(); err != nil {
			c.log.Debugf("PLC: %v", err)
			return
		}
		if err := c.m.PollInputs(); err != nil {
			c.log.Debugf("poll: %v", err)
		}
	}
	if !c.m.IsFunctional() {
		return
	}
	if c.m.Logic.IsError() {
		if !req.ack {
			return
		}
		c.log.Infof("reset PLC error %d", c.m.Logic.ErrorCode())
		if err := c.m.Logic.Reset(); err != nil {
			c.fail(err)
		}
		return
	}
	if !c.setupLimits() {
		return
	}
	c.stop = StopIdle
	c.setMode(ModeStop)
}

// setupLimits writes the soft limit tags once per PLC connection.
func (c *Control) setupLimits() bool {
	if c.limitsSet {
		return true
	}
	err := c.m.Logic.SetupLimits(c.cal.MaxVelocity, c.cal.MaxAcceleration, c.cal.MaxDeceleration)
	if err == nil {
		err = c.m.Logic.SetupZLimits(c.cal.ZAcceleration, c.cal.ZDeceleration)
	}
	if err != nil {
		c.fail(errors.Wrap(err, "setup limits"))
		return false
	}
	c.limitsSet = true
	return true
}

func (c *Control) updateStop(req requests) {
	switch c.stop {
	case StopEStop:
		if !req.ack {
			if req.start {
				c.log.Warnf("start refused: ESTOP not acknowledged")
			}
			return
		}
		c.log.Infof("ESTOP cleared")
		if err := c.m.Logic.Reset(); err != nil {
			c.fail(err)
			return
		}
		c.stop = StopIdle
		c.setupLimits()
		return
	case StopFault:
		if !req.ack {
			return
		}
		if c.m.Logic.IsError() {
			c.log.Infof("reset PLC error %d", c.m.Logic.ErrorCode())
			if err := c.m.Logic.Reset(); err != nil {
				c.fail(err)
				return
			}
		}
		c.log.Infof("fault cleared")
		c.stop = StopIdle
		return
	case StopPark:
		if c.m.Sensors.Park() {
			return
		}
		c.log.Infof("park released")
		c.stop = StopIdle
		return
	}

	if c.m.Sensors.Park() {
		c.log.Infof("park")
		if err := c.m.HardStop(); err != nil {
			c.fail(err)
		}
		c.stop = StopPark
		return
	}
	if !c.setupLimits() {
		return
	}

	switch {
	case req.start:
		c.startWind()
	case req.jogXY != nil:
		c.jogXY(req.jogXY[0], req.jogXY[1])
	case req.jogZ != nil:
		c.jogZ(*req.jogZ)
	case req.seekXY != nil:
		c.seekXY(*req.seekXY)
	case req.seekZ != nil:
		c.seekZ(*req.seekZ)
	case req.head != nil:
		c.moveHead(*req.head)
	case req.gcode != nil:
		c.manualLine(*req.gcode)
	case req.calibrate != nil:
		c.startScan(*req.calibrate)
	}
}

func (c *Control) startWind() {
	switch {
	case !c.exec.IsLoaded():
		c.log.Warnf("start refused: no recipe loaded")
		return
	case c.exec.IsDone():
		c.log.Warnf("start refused: recipe complete")
		return
	case !c.m.IsMovementReady():
		c.log.Warnf("start refused: machine busy")
		return
	}
	if c.exec.Line() < 0 {
		c.exec.SyncPosition()
	}
	c.exec.Resume()
	c.lastErr = nil
	c.setMode(ModeWind)
}

func (c *Control) updateWind(req requests) {
	if req.stop {
		if err := c.m.Logic.StopSeek(); err != nil {
			c.fail(err)
		}
		c.m.Head.Stop()
		c.exec.Stop()
		c.setMode(ModeStop)
		return
	}

	done, err := c.exec.Poll()
	if err != nil {
		c.fail(err)
		c.setMode(ModeStop)
		return
	}
	switch {
	case c.exec.Paused():
		c.log.Infof("wind paused at line %d", c.exec.Line())
		c.setMode(ModeStop)
	case done && c.exec.IsOutOfWire():
		c.fail(executor.ErrOutOfWire)
		c.setMode(ModeStop)
	case done:
		c.log.Infof("wind complete")
		c.setMode(ModeStop)
	}
}

// clampJog limits jog speed to the machine maximum, and to the slow speed
// when the head is outside the transfer columns where the arm may hit the
// frame.
func (c *Control) clampJog(vx, vy float64) (float64, float64) {
	limit := c.cal.MaxVelocity
	x := c.m.X.Position()
	if x < c.cal.TransferLeft || x > c.cal.TransferRight {
		limit = c.cal.MaxSlowVelocity
	}
	clamp := func(v float64) float64 { return math.Max(-limit, math.Min(limit, v)) }
	cx, cy := clamp(vx), clamp(vy)
	if cx != vx || cy != vy {
		c.log.Warnf("jog %g,%g clamped to %g,%g", vx, vy, cx, cy)
	}
	return cx, cy
}

func (c *Control) jogXY(vx, vy float64) {
	vx, vy = c.clampJog(vx, vy)
	if err := c.m.Logic.JogXY(vx, vy, 0, 0); err != nil {
		c.fail(err)
		return
	}
	c.jogging = vx != 0 || vy != 0
	if c.jogging {
		c.setMode(ModeManual)
	}
}

func (c *Control) jogZ(v float64) {
	v = math.Max(-c.cal.ZMaxVelocity, math.Min(c.cal.ZMaxVelocity, v))
	if err := c.m.Logic.JogZ(v); err != nil {
		c.fail(err)
		return
	}
	c.jogging = v != 0
	if c.jogging {
		c.setMode(ModeManual)
	}
}

func (c *Control) velocity(v, max float64) float64 {
	if v <= 0 || v > max {
		return max
	}
	return v
}

func (c *Control) seekXY(s seekRequest) {
	p := coord.Point{X: s.x, Y: s.y}
	if !c.cal.LimitBox().Contains(p) {
		c.fail(errors.Wrapf(executor.ErrRange, "seek %s", p))
		return
	}
	if err := c.m.Logic.SetXYPosition(s.x, s.y, c.velocity(s.v, c.cal.MaxVelocity), 0, 0); err != nil {
		c.fail(err)
		return
	}
	c.setMode(ModeManual)
}

func (c *Control) seekZ(s seekRequest) {
	if s.x < c.cal.ZLimitFront || s.x > c.cal.ZLimitRear {
		c.fail(errors.Wrapf(executor.ErrRange, "seek Z %g", s.x))
		return
	}
	if err := c.m.Logic.SetZPosition(s.x, c.velocity(s.v, c.cal.ZMaxVelocity)); err != nil {
		c.fail(err)
		return
	}
	c.setMode(ModeManual)
}

func (c *Control) moveHead(p machine.HeadPosition) {
	if err := c.m.Head.SetPosition(p, c.cal.ZMaxVelocity); err != nil {
		c.fail(err)
		return
	}
	c.setMode(ModeManual)
}

func (c *Control) manualLine(line string) {
	if err := c.exec.Manual(line); err != nil {
		c.fail(err)
		return
	}
	c.setMode(ModeManual)
}

func (c *Control) updateManual(req requests) {
	if req.stop {
		if err := c.m.Logic.StopSeek(); err != nil {
			c.fail(err)
		}
		c.m.Head.Stop()
		c.exec.Cancel()
		c.jogging = false
		c.setMode(ModeStop)
		return
	}
	if c.jogging {
		switch {
		case req.jogXY != nil:
			c.jogXY(req.jogXY[0], req.jogXY[1])
		case req.jogZ != nil:
			c.jogZ(*req.jogZ)
		}
		return
	}
	if c.exec.Busy() {
		if _, err := c.exec.Poll(); err != nil {
			c.fail(err)
			c.exec.Cancel()
		}
		return
	}
	if c.m.IsMovementReady() {
		c.setMode(ModeStop)
	}
}
