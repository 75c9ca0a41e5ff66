// Package sim is a simulated winder PLC. It answers the same tags as the
// real controller and executes moves with trapezoidal motion profiles on a
// simulated clock.
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/mastercactapus/apawinder/motion"
	"github.com/mastercactapus/apawinder/plc"
	"github.com/pkg/errors"
)

// ErrOffline is returned by every request while the simulator is offline.
var ErrOffline = errors.New("simulated PLC offline")

// Config holds the simulated machine's physical parameters.
type Config struct {
	MaxVelocity     float64
	MaxAcceleration float64
	MaxDeceleration float64

	ZMaxVelocity float64
	ZAccel       float64
	ZDecel       float64

	// ZExtended is the Z position reported by the extended switch.
	ZExtended float64

	LatchTime time.Duration
}

// DefaultConfig is a machine in the range of the real winder.
var DefaultConfig = Config{
	MaxVelocity:     1000,
	MaxAcceleration: 2000,
	MaxDeceleration: 2000,
	ZMaxVelocity:    400,
	ZAccel:          1000,
	ZDecel:          1000,
	ZExtended:       418,
	LatchTime:       500 * time.Millisecond,
}

// Capture is one camera FIFO record.
type Capture struct {
	MotorX, MotorY float64
	CameraX        float64
	CameraY        float64
	Match          float64
}

// Camera reports what the camera sees with the motors at (x, y).
type Camera func(x, y float64) (c Capture, ok bool)

// PLC is a plc.Driver backed by a simulation.
type PLC struct {
	cfg Config

	mx      sync.Mutex
	now     float64
	offline bool

	tags     map[string]float64
	axes     map[string]*axis
	moveType plc.MoveType
	state    plc.State
	errCode  int

	switches  uint32
	latchPos  int
	latchDone float64

	camera      Camera
	fifo        []Capture
	lastTrigger [2]float64
}

type axis struct {
	name  string
	pos   float64
	t0    float64
	prof  *motion.Profile
	fault bool
}

var _ plc.Driver = &PLC{}

// New returns a simulator with every axis at 0 and the head resting on the
// stage side.
func New(cfg Config) *PLC {
	p := &PLC{
		cfg:   cfg,
		tags:  make(map[string]float64),
		axes:  make(map[string]*axis),
		state: plc.StateReady,
	}
	for _, name := range []string{"X", "Y", "Z"} {
		p.axes[name] = &axis{name: name}
	}
	p.switches = plc.SwitchZStageLatched.Mask() | plc.SwitchZStagePresent.Mask() | plc.SwitchLatchHomed.Mask()
	return p
}

func (a *axis) position(now float64) float64 {
	if a.prof == nil {
		return a.pos
	}
	return a.prof.InterpolatePosition(now - a.t0)
}
func (a *axis) velocity(now float64) float64 {
	if a.prof == nil {
		return 0
	}
	return a.prof.InterpolateVelocity(now - a.t0)
}
func (a *axis) acceleration(now float64) float64 {
	if a.prof == nil {
		return 0
	}
	return a.prof.InterpolateAcceleration(now - a.t0)
}
func (a *axis) moving(now float64) bool {
	return a.prof != nil && a.prof.IsMoving(now-a.t0)
}
func (a *axis) settle(now float64) {
	if a.prof != nil && !a.moving(now) && now-a.t0 >= a.prof.T[3].T {
		a.pos = a.prof.T[3].X
		a.prof = nil
	}
}
func (a *axis) hardStop(now float64) {
	a.pos = a.position(now)
	a.prof = nil
}
func (a *axis) stop(now, decel float64) {
	if a.prof == nil {
		return
	}
	if err := a.prof.ComputeStop(decel, now-a.t0); err != nil {
		a.hardStop(now)
	}
}

// SetOffline makes every request fail until cleared.
func (p *PLC) SetOffline(offline bool) {
	p.mx.Lock()
	p.offline = offline
	p.mx.Unlock()
}

// SetSwitch forces an input bit of Machine_SW_Stat.
func (p *PLC) SetSwitch(s plc.Switch, on bool) {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.setSwitch(s, on)
	if s == plc.SwitchEStop && on {
		p.fault(1)
	}
}

func (p *PLC) setSwitch(s plc.Switch, on bool) {
	if on {
		p.switches |= s.Mask()
	} else {
		p.switches &^= s.Mask()
	}
}

// SetAxisFault sets the module fault of an axis.
func (p *PLC) SetAxisFault(name string, fault bool) {
	p.mx.Lock()
	defer p.mx.Unlock()
	if a, ok := p.axes[name]; ok {
		a.fault = fault
		if fault {
			p.fault(2)
		}
	}
}

// SetError puts the PLC into the error state with code.
func (p *PLC) SetError(code int) {
	p.mx.Lock()
	p.fault(code)
	p.mx.Unlock()
}

func (p *PLC) fault(code int) {
	for _, a := range p.axes {
		a.hardStop(p.now)
	}
	p.state = plc.StateError
	p.errCode = code
	p.moveType = plc.MoveIdle
}

// SetCamera installs the camera model used for FIFO captures.
func (p *PLC) SetCamera(c Camera) {
	p.mx.Lock()
	p.camera = c
	p.mx.Unlock()
}

// Position returns the simulated position of an axis.
func (p *PLC) Position(name string) float64 {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.axes[name].position(p.now)
}

// SetPosition teleports an idle axis.
func (p *PLC) SetPosition(name string, pos float64) {
	p.mx.Lock()
	defer p.mx.Unlock()
	a := p.axes[name]
	a.prof = nil
	a.pos = pos
	p.updateZSwitches()
}

// Now returns the simulated time in seconds.
func (p *PLC) Now() float64 {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.now
}

// Advance moves the simulated clock forward.
func (p *PLC) Advance(d time.Duration) {
	p.mx.Lock()
	defer p.mx.Unlock()

	// step in small increments so position triggers see intermediate points
	const step = 0.005
	end := p.now + d.Seconds()
	for p.now < end {
		p.now = math.Min(end, p.now+step)
		p.step()
	}
}

// Run advances the clock in real time until ctx is done.
func (p *PLC) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			p.Advance(now.Sub(last))
			last = now
		}
	}
}

func (p *PLC) step() {
	p.positionTriggers()

	moving := false
	for _, a := range p.axes {
		a.settle(p.now)
		if a.prof != nil {
			moving = true
		}
	}
	p.updateZSwitches()

	switch p.state {
	case plc.StateXYSeek, plc.StateZSeek, plc.StateXYJog, plc.StateZJog:
		if !moving {
			p.state = plc.StateReady
			p.moveType = plc.MoveIdle
		}
	case plc.StateLatching, plc.StateLatchHoming, plc.StateLatchRelease:
		if p.now >= p.latchDone {
			p.finishLatch()
			p.state = plc.StateReady
			p.moveType = plc.MoveIdle
		}
	}
}

func (p *PLC) updateZSwitches() {
	z := p.axes["Z"].position(p.now)
	p.setSwitch(plc.SwitchZRetracted, z <= 1)
	p.setSwitch(plc.SwitchZExtended, z >= p.cfg.ZExtended-1)
}

func (p *PLC) finishLatch() {
	switch p.state {
	case plc.StateLatching:
		p.latchPos = (p.latchPos + 1) % 3
		p.setSwitch(plc.SwitchLatchActuatorTop, p.latchPos == 1)
		p.setSwitch(plc.SwitchLatchActuatorMid, p.latchPos == 2)
		if p.switches&plc.SwitchZExtended.Mask() != 0 {
			// latching at full extension hands the head to the other side
			stage := p.switches&plc.SwitchZStageLatched.Mask() != 0
			p.setSwitch(plc.SwitchZStageLatched, !stage)
			p.setSwitch(plc.SwitchZStagePresent, !stage)
			p.setSwitch(plc.SwitchZFixedLatched, stage)
			p.setSwitch(plc.SwitchZFixedPresent, stage)
		}
	case plc.StateLatchHoming:
		p.latchPos = 0
		p.setSwitch(plc.SwitchLatchHomed, true)
		p.setSwitch(plc.SwitchLatchActuatorTop, false)
		p.setSwitch(plc.SwitchLatchActuatorMid, false)
	case plc.StateLatchRelease:
		p.setSwitch(plc.SwitchZFixedLatched, false)
	}
}

func (p *PLC) positionTriggers() {
	if p.tags[plc.TagCamPosTriggers] == 0 || p.tags[plc.TagCamEnable] == 0 {
		return
	}
	x := p.axes["X"].position(p.now)
	y := p.axes["Y"].position(p.now)
	dx, dy := p.tags[plc.TagCamXDelta], p.tags[plc.TagCamYDelta]
	if (dx > 0 && math.Abs(x-p.lastTrigger[0]) >= dx) || (dy > 0 && math.Abs(y-p.lastTrigger[1]) >= dy) {
		p.capture(x, y)
	}
}

func (p *PLC) capture(x, y float64) {
	p.lastTrigger = [2]float64{x, y}
	if p.camera == nil {
		return
	}
	c, ok := p.camera(x, y)
	if !ok {
		return
	}
	c.MotorX, c.MotorY = x, y
	p.fifo = append(p.fifo, c)
}

// Initialize succeeds unless the simulator is offline.
func (p *PLC) Initialize() error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.offline {
		return ErrOffline
	}
	return nil
}

// Read returns the values of names. Unknown names read as 0.
func (p *PLC) Read(names []string) ([]float64, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.offline {
		return nil, ErrOffline
	}
	res := make([]float64, len(names))
	for i, name := range names {
		res[i] = p.read(name)
	}
	return res, nil
}

func (p *PLC) read(name string) float64 {
	switch name {
	case plc.TagMoveType:
		return float64(p.moveType)
	case plc.TagState:
		return float64(p.state)
	case plc.TagErrorCode:
		return float64(p.errCode)
	case plc.TagSwitches:
		return float64(p.switches)
	}
	for axisName, a := range p.axes {
		switch name {
		case plc.AxisTag(axisName, plc.AxisActualPos):
			return a.position(p.now)
		case plc.AxisTag(axisName, plc.AxisActualVel):
			return a.velocity(p.now)
		case plc.AxisTag(axisName, plc.AxisCommandAccel):
			return a.acceleration(p.now)
		case plc.AxisTag(axisName, plc.AxisMoving):
			if a.moving(p.now) {
				return 1
			}
			return 0
		case plc.AxisTag(axisName, plc.AxisFault):
			if a.fault {
				return 1
			}
			return 0
		}
	}
	return p.tags[name]
}

// Write sets a tag. Writing MOVE_TYPE starts the requested operation.
func (p *PLC) Write(name string, t plc.Type, value float64) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.offline {
		return ErrOffline
	}
	value = t.Coerce(value)
	switch name {
	case plc.TagMoveType:
		p.command(plc.MoveType(value))
		return nil
	case plc.TagCamTrigger:
		if value != 0 && p.tags[plc.TagCamEnable] != 0 {
			p.capture(p.axes["X"].position(p.now), p.axes["Y"].position(p.now))
		}
	case plc.TagCamReadFIFO:
		if value != 0 {
			p.popFIFO()
		}
	}
	p.tags[name] = value
	return nil
}

func (p *PLC) popFIFO() {
	for i := 0; i < plc.CameraFIFOFieldCount; i++ {
		p.tags[plc.CameraFIFOTag(i)] = 0
	}
	if len(p.fifo) == 0 {
		return
	}
	c := p.fifo[0]
	p.fifo = p.fifo[1:]
	vals := []float64{c.MotorX, c.MotorY, c.CameraX, c.CameraY, c.Match, 1}
	for i, v := range vals {
		p.tags[plc.CameraFIFOTag(i)] = v
	}
}

func (p *PLC) limit(name string, max float64) float64 {
	v := p.tags[name]
	if v <= 0 || v > max {
		return max
	}
	return v
}

func (p *PLC) command(m plc.MoveType) {
	if m == plc.MoveReset {
		if p.switches&plc.SwitchEStop.Mask() != 0 {
			return
		}
		for _, a := range p.axes {
			if a.fault {
				return
			}
		}
		p.state = plc.StateReady
		p.errCode = 0
		p.moveType = plc.MoveIdle
		return
	}
	if p.state == plc.StateError {
		return
	}
	if m == plc.MoveIdle {
		p.moveType = plc.MoveIdle
		xyDecel := p.limit(plc.TagXYMaxDeceleration, p.cfg.MaxDeceleration)
		p.axes["X"].stop(p.now, xyDecel)
		p.axes["Y"].stop(p.now, xyDecel)
		p.axes["Z"].stop(p.now, p.limit(plc.TagZDeceleration, p.cfg.ZDecel))
		return
	}
	rejog := (m == plc.MoveJogXY && p.state == plc.StateXYJog) || (m == plc.MoveJogZ && p.state == plc.StateZJog)
	if p.state != plc.StateReady && !rejog {
		// busy: the request is dropped
		return
	}

	var err error
	switch m {
	case plc.MoveSeekXY:
		err = p.seekXY()
		p.state = plc.StateXYSeek
	case plc.MoveSeekZ:
		err = p.seekZ()
		p.state = plc.StateZSeek
	case plc.MoveJogXY:
		err = p.jogXY()
		p.state = plc.StateXYJog
	case plc.MoveJogZ:
		err = p.jogZ()
		p.state = plc.StateZJog
	case plc.MoveLatch:
		p.state = plc.StateLatching
		p.latchDone = p.now + p.cfg.LatchTime.Seconds()
	case plc.MoveHomeLatch:
		p.state = plc.StateLatchHoming
		p.latchDone = p.now + p.cfg.LatchTime.Seconds()
	case plc.MoveLatchUnlock:
		p.state = plc.StateLatchRelease
		p.latchDone = p.now + p.cfg.LatchTime.Seconds()
	default:
		err = errors.Errorf("unknown move type %d", m)
	}
	if err != nil {
		p.fault(3)
		return
	}
	p.moveType = m
}

func (p *PLC) xyAccel() (accel, decel float64) {
	accel = p.limit(plc.TagXYMaxAcceleration, p.cfg.MaxAcceleration)
	decel = p.limit(plc.TagXYMaxDeceleration, p.cfg.MaxDeceleration)
	if v := p.tags[plc.TagXYAcceleration]; v > 0 && v < accel {
		accel = v
	}
	if v := p.tags[plc.TagXYDeceleration]; v > 0 && v < decel {
		decel = v
	}
	return accel, decel
}

func (p *PLC) seekXY() error {
	accel, decel := p.xyAccel()
	v := p.limit(plc.TagXYSpeed, p.limit(plc.TagXYMaxVelocity, p.cfg.MaxVelocity))

	x, y := p.axes["X"], p.axes["Y"]
	x0, y0 := x.position(p.now), y.position(p.now)
	x1, y1 := p.tags[plc.AxisTag("X", plc.AxisPosition)], p.tags[plc.AxisTag("Y", plc.AxisPosition)]

	tx, err := motion.TravelTime(accel, decel, v, x0, x1)
	if err != nil {
		return err
	}
	ty, err := motion.TravelTime(accel, decel, v, y0, y1)
	if err != nil {
		return err
	}
	total := math.Max(tx, ty)

	// the faster axis is slowed so both arrive together
	vx, vy := v, v
	if tx < total {
		vx, err = motion.LimitingVelocity(accel, decel, x0, x1, total)
	} else if ty < total {
		vy, err = motion.LimitingVelocity(accel, decel, y0, y1, total)
	}
	if err != nil {
		return err
	}
	if err = p.startSeek(x, accel, decel, vx, x1); err != nil {
		return err
	}
	return p.startSeek(y, accel, decel, vy, y1)
}

func (p *PLC) startSeek(a *axis, accel, decel, v, target float64) error {
	start := a.position(p.now)
	if start == target {
		a.hardStop(p.now)
		return nil
	}
	prof, err := motion.NewSeek(accel, decel, v, start, target)
	if err != nil {
		return err
	}
	a.pos = start
	a.prof = prof
	a.t0 = p.now
	return nil
}

func (p *PLC) seekZ() error {
	v := p.limit(plc.AxisTag("Z", plc.AxisSpeed), p.cfg.ZMaxVelocity)
	accel := p.limit(plc.TagZAcceleration, p.cfg.ZAccel)
	decel := p.limit(plc.TagZDeceleration, p.cfg.ZDecel)
	return p.startSeek(p.axes["Z"], accel, decel, v, p.tags[plc.AxisTag("Z", plc.AxisPosition)])
}

func (p *PLC) startJog(a *axis, accel, max float64) error {
	speed := math.Min(math.Abs(p.tags[plc.AxisTag(a.name, plc.AxisSpeed)]), max)
	if p.tags[plc.AxisTag(a.name, plc.AxisDir)] < 0 {
		speed = -speed
	}
	start := a.position(p.now)
	if speed == 0 {
		a.hardStop(p.now)
		return nil
	}
	prof, err := motion.NewJog(accel, speed, start, 0)
	if err != nil {
		return err
	}
	a.pos = start
	a.prof = prof
	a.t0 = p.now
	return nil
}

func (p *PLC) jogXY() error {
	accel, _ := p.xyAccel()
	max := p.limit(plc.TagXYMaxVelocity, p.cfg.MaxVelocity)
	if err := p.startJog(p.axes["X"], accel, max); err != nil {
		return err
	}
	return p.startJog(p.axes["Y"], accel, max)
}

func (p *PLC) jogZ() error {
	return p.startJog(p.axes["Z"], p.limit(plc.TagZAcceleration, p.cfg.ZAccel), p.cfg.ZMaxVelocity)
}
