package machine

import (
	"github.com/edaniels/golog"
	"github.com/mastercactapus/apawinder/plc"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Logic issues high level moves to the PLC through the MOVE_TYPE tag and
// tracks the PLC's move state machine.
type Logic struct {
	reg *plc.Registry
	log golog.Logger

	X, Y, Z *Axis
	XY      *MultiAxis

	moveType  *plc.Tag
	state     *plc.Tag
	errorCode *plc.Tag

	xySpeed *plc.Tag
	xyAccel *plc.Tag
	xyDecel *plc.Tag

	maxVelocity *plc.Tag
	maxAccel    *plc.Tag
	maxDecel    *plc.Tag
	zAccel      *plc.Tag
	zDecel      *plc.Tag

	moves int
}

// NewLogic registers the move orchestration tags.
func NewLogic(reg *plc.Registry, x, y, z *Axis, log golog.Logger) *Logic {
	realTag := func(name string) *plc.Tag { return reg.MustRegister(name, plc.Real, plc.Write, 0) }
	return &Logic{
		reg: reg,
		log: log,
		X:   x,
		Y:   y,
		Z:   z,
		XY:  NewMultiAxis(x, y),

		moveType:  reg.MustRegister(plc.TagMoveType, plc.Int, plc.Read|plc.Write|plc.Polled, float64(plc.MoveIdle)),
		state:     reg.MustRegister(plc.TagState, plc.DInt, plc.Read|plc.Polled, float64(plc.StateInit)),
		errorCode: reg.MustRegister(plc.TagErrorCode, plc.DInt, plc.Read|plc.Polled, 0),

		xySpeed: realTag(plc.TagXYSpeed),
		xyAccel: realTag(plc.TagXYAcceleration),
		xyDecel: realTag(plc.TagXYDeceleration),

		maxVelocity: realTag(plc.TagXYMaxVelocity),
		maxAccel:    realTag(plc.TagXYMaxAcceleration),
		maxDecel:    realTag(plc.TagXYMaxDeceleration),
		zAccel:      realTag(plc.TagZAcceleration),
		zDecel:      realTag(plc.TagZDeceleration),
	}
}

// Poll refreshes every polled tag.
func (l *Logic) Poll() error { return l.reg.PollAll() }

// MoveType is the last known MOVE_TYPE.
func (l *Logic) MoveType() plc.MoveType { return plc.MoveType(l.moveType.Int()) }

// State is the last known PLC STATE.
func (l *Logic) State() plc.State { return plc.State(l.state.Int()) }

// IsReady reports whether a new move may be issued.
func (l *Logic) IsReady() bool {
	return l.reg.IsFunctional() && l.MoveType() == plc.MoveIdle && l.State() == plc.StateReady
}

// IsError reports whether the PLC is in its error state.
func (l *Logic) IsError() bool { return l.State() == plc.StateError }

// ErrorCode returns the PLC's error code.
func (l *Logic) ErrorCode() int { return l.errorCode.Int() }

// Moves returns how many move commands have been issued.
func (l *Logic) Moves() int { return l.moves }

func (l *Logic) setMoveType(m plc.MoveType) error {
	if m != plc.MoveIdle && m != plc.MoveReset {
		l.moves++
	}
	l.log.Debugf("MOVE_TYPE=%s", m)
	return errors.Wrapf(l.moveType.Set(float64(m)), "set move type %s", m)
}

func setOptional(t *plc.Tag, v float64) error {
	if v <= 0 {
		return nil
	}
	return t.Set(v)
}

// SetXYPosition starts a synchronized seek of X and Y. accel and decel are
// per-move limits; zero keeps the machine maximum.
func (l *Logic) SetXYPosition(x, y, velocity, accel, decel float64) error {
	err := multierr.Combine(
		l.XY.SetDesiredPosition([]float64{x, y}),
		l.xySpeed.Set(velocity),
		setOptional(l.xyAccel, accel),
		setOptional(l.xyDecel, decel),
	)
	if err != nil {
		return err
	}
	return l.setMoveType(plc.MoveSeekXY)
}

// SetZPosition starts a Z seek.
func (l *Logic) SetZPosition(z, velocity float64) error {
	err := multierr.Combine(
		l.Z.SetDesiredPosition(z),
		l.Z.speed.Set(velocity),
	)
	if err != nil {
		return err
	}
	return l.setMoveType(plc.MoveSeekZ)
}

// JogXY runs X and Y at the given signed velocities. Both zero stops the
// jog.
func (l *Logic) JogXY(vx, vy, accel, decel float64) error {
	if vx == 0 && vy == 0 {
		return l.StopSeek()
	}
	err := multierr.Combine(
		l.XY.SetVelocity([]float64{vx, vy}),
		setOptional(l.xyAccel, accel),
		setOptional(l.xyDecel, decel),
	)
	if err != nil {
		return err
	}
	return l.setMoveType(plc.MoveJogXY)
}

// JogZ runs Z at a signed velocity. Zero stops the jog.
func (l *Logic) JogZ(vz float64) error {
	if vz == 0 {
		return l.StopSeek()
	}
	if err := l.Z.SetVelocity(vz); err != nil {
		return err
	}
	return l.setMoveType(plc.MoveJogZ)
}

// Latch advances the mechanical latch one step.
func (l *Logic) Latch() error { return l.setMoveType(plc.MoveLatch) }

// InitiateLatch homes the latch mechanism.
func (l *Logic) InitiateLatch() error { return l.setMoveType(plc.MoveHomeLatch) }

// UnlockLatch releases the latch.
func (l *Logic) UnlockLatch() error { return l.setMoveType(plc.MoveLatchUnlock) }

// StopSeek sets the move type to idle; the PLC decelerates to a stop.
func (l *Logic) StopSeek() error { return l.setMoveType(plc.MoveIdle) }

// Reset asks the PLC to leave its error state.
func (l *Logic) Reset() error { return l.setMoveType(plc.MoveReset) }

// SetupLimits writes the XY soft limits.
func (l *Logic) SetupLimits(maxVelocity, maxAccel, maxDecel float64) error {
	return multierr.Combine(
		l.maxVelocity.Set(maxVelocity),
		l.maxAccel.Set(maxAccel),
		l.maxDecel.Set(maxDecel),
	)
}

// SetupZLimits writes the Z acceleration limits.
func (l *Logic) SetupZLimits(accel, decel float64) error {
	return multierr.Combine(
		l.zAccel.Set(accel),
		l.zDecel.Set(decel),
	)
}
