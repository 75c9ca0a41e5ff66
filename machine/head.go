package machine

import (
	"fmt"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

// HeadPosition is where the winder head is held.
type HeadPosition int

const (
	Retracted HeadPosition = iota
	Front
	Back
	Extended
)

func (p HeadPosition) String() string {
	switch p {
	case Retracted:
		return "RETRACTED"
	case Front:
		return "FRONT"
	case Back:
		return "BACK"
	case Extended:
		return "EXTENDED"
	}
	return fmt.Sprintf("HeadPosition(%d)", int(p))
}

// Valid reports whether p is one of the four positions.
func (p HeadPosition) Valid() bool { return p >= Retracted && p <= Extended }

// side is false for positions where the Z stage carries the head.
func (p HeadPosition) side() bool { return p == Back || p == Extended }

// HeadState is the state of the head transfer state machine.
type HeadState int

const (
	HeadIdle HeadState = iota
	HeadSeek
	HeadLatch
	HeadStartLatch
	HeadStartDoubleLatch
	HeadSecondSeek
)

func (s HeadState) String() string {
	switch s {
	case HeadIdle:
		return "IDLE"
	case HeadSeek:
		return "SEEK"
	case HeadLatch:
		return "LATCH"
	case HeadStartLatch:
		return "START_LATCH"
	case HeadStartDoubleLatch:
		return "START_DOUBLE_LATCH"
	case HeadSecondSeek:
		return "SECOND_SEEK"
	}
	return fmt.Sprintf("HeadState(%d)", int(s))
}

var (
	// ErrHeadBusy is returned when a position is requested during a
	// transfer.
	ErrHeadBusy = errors.New("head busy")
	// ErrNotReady is returned when the PLC cannot accept a move.
	ErrNotReady = errors.New("PLC not ready")
)

// Head moves the winder head between the four Z positions, handing it
// across the APA with the latch when the destination is on the other
// side.
type Head struct {
	logic *Logic
	log   golog.Logger

	z [4]float64

	state     HeadState
	nextState HeadState
	position  HeadPosition
	seeking   HeadPosition
	lastSeek  HeadPosition
	velocity  float64
}

// NewHead creates a head resting at Retracted. z holds the Z coordinate of
// each HeadPosition.
func NewHead(logic *Logic, z [4]float64, log golog.Logger) *Head {
	return &Head{logic: logic, z: z, log: log}
}

// SetZ updates the Z coordinate of one position.
func (h *Head) SetZ(p HeadPosition, z float64) { h.z[p] = z }

// Z returns the Z coordinate of a position.
func (h *Head) Z(p HeadPosition) float64 { return h.z[p] }

// State returns the transfer state.
func (h *Head) State() HeadState { return h.state }

// IsIdle reports whether no transfer is in progress.
func (h *Head) IsIdle() bool { return h.state == HeadIdle }

// Position returns the position the head last occupied.
func (h *Head) Position() HeadPosition { return h.position }

// Destination returns the position being moved to, or the current one if
// idle.
func (h *Head) Destination() HeadPosition {
	if h.state == HeadIdle {
		return h.position
	}
	return h.lastSeek
}

// SetPosition requests a move of the head. Requests for the other side of
// the APA run through the latch.
func (h *Head) SetPosition(p HeadPosition, velocity float64) error {
	if !p.Valid() {
		return errors.Errorf("invalid head position %d", int(p))
	}
	if h.state != HeadIdle {
		return ErrHeadBusy
	}
	if !h.logic.IsReady() {
		return ErrNotReady
	}
	if p == h.position {
		return nil
	}

	h.velocity = velocity
	h.lastSeek = p
	switch {
	case p == Extended:
		h.log.Debugf("head: double latch %s -> %s", h.position, p)
		return h.seek(Extended, HeadStartDoubleLatch)
	case h.position == Extended || p.side() != h.position.side():
		h.log.Debugf("head: transfer %s -> %s", h.position, p)
		return h.seek(Extended, HeadStartLatch)
	}
	return h.seek(p, HeadIdle)
}

func (h *Head) seek(p HeadPosition, next HeadState) error {
	if err := h.logic.SetZPosition(h.z[p], h.velocity); err != nil {
		h.state = HeadIdle
		return err
	}
	h.seeking = p
	h.state = HeadSeek
	h.nextState = next
	return nil
}

// Update advances the transfer by at most one step. It is a poll
// callback.
func (h *Head) Update() error {
	if h.state == HeadIdle || !h.logic.IsReady() {
		return nil
	}

	switch h.state {
	case HeadSeek:
		h.position = h.seeking
		h.state = h.nextState
		if h.state == HeadIdle {
			h.log.Debugf("head: at %s", h.position)
		}
		return nil
	case HeadStartLatch:
		h.state = HeadLatch
		return h.latch()
	case HeadStartDoubleLatch:
		h.state = HeadSecondSeek
		return h.latch()
	case HeadSecondSeek:
		return h.seek(Retracted, HeadStartLatch)
	case HeadLatch:
		if h.lastSeek == Extended {
			// the head was left on the far side
			h.position = Extended
			h.state = HeadIdle
			h.log.Debugf("head: at %s", h.position)
			return nil
		}
		return h.seek(h.lastSeek, HeadIdle)
	}
	return nil
}

func (h *Head) latch() error {
	if err := h.logic.Latch(); err != nil {
		h.Stop()
		return err
	}
	return nil
}

// Stop abandons a transfer. The head is considered to be where it last
// was.
func (h *Head) Stop() {
	if h.state != HeadIdle {
		h.log.Infof("head: transfer to %s aborted at %s", h.lastSeek, h.position)
	}
	h.state = HeadIdle
	h.nextState = HeadIdle
	h.lastSeek = h.position
}
