// Package vm interprets recipe steps against a set of registers.
package vm

import (
	"github.com/mastercactapus/apawinder/coord"
	"github.com/mastercactapus/apawinder/headcomp"
)

// Change flags which registers a line modified.
type Change uint16

const (
	ChangeXY Change = 1 << iota
	ChangeZ
	ChangeVelocity
	ChangeHead
	ChangeLatch
	ChangeWireLength
	ChangeDelay
	ChangeAnchor
	ChangePause
	ChangeEnd
)

// Has reports whether all of f are set.
func (c Change) Has(f Change) bool { return c&f == f }

// Motion reports whether the change requires a move.
func (c Change) Motion() bool {
	return c&(ChangeXY|ChangeZ|ChangeHead|ChangeLatch) != 0
}

// Registers are the interpreter state between lines.
type Registers struct {
	Position coord.Point
	Velocity float64
	Line     int

	// Head is the requested head position, -1 before the first request.
	Head       int
	WireLength float64
	Delay      int

	Anchor      coord.Point
	AnchorPin   string
	Orientation headcomp.Orientation

	Changed Change
}

// NewRegisters starts at pos moving at velocity.
func NewRegisters(pos coord.Point, velocity float64) Registers {
	return Registers{Position: pos, Velocity: velocity, Head: -1}
}
