package machine

import (
	"github.com/edaniels/golog"
	"github.com/mastercactapus/apawinder/plc"
	"go.uber.org/multierr"
)

// Config describes the parts of the machine that are not in the PLC.
type Config struct {
	// HeadZ is the Z coordinate of each HeadPosition.
	HeadZ [4]float64

	SpoolLength float64
	SpoolLow    float64
}

// DefaultConfig matches the production winder.
var DefaultConfig = Config{
	HeadZ:       [4]float64{0, 100, 318, 418},
	SpoolLength: 30000000,
	SpoolLow:    200000,
}

// Machine is every piece of winder I/O.
type Machine struct {
	Reg *plc.Registry

	X, Y, Z *Axis
	XY      *MultiAxis
	Logic   *Logic
	Head    *Head
	Sensors *Sensors
	Camera  *Camera
	Spool   *Spool

	log   golog.Logger
	polls []func() error
}

// New builds the machine on reg. The PLC poll and the head state machine
// are the first two poll callbacks.
func New(reg *plc.Registry, cfg Config, log golog.Logger) *Machine {
	x := NewAxis(reg, "X")
	y := NewAxis(reg, "Y")
	z := NewAxis(reg, "Z")
	logic := NewLogic(reg, x, y, z, log)
	m := &Machine{
		Reg:     reg,
		X:       x,
		Y:       y,
		Z:       z,
		XY:      logic.XY,
		Logic:   logic,
		Head:    NewHead(logic, cfg.HeadZ, log),
		Sensors: NewSensors(reg),
		Camera:  NewCamera(reg),
		Spool:   NewSpool(cfg.SpoolLength, cfg.SpoolLow),
		log:     log,
	}
	m.AddPollCallback(logic.Poll)
	m.AddPollCallback(m.Head.Update)
	return m
}

// AddPollCallback appends fn to the callbacks run by PollInputs.
func (m *Machine) AddPollCallback(fn func() error) {
	m.polls = append(m.polls, fn)
}

// PollInputs runs every poll callback in registration order. All
// callbacks run even if an earlier one fails.
func (m *Machine) PollInputs() error {
	var err error
	for _, fn := range m.polls {
		err = multierr.Append(err, fn())
	}
	return err
}

// IsFunctional reports whether the PLC is reachable and no axis reports a
// module fault.
func (m *Machine) IsFunctional() bool {
	return m.Reg.IsFunctional() && m.X.IsFunctional() && m.Y.IsFunctional() && m.Z.IsFunctional()
}

// IsMovementReady is true when the PLC can accept a move and the head is
// idle.
func (m *Machine) IsMovementReady() bool {
	return m.Logic.IsReady() && m.Head.IsIdle()
}

// Axes returns X, Y and Z.
func (m *Machine) Axes() []*Axis { return []*Axis{m.X, m.Y, m.Z} }

// HardStop stops all motion now: the move type goes idle, every axis is
// stopped and any head transfer is abandoned.
func (m *Machine) HardStop() error {
	err := m.Logic.StopSeek()
	for _, a := range m.Axes() {
		err = multierr.Append(err, a.Stop())
	}
	m.Head.Stop()
	return err
}
