// Package executor runs a recipe one line per tick against the machine.
package executor

import (
	"fmt"
	"io"
	"math"

	"github.com/edaniels/golog"
	"github.com/mastercactapus/apawinder/coord"
	"github.com/mastercactapus/apawinder/gcode"
	"github.com/mastercactapus/apawinder/machine"
	"github.com/mastercactapus/apawinder/vm"
	"github.com/pkg/errors"
)

var (
	// ErrRange is returned for a manual line that would leave the soft
	// limits.
	ErrRange = errors.New("position outside machine limits")
	// ErrOutOfWire is reported when winding halts on a low spool.
	ErrOutOfWire = errors.New("spool low on wire")
	// ErrBusy is returned when a manual line is given while commands are
	// still pending.
	ErrBusy = errors.New("executor busy")
)

// command is a single move issued to the machine.
type command struct {
	name string
	run  func() error
}

// Executor steps through recipe lines. Poll must be called once per tick.
type Executor struct {
	m   *machine.Machine
	in  *vm.Interpreter
	log golog.Logger

	trace io.Writer

	lines     []string
	line      int
	direction int

	regs   vm.Registers
	before vm.Registers
	wire   float64

	queue []command
	delay int
	// pause is a number of ticks to wait after every line.
	pause   int
	paused  bool
	ended   bool
	current int
}

// New creates an executor with no recipe loaded.
func New(m *machine.Machine, in *vm.Interpreter, log golog.Logger) *Executor {
	e := &Executor{m: m, in: in, log: log, line: -1, direction: 1, current: -2}
	e.regs = vm.NewRegisters(coord.Point{}, in.Machine.MaxVelocity)
	return e
}

// SetTrace sets where executed lines are logged in canonical form. nil
// disables the trace.
func (e *Executor) SetTrace(w io.Writer) { e.trace = w }

// Interpreter returns the interpreter used for each line.
func (e *Executor) Interpreter() *vm.Interpreter { return e.in }

// Load replaces the recipe. Execution starts at the first line.
func (e *Executor) Load(lines []string) {
	e.lines = lines
	e.line = -1
	e.direction = 1
	e.current = -2
	e.reset()
	e.ended = false
}

// Lines returns the number of loaded lines.
func (e *Executor) Lines() int { return len(e.lines) }

// IsLoaded reports whether a recipe is loaded.
func (e *Executor) IsLoaded() bool { return len(e.lines) > 0 }

// Line returns the index of the last executed line, or -1.
func (e *Executor) Line() int { return e.line }

// SetLine makes n the last executed line, so the next line run is n plus
// the direction.
func (e *Executor) SetLine(n int) error {
	if n < -1 || n > len(e.lines) {
		return errors.Errorf("line %d out of range", n)
	}
	e.line = n
	e.current = -2
	e.ended = false
	e.reset()
	return nil
}

// Direction returns 1 when running forward and -1 in reverse.
func (e *Executor) Direction() int { return e.direction }

// SetDirection runs the recipe forward (1) or backward (-1).
func (e *Executor) SetDirection(dir int) {
	if dir < 0 {
		e.direction = -1
	} else {
		e.direction = 1
	}
}

// SetPause sets a number of idle ticks between lines.
func (e *Executor) SetPause(ticks int) { e.pause = ticks }

// Registers returns the interpreter state after the last line.
func (e *Executor) Registers() vm.Registers { return e.regs }

// SyncPosition sets the target registers to where the machine is.
func (e *Executor) SyncPosition() {
	e.regs.Position = coord.Point{X: e.m.X.Position(), Y: e.m.Y.Position(), Z: e.m.Z.Position()}
	e.regs.Head = int(e.m.Head.Position())
}

// Paused reports whether an M0 is waiting for Resume.
func (e *Executor) Paused() bool { return e.paused }

// Resume continues after an M0.
func (e *Executor) Resume() { e.paused = false }

// Busy reports whether commands from the last line are still pending.
func (e *Executor) Busy() bool { return len(e.queue) > 0 || e.delay > 0 }

// IsOutOfWire reports whether the spool is low.
func (e *Executor) IsOutOfWire() bool { return e.m.Spool.IsLow() }

// IsDone is true when the next line is outside the recipe, the program
// ended or the spool is low. Pending commands are never abandoned.
func (e *Executor) IsDone() bool {
	if len(e.queue) > 0 {
		return false
	}
	if e.ended || e.IsOutOfWire() {
		return true
	}
	next := e.line + e.direction
	return next < 0 || next >= len(e.lines)
}

func (e *Executor) reset() {
	e.queue = nil
	e.delay = 0
	e.paused = false
}

// Stop abandons pending commands and rewinds so the interrupted line runs
// again on resume.
func (e *Executor) Stop() {
	if e.line >= 0 && e.line < len(e.lines) && e.line == e.current {
		e.m.Spool.Subtract(-e.wire)
		e.wire = 0
		e.regs = e.before
		e.line -= e.direction
		e.current = -2
	}
	e.reset()
}

// Cancel drops pending commands without rewinding.
func (e *Executor) Cancel() { e.reset() }

// Poll runs at most one step: one pending command, one tick of delay or
// one recipe line. It returns true once IsDone.
func (e *Executor) Poll() (bool, error) {
	if !e.m.IsMovementReady() {
		return false, nil
	}
	if len(e.queue) > 0 {
		return false, e.issue()
	}
	if e.delay > 0 {
		e.delay--
		return false, nil
	}
	if e.paused {
		return false, nil
	}
	if e.IsDone() {
		return true, nil
	}

	e.line += e.direction
	if err := e.execute(e.line, e.lines[e.line]); err != nil {
		if e.current == e.line {
			e.Stop()
		} else {
			e.line -= e.direction
			e.reset()
		}
		return false, err
	}
	return false, nil
}

// Manual runs a single line outside of the recipe. It is refused with
// ErrRange if the target is outside the soft limits.
func (e *Executor) Manual(text string) error {
	if e.Busy() {
		return ErrBusy
	}
	if !e.m.IsMovementReady() {
		return machine.ErrNotReady
	}
	return e.execute(-1, text)
}

func (e *Executor) execute(index int, text string) error {
	steps, err := gcode.ParseLine(index+1, text)
	if err != nil {
		return err
	}
	regs, err := e.in.Run(e.regs, index+1, text, steps)
	if err != nil {
		return err
	}
	if index < 0 && regs.Changed.Motion() && !e.in.Machine.InLimits(regs.Position) {
		return errors.Wrapf(ErrRange, "%s", regs.Position)
	}

	e.before = e.regs
	e.regs = regs
	e.current = index
	e.queue = e.commands(regs)

	e.wire = 0
	if regs.Changed.Has(vm.ChangeWireLength) {
		e.wire = regs.WireLength * float64(e.direction)
		e.m.Spool.Subtract(e.wire)
	}
	if regs.Changed.Has(vm.ChangeDelay) {
		e.delay = regs.Delay
	}
	e.delay += e.pause
	if regs.Changed.Has(vm.ChangePause) {
		e.paused = true
		e.log.Infof("paused at line %d", regs.Line)
	}
	if regs.Changed.Has(vm.ChangeEnd) && index >= 0 {
		e.ended = true
	}
	if e.trace != nil && len(steps) > 0 {
		fmt.Fprintln(e.trace, gcode.Format(steps))
	}

	if len(e.queue) == 0 {
		return nil
	}
	return e.issue()
}

// commands lists the moves a line requires, in issue order.
func (e *Executor) commands(r vm.Registers) []command {
	var res []command
	zVelocity := math.Min(r.Velocity, e.in.Machine.ZMaxVelocity)
	if r.Changed.Has(vm.ChangeXY) {
		x, y, v := r.Position.X, r.Position.Y, r.Velocity
		res = append(res, command{name: "seek XY", run: func() error {
			return e.m.Logic.SetXYPosition(x, y, v, 0, 0)
		}})
	}
	if r.Changed.Has(vm.ChangeZ) {
		z := r.Position.Z
		res = append(res, command{name: "seek Z", run: func() error {
			return e.m.Logic.SetZPosition(z, zVelocity)
		}})
	}
	if r.Changed.Has(vm.ChangeHead) {
		p := machine.HeadPosition(r.Head)
		res = append(res, command{name: "head " + p.String(), run: func() error {
			return e.m.Head.SetPosition(p, zVelocity)
		}})
	}
	if r.Changed.Has(vm.ChangeLatch) {
		res = append(res, command{name: "latch", run: e.m.Logic.Latch})
	}
	return res
}

// issue runs the first queued command. The caller has checked the machine
// is ready.
func (e *Executor) issue() error {
	c := e.queue[0]
	e.queue = e.queue[1:]
	e.log.Debugf("line %d: %s", e.regs.Line, c.name)
	if err := c.run(); err != nil {
		e.queue = nil
		return errors.Wrap(err, c.name)
	}
	return nil
}
