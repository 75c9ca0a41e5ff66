package executor

import (
	"bytes"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/mastercactapus/apawinder/calibration"
	"github.com/mastercactapus/apawinder/gcode"
	"github.com/mastercactapus/apawinder/geometry"
	"github.com/mastercactapus/apawinder/machine"
	"github.com/mastercactapus/apawinder/plc"
	"github.com/mastercactapus/apawinder/plc/sim"
	"github.com/mastercactapus/apawinder/vm"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	s *sim.PLC
	m *machine.Machine
	e *Executor
}

func newHarness(t *testing.T, lines ...string) *harness {
	s := sim.New(sim.DefaultConfig)
	log := golog.NewTestLogger(t)
	reg := plc.NewRegistry(s, log)
	m := machine.New(reg, machine.DefaultConfig, log)
	require.NoError(t, reg.Initialize())
	require.NoError(t, m.PollInputs())

	in := &vm.Interpreter{Machine: calibration.DefaultMachine(), HeadZ: machine.DefaultConfig.HeadZ}
	e := New(m, in, log)
	e.Load(lines)
	return &harness{s: s, m: m, e: e}
}

// runUntil ticks the machine and executor until cond holds. cond is
// checked after inputs are polled and before the executor runs.
func (h *harness) runUntil(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 500; i++ {
		h.s.Advance(100 * time.Millisecond)
		require.NoError(t, h.m.PollInputs())
		if cond() {
			return
		}
		_, err := h.e.Poll()
		require.NoError(t, err)
	}
	t.Fatal("condition never met")
}

func (h *harness) lineDone(n int) func() bool {
	return func() bool {
		return h.e.Line() == n && !h.e.Busy() && h.m.IsMovementReady()
	}
}

func (h *harness) read(t *testing.T, name string) float64 {
	vals, err := h.s.Read([]string{name})
	require.NoError(t, err)
	return vals[0]
}

func TestExecutor_Recipe(t *testing.T) {
	h := newHarness(t, "N1 X10 Y10 Z10", "N2 F500 X0 Y0", "N3 G101 P50.0", "N4 G106 P1")
	spool := h.m.Spool.Remaining()

	h.runUntil(t, h.lineDone(0))
	assert.InDelta(t, 10, h.m.X.Position(), 1e-6)
	assert.InDelta(t, 10, h.m.Y.Position(), 1e-6)
	assert.InDelta(t, 10, h.m.Z.Position(), 1e-6)
	assert.Equal(t, 1000.0, h.read(t, plc.TagXYSpeed))
	assert.Equal(t, 2, h.m.Logic.Moves())

	h.runUntil(t, h.lineDone(1))
	assert.InDelta(t, 0, h.m.X.Position(), 1e-6)
	assert.InDelta(t, 0, h.m.Y.Position(), 1e-6)
	assert.InDelta(t, 10, h.m.Z.Position(), 1e-6)
	assert.Equal(t, 500.0, h.read(t, plc.TagXYSpeed))

	h.runUntil(t, h.lineDone(2))
	assert.Equal(t, spool-50, h.m.Spool.Remaining())
	assert.Equal(t, 3, h.m.Logic.Moves())

	done, err := h.e.Poll()
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 3, h.e.Line())
	assert.Equal(t, machine.HeadSeek, h.m.Head.State())
	assert.Equal(t, machine.Front, h.m.Head.Destination())

	h.runUntil(t, func() bool { return h.e.IsDone() && h.m.IsMovementReady() })
	assert.Equal(t, machine.Front, h.m.Head.Position())
	done, err = h.e.Poll()
	require.NoError(t, err)
	assert.True(t, done)
}

func TestExecutor_NoMotionLines(t *testing.T) {
	h := newHarness(t, "G101 P1", "G107 P0", "M5 ( ignored )", "F200")
	h.e.Interpreter().Calibration = calibration.Nominal(geometry.V())

	for i := 0; i < 4; i++ {
		_, err := h.e.Poll()
		require.NoError(t, err)
		assert.Equal(t, 0, h.m.Logic.Moves(), "line %d", i)
		h.runUntil(t, h.lineDone(i))
	}
	h.e.Load([]string{"G109 PF1 PTR"})
	_, err := h.e.Poll()
	require.NoError(t, err)
	assert.Equal(t, 0, h.e.Line())
	assert.True(t, h.m.IsMovementReady())
}

func TestExecutor_WaitsForReady(t *testing.T) {
	h := newHarness(t, "X10 Y10 Z5", "X20")

	_, err := h.e.Poll()
	require.NoError(t, err)
	assert.Equal(t, 1, h.m.Logic.Moves())
	assert.True(t, h.e.Busy())

	// the seek is still running: nothing more may be issued
	for i := 0; i < 3; i++ {
		_, err = h.e.Poll()
		require.NoError(t, err)
		assert.Equal(t, 1, h.m.Logic.Moves())
	}
	assert.Equal(t, 0, h.e.Line())

	h.runUntil(t, h.lineDone(0))
	assert.Equal(t, 2, h.m.Logic.Moves())
}

func TestExecutor_Stop(t *testing.T) {
	h := newHarness(t, "X100", "G101 P10 X200 G105 PX5")
	spool := h.m.Spool.Remaining()

	h.runUntil(t, h.lineDone(0))
	_, err := h.e.Poll()
	require.NoError(t, err)
	assert.Equal(t, 1, h.e.Line())
	assert.Equal(t, spool-10, h.m.Spool.Remaining())
	assert.Equal(t, 205.0, h.e.Registers().Position.X)

	require.NoError(t, h.m.HardStop())
	h.e.Stop()
	assert.Equal(t, 0, h.e.Line())
	assert.Equal(t, spool, h.m.Spool.Remaining())
	assert.Equal(t, 100.0, h.e.Registers().Position.X)
	assert.False(t, h.e.Busy())

	h.runUntil(t, h.lineDone(1))
	assert.InDelta(t, 205, h.m.X.Position(), 1e-6)
	assert.Equal(t, spool-10, h.m.Spool.Remaining())
}

func TestExecutor_RecipeError(t *testing.T) {
	h := newHarness(t, "X1", "N7 G103 PF1 PF2")
	h.runUntil(t, h.lineDone(0))

	_, err := h.e.Poll()
	require.Error(t, err)
	e, ok := err.(*gcode.Error)
	require.True(t, ok)
	assert.Equal(t, 7, e.Line)
	assert.Equal(t, "G103", e.Family)
	assert.Equal(t, 0, h.e.Line(), "line is not consumed")
	assert.False(t, h.e.Busy())
}

func TestExecutor_Reverse(t *testing.T) {
	h := newHarness(t, "G101 P10", "G101 P20", "G101 P30")
	spool := h.m.Spool.Remaining()

	require.NoError(t, h.e.SetLine(2))
	h.e.SetDirection(-1)
	assert.False(t, h.e.IsDone())
	h.runUntil(t, h.e.IsDone)
	assert.Equal(t, 0, h.e.Line())
	assert.Equal(t, spool+30, h.m.Spool.Remaining())

	assert.Error(t, h.e.SetLine(10))
}

func TestExecutor_OutOfWire(t *testing.T) {
	h := newHarness(t, "G101 P150000", "X10")
	h.m.Spool.Reload(300000)
	require.False(t, h.e.IsOutOfWire())

	_, err := h.e.Poll()
	require.NoError(t, err)
	assert.True(t, h.e.IsOutOfWire())
	assert.True(t, h.e.IsDone())
	done, err := h.e.Poll()
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 0, h.e.Line())
}

func TestExecutor_DelayPauseEnd(t *testing.T) {
	h := newHarness(t, "G107 P2", "M0", "G101 P1", "M2", "X10")

	_, err := h.e.Poll()
	require.NoError(t, err)
	assert.True(t, h.e.Busy())
	for i := 0; i < 2; i++ {
		_, err = h.e.Poll()
		require.NoError(t, err)
		assert.Equal(t, 0, h.e.Line())
	}
	_, err = h.e.Poll()
	require.NoError(t, err)
	assert.Equal(t, 1, h.e.Line())
	assert.True(t, h.e.Paused())

	_, err = h.e.Poll()
	require.NoError(t, err)
	assert.Equal(t, 1, h.e.Line())

	h.e.Resume()
	h.runUntil(t, h.e.IsDone)
	assert.Equal(t, 3, h.e.Line(), "M2 ends the program")
}

func TestExecutor_Manual(t *testing.T) {
	h := newHarness(t)

	err := h.e.Manual("X99999")
	assert.Equal(t, ErrRange, errors.Cause(err))
	assert.Equal(t, 0, h.m.Logic.Moves())

	require.NoError(t, h.e.Manual("X100 Y50"))
	assert.Equal(t, 1, h.m.Logic.Moves())
	assert.Equal(t, machine.ErrNotReady, h.e.Manual("X1"))

	h.runUntil(t, func() bool { return h.m.IsMovementReady() })
	assert.InDelta(t, 100, h.m.X.Position(), 1e-6)
	assert.Equal(t, -1, h.e.Line())
	assert.True(t, h.e.IsDone())
}

func TestExecutor_Trace(t *testing.T) {
	h := newHarness(t, "n1 x10.000 ( move ) y2", "", "N3 G101 P5")
	var buf bytes.Buffer
	h.e.SetTrace(&buf)

	h.runUntil(t, h.e.IsDone)
	assert.Equal(t, "N1 X10 Y2\nN3 G101 P5\n", buf.String())
}

func TestExecutor_Cancel(t *testing.T) {
	h := newHarness(t, "X10 Z5")
	_, err := h.e.Poll()
	require.NoError(t, err)
	assert.True(t, h.e.Busy())

	h.e.Cancel()
	assert.False(t, h.e.Busy())
	assert.Equal(t, 0, h.e.Line())
}
