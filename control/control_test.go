package control

import (
	"math"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/mastercactapus/apawinder/calibration"
	"github.com/mastercactapus/apawinder/coord"
	"github.com/mastercactapus/apawinder/executor"
	"github.com/mastercactapus/apawinder/gcode"
	"github.com/mastercactapus/apawinder/geometry"
	"github.com/mastercactapus/apawinder/machine"
	"github.com/mastercactapus/apawinder/plc"
	"github.com/mastercactapus/apawinder/plc/sim"
	"github.com/mastercactapus/apawinder/vm"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest/observer"
)

type harness struct {
	s    *sim.PLC
	m    *machine.Machine
	c    *Control
	logs *observer.ObservedLogs
}

func newHarness(t *testing.T, cal *calibration.Machine) *harness {
	s := sim.New(sim.DefaultConfig)
	log, logs := golog.NewObservedTestLogger(t)
	reg := plc.NewRegistry(s, log)
	m := machine.New(reg, machine.DefaultConfig, log)
	require.NoError(t, reg.Initialize())
	if cal == nil {
		cal = calibration.DefaultMachine()
	}
	in := &vm.Interpreter{Machine: cal, HeadZ: machine.DefaultConfig.HeadZ}
	c := New(m, executor.New(m, in, log), cal, log)
	return &harness{s: s, m: m, c: c, logs: logs}
}

func (h *harness) tick() {
	h.s.Advance(100 * time.Millisecond)
	h.c.Tick()
}

func (h *harness) ticks(n int) {
	for i := 0; i < n; i++ {
		h.tick()
	}
}

func (h *harness) runUntil(t *testing.T, max int, cond func() bool) {
	t.Helper()
	for i := 0; i < max; i++ {
		h.tick()
		if cond() {
			return
		}
	}
	t.Fatalf("condition not met after %d ticks (mode %s)", max, h.c.Mode())
}

func (h *harness) stopped() bool { return h.c.Mode() == ModeStop }

func (h *harness) read(t *testing.T, name string) float64 {
	vals, err := h.s.Read([]string{name})
	require.NoError(t, err)
	return vals[0]
}

func (h *harness) stops() (n int) {
	for _, a := range h.m.Axes() {
		n += a.Stops()
	}
	return n
}

func TestControl_Startup(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, ModeHardware, h.c.Mode())
	assert.False(t, h.c.IsMovementReady())

	h.tick()
	assert.Equal(t, ModeStop, h.c.Mode())
	assert.Equal(t, StopIdle, h.c.StopState())
	assert.True(t, h.c.IsMovementReady())
	assert.Equal(t, 1000.0, h.read(t, plc.TagXYMaxVelocity))
	assert.Equal(t, 1000.0, h.read(t, plc.TagZDeceleration))
}

func TestControl_HardwareFault(t *testing.T) {
	h := newHarness(t, nil)
	h.tick()

	h.s.SetOffline(true)
	h.tick()
	assert.Equal(t, ModeHardware, h.c.Mode())
	assert.Equal(t, ErrHardwareFault, h.c.LastError())
	assert.Error(t, h.c.Start())

	h.s.SetOffline(false)
	h.runUntil(t, 2*retryTicks, h.stopped)

	h.s.SetAxisFault("Y", true)
	h.tick()
	assert.Equal(t, ModeHardware, h.c.Mode())

	// the fault is cleared but the PLC stays in error until acknowledged
	h.s.SetAxisFault("Y", false)
	h.ticks(3)
	assert.Equal(t, ModeHardware, h.c.Mode())
	h.c.Acknowledge()
	h.runUntil(t, 5, h.stopped)
}

func TestControl_StartRefusedDuringEStop(t *testing.T) {
	h := newHarness(t, nil)
	h.c.Executor().Load([]string{"X10"})
	h.s.SetSwitch(plc.SwitchEStop, true)
	h.tick()
	assert.Equal(t, ModeStop, h.c.Mode())
	assert.Equal(t, StopEStop, h.c.StopState())

	err := h.c.Start()
	assert.Equal(t, ErrRefused, errors.Cause(err))
	h.ticks(3)
	assert.Equal(t, ModeStop, h.c.Mode())
	assert.Equal(t, -1, h.c.Executor().Line())
	assert.NotZero(t, h.logs.FilterMessageSnippet("start in STOP/ESTOP").Len())
}

func TestControl_EStopDuringWind(t *testing.T) {
	h := newHarness(t, nil)
	h.tick()
	h.c.Executor().Load([]string{"X3000 Y2000", "X10"})
	require.NoError(t, h.c.Start())
	h.ticks(3)
	require.Equal(t, ModeWind, h.c.Mode())
	require.True(t, h.m.XY.IsSeeking())

	before := make([]int, 3)
	for i, a := range h.m.Axes() {
		before[i] = a.Stops()
	}
	h.s.SetSwitch(plc.SwitchEStop, true)
	h.tick()
	assert.Equal(t, ModeStop, h.c.Mode())
	assert.Equal(t, StopEStop, h.c.StopState())
	for i, a := range h.m.Axes() {
		assert.Equal(t, before[i]+1, a.Stops(), a.Name)
	}
	assert.Equal(t, 1, h.logs.FilterMessage("ESTOP").Len())
	assert.Equal(t, -1, h.c.Executor().Line(), "interrupted line runs again")

	// held E-stop is not logged again
	h.ticks(2)
	assert.Equal(t, 1, h.logs.FilterMessage("ESTOP").Len())

	h.s.SetSwitch(plc.SwitchEStop, false)
	h.ticks(2)
	assert.Equal(t, StopEStop, h.c.StopState())
	h.c.Acknowledge()
	h.tick()
	assert.Equal(t, StopIdle, h.c.StopState())
	h.tick()
	assert.True(t, h.m.Logic.IsReady())

	require.NoError(t, h.c.Start())
	h.runUntil(t, 200, h.stopped)
	assert.True(t, h.c.Executor().IsDone())
	assert.InDelta(t, 10, h.m.X.Position(), 1e-6)
	assert.InDelta(t, 2000, h.m.Y.Position(), 1e-6)
}

func TestControl_Wind(t *testing.T) {
	h := newHarness(t, nil)
	h.tick()

	var stopped []int
	h.c.OnWindStop = func(line int, pos coord.Point, d time.Duration) {
		stopped = append(stopped, line)
	}

	assert.Equal(t, ErrRefused, errors.Cause(h.c.Start()), "no recipe")

	h.c.Executor().Load([]string{"N1 X100 Y100", "N2 G101 P5", "N3 X1000"})
	require.NoError(t, h.c.Start())
	h.tick()
	assert.Equal(t, ModeWind, h.c.Mode())
	assert.Error(t, h.c.JogXY(1, 0), "no jogging while winding")

	h.ticks(2)
	h.c.Stop()
	h.tick()
	assert.Equal(t, ModeStop, h.c.Mode())
	assert.Equal(t, []int{-1}, stopped)

	require.NoError(t, h.c.Start())
	h.runUntil(t, 200, h.stopped)
	assert.Equal(t, []int{-1, 2}, stopped)
	assert.InDelta(t, 1000, h.m.X.Position(), 1e-6)
	assert.True(t, h.c.Executor().IsDone())
	assert.Equal(t, ErrRefused, errors.Cause(h.c.Start()), "recipe complete")
}

func TestControl_RecipeError(t *testing.T) {
	h := newHarness(t, nil)
	h.tick()
	h.c.Executor().Load([]string{"X10", "N2 G103 PF1 PF2", "X20"})
	require.NoError(t, h.c.Start())
	h.runUntil(t, 100, h.stopped)

	e, ok := h.c.LastError().(*gcode.Error)
	require.True(t, ok, "got %v", h.c.LastError())
	assert.Equal(t, 2, e.Line)
	assert.Equal(t, 0, h.c.Executor().Line())
	assert.True(t, h.c.IsMovementReady())
	assert.Equal(t, "N2 G103 PF1 PF2", e.Text)
}

func TestControl_JogClamp(t *testing.T) {
	cal := calibration.DefaultMachine()
	cal.MaxSlowVelocity = 5
	h := newHarness(t, cal)
	h.tick()

	// X=0 is left of the transfer column
	require.NoError(t, h.c.JogXY(10, 0))
	h.tick()
	assert.Equal(t, ModeManual, h.c.Mode())
	assert.Equal(t, 5.0, h.read(t, "X_SPEED"))
	assert.Equal(t, 0.0, h.read(t, "Y_SPEED"))

	require.NoError(t, h.c.JogXY(10, -8))
	h.tick()
	assert.Equal(t, 5.0, h.read(t, "X_SPEED"))
	assert.Equal(t, 5.0, h.read(t, "Y_SPEED"))
	assert.Equal(t, -1.0, h.read(t, "Y_DIR"))

	require.NoError(t, h.c.JogXY(0, 0))
	h.runUntil(t, 20, h.stopped)

	require.NoError(t, h.c.SeekXY(1000, 100, 0))
	h.tick()
	assert.Equal(t, ModeManual, h.c.Mode())
	h.runUntil(t, 50, h.stopped)

	require.NoError(t, h.c.JogXY(10, 0))
	h.tick()
	assert.Equal(t, 10.0, h.read(t, "X_SPEED"))
	h.c.Stop()
	h.runUntil(t, 20, h.stopped)
}

func TestControl_Manual(t *testing.T) {
	h := newHarness(t, nil)
	h.tick()

	require.NoError(t, h.c.GCode("X99999"))
	h.tick()
	assert.Equal(t, ModeStop, h.c.Mode())
	assert.Equal(t, executor.ErrRange, errors.Cause(h.c.LastError()))
	assert.Zero(t, h.m.Logic.Moves())

	require.NoError(t, h.c.SeekXY(-5, 0, 0))
	h.tick()
	assert.Equal(t, executor.ErrRange, errors.Cause(h.c.LastError()))

	require.NoError(t, h.c.GCode("X100 Z5"))
	h.tick()
	assert.Equal(t, ModeManual, h.c.Mode())
	assert.Error(t, h.c.GCode("X1"), "busy")
	h.runUntil(t, 100, h.stopped)
	assert.InDelta(t, 100, h.m.X.Position(), 1e-6)
	assert.InDelta(t, 5, h.m.Z.Position(), 1e-6)

	require.NoError(t, h.c.SetHead(machine.Front))
	h.tick()
	assert.Equal(t, ModeManual, h.c.Mode())
	h.runUntil(t, 100, h.stopped)
	assert.Equal(t, machine.Front, h.m.Head.Position())

	require.NoError(t, h.c.SeekZ(50, 0))
	h.runUntil(t, 100, h.stopped)
	assert.InDelta(t, 50, h.m.Z.Position(), 1e-6)
	assert.Error(t, h.c.SetHead(machine.HeadPosition(7)))
}

func TestControl_Park(t *testing.T) {
	h := newHarness(t, nil)
	h.tick()
	h.c.Executor().Load([]string{"X10"})

	h.s.SetSwitch(plc.SwitchPark, true)
	h.tick()
	assert.Equal(t, StopPark, h.c.StopState())
	assert.Error(t, h.c.Start())

	h.s.SetSwitch(plc.SwitchPark, false)
	h.tick()
	assert.Equal(t, StopIdle, h.c.StopState())
	assert.NoError(t, h.c.Start())
}

// pinCamera sees the X layer pins shifted by dx.
func pinCamera(dx float64) sim.Camera {
	l := geometry.X()
	origin := l.Origin()
	pitch := l.GridFront[geometry.Right].DY
	return func(x, y float64) (sim.Capture, bool) {
		col := origin.X
		if math.Abs(x-(origin.X+6060)) < math.Abs(x-origin.X) {
			col = origin.X + 6060
		}
		k := math.Max(0, math.Min(479, math.Round((y-origin.Y)/pitch)))
		px, py := col+dx, origin.Y+k*pitch
		if math.Abs(px-x) > 3 || math.Abs(py-y) > 3 {
			return sim.Capture{}, false
		}
		return sim.Capture{CameraX: (px - x) * 18, CameraY: (py - y) * 18, Match: 0.9}, true
	}
}

func TestControl_Calibrate(t *testing.T) {
	h := newHarness(t, nil)
	h.tick()
	h.s.SetCamera(pinCamera(0.3))

	assert.NoError(t, h.c.Calibrate(true))
	h.tick()
	assert.Equal(t, ModeStop, h.c.Mode(), "no layer selected")
	assert.Error(t, h.c.LastError())

	h.c.Layer = geometry.X()
	var saved *calibration.Layer
	h.c.OnCalibrated = func(c *calibration.Layer) error {
		saved = c
		return nil
	}
	require.NoError(t, h.c.Calibrate(true))
	h.tick()
	assert.Equal(t, ModeCalibrate, h.c.Mode())
	h.runUntil(t, 2000, h.stopped)

	require.NotNil(t, saved)
	cal := h.c.Executor().Interpreter().Calibration
	assert.Equal(t, saved, cal)
	assert.Equal(t, "X", cal.Name)
	assert.NoError(t, cal.Check(geometry.X()))
	assert.InDelta(t, 6060.3, cal.Locations["F1"].X, 1e-6)
	assert.InDelta(t, 6060.3, cal.Locations["B1"].X, 1e-6)
}

func TestControl_CalibrateAbort(t *testing.T) {
	h := newHarness(t, nil)
	h.tick()
	h.c.Layer = geometry.X()
	require.NoError(t, h.c.Calibrate(true))
	h.ticks(5)
	assert.Equal(t, ModeCalibrate, h.c.Mode())

	h.c.Stop()
	h.tick()
	assert.Equal(t, ModeStop, h.c.Mode())
	assert.Nil(t, h.c.Executor().Interpreter().Calibration)
}

func TestControl_Status(t *testing.T) {
	h := newHarness(t, nil)
	h.tick()
	h.c.Layer = geometry.V()
	s := h.c.Status()
	assert.Equal(t, ModeStop, s.Mode)
	assert.True(t, s.Functional)
	assert.Equal(t, "READY", s.PLCState)
	assert.Equal(t, "V", s.Layer)
	assert.Equal(t, "RETRACTED", s.Head)
	assert.Equal(t, -1, s.Line)
	assert.Contains(t, s.Switches, plc.SwitchZRetracted.String())
}

func TestControl_EndOfTravelDuringWind(t *testing.T) {
	h := newHarness(t, nil)
	h.tick()
	h.c.Executor().Load([]string{"X3000 Y2000", "X10"})
	require.NoError(t, h.c.Start())
	h.ticks(3)
	require.Equal(t, ModeWind, h.c.Mode())
	require.True(t, h.m.XY.IsSeeking())

	before := h.stops()
	h.s.SetSwitch(plc.SwitchXPlusEOT, true)
	h.tick()
	assert.Equal(t, ModeStop, h.c.Mode())
	assert.Equal(t, StopFault, h.c.StopState())
	assert.Equal(t, before+len(h.m.Axes()), h.stops())
	assert.Equal(t, ErrHardwareFault, errors.Cause(h.c.LastError()))
	assert.Equal(t, -1, h.c.Executor().Line())
	assert.Equal(t, ErrRefused, errors.Cause(h.c.Start()))

	h.ticks(3)
	assert.Equal(t, StopFault, h.c.StopState())

	// the switch is still held after acknowledging so the axis can be
	// jogged off it
	h.c.Acknowledge()
	h.tick()
	assert.Equal(t, StopIdle, h.c.StopState())
	h.tick()
	assert.Equal(t, StopIdle, h.c.StopState())
	require.NoError(t, h.c.JogXY(-1, 0))
	h.tick()
	assert.Equal(t, ModeManual, h.c.Mode())
	require.NoError(t, h.c.JogXY(0, 0))
	h.s.SetSwitch(plc.SwitchXPlusEOT, false)
	h.runUntil(t, 20, h.stopped)
	assert.Equal(t, StopIdle, h.c.StopState())
}

func TestControl_PLCErrorDuringWind(t *testing.T) {
	h := newHarness(t, nil)
	h.tick()
	h.c.Executor().Load([]string{"X3000 Y2000", "X10"})
	require.NoError(t, h.c.Start())
	h.ticks(3)
	require.Equal(t, ModeWind, h.c.Mode())

	h.s.SetError(7)
	h.tick()
	assert.Equal(t, ModeStop, h.c.Mode())
	assert.Equal(t, StopFault, h.c.StopState())
	assert.Equal(t, ErrHardwareFault, errors.Cause(h.c.LastError()))
	assert.Contains(t, h.c.LastError().Error(), "PLC error 7")
	assert.False(t, h.c.IsMovementReady())

	h.ticks(5)
	assert.Equal(t, StopFault, h.c.StopState())

	h.c.Acknowledge()
	h.tick()
	assert.Equal(t, StopIdle, h.c.StopState())
	h.tick()
	assert.False(t, h.m.Logic.IsError())
	assert.True(t, h.c.IsMovementReady())

	require.NoError(t, h.c.Start())
	h.runUntil(t, 200, h.stopped)
	assert.True(t, h.c.Executor().IsDone())
}

func TestControl_EStopAtStartupWritesLimits(t *testing.T) {
	h := newHarness(t, nil)
	h.s.SetSwitch(plc.SwitchEStop, true)
	h.tick()
	assert.Equal(t, StopEStop, h.c.StopState())

	h.s.SetSwitch(plc.SwitchEStop, false)
	h.tick()
	h.c.Acknowledge()
	h.ticks(2)
	assert.Equal(t, ModeStop, h.c.Mode())
	assert.Equal(t, StopIdle, h.c.StopState())
	assert.True(t, h.c.IsMovementReady())
	assert.Equal(t, 1000.0, h.read(t, plc.TagXYMaxVelocity))
	assert.Equal(t, 1000.0, h.read(t, plc.TagZDeceleration))
}

func TestControl_StartPendingRefusesMoves(t *testing.T) {
	h := newHarness(t, nil)
	h.tick()
	h.c.Executor().Load([]string{"X10"})
	require.NoError(t, h.c.Start())
	assert.False(t, h.c.IsMovementReady())
	assert.Equal(t, ErrRefused, errors.Cause(h.c.SeekXY(100, 100, 0)))
	h.tick()
	assert.Equal(t, ModeWind, h.c.Mode())
}
