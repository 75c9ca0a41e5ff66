package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"testing"

	"github.com/edaniels/golog"
	"github.com/mastercactapus/apawinder/apa"
	"github.com/mastercactapus/apawinder/control"
	"github.com/mastercactapus/apawinder/machine"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWinder struct {
	calls []string
	err   error
}

func (f *fakeWinder) call(format string, args ...interface{}) error {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return f.err
}

func (f *fakeWinder) Start() error                 { return f.call("start") }
func (f *fakeWinder) Stop()                        { f.call("stop") }
func (f *fakeWinder) Acknowledge()                 { f.call("ack") }
func (f *fakeWinder) JogXY(vx, vy float64) error   { return f.call("jogXY %g %g", vx, vy) }
func (f *fakeWinder) JogZ(v float64) error         { return f.call("jogZ %g", v) }
func (f *fakeWinder) SeekXY(x, y, v float64) error { return f.call("seekXY %g %g %g", x, y, v) }
func (f *fakeWinder) SeekZ(z, v float64) error     { return f.call("seekZ %g %g", z, v) }
func (f *fakeWinder) SetHead(p machine.HeadPosition) error {
	return f.call("head %s", p)
}
func (f *fakeWinder) GCode(line string) error        { return f.call("gcode %s", line) }
func (f *fakeWinder) Calibrate(front bool) error     { return f.call("calibrate %t", front) }
func (f *fakeWinder) OpenAPA(name string) error      { return f.call("apa %s", name) }
func (f *fakeWinder) SetStage(stage apa.Stage) error { return f.call("stage %s", stage) }
func (f *fakeWinder) LoadRecipe(name string) error   { return f.call("recipe %s", name) }
func (f *fakeWinder) SetLine(line int) error         { return f.call("line %d", line) }
func (f *fakeWinder) Status() control.Status {
	f.call("status")
	return control.Status{Mode: control.ModeStop, Line: 7}
}

func TestCmdServer_Exec(t *testing.T) {
	f := &fakeWinder{}
	s := newCmdServer(f, golog.NewTestLogger(t))

	for _, line := range []string{
		"start",
		"stop",
		"ack",
		"jogXY 10*2 3+4",
		"jogZ 2.5",
		"seekXY 100 200",
		"seekXY 100 200 50/2",
		"seekZ 300",
		"head 1",
		"gcode X10 G103 PF1 PF2",
		"calibrate",
		"calibrate back",
		"apa APA-7",
		"recipe X-layer-1.gc",
		"stage x_first_half",
		"line 12",
	} {
		_, err := s.exec(line)
		assert.NoError(t, err, line)
	}
	assert.Equal(t, []string{
		"start",
		"stop",
		"ack",
		"jogXY 20 7",
		"jogZ 2.5",
		"seekXY 100 200 0",
		"seekXY 100 200 25",
		"seekZ 300 0",
		"head FRONT",
		"gcode X10 G103 PF1 PF2",
		"calibrate true",
		"calibrate false",
		"apa APA-7",
		"recipe X-layer-1.gc",
		"stage X_FIRST_HALF",
		"line 12",
	}, f.calls)

	res, err := s.exec("state")
	require.NoError(t, err)
	assert.Equal(t, 7, res.(control.Status).Line)
}

func TestCmdServer_ExecErrors(t *testing.T) {
	f := &fakeWinder{}
	s := newCmdServer(f, golog.NewTestLogger(t))

	for _, line := range []string{
		"dance",
		"jogXY 1",
		"jogXY 1 2 3",
		"jogZ",
		"seekXY 1 2 3 4",
		"gcode",
		"stage nowhere",
		"line two",
	} {
		_, err := s.exec(line)
		assert.Error(t, err, line)
	}
	assert.Empty(t, f.calls)

	f.err = errors.Wrap(control.ErrRefused, "start in STOP/ESTOP")
	_, err := s.exec("start")
	assert.Equal(t, control.ErrRefused, errors.Cause(err))
}

func TestCmdServer_Serve(t *testing.T) {
	f := &fakeWinder{}
	s := newCmdServer(f, golog.NewDevelopmentLogger("cmd"))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- s.Serve(l) }()

	conn, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	r := bufio.NewReader(conn)

	read := func() cmdResponse {
		data, err := r.ReadBytes('\n')
		require.NoError(t, err)
		var resp cmdResponse
		require.NoError(t, json.Unmarshal(data, &resp))
		return resp
	}

	fmt.Fprintln(conn, "jogZ 4*2")
	assert.True(t, read().OK)

	fmt.Fprintln(conn, "bogus")
	resp := read()
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "unknown command")

	fmt.Fprintln(conn, "state")
	resp = read()
	assert.True(t, resp.OK)
	assert.Equal(t, "STOP", resp.Result.(map[string]interface{})["mode"])

	require.NoError(t, l.Close())
	assert.Error(t, <-done)
}
