package control

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mastercactapus/apawinder/apa"
	"github.com/mastercactapus/apawinder/calibration"
	"github.com/mastercactapus/apawinder/geometry"
	"github.com/mastercactapus/apawinder/recipe"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProcess(t *testing.T) (*harness, *Process) {
	h := newHarness(t, nil)
	h.tick()
	require.Equal(t, ModeStop, h.c.Mode())
	p := NewProcess(h.c, t.TempDir(), h.c.log)
	t.Cleanup(func() { assert.NoError(t, p.Close()) })
	return h, p
}

func writeRecipe(t *testing.T, p *Process, name string, r *recipe.Recipe) {
	dir := filepath.Join(p.Dir(), RecipeDir)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, r.Save(filepath.Join(dir, name)))
}

func TestProcess_OpenAPA(t *testing.T) {
	h, p := newProcess(t)

	require.NoError(t, p.OpenAPA("APA-1"))
	require.NotNil(t, p.APA())
	assert.Equal(t, apa.Uninitialized, p.APA().Stage)
	assert.FileExists(t, filepath.Join(p.Dir(), APADir, "APA-1", apa.StateFile))

	require.NoError(t, p.SetStage(apa.VFirstHalf))
	require.NotNil(t, h.c.Layer)
	assert.Equal(t, "V", h.c.Layer.Name)
	assert.Nil(t, h.c.Executor().Interpreter().Calibration)

	require.NoError(t, p.CloseAPA())
	assert.Nil(t, p.APA())

	// reopening restores the stage
	require.NoError(t, p.OpenAPA("APA-1"))
	assert.Equal(t, apa.VFirstHalf, p.APA().Stage)
	assert.Equal(t, "V", h.c.Layer.Name)
}

func TestProcess_TamperedCalibration(t *testing.T) {
	h, p := newProcess(t)
	require.NoError(t, p.OpenAPA("APA-1"))
	require.NoError(t, p.SetStage(apa.XFirstHalf))

	good := calibration.Nominal(geometry.X())
	path := p.APA().Path(CalibrationFile("X"))
	require.NoError(t, good.Save(path))
	require.NoError(t, p.LoadCalibration(path))
	active := h.c.Executor().Interpreter().Calibration
	require.NotNil(t, active)
	assert.Equal(t, good.Hash, active.Hash)

	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `number="F1" x="`)
	tampered := filepath.Join(p.APA().Dir(), "tampered.xml")
	data = []byte(strings.Replace(string(data), `number="F1" x="`, `number="F1" x="1`, 1))
	require.NoError(t, ioutil.WriteFile(tampered, data, 0644))

	err = p.LoadCalibration(tampered)
	require.Error(t, err)
	assert.Equal(t, calibration.ErrHashMismatch, errors.Cause(err))
	assert.Same(t, active, h.c.Executor().Interpreter().Calibration)
	assert.Equal(t, 1, h.logs.FilterMessageSnippet("tampered.xml refused").Len())

	// a calibration for another layer is refused too
	other := filepath.Join(p.APA().Dir(), "v.xml")
	require.NoError(t, calibration.Nominal(geometry.V()).Save(other))
	assert.Error(t, p.LoadCalibration(other))
	assert.Same(t, active, h.c.Executor().Interpreter().Calibration)

	// selecting the layer again picks up the stored file
	require.NoError(t, p.SetLayer("X"))
	require.NotNil(t, h.c.Executor().Interpreter().Calibration)
	assert.Equal(t, good.Hash, h.c.Executor().Interpreter().Calibration.Hash)
}

func TestProcess_LoadRecipe(t *testing.T) {
	h, p := newProcess(t)

	r := recipe.New("X layer", []string{"X10 Y10", "X20"})
	r.Hash = strings.Repeat("0", recipe.HashLen)
	writeRecipe(t, p, "X-layer.gc", r)

	require.NoError(t, p.LoadRecipe("X-layer.gc"))
	loaded := p.Recipe()
	require.NotNil(t, loaded)
	assert.True(t, loaded.IsValid())
	assert.Equal(t, r.Hash, loaded.Parent)
	assert.Equal(t, 1, h.logs.FilterMessageSnippet("hash updated").Len())

	again, _, err := recipe.Load(filepath.Join(p.Dir(), RecipeDir, "X-layer.gc"), "")
	require.NoError(t, err)
	assert.Equal(t, loaded.Hash, again.Hash)
	assert.FileExists(t, filepath.Join(p.Dir(), ArchiveDir, loaded.Hash+".gc"))

	assert.True(t, h.c.Executor().IsLoaded())
	assert.Equal(t, []string{"X10 Y10", "X20"}, h.c.Executor().Lines())

	assert.Error(t, p.LoadRecipe("missing.gc"))
}

func TestProcess_WindSavesLine(t *testing.T) {
	h, p := newProcess(t)
	require.NoError(t, p.OpenAPA("APA-2"))
	require.NoError(t, p.SetStage(apa.XFirstHalf))
	writeRecipe(t, p, "X-layer.gc", recipe.New("X layer", []string{"X10 Y10", "X20", "X30"}))
	require.NoError(t, p.LoadRecipe("X-layer.gc"))
	assert.Equal(t, "X-layer.gc", p.APA().Recipe)
	assert.Equal(t, -1, p.APA().Line)

	require.NoError(t, h.c.Start())
	h.runUntil(t, 100, func() bool { return h.c.Mode() == ModeStop })
	require.Nil(t, h.c.LastError())

	s, err := apa.Open(p.APA().Dir())
	require.NoError(t, err)
	assert.Equal(t, 2, s.Line)
	assert.InDelta(t, 30, s.LastPosition.X, 1e-6)
	assert.InDelta(t, 10, s.LastPosition.Y, 1e-6)
	assert.True(t, s.WindTime > 0)

	trace, err := ioutil.ReadFile(p.APA().Path("X-layer.gc.log"))
	require.NoError(t, err)
	assert.Contains(t, string(trace), "X30")

	// the line survives a reopen
	require.NoError(t, p.CloseAPA())
	require.NoError(t, p.OpenAPA("APA-2"))
	assert.Equal(t, 2, h.c.Executor().Line())
	assert.True(t, h.c.Executor().IsDone())
	assert.Error(t, h.c.Start())
}

func TestProcess_RefusedWhileWinding(t *testing.T) {
	h, p := newProcess(t)
	writeRecipe(t, p, "a.gc", recipe.New("a", []string{"X3000 Y2000", "X10"}))
	writeRecipe(t, p, "b.gc", recipe.New("b", []string{"X20"}))
	require.NoError(t, p.LoadRecipe("a.gc"))

	require.NoError(t, h.c.Start())
	// a pending start already blocks file requests
	assert.Equal(t, ErrRefused, errors.Cause(p.LoadRecipe("b.gc")))
	h.ticks(2)
	require.Equal(t, ModeWind, h.c.Mode())

	assert.Equal(t, ErrRefused, errors.Cause(p.LoadRecipe("b.gc")))
	assert.Equal(t, ErrRefused, errors.Cause(p.SetLine(-1)))
	assert.Equal(t, ErrRefused, errors.Cause(p.SetLayer("V")))
	assert.Equal(t, ErrRefused, errors.Cause(p.OpenAPA("APA-3")))
	assert.Equal(t, []string{"X3000 Y2000", "X10"}, h.c.Executor().Lines())
	assert.Equal(t, "a", p.Recipe().Description)

	h.runUntil(t, 200, h.stopped)
	assert.True(t, h.c.Executor().IsDone())
}

func TestProcess_ConcurrentRequests(t *testing.T) {
	h, p := newProcess(t)
	require.NoError(t, p.OpenAPA("APA-4"))
	require.NoError(t, p.SetStage(apa.XFirstHalf))
	writeRecipe(t, p, "X-layer.gc", recipe.New("X layer", []string{"X100 Y100", "X200", "X300"}))
	require.NoError(t, p.LoadRecipe("X-layer.gc"))

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				h.tick()
			}
		}
	}()
	for i := 0; i < 20; i++ {
		p.Start()
		p.LoadRecipe("X-layer.gc")
		p.SetLine(-1)
		p.Status()
	}
	close(done)
	wg.Wait()

	// every line was either refused or applied between operations
	h.c.Stop()
	h.runUntil(t, 200, h.stopped)
	assert.Equal(t, []string{"X100 Y100", "X200", "X300"}, h.c.Executor().Lines())
}
