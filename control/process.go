package control

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/edaniels/golog"
	"github.com/mastercactapus/apawinder/apa"
	"github.com/mastercactapus/apawinder/calibration"
	"github.com/mastercactapus/apawinder/coord"
	"github.com/mastercactapus/apawinder/geometry"
	"github.com/mastercactapus/apawinder/recipe"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Data directory layout.
const (
	RecipeDir  = "recipes"
	ArchiveDir = "archive"
	APADir     = "apa"
)

// CalibrationFile is the calibration file name of a layer in an APA
// directory.
func CalibrationFile(layer string) string { return layer + "_Calibration.xml" }

// Process is the operator facing side of the winder: the control state
// machine plus the files of the APA being wound.
type Process struct {
	*Control

	dir string
	log golog.Logger

	apa       *apa.State
	recipe    *recipe.Recipe
	trace     io.WriteCloser
	loadStart time.Time
}

// NewProcess wraps c, keeping files under dir.
func NewProcess(c *Control, dir string, log golog.Logger) *Process {
	p := &Process{Control: c, dir: dir, log: log}
	c.OnWindStop = p.windStopped
	c.OnCalibrated = p.calibrated
	return p
}

// Dir is the data directory.
func (p *Process) Dir() string { return p.dir }

// APA returns the open APA, or nil.
func (p *Process) APA() *apa.State {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.apa
}

// Recipe returns the loaded recipe, or nil.
func (p *Process) Recipe() *recipe.Recipe {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.recipe
}

// windStopped runs under the control lock.
func (p *Process) windStopped(line int, pos coord.Point, d time.Duration) {
	if p.apa == nil {
		return
	}
	p.apa.WindStopped(line, pos, d)
	if err := p.apa.Save(); err != nil {
		p.log.Errorf("save APA: %v", err)
	}
}

// calibrated runs under the control lock.
func (p *Process) calibrated(c *calibration.Layer) error {
	if p.apa == nil {
		return nil
	}
	name := CalibrationFile(c.Name)
	if err := c.Save(p.apa.Path(name)); err != nil {
		return err
	}
	p.apa.SetCalibration(name)
	return p.apa.Save()
}

// Requests below read their files without the control lock, then apply
// the result under it after checking again that the winder is idle.

func (p *Process) ready(what string) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if !p.isMovementReady() {
		return p.refuse(what)
	}
	return nil
}

func (p *Process) apply(what string, fn func() error) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if !p.isMovementReady() {
		return p.refuse(what)
	}
	return fn()
}

var errAPAChanged = errors.New("APA changed")

// OpenAPA opens or creates an APA and restores its layer, calibration,
// recipe and line. A refused calibration is reported after the APA is
// opened without one.
func (p *Process) OpenAPA(name string) error {
	if err := p.ready("open APA"); err != nil {
		return err
	}
	dir := filepath.Join(p.dir, APADir)
	s, err := apa.Open(filepath.Join(dir, name))
	if os.IsNotExist(errors.Cause(err)) {
		s, err = apa.Create(dir, name)
	}
	if err != nil {
		return err
	}

	var (
		l      *geometry.Layer
		cal    *calibration.Layer
		calErr error
		r      *recipe.Recipe
	)
	if layer := s.Stage.Layer(); layer != "" {
		l, cal, calErr = p.readLayer(s, layer)
		if l == nil {
			return calErr
		}
	}
	if s.Recipe != "" {
		if r, err = p.readRecipe(s.Recipe); err != nil {
			return err
		}
	}

	err = p.apply("open APA", func() error {
		if err := p.closeAPA(); err != nil {
			p.log.Warnf("close APA: %v", err)
		}
		p.apa = s
		p.loadStart = p.now()
		p.log.Infof("APA %s at stage %s", s.Name, s.Stage)
		if l != nil {
			p.setLayer(l, cal)
		}
		if r == nil {
			return nil
		}
		line := s.Line
		if err := p.setRecipe(s.Recipe, r); err != nil {
			return err
		}
		if err := p.exec.SetLine(line); err != nil {
			return err
		}
		s.SetRecipe(s.Recipe, line)
		return s.Save()
	})
	if err != nil {
		return err
	}
	return calErr
}

// CloseAPA saves and closes the open APA.
func (p *Process) CloseAPA() error {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.closeAPA()
}

func (p *Process) closeAPA() error {
	if p.apa == nil {
		return nil
	}
	p.apa.AddLoadTime(p.now().Sub(p.loadStart))
	err := p.apa.Close()
	if p.trace != nil {
		err = multierr.Append(err, p.trace.Close())
		p.trace = nil
		p.exec.SetTrace(nil)
	}
	p.apa = nil
	return err
}

// SetStage moves the open APA to a new stage and selects its layer.
func (p *Process) SetStage(stage apa.Stage) error {
	if err := p.ready("set stage"); err != nil {
		return err
	}
	s := p.APA()
	if s == nil {
		return errors.New("no APA open")
	}
	var (
		l      *geometry.Layer
		cal    *calibration.Layer
		calErr error
	)
	if layer := stage.Layer(); layer != "" {
		l, cal, calErr = p.readLayer(s, layer)
		if l == nil {
			return calErr
		}
	}
	err := p.apply("set stage", func() error {
		if p.apa != s {
			return errAPAChanged
		}
		s.SetStage(stage)
		if l != nil {
			p.setLayer(l, cal)
		}
		return s.Save()
	})
	if err != nil {
		return err
	}
	return calErr
}

// SetLayer selects the layer being wound and loads its calibration from
// the open APA. Without a calibration file pin functions are refused.
func (p *Process) SetLayer(name string) error {
	if err := p.ready("set layer"); err != nil {
		return err
	}
	s := p.APA()
	l, cal, calErr := p.readLayer(s, name)
	if l == nil {
		return calErr
	}
	err := p.apply("set layer", func() error {
		if p.apa != s {
			return errAPAChanged
		}
		p.setLayer(l, cal)
		return nil
	})
	if err != nil {
		return err
	}
	return calErr
}

// readLayer looks up a layer and reads its calibration from s, if any. A
// refused calibration returns the layer with the error.
func (p *Process) readLayer(s *apa.State, name string) (*geometry.Layer, *calibration.Layer, error) {
	l, err := geometry.ByName(name)
	if err != nil {
		return nil, nil, err
	}
	if s == nil {
		return l, nil, nil
	}
	path := s.Path(CalibrationFile(l.Name))
	if _, err = os.Stat(path); os.IsNotExist(err) {
		p.log.Warnf("layer %s has no calibration", l.Name)
		return l, nil, nil
	}
	c, err := p.readCalibration(path, l)
	return l, c, err
}

func (p *Process) readCalibration(path string, l *geometry.Layer) (*calibration.Layer, error) {
	c, err := calibration.Load(path)
	if err == nil && l != nil {
		err = c.Check(l)
	}
	if err != nil {
		err = errors.Wrapf(err, "calibration %s refused", filepath.Base(path))
		p.log.Errorf("%v", err)
		return nil, err
	}
	return c, nil
}

// setLayer runs under the control lock.
func (p *Process) setLayer(l *geometry.Layer, c *calibration.Layer) {
	p.Layer = l
	p.exec.Interpreter().Calibration = nil
	if c != nil {
		p.setCalibration(c, CalibrationFile(l.Name))
	}
}

// setCalibration runs under the control lock.
func (p *Process) setCalibration(c *calibration.Layer, name string) {
	p.exec.Interpreter().Calibration = c
	if p.apa != nil {
		p.apa.SetCalibration(name)
	}
	p.log.Infof("calibration %s loaded for layer %s", c.Hash, c.Name)
}

// LoadCalibration replaces the active calibration. A file that fails to
// load or does not match the layer leaves the previous one in place.
func (p *Process) LoadCalibration(path string) error {
	if err := p.ready("load calibration"); err != nil {
		return err
	}
	p.mx.Lock()
	l := p.Layer
	p.mx.Unlock()

	c, err := p.readCalibration(path, l)
	if err != nil {
		return err
	}
	return p.apply("load calibration", func() error {
		if p.Layer != l {
			return errors.New("layer changed")
		}
		p.setCalibration(c, filepath.Base(path))
		return nil
	})
}

// LoadRecipe loads a recipe from the recipe directory, fixing its hash
// and archiving it.
func (p *Process) LoadRecipe(name string) error {
	if err := p.ready("load recipe"); err != nil {
		return err
	}
	r, err := p.readRecipe(name)
	if err != nil {
		return err
	}
	return p.apply("load recipe", func() error {
		if err := p.setRecipe(name, r); err != nil {
			return err
		}
		if p.apa == nil {
			return nil
		}
		return p.apa.Save()
	})
}

func (p *Process) readRecipe(name string) (*recipe.Recipe, error) {
	r, rewritten, err := recipe.Load(filepath.Join(p.dir, RecipeDir, name), filepath.Join(p.dir, ArchiveDir))
	if err != nil {
		return nil, err
	}
	if rewritten {
		p.log.Warnf("recipe %s hash updated to %s", name, r.Hash)
	}
	return r, nil
}

// setRecipe runs under the control lock.
func (p *Process) setRecipe(name string, r *recipe.Recipe) error {
	p.exec.Load(r.Lines)
	p.recipe = r
	p.log.Infof("recipe %s loaded: %d lines", name, len(r.Lines))

	if p.apa == nil {
		return nil
	}
	p.apa.SetRecipe(name, -1)
	if p.trace == nil && p.Layer != nil {
		f, err := os.OpenFile(p.apa.Path(p.Layer.Name+"-layer.gc.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return errors.Wrap(err, "open trace")
		}
		p.trace = f
		p.exec.SetTrace(f)
	}
	return nil
}

// SetLine sets the last completed recipe line.
func (p *Process) SetLine(line int) error {
	return p.apply("set line", func() error {
		if err := p.exec.SetLine(line); err != nil {
			return err
		}
		if p.apa == nil {
			return nil
		}
		p.apa.SetRecipe(p.apa.Recipe, line)
		return p.apa.Save()
	})
}

// Close saves the APA and releases files.
func (p *Process) Close() error { return p.CloseAPA() }
