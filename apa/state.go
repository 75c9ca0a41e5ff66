// Package apa persists the winding state of one anode plane array.
package apa

import (
	"encoding/xml"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mastercactapus/apawinder/coord"
	"github.com/pkg/errors"
)

// StateFile is the name of the state file in an APA directory.
const StateFile = "state.xml"

// Position is a machine location as XML attributes.
type Position struct {
	X float64 `xml:"x,attr"`
	Y float64 `xml:"y,attr"`
	Z float64 `xml:"z,attr"`
}

// State is everything remembered about an APA between runs.
type State struct {
	mx  sync.Mutex
	dir string

	XMLName xml.Name `xml:"APA"`
	Name    string   `xml:"name,attr"`
	Stage   Stage    `xml:"stage"`

	Recipe      string `xml:"recipe"`
	Line        int    `xml:"line"`
	Calibration string `xml:"calibration"`

	// accumulated time in seconds
	WindTime float64 `xml:"windTime"`
	LoadTime float64 `xml:"loadTime"`

	LastPosition Position `xml:"lastPosition"`
}

// Create starts a new APA in dir/name.
func Create(dir, name string) (*State, error) {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(filepath.Join(path, StateFile)); err == nil {
		return nil, errors.Errorf("APA %s already exists", name)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, errors.Wrap(err, "create APA directory")
	}
	s := &State{dir: path, Name: name, Line: -1}
	return s, s.Save()
}

// Open loads the APA stored in dir.
func Open(dir string) (*State, error) {
	data, err := ioutil.ReadFile(filepath.Join(dir, StateFile))
	if err != nil {
		return nil, errors.Wrap(err, "read APA state")
	}
	s := &State{dir: dir}
	if err = xml.Unmarshal(data, s); err != nil {
		return nil, errors.Wrap(err, "parse APA state")
	}
	return s, nil
}

// Dir is the directory holding the APA's files.
func (s *State) Dir() string { return s.dir }

// Path joins name onto the APA directory.
func (s *State) Path(name string) string { return filepath.Join(s.dir, name) }

// Save writes the state file.
func (s *State) Save() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	data, err := xml.MarshalIndent(s, "", "\t")
	if err != nil {
		return errors.Wrap(err, "encode APA state")
	}
	tmp := filepath.Join(s.dir, StateFile+".tmp")
	if err = ioutil.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return errors.Wrap(err, "write APA state")
	}
	return errors.Wrap(os.Rename(tmp, filepath.Join(s.dir, StateFile)), "write APA state")
}

// Close saves the state one last time.
func (s *State) Close() error { return s.Save() }

// SetStage moves the APA to stage and clears the recipe.
func (s *State) SetStage(stage Stage) {
	s.mx.Lock()
	s.Stage = stage
	s.Recipe = ""
	s.Line = -1
	s.mx.Unlock()
}

// SetRecipe records the recipe being wound.
func (s *State) SetRecipe(name string, line int) {
	s.mx.Lock()
	s.Recipe = name
	s.Line = line
	s.mx.Unlock()
}

// SetCalibration records the calibration file in use.
func (s *State) SetCalibration(name string) {
	s.mx.Lock()
	s.Calibration = name
	s.mx.Unlock()
}

// WindStopped records where winding stopped and how long it ran.
func (s *State) WindStopped(line int, pos coord.Point, d time.Duration) {
	s.mx.Lock()
	s.Line = line
	s.LastPosition = Position{X: pos.X, Y: pos.Y, Z: pos.Z}
	s.WindTime += d.Seconds()
	s.mx.Unlock()
}

// AddLoadTime adds time spent with the APA loaded.
func (s *State) AddLoadTime(d time.Duration) {
	s.mx.Lock()
	s.LoadTime += d.Seconds()
	s.mx.Unlock()
}
