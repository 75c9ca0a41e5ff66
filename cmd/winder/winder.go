package main

import (
	"github.com/mastercactapus/apawinder/apa"
	"github.com/mastercactapus/apawinder/control"
	"github.com/mastercactapus/apawinder/machine"
)

// Winder is everything the operator servers can ask of the process.
type Winder interface {
	Start() error
	Stop()
	Acknowledge()

	JogXY(vx, vy float64) error
	JogZ(v float64) error
	SeekXY(x, y, v float64) error
	SeekZ(z, v float64) error
	SetHead(p machine.HeadPosition) error
	GCode(line string) error
	Calibrate(front bool) error

	OpenAPA(name string) error
	SetStage(stage apa.Stage) error
	LoadRecipe(name string) error
	SetLine(line int) error

	Status() control.Status
}

var _ Winder = &control.Process{}
