package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"

	"github.com/cheggaaa/pb"
	"github.com/edaniels/golog"
	"github.com/mastercactapus/apawinder/control"
	"github.com/mastercactapus/apawinder/generator"
	"github.com/mastercactapus/apawinder/geometry"
	"github.com/pkg/errors"
)

func main() {
	layers := flag.String("layers", strings.Join(geometry.Names, ","), "Comma separated layers to generate.")
	dir := flag.String("dir", "./data", "Data directory; recipes are written to its recipes directory.")
	velocity := flag.Float64("velocity", 0, "Velocity set at the start of each recipe (0 for the machine default).")
	quiet := flag.Bool("q", false, "Hide the progress bar.")
	flag.Parse()

	log := golog.NewDevelopmentLogger("recipegen")

	for _, name := range strings.Split(*layers, ",") {
		l, err := geometry.ByName(strings.TrimSpace(name))
		if err != nil {
			log.Fatalf("%v", err)
		}
		if err = generate(l, *dir, *velocity, !*quiet, log); err != nil {
			log.Fatalf("layer %s: %+v", l.Name, err)
		}
	}
}

func generate(l *geometry.Layer, dir string, velocity float64, progress bool, log golog.Logger) error {
	opt := generator.Options{Velocity: velocity}
	var bar *pb.ProgressBar
	if progress {
		opt.Progress = func(done, total int) {
			if bar == nil {
				bar = pb.New(total).Prefix(l.Name + " layer ")
				bar.Format("[=> ]")
				bar.Start()
			}
			bar.Set(done)
		}
	}

	res, err := generator.Generate(l, opt)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	recipes := filepath.Join(dir, control.RecipeDir)
	if err = os.MkdirAll(recipes, 0755); err != nil {
		return errors.Wrap(err, "create recipe directory")
	}
	for i, r := range res.Recipes() {
		path := filepath.Join(recipes, generator.FileName(l.Name, i+1))
		if err = r.Save(path); err != nil {
			return err
		}
		if err = r.Archive(filepath.Join(dir, control.ArchiveDir)); err != nil {
			return err
		}
		log.Infof("wrote %s: %d lines, hash %s", path, len(r.Lines), r.Hash)
	}

	path := filepath.Join(dir, control.CalibrationFile(l.Name))
	if err = res.Calibration.Save(path); err != nil {
		return err
	}
	log.Infof("wrote %s: %d pins, %.1f m of wire", path, len(res.Calibration.Locations), res.WireLength()/1000)
	return nil
}
