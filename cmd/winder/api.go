package main

import (
	"bytes"
	"encoding/json"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/edaniels/golog"
	"github.com/gorilla/mux"
	"github.com/mastercactapus/apawinder/apa"
	"github.com/mastercactapus/apawinder/control"
	"github.com/mastercactapus/apawinder/machine"
	"github.com/pkg/errors"
)

type api struct {
	http.Handler
	w       Winder
	dataDir string
	log     golog.Logger
	sse     *sse.Server

	mx   sync.Mutex
	last []byte
}

func newAPI(w Winder, dir string, logger golog.Logger) *api {
	r := mux.NewRouter()

	a := &api{
		Handler: r,
		w:       w,
		dataDir: dir,
		log:     logger,
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(ioutil.Discard, "", 0),
		}),
	}

	fs := http.FileServer(http.Dir(dir))
	r.PathPrefix("/data/").Handler(http.StripPrefix("/data", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case "GET":
			fs.ServeHTTP(w, req)
		case "PUT":
			a.putFile(w, req)
		case "DELETE":
			a.deleteFile(w, req)
		default:
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		}
	})))

	r.HandleFunc("/api/status", a.status).Methods("GET")
	post := func(p string, fn func(*http.Request) error) {
		r.HandleFunc(p, a.action(fn)).Methods("POST")
	}
	post("/api/start", func(*http.Request) error { return w.Start() })
	post("/api/stop", func(*http.Request) error { w.Stop(); return nil })
	post("/api/ack", func(*http.Request) error { w.Acknowledge(); return nil })
	post("/api/jog", a.jog)
	post("/api/seek", a.seek)
	post("/api/head", a.head)
	post("/api/gcode", a.gcode)
	post("/api/calibrate", func(req *http.Request) error {
		return w.Calibrate(req.FormValue("side") != "back")
	})
	post("/api/apa", func(req *http.Request) error { return w.OpenAPA(req.FormValue("name")) })
	post("/api/recipe", func(req *http.Request) error { return w.LoadRecipe(req.FormValue("name")) })
	post("/api/stage", func(req *http.Request) error {
		s, err := apa.ParseStage(req.FormValue("stage"))
		if err != nil {
			return err
		}
		return w.SetStage(s)
	})
	post("/api/line", func(req *http.Request) error {
		n, err := strconv.Atoi(req.FormValue("line"))
		if err != nil {
			return errors.Wrap(err, "line")
		}
		return w.SetLine(n)
	})

	r.PathPrefix("/events/").Handler(a.sse)

	return a
}

// publish sends the status to state subscribers when it changed.
func (a *api) publish(s control.Status) {
	data, err := json.Marshal(s)
	if err != nil {
		a.log.Errorf("marshal status: %+v", err)
		return
	}
	a.mx.Lock()
	changed := !bytes.Equal(data, a.last)
	a.last = data
	a.mx.Unlock()
	if changed {
		a.sse.SendMessage("/events/state", sse.SimpleMessage(string(data)))
	}
}

func (a *api) Close() { a.sse.Shutdown() }

func safePath(base, name string) (bool, string) {
	if filepath.Separator != '/' && strings.ContainsRune(name, filepath.Separator) {
		return false, ""
	}
	dir := string(base)
	if dir == "" {
		dir = "."
	}
	fullName := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+name)))
	return true, fullName
}

func (a *api) action(fn func(*http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := fn(req)
		if err == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		code := http.StatusBadRequest
		if errors.Cause(err) == control.ErrRefused {
			code = http.StatusConflict
		}
		a.log.Warnf("%s %s: %v", req.Method, req.URL.Path, err)
		http.Error(w, err.Error(), code)
	}
}

func (a *api) status(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(a.w.Status())
	if err != nil {
		a.log.Errorf("encode: %v", err)
	}
}

// form reads float parameters, keeping the first error.
type form struct {
	req *http.Request
	err error
}

func (f *form) has(name string) bool { return f.req.FormValue(name) != "" }

func (f *form) float(name string, def float64) float64 {
	s := f.req.FormValue(name)
	if f.err != nil || s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		f.err = errors.Wrap(err, name)
	}
	return v
}

func (a *api) jog(req *http.Request) error {
	f := &form{req: req}
	if f.has("z") {
		v := f.float("z", 0)
		if f.err != nil {
			return f.err
		}
		return a.w.JogZ(v)
	}
	vx, vy := f.float("x", 0), f.float("y", 0)
	if f.err != nil {
		return f.err
	}
	return a.w.JogXY(vx, vy)
}

func (a *api) seek(req *http.Request) error {
	f := &form{req: req}
	v := f.float("v", 0)
	if f.has("z") {
		z := f.float("z", 0)
		if f.err != nil {
			return f.err
		}
		return a.w.SeekZ(z, v)
	}
	if !f.has("x") || !f.has("y") {
		return errors.New("x and y are required")
	}
	x, y := f.float("x", 0), f.float("y", 0)
	if f.err != nil {
		return f.err
	}
	return a.w.SeekXY(x, y, v)
}

func (a *api) head(req *http.Request) error {
	n, err := strconv.Atoi(req.FormValue("position"))
	if err != nil {
		return errors.Wrap(err, "position")
	}
	return a.w.SetHead(machine.HeadPosition(n))
}

func (a *api) gcode(req *http.Request) error {
	data, err := ioutil.ReadAll(req.Body)
	if err != nil {
		return err
	}
	line := strings.TrimSpace(string(data))
	if line == "" || strings.ContainsRune(line, '\n') {
		return errors.New("expected a single line")
	}
	return a.w.GCode(line)
}

func (a *api) putFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, req.URL.Path)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	err := os.MkdirAll(filepath.Dir(name), 0755)
	if err != nil {
		a.log.Errorf("mkdir '%s': %+v", filepath.Dir(name), err)
		http.Error(w, err.Error(), 500)
		return
	}
	f, err := os.Create(name)
	if err != nil {
		a.log.Errorf("create '%s': %+v", name, err)
		http.Error(w, err.Error(), 500)
		return
	}
	defer f.Close()
	_, err = io.Copy(f, req.Body)
	if err != nil {
		a.log.Errorf("write '%s': %+v", name, err)
		http.Error(w, err.Error(), 500)
		return
	}
}

func (a *api) deleteFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, req.URL.Path)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	err := os.Remove(name)
	if err != nil {
		a.log.Errorf("delete '%s': %+v", name, err)
		http.Error(w, err.Error(), 500)
		return
	}
}
