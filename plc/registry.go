package plc

import (
	"sync"
	"sync/atomic"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

// Registry owns the tag table and the PLC driver. Tags are interned by
// name: registering an existing name returns another handle to the same
// cell.
type Registry struct {
	drv Driver
	log golog.Logger

	// plcMx serializes every driver call
	plcMx sync.Mutex

	mx     sync.RWMutex
	cells  map[string]*cell
	polled []*cell

	functional int32
}

// NewRegistry creates an empty registry for drv. The PLC starts
// non-functional until Initialize succeeds.
func NewRegistry(drv Driver, log golog.Logger) *Registry {
	return &Registry{
		drv:   drv,
		log:   log,
		cells: make(map[string]*cell),
	}
}

// Register returns a handle for name, creating the tag if needed.
func (r *Registry) Register(name string, typ Type, attr Attr, def float64) (*Tag, error) {
	if attr&Polled != 0 && attr&Read == 0 {
		return nil, errors.Errorf("tag %s: polled tags must be readable", name)
	}
	r.mx.Lock()
	defer r.mx.Unlock()

	c, ok := r.cells[name]
	if ok {
		if c.typ != typ {
			return nil, errors.Errorf("tag %s: registered as %s, requested %s", name, c.typ, typ)
		}
		if attr&Polled != 0 && c.attr&Polled == 0 {
			r.polled = append(r.polled, c)
		}
		c.attr |= attr
		return &Tag{c: c, r: r}, nil
	}

	c = &cell{name: name, typ: typ, attr: attr, def: typ.Coerce(def), value: typ.Coerce(def)}
	r.cells[name] = c
	if attr&Polled != 0 {
		r.polled = append(r.polled, c)
	}
	return &Tag{c: c, r: r}, nil
}

// MustRegister is like Register but panics on error. It is meant for the
// fixed tag maps built at startup.
func (r *Registry) MustRegister(name string, typ Type, attr Attr, def float64) *Tag {
	t, err := r.Register(name, typ, attr, def)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns a handle for an already registered tag.
func (r *Registry) Lookup(name string) (*Tag, bool) {
	r.mx.RLock()
	defer r.mx.RUnlock()
	c, ok := r.cells[name]
	if !ok {
		return nil, false
	}
	return &Tag{c: c, r: r}, true
}

// Names returns every registered tag name in registration order of polled
// tags followed by the rest in no particular order.
func (r *Registry) Names() []string {
	r.mx.RLock()
	defer r.mx.RUnlock()
	res := make([]string, 0, len(r.cells))
	seen := make(map[string]bool, len(r.polled))
	for _, c := range r.polled {
		res = append(res, c.name)
		seen[c.name] = true
	}
	for name := range r.cells {
		if !seen[name] {
			res = append(res, name)
		}
	}
	return res
}

// IsFunctional reports whether the last communication with the PLC
// succeeded.
func (r *Registry) IsFunctional() bool { return atomic.LoadInt32(&r.functional) == 1 }

func (r *Registry) setFunctional(ok bool) {
	var v int32
	if ok {
		v = 1
	}
	if atomic.SwapInt32(&r.functional, v) != v && r.log != nil {
		if ok {
			r.log.Infof("PLC functional")
		} else {
			r.log.Errorf("PLC non-functional")
		}
	}
}

// Initialize (re)connects the driver. On success the PLC is functional
// again.
func (r *Registry) Initialize() error {
	r.plcMx.Lock()
	err := r.drv.Initialize()
	r.plcMx.Unlock()
	if err != nil {
		r.setFunctional(false)
		return errors.Wrap(err, "initialize PLC")
	}
	r.setFunctional(true)
	return nil
}

func (r *Registry) batches() [][]*cell {
	r.mx.RLock()
	defer r.mx.RUnlock()
	var res [][]*cell
	for i := 0; i < len(r.polled); i += MaxBatch {
		end := i + MaxBatch
		if end > len(r.polled) {
			end = len(r.polled)
		}
		res = append(res, r.polled[i:end:end])
	}
	return res
}

// PollAll reads every polled tag, MaxBatch names per request. Values
// within a batch come from one PLC read. A failing batch resets its tags
// to their defaults and marks the PLC non-functional.
func (r *Registry) PollAll() error {
	if !r.IsFunctional() {
		return nil
	}
	var firstErr error
	for _, batch := range r.batches() {
		names := make([]string, len(batch))
		for i, c := range batch {
			names[i] = c.name
		}

		r.plcMx.Lock()
		vals, err := r.drv.Read(names)
		r.plcMx.Unlock()
		if err == nil && len(vals) != len(batch) {
			err = errors.Errorf("read returned %d values for %d tags", len(vals), len(batch))
		}
		if err != nil {
			for _, c := range batch {
				c.store(c.def)
			}
			if firstErr == nil {
				firstErr = errors.Wrap(err, "poll tags")
			}
			continue
		}
		for i, c := range batch {
			c.store(c.typ.Coerce(vals[i]))
		}
	}
	if firstErr != nil {
		r.setFunctional(false)
	}
	return firstErr
}

func (r *Registry) write(c *cell, value float64) error {
	if c.attr&Write == 0 {
		return errors.Errorf("tag %s is read-only", c.name)
	}
	value = c.typ.Coerce(value)

	r.plcMx.Lock()
	err := r.drv.Write(c.name, c.typ, value)
	r.plcMx.Unlock()
	if err != nil {
		return errors.Wrapf(err, "write %s", c.name)
	}
	c.store(value)
	return nil
}

func (r *Registry) readOne(c *cell) (float64, error) {
	if c.attr&Read == 0 {
		return 0, errors.Errorf("tag %s is write-only", c.name)
	}
	r.plcMx.Lock()
	vals, err := r.drv.Read([]string{c.name})
	r.plcMx.Unlock()
	if err == nil && len(vals) != 1 {
		err = errors.New("short read")
	}
	if err != nil {
		c.store(c.def)
		return c.def, errors.Wrapf(err, "read %s", c.name)
	}
	v := c.typ.Coerce(vals[0])
	c.store(v)
	return v, nil
}

// Refresh reads tags from the PLC in a single request so they form a
// consistent snapshot. tags must not exceed MaxBatch.
func (r *Registry) Refresh(tags ...*Tag) error {
	if len(tags) > MaxBatch {
		return errors.Errorf("refresh of %d tags exceeds batch size %d", len(tags), MaxBatch)
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		if !t.CanRead() {
			return errors.Errorf("tag %s is write-only", t.Name())
		}
		names[i] = t.Name()
	}
	r.plcMx.Lock()
	vals, err := r.drv.Read(names)
	r.plcMx.Unlock()
	if err == nil && len(vals) != len(tags) {
		err = errors.Errorf("read returned %d values for %d tags", len(vals), len(tags))
	}
	if err != nil {
		for _, t := range tags {
			t.c.store(t.c.def)
		}
		return errors.Wrap(err, "refresh tags")
	}
	for i, t := range tags {
		t.c.store(t.c.typ.Coerce(vals[i]))
	}
	return nil
}
