package plc

import "sync"

// Attr describes how a tag may be accessed.
type Attr uint8

const (
	// Read marks a tag that can be read.
	Read Attr = 1 << iota
	// Write marks a tag that can be written.
	Write
	// Polled marks a tag that is refreshed by every PollAll. It implies Read.
	Polled
)

// cell is the single shared storage for a tag name.
type cell struct {
	name string
	typ  Type
	attr Attr
	def  float64

	mx    sync.RWMutex
	value float64
}

func (c *cell) load() float64 {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return c.value
}

func (c *cell) store(v float64) {
	c.mx.Lock()
	c.value = v
	c.mx.Unlock()
}

// Tag is a handle to a named PLC variable. All handles with the same
// name observe the same value.
type Tag struct {
	c *cell
	r *Registry
}

func (t *Tag) Name() string     { return t.c.name }
func (t *Tag) Type() Type       { return t.c.typ }
func (t *Tag) Default() float64 { return t.c.def }
func (t *Tag) CanRead() bool    { return t.c.attr&Read != 0 }
func (t *Tag) CanWrite() bool   { return t.c.attr&Write != 0 }
func (t *Tag) IsPolled() bool   { return t.c.attr&Polled != 0 }

// Get returns the last value read or written. While the PLC is not
// functional the default value is returned instead.
func (t *Tag) Get() float64 {
	if !t.r.IsFunctional() {
		return t.c.def
	}
	return t.c.load()
}

func (t *Tag) Bool() bool { return t.Get() != 0 }
func (t *Tag) Int() int   { return int(t.Get()) }

// Set writes value to the PLC. On failure the cached value is unchanged.
func (t *Tag) Set(value float64) error {
	return t.r.write(t.c, value)
}

// SetBool writes a boolean value.
func (t *Tag) SetBool(b bool) error {
	if b {
		return t.Set(1)
	}
	return t.Set(0)
}

// Read refreshes just this tag from the PLC.
func (t *Tag) Read() (float64, error) {
	return t.r.readOne(t.c)
}
