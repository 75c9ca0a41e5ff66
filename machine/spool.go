package machine

import "sync"

// Spool tracks the wire left on the bobbin.
type Spool struct {
	mx        sync.Mutex
	remaining float64
	low       float64
}

// NewSpool creates a spool holding length mm of wire that reports low
// wire below low.
func NewSpool(length, low float64) *Spool {
	return &Spool{remaining: length, low: low}
}

// Subtract removes consumed wire. A negative length puts wire back.
func (s *Spool) Subtract(length float64) {
	s.mx.Lock()
	s.remaining -= length
	s.mx.Unlock()
}

// Remaining returns the wire left.
func (s *Spool) Remaining() float64 {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.remaining
}

// Reload sets the amount of wire after a bobbin change.
func (s *Spool) Reload(length float64) {
	s.mx.Lock()
	s.remaining = length
	s.mx.Unlock()
}

// IsLow reports whether the spool is nearly out of wire.
func (s *Spool) IsLow() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.remaining < s.low
}
