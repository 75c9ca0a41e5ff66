package control

// Status is a snapshot of the winder for operator interfaces.
type Status struct {
	Mode      Mode      `json:"mode"`
	StopState StopState `json:"stopState"`

	Functional bool     `json:"functional"`
	PLCState   string   `json:"plcState"`
	ErrorCode  int      `json:"errorCode,omitempty"`
	Switches   []string `json:"switches"`

	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`

	Head      string `json:"head"`
	HeadState string `json:"headState"`

	Layer string  `json:"layer,omitempty"`
	Line  int     `json:"line"`
	Lines int     `json:"lines"`
	Spool float64 `json:"spool"`

	Error string `json:"error,omitempty"`
}

// Status returns the current state.
func (c *Control) Status() Status {
	c.mx.Lock()
	defer c.mx.Unlock()

	m := c.m
	s := Status{
		Mode:       c.mode,
		StopState:  c.stop,
		Functional: m.IsFunctional(),
		PLCState:   m.Logic.State().String(),
		ErrorCode:  m.Logic.ErrorCode(),
		X:          m.X.Position(),
		Y:          m.Y.Position(),
		Z:          m.Z.Position(),
		Head:       m.Head.Position().String(),
		HeadState:  m.Head.State().String(),
		Line:       c.exec.Line(),
		Lines:      c.exec.Lines(),
		Spool:      m.Spool.Remaining(),
		Switches:   []string{},
	}
	for _, sw := range m.Sensors.Active() {
		s.Switches = append(s.Switches, sw.String())
	}
	if c.Layer != nil {
		s.Layer = c.Layer.Name
	}
	if c.lastErr != nil {
		s.Error = c.lastErr.Error()
	}
	return s
}
