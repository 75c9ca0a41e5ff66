package machine

import "github.com/mastercactapus/apawinder/plc"

// Sensors decodes the packed switch word.
type Sensors struct {
	word *plc.Tag
}

// NewSensors registers Machine_SW_Stat. A non-functional PLC reads as
// E-stop asserted.
func NewSensors(reg *plc.Registry) *Sensors {
	return &Sensors{
		word: reg.MustRegister(plc.TagSwitches, plc.DInt, plc.Read|plc.Polled, float64(plc.SwitchEStop.Mask())),
	}
}

// Word returns the raw switch word.
func (s *Sensors) Word() uint32 { return uint32(int32(s.word.Get())) }

// Get returns the state of one switch.
func (s *Sensors) Get(sw plc.Switch) bool { return s.Word()&sw.Mask() != 0 }

func (s *Sensors) EStop() bool { return s.Get(plc.SwitchEStop) }
func (s *Sensors) Park() bool  { return s.Get(plc.SwitchPark) }

// EndOfTravel reports whether any travel limit switch is tripped.
func (s *Sensors) EndOfTravel() bool {
	w := s.Word()
	for sw := plc.SwitchXPlusEOT; sw <= plc.SwitchZMinusEOT; sw++ {
		if w&sw.Mask() != 0 {
			return true
		}
	}
	return false
}

// Active returns the switches that are on.
func (s *Sensors) Active() []plc.Switch {
	var res []plc.Switch
	w := s.Word()
	for sw := plc.Switch(0); int(sw) < plc.SwitchCount; sw++ {
		if w&sw.Mask() != 0 {
			res = append(res, sw)
		}
	}
	return res
}
