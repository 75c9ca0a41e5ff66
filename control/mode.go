package control

import "fmt"

// Mode is the top level state of the winder.
type Mode int

const (
	// ModeHardware waits for the PLC to be reachable and fault free.
	ModeHardware Mode = iota
	ModeStop
	ModeWind
	ModeManual
	ModeCalibrate
)

func (m Mode) String() string {
	switch m {
	case ModeHardware:
		return "HARDWARE"
	case ModeStop:
		return "STOP"
	case ModeWind:
		return "WIND"
	case ModeManual:
		return "MANUAL"
	case ModeCalibrate:
		return "CALIBRATE"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// StopState is the sub-state of ModeStop.
type StopState int

const (
	StopIdle StopState = iota
	// StopEStop holds until the E-stop is released and acknowledged.
	StopEStop
	// StopPark holds while the park input is set.
	StopPark
	// StopFault holds after a PLC error or travel limit until acknowledged.
	StopFault
)

func (s StopState) String() string {
	switch s {
	case StopIdle:
		return "IDLE"
	case StopEStop:
		return "ESTOP"
	case StopPark:
		return "PARK"
	case StopFault:
		return "FAULT"
	}
	return fmt.Sprintf("StopState(%d)", int(s))
}

func (s StopState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
