package plc

import "fmt"

// MoveType is the value of the MOVE_TYPE tag.
type MoveType int

const (
	MoveIdle MoveType = iota
	MoveJogXY
	MoveSeekXY
	MoveJogZ
	MoveSeekZ
	MoveLatch
	MoveHomeLatch
	MoveLatchUnlock
	MoveReset
)

func (m MoveType) String() string {
	switch m {
	case MoveIdle:
		return "IDLE"
	case MoveJogXY:
		return "JOG_XY"
	case MoveSeekXY:
		return "SEEK_XY"
	case MoveJogZ:
		return "JOG_Z"
	case MoveSeekZ:
		return "SEEK_Z"
	case MoveLatch:
		return "LATCH"
	case MoveHomeLatch:
		return "HOME_LATCH"
	case MoveLatchUnlock:
		return "LATCH_UNLOCK"
	case MoveReset:
		return "RESET"
	}
	return fmt.Sprintf("MoveType(%d)", int(m))
}

// State is the value of the STATE tag, the PLC side of the move state
// machine.
type State int

const (
	StateInit State = iota
	StateReady
	StateXYJog
	StateXYSeek
	StateZJog
	StateZSeek
	StateLatching
	StateLatchHoming
	StateLatchRelease
	StateUnservo
	StateError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateReady:
		return "READY"
	case StateXYJog:
		return "XY_JOG"
	case StateXYSeek:
		return "XY_SEEK"
	case StateZJog:
		return "Z_JOG"
	case StateZSeek:
		return "Z_SEEK"
	case StateLatching:
		return "LATCHING"
	case StateLatchHoming:
		return "LATCH_HOMING"
	case StateLatchRelease:
		return "LATCH_RELEASE"
	case StateUnservo:
		return "UNSERVO"
	case StateError:
		return "ERROR"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Tag names shared by the machine and the simulator.
const (
	TagMoveType  = "MOVE_TYPE"
	TagState     = "STATE"
	TagErrorCode = "ERROR_CODE"

	TagXYSpeed        = "XY_SPEED"
	TagXYAcceleration = "XY_ACCELERATION"
	TagXYDeceleration = "XY_DECELERATION"

	TagXYMaxVelocity     = "XY_MAX_VELOCITY"
	TagXYMaxAcceleration = "XY_MAX_ACCELERATION"
	TagXYMaxDeceleration = "XY_MAX_DECELERATION"
	TagZAcceleration     = "Z_ACCELERATION"
	TagZDeceleration     = "Z_DECELERATION"

	TagSwitches = "Machine_SW_Stat"

	TagCamTrigger        = "Cam_F_Trigger"
	TagCamEnable         = "Cam_F_En"
	TagCamPosTriggers    = "EN_POS_TRIGGERS"
	TagCamXDelta         = "X_DELTA"
	TagCamYDelta         = "Y_DELTA"
	TagCamReadFIFO       = "READ_FIFOS"
	CameraFIFOFieldCount = 6
)

// Per-axis tag suffixes.
const (
	AxisPosition     = "_POSITION"
	AxisSpeed        = "_SPEED"
	AxisDir          = "_DIR"
	AxisActualPos    = "_Axis.ActualPosition"
	AxisActualVel    = "_Axis.ActualVelocity"
	AxisCommandAccel = "_Axis.CommandAcceleration"
	AxisMoving       = "_Axis.CoordinatedMotionStatus"
	AxisFault        = "_Axis.ModuleFault"
)

// AxisTag returns the tag name for suffix on the named axis.
func AxisTag(axis, suffix string) string { return axis + suffix }

// CameraFIFOTag returns the name of FIFO_Data[i].
func CameraFIFOTag(i int) string { return fmt.Sprintf("FIFO_Data[%d]", i) }

// Switch is a bit position within the Machine_SW_Stat word.
type Switch uint

const (
	SwitchEStop Switch = iota
	SwitchPark
	SwitchXPlusEOT
	SwitchXMinusEOT
	SwitchYPlusEOT
	SwitchYMinusEOT
	SwitchZPlusEOT
	SwitchZMinusEOT
	SwitchZRetracted
	SwitchZExtended
	SwitchZStageLatched
	SwitchZFixedLatched
	SwitchZStagePresent
	SwitchZFixedPresent
	SwitchLatchHomed
	SwitchLatchActuatorTop
	SwitchLatchActuatorMid

	SwitchCount int = iota
)

var switchNames = [...]string{
	"ESTOP", "PARK",
	"X_EOT_PLUS", "X_EOT_MINUS", "Y_EOT_PLUS", "Y_EOT_MINUS", "Z_EOT_PLUS", "Z_EOT_MINUS",
	"Z_RETRACTED", "Z_EXTENDED", "Z_STAGE_LATCHED", "Z_FIXED_LATCHED",
	"Z_STAGE_PRESENT", "Z_FIXED_PRESENT", "LATCH_HOMED",
	"LATCH_ACTUATOR_TOP", "LATCH_ACTUATOR_MID",
}

func (s Switch) String() string {
	if int(s) < len(switchNames) {
		return switchNames[s]
	}
	return fmt.Sprintf("Switch(%d)", uint(s))
}

// Mask returns the bit for s.
func (s Switch) Mask() uint32 { return 1 << s }
