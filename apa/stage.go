package apa

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Stage is the progress of an APA through winding.
type Stage int

const (
	Uninitialized Stage = iota
	XFirstHalf
	XSecondHalf
	VFirstHalf
	VSecondHalf
	UFirstHalf
	USecondHalf
	GFirstHalf
	GSecondHalf
	SignOff
	Complete
)

var stageNames = [...]string{
	"UNINITIALIZED",
	"X_FIRST_HALF",
	"X_SECOND_HALF",
	"V_FIRST_HALF",
	"V_SECOND_HALF",
	"U_FIRST_HALF",
	"U_SECOND_HALF",
	"G_FIRST_HALF",
	"G_SECOND_HALF",
	"SIGN_OFF",
	"COMPLETE",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// ParseStage is the inverse of Stage.String.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if strings.EqualFold(n, name) {
			return Stage(i), nil
		}
	}
	return 0, errors.Errorf("unknown stage %q", name)
}

func (s Stage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Stage) UnmarshalText(data []byte) error {
	v, err := ParseStage(string(data))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Layer is the layer wound during the stage, or "" for stages without
// winding.
func (s Stage) Layer() string {
	switch s {
	case XFirstHalf, XSecondHalf:
		return "X"
	case VFirstHalf, VSecondHalf:
		return "V"
	case UFirstHalf, USecondHalf:
		return "U"
	case GFirstHalf, GSecondHalf:
		return "G"
	}
	return ""
}

// Half is 1 or 2 for winding stages and 0 otherwise.
func (s Stage) Half() int {
	if s.Layer() == "" {
		return 0
	}
	return 2 - int(s)%2
}

// Next is the stage that follows s.
func (s Stage) Next() Stage {
	if s >= Complete {
		return Complete
	}
	return s + 1
}
