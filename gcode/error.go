package gcode

import "fmt"

// Error is a malformed or unsupported recipe line.
type Error struct {
	// Line is the recipe line index, or the N number when known.
	Line  int
	Text  string
	Token string
	// Family is the word letter or function the token belongs to, such as
	// "F" or "G103".
	Family string
	Msg    string
}

func (e *Error) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("line %d: %s: %q", e.Line, e.Msg, e.Text)
	}
	return fmt.Sprintf("line %d: %s %s: %s: %q", e.Line, e.Family, e.Token, e.Msg, e.Text)
}
