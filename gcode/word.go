// Package gcode tokenizes winder recipe lines into steps.
//
// A line is a sequence of whitespace separated words. Each word is a
// letter followed by its argument: X, Y and Z set a target, F sets the
// velocity, N the line number, M a machine code and G a machine specific
// function. P words following a G word are that function's parameters
// and keep their text, so `G103 PF800 PF801 PXY` is valid. Text in
// parentheses and everything after ';' is a comment.
package gcode

import (
	"strconv"
	"strings"
)

// Word is one token of a line.
type Word struct {
	W   byte
	Arg string
}

// IsAxis reports whether w sets a target coordinate.
func (w Word) IsAxis() bool {
	switch w.W {
	case 'X', 'Y', 'Z':
		return true
	}
	return false
}

func (w Word) String() string { return string(w.W) + w.Arg }

// Float parses the argument as a number.
func (w Word) Float() (float64, error) {
	return strconv.ParseFloat(w.Arg, 64)
}

// Int parses the argument as an integer.
func (w Word) Int() (int, error) {
	return strconv.Atoi(w.Arg)
}

// FormatFloat writes f with at most 3 decimals and no trailing zeros.
func FormatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', 3, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
	}
	s = strings.TrimRight(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}
