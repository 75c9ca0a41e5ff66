package gcode

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// Parser reads recipe lines one at a time.
type Parser struct {
	s    *bufio.Scanner
	line int
}

// NewParser creates a Parser reading from r.
func NewParser(r io.Reader) *Parser {
	return &Parser{s: bufio.NewScanner(r)}
}

// Line is the index of the last line read, starting at 1.
func (p *Parser) Line() int { return p.line }

// Read returns the steps of the next line. Blank and comment-only lines
// return an empty slice. At the end of input it returns io.EOF.
func (p *Parser) Read() ([]Step, error) {
	if !p.s.Scan() {
		if err := p.s.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	p.line++
	return ParseLine(p.line, p.s.Text())
}

// Parse parses a single line with no line index.
func Parse(text string) ([]Step, error) {
	return ParseLine(0, text)
}

// MustParse is like Parse but panics on error.
func MustParse(text string) []Step {
	steps, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return steps
}

// StripComments removes parenthesized and ';' comments.
func StripComments(text string) string {
	var b strings.Builder
	depth := 0
	for _, r := range text {
		switch {
		case r == ';' && depth == 0:
			return b.String()
		case r == '(':
			depth++
		case r == ')' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Words splits a line into words, dropping comments.
func Words(text string) []Word {
	fields := strings.Fields(StripComments(text))
	words := make([]Word, 0, len(fields))
	for _, f := range fields {
		words = append(words, Word{W: upper(f[0]), Arg: strings.ToUpper(f[1:])})
	}
	return words
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

// ParseLine parses one recipe line. lineNo is reported in errors unless
// the line carries its own N word.
func ParseLine(lineNo int, text string) ([]Step, error) {
	var steps []Step
	fail := func(w Word, family, msg string) error {
		return &Error{Line: lineNo, Text: text, Token: w.String(), Family: family, Msg: msg}
	}

	fn := -1
	for _, w := range Words(text) {
		if w.Arg == "" {
			return nil, fail(w, string(w.W), "missing value")
		}
		switch w.W {
		case 'X', 'Y', 'Z', 'F':
			v, err := w.Float()
			if err != nil {
				return nil, fail(w, string(w.W), "invalid number")
			}
			if w.W == 'F' {
				if v < 0 {
					return nil, fail(w, "F", "negative velocity")
				}
				steps = append(steps, SetVelocity{Value: v})
			} else {
				steps = append(steps, SetAxis{Axis: w.W, Value: v})
			}
			fn = -1
		case 'N':
			n, err := w.Int()
			if err != nil {
				return nil, fail(w, "N", "invalid line number")
			}
			steps = append(steps, SetLine{Number: n})
			lineNo = n
			fn = -1
		case 'M':
			n, err := w.Int()
			if err != nil {
				return nil, fail(w, "M", "invalid code")
			}
			steps = append(steps, MCode{Code: n})
			fn = -1
		case 'G':
			n, err := w.Int()
			if err != nil {
				return nil, fail(w, "G", "invalid code")
			}
			code := FunctionCode(n)
			if !code.Known() {
				return nil, fail(w, "G", "unknown function")
			}
			steps = append(steps, Function{Code: code})
			fn = len(steps) - 1
		case 'P':
			if fn < 0 {
				return nil, fail(w, "P", "parameter without function")
			}
			f := steps[fn].(Function)
			f.Params = append(f.Params, w.Arg)
			steps[fn] = f
		default:
			return nil, fail(w, string(w.W), "unknown word")
		}
	}

	return steps, nil
}

// ParamFloat parses parameter i of f as a number.
func (f Function) ParamFloat(i int) (float64, error) {
	if i >= len(f.Params) {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseFloat(f.Params[i], 64)
}

// ParamInt parses parameter i of f as an integer.
func (f Function) ParamInt(i int) (int, error) {
	if i >= len(f.Params) {
		return 0, strconv.ErrSyntax
	}
	return strconv.Atoi(f.Params[i])
}
