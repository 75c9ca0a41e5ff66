// Package link carries PLC tag requests over a line oriented protocol.
//
// Each request is a single line and is answered by a single line:
//
//	hello                 -> ok
//	read NAME [NAME...]   -> ok VALUE [VALUE...]
//	write NAME TYPE VALUE -> ok
//
// Failures are answered with "error: <message>".
package link

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/mastercactapus/apawinder/plc"
	"github.com/pkg/errors"
)

// ErrClosed is returned for requests on a closed Conn.
var ErrClosed = errors.New("link closed")

// RemoteError is an "error:" reply from the far end.
type RemoteError string

func (e RemoteError) Error() string { return "remote: " + string(e) }

// Conn is a client for the tag protocol over an io.ReadWriter.
type Conn struct {
	rw   io.ReadWriter
	scan *bufio.Scanner

	mx     sync.Mutex
	closed bool
}

var _ plc.Driver = &Conn{}

// NewConn creates a new Conn using the provided ReadWriter for data.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{
		rw:   rw,
		scan: bufio.NewScanner(rw),
	}
}

// Close will close the underlying ReadWriter, if it implements io.Closer.
func (c *Conn) Close() error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *Conn) request(line string) ([]string, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	_, err := io.WriteString(c.rw, line+"\n")
	if err != nil {
		return nil, errors.Wrap(err, "send")
	}
	if !c.scan.Scan() {
		err = c.scan.Err()
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.Wrap(err, "receive")
	}
	resp := strings.TrimSpace(c.scan.Text())
	if strings.HasPrefix(resp, "error:") {
		return nil, RemoteError(strings.TrimSpace(strings.TrimPrefix(resp, "error:")))
	}
	fields := strings.Fields(resp)
	if len(fields) == 0 || fields[0] != "ok" {
		return nil, errors.Errorf("unexpected reply %q", resp)
	}
	return fields[1:], nil
}

// Initialize checks that the far end answers.
func (c *Conn) Initialize() error {
	_, err := c.request("hello")
	return err
}

// Read returns the current values of names.
func (c *Conn) Read(names []string) ([]float64, error) {
	if len(names) == 0 {
		return nil, nil
	}
	fields, err := c.request("read " + strings.Join(names, " "))
	if err != nil {
		return nil, err
	}
	if len(fields) != len(names) {
		return nil, errors.Errorf("read %d tags, got %d values", len(names), len(fields))
	}
	res := make([]float64, len(fields))
	for i, f := range fields {
		res[i], err = strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "value for %s", names[i])
		}
	}
	return res, nil
}

// Write sets a single tag.
func (c *Conn) Write(name string, t plc.Type, value float64) error {
	_, err := c.request("write " + name + " " + t.String() + " " + formatValue(value))
	return err
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
