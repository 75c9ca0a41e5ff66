package link

import (
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/mastercactapus/apawinder/plc"
	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// SerialDriver talks the tag protocol to a serial PLC bridge. The port is
// reopened by every Initialize and dropped after a transport error.
type SerialDriver struct {
	Port        string
	Baud        int
	ReadTimeout time.Duration

	log golog.Logger

	mx   sync.Mutex
	port *serial.Port
	conn *Conn
}

var _ plc.Driver = &SerialDriver{}

// NewSerialDriver returns a driver for the named port. Nothing is opened
// until Initialize.
func NewSerialDriver(port string, baud int, log golog.Logger) *SerialDriver {
	return &SerialDriver{
		Port:        port,
		Baud:        baud,
		ReadTimeout: time.Second,
		log:         log,
	}
}

// Initialize opens the port and checks that the bridge answers.
func (d *SerialDriver) Initialize() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.closeLocked()

	d.log.Infof("opening %s at %d baud", d.Port, d.Baud)
	p, err := serial.OpenPort(&serial.Config{
		Name:        d.Port,
		Baud:        d.Baud,
		ReadTimeout: d.ReadTimeout,
	})
	if err != nil {
		return errors.Wrapf(err, "open %s", d.Port)
	}
	d.port = p
	d.conn = NewConn(p)
	if err = d.conn.Initialize(); err != nil {
		d.closeLocked()
		return err
	}
	return nil
}

func (d *SerialDriver) closeLocked() {
	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			d.log.Debugf("close %s: %v", d.Port, err)
		}
	}
	d.conn = nil
	d.port = nil
}

func (d *SerialDriver) current() (*Conn, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.conn == nil {
		return nil, errors.New("serial port not open")
	}
	return d.conn, nil
}

func (d *SerialDriver) fail(err error) error {
	if _, ok := errors.Cause(err).(RemoteError); ok {
		return err
	}
	d.log.Errorf("serial link: %+v", err)
	d.mx.Lock()
	d.closeLocked()
	d.mx.Unlock()
	return err
}

// Read returns the current values of names.
func (d *SerialDriver) Read(names []string) ([]float64, error) {
	c, err := d.current()
	if err != nil {
		return nil, err
	}
	vals, err := c.Read(names)
	if err != nil {
		return nil, d.fail(err)
	}
	return vals, nil
}

// Write sets a single tag.
func (d *SerialDriver) Write(name string, t plc.Type, value float64) error {
	c, err := d.current()
	if err != nil {
		return err
	}
	if err = c.Write(name, t, value); err != nil {
		return d.fail(err)
	}
	return nil
}

// Close releases the port.
func (d *SerialDriver) Close() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.closeLocked()
	return nil
}
