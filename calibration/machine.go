package calibration

import (
	"encoding/xml"
	"io/ioutil"
	"os"

	"github.com/mastercactapus/apawinder/coord"
	"github.com/pkg/errors"
)

// Machine holds the fixed geometry and limits of the winder.
type Machine struct {
	XMLName xml.Name `xml:"MachineCalibration"`

	// absolute travel limits
	LimitLeft   float64 `xml:"limitLeft"`
	LimitTop    float64 `xml:"limitTop"`
	LimitRight  float64 `xml:"limitRight"`
	LimitBottom float64 `xml:"limitBottom"`
	ZLimitFront float64 `xml:"zLimitFront"`
	ZLimitRear  float64 `xml:"zLimitRear"`

	// edges of the area where the head may pass the APA
	TransferLeft   float64 `xml:"transferLeft"`
	TransferTop    float64 `xml:"transferTop"`
	TransferRight  float64 `xml:"transferRight"`
	TransferBottom float64 `xml:"transferBottom"`

	ZFront float64 `xml:"zFront"`
	ZBack  float64 `xml:"zBack"`

	HeadArmLength float64 `xml:"headArmLength"`
	PinDiameter   float64 `xml:"pinDiameter"`

	MaxVelocity     float64 `xml:"maxVelocity"`
	MaxSlowVelocity float64 `xml:"maxSlowVelocity"`
	MaxAcceleration float64 `xml:"maxAcceleration"`
	MaxDeceleration float64 `xml:"maxDeceleration"`
	ZMaxVelocity    float64 `xml:"zMaxVelocity"`
	ZAcceleration   float64 `xml:"zAcceleration"`
	ZDeceleration   float64 `xml:"zDeceleration"`

	// camera mounting relative to the head, and image scale
	CameraOffsetX float64 `xml:"cameraOffsetX"`
	CameraOffsetY float64 `xml:"cameraOffsetY"`
	PixelsPerMM   float64 `xml:"pixelsPerMM"`
}

// DefaultMachine is the production winder.
func DefaultMachine() *Machine {
	m := &Machine{}
	m.setDefaults()
	return m
}

func setDefault(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}

func (m *Machine) setDefaults() {
	// left and bottom limits are legitimately 0
	setDefault(&m.LimitTop, 2800)
	setDefault(&m.LimitRight, 7200)
	setDefault(&m.ZLimitRear, 435)

	setDefault(&m.TransferLeft, 500)
	setDefault(&m.TransferTop, 2600)
	setDefault(&m.TransferRight, 6860)
	setDefault(&m.TransferBottom, 60)

	setDefault(&m.ZFront, 100)
	setDefault(&m.ZBack, 318)

	setDefault(&m.HeadArmLength, 125)
	setDefault(&m.PinDiameter, 2.43)

	setDefault(&m.MaxVelocity, 1000)
	setDefault(&m.MaxSlowVelocity, 100)
	setDefault(&m.MaxAcceleration, 2000)
	setDefault(&m.MaxDeceleration, 2000)
	setDefault(&m.ZMaxVelocity, 400)
	setDefault(&m.ZAcceleration, 1000)
	setDefault(&m.ZDeceleration, 1000)

	setDefault(&m.PixelsPerMM, 18)
}

// TransferBox is the transfer window.
func (m *Machine) TransferBox() coord.Box {
	return coord.Box{Left: m.TransferLeft, Top: m.TransferTop, Right: m.TransferRight, Bottom: m.TransferBottom}
}

// LimitBox is the soft travel limit in XY.
func (m *Machine) LimitBox() coord.Box {
	return coord.Box{Left: m.LimitLeft, Top: m.LimitTop, Right: m.LimitRight, Bottom: m.LimitBottom}
}

// InLimits reports whether p is inside the soft limits, Z included.
func (m *Machine) InLimits(p coord.Point) bool {
	return m.LimitBox().Contains(p) && p.Z >= m.ZLimitFront && p.Z <= m.ZLimitRear
}

// LoadMachine reads a machine calibration. A missing file yields the
// defaults; absent fields take their default value.
func LoadMachine(path string) (*Machine, error) {
	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultMachine(), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read machine calibration")
	}
	var m Machine
	if err = xml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "parse machine calibration")
	}
	m.setDefaults()
	return &m, nil
}

// Save writes the calibration to path.
func (m *Machine) Save(path string) error {
	data, err := xml.MarshalIndent(m, "", "\t")
	if err != nil {
		return errors.Wrap(err, "encode machine calibration")
	}
	return errors.Wrap(ioutil.WriteFile(path, append(data, '\n'), 0644), "write machine calibration")
}
