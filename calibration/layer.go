// Package calibration holds measured pin locations for each layer and the
// fixed geometry of the machine.
package calibration

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"io/ioutil"
	"sort"
	"strconv"
	"strings"

	"github.com/mastercactapus/apawinder/coord"
	"github.com/mastercactapus/apawinder/geometry"
	"github.com/pkg/errors"
)

var (
	// ErrHashMismatch is returned when a calibration body does not match
	// its stored hash.
	ErrHashMismatch = errors.New("calibration hash mismatch")
	// ErrMissingPin is returned for a pin that has no location.
	ErrMissingPin = errors.New("pin not in calibration")
)

// hashSentinel stands in for the hash while the body is hashed.
var hashSentinel = strings.Repeat("0", sha256.Size*2)

// Layer is the measured location of every pin of one layer. Locations
// are relative to Offset, which places the layer in the machine frame.
type Layer struct {
	Name      string
	Offset    coord.Point
	Locations map[string]coord.Point
	ZFront    float64
	ZBack     float64
	Hash      string
}

type xmlFile struct {
	XMLName     xml.Name       `xml:"CalibrationFile"`
	Calibration xmlCalibration `xml:"Calibration"`
}

type xmlCalibration struct {
	Layer   string   `xml:"layer,attr"`
	Hash    string   `xml:"hash,attr"`
	OffsetX string   `xml:"offsetX,attr"`
	OffsetY string   `xml:"offsetY,attr"`
	OffsetZ string   `xml:"offsetZ,attr"`
	ZFront  string   `xml:"zFront,attr"`
	ZBack   string   `xml:"zBack,attr"`
	Pins    []xmlPin `xml:"Pin"`
}

type xmlPin struct {
	Number string `xml:"number,attr"`
	X      string `xml:"x,attr"`
	Y      string `xml:"y,attr"`
	Z      string `xml:"z,attr"`
}

// New returns an empty calibration for a layer.
func New(name string) *Layer {
	return &Layer{Name: name, Locations: make(map[string]coord.Point)}
}

// Nominal builds the calibration a layer would have if every pin were
// exactly where the geometry puts it.
func Nominal(l *geometry.Layer) *Layer {
	c := New(l.Name)
	c.Offset = l.Origin()
	c.ZFront = l.FrontZ
	c.ZBack = l.BackZ
	c.Locations = l.Locations()
	return c
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func parseFloat(s, what string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", what)
	}
	return v, nil
}

// pinLess orders F pins before B pins, each by number.
func pinLess(a, b string) bool {
	fa, na, errA := geometry.ParsePinName(a)
	fb, nb, errB := geometry.ParsePinName(b)
	if errA != nil || errB != nil {
		return a < b
	}
	if fa != fb {
		return fa
	}
	return na < nb
}

// Pin returns the location of a pin in the machine frame.
func (c *Layer) Pin(name string) (coord.Point, error) {
	p, ok := c.Locations[name]
	if !ok {
		return coord.Point{}, errors.Wrap(ErrMissingPin, name)
	}
	return c.Offset.Add(p), nil
}

// Check fails with ErrMissingPin if any pin of the layer geometry is
// missing.
func (c *Layer) Check(l *geometry.Layer) error {
	if c.Name != l.Name {
		return errors.Errorf("calibration is for layer %s, not %s", c.Name, l.Name)
	}
	for _, p := range l.PinList() {
		if _, ok := c.Locations[p.Name]; !ok {
			return errors.Wrap(ErrMissingPin, p.Name)
		}
	}
	return nil
}

func (c *Layer) encode(hash string) ([]byte, error) {
	names := make([]string, 0, len(c.Locations))
	for name := range c.Locations {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return pinLess(names[i], names[j]) })

	f := xmlFile{Calibration: xmlCalibration{
		Layer:   c.Name,
		Hash:    hash,
		OffsetX: formatFloat(c.Offset.X),
		OffsetY: formatFloat(c.Offset.Y),
		OffsetZ: formatFloat(c.Offset.Z),
		ZFront:  formatFloat(c.ZFront),
		ZBack:   formatFloat(c.ZBack),
		Pins:    make([]xmlPin, len(names)),
	}}
	for i, name := range names {
		p := c.Locations[name]
		f.Calibration.Pins[i] = xmlPin{Number: name, X: formatFloat(p.X), Y: formatFloat(p.Y), Z: formatFloat(p.Z)}
	}
	data, err := xml.MarshalIndent(f, "", "\t")
	if err != nil {
		return nil, errors.Wrap(err, "encode calibration")
	}
	return append([]byte(xml.Header), append(data, '\n')...), nil
}

// Fold collapses whitespace the way the hash sees it: whitespace between
// tags is dropped and other runs become one space.
func Fold(data []byte) []byte {
	s := strings.Join(strings.Fields(string(data)), " ")
	return []byte(strings.Replace(s, "> <", "><", -1))
}

func hashBody(body []byte) string {
	sum := sha256.Sum256(Fold(body))
	return hex.EncodeToString(sum[:])
}

// ComputeHash returns the hash of the calibration's canonical body.
func (c *Layer) ComputeHash() (string, error) {
	body, err := c.encode(hashSentinel)
	if err != nil {
		return "", err
	}
	return hashBody(body), nil
}

// Marshal serializes the calibration, updating Hash.
func (c *Layer) Marshal() ([]byte, error) {
	body, err := c.encode(hashSentinel)
	if err != nil {
		return nil, err
	}
	c.Hash = hashBody(body)
	return bytes.Replace(body, []byte(`hash="`+hashSentinel+`"`), []byte(`hash="`+c.Hash+`"`), 1), nil
}

// Unmarshal parses a calibration and verifies its hash.
func Unmarshal(data []byte) (*Layer, error) {
	var f xmlFile
	if err := xml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse calibration")
	}
	x := f.Calibration
	c := New(x.Layer)
	c.Hash = x.Hash

	var err error
	floats := []struct {
		s   string
		v   *float64
		tag string
	}{
		{x.OffsetX, &c.Offset.X, "offsetX"},
		{x.OffsetY, &c.Offset.Y, "offsetY"},
		{x.OffsetZ, &c.Offset.Z, "offsetZ"},
		{x.ZFront, &c.ZFront, "zFront"},
		{x.ZBack, &c.ZBack, "zBack"},
	}
	for _, fl := range floats {
		if *fl.v, err = parseFloat(fl.s, fl.tag); err != nil {
			return nil, err
		}
	}
	for _, p := range x.Pins {
		if _, _, err = geometry.ParsePinName(p.Number); err != nil {
			return nil, err
		}
		var loc coord.Point
		if loc.X, err = parseFloat(p.X, p.Number+" x"); err != nil {
			return nil, err
		}
		if loc.Y, err = parseFloat(p.Y, p.Number+" y"); err != nil {
			return nil, err
		}
		if loc.Z, err = parseFloat(p.Z, p.Number+" z"); err != nil {
			return nil, err
		}
		c.Locations[p.Number] = loc
	}

	hash, err := c.ComputeHash()
	if err != nil {
		return nil, err
	}
	if hash != x.Hash {
		return nil, errors.Wrapf(ErrHashMismatch, "layer %s: stored %s, computed %s", x.Layer, x.Hash, hash)
	}
	return c, nil
}

// Load reads and verifies a calibration file.
func Load(path string) (*Layer, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read calibration")
	}
	return Unmarshal(data)
}

// Save writes the calibration to path with a fresh hash.
func (c *Layer) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	return errors.Wrap(ioutil.WriteFile(path, data, 0644), "write calibration")
}
