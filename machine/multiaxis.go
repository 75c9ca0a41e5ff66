package machine

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// MultiAxis forwards commands to several axes componentwise.
type MultiAxis struct {
	axes []*Axis
}

// NewMultiAxis groups axes in order.
func NewMultiAxis(axes ...*Axis) *MultiAxis {
	return &MultiAxis{axes: axes}
}

// Axes returns the grouped axes.
func (m *MultiAxis) Axes() []*Axis { return m.axes }

func (m *MultiAxis) checkLen(n int) error {
	if n != len(m.axes) {
		return errors.Errorf("got %d values for %d axes", n, len(m.axes))
	}
	return nil
}

// SetDesiredPosition requires one position per axis.
func (m *MultiAxis) SetDesiredPosition(pos []float64) error {
	if err := m.checkLen(len(pos)); err != nil {
		return err
	}
	var err error
	for i, a := range m.axes {
		err = multierr.Append(err, a.SetDesiredPosition(pos[i]))
	}
	return err
}

// SetVelocity requires one velocity per axis.
func (m *MultiAxis) SetVelocity(v []float64) error {
	if err := m.checkLen(len(v)); err != nil {
		return err
	}
	var err error
	for i, a := range m.axes {
		err = multierr.Append(err, a.SetVelocity(v[i]))
	}
	return err
}

// Stop stops every axis.
func (m *MultiAxis) Stop() error {
	var err error
	for _, a := range m.axes {
		err = multierr.Append(err, a.Stop())
	}
	return err
}

// Position returns the position of every axis.
func (m *MultiAxis) Position() []float64 {
	res := make([]float64, len(m.axes))
	for i, a := range m.axes {
		res[i] = a.Position()
	}
	return res
}

// IsSeeking is true if any axis is moving.
func (m *MultiAxis) IsSeeking() bool {
	for _, a := range m.axes {
		if a.IsSeeking() {
			return true
		}
	}
	return false
}

// IsFunctional is true only if every axis is functional.
func (m *MultiAxis) IsFunctional() bool {
	for _, a := range m.axes {
		if !a.IsFunctional() {
			return false
		}
	}
	return true
}
