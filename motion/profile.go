// Package motion models single axis moves as closed-form trapezoidal
// velocity profiles.
package motion

import (
	"math"

	"github.com/pkg/errors"
)

// ErrInvalidMotion is returned when a move of nonzero distance is requested
// without a usable acceleration, deceleration or velocity.
var ErrInvalidMotion = errors.New("invalid motion: zero acceleration or velocity term")

// Point is a knot of a profile. Between two consecutive points the
// acceleration A of the earlier point is constant.
type Point struct {
	T, A, V, X float64
}

// Profile is a four point trapezoidal motion curve.
//
// T[0] starts acceleration, T[1] starts cruise, T[2] starts deceleration and
// T[3] is the end of motion.
type Profile struct {
	Accel, Decel, Velocity float64
	Start, Finish          float64

	T [4]Point
}

// NewSeek builds the profile of a move from start to finish that begins at
// rest at time 0 and ends at rest. accel and decel are magnitudes.
func NewSeek(accel, decel, velocity, start, finish float64) (*Profile, error) {
	p := &Profile{
		Accel:    math.Abs(accel),
		Decel:    math.Abs(decel),
		Velocity: math.Abs(velocity),
		Start:    start,
		Finish:   finish,
	}
	if err := p.build(0); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Profile) build(t0 float64) error {
	d := math.Abs(p.Finish - p.Start)
	if d == 0 {
		p.collapse(t0, p.Start)
		return nil
	}
	if p.Accel == 0 || p.Decel == 0 || p.Velocity == 0 {
		return ErrInvalidMotion
	}

	dir := 1.0
	if p.Finish < p.Start {
		dir = -1
	}
	aUp := p.Accel
	aDown := p.Decel
	v := p.Velocity

	t1 := v / aUp
	t3 := v / aDown
	t2 := (d - 0.5*aUp*t1*t1 - 0.5*aDown*t3*t3) / v
	if t2 <= 0 {
		// triangular: full velocity is never reached
		t2 = 0
		t3 = math.Sqrt(2 * d / (aDown*aDown/aUp + aDown))
		t1 = aDown * t3 / aUp
		v = aUp * t1
	}

	x1 := p.Start + dir*0.5*aUp*t1*t1
	x2 := x1 + dir*v*t2

	p.T[0] = Point{T: t0, A: dir * aUp, V: 0, X: p.Start}
	p.T[1] = Point{T: t0 + t1, A: 0, V: dir * v, X: x1}
	p.T[2] = Point{T: t0 + t1 + t2, A: -dir * aDown, V: dir * v, X: x2}
	p.T[3] = Point{T: t0 + t1 + t2 + t3, A: 0, V: 0, X: p.Finish}
	if t2 == 0 {
		p.T[1].A = -dir * aDown
	}
	return nil
}

func (p *Profile) collapse(t, x float64) {
	for i := range p.T {
		p.T[i] = Point{T: t, X: x}
	}
	p.Start, p.Finish = x, x
}

// NewJog builds a velocity move that starts at rest from start at time t0
// and keeps running at velocity (signed) until ComputeStop is called.
func NewJog(accel, velocity, start, t0 float64) (*Profile, error) {
	p := &Profile{Accel: math.Abs(accel), Velocity: math.Abs(velocity), Start: start}
	if velocity == 0 {
		p.collapse(t0, start)
		return p, nil
	}
	if accel == 0 {
		return nil, ErrInvalidMotion
	}
	dir := 1.0
	if velocity < 0 {
		dir = -1
	}
	t1 := p.Velocity / p.Accel
	p.T[0] = Point{T: t0, A: dir * p.Accel, X: start}
	p.T[1] = Point{T: t0 + t1, V: velocity, X: start + dir*0.5*p.Accel*t1*t1}
	p.T[2] = Point{T: math.Inf(1), V: velocity, X: math.Inf(int(dir))}
	p.T[3] = p.T[2]
	p.T[3].V = 0
	p.Finish = math.Inf(int(dir))
	return p, nil
}

// segment returns the index of the point whose segment covers t.
func (p *Profile) segment(t float64) int {
	for i := 2; i >= 0; i-- {
		if t >= p.T[i].T {
			return i
		}
	}
	return 0
}

func (p *Profile) state(t float64) (a, v, x float64) {
	if t >= p.T[3].T {
		return p.T[3].A, p.T[3].V, p.T[3].X
	}
	if t < p.T[0].T {
		return 0, 0, p.T[0].X
	}
	k := p.T[p.segment(t)]
	dt := t - k.T
	return k.A, k.V + k.A*dt, k.X + k.V*dt + 0.5*k.A*dt*dt
}

// InterpolatePosition returns the position at time t.
func (p *Profile) InterpolatePosition(t float64) float64 {
	_, _, x := p.state(t)
	return x
}

// InterpolateVelocity returns the velocity at time t.
func (p *Profile) InterpolateVelocity(t float64) float64 {
	_, v, _ := p.state(t)
	return v
}

// InterpolateAcceleration returns the acceleration at time t.
func (p *Profile) InterpolateAcceleration(t float64) float64 {
	a, _, _ := p.state(t)
	return a
}

// IsMoving reports whether t falls inside the motion.
func (p *Profile) IsMoving(t float64) bool {
	return t >= p.T[0].T && t < p.T[3].T
}

// Duration is the time from the first to the last point.
func (p *Profile) Duration() float64 {
	return p.T[3].T - p.T[0].T
}

// ComputeStop replaces the remainder of the profile, starting at time t,
// with a deceleration to rest at rate decel.
func (p *Profile) ComputeStop(decel, t float64) error {
	_, v, x := p.state(t)
	if v == 0 {
		p.HardStop(t)
		return nil
	}
	decel = math.Abs(decel)
	if decel == 0 {
		return ErrInvalidMotion
	}
	dir := 1.0
	if v < 0 {
		dir = -1
	}
	dt := math.Abs(v) / decel
	k := Point{T: t, A: -dir * decel, V: v, X: x}
	p.Decel = decel
	p.T[0], p.T[1], p.T[2] = k, k, k
	p.T[3] = Point{T: t + dt, X: x + v*dt - dir*0.5*decel*dt*dt}
	p.Start = x
	p.Finish = p.T[3].X
	return nil
}

// HardStop collapses the profile to the position held at time t.
func (p *Profile) HardStop(t float64) {
	p.collapse(t, p.InterpolatePosition(t))
}

// TravelTime returns how long a seek from x0 to x1 takes.
func TravelTime(accel, decel, velocity, x0, x1 float64) (float64, error) {
	p, err := NewSeek(accel, decel, velocity, x0, x1)
	if err != nil {
		return 0, err
	}
	return p.Duration(), nil
}

// LimitingVelocity returns the velocity that makes a seek from x0 to x1
// take exactly total seconds. It fails if total is shorter than the
// fastest possible move.
func LimitingVelocity(accel, decel, x0, x1, total float64) (float64, error) {
	d := math.Abs(x1 - x0)
	if d == 0 {
		return 0, nil
	}
	accel, decel = math.Abs(accel), math.Abs(decel)
	if accel == 0 || decel == 0 {
		return 0, ErrInvalidMotion
	}

	// total = k*v + d/v, with k the combined ramp time factor
	k := 1/(2*accel) + 1/(2*decel)
	disc := total*total - 4*k*d
	if disc < 0 {
		if disc > -1e-9 {
			disc = 0
		} else {
			return 0, errors.Errorf("travel time %g is below the minimum %g", total, 2*math.Sqrt(k*d))
		}
	}
	return 2 * d / (total + math.Sqrt(disc)), nil
}
