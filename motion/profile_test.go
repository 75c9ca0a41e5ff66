package motion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-6

type seekCase struct {
	accel, decel, velocity, start, finish float64
}

var seekCases = []seekCase{
	{accel: 100, decel: 100, velocity: 50, start: 0, finish: 500},
	{accel: 200, decel: 50, velocity: 400, start: 10, finish: 60},
	{accel: 30, decel: 300, velocity: 1000, start: 0, finish: -25},
	{accel: 500, decel: 500, velocity: 10, start: -3, finish: 2000},
	{accel: 1000, decel: 250, velocity: 150, start: 7, finish: 7.5},
}

func TestSeek_EndsAtRestAtTarget(t *testing.T) {
	for _, c := range seekCases {
		p, err := NewSeek(c.accel, c.decel, c.velocity, c.start, c.finish)
		require.NoError(t, err)

		end := p.T[3].T
		assert.InDelta(t, c.finish, p.InterpolatePosition(end), eps)
		assert.InDelta(t, 0, p.InterpolateVelocity(end), eps)

		// continuity just before the end
		assert.InDelta(t, c.finish, p.InterpolatePosition(end-1e-9), 1e-3)
		assert.InDelta(t, 0, p.InterpolateVelocity(end-1e-9), 1e-3)

		assert.True(t, p.IsMoving(end/2))
		assert.False(t, p.IsMoving(end))
		assert.False(t, p.IsMoving(-1))
	}
}

func TestSeek_VelocityLimit(t *testing.T) {
	p, err := NewSeek(100, 100, 50, 0, 500)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, p.T[1].T, eps)
	assert.InDelta(t, 50, p.InterpolateVelocity(2), eps)
	assert.InDelta(t, 100, p.InterpolateAcceleration(0.1), eps)
	assert.InDelta(t, -100, p.InterpolateAcceleration(p.T[3].T-0.1), eps)
	// 12.5mm ramps at each end, 475mm cruise at 50mm/s
	assert.InDelta(t, 0.5+9.5+0.5, p.T[3].T, eps)
}

func TestSeek_Triangular(t *testing.T) {
	p, err := NewSeek(100, 100, 1000, 0, 100)
	require.NoError(t, err)

	assert.Equal(t, p.T[1].T, p.T[2].T, "no dwell")
	assert.InDelta(t, 1, p.T[1].T, eps)
	assert.InDelta(t, 100, p.InterpolateVelocity(1), eps)
	assert.InDelta(t, 2, p.T[3].T, eps)
}

func TestSeek_ZeroDistance(t *testing.T) {
	p, err := NewSeek(0, 0, 0, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.Duration())
	assert.Equal(t, 4.0, p.InterpolatePosition(10))
}

func TestSeek_InvalidMotion(t *testing.T) {
	_, err := NewSeek(0, 100, 10, 0, 10)
	assert.Equal(t, ErrInvalidMotion, err)
	_, err = NewSeek(100, 0, 10, 0, 10)
	assert.Equal(t, ErrInvalidMotion, err)
	_, err = NewSeek(100, 100, 0, 0, 10)
	assert.Equal(t, ErrInvalidMotion, err)
}

func TestTravelTime(t *testing.T) {
	for _, c := range append(seekCases, seekCase{accel: 10, decel: 10, velocity: 10, start: 3, finish: 3}) {
		p, err := NewSeek(c.accel, c.decel, c.velocity, c.start, c.finish)
		require.NoError(t, err)
		tt, err := TravelTime(c.accel, c.decel, c.velocity, c.start, c.finish)
		require.NoError(t, err)
		assert.InDelta(t, p.T[3].T, tt, eps)
	}
}

func TestLimitingVelocity(t *testing.T) {
	for _, c := range seekCases {
		fastest, err := TravelTime(c.accel, c.decel, math.MaxFloat64/1e300, c.start, c.finish)
		require.NoError(t, err)

		for _, total := range []float64{fastest, fastest * 1.5, fastest * 4} {
			v, err := LimitingVelocity(c.accel, c.decel, c.start, c.finish, total)
			require.NoError(t, err)
			assert.True(t, v > 0)

			tt, err := TravelTime(c.accel, c.decel, v, c.start, c.finish)
			require.NoError(t, err)
			assert.InDelta(t, total, tt, 1e-6*total)
		}

		_, err = LimitingVelocity(c.accel, c.decel, c.start, c.finish, fastest*0.5)
		assert.Error(t, err)
	}
}

func TestJog(t *testing.T) {
	p, err := NewJog(100, -20, 50, 1)
	require.NoError(t, err)

	assert.True(t, p.IsMoving(1000))
	assert.InDelta(t, -20, p.InterpolateVelocity(10), eps)
	// ramp of 0.2s covers 2mm
	assert.InDelta(t, 50-2-20, p.InterpolatePosition(2.2), eps)

	require.NoError(t, p.ComputeStop(40, 2.2))
	assert.InDelta(t, 2.7, p.T[3].T, eps)
	assert.InDelta(t, 28-5, p.InterpolatePosition(100), eps)
	assert.InDelta(t, 0, p.InterpolateVelocity(2.7), eps)
	assert.False(t, p.IsMoving(3))
}

func TestHardStop(t *testing.T) {
	p, err := NewSeek(100, 100, 50, 0, 500)
	require.NoError(t, err)
	x := p.InterpolatePosition(3)

	p.HardStop(3)
	assert.False(t, p.IsMoving(3))
	assert.Equal(t, x, p.InterpolatePosition(50))
	assert.Equal(t, 0.0, p.InterpolateVelocity(50))
}
