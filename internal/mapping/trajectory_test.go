package mapping

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(session string, ts int64, ax, ay, az, mag float64) Measurement {
	return Measurement{
		SessionName:       session,
		Timestamp:         ts,
		AccelerationX:     ax,
		AccelerationY:     ay,
		AccelerationZ:     az,
		MagneticMagnitude: mag,
	}
}

func TestReconstruct_EmptySeries(t *testing.T) {
	_, err := Reconstruct(Series{})
	if !errors.Is(err, ErrEmptySeries) {
		t.Fatalf("expected ErrEmptySeries, got %v", err)
	}

	_, err = ReconstructPath(AssumeSorted(nil))
	assert.ErrorIs(t, err, ErrEmptySeries)
}

func TestReconstruct_SingleMeasurement(t *testing.T) {
	got, err := Reconstruct(NewSeries([]Measurement{sample("A", 0, 5, 5, 5, 40)}))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReconstruct_LengthAndOrder(t *testing.T) {
	var ms []Measurement
	for i := 0; i < 25; i++ {
		ms = append(ms, sample("walk", int64(i)*20, 0.1*float64(i), -0.05, 0.01, 48+float64(i)))
	}

	got, err := Reconstruct(NewSeries(ms))
	require.NoError(t, err)
	require.Len(t, got, len(ms)-1)
	for i, p := range got {
		assert.Equal(t, ms[i+1].Timestamp, p.Timestamp)
		assert.Equal(t, ms[i+1].MagneticMagnitude, p.MagneticMagnitude)
		assert.Equal(t, "walk", p.SessionName)
		if i > 0 {
			assert.Greater(t, p.Timestamp, got[i-1].Timestamp)
		}
	}
}

func TestReconstruct_ZeroAcceleration(t *testing.T) {
	ms := []Measurement{
		sample("still", 0, 0, 0, 0, 1),
		sample("still", 7, 0, 0, 0, 2),
		sample("still", 7, 0, 0, 0, 3),
		sample("still", 5000, 0, 0, 0, 4),
		sample("still", 123456, 0, 0, 0, 5),
	}
	got, err := Reconstruct(NewSeries(ms))
	require.NoError(t, err)
	for _, p := range got {
		assert.Zero(t, p.X)
		assert.Zero(t, p.Y)
		assert.Zero(t, p.Z)
	}
}

func TestReconstruct_ConstantAccelerationOneStep(t *testing.T) {
	ms := []Measurement{
		sample("A", 0, 0, 0, 0, 0),
		sample("A", 1000, 1, 0, 0, 0),
	}
	got, err := Reconstruct(NewSeries(ms))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].X)
	assert.Equal(t, 0.0, got[0].Y)
	assert.Equal(t, 0.0, got[0].Z)
}

func TestReconstruct_EndToEndScenario(t *testing.T) {
	ms := []Measurement{
		sample("A", 0, 0, 0, 0, 0),
		sample("A", 1000, 1, 0, 0, 10),
		sample("A", 2000, 0, 1, 0, 20),
	}
	path, err := ReconstructPath(NewSeries(ms))
	require.NoError(t, err)

	// Step two: v = (1,0,0) + (0,1,0)·1 = (1,1,0); p = (1,0,0) + v·1.
	want := Path{
		SessionName: "A",
		Positions: []Position{
			{X: 1, Y: 0, Z: 0, Timestamp: 1000, SessionName: "A", MagneticMagnitude: 10},
			{X: 2, Y: 1, Z: 0, Timestamp: 2000, SessionName: "A", MagneticMagnitude: 20},
		},
	}
	if diff := cmp.Diff(want, path); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
}

func TestReconstruct_SemiImplicitOrdering(t *testing.T) {
	// 0.5 s steps with a = 2 m/s². Semi-implicit Euler uses the new velocity:
	// step 1: v = 1, p = 0.5; step 2: v = 2, p = 1.5.
	ms := []Measurement{
		sample("S", 0, 0, 0, 0, 0),
		sample("S", 500, 2, 0, 0, 0),
		sample("S", 1000, 2, 0, 0, 0),
	}
	got, err := Reconstruct(NewSeries(ms))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got[0].X, 1e-12)
	assert.InDelta(t, 1.5, got[1].X, 1e-12)
}

func TestReconstruct_DuplicateTimestampsGiveZeroStep(t *testing.T) {
	ms := []Measurement{
		sample("D", 0, 0, 0, 0, 0),
		sample("D", 1000, 1, 0, 0, 0),
		sample("D", 1000, 50, 50, 50, 0), // dt = 0, acceleration has no effect
	}
	got, err := Reconstruct(NewSeries(ms))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, got[0].X, got[1].X)
	assert.Zero(t, got[1].Y)
	assert.Zero(t, got[1].Z)
}

func TestReconstruct_UnsortedInputIntegratesNegativeSteps(t *testing.T) {
	// The order is a precondition, not a runtime check: an out-of-order
	// sample yields dt = -1 and walks the path back.
	ms := []Measurement{
		sample("U", 0, 0, 0, 0, 0),
		sample("U", 2000, 1, 0, 0, 0), // dt = 2: v = 2, p = 4
		sample("U", 1000, 1, 0, 0, 0), // dt = -1: v = 1, p = 3
	}
	got, err := Reconstruct(AssumeSorted(ms))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 4.0, got[0].X)
	assert.Equal(t, 3.0, got[1].X)
	assert.Equal(t, int64(1000), got[1].Timestamp)

	// NewSeries sorts, so the same samples produce a forward path.
	sorted, err := Reconstruct(NewSeries(ms))
	require.NoError(t, err)
	assert.Equal(t, []int64{1000, 2000}, []int64{sorted[0].Timestamp, sorted[1].Timestamp})
}

func TestReconstruct_NonFinitePropagates(t *testing.T) {
	ms := []Measurement{
		sample("N", 0, 0, 0, 0, 0),
		sample("N", 100, math.NaN(), 0, 0, 0),
		sample("N", 200, 0, math.Inf(1), 0, 0),
		sample("N", 300, 0, 0, 0, 0),
	}
	got, err := Reconstruct(NewSeries(ms))
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, p := range got {
		assert.True(t, math.IsNaN(p.X), "x should stay NaN, got %v", p.X)
	}
	assert.True(t, math.IsInf(got[1].Y, 1))
	assert.True(t, math.IsInf(got[2].Y, 1))
}

func TestReconstruct_Deterministic(t *testing.T) {
	var ms []Measurement
	for i := 0; i < 200; i++ {
		f := float64(i)
		ms = append(ms, sample("R", int64(i*37), math.Sin(f), math.Cos(f), 0.1*math.Sin(3*f), 50+math.Sin(f/7)))
	}
	s := NewSeries(ms)
	a, err := Reconstruct(s)
	require.NoError(t, err)
	b, err := Reconstruct(s)
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("repeated reconstruction differs:\n%s", diff)
	}
}

func TestNewSeries_StableSortCopies(t *testing.T) {
	ms := []Measurement{
		sample("A", 30, 0, 0, 0, 3),
		sample("A", 10, 0, 0, 0, 1),
		sample("A", 10, 0, 0, 0, 2),
	}
	s := NewSeries(ms)
	require.Equal(t, 3, s.Len())
	assert.Equal(t, "A", s.SessionName())
	assert.Equal(t, 1.0, s.At(0).MagneticMagnitude)
	assert.Equal(t, 2.0, s.At(1).MagneticMagnitude)
	assert.Equal(t, 3.0, s.At(2).MagneticMagnitude)

	// the caller's slice is untouched
	assert.Equal(t, int64(30), ms[0].Timestamp)

	// Measurements hands out a copy
	out := s.Measurements()
	out[0].MagneticMagnitude = 99
	assert.Equal(t, 1.0, s.At(0).MagneticMagnitude)
}
