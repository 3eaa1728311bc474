package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedianFilter_RemovesSpike(t *testing.T) {
	xs := []float64{1, 1, 1, 9, 1, 1, 1}
	var ms []Measurement
	for i, x := range xs {
		m := sample("spike", int64(i)*10, x, -x, 2*x, float64(i))
		m.MagneticX = 3
		ms = append(ms, m)
	}

	got := MedianFilter(NewSeries(ms), 3)
	require.Equal(t, len(xs), got.Len())
	assert.Equal(t, "spike", got.SessionName())

	// zero padding pulls the ends down: median(0,1,1) = 1, interior spike removed
	wantX := []float64{1, 1, 1, 1, 1, 1, 1}
	for i := 0; i < got.Len(); i++ {
		m := got.At(i)
		assert.Equal(t, wantX[i], m.AccelerationX, "x[%d]", i)
		assert.Equal(t, -wantX[i], m.AccelerationY, "y[%d]", i)
		assert.Equal(t, 2*wantX[i], m.AccelerationZ, "z[%d]", i)
		assert.Equal(t, ms[i].Timestamp, m.Timestamp)
		assert.Equal(t, float64(i), m.MagneticMagnitude)
		assert.Equal(t, 3.0, m.MagneticX)
	}

	// the source series still has the spike
	assert.Equal(t, 9.0, ms[3].AccelerationX)
}

func TestMedianFilter_ZeroPaddedEdges(t *testing.T) {
	ms := []Measurement{
		sample("edge", 0, 5, 0, 0, 0),
		sample("edge", 1, 5, 0, 0, 0),
		sample("edge", 2, 5, 0, 0, 0),
		sample("edge", 3, 5, 0, 0, 0),
		sample("edge", 4, 5, 0, 0, 0),
	}
	got := MedianFilter(NewSeries(ms), 5)
	// windows at the edges: [0 0 5 5 5] -> 5, [0 5 5 5 5] -> 5
	for i := 0; i < got.Len(); i++ {
		assert.Equal(t, 5.0, got.At(i).AccelerationX)
	}

	short := MedianFilter(NewSeries(ms[:2]), 5)
	// [0 0 5 5 0] -> 0
	assert.Equal(t, 0.0, short.At(0).AccelerationX)
}

func TestMedianFilter_EvenWindowWidened(t *testing.T) {
	ms := []Measurement{
		sample("w", 0, 1, 0, 0, 0),
		sample("w", 1, 100, 0, 0, 0),
		sample("w", 2, 1, 0, 0, 0),
		sample("w", 3, 1, 0, 0, 0),
	}
	a := MedianFilter(NewSeries(ms), 2)
	b := MedianFilter(NewSeries(ms), 3)
	assert.Equal(t, a.Measurements(), b.Measurements())
}

func TestMedianFilter_NoOp(t *testing.T) {
	s := NewSeries([]Measurement{sample("n", 0, 4, 0, 0, 0)})
	assert.Equal(t, s, MedianFilter(s, 1))
	assert.Equal(t, s, MedianFilter(s, 0))
	assert.Equal(t, Series{}, MedianFilter(Series{}, 5))
}
