package ingest

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/magfield.report/internal/mapping"
)

func i64(v int64) *int64     { return &v }
func f64(v float64) *float64 { return &v }

func validSample() Sample {
	return Sample{
		SessionName:  "hall",
		Timestamp:    i64(1700000000000),
		Magnetic:     &Magnetic{X: 20, Y: -5, Z: 40, Magnitude: 45},
		Acceleration: &Acceleration{X: 0.1, Y: 0.2, Z: -0.05},
	}
}

func TestSample_Validate(t *testing.T) {
	require.NoError(t, validSample().Validate())

	cases := map[string]func(*Sample){
		"no session":          func(s *Sample) { s.SessionName = "  " },
		"no timestamp":        func(s *Sample) { s.Timestamp = nil },
		"negative timestamp":  func(s *Sample) { s.Timestamp = i64(-1) },
		"no acceleration":     func(s *Sample) { s.Acceleration = nil },
		"NaN acceleration":    func(s *Sample) { s.Acceleration.Y = math.NaN() },
		"no magnetic":         func(s *Sample) { s.Magnetic = nil },
		"infinite magnitude":  func(s *Sample) { s.Magnetic.Magnitude = math.Inf(1) },
		"negative magnitude":  func(s *Sample) { s.Magnetic.Magnitude = -1 },
		"NaN orientation":     func(s *Sample) { s.Orientation = &Orientation{Yaw: math.NaN()} },
		"latitude too large":  func(s *Sample) { s.Location = &Location{Latitude: 91} },
		"longitude too small": func(s *Sample) { s.Location = &Location{Longitude: -181} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := validSample()
			a, m := *s.Acceleration, *s.Magnetic
			s.Acceleration, s.Magnetic = &a, &m
			mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidSample)
		})
	}
}

func TestSample_ToMeasurement(t *testing.T) {
	s := validSample()
	s.SessionName = " hall "
	s.Orientation = &Orientation{Pitch: 0.1, Roll: 0.2, Yaw: 0.3}
	s.Location = &Location{Latitude: 51.5, Longitude: -0.1, AltitudeAccuracy: f64(3)}

	want := mapping.Measurement{
		Timestamp:         1700000000000,
		SessionName:       "hall",
		AccelerationX:     0.1,
		AccelerationY:     0.2,
		AccelerationZ:     -0.05,
		MagneticMagnitude: 45,
		MagneticX:         20,
		MagneticY:         -5,
		MagneticZ:         40,
		Pitch:             0.1,
		Roll:              0.2,
		Yaw:               0.3,
		Location:          &mapping.Location{Latitude: 51.5, Longitude: -0.1, AltitudeAccuracy: f64(3)},
	}
	if diff := cmp.Diff(want, s.ToMeasurement()); diff != "" {
		t.Errorf("measurement mismatch (-want +got):\n%s", diff)
	}
}

func TestSample_ToMeasurementWithoutOptionalParts(t *testing.T) {
	m := validSample().ToMeasurement()
	assert.Nil(t, m.Location)
	assert.Zero(t, m.Pitch)
	assert.False(t, strings.ContainsAny(m.SessionName, " \t"))
}
