// Package ingest is the boundary between sensor clients and the store. It
// owns the wire schema of a sample, decodes it strictly and rejects values
// the mapping algorithms cannot integrate.
package ingest

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/magfield.report/internal/mapping"
)

// ErrInvalidSample wraps every decoding and validation failure.
var ErrInvalidSample = errors.New("invalid sample")

// Magnetic is the magnetometer reading in µT.
type Magnetic struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Magnitude float64 `json:"magnitude"`
}

// Acceleration is linear acceleration with gravity removed, in m/s².
type Acceleration struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Orientation is device attitude in radians.
type Orientation struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
	Yaw   float64 `json:"yaw"`
}

// Location is the GPS fix as reported by the browser geolocation API, hence
// the camelCase key.
type Location struct {
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	Accuracy         *float64 `json:"accuracy,omitempty"`
	Altitude         *float64 `json:"altitude,omitempty"`
	AltitudeAccuracy *float64 `json:"altitudeAccuracy,omitempty"`
}

// Sample is one reading as posted by a client or printed by the serial
// logger. Pointer fields are required unless noted; a nil pointer means the
// key was absent.
type Sample struct {
	SessionName  string        `json:"session_name"`
	Timestamp    *int64        `json:"timestamp"` // unix ms
	Magnetic     *Magnetic     `json:"magnetic"`
	Acceleration *Acceleration `json:"acceleration"`
	Orientation  *Orientation  `json:"orientation,omitempty"` // optional
	Location     *Location     `json:"location,omitempty"`    // optional
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSample, fmt.Sprintf(format, args...))
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Validate checks the sample can be stored and integrated.
func (s Sample) Validate() error {
	if strings.TrimSpace(s.SessionName) == "" {
		return invalid("session_name is required")
	}
	if s.Timestamp == nil {
		return invalid("timestamp is required")
	}
	if *s.Timestamp < 0 {
		return invalid("timestamp %d is negative", *s.Timestamp)
	}
	if s.Acceleration == nil {
		return invalid("acceleration is required")
	}
	if a := s.Acceleration; !finite(a.X, a.Y, a.Z) {
		return invalid("acceleration must be finite")
	}
	if s.Magnetic == nil {
		return invalid("magnetic is required")
	}
	if m := s.Magnetic; !finite(m.X, m.Y, m.Z, m.Magnitude) {
		return invalid("magnetic must be finite")
	}
	if m := s.Magnetic; m.Magnitude < 0 {
		return invalid("magnetic.magnitude %g is negative", m.Magnitude)
	}
	if o := s.Orientation; o != nil && !finite(o.Pitch, o.Roll, o.Yaw) {
		return invalid("orientation must be finite")
	}
	if l := s.Location; l != nil {
		if l.Latitude < -90 || l.Latitude > 90 || !finite(l.Latitude) {
			return invalid("location.latitude %g out of range", l.Latitude)
		}
		if l.Longitude < -180 || l.Longitude > 180 || !finite(l.Longitude) {
			return invalid("location.longitude %g out of range", l.Longitude)
		}
	}
	return nil
}

// ToMeasurement converts a validated sample into the stored form.
func (s Sample) ToMeasurement() mapping.Measurement {
	m := mapping.Measurement{SessionName: strings.TrimSpace(s.SessionName)}
	if s.Timestamp != nil {
		m.Timestamp = *s.Timestamp
	}
	if a := s.Acceleration; a != nil {
		m.AccelerationX, m.AccelerationY, m.AccelerationZ = a.X, a.Y, a.Z
	}
	if mg := s.Magnetic; mg != nil {
		m.MagneticX, m.MagneticY, m.MagneticZ = mg.X, mg.Y, mg.Z
		m.MagneticMagnitude = mg.Magnitude
	}
	if o := s.Orientation; o != nil {
		m.Pitch, m.Roll, m.Yaw = o.Pitch, o.Roll, o.Yaw
	}
	if l := s.Location; l != nil {
		m.Location = &mapping.Location{
			Latitude:         l.Latitude,
			Longitude:        l.Longitude,
			Accuracy:         l.Accuracy,
			Altitude:         l.Altitude,
			AltitudeAccuracy: l.AltitudeAccuracy,
		}
	}
	return m
}
