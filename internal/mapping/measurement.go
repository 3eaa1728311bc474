// Package mapping turns the raw sample stream of a walked session into a
// dead-reckoned path and a sparse heatmap of magnetic-field magnitude.
//
// Everything in this package is a pure function over value types. Callers own
// persistence, transport and rendering.
package mapping

import (
	"errors"
	"sort"
)

// ErrEmptySeries is returned when a reconstruction is requested for a session
// with no measurements.
var ErrEmptySeries = errors.New("mapping: series has no measurements")

// Location carries the optional GPS fix recorded alongside a sample. It is not
// consumed by the reconstruction, which works in a session-local frame.
type Location struct {
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	Accuracy         *float64 `json:"accuracy,omitempty"`
	Altitude         *float64 `json:"altitude,omitempty"`
	AltitudeAccuracy *float64 `json:"altitude_accuracy,omitempty"`
}

// Measurement is one timestamped sample from the phone or logger.
type Measurement struct {
	ID          int64  `json:"id,omitempty"`
	BatchID     string `json:"batch_id,omitempty"`
	Timestamp   int64  `json:"timestamp"` // unix ms
	SessionName string `json:"session_name"`

	// Linear acceleration, gravity compensated, m/s².
	AccelerationX float64 `json:"acceleration_x"`
	AccelerationY float64 `json:"acceleration_y"`
	AccelerationZ float64 `json:"acceleration_z"`

	MagneticMagnitude float64 `json:"magnetic_magnitude"` // µT

	// Pass-through fields, preserved but never read by the algorithms.
	MagneticX float64   `json:"magnetic_x"`
	MagneticY float64   `json:"magnetic_y"`
	MagneticZ float64   `json:"magnetic_z"`
	Pitch     float64   `json:"orientation_pitch"`
	Roll      float64   `json:"orientation_roll"`
	Yaw       float64   `json:"orientation_yaw"`
	Location  *Location `json:"location,omitempty"`
}

// Series is the measurement stream of a single session in ascending timestamp
// order. The zero value is an empty series.
//
// A Series can only be built by NewSeries, which sorts, or by AssumeSorted,
// where the caller vouches for the order. Reconstruct never re-sorts.
type Series struct {
	name string
	ms   []Measurement
}

// NewSeries copies ms and stable-sorts the copy by timestamp, so samples that
// share a timestamp keep their arrival order. The session name is taken from
// the first measurement.
func NewSeries(ms []Measurement) Series {
	sorted := make([]Measurement, len(ms))
	copy(sorted, ms)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})
	return AssumeSorted(sorted)
}

// AssumeSorted wraps ms without copying or checking its order. Out-of-order
// input is integrated as given and produces negative time steps.
func AssumeSorted(ms []Measurement) Series {
	s := Series{ms: ms}
	if len(ms) > 0 {
		s.name = ms[0].SessionName
	}
	return s
}

// SessionName returns the session the series belongs to.
func (s Series) SessionName() string { return s.name }

// Len returns the number of measurements.
func (s Series) Len() int { return len(s.ms) }

// At returns the i'th measurement.
func (s Series) At(i int) Measurement { return s.ms[i] }

// Measurements returns a copy of the underlying measurements.
func (s Series) Measurements() []Measurement {
	out := make([]Measurement, len(s.ms))
	copy(out, s.ms)
	return out
}
