package mapping

import "fmt"

// Position is a dead-reckoned displacement relative to the start of its
// session, labelled with the field magnitude measured there.
type Position struct {
	X                 float64 `json:"x"`
	Y                 float64 `json:"y"`
	Z                 float64 `json:"z"`
	Timestamp         int64   `json:"timestamp"`
	SessionName       string  `json:"session_name"`
	MagneticMagnitude float64 `json:"magnetic_magnitude"`
}

// Path is the ordered sequence of positions reconstructed for one session.
type Path struct {
	SessionName string     `json:"session_name"`
	Positions   []Position `json:"positions"`
}

// Reconstruct integrates the acceleration of a session twice to recover its
// path. Each step uses semi-implicit Euler: velocity is updated first and the
// new velocity moves the position.
//
//	dt = (tᵢ - tᵢ₋₁) / 1000
//	v += aᵢ·dt
//	p += v·dt
//
// The first measurement only seeds the state, so N measurements produce N-1
// positions in input order. dt is not clamped: duplicate timestamps give a
// zero step and out-of-order ones a negative step. Non-finite accelerations
// propagate into every following position.
func Reconstruct(s Series) ([]Position, error) {
	if s.Len() == 0 {
		return nil, ErrEmptySeries
	}

	var vx, vy, vz float64
	var px, py, pz float64
	last := s.At(0).Timestamp

	out := make([]Position, 0, s.Len()-1)
	for i := 1; i < s.Len(); i++ {
		m := s.At(i)
		dt := float64(m.Timestamp-last) / 1000.0

		vx += m.AccelerationX * dt
		vy += m.AccelerationY * dt
		vz += m.AccelerationZ * dt

		px += vx * dt
		py += vy * dt
		pz += vz * dt

		out = append(out, Position{
			X:                 px,
			Y:                 py,
			Z:                 pz,
			Timestamp:         m.Timestamp,
			SessionName:       m.SessionName,
			MagneticMagnitude: m.MagneticMagnitude,
		})
		last = m.Timestamp
	}
	return out, nil
}

// ReconstructPath is Reconstruct wrapped into a Path.
func ReconstructPath(s Series) (Path, error) {
	positions, err := Reconstruct(s)
	if err != nil {
		return Path{}, fmt.Errorf("session %q: %w", s.SessionName(), err)
	}
	return Path{SessionName: s.SessionName(), Positions: positions}, nil
}
