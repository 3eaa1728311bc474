package mapping

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PathStats summarises a reconstructed path.
type PathStats struct {
	SessionName   string  `json:"session_name"`
	Positions     int     `json:"positions"`
	DurationMs    int64   `json:"duration_ms"`
	TotalDistance float64 `json:"total_distance_m"`
	// ClosureError is the straight-line gap between the first and last
	// position. A walk that returns to its start should be near zero.
	ClosureError float64 `json:"closure_error_m"`
	MeanSpeed    float64 `json:"mean_speed_mps"`
	MinZ         float64 `json:"min_z_m"`
	MaxZ         float64 `json:"max_z_m"`
	MagneticMin  float64 `json:"magnetic_min"`
	MagneticMax  float64 `json:"magnetic_max"`
	MagneticMean float64 `json:"magnetic_mean"`
}

// Summarize computes PathStats for p. An empty path yields zero stats.
func Summarize(p Path) PathStats {
	st := PathStats{SessionName: p.SessionName, Positions: len(p.Positions)}
	if len(p.Positions) == 0 {
		return st
	}

	first, last := p.Positions[0], p.Positions[len(p.Positions)-1]
	zs := make([]float64, len(p.Positions))
	mags := make([]float64, len(p.Positions))
	for i, pos := range p.Positions {
		zs[i] = pos.Z
		mags[i] = pos.MagneticMagnitude
		if i > 0 {
			st.TotalDistance += floats.Distance(vec(p.Positions[i-1]), vec(pos), 2)
		}
	}

	st.DurationMs = last.Timestamp - first.Timestamp
	st.ClosureError = floats.Distance(vec(first), vec(last), 2)
	if st.DurationMs > 0 {
		st.MeanSpeed = st.TotalDistance / (float64(st.DurationMs) / 1000.0)
	}
	st.MinZ = floats.Min(zs)
	st.MaxZ = floats.Max(zs)
	st.MagneticMin = floats.Min(mags)
	st.MagneticMax = floats.Max(mags)
	st.MagneticMean = stat.Mean(mags, nil)
	return st
}

// CloseLoop removes the closure error linearly along the path: the i'th of n
// positions is shifted by i/(n-1) of (last - first), so the first position is
// kept and the last lands on it. Paths shorter than two positions are returned
// unchanged.
func CloseLoop(p Path) Path {
	out := Path{SessionName: p.SessionName, Positions: make([]Position, len(p.Positions))}
	copy(out.Positions, p.Positions)
	n := len(out.Positions)
	if n < 2 {
		return out
	}

	first, last := p.Positions[0], p.Positions[n-1]
	ex, ey, ez := last.X-first.X, last.Y-first.Y, last.Z-first.Z
	for i := range out.Positions {
		f := float64(i) / float64(n-1)
		out.Positions[i].X -= f * ex
		out.Positions[i].Y -= f * ey
		out.Positions[i].Z -= f * ez
	}
	return out
}

func vec(p Position) []float64 { return []float64{p.X, p.Y, p.Z} }
