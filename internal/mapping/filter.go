package mapping

import "sort"

// MedianFilter returns a copy of s with each acceleration component replaced
// by the median of a window centred on it. The window is forced odd and the
// signal is zero-padded at both ends, so the first and last window/2 samples
// are pulled towards zero. Timestamps and all other fields are untouched.
func MedianFilter(s Series, window int) Series {
	if window <= 1 || s.Len() == 0 {
		return s
	}
	if window%2 == 0 {
		window++
	}

	ms := s.Measurements()
	n := len(ms)
	ax := make([]float64, n)
	ay := make([]float64, n)
	az := make([]float64, n)
	for i, m := range ms {
		ax[i], ay[i], az[i] = m.AccelerationX, m.AccelerationY, m.AccelerationZ
	}

	fx := medianWindow(ax, window)
	fy := medianWindow(ay, window)
	fz := medianWindow(az, window)
	for i := range ms {
		ms[i].AccelerationX, ms[i].AccelerationY, ms[i].AccelerationZ = fx[i], fy[i], fz[i]
	}
	return Series{name: s.name, ms: ms}
}

func medianWindow(xs []float64, window int) []float64 {
	half := window / 2
	out := make([]float64, len(xs))
	buf := make([]float64, window)
	for i := range xs {
		for k := 0; k < window; k++ {
			j := i - half + k
			if j < 0 || j >= len(xs) {
				buf[k] = 0
			} else {
				buf[k] = xs[j]
			}
		}
		sort.Float64s(buf)
		out[i] = buf[half]
	}
	return out
}
