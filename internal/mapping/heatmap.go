package mapping

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

var (
	ErrInvalidGridSize = errors.New("mapping: grid size must be at least 1")
	ErrInvalidRadius   = errors.New("mapping: radius must be a positive number")
	ErrLatticeTooLarge = errors.New("mapping: lattice exceeds the point limit")
	ErrNonFiniteBounds = errors.New("mapping: positions span a non-finite area")
)

const (
	DefaultGridSize         = 50
	DefaultRadius           = 1.0
	DefaultMaxLatticePoints = 1_000_000

	// latticeTolerance absorbs rounding in span/step so the max edge of the
	// bounding box stays on the lattice.
	latticeTolerance = 1e-9
)

// GridCell is one populated lattice point of the heatmap.
type GridCell struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Value float64 `json:"value"` // mean magnetic magnitude
	Count int     `json:"count"` // samples within the radius
}

// HeatmapParams controls the lattice and the neighbour query.
type HeatmapParams struct {
	GridSize int     // lattice divisions along x
	Radius   float64 // neighbour radius in metres

	// MaxLatticePoints caps columns×rows. Zero means DefaultMaxLatticePoints.
	MaxLatticePoints int
	// Workers > 1 spreads lattice columns over that many goroutines.
	Workers int
}

// DefaultHeatmapParams returns the parameters used when the caller supplies
// none.
func DefaultHeatmapParams() HeatmapParams {
	return HeatmapParams{GridSize: DefaultGridSize, Radius: DefaultRadius}
}

// Validate rejects parameters the interpolator cannot honour.
func (p HeatmapParams) Validate() error {
	if p.GridSize < 1 {
		return fmt.Errorf("%w, got %d", ErrInvalidGridSize, p.GridSize)
	}
	// written as a negation so NaN is rejected too
	if !(p.Radius > 0) || math.IsInf(p.Radius, 0) {
		return fmt.Errorf("%w, got %v", ErrInvalidRadius, p.Radius)
	}
	return nil
}

func (p HeatmapParams) maxLatticePoints() int {
	if p.MaxLatticePoints <= 0 {
		return DefaultMaxLatticePoints
	}
	return p.MaxLatticePoints
}

// Bounds is an axis-aligned box in the session-local plane.
type Bounds struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// BoundsOf returns the planar bounding box of positions. z is ignored.
func BoundsOf(positions []Position) Bounds {
	if len(positions) == 0 {
		return Bounds{}
	}
	b := Bounds{
		MinX: positions[0].X, MaxX: positions[0].X,
		MinY: positions[0].Y, MaxY: positions[0].Y,
	}
	for _, p := range positions[1:] {
		b.MinX = math.Min(b.MinX, p.X)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	return b
}

func (b Bounds) finite() bool {
	for _, v := range []float64{b.MinX, b.MinY, b.MaxX, b.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Lattice is the regular set of points a heatmap is evaluated at. Both axes
// step by the same Step, starting at the minimum corner of the bounds.
type Lattice struct {
	Bounds
	Step    float64 `json:"step"`
	Columns int     `json:"columns"`
	Rows    int     `json:"rows"`
}

// X returns the x coordinate of column i.
func (l Lattice) X(i int) float64 { return l.MinX + float64(i)*l.Step }

// Y returns the y coordinate of row j.
func (l Lattice) Y(j int) float64 { return l.MinY + float64(j)*l.Step }

// Len returns the number of lattice points.
func (l Lattice) Len() int { return l.Columns * l.Rows }

// NewLattice derives the lattice covering positions.
//
// The step is the x span divided by GridSize. When every position shares the
// same x the step falls back to the y span, giving a single column; when both
// spans are zero the lattice is the single point at the minimum corner.
func NewLattice(positions []Position, params HeatmapParams) (Lattice, error) {
	if err := params.Validate(); err != nil {
		return Lattice{}, err
	}
	b := BoundsOf(positions)
	if !b.finite() {
		return Lattice{}, fmt.Errorf("%w: %+v", ErrNonFiniteBounds, b)
	}

	spanX := b.MaxX - b.MinX
	spanY := b.MaxY - b.MinY
	step := spanX / float64(params.GridSize)
	if step == 0 {
		step = spanY / float64(params.GridSize)
	}

	cols := latticeCount(spanX, step)
	rows := latticeCount(spanY, step)
	limit := float64(params.maxLatticePoints())
	if cols > limit || rows > limit || cols*rows > limit {
		return Lattice{}, fmt.Errorf("%w: %.0f×%.0f points, limit %.0f", ErrLatticeTooLarge, cols, rows, limit)
	}

	return Lattice{Bounds: b, Step: step, Columns: int(cols), Rows: int(rows)}, nil
}

// latticeCount returns how many lattice points fit on [0, span] inclusive.
// Kept as float64 so an absurd count can be rejected before conversion.
func latticeCount(span, step float64) float64 {
	if span == 0 || step == 0 {
		return 1
	}
	return math.Floor(span/step+latticeTolerance) + 1
}

// neighbourFunc appends to dst the indices of every position within the
// radius of (gx, gy), in ascending index order.
type neighbourFunc func(gx, gy float64, dst []int) []int

// Interpolate evaluates the field on the lattice covering positions. Each
// lattice point becomes the mean magnitude of all positions within
// params.Radius of it; points with no such position are omitted. Cells are
// ordered by column, then by row.
//
// The cost is O(columns × rows × len(positions)). InterpolateIndexed returns
// the same cells using a k-d tree for the neighbour query.
func Interpolate(positions []Position, params HeatmapParams) ([]GridCell, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, nil
	}
	lat, err := NewLattice(positions, params)
	if err != nil {
		return nil, err
	}

	r := params.Radius
	query := func(gx, gy float64, dst []int) []int {
		for k := range positions {
			if within(positions[k], gx, gy, r) {
				dst = append(dst, k)
			}
		}
		return dst
	}
	return scanLattice(lat, positions, query, params.Workers), nil
}

// within is the selection predicate shared by every neighbour query.
func within(p Position, gx, gy, radius float64) bool {
	return math.Hypot(p.X-gx, p.Y-gy) <= radius
}

// scanLattice evaluates every lattice point and concatenates the populated
// cells in column order, whatever the number of workers.
func scanLattice(lat Lattice, positions []Position, query neighbourFunc, workers int) []GridCell {
	columns := make([][]GridCell, lat.Columns)
	column := func(i int) []GridCell {
		var cells []GridCell
		var idx []int
		gx := lat.X(i)
		for j := 0; j < lat.Rows; j++ {
			gy := lat.Y(j)
			idx = query(gx, gy, idx[:0])
			if len(idx) == 0 {
				continue
			}
			sum := 0.0
			for _, k := range idx {
				sum += positions[k].MagneticMagnitude
			}
			cells = append(cells, GridCell{X: gx, Y: gy, Value: sum / float64(len(idx)), Count: len(idx)})
		}
		return cells
	}

	if workers <= 1 || lat.Columns == 1 {
		for i := range columns {
			columns[i] = column(i)
		}
	} else {
		next := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < min(workers, lat.Columns); w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range next {
					columns[i] = column(i)
				}
			}()
		}
		for i := range columns {
			next <- i
		}
		close(next)
		wg.Wait()
	}

	n := 0
	for _, c := range columns {
		n += len(c)
	}
	out := make([]GridCell, 0, n)
	for _, c := range columns {
		out = append(out, c...)
	}
	return out
}
