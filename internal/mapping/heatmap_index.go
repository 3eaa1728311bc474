package mapping

import (
	"slices"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// radiusSlack widens the squared search radius handed to the tree so that
// rounding in dx²+dy² can never drop a position the exact predicate keeps.
const radiusSlack = 1e-9

// InterpolateIndexed returns exactly the cells Interpolate returns, answering
// each neighbour query from a k-d tree over the positions instead of a full
// scan. The tree only prefilters: candidates are re-checked with the same
// predicate and averaged in input order, so the means are bit-identical.
func InterpolateIndexed(positions []Position, params HeatmapParams) ([]GridCell, error) {
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

	pts := make(planePoints, len(positions))
	for i, p := range positions {
		pts[i] = planePoint{x: p.X, y: p.Y, idx: i}
	}
	// kdtree.New reorders pts in place; idx keeps the link to positions.
	tree := kdtree.New(pts, false)

	r := params.Radius
	searchSq := r*r*(1+radiusSlack) + radiusSlack
	query := func(gx, gy float64, dst []int) []int {
		keep := kdtree.NewDistKeeper(searchSq)
		tree.NearestSet(keep, planePoint{x: gx, y: gy})
		for _, c := range keep.Heap {
			// an empty result leaves the keeper's sentinel behind
			if c.Comparable == nil {
				continue
			}
			k := c.Comparable.(planePoint).idx
			if within(positions[k], gx, gy, r) {
				dst = append(dst, k)
			}
		}
		slices.Sort(dst)
		return dst
	}
	return scanLattice(lat, positions, query, params.Workers), nil
}

// planePoint is a position projected onto the x/y plane.
type planePoint struct {
	x, y float64
	idx  int
}

func (p planePoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(planePoint)
	switch d {
	case 0:
		return p.x - q.x
	case 1:
		return p.y - q.y
	default:
		panic("mapping: illegal dimension")
	}
}

func (p planePoint) Dims() int { return 2 }

// Distance returns the squared planar distance, as kdtree expects.
func (p planePoint) Distance(c kdtree.Comparable) float64 {
	q := c.(planePoint)
	dx, dy := p.x-q.x, p.y-q.y
	return dx*dx + dy*dy
}

type planePoints []planePoint

func (p planePoints) Index(i int) kdtree.Comparable { return p[i] }
func (p planePoints) Len() int                      { return len(p) }
func (p planePoints) Pivot(d kdtree.Dim) int        { return plane{Dim: d, planePoints: p}.Pivot() }
func (p planePoints) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}

// plane sorts planePoints along one dimension for median selection.
type plane struct {
	kdtree.Dim
	planePoints
}

func (p plane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.planePoints[i].x < p.planePoints[j].x
	case 1:
		return p.planePoints[i].y < p.planePoints[j].y
	default:
		panic("mapping: illegal dimension")
	}
}

func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.planePoints = p.planePoints[start:end]
	return p
}

func (p plane) Swap(i, j int) {
	p.planePoints[i], p.planePoints[j] = p.planePoints[j], p.planePoints[i]
}
