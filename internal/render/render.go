// Package render draws paths and heatmaps to static images with gonum/plot.
package render

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/magfield.report/internal/mapping"
)

// ErrUnknownFormat is returned for an output format gonum/plot cannot write.
var ErrUnknownFormat = errors.New("render: unsupported image format")

// Size of every rendered image.
var (
	Width  = 8 * vg.Inch
	Height = 8 * vg.Inch
)

// Formats lists the accepted output formats.
var Formats = []string{"png", "svg", "pdf"}

func checkFormat(format string) error {
	for _, f := range Formats {
		if f == format {
			return nil
		}
	}
	return fmt.Errorf("%w %q", ErrUnknownFormat, format)
}

// PathsPlot draws each path as a coloured line in the x/y plane, with a
// marker at its first position.
func PathsPlot(paths []mapping.Path) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Reconstructed paths"
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	for i, path := range paths {
		if len(path.Positions) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(path.Positions))
		for k, pos := range path.Positions {
			pts[k] = plotter.XY{X: pos.X, Y: pos.Y}
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("session %q: %w", path.SessionName, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1.5)

		start, err := plotter.NewScatter(pts[:1])
		if err != nil {
			return nil, fmt.Errorf("session %q: %w", path.SessionName, err)
		}
		start.Color = line.Color
		start.Radius = vg.Points(3)

		p.Add(line, start)
		p.Legend.Add(path.SessionName, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// grid adapts sparse cells on a lattice to plotter.GridXYZ. Lattice points
// with no cell are NaN and drawn transparent.
type grid struct {
	lat      mapping.Lattice
	z        []float64 // column-major, Columns×Rows
	min, max float64
}

func newGrid(lat mapping.Lattice, cells []mapping.GridCell) *grid {
	g := &grid{lat: lat, z: make([]float64, lat.Len()), min: math.Inf(1), max: math.Inf(-1)}
	for k := range g.z {
		g.z[k] = math.NaN()
	}
	for _, c := range cells {
		i, j := g.index(c.X, lat.MinX), g.index(c.Y, lat.MinY)
		if i < 0 || i >= lat.Columns || j < 0 || j >= lat.Rows {
			continue
		}
		g.z[i*lat.Rows+j] = c.Value
		g.min = math.Min(g.min, c.Value)
		g.max = math.Max(g.max, c.Value)
	}
	if g.min > g.max {
		g.min, g.max = 0, 1
	}
	if g.min == g.max {
		g.max = g.min + 1
	}
	return g
}

func (g *grid) index(v, origin float64) int {
	if g.lat.Step == 0 {
		return 0
	}
	return int(math.Round((v - origin) / g.lat.Step))
}

func (g *grid) Dims() (c, r int)   { return g.lat.Columns, g.lat.Rows }
func (g *grid) Z(c, r int) float64 { return g.z[c*g.lat.Rows+r] }
func (g *grid) X(c int) float64    { return g.lat.X(c) }
func (g *grid) Y(r int) float64    { return g.lat.Y(r) }
func (g *grid) Min() float64       { return g.min }
func (g *grid) Max() float64       { return g.max }

// HeatmapPlot draws cells on the lattice they were evaluated on.
func HeatmapPlot(lat mapping.Lattice, cells []mapping.GridCell) (*plot.Plot, error) {
	if lat.Columns < 1 || lat.Rows < 1 {
		return nil, fmt.Errorf("render: empty lattice %d×%d", lat.Columns, lat.Rows)
	}
	g := newGrid(lat, cells)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Field magnitude (µT) %.1f to %.1f", g.min, g.max)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	hm := plotter.NewHeatMap(g, palette.Heat(12, 1))
	hm.NaN = color.Transparent
	p.Add(hm)
	return p, nil
}

// Heatmap interpolates positions with interp and plots the result on the
// lattice interp used.
func Heatmap(positions []mapping.Position, params mapping.HeatmapParams, interp func([]mapping.Position, mapping.HeatmapParams) ([]mapping.GridCell, error)) (*plot.Plot, error) {
	if len(positions) == 0 {
		return nil, fmt.Errorf("render: no positions to plot")
	}
	lat, err := mapping.NewLattice(positions, params)
	if err != nil {
		return nil, err
	}
	cells, err := interp(positions, params)
	if err != nil {
		return nil, err
	}
	return HeatmapPlot(lat, cells)
}

// Write encodes p in format ("png", "svg" or "pdf") to w.
func Write(w io.Writer, p *plot.Plot, format string) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	wt, err := p.WriterTo(Width, Height, format)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("render: write %s: %w", format, err)
	}
	return nil
}

// Save writes p to path, choosing the format from its extension.
func Save(p *plot.Plot, path string) error {
	if err := p.Save(Width, Height, path); err != nil {
		return fmt.Errorf("render: save %s: %w", path, err)
	}
	return nil
}
