// Package charts renders reconstructed paths and heatmaps as interactive
// go-echarts HTML pages.
package charts

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/magfield.report/internal/mapping"
)

// AssetsHost is where the rendered pages load echarts.min.js from.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridis, low to high.
var fieldColors = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// extent is a square plot window that contains every point with a margin.
type extent struct{ minX, maxX, minY, maxY float64 }

func newExtent() extent {
	return extent{minX: math.Inf(1), maxX: math.Inf(-1), minY: math.Inf(1), maxY: math.Inf(-1)}
}

func (e *extent) add(x, y float64) {
	e.minX, e.maxX = math.Min(e.minX, x), math.Max(e.maxX, x)
	e.minY, e.maxY = math.Min(e.minY, y), math.Max(e.maxY, y)
}

// square pads the extent by 5% and equalises the spans so metres look the
// same on both axes. An empty extent becomes [-1,1]².
func (e extent) square() extent {
	if e.minX > e.maxX {
		return extent{-1, 1, -1, 1}
	}
	cx, cy := (e.minX+e.maxX)/2, (e.minY+e.maxY)/2
	half := math.Max(e.maxX-e.minX, e.maxY-e.minY) / 2 * 1.05
	if half == 0 {
		half = 1
	}
	return extent{cx - half, cx + half, cy - half, cy + half}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// PathsChart draws one line per session in the x/y plane.
func PathsChart(paths []mapping.Path) *charts.Line {
	ext := newExtent()
	total := 0
	for _, p := range paths {
		for _, pos := range p.Positions {
			ext.add(pos.X, pos.Y)
		}
		total += len(p.Positions)
	}
	sq := ext.square()

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Magnetic field paths", Width: "900px", Height: "900px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Reconstructed paths", Subtitle: fmt.Sprintf("sessions=%d positions=%d", len(paths), total)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Min: round2(sq.minX), Max: round2(sq.maxX), Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Min: round2(sq.minY), Max: round2(sq.maxY), Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)

	for _, p := range paths {
		data := make([]opts.LineData, 0, len(p.Positions))
		for _, pos := range p.Positions {
			data = append(data, opts.LineData{Value: []interface{}{pos.X, pos.Y, pos.MagneticMagnitude}})
		}
		line.AddSeries(p.SessionName, data, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}
	return line
}

// HeatmapChart draws populated lattice cells as a scatter coloured by mean
// magnitude.
func HeatmapChart(cells []mapping.GridCell, params mapping.HeatmapParams) *charts.Scatter {
	ext := newExtent()
	minV, maxV := math.Inf(1), math.Inf(-1)
	points := make([]opts.ScatterData, 0, len(cells))
	for _, c := range cells {
		ext.add(c.X, c.Y)
		minV, maxV = math.Min(minV, c.Value), math.Max(maxV, c.Value)
		points = append(points, opts.ScatterData{Value: []interface{}{c.X, c.Y, c.Value, c.Count}})
	}
	if len(cells) == 0 {
		minV, maxV = 0, 1
	}
	sq := ext.square()

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Magnetic field heatmap", Width: "900px", Height: "900px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Field magnitude (µT)", Subtitle: fmt.Sprintf("cells=%d grid=%d radius=%gm", len(points), params.GridSize, params.Radius)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: round2(sq.minX), Max: round2(sq.maxX), Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: round2(sq.minY), Max: round2(sq.maxY), Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minV),
			Max:        float32(maxV),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: fieldColors},
		}),
	)
	scatter.AddSeries("magnitude", points, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
	return scatter
}

// RenderPaths writes a standalone HTML page for PathsChart.
func RenderPaths(w io.Writer, paths []mapping.Path) error {
	return PathsChart(paths).Render(w)
}

// RenderHeatmap writes a standalone HTML page for HeatmapChart.
func RenderHeatmap(w io.Writer, cells []mapping.GridCell, params mapping.HeatmapParams) error {
	return HeatmapChart(cells, params).Render(w)
}

// RenderDashboard writes both charts on one page.
func RenderDashboard(w io.Writer, paths []mapping.Path, cells []mapping.GridCell, params mapping.HeatmapParams) error {
	page := components.NewPage()
	page.PageTitle = "Magnetic field map"
	page.SetAssetsHost(AssetsHost)
	page.AddCharts(PathsChart(paths), HeatmapChart(cells, params))
	return page.Render(w)
}
