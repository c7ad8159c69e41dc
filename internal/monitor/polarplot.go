package monitor

import (
	"fmt"
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// linePalette cycles through distinguishable colors for the wind speed lines.
var linePalette = []color.RGBA{
	{R: 68, G: 1, B: 84, A: 255},
	{R: 59, G: 82, B: 139, A: 255},
	{R: 33, G: 145, B: 140, A: 255},
	{R: 94, G: 201, B: 98, A: 255},
	{R: 253, G: 231, B: 37, A: 255},
	{R: 230, G: 97, B: 1, A: 255},
}

// SavePolarDiagram renders the classic sailing polar diagram to an image
// file: one curve per wind speed, bow up, radius is boat speed. The output
// format follows the file extension (.png, .svg, .pdf).
func SavePolarDiagram(matrix map[string]float64, path string) error {
	points := matrixPoints(matrix)
	if len(points) == 0 {
		return fmt.Errorf("matrix is empty, nothing to plot")
	}

	lines := make(map[float64][]matrixPoint)
	for _, pt := range points {
		lines[pt.TWS] = append(lines[pt.TWS], pt)
	}
	speeds := make([]float64, 0, len(lines))
	for tws := range lines {
		speeds = append(speeds, tws)
	}
	sort.Float64s(speeds)

	p := plot.New()
	p.Title.Text = "Polar Diagram"
	p.X.Label.Text = "BSP (kn)"
	p.Y.Label.Text = "BSP (kn)"
	p.Legend.Top = true

	for i, tws := range speeds {
		pts := lines[tws]
		sort.Slice(pts, func(a, b int) bool { return pts[a].TWA < pts[b].TWA })

		xys := make(plotter.XYs, 0, len(pts))
		for _, pt := range pts {
			theta := pt.TWA * math.Pi / 180.0
			xys = append(xys, plotter.XY{
				X: pt.BSP * math.Sin(theta),
				Y: pt.BSP * math.Cos(theta),
			})
		}

		line, err := plotter.NewLine(xys)
		if err != nil {
			return fmt.Errorf("failed to build line for tws %g: %w", tws, err)
		}
		line.Width = vg.Points(1)
		line.Color = linePalette[i%len(linePalette)]
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%g kn", tws), line)
	}

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save polar diagram: %w", err)
	}
	return nil
}
