// Package monitor renders the live polar matrix for human eyes: an
// interactive chart endpoint for debugging and a PNG polar diagram writer
// for reports.
package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/saildata/polar.report/internal/httputil"
	"github.com/saildata/polar.report/internal/polar"
)

// matrixPoint is one populated cell with its axes parsed back to numbers.
type matrixPoint struct {
	TWA float64
	TWS float64
	BSP float64
}

// matrixPoints converts the serialized matrix into numeric points. Cells
// whose keys fail to parse are skipped.
func matrixPoints(matrix map[string]float64) []matrixPoint {
	points := make([]matrixPoint, 0, len(matrix))
	for key, bsp := range matrix {
		twaRaw, twsRaw, ok := strings.Cut(key, "|")
		if !ok {
			continue
		}
		twa, err := strconv.ParseFloat(twaRaw, 64)
		if err != nil {
			continue
		}
		tws, err := strconv.ParseFloat(twsRaw, 64)
		if err != nil {
			continue
		}
		points = append(points, matrixPoint{TWA: twa, TWS: tws, BSP: bsp})
	}
	return points
}

// MatrixChartHandler renders the matrix as a bow-up scatter (HTML). Wind
// speed is the radius, boat speed is the color.
func MatrixChartHandler(engine *polar.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := engine.Snapshot()
		points := matrixPoints(state.Matrix)
		if len(points) == 0 {
			httputil.NotFound(w, "matrix is empty")
			return
		}

		data := make([]opts.ScatterData, 0, len(points))
		maxTWS := 0.0
		maxBSP := 0.0
		for _, p := range points {
			theta := p.TWA * math.Pi / 180.0
			x := p.TWS * math.Sin(theta)
			y := p.TWS * math.Cos(theta)
			if p.TWS > maxTWS {
				maxTWS = p.TWS
			}
			if p.BSP > maxBSP {
				maxBSP = p.BSP
			}
			data = append(data, opts.ScatterData{Value: []interface{}{x, y, p.BSP}})
		}

		pad := maxTWS * 1.05
		if pad == 0 {
			pad = 1.0
		}
		if maxBSP == 0 {
			maxBSP = 1
		}

		scatter := charts.NewScatter()
		scatter.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{
				PageTitle: "Polar Matrix",
				Theme:     "dark",
				Width:     "900px",
				Height:    "900px",
			}),
			charts.WithTitleOpts(opts.Title{
				Title:    "Polar Matrix",
				Subtitle: fmt.Sprintf("%d cells, best boat speed by wind", len(points)),
			}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "TWS (kn)"}),
			charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "TWS (kn)"}),
			charts.WithVisualMapOpts(opts.VisualMap{
				Show:       opts.Bool(true),
				Calculable: opts.Bool(true),
				Min:        0,
				Max:        float32(maxBSP),
				Dimension:  "2",
				InRange: &opts.VisualMapInRange{
					Color: []string{
						"#440154", "#482777", "#3e4989", "#31688e", "#26828e",
						"#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725",
					},
				},
			}),
		)

		scatter.AddSeries("matrix", data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))

		var buf bytes.Buffer
		if err := scatter.Render(&buf); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}
}
