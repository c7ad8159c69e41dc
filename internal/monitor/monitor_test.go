package monitor

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saildata/polar.report/internal/config"
	"github.com/saildata/polar.report/internal/polar"
)

type nullStore struct{}

func (nullStore) LoadState() (*polar.State, error) { return nil, nil }
func (nullStore) SaveState(*polar.State) error     { return nil }
func (nullStore) RecordSample(twa, tws, bsp float64, cell string, ts time.Time) error {
	return nil
}

func fptr(v float64) *float64 { return &v }
func bptr(v bool) *bool       { return &v }

func testEngine(t *testing.T) *polar.Engine {
	t.Helper()
	cfg := &config.RecorderConfig{
		TWAMin: fptr(0), TWAMax: fptr(180), TWAStep: fptr(10),
		TWSMin: fptr(0), TWSMax: fptr(30), TWSStep: fptr(2),
		FoldTo180: bptr(true), Interpolate: bptr(true),
	}
	e, err := polar.NewEngine(cfg, nullStore{}, nil)
	require.NoError(t, err)
	return e
}

func TestMatrixPoints(t *testing.T) {
	matrix := map[string]float64{
		"40|10":   6.5,
		"90|14":   7.25,
		"garbage": 1.0,
		"x|y":     2.0,
	}
	assert.Len(t, matrixPoints(matrix), 2, "unparseable keys are skipped")
}

func TestMatrixChartHandler(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.SetCell(40, 10, 6.5))
	require.NoError(t, e.SetCell(90, 14, 7.25))

	rec := httptest.NewRecorder()
	MatrixChartHandler(e)(rec, httptest.NewRequest("GET", "/debug/polar-chart", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.True(t, strings.Contains(rec.Body.String(), "echarts"), "page should embed echarts")
}

func TestMatrixChartHandlerEmptyMatrix(t *testing.T) {
	e := testEngine(t)

	rec := httptest.NewRecorder()
	MatrixChartHandler(e)(rec, httptest.NewRequest("GET", "/debug/polar-chart", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSavePolarDiagram(t *testing.T) {
	path := filepath.Join(t.TempDir(), "polar.png")
	matrix := map[string]float64{
		"40|10": 5.5, "90|10": 6.5, "140|10": 5.8,
		"40|14": 6.2, "90|14": 7.4, "140|14": 6.6,
	}

	require.NoError(t, SavePolarDiagram(matrix, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSavePolarDiagramEmptyMatrix(t *testing.T) {
	err := SavePolarDiagram(map[string]float64{}, filepath.Join(t.TempDir(), "x.png"))
	assert.Error(t, err)
}
