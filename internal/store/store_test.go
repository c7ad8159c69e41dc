package store

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saildata/polar.report/internal/config"
	"github.com/saildata/polar.report/internal/polar"
)

func testEngineConfig() *config.RecorderConfig {
	bTrue := true
	twaMin, twaMax, twaStep := 0.0, 180.0, 10.0
	twsMin, twsMax, twsStep := 0.0, 30.0, 2.0
	return &config.RecorderConfig{
		TWAMin: &twaMin, TWAMax: &twaMax, TWAStep: &twaStep,
		TWSMin: &twsMin, TWSMax: &twsMax, TWSStep: &twsStep,
		FoldTo180: &bTrue, Interpolate: &bTrue,
	}
}

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "polar.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func fptr(v float64) *float64 { return &v }
func sptr(s string) *string   { return &s }

func TestLoadStateEmptyDatabase(t *testing.T) {
	db := setupTestDB(t)

	state, err := db.LoadState()
	require.NoError(t, err)
	assert.Nil(t, state, "fresh database has no state doc")
}

func TestSaveAndLoadState(t *testing.T) {
	db := setupTestDB(t)

	want := &polar.State{
		Matrix:    map[string]float64{"40|10": 6.5, "90|14": 7.25},
		TS:        fptr(1754042400.5),
		Recording: true,
		Backups: polar.BackupSlots{
			B1: sptr("blob-1"),
			T1: sptr("26-08-01 10:00:00"),
		},
	}
	require.NoError(t, db.SaveState(want))

	got, err := db.LoadState()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Matrix, got.Matrix)
	assert.Equal(t, *want.TS, *got.TS)
	assert.True(t, got.Recording)
	require.NotNil(t, got.Backups.B1)
	assert.Equal(t, "blob-1", *got.Backups.B1)
	assert.Nil(t, got.Backups.B2)
}

func TestSaveStateReplacesDocument(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.SaveState(&polar.State{Matrix: map[string]float64{"40|10": 6.5}}))
	require.NoError(t, db.SaveState(&polar.State{Matrix: map[string]float64{"90|14": 7.0}}))

	got, err := db.LoadState()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, map[string]float64{"90|14": 7.0}, got.Matrix)

	var rows int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM polar_state").Scan(&rows))
	assert.Equal(t, 1, rows, "state doc is a single row, not a history")
}

func TestRecordAndListSamples(t *testing.T) {
	db := setupTestDB(t)
	ts := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordSample(45, 10, 6.0, "40|10", ts))
	require.NoError(t, db.RecordSample(47, 11, 6.2, "40|10", ts.Add(time.Second)))
	require.NoError(t, db.RecordSample(92, 14, 7.5, "90|14", ts.Add(2*time.Second)))

	samples, err := db.Samples(2)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "90|14", samples[0].Cell, "newest first")
	assert.Equal(t, 6.2, samples[1].BSP)

	n, err := db.SampleCount()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestStateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "polar.db")

	db, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, db.SaveState(&polar.State{Matrix: map[string]float64{"40|10": 6.5}}))
	require.NoError(t, db.Close())

	db2, err := NewDB(path)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.LoadState()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 6.5, got.Matrix["40|10"])
}

func TestEngineAgainstRealStore(t *testing.T) {
	db := setupTestDB(t)

	e, err := polar.NewEngine(testEngineConfig(), db, nil)
	require.NoError(t, err)
	require.NoError(t, e.SetRecording(true))
	require.NoError(t, e.Ingest(fptr(45), fptr(10), fptr(6.5)))

	// a second engine booted off the same store sees the committed cell
	e2, err := polar.NewEngine(testEngineConfig(), db, nil)
	require.NoError(t, err)
	assert.Equal(t, 6.5, e2.Snapshot().Matrix["40|10"])
	assert.False(t, e2.Recording())

	n, err := db.SampleCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "accepted sample lands in the log")
}

func TestAttachAdminRoutes(t *testing.T) {
	db := setupTestDB(t)
	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	req := httptest.NewRequest("GET", "/debug/", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
