package polar

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saildata/polar.report/internal/config"
	"github.com/saildata/polar.report/internal/timeutil"
)

// memStore keeps state in memory and records persistence activity.
type memStore struct {
	mu      sync.Mutex
	state   *State
	saves   int
	samples int
	failErr error
}

func (m *memStore) LoadState() (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *memStore) SaveState(s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.state = s
	m.saves++
	return nil
}

func (m *memStore) RecordSample(twa, tws, bsp float64, cell string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples++
	return nil
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func fptr(v float64) *float64 { return &v }
func bptr(v bool) *bool       { return &v }

func testConfig() *config.RecorderConfig {
	return &config.RecorderConfig{
		TWAMin: fptr(0), TWAMax: fptr(180), TWAStep: fptr(10),
		TWSMin: fptr(0), TWSMax: fptr(30), TWSStep: fptr(2),
		FoldTo180:      bptr(true),
		Interpolate:    bptr(true),
		TWSEMAAlpha:    fptr(0.20),
		LullGuardDelta: fptr(0.5),
	}
}

func newTestEngine(t *testing.T) (*Engine, *memStore) {
	t.Helper()
	store := &memStore{}
	clock := timeutil.NewMockClock(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	e, err := NewEngine(testConfig(), store, clock)
	require.NoError(t, err)
	return e, store
}

func TestNewEngineForcesIdle(t *testing.T) {
	store := &memStore{state: &State{
		Matrix:    map[string]float64{"50|10": 6.5},
		Recording: true,
	}}
	e, err := NewEngine(testConfig(), store, nil)
	require.NoError(t, err)

	assert.False(t, e.Recording(), "recording must start disabled after restart")
	assert.Equal(t, 1, e.CellCount(), "persisted matrix must survive restart")
	assert.False(t, store.state.Recording, "forced idle state must be saved back")
}

func TestIngestRequiresRecording(t *testing.T) {
	e, store := newTestEngine(t)
	before := store.saveCount()

	require.NoError(t, e.Ingest(fptr(45), fptr(10), fptr(6)))
	assert.Equal(t, 0, e.CellCount())
	assert.Equal(t, before, store.saveCount())
}

func TestIngestRecordsMaxEnvelope(t *testing.T) {
	e, _ := newTestEngine(t)
	require.NoError(t, e.SetRecording(true))

	for _, bsp := range []float64{5.0, 6.5, 6.0, 6.5, 4.2} {
		require.NoError(t, e.Ingest(fptr(45), fptr(10), fptr(bsp)))
	}

	state := e.Snapshot()
	assert.Equal(t, 6.5, state.Matrix["40|10"], "cell must hold the max of all gated writes")
	assert.Len(t, state.Matrix, 1)
	assert.NotNil(t, state.TS)
}

func TestIngestSkipsMissingOrNonFinite(t *testing.T) {
	e, _ := newTestEngine(t)
	require.NoError(t, e.SetRecording(true))

	nan := math.NaN()
	require.NoError(t, e.Ingest(nil, fptr(10), fptr(6)))
	require.NoError(t, e.Ingest(fptr(45), fptr(10), &nan))
	assert.Equal(t, 0, e.CellCount())
}

func TestIngestLullGuard(t *testing.T) {
	e, _ := newTestEngine(t)
	require.NoError(t, e.SetRecording(true))

	// seed the EMA at 15kn
	require.NoError(t, e.Ingest(fptr(45), fptr(15), fptr(7)))
	require.Equal(t, 1, e.CellCount())

	// a sharp lull well below the baseline is rejected even though the
	// reading is otherwise valid
	require.NoError(t, e.Ingest(fptr(45), fptr(10), fptr(9)))
	state := e.Snapshot()
	assert.Equal(t, 7.0, state.Matrix["40|14"])
	_, ok := state.Matrix["40|10"]
	assert.False(t, ok, "lull sample must not be recorded")

	// but the rejected sample still moved the EMA
	require.NotNil(t, e.EMA())
	assert.InDelta(t, 0.2*10+0.8*15, *e.EMA(), 1e-9)
}

func TestIngestFoldsAndRangeChecks(t *testing.T) {
	e, _ := newTestEngine(t)
	require.NoError(t, e.SetRecording(true))

	// -90 folds to 90
	require.NoError(t, e.Ingest(fptr(-90), fptr(12), fptr(7)))
	state := e.Snapshot()
	assert.Contains(t, state.Matrix, "90|12")

	// out-of-range wind speed is skipped
	require.NoError(t, e.Ingest(fptr(90), fptr(45), fptr(7)))
	assert.Equal(t, 1, e.CellCount())
}

func TestIngestPersistFailurePropagates(t *testing.T) {
	e, store := newTestEngine(t)
	require.NoError(t, e.SetRecording(true))

	store.failErr = errors.New("disk gone")
	err := e.Ingest(fptr(45), fptr(10), fptr(6))
	require.Error(t, err)
	// in-memory state is not rolled back
	assert.Equal(t, 1, e.CellCount())
}

func TestSetCellBypassesGates(t *testing.T) {
	e, _ := newTestEngine(t)
	// recording disabled, still writes
	require.NoError(t, e.SetCell(45, 10, 6.1234))

	state := e.Snapshot()
	assert.Equal(t, 6.123, state.Matrix["40|10"], "value rounds to 3 decimals")
}

func TestSetCellValidatesExclusiveUpperBound(t *testing.T) {
	e, _ := newTestEngine(t)

	// 180 folds to 180 and fails the exclusive bound
	err := e.SetCell(180, 10, 6)
	assert.ErrorIs(t, err, ErrOutOfRange)

	err = e.SetCell(90, 30, 6)
	assert.ErrorIs(t, err, ErrOutOfRange)

	assert.Equal(t, 0, e.CellCount())
}

func TestClearCell(t *testing.T) {
	e, store := newTestEngine(t)
	require.NoError(t, e.SetCell(45, 10, 6))
	saves := store.saveCount()

	require.NoError(t, e.ClearCell(45, 10))
	assert.Equal(t, 0, e.CellCount())
	assert.Equal(t, saves+1, store.saveCount())

	// clearing an absent cell neither persists nor errors
	require.NoError(t, e.ClearCell(45, 10))
	assert.Equal(t, saves+1, store.saveCount())
}

func TestScaleLine(t *testing.T) {
	e, _ := newTestEngine(t)
	require.NoError(t, e.SetCell(40, 10, 6.0))
	require.NoError(t, e.SetCell(90, 10, 7.0))
	require.NoError(t, e.SetCell(40, 20, 5.0))

	require.NoError(t, e.ScaleLine(10, 1.1))

	state := e.Snapshot()
	assert.Equal(t, 6.6, state.Matrix["40|10"])
	assert.Equal(t, 7.7, state.Matrix["90|10"])
	assert.Equal(t, 5.0, state.Matrix["40|20"], "other lines untouched")
}

func TestScaleLineRejectsNonPositiveFactor(t *testing.T) {
	e, store := newTestEngine(t)
	require.NoError(t, e.SetCell(40, 10, 6.0))
	saves := store.saveCount()

	for _, factor := range []float64{0, -1} {
		err := e.ScaleLine(10, factor)
		assert.ErrorIs(t, err, ErrBadFactor)
	}

	state := e.Snapshot()
	assert.Equal(t, 6.0, state.Matrix["40|10"], "matrix must be unchanged")
	assert.Equal(t, saves, store.saveCount())
}

func TestScaleLineNoMatchIsNoop(t *testing.T) {
	e, store := newTestEngine(t)
	saves := store.saveCount()
	require.NoError(t, e.ScaleLine(10, 2))
	assert.Equal(t, saves, store.saveCount())
}

func TestReset(t *testing.T) {
	e, _ := newTestEngine(t)
	require.NoError(t, e.SetCell(45, 10, 6))
	require.NoError(t, e.Backup())

	require.NoError(t, e.Reset())

	state := e.Snapshot()
	assert.Empty(t, state.Matrix)
	assert.Nil(t, state.TS)
	assert.NotNil(t, state.Backups.B1, "reset must not touch backups")
}

func TestSubscriberNotificationAndIsolation(t *testing.T) {
	e, _ := newTestEngine(t)

	var called int
	e.Subscribe(func() { panic("bad subscriber") })
	id := e.Subscribe(func() { called++ })

	require.NoError(t, e.SetCell(45, 10, 6))
	assert.Equal(t, 1, called, "panicking subscriber must not block delivery")

	e.Unsubscribe(id)
	require.NoError(t, e.SetCell(45, 12, 6))
	assert.Equal(t, 1, called, "unsubscribed callback must not fire")
}

func TestToggleRecording(t *testing.T) {
	e, _ := newTestEngine(t)

	on, err := e.ToggleRecording()
	require.NoError(t, err)
	assert.True(t, on)

	on, err = e.ToggleRecording()
	require.NoError(t, err)
	assert.False(t, on)
}
