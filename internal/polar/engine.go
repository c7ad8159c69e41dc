package polar

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saildata/polar.report/internal/config"
	"github.com/saildata/polar.report/internal/monitoring"
	"github.com/saildata/polar.report/internal/timeutil"
)

// Validation errors surfaced to callers before any mutation happens.
var (
	ErrOutOfRange = errors.New("twa/tws outside configured ranges")
	ErrBadFactor  = errors.New("factor must be > 0")
	ErrNoBackup   = errors.New("no such backup available")
)

// State is the durable document the engine persists through its Store.
type State struct {
	Matrix    map[string]float64 `json:"matrix"`
	TS        *float64           `json:"ts"`
	Recording bool               `json:"recording"`
	Backups   BackupSlots        `json:"backups"`
}

// BackupSlots holds the three rotating backup generations: b1/t1 is the
// latest blob and its human-readable timestamp, b3/t3 the oldest.
type BackupSlots struct {
	B1 *string `json:"b1"`
	B2 *string `json:"b2"`
	B3 *string `json:"b3"`
	T1 *string `json:"t1"`
	T2 *string `json:"t2"`
	T3 *string `json:"t3"`
}

// Store persists the engine state document and the accepted-sample log.
type Store interface {
	// LoadState returns the previously saved state, or nil if none exists.
	LoadState() (*State, error)

	// SaveState durably replaces the state document.
	SaveState(*State) error

	// RecordSample appends one accepted observation to the sample log.
	RecordSample(twa, tws, bsp float64, cell string, ts time.Time) error
}

// Subscriber is invoked after every committed state change.
type Subscriber func()

// Engine owns the polar matrix for one configured vessel. All mutating
// operations serialize on an internal mutex and finish with a persist-then-
// notify pair; a persist failure is returned to the caller but the
// in-memory state is not rolled back.
type Engine struct {
	cfg   *config.RecorderConfig
	store Store
	clock timeutil.Clock

	mu           sync.Mutex
	matrix       map[Cell]float64
	lastUpdateTS *float64
	recording    bool
	backups      BackupSlots

	// emaTWS is the lull-guard smoothing state. Deliberately not persisted:
	// a restart reseeds it from the first observed sample.
	emaTWS *float64

	subMu sync.Mutex
	subs  map[string]Subscriber
}

// NewEngine creates an engine, loads any persisted state, and forces
// recording off so operators explicitly re-enable it after a restart.
func NewEngine(cfg *config.RecorderConfig, store Store, clock timeutil.Clock) (*Engine, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	e := &Engine{
		cfg:    cfg,
		store:  store,
		clock:  clock,
		matrix: make(map[Cell]float64),
		subs:   make(map[string]Subscriber),
	}

	state, err := store.LoadState()
	if err != nil {
		return nil, fmt.Errorf("failed to load polar state: %w", err)
	}
	if state != nil {
		for k, v := range state.Matrix {
			if cell, ok := ParseCell(k); ok {
				e.matrix[cell] = v
			}
		}
		e.lastUpdateTS = state.TS
		e.backups = state.Backups
	}

	// Always start idle after a restart, even though the flag is persisted.
	e.recording = false
	if err := e.save(); err != nil {
		return nil, fmt.Errorf("failed to save initial polar state: %w", err)
	}

	return e, nil
}

// Subscribe registers a callback invoked after every committed change. The
// returned id is used to unsubscribe.
func (e *Engine) Subscribe(cb Subscriber) string {
	id := uuid.NewString()
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subs[id] = cb
	return id
}

// Unsubscribe removes a previously registered callback.
func (e *Engine) Unsubscribe(id string) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	delete(e.subs, id)
}

// notify delivers to every subscriber. Delivery is isolated: one panicking
// subscriber is logged and does not block the rest.
func (e *Engine) notify() {
	e.subMu.Lock()
	subs := make([]Subscriber, 0, len(e.subs))
	for _, cb := range e.subs {
		subs = append(subs, cb)
	}
	e.subMu.Unlock()

	for _, cb := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					monitoring.Debugf("subscriber callback error: %v", r)
				}
			}()
			cb()
		}()
	}
}

// snapshotLocked builds the serializable state document. Callers hold e.mu.
func (e *Engine) snapshotLocked() *State {
	matrix := make(map[string]float64, len(e.matrix))
	for cell, v := range e.matrix {
		matrix[cell.String()] = v
	}
	return &State{
		Matrix:    matrix,
		TS:        e.lastUpdateTS,
		Recording: e.recording,
		Backups:   e.backups,
	}
}

func (e *Engine) save() error {
	e.mu.Lock()
	state := e.snapshotLocked()
	e.mu.Unlock()
	return e.store.SaveState(state)
}

// Snapshot returns a copy of the current state document.
func (e *Engine) Snapshot() *State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Recording reports whether ingestion is currently enabled.
func (e *Engine) Recording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recording
}

// SetRecording flips the master recording switch, persists, and notifies.
func (e *Engine) SetRecording(on bool) error {
	e.mu.Lock()
	e.recording = on
	e.mu.Unlock()

	if err := e.save(); err != nil {
		return err
	}
	e.notify()
	return nil
}

// ToggleRecording inverts the recording switch and returns the new value.
func (e *Engine) ToggleRecording() (bool, error) {
	e.mu.Lock()
	e.recording = !e.recording
	on := e.recording
	e.mu.Unlock()

	if err := e.save(); err != nil {
		return on, err
	}
	e.notify()
	return on, nil
}

// Reset discards the whole matrix and the last-update timestamp. Backups
// and the recording flag are untouched.
func (e *Engine) Reset() error {
	e.mu.Lock()
	e.matrix = make(map[Cell]float64)
	e.lastUpdateTS = nil
	e.mu.Unlock()

	if err := e.save(); err != nil {
		return err
	}
	e.notify()
	return nil
}

// CellCount returns the number of populated matrix cells.
func (e *Engine) CellCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.matrix)
}

// LastUpdate returns the unix timestamp (seconds) of the last matrix write,
// or nil if the matrix has never been written.
func (e *Engine) LastUpdate() *float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastUpdateTS == nil {
		return nil
	}
	ts := *e.lastUpdateTS
	return &ts
}

// Ingest runs one observation through the recording gates. Any reading may
// be nil (not yet seen or unparseable); such samples are skipped silently.
// Gates, in order: recording switch, finite readings, lull guard, optional
// fold, range checks, strictly-greater max-envelope write.
func (e *Engine) Ingest(twa, tws, bsp *float64) error {
	e.mu.Lock()

	if !e.recording {
		e.mu.Unlock()
		return nil
	}
	if twa == nil || tws == nil || bsp == nil {
		e.mu.Unlock()
		return nil
	}
	a, s, b := *twa, *tws, *bsp
	if !finite(a) || !finite(s) || !finite(b) {
		e.mu.Unlock()
		return nil
	}

	// EMA update happens before the guard so even rejected samples shape
	// the baseline.
	alpha := math.Min(1, math.Max(0, e.cfg.GetTWSEMAAlpha()))
	if e.emaTWS == nil {
		ema := s
		e.emaTWS = &ema
	} else {
		ema := alpha*s + (1-alpha)*(*e.emaTWS)
		e.emaTWS = &ema
	}

	// Below the recent average by more than the guard delta: likely a lull
	// following a gust, not sustained conditions.
	if s < *e.emaTWS-e.cfg.GetLullGuardDelta() {
		e.mu.Unlock()
		return nil
	}

	if e.cfg.GetFoldTo180() {
		a = FoldTo180(a)
	}

	if a < e.cfg.GetTWAMin() || a > e.cfg.GetTWAMax() {
		e.mu.Unlock()
		return nil
	}
	if s < e.cfg.GetTWSMin() || s > e.cfg.GetTWSMax() {
		e.mu.Unlock()
		return nil
	}

	cell := e.cellFor(a, s)
	if b <= e.matrix[cell] {
		e.mu.Unlock()
		return nil
	}

	e.matrix[cell] = roundTo(b, 3)
	ts := e.nowUnix()
	e.lastUpdateTS = &ts
	e.mu.Unlock()

	if err := e.store.RecordSample(a, s, b, cell.String(), e.clock.Now()); err != nil {
		monitoring.Debugf("failed to record sample: %v", err)
	}

	if err := e.save(); err != nil {
		return err
	}
	e.notify()
	return nil
}

// EMA returns the current lull-guard baseline, or nil before the first sample.
func (e *Engine) EMA() *float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.emaTWS == nil {
		return nil
	}
	v := *e.emaTWS
	return &v
}

// SetCell overrides one bin value, bypassing the recording gates. The point
// must lie within [min, max) on both axes.
func (e *Engine) SetCell(twa, tws, bsp float64) error {
	if e.cfg.GetFoldTo180() {
		twa = FoldTo180(twa)
	}
	if err := e.validateEditPoint(twa, tws); err != nil {
		return err
	}

	e.mu.Lock()
	cell := e.cellFor(twa, tws)
	e.matrix[cell] = roundTo(bsp, 3)
	ts := e.nowUnix()
	e.lastUpdateTS = &ts
	e.mu.Unlock()

	if err := e.save(); err != nil {
		return err
	}
	e.notify()
	return nil
}

// ClearCell deletes one bin value. Clearing an empty cell is a no-op that
// neither persists nor notifies.
func (e *Engine) ClearCell(twa, tws float64) error {
	if e.cfg.GetFoldTo180() {
		twa = FoldTo180(twa)
	}
	if err := e.validateEditPoint(twa, tws); err != nil {
		return err
	}

	e.mu.Lock()
	cell := e.cellFor(twa, tws)
	if _, ok := e.matrix[cell]; !ok {
		e.mu.Unlock()
		return nil
	}
	delete(e.matrix, cell)
	ts := e.nowUnix()
	e.lastUpdateTS = &ts
	e.mu.Unlock()

	if err := e.save(); err != nil {
		return err
	}
	e.notify()
	return nil
}

// ScaleLine multiplies every populated cell on one TWS line by factor.
// Persists and notifies only when at least one cell changed.
func (e *Engine) ScaleLine(tws, factor float64) error {
	if factor <= 0 {
		return fmt.Errorf("%w: got %g", ErrBadFactor, factor)
	}

	e.mu.Lock()
	sStep := e.cfg.GetTWSStep()
	s0 := binFloor(tws, sStep, e.cfg.GetTWSMin(), e.cfg.GetTWSMax())
	sKey := binKey(s0, sStep)

	aStep := e.cfg.GetTWAStep()
	anyChange := false
	for _, a := range genBins(e.cfg.GetTWAMin(), e.cfg.GetTWAMax(), aStep) {
		cell := Cell{TWA: binKey(a, aStep), TWS: sKey}
		if v, ok := e.matrix[cell]; ok {
			e.matrix[cell] = roundTo(v*factor, 3)
			anyChange = true
		}
	}
	if !anyChange {
		e.mu.Unlock()
		return nil
	}
	ts := e.nowUnix()
	e.lastUpdateTS = &ts
	e.mu.Unlock()

	if err := e.save(); err != nil {
		return err
	}
	e.notify()
	return nil
}

// validateEditPoint guards the direct-edit operations with an exclusive
// upper bound, tighter than the inclusive clamp used by ingestion.
func (e *Engine) validateEditPoint(twa, tws float64) error {
	if twa < e.cfg.GetTWAMin() || twa >= e.cfg.GetTWAMax() {
		return ErrOutOfRange
	}
	if tws < e.cfg.GetTWSMin() || tws >= e.cfg.GetTWSMax() {
		return ErrOutOfRange
	}
	return nil
}

// cellFor snaps a continuous point to its bin cell. Callers hold e.mu or
// operate on values already validated against the configured ranges.
func (e *Engine) cellFor(twa, tws float64) Cell {
	aStep := e.cfg.GetTWAStep()
	sStep := e.cfg.GetTWSStep()
	aBin := binFloor(twa, aStep, e.cfg.GetTWAMin(), e.cfg.GetTWAMax())
	sBin := binFloor(tws, sStep, e.cfg.GetTWSMin(), e.cfg.GetTWSMax())
	return Cell{TWA: binKey(aBin, aStep), TWS: binKey(sBin, sStep)}
}

func (e *Engine) nowUnix() float64 {
	return float64(e.clock.Now().UnixNano()) / 1e9
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
