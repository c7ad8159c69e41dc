package nmea

import "sync"

// Tracker folds a stream of sentences into the latest complete picture of
// the three readings the recorder ingests: true wind angle, true wind speed,
// and boat speed through water. Readings start nil and stay nil until the
// instruments have reported them at least once.
type Tracker struct {
	mu  sync.Mutex
	twa *float64
	tws *float64
	bsp *float64
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Apply folds one raw line into the tracker. It reports whether any reading
// changed. Unparseable lines and apparent-wind sentences are ignored.
func (t *Tracker) Apply(line string) bool {
	s, err := Parse(line)
	if err != nil {
		return false
	}

	switch s.Type {
	case "MWV":
		w, err := ParseMWV(s)
		if err != nil || w.Reference != "T" {
			return false
		}
		t.mu.Lock()
		angleChanged := setReading(&t.twa, w.Angle)
		speedChanged := setReading(&t.tws, w.SpeedKnots)
		t.mu.Unlock()
		return angleChanged || speedChanged

	case "MWD":
		d, err := ParseMWD(s)
		if err != nil {
			return false
		}
		t.mu.Lock()
		changed := setReading(&t.tws, d.SpeedKnots)
		t.mu.Unlock()
		return changed

	case "VHW":
		ws, err := ParseVHW(s)
		if err != nil {
			return false
		}
		t.mu.Lock()
		changed := setReading(&t.bsp, ws.Knots)
		t.mu.Unlock()
		return changed
	}
	return false
}

// setReading stores v and reports whether the value is new or different.
func setReading(slot **float64, v float64) bool {
	if *slot != nil && **slot == v {
		return false
	}
	val := v
	*slot = &val
	return true
}

// Readings returns copies of the latest three readings; any of them may be
// nil if that instrument has not reported yet.
func (t *Tracker) Readings() (twa, tws, bsp *float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copyReading(t.twa), copyReading(t.tws), copyReading(t.bsp)
}

func copyReading(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
