package serialmux

import (
	"github.com/saildata/polar.report/internal/monitoring"
	"github.com/saildata/polar.report/internal/nmea"
)

// HandleEvent folds one raw line from the instrument bus into the tracker
// and reports whether any reading changed. Non-NMEA chatter is logged at
// debug level and otherwise ignored; a live bus carries plenty of sentence
// types the recorder has no use for.
func HandleEvent(tracker *nmea.Tracker, payload string) bool {
	switch ClassifyPayload(payload) {
	case EventTypeWind, EventTypeBoatSpeed:
		return tracker.Apply(payload)
	case EventTypeSentence:
		// known-good sentence shape, just not one of ours
		return false
	default:
		monitoring.Debugf("unparseable serial line: %q", payload)
		return false
	}
}
