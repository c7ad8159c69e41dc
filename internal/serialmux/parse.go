package serialmux

import "strings"

const (
	EventTypeWind      = "wind"
	EventTypeBoatSpeed = "boat_speed"
	EventTypeSentence  = "sentence"
	EventTypeUnknown   = "unknown"
)

// ClassifyPayload inspects a raw line and returns a simple event type token.
// The classification looks only at the sentence address; full parsing and
// checksum verification happen in the nmea package.
func ClassifyPayload(payload string) string {
	payload = strings.TrimSpace(payload)
	if len(payload) < 6 || payload[0] != '$' {
		return EventTypeUnknown
	}

	address, _, _ := strings.Cut(payload[1:], ",")
	if len(address) < 5 {
		return EventTypeUnknown
	}
	switch address[len(address)-3:] {
	case "MWV", "MWD":
		return EventTypeWind
	case "VHW":
		return EventTypeBoatSpeed
	}
	return EventTypeSentence
}
