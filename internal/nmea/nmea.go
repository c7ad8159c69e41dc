// Package nmea parses the NMEA0183 sentences the polar recorder needs from
// the instrument bus: MWV (wind angle and speed), MWD (wind direction and
// speed), and VHW (speed through water). Anything else, and anything that
// fails its checksum, is skipped rather than treated as an error.
package nmea

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrBadChecksum = errors.New("nmea checksum mismatch")
	ErrNotSentence = errors.New("not an nmea sentence")
)

// Sentence is one checksum-verified NMEA0183 sentence split into its parts.
type Sentence struct {
	// Talker is the two-letter talker ID, e.g. "WI" or "II".
	Talker string

	// Type is the three-letter sentence type, e.g. "MWV".
	Type string

	// Fields are the comma-separated payload fields after the address.
	Fields []string
}

// Parse validates and splits a raw line. The line may carry trailing CR/LF.
func Parse(line string) (*Sentence, error) {
	line = strings.TrimSpace(line)
	if len(line) < 7 || (line[0] != '$' && line[0] != '!') {
		return nil, ErrNotSentence
	}

	body := line[1:]
	if star := strings.LastIndexByte(body, '*'); star >= 0 {
		if len(body)-star != 3 {
			return nil, ErrBadChecksum
		}
		want, err := strconv.ParseUint(body[star+1:], 16, 8)
		if err != nil {
			return nil, ErrBadChecksum
		}
		body = body[:star]
		if checksum(body) != byte(want) {
			return nil, ErrBadChecksum
		}
	}

	parts := strings.Split(body, ",")
	address := parts[0]
	if len(address) < 5 {
		return nil, ErrNotSentence
	}

	return &Sentence{
		Talker: address[:2],
		Type:   address[len(address)-3:],
		Fields: parts[1:],
	}, nil
}

// checksum is the XOR of every byte between '$' and '*'.
func checksum(body string) byte {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return sum
}

// Wind is one wind observation from an MWV sentence. Angle is 0-359 degrees
// relative to the bow; Reference distinguishes true from apparent wind.
type Wind struct {
	Angle      float64
	SpeedKnots float64
	Reference  string // "T" true, "R" relative (apparent)
}

// WindDirection is one observation from an MWD sentence: wind direction over
// ground plus speed.
type WindDirection struct {
	DirectionTrue float64
	SpeedKnots    float64
}

// WaterSpeed is the speed through water from a VHW sentence.
type WaterSpeed struct {
	Knots float64
}

// toKnots converts an MWV speed value by its unit field.
func toKnots(v float64, unit string) (float64, error) {
	switch unit {
	case "N", "":
		return v, nil
	case "M":
		return v * 1.943844, nil
	case "K":
		return v / 1.852, nil
	}
	return 0, fmt.Errorf("unknown speed unit %q", unit)
}

// ParseMWV extracts a wind observation. Sentences flagged invalid (status
// field not "A") are rejected.
func ParseMWV(s *Sentence) (*Wind, error) {
	if s.Type != "MWV" || len(s.Fields) < 5 {
		return nil, fmt.Errorf("not a complete MWV sentence")
	}
	if s.Fields[4] != "A" {
		return nil, fmt.Errorf("MWV flagged invalid")
	}

	angle, err := strconv.ParseFloat(s.Fields[0], 64)
	if err != nil {
		return nil, fmt.Errorf("bad MWV angle: %w", err)
	}
	speed, err := strconv.ParseFloat(s.Fields[2], 64)
	if err != nil {
		return nil, fmt.Errorf("bad MWV speed: %w", err)
	}
	knots, err := toKnots(speed, s.Fields[3])
	if err != nil {
		return nil, err
	}

	return &Wind{Angle: angle, SpeedKnots: knots, Reference: s.Fields[1]}, nil
}

// ParseMWD extracts wind direction and speed. Only the true-direction and
// knots fields are used.
func ParseMWD(s *Sentence) (*WindDirection, error) {
	if s.Type != "MWD" || len(s.Fields) < 6 {
		return nil, fmt.Errorf("not a complete MWD sentence")
	}

	dir, err := strconv.ParseFloat(s.Fields[0], 64)
	if err != nil {
		return nil, fmt.Errorf("bad MWD direction: %w", err)
	}
	speed, err := strconv.ParseFloat(s.Fields[4], 64)
	if err != nil {
		return nil, fmt.Errorf("bad MWD speed: %w", err)
	}

	return &WindDirection{DirectionTrue: dir, SpeedKnots: speed}, nil
}

// ParseVHW extracts the speed through water in knots.
func ParseVHW(s *Sentence) (*WaterSpeed, error) {
	if s.Type != "VHW" || len(s.Fields) < 6 {
		return nil, fmt.Errorf("not a complete VHW sentence")
	}

	knots, err := strconv.ParseFloat(s.Fields[4], 64)
	if err != nil {
		return nil, fmt.Errorf("bad VHW speed: %w", err)
	}

	return &WaterSpeed{Knots: knots}, nil
}

// Format renders fields into a full sentence with a valid checksum, for
// fixtures and tests.
func Format(address string, fields ...string) string {
	body := address
	if len(fields) > 0 {
		body += "," + strings.Join(fields, ",")
	}
	return fmt.Sprintf("$%s*%02X", body, checksum(body))
}
