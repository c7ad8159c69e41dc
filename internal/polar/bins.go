// Package polar implements the polar matrix engine: a lookup table from
// (true wind angle, true wind speed) bins to the best observed boat speed,
// built incrementally from instrument readings and queried for target-speed
// estimates.
package polar

import (
	"math"
	"strconv"
	"strings"
)

// Cell addresses one matrix bin by the stable text keys of its two axes.
// The composite "twa|tws" string form appears only at serialization
// boundaries (state document, backup blob).
type Cell struct {
	TWA string
	TWS string
}

// String renders the serialized form of the cell key.
func (c Cell) String() string {
	return c.TWA + "|" + c.TWS
}

// ParseCell splits a serialized "twa|tws" key back into a Cell.
func ParseCell(s string) (Cell, bool) {
	twa, tws, ok := strings.Cut(s, "|")
	if !ok || twa == "" || tws == "" {
		return Cell{}, false
	}
	return Cell{TWA: twa, TWS: tws}, true
}

// binFloor snaps v to the largest multiple of step not exceeding it, then
// clamps into [min, max-step]. Every finite input lands in a valid bin; the
// topmost bin absorbs the upper boundary rather than overflowing past it.
func binFloor(v, step, min, max float64) float64 {
	b := math.Floor(v/step) * step
	return math.Max(min, math.Min(b, max-step))
}

// stepDecimals derives the key precision from the step's own textual
// decimal count: step=1 gives integer keys, step=0.1 one decimal place.
func stepDecimals(step float64) int {
	s := strconv.FormatFloat(step, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(strings.TrimRight(s[i+1:], "0"))
	}
	return 0
}

// binKey renders a bin address as a stable text key at the step's precision.
func binKey(v, step float64) string {
	decimals := stepDecimals(step)
	if decimals <= 0 {
		return strconv.Itoa(int(math.Round(v)))
	}
	return strconv.FormatFloat(roundTo(v, decimals), 'f', decimals, 64)
}

// FoldTo180 maps any angle into the 0-180 symmetric domain: negatives are
// normalized into 0-360 first, then values above 180 reflect as 360-a.
// Sailing polar performance is symmetric port/starboard.
func FoldTo180(v float64) float64 {
	v = math.Mod(v, 360)
	if v < 0 {
		v += 360
	}
	if v > 180 {
		return 360 - v
	}
	return v
}

// genBins generates [start, start+step, ... < stop] with float steps. A small
// epsilon keeps float drift from emitting the stop boundary itself.
func genBins(start, stop, step float64) []float64 {
	var bins []float64
	eps := math.Max(1e-9, math.Abs(step)*1e-6)
	for v := start; v < stop-eps; v += step {
		bins = append(bins, v)
	}
	return bins
}

// roundTo rounds v to n decimal places.
func roundTo(v float64, n int) float64 {
	p := math.Pow(10, float64(n))
	return math.Round(v*p) / p
}
