package polar

import (
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/saildata/polar.report/internal/fsutil"
)

// csvCornerLabel is the fixed first cell of the header row.
const csvCornerLabel = `TWA \ TWS`

// Format errors surfaced by CSV import.
var (
	ErrCSVNoHeader   = errors.New("csv has no header or not enough columns")
	ErrCSVNoTWSBins  = errors.New("no numeric tws headers found in csv")
)

// BuildCSV renders the matrix as a grid: one header row of TWS bin keys and
// one row per TWA bin. Bins are generated [start, start+step, ... < stop);
// the stop boundary never appears as its own row or column even though
// ingestion clamps boundary values into the last bin.
func (e *Engine) BuildCSV() string {
	aStep := e.cfg.GetTWAStep()
	sStep := e.cfg.GetTWSStep()
	aBins := genBins(e.cfg.GetTWAMin(), e.cfg.GetTWAMax(), aStep)
	sBins := genBins(e.cfg.GetTWSMin(), e.cfg.GetTWSMax(), sStep)

	header := make([]string, 0, len(sBins)+1)
	header = append(header, csvCornerLabel)
	for _, s := range sBins {
		header = append(header, binKey(s, sStep))
	}
	lines := []string{strings.Join(header, ",")}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, a := range aBins {
		row := make([]string, 0, len(sBins)+1)
		aKey := binKey(a, aStep)
		row = append(row, aKey)
		for _, s := range sBins {
			if v, ok := e.matrix[Cell{TWA: aKey, TWS: binKey(s, sStep)}]; ok {
				row = append(row, fmt.Sprintf("%.2f", v))
			} else {
				row = append(row, "")
			}
		}
		lines = append(lines, strings.Join(row, ","))
	}
	return strings.Join(lines, "\n")
}

// ExportCSVFile writes the CSV grid to path.
func (e *Engine) ExportCSVFile(fs fsutil.FileSystem, path string) error {
	if err := fs.WriteFile(path, []byte(e.BuildCSV()), 0o644); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

// sniffDelimiter picks the most frequent candidate delimiter in the header
// line, defaulting to comma.
func sniffDelimiter(data string) rune {
	line, _, _ := strings.Cut(data, "\n")
	best := ','
	bestCount := strings.Count(line, ",")
	for _, cand := range []rune{';', '\t'} {
		if n := strings.Count(line, string(cand)); n > bestCount {
			best = cand
			bestCount = n
		}
	}
	return best
}

// parseCSVNum parses a numeric cell tolerantly: unit suffixes and degree
// symbols are stripped, comma decimals accepted, blank or bare-dash cells
// mean "absent". Returns nil for anything unparseable.
func parseCSVNum(s string) *float64 {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "°", "")
	s = strings.ReplaceAll(s, "kn", "")
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return nil
	}
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ImportCSVFile loads a polar grid from path into the matrix. Cells outside
// the configured ranges or unparseable are skipped individually; only a
// missing header or an all-blank TWS header row fails the whole import.
// In merge mode existing cells are kept unless the imported value is
// larger; otherwise the imported grid replaces the matrix. With fillMissing
// set, gaps get a conservative neighbor-average fill before committing.
func (e *Engine) ImportCSVFile(fs fsutil.FileSystem, path string, merge, fillMissing bool) error {
	data, err := fs.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read csv: %w", err)
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.Comma = sniffDelimiter(string(data))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(rows) == 0 || len(rows[0]) < 2 {
		return ErrCSVNoHeader
	}

	aStep := e.cfg.GetTWAStep()
	sStep := e.cfg.GetTWSStep()
	aMin, aMax := e.cfg.GetTWAMin(), e.cfg.GetTWAMax()
	sMin, sMax := e.cfg.GetTWSMin(), e.cfg.GetTWSMax()

	// Header: TWS values per column.
	twsVals := make([]*float64, len(rows[0])-1)
	anyTWS := false
	for i, raw := range rows[0][1:] {
		twsVals[i] = parseCSVNum(raw)
		if twsVals[i] != nil {
			anyTWS = true
		}
	}
	if !anyTWS {
		return ErrCSVNoTWSBins
	}

	e.mu.Lock()
	newMatrix := make(map[Cell]float64)
	if merge {
		for cell, v := range e.matrix {
			newMatrix[cell] = v
		}
	}
	e.mu.Unlock()

	for _, row := range rows[1:] {
		if len(row) < 2 {
			continue
		}
		twaRaw := parseCSVNum(row[0])
		if twaRaw == nil {
			continue
		}
		twa := *twaRaw
		if e.cfg.GetFoldTo180() {
			twa = FoldTo180(twa)
		}
		if twa < aMin || twa > aMax {
			continue
		}
		bkA := binKey(binFloor(twa, aStep, aMin, aMax), aStep)

		for idx, cellRaw := range row[1:] {
			if idx >= len(twsVals) || twsVals[idx] == nil {
				continue
			}
			tws := *twsVals[idx]
			if tws < sMin || tws > sMax {
				continue
			}
			v := parseCSVNum(cellRaw)
			if v == nil {
				continue
			}

			cell := Cell{TWA: bkA, TWS: binKey(binFloor(tws, sStep, sMin, sMax), sStep)}
			if merge {
				if *v > newMatrix[cell] {
					newMatrix[cell] = *v
				}
			} else {
				newMatrix[cell] = *v
			}
		}
	}

	if fillMissing {
		e.fillMissingBins(newMatrix)
	}

	e.mu.Lock()
	e.matrix = newMatrix
	ts := e.nowUnix()
	e.lastUpdateTS = &ts
	e.mu.Unlock()

	if err := e.save(); err != nil {
		return err
	}
	e.notify()
	return nil
}

// fillMissingBins averages any empty cell with at least two populated
// orthogonal neighbors, for up to three passes or until nothing changes.
func (e *Engine) fillMissingBins(mat map[Cell]float64) {
	aStep := e.cfg.GetTWAStep()
	sStep := e.cfg.GetTWSStep()
	aMin, aMax := e.cfg.GetTWAMin(), e.cfg.GetTWAMax()
	sMin, sMax := e.cfg.GetTWSMin(), e.cfg.GetTWSMax()
	aBins := genBins(aMin, aMax, aStep)
	sBins := genBins(sMin, sMax, sStep)

	key := func(a, s float64) Cell {
		return Cell{TWA: binKey(a, aStep), TWS: binKey(s, sStep)}
	}

	for pass := 0; pass < 3; pass++ {
		changed := false
		for _, a := range aBins {
			for _, s := range sBins {
				k := key(a, s)
				if _, ok := mat[k]; ok {
					continue
				}
				var neighbors []float64
				for _, d := range [][2]float64{{-aStep, 0}, {aStep, 0}, {0, -sStep}, {0, sStep}} {
					aa, ss := a+d[0], s+d[1]
					if aa < aMin || aa >= aMax || ss < sMin || ss >= sMax {
						continue
					}
					if v, ok := mat[key(aa, ss)]; ok {
						neighbors = append(neighbors, v)
					}
				}
				if len(neighbors) >= 2 {
					mat[k] = roundTo(stat.Mean(neighbors, nil), 2)
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}
}
