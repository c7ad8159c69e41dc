package polar

import "math"

// TargetSpeed estimates the best achievable boat speed at a continuous
// (twa, tws) point from the surrounding bins. Returns nil when the point is
// out of range or no surrounding bin is populated. The interpolate flag
// selects bilinear blending; otherwise (and for degenerate intervals at a
// range boundary) the nearest populated corner wins.
func (e *Engine) TargetSpeed(twa, tws float64) *float64 {
	if e.cfg.GetFoldTo180() {
		twa = FoldTo180(twa)
	}
	if twa < e.cfg.GetTWAMin() || twa > e.cfg.GetTWAMax() {
		return nil
	}
	if tws < e.cfg.GetTWSMin() || tws > e.cfg.GetTWSMax() {
		return nil
	}

	aStep := e.cfg.GetTWAStep()
	sStep := e.cfg.GetTWSStep()
	a0 := binFloor(twa, aStep, e.cfg.GetTWAMin(), e.cfg.GetTWAMax())
	s0 := binFloor(tws, sStep, e.cfg.GetTWSMin(), e.cfg.GetTWSMax())
	a1 := math.Min(a0+aStep, e.cfg.GetTWAMax())
	s1 := math.Min(s0+sStep, e.cfg.GetTWSMax())

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cfg.GetInterpolate() || a1 == a0 || s1 == s0 {
		return e.nearestLocked(twa, tws, a0, a1, s0, s1, aStep, sStep)
	}
	return e.bilinearLocked(twa, tws, a0, a1, s0, s1, aStep, sStep)
}

// Performance returns the current performance ratio 100*bsp/target as a
// percentage rounded to one decimal, or nil when no target is available or
// the target is not positive.
func (e *Engine) Performance(twa, tws, bsp float64) *float64 {
	target := e.TargetSpeed(twa, tws)
	if target == nil || *target <= 0 {
		return nil
	}
	ratio := roundTo(100*bsp/(*target), 1)
	return &ratio
}

// nearestLocked picks the populated corner with the smallest Manhattan
// distance to the query point. Callers hold e.mu.
func (e *Engine) nearestLocked(twa, tws, a0, a1, s0, s1, aStep, sStep float64) *float64 {
	var best *float64
	bestDist := math.Inf(1)

	corners := [][2]float64{{a0, s0}, {a1, s0}, {a0, s1}, {a1, s1}}
	seen := make(map[Cell]bool, 4)
	for _, corner := range corners {
		cell := Cell{TWA: binKey(corner[0], aStep), TWS: binKey(corner[1], sStep)}
		if seen[cell] {
			continue
		}
		seen[cell] = true
		v, ok := e.matrix[cell]
		if !ok {
			continue
		}
		dist := math.Abs(twa-corner[0]) + math.Abs(tws-corner[1])
		if dist < bestDist {
			bestDist = dist
			rounded := roundTo(v, 2)
			best = &rounded
		}
	}
	return best
}

// bilinearLocked blends the four surrounding corners; any missing corner
// falls back to nearest. Callers hold e.mu.
func (e *Engine) bilinearLocked(twa, tws, a0, a1, s0, s1, aStep, sStep float64) *float64 {
	bkA0 := binKey(a0, aStep)
	bkA1 := binKey(a1, aStep)
	bkS0 := binKey(s0, sStep)
	bkS1 := binKey(s1, sStep)

	v00, ok00 := e.matrix[Cell{TWA: bkA0, TWS: bkS0}]
	v10, ok10 := e.matrix[Cell{TWA: bkA1, TWS: bkS0}]
	v01, ok01 := e.matrix[Cell{TWA: bkA0, TWS: bkS1}]
	v11, ok11 := e.matrix[Cell{TWA: bkA1, TWS: bkS1}]
	if !ok00 || !ok10 || !ok01 || !ok11 {
		return e.nearestLocked(twa, tws, a0, a1, s0, s1, aStep, sStep)
	}

	ax := 0.0
	if a1 != a0 {
		ax = (twa - a0) / (a1 - a0)
	}
	sx := 0.0
	if s1 != s0 {
		sx = (tws - s0) / (s1 - s0)
	}
	v0 := v00*(1-ax) + v10*ax
	v1 := v01*(1-ax) + v11*ax
	blended := roundTo(v0*(1-sx)+v1*sx, 2)
	return &blended
}
