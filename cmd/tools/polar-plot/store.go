package main

import (
	"time"

	"github.com/saildata/polar.report/internal/polar"
)

// discardStore satisfies the engine's persistence interface for one-shot
// rendering runs where nothing needs to survive the process.
type discardStore struct{}

func (discardStore) LoadState() (*polar.State, error) { return nil, nil }
func (discardStore) SaveState(*polar.State) error     { return nil }
func (discardStore) RecordSample(twa, tws, bsp float64, cell string, ts time.Time) error {
	return nil
}
