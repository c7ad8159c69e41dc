package polar

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// backupVersion is the single supported backup blob format version.
const backupVersion = 1

// ErrUnsupportedVersion rejects blobs written by an incompatible format.
var ErrUnsupportedVersion = errors.New("unsupported polar backup version")

// BackupPayload is the wire document inside a backup blob. It snapshots the
// matrix together with the binning configuration it was recorded under, so
// an operator can tell what a restored matrix meant.
type BackupPayload struct {
	Version   int                `json:"version"`
	Matrix    map[string]float64 `json:"matrix"`
	TWAMin    float64            `json:"twa_min"`
	TWAMax    float64            `json:"twa_max"`
	TWAStep   float64            `json:"twa_step"`
	TWSMin    float64            `json:"tws_min"`
	TWSMax    float64            `json:"tws_max"`
	TWSStep   float64            `json:"tws_step"`
	FoldTo180 bool               `json:"fold_to_180"`
	TS        *float64           `json:"ts"`
	Recording bool               `json:"recording"`
}

// ExportPayload captures all state needed for a backup blob.
func (e *Engine) ExportPayload() BackupPayload {
	e.mu.Lock()
	defer e.mu.Unlock()

	matrix := make(map[string]float64, len(e.matrix))
	for cell, v := range e.matrix {
		matrix[cell.String()] = v
	}
	return BackupPayload{
		Version:   backupVersion,
		Matrix:    matrix,
		TWAMin:    e.cfg.GetTWAMin(),
		TWAMax:    e.cfg.GetTWAMax(),
		TWAStep:   e.cfg.GetTWAStep(),
		TWSMin:    e.cfg.GetTWSMin(),
		TWSMax:    e.cfg.GetTWSMax(),
		TWSStep:   e.cfg.GetTWSStep(),
		FoldTo180: e.cfg.GetFoldTo180(),
		TS:        e.lastUpdateTS,
		Recording: e.recording,
	}
}

// ExportBlob serializes the payload as compact JSON, compresses it at the
// maximum level, and base64-encodes the result so the blob is safe to embed
// in text attributes.
func (e *Engine) ExportBlob() (string, error) {
	data, err := json.Marshal(e.ExportPayload())
	if err != nil {
		return "", fmt.Errorf("failed to marshal backup payload: %w", err)
	}

	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return "", fmt.Errorf("failed to create compressor: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return "", fmt.Errorf("failed to compress backup payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish compression: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// decodeBlob reverses the blob pipeline back to a payload.
func decodeBlob(blob string) (*BackupPayload, error) {
	comp, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to decode backup blob: %w", err)
	}
	zr, err := zlib.NewReader(bytes.NewReader(comp))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress backup blob: %w", err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup blob: %w", err)
	}

	var payload BackupPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse backup payload: %w", err)
	}
	if payload.Version != backupVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, payload.Version)
	}
	return &payload, nil
}

// ImportBlob loads a blob into live state. Only the volatile parts are
// restored: matrix, last-update timestamp, and recording flag. The
// operator's current binning configuration stays authoritative. The caller
// is responsible for persisting and notifying afterwards; use RestoreBackup
// for the full sequence.
func (e *Engine) ImportBlob(blob string) error {
	payload, err := decodeBlob(blob)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.matrix = make(map[Cell]float64, len(payload.Matrix))
	for k, v := range payload.Matrix {
		if cell, ok := ParseCell(k); ok {
			e.matrix[cell] = v
		}
	}
	e.lastUpdateTS = payload.TS
	e.recording = payload.Recording
	e.mu.Unlock()
	return nil
}

// RotateBackup pushes latest→previous→oldest and stores blob as the new
// latest generation with a freshly formatted local timestamp.
func (e *Engine) RotateBackup(blob string) error {
	now := e.clock.Now().Format("06-01-02 15:04:05")

	e.mu.Lock()
	e.backups.B3, e.backups.T3 = e.backups.B2, e.backups.T2
	e.backups.B2, e.backups.T2 = e.backups.B1, e.backups.T1
	e.backups.B1, e.backups.T1 = &blob, &now
	e.mu.Unlock()

	if err := e.save(); err != nil {
		return err
	}
	e.notify()
	return nil
}

// Backup snapshots the current state into the rotating slots.
func (e *Engine) Backup() error {
	blob, err := e.ExportBlob()
	if err != nil {
		return err
	}
	return e.RotateBackup(blob)
}

// BackupBlob returns the stored blob for "latest", "previous", or "oldest",
// or nil if that generation is empty.
func (e *Engine) BackupBlob(which string) *string {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch strings.ToLower(which) {
	case "", "latest":
		return e.backups.B1
	case "previous":
		return e.backups.B2
	case "oldest":
		return e.backups.B3
	}
	return nil
}

// RestoreBackup imports the requested generation, persists, and notifies.
func (e *Engine) RestoreBackup(which string) error {
	blob := e.BackupBlob(which)
	if blob == nil {
		return fmt.Errorf("%w: %q", ErrNoBackup, which)
	}
	if err := e.ImportBlob(*blob); err != nil {
		return err
	}
	if err := e.save(); err != nil {
		return err
	}
	e.notify()
	return nil
}
