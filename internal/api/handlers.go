package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/saildata/polar.report/internal/httputil"
	"github.com/saildata/polar.report/internal/polar"
	"github.com/saildata/polar.report/internal/security"
)

// stateResponse is the operational summary served at /api/state.
type stateResponse struct {
	Recording  bool              `json:"recording"`
	CellCount  int               `json:"cell_count"`
	LastUpdate *float64          `json:"last_update"`
	EMATws     *float64          `json:"ema_tws"`
	Backups    map[string]*string `json:"backups"`
}

func backupTimestamps(slots polar.BackupSlots) map[string]*string {
	return map[string]*string{
		"latest":   slots.T1,
		"previous": slots.T2,
		"oldest":   slots.T3,
	}
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	state := s.engine.Snapshot()
	httputil.WriteJSONOK(w, stateResponse{
		Recording:  state.Recording,
		CellCount:  len(state.Matrix),
		LastUpdate: state.TS,
		EMATws:     s.engine.EMA(),
		Backups:    backupTimestamps(state.Backups),
	})
}

func (s *Server) showMatrix(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	// the backup payload already carries the matrix plus the binning
	// configuration it must be read against
	httputil.WriteJSONOK(w, s.engine.ExportPayload())
}

// queryFloat parses a required float query parameter.
func queryFloat(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, errors.New("missing parameter " + name)
	}
	return strconv.ParseFloat(raw, 64)
}

func (s *Server) showTarget(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	twa, err := queryFloat(r, "twa")
	if err != nil {
		httputil.BadRequest(w, "invalid 'twa' parameter")
		return
	}
	tws, err := queryFloat(r, "tws")
	if err != nil {
		httputil.BadRequest(w, "invalid 'tws' parameter")
		return
	}

	httputil.WriteJSONOK(w, map[string]*float64{"target": s.engine.TargetSpeed(twa, tws)})
}

func (s *Server) showPerformance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	twa, err := queryFloat(r, "twa")
	if err != nil {
		httputil.BadRequest(w, "invalid 'twa' parameter")
		return
	}
	tws, err := queryFloat(r, "tws")
	if err != nil {
		httputil.BadRequest(w, "invalid 'tws' parameter")
		return
	}
	bsp, err := queryFloat(r, "bsp")
	if err != nil {
		httputil.BadRequest(w, "invalid 'bsp' parameter")
		return
	}

	httputil.WriteJSONOK(w, map[string]*float64{
		"target":      s.engine.TargetSpeed(twa, tws),
		"performance": s.engine.Performance(twa, tws, bsp),
	})
}

func (s *Server) listSamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	samples, err := s.db.Samples(limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to list samples")
		return
	}
	httputil.WriteJSONOK(w, samples)
}

func (s *Server) downloadCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=polar.csv")
	io.WriteString(w, s.engine.BuildCSV())
}

func (s *Server) startRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.engine.SetRecording(true); err != nil {
		httputil.InternalServerError(w, "failed to persist recording state")
		return
	}
	s.poll.SetFast(s.fastPollSeconds)
	httputil.WriteJSONOK(w, map[string]bool{"recording": true})
}

func (s *Server) stopRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.engine.SetRecording(false); err != nil {
		httputil.InternalServerError(w, "failed to persist recording state")
		return
	}
	s.poll.Reset()
	httputil.WriteJSONOK(w, map[string]bool{"recording": false})
}

func (s *Server) toggleRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	on, err := s.engine.ToggleRecording()
	if err != nil {
		httputil.InternalServerError(w, "failed to persist recording state")
		return
	}
	if on {
		s.poll.SetFast(s.fastPollSeconds)
	} else {
		s.poll.Reset()
	}
	httputil.WriteJSONOK(w, map[string]bool{"recording": on})
}

func (s *Server) resetMatrix(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.engine.Reset(); err != nil {
		httputil.InternalServerError(w, "failed to reset matrix")
		return
	}
	httputil.WriteJSONOK(w, map[string]int{"cell_count": 0})
}

func (s *Server) createBackup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.engine.Backup(); err != nil {
		httputil.InternalServerError(w, "failed to create backup")
		return
	}
	httputil.WriteJSONOK(w, backupTimestamps(s.engine.Snapshot().Backups))
}

func (s *Server) restoreBackup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req struct {
		Which string `json:"which"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}

	err := s.engine.RestoreBackup(req.Which)
	switch {
	case errors.Is(err, polar.ErrNoBackup):
		httputil.NotFound(w, "no such backup")
		return
	case errors.Is(err, polar.ErrUnsupportedVersion):
		httputil.BadRequest(w, "backup has an unsupported format version")
		return
	case err != nil:
		httputil.InternalServerError(w, "failed to restore backup")
		return
	}
	httputil.WriteJSONOK(w, map[string]int{"cell_count": s.engine.CellCount()})
}

// csvPath resolves and validates a CSV path inside the data directory.
func (s *Server) csvPath(requested string) (string, error) {
	if requested == "" {
		requested = "polar.csv"
	}
	path := requested
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dataDir, path)
	}
	if err := security.ValidatePathWithinDirectory(path, s.dataDir); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req struct {
		Path string `json:"path"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, "invalid request body")
			return
		}
	}

	path, err := s.csvPath(req.Path)
	if err != nil {
		httputil.BadRequest(w, "csv path outside data directory")
		return
	}
	if err := s.engine.ExportCSVFile(s.fs, path); err != nil {
		httputil.InternalServerError(w, "failed to write csv")
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"path": path})
}

func (s *Server) importCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req struct {
		Path        string `json:"path"`
		Merge       bool   `json:"merge"`
		FillMissing bool   `json:"fill_missing"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, "invalid request body")
			return
		}
	}

	path, err := s.csvPath(req.Path)
	if err != nil {
		httputil.BadRequest(w, "csv path outside data directory")
		return
	}

	// snapshot the matrix before clobbering it, so a bad import can be
	// rolled back from the latest backup slot
	if err := s.engine.Backup(); err != nil {
		httputil.InternalServerError(w, "failed to back up before import")
		return
	}

	err = s.engine.ImportCSVFile(s.fs, path, req.Merge, req.FillMissing)
	switch {
	case errors.Is(err, polar.ErrCSVNoHeader), errors.Is(err, polar.ErrCSVNoTWSBins):
		httputil.BadRequest(w, err.Error())
		return
	case err != nil:
		httputil.BadRequest(w, "failed to import csv")
		return
	}
	httputil.WriteJSONOK(w, map[string]int{"cell_count": s.engine.CellCount()})
}

// editRequest carries the edit endpoints' parameters. Pointer fields
// distinguish absent from zero; absent fields fall back to the stored edit
// defaults after the settle delay.
type editRequest struct {
	TWA    *float64 `json:"twa"`
	TWS    *float64 `json:"tws"`
	BSP    *float64 `json:"bsp"`
	Factor *float64 `json:"factor"`
}

// resolve fills any missing fields from the edit defaults. The settle wait
// happens at most once per request, only when a fallback is actually needed.
func (s *Server) resolve(req *editRequest) (twa, tws, bsp, factor float64) {
	if req.TWA == nil || req.TWS == nil || req.BSP == nil || req.Factor == nil {
		s.clock.Sleep(settleDelay)
	}
	s.defaultsMu.Lock()
	defer s.defaultsMu.Unlock()
	twa, tws, bsp, factor = s.defaults.TWA, s.defaults.TWS, s.defaults.BSP, s.defaults.Factor
	if req.TWA != nil {
		twa = *req.TWA
	}
	if req.TWS != nil {
		tws = *req.TWS
	}
	if req.BSP != nil {
		bsp = *req.BSP
	}
	if req.Factor != nil {
		factor = *req.Factor
	}
	return twa, tws, bsp, factor
}

func decodeEdit(r *http.Request) (*editRequest, error) {
	var req editRequest
	if r.ContentLength == 0 {
		return &req, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *Server) setCell(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	req, err := decodeEdit(r)
	if err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}
	twa, tws, bsp, _ := s.resolve(req)

	err = s.engine.SetCell(twa, tws, bsp)
	if errors.Is(err, polar.ErrOutOfRange) {
		httputil.BadRequest(w, "twa/tws outside configured ranges")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, "failed to set cell")
		return
	}
	httputil.WriteJSONOK(w, map[string]float64{"twa": twa, "tws": tws, "bsp": bsp})
}

func (s *Server) clearCell(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	req, err := decodeEdit(r)
	if err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}
	twa, tws, _, _ := s.resolve(req)

	err = s.engine.ClearCell(twa, tws)
	if errors.Is(err, polar.ErrOutOfRange) {
		httputil.BadRequest(w, "twa/tws outside configured ranges")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, "failed to clear cell")
		return
	}
	httputil.WriteJSONOK(w, map[string]float64{"twa": twa, "tws": tws})
}

func (s *Server) scaleLine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	req, err := decodeEdit(r)
	if err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}
	_, tws, _, factor := s.resolve(req)

	err = s.engine.ScaleLine(tws, factor)
	if errors.Is(err, polar.ErrBadFactor) {
		httputil.BadRequest(w, "factor must be > 0")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, "failed to scale line")
		return
	}
	httputil.WriteJSONOK(w, map[string]float64{"tws": tws, "factor": factor})
}

func (s *Server) editDefaults(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.defaultsMu.Lock()
		defaults := s.defaults
		s.defaultsMu.Unlock()
		httputil.WriteJSONOK(w, defaults)

	case http.MethodPost:
		var req editRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, "invalid request body")
			return
		}
		s.defaultsMu.Lock()
		if req.TWA != nil {
			s.defaults.TWA = *req.TWA
		}
		if req.TWS != nil {
			s.defaults.TWS = *req.TWS
		}
		if req.BSP != nil {
			s.defaults.BSP = *req.BSP
		}
		if req.Factor != nil {
			s.defaults.Factor = *req.Factor
		}
		defaults := s.defaults
		s.defaultsMu.Unlock()
		httputil.WriteJSONOK(w, defaults)

	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	command := r.FormValue("command")
	if command == "" {
		httputil.BadRequest(w, "missing command")
		return
	}

	if err := s.m.SendCommand(command); err != nil {
		httputil.InternalServerError(w, "failed to send command")
		return
	}
	io.WriteString(w, "Command sent successfully")
}
