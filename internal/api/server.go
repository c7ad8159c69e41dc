// Package api exposes the recorder's operations surface over HTTP: state
// and matrix reads, target-speed queries, recording control, backups, CSV
// transfer, and direct matrix edits.
package api

import (
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/saildata/polar.report/internal/fsutil"
	"github.com/saildata/polar.report/internal/polar"
	"github.com/saildata/polar.report/internal/pollrate"
	"github.com/saildata/polar.report/internal/serialmux"
	"github.com/saildata/polar.report/internal/store"
	"github.com/saildata/polar.report/internal/timeutil"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// settleDelay is how long an edit endpoint waits before falling back to the
// stored edit defaults, giving a UI that batches number inputs time to
// finish writing them.
const settleDelay = 80 * time.Millisecond

// EditDefaults are the fallback values used by the edit endpoints when a
// request omits a field.
type EditDefaults struct {
	TWA    float64 `json:"twa"`
	TWS    float64 `json:"tws"`
	BSP    float64 `json:"bsp"`
	Factor float64 `json:"factor"`
}

type Server struct {
	m       serialmux.SerialMuxInterface
	db      *store.DB
	engine  *polar.Engine
	poll    *pollrate.Client
	fs      fsutil.FileSystem
	clock   timeutil.Clock
	dataDir string

	fastPollSeconds float64

	defaultsMu sync.Mutex
	defaults   EditDefaults
}

// NewServer wires the operations surface. fs and clock may be nil, in which
// case the real filesystem and wall clock are used.
func NewServer(m serialmux.SerialMuxInterface, db *store.DB, engine *polar.Engine, poll *pollrate.Client, dataDir string, fastPollSeconds float64, fs fsutil.FileSystem, clock timeutil.Clock) *Server {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Server{
		m:               m,
		db:              db,
		engine:          engine,
		poll:            poll,
		fs:              fs,
		clock:           clock,
		dataDir:         dataDir,
		fastPollSeconds: fastPollSeconds,
		defaults:        EditDefaults{Factor: 1},
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.showState)
	mux.HandleFunc("/api/matrix", s.showMatrix)
	mux.HandleFunc("/api/target", s.showTarget)
	mux.HandleFunc("/api/performance", s.showPerformance)
	mux.HandleFunc("/api/samples", s.listSamples)
	mux.HandleFunc("/api/polar.csv", s.downloadCSV)
	mux.HandleFunc("/api/recording/start", s.startRecording)
	mux.HandleFunc("/api/recording/stop", s.stopRecording)
	mux.HandleFunc("/api/recording/toggle", s.toggleRecording)
	mux.HandleFunc("/api/reset", s.resetMatrix)
	mux.HandleFunc("/api/backup", s.createBackup)
	mux.HandleFunc("/api/restore", s.restoreBackup)
	mux.HandleFunc("/api/export-csv", s.exportCSV)
	mux.HandleFunc("/api/import-csv", s.importCSV)
	mux.HandleFunc("/api/set-cell", s.setCell)
	mux.HandleFunc("/api/clear-cell", s.clearCell)
	mux.HandleFunc("/api/scale-line", s.scaleLine)
	mux.HandleFunc("/api/edit-defaults", s.editDefaults)
	mux.HandleFunc("/command", s.sendCommandHandler)
	return mux
}
