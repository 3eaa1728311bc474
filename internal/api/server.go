package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/magfield.report/internal/config"
	"github.com/banshee-data/magfield.report/internal/db"
	"github.com/banshee-data/magfield.report/internal/ingest"
	"github.com/banshee-data/magfield.report/internal/serialmux"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Request body limits.
const (
	maxSampleBytes = 1 << 20
	maxBatchBytes  = 32 << 20
)

type Server struct {
	m   serialmux.SerialMuxInterface
	db  *db.DB
	cfg *config.Config

	ingestStats func() ingest.ConsumerStats
}

// NewServer serves store using cfg. A nil mux or config is replaced by the
// disabled mux and the built-in defaults.
func NewServer(m serialmux.SerialMuxInterface, store *db.DB, cfg *config.Config) *Server {
	if m == nil {
		m = serialmux.NewDisabledSerialMux()
	}
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &Server{
		m:   m,
		db:  store,
		cfg: cfg,
	}
}

// SetIngestStats exposes a serial consumer's counters on /ingest/stats.
func (s *Server) SetIngestStats(f func() ingest.ConsumerStats) {
	s.ingestStats = f
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
	code := strconv.Itoa(statusCode)
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + code + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + code + colorReset
	case statusCode >= 400:
		return colorBoldRed + code + colorReset
	default:
		return code
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

	// ingest
	mux.HandleFunc("/measurement", s.postMeasurement)
	mux.HandleFunc("/measurements/batch", s.postBatch)
	mux.HandleFunc("/ingest/stats", s.showIngestStats)

	// sessions and reconstruction
	mux.HandleFunc("/sessions", s.listSessions)
	mux.HandleFunc("/paths", s.listPaths)
	mux.HandleFunc("/paths/save", s.savePaths)
	mux.HandleFunc("/paths/stored", s.storedPaths)
	mux.HandleFunc("/stats", s.pathStats)
	mux.HandleFunc("/heatmap", s.showHeatmap)
	mux.HandleFunc("/export", s.exportCSV)

	// views
	mux.HandleFunc("/charts", s.chartDashboard)
	mux.HandleFunc("/charts/paths", s.chartPaths)
	mux.HandleFunc("/charts/heatmap", s.chartHeatmap)
	mux.HandleFunc("/plots/paths.png", s.plotPaths)
	mux.HandleFunc("/plots/heatmap.png", s.plotHeatmap)

	mux.HandleFunc("/config", s.showConfig)
	mux.HandleFunc("/version", s.showVersion)
	return mux
}
