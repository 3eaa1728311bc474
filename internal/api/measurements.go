package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/banshee-data/magfield.report/internal/httputil"
	"github.com/banshee-data/magfield.report/internal/ingest"
	"github.com/banshee-data/magfield.report/internal/version"
)

// writeDecodeError maps a decode failure onto 413 or 400.
func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httputil.WriteJSONError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	httputil.BadRequest(w, err.Error())
}

func (s *Server) postMeasurement(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}

	sample, err := ingest.DecodeSample(http.MaxBytesReader(w, r.Body, maxSampleBytes))
	if err != nil {
		writeDecodeError(w, err)
		return
	}

	id, err := s.db.InsertMeasurement(r.Context(), sample.ToMeasurement())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to store measurement: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) postBatch(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}

	samples, err := ingest.DecodeBatch(http.MaxBytesReader(w, r.Body, maxBatchBytes))
	if err != nil {
		writeDecodeError(w, err)
		return
	}

	batchID, err := s.db.InsertBatch(r.Context(), ingest.ToMeasurements(samples))
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to store batch: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"batch_id": batchID,
		"count":    len(samples),
	})
}

func (s *Server) showIngestStats(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	if s.ingestStats == nil {
		httputil.NotFound(w, "serial ingest is not running")
		return
	}
	httputil.WriteJSONOK(w, s.ingestStats())
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}

	names, err := s.db.SessionNames(r.Context())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to list sessions: %v", err))
		return
	}
	if names == nil {
		names = []string{}
	}
	httputil.WriteJSONOK(w, names)
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// exportFilename names the CSV download after the session, if any.
func exportFilename(session string) string {
	if session == "" {
		return "measurements.csv"
	}
	name := unsafeFilenameChars.ReplaceAllString(session, "_")
	return "measurements_" + name + ".csv"
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	session := r.URL.Query().Get("session")

	// buffered so a failure part way through can still become a JSON error
	var buf bytes.Buffer
	n, err := s.db.ExportCSV(r.Context(), &buf, session)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to export measurements: %v", err))
		return
	}
	if n == 0 && session != "" {
		httputil.NotFound(w, fmt.Sprintf("no measurements for session %q", session))
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, exportFilename(session)))
	httputil.WriteBody(w, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, s.cfg.Effective())
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, version.Get())
}
