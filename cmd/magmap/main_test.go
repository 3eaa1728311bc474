package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/magfield.report/internal/config"
	"github.com/banshee-data/magfield.report/internal/db"
	"github.com/banshee-data/magfield.report/internal/mapping"
	"github.com/banshee-data/magfield.report/internal/monitoring"
	"github.com/banshee-data/magfield.report/internal/serialmux"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

// seededDB creates a migrated database holding one short walk.
func seededDB(t *testing.T, session string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "magmap.db")
	store, err := db.NewDB(path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.InsertBatch(context.Background(), []mapping.Measurement{
		{SessionName: session, Timestamp: 0},
		{SessionName: session, Timestamp: 1000, AccelerationX: 1, MagneticMagnitude: 10},
		{SessionName: session, Timestamp: 2000, AccelerationY: 1, MagneticMagnitude: 20},
	})
	require.NoError(t, err)
	return path
}

func TestRun_Dispatch(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 0, run("version", nil, &stdout, &stderr))
	assert.True(t, strings.HasPrefix(stdout.String(), "magmap version "))

	stdout.Reset()
	assert.Equal(t, 0, run("help", nil, &stdout, &stderr))
	for _, cmd := range []string{"serve", "migrate", "export", "render", "upload", "version"} {
		assert.Contains(t, stdout.String(), "\n  "+cmd+" ")
	}

	assert.Equal(t, 1, run("bogus", nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Unknown command: bogus")
}

func TestRun_ReportsErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run("render", []string{"--kind", "paths"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Error: --output is required")
}

func TestRunMigrate_Status(t *testing.T) {
	path := seededDB(t, "m")
	var out bytes.Buffer
	require.NoError(t, runMigrate([]string{"--db-path", path, "status"}, &out))
	assert.Contains(t, out.String(), "=== Migration Status ===")
	assert.Contains(t, out.String(), "Dirty: false")

	assert.Error(t, runMigrate([]string{"--db-path", path}, &out))
}

func TestRunExport(t *testing.T) {
	path := seededDB(t, "hall")
	var out bytes.Buffer

	require.NoError(t, runExport([]string{"--db-path", path}, &out))
	rows, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, db.CSVHeader, rows[0])

	file := filepath.Join(t.TempDir(), "hall.csv")
	out.Reset()
	require.NoError(t, runExport([]string{"--db-path", path, "--session", "hall", "--output", file}, &out))
	assert.Equal(t, "wrote 3 measurements to "+file+"\n", out.String())
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(string(data), "\n"))

	err = runExport([]string{"--db-path", path, "--session", "ghost"}, &out)
	assert.ErrorContains(t, err, `no measurements for session "ghost"`)
}

func TestRunRender(t *testing.T) {
	path := seededDB(t, "walk")
	dir := t.TempDir()

	cases := []struct {
		kind, file, magic string
	}{
		{"paths", "paths.png", "\x89PNG"},
		{"heatmap", "heatmap.png", "\x89PNG"},
		{"paths", "paths.svg", "<svg"},
		{"heatmap", "heatmap.html", "<html"},
		{"paths", "paths.html", "<html"},
	}
	for _, tc := range cases {
		t.Run(tc.file, func(t *testing.T) {
			out := filepath.Join(dir, tc.file)
			var stdout bytes.Buffer
			args := []string{"--db-path", path, "--kind", tc.kind, "--output", out, "--grid-size", "1", "--radius", "2"}
			require.NoError(t, runRender(args, &stdout))
			assert.Contains(t, stdout.String(), "of 1 sessions")

			data, err := os.ReadFile(out)
			require.NoError(t, err)
			assert.Contains(t, string(data[:min(len(data), 4096)]), tc.magic)
		})
	}
}

func TestRunRender_Errors(t *testing.T) {
	path := seededDB(t, "walk")
	out := filepath.Join(t.TempDir(), "x.png")
	var stdout bytes.Buffer

	assert.ErrorContains(t, runRender([]string{"--db-path", path, "--kind", "contour", "--output", out}, &stdout), "unknown --kind")
	assert.ErrorContains(t, runRender([]string{"--db-path", path, "--output", "x.jpg"}, &stdout), "unsupported output extension")
	assert.Error(t, runRender([]string{"--db-path", path, "--output", out, "--radius", "-1"}, &stdout))
	assert.ErrorIs(t, runRender([]string{"--db-path", path, "--output", out, "--session", "ghost"}, &stdout), mapping.ErrUnknownSession)
}

func TestNewHandler(t *testing.T) {
	store, err := db.NewDB(filepath.Join(t.TempDir(), "magmap.db"))
	require.NoError(t, err)
	defer store.Close()

	h, err := newHandler(serialmux.NewDisabledSerialMux(), store, &config.Config{}, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Origin", "http://phone.local")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `[]`, rec.Body.String())

	// admin routes are mounted, though access may be refused
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/backup", nil))
	assert.NotEqual(t, http.StatusNotFound, rec.Code)
}

func TestRunUpload(t *testing.T) {
	store, err := db.NewDB(filepath.Join(t.TempDir(), "magmap.db"))
	require.NoError(t, err)
	defer store.Close()

	h, err := newHandler(serialmux.NewDisabledSerialMux(), store, &config.Config{}, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	defer srv.Close()

	file := filepath.Join(t.TempDir(), "walk.ndjson")
	require.NoError(t, os.WriteFile(file, []byte(`# start
{"timestamp":0,"magnetic":{"magnitude":40},"acceleration":{}}
{"timestamp":1000,"magnetic":{"magnitude":41},"acceleration":{"x":1}}
{"timestamp":2000,"magnetic":{"magnitude":42},"acceleration":{"y":1}}
`), 0o644))

	var out bytes.Buffer
	args := []string{"--server", srv.URL, "--file", file, "--session", "replay", "--batch-size", "2"}
	require.NoError(t, runUpload(args, &out))
	assert.Equal(t, "uploaded 3 of 3 samples in 2 batches\n", out.String())

	ms, err := store.SessionMeasurements(context.Background(), "replay")
	require.NoError(t, err)
	assert.Len(t, ms, 3)

	err = runUpload([]string{"--server", srv.URL, "--file", filepath.Join(t.TempDir(), "missing.ndjson")}, &out)
	assert.Error(t, err)
}
