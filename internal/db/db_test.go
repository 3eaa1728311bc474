package db

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/magfield.report/internal/mapping"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sample(session string, ts int64, ax, ay, az, mag float64) mapping.Measurement {
	return mapping.Measurement{
		Timestamp:         ts,
		SessionName:       session,
		AccelerationX:     ax,
		AccelerationY:     ay,
		AccelerationZ:     az,
		MagneticMagnitude: mag,
	}
}

func ptr(f float64) *float64 { return &f }

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout, foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 5000, busyTimeout)
	assert.Equal(t, 1, foreignKeys)
}

func TestNewDB_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	db1, err := NewDB(path)
	require.NoError(t, err)
	_, err = db1.InsertMeasurement(context.Background(), sample("keep", 1, 0, 0, 0, 1))
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	db2, err := NewDB(path)
	require.NoError(t, err)
	defer db2.Close()
	n, err := db2.CountMeasurements(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInsertMeasurement_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	m := sample("walk", 1700000000123, 0.1, -0.2, 9.5e-3, 48.25)
	m.MagneticX, m.MagneticY, m.MagneticZ = 20, -30, 31.5
	m.Pitch, m.Roll, m.Yaw = 0.1, 0.2, 0.3
	m.Location = &mapping.Location{Latitude: 51.5072, Longitude: -0.1276, Accuracy: ptr(4.5)}

	id, err := db.InsertMeasurement(ctx, m)
	require.NoError(t, err)
	assert.Positive(t, id)

	bare := sample("walk", 1700000000200, 1, 1, 1, 50)
	_, err = db.InsertMeasurement(ctx, bare)
	require.NoError(t, err)

	got, err := db.SessionMeasurements(ctx, "walk")
	require.NoError(t, err)
	require.Len(t, got, 2)

	m.ID = id
	if diff := cmp.Diff(m, got[0]); diff != "" {
		t.Errorf("measurement mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, got[1].Location)
	assert.Empty(t, got[1].BatchID)
}

func TestSessionMeasurements_OrderedByTimestampThenArrival(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, m := range []mapping.Measurement{
		sample("s", 300, 3, 0, 0, 0),
		sample("s", 100, 1, 0, 0, 0),
		sample("s", 200, 2, 0, 0, 0),
		sample("s", 200, 2.5, 0, 0, 0),
		sample("other", 50, 9, 0, 0, 0),
	} {
		_, err := db.InsertMeasurement(ctx, m)
		require.NoError(t, err)
	}

	got, err := db.SessionMeasurements(ctx, "s")
	require.NoError(t, err)
	var xs []float64
	for _, m := range got {
		xs = append(xs, m.AccelerationX)
	}
	assert.Equal(t, []float64{1, 2, 2.5, 3}, xs)

	names, err := db.SessionNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"other", "s"}, names)

	none, err := db.SessionMeasurements(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestInsertBatch(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	batch := []mapping.Measurement{
		sample("b", 0, 0, 0, 0, 10),
		sample("b", 1000, 1, 0, 0, 20),
		sample("c", 0, 0, 0, 0, 30),
	}
	id1, err := db.InsertBatch(ctx, batch)
	require.NoError(t, err)
	id2, err := db.InsertBatch(ctx, batch[:1])
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	all, err := db.Measurements(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	batches := map[string]int{}
	for _, m := range all {
		batches[m.BatchID]++
	}
	assert.Equal(t, map[string]int{id1: 3, id2: 1}, batches)
}

func TestInsertBatch_Empty(t *testing.T) {
	db := newTestDB(t)
	id, err := db.InsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	n, err := db.CountMeasurements(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInsertBatch_CancelledContextStoresNothing(t *testing.T) {
	db := newTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := db.InsertBatch(ctx, []mapping.Measurement{sample("x", 0, 0, 0, 0, 0)})
	require.Error(t, err)

	n, err := db.CountMeasurements(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStoreFeedsBuildPaths(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.InsertBatch(ctx, []mapping.Measurement{
		sample("A", 2000, 0, 1, 0, 20),
		sample("A", 0, 0, 0, 0, 0),
		sample("A", 1000, 1, 0, 0, 10),
	})
	require.NoError(t, err)

	paths, err := mapping.BuildPaths(ctx, db, mapping.SessionOptions{})
	require.NoError(t, err)
	require.Len(t, paths, 1)

	want := []mapping.Position{
		{X: 1, Y: 0, Z: 0, Timestamp: 1000, SessionName: "A", MagneticMagnitude: 10},
		{X: 2, Y: 1, Z: 0, Timestamp: 2000, SessionName: "A", MagneticMagnitude: 20},
	}
	if diff := cmp.Diff(want, paths[0].Positions, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("positions mismatch (-want +got):\n%s", diff)
	}
}

func TestAttachAdminRoutes_Registered(t *testing.T) {
	db := newTestDB(t)
	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	// may be refused by the debug access check, but must not be 404
	for _, endpoint := range []string{"/debug/backup", "/debug/tailsql/"} {
		t.Run(endpoint, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, endpoint, nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			if w.Code == http.StatusNotFound {
				t.Errorf("Endpoint %s should be registered, got 404", endpoint)
			}
		})
	}
}

func TestServeBackup(t *testing.T) {
	db := newTestDB(t)
	_, err := db.InsertMeasurement(context.Background(), sample("bk", 1, 0, 0, 0, 1))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	db.serveBackup(w, httptest.NewRequest(http.MethodGet, "/debug/backup", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/gzip", w.Header().Get("Content-Type"))

	gz, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	raw, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("SQLite format 3\x00")))
}
