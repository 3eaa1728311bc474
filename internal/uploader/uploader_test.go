package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/magfield.report/internal/api"
	"github.com/banshee-data/magfield.report/internal/db"
	"github.com/banshee-data/magfield.report/internal/httputil"
	"github.com/banshee-data/magfield.report/internal/ingest"
	"github.com/banshee-data/magfield.report/internal/monitoring"
)

const ndjson = `# logger v2 ready
{"timestamp":0,"magnetic":{"magnitude":40},"acceleration":{}}

{"session_name":"other","timestamp":1000,"magnetic":{"magnitude":41},"acceleration":{"x":1}}
{"timestamp":2000,"magnetic":{"magnitude":42},"acceleration":{"y":1}}
`

func TestReadSamples_Lines(t *testing.T) {
	samples, err := ReadSamples(strings.NewReader(ndjson), "walk")
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, "walk", samples[0].SessionName)
	assert.Equal(t, "other", samples[1].SessionName)
	assert.Equal(t, 42.0, samples[2].Magnetic.Magnitude)
}

func TestReadSamples_Array(t *testing.T) {
	body := `
  [{"session_name":"a","timestamp":1,"magnetic":{"magnitude":1},"acceleration":{}},
   {"timestamp":2,"magnetic":{"magnitude":2},"acceleration":{}}]`
	samples, err := ReadSamples(strings.NewReader(body), "walk")
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "a", samples[0].SessionName)
	assert.Equal(t, "walk", samples[1].SessionName)

	_, err = ReadSamples(strings.NewReader(`[{"timestamp":1,"magnetic":{"magnitude":1},"acceleration":{}},{"timestamp":-1}]`), "s")
	assert.ErrorIs(t, err, ingest.ErrInvalidSample)
	assert.ErrorContains(t, err, "sample 1")
}

func TestReadSamples_Errors(t *testing.T) {
	for name, body := range map[string]string{
		"empty":       "",
		"whitespace":  " \n\t",
		"only status": "# nothing recorded\n",
		"bad line":    "{\"timestamp\":1}\n",
		"bad array":   "[]",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadSamples(strings.NewReader(body), "s")
			assert.ErrorIs(t, err, ingest.ErrInvalidSample)
		})
	}

	_, err := ReadSamples(strings.NewReader("\n{\"timestamp\":1}\n"), "s")
	assert.ErrorContains(t, err, "line 2")
}

func samples(t *testing.T, n int) []ingest.Sample {
	t.Helper()
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString(`{"timestamp":`)
		b.WriteString(strings.Repeat("1", i+1))
		b.WriteString(`,"magnetic":{"magnitude":1},"acceleration":{}}` + "\n")
	}
	out, err := ReadSamples(strings.NewReader(b.String()), "s")
	require.NoError(t, err)
	return out
}

func TestUpload_Batches(t *testing.T) {
	mock := httputil.NewMockHTTPClient().
		AddResponse(http.StatusCreated, `{"batch_id":"b1","count":2}`).
		AddResponse(http.StatusCreated, `{"batch_id":"b2","count":1}`)
	c := &Client{HTTP: mock, BaseURL: "http://magmap:8080/", BatchSize: 2}

	res, err := c.Upload(context.Background(), samples(t, 3))
	require.NoError(t, err)
	assert.Equal(t, Result{Samples: 3, BatchIDs: []string{"b1", "b2"}}, res)

	require.Equal(t, 2, mock.RequestCount())
	req, body := mock.Request(0)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "http://magmap:8080/measurements/batch", req.URL.String())
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	var sent []ingest.Sample
	require.NoError(t, json.Unmarshal(body, &sent))
	assert.Len(t, sent, 2)
}

func TestUpload_StopsOnFailure(t *testing.T) {
	mock := httputil.NewMockHTTPClient().
		AddResponse(http.StatusCreated, `{"batch_id":"b1"}`).
		AddResponse(http.StatusBadRequest, `{"error":"sample 0: invalid sample"}`)
	c := &Client{HTTP: mock, BaseURL: "http://magmap", BatchSize: 1}

	res, err := c.Upload(context.Background(), samples(t, 3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch at sample 1")
	assert.Contains(t, err.Error(), "server returned 400: sample 0: invalid sample")
	assert.Equal(t, Result{Samples: 1, BatchIDs: []string{"b1"}}, res)
	assert.Equal(t, 2, mock.RequestCount())
}

func TestUpload_TransportError(t *testing.T) {
	mock := httputil.NewMockHTTPClient().AddErrorResponse(errors.New("connection refused"))
	c := &Client{HTTP: mock, BaseURL: "http://magmap"}

	_, err := c.Upload(context.Background(), samples(t, 1))
	assert.ErrorContains(t, err, "connection refused")
}

func TestBatchSizeDefault(t *testing.T) {
	assert.Equal(t, DefaultBatchSize, (&Client{}).batchSize())
	assert.Equal(t, DefaultBatchSize, (&Client{BatchSize: ingest.MaxBatchSize + 1}).batchSize())
	assert.Equal(t, 7, (&Client{BatchSize: 7}).batchSize())
}

func TestUpload_AgainstServer(t *testing.T) {
	defer monitoring.Mute()()

	store, err := db.NewDB(filepath.Join(t.TempDir(), "magmap.db"))
	require.NoError(t, err)
	defer store.Close()

	srv := httptest.NewServer(api.NewServer(nil, store, nil).ServeMux())
	defer srv.Close()

	in, err := ReadSamples(strings.NewReader(ndjson), "walk")
	require.NoError(t, err)

	c := &Client{HTTP: srv.Client(), BaseURL: srv.URL, BatchSize: 2}
	res, err := c.Upload(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Samples)
	assert.Len(t, res.BatchIDs, 2)

	names, err := store.SessionNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"other", "walk"}, names)
}
