// Package uploader posts recorded samples to a running magmap server, the way
// the phone client does after a walk.
package uploader

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/banshee-data/magfield.report/internal/httputil"
	"github.com/banshee-data/magfield.report/internal/ingest"
)

// DefaultBatchSize is the number of samples posted per request.
const DefaultBatchSize = 500

type Client struct {
	HTTP      httputil.HTTPClient
	BaseURL   string // e.g. http://localhost:8080
	BatchSize int
}

// Result summarises an upload.
type Result struct {
	Samples  int
	BatchIDs []string
}

// ReadSamples reads a JSON array of samples or newline-delimited samples as
// printed by the serial logger. Samples without a session_name are assigned
// defaultSession; blank and '#' lines are skipped.
func ReadSamples(r io.Reader, defaultSession string) ([]ingest.Sample, error) {
	br := bufio.NewReader(r)
	first, skipped, err := firstNonSpace(br)
	if err == io.EOF {
		return nil, fmt.Errorf("%w: no samples", ingest.ErrInvalidSample)
	}
	if err != nil {
		return nil, err
	}

	var samples []ingest.Sample
	if first == '[' {
		var raw []json.RawMessage
		if err := json.NewDecoder(br).Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ingest.ErrInvalidSample, err)
		}
		for i, r := range raw {
			s, _, err := ingest.ParseLine(string(r), defaultSession)
			if err != nil {
				return nil, fmt.Errorf("sample %d: %w", i, err)
			}
			samples = append(samples, s)
		}
		if len(samples) == 0 {
			return nil, fmt.Errorf("%w: no samples", ingest.ErrInvalidSample)
		}
		return samples, nil
	}

	sc := bufio.NewScanner(br)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for n := skipped + 1; sc.Scan(); n++ {
		s, ok, err := ingest.ParseLine(sc.Text(), defaultSession)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if ok {
			samples = append(samples, s)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no samples", ingest.ErrInvalidSample)
	}
	return samples, nil
}

// firstNonSpace skips leading whitespace, leaving the next byte unread, and
// reports how many newlines it consumed.
func firstNonSpace(br *bufio.Reader) (b byte, newlines int, err error) {
	for {
		b, err = br.ReadByte()
		if err != nil {
			return 0, newlines, err
		}
		switch b {
		case '\n':
			newlines++
			continue
		case ' ', '\t', '\r':
			continue
		}
		return b, newlines, br.UnreadByte()
	}
}

func (c *Client) batchSize() int {
	if c.BatchSize <= 0 || c.BatchSize > ingest.MaxBatchSize {
		return DefaultBatchSize
	}
	return c.BatchSize
}

// Upload posts samples in batches. It stops at the first failed batch;
// batches already accepted stay stored and are listed in the result.
func (c *Client) Upload(ctx context.Context, samples []ingest.Sample) (Result, error) {
	var res Result
	size := c.batchSize()
	for start := 0; start < len(samples); start += size {
		end := min(start+size, len(samples))
		id, err := c.postBatch(ctx, samples[start:end])
		if err != nil {
			return res, fmt.Errorf("batch at sample %d: %w", start, err)
		}
		res.Samples += end - start
		res.BatchIDs = append(res.BatchIDs, id)
	}
	return res, nil
}

func (c *Client) postBatch(ctx context.Context, batch []ingest.Sample) (string, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return "", err
	}
	url := strings.TrimRight(c.BaseURL, "/") + "/measurements/batch"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
	}

	var ok struct {
		BatchID string `json:"batch_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ok); err != nil {
		return "", fmt.Errorf("failed to decode server response: %w", err)
	}
	return ok.BatchID, nil
}
