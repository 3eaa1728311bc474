package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/banshee-data/magfield.report/internal/mapping"
)

// MaxBatchSize caps the number of samples accepted in one batch.
const MaxBatchSize = 10000

func newDecoder(r io.Reader) *json.Decoder {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec
}

// decodeOne decodes exactly one JSON value into v and rejects trailing data.
func decodeOne(r io.Reader, v any) error {
	dec := newDecoder(r)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrInvalidSample)
		}
		return fmt.Errorf("%w: %w", ErrInvalidSample, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after JSON value", ErrInvalidSample)
	}
	return nil
}

// DecodeSample reads and validates a single sample.
func DecodeSample(r io.Reader) (Sample, error) {
	var s Sample
	if err := decodeOne(r, &s); err != nil {
		return Sample{}, err
	}
	if err := s.Validate(); err != nil {
		return Sample{}, err
	}
	return s, nil
}

// DecodeBatch reads a JSON array of samples. The whole batch is rejected if
// any sample is invalid, and the error names its index.
func DecodeBatch(r io.Reader) ([]Sample, error) {
	var samples []Sample
	if err := decodeOne(r, &samples); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: batch is empty", ErrInvalidSample)
	}
	if len(samples) > MaxBatchSize {
		return nil, fmt.Errorf("%w: batch of %d exceeds %d samples", ErrInvalidSample, len(samples), MaxBatchSize)
	}
	for i, s := range samples {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return samples, nil
}

// ToMeasurements converts validated samples in order.
func ToMeasurements(samples []Sample) []mapping.Measurement {
	out := make([]mapping.Measurement, len(samples))
	for i, s := range samples {
		out[i] = s.ToMeasurement()
	}
	return out
}

// ParseLine decodes one line of serial logger output. Blank lines and
// '#' status lines are not samples and return ok == false with no error.
// A sample with no session_name is assigned defaultSession.
func ParseLine(line, defaultSession string) (s Sample, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Sample{}, false, nil
	}
	if err := decodeOne(strings.NewReader(line), &s); err != nil {
		return Sample{}, false, err
	}
	if strings.TrimSpace(s.SessionName) == "" {
		s.SessionName = defaultSession
	}
	if err := s.Validate(); err != nil {
		return Sample{}, false, err
	}
	return s, true, nil
}
