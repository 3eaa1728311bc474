package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/banshee-data/magfield.report/internal/mapping"
	"github.com/banshee-data/magfield.report/internal/monitoring"
	"github.com/banshee-data/magfield.report/internal/serialmux"
	"github.com/banshee-data/magfield.report/internal/timeutil"
)

// BatchStore persists a group of measurements atomically.
type BatchStore interface {
	InsertBatch(ctx context.Context, ms []mapping.Measurement) (string, error)
}

// ConsumerOptions tunes a Consumer. Zero values take the defaults.
type ConsumerOptions struct {
	// Session names samples that arrive without one.
	Session string
	// FlushSize is the number of samples buffered before a write.
	FlushSize int
	// FlushInterval bounds how long a sample waits in the buffer.
	FlushInterval time.Duration
	// Clock drives the flush ticker and the default session name.
	Clock timeutil.Clock
}

const (
	DefaultFlushSize     = 50
	DefaultFlushInterval = time.Second
)

// ConsumerStats counts what a Consumer has seen.
type ConsumerStats struct {
	Stored   uint64 `json:"stored"`
	Rejected uint64 `json:"rejected"`
	Skipped  uint64 `json:"skipped"`
	Failed   uint64 `json:"failed"` // samples lost to store errors
}

// Consumer subscribes to a serial mux and stores every valid sample line in
// batches.
type Consumer struct {
	mux   serialmux.SerialMuxInterface
	store BatchStore
	opts  ConsumerOptions

	stored, rejected, skipped, failed atomic.Uint64
}

func NewConsumer(mux serialmux.SerialMuxInterface, store BatchStore, opts ConsumerOptions) *Consumer {
	if opts.FlushSize <= 0 {
		opts.FlushSize = DefaultFlushSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Session == "" {
		opts.Session = "serial-" + opts.Clock.Now().UTC().Format("20060102-150405")
	}
	return &Consumer{mux: mux, store: store, opts: opts}
}

// Session is the name given to samples without one.
func (c *Consumer) Session() string { return c.opts.Session }

// Run consumes lines until the subscription closes or ctx is done. Buffered
// samples are flushed on the way out.
func (c *Consumer) Run(ctx context.Context) error {
	id, lines := c.mux.Subscribe()
	defer c.mux.Unsubscribe(id)

	ticker := c.opts.Clock.NewTicker(c.opts.FlushInterval)
	defer ticker.Stop()

	buf := make([]mapping.Measurement, 0, c.opts.FlushSize)
	flush := func(ctx context.Context) {
		if len(buf) == 0 {
			return
		}
		if _, err := c.store.InsertBatch(ctx, buf); err != nil {
			monitoring.Logf("ingest: failed to store %d serial samples: %v", len(buf), err)
			c.failed.Add(uint64(len(buf)))
		} else {
			c.stored.Add(uint64(len(buf)))
		}
		buf = buf[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush(context.WithoutCancel(ctx))
			return ctx.Err()

		case <-ticker.C():
			flush(ctx)

		case line, ok := <-lines:
			if !ok {
				flush(ctx)
				return nil
			}
			s, isSample, err := ParseLine(line, c.opts.Session)
			switch {
			case err != nil:
				c.rejected.Add(1)
				monitoring.Logf("ingest: dropping serial line: %v", err)
			case !isSample:
				c.skipped.Add(1)
			default:
				buf = append(buf, s.ToMeasurement())
				if len(buf) >= c.opts.FlushSize {
					flush(ctx)
				}
			}
		}
	}
}

func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Stored:   c.stored.Load(),
		Rejected: c.rejected.Load(),
		Skipped:  c.skipped.Load(),
		Failed:   c.failed.Load(),
	}
}
