package mapping

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/magfield.report/internal/monitoring"
)

// DefaultSessionWorkers bounds how many sessions are reconstructed at once.
const DefaultSessionWorkers = 4

// SessionSource supplies the stored sessions. SessionMeasurements must return
// the measurements of one session in ascending timestamp order.
type SessionSource interface {
	SessionNames(ctx context.Context) ([]string, error)
	SessionMeasurements(ctx context.Context, name string) ([]Measurement, error)
}

// SessionOptions selects the optional processing applied around
// reconstruction. The zero value runs the bare recurrence.
type SessionOptions struct {
	// MedianWindow > 1 median-filters acceleration before integrating.
	MedianWindow int
	// CloseLoop pulls the end of each path back onto its start.
	CloseLoop bool
	// Workers caps concurrent sessions; zero means DefaultSessionWorkers.
	Workers int
}

func (o SessionOptions) workers() int {
	if o.Workers <= 0 {
		return DefaultSessionWorkers
	}
	return o.Workers
}

// GroupBySession splits a mixed stream into one stable-sorted Series per
// session. Series are ordered by session name.
func GroupBySession(ms []Measurement) []Series {
	groups := make(map[string][]Measurement)
	for _, m := range ms {
		groups[m.SessionName] = append(groups[m.SessionName], m)
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Series, 0, len(names))
	for _, name := range names {
		out = append(out, NewSeries(groups[name]))
	}
	return out
}

// ReconstructSessions builds one Path per series. Sessions are independent and
// run concurrently; the result keeps the order of series. The first failure
// cancels the rest and is returned.
func ReconstructSessions(ctx context.Context, series []Series, opts SessionOptions) ([]Path, error) {
	paths := make([]Path, len(series))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for i, s := range series {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := reconstructSession(s, opts)
			if err != nil {
				return err
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func reconstructSession(s Series, opts SessionOptions) (Path, error) {
	if opts.MedianWindow > 1 {
		s = MedianFilter(s, opts.MedianWindow)
	}
	p, err := ReconstructPath(s)
	if err != nil {
		return Path{}, err
	}
	if opts.CloseLoop {
		p = CloseLoop(p)
	}
	return p, nil
}

// ErrUnknownSession is returned by LoadPaths for a session with no stored
// measurements.
var ErrUnknownSession = errors.New("mapping: unknown session")

// LoadPaths reconstructs the named session from src, or every session when
// name is empty.
func LoadPaths(ctx context.Context, src SessionSource, name string, opts SessionOptions) ([]Path, error) {
	if name == "" {
		return BuildPaths(ctx, src, opts)
	}
	ms, err := src.SessionMeasurements(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load session %q: %w", name, err)
	}
	if len(ms) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSession, name)
	}
	return ReconstructSessions(ctx, []Series{AssumeSorted(ms)}, opts)
}

// BuildPaths loads every session from src and reconstructs it.
func BuildPaths(ctx context.Context, src SessionSource, opts SessionOptions) ([]Path, error) {
	names, err := src.SessionNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	series := make([]Series, 0, len(names))
	for _, name := range names {
		ms, err := src.SessionMeasurements(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("load session %q: %w", name, err)
		}
		if len(ms) == 0 {
			return nil, fmt.Errorf("session %q: %w", name, ErrEmptySeries)
		}
		series = append(series, AssumeSorted(ms))
	}
	paths, err := ReconstructSessions(ctx, series, opts)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("reconstructed %d sessions", len(paths))
	return paths, nil
}

// Flatten concatenates the positions of paths in order, forming the pool the
// interpolator works on.
func Flatten(paths []Path) []Position {
	n := 0
	for _, p := range paths {
		n += len(p.Positions)
	}
	out := make([]Position, 0, n)
	for _, p := range paths {
		out = append(out, p.Positions...)
	}
	return out
}
