package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/banshee-data/magfield.report/internal/db"
	"github.com/banshee-data/magfield.report/internal/httputil"
	"github.com/banshee-data/magfield.report/internal/mapping"
)

// loadPaths reconstructs every stored session, or only session when set.
func (s *Server) loadPaths(ctx context.Context, session string) ([]mapping.Path, error) {
	return mapping.LoadPaths(ctx, s.db, session, s.cfg.SessionOptions())
}

// writePathsError reports a loadPaths failure.
func writePathsError(w http.ResponseWriter, err error) {
	if errors.Is(err, mapping.ErrUnknownSession) {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.InternalServerError(w, fmt.Sprintf("Failed to reconstruct paths: %v", err))
}

// heatmapParams applies the grid_size and radius query overrides to the
// configured parameters. Explicit values are validated, so grid_size=0 is
// rejected rather than falling back to the default.
func (s *Server) heatmapParams(r *http.Request) (mapping.HeatmapParams, error) {
	params := s.cfg.HeatmapParams(0, 0)
	q := r.URL.Query()

	if q.Has("grid_size") {
		g, err := httputil.QueryInt(r, "grid_size")
		if err != nil {
			return params, err
		}
		params.GridSize = g
	}
	if q.Has("radius") {
		radius, err := httputil.QueryFloat(r, "radius")
		if err != nil {
			return params, err
		}
		params.Radius = radius
	}
	return params, params.Validate()
}

func (s *Server) listPaths(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}

	paths, err := s.loadPaths(r.Context(), r.URL.Query().Get("session"))
	if err != nil {
		writePathsError(w, err)
		return
	}
	httputil.WriteJSONOK(w, paths)
}

func (s *Server) pathStats(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}

	paths, err := s.loadPaths(r.Context(), r.URL.Query().Get("session"))
	if err != nil {
		writePathsError(w, err)
		return
	}
	stats := make([]mapping.PathStats, len(paths))
	for i, p := range paths {
		stats[i] = mapping.Summarize(p)
	}
	httputil.WriteJSONOK(w, stats)
}

func (s *Server) savePaths(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}

	paths, err := s.loadPaths(r.Context(), r.URL.Query().Get("session"))
	if err != nil {
		writePathsError(w, err)
		return
	}
	if err := s.db.SavePaths(r.Context(), paths); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to save paths: %v", err))
		return
	}

	sessions := make([]string, len(paths))
	positions := 0
	for i, p := range paths {
		sessions[i] = p.SessionName
		positions += len(p.Positions)
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"sessions":  sessions,
		"positions": positions,
	})
}

// storedPaths returns the saved path of ?session, or the names of every
// session with a saved path.
func (s *Server) storedPaths(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}

	session := r.URL.Query().Get("session")
	if session == "" {
		names, err := s.db.StoredPathNames(r.Context())
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("Failed to list stored paths: %v", err))
			return
		}
		if names == nil {
			names = []string{}
		}
		httputil.WriteJSONOK(w, names)
		return
	}

	p, err := s.db.StoredPath(r.Context(), session)
	if errors.Is(err, db.ErrPathNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to load stored path: %v", err))
		return
	}
	httputil.WriteJSONOK(w, p)
}

// HeatmapResponse is the body of /heatmap.
type HeatmapResponse struct {
	GridSize int                `json:"grid_size"`
	Radius   float64            `json:"radius"`
	Lattice  *mapping.Lattice   `json:"lattice,omitempty"`
	Cells    []mapping.GridCell `json:"cells"`
}

// heatmap interpolates the positions of the requested sessions. The paths
// they came from are returned alongside, with the HTTP status for err.
func (s *Server) heatmap(r *http.Request) (HeatmapResponse, []mapping.Path, int, error) {
	params, err := s.heatmapParams(r)
	if err != nil {
		return HeatmapResponse{}, nil, http.StatusBadRequest, err
	}
	paths, err := s.loadPaths(r.Context(), r.URL.Query().Get("session"))
	if err != nil {
		if errors.Is(err, mapping.ErrUnknownSession) {
			return HeatmapResponse{}, nil, http.StatusNotFound, err
		}
		return HeatmapResponse{}, nil, http.StatusInternalServerError, err
	}

	positions := mapping.Flatten(paths)
	resp := HeatmapResponse{GridSize: params.GridSize, Radius: params.Radius, Cells: []mapping.GridCell{}}
	if len(positions) == 0 {
		return resp, paths, http.StatusOK, nil
	}

	lat, err := mapping.NewLattice(positions, params)
	if err != nil {
		return HeatmapResponse{}, nil, http.StatusUnprocessableEntity, err
	}
	cells, err := s.cfg.Interpolate(positions, params)
	if err != nil {
		return HeatmapResponse{}, nil, http.StatusUnprocessableEntity, err
	}
	resp.Lattice = &lat
	if cells != nil {
		resp.Cells = cells
	}
	return resp, paths, http.StatusOK, nil
}

func (s *Server) showHeatmap(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}

	resp, _, status, err := s.heatmap(r)
	if err != nil {
		httputil.WriteJSONError(w, status, err.Error())
		return
	}
	httputil.WriteJSONOK(w, resp)
}
