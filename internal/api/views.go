package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/banshee-data/magfield.report/internal/charts"
	"github.com/banshee-data/magfield.report/internal/httputil"
	"github.com/banshee-data/magfield.report/internal/render"
)

const htmlContentType = "text/html; charset=utf-8"

func (s *Server) chartPaths(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}

	paths, err := s.loadPaths(r.Context(), r.URL.Query().Get("session"))
	if err != nil {
		writePathsError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := charts.RenderPaths(&buf, paths); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	httputil.WriteBody(w, htmlContentType, buf.Bytes())
}

func (s *Server) chartHeatmap(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}

	hm, _, status, err := s.heatmap(r)
	if err != nil {
		httputil.WriteJSONError(w, status, err.Error())
		return
	}

	var buf bytes.Buffer
	params := s.cfg.HeatmapParams(hm.GridSize, hm.Radius)
	if err := charts.RenderHeatmap(&buf, hm.Cells, params); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	httputil.WriteBody(w, htmlContentType, buf.Bytes())
}

func (s *Server) chartDashboard(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}

	hm, paths, status, err := s.heatmap(r)
	if err != nil {
		httputil.WriteJSONError(w, status, err.Error())
		return
	}

	var buf bytes.Buffer
	params := s.cfg.HeatmapParams(hm.GridSize, hm.Radius)
	if err := charts.RenderDashboard(&buf, paths, hm.Cells, params); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	httputil.WriteBody(w, htmlContentType, buf.Bytes())
}

func (s *Server) plotPaths(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}

	paths, err := s.loadPaths(r.Context(), r.URL.Query().Get("session"))
	if err != nil {
		writePathsError(w, err)
		return
	}
	p, err := render.PathsPlot(paths)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to plot paths: %v", err))
		return
	}

	var buf bytes.Buffer
	if err := render.Write(&buf, p, "png"); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteBody(w, "image/png", buf.Bytes())
}

func (s *Server) plotHeatmap(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}

	hm, _, status, err := s.heatmap(r)
	if err != nil {
		httputil.WriteJSONError(w, status, err.Error())
		return
	}
	if hm.Lattice == nil {
		httputil.NotFound(w, "no positions to plot")
		return
	}
	p, err := render.HeatmapPlot(*hm.Lattice, hm.Cells)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to plot heatmap: %v", err))
		return
	}

	var buf bytes.Buffer
	if err := render.Write(&buf, p, "png"); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteBody(w, "image/png", buf.Bytes())
}
