package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/banshee-data/magfield.report/internal/charts"
	"github.com/banshee-data/magfield.report/internal/config"
	"github.com/banshee-data/magfield.report/internal/db"
	"github.com/banshee-data/magfield.report/internal/mapping"
	"github.com/banshee-data/magfield.report/internal/render"
	"github.com/banshee-data/magfield.report/internal/uploader"
)

func runMigrate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbPath := fs.String("db-path", defaultDBPath, "Path to the SQLite database")
	dev := fs.Bool("dev", false, "Read migrations from disk instead of the embedded copy")
	if err := fs.Parse(args); err != nil {
		return err
	}
	db.DevMode = *dev
	return db.RunMigrateCommand(fs.Args(), *dbPath, out)
}

func runExport(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	dbPath := fs.String("db-path", defaultDBPath, "Path to the SQLite database")
	session := fs.String("session", "", "Export only this session")
	output := fs.String("output", "", "CSV file to write (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	var buf bytes.Buffer
	n, err := store.ExportCSV(context.Background(), &buf, *session)
	if err != nil {
		return err
	}
	if *session != "" && n == 0 {
		return fmt.Errorf("no measurements for session %q", *session)
	}

	if *output == "" {
		_, err := out.Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(*output, buf.Bytes(), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %d measurements to %s\n", n, *output)
	return nil
}

func runRender(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	dbPath := fs.String("db-path", defaultDBPath, "Path to the SQLite database")
	configPath := fs.String("config", "", "JSON or YAML configuration file")
	session := fs.String("session", "", "Render only this session")
	kind := fs.String("kind", "heatmap", "What to render: paths or heatmap")
	output := fs.String("output", "", "Output file; .html renders an interactive chart, .png/.svg/.pdf a static image")
	gridSize := fs.Int("grid-size", 0, "Heatmap grid size override")
	radius := fs.Float64("radius", 0, "Heatmap neighbourhood radius override, in metres")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *output == "" {
		return fmt.Errorf("--output is required")
	}
	if *kind != "paths" && *kind != "heatmap" {
		return fmt.Errorf("unknown --kind %q, want paths or heatmap", *kind)
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(*output)), ".")
	if ext != "html" && !slices.Contains(render.Formats, ext) {
		return fmt.Errorf("unsupported output extension %q", filepath.Ext(*output))
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return err
	}
	params := cfg.HeatmapParams(*gridSize, *radius)
	if err := params.Validate(); err != nil {
		return err
	}

	store, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	paths, err := mapping.LoadPaths(context.Background(), store, *session, cfg.SessionOptions())
	if err != nil {
		return err
	}

	if ext == "html" {
		err = renderChart(*output, *kind, paths, cfg, params)
	} else {
		err = renderImage(*output, *kind, paths, cfg, params)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "rendered %s of %d sessions to %s\n", *kind, len(paths), *output)
	return nil
}

func renderChart(path, kind string, paths []mapping.Path, cfg *config.Config, params mapping.HeatmapParams) error {
	var buf bytes.Buffer
	if kind == "paths" {
		if err := charts.RenderPaths(&buf, paths); err != nil {
			return err
		}
	} else {
		var cells []mapping.GridCell
		if positions := mapping.Flatten(paths); len(positions) > 0 {
			var err error
			if cells, err = cfg.Interpolate(positions, params); err != nil {
				return err
			}
		}
		if err := charts.RenderHeatmap(&buf, cells, params); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func renderImage(path, kind string, paths []mapping.Path, cfg *config.Config, params mapping.HeatmapParams) error {
	if kind == "paths" {
		p, err := render.PathsPlot(paths)
		if err != nil {
			return err
		}
		return render.Save(p, path)
	}
	p, err := render.Heatmap(mapping.Flatten(paths), params, cfg.Interpolate)
	if err != nil {
		return err
	}
	return render.Save(p, path)
}

func runUpload(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	server := fs.String("server", "http://localhost:8080", "Base URL of the magmap server")
	file := fs.String("file", "", "Sample file: a JSON array or one JSON sample per line (default stdin)")
	session := fs.String("session", "", "Session name for samples without one (default upload-<timestamp>)")
	batchSize := fs.Int("batch-size", uploader.DefaultBatchSize, "Samples per request")
	timeout := fs.Duration("timeout", 30*time.Second, "Per-request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var r io.Reader = os.Stdin
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	name := *session
	if name == "" {
		name = "upload-" + time.Now().UTC().Format("20060102-150405")
	}
	samples, err := uploader.ReadSamples(r, name)
	if err != nil {
		return err
	}

	c := &uploader.Client{
		HTTP:      &http.Client{Timeout: *timeout},
		BaseURL:   *server,
		BatchSize: *batchSize,
	}
	res, err := c.Upload(context.Background(), samples)
	fmt.Fprintf(out, "uploaded %d of %d samples in %d batches\n", res.Samples, len(samples), len(res.BatchIDs))
	return err
}
