package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/magfield.report/internal/mapping"
	"github.com/banshee-data/magfield.report/internal/serialmux"
)

// DefaultConfigPath is the canonical defaults file, relative to the repo root.
const DefaultConfigPath = "config/magmap.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config holds the processing settings. Every field is optional: a nil field
// falls back to the default returned by its Get* accessor, so a partial file
// only overrides what it names.
type Config struct {
	// Heatmap
	GridSize         *int     `json:"grid_size,omitempty" yaml:"grid_size,omitempty"`
	Radius           *float64 `json:"radius,omitempty" yaml:"radius,omitempty"`
	MaxLatticePoints *int     `json:"max_lattice_points,omitempty" yaml:"max_lattice_points,omitempty"`
	UseSpatialIndex  *bool    `json:"use_spatial_index,omitempty" yaml:"use_spatial_index,omitempty"`

	// Reconstruction
	Workers      *int  `json:"workers,omitempty" yaml:"workers,omitempty"`
	MedianWindow *int  `json:"median_window,omitempty" yaml:"median_window,omitempty"`
	CloseLoop    *bool `json:"close_loop,omitempty" yaml:"close_loop,omitempty"`

	// Serial ingest
	Serial        *serialmux.PortOptions `json:"serial,omitempty" yaml:"serial,omitempty"`
	FlushSize     *int                   `json:"flush_size,omitempty" yaml:"flush_size,omitempty"`
	FlushInterval *string                `json:"flush_interval,omitempty" yaml:"flush_interval,omitempty"` // duration string like "1s"
}

// Load reads a Config from a .json, .yaml or .yml file and validates it.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", strings.TrimPrefix(ext, "."), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns an empty Config when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	return Load(path)
}

// Validate checks the values that are set.
func (c *Config) Validate() error {
	if c.GridSize != nil && *c.GridSize < 1 {
		return fmt.Errorf("grid_size must be at least 1, got %d", *c.GridSize)
	}
	if c.Radius != nil && (!(*c.Radius > 0) || math.IsInf(*c.Radius, 0)) {
		return fmt.Errorf("radius must be a positive number, got %v", *c.Radius)
	}
	if c.MaxLatticePoints != nil && *c.MaxLatticePoints < 1 {
		return fmt.Errorf("max_lattice_points must be positive, got %d", *c.MaxLatticePoints)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.MedianWindow != nil && *c.MedianWindow < 0 {
		return fmt.Errorf("median_window must be non-negative, got %d", *c.MedianWindow)
	}
	if c.FlushSize != nil && *c.FlushSize < 1 {
		return fmt.Errorf("flush_size must be at least 1, got %d", *c.FlushSize)
	}
	if c.FlushInterval != nil && *c.FlushInterval != "" {
		d, err := time.ParseDuration(*c.FlushInterval)
		if err != nil {
			return fmt.Errorf("invalid flush_interval '%s': %w", *c.FlushInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("flush_interval must be positive, got %s", d)
		}
	}
	if c.Serial != nil {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}
	return nil
}

func (c *Config) GetGridSize() int {
	if c.GridSize == nil {
		return mapping.DefaultGridSize
	}
	return *c.GridSize
}

func (c *Config) GetRadius() float64 {
	if c.Radius == nil {
		return mapping.DefaultRadius
	}
	return *c.Radius
}

func (c *Config) GetMaxLatticePoints() int {
	if c.MaxLatticePoints == nil {
		return mapping.DefaultMaxLatticePoints
	}
	return *c.MaxLatticePoints
}

// GetUseSpatialIndex reports whether the heatmap uses the k-d tree query.
func (c *Config) GetUseSpatialIndex() bool {
	if c.UseSpatialIndex == nil {
		return true
	}
	return *c.UseSpatialIndex
}

func (c *Config) GetWorkers() int {
	if c.Workers == nil {
		return mapping.DefaultSessionWorkers
	}
	return *c.Workers
}

// GetMedianWindow returns the acceleration filter width; 0 disables it.
func (c *Config) GetMedianWindow() int {
	if c.MedianWindow == nil {
		return 0
	}
	return *c.MedianWindow
}

func (c *Config) GetCloseLoop() bool {
	if c.CloseLoop == nil {
		return false
	}
	return *c.CloseLoop
}

// GetSerial returns the port settings with 115200 8N1 filled in. Validate has
// already rejected anything Normalize would refuse.
func (c *Config) GetSerial() serialmux.PortOptions {
	var opts serialmux.PortOptions
	if c.Serial != nil {
		opts = *c.Serial
	}
	if n, err := opts.Normalize(); err == nil {
		return n
	}
	return opts
}

func (c *Config) GetFlushSize() int {
	if c.FlushSize == nil {
		return 50
	}
	return *c.FlushSize
}

func (c *Config) GetFlushInterval() time.Duration {
	if c.FlushInterval == nil || *c.FlushInterval == "" {
		return time.Second
	}
	d, err := time.ParseDuration(*c.FlushInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// HeatmapParams builds interpolation parameters, with gridSize and radius
// overriding the configured values when non-zero.
func (c *Config) HeatmapParams(gridSize int, radius float64) mapping.HeatmapParams {
	p := mapping.HeatmapParams{
		GridSize:         c.GetGridSize(),
		Radius:           c.GetRadius(),
		MaxLatticePoints: c.GetMaxLatticePoints(),
		Workers:          c.GetWorkers(),
	}
	if gridSize != 0 {
		p.GridSize = gridSize
	}
	if radius != 0 {
		p.Radius = radius
	}
	return p
}

func (c *Config) SessionOptions() mapping.SessionOptions {
	return mapping.SessionOptions{
		MedianWindow: c.GetMedianWindow(),
		CloseLoop:    c.GetCloseLoop(),
		Workers:      c.GetWorkers(),
	}
}

// Interpolate runs the configured heatmap variant.
func (c *Config) Interpolate(positions []mapping.Position, params mapping.HeatmapParams) ([]mapping.GridCell, error) {
	if c.GetUseSpatialIndex() {
		return mapping.InterpolateIndexed(positions, params)
	}
	return mapping.Interpolate(positions, params)
}

// Effective is the fully-resolved view served by /config.
type Effective struct {
	GridSize         int                   `json:"grid_size"`
	Radius           float64               `json:"radius"`
	MaxLatticePoints int                   `json:"max_lattice_points"`
	UseSpatialIndex  bool                  `json:"use_spatial_index"`
	Workers          int                   `json:"workers"`
	MedianWindow     int                   `json:"median_window"`
	CloseLoop        bool                  `json:"close_loop"`
	Serial           serialmux.PortOptions `json:"serial"`
	FlushSize        int                   `json:"flush_size"`
	FlushInterval    string                `json:"flush_interval"`
}

func (c *Config) Effective() Effective {
	return Effective{
		GridSize:         c.GetGridSize(),
		Radius:           c.GetRadius(),
		MaxLatticePoints: c.GetMaxLatticePoints(),
		UseSpatialIndex:  c.GetUseSpatialIndex(),
		Workers:          c.GetWorkers(),
		MedianWindow:     c.GetMedianWindow(),
		CloseLoop:        c.GetCloseLoop(),
		Serial:           c.GetSerial(),
		FlushSize:        c.GetFlushSize(),
		FlushInterval:    c.GetFlushInterval().String(),
	}
}
