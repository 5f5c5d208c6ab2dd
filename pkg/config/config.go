// Package config assembles the pipeline's fixed-at-construction configuration,
// flag-parsed alongside cmd/service's own input/output/redis flags.
package config

import (
	"flag"
	"time"
)

// SplitConfig controls the splitter's tile-grid geometry.
type SplitConfig struct {
	Subsize int
	Gap     int
}

// NormalizationConfig controls the preprocessor's per-channel normalization.
type NormalizationConfig struct {
	Enable bool
	Mean   [3]float32
	Std    [3]float32
}

// DetectionConfig controls the tile-NMS worker's per-tile NMS.
type DetectionConfig struct {
	ScoreThreshold float64
	NMSThreshold   float64
	MaxDetNum      int
}

// Config is the full, immutable pipeline configuration. It is constructed
// once at process start and passed by value into every stage constructor —
// there is no config-reload path.
type Config struct {
	NumPreprocessors int
	NumTileNMS       int
	CacheSize        int

	// ProgressInterval controls how often the stitcher reports the current
	// image's tile-accumulation progress. Zero disables the ticker.
	ProgressInterval time.Duration

	Split         SplitConfig
	Normalization NormalizationConfig
	Detection     DetectionConfig
	LabelTable    []string
}

// Default returns the standard configuration defaults.
func Default() Config {
	return Config{
		NumPreprocessors: 4,
		NumTileNMS:       4,
		CacheSize:        64,
		ProgressInterval: 10 * time.Second,
		Split: SplitConfig{
			Subsize: 1024,
			Gap:     200,
		},
		Normalization: NormalizationConfig{
			Enable: true,
			Mean:   [3]float32{123.675, 116.28, 103.53},
			Std:    [3]float32{58.395, 57.12, 57.375},
		},
		Detection: DetectionConfig{
			ScoreThreshold: 0.3,
			NMSThreshold:   0.1,
			MaxDetNum:      2000,
		},
		LabelTable: nil,
	}
}

// RegisterFlags binds cfg's scalar fields to flags on fs. LabelTable and the
// per-channel mean/std arrays are not flag-tunable; callers that need
// non-default values construct a Config directly.
func RegisterFlags(fs *flag.FlagSet, cfg *Config) {
	fs.IntVar(&cfg.NumPreprocessors, "preprocessors", cfg.NumPreprocessors, "Number of preprocessor workers (N)")
	fs.IntVar(&cfg.NumTileNMS, "tile-nms-workers", cfg.NumTileNMS, "Number of tile-NMS workers (M)")
	fs.IntVar(&cfg.CacheSize, "cache-size", cfg.CacheSize, "Cache queue capacity; must be >= max patch_num for one image")
	fs.DurationVar(&cfg.ProgressInterval, "progress-interval", cfg.ProgressInterval, "Stitcher progress log cadence; 0 disables")
	fs.IntVar(&cfg.Split.Subsize, "subsize", cfg.Split.Subsize, "Tile edge length in pixels")
	fs.IntVar(&cfg.Split.Gap, "gap", cfg.Split.Gap, "Tile overlap in pixels")
	fs.BoolVar(&cfg.Normalization.Enable, "normalize", cfg.Normalization.Enable, "Enable per-channel mean/std normalization")
	fs.Float64Var(&cfg.Detection.ScoreThreshold, "score-threshold", cfg.Detection.ScoreThreshold, "Per-tile NMS score threshold")
	fs.Float64Var(&cfg.Detection.NMSThreshold, "nms-threshold", cfg.Detection.NMSThreshold, "Polygon IoU NMS threshold")
	fs.IntVar(&cfg.Detection.MaxDetNum, "max-det-num", cfg.Detection.MaxDetNum, "Per-tile NMS cap on survivors")
}
