// Package config provides configuration management.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"landed-cost/core/types"
	"landed-cost/internal/logging"
)

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version"`

	// Engine contains calculation settings
	Engine EngineConfig `json:"engine"`

	// Output contains output configuration
	Output OutputConfig `json:"output"`

	// Data locates model and table inputs
	Data DataConfig `json:"data"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging"`

	// Metrics contains metrics export configuration
	Metrics MetricsConfig `json:"metrics"`

	// Archive is the object store stored runs are copied to
	Archive ArchiveConfig `json:"archive"`
}

// EngineConfig contains calculation settings
type EngineConfig struct {
	// BaseCurrency is the currency transfer paths are compared in
	BaseCurrency types.Currency `json:"base_currency"`

	// Workers bounds the rule-wave worker pool
	Workers int `json:"workers"`

	// MaxPathDepth bounds transfer path enumeration (hops)
	MaxPathDepth int `json:"max_path_depth"`

	// CycleMaxIterations caps fixed-point iterations
	CycleMaxIterations int `json:"cycle_max_iterations"`

	// CycleTolerance is the convergence threshold
	CycleTolerance float64 `json:"cycle_tolerance"`

	// Strict escalates data-gap warnings into errors
	Strict bool `json:"strict"`

	// DutyRates is the customs duty lookup by destination country
	DutyRates DutyRateConfig `json:"duty_rates"`
}

// DutyRateConfig is a first-match duty table
type DutyRateConfig struct {
	Default   float64            `json:"default"`
	ByCountry map[string]float64 `json:"by_country,omitempty"`
}

// OutputConfig contains output-related settings
type OutputConfig struct {
	// DefaultFormat is the default output format
	DefaultFormat string `json:"default_format"`

	// ShowDetails shows the itemized cost breakdown
	ShowDetails bool `json:"show_details"`
}

// DataConfig locates inputs
type DataConfig struct {
	// ModelPath is an HCL file or directory of model definitions
	ModelPath string `json:"model_path"`

	// SQLitePath optionally supplies cost, labor, volume and rate tables
	SQLitePath string `json:"sqlite_path,omitempty"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	// Enabled turns on collection
	Enabled bool `json:"enabled"`

	// Textfile is where the exposition is written after a run
	Textfile string `json:"textfile,omitempty"`
}

// ArchiveConfig locates an S3-compatible bucket
type ArchiveConfig struct {
	Bucket    string `json:"bucket,omitempty"`
	Region    string `json:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
	PathStyle bool   `json:"path_style,omitempty"`
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Version: "1.0",
		Engine: EngineConfig{
			BaseCurrency:       types.CurrencyUSD,
			Workers:            4,
			MaxPathDepth:       10,
			CycleMaxIterations: 10,
			CycleTolerance:     0.01,
			Strict:             false,
			DutyRates: DutyRateConfig{
				Default: 0.03,
				ByCountry: map[string]float64{
					"US": 0.025,
					"DE": 0.04,
				},
			},
		},
		Output: OutputConfig{
			DefaultFormat: "cli",
			ShowDetails:   true,
		},
		Data: DataConfig{
			ModelPath: ".",
		},
		Logging: logging.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: false,
		},
		Archive: ArchiveConfig{
			Region: "us-east-1",
			Prefix: "landed-cost",
		},
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}
