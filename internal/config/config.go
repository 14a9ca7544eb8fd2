package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds all configuration for tickvault
type Config struct {
	DataDir   string `mapstructure:"data_dir"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // text, json

	// Capture configuration
	Capture CaptureConfig `mapstructure:"capture"`

	// Recorder configuration
	Recorder RecorderConfig `mapstructure:"recorder"`

	// Metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Status server configuration
	Server ServerConfig `mapstructure:"server"`
}

// CaptureConfig defines the browser capture session
type CaptureConfig struct {
	// TargetURL is the page whose network traffic is captured
	TargetURL string `mapstructure:"target_url"`

	// WebsocketPattern filters websocket connections by URL substring.
	// Empty matches every websocket on the page.
	WebsocketPattern string `mapstructure:"websocket_pattern"`

	// HistoryPatterns are URL substrings of history endpoints whose
	// response bodies are decoded into bars
	HistoryPatterns []string `mapstructure:"history_patterns"`

	// Exchange is assumed for symbols without an exchange prefix
	Exchange string `mapstructure:"exchange"`

	Headless   bool   `mapstructure:"headless"`
	UserAgent  string `mapstructure:"user_agent"`
	ExecPath   string `mapstructure:"exec_path"`   // browser binary, empty = auto-detect
	NavTimeout int    `mapstructure:"nav_timeout"` // seconds for initial navigation

	// BufferSize is the in-memory record buffer between the browser
	// event thread and the recorder
	BufferSize int `mapstructure:"buffer_size"`
}

// RecorderConfig defines batching of captured records
type RecorderConfig struct {
	FlushInterval int  `mapstructure:"flush_interval"` // seconds
	MaxPending    int  `mapstructure:"max_pending"`    // records buffered before an early flush
	TapeEnabled   bool `mapstructure:"tape_enabled"`   // write per-symbol trade tapes
}

// MetricsConfig defines metrics configuration
type MetricsConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Path     string `mapstructure:"path"`
	Interval int    `mapstructure:"interval"` // system collector interval in seconds
}

// ServerConfig defines the local status HTTP server
type ServerConfig struct {
	Enable bool   `mapstructure:"enable"`
	Listen string `mapstructure:"listen"`
}

// Load loads configuration from various sources
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Bind command line flags
	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	// Read from config file if specified
	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Read from environment variables
	v.SetEnvPrefix("TICKVAULT")
	v.AutomaticEnv()

	// Unmarshal configuration
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate and setup defaults
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// NO default for data_dir - must be explicitly configured
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	// Capture defaults
	v.SetDefault("capture.websocket_pattern", "")
	v.SetDefault("capture.history_patterns", []string{"/history"})
	v.SetDefault("capture.exchange", "")
	v.SetDefault("capture.headless", true)
	v.SetDefault("capture.user_agent", "")
	v.SetDefault("capture.exec_path", "")
	v.SetDefault("capture.nav_timeout", 30)
	v.SetDefault("capture.buffer_size", 1024)

	// Recorder defaults
	v.SetDefault("recorder.flush_interval", 5)
	v.SetDefault("recorder.max_pending", 500)
	v.SetDefault("recorder.tape_enabled", true)

	// Metrics defaults
	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.interval", 10)

	// Status server defaults
	v.SetDefault("server.enable", true)
	v.SetDefault("server.listen", "127.0.0.1:8077")
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"data-dir":      "data_dir",
		"log-level":     "log_level",
		"log-format":    "log_format",
		"target-url":    "capture.target_url",
		"headless":      "capture.headless",
		"status-listen": "server.listen",
	}

	for flag, key := range flags {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	return nil
}

func validate(cfg *Config) error {
	// Validate that data_dir is configured (either via flag, config file, or env var)
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is required: specify via --data-dir flag, config file, or TICKVAULT_DATA_DIR environment variable")
	}

	// Make the data directory absolute and ensure it exists
	if !filepath.IsAbs(cfg.DataDir) {
		absDir, err := filepath.Abs(cfg.DataDir)
		if err == nil {
			cfg.DataDir = absDir
		}
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if cfg.Capture.TargetURL == "" {
		return fmt.Errorf("capture.target_url is required: specify via --target-url flag or config file")
	}

	if cfg.Capture.NavTimeout <= 0 {
		cfg.Capture.NavTimeout = 30
	}
	if cfg.Capture.BufferSize <= 0 {
		cfg.Capture.BufferSize = 1024
	}
	if cfg.Recorder.FlushInterval <= 0 {
		cfg.Recorder.FlushInterval = 5
	}
	if cfg.Recorder.MaxPending <= 0 {
		cfg.Recorder.MaxPending = 500
	}
	if cfg.Metrics.Interval <= 0 {
		cfg.Metrics.Interval = 10
	}

	return nil
}
