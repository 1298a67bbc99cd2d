package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/zouppen/systemdb/internal/filter"
)

// Config holds application configuration
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Sink      SinkConfig      `mapstructure:"sink"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Transform TransformConfig `mapstructure:"transform"`
	Log       LogConfig       `mapstructure:"log"`
}

// SourceConfig describes the journal reader invocation
type SourceConfig struct {
	Command    []string `mapstructure:"command"`
	CursorFlag string   `mapstructure:"cursor_flag"`
	FollowFlag string   `mapstructure:"follow_flag"`
	Args       []string `mapstructure:"args"`
}

// SinkConfig describes the downstream process and wire format
type SinkConfig struct {
	Command      []string `mapstructure:"command"`
	Greeting     string   `mapstructure:"greeting"`
	Marker       string   `mapstructure:"marker"`
	ControlChunk int      `mapstructure:"control_chunk"`
}

// StreamConfig holds commit cadence and resume tolerance
type StreamConfig struct {
	BackfillPeriod  time.Duration `mapstructure:"backfill_period"`
	FollowPeriod    time.Duration `mapstructure:"follow_period"`
	ResumeTolerance time.Duration `mapstructure:"resume_tolerance"`
}

// TransformConfig selects the journal fields that become wire columns
type TransformConfig struct {
	Fields      []string `mapstructure:"fields"`
	Required    []string `mapstructure:"required"`
	MaxPriority string   `mapstructure:"max_priority"`
	Match       []string `mapstructure:"match"`
	Exclude     []string `mapstructure:"exclude"`
}

// FilterOptions returns the record filters described by the transform section
func (t TransformConfig) FilterOptions() filter.Options {
	return filter.Options{MaxPriority: t.MaxPriority, Match: t.Match, Exclude: t.Exclude}
}

// LogConfig controls the diagnostic stream
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Command:    []string{"journalctl", "-qa", "--no-tail", "-o", "json"},
			CursorFlag: "--cursor=",
			FollowFlag: "-f",
		},
		Sink: SinkConfig{
			Greeting:     "systemdb-send 1",
			Marker:       "__CURSOR",
			ControlChunk: 1024,
		},
		Stream: StreamConfig{
			BackfillPeriod:  30 * time.Second,
			FollowPeriod:    5 * time.Second,
			ResumeTolerance: time.Hour,
		},
		Transform: TransformConfig{
			Fields:   []string{"_HOSTNAME", "SYSLOG_IDENTIFIER", "PRIORITY", "MESSAGE"},
			Required: []string{"MESSAGE"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from files and environment
// Config file search order (highest precedence first):
// 1. ./.systemdb.yaml or ./.systemdb.yml
// 2. ~/.systemdb.yaml or ~/.systemdb.yml
// 3. $XDG_CONFIG_HOME/systemdb/config.yaml (or ~/.config/systemdb/config.yaml)
// 4. /etc/systemdb/config.yaml
func Load() (*Config, error) {
	cfg := Default()

	if configFile := findConfigFile(); configFile != "" {
		var err error
		cfg, err = LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadPath loads an explicit file when path is set, otherwise searches the
// standard locations. Environment overrides apply in both cases.
func LoadPath(path string) (*Config, error) {
	if path == "" {
		return Load()
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile searches for config file in standard locations
func findConfigFile() string {
	names := []string{".systemdb.yaml", ".systemdb.yml", "systemdb.yaml", "systemdb.yml"}

	home, homeErr := os.UserHomeDir()
	configDir, configDirErr := os.UserConfigDir()

	var searchPaths []string
	if cwd, err := os.Getwd(); err == nil {
		searchPaths = append(searchPaths, cwd)
	}
	if homeErr == nil {
		searchPaths = append(searchPaths, home)
	}
	if configDirErr == nil {
		searchPaths = append(searchPaths, filepath.Join(configDir, "systemdb"))
	}
	searchPaths = append(searchPaths, "/etc/systemdb")

	for _, dir := range searchPaths {
		for _, name := range names {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	// config.yaml is only recognised inside a systemdb directory
	for _, dir := range searchPaths {
		if filepath.Base(dir) != "systemdb" {
			continue
		}
		path := filepath.Join(dir, "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SYSTEMDB_SINK"); v != "" {
		cfg.Sink.Command = strings.Fields(v)
	}
	if v := os.Getenv("SYSTEMDB_SOURCE_ARGS"); v != "" {
		cfg.Source.Args = strings.Fields(v)
	}
	if v := os.Getenv("SYSTEMDB_MAX_PRIORITY"); v != "" {
		cfg.Transform.MaxPriority = v
	}
	if v := os.Getenv("SYSTEMDB_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SYSTEMDB_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"SYSTEMDB_BACKFILL_PERIOD", &cfg.Stream.BackfillPeriod},
		{"SYSTEMDB_FOLLOW_PERIOD", &cfg.Stream.FollowPeriod},
		{"SYSTEMDB_RESUME_TOLERANCE", &cfg.Stream.ResumeTolerance},
	}
	for _, d := range durations {
		v := os.Getenv(d.env)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.env, err)
		}
		*d.dst = parsed
	}
	return nil
}

// Validate reports configuration that cannot run
func (c *Config) Validate() error {
	var errs []error
	if len(c.Source.Command) == 0 {
		errs = append(errs, errors.New("source.command is empty"))
	}
	if len(c.Sink.Command) == 0 {
		errs = append(errs, errors.New("sink.command is empty"))
	}
	if c.Sink.Marker == "" {
		errs = append(errs, errors.New("sink.marker is empty"))
	}
	if c.Sink.ControlChunk < 0 {
		errs = append(errs, errors.New("sink.control_chunk must not be negative"))
	}
	if c.Stream.BackfillPeriod <= 0 {
		errs = append(errs, errors.New("stream.backfill_period must be positive"))
	}
	if c.Stream.FollowPeriod <= 0 {
		errs = append(errs, errors.New("stream.follow_period must be positive"))
	}
	if c.Stream.ResumeTolerance <= 0 {
		errs = append(errs, errors.New("stream.resume_tolerance must be positive"))
	}
	if _, err := filter.Build(c.Transform.FilterOptions()); err != nil {
		errs = append(errs, fmt.Errorf("transform: %w", err))
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not console or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ConfigFile returns the path to the config file that would be loaded
func ConfigFile() string {
	return findConfigFile()
}
