// Package config loads netanomaly settings from defaults, an optional YAML
// file, NETANOMALY_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, with dots in keys
// replaced by underscores (NETANOMALY_WATCH_INTERVAL).
const EnvPrefix = "NETANOMALY"

// Config is the full set of settings.
type Config struct {
	Data     DataConfig     `mapstructure:"data"`
	Model    ModelConfig    `mapstructure:"model"`
	Train    TrainConfig    `mapstructure:"train"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Labels   LabelsConfig   `mapstructure:"labels"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	History  HistoryConfig  `mapstructure:"history"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Generate GenerateConfig `mapstructure:"generate"`
}

// DataConfig locates the event files.
type DataConfig struct {
	Dir        string   `mapstructure:"dir"`
	Extensions []string `mapstructure:"extensions"`
}

// ModelConfig locates the model artifact and seeds new networks.
type ModelConfig struct {
	Path string `mapstructure:"path"`
	Seed int64  `mapstructure:"seed"`
}

// TrainConfig controls one-shot training.
type TrainConfig struct {
	Epochs    int `mapstructure:"epochs"`
	BatchSize int `mapstructure:"batch_size"`
}

// WatchConfig controls the watch loop and its incremental cycles.
type WatchConfig struct {
	Epochs          int           `mapstructure:"epochs"`
	Interval        time.Duration `mapstructure:"interval"`
	WatchFiles      bool          `mapstructure:"watch_files"`
	ContinueOnError bool          `mapstructure:"continue_on_error"`
}

// LabelsConfig selects the training label source.
type LabelsConfig struct {
	Source        string  `mapstructure:"source"`
	Seed          int64   `mapstructure:"seed"`
	Contamination float64 `mapstructure:"contamination"`
}

// LogConfig sets the logger level and encoding.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// MetricsConfig sets the Prometheus listen address. An empty Addr disables
// the metrics server.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// HistoryConfig selects the training history backends. Each backend is
// enabled by a non-empty URL or DSN.
type HistoryConfig struct {
	RedisURL    string `mapstructure:"redis_url"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// CaptureConfig controls packet capture into the data directory.
type CaptureConfig struct {
	Interface     string        `mapstructure:"interface"`
	File          string        `mapstructure:"file"`
	Filter        string        `mapstructure:"filter"`
	Snaplen       int           `mapstructure:"snaplen"`
	Promiscuous   bool          `mapstructure:"promiscuous"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	Prefix        string        `mapstructure:"prefix"`
}

// GenerateConfig controls the synthetic event generator. Files of zero
// generates until interrupted.
type GenerateConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Records     int           `mapstructure:"records"`
	Files       int           `mapstructure:"files"`
	Seed        int64         `mapstructure:"seed"`
	Prefix      string        `mapstructure:"prefix"`
	AnomalyRate float64       `mapstructure:"anomaly_rate"`
}

var defaults = map[string]any{
	"data.dir":                "./data",
	"data.extensions":         []string{".json"},
	"model.path":              "./model/netanomaly.model",
	"model.seed":              42,
	"train.epochs":            10,
	"train.batch_size":        32,
	"watch.epochs":            3,
	"watch.interval":          60 * time.Second,
	"watch.watch_files":       false,
	"watch.continue_on_error": false,
	"labels.source":           "random",
	"labels.seed":             0,
	"labels.contamination":    0.1,
	"log.level":               "info",
	"log.development":         false,
	"metrics.addr":            "",
	"history.redis_url":       "",
	"history.postgres_dsn":    "",
	"capture.interface":       "",
	"capture.file":            "",
	"capture.filter":          "tcp or udp",
	"capture.snaplen":         65535,
	"capture.promiscuous":     false,
	"capture.batch_size":      100,
	"capture.flush_interval":  5 * time.Second,
	"capture.prefix":          "packets",
	"generate.interval":       5 * time.Second,
	"generate.records":        50,
	"generate.files":          0,
	"generate.seed":           0,
	"generate.prefix":         "events",
	"generate.anomaly_rate":   0.02,
}

// New returns a viper instance with defaults and environment lookup set up.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file (when non-empty) into v and decodes the merged settings.
func Load(v *viper.Viper, file string) (Config, error) {
	var cfg Config

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Data.Dir == "" {
		errs = append(errs, errors.New("data.dir must be set"))
	}
	if len(c.Data.Extensions) == 0 {
		errs = append(errs, errors.New("data.extensions must not be empty"))
	}
	if c.Model.Path == "" {
		errs = append(errs, errors.New("model.path must be set"))
	}
	if c.Train.Epochs <= 0 {
		errs = append(errs, fmt.Errorf("train.epochs must be positive, got %d", c.Train.Epochs))
	}
	if c.Train.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("train.batch_size must be positive, got %d", c.Train.BatchSize))
	}
	if c.Watch.Epochs <= 0 {
		errs = append(errs, fmt.Errorf("watch.epochs must be positive, got %d", c.Watch.Epochs))
	}
	if c.Watch.Interval <= 0 {
		errs = append(errs, fmt.Errorf("watch.interval must be positive, got %s", c.Watch.Interval))
	}
	if c.Capture.FlushInterval <= 0 {
		errs = append(errs, fmt.Errorf("capture.flush_interval must be positive, got %s", c.Capture.FlushInterval))
	}
	if c.Generate.Interval <= 0 {
		errs = append(errs, fmt.Errorf("generate.interval must be positive, got %s", c.Generate.Interval))
	}
	if c.Generate.Records <= 0 {
		errs = append(errs, fmt.Errorf("generate.records must be positive, got %d", c.Generate.Records))
	}
	if c.Labels.Contamination <= 0 || c.Labels.Contamination >= 0.5 {
		errs = append(errs, fmt.Errorf("labels.contamination must be in (0, 0.5), got %g", c.Labels.Contamination))
	}
	return errors.Join(errs...)
}
