package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultCheckpointPaths are searched, in order, after MODEL_PATH.
var DefaultCheckpointPaths = []string{
	"/app/wheat_classifier.pth",
	"/tmp/wheat_classifier.pth",
	"/content/wheat_classifier.pth",
}

const (
	DefaultFetchTmpPath = "/tmp/wheat_classifier.pth"
	DefaultFetchDest    = "/app/wheat_classifier.pth"

	// DefaultMaxImagePixels matches Pillow's decompression bomb error threshold.
	DefaultMaxImagePixels = 2 * 89_478_485
)

type Config struct {
	Server ServerConfig
	Model  ModelConfig
	Logger LoggerConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	MaxUploadMB int64
	// MaxImagePixels bounds width*height of an upload before it is decoded.
	MaxImagePixels int64
	ShutdownWait   time.Duration
}

type ModelConfig struct {
	// Path is the explicit override from MODEL_PATH; empty when unset.
	Path        string
	Device      string
	LibraryPath string
}

type LoggerConfig struct {
	Level  string
	Format string
	File   string
}

// Candidates returns the checkpoint search order.
func (m ModelConfig) Candidates() []string {
	var out []string
	if m.Path != "" {
		out = append(out, m.Path)
	}
	return append(out, DefaultCheckpointPaths...)
}

type FetcherConfig struct {
	ID       string
	Dest     string
	TmpPath  string
	Attempts int
	Backoff  time.Duration
	Timeout  time.Duration
	Logger   LoggerConfig
}

func newViper() (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 8000)
	v.SetDefault("MAX_UPLOAD_MB", 10)
	v.SetDefault("MAX_IMAGE_PIXELS", DefaultMaxImagePixels)
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("MODEL_PATH", "")
	v.SetDefault("DEVICE", "auto")
	v.SetDefault("ONNXRUNTIME_LIB", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("GDRIVE_ID", "")
	v.SetDefault("FETCH_TMP_PATH", DefaultFetchTmpPath)
	v.SetDefault("FETCH_ATTEMPTS", 3)
	v.SetDefault("FETCH_BACKOFF", "1s")
	v.SetDefault("FETCH_TIMEOUT", "10m")

	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}
	return v, nil
}

func Load() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	shutdown, err := time.ParseDuration(v.GetString("SHUTDOWN_TIMEOUT"))
	if err != nil {
		shutdown = 10 * time.Second
	}

	maxUpload := v.GetInt64("MAX_UPLOAD_MB")
	if maxUpload <= 0 {
		maxUpload = 10
	}

	maxPixels := v.GetInt64("MAX_IMAGE_PIXELS")
	if maxPixels <= 0 {
		maxPixels = DefaultMaxImagePixels
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("HOST"),
			Port:           v.GetInt("PORT"),
			MaxUploadMB:    maxUpload,
			MaxImagePixels: maxPixels,
			ShutdownWait:   shutdown,
		},
		Model: ModelConfig{
			Path:        trimmed(v, "MODEL_PATH"),
			Device:      v.GetString("DEVICE"),
			LibraryPath: v.GetString("ONNXRUNTIME_LIB"),
		},
		Logger: loggerConfig(v),
	}

	return cfg, nil
}

// LoadFetcher reads fetcher settings. Flags set on the command line take
// precedence over the environment.
func LoadFetcher(flags *pflag.FlagSet) (*FetcherConfig, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	if flags != nil {
		for key, flag := range map[string]string{
			"GDRIVE_ID":      "id",
			"MODEL_PATH":     "dest",
			"FETCH_TMP_PATH": "tmp",
			"FETCH_ATTEMPTS": "attempts",
			"FETCH_BACKOFF":  "backoff",
		} {
			if f := flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
	}

	backoff, err := time.ParseDuration(v.GetString("FETCH_BACKOFF"))
	if err != nil {
		return nil, fmt.Errorf("parse FETCH_BACKOFF: %w", err)
	}
	timeout, err := time.ParseDuration(v.GetString("FETCH_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("parse FETCH_TIMEOUT: %w", err)
	}

	dest := trimmed(v, "MODEL_PATH")
	if dest == "" {
		dest = DefaultFetchDest
	}
	attempts := v.GetInt("FETCH_ATTEMPTS")
	if attempts < 1 {
		attempts = 1
	}

	return &FetcherConfig{
		ID:       trimmed(v, "GDRIVE_ID"),
		Dest:     dest,
		TmpPath:  v.GetString("FETCH_TMP_PATH"),
		Attempts: attempts,
		Backoff:  backoff,
		Timeout:  timeout,
		Logger:   loggerConfig(v),
	}, nil
}

func loggerConfig(v *viper.Viper) LoggerConfig {
	return LoggerConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
		File:   v.GetString("LOG_FILE"),
	}
}

func trimmed(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}
