package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MODEL_PATH", "")
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, int64(10), cfg.Server.MaxUploadMB)
	assert.Equal(t, int64(178_956_970), cfg.Server.MaxImagePixels)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownWait)
	assert.Equal(t, "auto", cfg.Model.Device)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, DefaultCheckpointPaths, cfg.Model.Candidates())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MODEL_PATH", "  /models/wheat.pth ")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("MAX_IMAGE_PIXELS", "1000000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, int64(1_000_000), cfg.Server.MaxImagePixels)
	assert.Equal(t, []string{
		"/models/wheat.pth",
		"/app/wheat_classifier.pth",
		"/tmp/wheat_classifier.pth",
		"/content/wheat_classifier.pth",
	}, cfg.Model.Candidates())
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("PORT: 7000\nDEVICE: cpu\n"), 0o644))
	t.Setenv("CONFIG_FILE", file)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "cpu", cfg.Model.Device)
}

func TestLoadConfigFileMissing(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadFetcherDefaults(t *testing.T) {
	t.Setenv("GDRIVE_ID", " abc ")
	t.Setenv("MODEL_PATH", "")

	cfg, err := LoadFetcher(nil)
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.ID)
	assert.Equal(t, DefaultFetchDest, cfg.Dest)
	assert.Equal(t, DefaultFetchTmpPath, cfg.TmpPath)
	assert.Equal(t, 3, cfg.Attempts)
	assert.Equal(t, time.Second, cfg.Backoff)
}

func TestLoadFetcherFlagsOverrideEnv(t *testing.T) {
	t.Setenv("GDRIVE_ID", "from-env-0000")
	t.Setenv("MODEL_PATH", "/env/dest.pth")

	flags := pflag.NewFlagSet("fetch-model", pflag.ContinueOnError)
	flags.String("id", "", "")
	flags.String("dest", "", "")
	flags.String("tmp", "", "")
	flags.Int("attempts", 0, "")
	flags.String("backoff", "", "")
	require.NoError(t, flags.Parse([]string{"--id", "from-flag-0000", "--attempts", "5"}))

	cfg, err := LoadFetcher(flags)
	require.NoError(t, err)

	assert.Equal(t, "from-flag-0000", cfg.ID)
	assert.Equal(t, "/env/dest.pth", cfg.Dest)
	assert.Equal(t, 5, cfg.Attempts)
}
