package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCheckpointOrder(t *testing.T) {
	dir := t.TempDir()
	override := filepath.Join(dir, "override.pth")
	fallback := filepath.Join(dir, "fallback.pth")
	require.NoError(t, os.WriteFile(fallback, []byte("x"), 0o644))

	got, err := ResolveCheckpoint([]string{override, fallback})
	require.NoError(t, err)
	assert.Equal(t, fallback, got)

	require.NoError(t, os.WriteFile(override, []byte("x"), 0o644))
	got, err = ResolveCheckpoint([]string{override, fallback})
	require.NoError(t, err)
	assert.Equal(t, override, got)
}

func TestResolveCheckpointSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "wheat.pth")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	got, err := ResolveCheckpoint([]string{"", dir, file})
	require.NoError(t, err)
	assert.Equal(t, file, got)
}

func TestResolveCheckpointNotFound(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.pth")

	_, err := ResolveCheckpoint([]string{missing})
	require.ErrorIs(t, err, ErrCheckpointNotFound)
	assert.Contains(t, err.Error(), missing)
}

func TestParseClasses(t *testing.T) {
	classes, err := ParseClasses(` ["healthy", "septoria"] `)
	require.NoError(t, err)
	assert.Equal(t, []string{"healthy", "septoria"}, classes)

	_, err = ParseClasses(`[]`)
	assert.ErrorIs(t, err, ErrMissingClasses)

	_, err = ParseClasses(`not json`)
	assert.ErrorIs(t, err, ErrMissingClasses)
}

func TestSidecarClasses(t *testing.T) {
	dir := t.TempDir()
	checkpoint := filepath.Join(dir, "wheat_classifier.pth")
	assert.Equal(t, checkpoint+".json", SidecarPath(checkpoint))

	_, err := sidecarClasses(SidecarPath(checkpoint))
	assert.ErrorIs(t, err, ErrMissingClasses)

	require.NoError(t, os.WriteFile(SidecarPath(checkpoint), []byte(`{"image_size": 224}`), 0o644))
	_, err = sidecarClasses(SidecarPath(checkpoint))
	assert.ErrorIs(t, err, ErrMissingClasses)

	require.NoError(t, os.WriteFile(SidecarPath(checkpoint), []byte(`{"classes": ["a", "b", "c"]}`), 0o644))
	classes, err := sidecarClasses(SidecarPath(checkpoint))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, classes)
}
