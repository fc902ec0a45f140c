package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medsage-ai/medsage/internal/errors"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.False(t, cfg.Simulated)
	assert.Equal(t, "main", cfg.Model.Main.Label)
	assert.Equal(t, "projector", cfg.Model.Projector.Label)
	assert.Positive(t, cfg.Model.Main.Size)
	assert.Positive(t, cfg.Model.Projector.Size)
	assert.Equal(t, 2048, cfg.Model.ContextSize)
	assert.Equal(t, 512, cfg.Model.MaxTokens)
	assert.InDelta(t, 0.3, cfg.Model.Temperature, 1e-9)
	assert.InDelta(t, 0.9, cfg.Model.TopP, 1e-9)
	assert.Equal(t, 40, cfg.Model.TopK)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Model, cfg.Model)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
simulated = true

[model]
context_size = 4096
threads = 8
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Simulated)
	assert.Equal(t, 4096, cfg.Model.ContextSize)
	assert.Equal(t, 8, cfg.Model.Threads)
	// Untouched keys keep their defaults.
	assert.Equal(t, Default().Model.Main.URL, cfg.Model.Main.URL)
	assert.Equal(t, 512, cfg.Model.MaxTokens)
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("simulated = ["), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[model]
context_size = -1
`), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
}

func TestLoadExpandsTildePaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[paths]
data_dir = "~/medsage-data"
models_dir = "~/medsage-data/models"
history_db = "~/medsage-data/history.db"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "medsage-data"), cfg.Paths.DataDir)
	assert.Equal(t, filepath.Join(home, "medsage-data", "models"), cfg.Paths.ModelsDir)
}

func TestAssetPathsDeriveFromModelsDir(t *testing.T) {
	cfg := Default()
	cfg.Paths.ModelsDir = "/tmp/models"

	assert.Equal(t, filepath.Join("/tmp/models", cfg.Model.Main.FileName), cfg.MainAssetPath())
	assert.Equal(t, filepath.Join("/tmp/models", cfg.Model.Projector.FileName), cfg.ProjectorAssetPath())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Simulated = true
	cfg.Model.Threads = 2
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.Simulated)
	assert.Equal(t, 2, loaded.Model.Threads)
}
