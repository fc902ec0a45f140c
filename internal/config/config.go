// Package config handles MedSage configuration loading and management.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/medsage-ai/medsage/internal/errors"
)

// Default returns the default configuration: the LLaVA v1.5 7B
// quantized weights plus its visual projector, stored under ~/.medsage.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".medsage")
	modelsDir := filepath.Join(dataDir, "models")

	return &Config{
		Simulated: false,
		Paths: PathsConfig{
			DataDir:   dataDir,
			ModelsDir: modelsDir,
			HistoryDB: filepath.Join(dataDir, "history.db"),
		},
		Model: ModelConfig{
			Main: AssetConfig{
				Label:    "main",
				URL:      "https://huggingface.co/mys/ggml_llava-v1.5-7b/resolve/main/ggml-model-q4_k.gguf",
				FileName: "llava-v1.5-7b-q4_k.gguf",
				Size:     4081004544,
			},
			Projector: AssetConfig{
				Label:    "projector",
				URL:      "https://huggingface.co/mys/ggml_llava-v1.5-7b/resolve/main/mmproj-model-f16.gguf",
				FileName: "llava-v1.5-7b-mmproj-f16.gguf",
				Size:     624434368,
			},
			ContextSize: 2048,
			GPULayers:   0,
			Threads:     4,
			MaxTokens:   512,
			Temperature: 0.3,
			TopP:        0.9,
			TopK:        40,
		},
		Engine: EngineConfig{
			Binary:                "llama-server",
			Host:                  "127.0.0.1",
			Port:                  8765,
			StartupTimeoutSeconds: 120,
		},
	}
}

// Load loads the configuration from the given path.
// If the file doesn't exist, returns defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrap(err, errors.CodeConfigInvalid, "failed to read config file", errors.CategorySystem)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfigInvalid, "failed to parse config file", errors.CategoryPermanent)
	}

	cfg = expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to the given path.
func (c *Config) Save(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, errors.CodeFileWriteFailed, "failed to create config directory", errors.CategorySystem)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return errors.Wrap(err, errors.CodeFileWriteFailed, "failed to create config file", errors.CategorySystem)
	}
	defer file.Close()

	encoder := toml.NewEncoder(file)
	return encoder.Encode(c)
}

// Validate rejects configurations that cannot possibly work.
func (c *Config) Validate() error {
	for _, a := range []AssetConfig{c.Model.Main, c.Model.Projector} {
		if a.Label == "" || a.URL == "" || a.FileName == "" {
			return errors.Permanent(errors.CodeConfigInvalid, "model asset missing label, url or file name")
		}
		if a.Size <= 0 {
			return errors.Permanent(errors.CodeConfigInvalid, "model asset expected size must be positive")
		}
	}
	if c.Model.ContextSize <= 0 {
		return errors.Permanent(errors.CodeConfigInvalid, "context size must be positive")
	}
	if c.Model.MaxTokens <= 0 {
		return errors.Permanent(errors.CodeConfigInvalid, "max tokens must be positive")
	}
	return nil
}

// MainAssetPath returns the destination of the main weights on disk.
func (c *Config) MainAssetPath() string {
	return filepath.Join(c.Paths.ModelsDir, c.Model.Main.FileName)
}

// ProjectorAssetPath returns the destination of the projector weights.
func (c *Config) ProjectorAssetPath() string {
	return filepath.Join(c.Paths.ModelsDir, c.Model.Projector.FileName)
}

// expandPaths expands ~ in paths.
func expandPaths(cfg *Config) *Config {
	homeDir, _ := os.UserHomeDir()

	expand := func(p string) string {
		if len(p) > 0 && p[0] == '~' {
			return filepath.Join(homeDir, p[1:])
		}
		return p
	}

	cfg.Paths.DataDir = expand(cfg.Paths.DataDir)
	cfg.Paths.ModelsDir = expand(cfg.Paths.ModelsDir)
	cfg.Paths.HistoryDB = expand(cfg.Paths.HistoryDB)

	return cfg
}
