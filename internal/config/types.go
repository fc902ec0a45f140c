// Package config provides configuration types for MedSage.
package config

// Config represents the main MedSage configuration.
type Config struct {
	// Simulated runs the service in deterministic offline mode:
	// downloads are skipped and inference returns canned assessments.
	Simulated bool `toml:"simulated"`

	Paths  PathsConfig  `toml:"paths"`
	Model  ModelConfig  `toml:"model"`
	Engine EngineConfig `toml:"engine"`
}

// PathsConfig locates local storage.
type PathsConfig struct {
	DataDir   string `toml:"data_dir"`
	ModelsDir string `toml:"models_dir"`
	HistoryDB string `toml:"history_db"`
}

// AssetConfig declares one downloadable model file.
type AssetConfig struct {
	Label    string `toml:"label"`
	URL      string `toml:"url"`
	FileName string `toml:"file_name"`
	Size     int64  `toml:"size"`
}

// ModelConfig declares the model assets and inference parameters.
type ModelConfig struct {
	Main      AssetConfig `toml:"main"`
	Projector AssetConfig `toml:"projector"`

	ContextSize int `toml:"context_size"`
	GPULayers   int `toml:"gpu_layers"`
	Threads     int `toml:"threads"`

	MaxTokens   int     `toml:"max_tokens"`
	Temperature float64 `toml:"temperature"`
	TopP        float64 `toml:"top_p"`
	TopK        int     `toml:"top_k"`
}

// EngineConfig configures the supervised engine process.
type EngineConfig struct {
	Binary                string `toml:"binary"`
	Host                  string `toml:"host"`
	Port                  int    `toml:"port"`
	StartupTimeoutSeconds int    `toml:"startup_timeout_seconds"`
}
