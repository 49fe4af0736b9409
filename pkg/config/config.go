// Package config loads build settings from an optional TOML file,
// applying defaults and environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// EnvBuildDir overrides the build root directory when set.
const EnvBuildDir = "BURL_BUILD_DIR"

// Config holds the build orchestrator settings.
type Config struct {
	// BuildRoot is the root output directory for generated artifacts.
	BuildRoot string `toml:"build_root"`
	// Renderer is the external renderer command.
	Renderer string `toml:"renderer"`
	// RendererArgs are extra arguments passed before the file arguments.
	RendererArgs []string `toml:"renderer_args"`
	// PreviewCells is the marching cubes resolution for previews.
	PreviewCells int `toml:"preview_cells"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		BuildRoot:    "_build",
		Renderer:     "openscad",
		PreviewCells: 100,
	}
}

// Load reads the config file at path. An empty path or a missing file
// yields the defaults. The BURL_BUILD_DIR environment variable
// overrides the build root in every case.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// fall through to defaults
		case err != nil:
			return Config{}, fmt.Errorf("config: %w", err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: %s: %w", path, err)
			}
		}
	}

	if dir := os.Getenv(EnvBuildDir); dir != "" {
		cfg.BuildRoot = dir
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the build machinery cannot run with.
func Validate(cfg Config) error {
	if cfg.BuildRoot == "" {
		return fmt.Errorf("config: build_root must not be empty")
	}
	if cfg.Renderer == "" {
		return fmt.Errorf("config: renderer must not be empty")
	}
	if cfg.PreviewCells <= 0 {
		return fmt.Errorf("config: preview_cells must be positive, got %d", cfg.PreviewCells)
	}
	return nil
}
