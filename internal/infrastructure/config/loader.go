package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/qw/assets"
	"github.com/doeshing/qw/internal/domain"
	"github.com/doeshing/qw/internal/pkg/filesystem"
	"github.com/doeshing/qw/internal/ports"
)

// EnvConfigPath overrides the defaults file location.
const EnvConfigPath = "QW_CONFIG"

// FileLoader loads YAML defaults from ~/.qw/config.yaml (overridable via QW_CONFIG).
// A missing file is not an error and is never created.
type FileLoader struct {
	overridePath string
}

// NewFileLoader builds a new loader. An empty path means "use QW_CONFIG or the default".
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{overridePath: path}
}

// Load implements ports.ConfigProvider.
func (l *FileLoader) Load(context.Context) (domain.FileConfig, error) {
	cfg, err := builtinDefaults()
	if err != nil {
		return domain.FileConfig{}, err
	}

	path := l.Path()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return domain.FileConfig{}, &domain.UsageError{Msg: "read config " + path, Err: err}
	}

	// Decoding over the defaults keeps every key the user did not set.
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.FileConfig{}, &domain.UsageError{Msg: "parse config " + path, Err: err}
	}
	return hydrateDefaults(cfg), nil
}

// Path resolves the file the loader reads.
func (l *FileLoader) Path() string {
	if l.overridePath != "" {
		return filesystem.ExpandPath(l.overridePath)
	}
	if custom := os.Getenv(EnvConfigPath); custom != "" {
		return filesystem.ExpandPath(custom)
	}
	return filepath.Join(filesystem.UserHomeDir(), ".qw", "config.yaml")
}

func builtinDefaults() (domain.FileConfig, error) {
	var cfg domain.FileConfig
	if err := yaml.Unmarshal(assets.DefaultConfigYAML, &cfg); err != nil {
		return domain.FileConfig{}, err
	}
	return hydrateDefaults(cfg), nil
}

func hydrateDefaults(cfg domain.FileConfig) domain.FileConfig {
	if cfg.Model == "" {
		cfg.Model = domain.DefaultModel
	}
	if cfg.Timeout == "" {
		cfg.Timeout = domain.DefaultTimeout.String()
	}
	if len(cfg.Stages.Codex.Command) == 0 {
		cfg.Stages.Codex.Command = append([]string(nil), domain.DefaultCodexCommand...)
	}
	if len(cfg.Stages.Claude.Command) == 0 {
		cfg.Stages.Claude.Command = append([]string(nil), domain.DefaultClaudeCommand...)
	}
	return cfg
}

var _ ports.ConfigProvider = (*FileLoader)(nil)
