package config

import (
	"context"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// WorkDir is the parent directory for per-export session workspaces.
	WorkDir     string `yaml:"work_dir"`
	Concurrency int    `yaml:"concurrency"`

	FFmpeg FFmpegConfig `yaml:"ffmpeg"`
	Text   TextConfig   `yaml:"text"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path"`
	ProbePath  string `yaml:"probe_path"`
	Threads    int    `yaml:"threads"`
	Preset     string `yaml:"preset"`
	CRF        int    `yaml:"crf"`
}

// TextConfig controls text overlay rendering defaults. FontPath is used
// both for drawtext filter steps and for frame rasterization; when empty
// the compositor falls back to a built-in bitmap face.
type TextConfig struct {
	FontPath  string `yaml:"font_path"`
	FontSize  int    `yaml:"font_size"`
	FontColor string `yaml:"font_color"`
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func defaultConfig() *Config {
	return &Config{
		WorkDir:     filepath.Join(os.TempDir(), "qcut-export"),
		Concurrency: 4,
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			ProbePath:  "ffprobe",
			Threads:    0,
			Preset:     "medium",
			CRF:        23,
		},
		Text: TextConfig{
			FontSize:  24,
			FontColor: "white",
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./qcut.yaml",
		"./qcut.yml",
		filepath.Join(os.Getenv("HOME"), ".qcut", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
