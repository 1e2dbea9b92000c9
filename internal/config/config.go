package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileName is the base name of the configuration file, without extension.
const FileName = "annotator"

// EnvPrefix is prepended to environment overrides, e.g. ANNOTATOR_DATASET_ROOT.
const EnvPrefix = "ANNOTATOR"

// Config holds the application configuration
type Config struct {
	Dataset DatasetConfig `mapstructure:"dataset" yaml:"dataset"`
	View    ViewConfig    `mapstructure:"view" yaml:"view"`
	Render  RenderConfig  `mapstructure:"render" yaml:"render"`
	Assist  AssistConfig  `mapstructure:"assist" yaml:"assist"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// DatasetConfig locates images, labels and the class descriptor
type DatasetConfig struct {
	Root       string `mapstructure:"root" yaml:"root"`
	Descriptor string `mapstructure:"descriptor" yaml:"descriptor"`
	LabelDir   string `mapstructure:"label_dir" yaml:"label_dir"`
}

// ViewConfig holds viewport and zoom settings
type ViewConfig struct {
	ViewportWidth  int     `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int     `mapstructure:"viewport_height" yaml:"viewport_height"`
	FrameMargin    float64 `mapstructure:"frame_margin" yaml:"frame_margin"`
	ZoomMin        float64 `mapstructure:"zoom_min" yaml:"zoom_min"`
	ZoomMax        float64 `mapstructure:"zoom_max" yaml:"zoom_max"`
	ZoomStep       float64 `mapstructure:"zoom_step" yaml:"zoom_step"`
}

// RenderConfig holds settings for view snapshots
type RenderConfig struct {
	Format  string `mapstructure:"format" yaml:"format"`
	Quality int    `mapstructure:"quality" yaml:"quality"`
}

// AssistConfig selects the model backend used for box proposals
type AssistConfig struct {
	Backend string        `mapstructure:"backend" yaml:"backend"`
	URL     string        `mapstructure:"url" yaml:"url"`
	Model   string        `mapstructure:"model" yaml:"model"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Root:       ".",
			Descriptor: "data_cleaned.yaml",
		},
		View: ViewConfig{
			ViewportWidth:  1000,
			ViewportHeight: 800,
			FrameMargin:    3.0,
			ZoomMin:        0.2,
			ZoomMax:        10,
			ZoomStep:       1.1,
		},
		Render: RenderConfig{
			Format:  "png",
			Quality: 90,
		},
		Assist: AssistConfig{
			Backend: "saliency",
			URL:     "http://localhost:11434",
			Model:   "qwen2.5vl:7b",
			Timeout: 120 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers every key of Default on v, so env and flag overrides
// resolve even without a config file.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("dataset.root", d.Dataset.Root)
	v.SetDefault("dataset.descriptor", d.Dataset.Descriptor)
	v.SetDefault("dataset.label_dir", d.Dataset.LabelDir)

	v.SetDefault("view.viewport_width", d.View.ViewportWidth)
	v.SetDefault("view.viewport_height", d.View.ViewportHeight)
	v.SetDefault("view.frame_margin", d.View.FrameMargin)
	v.SetDefault("view.zoom_min", d.View.ZoomMin)
	v.SetDefault("view.zoom_max", d.View.ZoomMax)
	v.SetDefault("view.zoom_step", d.View.ZoomStep)

	v.SetDefault("render.format", d.Render.Format)
	v.SetDefault("render.quality", d.Render.Quality)

	v.SetDefault("assist.backend", d.Assist.Backend)
	v.SetDefault("assist.url", d.Assist.URL)
	v.SetDefault("assist.model", d.Assist.Model)
	v.SetDefault("assist.timeout", d.Assist.Timeout)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
}

// NewViper returns a viper instance with defaults, env binding and search paths set.
// An explicit file takes precedence over the search paths.
func NewViper(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		return v
	}
	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	for _, p := range SearchPaths() {
		v.AddConfigPath(p)
	}
	return v
}

// Load reads the configuration file (if any) into v and unmarshals the result.
// A missing file in the search paths is not an error; a missing explicit file is.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(filename string) (*Config, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Load(NewViper(filename))
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.View.ViewportWidth < 1 || c.View.ViewportHeight < 1 {
		return fmt.Errorf("view.viewport_width and view.viewport_height must be positive")
	}

	if c.View.FrameMargin <= 0 {
		return fmt.Errorf("view.frame_margin must be positive")
	}

	if c.View.ZoomMin <= 0 || c.View.ZoomMax < c.View.ZoomMin {
		return fmt.Errorf("view.zoom_min must be positive and not above view.zoom_max")
	}

	if c.View.ZoomStep <= 1 {
		return fmt.Errorf("view.zoom_step must be greater than 1")
	}

	switch strings.ToLower(c.Render.Format) {
	case "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("render.format must be one of png, jpg, webp")
	}

	if c.Render.Quality < 1 || c.Render.Quality > 100 {
		return fmt.Errorf("render.quality must be between 1 and 100")
	}

	switch c.Assist.Backend {
	case "saliency", "ollama", "llamacpp":
	default:
		return fmt.Errorf("assist.backend must be one of saliency, ollama, llamacpp")
	}

	return nil
}

// SearchPaths returns the directories searched for annotator.yaml, in order.
func SearchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "annotator"))
	}
	return paths
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./" + FileName + ".yaml"
	}
	return filepath.Join(home, ".config", "annotator", FileName+".yaml")
}
