package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/fatih/color"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"bsh/internal/job"
	"bsh/internal/prompt"
)

type Config struct {
	Prompt      string      `koanf:"prompt" yaml:"prompt"`
	EmitPrompt  bool        `koanf:"emit_prompt" yaml:"emit_prompt"`
	Verbose     bool        `koanf:"verbose" yaml:"verbose"`
	MaxJobs     int         `koanf:"max_jobs" yaml:"max_jobs" validate:"min=1,max=4096"`
	MergeStderr bool        `koanf:"merge_stderr" yaml:"merge_stderr"`
	Color       ColorScheme `koanf:"color" yaml:"color"`
	Log         LogConfig   `koanf:"log" yaml:"log"`
}

type ColorScheme struct {
	Mode   string `koanf:"mode" yaml:"mode" validate:"oneof=auto always never"`
	Prompt string `koanf:"prompt" yaml:"prompt" validate:"omitempty,oneof=black red green yellow blue magenta cyan white"`
	Error  string `koanf:"error" yaml:"error" validate:"omitempty,oneof=black red green yellow blue magenta cyan white"`
}

type LogConfig struct {
	Level string `koanf:"level" yaml:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
}

// Default is the configuration used when no file, environment or flag
// overrides a value.
func Default() Config {
	return Config{
		Prompt:      prompt.Default,
		EmitPrompt:  true,
		MaxJobs:     job.DefaultCapacity,
		MergeStderr: true,
		Color: ColorScheme{
			Mode:  "auto",
			Error: "red",
		},
		Log: LogConfig{
			Level: "error",
		},
	}
}

// DefaultAsMap flattens Default for koanf's confmap provider.
func DefaultAsMap() map[string]interface{} {
	def := Default()
	return map[string]interface{}{
		"prompt":       def.Prompt,
		"emit_prompt":  def.EmitPrompt,
		"verbose":      def.Verbose,
		"max_jobs":     def.MaxJobs,
		"merge_stderr": def.MergeStderr,
		"color.mode":   def.Color.Mode,
		"color.prompt": def.Color.Prompt,
		"color.error":  def.Color.Error,
		"log.level":    def.Log.Level,
	}
}

// Load merges defaults, the YAML file at path, BSH_* environment variables and
// flags, in that order of increasing precedence.
func Load(flags *pflag.FlagSet, path string) (*Config, error) {
	return LoadSources(DefaultSources(path, flags)...)
}

func LoadSources(sources ...Source) (*Config, error) {
	sources = slices.Clone(sources)
	slices.SortStableFunc(sources, func(a, b Source) int {
		return a.Priority() - b.Priority()
	})

	k := koanf.New(".")
	for _, src := range sources {
		if err := src.Load(k); err != nil {
			return nil, fmt.Errorf("load %s: %w", src.Name(), err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Dump writes c as YAML.
func (c *Config) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// Save writes c as YAML to path, creating its directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return c.Dump(file)
}

// UseColor resolves the color mode. "auto" follows fatih/color's terminal
// detection, which honors NO_COLOR and non-tty stdout.
func (c ColorScheme) UseColor() bool {
	switch c.Mode {
	case "always":
		return true
	case "never":
		return false
	default:
		return !color.NoColor
	}
}

var attributes = map[string]color.Attribute{
	"black":   color.FgBlack,
	"red":     color.FgRed,
	"green":   color.FgGreen,
	"yellow":  color.FgYellow,
	"blue":    color.FgBlue,
	"magenta": color.FgMagenta,
	"cyan":    color.FgCyan,
	"white":   color.FgWhite,
}

// Attribute maps a color name from the config to its terminal attribute.
func Attribute(name string) (color.Attribute, bool) {
	attr, ok := attributes[name]
	return attr, ok
}

// DefaultPath is ~/.bsh/config.yaml, or "" when the home directory is unknown.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".bsh", "config.yaml")
}
