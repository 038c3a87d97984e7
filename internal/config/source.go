package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix marks environment variables read into the config. A double
// underscore separates sections: BSH_LOG__LEVEL sets log.level and
// BSH_MAX_JOBS sets max_jobs.
const EnvPrefix = "BSH_"

// Source is one configuration layer. Sources load in ascending priority, so
// later layers override earlier ones.
type Source interface {
	Name() string
	Priority() int
	Load(k *koanf.Koanf) error
}

// DefaultSource loads the hardcoded defaults.
type DefaultSource struct{}

func (s *DefaultSource) Name() string  { return "defaults" }
func (s *DefaultSource) Priority() int { return 10 }

func (s *DefaultSource) Load(k *koanf.Koanf) error {
	return k.Load(confmap.Provider(DefaultAsMap(), "."), nil)
}

// FileSource loads a YAML file. A missing file or empty path is skipped.
type FileSource struct {
	Path string
}

func (s *FileSource) Name() string  { return "file:" + s.Path }
func (s *FileSource) Priority() int { return 20 }

func (s *FileSource) Load(k *koanf.Koanf) error {
	if s.Path == "" {
		return nil
	}

	if _, err := os.Stat(s.Path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("error checking config file %s: %w", s.Path, err)
	}

	return k.Load(file.Provider(s.Path), yaml.Parser())
}

type EnvSource struct {
	Prefix string
}

func (s *EnvSource) Name() string  { return "env" }
func (s *EnvSource) Priority() int { return 30 }

func (s *EnvSource) Load(k *koanf.Koanf) error {
	prefix := s.Prefix
	if prefix == "" {
		prefix = EnvPrefix
	}

	return k.Load(env.Provider(prefix, ".", func(key string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, prefix)), "__", ".")
	}), nil)
}

// FlagSource loads command-line flags. Flags whose names match a key are
// picked up directly; the rest are translated here.
type FlagSource struct {
	Flags *pflag.FlagSet
}

func (s *FlagSource) Name() string  { return "flags" }
func (s *FlagSource) Priority() int { return 40 }

func (s *FlagSource) Load(k *koanf.Koanf) error {
	if s.Flags == nil {
		return nil
	}

	if err := k.Load(posflag.Provider(s.Flags, ".", k), nil); err != nil {
		return err
	}

	if changed(s.Flags, "no-prompt") {
		if off, _ := s.Flags.GetBool("no-prompt"); off {
			_ = k.Set("emit_prompt", false)
		}
	}
	if changed(s.Flags, "max-jobs") {
		n, err := s.Flags.GetInt("max-jobs")
		if err != nil {
			return err
		}
		_ = k.Set("max_jobs", n)
	}
	if changed(s.Flags, "log-level") {
		level, _ := s.Flags.GetString("log-level")
		_ = k.Set("log.level", level)
	}

	return nil
}

func changed(flags *pflag.FlagSet, name string) bool {
	f := flags.Lookup(name)
	return f != nil && f.Changed
}

// DefaultSources returns defaults -> file -> env -> flags.
func DefaultSources(path string, flags *pflag.FlagSet) []Source {
	return []Source{
		&DefaultSource{},
		&FileSource{Path: path},
		&EnvSource{Prefix: EnvPrefix},
		&FlagSource{Flags: flags},
	}
}

// BindFlags registers the startup flags that map onto config keys.
func BindFlags(flags *pflag.FlagSet) {
	flags.BoolP("verbose", "v", false, "Announce each job as it is added")
	flags.BoolP("no-prompt", "p", false, "Do not emit a command prompt")
	flags.Int("max-jobs", 0, "Job table capacity")
	flags.String("log-level", "", "Log level (trace, debug, info, warn, error)")
}
