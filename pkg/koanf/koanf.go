package koanf

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	delimiter = "."

	// ConfigFileEnv names the environment variable holding the optional TOML file path.
	ConfigFileEnv     = "CONFIG_FILE"
	defaultConfigFile = "config.toml"
)

// Provide loads configuration for the given service prefix. Sources are applied in
// order and later ones win: the def struct, the TOML file, then environment
// variables of the form PREFIX_SECTION__KEY.
// It panics on failure because every service calls it before anything else runs.
func Provide[T any](prefix string, def T) T {
	cfg, err := Load(prefix, def)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load is Provide without the panic.
func Load[T any](prefix string, def T) (T, error) {
	k := koanf.New(delimiter)

	if err := k.Load(structs.Provider(def, "koanf"), nil); err != nil {
		return def, fmt.Errorf("loading default configuration: %w", err)
	}

	path, explicit := os.LookupEnv(ConfigFileEnv)
	if !explicit {
		path = defaultConfigFile
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return def, fmt.Errorf("loading configuration file %s: %w", path, err)
		}
	} else if explicit {
		return def, fmt.Errorf("configuration file %s: %w", path, err)
	}

	envPrefix := strings.ToUpper(prefix) + "_"
	if err := k.Load(env.Provider(envPrefix, delimiter, func(s string) string {
		return EnvToKey(envPrefix, s)
	}), nil); err != nil {
		return def, fmt.Errorf("loading environment: %w", err)
	}

	var cfg T
	if err := k.Unmarshal("", &cfg); err != nil {
		return def, fmt.Errorf("unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// EnvToKey maps CONCIERGE_OPENAI__BASE_URL to openai.base_url.
func EnvToKey(prefix, s string) string {
	s = strings.TrimPrefix(s, prefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", delimiter)
}
