package config

import (
	"fmt"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes the environment variables overriding flags, e.g. FOLDENC_BACKEND.
	EnvPrefix = "FOLDENC"
	// DefaultConfigFile is searched for below the XDG config directories.
	DefaultConfigFile = "foldenc/config.yaml"
)

// Load merges flags, environment and config file into cfg.
// Flags set on the command line win over the environment, which wins over the config file.
// An explicit --config must exist; the XDG default is optional.
func Load(flags *pflag.FlagSet, cfg *Config) error {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	path := v.GetString("config")
	if path == "" {
		if found, err := xdg.SearchConfigFile(DefaultConfigFile); err == nil {
			path = found
		}
	}

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %q: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	cfg.ConfigFile = path

	return nil
}
