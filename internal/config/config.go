// Package config holds the resolved settings of a foldenc invocation.
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"

	"github.com/idelchi/foldenc/internal/errors"
)

// Config is populated from flags, FOLDENC_* environment variables and an optional config file.
// The password itself is never part of it.
type Config struct {
	// Common flags
	Show     bool `mapstructure:"show"     yaml:"-"`
	Verbose  int  `mapstructure:"verbose"  yaml:"verbose"`
	Parallel int  `mapstructure:"parallel" yaml:"parallel" validate:"min=1"        label:"--parallel"`
	Quiet    bool `mapstructure:"quiet"    yaml:"quiet"`
	Dry      bool `mapstructure:"dry"      yaml:"dry"`
	Stats    bool `mapstructure:"stats"    yaml:"stats"`
	Force    bool `mapstructure:"force"    yaml:"force"`
	Delete   bool `mapstructure:"delete"   yaml:"delete"`

	Backend   string `mapstructure:"backend" yaml:"backend" validate:"oneof=auto tar+openssl 7z native native-openssl" label:"--backend"`
	Extension string `mapstructure:"ext"     yaml:"ext"     validate:"required,startswith=.,min=2,excludesall=/,ne=.tar" label:"--ext"`

	Exclude     []string `mapstructure:"exclude"      yaml:"exclude"`
	ExcludeFrom string   `mapstructure:"exclude-from" yaml:"exclude-from"`

	PasswordFile  string `mapstructure:"password-file"  yaml:"password-file"  validate:"exclusive=PasswordStdin" label:"--password-file"`
	PasswordStdin bool   `mapstructure:"password-stdin" yaml:"password-stdin" label:"--password-stdin"`

	// External tools, bare names are looked up in PATH.
	TarBin      string `mapstructure:"tar"     yaml:"tar"`
	OpenSSLBin  string `mapstructure:"openssl" yaml:"openssl"`
	SevenZipBin string `mapstructure:"7z"      yaml:"7z"`

	ConfigFile string `mapstructure:"config" yaml:"-"`

	// Command-specific
	Decrypt bool `mapstructure:"-" yaml:"decrypt"`

	// Positional arguments
	Paths []string `mapstructure:"-" yaml:"paths" validate:"min=1,dive,required" label:"paths"`
}

// Validate validates the configuration against the struct tags.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))

	validate := validator.New(validator.WithRequiredStructEnabled())

	if err := registerExclusive(validate); err != nil {
		return err
	}

	if err := validate.Struct(c); err != nil {
		return errors.Wrap(describe(err), errors.ErrInvalidInput, "invalid configuration")
	}

	return nil
}

// Display writes the configuration as YAML.
func (c Config) Display(w io.Writer) error {
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling configuration: %w", err)
	}

	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("writing configuration: %w", err)
	}

	return nil
}
