// Package config loads command settings from flags, CRITQ_* environment
// variables and an optional config file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// EnvPrefix prefixes every environment variable bound to a flag.
const EnvPrefix = "CRITQ"

// Flag names shared by the commands that read settings.
const (
	KeyDialect        = "dialect"
	KeyNaming         = "naming"
	KeyInlineLiterals = "inline-literals"
	KeyLogLevel       = "log-level"
	KeySchema         = "schema"
)

// Load reads the config file called name (critq.yaml, .json or .toml)
// from the working directory, if present, and applies it and the
// environment to every flag in fs the command line left unset.
func Load(name string, fs *pflag.FlagSet) (*viper.Viper, error) {
	return LoadFrom(".", name, fs)
}

// LoadFrom is Load with the config file looked up in dir.
func LoadFrom(dir, name string, fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(name)
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	if err := BindFlags(fs, v); err != nil {
		return nil, err
	}
	return v, nil
}

// BindFlags binds every flag to its viper key and copies viper values into
// flags that were not set explicitly. Env var names replace - with _.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if strings.Contains(f.Name, "-") {
			env := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			err = multierr.Append(err, v.BindEnv(f.Name, env))
		}
		if !f.Changed && v.IsSet(f.Name) {
			err = multierr.Append(err, fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))))
		}
	})
	return err
}
