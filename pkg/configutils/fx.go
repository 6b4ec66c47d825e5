package configutils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// NewViperFromFile creates a viper instance reading configFilePath, with
// environment overrides under envPrefix and the "debug" flag bound from pflags.
func NewViperFromFile(fs afero.Fs, envPrefix string, pflags *pflag.FlagSet, configFilePath string) (*viper.Viper, error) {
	if configFilePath == "" {
		return nil, errors.New("no config file provided")
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if pflags != nil {
		if f := pflags.Lookup("debug"); f != nil {
			if err := v.BindPFlag("debug", f); err != nil {
				return nil, fmt.Errorf("can't bind debug flag: %w", err)
			}
		}
	}

	if err := ResolveAndMergeFileFs(fs, v, configFilePath); err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}

	// UnmarshalKey only sees values read from files; pin env values too
	for _, key := range v.AllKeys() {
		v.Set(key, v.Get(key))
	}
	return v, nil
}

// ProvideViperFromFile provides *viper.Viper to an fx app.
func ProvideViperFromFile(envPrefix string, pflags *pflag.FlagSet, configFilePath string) fx.Option {
	return fx.Provide(func(fs afero.Fs) (*viper.Viper, error) {
		return NewViperFromFile(fs, envPrefix, pflags, configFilePath)
	})
}
