package main

import (
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/sgl-project/ome-mtl/pkg/configutils"
	"github.com/sgl-project/ome-mtl/pkg/constants"
)

// configProvider provides *viper.Viper read from --config. Without a config
// file only environment variables under MTL_AGENT_ are visible.
func configProvider(cmd *cobra.Command) fx.Option {
	return fx.Provide(func(fs afero.Fs) (*viper.Viper, error) {
		if configFilePath != "" {
			return configutils.NewViperFromFile(fs, constants.AgentEnvPrefix, cmd.Flags(), configFilePath)
		}

		v := viper.New()
		v.SetEnvPrefix(constants.AgentEnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
		if f := cmd.Flags().Lookup("debug"); f != nil {
			if err := v.BindPFlag("debug", f); err != nil {
				return nil, err
			}
		}
		return v, nil
	})
}
