package params

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/sgl-project/ome-mtl/pkg/logging"
)

type configParams struct {
	fx.In

	Logger logging.Interface
	Viper  *viper.Viper
	Fs     afero.Fs
}

type paramsParams struct {
	fx.In

	Config   *Config
	Preparer DirPreparer `optional:"true"`
}

// Module provides the plan Config and the unassigned Params built from it.
var Module = fx.Provide(
	func(in configParams) (*Config, error) {
		config, err := NewConfig(
			WithViper(in.Viper),
			WithConfigLogger(in.Logger.WithField("component", "params")),
			WithConfigFs(in.Fs),
		)
		if err != nil {
			return nil, fmt.Errorf("error creating params config: %w", err)
		}
		return config, nil
	},
	func(in paramsParams) (*Params, error) {
		return NewParamsFromConfig(in.Config, in.Preparer)
	},
)
