package hub

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/sgl-project/ome-mtl/pkg/logging"
)

// HubClientParams represents the parameters that can be injected into the Hub client
type HubClientParams struct {
	fx.In

	Logger logging.Interface
	Viper  *viper.Viper
}

// Module provides *HubClient configured from the "hub" viper key.
var Module = fx.Provide(
	func(params HubClientParams) (*HubClient, error) {
		config, err := NewHubConfig(
			WithViper(params.Viper),
			WithLogger(params.Logger.WithField("component", "hub")),
		)
		if err != nil {
			return nil, fmt.Errorf("error creating hub config: %w", err)
		}
		return NewHubClient(config)
	})
