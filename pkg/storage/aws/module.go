package aws

import (
	"context"

	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/sgl-project/ome-mtl/pkg/logging"
)

// Module provides *S3Storage configured from the "storage.s3" viper key.
var Module = fx.Provide(
	func(v *viper.Viper, logger logging.Interface) (*S3Storage, error) {
		cfg, err := NewConfig(v)
		if err != nil {
			return nil, err
		}
		return New(context.Background(), cfg, logger.WithField("component", "s3"))
	},
)
