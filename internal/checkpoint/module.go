package checkpoint

import (
	"github.com/spf13/afero"
	"go.uber.org/fx"

	"github.com/sgl-project/ome-mtl/internal/params"
	"github.com/sgl-project/ome-mtl/pkg/hfutil/hub"
	"github.com/sgl-project/ome-mtl/pkg/logging"
	"github.com/sgl-project/ome-mtl/pkg/storage/aws"
)

// PreparerParams are the dependencies injected into the Preparer. Object
// storage is optional; without it s3:// init checkpoints are rejected.
type PreparerParams struct {
	fx.In

	Fs        afero.Fs
	Logger    logging.Interface
	HubClient *hub.HubClient
	S3        *aws.S3Storage `optional:"true"`
}

// Module provides *Preparer and exposes it as params.DirPreparer.
var Module = fx.Provide(
	func(in PreparerParams) (*Preparer, error) {
		opts := []Option{
			WithFs(in.Fs),
			WithLogger(in.Logger.WithField("component", "checkpoint")),
			WithHubFetcher(in.HubClient),
		}
		if in.S3 != nil {
			opts = append(opts, WithObjectStager(in.S3))
		}
		return NewPreparer(opts...)
	},
	func(pr *Preparer) params.DirPreparer { return pr },
)
