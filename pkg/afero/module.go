package afero

import (
	"github.com/spf13/afero"
	"go.uber.org/fx"
)

// Module provides the OS backed afero.Fs.
var Module fx.Option = fx.Provide(
	func() afero.Fs { return afero.NewOsFs() },
)
