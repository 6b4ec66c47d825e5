package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sgl-project/ome-mtl/pkg/logging"
)

var configFilePath string
var debug bool

// AgentModule represents a module that can be run by the agent framework
type AgentModule interface {
	Name() string
	ShortDescription() string
	LongDescription() string
	FxModules() []fx.Option

	// ConfigureCommand lets agents add flags or set RunE.
	ConfigureCommand(*cobra.Command)

	// Start runs the agent until it is done or ctx is cancelled.
	Start(ctx context.Context) error
}

// CreateAgentCommand creates a cobra command for an agent module
func CreateAgentCommand(module AgentModule) *cobra.Command {
	cmd := &cobra.Command{
		Use:   module.Name(),
		Short: module.ShortDescription(),
		Long:  module.LongDescription(),
	}

	cmd.PersistentFlags().StringVarP(&configFilePath, "config", "c", "", "path to config file")
	cmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")

	module.ConfigureCommand(cmd)
	return cmd
}

// runAgentCommand builds the fx app of module, runs its Start in the
// background and returns Start's error once the app has stopped.
func runAgentCommand(cmd *cobra.Command, module AgentModule) error {
	var actionErr error
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})

	options := []fx.Option{
		configProvider(cmd),
		logging.UseLoggingInterface,
	}
	options = append(options, module.FxModules()...)
	options = append(options, fx.Invoke(func(lc fx.Lifecycle, l *zap.Logger, sh fx.Shutdowner) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					defer close(done)
					if err := module.Start(ctx); err != nil {
						l.Error(module.Name()+" encountered an error during execution", zap.Error(err))
						actionErr = err
					}
					if err := sh.Shutdown(); err != nil {
						l.Debug("Shutdown already in progress", zap.Error(err))
					}
				}()
				return nil
			},
			OnStop: func(stopCtx context.Context) error {
				cancel()
				select {
				case <-done:
					return nil
				case <-stopCtx.Done():
					return stopCtx.Err()
				}
			},
		})
	}))

	app := fx.New(fx.Options(options...))
	if err := app.Err(); err != nil {
		return errors.Wrapf(err, "failed to initialize %s", module.Name())
	}
	app.Run()
	return errors.Wrap(actionErr, module.Name())
}
