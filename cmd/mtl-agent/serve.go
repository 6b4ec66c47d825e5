package main

import (
	"context"
	"errors"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sgl-project/ome-mtl/internal/params"
	"github.com/sgl-project/ome-mtl/internal/server"
	pafero "github.com/sgl-project/ome-mtl/pkg/afero"
	"github.com/sgl-project/ome-mtl/pkg/logging"
)

// ServeAgent serves a saved plan over HTTP.
type ServeAgent struct {
	paramsPath string

	server *server.Server
}

type serveAgentParams struct {
	fx.In

	Fs        afero.Fs
	Viper     *viper.Viper
	ZapLogger *zap.Logger
	Logger    logging.Interface
}

func NewServeAgent() *ServeAgent {
	return &ServeAgent{}
}

func (a *ServeAgent) Name() string { return "serve" }

func (a *ServeAgent) ShortDescription() string {
	return "Serve a saved plan over HTTP"
}

func (a *ServeAgent) LongDescription() string {
	return "Serve exposes params.json, the plan summary and Prometheus plan metrics over HTTP. The plan is reloaded when params.json changes, and POST /v1/reload re-reads it on demand."
}

func (a *ServeAgent) ConfigureCommand(cmd *cobra.Command) {
	cmd.Flags().StringVar(&a.paramsPath, "params", "", "path to params.json")
	_ = cmd.MarkFlagRequired("params")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runAgentCommand(cmd, a)
	}
}

func (a *ServeAgent) FxModules() []fx.Option {
	return []fx.Option{
		pafero.Module,
		logging.Module,
		fx.Provide(server.NewConfig),
		fx.Invoke(func(in serveAgentParams, config *server.Config) error {
			if a.paramsPath == "" {
				return errors.New("--params is required")
			}
			logger := in.Logger.WithField("component", "server")
			srv, err := server.NewServer(config, a.paramsPath, in.ZapLogger, logger,
				params.WithFs(in.Fs), params.WithLogger(logger))
			if err != nil {
				return err
			}
			a.server = srv
			return nil
		}),
	}
}

func (a *ServeAgent) Start(ctx context.Context) error {
	if err := a.server.Reload(ctx); err != nil {
		return err
	}
	return a.server.Run(ctx)
}
