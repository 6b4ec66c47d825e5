package main

import (
	"context"
	"errors"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/sgl-project/ome-mtl/internal/params"
	pafero "github.com/sgl-project/ome-mtl/pkg/afero"
	"github.com/sgl-project/ome-mtl/pkg/logging"
)

// UpdateStepsAgent rewrites the schedule of a saved plan once the real
// number of steps per epoch is known.
type UpdateStepsAgent struct {
	paramsPath    string
	stepsPerEpoch int
	epoch         int

	fs     afero.Fs
	logger logging.Interface
}

func NewUpdateStepsAgent() *UpdateStepsAgent {
	return &UpdateStepsAgent{}
}

func (a *UpdateStepsAgent) Name() string { return "update-steps" }

func (a *UpdateStepsAgent) ShortDescription() string {
	return "Update the step schedule of a saved plan"
}

func (a *UpdateStepsAgent) LongDescription() string {
	return "Update-steps reloads params.json, recomputes train_steps and the warmup from the measured steps per epoch and saves the plan again."
}

func (a *UpdateStepsAgent) ConfigureCommand(cmd *cobra.Command) {
	cmd.Flags().StringVar(&a.paramsPath, "params", "", "path to params.json")
	cmd.Flags().IntVar(&a.stepsPerEpoch, "steps-per-epoch", 0, "measured training steps per epoch")
	cmd.Flags().IntVar(&a.epoch, "epoch", 0, "number of epochs; 0 keeps train_epoch")
	_ = cmd.MarkFlagRequired("params")
	_ = cmd.MarkFlagRequired("steps-per-epoch")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runAgentCommand(cmd, a)
	}
}

func (a *UpdateStepsAgent) FxModules() []fx.Option {
	return []fx.Option{
		pafero.Module,
		logging.Module,
		fx.Invoke(func(fs afero.Fs, logger logging.Interface) {
			a.fs = fs
			a.logger = logger
		}),
	}
}

func (a *UpdateStepsAgent) Start(ctx context.Context) error {
	if a.paramsPath == "" {
		return errors.New("--params is required")
	}
	p, err := loadPlan(ctx, a.fs, a.logger, a.paramsPath)
	if err != nil {
		return err
	}
	if err := p.UpdateTrainSteps(a.stepsPerEpoch, a.epoch); err != nil {
		return err
	}
	p.ParamsPath = a.paramsPath
	return p.ToJSON()
}

// loadPlan reads a saved plan as stored. Nothing is recomputed, so the
// checkpoint directory named in the file is left alone.
func loadPlan(ctx context.Context, fs afero.Fs, logger logging.Interface, path string) (*params.Params, error) {
	p, err := params.NewParams(params.WithFs(fs), params.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := p.FromJSON(ctx, path); err != nil {
		return nil, err
	}
	return p, nil
}
