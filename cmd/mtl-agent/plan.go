package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/sgl-project/ome-mtl/internal/checkpoint"
	"github.com/sgl-project/ome-mtl/internal/metrics"
	"github.com/sgl-project/ome-mtl/internal/params"
	pafero "github.com/sgl-project/ome-mtl/pkg/afero"
	"github.com/sgl-project/ome-mtl/pkg/hfutil/hub"
	"github.com/sgl-project/ome-mtl/pkg/logging"
	"github.com/sgl-project/ome-mtl/pkg/storage/aws"
)

// PlanAgent assigns the configured problem and writes params.json.
type PlanAgent struct {
	problem         string
	metricsTextfile string

	config *params.Config
	params *params.Params
	logger logging.Interface
}

func NewPlanAgent() *PlanAgent {
	return &PlanAgent{}
}

func (a *PlanAgent) Name() string { return "plan" }

func (a *PlanAgent) ShortDescription() string {
	return "Resolve a problem string into a training plan"
}

func (a *PlanAgent) LongDescription() string {
	return "Plan parses the configured problem string, prepares the checkpoint directory from an init checkpoint or the model hub, " +
		"reads the data info, computes sampling weights and the step schedule, and saves params.json into the checkpoint directory."
}

func (a *PlanAgent) ConfigureCommand(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&a.problem, "problem", "p", "", "problem string overriding the configured one")
	cmd.Flags().StringVar(&a.metricsTextfile, "metrics-textfile", "", "write plan metrics to this node exporter textfile")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runAgentCommand(cmd, a)
	}
}

func (a *PlanAgent) FxModules() []fx.Option {
	return []fx.Option{
		pafero.Module,
		logging.Module,
		hub.Module,
		aws.Module,
		checkpoint.Module,
		params.Module,
		fx.Invoke(func(c *params.Config, p *params.Params, logger logging.Interface) {
			a.config = c
			a.params = p
			a.logger = logger
		}),
	}
}

func (a *PlanAgent) Start(ctx context.Context) error {
	opts := a.config.AssignOptions()
	if a.problem != "" {
		opts.ProblemString = a.problem
	}

	if err := a.params.AssignProblem(ctx, opts); err != nil {
		return fmt.Errorf("failed to assign problem %q: %w", opts.ProblemString, err)
	}
	if err := a.params.ToJSON(); err != nil {
		return err
	}

	if a.metricsTextfile != "" {
		m := metrics.NewPlanMetrics()
		m.Observe(a.params)
		if err := m.WriteTextfile(a.metricsTextfile); err != nil {
			return fmt.Errorf("failed to write metrics textfile: %w", err)
		}
	}

	a.logger.
		WithField("params_path", a.params.ParamsPath).
		WithField("train_steps", a.params.TrainSteps).
		Info("Plan written")
	return nil
}
