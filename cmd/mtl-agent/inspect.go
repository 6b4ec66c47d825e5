package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/sgl-project/ome-mtl/internal/params"
	pafero "github.com/sgl-project/ome-mtl/pkg/afero"
	"github.com/sgl-project/ome-mtl/pkg/hfutil/modelconfig"
	"github.com/sgl-project/ome-mtl/pkg/logging"
)

// InspectAgent prints the summary of a saved plan.
type InspectAgent struct {
	paramsPath string
	out        io.Writer

	fs     afero.Fs
	logger logging.Interface
}

type inspectReport struct {
	params.PlanSummary
	ModelType      string `json:"model_type,omitempty"`
	ParameterCount string `json:"parameter_count,omitempty"`
	VocabSize      int    `json:"vocab_size,omitempty"`
}

func NewInspectAgent() *InspectAgent {
	return &InspectAgent{}
}

func (a *InspectAgent) Name() string { return "inspect" }

func (a *InspectAgent) ShortDescription() string {
	return "Print the summary of a saved plan"
}

func (a *InspectAgent) LongDescription() string {
	return "Inspect loads params.json and prints the problem chunks, sampling weights, schedule and encoder size as JSON."
}

func (a *InspectAgent) ConfigureCommand(cmd *cobra.Command) {
	cmd.Flags().StringVar(&a.paramsPath, "params", "", "path to params.json")
	_ = cmd.MarkFlagRequired("params")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		a.out = cmd.OutOrStdout()
		return runAgentCommand(cmd, a)
	}
}

func (a *InspectAgent) FxModules() []fx.Option {
	return []fx.Option{
		pafero.Module,
		logging.Module,
		fx.Invoke(func(fs afero.Fs, logger logging.Interface) {
			a.fs = fs
			a.logger = logger
		}),
	}
}

func (a *InspectAgent) Start(ctx context.Context) error {
	if a.paramsPath == "" {
		return errors.New("--params is required")
	}
	p, err := loadPlan(ctx, a.fs, a.logger, a.paramsPath)
	if err != nil {
		return err
	}
	return writeReport(a.out, p)
}

func writeReport(w io.Writer, p *params.Params) error {
	report := inspectReport{PlanSummary: p.Summary(), VocabSize: p.VocabSize}
	if p.BertConfig != nil {
		report.ModelType = p.BertConfig.ModelType
		report.ParameterCount = modelconfig.FormatParamCount(p.BertConfig.GetParameterCount())
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
