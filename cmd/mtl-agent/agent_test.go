package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/sgl-project/ome-mtl/internal/params"
	"github.com/sgl-project/ome-mtl/pkg/logging"
)

// MockAgentModule is a mock implementation of the AgentModule interface for testing
type MockAgentModule struct {
	mock.Mock
}

func (m *MockAgentModule) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockAgentModule) ShortDescription() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockAgentModule) LongDescription() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockAgentModule) FxModules() []fx.Option {
	args := m.Called()
	return args.Get(0).([]fx.Option)
}

func (m *MockAgentModule) ConfigureCommand(cmd *cobra.Command) {
	m.Called(cmd)
}

func (m *MockAgentModule) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestCreateAgentCommand(t *testing.T) {
	mockModule := new(MockAgentModule)
	mockModule.On("Name").Return("mock-agent")
	mockModule.On("ShortDescription").Return("Mock Agent Short Description")
	mockModule.On("LongDescription").Return("Mock Agent Long Description")
	mockModule.On("ConfigureCommand", mock.AnythingOfType("*cobra.Command")).Run(func(args mock.Arguments) {
		cmd := args.Get(0).(*cobra.Command)
		cmd.RunE = func(cmd *cobra.Command, args []string) error { return nil }
	})

	cmd := CreateAgentCommand(mockModule)

	assert.Equal(t, "mock-agent", cmd.Use)
	assert.Equal(t, "Mock Agent Short Description", cmd.Short)
	assert.Equal(t, "Mock Agent Long Description", cmd.Long)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	debugFlag := cmd.PersistentFlags().Lookup("debug")
	require.NotNil(t, debugFlag)
	assert.Equal(t, "d", debugFlag.Shorthand)

	mockModule.AssertCalled(t, "ConfigureCommand", mock.AnythingOfType("*cobra.Command"))
	assert.NotNil(t, cmd.RunE)
}

func TestAgentCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"plan", "update-steps", "inspect", "serve"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestAgentFlags(t *testing.T) {
	tests := []struct {
		module AgentModule
		flags  []string
	}{
		{module: NewPlanAgent(), flags: []string{"problem", "metrics-textfile"}},
		{module: NewUpdateStepsAgent(), flags: []string{"params", "steps-per-epoch", "epoch"}},
		{module: NewInspectAgent(), flags: []string{"params"}},
		{module: NewServeAgent(), flags: []string{"params"}},
	}
	for _, tt := range tests {
		t.Run(tt.module.Name(), func(t *testing.T) {
			cmd := CreateAgentCommand(tt.module)
			for _, name := range tt.flags {
				assert.NotNil(t, cmd.Flags().Lookup(name), name)
			}
			assert.NotNil(t, cmd.RunE)
			assert.NotEmpty(t, tt.module.FxModules())
		})
	}
}

func newPlanFixture(t *testing.T) (*params.Params, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	p, err := params.NewParams(params.WithFs(fs))
	require.NoError(t, err)
	reader := params.DataReaderFunc(func(context.Context, *params.Params, string, params.Mode) (params.DataInfo, error) {
		return params.DataInfo{DataNum: 640, NumClasses: 3}, nil
	})
	require.NoError(t, p.AddProblem("ner", params.ProblemTypeSeqTag, reader))
	require.NoError(t, p.AddProblem("cls", params.ProblemTypeCls, reader))
	return p, fs
}

func TestPlanAgentStart(t *testing.T) {
	p, fs := newPlanFixture(t)
	textfile := filepath.Join(t.TempDir(), "plan.prom")
	agent := &PlanAgent{
		problem:         "ner&cls",
		metricsTextfile: textfile,
		config:          &params.Config{Problem: "ner", GPU: 1, BaseDir: "out"},
		params:          p,
		logger:          logging.Discard(),
	}

	require.NoError(t, agent.Start(context.Background()))

	assert.Equal(t, filepath.Join("out", "cls_ner_ckpt", "params.json"), p.ParamsPath)
	ok, err := afero.Exists(fs, p.ParamsPath)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1280*15/32, p.TrainSteps)

	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "mtl_plan_train_steps 600")
}

func TestPlanAgentStartFails(t *testing.T) {
	p, _ := newPlanFixture(t)
	agent := &PlanAgent{
		config: &params.Config{Problem: "unknown", GPU: 1},
		params: p,
		logger: logging.Discard(),
	}
	assert.ErrorContains(t, agent.Start(context.Background()), "unknown")
}

func TestUpdateStepsAndInspect(t *testing.T) {
	ctx := context.Background()
	p, fs := newPlanFixture(t)
	require.NoError(t, p.AssignProblem(ctx, params.NewAssignOptions("ner|cls")))
	require.NoError(t, p.ToJSON())

	update := &UpdateStepsAgent{
		paramsPath:    p.ParamsPath,
		stepsPerEpoch: 50,
		epoch:         4,
		fs:            fs,
		logger:        logging.Discard(),
	}
	require.NoError(t, update.Start(ctx))
	dataInfo := filepath.Join(p.CkptDir, "data_info.json")
	require.NoError(t, fs.Remove(dataInfo))

	var out bytes.Buffer
	inspect := &InspectAgent{paramsPath: p.ParamsPath, out: &out, fs: fs, logger: logging.Discard()}
	require.NoError(t, inspect.Start(ctx))

	var report map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	schedule := report["schedule"].(map[string]interface{})
	assert.Equal(t, float64(200), schedule["train_steps"])
	assert.Equal(t, float64(4), schedule["train_epoch"])
	assert.Equal(t, float64(20), schedule["num_warmup_steps"])
	assert.Equal(t, "ner|cls", report["problem_str"])
	exists, err := afero.Exists(fs, dataInfo)
	require.NoError(t, err)
	assert.False(t, exists, "inspect does not rebuild the data info cache")

	missing := &InspectAgent{out: &out, fs: fs, logger: logging.Discard()}
	assert.Error(t, missing.Start(ctx))
}

func TestWriteReportWithConfig(t *testing.T) {
	p, err := params.NewParams()
	require.NoError(t, err)
	p.BertConfigDict = map[string]interface{}{
		"model_type": "bert", "vocab_size": 21128, "hidden_size": 768,
		"num_hidden_layers": 12, "intermediate_size": 3072, "max_position_embeddings": 512, "type_vocab_size": 2,
	}
	require.NoError(t, p.FromJSON(context.Background(), writeTempParams(t, p)))

	var out bytes.Buffer
	require.NoError(t, writeReport(&out, p))
	assert.Contains(t, out.String(), `"model_type": "bert"`)
	assert.Contains(t, out.String(), `"parameter_count": "102.2M"`)
}

func writeTempParams(t *testing.T, p *params.Params) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "params.json")
	data, err := json.Marshal(p)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}
