package params

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/sgl-project/ome-mtl/pkg/configutils"
	"github.com/sgl-project/ome-mtl/pkg/constants"
	"github.com/sgl-project/ome-mtl/pkg/logging"
)

// ProblemConfig declares one problem of the agent config.
type ProblemConfig struct {
	Type     ProblemType `mapstructure:"type" validate:"required"`
	DataFile string      `mapstructure:"data_file"`
	EvalFile string      `mapstructure:"eval_file"`
}

// Config is the plan section of the agent configuration.
type Config struct {
	Logger logging.Interface `mapstructure:"-"`
	Fs     afero.Fs          `mapstructure:"-"`

	Problems   map[string]ProblemConfig `mapstructure:"problems" validate:"required,min=1,dive"`
	Problem    string                   `mapstructure:"problem" validate:"required"`
	GPU        int                      `mapstructure:"gpu" validate:"gte=0"`
	BaseDir    string                   `mapstructure:"base_dir"`
	DirName    string                   `mapstructure:"dir_name"`
	Predicting bool                     `mapstructure:"predicting"`
	Preset     Preset                   `mapstructure:"preset" validate:"omitempty,oneof=base crf static_batch dynamic_batch_size"`

	// Overrides holds hyperparameters keyed by their params.json names.
	Overrides map[string]interface{} `mapstructure:"params"`
}

// ConfigOption configures Config.
type ConfigOption func(*Config) error

func defaultConfig() *Config {
	return &Config{
		GPU:     constants.DefaultGPU,
		BaseDir: constants.DefaultBaseDir,
		Preset:  PresetBase,
	}
}

// Apply applies the given options.
func (c *Config) Apply(opts ...ConfigOption) error {
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o(c); err != nil {
			return err
		}
	}
	return nil
}

// NewConfig builds a Config from the given options.
func NewConfig(opts ...ConfigOption) (*Config, error) {
	c := defaultConfig()
	if err := c.Apply(opts...); err != nil {
		return nil, err
	}
	return c, nil
}

// WithConfigLogger sets the logger handed to Params.
func WithConfigLogger(logger logging.Interface) ConfigOption {
	return func(c *Config) error {
		if logger == nil {
			return errors.New("invalid logger nil")
		}
		c.Logger = logger
		return nil
	}
}

// WithConfigFs sets the filesystem handed to Params and the data readers.
func WithConfigFs(fs afero.Fs) ConfigOption {
	return func(c *Config) error {
		if fs == nil {
			return errors.New("invalid fs nil")
		}
		c.Fs = fs
		return nil
	}
}

// WithViper reads the plan keys from the root of v.
func WithViper(v *viper.Viper) ConfigOption {
	return func(c *Config) error {
		if v == nil {
			return errors.New("nil Viper")
		}
		if err := configutils.BindEnvsRecursive(v, c, ""); err != nil {
			return fmt.Errorf("error occurred when binding envs: %w", err)
		}
		if err := v.Unmarshal(c); err != nil {
			return fmt.Errorf("error occurred when unmarshalling config: %w", err)
		}
		return nil
	}
}

// Validate checks the config before any params are built.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	for name, problem := range c.Problems {
		if err := problem.Type.Validate(); err != nil {
			return fmt.Errorf("problem %s: %w", name, err)
		}
	}
	return nil
}

// AssignOptions returns the assignment described by the config.
func (c *Config) AssignOptions() AssignOptions {
	return AssignOptions{
		ProblemString: c.Problem,
		GPU:           c.GPU,
		BaseDir:       c.BaseDir,
		DirName:       c.DirName,
		Predicting:    c.Predicting,
	}
}

// NewParamsFromConfig builds Params for the configured preset, applies the
// overrides and registers every problem with a FileDataReader. The problem
// is not assigned yet.
func NewParamsFromConfig(c *Config, preparer DirPreparer, opts ...Option) (*Params, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	base := []Option{WithDirPreparer(preparer)}
	if c.Logger != nil {
		base = append(base, WithLogger(c.Logger))
	}
	if c.Fs != nil {
		base = append(base, WithFs(c.Fs))
	}
	p, err := NewPresetParams(c.Preset, append(base, opts...)...)
	if err != nil {
		return nil, err
	}

	if err := p.applyOverrides(c.Overrides); err != nil {
		return nil, err
	}

	types := make(map[string]ProblemType, len(c.Problems))
	readers := make(map[string]DataReader, len(c.Problems))
	for name, problem := range c.Problems {
		types[name] = problem.Type
		files := map[Mode]string{}
		if problem.DataFile != "" {
			files[ModeTrain] = problem.DataFile
		}
		if problem.EvalFile != "" {
			files[ModeEval] = problem.EvalFile
		}
		readers[name] = &FileDataReader{Fs: c.Fs, Files: files, Type: problem.Type}
	}
	if err := p.AddProblems(types, readers); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Params) applyOverrides(overrides map[string]interface{}) error {
	if len(overrides) == 0 {
		return nil
	}
	data, err := json.Marshal(overrides)
	if err != nil {
		return fmt.Errorf("failed to encode params overrides: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return fmt.Errorf("invalid params overrides: %w", err)
	}
	return nil
}
