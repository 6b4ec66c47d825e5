package hub

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/sgl-project/ome-mtl/pkg/configutils"
	"github.com/sgl-project/ome-mtl/pkg/logging"
)

// ConfigKey is the viper key holding the hub configuration.
const ConfigKey = "hub"

// HubConfig represents the configuration for the Hugging Face Hub client
type HubConfig struct {
	Logger              logging.Interface `mapstructure:"-"`
	Token               string            `mapstructure:"hf_token"`
	Endpoint            string            `mapstructure:"endpoint" validate:"required,url"`
	UserAgent           string            `mapstructure:"user_agent"`
	RequestTimeout      time.Duration     `mapstructure:"request_timeout" validate:"gte=0"`
	EtagTimeout         time.Duration     `mapstructure:"etag_timeout" validate:"gte=0"`
	DownloadTimeout     time.Duration     `mapstructure:"download_timeout" validate:"gte=0"`
	MaxRetries          int               `mapstructure:"max_retries" validate:"gte=0"`
	RetryInterval       time.Duration     `mapstructure:"retry_interval" validate:"gte=0"`
	LocalFilesOnly      bool              `mapstructure:"local_files_only"`
	EnableOfflineMode   bool              `mapstructure:"enable_offline_mode"`
	DisableProgressBars bool              `mapstructure:"disable_progress_bars"`
	EnableDetailedLogs  bool              `mapstructure:"enable_detailed_logs"`
}

func defaultHubConfig() *HubConfig {
	return &HubConfig{
		Token:             GetHfToken(),
		Endpoint:          GetEndpoint(),
		UserAgent:         DefaultUserAgent,
		RequestTimeout:    DefaultRequestTimeout,
		EtagTimeout:       DefaultEtagTimeout,
		DownloadTimeout:   DownloadTimeout,
		MaxRetries:        DefaultMaxRetries,
		RetryInterval:     DefaultRetryInterval,
		EnableOfflineMode: IsOfflineMode(),
	}
}

// HubOption represents a configuration option function
type HubOption func(*HubConfig) error

// Apply applies the given options to the configuration
func (c *HubConfig) Apply(opts ...HubOption) error {
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

// NewHubConfig builds and returns a new configuration from the given options
func NewHubConfig(opts ...HubOption) (*HubConfig, error) {
	c := defaultHubConfig()
	if err := c.Apply(opts...); err != nil {
		return nil, err
	}
	return c, nil
}

// WithLogger specifies the logger
func WithLogger(logger logging.Interface) HubOption {
	return func(c *HubConfig) error {
		if logger == nil {
			return errors.New("invalid logger nil")
		}
		c.Logger = logger
		return nil
	}
}

// WithToken specifies the HF token
func WithToken(token string) HubOption {
	return func(c *HubConfig) error {
		c.Token = token
		return nil
	}
}

// WithEndpoint specifies the Hub endpoint
func WithEndpoint(endpoint string) HubOption {
	return func(c *HubConfig) error {
		if endpoint == "" {
			return errors.New("endpoint cannot be empty")
		}
		c.Endpoint = endpoint
		return nil
	}
}

// WithRetryConfig specifies retry configuration
func WithRetryConfig(maxRetries int, retryInterval time.Duration) HubOption {
	return func(c *HubConfig) error {
		if maxRetries < 0 {
			return errors.New("max retries cannot be negative")
		}
		c.MaxRetries = maxRetries
		c.RetryInterval = retryInterval
		return nil
	}
}

// WithOfflineMode enables offline mode
func WithOfflineMode(enabled bool) HubOption {
	return func(c *HubConfig) error {
		c.EnableOfflineMode = enabled
		return nil
	}
}

// WithProgressBars enables or disables progress bars
func WithProgressBars(enabled bool) HubOption {
	return func(c *HubConfig) error {
		c.DisableProgressBars = !enabled
		return nil
	}
}

// WithViper resolves the configuration from the "hub" key, with environment
// overrides under the same prefix.
func WithViper(v *viper.Viper) HubOption {
	return func(c *HubConfig) error {
		if v == nil {
			return errors.New("nil Viper")
		}
		if err := configutils.BindEnvsRecursive(v, c, ConfigKey); err != nil {
			return fmt.Errorf("error occurred when binding envs: %w", err)
		}
		if err := v.UnmarshalKey(ConfigKey, c); err != nil {
			return fmt.Errorf("error occurred when unmarshalling config: %w", err)
		}
		return nil
	}
}

// ValidateConfig validates the configuration
func (c *HubConfig) ValidateConfig() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// CreateProgressManager creates a progress manager from the configuration
func (c *HubConfig) CreateProgressManager() *ProgressManager {
	return NewProgressManager(c.Logger, !c.DisableProgressBars, c.EnableDetailedLogs)
}

func (c *HubConfig) offline() bool {
	return c.EnableOfflineMode || c.LocalFilesOnly
}
