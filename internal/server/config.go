package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/sgl-project/ome-mtl/pkg/configutils"
	"github.com/sgl-project/ome-mtl/pkg/logging/ginlog"
)

// ConfigKey is the viper key holding the server configuration.
const ConfigKey = "server"

// Config configures the plan inspection server.
type Config struct {
	Address         string                     `mapstructure:"address" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration              `mapstructure:"shutdown_timeout" validate:"gte=0"`
	RequestLogger   ginlog.RequestLoggerConfig `mapstructure:"request_logger"`

	// Watch reloads the plan when params.json changes on disk.
	Watch bool `mapstructure:"watch"`
	// WatchDelay is how long the watcher waits after the last change before
	// reading the file again.
	WatchDelay time.Duration `mapstructure:"watch_delay" validate:"gte=0"`
}

// DefaultConfig listens on :8080, watches the plan file and logs health
// checks at debug.
func DefaultConfig() *Config {
	return &Config{
		Address:         ":8080",
		ShutdownTimeout: 10 * time.Second,
		Watch:           true,
		WatchDelay:      time.Second,
		RequestLogger: ginlog.RequestLoggerConfig{
			LevelByPath: map[string]string{"/healthz": "debug", "/metrics": "debug"},
		},
	}
}

// NewConfig reads the "server" key of v on top of DefaultConfig.
func NewConfig(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, errors.New("nil Viper")
	}
	c := DefaultConfig()
	if err := configutils.BindEnvsRecursive(v, c, ConfigKey); err != nil {
		return nil, fmt.Errorf("error occurred when binding envs: %w", err)
	}
	if err := v.UnmarshalKey(ConfigKey, c); err != nil {
		return nil, fmt.Errorf("error occurred when unmarshalling config: %w", err)
	}
	if err := validator.New().Struct(c); err != nil {
		return nil, err
	}
	return c, nil
}
