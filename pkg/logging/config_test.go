package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestNewConfig_Viper(t *testing.T) {
	v := viper.New()
	v.SetConfigType("YAML")
	require.NoError(t, v.ReadConfig(strings.NewReader(`---
logging:
  debug: true
  level: WARN
  maxage: 7
  maxsize: 64
  maxbackups: 3
  compress: true
  encodetimeasrfc3339nano: true
  disableConsoleOutput: true
  filename: /var/log/mtl-agent/agent.log
`)))

	c, err := NewConfig(WithViper(v))
	require.NoError(t, err)

	d := cmp.Diff(c, &Config{
		Debug:                   true,
		Level:                   LevelWarn,
		EncodeTimeAsRFC3339Nano: true,
		DisableConsoleOutput:    true,
		Logger: lumberjack.Logger{
			Filename:   "/var/log/mtl-agent/agent.log",
			MaxSize:    64,
			MaxAge:     7,
			MaxBackups: 3,
			Compress:   true,
		},
	}, cmpopts.IgnoreUnexported(lumberjack.Logger{}))
	require.Empty(t, d)
}

func TestNewConfig_NilViper(t *testing.T) {
	_, err := NewConfig(WithViper(nil))
	assert.EqualError(t, err, "nil Viper")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{name: "zero value", config: Config{}},
		{name: "negative maxsize", config: Config{Logger: lumberjack.Logger{MaxSize: -1}}, wantErr: "maxsize must be >= 0, not -1"},
		{name: "negative maxbackups", config: Config{Logger: lumberjack.Logger{MaxBackups: -2}}, wantErr: "maxbackups must be >= 0, not -2"},
		{name: "negative maxage", config: Config{Logger: lumberjack.Logger{MaxAge: -3}}, wantErr: "maxage days must be >= 0, not -3"},
		{name: "bad level", config: Config{Level: "verbose"}, wantErr: "invalid level: unknown log level: verbose"},
	}

	for i := range tests {
		tt := &tests[i]
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LevelInfo, lvl)

	lvl, err = ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, LevelWarn, lvl)

	_, err = ParseLevel("trace")
	assert.Error(t, err)
}

func TestNewLogger_ConsoleDisabledWithoutFile(t *testing.T) {
	l, err := NewLogger(&Config{DisableConsoleOutput: true})
	require.NoError(t, err)
	l.Info("dropped")
}

func TestNewTestLoggerTo(t *testing.T) {
	var buf bytes.Buffer
	log := NewTestLoggerTo(&buf)

	log.WithField("problem", "cws").Infof("registered %d problems", 2)

	assert.Contains(t, buf.String(), "registered 2 problems")
	assert.Contains(t, buf.String(), "problem=cws")
}

func TestDiscard(t *testing.T) {
	log := Discard()
	assert.Equal(t, log, log.WithField("a", 1).WithError(nil))
}
