package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TimeNowFunc is swapped in tests to get stable timestamps.
var TimeNowFunc = time.Now

// TimeFormat is the time format used for request logs.
var TimeFormat = time.RFC3339

const (
	// RequestIDKey is the gin context key holding the request id.
	RequestIDKey = "request-id"
	// RequestIDHeader is the inbound header carrying a caller supplied request id.
	RequestIDHeader = "X-Request-Id"
	// RequestLoggerKey is the gin context key holding the request scoped logger.
	RequestLoggerKey = "request-logger"
)

// NewLogger builds a zap logger writing to the lumberjack file sink and,
// unless disabled, to stdout.
func NewLogger(config *Config) (*zap.Logger, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	level, err := config.toZapCoreLevel()
	if err != nil {
		return nil, fmt.Errorf("constructing log level: %w", err)
	}
	encoder := newEncoder(config)

	cores := make([]zapcore.Core, 0, 2)
	if config.Filename != "" {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(&config.Logger), level))
	}
	if !config.DisableConsoleOutput {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)), nil
}

func newEncoder(config *Config) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	if config.Debug {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	if config.EncodeTimeAsRFC3339Nano {
		encoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	}

	if config.Debug {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

// NewTestLogger returns a logrus backed logger suitable for tests.
func NewTestLogger() Interface {
	return ForLogrus(logrus.NewEntry(logrus.New()))
}

// NewTestLoggerTo returns a logrus backed logger writing text records to w,
// so tests can assert on what was logged.
func NewTestLoggerTo(w io.Writer) Interface {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableColors: true, DisableTimestamp: true})
	return ForLogrus(logrus.NewEntry(l))
}
