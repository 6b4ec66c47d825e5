package ginlog

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sgl-project/ome-mtl/pkg/logging"
)

const (
	RequestIDKey     = logging.RequestIDKey
	RequestIDHeader  = logging.RequestIDHeader
	RequestLoggerKey = logging.RequestLoggerKey
)

// RequestLoggerConfig configures RequestLogger.
type RequestLoggerConfig struct {
	// ExcludeQueryParameters strips query strings from request logs.
	ExcludeQueryParameters bool `mapstructure:"exclude_query_parameters"`

	// LevelByPath overrides the level for exact paths, e.g. "/healthz" -> "debug".
	LevelByPath map[string]string `mapstructure:"level_by_path"`
}

// Opts converts the config into RequestLogger options.
func (rec RequestLoggerConfig) Opts() []RequestLoggerOption {
	opts := []RequestLoggerOption{WithExcludeQueryParameters(rec.ExcludeQueryParameters)}
	if len(rec.LevelByPath) == 0 {
		return opts
	}

	levels := make(map[string]zapcore.Level, len(rec.LevelByPath))
	for path, s := range rec.LevelByPath {
		lvl := zapcore.InfoLevel
		// unparsable levels fall back to info
		if err := lvl.UnmarshalText([]byte(s)); err != nil {
			lvl = zapcore.InfoLevel
		}
		levels[path] = lvl
	}
	return append(opts, WithLevelByPath(levels))
}

// GetRequestLogger returns the request scoped logger set by RequestLogger.
func GetRequestLogger(ctx *gin.Context) *zap.Logger {
	return ctx.MustGet(RequestLoggerKey).(*zap.Logger)
}

type requestLogger struct {
	logger                 *zap.Logger
	levelByPath            map[string]zapcore.Level
	excludeQueryParameters bool
}

// RequestLoggerOption configures RequestLogger.
type RequestLoggerOption func(*requestLogger)

// WithLevelByPath sets a custom logging level per exact path.
func WithLevelByPath(levelByPath map[string]zapcore.Level) RequestLoggerOption {
	return func(rl *requestLogger) {
		rl.levelByPath = levelByPath
	}
}

// WithExcludeQueryParameters controls whether query strings are logged.
func WithExcludeQueryParameters(value bool) RequestLoggerOption {
	return func(rl *requestLogger) {
		rl.excludeQueryParameters = value
	}
}

// RequestLogger returns a gin middleware logging every request through zap.
func RequestLogger(logger *zap.Logger, opts ...RequestLoggerOption) gin.HandlerFunc {
	rl := &requestLogger{logger: logger}
	for _, opt := range opts {
		opt(rl)
	}
	return rl.handle
}

func (rl *requestLogger) handle(ctx *gin.Context) {
	start := logging.TimeNowFunc()
	path := ctx.Request.URL.Path
	query := ctx.Request.URL.RawQuery

	requestID := GetOrCreateRequestID(ctx)
	ctx.Header(RequestIDHeader, requestID)
	reqLogger := rl.logger.With(zap.String(RequestIDKey, requestID))
	ctx.Set(RequestLoggerKey, reqLogger)

	ctx.Next()

	end := logging.TimeNowFunc()
	if len(ctx.Errors) > 0 {
		for _, err := range ctx.Errors.Errors() {
			reqLogger.Error(err)
		}
		return
	}

	lvl, ok := rl.levelByPath[path]
	if !ok {
		lvl = zapcore.InfoLevel
	}
	if ce := reqLogger.Check(lvl, path); ce != nil {
		fields := []zap.Field{
			zap.String("method", ctx.Request.Method),
			zap.String("path", path),
			zap.String("ip", ctx.ClientIP()),
			zap.Int("status", ctx.Writer.Status()),
			zap.String("time", end.Format(logging.TimeFormat)),
			zap.Duration("latency", end.Sub(start)),
		}
		if !rl.excludeQueryParameters {
			fields = append(fields, zap.String("query", query))
		}
		ce.Write(fields...)
	}
}
