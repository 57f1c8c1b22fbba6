package logger

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/noah-isme/openrecords-api/pkg/config"
	"github.com/noah-isme/openrecords-api/pkg/middleware/requestid"
)

// New builds the process logger from config.
func New(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Env == config.EnvProduction {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Log.Format {
	case "console":
		zapCfg.Encoding = "console"
	default:
		zapCfg.Encoding = "json"
	}

	if cfg.Log.Level != "" {
		if err := zapCfg.Level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}
	}

	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.InitialFields = map[string]interface{}{"service": "openrecords-api"}

	return zapCfg.Build()
}

// WithContext returns l annotated with the request id carried by ctx.
func WithContext(ctx context.Context, l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	if id := requestid.FromContext(ctx); id != "" {
		return l.With(zap.String("request_id", id))
	}
	return l
}

// MiddlewareOption customises GinMiddleware.
type MiddlewareOption func(*middlewareOptions)

type middlewareOptions struct {
	actor func(*gin.Context) string
	skip  map[string]struct{}
}

// WithActor records the authenticated caller resolved by fn.
func WithActor(fn func(*gin.Context) string) MiddlewareOption {
	return func(o *middlewareOptions) { o.actor = fn }
}

// SkipPaths silences access logs for probe endpoints.
func SkipPaths(paths ...string) MiddlewareOption {
	return func(o *middlewareOptions) {
		for _, p := range paths {
			o.skip[p] = struct{}{}
		}
	}
}

// GinMiddleware writes one access log line per request. Server errors log at
// error level, client errors at warn.
func GinMiddleware(l *zap.Logger, opts ...MiddlewareOption) gin.HandlerFunc {
	o := middlewareOptions{skip: map[string]struct{}{}}
	for _, opt := range opts {
		opt(&o)
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if _, skip := o.skip[c.Request.URL.Path]; skip {
			return
		}

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if route := c.FullPath(); route != "" {
			fields = append(fields, zap.String("route", route))
		}
		if reqID := requestid.Value(c); reqID != "" {
			fields = append(fields, zap.String("request_id", reqID))
		}
		if o.actor != nil {
			if actor := o.actor(c); actor != "" {
				fields = append(fields, zap.String("actor", actor))
			}
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", strings.TrimSpace(c.Errors.String())))
		}

		switch {
		case status >= 500:
			l.Error("http_request", fields...)
		case status >= 400:
			l.Warn("http_request", fields...)
		default:
			l.Info("http_request", fields...)
		}
	}
}
