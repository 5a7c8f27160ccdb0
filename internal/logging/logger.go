package logging

import (
	"context"

	"go.uber.org/zap"
)

type releaseIDKeyType struct{}

var releaseIDKey = releaseIDKeyType{}

// NewLogger creates a named zap production logger.
func NewLogger(name string) *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return logger.Named(name)
}

// NewDevelopmentLogger creates a named console logger for verbose CLI runs.
func NewDevelopmentLogger(name string) *zap.Logger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return logger.Named(name)
}

// WithReleaseID returns a logger with release_id from context.
func WithReleaseID(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if relID, ok := ctx.Value(releaseIDKey).(string); ok && relID != "" {
		return logger.With(zap.String("release_id", relID))
	}
	return logger
}

// SetReleaseID stores release_id in context (call once per invocation).
func SetReleaseID(ctx context.Context, releaseID string) context.Context {
	return context.WithValue(ctx, releaseIDKey, releaseID)
}

// GetReleaseID retrieves release_id from context.
func GetReleaseID(ctx context.Context) string {
	if relID, ok := ctx.Value(releaseIDKey).(string); ok {
		return relID
	}
	return ""
}
