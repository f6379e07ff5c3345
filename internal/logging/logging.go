// Package logging builds the structured logger shared by the library
// entry points and the command line tool.
package logging

import (
	"go.uber.org/zap"
)

// New creates a production logger. Debug lowers the level and switches
// to development encoding, which is easier to read while iterating on
// edit specs.
func New(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	return cfg.Build()
}

// WithRequest enriches the logger with the operation name and the
// request identifier of one processing call.
func WithRequest(logger *zap.Logger, operation, requestID string) *zap.Logger {
	fields := []zap.Field{zap.String("operation", operation)}
	if requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	return logger.With(fields...)
}
