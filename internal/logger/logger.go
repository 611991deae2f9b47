package logger

import (
	"go.uber.org/zap"
)

// New builds the process logger at the configured verbosity. An empty
// verbosity means info.
func New(verbosity string) (*zap.Logger, error) {
	if verbosity == "" {
		verbosity = "info"
	}
	config := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(verbosity)
	if err != nil {
		return nil, err
	}
	config.Level = level
	return config.Build()
}
