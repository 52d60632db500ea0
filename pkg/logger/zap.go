package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewZap builds the zap logger used by the job server and the migrator.
func NewZap(env string) (*zap.Logger, error) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.OutputPaths = []string{"stdout"}

	return config.Build()
}

// GooseLogger adapts a sugared zap logger to the migrator's Printf/Fatalf interface.
type GooseLogger struct {
	*zap.SugaredLogger
}

func (l GooseLogger) Printf(format string, v ...interface{}) {
	l.Infof(strings.TrimRight(format, "\n"), v...)
}
