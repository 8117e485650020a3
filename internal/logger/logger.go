package logger

import (
	"strings"

	"go.uber.org/zap"
)

// NewLogger returns a JSON production logger when appEnv is "production" and
// a human-readable development logger otherwise.
func NewLogger(appEnv string) (*zap.SugaredLogger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if strings.EqualFold(appEnv, "production") {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
