package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

var logg *logrus.Logger

func init() {
	logg = logrus.New()
	logg.SetFormatter(&logrus.JSONFormatter{})
	logg.SetLevel(logrus.InfoLevel)
	logg.SetOutput(os.Stdout)
}

// GetLogger returns the process-wide logger
func GetLogger() *logrus.Logger {
	return logg
}

// SetLogLevel applies a textual level such as "debug" or "warn"; unknown values keep the current level
func SetLogLevel(level string) {
	if parsed, err := logrus.ParseLevel(level); err == nil {
		logg.SetLevel(parsed)
	}
}

// LogError writes a structured error entry tagged with the module and function it came from
func LogError(logger *logrus.Logger, moduleName string, funcName string, context string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}
