// Package logger configures the process-wide logrus logger
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Setup applies level and format ("text" or "json") to the standard logger.
// An unknown level falls back to info.
func Setup(level, format string) {
	logrus.SetOutput(os.Stdout)

	if strings.EqualFold(format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.WithField("level", level).Warn("unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}
