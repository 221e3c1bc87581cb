// Package logging builds the bridge's logrus logger from configuration.
package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/bkyoung/review-bridge/internal/config"
)

// New constructs a logger for the given configuration. Unknown levels fall
// back to info.
func New(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
