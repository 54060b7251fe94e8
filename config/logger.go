package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the service-wide logrus instance.
func NewLogger(level string) *logrus.Logger {
	log := logrus.New()

	// Set formatter to JSON
	log.SetFormatter(&logrus.JSONFormatter{})

	// Set output to stdout (default)
	log.SetOutput(os.Stdout)

	log.SetLevel(logrus.InfoLevel)
	if parsed, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(parsed)
	}

	return log
}
