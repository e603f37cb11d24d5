// Package logger configures the application-wide logrus instance.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logger for the given environment. Production gets JSON
// for log shippers; everything else gets human-readable text.
func New(environment string, debug bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if environment == "production" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
		log.SetLevel(logrus.InfoLevel)
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
		log.SetLevel(logrus.DebugLevel)
	}

	if debug {
		log.SetLevel(logrus.DebugLevel)
	}

	return log
}
