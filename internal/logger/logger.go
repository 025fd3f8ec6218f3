package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger. It starts with defaults so packages can
// log before Init runs (for example from tests).
var Log = logrus.New()

// Init configures the logger output format and level. Unknown levels fall
// back to info.
func Init(level string, out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	Log.SetOutput(out)
	Log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	if level == "" {
		level = "info"
	}
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	Log.SetLevel(logLevel)
}

func WithField(key string, value interface{}) *logrus.Entry {
	return Log.WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log.WithFields(fields)
}

// ForSession returns an entry tagged with the intake session id.
func ForSession(sessionID string) *logrus.Entry {
	return Log.WithField("session_id", sessionID)
}
