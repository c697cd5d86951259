package utils

import (
	"strings"

	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
)

var Log = logrus.New()

func SetLogLevel(level string) {
	// We are not using logrus' trace and panic levels
	switch strings.ToLower(level) {
	case "debug":
		Log.SetLevel(log.DebugLevel)
	case "info":
		Log.SetLevel(log.InfoLevel)
	case "warning", "warn":
		Log.SetLevel(log.WarnLevel)
	case "error":
		Log.SetLevel(log.ErrorLevel)
	case "fatal":
		Log.SetLevel(log.FatalLevel)
	default:
		log.Fatal("Bad error level string")
	}
}

// LeveledLogger forwards go-retryablehttp's key/value logging to Log.
type LeveledLogger struct{}

func (LeveledLogger) Error(msg string, keysAndValues ...interface{}) {
	Log.WithFields(kvFields(keysAndValues)).Error(msg)
}

func (LeveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	Log.WithFields(kvFields(keysAndValues)).Warn(msg)
}

// Info is demoted to debug: retryablehttp logs every request at info.
func (LeveledLogger) Info(msg string, keysAndValues ...interface{}) {
	Log.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (LeveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	Log.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func kvFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}
