package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

type Fields map[string]interface{}

var globalLogger *logrus.Logger

func init() {
	globalLogger = logrus.New()
	globalLogger.SetOutput(os.Stdout)
	globalLogger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		globalLogger.SetLevel(level)
	} else {
		globalLogger.SetLevel(logrus.InfoLevel)
	}
}

func GlobalLogger() *logrus.Logger {
	return globalLogger
}

func SetGlobalLogger(logger *logrus.Logger) {
	globalLogger = logger
}

func WithFields(fields Fields) *logrus.Entry {
	return globalLogger.WithFields(logrus.Fields(fields))
}

func Info(args ...interface{}) {
	globalLogger.Info(args...)
}

func Infof(template string, args ...interface{}) {
	globalLogger.Infof(template, args...)
}

func Debug(args ...interface{}) {
	globalLogger.Debug(args...)
}

func Debugf(template string, args ...interface{}) {
	globalLogger.Debugf(template, args...)
}

func Warn(args ...interface{}) {
	globalLogger.Warn(args...)
}

func Warnf(template string, args ...interface{}) {
	globalLogger.Warnf(template, args...)
}

func Error(args ...interface{}) {
	globalLogger.Error(args...)
}

func Errorf(template string, args ...interface{}) {
	globalLogger.Errorf(template, args...)
}

func Fatal(args ...interface{}) {
	globalLogger.Fatal(args...)
}

func Fatalf(template string, args ...interface{}) {
	globalLogger.Fatalf(template, args...)
}
