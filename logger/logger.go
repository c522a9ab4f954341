package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	InfoLogger  *logrus.Logger
	WarnLogger  *logrus.Logger
	ErrorLogger *logrus.Logger

	initOnce sync.Once
)

func init() {
	// Packages log from their own init and from tests before main runs.
	InfoLogger = newLogger(os.Stdout, logrus.InfoLevel)
	WarnLogger = newLogger(os.Stdout, logrus.WarnLevel)
	ErrorLogger = newLogger(os.Stderr, logrus.ErrorLevel)
}

// InitLoggers points the three loggers at stdout plus a rotated file under
// LOG_DIR (default "logs"). Safe to call more than once.
func InitLoggers() {
	initOnce.Do(func() {
		dir := os.Getenv("LOG_DIR")
		if dir == "" {
			dir = "logs"
		}

		InfoLogger = newLogger(io.MultiWriter(os.Stdout, rotated(dir+"/info.log")), logrus.InfoLevel)
		WarnLogger = newLogger(io.MultiWriter(os.Stdout, rotated(dir+"/warn.log")), logrus.WarnLevel)
		ErrorLogger = newLogger(io.MultiWriter(os.Stderr, rotated(dir+"/error.log")), logrus.ErrorLevel)
	})
}

func rotated(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
}

func newLogger(out io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	return l
}
