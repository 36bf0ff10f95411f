package logging

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Init configures the global logger from the debug, verbose, log_level and
// log_format settings.
func Init() {
	level := viper.GetString("log_level")
	if viper.GetBool("debug") || viper.GetBool("verbose") {
		level = "debug"
	}
	if err := Setup(level, viper.GetString("log_format")); err != nil {
		logrus.Fatalf("setting up logging: %v", err)
	}
}

// Setup applies a level name (empty means info) and a format, "text" (the
// default) or "json".
func Setup(level, format string) error {
	callerPrettyfier := func(f *runtime.Frame) (string, string) {
		filename := filepath.Base(f.File)
		return "", fmt.Sprintf(" %s:%d", filename, f.Line)
	}

	switch strings.ToLower(format) {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{
			ForceColors:      true,
			FullTimestamp:    true,
			TimestampFormat:  "2006-01-02 15:04:05",
			CallerPrettyfier: callerPrettyfier,
		})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:  "2006-01-02T15:04:05.000Z07:00",
			CallerPrettyfier: callerPrettyfier,
		})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	logrus.SetReportCaller(true)

	if level == "" {
		logrus.SetLevel(logrus.InfoLevel)
		return nil
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	logrus.SetLevel(parsed)
	return nil
}
