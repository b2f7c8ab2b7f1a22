package config

import (
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// ConsoleLog writes logs to stderr instead of a file.
	ConsoleLog = "console"

	defaultLogMaxSizeMB  = 15
	defaultLogMaxBackups = 10
	defaultLogMaxAgeDays = 30
)

// InitLog configures the standard logrus logger. An empty logPath or
// ConsoleLog keeps output on stderr; any other value is a rotating file.
func InitLog(level, logPath string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Errorf("failed parsing log-level %s: %s", level, err)
		return err
	}

	var w io.Writer = os.Stderr
	if logPath != "" && logPath != ConsoleLog {
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return err
		}
		w = &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAge:     defaultLogMaxAgeDays,
			Compress:   true,
		}
	}

	log.SetOutput(w)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	log.SetLevel(lvl)
	return nil
}
