// Package logger builds the zerolog loggers used across the service.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	permission = 0664
)

type LogBuild struct {
	writer  io.Writer
	path    string
	level   string
	service string
	console bool
}

type LogData struct {
	writer  io.Writer
	LogFile *os.File
	Logger  zerolog.Logger
}

func New() *LogBuild {
	return &LogBuild{}
}

// FromPath appends log lines to the file at path instead of stdout.
func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

// FromBuffer writes log lines to w instead of stdout.
func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

// FromLevel sets the minimum level by name: trace, debug, info, warn,
// error, fatal, panic. Empty means info.
func (build *LogBuild) FromLevel(level string) *LogBuild {
	build.level = level
	return build
}

// FromService stamps every line with a service field.
func (build *LogBuild) FromService(name string) *LogBuild {
	build.service = name
	return build
}

// Console switches to the human-readable console writer.
func (build *LogBuild) Console() *LogBuild {
	build.console = true
	return build
}

func (build *LogBuild) Make() (logData *LogData, err error) {
	logData = new(LogData)
	logData.writer = os.Stdout
	if build.writer != nil {
		logData.writer = build.writer
	}
	if build.path != "" {
		logData.LogFile, err = os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		logData.writer = zerolog.SyncWriter(logData.LogFile)
	}
	if build.console {
		logData.writer = zerolog.ConsoleWriter{Out: logData.writer, TimeFormat: time.RFC3339}
	}
	level := zerolog.InfoLevel
	if build.level != "" {
		if level, err = zerolog.ParseLevel(strings.ToLower(build.level)); err != nil {
			return nil, fmt.Errorf("parsing log level %q: %w", build.level, err)
		}
	}
	builder := zerolog.New(logData.writer).Level(level).With().Timestamp()
	if build.service != "" {
		builder = builder.Str("service", build.service)
	}
	logData.Logger = builder.Logger()
	return
}
