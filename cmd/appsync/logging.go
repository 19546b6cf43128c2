package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	gosync "sync"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/appsync/internal/utils"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logFileName = "appsync.log"

var (
	logLevel  = new(slog.LevelVar)
	stdoutLog slog.Handler
	logFile   *lumberjack.Logger
	logFileMu gosync.Mutex
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// setupLogging installs the console handler. The file handler joins once a project is known.
func setupLogging(w io.Writer) {
	stdoutLog = tint.NewHandler(w, &tint.Options{
		Level:      logLevel,
		TimeFormat: "15:04:05.000",
		NoColor:    !isTerminal(w),
	})
	slog.SetDefault(slog.New(stdoutLog))
}

// attachLogFile adds a rotating debug log under logsDir to the default logger.
func attachLogFile(logsDir string) {
	logFileMu.Lock()
	defer logFileMu.Unlock()

	if logFile != nil || stdoutLog == nil {
		return
	}
	if err := utils.EnsureDir(logsDir); err != nil {
		slog.Warn("log file disabled", "dir", logsDir, "error", err)
		return
	}

	logFile = &lumberjack.Logger{
		Filename:   filepath.Join(logsDir, logFileName),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
	}

	fileHandler := slog.NewTextHandler(utils.NewLogInterceptor(logFile), &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// Do not include time as it is added by the log interceptor.
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutLog, fileHandler)))
}

func closeLogFile() {
	logFileMu.Lock()
	defer logFileMu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}
