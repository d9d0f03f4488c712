package torrentcombine

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var globalVerboseLevel int
var debugFlags map[string]bool

// LogOptions configures the process-wide logger.
type LogOptions struct {
	Console    io.Writer // defaults to os.Stderr
	NoColor    bool
	File       string // optional rotated log file
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// SetupLogging installs the global zerolog logger. Output goes to a console
// writer and, when File is set, to a lumberjack-rotated JSON log as well.
func SetupLogging(opts LogOptions) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        console,
		NoColor:    opts.NoColor,
		TimeFormat: time.TimeOnly,
	}}

	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		})
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	applyLogLevel()
}

// SetVerboseLevel sets the global verbose level
//
// 0 and 1 log at info, 2 adds debug records and 3 adds function tracing.
func SetVerboseLevel(level int) {
	globalVerboseLevel = level
	applyLogLevel()
}

// GetVerboseLevel returns the current verbose level
func GetVerboseLevel() int {
	return globalVerboseLevel
}

func applyLogLevel() {
	switch {
	case globalVerboseLevel >= 3:
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case globalVerboseLevel == 2:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// VerboseEnter logs function entry at level 3+ and returns a defer function for exit logging
func VerboseEnter() func() {
	if globalVerboseLevel < 3 {
		return func() {}
	}

	pc, _, _, ok := runtime.Caller(1)
	if !ok {
		return func() {}
	}

	funcName := runtime.FuncForPC(pc).Name()
	if idx := strings.LastIndex(funcName, "."); idx != -1 {
		funcName = funcName[idx+1:]
	}

	log.Trace().Str("func", funcName).Msg("enter")

	return func() {
		log.Trace().Str("func", funcName).Msg("exit")
	}
}

// VerboseLog logs a message at the specified verbose level
func VerboseLog(level int, format string, args ...interface{}) {
	if globalVerboseLevel >= level {
		log.Info().Int("v", level).Msg(strings.TrimSuffix(fmt.Sprintf(format, args...), "\n"))
	}
}

// debugLog returns an event that is emitted regardless of the verbose level
// when the named debug flag is enabled, and a nil (no-op) event otherwise.
func debugLog(flag string) *zerolog.Event {
	if !IsDebugEnabled(flag) {
		return nil
	}
	return log.Log().Str("debug", flag)
}

// SetDebugFlags sets the debug flags from a comma-separated string
// Supports both simple flags ("merge,cache") and key:value format ("merge:true,cache:false")
func SetDebugFlags(flagsStr string) {
	debugFlags = make(map[string]bool)
	if flagsStr == "" {
		return
	}

	for _, flag := range strings.Split(flagsStr, ",") {
		flag = strings.TrimSpace(flag)
		if flag == "" {
			continue
		}

		parts := strings.SplitN(flag, ":", 2)
		flagName := strings.ToLower(parts[0])
		flagValue := true

		if len(parts) > 1 {
			switch strings.ToLower(parts[1]) {
			case "false", "0", "no", "off":
				flagValue = false
			default:
				flagValue = true
			}
		}

		debugFlags[flagName] = flagValue
	}
}

// IsDebugEnabled returns true if the specified debug flag is enabled
func IsDebugEnabled(flag string) bool {
	if debugFlags == nil {
		return false
	}
	return debugFlags[strings.ToLower(flag)]
}
