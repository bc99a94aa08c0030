// Package sylog implements a small leveled logger for the jump's own
// diagnostic output, in the same prefixed single-line style apptainer's
// sylog package uses for its C-interop message levels, adapted here for a
// pure-Go, env-var-controlled launcher.
package sylog

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Level is a logger verbosity level, ordered from least to most chatty.
type Level int

const (
	FatalLevel Level = iota - 4
	ErrorLevel
	WarnLevel
	InfoLevel
	VerboseLevel
	DebugLevel
)

// noColorOffset is added/subtracted from a level to signal "no color" to
// getLoggerLevel without needing a second piece of state.
const noColorOffset Level = 90

var levelNames = map[Level]string{
	FatalLevel:   "FATAL",
	ErrorLevel:   "ERROR",
	WarnLevel:    "WARNING",
	InfoLevel:    "INFO",
	VerboseLevel: "VERBOSE",
	DebugLevel:   "DEBUG",
}

func (l Level) String() string {
	if n, ok := levelNames[l]; ok {
		return n
	}
	return strconv.Itoa(int(l))
}

var messageColors = map[Level]string{
	FatalLevel: "\x1b[31m",
	ErrorLevel: "\x1b[31m",
	WarnLevel:  "\x1b[33m",
	InfoLevel:  "\x1b[34m",
}

var loggerLevel = InfoLevel

var logWriter = io.Writer(os.Stderr)

// EnvVar is consulted at process start, and propagated to children so that
// nested scie invocations (e.g. a scie that re-execs another scie) inherit
// the same verbosity without needing to re-derive it from flags.
const EnvVar = "SCIE_LOG_LEVEL"

func init() {
	if raw := os.Getenv(EnvVar); raw != "" {
		if l, err := strconv.Atoi(raw); err == nil {
			loggerLevel = Level(l)
			return
		}
		// Accept the RUST_LOG-style word form too, since operators coming
		// from the original jump will reach for trace/debug/info/warn/error.
		if l, ok := fromWord(raw); ok {
			loggerLevel = l
		}
	}
}

func fromWord(word string) (Level, bool) {
	switch strings.ToLower(word) {
	case "trace":
		return DebugLevel, true
	case "debug":
		return DebugLevel, true
	case "info":
		return InfoLevel, true
	case "warn", "warning":
		return WarnLevel, true
	case "error":
		return ErrorLevel, true
	default:
		return 0, false
	}
}

func prefix(logLevel, msgLevel Level) string {
	colorReset := "\x1b[0m"
	messageColor, ok := messageColors[msgLevel]
	if !ok || logLevel != loggerLevel {
		colorReset = ""
		messageColor = ""
	}

	if logLevel < DebugLevel {
		return fmt.Sprintf("%s%-8s%s ", messageColor, msgLevel.String()+":", colorReset)
	}

	pc, _, _, ok := runtime.Caller(3)
	details := runtime.FuncForPC(pc)
	funcName := "????()"
	if ok && details != nil {
		parts := strings.Split(details.Name(), ".")
		funcName = parts[len(parts)-1] + "()"
	}

	return fmt.Sprintf("%s%-8s%s[P=%d]%-30s", messageColor, msgLevel, colorReset, os.Getpid(), funcName)
}

func writef(msgLevel Level, format string, a ...interface{}) {
	logLevel := getLoggerLevel()
	if logLevel < msgLevel {
		return
	}
	message := strings.TrimRight(fmt.Sprintf(format, a...), "\n")
	fmt.Fprintf(logWriter, "%s%s\n", prefix(logLevel, msgLevel), message)
}

func getLoggerLevel() Level {
	if loggerLevel <= -noColorOffset {
		return loggerLevel + noColorOffset
	} else if loggerLevel >= noColorOffset {
		return loggerLevel - noColorOffset
	}
	return loggerLevel
}

// Fatalf logs at FatalLevel and exits with status 1, matching the jump's
// "every error is fatal for the current invocation" policy (spec.md §7).
func Fatalf(format string, a ...interface{}) {
	writef(FatalLevel, format, a...)
	os.Exit(1)
}

// Errorf logs an ERROR level message without exiting.
func Errorf(format string, a ...interface{}) {
	writef(ErrorLevel, format, a...)
}

// Warningf logs a WARNING level message.
func Warningf(format string, a ...interface{}) {
	writef(WarnLevel, format, a...)
}

// Infof logs an INFO level message; shown unless running silent/quiet.
func Infof(format string, a ...interface{}) {
	writef(InfoLevel, format, a...)
}

// Verbosef logs a VERBOSE level message.
func Verbosef(format string, a ...interface{}) {
	writef(VerboseLevel, format, a...)
}

// Debugf logs a DEBUG level message, including the calling function name.
func Debugf(format string, a ...interface{}) {
	writef(DebugLevel, format, a...)
}

// SetLevel explicitly sets the logger level and whether color is enabled.
func SetLevel(l int, color bool) {
	loggerLevel = Level(l)
	if !color {
		if loggerLevel >= 0 {
			loggerLevel += noColorOffset
		} else {
			loggerLevel -= noColorOffset
		}
	}
}

// GetLevel returns the current logger level as an int, stripped of the
// color-disabled encoding.
func GetLevel() int {
	return int(getLoggerLevel())
}

// Writer returns an io.Writer callers can hand to other packages' loggers;
// it is io.Discard below WarnLevel so "--quiet" genuinely silences output.
func Writer() io.Writer {
	if getLoggerLevel() < WarnLevel {
		return io.Discard
	}
	return logWriter
}

// SetWriter installs a new writer for subsequent logging and returns the
// previous one, so tests can capture output and restore it afterward.
func SetWriter(w io.Writer) io.Writer {
	old := logWriter
	if w != nil {
		logWriter = w
	}
	return old
}
