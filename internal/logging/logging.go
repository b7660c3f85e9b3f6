package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log levels
const (
	None    = 0
	Error   = 1
	Warning = 2
	Info    = 3
	Debug   = 4
)

// Output formats understood by SetFormat.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var (
	currentLevel atomic.Int32

	mu     sync.RWMutex
	logger *zap.Logger
	out    io.Writer = os.Stderr
	format           = FormatConsole
)

func init() {
	currentLevel.Store(Info)
	logger = build(out, format)
}

// build creates the zap logger backing Logf. Level filtering happens in Logf,
// so the core itself accepts everything down to debug.
func build(w io.Writer, f string) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if f == FormatJSON {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(w)), zapcore.DebugLevel)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetOutput redirects log output. Tests use it to capture lines.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	logger = build(out, format)
}

// SetFormat switches between console and json encoding.
func SetFormat(f string) error {
	f = strings.ToLower(strings.TrimSpace(f))
	if f == "" {
		f = FormatConsole
	}
	if f != FormatConsole && f != FormatJSON {
		return fmt.Errorf("invalid log format '%s', must be '%s' or '%s'", f, FormatConsole, FormatJSON)
	}
	mu.Lock()
	defer mu.Unlock()
	format = f
	logger = build(out, format)
	return nil
}

// SetLevel sets the global logging level.
func SetLevel(level int) {
	currentLevel.Store(int32(level))
	Logf(Debug, "Log level set to %d", level)
}

// GetLevel returns the current logging level.
func GetLevel() int {
	return int(currentLevel.Load())
}

// Enabled reports whether messages at level would be written.
func Enabled(level int) bool {
	return level != None && int32(level) <= currentLevel.Load()
}

// ParseLevel converts a string level to an integer level.
func ParseLevel(levelStr string) (int, error) {
	switch strings.ToLower(levelStr) {
	case "none":
		return None, nil
	case "error":
		return Error, nil
	case "warn", "warning":
		return Warning, nil
	case "info":
		return Info, nil
	case "debug":
		return Debug, nil
	default:
		return Info, fmt.Errorf("invalid log level string: '%s'", levelStr)
	}
}

// SetupLogging initializes logging based on a level string.
// Returns the integer log level corresponding to the string.
func SetupLogging(levelStr string) int {
	level, err := ParseLevel(levelStr)
	if err != nil {
		Logf(Warning, "Invalid log level '%s' provided, defaulting to 'info'. %v", levelStr, err)
		level = Info
	}
	SetLevel(level)
	return level
}

// Logf logs a formatted message if the given level is high enough.
func Logf(level int, format string, v ...interface{}) {
	if !Enabled(level) {
		return
	}
	write(current(), level, fmt.Sprintf(format, v...))
}

// Logw logs a message with structured fields if the given level is high enough.
func Logw(level int, msg string, fields ...zap.Field) {
	if !Enabled(level) {
		return
	}
	write(current(), level, msg, fields...)
}

func write(l *zap.Logger, level int, msg string, fields ...zap.Field) {
	switch level {
	case Error:
		l.Error(msg, fields...)
	case Warning:
		l.Warn(msg, fields...)
	case Info:
		l.Info(msg, fields...)
	case Debug:
		l.Debug(msg, fields...)
	}
}

// Sync flushes buffered log entries.
func Sync() {
	_ = current().Sync()
}
