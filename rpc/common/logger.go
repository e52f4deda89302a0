package common

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/rs/zerolog"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// kvdownLogger implements the ILogger interface on top of a zerolog logger
// tagged with the package name
type kvdownLogger struct {
	level  logger.LogLevel
	logger zerolog.Logger
}

func (l *kvdownLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *kvdownLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.logger.Debug().Msgf(format, args...)
	}
}

func (l *kvdownLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.logger.Info().Msgf(format, args...)
	}
}

func (l *kvdownLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.logger.Warn().Msgf(format, args...)
	}
}

func (l *kvdownLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.logger.Error().Msgf(format, args...)
	}
}

func (l *kvdownLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.logger.WithLevel(zerolog.PanicLevel).Msg(msg)
	panic(msg)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

var (
	rootMu     sync.Mutex
	rootLogger = zerolog.New(newConsoleWriter(os.Stdout)).With().Timestamp().Logger()
)

// newConsoleWriter renders lines as `time | LEVEL | message component=name`
func newConsoleWriter(out io.Writer) zerolog.ConsoleWriter {
	cw := zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: time.RFC3339}
	cw.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-5s |", i))
	}
	return cw
}

// SetLogOutput redirects all loggers created afterwards to out
func SetLogOutput(out io.Writer) {
	rootMu.Lock()
	defer rootMu.Unlock()
	rootLogger = zerolog.New(newConsoleWriter(out)).With().Timestamp().Logger()
}

// CreateLogger implements the logger.Factory interface
func CreateLogger(pkgName string) logger.ILogger {
	rootMu.Lock()
	defer rootMu.Unlock()
	return &kvdownLogger{
		level:  logger.INFO,
		logger: rootLogger.With().Str("component", pkgName).Logger(),
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info", "":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

var factoryOnce sync.Once

// packageLoggers are the loggers of this module, see the Logger variables of each package
var packageLoggers = []string{"down", "query", "rpc", "transport/rpc"}

// InitLoggers installs the zerolog backed factory and sets the level of all loggers
func InitLoggers(level string) error {
	logLevel, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	// Set as the global logger factory, existing loggers are rebound
	factoryOnce.Do(func() { logger.SetLoggerFactory(CreateLogger) })

	for _, name := range packageLoggers {
		logger.GetLogger(name).SetLevel(logLevel)
	}
	return nil
}
