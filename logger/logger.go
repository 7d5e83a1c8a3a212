// Package logger holds the process-wide zap logger and the field names
// dealflow components log with.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is a no-op until Initialize runs, so packages can log from init
	// and tests without setup.
	Logger = zap.NewNop().Sugar()
	// JSONOutput records which encoder Initialize picked
	JSONOutput bool
)

// Initialize replaces Logger. jsonOutput selects production JSON on stdout;
// otherwise a compact console format goes to stderr so it never mixes with
// command output. verbosity is the CLI -v count.
func Initialize(jsonOutput bool, verbosity int) error {
	level := zap.NewAtomicLevelAt(VerbosityToLevel(verbosity))

	var (
		base *zap.Logger
		err  error
	)
	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = level
		cfg.InitialFields = map[string]interface{}{"service": "dealflow"}
		base, err = cfg.Build()
		if err != nil {
			return err
		}
	} else {
		base = zap.New(zapcore.NewCore(consoleEncoder(), zapcore.Lock(os.Stderr), level))
	}

	JSONOutput = jsonOutput
	Logger = base.Sugar()
	return nil
}

// consoleEncoder prints time, level, logger name, message and fields.
func consoleEncoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.CallerKey = ""
	cfg.StacktraceKey = ""
	return zapcore.NewConsoleEncoder(cfg)
}

// Cleanup flushes buffered entries. Sync errors on terminals are expected and
// ignored.
func Cleanup() {
	_ = Logger.Sync()
}

// Infow logs on the global logger.
func Infow(msg string, keysAndValues ...interface{}) { Logger.Infow(msg, keysAndValues...) }

// Warnw logs on the global logger.
func Warnw(msg string, keysAndValues ...interface{}) { Logger.Warnw(msg, keysAndValues...) }

// Errorw logs on the global logger.
func Errorw(msg string, keysAndValues ...interface{}) { Logger.Errorw(msg, keysAndValues...) }

// Debugw logs on the global logger.
func Debugw(msg string, keysAndValues ...interface{}) { Logger.Debugw(msg, keysAndValues...) }
