// Package observability constructs the process-wide loggers.
//
// CLI commands log human-oriented diagnostics to stderr; stdout is reserved
// for command output (status tables, ledger dumps) so it stays pipeable.
package observability

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger used by all commands. It writes a console-encoded
// stream to stderr at Info level until Init raises or lowers it.
var CLILogger = newCLILogger(zapcore.InfoLevel)

// Init rebuilds CLILogger at the given level ("debug", "info", "warn",
// "error"). An unknown level is an error and leaves the logger unchanged.
func Init(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	CLILogger = newCLILogger(lvl)
	return nil
}

// Sync flushes buffered log entries. Called before process exit.
func Sync() {
	_ = CLILogger.Sync()
}

func newCLILogger(lvl zapcore.Level) *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		lvl,
	)
	return zap.New(core)
}
