// Package commands implements the buildbot-exporter subcommands.
package commands

import (
	"context"
	"io"
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/buildbot-exporter/internal/config"
	"git.home.luguber.info/inful/buildbot-exporter/internal/observability"
)

// Global carries process-wide state into every command.
type Global struct {
	Logger *slog.Logger
	// Level backs Logger and can be changed while running.
	Level *slog.LevelVar
	// Out receives command output (stdout in production).
	Out io.Writer
	// Err receives log output (stderr in production).
	Err io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"buildbot-exporter.yaml" env:"BUILDBOT_EXPORTER_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Serve     ServeCmd     `cmd:"" default:"withargs" help:"Run the exporter (default)"`
	Replay    ReplayCmd    `cmd:"" help:"Feed recorded messages through the pipeline and print the exposition"`
	Anomalies AnomaliesCmd `cmd:"" help:"List journaled lifecycle anomalies"`
	Init      InitCmd      `cmd:"" help:"Write an example configuration file"`
	Show      VersionCmd   `cmd:"" name:"version" help:"Print version and build information"`
}

// NewGlobal builds the process logger. Verbose forces debug level.
func NewGlobal(out, errOut io.Writer, verbose bool) *Global {
	level := new(slog.LevelVar)
	if verbose {
		level.Set(slog.LevelDebug)
	}
	g := &Global{Level: level, Out: out, Err: errOut}
	g.Logger = observability.NewLogger(errOut, string(config.LogFormatText), level)
	slog.SetDefault(g.Logger)
	return g
}

// ApplyLogging switches the logger to the configured format and, unless
// verbose logging was requested, the configured level.
func (g *Global) ApplyLogging(cfg config.LoggingConfig, verbose bool) {
	if !verbose {
		g.Level.Set(observability.ParseLevel(string(cfg.Level)))
	}
	g.Logger = observability.NewLogger(g.Err, string(cfg.Format), g.Level)
	slog.SetDefault(g.Logger)
}

// cmdContext is the context for short-lived commands.
func cmdContext() context.Context { return context.Background() }
