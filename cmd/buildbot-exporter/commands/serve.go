package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/buildbot-exporter/internal/config"
	"git.home.luguber.info/inful/buildbot-exporter/internal/daemon"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	RequireConfig   bool          `help:"Fail when the configuration file does not exist"`
	ShutdownTimeout time.Duration `help:"Time allowed for draining in-flight events on shutdown" default:"30s"`
}

func (s *ServeCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config, s.RequireConfig)
	if err != nil {
		return err
	}
	g.ApplyLogging(cfg.Logging, root.Verbose)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return RunServe(ctx, g, cfg, watchedPath(root.Config), s.ShutdownTimeout)
}

// RunServe runs the daemon until ctx is done.
func RunServe(ctx context.Context, g *Global, cfg *config.Config, configPath string, shutdownTimeout time.Duration) error {
	d, err := daemon.New(cfg, daemon.Options{
		ConfigPath: configPath,
		Logger:     g.Logger,
		LevelVar:   g.Level,
	})
	if err != nil {
		return err
	}

	g.Logger.Info("Waiting for shutdown signal")
	if err := d.Run(ctx, shutdownTimeout); err != nil {
		return err
	}
	g.Logger.Info("Exporter stopped successfully")
	return nil
}

// watchedPath returns path when it names an existing file, else "".
func watchedPath(path string) string {
	if path == "" {
		return ""
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return ""
	}
	return path
}
