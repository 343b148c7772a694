package commands

import (
	"io"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/buildbot-exporter/internal/config"
	ferrors "git.home.luguber.info/inful/buildbot-exporter/internal/foundation/errors"
	"git.home.luguber.info/inful/buildbot-exporter/internal/replay"
)

// ReplayCmd implements the 'replay' command.
type ReplayCmd struct {
	File        string `arg:"" help:"JSON-lines file of recorded messages ('-' reads stdin)"`
	Prefix      string `help:"Routing key prefix to strip" default:"${prefix}"`
	OpenMetrics bool   `help:"Print the OpenMetrics text format"`
}

func (r *ReplayCmd) Run(g *Global) error {
	var in io.Reader = os.Stdin
	if r.File != "-" {
		f, err := os.Open(r.File)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryValidation, "failed to open replay file").
				WithContext("file", r.File).
				Build()
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	res, err := replay.Run(cmdContext(), in, g.Out, replay.Options{
		Prefix:      r.Prefix,
		OpenMetrics: r.OpenMetrics,
		Logger:      g.Logger,
	})
	g.Logger.Info("Replay finished",
		slog.Int("lines", res.Lines),
		slog.Int("skipped", res.Skipped),
		slog.Uint64("published", res.Published),
		slog.Uint64("ignored", res.Ignored),
		slog.Uint64("failed", res.Failed))
	return err
}

// Vars are kong interpolation variables for flag defaults.
func Vars() map[string]string {
	return map[string]string{
		"prefix": config.DefaultPrefix,
	}
}
