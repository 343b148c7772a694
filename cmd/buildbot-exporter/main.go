package main

import (
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/buildbot-exporter/cmd/buildbot-exporter/commands"
	ferrors "git.home.luguber.info/inful/buildbot-exporter/internal/foundation/errors"
	"git.home.luguber.info/inful/buildbot-exporter/internal/version"
)

func main() {
	cli := &commands.CLI{}
	vars := kong.Vars{"version": version.String()}
	for k, v := range commands.Vars() {
		vars[k] = v
	}

	parser := kong.Parse(cli,
		kong.Name("buildbot-exporter"),
		kong.Description("Expose Buildbot build lifecycle events as Prometheus metrics."),
		kong.UsageOnError(),
		vars,
	)

	global := commands.NewGlobal(os.Stdout, os.Stderr, cli.Verbose)
	if err := parser.Run(global, cli); err != nil {
		ferrors.NewCLIErrorAdapter(cli.Verbose, global.Logger).HandleError(err)
	}
}
