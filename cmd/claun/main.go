package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/tgifai/claun"
	"github.com/tgifai/claun/internal/pkg/logs"
)

func main() {
	cmd := &cli.Command{
		Name:    "claun",
		Usage:   "Run claude on a schedule",
		Version: claun.VERSION,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the config file (default ~/.claun/config.yaml)",
				Sources: cli.EnvVars("CLAUN_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			runHwd.cmd(),
			nextHwd.cmd(),
			logsHwd.cmd(),
			initHwd.cmd(),
			ctlHwd.cmd(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logs.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}
