package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tgifai/claun/internal/control"
)

var ctlHwd = &CtlRunner{}

type CtlRunner struct{}

func (r *CtlRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "ctl",
		Usage: "Control a running claun through its control API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "control API address (default control.bind from the config)"},
			&cli.DurationFlag{Name: "timeout", Value: 5 * time.Second, Usage: "request timeout"},
		},
		Commands: []*cli.Command{
			{Name: "status", Usage: "Show the scheduler state", Action: r.status},
			{Name: "pause", Usage: "Pause scheduled runs", Action: r.command((*control.Client).Pause)},
			{Name: "resume", Usage: "Resume scheduled runs", Action: r.command((*control.Client).Resume)},
			{Name: "run", Usage: "Start a run now", Action: r.command((*control.Client).RunNow)},
		},
	}
}

func (r *CtlRunner) client(cmd *cli.Command) (*control.Client, error) {
	addr := cmd.String("addr")
	if addr == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		addr = cfg.Control.Bind
	}
	return control.NewClient(addr, cmd.Duration("timeout"))
}

func (r *CtlRunner) status(ctx context.Context, cmd *cli.Command) error {
	c, err := r.client(cmd)
	if err != nil {
		return err
	}
	st, err := c.Status(ctx)
	if err != nil {
		return err
	}
	printStatus(*st)
	return nil
}

func (r *CtlRunner) command(call func(*control.Client, context.Context) (*control.CommandResponse, error)) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		c, err := r.client(cmd)
		if err != nil {
			return err
		}
		resp, err := call(c, ctx)
		if err != nil {
			return err
		}
		if resp.Changed {
			cSuccess.Println("ok")
		} else {
			cDim.Println("no change")
		}
		if resp.Status != nil {
			printStatus(*resp.Status)
		}
		return nil
	}
}
