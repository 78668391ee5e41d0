package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tgifai/claun/internal/logstore"
	"github.com/tgifai/claun/internal/schedule"
)

var nextHwd = &NextRunner{}

type NextRunner struct{}

func (r *NextRunner) cmd() *cli.Command {
	flags := []cli.Flag{
		&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Value: 5, Usage: "how many upcoming runs to show"},
	}
	flags = append(flags, scheduleFlags()...)
	flags = append(flags, logDirFlags()...)

	return &cli.Command{
		Name:   "next",
		Usage:  "Show the upcoming scheduled runs",
		Flags:  flags,
		Action: r.run,
	}
}

func (r *NextRunner) run(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	spec, err := cfg.Schedule.Spec()
	if err != nil {
		return err
	}

	count := int(cmd.Int("count"))
	if count <= 0 {
		return fmt.Errorf("--count must be positive")
	}

	now := time.Now()
	cTitle.Printf("%s\n", spec)
	cDim.Printf("cron: %s\n\n", spec.CronExpr())

	for i, at := range schedule.Upcoming(spec, now, count) {
		fmt.Printf("  %2d. %s  (in %s)\n", i+1, at.Format("Mon 2006-01-02 15:04"), at.Sub(now).Round(time.Minute))
	}

	last, ok, err := logstore.LastRunAt(cfg.Run.LogDir, cfg.Run.LogPrefix)
	switch {
	case err != nil:
		cDim.Printf("\nlast run: unknown (%v)\n", err)
	case ok:
		cDim.Printf("\nlast run: %s\n", last.Format("Mon 2006-01-02 15:04:05"))
	default:
		cDim.Println("\nlast run: never")
	}
	return nil
}
