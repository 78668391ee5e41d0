package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/gg/gslice"
	"github.com/bytedance/sonic"
	"github.com/urfave/cli/v3"

	"github.com/tgifai/claun/internal/logstore"
)

var logsHwd = &LogsRunner{}

type LogsRunner struct{}

func (r *LogsRunner) cmd() *cli.Command {
	flags := []cli.Flag{
		&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "maximum records to list, 0 for all"},
		&cli.BoolFlag{Name: "json", Usage: "print records as JSON"},
		&cli.BoolFlag{Name: "all-prefixes", Usage: "list records of every prefix"},
	}
	flags = append(flags, logDirFlags()...)

	return &cli.Command{
		Name:   "logs",
		Usage:  "List run history, newest first",
		Flags:  flags,
		Action: r.run,
	}
}

type logEntry struct {
	Time   time.Time `json:"time"`
	Kind   string    `json:"kind"`
	Prefix string    `json:"prefix,omitempty"`
	Path   string    `json:"path"`
}

func (r *LogsRunner) run(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	recs, err := logstore.List(cfg.Run.LogDir, 0)
	if err != nil {
		return fmt.Errorf("list %s: %w", cfg.Run.LogDir, err)
	}
	if !cmd.Bool("all-prefixes") {
		prefix := cfg.Run.LogPrefix
		recs = gslice.Filter(recs, func(rec logstore.Record) bool { return rec.Prefix == prefix })
	}
	if limit := int(cmd.Int("limit")); limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}

	if cmd.Bool("json") {
		entries := gslice.Map(recs, func(rec logstore.Record) logEntry {
			return logEntry{Time: rec.Timestamp, Kind: kindLabel(rec.Kind), Prefix: rec.Prefix, Path: rec.Path}
		})
		raw, err := sonic.ConfigStd.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("encode records: %w", err)
		}
		_, err = fmt.Fprintln(os.Stdout, string(raw))
		return err
	}

	if len(recs) == 0 {
		cDim.Printf("no records in %s\n", cfg.Run.LogDir)
		return nil
	}
	for _, rec := range recs {
		c := cSuccess
		if rec.Kind == logstore.KindPausedSkip {
			c = cWarn
		}
		fmt.Printf("%s  ", rec.Timestamp.Format("2006-01-02 15:04:05"))
		c.Printf("%-11s", kindLabel(rec.Kind))
		fmt.Printf("  %s\n", rec.Name)
	}
	return nil
}

func kindLabel(k logstore.Kind) string {
	if k == logstore.KindUnknown {
		return "unknown"
	}
	return string(k)
}
