package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/tgifai/claun/internal/config"
	"github.com/tgifai/claun/internal/pkg/logs"
)

var (
	cTitle   = color.New(color.FgCyan, color.Bold)
	cWarn    = color.New(color.FgYellow)
	cSuccess = color.New(color.FgGreen)
	cError   = color.New(color.FgRed)
	cPrompt  = color.New(color.FgWhite, color.Bold)
	cDim     = color.New(color.FgHiBlack)
)

// scheduleFlags are shared by every command that needs a schedule.
func scheduleFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "days", Usage: `eligible days, e.g. "weekdays", "mon-fri", "sat,sun"`},
		&cli.StringFlag{Name: "hours", Usage: `hour window, e.g. "9-17" or "22-6"; "all" for the whole day`},
		&cli.IntFlag{Name: "interval", Usage: "minutes between runs: 1, 5, 15 or 60"},
	}
}

func logDirFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "log-dir", Usage: "directory holding run records"},
		&cli.StringFlag{Name: "prefix", Usage: "log id prefix of the record names"},
	}
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist, and applies the command line overrides.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config error: %w", err)
	}

	if cmd.IsSet("days") {
		cfg.Schedule.Days = config.DayList{cmd.String("days")}
	}
	if cmd.IsSet("hours") {
		cfg.Schedule.Hours = cmd.String("hours")
	}
	if cmd.IsSet("interval") {
		cfg.Schedule.Interval = int(cmd.Int("interval"))
	}
	if cmd.IsSet("log-dir") {
		cfg.Run.LogDir = cmd.String("log-dir")
	}
	if cmd.IsSet("prefix") {
		cfg.Run.LogPrefix = cmd.String("prefix")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, nil
}

func initLogger(cfg config.LoggingConfig) error {
	return logs.Init(logs.Options{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		File:       cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
	})
}

func formatDirective(d string) string {
	if strings.TrimSpace(d) == "" {
		return "-"
	}
	return d
}
