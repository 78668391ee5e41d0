package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/tgifai/claun/internal/config"
	"github.com/tgifai/claun/internal/consts"
	"github.com/tgifai/claun/internal/schedule"
)

var initHwd = &InitRunner{}

type InitRunner struct {
	scanner *bufio.Scanner
}

func (r *InitRunner) cmd() *cli.Command {
	flags := []cli.Flag{
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "write defaults and flags without prompting"},
		&cli.StringFlag{Name: "command", Aliases: []string{"m"}, Usage: "command text sent to claude on every run"},
		&cli.StringFlag{Name: "session", Usage: "session name"},
	}
	flags = append(flags, scheduleFlags()...)
	flags = append(flags, logDirFlags()...)

	return &cli.Command{
		Name:   "init",
		Usage:  "Write a config file",
		Flags:  flags,
		Action: r.run,
	}
}

func (r *InitRunner) run(_ context.Context, cmd *cli.Command) error {
	r.scanner = bufio.NewScanner(os.Stdin)
	interactive := !cmd.Bool("yes")

	cfgPath := consts.ExpandHome(strings.TrimSpace(cmd.String("config")))
	if cfgPath == "" {
		cfgPath = consts.DefaultConfigPath()
	}
	if _, err := os.Stat(cfgPath); err == nil {
		if !interactive {
			return fmt.Errorf("config already exists at %s", cfgPath)
		}
		cWarn.Printf("  Config already exists at %s\n", cfgPath)
		if !r.confirm("  Overwrite existing config?", false) {
			fmt.Println("  Aborted.")
			return nil
		}
		fmt.Println()
	}

	cfg, err := config.Default()
	if err != nil {
		return err
	}
	cfg.Run.Command = cmd.String("command")
	cfg.Run.SessionName = cmd.String("session")
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

	if interactive {
		cTitle.Println("═══ claun setup ═══")
		fmt.Println()
		r.stepRun(cfg)
		if err := r.stepSchedule(cfg); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	spec, err := cfg.Schedule.Spec()
	if err != nil {
		return err
	}
	cDim.Printf("  Config file:  %s\n", cfgPath)
	cDim.Printf("  Schedule:     %s\n", spec)
	cDim.Printf("  Log dir:      %s\n", cfg.Run.LogDir)
	if cfg.Run.SessionName != "" {
		cDim.Printf("  Session:      %s\n", cfg.Run.SessionName)
	}
	fmt.Println()
	if interactive && !r.confirm("  Write config?", true) {
		fmt.Println("  Aborted.")
		return nil
	}

	if err := writeConfigDirect(cfgPath, cfg); err != nil {
		cError.Printf("  ✗ Failed to write config: %v\n", err)
		return err
	}
	cSuccess.Printf("  ✓ Created %s\n", cfgPath)
	if cfg.Run.Command == "" {
		cWarn.Println("  Set run.command before starting.")
	}
	cSuccess.Println("  Run \"claun run\" to start.")
	return nil
}

func (r *InitRunner) stepRun(cfg *config.Config) {
	cfg.Run.Command = r.promptDefault("  Command text", cfg.Run.Command)
	cfg.Run.SessionName = r.promptDefault("  Session name (empty for none)", cfg.Run.SessionName)
}

func (r *InitRunner) stepSchedule(cfg *config.Config) error {
	for {
		days := r.promptDefault("  Days", strings.Join(cfg.Schedule.Days, ","))
		if _, err := schedule.ParseDays(days); err != nil {
			cError.Printf("  %v\n", err)
			continue
		}
		cfg.Schedule.Days = config.DayList{days}
		break
	}
	for {
		hours := r.promptDefault("  Hours (e.g. 9-17, all)", cfg.Schedule.Hours)
		if _, err := schedule.ParseHours(hours); err != nil {
			cError.Printf("  %v\n", err)
			continue
		}
		cfg.Schedule.Hours = hours
		break
	}
	for {
		raw := r.promptDefault("  Interval in minutes (1, 5, 15, 60)", strconv.Itoa(cfg.Schedule.Interval))
		n, err := strconv.Atoi(raw)
		if err == nil {
			cfg.Schedule.Interval = n
			if _, err = cfg.Schedule.Spec(); err == nil {
				break
			}
		}
		cError.Printf("  %v\n", err)
	}
	fmt.Println()
	return nil
}

func writeConfigDirect(path string, cfg *config.Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// Load needs an existing file; an empty document validates to defaults.
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		return err
	}
	if _, err := config.Load(path); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Apply("config", cfg); err != nil {
		return fmt.Errorf("apply config: %w", err)
	}
	return config.Save()
}

func (r *InitRunner) promptDefault(label string, defaultVal string) string {
	if defaultVal != "" {
		cPrompt.Printf("%s ", label)
		cDim.Printf("[%s]", defaultVal)
		cPrompt.Print(" > ")
	} else {
		cPrompt.Printf("%s > ", label)
	}

	if r.scanner.Scan() {
		if val := strings.TrimSpace(r.scanner.Text()); val != "" {
			return val
		}
	}
	return defaultVal
}

func (r *InitRunner) confirm(label string, defaultYes bool) bool {
	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}

	cPrompt.Printf("%s %s > ", label, hint)
	if r.scanner.Scan() {
		val := strings.ToLower(strings.TrimSpace(r.scanner.Text()))
		if val == "" {
			return defaultYes
		}
		return val == "y" || val == "yes"
	}
	return defaultYes
}
