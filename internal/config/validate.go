package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/bytedance/gg/gslice"

	"github.com/tgifai/claun/internal/consts"
	"github.com/tgifai/claun/internal/logstore"
	"github.com/tgifai/claun/internal/pkg/utils"
	"github.com/tgifai/claun/internal/schedule"
)

const (
	defaultInterval     = 60
	defaultStopGraceSec = 30
	defaultControlBind  = "127.0.0.1:7733"
	defaultMetricsBind  = "127.0.0.1:9464"
)

var (
	logLevels  = []string{"debug", "info", "warn", "warning", "error", "fatal"}
	logFormats = []string{"text", "json"}
	logOutputs = []string{"stdout", "file", "both"}
)

// Validate fills defaults and rejects values the scheduler cannot start
// with. It is called on every load and before every apply.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config cannot be nil")
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Schedule.Validate(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if err := c.Run.Validate(); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if err := c.Control.Validate(); err != nil {
		return fmt.Errorf("control: %w", err)
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	l.Level = strings.ToLower(strings.TrimSpace(l.Level))
	if l.Level == "" {
		l.Level = "info"
	}
	if !gslice.Contains(logLevels, l.Level) {
		return fmt.Errorf("unsupported level %q", l.Level)
	}
	l.Format = strings.ToLower(strings.TrimSpace(l.Format))
	if l.Format == "" {
		l.Format = "text"
	}
	if !gslice.Contains(logFormats, l.Format) {
		return fmt.Errorf("unsupported format %q", l.Format)
	}
	l.Output = strings.ToLower(strings.TrimSpace(l.Output))
	if l.Output == "" {
		l.Output = "stdout"
	}
	if !gslice.Contains(logOutputs, l.Output) {
		return fmt.Errorf("unsupported output %q", l.Output)
	}
	l.File = consts.ExpandHome(strings.TrimSpace(l.File))
	return nil
}

func (s *ScheduleConfig) Validate() error {
	if len(s.Days) == 0 {
		s.Days = DayList{"daily"}
	}
	s.Hours = strings.TrimSpace(s.Hours)
	if s.Interval == 0 {
		s.Interval = defaultInterval
	}
	_, err := s.Spec()
	return err
}

// Spec builds the schedule the runner is started with.
func (s ScheduleConfig) Spec() (schedule.Spec, error) {
	days, err := schedule.ParseDayList(s.Days)
	if err != nil {
		return schedule.Spec{}, err
	}
	hours, err := schedule.ParseHours(s.Hours)
	if err != nil {
		return schedule.Spec{}, err
	}
	return schedule.New(days, hours, s.Interval)
}

func (r *RunConfig) Validate() error {
	r.Command = strings.TrimSpace(r.Command)
	r.SessionName = strings.TrimSpace(r.SessionName)
	if strings.ContainsAny(r.SessionName, "\r\n") {
		return errors.New("session_name cannot contain line breaks")
	}

	r.LogDir = consts.ExpandHome(strings.TrimSpace(r.LogDir))
	if r.LogDir == "" {
		r.LogDir = consts.DefaultLogDir()
	}
	r.LogPrefix = strings.TrimSpace(r.LogPrefix)
	if err := logstore.ValidatePrefix(r.LogPrefix); err != nil {
		return err
	}

	r.Binary = strings.TrimSpace(r.Binary)
	if r.Binary == "" {
		r.Binary = consts.ClaudeBinary
	}
	if r.Args == nil {
		r.Args = []string{"--print"}
	}
	r.Workdir = consts.ExpandHome(strings.TrimSpace(r.Workdir))

	if r.StopGraceSec < 0 {
		return fmt.Errorf("stop_grace_sec cannot be negative: %d", r.StopGraceSec)
	}
	if r.StopGraceSec == 0 {
		r.StopGraceSec = defaultStopGraceSec
	}
	return nil
}

func (r RunConfig) StopGrace() time.Duration {
	return time.Duration(r.StopGraceSec) * time.Second
}

func (c *ControlConfig) Validate() error {
	c.Bind = strings.TrimSpace(c.Bind)
	if c.Bind == "" {
		c.Bind = defaultControlBind
	}
	if _, _, err := net.SplitHostPort(c.Bind); err != nil {
		return fmt.Errorf("invalid bind %q: %w", c.Bind, err)
	}
	if c.Enabled && !c.AllowRemote && !utils.IsLoopbackBind(c.Bind) {
		return fmt.Errorf("bind %q is not a loopback address; set allow_remote to expose the API", c.Bind)
	}
	c.MetricsBind = strings.TrimSpace(c.MetricsBind)
	if c.MetricsBind == "" {
		c.MetricsBind = defaultMetricsBind
	}
	if c.MetricsBind != "off" {
		if _, _, err := net.SplitHostPort(c.MetricsBind); err != nil {
			return fmt.Errorf("invalid metrics_bind %q: %w", c.MetricsBind, err)
		}
	}
	return nil
}
