package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

type (
	Config struct {
		Logging  LoggingConfig  `yaml:"logging" json:"logging"`
		Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`
		Run      RunConfig      `yaml:"run" json:"run"`
		Control  ControlConfig  `yaml:"control" json:"control"`
	}

	LoggingConfig struct {
		Level      string `yaml:"level" json:"level"`   // debug, info, warn, error
		Format     string `yaml:"format" json:"format"` // json, text
		Output     string `yaml:"output" json:"output"` // stdout, file, both
		File       string `yaml:"file" json:"file"`
		MaxSize    int    `yaml:"max_size" json:"max_size"` // MB
		MaxBackups int    `yaml:"max_backups" json:"max_backups"`
		MaxAge     int    `yaml:"max_age" json:"max_age"` // days
	}

	ScheduleConfig struct {
		Days     DayList `yaml:"days" json:"days"`
		Hours    string  `yaml:"hours" json:"hours"` // "9-17", "22-6", empty for all day
		Interval int     `yaml:"interval" json:"interval"`
	}

	RunConfig struct {
		Command      string   `yaml:"command" json:"command"`
		SessionName  string   `yaml:"session_name" json:"session_name"`
		LogDir       string   `yaml:"log_dir" json:"log_dir"`
		LogPrefix    string   `yaml:"log_prefix" json:"log_prefix"`
		Paused       bool     `yaml:"paused" json:"paused"`
		Binary       string   `yaml:"binary" json:"binary"`
		Args         []string `yaml:"args" json:"args"`
		Workdir      string   `yaml:"workdir" json:"workdir"`
		StopGraceSec int      `yaml:"stop_grace_sec" json:"stop_grace_sec"`
	}

	ControlConfig struct {
		Enabled     bool   `yaml:"enabled" json:"enabled"`
		Bind        string `yaml:"bind" json:"bind"`
		MetricsBind string `yaml:"metrics_bind" json:"metrics_bind"`
		// AllowRemote permits non-loopback binds. The API has no auth.
		AllowRemote bool `yaml:"allow_remote" json:"allow_remote"`
	}
)

// DayList holds day tokens. In YAML it may be written as a list
// ([mon, tue]) or as one comma separated string ("weekdays").
type DayList []string

func (d *DayList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*d = splitDays(s)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*d = list
		return nil
	default:
		return fmt.Errorf("days must be a string or a list, line %d", node.Line)
	}
}

func splitDays(s string) DayList {
	var out DayList
	for _, one := range strings.Split(s, ",") {
		if one = strings.TrimSpace(one); one != "" {
			out = append(out, one)
		}
	}
	return out
}

// UpdateByName replaces one top-level section.
func (c *Config) UpdateByName(name string, value any) error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	normalizedName := strings.ToLower(strings.TrimSpace(name))
	if normalizedName == "" {
		return fmt.Errorf("name is required")
	}

	switch normalizedName {
	case "config":
		typed, ok := value.(*Config)
		if !ok || typed == nil {
			return fmt.Errorf("name 'config' requires *Config")
		}
		*c = *typed
	case "logging":
		typed, ok := value.(*LoggingConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'logging' requires *LoggingConfig")
		}
		c.Logging = *typed
	case "schedule":
		typed, ok := value.(*ScheduleConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'schedule' requires *ScheduleConfig")
		}
		c.Schedule = *typed
		c.Schedule.Days = append(DayList(nil), typed.Days...)
	case "run":
		typed, ok := value.(*RunConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'run' requires *RunConfig")
		}
		c.Run = *typed
		c.Run.Args = append([]string(nil), typed.Args...)
	case "control":
		typed, ok := value.(*ControlConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'control' requires *ControlConfig")
		}
		c.Control = *typed
	default:
		return fmt.Errorf("unsupported config name: %s", name)
	}

	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() (*Config, error) {
	if c == nil {
		return nil, fmt.Errorf("config is nil")
	}

	raw, err := sonic.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var cloned Config
	if err := sonic.Unmarshal(raw, &cloned); err != nil {
		return nil, fmt.Errorf("unmarshal config clone: %w", err)
	}

	return &cloned, nil
}

// Hash fingerprints the whole config.
func (c *Config) Hash() string {
	json := sonic.Config{SortMapKeys: true, UseNumber: true}.Froze()
	raw, _ := json.Marshal(c)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
