package logs

import (
	"strings"

	"github.com/sirupsen/logrus"
)

var levelNames = map[string]LogLevel{
	"debug":   DebugLevel,
	"info":    InfoLevel,
	"warn":    WarnLevel,
	"warning": WarnLevel,
	"error":   ErrorLevel,
	"fatal":   FatalLevel,
}

var logrusLevels = [...]logrus.Level{
	DebugLevel: logrus.DebugLevel,
	InfoLevel:  logrus.InfoLevel,
	WarnLevel:  logrus.WarnLevel,
	ErrorLevel: logrus.ErrorLevel,
	FatalLevel: logrus.FatalLevel,
}

// ParseLevel maps a config string to a LogLevel. Unknown names mean info.
func ParseLevel(level string) LogLevel {
	if l, ok := levelNames[strings.ToLower(strings.TrimSpace(level))]; ok {
		return l
	}
	return InfoLevel
}

func toLogrusLevel(level LogLevel) logrus.Level {
	if level < DebugLevel || int(level) >= len(logrusLevels) {
		return logrus.InfoLevel
	}
	return logrusLevels[level]
}

func fromLogrusLevel(level logrus.Level) LogLevel {
	switch {
	case level >= logrus.DebugLevel:
		return DebugLevel
	case level == logrus.InfoLevel:
		return InfoLevel
	case level == logrus.WarnLevel:
		return WarnLevel
	case level == logrus.ErrorLevel:
		return ErrorLevel
	default:
		return FatalLevel
	}
}
