package logs

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/tgifai/claun/internal/consts"
)

// lineFormatter renders "LEVEL time dir/file.go:line logid message".
type lineFormatter struct {
	enableColor bool
}

func (f *lineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	timestamp := entry.Time.Format("2006-01-02 15:04:05,000")
	level := strings.ToUpper(entry.Level.String())
	if f.enableColor {
		level = colorizeLevel(entry.Level, level)
	}

	// Frames: logrus internals, the Logger method, the package func.
	skip := 9
	if entry.Context != nil {
		skip = 8
	}
	_, file, line, ok := runtime.Caller(skip)
	if ok {
		file = shortFilePath(file)
	}

	logID := ""
	if entry.Context != nil {
		if id, ok := entry.Context.Value(consts.CtxKeyLogID).(string); ok {
			logID = id
		}
	}

	return []byte(fmt.Sprintf("%s %s %s:%d %s %s\n",
		level, timestamp, file, line, logID, entry.Message)), nil
}

// shortFilePath returns "dir/file.go" when a parent directory exists.
func shortFilePath(fullPath string) string {
	dir, file := filepath.Split(fullPath)
	if dir == "" {
		return file
	}
	return filepath.Base(filepath.Clean(dir)) + "/" + file
}

func shouldColorize(output string) bool {
	if output == "file" {
		return false
	}
	return !color.NoColor
}

var levelColors = map[logrus.Level]*color.Color{
	logrus.DebugLevel: color.New(color.FgCyan),
	logrus.InfoLevel:  color.New(color.FgGreen),
	logrus.WarnLevel:  color.New(color.FgYellow),
	logrus.ErrorLevel: color.New(color.FgRed),
	logrus.FatalLevel: color.New(color.FgRed, color.Bold),
	logrus.PanicLevel: color.New(color.FgRed, color.Bold),
}

func colorizeLevel(level logrus.Level, text string) string {
	if c, ok := levelColors[level]; ok {
		return c.Sprint(text)
	}
	return text
}
