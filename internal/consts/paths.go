package consts

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	ClaunDirName   = ".claun"
	ConfigFileName = "config.yaml"
	LogsDirName    = "logs"
	ClaudeBinary   = "claude"
)

func ClaunHomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ClaunDirName)
}

func DefaultConfigPath() string {
	return filepath.Join(ClaunHomeDir(), ConfigFileName)
}

// DefaultLogDir is where run records are written when no log dir is configured.
func DefaultLogDir() string {
	return filepath.Join(ClaunHomeDir(), LogsDirName)
}

// ExpandHome resolves a leading "~/" against the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
