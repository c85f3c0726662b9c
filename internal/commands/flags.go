package commands

import (
	"os"
	"path/filepath"

	"example.com/stravahub/internal/config"
)

type Flags struct {
	LogLevel    string
	EnvFile     string
	SQLitePath  string
	PostgresURL string

	// Config is loaded in the Before hook and available to all commands
	Config config.Config
}

// DefaultSQLitePath returns the default database path using XDG_DATA_HOME.
func DefaultSQLitePath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "stravahub", "activities.db")
}
