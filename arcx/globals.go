package internal

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// DefaultAppName is used for config lookup and log tagging
	DefaultAppName          = "arcx"
	DefaultConfigPath       = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultGlobalConfigFile = filepath.Join(DefaultConfigPath, "config.yaml")

	// ModuleName tags every user-visible message and artifact produced by the extractor
	ModuleName = "Archive Extractor"

	// Default case layout, relative to the case directory
	DefaultCaseDir         = "."
	DefaultModuleOutputDir = filepath.Join("ModuleOutput", "ArchiveExtractor")

	// Default Database settings
	DefaultDatabaseDSN  = "file:arcx-case.db"
	DefaultDatabaseType = "libsql"
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// GetLogger returns a properly configured zerolog logger instance
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Str("app", DefaultAppName).Logger()
}

// ParseLevel maps a config level string onto a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
