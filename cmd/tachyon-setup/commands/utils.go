package commands

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/edl-tools/tachyon-setup/internal/config"
	"github.com/edl-tools/tachyon-setup/pkg/db"
	"github.com/edl-tools/tachyon-setup/pkg/errors"
)

// ensureDirectories creates all necessary directories for the application
func ensureDirectories(sqlitePath, fsmDBPath string, dirs ...string) error {
	// Create database directory
	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
		return errors.Wrap(err, "failed to create database directory")
	}

	// Create FSM journal directory (only needed for setup)
	if fsmDBPath != "" {
		if err := os.MkdirAll(fsmDBPath, 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM directory")
		}
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "failed to create "+dir)
		}
	}

	return nil
}

// loadConfig loads and validates the application settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config invalid")
	}
	return cfg, nil
}

// openRepository opens the run history, creating its directory.
func openRepository(cfg *config.Config) (*db.Repository, error) {
	if err := ensureDirectories(cfg.SQLitePath, ""); err != nil {
		return nil, err
	}
	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return nil, errors.Wrap(err, "db init failed")
	}
	return repo, nil
}

const zoneinfoDir = "zoneinfo/"

// localTimezone returns the IANA name of the host timezone, UTC when it
// cannot be determined.
func localTimezone() string {
	if tz := strings.TrimPrefix(os.Getenv("TZ"), ":"); tz != "" {
		return tz
	}
	if target, err := os.Readlink("/etc/localtime"); err == nil {
		return zoneFromPath(target)
	}
	if data, err := os.ReadFile("/etc/timezone"); err == nil {
		if tz := strings.TrimSpace(string(data)); tz != "" {
			return tz
		}
	}
	return "UTC"
}

func zoneFromPath(path string) string {
	if i := strings.LastIndex(path, zoneinfoDir); i >= 0 {
		return path[i+len(zoneinfoDir):]
	}
	return "UTC"
}
