package configblob

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/edl-tools/tachyon-setup/pkg/errors"
	"github.com/edl-tools/tachyon-setup/pkg/setupconfig"
)

var baseWhitelist = []string{
	"region", "version", "variant", "skipCli", "systemPassword",
	"productId", "timezone", "wifi",
}

// SaveWhitelist returns the fields written by Save under profile.
func SaveWhitelist(profile setupconfig.Profile) []string {
	fields := append([]string(nil), baseWhitelist...)
	if profile.SaveBoard {
		fields = append(fields, "board")
	}
	if profile.SaveCountry {
		fields = append(fields, "country")
	}
	return fields
}

// Save writes the whitelisted subset of blob to path as JSON, suitable as a
// configuration file for a later silent run.
func Save(path string, blob Blob, profile setupconfig.Profile) error {
	out := make(map[string]any)
	for _, field := range SaveWhitelist(profile) {
		if v, ok := blob[field]; ok {
			out[field] = v
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode saved configuration")
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "failed to create configuration directory")
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to write configuration file")
	}

	slog.Info("config_saved", "path", path, "fields", len(out))
	return nil
}
