package setupconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/edl-tools/tachyon-setup/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func writeJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func silentFile() map[string]any {
	return map[string]any{
		"region":         "EU",
		"version":        "1.0.4",
		"variant":        "headless",
		"systemPassword": "$6$salt$hash",
		"productId":      4242,
		"timezone":       "Europe/Berlin",
		"board":          "rb3g2",
		"wifi":           map[string]any{"ssid": "lab", "password": "secret"},
	}
}

func TestResolve_DeviceHintsOverDefaults(t *testing.T) {
	r := NewResolver(DefaultProfile)

	cfg, err := r.Resolve(
		Values{"region": "NA", "version": "stable"},
		Values{"region": "EU", "board": "formfactor_dvt"},
		nil,
		Overrides{},
	)
	require.NoError(t, err)

	assert.Equal(t, "EU", cfg.Region)
	assert.Equal(t, "stable", cfg.Version)
	assert.Equal(t, "formfactor_dvt", cfg.Board)
	assert.False(t, cfg.Silent)
	assert.False(t, cfg.IsLocalVersion)
}

func TestResolve_Precedence(t *testing.T) {
	r := NewResolver(DefaultProfile)
	defaults := Defaults("UTC")
	hints := Values{"region": "EU", "board": "formfactor_dvt"}

	tests := []struct {
		name       string
		file       map[string]any
		overrides  Overrides
		wantRegion string
		wantTZ     string
	}{
		{
			name:       "device beats defaults",
			wantRegion: "EU",
			wantTZ:     "UTC",
		},
		{
			name:       "file beats device",
			file:       silentFile(),
			wantRegion: "EU",
			wantTZ:     "Europe/Berlin",
		},
		{
			name:       "override beats file",
			file:       silentFile(),
			overrides:  Overrides{Region: ptr("RoW"), Timezone: ptr("Asia/Tokyo")},
			wantRegion: "RoW",
			wantTZ:     "Asia/Tokyo",
		},
		{
			name:       "undefined override keeps lower value",
			file:       silentFile(),
			overrides:  Overrides{Variant: ptr("desktop")},
			wantRegion: "EU",
			wantTZ:     "Europe/Berlin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var file Values
			if tt.file != nil {
				var err error
				file, err = LoadFile(writeJSON(t, tt.file))
				require.NoError(t, err)
			}

			cfg, err := r.Resolve(defaults, hints, file, tt.overrides)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRegion, cfg.Region)
			assert.Equal(t, tt.wantTZ, cfg.Timezone)
			if tt.overrides.Variant != nil {
				assert.Equal(t, *tt.overrides.Variant, cfg.Variant)
			}
		})
	}
}

func TestResolve_FileBoardIgnored(t *testing.T) {
	file, err := LoadFile(writeJSON(t, silentFile()))
	require.NoError(t, err)
	assert.NotContains(t, file, "board")

	cfg, err := NewResolver(DefaultProfile).Resolve(Defaults("UTC"), Values{"board": "formfactor_dvt"}, file, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "formfactor_dvt", cfg.Board)
	assert.True(t, cfg.Silent)
	assert.True(t, cfg.LoadedFromFile)
	require.NotNil(t, cfg.WiFi)
	assert.Equal(t, "lab", cfg.WiFi.SSID)
	assert.Equal(t, 4242, cfg.ProductID)
}

func TestResolve_FileWithESIM(t *testing.T) {
	values := silentFile()
	values["esim"] = map[string]any{"profiles": []any{"twilio", "kore"}, "iccid": "8901"}
	file, err := LoadFile(writeJSON(t, values))
	require.NoError(t, err)

	cfg, err := NewResolver(DefaultProfile).Resolve(Defaults("UTC"), Values{"board": "formfactor"}, file, Overrides{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"profiles":["twilio","kore"],"iccid":"8901"}`, string(cfg.ESIM))
}

func TestResolve_BoardOverrideStillApplies(t *testing.T) {
	file, err := LoadFile(writeJSON(t, silentFile()))
	require.NoError(t, err)

	cfg, err := NewResolver(DefaultProfile).Resolve(Defaults("UTC"), nil, file, Overrides{Board: ptr("rb3g2")})
	require.NoError(t, err)
	assert.Equal(t, "rb3g2", cfg.Board)
	assert.Equal(t, RGBBoard, cfg.BoardKind())
}

func TestResolve_SilentMissingFields(t *testing.T) {
	for _, field := range RequiredFields {
		t.Run(field, func(t *testing.T) {
			raw := silentFile()
			delete(raw, field)
			file, err := LoadFile(writeJSON(t, raw))
			require.NoError(t, err)

			// Defaults fill region, version and timezone, so empty them to
			// exercise every field.
			defaults := Values{}
			_, err = NewResolver(DefaultProfile).Resolve(defaults, nil, file, Overrides{})
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindConfigValidation))
			assert.Contains(t, err.Error(), field)
		})
	}
}

func TestResolve_SilentEnumeratesAllMissing(t *testing.T) {
	file, err := LoadFile(writeJSON(t, map[string]any{"variant": "headless"}))
	require.NoError(t, err)

	_, err = NewResolver(DefaultProfile).Resolve(Defaults("UTC"), nil, file, Overrides{})
	require.Error(t, err)
	assert.Equal(t, "The configuration file is missing required fields: systemPassword, productId", err.Error())
}

func TestResolve_SilentRequiresBoardAndVariant(t *testing.T) {
	raw := silentFile()
	delete(raw, "variant")
	file, err := LoadFile(writeJSON(t, raw))
	require.NoError(t, err)

	_, err = NewResolver(DefaultProfile).Resolve(Defaults("UTC"), nil, file, Overrides{})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfigValidation))
	assert.Contains(t, err.Error(), "Board and variant are required")
}

func TestResolve_SilentLocalVersionNeedsNoVariant(t *testing.T) {
	image := filepath.Join(t.TempDir(), "image.zip")
	require.NoError(t, os.WriteFile(image, []byte("zip"), 0o600))

	raw := silentFile()
	delete(raw, "variant")
	raw["version"] = image
	file, err := LoadFile(writeJSON(t, raw))
	require.NoError(t, err)

	cfg, err := NewResolver(DefaultProfile).Resolve(Defaults("UTC"), nil, file, Overrides{})
	require.NoError(t, err)
	assert.True(t, cfg.IsLocalVersion)
	assert.Equal(t, image, cfg.Version)
}

func TestResolve_CompatIgnoresDeviceHints(t *testing.T) {
	cfg, err := NewResolver(CompatProfile).Resolve(
		Values{"region": "NA", "version": "stable"},
		Values{"region": "EU", "board": "formfactor_dvt"},
		nil,
		Overrides{},
	)
	require.NoError(t, err)
	assert.Equal(t, "NA", cfg.Region)
	assert.Empty(t, cfg.Board)
}

func TestResolve_MissingLocalVersion(t *testing.T) {
	_, err := NewResolver(DefaultProfile).Resolve(Defaults("UTC"), nil, nil, Overrides{Version: ptr("./does-not-exist.zip")})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindVersionResolution))
	assert.Contains(t, err.Error(), "does not exist")
}

func TestLoadFile_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{region: NA"), 0o600))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfigValidation))
	assert.Contains(t, err.Error(), "not a valid JSON file")
}

func TestHintsFromDevice(t *testing.T) {
	tests := []struct {
		region, osVersion string
		want              Values
	}{
		{"EU", "Ubuntu 20.04", Values{"region": "EU", "board": "formfactor_dvt"}},
		{"Unknown", "Ubuntu 24.04", Values{"region": "NA", "board": "formfactor"}},
		{"", "Ubuntu 24.04 EVT", Values{"region": "NA", "board": "formfactor"}},
		{"RoW", "Ubuntu 24.04", Values{"region": "RoW", "board": "formfactor"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HintsFromDevice(tt.region, tt.osVersion))
	}
}

func TestOverridesValues(t *testing.T) {
	assert.Empty(t, Overrides{}.Values())

	v := Overrides{SkipCLI: ptr(false), Board: ptr("formfactor")}.Values()
	assert.Equal(t, Values{"skipCli": false, "board": "formfactor"}, v)
}
