package configblob

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/edl-tools/tachyon-setup/pkg/setupconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConfig() *setupconfig.Config {
	return &setupconfig.Config{
		Region:         "NA",
		Version:        "1.0.4",
		Board:          "formfactor",
		Variant:        "headless",
		Country:        "USA",
		SystemPassword: "$6$salt$hash",
		WiFi:           &setupconfig.WiFi{SSID: "lab", Password: "secret"},
		ProductID:      4242,
		Timezone:       "UTC",
		PackagePath:    "/cache/tachyon.zip",
	}
}

var fixedNow = func() time.Time {
	return time.Date(2025, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
}

func TestSerialize_RoundTrip(t *testing.T) {
	cfg := sampleConfig()
	cfg.SkipCLI = true
	s := NewSerializer(setupconfig.CompatProfile, "", WithTempRoot(t.TempDir()))

	res, err := s.Serialize(cfg, "abc123")
	require.NoError(t, err)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, res.Data, data)

	n := binary.BigEndian.Uint32(data[:4])
	assert.Equal(t, int(n), len(data)-4)

	decoded, err := Decode(data)
	require.NoError(t, err)

	filtered, err := Filter(cfg)
	require.NoError(t, err)
	assert.Equal(t, filtered, decoded)
	assert.Equal(t, res.Blob, decoded)
}

func TestSerialize_FileLayout(t *testing.T) {
	root := t.TempDir()
	s := NewSerializer(setupconfig.DefaultProfile, filepath.Join(root, "missing.json"), WithTempRoot(root))

	first, err := s.Serialize(sampleConfig(), "dev42")
	require.NoError(t, err)
	second, err := s.Serialize(sampleConfig(), "dev42")
	require.NoError(t, err)

	assert.Equal(t, "dev42_misc.backup", filepath.Base(first.Path))
	assert.True(t, strings.HasPrefix(filepath.Base(first.Dir), "tachyon-config"))
	assert.NotEqual(t, first.Path, second.Path)
}

func TestSerialize_RejectsPathInDeviceID(t *testing.T) {
	s := NewSerializer(setupconfig.DefaultProfile, "", WithTempRoot(t.TempDir()))
	for _, id := range []string{"", "../evil", "a/b"} {
		_, err := s.Serialize(sampleConfig(), id)
		assert.Error(t, err, id)
	}
}

func TestSerialize_FiltersUnset(t *testing.T) {
	s := NewSerializer(setupconfig.CompatProfile, "", WithTempRoot(t.TempDir()))
	cfg := &setupconfig.Config{Region: "EU", SkipCLI: true}

	res, err := s.Serialize(cfg, "dev")
	require.NoError(t, err)

	assert.Equal(t, "EU", res.Blob["region"])
	for _, key := range []string{"version", "wifi", "productId", "esim", "variant", "silent", "loadedFromFile"} {
		assert.NotContains(t, res.Blob, key)
	}
	assert.Equal(t, false, res.Blob["skipFlashingOs"])
	assert.Equal(t, false, res.Blob["isLocalVersion"])
}

func TestSerialize_KeepsSilentFlagsOfLoadedRuns(t *testing.T) {
	s := NewSerializer(setupconfig.CompatProfile, "", WithTempRoot(t.TempDir()))
	cfg := sampleConfig()
	cfg.SkipCLI = true
	cfg.Silent = true
	cfg.LoadedFromFile = true

	res, err := s.Serialize(cfg, "dev")
	require.NoError(t, err)

	assert.Equal(t, true, res.Blob["silent"])
	assert.Equal(t, true, res.Blob["loadedFromFile"])
}

func TestSerialize_CLIConfig(t *testing.T) {
	root := t.TempDir()
	profilePath := filepath.Join(root, "particle.config.json")
	require.NoError(t, os.WriteFile(profilePath, []byte(`{"username":"me"}`), 0o600))

	tests := []struct {
		name    string
		path    string
		skipCLI bool
		want    any
	}{
		{name: "embedded", path: profilePath, want: `{"username":"me"}`},
		{name: "skipped", path: profilePath, skipCLI: true},
		{name: "missing file", path: filepath.Join(root, "none.json")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := sampleConfig()
			cfg.SkipCLI = tt.skipCLI
			s := NewSerializer(setupconfig.CompatProfile, tt.path, WithTempRoot(root))

			res, err := s.Serialize(cfg, "dev")
			require.NoError(t, err)
			if tt.want == nil {
				assert.NotContains(t, res.Blob, "cliConfig")
			} else {
				assert.Equal(t, tt.want, res.Blob["cliConfig"])
			}
		})
	}
}

func TestSerialize_InitialTimeFollowsProfile(t *testing.T) {
	root := t.TempDir()
	cfg := sampleConfig()
	cfg.SkipCLI = true

	res, err := NewSerializer(setupconfig.DefaultProfile, "", WithTempRoot(root), WithClock(fixedNow)).Serialize(cfg, "dev")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-04T05:06:07.008Z", res.Blob["initialTime"])

	res, err = NewSerializer(setupconfig.CompatProfile, "", WithTempRoot(root), WithClock(fixedNow)).Serialize(cfg, "dev")
	require.NoError(t, err)
	assert.NotContains(t, res.Blob, "initialTime")
}

func TestEncode_IndentedPayload(t *testing.T) {
	data, err := Encode(Blob{"region": "NA"})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"region\": \"NA\"\n}", string(data[4:]))
	assert.Equal(t, []byte{0, 0, 0, byte(len(data) - 4)}, data[:4])
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte{0, 0})
	assert.Error(t, err)

	_, err = Decode([]byte{0, 0, 0, 10, '{', '}'})
	assert.ErrorContains(t, err, "truncated")

	blob, err := Decode(append([]byte{0, 0, 0, 2, '{', '}'}, 0, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, blob)
}

func TestSave_Whitelist(t *testing.T) {
	cfg := sampleConfig()
	cfg.IsLocalVersion = true
	cfg.APIServer = "https://api.staging.particle.io"
	cfg.Server = "https://edge.staging.particle.io"
	cfg.Verbose = true
	blob, err := Filter(cfg)
	require.NoError(t, err)

	tests := []struct {
		profile setupconfig.Profile
		present []string
		absent  []string
	}{
		{
			profile: setupconfig.DefaultProfile,
			present: []string{"region", "version", "variant", "skipCli", "systemPassword", "productId", "timezone", "wifi", "country"},
			absent:  []string{"board", "isLocalVersion", "apiServer", "server", "verbose", "packagePath"},
		},
		{
			profile: setupconfig.CompatProfile,
			present: []string{"region", "board", "wifi"},
			absent:  []string{"country", "isLocalVersion", "apiServer", "server", "verbose"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.profile.Name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "saved", "config.json")
			require.NoError(t, Save(path, blob, tt.profile))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			var saved map[string]any
			require.NoError(t, json.Unmarshal(data, &saved))

			for _, k := range tt.present {
				assert.Contains(t, saved, k)
			}
			for _, k := range tt.absent {
				assert.NotContains(t, saved, k)
			}
		})
	}
}

func TestSave_ReloadsAsSilentConfig(t *testing.T) {
	blob, err := Filter(sampleConfig())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, Save(path, blob, setupconfig.DefaultProfile))

	file, err := setupconfig.LoadFile(path)
	require.NoError(t, err)
	cfg, err := setupconfig.NewResolver(setupconfig.DefaultProfile).Resolve(
		setupconfig.Defaults("UTC"), setupconfig.Values{"board": "formfactor"}, file, setupconfig.Overrides{})
	require.NoError(t, err)

	assert.True(t, cfg.Silent)
	assert.Equal(t, 4242, cfg.ProductID)
	assert.Equal(t, "lab", cfg.WiFi.SSID)
}

func TestRemoveRunDir(t *testing.T) {
	root := t.TempDir()
	cfg := sampleConfig()
	cfg.SkipCLI = true
	res, err := NewSerializer(setupconfig.DefaultProfile, "", WithTempRoot(root)).Serialize(cfg, "dev1")
	require.NoError(t, err)

	stray := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(stray, []byte("keep"), 0o600))

	removed, err := RemoveRunDir(stray)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.FileExists(t, stray)

	removed, err = RemoveRunDir(res.Path)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoDirExists(t, res.Dir)
}
