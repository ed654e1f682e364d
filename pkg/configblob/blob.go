// Package configblob renders a resolved configuration into the length-prefixed
// container written to the device's misc partition, and saves the reusable
// subset of it for later silent runs.
package configblob

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edl-tools/tachyon-setup/pkg/errors"
	"github.com/edl-tools/tachyon-setup/pkg/setupconfig"
)

const (
	prefixSize = 4
	tempPrefix = "tachyon-config"
	fileSuffix = "_misc.backup"

	// isoMillis matches the timestamp layout the device expects for initialTime.
	isoMillis = "2006-01-02T15:04:05.000Z07:00"
)

// Blob is the decoded content of a config blob.
type Blob map[string]any

// Result describes a serialized blob on disk.
type Result struct {
	Dir  string
	Path string
	Blob Blob
	Data []byte
}

// Serializer builds config blobs.
type Serializer struct {
	profile   setupconfig.Profile
	cliConfig string
	tempRoot  string
	now       func() time.Time
}

// Option configures a Serializer.
type Option func(*Serializer)

// WithTempRoot creates run directories under root instead of os.TempDir.
func WithTempRoot(root string) Option {
	return func(s *Serializer) { s.tempRoot = root }
}

// WithClock replaces the clock used for initialTime.
func WithClock(now func() time.Time) Option {
	return func(s *Serializer) { s.now = now }
}

// NewSerializer creates a serializer. cliConfigPath is the profile file whose
// raw text is embedded as cliConfig; it may not exist.
func NewSerializer(profile setupconfig.Profile, cliConfigPath string, opts ...Option) *Serializer {
	s := &Serializer{
		profile:   profile,
		cliConfig: cliConfigPath,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serialize writes the blob for cfg into a fresh temporary directory as
// <deviceID>_misc.backup.
func (s *Serializer) Serialize(cfg *setupconfig.Config, deviceID string) (*Result, error) {
	if deviceID == "" || filepath.Base(deviceID) != deviceID || strings.ContainsAny(deviceID, `/\`) {
		return nil, fmt.Errorf("invalid device id %q", deviceID)
	}

	blob, err := Filter(cfg)
	if err != nil {
		return nil, err
	}

	if !cfg.SkipCLI {
		raw, err := os.ReadFile(s.cliConfig)
		switch {
		case err == nil:
			blob["cliConfig"] = string(raw)
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("cli_config_absent", "path", s.cliConfig)
		default:
			return nil, errors.Wrap(err, "failed to read CLI profile")
		}
	}

	if s.profile.InjectInitialTime {
		blob["initialTime"] = s.now().UTC().Format(isoMillis)
	}

	data, err := Encode(blob)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(s.tempRoot, tempPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create blob directory")
	}
	path := filepath.Join(dir, deviceID+fileSuffix)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		os.RemoveAll(dir)
		return nil, errors.Wrap(err, "failed to write config blob")
	}

	slog.Info("config_blob_written",
		"device_id", deviceID,
		"path", path,
		"bytes", len(data),
		"profile", s.profile.Name)

	return &Result{Dir: dir, Path: path, Blob: blob, Data: data}, nil
}

// Filter converts cfg into a generic object without unset fields. Empty
// strings and zero product IDs are unset; booleans other than silent and
// loadedFromFile are always kept.
func Filter(cfg *setupconfig.Config) (Blob, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode configuration")
	}
	var blob Blob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}
	for k, v := range blob {
		if v == nil {
			delete(blob, k)
		}
	}
	return blob, nil
}

// Encode renders blob as a big-endian uint32 length followed by indented JSON.
func Encode(blob Blob) ([]byte, error) {
	payload, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode config blob")
	}
	out := make([]byte, prefixSize+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	copy(out[prefixSize:], payload)
	return out, nil
}

// Decode parses a blob produced by Encode. Trailing bytes past the declared
// length are ignored, as they are when the partition is read back whole.
func Decode(data []byte) (Blob, error) {
	if len(data) < prefixSize {
		return nil, fmt.Errorf("config blob too short: %d bytes", len(data))
	}
	n := binary.BigEndian.Uint32(data)
	if uint64(n) > uint64(len(data)-prefixSize) {
		return nil, fmt.Errorf("config blob truncated: header says %d bytes, have %d", n, len(data)-prefixSize)
	}
	var blob Blob
	if err := json.Unmarshal(data[prefixSize:prefixSize+int(n)], &blob); err != nil {
		return nil, errors.Wrap(err, "failed to parse config blob")
	}
	return blob, nil
}

// RemoveRunDir deletes the temporary directory holding the blob at path. Paths
// that were not produced by Serialize are left alone and reported as false.
func RemoveRunDir(path string) (bool, error) {
	dir := filepath.Dir(path)
	if !strings.HasPrefix(filepath.Base(dir), tempPrefix) || !strings.HasSuffix(path, fileSuffix) {
		return false, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, errors.Wrap(err, "failed to remove blob directory")
	}
	slog.Debug("config_blob_removed", "dir", dir)
	return true, nil
}
