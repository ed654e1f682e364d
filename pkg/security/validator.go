package security

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
)

// Validator checks values taken from a remote manifest before they reach the
// filesystem: artifact file names, checksums used as cache keys, artifact URLs
// and download sizes.
type Validator struct {
	maxArtifactSize int64
}

// NewValidator creates a new security validator
func NewValidator(maxArtifactSize int64) *Validator {
	slog.Info("security_validator_init", "max_artifact_size_mb", maxArtifactSize/1024/1024)

	return &Validator{maxArtifactSize: maxArtifactSize}
}

// ValidateArtifactName checks that name is a single path element.
func (v *Validator) ValidateArtifactName(name string) error {
	if name == "" || name == "." || name == ".." {
		slog.Error("security_artifact_name_rejected", "name", name, "reason", "empty_or_dot")
		return fmt.Errorf("security: invalid artifact name %q", name)
	}

	if filepath.IsAbs(name) || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		slog.Error("security_artifact_name_rejected", "name", name, "reason", "path_separator")
		return fmt.Errorf("security: artifact name must not contain a path: %q", name)
	}

	if strings.ContainsRune(name, 0) {
		slog.Error("security_artifact_name_rejected", "name", name, "reason", "nul_byte")
		return fmt.Errorf("security: artifact name contains NUL byte")
	}

	return nil
}

// ValidateChecksum checks that sum is a hex-encoded SHA-256 digest. Checksums
// name cache directories, so anything else is refused.
func (v *Validator) ValidateChecksum(sum string) error {
	raw, err := hex.DecodeString(sum)
	if err != nil || len(raw) != 32 {
		slog.Error("security_checksum_rejected", "checksum", sum)
		return fmt.Errorf("security: %q is not a SHA-256 checksum", sum)
	}
	return nil
}

// ValidateURL accepts http, https and s3 artifact locations.
func (v *Validator) ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		slog.Error("security_url_rejected", "url", raw, "error", err)
		return nil, fmt.Errorf("security: invalid artifact URL %q: %w", raw, err)
	}

	switch u.Scheme {
	case "http", "https", "s3":
	default:
		slog.Error("security_url_rejected", "url", raw, "reason", "scheme")
		return nil, fmt.Errorf("security: unsupported artifact URL scheme %q", u.Scheme)
	}

	if u.Host == "" {
		slog.Error("security_url_rejected", "url", raw, "reason", "no_host")
		return nil, fmt.Errorf("security: artifact URL %q has no host", raw)
	}

	return u, nil
}

// ValidateFileSize checks if an artifact exceeds the size cap. A non-positive
// cap disables the check.
func (v *Validator) ValidateFileSize(size int64) error {
	if v.maxArtifactSize > 0 && size > v.maxArtifactSize {
		slog.Error("security_file_size_exceeded",
			"file_size_mb", size/1024/1024,
			"max_file_size_mb", v.maxArtifactSize/1024/1024)
		return fmt.Errorf("security: file size %d exceeds max %d", size, v.maxArtifactSize)
	}
	return nil
}

// MaxArtifactSize returns the configured size cap.
func (v *Validator) MaxArtifactSize() int64 {
	return v.maxArtifactSize
}
