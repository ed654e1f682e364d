package security

import (
	"strings"
	"testing"
)

func TestValidateArtifactName(t *testing.T) {
	v := NewValidator(1024)

	tests := []struct {
		name      string
		shouldErr bool
	}{
		{"tachyon-ubuntu-20.04-NA-headless.zip", false},
		{"image.bin", false},
		{"", true},
		{".", true},
		{"..", true},
		{"../etc/passwd", true},
		{"/etc/passwd", true},
		{"dir/file.zip", true},
		{`dir\file.zip`, true},
		{"bad\x00name", true},
	}

	for _, tt := range tests {
		err := v.ValidateArtifactName(tt.name)
		if tt.shouldErr && err == nil {
			t.Errorf("expected error for name: %q", tt.name)
		}
		if !tt.shouldErr && err != nil {
			t.Errorf("unexpected error for name %q: %v", tt.name, err)
		}
	}
}

func TestValidateChecksum(t *testing.T) {
	v := NewValidator(1024)

	if err := v.ValidateChecksum(strings.Repeat("ab", 32)); err != nil {
		t.Errorf("expected valid checksum, got: %v", err)
	}

	for _, sum := range []string{"", "abc", strings.Repeat("zz", 32), strings.Repeat("ab", 31), "../" + strings.Repeat("a", 61)} {
		if err := v.ValidateChecksum(sum); err == nil {
			t.Errorf("expected error for checksum %q", sum)
		}
	}
}

func TestValidateURL(t *testing.T) {
	v := NewValidator(1024)

	for _, raw := range []string{"https://binaries.example.com/a.zip", "http://x/img.bin", "s3://bucket/key/a.zip"} {
		if _, err := v.ValidateURL(raw); err != nil {
			t.Errorf("unexpected error for %s: %v", raw, err)
		}
	}

	for _, raw := range []string{"file:///etc/passwd", "ftp://host/a", "https://", "::not a url"} {
		if _, err := v.ValidateURL(raw); err == nil {
			t.Errorf("expected error for %s", raw)
		}
	}
}

func TestValidateFileSize(t *testing.T) {
	v := NewValidator(100)

	if err := v.ValidateFileSize(50); err != nil {
		t.Errorf("expected no error for size 50, got: %v", err)
	}

	if err := v.ValidateFileSize(150); err == nil {
		t.Error("expected error for size 150 exceeding limit 100")
	}

	unlimited := NewValidator(0)
	if err := unlimited.ValidateFileSize(1 << 40); err != nil {
		t.Errorf("expected no limit with zero cap, got: %v", err)
	}
}
