package commands

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/edl-tools/tachyon-setup/pkg/errors"
	"github.com/spf13/cobra"
)

func TestZoneFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/usr/share/zoneinfo/Europe/Berlin", "Europe/Berlin"},
		{"../usr/share/zoneinfo/America/Argentina/Buenos_Aires", "America/Argentina/Buenos_Aires"},
		{"/var/db/timezone/zoneinfo/Asia/Tokyo", "Asia/Tokyo"},
		{"/etc/custom-time", "UTC"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := zoneFromPath(tt.path); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestOverridesFromFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "setup"}
	addSetupFlags(cmd)
	if err := cmd.ParseFlags([]string{"--region", "RoW", "--skip-cli=false", "--version", ""}); err != nil {
		t.Fatal(err)
	}

	o := overridesFromFlags(cmd)

	if o.Region == nil || *o.Region != "RoW" {
		t.Errorf("Expected region RoW, got %v", o.Region)
	}
	if o.SkipCLI == nil || *o.SkipCLI {
		t.Errorf("Expected explicit skip-cli=false, got %v", o.SkipCLI)
	}
	// An explicitly empty flag is still given on the command line
	if o.Version == nil || *o.Version != "" {
		t.Errorf("Expected empty version override, got %v", o.Version)
	}
	if o.Variant != nil || o.Board != nil || o.LoadConfig != nil || o.SkipFlashingOS != nil {
		t.Errorf("Unset flags must stay nil: %+v", o)
	}
	if len(o.Values()) != 3 {
		t.Errorf("Expected 3 defined overrides, got %v", o.Values())
	}
}

func TestLocalTimezoneFromEnv(t *testing.T) {
	t.Setenv("TZ", ":Pacific/Auckland")
	if got := localTimezone(); got != "Pacific/Auckland" {
		t.Errorf("Expected Pacific/Auckland, got %s", got)
	}
}

func TestReportError(t *testing.T) {
	var buf bytes.Buffer
	reportError(&buf, fmt.Errorf("boom"))
	if buf.String() != "Error: boom\n" {
		t.Errorf("unexpected output: %q", buf.String())
	}

	buf.Reset()
	reportError(&buf, errors.MarkReported(errors.New(errors.KindConfigValidation, "missing region")))
	if buf.Len() != 0 {
		t.Errorf("reported error printed again: %q", buf.String())
	}
}
