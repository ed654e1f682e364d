// Package download resolves an OS build from the release manifest and
// downloads its artifact into a content-addressed cache, verifying the
// checksum and resuming interrupted transfers.
package download

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/edl-tools/tachyon-setup/pkg/errors"
	"github.com/edl-tools/tachyon-setup/pkg/setupconfig"
	"github.com/edl-tools/tachyon-setup/pkg/storage"
)

// Artifact is one downloadable file of a build.
type Artifact struct {
	URL    string `json:"artifact_url"`
	SHA256 string `json:"sha256_checksum"`
}

// FileName is the last path element of the artifact URL.
func (a Artifact) FileName() string {
	if u, err := url.Parse(a.URL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return a.URL[strings.LastIndex(a.URL, "/")+1:]
}

// Build is an OS image for one region, variant and board.
type Build struct {
	Region              string     `json:"region"`
	Variant             string     `json:"variant"`
	Board               string     `json:"board"`
	Distribution        string     `json:"distribution"`
	DistributionVersion string     `json:"distribution_version"`
	Version             string     `json:"version"`
	Artifacts           []Artifact `json:"artifacts"`
}

// Description is the one-line summary shown before downloading.
func (b *Build) Description() string {
	return fmt.Sprintf("Tachyon %s %s (%s, %s region)", b.Distribution, b.DistributionVersion, b.Variant, b.Region)
}

// Manifest lists the builds of a release.
type Manifest struct {
	Builds []Build `json:"builds"`
}

// ManifestURL is where the manifest of version is published for a board
// family.
func ManifestURL(base string, kind setupconfig.BoardKind, version string) string {
	return fmt.Sprintf("%s/%s/%s.json", strings.TrimRight(base, "/"), kind.Family(), url.PathEscape(version))
}

// FetchManifest downloads and parses a release manifest.
func FetchManifest(ctx context.Context, opener storage.Opener, base string, kind setupconfig.BoardKind, version string) (*Manifest, error) {
	u := ManifestURL(base, kind, version)
	slog.Info("manifest_fetch_start", "url", u, "family", kind.Family(), "version", version)

	data, err := storage.ReadAll(ctx, opener, u)
	if err != nil {
		slog.Error("manifest_fetch_failed", "url", u, "error", err)
		return nil, errors.Wrap(err, fmt.Sprintf("failed to fetch manifest for %s", version))
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		slog.Error("manifest_parse_failed", "url", u, "error", err)
		return nil, errors.Wrap(err, "failed to parse manifest")
	}

	slog.Info("manifest_fetch_complete", "url", u, "builds", len(m.Builds))
	return &m, nil
}

// SelectBuild returns the build matching region, variant and board exactly.
func SelectBuild(m *Manifest, region, variant, board string) (*Build, error) {
	if m != nil {
		for i := range m.Builds {
			b := &m.Builds[i]
			if b.Region == region && b.Variant == variant && b.Board == board {
				if len(b.Artifacts) == 0 {
					return nil, errors.Newf(errors.KindNoMatchingBuild, "Build %s has no artifacts", b.Version)
				}
				return b, nil
			}
		}
	}
	slog.Warn("no_matching_build", "region", region, "variant", variant, "board", board)
	return nil, errors.New(errors.KindNoMatchingBuild, "No build available for the provided parameters")
}
