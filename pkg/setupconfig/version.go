package setupconfig

import (
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/blang/semver/v4"
	"github.com/edl-tools/tachyon-setup/pkg/errors"
)

// VersionKind tells how a version string is interpreted.
type VersionKind int

const (
	VersionChannel VersionKind = iota
	VersionSemver
	VersionLocal
)

func (k VersionKind) String() string {
	switch k {
	case VersionChannel:
		return "channel"
	case VersionSemver:
		return "semver"
	default:
		return "local"
	}
}

// Channels are the named release tracks.
var Channels = []string{"latest", "stable", "beta", "rc"}

// ClassifyVersion decides whether version names a channel, a semantic version
// or a local file or directory. A local path must exist and be readable.
func ClassifyVersion(version string) (VersionKind, error) {
	if slices.Contains(Channels, version) {
		return VersionChannel, nil
	}
	if isSemver(version) {
		return VersionSemver, nil
	}

	f, err := os.Open(version)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return VersionLocal, errors.WithKind(err, errors.KindVersionResolution,
				fmt.Sprintf("The file %q does not exist.", version))
		case errors.Is(err, fs.ErrPermission):
			return VersionLocal, errors.WithKind(err, errors.KindVersionResolution,
				fmt.Sprintf("The file %q is not accessible (permission denied).", version))
		}
		return VersionLocal, errors.WithKind(err, errors.KindVersionResolution,
			fmt.Sprintf("The file %q could not be read: %v", version, err))
	}
	f.Close()

	return VersionLocal, nil
}

func isSemver(v string) bool {
	v = strings.TrimLeft(strings.TrimSpace(v), "=v")
	_, err := semver.Parse(v)
	return err == nil
}
