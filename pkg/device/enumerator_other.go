//go:build !linux

package device

import (
	"log/slog"
	"runtime"
)

// NewEnumerator returns the platform enumerator. Without sysfs the EDL tool
// does the listing.
func NewEnumerator(tool *Tool) Enumerator {
	slog.Debug("device_enumerator_init", "platform", runtime.GOOS, "source", "tool")
	return tool
}
