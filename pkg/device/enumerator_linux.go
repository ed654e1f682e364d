//go:build linux

package device

import "log/slog"

// NewEnumerator returns the platform enumerator. Linux reads sysfs directly.
func NewEnumerator(_ *Tool) Enumerator {
	slog.Debug("device_enumerator_init", "platform", "linux", "source", "sysfs")
	return NewSysfsEnumerator(DefaultSysfsRoot)
}
