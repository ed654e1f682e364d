package device

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/edl-tools/tachyon-setup/pkg/errors"
)

// Qualcomm emergency download mode USB identifiers.
const (
	edlVendorID  = "05c6"
	edlProductID = "9008"
)

// DefaultSysfsRoot is where Linux exposes USB devices.
const DefaultSysfsRoot = "/sys/bus/usb/devices"

// SysfsEnumerator finds update-mode devices by reading sysfs.
type SysfsEnumerator struct {
	root string
}

// NewSysfsEnumerator reads devices below root.
func NewSysfsEnumerator(root string) *SysfsEnumerator {
	return &SysfsEnumerator{root: root}
}

// List returns the devices in update mode ordered by port.
func (e *SysfsEnumerator) List(ctx context.Context) ([]Device, error) {
	entries, err := os.ReadDir(e.root)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read usb devices")
	}

	var devices []Device
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := filepath.Join(e.root, entry.Name())
		if readAttr(dir, "idVendor") != edlVendorID || readAttr(dir, "idProduct") != edlProductID {
			continue
		}

		dev := Device{
			ID:   readAttr(dir, "serial"),
			USB:  parseUSBVersion(readAttr(dir, "version"), readAttr(dir, "speed")),
			Port: entry.Name(),
		}
		if dev.ID == "" {
			dev.ID = entry.Name()
		}
		devices = append(devices, dev)
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Port < devices[j].Port })
	slog.Debug("sysfs_scan_complete", "root", e.root, "devices", len(devices))
	return devices, nil
}

func readAttr(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(string(data)))
}

// parseUSBVersion turns the bcdUSB string ("3.20") into a version, capped at
// 2.0 when the negotiated speed in Mbps is high-speed or lower.
func parseUSBVersion(version, speed string) USBVersion {
	var v USBVersion
	major, minor, _ := strings.Cut(version, ".")
	v.Major, _ = strconv.Atoi(major)
	if minor != "" {
		v.Minor, _ = strconv.Atoi(minor[:1])
	}

	if mbps, err := strconv.ParseFloat(speed, 64); err == nil && mbps <= 480 && v.Major > 2 {
		v = USBVersion{Major: 2, Minor: 0}
	}
	return v
}
