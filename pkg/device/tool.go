package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/edl-tools/tachyon-setup/pkg/errors"
)

// Tool drives the external EDL utility. It implements Enumerator, InfoReader
// and Flasher.
type Tool struct {
	path string
}

// NewTool wraps the EDL utility at path (looked up in PATH when bare).
func NewTool(path string) *Tool {
	return &Tool{path: path}
}

// List runs `list --json`.
func (t *Tool) List(ctx context.Context) ([]Device, error) {
	out, err := t.output(ctx, io.Discard, "list", "--json")
	if err != nil {
		return nil, err
	}
	var devices []Device
	if err := json.Unmarshal(out, &devices); err != nil {
		return nil, errors.Wrap(err, "failed to parse device list")
	}
	return devices, nil
}

// ReadInfo runs `info --json` against dev.
func (t *Tool) ReadInfo(ctx context.Context, dev Device, log io.Writer) (*Info, error) {
	slog.Info("device_info_start", "device_id", dev.ID)

	out, err := t.output(ctx, log, "info", "--device", dev.ID, "--json")
	if err != nil {
		slog.Error("device_info_failed", "device_id", dev.ID, "error", err)
		return nil, errors.WithKind(err, errors.KindDeviceInfo, "Unable to get device info. Please restart the device and try again.")
	}

	var info Info
	if err := json.Unmarshal(out, &info); err != nil {
		slog.Error("device_info_parse_failed", "device_id", dev.ID, "error", err)
		return nil, errors.WithKind(err, errors.KindDeviceInfo, "Unable to get device info. Please restart the device and try again.")
	}
	if info.DeviceID == "" {
		info.DeviceID = dev.ID
	}

	slog.Info("device_info_complete", "device_id", info.DeviceID, "region", info.Region, "os_version", info.OSVersion)
	return &info, nil
}

// FlashPackage runs `flash` with the OS package.
func (t *Tool) FlashPackage(ctx context.Context, dev Device, packagePath string, skipReset bool, log io.Writer) error {
	args := []string{"flash", "--device", dev.ID}
	if skipReset {
		args = append(args, "--skip-reset")
	}
	args = append(args, packagePath)

	slog.Info("flash_package_start", "device_id", dev.ID, "package", packagePath, "skip_reset", skipReset)
	if err := t.run(ctx, log, args...); err != nil {
		slog.Error("flash_package_failed", "device_id", dev.ID, "error", err)
		return errors.WithKind(err, errors.KindFlashFailed, "failed to flash OS package")
	}
	slog.Info("flash_package_complete", "device_id", dev.ID)
	return nil
}

// FlashProgram runs `program` with the program XML and its data files.
func (t *Tool) FlashProgram(ctx context.Context, dev Device, files []string, skipReset bool, log io.Writer) error {
	args := []string{"program", "--device", dev.ID}
	if skipReset {
		args = append(args, "--skip-reset")
	}
	args = append(args, files...)

	slog.Info("flash_program_start", "device_id", dev.ID, "files", len(files), "skip_reset", skipReset)
	if err := t.run(ctx, log, args...); err != nil {
		slog.Error("flash_program_failed", "device_id", dev.ID, "error", err)
		return errors.WithKind(err, errors.KindFlashFailed, "failed to write configuration partition")
	}
	slog.Info("flash_program_complete", "device_id", dev.ID)
	return nil
}

// lockedWriter serializes writes from the stdout and stderr copy goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func (t *Tool) run(ctx context.Context, log io.Writer, args ...string) error {
	cmd := exec.CommandContext(ctx, t.path, args...)
	cmd.Stdout = log
	cmd.Stderr = log
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", t.path, args[0], err)
	}
	return nil
}

// output runs the tool and returns stdout; stderr goes to log.
func (t *Tool) output(ctx context.Context, log io.Writer, args ...string) ([]byte, error) {
	var stdout bytes.Buffer
	shared := &lockedWriter{w: log}
	cmd := exec.CommandContext(ctx, t.path, args...)
	cmd.Stdout = io.MultiWriter(&stdout, shared)
	cmd.Stderr = shared
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s: %w", t.path, args[0], err)
	}
	return stdout.Bytes(), nil
}
