package device

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tserrors "github.com/edl-tools/tachyon-setup/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedEnumerator struct {
	results [][]Device
	errs    []error
	calls   int
}

func (e *scriptedEnumerator) List(context.Context) ([]Device, error) {
	i := e.calls
	e.calls++
	if i < len(e.errs) && e.errs[i] != nil {
		return nil, e.errs[i]
	}
	if i < len(e.results) {
		return e.results[i], nil
	}
	return nil, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestDiscoverer_WaitsAndInstructsOnce(t *testing.T) {
	enum := &scriptedEnumerator{
		errs: []error{errors.New("usb busy"), nil, nil, errors.New("usb busy")},
		results: [][]Device{
			nil, nil, {}, nil,
			{{ID: "first", USB: USBVersion{3, 2}}, {ID: "second"}},
		},
	}
	var out bytes.Buffer
	var sleeps []time.Duration
	d := NewDiscoverer(enum, &out,
		WithPollInterval(10*time.Millisecond),
		WithSettleDelay(time.Second),
		WithSleeper(func(_ context.Context, dd time.Duration) error {
			sleeps = append(sleeps, dd)
			return nil
		}))

	dev, err := d.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "first", dev.ID)
	assert.Equal(t, 5, enum.calls)
	assert.Equal(t, 1, strings.Count(out.String(), "system update mode:"))
	assert.Contains(t, out.String(), "Device first found")
	assert.Equal(t, time.Second, sleeps[len(sleeps)-1])
	assert.Len(t, sleeps, 5)
}

func TestDiscoverer_FoundImmediatelySkipsInstructions(t *testing.T) {
	enum := &scriptedEnumerator{results: [][]Device{{{ID: "abc"}}}}
	var out bytes.Buffer

	dev, err := NewDiscoverer(enum, &out, WithSleeper(noSleep)).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", dev.ID)
	assert.NotContains(t, out.String(), SetupInstructions)
}

func TestDiscoverer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	enum := &scriptedEnumerator{}
	d := NewDiscoverer(enum, &bytes.Buffer{}, WithPollInterval(time.Millisecond))

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := d.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitForStatus(t *testing.T) {
	var calls atomic.Int32
	query := func(context.Context) (string, error) {
		switch calls.Add(1) {
		case 1:
			return "", errors.New("not reachable")
		case 2:
			return "disconnected", nil
		default:
			return "CONNECTED", nil
		}
	}

	status, err := WaitForStatus(context.Background(), query, "connected", time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "connected", status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWaitForStatus_Timeout(t *testing.T) {
	query := func(context.Context) (string, error) { return "disconnected", nil }

	start := time.Now()
	_, err := WaitForStatus(context.Background(), query, "connected", 50*time.Millisecond, 10*time.Millisecond)
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.True(t, tserrors.IsKind(err, tserrors.KindDeviceDiscovery))
	assert.Equal(t, "Timed out waiting for status", err.Error())
}

func TestWaitForStatus_SingleQuery(t *testing.T) {
	status, err := WaitForStatus(context.Background(), func(context.Context) (string, error) {
		return "Connected", nil
	}, "", time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "connected", status)
}

func writeAttrs(t *testing.T, dir string, attrs map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for k, v := range attrs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, k), []byte(v+"\n"), 0o644))
	}
}

func TestSysfsEnumerator(t *testing.T) {
	root := t.TempDir()
	writeAttrs(t, filepath.Join(root, "2-1"), map[string]string{
		"idVendor": "05c6", "idProduct": "9008", "serial": "AABBCCDD", "version": " 3.20", "speed": "5000",
	})
	writeAttrs(t, filepath.Join(root, "1-4"), map[string]string{
		"idVendor": "05C6", "idProduct": "9008", "version": " 3.20", "speed": "480",
	})
	writeAttrs(t, filepath.Join(root, "1-1"), map[string]string{
		"idVendor": "046d", "idProduct": "c52b", "version": " 2.00",
	})
	writeAttrs(t, filepath.Join(root, "usb1"), map[string]string{})

	devices, err := NewSysfsEnumerator(root).List(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)

	assert.Equal(t, Device{ID: "1-4", USB: USBVersion{2, 0}, Port: "1-4"}, devices[0])
	assert.Equal(t, Device{ID: "aabbccdd", USB: USBVersion{3, 2}, Port: "2-1"}, devices[1])
	assert.True(t, devices[0].USB.Slow())
	assert.False(t, devices[1].USB.Slow())
}

func TestSysfsEnumerator_MissingRoot(t *testing.T) {
	_, err := NewSysfsEnumerator(filepath.Join(t.TempDir(), "none")).List(context.Background())
	assert.Error(t, err)
}

func TestProgramXML_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	blob := filepath.Join(dir, "dev_misc.backup")
	require.NoError(t, os.WriteFile(blob, make([]byte, 1000), 0o600))

	part := Partition{Label: MiscPartition, LUN: 0, StartSector: 6, Sectors: 256, SectorSize: 4096}
	path, err := WriteProgramXML(part, blob)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rawprogram_misc.xml"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `start_byte_hex="0x6000"`)
	assert.Contains(t, string(data), `size_in_KB="1024.0"`)

	got, file, err := ReadProgramXML(path)
	require.NoError(t, err)
	assert.Equal(t, part, got)
	assert.Equal(t, "dev_misc.backup", file)
}

func TestProgramXML_BlobTooLarge(t *testing.T) {
	blob := filepath.Join(t.TempDir(), "dev_misc.backup")
	require.NoError(t, os.WriteFile(blob, make([]byte, 5000), 0o600))

	_, err := WriteProgramXML(Partition{Label: MiscPartition, Sectors: 1, SectorSize: 4096}, blob)
	assert.ErrorContains(t, err, "partition misc holds 4096")
}

const fakeTool = `#!/bin/sh
case "$1" in
list)
  echo '[{"id":"abc","usb":{"major":3,"minor":1}}]'
  ;;
info)
  echo "reading device $3" >&2
  echo '{"region":"EU","osVersion":"Ubuntu 20.04","partitions":[{"label":"misc","lun":0,"startSector":6,"sectors":256,"sectorSize":4096}]}'
  ;;
flash)
  echo "flash $*"
  ;;
program)
  echo "program failed" >&2
  exit 3
  ;;
esac
`

func installFakeTool(t *testing.T) *Tool {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script tool")
	}
	path := filepath.Join(t.TempDir(), "edl-tool")
	require.NoError(t, os.WriteFile(path, []byte(fakeTool), 0o755))
	return NewTool(path)
}

func TestTool(t *testing.T) {
	tool := installFakeTool(t)
	ctx := context.Background()

	devices, err := tool.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []Device{{ID: "abc", USB: USBVersion{3, 1}}}, devices)

	var log bytes.Buffer
	info, err := tool.ReadInfo(ctx, devices[0], &log)
	require.NoError(t, err)
	assert.Equal(t, "abc", info.DeviceID)
	assert.Equal(t, "EU", info.Region)
	misc, ok := info.Partition(MiscPartition)
	require.True(t, ok)
	assert.Equal(t, int64(256*4096), misc.Size())
	assert.Contains(t, log.String(), "reading device abc")

	log.Reset()
	require.NoError(t, tool.FlashPackage(ctx, devices[0], "/tmp/os.zip", true, &log))
	assert.Contains(t, log.String(), "flash flash --device abc --skip-reset /tmp/os.zip")

	err = tool.FlashProgram(ctx, devices[0], []string{"/tmp/os.zip", "/tmp/rawprogram_misc.xml"}, false, &log)
	require.Error(t, err)
	assert.True(t, tserrors.IsKind(err, tserrors.KindFlashFailed))
	assert.Contains(t, log.String(), "program failed")
}

const chattyTool = `#!/bin/sh
(for i in $(seq 1 200); do echo "progress $i" >&2; done) &
for i in $(seq 1 50); do printf ' '; done
echo '{"deviceId":"abc","region":"NA","osVersion":"Ubuntu 24.04","partitions":[]}'
wait
`

func TestTool_InfoWithConcurrentStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script tool")
	}
	path := filepath.Join(t.TempDir(), "edl-tool")
	require.NoError(t, os.WriteFile(path, []byte(chattyTool), 0o755))
	tool := NewTool(path)

	var log bytes.Buffer
	info, err := tool.ReadInfo(context.Background(), Device{ID: "abc"}, &log)
	require.NoError(t, err)
	assert.Equal(t, "NA", info.Region)
	assert.Contains(t, log.String(), "progress 200")
	assert.Contains(t, log.String(), `"region":"NA"`)
}

func TestTool_InfoFailure(t *testing.T) {
	tool := NewTool(filepath.Join(t.TempDir(), "missing-tool"))
	_, err := tool.ReadInfo(context.Background(), Device{ID: "abc"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, tserrors.IsKind(err, tserrors.KindDeviceInfo))
	assert.Equal(t, "Unable to get device info. Please restart the device and try again.", err.Error())
}
