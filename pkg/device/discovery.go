package device

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

const (
	DefaultPollInterval = time.Second
	DefaultSettleDelay  = time.Second
)

// SetupInstructions is shown once while no device is connected.
const SetupInstructions = `Put your Tachyon device into system update mode:
  1. Unplug the USB-C cable and disconnect the battery.
  2. Hold the button while connecting the battery, or plug in USB-C if there is no battery.
  3. Release the button once the LED starts flashing yellow.
  4. Connect the device to this computer with a USB-C cable.

Waiting for the device...`

// Discoverer waits for a device to enter update mode.
type Discoverer struct {
	enum     Enumerator
	out      io.Writer
	interval time.Duration
	settle   time.Duration
	sleep    func(context.Context, time.Duration) error
}

// DiscovererOption configures a Discoverer.
type DiscovererOption func(*Discoverer)

// WithPollInterval sets the time between enumerations.
func WithPollInterval(d time.Duration) DiscovererOption {
	return func(dd *Discoverer) { dd.interval = d }
}

// WithSettleDelay sets the pause after the confirmation message.
func WithSettleDelay(d time.Duration) DiscovererOption {
	return func(dd *Discoverer) { dd.settle = d }
}

// WithSleeper replaces the sleep function, for tests.
func WithSleeper(sleep func(context.Context, time.Duration) error) DiscovererOption {
	return func(dd *Discoverer) { dd.sleep = sleep }
}

// NewDiscoverer creates a discoverer writing guidance to out.
func NewDiscoverer(enum Enumerator, out io.Writer, opts ...DiscovererOption) *Discoverer {
	d := &Discoverer{
		enum:     enum,
		out:      out,
		interval: DefaultPollInterval,
		settle:   DefaultSettleDelay,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Wait blocks until a device is in update mode and returns the first one.
// There is no timeout: preparing the board by hand can take any amount of
// time. Enumeration errors count as "not found yet". Only ctx ends the wait
// early.
func (d *Discoverer) Wait(ctx context.Context) (*Device, error) {
	instructed := false
	attempts := 0

	for {
		attempts++
		devices, err := d.enum.List(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Debug("device_enumeration_failed", "attempt", attempts, "error", err)
		}

		if len(devices) > 0 {
			dev := devices[0]
			slog.Info("device_discovered", "device_id", dev.ID, "usb", dev.USB.String(), "attempts", attempts)
			fmt.Fprintf(d.out, "Device %s found in system update mode.\n", dev.ID)
			if err := d.sleep(ctx, d.settle); err != nil {
				return nil, err
			}
			return &dev, nil
		}

		if !instructed {
			fmt.Fprintln(d.out, SetupInstructions)
			instructed = true
		}

		if err := d.sleep(ctx, d.interval); err != nil {
			return nil, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
