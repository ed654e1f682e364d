package device

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/edl-tools/tachyon-setup/pkg/errors"
)

// StatusFunc reports a device's current cloud connection status.
type StatusFunc func(ctx context.Context) (string, error)

// WaitForStatus polls query every interval until it reports until
// (case-insensitively) or timeout elapses. Query errors are ignored while the
// deadline has not passed. With an empty until the status is queried once.
func WaitForStatus(ctx context.Context, query StatusFunc, until string, timeout, interval time.Duration) (string, error) {
	if until == "" {
		status, err := query(ctx)
		if err != nil {
			return "", err
		}
		return strings.ToLower(status), nil
	}

	until = strings.ToLower(until)
	deadline := time.Now().Add(timeout)
	attempts := 0

	for time.Now().Before(deadline) {
		attempts++
		status, err := query(ctx)
		switch {
		case err != nil:
			slog.Debug("status_query_failed", "attempt", attempts, "error", err)
		case strings.ToLower(status) == until:
			slog.Info("status_reached", "status", until, "attempts", attempts)
			return until, nil
		default:
			slog.Debug("status_pending", "status", status, "want", until, "attempt", attempts)
		}

		wait := min(interval, time.Until(deadline))
		if err := sleepContext(ctx, wait); err != nil {
			return "", err
		}
	}

	slog.Warn("status_timeout", "want", until, "timeout", timeout, "attempts", attempts)
	return "", errors.New(errors.KindDeviceDiscovery, "Timed out waiting for status")
}
