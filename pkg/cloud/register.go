package cloud

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edl-tools/tachyon-setup/pkg/errors"
)

// AssignDevice adds deviceID to productID and fails unless the device ends up
// in the product.
func AssignDevice(ctx context.Context, c *Client, productID int, deviceID string) error {
	res, err := c.AddDeviceToProduct(ctx, productID, deviceID)
	if err != nil {
		return errors.WithKind(err, errors.KindRegistration,
			fmt.Sprintf("Failed to assign device %s : %v", deviceID, err))
	}
	if len(res.UpdatedDeviceIDs) > 0 || len(res.ExistingDeviceIDs) > 0 {
		slog.Info("device_assigned", "device_id", deviceID, "product_id", productID, "existing", len(res.ExistingDeviceIDs) > 0)
		return nil
	}

	reason := ""
	if len(res.InvalidDeviceIDs) > 0 {
		reason = ": Invalid device ID"
	}
	if len(res.NonmemberDeviceIDs) > 0 {
		reason = ": Device is owned by another user"
	}
	slog.Error("device_assign_failed", "device_id", deviceID, "product_id", productID, "reason", reason)
	return errors.Newf(errors.KindRegistration, "Failed to assign device %s %s", deviceID, reason)
}

// Register assigns the device to the product and returns its registration
// code.
func Register(ctx context.Context, c *Client, productID int, deviceID string) (string, error) {
	if err := AssignDevice(ctx, c, productID, deviceID); err != nil {
		return "", err
	}
	code, err := c.RegistrationCode(ctx, productID, deviceID)
	if err != nil {
		return "", errors.WithKind(err, errors.KindRegistration,
			fmt.Sprintf("Failed to get registration code for %s: %v", deviceID, err))
	}
	return code, nil
}

// ConsoleURL links to the device page of the web console.
func ConsoleURL(staging bool, productSlug, deviceID string) string {
	host := "https://console.particle.io"
	if staging {
		host = "https://console.staging.particle.io"
	}
	return fmt.Sprintf("%s/%s/devices/%s", host, productSlug, deviceID)
}
