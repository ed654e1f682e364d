package commands

import (
	"fmt"

	"github.com/edl-tools/tachyon-setup/pkg/device"
	"github.com/edl-tools/tachyon-setup/pkg/errors"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices connected in system update mode",
	Args:  cobra.NoArgs,
	RunE:  runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	enum := device.NewEnumerator(device.NewTool(cfg.EDLTool))
	devices, err := enum.List(cmd.Context())
	if err != nil {
		return errors.Wrap(err, "device enumeration failed")
	}

	if len(devices) == 0 {
		fmt.Println("No devices in system update mode")
		return nil
	}

	fmt.Printf("%-28s %-6s %-20s\n", "DEVICE ID", "USB", "PORT")
	fmt.Println("--------------------------------------------------------")

	for _, dev := range devices {
		port := dev.Port
		if port == "" {
			port = "-"
		}
		usb := dev.USB.String()
		if dev.USB.Slow() {
			usb += "*"
		}
		fmt.Printf("%-28s %-6s %-20s\n", dev.ID, usb, port)
	}

	return nil
}
