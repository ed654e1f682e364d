package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/edl-tools/tachyon-setup/pkg/cloud"
	"github.com/edl-tools/tachyon-setup/pkg/device"
	"github.com/edl-tools/tachyon-setup/pkg/profile"
	"github.com/spf13/cobra"
)

var (
	statusUntil   string
	statusTimeout time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status <device-id>",
	Short: "Show or wait for a device's cloud connection status",
	Long: `Queries whether a device is connected to the Particle Cloud.

With --until the query is repeated until the device reports that status or
--timeout elapses.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusUntil, "until", "", "Wait for this status (connected, disconnected)")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 5*time.Minute, "How long to wait with --until")
}

func runStatus(cmd *cobra.Command, args []string) error {
	deviceID := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	userProfile, err := profile.Load(cfg.ProfileFile)
	if err != nil {
		return err
	}

	client := cloud.NewClient(cfg.APIURL, userProfile.AccessToken())
	query := func(ctx context.Context) (string, error) {
		return client.DeviceStatus(ctx, deviceID)
	}

	status, err := device.WaitForStatus(cmd.Context(), query, statusUntil, statusTimeout, cfg.StatusInterval)
	if err != nil {
		return err
	}

	fmt.Printf("Device %s is %s\n", deviceID, status)
	return nil
}
