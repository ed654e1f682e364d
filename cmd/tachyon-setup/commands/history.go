package commands

import (
	"fmt"

	"github.com/edl-tools/tachyon-setup/pkg/errors"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List setup runs and their status",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	runs, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(runs) == 0 {
		fmt.Println("No setup runs found")
		return nil
	}

	fmt.Printf("%-38s %-13s %-5s %-28s %-20s\n", "RUN ID", "STATUS", "STEP", "DEVICE", "STARTED")
	fmt.Println("---------------------------------------------------------------------------------------------------------------")

	for _, run := range runs {
		deviceID := run.DeviceID
		if deviceID == "" {
			deviceID = "-"
		}
		step := "-"
		if run.Step != 0 {
			step = fmt.Sprintf("%d", run.Step)
		}

		fmt.Printf("%-38s %-13s %-5s %-28s %-20s\n",
			run.RunID, run.Status, step, deviceID, run.CreatedAt)
		if run.ErrorMessage != "" {
			fmt.Printf("    %s\n", run.ErrorMessage)
		}
	}

	return nil
}
