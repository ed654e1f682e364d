package commands

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edl-tools/tachyon-setup/pkg/configblob"
	"github.com/edl-tools/tachyon-setup/pkg/device"
	"github.com/edl-tools/tachyon-setup/pkg/download"
	"github.com/edl-tools/tachyon-setup/pkg/errors"
	appfsm "github.com/edl-tools/tachyon-setup/pkg/fsm"
	"github.com/edl-tools/tachyon-setup/pkg/profile"
	"github.com/edl-tools/tachyon-setup/pkg/security"
	"github.com/edl-tools/tachyon-setup/pkg/setupconfig"
	"github.com/edl-tools/tachyon-setup/pkg/steps"
	"github.com/edl-tools/tachyon-setup/pkg/storage"
	"github.com/edl-tools/tachyon-setup/pkg/ui"
	"github.com/spf13/cobra"
	"github.com/superfly/fsm"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Set up a Tachyon device in system update mode",
	Long: `Walks through the setup of a Tachyon device: logs in, collects the
first-boot configuration, downloads the operating system, registers the
device and flashes it.

With --load-config the run is silent: every answer comes from the file.`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
	addSetupFlags(setupCmd)
}

func addSetupFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("skip-flashing-os", false, "Only write the configuration, keep the installed OS")
	cmd.Flags().String("timezone", "", "Timezone of the device (default: this computer's)")
	cmd.Flags().String("load-config", "", "Run silently from a saved configuration file")
	cmd.Flags().String("save-config", "", "Save the configuration to this file for later runs")
	cmd.Flags().String("region", "", "Cellular region (NA, RoW)")
	cmd.Flags().String("version", "", "OS version: a channel, a version number or a local file")
	cmd.Flags().String("variant", "", "OS variant (headless, desktop)")
	cmd.Flags().String("board", "", "Board (formfactor, formfactor_dvt, rb3g2)")
	cmd.Flags().Bool("skip-cli", false, "Do not copy the CLI profile to the device")
}

// overridesFromFlags returns the flags given on the command line. Flags left
// at their default stay nil.
func overridesFromFlags(cmd *cobra.Command) setupconfig.Overrides {
	flags := cmd.Flags()
	str := func(name string) *string {
		if !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetString(name)
		return &v
	}
	boolean := func(name string) *bool {
		if !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetBool(name)
		return &v
	}

	return setupconfig.Overrides{
		SkipFlashingOS: boolean("skip-flashing-os"),
		Timezone:       str("timezone"),
		LoadConfig:     str("load-config"),
		SaveConfig:     str("save-config"),
		Region:         str("region"),
		Version:        str("version"),
		Variant:        str("variant"),
		Board:          str("board"),
		SkipCLI:        boolean("skip-cli"),
	}
}

func runSetup(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	behavior, err := cfg.Behavior()
	if err != nil {
		return err
	}

	// Ensure all necessary directories exist
	if err := ensureDirectories(cfg.SQLitePath, cfg.FSMDBPath, cfg.CacheDir, cfg.LogsDir); err != nil {
		return err
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	opener := &storage.Router{HTTP: storage.NewHTTPClient(http.DefaultClient)}
	s3Client, err := storage.NewS3Client(ctx, cfg.S3Region)
	if err != nil {
		slog.Warn("s3_unavailable", "error", err)
	} else {
		opener.S3 = s3Client
	}

	userProfile, err := profile.Load(cfg.ProfileFile)
	if err != nil {
		return err
	}

	out := os.Stdout
	u := ui.New(out)
	u.Welcome()

	tool := device.NewTool(cfg.EDLTool)

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := appfsm.NewMachine(appfsm.Dependencies{
		Repo:        repo,
		Discoverer:  device.NewDiscoverer(device.NewEnumerator(tool), out, device.WithPollInterval(cfg.PollInterval)),
		InfoReader:  tool,
		Flasher:     tool,
		Opener:      opener,
		Cache:       download.NewCache(cfg.CacheDir, opener, security.NewValidator(cfg.MaxArtifactSize)),
		Serializer:  configblob.NewSerializer(behavior, cfg.ProfileFile),
		Behavior:    behavior,
		UserProfile: userProfile,
		UI:          u,
		Prompter:    ui.NewTerminal(),
		Runner:      steps.NewRunner(out),
		APIURL:      cfg.APIURL,
		ManifestURL: cfg.ManifestURL,
		LogsDir:     cfg.LogsDir,
		Staging:     cfg.Staging,
	})

	pipeline, err := appfsm.NewPipeline(ctx, machine, manager)
	if err != nil {
		return err
	}

	result, err := pipeline.Run(ctx, appfsm.RunRequest{
		Timezone:  localTimezone(),
		Overrides: overridesFromFlags(cmd),
	})
	if err != nil {
		return err
	}

	slog.Info("setup_finished",
		"run_id", result.RunID,
		"device_id", result.DeviceID,
		"flashed", result.Flashed,
		"log", result.LogPath)
	return nil
}
