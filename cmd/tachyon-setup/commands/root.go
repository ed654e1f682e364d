package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/edl-tools/tachyon-setup/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// LogLevel is raised to debug by --verbose.
var LogLevel = new(slog.LevelVar)

var rootCmd = &cobra.Command{
	Use:   "tachyon-setup",
	Short: "Provision Particle Tachyon devices",
	Long: `Sets up a Tachyon device connected in system update mode: downloads the
operating system, registers the device with a Particle product, writes its
first-boot configuration and flashes it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		LogLevel.Set(slog.LevelWarn)
		if viper.GetBool("verbose") {
			LogLevel.Set(slog.LevelDebug)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// reportError prints err unless the user has already been shown it.
func reportError(w io.Writer, err error) {
	if errors.IsReported(err) {
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

func init() {
	LogLevel.Set(slog.LevelWarn)

	// Empty path defaults fall through to the XDG locations set in config.
	rootCmd.PersistentFlags().String("state-dir", "", "Directory for run state")
	rootCmd.PersistentFlags().String("cache-dir", "", "Directory for downloaded OS images")
	rootCmd.PersistentFlags().String("logs-dir", "", "Directory for flashing logs")
	rootCmd.PersistentFlags().String("sqlite-path", "", "SQLite run history path")
	rootCmd.PersistentFlags().String("fsm-db-path", "", "FSM journal directory")
	rootCmd.PersistentFlags().String("profile-file", "", "Particle CLI profile file")
	rootCmd.PersistentFlags().String("api-url", "", "Particle API URL")
	rootCmd.PersistentFlags().Bool("staging", false, "Use the Particle staging environment")
	rootCmd.PersistentFlags().String("manifest-url", "", "Base URL of the release manifests")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "Region for s3:// artifacts")
	rootCmd.PersistentFlags().String("edl-tool", "particle-edl", "EDL utility used to talk to the device")
	rootCmd.PersistentFlags().String("behavior-profile", "default", "Setup behavior profile (default or compat)")
	rootCmd.PersistentFlags().Int64("max-artifact-size", 8*1024*1024*1024, "Max OS image size in bytes")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")

	for _, name := range []string{
		"state-dir", "cache-dir", "logs-dir", "sqlite-path", "fsm-db-path",
		"profile-file", "api-url", "staging", "manifest-url", "s3-region",
		"edl-tool", "behavior-profile", "max-artifact-size", "verbose",
	} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}
