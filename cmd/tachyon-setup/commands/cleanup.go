package commands

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/edl-tools/tachyon-setup/internal/config"
	"github.com/edl-tools/tachyon-setup/pkg/configblob"
	"github.com/edl-tools/tachyon-setup/pkg/db"
	"github.com/edl-tools/tachyon-setup/pkg/download"
	"github.com/edl-tools/tachyon-setup/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	cleanupAll   bool
	cleanupCache bool
	cleanupRuns  bool
	cleanupRun   string
	cleanupForce bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Clean up setup resources (cached images, config blobs, run records)",
	Long: `Clean up resources left behind by setup runs:
  --all          Clean the download cache and all finished runs
  --cache        Remove cached OS images, including partial downloads
  --runs         Remove config blobs, logs and records of finished runs
  --run <id>     Clean one run
  --force        Include runs still marked as running`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "Clean all resources")
	cleanupCmd.Flags().BoolVar(&cleanupCache, "cache", false, "Clean the download cache")
	cleanupCmd.Flags().BoolVar(&cleanupRuns, "runs", false, "Clean finished runs")
	cleanupCmd.Flags().StringVar(&cleanupRun, "run", "", "Clean a specific run by id")
	cleanupCmd.Flags().BoolVar(&cleanupForce, "force", false, "Also clean runs still marked as running")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if !cleanupAll && !cleanupCache && !cleanupRuns && cleanupRun == "" {
		return fmt.Errorf("must specify --all, --cache, --runs, or --run")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cleanupAll || cleanupCache {
		if err := cleanupDownloadCache(cfg); err != nil {
			return err
		}
	}
	if !cleanupAll && !cleanupRuns && cleanupRun == "" {
		return nil
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	if cleanupRun != "" {
		return cleanupSpecificRun(repo, cleanupRun)
	}
	return cleanupAllRuns(repo)
}

func cleanupDownloadCache(cfg *config.Config) error {
	cache := download.NewCache(cfg.CacheDir, nil, nil)
	freed, err := cache.Purge()
	if err != nil {
		return errors.Wrap(err, "cache cleanup failed")
	}
	fmt.Printf("🧹 Removed cached images from %s (%s freed)\n", cache.Dir(), humanize.Bytes(uint64(freed)))
	return nil
}

func cleanupAllRuns(repo *db.Repository) error {
	runs, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	fmt.Printf("🧹 Cleaning up %d runs...\n", len(runs))

	for _, run := range runs {
		if !run.Finished() && !cleanupForce {
			fmt.Printf("⏭️  Skipped running: %s\n", run.RunID)
			continue
		}
		if err := cleanupRunResources(repo, run); err != nil {
			fmt.Printf("⚠️  Failed to clean %s: %v\n", run.RunID, err)
		} else {
			fmt.Printf("✅ Cleaned: %s\n", run.RunID)
		}
	}

	return nil
}

func cleanupSpecificRun(repo *db.Repository, runID string) error {
	run, err := repo.Get(runID)
	if err != nil {
		return errors.Wrap(err, "run lookup failed")
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}
	if !run.Finished() && !cleanupForce {
		return fmt.Errorf("run %s is still running, use --force to clean it", runID)
	}

	fmt.Printf("🧹 Cleaning up %s...\n", runID)

	if err := cleanupRunResources(repo, run); err != nil {
		return errors.Wrap(err, "cleanup failed")
	}

	fmt.Printf("✅ Cleaned: %s\n", runID)
	return nil
}

func cleanupRunResources(repo *db.Repository, run *db.Run) error {
	// 1. Remove the temporary config blob directory
	if run.BlobPath != "" {
		if _, err := configblob.RemoveRunDir(run.BlobPath); err != nil {
			return err
		}
	}

	// 2. Remove the flashing log
	if run.LogPath != "" {
		if err := os.Remove(run.LogPath); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "failed to remove log")
		}
	}

	// 3. Delete the record
	if err := repo.Delete(run.RunID); err != nil {
		return errors.Wrap(err, "failed to delete run record")
	}

	return nil
}
