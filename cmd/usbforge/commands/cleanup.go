package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/usbforge/usbforge/internal/config"
	"github.com/usbforge/usbforge/pkg/db"
	"github.com/usbforge/usbforge/pkg/errors"
)

var (
	cleanupDownloads bool
	cleanupHistory   bool
	cleanupAll       bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove downloaded ISOs and finished run records",
	Long: `Clean up local artifacts:
  --downloads   Remove downloaded ISOs from the work directory
  --history     Remove completed and failed runs from the history database
  --all         Both`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupDownloads, "downloads", false, "Remove downloaded ISOs")
	cleanupCmd.Flags().BoolVar(&cleanupHistory, "history", false, "Remove finished run records")
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "Remove downloads and finished run records")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if !cleanupDownloads && !cleanupHistory && !cleanupAll {
		return fmt.Errorf("must specify --downloads, --history, or --all")
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	if cleanupDownloads || cleanupAll {
		downloadDir := filepath.Join(cfg.WorkDir, "downloads")
		if err := os.RemoveAll(downloadDir); err != nil {
			return errors.Wrap(err, "failed to remove downloads")
		}
		fmt.Printf("Removed %s\n", downloadDir)
	}

	if cleanupHistory || cleanupAll {
		repo, err := db.NewRepository(cfg.SQLitePath)
		if err != nil {
			return errors.Wrap(err, "db init failed")
		}
		defer repo.Close()

		removed, err := repo.PurgeFinished()
		if err != nil {
			return errors.Wrap(err, "purge failed")
		}
		fmt.Printf("Removed %d finished run records\n", removed)
	}

	return nil
}
