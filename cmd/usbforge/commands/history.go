package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/usbforge/usbforge/internal/config"
	"github.com/usbforge/usbforge/pkg/db"
	"github.com/usbforge/usbforge/pkg/errors"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past creation runs and their outcomes",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := ensureDirectories(cfg.SQLitePath, "", ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	runs, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	fmt.Printf("%-4s %-40s %-10s %-8s %-10s %-12s %s\n",
		"ID", "IMAGE", "DRIVE", "FS", "COPIED", "STATUS", "ERROR")
	fmt.Println("--------------------------------------------------------------------------------------------------------")
	for _, run := range runs {
		filesystem := run.Filesystem
		if filesystem == "" {
			filesystem = "-"
		}
		errMsg := run.ErrorMessage
		if errMsg == "" {
			errMsg = "-"
		}
		fmt.Printf("%-4d %-40s %-10s %-8s %-10s %-12s %s\n",
			run.ID, run.ImagePath, run.DriveID, filesystem,
			humanize.Bytes(uint64(run.BytesCopied)), run.Status, errMsg)
	}

	return nil
}
