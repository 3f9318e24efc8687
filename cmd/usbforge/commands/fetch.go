package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/usbforge/usbforge/internal/config"
	"github.com/usbforge/usbforge/pkg/errors"
	"github.com/usbforge/usbforge/pkg/storage"
)

var fetchList string

var fetchCmd = &cobra.Command{
	Use:   "fetch <iso-key>",
	Short: "Download an ISO image from the configured S3 bucket",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVar(&fetchList, "list", "", "List available ISOs under a key prefix instead of downloading")
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if cfg.S3Bucket == "" {
		return fmt.Errorf("s3-bucket is not configured")
	}
	if err := ensureDirectories(cfg.SQLitePath, "", cfg.WorkDir); err != nil {
		return err
	}

	client, err := storage.NewClient(ctx, cfg.S3Bucket, cfg.S3Region)
	if err != nil {
		return errors.Wrap(err, "S3 client failed")
	}

	if fetchList != "" || len(args) == 0 {
		keys, err := client.ListISOs(ctx, fetchList)
		if err != nil {
			return errors.Wrap(err, "list failed")
		}
		if len(keys) == 0 {
			fmt.Println("No ISOs found")
			return nil
		}
		for _, key := range keys {
			fmt.Println(key)
		}
		return nil
	}

	key := args[0]
	localPath := filepath.Join(cfg.WorkDir, "downloads", filepath.Base(key))
	if err := ensureDirectories(cfg.SQLitePath, "", filepath.Dir(localPath)); err != nil {
		return err
	}

	result, err := client.Fetch(ctx, key, localPath)
	if err != nil {
		return errors.Wrap(err, "fetch failed")
	}

	fmt.Printf("Downloaded %s\n  path:   %s\n  size:   %d bytes\n  sha256: %s\n",
		key, result.LocalPath, result.Size, result.SHA256)
	return nil
}
