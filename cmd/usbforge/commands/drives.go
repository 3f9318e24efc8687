package commands

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/usbforge/usbforge/pkg/disk"
	"github.com/usbforge/usbforge/pkg/errors"
)

var drivesCmd = &cobra.Command{
	Use:   "drives",
	Short: "List removable drives usable as targets",
	RunE:  runDrives,
}

func init() {
	rootCmd.AddCommand(drivesCmd)
}

func runDrives(cmd *cobra.Command, args []string) error {
	utility, err := disk.NewUtility()
	if err != nil {
		return errors.Wrap(err, "disk utility init failed")
	}

	drives, err := utility.ListRemovableDrives(context.Background())
	if err != nil {
		return errors.Wrap(err, "drive enumeration failed")
	}

	if len(drives) == 0 {
		fmt.Println("No removable drives found")
		return nil
	}

	fmt.Printf("%-10s %-30s %-20s %-10s\n", "ID", "NAME", "DEVICE", "SIZE")
	fmt.Println("------------------------------------------------------------------------")
	for _, d := range drives {
		fmt.Printf("%-10s %-30s %-20s %-10s\n",
			d.ID, d.Name, d.DevicePath, humanize.Bytes(uint64(d.Size)))
	}

	return nil
}
