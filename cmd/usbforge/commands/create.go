package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/superfly/fsm"

	"github.com/usbforge/usbforge/internal/config"
	"github.com/usbforge/usbforge/pkg/creation"
	"github.com/usbforge/usbforge/pkg/db"
	"github.com/usbforge/usbforge/pkg/disk"
	"github.com/usbforge/usbforge/pkg/errors"
	"github.com/usbforge/usbforge/pkg/validate"
)

var createEject bool

var createCmd = &cobra.Command{
	Use:   "create <iso-path> <drive-id>",
	Short: "Create a bootable Windows installer USB from an ISO",
	Long: `Creates a bootable Windows installer USB drive. The target drive is erased:
exFAT on GPT when the image holds a file beyond the FAT32 limit, FAT32 on MBR
otherwise. Use "usbforge drives" to find the drive identifier.`,
	Args: cobra.ExactArgs(2),
	RunE: runCreate,
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().BoolVar(&createEject, "eject", false, "Eject the drive after a successful run")
}

func runCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	isoPath, driveID := args[0], args[1]

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}
	if err := ensureDirectories(cfg.SQLitePath, cfg.FSMDBPath, cfg.WorkDir); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	utility, err := disk.NewUtility()
	if err != nil {
		return errors.Wrap(err, "disk utility init failed")
	}
	images, err := disk.NewImageMounter()
	if err != nil {
		return errors.Wrap(err, "image mounter init failed")
	}

	validator := validate.NewValidator(cfg.MinDriveSize)
	image, err := validator.ValidateImage(isoPath)
	if err != nil {
		return err
	}

	drives, err := utility.ListRemovableDrives(ctx)
	if err != nil {
		return errors.Wrap(err, "drive enumeration failed")
	}
	drive, ok := findDrive(drives, driveID)
	if !ok {
		return fmt.Errorf("drive %s not found; run \"usbforge drives\" to list candidates", driveID)
	}
	if err := validator.ValidateDrive(drive, image.Size); err != nil {
		return err
	}

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	// The tracker and bar are this command's presentation layer: they only
	// consume the published state stream.
	tracker := creation.NewStatsTracker()
	bar := newCreateBar(image.Name)

	publish := func(s creation.State) {
		bar.Set(int(creation.OverallProgress(s) * 100))

		switch s.Phase {
		case creation.PhaseCopying:
			tracker.Record(s.BytesCopied, time.Now())
			bar.Describe(copyDescription(tracker, s))
		case creation.PhaseFailed:
			tracker.Reset()
			bar.Describe("Failed")
		case creation.PhaseCompleted:
			tracker.Reset()
			bar.Describe("Done")
		default:
			tracker.Reset()
			bar.Describe(s.Phase.String())
		}
	}

	machine := creation.NewMachine(utility, images, repo, publish, cfg.VolumeLabel, cfg.SettleDelay, cfg.FSMMaxRetries)

	resp, err := machine.Run(ctx, manager, &creation.Request{Image: *image, Drive: drive})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return errors.Wrap(err, "creation failed")
	}

	fmt.Printf("Created installer USB on %s (%d bytes copied)\n", drive.DevicePath, resp.BytesCopied)

	if createEject {
		if err := utility.Eject(ctx, drive.DevicePath); err != nil {
			return errors.Wrap(err, "eject failed")
		}
		fmt.Println("Drive ejected; safe to remove.")
	}
	return nil
}

func findDrive(drives []disk.Drive, id string) (disk.Drive, bool) {
	for _, d := range drives {
		if d.ID == id {
			return d, true
		}
	}
	return disk.Drive{}, false
}

func newCreateBar(name string) *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetDescription("Preparing "+name),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(15),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func copyDescription(tracker *creation.StatsTracker, s creation.State) string {
	desc := "Copying " + s.CurrentFile
	speed, ok := tracker.Speed()
	if !ok {
		return desc
	}
	desc += " " + creation.FormatSpeed(speed)
	if eta, ok := tracker.ETA(s.TotalBytes); ok {
		desc += ", " + creation.FormatETA(eta)
	}
	return desc
}
