// +build darwin

package disk

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/usbforge/usbforge/pkg/errors"
)

// SystemUtility implements Utility on macOS by shelling out to diskutil.
type SystemUtility struct{}

// NewUtility creates the macOS disk utility.
func NewUtility() (Utility, error) {
	return &SystemUtility{}, nil
}

func (u *SystemUtility) ListRemovableDrives(ctx context.Context) ([]Drive, error) {
	out, err := exec.CommandContext(ctx, "diskutil", "list", "-plist", "physical").Output()
	if err != nil {
		slog.Error("diskutil_list_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list disks")
	}

	parts, err := parseSystemPartitions(out)
	if err != nil {
		return nil, err
	}

	var drives []Drive
	for _, id := range parts.WholeDisks {
		info, err := u.diskInfo(ctx, "/dev/"+id)
		if err != nil {
			// Device may have detached between list and info.
			slog.Warn("disk_info_failed", "disk", id, "error", err)
			continue
		}
		if drive, ok := driveFromInfo(info); ok {
			drives = append(drives, drive)
		}
	}

	slog.Info("drives_enumerated", "candidates", len(parts.WholeDisks), "removable", len(drives))
	return drives, nil
}

func (u *SystemUtility) FormatExFAT(ctx context.Context, devicePath, volumeLabel string) (string, error) {
	return u.eraseDisk(ctx, devicePath, "ExFAT", "GPT", volumeLabel)
}

func (u *SystemUtility) FormatFAT32(ctx context.Context, devicePath, volumeLabel string) (string, error) {
	return u.eraseDisk(ctx, devicePath, "MS-DOS", "MBR", volumeLabel)
}

func (u *SystemUtility) eraseDisk(ctx context.Context, devicePath, filesystem, scheme, volumeLabel string) (string, error) {
	slog.Info("erase_disk_start", "device", devicePath, "filesystem", filesystem, "scheme", scheme, "label", volumeLabel)

	// eraseDisk refuses a device with mounted volumes; unmount first and
	// ignore the error when nothing was mounted.
	if out, err := exec.CommandContext(ctx, "diskutil", "unmountDisk", "force", devicePath).CombinedOutput(); err != nil {
		slog.Warn("unmount_disk_before_erase_failed", "device", devicePath, "output", string(out))
	}

	out, err := exec.CommandContext(ctx, "diskutil", "eraseDisk", filesystem, volumeLabel, scheme, devicePath).CombinedOutput()
	diagnostic := string(out)
	if err != nil {
		slog.Error("erase_disk_failed", "device", devicePath, "filesystem", filesystem, "error", err)
		return diagnostic, errors.Wrap(err, "failed to erase disk")
	}

	slog.Info("erase_disk_complete", "device", devicePath, "filesystem", filesystem)
	return diagnostic, nil
}

func (u *SystemUtility) Mount(ctx context.Context, devicePath string) (string, error) {
	slog.Info("mount_device", "device", devicePath)

	if out, err := exec.CommandContext(ctx, "diskutil", "mount", devicePath).CombinedOutput(); err != nil {
		slog.Error("mount_failed", "device", devicePath, "output", string(out), "error", err)
		return "", errors.Wrap(err, "failed to mount device")
	}

	info, err := u.diskInfo(ctx, devicePath)
	if err != nil {
		return "", err
	}
	if info.MountPoint == "" {
		slog.Error("mount_point_missing", "device", devicePath)
		return "", fmt.Errorf("device %s reports no mount point after mount", devicePath)
	}

	slog.Info("mount_complete", "device", devicePath, "mount_point", info.MountPoint)
	return info.MountPoint, nil
}

func (u *SystemUtility) Unmount(ctx context.Context, devicePath string) error {
	slog.Info("unmount_device", "device", devicePath)

	if out, err := exec.CommandContext(ctx, "diskutil", "unmount", devicePath).CombinedOutput(); err != nil {
		slog.Error("unmount_failed", "device", devicePath, "output", string(out), "error", err)
		return errors.Wrap(err, "failed to unmount device")
	}
	return nil
}

func (u *SystemUtility) Eject(ctx context.Context, devicePath string) error {
	slog.Info("eject_device", "device", devicePath)

	if out, err := exec.CommandContext(ctx, "diskutil", "eject", devicePath).CombinedOutput(); err != nil {
		slog.Error("eject_failed", "device", devicePath, "output", string(out), "error", err)
		return errors.Wrap(err, "failed to eject device")
	}
	return nil
}

func (u *SystemUtility) Sync(ctx context.Context) error {
	if err := exec.CommandContext(ctx, "sync").Run(); err != nil {
		slog.Error("sync_failed", "error", err)
		return errors.Wrap(err, "failed to flush writes")
	}
	return nil
}

func (u *SystemUtility) diskInfo(ctx context.Context, devicePath string) (*DiskInfo, error) {
	out, err := exec.CommandContext(ctx, "diskutil", "info", "-plist", devicePath).Output()
	if err != nil {
		return nil, errors.Wrap(err, "failed to query disk info")
	}
	return parseDiskInfo(out)
}

// SystemImageMounter implements ImageMounter on macOS via hdiutil.
type SystemImageMounter struct{}

// NewImageMounter creates the macOS image mount service.
func NewImageMounter() (ImageMounter, error) {
	return &SystemImageMounter{}, nil
}

func (m *SystemImageMounter) MountImage(ctx context.Context, imagePath string) (string, error) {
	slog.Info("attach_image", "image", imagePath)

	out, err := exec.CommandContext(ctx, "hdiutil", "attach", "-plist", "-nobrowse", "-readonly", imagePath).Output()
	if err != nil {
		slog.Error("attach_image_failed", "image", imagePath, "error", err)
		return "", errors.Wrap(err, "failed to attach image")
	}

	info, err := parseAttachInfo(out)
	if err != nil {
		return "", err
	}
	mountPoint := mountPointFromAttach(info)
	if mountPoint == "" {
		slog.Error("attach_no_mountable_volume", "image", imagePath)
		return "", fmt.Errorf("image %s contains no mountable volume", imagePath)
	}

	slog.Info("attach_image_complete", "image", imagePath, "mount_point", mountPoint)
	return mountPoint, nil
}

func (m *SystemImageMounter) UnmountImage(ctx context.Context, mountPoint string) error {
	slog.Info("detach_image", "mount_point", mountPoint)

	if out, err := exec.CommandContext(ctx, "hdiutil", "detach", mountPoint).CombinedOutput(); err != nil {
		slog.Error("detach_image_failed", "mount_point", mountPoint, "output", string(out), "error", err)
		return errors.Wrap(err, "failed to detach image")
	}
	return nil
}
