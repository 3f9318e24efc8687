package disk

import "context"

// Drive is an immutable snapshot of a removable storage device. A rescan
// always produces fresh values; callers compare drives by ID, never by
// object identity.
type Drive struct {
	ID         string
	Name       string
	DevicePath string
	Size       int64
	Removable  bool
}

// FileEntry is one regular file under a mounted image root, with its path
// relative to that root.
type FileEntry struct {
	RelPath string
	Size    int64
}

// Utility abstracts the OS disk tooling driven by the creation pipeline.
type Utility interface {
	// ListRemovableDrives returns removable devices large enough to hold a
	// Windows installer (MinDriveSize).
	ListRemovableDrives(ctx context.Context) ([]Drive, error)

	// FormatExFAT erases the whole device as exFAT on a GPT scheme and
	// returns the tool's raw diagnostic output. The device is unmounted
	// before erasing.
	FormatExFAT(ctx context.Context, devicePath, volumeLabel string) (string, error)

	// FormatFAT32 erases the whole device as FAT32 (MS-DOS) on an MBR
	// scheme and returns the tool's raw diagnostic output.
	FormatFAT32(ctx context.Context, devicePath, volumeLabel string) (string, error)

	// Mount mounts a device or partition and returns its mount point.
	Mount(ctx context.Context, devicePath string) (string, error)

	// Unmount unmounts a device or partition by device path.
	Unmount(ctx context.Context, devicePath string) error

	// Eject removes the whole device from the system.
	Eject(ctx context.Context, devicePath string) error

	// Sync flushes pending writes to stable storage.
	Sync(ctx context.Context) error
}

// ImageMounter abstracts attaching a disk image file.
type ImageMounter interface {
	// MountImage attaches an image and returns the mount point of its
	// primary volume.
	MountImage(ctx context.Context, imagePath string) (string, error)

	// UnmountImage detaches a previously attached image by mount point.
	UnmountImage(ctx context.Context, mountPoint string) error
}
