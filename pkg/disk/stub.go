// +build !darwin

package disk

import (
	"context"
	"fmt"
	"runtime"
)

// StubUtility is a no-op disk utility for platforms without an implementation.
type StubUtility struct{}

// NewUtility creates a stub utility on unsupported platforms.
func NewUtility() (Utility, error) {
	return &StubUtility{}, nil
}

func (u *StubUtility) ListRemovableDrives(ctx context.Context) ([]Drive, error) {
	return nil, fmt.Errorf("disk utility not supported on %s", runtime.GOOS)
}

func (u *StubUtility) FormatExFAT(ctx context.Context, devicePath, volumeLabel string) (string, error) {
	return "", fmt.Errorf("disk utility not supported on %s", runtime.GOOS)
}

func (u *StubUtility) FormatFAT32(ctx context.Context, devicePath, volumeLabel string) (string, error) {
	return "", fmt.Errorf("disk utility not supported on %s", runtime.GOOS)
}

func (u *StubUtility) Mount(ctx context.Context, devicePath string) (string, error) {
	return "", fmt.Errorf("disk utility not supported on %s", runtime.GOOS)
}

func (u *StubUtility) Unmount(ctx context.Context, devicePath string) error {
	return fmt.Errorf("disk utility not supported on %s", runtime.GOOS)
}

func (u *StubUtility) Eject(ctx context.Context, devicePath string) error {
	return fmt.Errorf("disk utility not supported on %s", runtime.GOOS)
}

func (u *StubUtility) Sync(ctx context.Context) error {
	return fmt.Errorf("disk utility not supported on %s", runtime.GOOS)
}

// StubImageMounter is a no-op image mounter for unsupported platforms.
type StubImageMounter struct{}

// NewImageMounter creates a stub image mounter on unsupported platforms.
func NewImageMounter() (ImageMounter, error) {
	return &StubImageMounter{}, nil
}

func (m *StubImageMounter) MountImage(ctx context.Context, imagePath string) (string, error) {
	return "", fmt.Errorf("image mounting not supported on %s", runtime.GOOS)
}

func (m *StubImageMounter) UnmountImage(ctx context.Context, mountPoint string) error {
	return fmt.Errorf("image mounting not supported on %s", runtime.GOOS)
}
