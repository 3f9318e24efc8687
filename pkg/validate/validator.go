// Package validate enforces pre-run checks on the selected image and drive.
package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/usbforge/usbforge/pkg/creation"
	"github.com/usbforge/usbforge/pkg/disk"
)

// Validator checks a source image and target drive before a run starts, so
// predictable problems surface before any destructive step.
type Validator struct {
	minDriveSize int64
}

// NewValidator creates a validator. minDriveSize matches the enumeration
// filter so a stale drive snapshot cannot slip through.
func NewValidator(minDriveSize int64) *Validator {
	return &Validator{minDriveSize: minDriveSize}
}

// ValidateImage checks that path points at a usable ISO and returns its
// selection metadata.
func (v *Validator) ValidateImage(path string) (*creation.ImageInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", creation.ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("%w: %v", creation.ErrInvalidImage, err)
	}
	if info.IsDir() || !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", creation.ErrInvalidImage, path)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", creation.ErrInvalidImage, path)
	}
	if !strings.EqualFold(filepath.Ext(path), ".iso") {
		return nil, fmt.Errorf("%w: %s is not an ISO image", creation.ErrInvalidImage, path)
	}

	return &creation.ImageInfo{
		Path: path,
		Name: filepath.Base(path),
		Size: info.Size(),
	}, nil
}

// ValidateDrive checks that the target drive can hold the image contents.
func (v *Validator) ValidateDrive(d disk.Drive, imageSize int64) error {
	if !d.Removable || d.Size < v.minDriveSize {
		return fmt.Errorf("%w: %s is not a usable removable drive", creation.ErrInvalidImage, d.ID)
	}
	if imageSize > d.Size {
		return fmt.Errorf("%w: image needs %d bytes, drive holds %d", creation.ErrInsufficientSpace, imageSize, d.Size)
	}
	return nil
}
