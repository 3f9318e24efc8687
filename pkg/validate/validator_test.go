package validate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/usbforge/usbforge/pkg/creation"
	"github.com/usbforge/usbforge/pkg/disk"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestValidateImage(t *testing.T) {
	dir := t.TempDir()

	isoPath := filepath.Join(dir, "Win11_23H2.iso")
	writeFile(t, isoPath, 1024)

	emptyPath := filepath.Join(dir, "empty.iso")
	writeFile(t, emptyPath, 0)

	txtPath := filepath.Join(dir, "notes.txt")
	writeFile(t, txtPath, 10)

	v := NewValidator(disk.MinDriveSize)

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"valid iso", isoPath, nil},
		{"missing file", filepath.Join(dir, "missing.iso"), creation.ErrInvalidImage},
		{"empty file", emptyPath, creation.ErrInvalidImage},
		{"wrong extension", txtPath, creation.ErrInvalidImage},
		{"directory", dir, creation.ErrInvalidImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := v.ValidateImage(tt.path)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if img.Name != "Win11_23H2.iso" || img.Size != 1024 {
					t.Errorf("unexpected image info: %+v", img)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateImageCaseInsensitiveExtension(t *testing.T) {
	dir := t.TempDir()
	isoPath := filepath.Join(dir, "WIN10.ISO")
	writeFile(t, isoPath, 512)

	v := NewValidator(disk.MinDriveSize)
	if _, err := v.ValidateImage(isoPath); err != nil {
		t.Errorf("uppercase extension should validate: %v", err)
	}
}

func TestValidateDrive(t *testing.T) {
	v := NewValidator(disk.MinDriveSize)

	good := disk.Drive{ID: "disk4", DevicePath: "/dev/disk4", Size: 16_000_000_000, Removable: true}

	if err := v.ValidateDrive(good, 6_000_000_000); err != nil {
		t.Errorf("unexpected error for fitting image: %v", err)
	}

	if err := v.ValidateDrive(good, 20_000_000_000); !errors.Is(err, creation.ErrInsufficientSpace) {
		t.Errorf("expected ErrInsufficientSpace, got %v", err)
	}

	small := disk.Drive{ID: "disk3", Size: 1_000_000_000, Removable: true}
	if err := v.ValidateDrive(small, 1); !errors.Is(err, creation.ErrInvalidImage) {
		t.Errorf("expected rejection of undersized drive, got %v", err)
	}

	fixed := disk.Drive{ID: "disk0", Size: 500_000_000_000, Removable: false}
	if err := v.ValidateDrive(fixed, 1); err == nil {
		t.Error("expected rejection of non-removable drive")
	}
}
