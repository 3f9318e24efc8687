package creation

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/usbforge/usbforge/pkg/disk"
	"github.com/usbforge/usbforge/pkg/errors"
)

// FAT32MaxFileSize is the FAT32 per-file ceiling. Any file above it forces
// the exFAT layout because FAT32 cannot store it at all.
const FAT32MaxFileSize = 4_294_967_295

// EnumerateFiles lists every visible regular file under root with its size
// and root-relative path. Hidden entries are skipped, as are entries whose
// metadata cannot be read; the call fails only if the root itself cannot be
// walked.
func EnumerateFiles(root string) ([]disk.FileEntry, error) {
	var files []disk.FileEntry

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// Best-effort enumeration below the root.
			return nil
		}
		if path == root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		files = append(files, disk.FileEntry{RelPath: rel, Size: info.Size()})
		return nil
	})
	if walkErr != nil {
		return nil, errors.Wrap(walkErr, "failed to scan image contents")
	}
	return files, nil
}

// HasOversizedFile reports whether any entry exceeds the given per-file size
// ceiling. A file of exactly the ceiling still fits.
func HasOversizedFile(files []disk.FileEntry, ceiling int64) bool {
	for _, f := range files {
		if f.Size > ceiling {
			return true
		}
	}
	return false
}
