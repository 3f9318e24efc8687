package creation

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const (
	// wholeCopyThreshold is the largest file copied in a single pass with no
	// intermediate progress.
	wholeCopyThreshold = 50_000_000
	// copyChunkSize is the read/write unit for streamed copies.
	copyChunkSize = 1 << 20
	// progressInterval bounds how often the progress callback fires.
	progressInterval = 100 * time.Millisecond
	// copyPhaseCap reserves the top of the copy range for the finalize step.
	copyPhaseCap = 0.99
)

// ProgressFunc receives the bytes written so far for the current file and the
// capped copy-phase fraction across all files of the run.
type ProgressFunc func(written int64, fraction float64)

// usesStreamingCopy reports whether a file is copied in chunks with progress
// rather than in one pass.
func usesStreamingCopy(fileSize int64) bool {
	return fileSize > wholeCopyThreshold
}

// CopyFile copies one file from the mounted image into the destination tree.
// copiedBefore is the byte total of files already copied this run and
// totalSize the byte total of the whole run; both feed the progress fraction.
// An existing file at dst is replaced, never merged.
func CopyFile(src, dst string, fileSize, copiedBefore, totalSize int64, onProgress ProgressFunc) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return copyFailed(dst, err)
	}
	if _, err := os.Lstat(dst); err == nil {
		if err := os.Remove(dst); err != nil {
			return copyFailed(dst, err)
		}
	}

	if !usesStreamingCopy(fileSize) {
		return copyWhole(src, dst)
	}
	return copyChunked(src, dst, copiedBefore, totalSize, onProgress)
}

func copyWhole(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return copyFailed(src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return copyFailed(dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return copyFailed(src, err)
	}
	if err := out.Close(); err != nil {
		return copyFailed(dst, err)
	}
	return nil
}

func copyChunked(src, dst string, copiedBefore, totalSize int64, onProgress ProgressFunc) error {
	in, err := os.Open(src)
	if err != nil {
		return copyFailed(src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return copyFailed(dst, err)
	}

	buf := make([]byte, copyChunkSize)
	var written int64
	var lastUpdate time.Time

	for {
		n, rerr := in.Read(buf)
		if n < 0 {
			out.Close()
			return copyFailed(src, fmt.Errorf("negative read of %d bytes", n))
		}
		if n > 0 {
			w, werr := out.Write(buf[:n])
			if werr != nil {
				out.Close()
				return copyFailed(dst, werr)
			}
			if w != n {
				out.Close()
				return copyFailed(dst, fmt.Errorf("short write: %d of %d bytes", w, n))
			}
			written += int64(w)

			if onProgress != nil && time.Since(lastUpdate) >= progressInterval {
				onProgress(written, copyFraction(copiedBefore+written, totalSize))
				lastUpdate = time.Now()
			}
		}
		if rerr == io.EOF || (rerr == nil && n == 0) {
			break
		}
		if rerr != nil {
			out.Close()
			return copyFailed(src, rerr)
		}
	}

	if err := out.Close(); err != nil {
		return copyFailed(dst, err)
	}
	return nil
}

// copyFraction is the shared copy-phase progress formula, capped so the
// displayed copy progress never hits 100% before finalize runs.
func copyFraction(copied, total int64) float64 {
	if total <= 0 {
		return copyPhaseCap
	}
	f := float64(copied) / float64(total)
	if f > copyPhaseCap {
		f = copyPhaseCap
	}
	return f
}
