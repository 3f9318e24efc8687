package creation

import (
	"errors"
	"fmt"
)

// Pipeline failure taxonomy. Every terminal Failed state wraps one of these
// sentinels; the message surfaces to the presentation layer verbatim.
var (
	ErrMountFailed       = errors.New("failed to mount the ISO file")
	ErrFormatFailed      = errors.New("failed to format the drive")
	ErrCopyFailed        = errors.New("failed to copy files")
	ErrInsufficientSpace = errors.New("not enough space on the target drive")
	ErrInvalidImage      = errors.New("the selected file is not a usable disk image")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrSplitFailed       = errors.New("failed to split the installer image")

	// ErrRunInProgress rejects a second Start while a run is non-terminal.
	ErrRunInProgress = errors.New("a creation run is already in progress")
)

// copyFailed ties a file-level copy failure to ErrCopyFailed with the
// offending path and underlying cause.
func copyFailed(path string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrCopyFailed, path, cause)
}
