package creation

import "github.com/usbforge/usbforge/pkg/disk"

// ImageInfo describes the source image selected for a run. It is created
// once at selection time and read-only afterwards.
type ImageInfo struct {
	Path string
	Name string
	Size int64
}

// Request is the FSM input: the source image and target drive for one run.
// Both are owned by the caller and only borrowed for the run's duration.
type Request struct {
	Image ImageInfo
	Drive disk.Drive
}

// Response is the FSM output (accumulated across transitions)
type Response struct {
	// From mount_image
	RunID       int64
	SourceMount string

	// From inspect
	Files              []disk.FileEntry
	TotalBytes         int64
	UseLargeFilesystem bool

	// From remount
	TargetMount string

	// From copy
	BytesCopied int64

	// From complete/failed
	Status       string
	ErrorMessage string
}

// State names
const (
	StateMountImage = "mount_image"
	StateInspect    = "inspect"
	StateFormat     = "format"
	StateRemount    = "remount"
	StateCopy       = "copy"
	StateFinalize   = "finalize"
	StateComplete   = "complete"
	StateFailed     = "failed"
)
