package creation

// Phase identifies the active variant of a State.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseMounting
	PhaseFormatting
	PhaseCopying
	PhaseSplitting
	PhaseFinalizing
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseMounting:
		return "mounting"
	case PhaseFormatting:
		return "formatting"
	case PhaseCopying:
		return "copying"
	case PhaseSplitting:
		return "splitting"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// State is the value published to the presentation layer at each pipeline
// transition. Payload fields carry data only for the phase that owns them:
// Progress, CurrentFile, BytesCopied and TotalBytes during PhaseCopying,
// Message during PhaseFailed. Progress is the within-copy-phase fraction,
// not the overall fraction.
type State struct {
	Phase       Phase
	Progress    float64
	CurrentFile string
	BytesCopied int64
	TotalBytes  int64
	Message     string
}

func Idle() State       { return State{Phase: PhaseIdle} }
func Mounting() State   { return State{Phase: PhaseMounting} }
func Formatting() State { return State{Phase: PhaseFormatting} }
func Splitting() State  { return State{Phase: PhaseSplitting} }
func Finalizing() State { return State{Phase: PhaseFinalizing} }
func Completed() State  { return State{Phase: PhaseCompleted} }

func Copying(progress float64, currentFile string, bytesCopied, totalBytes int64) State {
	return State{
		Phase:       PhaseCopying,
		Progress:    progress,
		CurrentFile: currentFile,
		BytesCopied: bytesCopied,
		TotalBytes:  totalBytes,
	}
}

func Failed(message string) State {
	return State{Phase: PhaseFailed, Message: message}
}

// Terminal reports whether no further transitions follow this state short of
// an explicit reset back to Idle.
func (s State) Terminal() bool {
	return s.Phase == PhaseCompleted || s.Phase == PhaseFailed
}

// OverallProgress maps a State onto the normalized [0,1] scale shown to the
// user. Copying dominates wall-clock time on real images and owns 75% of the
// range; the fixed-cost steps keep their historical weights.
func OverallProgress(s State) float64 {
	switch s.Phase {
	case PhaseMounting:
		return 0.10
	case PhaseFormatting:
		return 0.05
	case PhaseCopying:
		return 0.10 + 0.75*s.Progress
	case PhaseSplitting:
		return 0.90
	case PhaseFinalizing:
		return 0.95
	case PhaseCompleted:
		return 1.0
	}
	// Idle and Failed
	return 0
}
