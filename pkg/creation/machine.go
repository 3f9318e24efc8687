// Package creation implements the USB creation pipeline workflow.
// It orchestrates mounting the source image, choosing and applying the
// target filesystem layout, streaming the installer files onto the drive,
// and finalizing, using the superfly/fsm library.
package creation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/superfly/fsm"
	"github.com/usbforge/usbforge/pkg/db"
	"github.com/usbforge/usbforge/pkg/disk"
	"github.com/usbforge/usbforge/pkg/errors"
)

// DefaultSettleDelay is how long the pipeline waits after formatting before
// mounting the new data partition. Formatting invalidates the prior mount
// state and the device needs time to re-present.
const DefaultSettleDelay = 2 * time.Second

// PublishFunc receives every pipeline state transition. It is invoked from
// the orchestration flow and never concurrently with itself; marshaling onto
// a UI thread is the caller's responsibility.
type PublishFunc func(State)

// Machine holds dependencies for the creation pipeline transitions.
type Machine struct {
	utility     disk.Utility
	images      disk.ImageMounter
	repo        *db.Repository
	publish     PublishFunc
	volumeLabel string
	settleDelay time.Duration
	maxRetries  int

	running atomic.Bool

	// The FSM accepts a given name once per manager, so registration happens
	// on the first Run and later runs reuse the start function. A Machine is
	// therefore bound to the first manager it runs against.
	registerOnce sync.Once
	start        fsm.Start[Request, Response]
	registerErr  error
}

// NewMachine creates a creation pipeline machine. repo may be nil when run
// history is not wanted; publish may be nil for headless use.
func NewMachine(
	utility disk.Utility,
	images disk.ImageMounter,
	repo *db.Repository,
	publish PublishFunc,
	volumeLabel string,
	settleDelay time.Duration,
	maxRetries int,
) *Machine {
	if settleDelay <= 0 {
		settleDelay = DefaultSettleDelay
	}
	return &Machine{
		utility:     utility,
		images:      images,
		repo:        repo,
		publish:     publish,
		volumeLabel: volumeLabel,
		settleDelay: settleDelay,
		maxRetries:  maxRetries,
	}
}

// Register registers the creation pipeline FSM.
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[Request, Response], fsm.Resume, error) {
	start, resume, err := fsm.Register[Request, Response](manager, "usb-create").
		Start(StateMountImage, m.handleMountImage).
		To(StateInspect, m.handleInspect).
		To(StateFormat, m.handleFormat).
		To(StateRemount, m.handleRemount).
		To(StateCopy, m.handleCopy).
		To(StateFinalize, m.handleFinalize).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}

// Run drives one creation run to a terminal state. A second call while a run
// is in flight returns ErrRunInProgress; after a terminal result the machine
// can run again against the same manager. The response is valid in either
// terminal outcome.
func (m *Machine) Run(ctx context.Context, manager *fsm.Manager, req *Request) (*Response, error) {
	if !m.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer m.running.Store(false)

	m.registerOnce.Do(func() {
		m.start, _, m.registerErr = m.Register(ctx, manager)
	})
	if m.registerErr != nil {
		return nil, m.registerErr
	}

	resp := &Response{}
	version, err := m.start(ctx, req.Drive.ID, fsm.NewRequest(req, resp))
	if err != nil {
		return resp, errors.Wrap(err, "FSM start failed")
	}

	if err := manager.Wait(ctx, version); err != nil {
		return resp, err
	}
	return resp, nil
}

// Reset publishes the Idle state once the caller has acknowledged a terminal
// result and wants to begin again.
func (m *Machine) Reset() {
	m.emit(Idle())
}

func (m *Machine) emit(s State) {
	if m.publish != nil {
		m.publish(s)
	}
}
