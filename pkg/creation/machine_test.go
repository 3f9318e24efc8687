package creation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/superfly/fsm"
	"github.com/usbforge/usbforge/pkg/disk"
)

type fakeUtility struct {
	mu sync.Mutex

	targetDir    string
	formatCalls  []string
	formatOutput string
	formatErr    error
	mountErr     error
	mounted      []string
	synced       int
}

func (u *fakeUtility) ListRemovableDrives(ctx context.Context) ([]disk.Drive, error) {
	return nil, nil
}

func (u *fakeUtility) FormatExFAT(ctx context.Context, devicePath, label string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.formatCalls = append(u.formatCalls, "exfat")
	return u.formatOutput, u.formatErr
}

func (u *fakeUtility) FormatFAT32(ctx context.Context, devicePath, label string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.formatCalls = append(u.formatCalls, "fat32")
	return u.formatOutput, u.formatErr
}

func (u *fakeUtility) Mount(ctx context.Context, partition string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.mountErr != nil {
		return "", u.mountErr
	}
	u.mounted = append(u.mounted, partition)
	return u.targetDir, nil
}

func (u *fakeUtility) Unmount(ctx context.Context, devicePath string) error { return nil }

func (u *fakeUtility) Eject(ctx context.Context, devicePath string) error { return nil }

func (u *fakeUtility) Sync(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.synced++
	return nil
}

type fakeImageMounter struct {
	mu sync.Mutex

	sourceDir string
	mountErr  error
	mounts    int
	unmounts  int
}

func (m *fakeImageMounter) MountImage(ctx context.Context, imagePath string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mountErr != nil {
		return "", m.mountErr
	}
	m.mounts++
	return m.sourceDir, nil
}

func (m *fakeImageMounter) UnmountImage(ctx context.Context, mountPoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unmounts++
	return nil
}

func (m *fakeImageMounter) balanced() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounts == m.unmounts
}

// stateRecorder captures published states; handlers run on the FSM's
// goroutine, so access is guarded.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) publish(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *stateRecorder) phases() []Phase {
	var phases []Phase
	for _, s := range r.snapshot() {
		if len(phases) == 0 || phases[len(phases)-1] != s.Phase {
			phases = append(phases, s.Phase)
		}
	}
	return phases
}

func newTestManager(t *testing.T) *fsm.Manager {
	t.Helper()
	manager, err := fsm.New(fsm.Config{DBPath: filepath.Join(t.TempDir(), "fsm.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { manager.Shutdown(5 * time.Second) })
	return manager
}

func testDrive() disk.Drive {
	return disk.Drive{
		ID:         "disk2",
		Name:       "Test USB",
		DevicePath: "/dev/disk2",
		Size:       8_000_000_000,
		Removable:  true,
	}
}

func testRequest() *Request {
	return &Request{
		Image: ImageInfo{Path: "/tmp/win11.iso", Name: "win11.iso", Size: 1000},
		Drive: testDrive(),
	}
}

func TestRunSmallFilesCompletesOnFAT32(t *testing.T) {
	sourceDir := t.TempDir()
	targetDir := t.TempDir()
	writeTree(t, sourceDir, map[string]int{
		"bootmgr":             100,
		"boot/bcd":            50,
		"sources/install.wim": 4000,
	})

	utility := &fakeUtility{targetDir: targetDir}
	images := &fakeImageMounter{sourceDir: sourceDir}
	recorder := &stateRecorder{}

	m := NewMachine(utility, images, nil, recorder.publish, "WINUSB", time.Millisecond, 5)
	resp, err := m.Run(context.Background(), newTestManager(t), testRequest())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if resp.UseLargeFilesystem {
		t.Error("small files should not select the large filesystem layout")
	}
	if len(utility.formatCalls) != 1 || utility.formatCalls[0] != "fat32" {
		t.Errorf("format calls = %v, want exactly one fat32", utility.formatCalls)
	}
	if len(utility.mounted) != 1 || utility.mounted[0] != "/dev/disk2s1" {
		t.Errorf("mounted partitions = %v, want /dev/disk2s1", utility.mounted)
	}
	if utility.synced == 0 {
		t.Error("finalize never flushed the drive")
	}
	if resp.BytesCopied != 4150 {
		t.Errorf("bytes copied = %d, want 4150", resp.BytesCopied)
	}
	if !images.balanced() {
		t.Error("source image left mounted after completion")
	}

	for _, rel := range []string{"bootmgr", "boot/bcd", "sources/install.wim"} {
		if _, err := os.Stat(filepath.Join(targetDir, filepath.FromSlash(rel))); err != nil {
			t.Errorf("file %q missing on target: %v", rel, err)
		}
	}

	wantPhases := []Phase{PhaseMounting, PhaseFormatting, PhaseCopying, PhaseFinalizing, PhaseCompleted}
	gotPhases := recorder.phases()
	if len(gotPhases) != len(wantPhases) {
		t.Fatalf("phase sequence = %v, want %v", gotPhases, wantPhases)
	}
	for i := range wantPhases {
		if gotPhases[i] != wantPhases[i] {
			t.Fatalf("phase sequence = %v, want %v", gotPhases, wantPhases)
		}
	}

	// Within the copy phase the published progress only moves forward and
	// stays inside (0, 0.99].
	prev := 0.0
	var sawFinal bool
	for _, s := range recorder.snapshot() {
		if s.Phase != PhaseCopying {
			continue
		}
		if s.Progress < 0.01-1e-9 || s.Progress > copyPhaseCap+1e-9 {
			t.Errorf("copy progress %v outside (0, %v]", s.Progress, copyPhaseCap)
		}
		if s.Progress < prev {
			t.Errorf("copy progress decreased: %v after %v", s.Progress, prev)
		}
		prev = s.Progress
		if s.Progress >= copyPhaseCap-1e-9 {
			sawFinal = true
		}
	}
	if !sawFinal {
		t.Error("copy phase never published its final capped progress")
	}
}

func TestRunOversizedFileSelectsExFAT(t *testing.T) {
	sourceDir := t.TempDir()

	// A sparse file over the FAT32 per-file ceiling forces the exFAT layout.
	f, err := os.Create(filepath.Join(sourceDir, "install.wim"))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(FAT32MaxFileSize + 1); err != nil {
		f.Close()
		t.Skipf("filesystem does not support sparse files: %v", err)
	}
	f.Close()

	// Failing the format keeps the test from streaming gigabytes of zeros;
	// the layout decision has already been made by then.
	utility := &fakeUtility{formatErr: fmt.Errorf("device busy")}
	images := &fakeImageMounter{sourceDir: sourceDir}
	recorder := &stateRecorder{}

	m := NewMachine(utility, images, nil, recorder.publish, "WINUSB", time.Millisecond, 5)
	resp, _ := m.Run(context.Background(), newTestManager(t), testRequest())

	if !resp.UseLargeFilesystem {
		t.Error("oversized file should select the large filesystem layout")
	}
	if len(utility.formatCalls) != 1 || utility.formatCalls[0] != "exfat" {
		t.Errorf("format calls = %v, want exactly one exfat", utility.formatCalls)
	}

	states := recorder.snapshot()
	if len(states) == 0 {
		t.Fatal("no states published")
	}
	last := states[len(states)-1]
	if last.Phase != PhaseFailed {
		t.Errorf("final phase = %v, want failed", last.Phase)
	}
	if !strings.Contains(last.Message, "failed to format the drive") {
		t.Errorf("failure message = %q, want format failure wording", last.Message)
	}
	for _, s := range states {
		if s.Phase == PhaseCopying {
			t.Error("copying state published after a format failure")
		}
	}
	if !images.balanced() {
		t.Error("source image left mounted after failure")
	}
}

func TestRunFormatDiagnosticFailure(t *testing.T) {
	sourceDir := t.TempDir()
	writeTree(t, sourceDir, map[string]int{"bootmgr": 10})

	// Zero exit but failure text in the output still fails the run.
	utility := &fakeUtility{formatOutput: "Started erase\nError: -69877: Couldn't open device"}
	images := &fakeImageMounter{sourceDir: sourceDir}
	recorder := &stateRecorder{}

	m := NewMachine(utility, images, nil, recorder.publish, "WINUSB", time.Millisecond, 5)
	resp, _ := m.Run(context.Background(), newTestManager(t), testRequest())

	if !strings.Contains(resp.ErrorMessage, "failed to format the drive") {
		t.Errorf("error message = %q, want format failure wording", resp.ErrorMessage)
	}

	states := recorder.snapshot()
	if len(states) == 0 || states[len(states)-1].Phase != PhaseFailed {
		t.Fatalf("states = %v, want a terminal failed phase", recorder.phases())
	}
}

func TestRunImageMountFailure(t *testing.T) {
	utility := &fakeUtility{targetDir: t.TempDir()}
	images := &fakeImageMounter{mountErr: fmt.Errorf("hdiutil: attach failed")}
	recorder := &stateRecorder{}

	m := NewMachine(utility, images, nil, recorder.publish, "WINUSB", time.Millisecond, 5)
	resp, _ := m.Run(context.Background(), newTestManager(t), testRequest())

	if !strings.Contains(resp.ErrorMessage, "failed to mount the ISO file") {
		t.Errorf("error message = %q, want mount failure wording", resp.ErrorMessage)
	}
	if len(utility.formatCalls) != 0 {
		t.Errorf("format attempted after a mount failure: %v", utility.formatCalls)
	}
	for _, p := range recorder.phases() {
		if p == PhaseFormatting || p == PhaseCopying {
			t.Errorf("phase %v published after a mount failure", p)
		}
	}

	states := recorder.snapshot()
	if len(states) == 0 || states[len(states)-1].Phase != PhaseFailed {
		t.Fatalf("states = %v, want a terminal failed phase", recorder.phases())
	}
}

func TestRunAgainAfterReset(t *testing.T) {
	sourceDir := t.TempDir()
	targetDir := t.TempDir()
	writeTree(t, sourceDir, map[string]int{"bootmgr": 100})

	utility := &fakeUtility{targetDir: targetDir}
	images := &fakeImageMounter{sourceDir: sourceDir}
	recorder := &stateRecorder{}
	manager := newTestManager(t)

	m := NewMachine(utility, images, nil, recorder.publish, "WINUSB", time.Millisecond, 5)

	if _, err := m.Run(context.Background(), manager, testRequest()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	m.Reset()

	resp, err := m.Run(context.Background(), manager, testRequest())
	if err != nil {
		t.Fatalf("second run after reset failed: %v", err)
	}
	if resp.BytesCopied != 100 {
		t.Errorf("second run copied %d bytes, want 100", resp.BytesCopied)
	}

	if len(utility.formatCalls) != 2 {
		t.Errorf("format calls = %v, want one per run", utility.formatCalls)
	}
	if !images.balanced() {
		t.Error("source image left mounted after the second run")
	}

	// Idle sits between the two terminal Completed states.
	var sawIdleAfterCompleted, sawSecondCompleted bool
	var completed int
	for _, s := range recorder.snapshot() {
		switch s.Phase {
		case PhaseCompleted:
			completed++
			if completed == 2 && sawIdleAfterCompleted {
				sawSecondCompleted = true
			}
		case PhaseIdle:
			if completed == 1 {
				sawIdleAfterCompleted = true
			}
		}
	}
	if !sawIdleAfterCompleted || !sawSecondCompleted {
		t.Errorf("phase sequence %v missing completed -> idle -> completed", recorder.phases())
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	m := NewMachine(&fakeUtility{}, &fakeImageMounter{}, nil, nil, "WINUSB", time.Millisecond, 5)
	m.running.Store(true)

	_, err := m.Run(context.Background(), nil, testRequest())
	if !errors.Is(err, ErrRunInProgress) {
		t.Errorf("error = %v, want ErrRunInProgress", err)
	}

	m.running.Store(false)
}

func TestClampCopyProgress(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0.01},
		{0.005, 0.01},
		{0.01, 0.01},
		{0.5, 0.5},
		{0.99, 0.99},
	}
	for _, tt := range tests {
		if got := clampCopyProgress(tt.in); got != tt.want {
			t.Errorf("clampCopyProgress(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatLooksFailed(t *testing.T) {
	tests := []struct {
		output string
		want   bool
	}{
		{"", false},
		{"Started erase on disk2\nFinished erase on disk2", false},
		{"Error: -69877: Couldn't open device", true},
		{"Operation FAILED", true},
	}
	for _, tt := range tests {
		if got := formatLooksFailed(tt.output); got != tt.want {
			t.Errorf("formatLooksFailed(%q) = %v, want %v", tt.output, got, tt.want)
		}
	}
}
