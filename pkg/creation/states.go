package creation

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/superfly/fsm"
	"github.com/usbforge/usbforge/pkg/db"
	"github.com/usbforge/usbforge/pkg/disk"
)

// handleMountImage records the run and attaches the source image.
func (m *Machine) handleMountImage(ctx context.Context, req *fsm.Request[Request, Response]) (*fsm.Response[Response], error) {
	slog.Info("pipeline_mount_image", "image", req.Msg.Image.Path, "drive", req.Msg.Drive.ID)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &Response{}
	}

	if m.repo != nil {
		run := &db.Run{
			ImagePath:  req.Msg.Image.Path,
			DriveID:    req.Msg.Drive.ID,
			DevicePath: req.Msg.Drive.DevicePath,
			Status:     db.StatusRunning,
		}
		if err := m.repo.Create(run); err != nil {
			// The history ledger never blocks a run.
			slog.Warn("run_record_failed", "image", req.Msg.Image.Path, "error", err)
		} else {
			resp.RunID = run.ID
		}
	}

	m.emit(Mounting())

	mountPoint, err := m.images.MountImage(ctx, req.Msg.Image.Path)
	if err != nil {
		slog.Error("image_mount_failed", "image", req.Msg.Image.Path, "error", err)
		return nil, m.fail(ctx, resp, fmt.Errorf("%w: %v", ErrMountFailed, err))
	}
	resp.SourceMount = mountPoint

	slog.Info("image_mounted", "image", req.Msg.Image.Path, "mount_point", mountPoint)
	return fsm.NewResponse(resp), nil
}

// handleInspect enumerates the image contents and decides the filesystem
// layout. The decision happens before formatting because the layout cannot
// change once files start copying.
func (m *Machine) handleInspect(ctx context.Context, req *fsm.Request[Request, Response]) (*fsm.Response[Response], error) {
	slog.Info("pipeline_inspect", "image", req.Msg.Image.Path)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	files, err := EnumerateFiles(resp.SourceMount)
	if err != nil {
		slog.Error("inspect_failed", "mount_point", resp.SourceMount, "error", err)
		return nil, m.fail(ctx, resp, fmt.Errorf("%w: %v", ErrInvalidImage, err))
	}

	var total int64
	for _, f := range files {
		total += f.Size
	}

	resp.Files = files
	resp.TotalBytes = total
	resp.UseLargeFilesystem = HasOversizedFile(files, FAT32MaxFileSize)

	if m.repo != nil && resp.RunID != 0 {
		filesystem := db.FilesystemFAT32
		if resp.UseLargeFilesystem {
			filesystem = db.FilesystemExFAT
		}
		if run, _ := m.repo.GetByID(resp.RunID); run != nil {
			run.Filesystem = filesystem
			run.BytesTotal = total
			if err := m.repo.Update(run); err != nil {
				slog.Warn("run_update_failed", "run_id", resp.RunID, "error", err)
			}
		}
	}

	slog.Info("inspect_complete",
		"files", len(files),
		"total_mb", total/1024/1024,
		"large_filesystem", resp.UseLargeFilesystem,
	)
	return fsm.NewResponse(resp), nil
}

// handleFormat erases the target device with the layout chosen at inspect:
// exFAT on GPT when any file exceeds the FAT32 ceiling, FAT32 on MBR
// otherwise.
func (m *Machine) handleFormat(ctx context.Context, req *fsm.Request[Request, Response]) (*fsm.Response[Response], error) {
	slog.Info("pipeline_format", "device", req.Msg.Drive.DevicePath, "large_filesystem", req.W.Msg != nil && req.W.Msg.UseLargeFilesystem)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	m.emit(Formatting())

	var diagnostic string
	var err error
	if resp.UseLargeFilesystem {
		diagnostic, err = m.utility.FormatExFAT(ctx, req.Msg.Drive.DevicePath, m.volumeLabel)
	} else {
		diagnostic, err = m.utility.FormatFAT32(ctx, req.Msg.Drive.DevicePath, m.volumeLabel)
	}
	if err != nil || formatLooksFailed(diagnostic) {
		slog.Error("format_failed", "device", req.Msg.Drive.DevicePath, "output", diagnostic, "error", err)
		if err == nil {
			err = fmt.Errorf("diagnostic output reports failure")
		}
		return nil, m.fail(ctx, resp, fmt.Errorf("%w: %v", ErrFormatFailed, err))
	}

	slog.Info("format_complete", "device", req.Msg.Drive.DevicePath)
	return fsm.NewResponse(resp), nil
}

// handleRemount waits for the freshly formatted device to re-present, then
// mounts its data partition.
func (m *Machine) handleRemount(ctx context.Context, req *fsm.Request[Request, Response]) (*fsm.Response[Response], error) {
	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	slog.Info("pipeline_remount", "device", req.Msg.Drive.DevicePath, "settle", m.settleDelay)

	select {
	case <-ctx.Done():
		return nil, m.fail(ctx, resp, ctx.Err())
	case <-time.After(m.settleDelay):
	}

	partition := disk.DataPartition(req.Msg.Drive.DevicePath, resp.UseLargeFilesystem)
	mountPoint, err := m.utility.Mount(ctx, partition)
	if err != nil {
		slog.Error("target_mount_failed", "partition", partition, "error", err)
		return nil, m.fail(ctx, resp, fmt.Errorf("%w: %s: %v", ErrMountFailed, partition, err))
	}
	resp.TargetMount = mountPoint

	slog.Info("target_mounted", "partition", partition, "mount_point", mountPoint)
	return fsm.NewResponse(resp), nil
}

// handleCopy streams every enumerated file onto the target, one at a time,
// in enumeration order.
func (m *Machine) handleCopy(ctx context.Context, req *fsm.Request[Request, Response]) (*fsm.Response[Response], error) {
	slog.Info("pipeline_copy", "files", len(req.W.Msg.Files), "total_bytes", req.W.Msg.TotalBytes)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	// Placeholder bounding the copy phase strictly inside (0, 0.99].
	m.emit(Copying(0.01, "", 0, resp.TotalBytes))

	var copied int64
	for _, f := range resp.Files {
		if !filepath.IsLocal(f.RelPath) {
			return nil, m.fail(ctx, resp, copyFailed(f.RelPath, fmt.Errorf("path escapes destination root")))
		}

		src := filepath.Join(resp.SourceMount, f.RelPath)
		dst := filepath.Join(resp.TargetMount, f.RelPath)
		current := f

		err := CopyFile(src, dst, f.Size, copied, resp.TotalBytes, func(written int64, fraction float64) {
			m.emit(Copying(clampCopyProgress(fraction), current.RelPath, copied+written, resp.TotalBytes))
		})
		if err != nil {
			slog.Error("file_copy_failed", "file", f.RelPath, "error", err)
			return nil, m.fail(ctx, resp, err)
		}

		copied += f.Size
		m.emit(Copying(clampCopyProgress(copyFraction(copied, resp.TotalBytes)), f.RelPath, copied, resp.TotalBytes))
	}

	resp.BytesCopied = copied
	m.emit(Copying(copyPhaseCap, "", copied, resp.TotalBytes))

	slog.Info("copy_complete", "bytes", copied)
	return fsm.NewResponse(resp), nil
}

// handleFinalize flushes the target and releases the source image. An
// unmount failure here does not fail the run, but the release is always
// attempted.
func (m *Machine) handleFinalize(ctx context.Context, req *fsm.Request[Request, Response]) (*fsm.Response[Response], error) {
	slog.Info("pipeline_finalize", "drive", req.Msg.Drive.ID)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	m.emit(Finalizing())

	if err := m.utility.Sync(ctx); err != nil {
		slog.Error("finalize_sync_failed", "error", err)
		return nil, m.fail(ctx, resp, fmt.Errorf("failed to flush the drive: %v", err))
	}

	if resp.SourceMount != "" {
		if err := m.images.UnmountImage(ctx, resp.SourceMount); err != nil {
			slog.Warn("image_unmount_failed", "mount_point", resp.SourceMount, "error", err)
		}
		resp.SourceMount = ""
	}

	return fsm.NewResponse(resp), nil
}

// handleComplete records the successful run and publishes the terminal state.
func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[Request, Response]) (*fsm.Response[Response], error) {
	resp := req.W.Msg
	if resp == nil {
		resp = &Response{}
	}

	if m.repo != nil && resp.RunID != 0 {
		if run, _ := m.repo.GetByID(resp.RunID); run != nil {
			run.Status = db.StatusCompleted
			run.BytesCopied = resp.BytesCopied
			run.ErrorMessage = ""
			if err := m.repo.Update(run); err != nil {
				slog.Warn("run_update_failed", "run_id", resp.RunID, "error", err)
			}
		}
	}
	resp.Status = db.StatusCompleted

	m.emit(Completed())

	slog.Info("pipeline_complete", "drive", req.Msg.Drive.ID, "bytes", resp.BytesCopied)
	return fsm.NewResponse(resp), nil
}

// fail releases the source image if it is still attached, records and
// publishes the terminal Failed state, and aborts the FSM. The destination
// is deliberately left mounted so the user can inspect what was written.
func (m *Machine) fail(ctx context.Context, resp *Response, err error) error {
	if resp.SourceMount != "" {
		if derr := m.images.UnmountImage(ctx, resp.SourceMount); derr != nil {
			slog.Warn("image_unmount_failed", "mount_point", resp.SourceMount, "error", derr)
		}
		resp.SourceMount = ""
	}

	resp.Status = db.StatusFailed
	resp.ErrorMessage = err.Error()
	if m.repo != nil && resp.RunID != 0 {
		if derr := m.repo.UpdateStatus(resp.RunID, db.StatusFailed, err.Error()); derr != nil {
			slog.Warn("run_status_update_failed", "run_id", resp.RunID, "error", derr)
		}
	}

	m.emit(Failed(err.Error()))
	return fsm.Abort(err)
}

// clampCopyProgress floors copy-phase emissions at the initial placeholder so
// the published overall progress never moves backwards during the phase.
func clampCopyProgress(fraction float64) float64 {
	if fraction < 0.01 {
		return 0.01
	}
	return fraction
}

// formatLooksFailed scans format diagnostics for failure indicators.
// diskutil can exit zero on an erase that did not stick; the text is the
// only reliable signal in that case.
func formatLooksFailed(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "error") || strings.Contains(lower, "failed")
}
