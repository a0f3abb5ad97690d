// Package uploader orchestrates compressing, transferring, and
// confirming a batch of images.
package uploader

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/framehub/framehub/core/internal/compress"
	"github.com/framehub/framehub/core/internal/congestion"
	"github.com/framehub/framehub/core/internal/debounce"
	"github.com/framehub/framehub/core/internal/observability"
	"github.com/framehub/framehub/core/internal/preflight"
	"github.com/framehub/framehub/core/internal/randomid"
	"github.com/framehub/framehub/core/internal/settings"
	"github.com/framehub/framehub/core/internal/transfer"
	"github.com/framehub/framehub/core/internal/waiting"

	"github.com/framehub/framehub/core/internal/api"
)

const taskIDLength = 12

// Callbacks notify the caller about engine progress.
//
// All callbacks are invoked from engine goroutines and must not block.
// A subscriber attached mid-transfer only observes future events, not
// historical ones.
type Callbacks struct {
	// OnFileUpdate fires on every task state or progress change.
	OnFileUpdate func(TaskSnapshot)

	// OnBatchComplete fires once per queue drain with the number of
	// tasks that completed and failed during that drain.
	OnBatchComplete func(succeeded, failed int)

	// OnAllComplete fires once per queue drain, after OnBatchComplete,
	// when the queue and the active set are both empty. A later
	// AddFiles or RetryFailed call starts a new drain and may cause it
	// to fire again.
	OnAllComplete func()
}

// Params configures an Engine.
type Params struct {
	Settings *settings.Settings

	// ContainerID is the gallery the uploads are confirmed into.
	ContainerID string

	Logger *observability.CoreLogger

	// FS is the filesystem sources are read from.
	FS afero.Fs

	Preflight  *preflight.Optimizer
	Controller *congestion.Controller

	// FileTransfer moves payloads to signed URLs.
	FileTransfer transfer.FileTransfer

	// Confirmer finalizes transferred uploads.
	Confirmer Confirmer

	Callbacks Callbacks

	// ConfirmDelay overrides Settings.ConfirmBatchDelay; used in tests.
	ConfirmDelay waiting.Delay
}

// Engine is the adaptive parallel upload engine.
//
// All state is owned by one Engine instance; multiple engines can run
// in the same process without interference.
type Engine struct {
	settings     *settings.Settings
	containerID  string
	logger       *observability.CoreLogger
	fs           afero.Fs
	preflight    *preflight.Optimizer
	controller   *congestion.Controller
	fileTransfer transfer.FileTransfer
	batcher      *confirmBatcher
	callbacks    Callbacks
	stats        *byteStats

	mu sync.Mutex

	// tasks is the registry; entries are removed only on Destroy.
	tasks map[string]*task

	// pending is the FIFO admission queue of task IDs.
	pending []string

	// active counts tasks between admission and terminal transition.
	active int

	// dispatching is whether the admission loop goroutine is running.
	dispatching bool

	// wake signals the admission loop that a slot freed or work
	// arrived. Buffered so wakeups coalesce instead of getting lost.
	wake chan struct{}

	// drainSucceeded and drainFailed count terminal transitions of the
	// current drain for OnBatchComplete.
	drainSucceeded int
	drainFailed    int

	destroyed bool
}

func New(params Params) (*Engine, error) {
	if err := params.Settings.Validate(); err != nil {
		return nil, err
	}
	if params.FS == nil {
		params.FS = afero.NewOsFs()
	}

	delay := params.ConfirmDelay
	if delay == nil {
		delay = waiting.NewDelay(params.Settings.ConfirmBatchDelay)
	}

	return &Engine{
		settings:     params.Settings,
		containerID:  params.ContainerID,
		logger:       params.Logger,
		fs:           params.FS,
		preflight:    params.Preflight,
		controller:   params.Controller,
		fileTransfer: params.FileTransfer,
		batcher: newConfirmBatcher(
			params.Confirmer,
			params.ContainerID,
			delay,
		),
		callbacks: params.Callbacks,
		stats:     newByteStats(),
		tasks:     make(map[string]*task),
		wake:      make(chan struct{}, 1),
	}, nil
}

// AddFiles registers the files as pending tasks, starts prefetching
// their destinations, and ensures the admission loop is running.
//
// Always succeeds synchronously. Safe to call while a previous batch
// is still processing; new tasks join the same queue.
func (e *Engine) AddFiles(files []File) []TaskHandle {
	e.mu.Lock()

	if e.destroyed {
		e.mu.Unlock()
		e.logger.CaptureWarn("uploader: AddFiles called after Destroy")
		return nil
	}

	handles := make([]TaskHandle, 0, len(files))
	descriptors := make([]preflight.Descriptor, 0, len(files))

	for _, file := range files {
		t := e.newTask(file)
		e.tasks[t.id] = t
		e.pending = append(e.pending, t.id)

		handles = append(handles, TaskHandle(t.id))
		descriptors = append(descriptors, preflight.Descriptor{
			LocalID:  t.id,
			MimeType: t.mimeType,
			FileSize: t.size,
			Filename: t.name,
		})
	}

	e.ensureDispatchingLocked()
	e.mu.Unlock()

	e.preflight.QueueForPrefetch(descriptors)

	for _, handle := range handles {
		e.notifyFileUpdate(string(handle))
	}

	return handles
}

func (e *Engine) newTask(file File) *task {
	name := file.Name
	if name == "" {
		name = filepath.Base(file.Path)
	}
	mimeType := file.MimeType
	if mimeType == "" {
		mimeType = guessMimeType(name)
	}

	var size int64
	if info, err := e.fs.Stat(file.Path); err == nil {
		size = info.Size()
	}

	return &task{
		id:       randomid.GenerateUniqueID(taskIDLength),
		path:     file.Path,
		name:     name,
		mimeType: mimeType,
		size:     size,
		status:   StatusPending,
	}
}

// Stats returns an aggregate snapshot of the batch. Pure read.
func (e *Engine) Stats() BatchStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := BatchStats{
		TotalTasks:            len(e.tasks),
		UploadedBytes:         e.stats.uploadedBytes.Load(),
		CompressionSavedBytes: e.stats.compressionSaved.Load(),
		AverageThroughput:     e.stats.throughput(),
	}

	for _, t := range e.tasks {
		switch t.status {
		case StatusPending:
			stats.Pending++
		case StatusCompressing, StatusUploading:
			stats.InProgress++
		case StatusCompleted:
			stats.Completed++
		case StatusError:
			stats.Failed++
		}

		// Use the compressed size once known; the original size is the
		// best estimate before that.
		if t.compressedSize > 0 {
			stats.TotalBytes += t.compressedSize
		} else {
			stats.TotalBytes += t.size
		}
	}

	if remaining := stats.TotalBytes - stats.UploadedBytes; remaining > 0 &&
		stats.AverageThroughput > 0 {
		stats.ETASeconds = float64(remaining) / stats.AverageThroughput
	}

	return stats
}

// TaskSnapshots returns read-only copies of every task, for UIs.
func (e *Engine) TaskSnapshots() []TaskSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshots := make([]TaskSnapshot, 0, len(e.tasks))
	for _, t := range e.tasks {
		snapshots = append(snapshots, t.snapshot())
	}
	return snapshots
}

// RetryFailed resets every ERROR task to PENDING, re-enqueues it, and
// restarts the admission loop if idle. Tasks in other states are
// untouched.
func (e *Engine) RetryFailed() {
	e.mu.Lock()

	retried := make([]string, 0)
	for id, t := range e.tasks {
		if t.status != StatusError {
			continue
		}

		t.status = StatusPending
		t.progress = 0
		t.err = ""
		t.compressedSize = 0
		t.compressionRatio = 0
		e.stats.forgetUpload(id)

		e.pending = append(e.pending, id)
		retried = append(retried, id)
	}

	if len(retried) > 0 {
		e.ensureDispatchingLocked()
	}
	e.mu.Unlock()

	for _, id := range retried {
		e.notifyFileUpdate(id)
	}
}

// Cancel removes all pending tasks from future admission.
//
// Cancellation is non-preemptive: tasks already compressing or
// uploading finish naturally, and their bytes are not dropped. The
// current drain still completes once the active set empties.
func (e *Engine) Cancel() {
	e.mu.Lock()
	e.pending = nil
	e.mu.Unlock()

	e.wakeDispatcher()
}

// Destroy cancels pending work, releases the preflight cache, and
// clears the task registry. Idempotent.
func (e *Engine) Destroy() {
	e.Cancel()

	e.mu.Lock()
	e.destroyed = true
	e.tasks = make(map[string]*task)
	e.mu.Unlock()

	e.preflight.Clear()
}

// ensureDispatchingLocked starts the admission loop if it is idle.
// Engine mutex held.
func (e *Engine) ensureDispatchingLocked() {
	if e.dispatching {
		e.wakeDispatcher()
		return
	}

	e.dispatching = true
	e.drainSucceeded = 0
	e.drainFailed = 0
	e.controller.Reset()
	e.stats.markBatchStart()

	go e.dispatch()
}

// wakeDispatcher nudges the admission loop without blocking.
func (e *Engine) wakeDispatcher() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// dispatch is the admission loop.
//
// It admits the oldest pending task whenever a concurrency slot is
// free, then blocks until a slot frees or new work arrives. Slots are
// freed strictly by terminal transitions; completion order across
// tasks is unconstrained.
func (e *Engine) dispatch() {
	defer e.logger.Reraise()

	for {
		e.mu.Lock()

		for e.active < e.controller.GetConcurrency() && len(e.pending) > 0 {
			id := e.pending[0]
			e.pending = e.pending[1:]

			t, ok := e.tasks[id]
			if !ok || t.status != StatusPending {
				continue
			}

			e.active++
			go e.process(t)
		}

		if len(e.pending) == 0 && e.active == 0 {
			succeeded, failed := e.drainSucceeded, e.drainFailed
			e.dispatching = false
			e.mu.Unlock()

			if e.callbacks.OnBatchComplete != nil {
				e.callbacks.OnBatchComplete(succeeded, failed)
			}
			if e.callbacks.OnAllComplete != nil {
				e.callbacks.OnAllComplete()
			}
			return
		}

		e.mu.Unlock()

		<-e.wake
	}
}

// process runs one task to a terminal state and reports the outcome.
//
// A task failure never escapes here; it is recorded on the task and
// fed to the concurrency controller.
func (e *Engine) process(t *task) {
	defer e.logger.Reraise()

	start := time.Now()
	uploadedBytes, err := e.runPipeline(t)

	e.mu.Lock()
	if err != nil {
		t.status = StatusError
		t.err = err.Error()
		e.drainFailed++
	} else {
		t.status = StatusCompleted
		t.progress = 100
		e.drainSucceeded++
	}
	e.active--
	e.mu.Unlock()

	if err != nil {
		e.logger.CaptureError(
			fmt.Errorf("uploader: task failed: %w", err),
			"id", t.id, "name", t.name,
		)
		uploadedBytes = 0
	}

	e.controller.RecordUpload(err == nil, uploadedBytes, time.Since(start))
	e.notifyFileUpdate(t.id)
	e.wakeDispatcher()
}

// runPipeline is the per-task pipeline: compress, resolve destination,
// transfer, confirm. Returns the bytes put on the wire.
func (e *Engine) runPipeline(t *task) (int64, error) {
	data, mimeType, err := e.compressStage(t)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(
		context.Background(), e.settings.TransferTimeout)
	defer cancel()

	dest, err := e.preflight.GetDestination(ctx, preflight.Descriptor{
		LocalID:  t.id,
		MimeType: mimeType,
		FileSize: int64(len(data)),
		Filename: t.name,
	})
	if err != nil {
		return 0, fmt.Errorf("destination allocation: %w", err)
	}

	if err := e.transferStage(ctx, t, dest, data, mimeType); err != nil {
		return 0, fmt.Errorf("transfer: %w", err)
	}

	err = e.batcher.Confirm(ctx, api.ConfirmedUpload{
		StoragePath:      dest.StoragePath,
		Token:            dest.Token,
		OriginalFilename: t.name,
		FileSize:         int64(len(data)),
		MimeType:         mimeType,
	})
	if err != nil {
		// The blob was physically transferred, but without a durable
		// record the upload isn't real to the rest of the system. The
		// orphaned blob is accepted; a retry re-sends the same
		// (storagePath, token) pair, which the server deduplicates.
		return 0, fmt.Errorf("confirmation: %w", err)
	}

	return int64(len(data)), nil
}

// compressStage reads the source and transcodes it if compression is
// enabled. Tasks pass through COMPRESSING even when it is disabled.
//
// Compression failures are recovered locally by falling back to the
// original bytes; they never fail the task.
func (e *Engine) compressStage(t *task) ([]byte, string, error) {
	e.setStatus(t, StatusCompressing)

	data, err := afero.ReadFile(e.fs, t.path)
	if err != nil {
		return nil, "", fmt.Errorf("reading source: %w", err)
	}

	e.mu.Lock()
	t.size = int64(len(data))
	e.mu.Unlock()

	if !e.settings.CompressionEnabled {
		e.recordCompression(t, int64(len(data)), 1, 0)
		return data, t.mimeType, nil
	}

	result, err := compress.Compress(data, t.mimeType, compress.Options{
		Quality:      e.settings.CompressionQuality,
		MaxDimension: e.settings.MaxDimension,
	})
	if err != nil {
		e.logger.Warn(
			"uploader: compression failed, uploading original bytes",
			"id", t.id, "name", t.name, "error", err,
		)
		e.recordCompression(t, int64(len(data)), 1, 0)
		return data, t.mimeType, nil
	}

	e.recordCompression(
		t,
		result.CompressedSize,
		result.Ratio,
		int64(len(data))-result.CompressedSize,
	)
	return result.Data, result.MimeType, nil
}

func (e *Engine) recordCompression(
	t *task,
	compressedSize int64,
	ratio float64,
	saved int64,
) {
	e.mu.Lock()
	t.compressedSize = compressedSize
	t.compressionRatio = ratio
	e.mu.Unlock()

	if saved > 0 {
		e.stats.addCompressionSaving(saved)
	}
}

// transferStage PUTs the payload to the signed URL with progress
// reporting debounced toward subscribers.
func (e *Engine) transferStage(
	ctx context.Context,
	t *task,
	dest *api.Destination,
	data []byte,
	mimeType string,
) error {
	e.setStatus(t, StatusUploading)
	e.stats.updateUpload(t.id, 0, int64(len(data)))

	// Progress events arrive per chunk; notify subscribers at a bounded
	// rate so a fast transfer doesn't flood them.
	progressDebouncer := debounce.NewDebouncer(rate.Every(50*time.Millisecond), 1, e.logger)

	err := e.fileTransfer.Upload(&transfer.Task{
		Url:      dest.SignedURL,
		MimeType: mimeType,
		Data:     data,
		Context:  ctx,
		ProgressCallback: func(processed, total int) {
			e.recordProgress(t, processed, total)
			progressDebouncer.SetNeedsDebounce()
			progressDebouncer.Debounce(func() {
				e.notifyFileUpdate(t.id)
			})
		},
	})

	progressDebouncer.Stop()
	if err != nil {
		return err
	}

	e.stats.updateUpload(t.id, int64(len(data)), int64(len(data)))
	return nil
}

// recordProgress updates a task's progress percentage, keeping it
// monotonically non-decreasing while uploading.
func (e *Engine) recordProgress(t *task, processed, total int) {
	if total <= 0 {
		return
	}
	percent := processed * 100 / total
	if percent > 100 {
		percent = 100
	}

	e.mu.Lock()
	if t.status == StatusUploading && percent > t.progress {
		t.progress = percent
	}
	e.mu.Unlock()

	e.stats.updateUpload(t.id, int64(processed), int64(total))
}

// setStatus transitions a task and notifies subscribers.
func (e *Engine) setStatus(t *task, status Status) {
	e.mu.Lock()
	t.status = status
	e.mu.Unlock()

	e.notifyFileUpdate(t.id)
}

// notifyFileUpdate sends a snapshot of the task to the caller.
func (e *Engine) notifyFileUpdate(id string) {
	if e.callbacks.OnFileUpdate == nil {
		return
	}

	e.mu.Lock()
	t, ok := e.tasks[id]
	if !ok {
		e.mu.Unlock()
		return
	}
	snapshot := t.snapshot()
	e.mu.Unlock()

	e.callbacks.OnFileUpdate(snapshot)
}
