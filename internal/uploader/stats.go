package uploader

import (
	"sync"
	"sync/atomic"
	"time"
)

// BatchStats is an aggregate view over the engine's task set.
//
// It is a snapshot computed on demand and never a source of truth for
// task state.
type BatchStats struct {
	TotalTasks int
	Pending    int
	InProgress int
	Completed  int
	Failed     int

	// TotalBytes is the number of bytes the batch will put on the wire,
	// using compressed sizes where compression has already run.
	TotalBytes int64

	// UploadedBytes counts bytes acknowledged by progress callbacks.
	UploadedBytes int64

	// CompressionSavedBytes is the total reduction from compression.
	CompressionSavedBytes int64

	// AverageThroughput is bytes per second since the batch started.
	AverageThroughput float64

	// ETASeconds estimates the time to drain the queue at the average
	// throughput. Zero when unknown.
	ETASeconds float64
}

// uploadInfo is byte progress for one in-flight transfer.
type uploadInfo struct {
	uploadedBytes int64
	totalBytes    int64
}

// byteStats accumulates transfer byte counts across tasks.
//
// Progress callbacks replace a task's info wholesale; the aggregate
// counters are adjusted by the delta, so per-chunk updates stay cheap
// and idempotent per task.
type byteStats struct {
	sync.Mutex

	uploadInfoByID map[string]uploadInfo

	uploadedBytes *atomic.Int64
	totalBytes    *atomic.Int64

	compressionSaved *atomic.Int64

	startMicros *atomic.Int64
}

func newByteStats() *byteStats {
	return &byteStats{
		uploadInfoByID:   make(map[string]uploadInfo),
		uploadedBytes:    &atomic.Int64{},
		totalBytes:       &atomic.Int64{},
		compressionSaved: &atomic.Int64{},
		startMicros:      &atomic.Int64{},
	}
}

// markBatchStart records when the current drain began. Used for the
// average throughput estimate.
func (bs *byteStats) markBatchStart() {
	bs.startMicros.Store(time.Now().UnixMicro())
}

// updateUpload replaces the byte progress for a task.
func (bs *byteStats) updateUpload(id string, uploaded, total int64) {
	bs.Lock()
	defer bs.Unlock()

	if old, ok := bs.uploadInfoByID[id]; ok {
		bs.uploadedBytes.Add(-old.uploadedBytes)
		bs.totalBytes.Add(-old.totalBytes)
	}

	bs.uploadInfoByID[id] = uploadInfo{uploadedBytes: uploaded, totalBytes: total}
	bs.uploadedBytes.Add(uploaded)
	bs.totalBytes.Add(total)
}

// forgetUpload removes a task's byte progress, e.g. when it is reset
// for a retry.
func (bs *byteStats) forgetUpload(id string) {
	bs.Lock()
	defer bs.Unlock()

	if old, ok := bs.uploadInfoByID[id]; ok {
		bs.uploadedBytes.Add(-old.uploadedBytes)
		bs.totalBytes.Add(-old.totalBytes)
		delete(bs.uploadInfoByID, id)
	}
}

// addCompressionSaving records bytes saved by compressing one file.
func (bs *byteStats) addCompressionSaving(saved int64) {
	bs.compressionSaved.Add(saved)
}

// throughput returns average bytes per second since markBatchStart.
func (bs *byteStats) throughput() float64 {
	start := bs.startMicros.Load()
	if start == 0 {
		return 0
	}

	elapsed := time.Since(time.UnixMicro(start)).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(bs.uploadedBytes.Load()) / elapsed
}
