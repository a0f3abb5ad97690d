package uploader

import (
	"mime"
	"path/filepath"
)

// Status is an upload task's position in its state machine.
//
// Tasks move PENDING -> COMPRESSING -> UPLOADING -> COMPLETED, or to
// ERROR from any non-terminal state. ERROR tasks can be re-queued via
// RetryFailed.
type Status int

const (
	StatusPending Status = iota
	StatusCompressing
	StatusUploading
	StatusCompleted
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompressing:
		return "compressing"
	case StatusUploading:
		return "uploading"
	case StatusCompleted:
		return "completed"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal returns whether no further transitions are possible without
// a retry.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// File is one local image to upload.
type File struct {
	// Path is the file's location on the engine's filesystem.
	Path string

	// Name is the original filename. Defaults to the base of Path.
	Name string

	// MimeType defaults to a guess from the file extension.
	MimeType string
}

// TaskHandle identifies a task across the engine API.
type TaskHandle string

// task is one file's journey through the pipeline.
//
// Owned exclusively by the engine: mutated only by the processing
// goroutine and RetryFailed, always under the engine mutex. External
// observers get snapshots.
type task struct {
	id       string
	path     string
	name     string
	mimeType string
	size     int64

	status   Status
	progress int
	err      string

	compressedSize   int64
	compressionRatio float64
}

// TaskSnapshot is a read-only copy of a task's state.
type TaskSnapshot struct {
	ID               TaskHandle
	Path             string
	Name             string
	MimeType         string
	Size             int64
	Status           Status
	Progress         int
	Error            string
	CompressedSize   int64
	CompressionRatio float64
}

func (t *task) snapshot() TaskSnapshot {
	return TaskSnapshot{
		ID:               TaskHandle(t.id),
		Path:             t.path,
		Name:             t.name,
		MimeType:         t.mimeType,
		Size:             t.size,
		Status:           t.status,
		Progress:         t.progress,
		Error:            t.err,
		CompressedSize:   t.compressedSize,
		CompressionRatio: t.compressionRatio,
	}
}

// guessMimeType infers a mime type from the filename, defaulting to
// JPEG since that is what cameras overwhelmingly produce.
func guessMimeType(name string) string {
	if mimeType := mime.TypeByExtension(filepath.Ext(name)); mimeType != "" {
		return mimeType
	}
	return "image/jpeg"
}
