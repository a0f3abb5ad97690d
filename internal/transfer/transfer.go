// Package transfer moves image payloads to signed storage URLs.
package transfer

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/framehub/framehub/core/internal/observability"
)

// Task is one signed-URL upload.
type Task struct {
	// Url is the signed destination URL.
	Url string

	// MimeType is sent as the Content-Type of the payload.
	MimeType string

	// Data is the (possibly compressed) payload.
	Data []byte

	// ProgressCallback is invoked on every observable chunk of bytes
	// sent, with (processed, total).
	ProgressCallback func(processed, total int)

	// Context cancels or times out the transfer.
	Context context.Context
}

// FileTransfer uploads a payload to storage.
type FileTransfer interface {
	Upload(task *Task) error
}

// DefaultFileTransfer PUTs payloads to signed URLs over HTTP.
type DefaultFileTransfer struct {
	client *retryablehttp.Client
	logger *observability.CoreLogger
}

func NewDefaultFileTransfer(
	client *retryablehttp.Client,
	logger *observability.CoreLogger,
) *DefaultFileTransfer {
	return &DefaultFileTransfer{
		client: client,
		logger: logger,
	}
}

// Upload sends the payload to the task's signed URL.
func (ft *DefaultFileTransfer) Upload(task *Task) error {
	ft.logger.Debug("transfer: uploading", "url", task.Url, "size", len(task.Data))

	// Due to historical mistakes, net/http interprets a 0 value of
	// Request.ContentLength as "unknown" if the body is non-nil, and
	// doesn't send the Content-Length header which is usually required.
	//
	// To have it understand 0 as 0, the body must be set to nil or
	// the NoBody sentinel.
	var requestBody any
	if len(task.Data) == 0 {
		requestBody = http.NoBody
	} else {
		requestBody = NewProgressReader(
			bytes.NewReader(task.Data),
			len(task.Data),
			task.ProgressCallback,
		)
	}

	req, err := retryablehttp.NewRequest(http.MethodPut, task.Url, requestBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", task.MimeType)
	if task.Context != nil {
		req = req.WithContext(task.Context)
	}

	resp, err := ft.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			ft.logger.CaptureError(
				fmt.Errorf("transfer: upload: error closing response body: %v", err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("transfer: upload: failed to upload: %s", resp.Status)
	}

	return nil
}
