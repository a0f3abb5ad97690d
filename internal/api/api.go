// Package api implements the gallery API calls used by the upload
// engine: destination allocation and upload confirmation.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/framehub/framehub/core/internal/observability"
)

// DestinationRequest asks the gallery API to authorize one object write.
type DestinationRequest struct {
	LocalID          string `json:"localId"`
	MimeType         string `json:"mimeType"`
	FileSize         int64  `json:"fileSize"`
	OriginalFilename string `json:"originalFilename"`
}

// Destination authorizes one object write to storage.
//
// The server keys allocation on LocalID, so repeating a request returns
// the same destination instead of allocating a new one.
type Destination struct {
	SignedURL   string    `json:"signedUrl"`
	StoragePath string    `json:"storagePath"`
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// ConfirmedUpload identifies one transferred blob to record durably.
type ConfirmedUpload struct {
	StoragePath      string `json:"storagePath"`
	Token            string `json:"token"`
	OriginalFilename string `json:"originalFilename"`
	FileSize         int64  `json:"fileSize"`
	MimeType         string `json:"mimeType"`
}

// ConfirmRequest records a batch of transferred blobs.
//
// The server deduplicates on (StoragePath, Token), so re-sending a
// confirmation is safe.
type ConfirmRequest struct {
	ContainerID string            `json:"containerId"`
	Uploads     []ConfirmedUpload `json:"uploads"`
}

// Client calls the gallery API.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	logger  *observability.CoreLogger
}

func New(
	baseURL string,
	httpClient *retryablehttp.Client,
	logger *observability.CoreLogger,
) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

// AllocateDestination requests an upload destination.
//
// Idempotent on req.LocalID.
func (c *Client) AllocateDestination(
	ctx context.Context,
	req DestinationRequest,
) (*Destination, error) {
	var dest Destination
	if err := c.post(ctx, "/api/uploads/allocate", req, &dest); err != nil {
		return nil, fmt.Errorf("api: allocate destination: %w", err)
	}
	if dest.SignedURL == "" {
		return nil, fmt.Errorf(
			"api: allocate destination: empty signed URL for %q", req.LocalID)
	}
	return &dest, nil
}

// ConfirmUploads creates durable records for transferred blobs.
//
// Must only be called after successful transfers. Safe to repeat.
func (c *Client) ConfirmUploads(ctx context.Context, req ConfirmRequest) error {
	if err := c.post(ctx, "/api/uploads/confirm", req, nil); err != nil {
		return fmt.Errorf("api: confirm uploads: %w", err)
	}
	return nil
}

func (c *Client) post(
	ctx context.Context,
	path string,
	body any,
	out any,
) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+path,
		bytes.NewReader(payload),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.CaptureError(
				fmt.Errorf("api: error closing response body: %v", err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("server returned %s: %s", resp.Status, msg)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
