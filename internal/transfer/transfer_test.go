package transfer_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framehub/framehub/core/internal/clients"
	"github.com/framehub/framehub/core/internal/observability"
	"github.com/framehub/framehub/core/internal/transfer"
)

func newTransfer() *transfer.DefaultFileTransfer {
	return transfer.NewDefaultFileTransfer(
		clients.NewRetryClient(clients.WithRetryClientRetryMax(0)),
		observability.NewNoOpLogger(),
	)
}

func TestUploadSendsPayload(t *testing.T) {
	var received []byte
	var contentType string

	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			contentType = r.Header.Get("Content-Type")
			received, _ = io.ReadAll(r.Body)
		}))
	defer server.Close()

	payload := []byte("jpeg bytes here")
	var lastProcessed, lastTotal int

	err := newTransfer().Upload(&transfer.Task{
		Url:      server.URL,
		MimeType: "image/jpeg",
		Data:     payload,
		ProgressCallback: func(processed, total int) {
			lastProcessed, lastTotal = processed, total
		},
	})

	require.NoError(t, err)
	assert.Equal(t, payload, received)
	assert.Equal(t, "image/jpeg", contentType)
	assert.Equal(t, len(payload), lastProcessed)
	assert.Equal(t, len(payload), lastTotal)
}

func TestUploadZeroBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, int64(0), r.ContentLength)
		}))
	defer server.Close()

	err := newTransfer().Upload(&transfer.Task{
		Url:      server.URL,
		MimeType: "image/jpeg",
	})

	require.NoError(t, err)
}

func TestUploadServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadRequest)
		}))
	defer server.Close()

	err := newTransfer().Upload(&transfer.Task{
		Url:      server.URL,
		MimeType: "image/jpeg",
		Data:     []byte("payload"),
	})

	assert.ErrorContains(t, err, "failed to upload")
}

func TestUploadRespectsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(5 * time.Second)
		}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := newTransfer().Upload(&transfer.Task{
		Url:      server.URL,
		MimeType: "image/jpeg",
		Data:     []byte("payload"),
		Context:  ctx,
	})

	assert.Error(t, err)
}
