// Package apitest provides a fake gallery backend for tests.
package apitest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/framehub/framehub/core/internal/api"
	"github.com/framehub/framehub/core/internal/randomid"
)

// FakeGallery is an in-memory gallery backend: destination allocation,
// blob storage, and upload confirmation.
type FakeGallery struct {
	Server *httptest.Server

	mu            sync.Mutex
	destinations  map[string]api.Destination
	allocateCalls int
	transferCalls int
	confirmCalls  int
	blobs         map[string][]byte
	confirmed     []api.ConfirmedUpload

	// FailTransfers lists local IDs whose blob PUT returns a 500.
	FailTransfers map[string]bool

	// FailAllocation makes every allocation request fail.
	FailAllocation bool
}

func NewFakeGallery() *FakeGallery {
	f := &FakeGallery{
		destinations:  make(map[string]api.Destination),
		blobs:         make(map[string][]byte),
		FailTransfers: make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/uploads/allocate", f.handleAllocate)
	mux.HandleFunc("/api/uploads/confirm", f.handleConfirm)
	mux.HandleFunc("/blob/", f.handleBlob)

	f.Server = httptest.NewServer(mux)
	return f
}

func (f *FakeGallery) Close() {
	f.Server.Close()
}

func (f *FakeGallery) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var req api.DestinationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.allocateCalls++

	if f.FailAllocation {
		http.Error(w, "allocation refused", http.StatusForbidden)
		return
	}

	// Idempotent on localId: a repeat request returns the original
	// destination instead of allocating a new one.
	dest, ok := f.destinations[req.LocalID]
	if !ok {
		dest = api.Destination{
			SignedURL:   f.Server.URL + "/blob/" + req.LocalID,
			StoragePath: "media/" + req.LocalID + "/" + req.OriginalFilename,
			Token:       randomid.GenerateUniqueID(16),
			ExpiresAt:   time.Now().Add(time.Hour),
		}
		f.destinations[req.LocalID] = dest
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(dest)
}

func (f *FakeGallery) handleBlob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	localID := strings.TrimPrefix(r.URL.Path, "/blob/")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.transferCalls++

	if f.FailTransfers[localID] {
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}

	f.blobs[localID] = body
	w.WriteHeader(http.StatusOK)
}

func (f *FakeGallery) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req api.ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.confirmCalls++

	// Deduplicate on (storagePath, token) so repeated confirmations
	// never create duplicate records.
	for _, upload := range req.Uploads {
		dup := false
		for _, existing := range f.confirmed {
			if existing.StoragePath == upload.StoragePath &&
				existing.Token == upload.Token {
				dup = true
				break
			}
		}
		if !dup {
			f.confirmed = append(f.confirmed, upload)
		}
	}

	w.WriteHeader(http.StatusOK)
}

// AllocateCalls returns how many allocation requests were received.
func (f *FakeGallery) AllocateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allocateCalls
}

// TransferCalls returns how many blob PUTs were received.
func (f *FakeGallery) TransferCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transferCalls
}

// ConfirmCalls returns how many confirmation requests were received.
func (f *FakeGallery) ConfirmCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirmCalls
}

// Confirmed returns the durable records created so far.
func (f *FakeGallery) Confirmed() []api.ConfirmedUpload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]api.ConfirmedUpload, len(f.confirmed))
	copy(out, f.confirmed)
	return out
}

// Blob returns the stored bytes for a local ID.
func (f *FakeGallery) Blob(localID string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[localID]
	return b, ok
}
