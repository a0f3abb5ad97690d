package uploader

import (
	"context"
	"sync"

	"github.com/framehub/framehub/core/internal/api"
	"github.com/framehub/framehub/core/internal/waiting"
)

// Confirmer creates durable records for transferred blobs.
type Confirmer interface {
	ConfirmUploads(ctx context.Context, req api.ConfirmRequest) error
}

// confirmBatcher coalesces confirmations from tasks finishing close
// together into one API call.
//
// Each task still observes its own confirmation outcome: the batch
// error, if any, is fanned back to every waiting task.
type confirmBatcher struct {
	sync.Mutex

	confirmer   Confirmer
	containerID string

	// How long to collect a batch before sending it.
	delay waiting.Delay

	pending  []api.ConfirmedUpload
	waiters  []chan error
	isQueued bool
}

func newConfirmBatcher(
	confirmer Confirmer,
	containerID string,
	delay waiting.Delay,
) *confirmBatcher {
	if delay == nil {
		delay = waiting.NoDelay()
	}

	return &confirmBatcher{
		confirmer:   confirmer,
		containerID: containerID,
		delay:       delay,
	}
}

// Confirm records one upload, blocking until its batch is sent.
//
// Safe to call again for the same (storagePath, token); the server
// deduplicates.
func (b *confirmBatcher) Confirm(
	ctx context.Context,
	upload api.ConfirmedUpload,
) error {
	if b.delay.IsZero() {
		return b.confirmer.ConfirmUploads(ctx, api.ConfirmRequest{
			ContainerID: b.containerID,
			Uploads:     []api.ConfirmedUpload{upload},
		})
	}

	b.Lock()

	result := make(chan error, 1)
	b.pending = append(b.pending, upload)
	b.waiters = append(b.waiters, result)

	if !b.isQueued {
		b.isQueued = true
		go func() {
			<-b.delay.Wait()
			b.sendBatch()
		}()
	}

	b.Unlock()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sendBatch flushes collected confirmations in one request.
//
// Runs on its own context: a single task's expiring deadline must not
// cancel a batch that other tasks are waiting on.
func (b *confirmBatcher) sendBatch() {
	b.Lock()
	b.isQueued = false
	uploads := b.pending
	waiters := b.waiters
	b.pending = nil
	b.waiters = nil
	b.Unlock()

	if len(uploads) == 0 {
		return
	}

	err := b.confirmer.ConfirmUploads(context.Background(), api.ConfirmRequest{
		ContainerID: b.containerID,
		Uploads:     uploads,
	})

	for _, waiter := range waiters {
		waiter <- err
	}
}
