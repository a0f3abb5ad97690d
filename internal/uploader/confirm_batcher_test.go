package uploader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framehub/framehub/core/internal/api"
	"github.com/framehub/framehub/core/internal/waiting"
	"github.com/framehub/framehub/core/internal/waitingtest"
)

type recordingConfirmer struct {
	sync.Mutex

	requests []api.ConfirmRequest
	err      error
}

func (c *recordingConfirmer) ConfirmUploads(
	_ context.Context,
	req api.ConfirmRequest,
) error {
	c.Lock()
	defer c.Unlock()
	c.requests = append(c.requests, req)
	return c.err
}

func (c *recordingConfirmer) Requests() []api.ConfirmRequest {
	c.Lock()
	defer c.Unlock()
	return append([]api.ConfirmRequest(nil), c.requests...)
}

func upload(id string) api.ConfirmedUpload {
	return api.ConfirmedUpload{
		StoragePath: "media/" + id + "/photo.jpg",
		Token:       "token-" + id,
	}
}

func TestConfirm_ZeroDelay_SendsImmediately(t *testing.T) {
	confirmer := &recordingConfirmer{}
	batcher := newConfirmBatcher(confirmer, "gallery-1", waiting.NoDelay())

	err := batcher.Confirm(context.Background(), upload("a"))

	require.NoError(t, err)
	requests := confirmer.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "gallery-1", requests[0].ContainerID)
	assert.Equal(t, []api.ConfirmedUpload{upload("a")}, requests[0].Uploads)
}

func TestConfirm_CoalescesWaitersIntoOneRequest(t *testing.T) {
	confirmer := &recordingConfirmer{}
	delay := waitingtest.NewFakeDelay()
	batcher := newConfirmBatcher(confirmer, "gallery-1", delay)

	results := make(chan error)
	for _, id := range []string{"a", "b", "c"} {
		id := id
		go func() {
			results <- batcher.Confirm(context.Background(), upload(id))
		}()
	}

	// All three must be queued before the delay fires.
	require.Eventually(t, func() bool {
		batcher.Lock()
		defer batcher.Unlock()
		return len(batcher.pending) == 3
	}, time.Second, time.Millisecond)

	delay.Tick(false)

	for i := 0; i < 3; i++ {
		require.NoError(t, <-results)
	}

	requests := confirmer.Requests()
	require.Len(t, requests, 1)
	assert.Len(t, requests[0].Uploads, 3)
}

func TestConfirm_BatchErrorReachesEveryWaiter(t *testing.T) {
	confirmer := &recordingConfirmer{err: errors.New("gallery is down")}
	delay := waitingtest.NewFakeDelay()
	batcher := newConfirmBatcher(confirmer, "gallery-1", delay)

	results := make(chan error)
	go func() { results <- batcher.Confirm(context.Background(), upload("a")) }()
	go func() { results <- batcher.Confirm(context.Background(), upload("b")) }()

	require.Eventually(t, func() bool {
		batcher.Lock()
		defer batcher.Unlock()
		return len(batcher.pending) == 2
	}, time.Second, time.Millisecond)

	delay.Tick(false)

	for i := 0; i < 2; i++ {
		assert.ErrorContains(t, <-results, "gallery is down")
	}
}

func TestConfirm_ContextCancellationUnblocksCaller(t *testing.T) {
	confirmer := &recordingConfirmer{}
	delay := waitingtest.NewFakeDelay()
	batcher := newConfirmBatcher(confirmer, "gallery-1", delay)

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan error)
	go func() { results <- batcher.Confirm(ctx, upload("a")) }()

	require.Eventually(t, func() bool {
		batcher.Lock()
		defer batcher.Unlock()
		return len(batcher.pending) == 1
	}, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-results, context.Canceled)

	// The batch still flushes; the caller just stopped waiting for it.
	delay.Tick(false)
	require.Eventually(t, func() bool {
		return len(confirmer.Requests()) == 1
	}, time.Second, time.Millisecond)
}
