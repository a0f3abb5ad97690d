package preflight_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framehub/framehub/core/internal/api"
	"github.com/framehub/framehub/core/internal/observability"
	"github.com/framehub/framehub/core/internal/preflight"
)

// fakeAllocator is an idempotent in-memory destination allocator.
type fakeAllocator struct {
	mu           sync.Mutex
	calls        int
	destinations map[string]*api.Destination

	// failuresLeft makes that many allocation calls fail first.
	failuresLeft int

	// block, if non-nil, is received from before each allocation.
	block chan struct{}
}

func newFakeAllocator() *fakeAllocator {
	return &fakeAllocator{destinations: make(map[string]*api.Destination)}
}

func (f *fakeAllocator) AllocateDestination(
	ctx context.Context,
	req api.DestinationRequest,
) (*api.Destination, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return nil, errors.New("allocation refused")
	}

	dest, ok := f.destinations[req.LocalID]
	if !ok {
		dest = &api.Destination{
			SignedURL:   "https://storage/" + req.LocalID,
			StoragePath: "media/" + req.LocalID,
			Token:       fmt.Sprintf("token-%d", f.calls),
			ExpiresAt:   time.Now().Add(time.Hour),
		}
		f.destinations[req.LocalID] = dest
	}
	return dest, nil
}

func (f *fakeAllocator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestPrefetchedDestinationIsReused(t *testing.T) {
	allocator := newFakeAllocator()
	optimizer := preflight.NewOptimizer(
		allocator, 4, observability.NewNoOpLogger())

	desc := preflight.Descriptor{LocalID: "t1", Filename: "a.jpg"}
	optimizer.QueueForPrefetch([]preflight.Descriptor{desc})

	first, err := optimizer.GetDestination(context.Background(), desc)
	require.NoError(t, err)
	second, err := optimizer.GetDestination(context.Background(), desc)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, allocator.callCount())
}

func TestOnDemandFallbackWithoutPrefetch(t *testing.T) {
	allocator := newFakeAllocator()
	optimizer := preflight.NewOptimizer(
		allocator, 4, observability.NewNoOpLogger())

	dest, err := optimizer.GetDestination(
		context.Background(),
		preflight.Descriptor{LocalID: "t1"},
	)

	require.NoError(t, err)
	assert.Equal(t, "https://storage/t1", dest.SignedURL)
	assert.Equal(t, 1, allocator.callCount())
}

func TestGetDestinationWaitsForInFlightPrefetch(t *testing.T) {
	allocator := newFakeAllocator()
	allocator.block = make(chan struct{})
	optimizer := preflight.NewOptimizer(
		allocator, 4, observability.NewNoOpLogger())

	desc := preflight.Descriptor{LocalID: "t1"}
	optimizer.QueueForPrefetch([]preflight.Descriptor{desc})

	results := make(chan *api.Destination)
	go func() {
		dest, err := optimizer.GetDestination(context.Background(), desc)
		assert.NoError(t, err)
		results <- dest
	}()

	// Unblock the prefetch; the waiting Get must observe it without a
	// second allocation.
	close(allocator.block)

	select {
	case dest := <-results:
		assert.NotNil(t, dest)
	case <-time.After(5 * time.Second):
		t.Fatal("GetDestination did not return")
	}
	assert.Equal(t, 1, allocator.callCount())
}

func TestFailedPrefetchIsRetriedOnDemand(t *testing.T) {
	allocator := newFakeAllocator()
	allocator.failuresLeft = 1
	optimizer := preflight.NewOptimizer(
		allocator, 4, observability.NewNoOpLogger())

	desc := preflight.Descriptor{LocalID: "t1"}
	optimizer.QueueForPrefetch([]preflight.Descriptor{desc})

	// Wait for the failing prefetch to finish.
	require.Eventually(t, func() bool {
		return allocator.callCount() == 1
	}, 5*time.Second, time.Millisecond)

	dest, err := optimizer.GetDestination(context.Background(), desc)

	require.NoError(t, err)
	assert.NotNil(t, dest)
	assert.Equal(t, 2, allocator.callCount())
}

func TestQueueForPrefetchIgnoresDuplicates(t *testing.T) {
	allocator := newFakeAllocator()
	optimizer := preflight.NewOptimizer(
		allocator, 4, observability.NewNoOpLogger())

	desc := preflight.Descriptor{LocalID: "t1"}
	optimizer.QueueForPrefetch([]preflight.Descriptor{desc})
	optimizer.QueueForPrefetch([]preflight.Descriptor{desc})

	_, err := optimizer.GetDestination(context.Background(), desc)
	require.NoError(t, err)
	assert.Equal(t, 1, allocator.callCount())
}

func TestClearDiscardsDestinations(t *testing.T) {
	allocator := newFakeAllocator()
	optimizer := preflight.NewOptimizer(
		allocator, 4, observability.NewNoOpLogger())

	desc := preflight.Descriptor{LocalID: "t1"}
	_, err := optimizer.GetDestination(context.Background(), desc)
	require.NoError(t, err)

	optimizer.Clear()

	_, err = optimizer.GetDestination(context.Background(), desc)
	require.NoError(t, err)
	assert.Equal(t, 2, allocator.callCount())
}

func TestGetDestinationRespectsContext(t *testing.T) {
	allocator := newFakeAllocator()
	allocator.block = make(chan struct{}) // never closed
	optimizer := preflight.NewOptimizer(
		allocator, 4, observability.NewNoOpLogger())

	desc := preflight.Descriptor{LocalID: "t1"}
	optimizer.QueueForPrefetch([]preflight.Descriptor{desc})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := optimizer.GetDestination(ctx, desc)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
