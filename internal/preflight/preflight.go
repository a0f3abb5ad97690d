// Package preflight hides destination allocation latency by requesting
// upload destinations before the engine needs them.
package preflight

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/framehub/framehub/core/internal/api"
	"github.com/framehub/framehub/core/internal/observability"
)

// Descriptor identifies a file that needs an upload destination.
type Descriptor struct {
	LocalID  string
	MimeType string
	FileSize int64
	Filename string
}

// Allocator requests upload destinations, idempotent on LocalID.
type Allocator interface {
	AllocateDestination(
		ctx context.Context,
		req api.DestinationRequest,
	) (*api.Destination, error)
}

// Optimizer prefetches destinations in the background.
//
// Prefetching is purely a latency optimization: GetDestination falls
// back to a synchronous allocation, so engine progress never depends
// on prefetch timing.
type Optimizer struct {
	allocator Allocator
	logger    *observability.CoreLogger

	// workerPool bounds background allocation concurrency. Allocation
	// is a cheap metadata call, so this is independent of (and higher
	// than) the transfer concurrency.
	workerPool *errgroup.Group

	mu      sync.Mutex
	entries map[string]*entry
}

// entry tracks one descriptor's allocation.
//
// done is closed once dest/err are set; after that they are read-only.
type entry struct {
	done chan struct{}
	dest *api.Destination
	err  error
}

func NewOptimizer(
	allocator Allocator,
	prefetchConcurrency int,
	logger *observability.CoreLogger,
) *Optimizer {
	pool := &errgroup.Group{}
	pool.SetLimit(prefetchConcurrency)

	o := &Optimizer{
		allocator:  allocator,
		logger:     logger,
		workerPool: pool,
		entries:    make(map[string]*entry),
	}
	return o
}

// QueueForPrefetch begins allocating destinations for any descriptors
// not yet resolved or in flight.
func (o *Optimizer) QueueForPrefetch(descriptors []Descriptor) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, desc := range descriptors {
		if _, ok := o.entries[desc.LocalID]; ok {
			continue
		}

		e := &entry{done: make(chan struct{})}
		o.entries[desc.LocalID] = e

		desc := desc
		o.workerPool.Go(func() error {
			o.resolve(context.Background(), e, desc)
			return nil
		})
	}
}

// GetDestination returns the prefetched destination for the descriptor,
// or allocates one on demand.
//
// Calling this twice for the same descriptor returns the same
// destination; a destination is never allocated twice for one task.
func (o *Optimizer) GetDestination(
	ctx context.Context,
	desc Descriptor,
) (*api.Destination, error) {
	o.mu.Lock()

	e, ok := o.entries[desc.LocalID]
	if ok {
		select {
		case <-e.done:
			if e.err == nil {
				o.mu.Unlock()
				return e.dest, nil
			}
			// The prefetch failed; retry synchronously below. Waiters
			// that arrive meanwhile block on the fresh entry.
		default:
			// Still in flight; wait for the prefetch outside the lock.
			o.mu.Unlock()
			select {
			case <-e.done:
				return e.dest, e.err
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	e = &entry{done: make(chan struct{})}
	o.entries[desc.LocalID] = e
	o.mu.Unlock()

	o.resolve(ctx, e, desc)
	return e.dest, e.err
}

// resolve allocates a destination and publishes the result on e.
func (o *Optimizer) resolve(ctx context.Context, e *entry, desc Descriptor) {
	dest, err := o.allocator.AllocateDestination(ctx, api.DestinationRequest{
		LocalID:          desc.LocalID,
		MimeType:         desc.MimeType,
		FileSize:         desc.FileSize,
		OriginalFilename: desc.Filename,
	})

	if err != nil {
		o.logger.Warn(
			"preflight: allocation failed",
			"localId", desc.LocalID,
			"error", err,
		)
	}

	e.dest = dest
	e.err = err
	close(e.done)
}

// Clear discards unconsumed destinations.
//
// Destinations are leases that expire server-side, so no explicit
// release call is needed. In-flight prefetches finish against the old
// entries and are dropped.
func (o *Optimizer) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.entries = make(map[string]*entry)
}
