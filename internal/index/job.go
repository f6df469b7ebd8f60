package index

import (
	"context"
	"sync"
)

// BuildJob tracks a background collection build. Callers observe completion
// via Done or Wait and read the terminal error via Err — build failures are
// never silently dropped.
type BuildJob struct {
	collection string
	done       chan struct{}

	mu  sync.Mutex
	err error
}

// Collection returns the name of the collection being built.
func (j *BuildJob) Collection() string { return j.collection }

// Done returns a channel that is closed when the build finishes.
func (j *BuildJob) Done() <-chan struct{} { return j.done }

// Err returns the build error, or nil. It is only meaningful after Done is
// closed.
func (j *BuildJob) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Wait blocks until the build finishes or ctx is cancelled, returning the
// build error in the former case and the context error in the latter.
func (j *BuildJob) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BuildAsync starts EnsureBuilt for the named collection on a background
// goroutine so callers are never blocked by index building. The returned job
// exposes completion and failure; the error is also logged.
func (ix *EmbeddingIndex) BuildAsync(ctx context.Context, collection string) *BuildJob {
	job := &BuildJob{
		collection: collection,
		done:       make(chan struct{}),
	}
	go func() {
		defer close(job.done)
		if err := ix.EnsureBuilt(ctx, collection); err != nil {
			job.mu.Lock()
			job.err = err
			job.mu.Unlock()
			ix.log.Error("index: background build failed",
				"collection", collection,
				"error", err)
		}
	}()
	return job
}
