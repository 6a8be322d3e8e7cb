// Package workers holds the server's long-lived background tasks: the
// write-through synchronizer, the expiration sweeper and the metrics
// updater. Each runs as a goroutine owned by the app and stops on
// context cancellation; retry workers spawned for failing steps are
// detached and run to completion even during shutdown.
package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/cipherdrop/cipherdrop/internal/common"
	"github.com/cipherdrop/cipherdrop/internal/logging"
	"github.com/cipherdrop/cipherdrop/internal/server/cache"
	"github.com/cipherdrop/cipherdrop/internal/server/repositories/files"
	"github.com/cipherdrop/cipherdrop/internal/server/storage"
)

const (
	// syncRetryAttempts bounds each detached retry worker, the first
	// attempt included.
	syncRetryAttempts = 7

	// syncBackoffCapMinutes caps the exponential backoff step.
	syncBackoffCapMinutes = 60
)

// errSyncAborted stops a backend retry worker once the file expired or
// its row vanished; there is nothing left worth persisting.
var errSyncAborted = errors.New("sync aborted, file gone")

type syncEntry struct {
	id   uuid.UUID
	data []byte
}

// Queue is the unbounded hand-off between the upload handler and the
// synchronizer. Enqueue never blocks.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entries []syncEntry
	closed  bool
}

func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *Queue) Enqueue(id uuid.UUID, data []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.entries = append(q.entries, syncEntry{id: id, data: data})
	q.cond.Signal()
}

// next blocks until an entry is available or the queue is closed. A
// closed queue still drains its remaining entries.
func (q *Queue) next() (syncEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.entries) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.entries) == 0 {
		return syncEntry{}, false
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e, true
}

func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Synchronizer drains the queue and makes each upload durable: store the
// blob in the backend, record the returned url on the row, drop the hot
// copy from the cache. A failing step spawns a detached retry worker so
// one slow tier never blocks the next upload.
type Synchronizer struct {
	queue    *Queue
	repo     files.Repository
	cache    *cache.Cache
	provider storage.Provider
	logger   logging.Logger

	// backoff builds the retry schedule; replaced in tests.
	backoff func() retry.Backoff

	workers sync.WaitGroup
}

func NewSynchronizer(queue *Queue, repo files.Repository, c *cache.Cache,
	provider storage.Provider, logger logging.Logger) *Synchronizer {
	return &Synchronizer{
		queue:    queue,
		repo:     repo,
		cache:    c,
		provider: provider,
		logger:   logger,
		backoff:  syncBackoff,
	}
}

// syncBackoff sleeps min(2^i, 60) minutes before retry i.
func syncBackoff() retry.Backoff {
	attempt := 0
	return retry.WithMaxRetries(syncRetryAttempts-1, retry.BackoffFunc(func() (time.Duration, bool) {
		step := 1 << attempt
		if step > syncBackoffCapMinutes {
			step = syncBackoffCapMinutes
		}
		attempt++
		return time.Duration(step) * time.Minute, false
	}))
}

// Run drains the queue until ctx is cancelled and the queue is empty.
func (s *Synchronizer) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.queue.Close()
	}()

	for {
		entry, ok := s.queue.next()
		if !ok {
			return
		}
		s.process(ctx, entry)
	}
}

// Wait blocks until all detached retry workers have finished.
func (s *Synchronizer) Wait() {
	s.workers.Wait()
}

func (s *Synchronizer) process(ctx context.Context, e syncEntry) {
	url, err := s.provider.Store(ctx, e.id, e.data)
	if err != nil {
		s.logger.Warn(ctx, "backend store failed, retrying in background",
			"uuid", e.id, "error", err)
		s.retryStore(ctx, e)
		return
	}
	s.finish(ctx, e.id, url)
}

// finish runs the post-store steps. Either step failing spawns its own
// retry worker; the other step still runs.
func (s *Synchronizer) finish(ctx context.Context, id uuid.UUID, url *string) {
	if err := s.repo.SetDataURL(ctx, id, url); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// row already deleted, the sweeper will reap the blob
			s.logger.Info(ctx, "data_url update skipped, file gone", "uuid", id)
		} else {
			s.logger.Warn(ctx, "data_url update failed, retrying in background",
				"uuid", id, "error", err)
			s.retrySetDataURL(ctx, id, url)
		}
	}

	if err := s.cache.Delete(id); err != nil {
		s.logger.Warn(ctx, "cache invalidation failed, retrying in background",
			"uuid", id, "error", err)
		s.retryCacheDelete(ctx, id)
	}
}

// retryStore keeps trying the backend write. Before each attempt it
// re-reads the row and aborts once the file expired or the row is gone;
// storing a blob no row references would only orphan it.
func (s *Synchronizer) retryStore(ctx context.Context, e syncEntry) {
	detached := context.WithoutCancel(ctx)
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()

		var url *string
		err := retry.Do(detached, s.backoff(), func(ctx context.Context) error {
			file, err := s.repo.GetByUUID(ctx, e.id)
			if errors.Is(err, common.ErrorNotFound) {
				return errSyncAborted
			}
			if err == nil && file.Expired(time.Now().UTC()) {
				return errSyncAborted
			}

			url, err = s.provider.Store(ctx, e.id, e.data)
			if err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if errors.Is(err, errSyncAborted) {
			s.logger.Info(detached, "backend retry abandoned, file gone", "uuid", e.id)
			return
		}
		if err != nil {
			s.logger.Error(detached, "backend store failed permanently", "uuid", e.id, "error", err)
			return
		}
		s.finish(detached, e.id, url)
	}()
}

func (s *Synchronizer) retrySetDataURL(ctx context.Context, id uuid.UUID, url *string) {
	detached := context.WithoutCancel(ctx)
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()

		err := retry.Do(detached, s.backoff(), func(ctx context.Context) error {
			err := s.repo.SetDataURL(ctx, id, url)
			if errors.Is(err, common.ErrorNotFound) {
				return errSyncAborted
			}
			if err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil && !errors.Is(err, errSyncAborted) {
			s.logger.Error(detached, "data_url update failed permanently", "uuid", id, "error", err)
		}
	}()
}

func (s *Synchronizer) retryCacheDelete(ctx context.Context, id uuid.UUID) {
	detached := context.WithoutCancel(ctx)
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()

		err := retry.Do(detached, s.backoff(), func(context.Context) error {
			if err := s.cache.Delete(id); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			s.logger.Error(detached, "cache invalidation failed permanently", "uuid", id, "error", err)
		}
	}()
}
