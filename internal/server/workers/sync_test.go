package workers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipherdrop/cipherdrop/internal/common"
	"github.com/cipherdrop/cipherdrop/internal/logging"
	"github.com/cipherdrop/cipherdrop/internal/server/cache"
	"github.com/cipherdrop/cipherdrop/internal/server/config"
	"github.com/cipherdrop/cipherdrop/internal/server/models"
	"github.com/cipherdrop/cipherdrop/internal/server/repositories/files"
	"github.com/cipherdrop/cipherdrop/internal/server/storage"
)

// ---- fakes ----

type fakeProvider struct {
	mu      sync.Mutex
	objects map[uuid.UUID][]byte
	urlBase string

	storeFailures int // fail this many Store calls before succeeding
	storeCalls    int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{objects: make(map[uuid.UUID][]byte)}
}

func (p *fakeProvider) Store(_ context.Context, id uuid.UUID, data []byte) (*string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.storeCalls++
	if p.storeFailures > 0 {
		p.storeFailures--
		return nil, errors.New("backend down")
	}
	p.objects[id] = data
	if p.urlBase != "" {
		u := p.urlBase + "/" + id.String()
		return &u, nil
	}
	return nil, nil
}

func (p *fakeProvider) Get(_ context.Context, id uuid.UUID) (*storage.Fetch, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.objects[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &storage.Fetch{Data: data}, nil
}

func (p *fakeProvider) Delete(_ context.Context, id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.objects, id)
	return nil
}

func (p *fakeProvider) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.objects[id]
	return ok, nil
}

func (p *fakeProvider) UsedStorage(_ context.Context) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var total uint64
	for _, data := range p.objects {
		total += uint64(len(data))
	}
	return total, nil
}

func (p *fakeProvider) stored(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.objects[id]
	return ok
}

type flakyRepo struct {
	*files.InMemoryRepository

	mu                 sync.Mutex
	setDataURLFailures int
}

func (r *flakyRepo) SetDataURL(ctx context.Context, id uuid.UUID, dataURL *string) error {
	r.mu.Lock()
	if r.setDataURLFailures > 0 {
		r.setDataURLFailures--
		r.mu.Unlock()
		return errors.New("db down")
	}
	r.mu.Unlock()
	return r.InMemoryRepository.SetDataURL(ctx, id, dataURL)
}

// ---- helpers ----

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func memoryCache(t *testing.T) *cache.Cache {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	c, err := cache.NewFromConfig(cfg)
	require.NoError(t, err)
	return c
}

// noBackoff keeps retry counts but removes the sleeps.
func noBackoff() retry.Backoff {
	return retry.WithMaxRetries(syncRetryAttempts-1, retry.BackoffFunc(func() (time.Duration, bool) {
		return 0, false
	}))
}

func insertFile(t *testing.T, repo files.Repository, expiresAt time.Time) *models.File {
	t.Helper()
	now := time.Now().UTC()
	file := &models.File{
		UUID:        uuid.New(),
		AccessToken: uuid.NewString(),
		UpdateToken: "u",
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	}
	_, err := repo.Insert(context.Background(), file)
	require.NoError(t, err)
	return file
}

// ---- tests ----

func TestSynchronizerPersistsAndInvalidates(t *testing.T) {
	repo := files.NewInMemoryRepository()
	c := memoryCache(t)
	provider := newFakeProvider()
	provider.urlBase = "https://files.example.com"
	queue := NewQueue()

	s := NewSynchronizer(queue, repo, c, provider, testLogger())

	file := insertFile(t, repo, time.Now().UTC().Add(time.Hour))
	require.NoError(t, c.Put(file.UUID, []byte("ciphertext")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	queue.Enqueue(file.UUID, []byte("ciphertext"))

	assert.Eventually(t, func() bool {
		stored, err := repo.GetByUUID(context.Background(), file.UUID)
		return err == nil && stored.DataURL != nil && !c.Exists(file.UUID) && provider.stored(file.UUID)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	stored, err := repo.GetByUUID(context.Background(), file.UUID)
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/"+file.UUID.String(), *stored.DataURL)
}

func TestSynchronizerDrainsQueueOnShutdown(t *testing.T) {
	repo := files.NewInMemoryRepository()
	c := memoryCache(t)
	provider := newFakeProvider()
	queue := NewQueue()
	s := NewSynchronizer(queue, repo, c, provider, testLogger())

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		file := insertFile(t, repo, time.Now().UTC().Add(time.Hour))
		queue.Enqueue(file.UUID, []byte("x"))
		ids = append(ids, file.UUID)
	}

	// already-cancelled context: Run must still drain what was enqueued
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Run(ctx)

	for _, id := range ids {
		assert.True(t, provider.stored(id))
	}
}

func TestSynchronizerRetriesBackendFailure(t *testing.T) {
	repo := files.NewInMemoryRepository()
	c := memoryCache(t)
	provider := newFakeProvider()
	provider.storeFailures = 3
	queue := NewQueue()

	s := NewSynchronizer(queue, repo, c, provider, testLogger())
	s.backoff = noBackoff

	file := insertFile(t, repo, time.Now().UTC().Add(time.Hour))
	require.NoError(t, c.Put(file.UUID, []byte("ciphertext")))
	queue.Enqueue(file.UUID, []byte("ciphertext"))
	queue.Close()
	s.Run(context.Background())
	s.Wait()

	assert.True(t, provider.stored(file.UUID))
	assert.False(t, c.Exists(file.UUID))
	assert.Equal(t, 4, provider.storeCalls)
}

func TestSynchronizerAbortsRetryOnceExpired(t *testing.T) {
	repo := files.NewInMemoryRepository()
	c := memoryCache(t)
	provider := newFakeProvider()
	provider.storeFailures = 100
	queue := NewQueue()

	s := NewSynchronizer(queue, repo, c, provider, testLogger())
	s.backoff = noBackoff

	file := insertFile(t, repo, time.Now().UTC().Add(-time.Second))
	queue.Enqueue(file.UUID, []byte("ciphertext"))
	queue.Close()
	s.Run(context.Background())
	s.Wait()

	// one failed inline attempt, then the retry worker saw the expiry
	assert.Equal(t, 1, provider.storeCalls)
	assert.False(t, provider.stored(file.UUID))
}

func TestSynchronizerGivesUpAfterSevenAttempts(t *testing.T) {
	repo := files.NewInMemoryRepository()
	c := memoryCache(t)
	provider := newFakeProvider()
	provider.storeFailures = 100
	queue := NewQueue()

	s := NewSynchronizer(queue, repo, c, provider, testLogger())
	s.backoff = noBackoff

	file := insertFile(t, repo, time.Now().UTC().Add(time.Hour))
	queue.Enqueue(file.UUID, []byte("ciphertext"))
	queue.Close()
	s.Run(context.Background())
	s.Wait()

	// one inline attempt plus seven in the retry worker
	assert.Equal(t, 1+syncRetryAttempts, provider.storeCalls)
	assert.False(t, provider.stored(file.UUID))
}

func TestSynchronizerRetriesDataURLUpdate(t *testing.T) {
	repo := &flakyRepo{InMemoryRepository: files.NewInMemoryRepository(), setDataURLFailures: 2}
	c := memoryCache(t)
	provider := newFakeProvider()
	provider.urlBase = "https://files.example.com"
	queue := NewQueue()

	s := NewSynchronizer(queue, repo, c, provider, testLogger())
	s.backoff = noBackoff

	file := insertFile(t, repo, time.Now().UTC().Add(time.Hour))
	queue.Enqueue(file.UUID, []byte("ciphertext"))
	queue.Close()
	s.Run(context.Background())
	s.Wait()

	stored, err := repo.GetByUUID(context.Background(), file.UUID)
	require.NoError(t, err)
	require.NotNil(t, stored.DataURL)
}

func TestSynchronizerSkipsDataURLForDeletedRow(t *testing.T) {
	repo := files.NewInMemoryRepository()
	c := memoryCache(t)
	provider := newFakeProvider()
	provider.urlBase = "https://files.example.com"
	queue := NewQueue()

	s := NewSynchronizer(queue, repo, c, provider, testLogger())
	s.backoff = noBackoff

	// enqueue an id no row references
	id := uuid.New()
	queue.Enqueue(id, []byte("ciphertext"))
	queue.Close()
	s.Run(context.Background())
	s.Wait()

	// the blob was stored; the sweeper owns cleaning it up
	assert.True(t, provider.stored(id))
}

func TestQueueEnqueueAfterCloseDropped(t *testing.T) {
	queue := NewQueue()
	queue.Close()
	queue.Enqueue(uuid.New(), []byte("x"))

	_, ok := queue.next()
	assert.False(t, ok)
}
