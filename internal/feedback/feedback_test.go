package feedback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchwise/internal/apperr"
	"watchwise/internal/storage"
)

type fakeEmbedder struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("rate limited")
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

// syncQueue processes jobs inline so tests can assert right after Rate.
type syncQueue struct {
	ix   *Indexer
	jobs []Job
}

func (q *syncQueue) Enqueue(job Job) bool {
	q.jobs = append(q.jobs, job)
	_ = q.ix.Process(context.Background(), job)
	return true
}

func fastOptions() IndexerOptions {
	return IndexerOptions{Workers: 1, QueueSize: 4, JobTimeout: 2 * time.Second, InitialInterval: time.Millisecond}
}

func setup(t *testing.T) (*storage.Memory, *Service, *syncQueue, storage.RatedItem) {
	t.Helper()
	store := storage.NewMemory()
	saved, err := store.SaveRecommendations(context.Background(), "u1", []storage.RatedItem{
		{Title: "Arrival", Type: "Movie", Genre: "Sci-Fi", Description: "Linguist meets aliens"},
	})
	require.NoError(t, err)
	emb := &fakeEmbedder{}
	q := &syncQueue{ix: NewIndexer(store, emb, nil, fastOptions())}
	return store, NewService(store, q, emb, nil), q, saved[0]
}

func TestRate_LovedTitleEmbeddedOnce(t *testing.T) {
	store, svc, q, item := setup(t)
	ctx := context.Background()

	_, err := svc.Rate(ctx, "u1", item.ID, 5)
	require.NoError(t, err)
	it, err := svc.Rate(ctx, "u1", item.ID, 4)
	require.NoError(t, err)

	assert.Equal(t, 4, *it.UserRating)
	assert.Len(t, q.jobs, 2)
	assert.Equal(t, 1, store.EmbeddingCount("u1", "Arrival"))
	e, ok := store.Embedding("u1", "Arrival")
	require.True(t, ok)
	assert.Equal(t, 4, e.UserRating)
}

func TestRate_LowRatingRemovesEmbedding(t *testing.T) {
	store, svc, q, item := setup(t)
	ctx := context.Background()

	_, err := svc.Rate(ctx, "u1", item.ID, 5)
	require.NoError(t, err)
	_, err = svc.Rate(ctx, "u1", item.ID, 2)
	require.NoError(t, err)

	assert.Len(t, q.jobs, 1)
	assert.Equal(t, 0, store.EmbeddingCount("u1", "Arrival"))
}

func TestRate_Validation(t *testing.T) {
	_, svc, _, item := setup(t)
	for _, r := range []int{0, 6, -1} {
		_, err := svc.Rate(context.Background(), "u1", item.ID, r)
		assert.ErrorIs(t, err, apperr.ErrValidation, "rating %d", r)
	}
	_, err := svc.Rate(context.Background(), "u2", item.ID, 5)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMarkWatched_DislikeOverridesRating(t *testing.T) {
	store, svc, _, item := setup(t)
	ctx := context.Background()

	_, err := svc.Rate(ctx, "u1", item.ID, 5)
	require.NoError(t, err)
	liked := false
	it, err := svc.MarkWatched(ctx, "u1", item.ID, true, &liked)
	require.NoError(t, err)

	assert.Equal(t, DislikeRating, *it.UserRating)
	assert.True(t, *it.Watched)
	assert.Equal(t, 0, store.EmbeddingCount("u1", "Arrival"))
}

func TestMarkWatched_KeepsRatingWithoutVerdict(t *testing.T) {
	store, svc, _, item := setup(t)
	ctx := context.Background()

	_, err := svc.Rate(ctx, "u1", item.ID, 5)
	require.NoError(t, err)
	liked := true
	it, err := svc.MarkWatched(ctx, "u1", item.ID, true, &liked)
	require.NoError(t, err)
	assert.Equal(t, 5, *it.UserRating)

	it, err = svc.MarkWatched(ctx, "u1", item.ID, false, nil)
	require.NoError(t, err)
	assert.False(t, *it.Watched)
	assert.Equal(t, 1, store.EmbeddingCount("u1", "Arrival"))
}

func TestIngest(t *testing.T) {
	store, svc, _, _ := setup(t)
	ctx := context.Background()

	err := svc.Ingest(ctx, "u1", "Dune", "Desert planet", 3)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	err = svc.Ingest(ctx, "u1", "   ", "", 5)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	require.NoError(t, svc.Ingest(ctx, "u1", "Dune", "Desert planet", 5))
	require.NoError(t, svc.Ingest(ctx, "u1", "Dune", "Desert planet", 4))
	assert.Equal(t, 1, store.EmbeddingCount("u1", "Dune"))
}

func TestIngest_NoEmbedder(t *testing.T) {
	svc := NewService(storage.NewMemory(), nil, nil, nil)
	err := svc.Ingest(context.Background(), "u1", "Dune", "", 5)
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
}

func TestIndexer_RetriesTransientFailures(t *testing.T) {
	store := storage.NewMemory()
	emb := &fakeEmbedder{failures: 2}
	ix := NewIndexer(store, emb, nil, fastOptions())

	err := ix.Process(context.Background(), Job{UserID: "u1", Title: "Dune", Rating: 5})
	require.NoError(t, err)
	assert.Equal(t, 3, emb.calls)
	assert.Equal(t, 1, store.EmbeddingCount("u1", "Dune"))
}

func TestIndexer_SkipsStaleJob(t *testing.T) {
	store, _, _, item := setup(t)
	_, err := store.SetRating(context.Background(), "u1", item.ID, 2)
	require.NoError(t, err)

	emb := &fakeEmbedder{}
	ix := NewIndexer(store, emb, nil, fastOptions())
	err = ix.Process(context.Background(), Job{UserID: "u1", ItemID: item.ID, Title: item.Title, Rating: 5})
	require.NoError(t, err)
	assert.Equal(t, 0, emb.calls)
	assert.Equal(t, 0, store.EmbeddingCount("u1", "Arrival"))
}

func TestIndexer_QueueFullDrops(t *testing.T) {
	ix := NewIndexer(storage.NewMemory(), &fakeEmbedder{}, nil, IndexerOptions{QueueSize: 1})
	assert.True(t, ix.Enqueue(Job{UserID: "u1", Title: "A", Rating: 5}))
	assert.False(t, ix.Enqueue(Job{UserID: "u1", Title: "B", Rating: 5}))
}

func TestIndexer_WorkersDrainOnStop(t *testing.T) {
	store := storage.NewMemory()
	ix := NewIndexer(store, &fakeEmbedder{}, nil, fastOptions())
	ix.Start(context.Background())

	require.True(t, ix.Enqueue(Job{UserID: "u1", Title: "Dune", Rating: 5}))
	require.True(t, ix.Enqueue(Job{UserID: "u1", Title: "Up", Rating: 4}))
	ix.Stop()

	assert.Equal(t, 1, store.EmbeddingCount("u1", "Dune"))
	assert.Equal(t, 1, store.EmbeddingCount("u1", "Up"))
	assert.False(t, ix.Enqueue(Job{UserID: "u1", Title: "Late", Rating: 5}))
}

func TestReconciler_RequeuesMissing(t *testing.T) {
	store, _, q, item := setup(t)
	ctx := context.Background()
	_, err := store.SetRating(ctx, "u1", item.ID, 5)
	require.NoError(t, err)

	n, err := NewReconciler(store, q, 10).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, store.EmbeddingCount("u1", "Arrival"))

	n, err = NewReconciler(store, q, 10).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
