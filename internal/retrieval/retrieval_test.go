package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchwise/internal/apperr"
	"watchwise/internal/storage"
)

func vec(x, y float32) []float32 { return []float32{x, y, 0, 0} }

func seed(t *testing.T, m *storage.Memory, user, title string, v []float32) {
	t.Helper()
	require.NoError(t, m.UpsertEmbedding(context.Background(), storage.ItemEmbedding{
		UserID: user, Title: title, Description: title + " description", Embedding: v, UserRating: 5,
	}))
}

func TestCandidates_ColdStart(t *testing.T) {
	r := New(storage.NewMemory(), DefaultOptions())
	got, err := r.Candidates(context.Background(), "nobody", Exclusions{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCandidates_ExcludesSeedsWatchedAndHistory(t *testing.T) {
	m := storage.NewMemory()
	seed(t, m, "alice", "Contact", vec(1, 0.1))
	seed(t, m, "alice", "Interstellar", vec(1, 0.2))
	seed(t, m, "alice", "Sunshine", vec(1, 0.3))
	seed(t, m, "alice", "Amelie", vec(0, 1))
	seed(t, m, "alice", "Arrival", vec(1, 0))

	// only the most recent loved title seeds the search
	r := New(m, Options{Seeds: 1, PerSeed: 20, Threshold: 0.70, Limit: 30})
	got, err := r.Candidates(context.Background(), "alice", Exclusions{
		Watched: []string{"Interstellar"},
		History: []string{" sunshine "},
	})
	require.NoError(t, err)

	var titles []string
	for _, c := range got {
		titles = append(titles, c.Title)
		assert.Equal(t, "Arrival", c.Seed)
		assert.Greater(t, c.Similarity, 0.70)
	}
	assert.Equal(t, []string{"Contact"}, titles)
}

func TestCandidates_DeterministicMergeAndCap(t *testing.T) {
	m := storage.NewMemory()
	for i, title := range []string{"A1", "A2", "A3"} {
		seed(t, m, "alice", title, vec(1, float32(i+1)*0.1))
	}
	for i, title := range []string{"B1", "B2", "B3"} {
		seed(t, m, "alice", title, vec(float32(i+1)*0.1, 1))
	}
	seed(t, m, "alice", "SeedA", vec(1, 0))
	seed(t, m, "alice", "SeedB", vec(0, 1))

	r := New(m, Options{Seeds: 2, PerSeed: 20, Threshold: 0.70, Limit: 4})
	first, err := r.Candidates(context.Background(), "alice", Exclusions{})
	require.NoError(t, err)
	require.Len(t, first, 4)
	for i := 1; i < len(first); i++ {
		assert.GreaterOrEqual(t, first[i-1].Similarity, first[i].Similarity)
	}
	for i := 0; i < 5; i++ {
		again, err := r.Candidates(context.Background(), "alice", Exclusions{})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

type failingStore struct{ storage.Store }

func (failingStore) RecentLovedEmbeddings(ctx context.Context, userID string, limit int) ([]storage.ItemEmbedding, error) {
	return []storage.ItemEmbedding{{Title: "x", Embedding: vec(1, 0)}}, nil
}

func (failingStore) MatchTitles(ctx context.Context, userID string, q []float32, th float64, n int) ([]storage.TitleMatch, error) {
	return nil, apperr.ErrStorage
}

func TestCandidates_PropagatesQueryFailure(t *testing.T) {
	_, err := New(failingStore{}, DefaultOptions()).Candidates(context.Background(), "alice", Exclusions{})
	assert.True(t, errors.Is(err, apperr.ErrStorage))
}

func TestCandidates_OnlyReadsOwnIndex(t *testing.T) {
	m := storage.NewMemory()
	seed(t, m, "alice", "Contact", vec(1, 0.1))
	seed(t, m, "alice", "Arrival", vec(1, 0))
	seed(t, m, "bob", "Bob's private pick", vec(1, 0.05))
	seed(t, m, "bob", "Dune", vec(1, 0.02))

	r := New(m, Options{Seeds: 1, PerSeed: 20, Threshold: 0.70, Limit: 30})
	got, err := r.Candidates(context.Background(), "alice", Exclusions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Contact", got[0].Title)
	assert.Equal(t, "Arrival", got[0].Seed)

	bobs, err := r.Candidates(context.Background(), "bob", Exclusions{})
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.Equal(t, "Bob's private pick", bobs[0].Title)
}
