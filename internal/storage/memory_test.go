package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchwise/internal/apperr"
)

func vec(values ...float32) []float32 {
	out := make([]float32, 4)
	copy(out, values)
	return out
}

func TestMemory_SaveAndScope(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	saved, err := m.SaveRecommendations(ctx, "alice", []RatedItem{{Title: "Arrival", Type: "Movie"}, {Title: "Dark", Type: "Series"}})
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.NotEmpty(t, saved[0].ID)
	assert.NotEqual(t, saved[0].ID, saved[1].ID)

	_, err = m.GetItem(ctx, "bob", saved[0].ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = m.SetRating(ctx, "bob", saved[0].ID, 5)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	history, err := m.ListHistory(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Dark", history[0].Title, "most recent first")
}

func TestMemory_RatingAndWatched(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	saved, _ := m.SaveRecommendations(ctx, "alice", []RatedItem{{Title: "Arrival"}, {Title: "Dune"}})

	it, err := m.SetRating(ctx, "alice", saved[0].ID, 5)
	require.NoError(t, err)
	require.NotNil(t, it.UserRating)
	assert.Equal(t, 5, *it.UserRating)

	one := 1
	it, err = m.SetWatched(ctx, "alice", saved[0].ID, true, &one)
	require.NoError(t, err)
	assert.Equal(t, 1, *it.UserRating)
	assert.True(t, *it.Watched)

	rated, err := m.RecentRated(ctx, "alice", 30)
	require.NoError(t, err)
	require.Len(t, rated, 1)

	watched, err := m.WatchedTitles(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"Arrival"}, watched)

	titles, err := m.HistoryTitles(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"Arrival", "Dune"}, titles)
}

func TestMemory_UpsertEmbedding(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.UpsertEmbedding(ctx, ItemEmbedding{UserID: "alice", Title: "Arrival", Description: "old", Embedding: vec(1), UserRating: 5}))
	require.NoError(t, m.UpsertEmbedding(ctx, ItemEmbedding{UserID: "alice", Title: "Arrival", Description: "new", Embedding: vec(0, 1), UserRating: 4}))

	assert.Equal(t, 1, m.EmbeddingCount("alice", "Arrival"))
	e, ok := m.Embedding("alice", "Arrival")
	require.True(t, ok)
	assert.Equal(t, "new", e.Description)
	assert.Equal(t, vec(0, 1), e.Embedding)

	err := m.UpsertEmbedding(ctx, ItemEmbedding{UserID: "alice", Title: "Bad", Embedding: vec(1), UserRating: 3})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, 0, m.EmbeddingCount("alice", "Bad"))

	require.NoError(t, m.DeleteEmbedding(ctx, "alice", "Arrival"))
	assert.Equal(t, 0, m.EmbeddingCount("alice", "Arrival"))
}

func TestMemory_MatchTitles(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.UpsertEmbedding(ctx, ItemEmbedding{UserID: "a", Title: "Same", Embedding: vec(1, 0), UserRating: 5}))
	require.NoError(t, m.UpsertEmbedding(ctx, ItemEmbedding{UserID: "b", Title: "Close", Embedding: vec(1, 0.2), UserRating: 5}))
	require.NoError(t, m.UpsertEmbedding(ctx, ItemEmbedding{UserID: "a", Title: "Far", Embedding: vec(0, 1), UserRating: 5}))

	require.NoError(t, m.UpsertEmbedding(ctx, ItemEmbedding{UserID: "a", Title: "Near", Embedding: vec(1, 0.3), UserRating: 4}))

	got, err := m.MatchTitles(ctx, "a", vec(1, 0), 0.70, 20)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Same", got[0].Title)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
	assert.Equal(t, "Near", got[1].Title)

	// b's row is never visible to a
	other, err := m.MatchTitles(ctx, "b", vec(1, 0), 0.70, 20)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, "Close", other[0].Title)

	none, err := m.MatchTitles(ctx, "nobody", vec(1, 0), 0.0, 20)
	require.NoError(t, err)
	assert.Empty(t, none)

	capped, err := m.MatchTitles(ctx, "a", vec(1, 0), 0.70, 1)
	require.NoError(t, err)
	assert.Len(t, capped, 1)

	// strictly greater than the threshold
	exact, err := m.MatchTitles(ctx, "a", vec(1, 0), 1.0, 5)
	require.NoError(t, err)
	assert.Empty(t, exact)
}

func TestMemory_ItemsMissingEmbeddings(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	saved, _ := m.SaveRecommendations(ctx, "alice", []RatedItem{{Title: "Loved"}, {Title: "Meh"}, {Title: "Indexed"}})
	_, _ = m.SetRating(ctx, "alice", saved[0].ID, 5)
	_, _ = m.SetRating(ctx, "alice", saved[1].ID, 2)
	_, _ = m.SetRating(ctx, "alice", saved[2].ID, 4)
	require.NoError(t, m.UpsertEmbedding(ctx, ItemEmbedding{UserID: "alice", Title: "Indexed", Embedding: vec(1), UserRating: 4}))

	missing, err := m.ItemsMissingEmbeddings(ctx, 10)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "Loved", missing[0].Title)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity(vec(1, 1), vec(2, 2)), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity(vec(1, 0), vec(0, 1)), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity(vec(1), []float32{1}))
	assert.Equal(t, 0.0, CosineSimilarity(vec(), vec()))
}
