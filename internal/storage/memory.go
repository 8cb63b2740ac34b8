package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"watchwise/internal/apperr"
)

type embeddingKey struct {
	userID string
	title  string
}

// Memory is an in-process Store for tests and local runs.
type Memory struct {
	mu         sync.RWMutex
	items      map[string]RatedItem
	embeddings map[embeddingKey]ItemEmbedding
	now        func() time.Time
	// lastEmbedded orders embedding writes strictly
	lastEmbedded time.Time
}

func NewMemory() *Memory {
	return &Memory{
		items:      make(map[string]RatedItem),
		embeddings: make(map[embeddingKey]ItemEmbedding),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) SaveRecommendations(ctx context.Context, userID string, items []RatedItem) ([]RatedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := make([]RatedItem, len(items))
	for i, it := range items {
		it.ID = uuid.NewString()
		it.UserID = userID
		// keep insertion order visible to created_at ordering
		it.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		it.UpdatedAt = it.CreatedAt
		m.items[it.ID] = it
		out[i] = it
	}
	return out, nil
}

func (m *Memory) GetItem(ctx context.Context, userID, id string) (RatedItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.owned(userID, id)
}

func (m *Memory) owned(userID, id string) (RatedItem, error) {
	it, ok := m.items[id]
	if !ok || it.UserID != userID {
		return RatedItem{}, fmt.Errorf("item %s: %w", id, apperr.ErrNotFound)
	}
	return it, nil
}

func (m *Memory) SetRating(ctx context.Context, userID, id string, rating int) (RatedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, err := m.owned(userID, id)
	if err != nil {
		return RatedItem{}, err
	}
	r := rating
	it.UserRating = &r
	it.UpdatedAt = m.tick(it.UpdatedAt)
	m.items[id] = it
	return it, nil
}

func (m *Memory) SetWatched(ctx context.Context, userID, id string, watched bool, rating *int) (RatedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, err := m.owned(userID, id)
	if err != nil {
		return RatedItem{}, err
	}
	w := watched
	it.Watched = &w
	if rating != nil {
		r := *rating
		it.UserRating = &r
	}
	it.UpdatedAt = m.tick(it.UpdatedAt)
	m.items[id] = it
	return it, nil
}

// tick returns a timestamp strictly after prev so rapid updates keep a
// stable recency order.
func (m *Memory) tick(prev time.Time) time.Time {
	now := m.now()
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

func (m *Memory) userItems(userID string, keep func(RatedItem) bool) []RatedItem {
	var out []RatedItem
	for _, it := range m.items {
		if it.UserID == userID && (keep == nil || keep(it)) {
			out = append(out, it)
		}
	}
	return out
}

func (m *Memory) RecentRated(ctx context.Context, userID string, limit int) ([]RatedItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.userItems(userID, func(it RatedItem) bool { return it.UserRating != nil })
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return capItems(out, limit), nil
}

func (m *Memory) ListHistory(ctx context.Context, userID string, limit int) ([]RatedItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.userItems(userID, nil)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return capItems(out, limit), nil
}

func (m *Memory) HistoryTitles(ctx context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return distinctTitles(m.userItems(userID, nil)), nil
}

func (m *Memory) WatchedTitles(ctx context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return distinctTitles(m.userItems(userID, func(it RatedItem) bool { return it.Watched != nil && *it.Watched })), nil
}

func (m *Memory) RecentLovedEmbeddings(ctx context.Context, userID string, limit int) ([]ItemEmbedding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ItemEmbedding
	for k, e := range m.embeddings {
		if k.userID == userID && e.UserRating >= MinEmbeddingRating {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].Title < out[j].Title
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) MatchTitles(ctx context.Context, userID string, query []float32, threshold float64, count int) ([]TitleMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []TitleMatch
	for k, e := range m.embeddings {
		if k.userID != userID {
			continue
		}
		sim := CosineSimilarity(query, e.Embedding)
		if sim > threshold {
			out = append(out, TitleMatch{Title: e.Title, Description: e.Description, Similarity: sim})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Title < out[j].Title
	})
	if count > 0 && len(out) > count {
		out = out[:count]
	}
	return out, nil
}

func (m *Memory) UpsertEmbedding(ctx context.Context, e ItemEmbedding) error {
	if e.UserRating < MinEmbeddingRating {
		return fmt.Errorf("embedding for rating %d: %w", e.UserRating, apperr.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := embeddingKey{userID: e.UserID, title: e.Title}
	e.Embedding = append([]float32(nil), e.Embedding...)
	e.UpdatedAt = m.tick(m.lastEmbedded)
	e.CreatedAt = e.UpdatedAt
	if prev, ok := m.embeddings[key]; ok {
		e.CreatedAt = prev.CreatedAt
	}
	m.lastEmbedded = e.UpdatedAt
	m.embeddings[key] = e
	return nil
}

func (m *Memory) DeleteEmbedding(ctx context.Context, userID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.embeddings, embeddingKey{userID: userID, title: title})
	return nil
}

func (m *Memory) ItemsMissingEmbeddings(ctx context.Context, limit int) ([]RatedItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RatedItem
	for _, it := range m.items {
		if it.UserRating == nil || *it.UserRating < MinEmbeddingRating {
			continue
		}
		if _, ok := m.embeddings[embeddingKey{userID: it.UserID, title: it.Title}]; ok {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return capItems(out, limit), nil
}

// EmbeddingCount is the number of stored embeddings for (userID, title).
func (m *Memory) EmbeddingCount(userID, title string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.embeddings[embeddingKey{userID: userID, title: title}]; ok {
		return 1
	}
	return 0
}

// Embedding returns the stored embedding for (userID, title).
func (m *Memory) Embedding(userID, title string) (ItemEmbedding, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.embeddings[embeddingKey{userID: userID, title: title}]
	return e, ok
}

func (m *Memory) Close() error { return nil }

// CosineSimilarity is 1 - cosine distance. Mismatched or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func capItems(items []RatedItem, limit int) []RatedItem {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func distinctTitles(items []RatedItem) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		k := strings.ToLower(strings.TrimSpace(it.Title))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, it.Title)
	}
	sort.Strings(out)
	return out
}
