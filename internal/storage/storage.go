package storage

import (
	"context"
	"time"
)

// RatedItem is a recommendation shown to a user, later rated or marked
// watched. Rows are never deleted.
type RatedItem struct {
	ID            string    `json:"id" gorm:"primaryKey;type:uuid"`
	UserID        string    `json:"-" gorm:"not null;index:idx_rated_items_user_created,priority:1"`
	Title         string    `json:"title" gorm:"not null"`
	Type          string    `json:"type" gorm:"not null"`
	Genre         string    `json:"genre"`
	Description   string    `json:"description" gorm:"type:text"`
	MatchReason   string    `json:"matchReason" gorm:"type:text"`
	Rating        string    `json:"rating"`
	ContentRating string    `json:"contentRating,omitempty"`
	UserRating    *int      `json:"userRating,omitempty"`
	Watched       *bool     `json:"watched,omitempty"`
	CreatedAt     time.Time `json:"createdAt" gorm:"not null;index:idx_rated_items_user_created,priority:2"`
	UpdatedAt     time.Time `json:"updatedAt" gorm:"not null"`
}

func (RatedItem) TableName() string { return "rated_items" }

// ItemEmbedding is the vector of a title the user loved. Unique per
// (UserID, Title); only ratings of 4 and 5 are stored.
type ItemEmbedding struct {
	UserID      string
	Title       string
	Description string
	Embedding   []float32
	UserRating  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TitleMatch is one similarity hit. Similarity is 1 - cosine distance.
type TitleMatch struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Similarity  float64 `json:"similarity"`
}

// MinEmbeddingRating is the lowest rating that keeps an embedding.
const MinEmbeddingRating = 4

// Store is the persistence contract. Every per-user method is scoped to
// userID; an item owned by someone else is reported as apperr.ErrNotFound.
// Failures wrap apperr.ErrStorage.
type Store interface {
	// SaveRecommendations inserts a batch, assigning ids and timestamps.
	SaveRecommendations(ctx context.Context, userID string, items []RatedItem) ([]RatedItem, error)
	GetItem(ctx context.Context, userID, id string) (RatedItem, error)
	SetRating(ctx context.Context, userID, id string, rating int) (RatedItem, error)
	// SetWatched stores watched and, when rating is non-nil, overwrites the
	// user rating.
	SetWatched(ctx context.Context, userID, id string, watched bool, rating *int) (RatedItem, error)

	// RecentRated returns rated items, most recently updated first.
	RecentRated(ctx context.Context, userID string, limit int) ([]RatedItem, error)
	// ListHistory returns every item, most recently created first.
	ListHistory(ctx context.Context, userID string, limit int) ([]RatedItem, error)
	HistoryTitles(ctx context.Context, userID string) ([]string, error)
	WatchedTitles(ctx context.Context, userID string) ([]string, error)

	// RecentLovedEmbeddings returns embeddings rated 4 or 5, most recently
	// updated first.
	RecentLovedEmbeddings(ctx context.Context, userID string, limit int) ([]ItemEmbedding, error)
	// MatchTitles returns up to count of userID's embeddings with
	// similarity above threshold, best first.
	MatchTitles(ctx context.Context, userID string, query []float32, threshold float64, count int) ([]TitleMatch, error)
	// UpsertEmbedding inserts or replaces the (UserID, Title) embedding.
	UpsertEmbedding(ctx context.Context, e ItemEmbedding) error
	DeleteEmbedding(ctx context.Context, userID, title string) error
	// ItemsMissingEmbeddings returns items rated 4 or 5 that have no
	// embedding, across all users.
	ItemsMissingEmbeddings(ctx context.Context, limit int) ([]RatedItem, error)

	Close() error
}
