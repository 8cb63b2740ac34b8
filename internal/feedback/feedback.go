// Package feedback persists ratings and watched state and keeps the
// embedding index in step with them.
package feedback

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"watchwise/internal/apperr"
	"watchwise/internal/llm"
	"watchwise/internal/storage"
)

// DislikeRating is what a watched-and-disliked title is rated.
const DislikeRating = 1

type Service struct {
	store    storage.Store
	queue    Enqueuer
	embedder llm.Embedder
	journal  storage.Recorder
}

func NewService(store storage.Store, queue Enqueuer, embedder llm.Embedder, journal storage.Recorder) *Service {
	return &Service{store: store, queue: queue, embedder: embedder, journal: journal}
}

// Rate stores a 1..5 rating. A rating of 4 or 5 queues the title for
// embedding; anything lower removes an existing embedding.
func (s *Service) Rate(ctx context.Context, userID, recID string, rating int) (storage.RatedItem, error) {
	if rating < 1 || rating > 5 {
		return storage.RatedItem{}, apperr.Invalid("rating", "must be between 1 and 5")
	}
	it, err := s.store.SetRating(ctx, userID, recID, rating)
	if err != nil {
		return storage.RatedItem{}, fmt.Errorf("save rating: %w", err)
	}
	storage.Record(s.journal, storage.Event{Kind: storage.EventRating, UserID: userID, Title: it.Title, Rating: rating})

	if rating >= storage.MinEmbeddingRating {
		s.enqueue(it, rating)
	} else {
		s.dropEmbedding(ctx, userID, it.Title)
	}
	return it, nil
}

// MarkWatched stores watched state. liked=false overrides any rating with
// DislikeRating and removes the embedding.
func (s *Service) MarkWatched(ctx context.Context, userID, recID string, watched bool, liked *bool) (storage.RatedItem, error) {
	var rating *int
	if liked != nil && !*liked {
		r := DislikeRating
		rating = &r
	}
	it, err := s.store.SetWatched(ctx, userID, recID, watched, rating)
	if err != nil {
		return storage.RatedItem{}, fmt.Errorf("save watched state: %w", err)
	}
	ev := storage.Event{Kind: storage.EventWatched, UserID: userID, Title: it.Title}
	if rating != nil {
		ev.Rating = *rating
		s.dropEmbedding(ctx, userID, it.Title)
	}
	storage.Record(s.journal, ev)
	return it, nil
}

// Ingest embeds and stores a loved title synchronously. It is idempotent
// per (user, title).
func (s *Service) Ingest(ctx context.Context, userID, title, description string, rating int) error {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	fields := map[string]string{}
	if title == "" {
		fields["title"] = "is required"
	} else if utf8.RuneCountInString(title) > 200 {
		fields["title"] = "must be at most 200 characters"
	}
	if utf8.RuneCountInString(description) > 2000 {
		fields["description"] = "must be at most 2000 characters"
	}
	if rating < storage.MinEmbeddingRating || rating > 5 {
		fields["rating"] = fmt.Sprintf("must be between %d and 5", storage.MinEmbeddingRating)
	}
	if len(fields) > 0 {
		return &apperr.FieldError{Fields: fields}
	}
	if s.embedder == nil {
		return fmt.Errorf("ingest embedding: %w", apperr.ErrUpstreamUnavailable)
	}
	job := Job{UserID: userID, Title: title, Description: description, Rating: rating}
	if err := embedAndStore(ctx, s.store, s.embedder, job); err != nil {
		return fmt.Errorf("ingest embedding: %w", err)
	}
	storage.Record(s.journal, storage.Event{Kind: storage.EventEmbedding, UserID: userID, Title: title, Rating: rating})
	return nil
}

func (s *Service) enqueue(it storage.RatedItem, rating int) {
	if s.queue == nil {
		return
	}
	ok := s.queue.Enqueue(Job{UserID: it.UserID, ItemID: it.ID, Title: it.Title, Description: it.Description, Rating: rating})
	if !ok {
		log.WithFields(log.Fields{"user_id": it.UserID, "rec_id": it.ID}).Warn("embedding job not queued; reconciliation will retry")
	}
}

// dropEmbedding is best effort; the rating write already succeeded.
func (s *Service) dropEmbedding(ctx context.Context, userID, title string) {
	if err := s.store.DeleteEmbedding(ctx, userID, title); err != nil {
		log.WithFields(log.Fields{"user_id": userID, "title": title}).WithError(err).Warn("failed to remove embedding")
	}
}
