// Package recommend runs the pipeline behind every transport: conversation
// steps, recommendation batches and history reads.
package recommend

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"watchwise/internal/apperr"
	"watchwise/internal/conversation"
	"watchwise/internal/metrics"
	"watchwise/internal/patterns"
	"watchwise/internal/prefs"
	"watchwise/internal/retrieval"
	"watchwise/internal/storage"
	"watchwise/internal/synth"
	"watchwise/internal/validation"
)

// Request asks for one batch of recommendations.
type Request struct {
	Preferences  prefs.Set `json:"preferences"`
	WatchedShows []string  `json:"watchedShows" validate:"max=100,dive,max=200"`
	Region       string    `json:"region" validate:"max=100"`
}

type Response struct {
	Recommendations []synth.Recommendation `json:"recommendations"`
}

type Service struct {
	machine      *conversation.Machine
	store        storage.Store
	retriever    *retrieval.Retriever
	synth        *synth.Synthesizer
	journal      storage.Recorder
	historyLimit int
}

func New(machine *conversation.Machine, store storage.Store, retriever *retrieval.Retriever, synthesizer *synth.Synthesizer, journal storage.Recorder, historyLimit int) *Service {
	if historyLimit <= 0 {
		historyLimit = patterns.HistoryLimit
	}
	return &Service{
		machine:      machine,
		store:        store,
		retriever:    retriever,
		synth:        synthesizer,
		journal:      journal,
		historyLimit: historyLimit,
	}
}

// Step replays the history and returns what to ask next, or the extracted
// preferences once the conversation is ready.
func (s *Service) Step(ctx context.Context, userID string, req conversation.StepRequest) (conversation.StepResponse, error) {
	if err := validation.Struct(req); err != nil {
		return conversation.StepResponse{}, err
	}
	st, err := s.machine.Replay(ctx, req.ConversationHistory)
	if err != nil {
		return conversation.StepResponse{}, err
	}
	metrics.ConversationSteps.WithLabelValues(string(st.Phase)).Inc()
	storage.Record(s.journal, storage.Event{
		Kind:   storage.EventConversationStep,
		UserID: userID,
		Phase:  string(st.Phase),
		Count:  len(req.ConversationHistory),
	})
	return st.Response(), nil
}

// Start returns a fresh conversation state for callers that keep it
// themselves.
func (s *Service) Start() conversation.State {
	return s.machine.Start()
}

// Advance applies one answer to a caller-held state.
func (s *Service) Advance(ctx context.Context, userID string, st conversation.State, e conversation.Entry) (conversation.State, error) {
	if err := validation.Struct(e); err != nil {
		return st, err
	}
	next, err := s.machine.Advance(ctx, st, e)
	if err != nil {
		return st, err
	}
	metrics.ConversationSteps.WithLabelValues(string(next.Phase)).Inc()
	storage.Record(s.journal, storage.Event{
		Kind:   storage.EventConversationStep,
		UserID: userID,
		Phase:  string(next.Phase),
		Count:  len(next.History),
	})
	return next, nil
}

// Recommend produces one batch of six. userID is empty for anonymous
// callers: the batch is then built without history and not persisted.
func (s *Service) Recommend(ctx context.Context, userID string, req Request) (Response, error) {
	start := time.Now()
	resp, err := s.recommend(ctx, userID, req)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.RecommendationDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return resp, err
}

func (s *Service) recommend(ctx context.Context, userID string, req Request) (Response, error) {
	if err := validation.Struct(req); err != nil {
		return Response{}, err
	}
	p := req.Preferences.Normalize()
	if err := validation.Struct(p); err != nil {
		return Response{}, err
	}

	sreq := synth.Request{
		Preferences: p,
		Watched:     cleanTitles(req.WatchedShows),
		Region:      strings.TrimSpace(req.Region),
	}
	if userID != "" && s.store != nil {
		s.enrich(ctx, userID, &sreq)
	}

	recs, err := s.synth.Synthesize(ctx, sreq)
	if err != nil {
		log.WithField("user_id", userID).WithError(err).Error("❌ recommendation synthesis failed")
		return Response{}, err
	}

	if userID != "" && s.store != nil {
		rows := make([]storage.RatedItem, len(recs))
		for i, r := range recs {
			rows[i] = storage.RatedItem{
				Title:         r.Title,
				Type:          r.Type,
				Genre:         r.Genre,
				Description:   r.Description,
				MatchReason:   r.MatchReason,
				Rating:        r.Rating,
				ContentRating: r.ContentRating,
			}
		}
		saved, err := s.store.SaveRecommendations(ctx, userID, rows)
		if err != nil {
			return Response{}, fmt.Errorf("save recommendations: %w", err)
		}
		for i := range recs {
			recs[i].ID = saved[i].ID
		}
	}

	storage.Record(s.journal, storage.Event{Kind: storage.EventRecommendation, UserID: userID, Count: len(recs)})
	log.WithFields(log.Fields{"user_id": userID, "candidates": len(sreq.Candidates)}).Infof("🎬 produced %d recommendations", len(recs))
	return Response{Recommendations: recs}, nil
}

// enrich adds history exclusions, stored watched titles, embedding
// candidates and rating patterns. Every read is optional: a failure is
// logged and the batch is built without it.
func (s *Service) enrich(ctx context.Context, userID string, sreq *synth.Request) {
	var (
		mu      sync.Mutex
		history []string
		watched []string
		rated   []storage.RatedItem
	)
	skip := func(stage string, err error) {
		metrics.EnrichmentFailures.WithLabelValues(stage).Inc()
		log.WithFields(log.Fields{"user_id": userID, "stage": stage}).WithError(err).Warn("enrichment skipped")
	}

	var g errgroup.Group
	g.Go(func() error {
		titles, err := s.store.HistoryTitles(ctx, userID)
		if err != nil {
			skip("history", err)
			return nil
		}
		mu.Lock()
		history = titles
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		titles, err := s.store.WatchedTitles(ctx, userID)
		if err != nil {
			skip("watched", err)
			return nil
		}
		mu.Lock()
		watched = titles
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		items, err := s.store.RecentRated(ctx, userID, s.historyLimit)
		if err != nil {
			skip("patterns", err)
			return nil
		}
		mu.Lock()
		rated = items
		mu.Unlock()
		return nil
	})
	_ = g.Wait()

	sreq.Exclusions = history
	sreq.Watched = cleanTitles(append(sreq.Watched, watched...))
	sreq.Advisory = patterns.Analyze(rated)

	if s.retriever == nil {
		return
	}
	candidates, err := s.retriever.Candidates(ctx, userID, retrieval.Exclusions{Watched: sreq.Watched, History: history})
	if err != nil {
		skip("retrieval", err)
		return
	}
	sreq.Candidates = candidates
}

// History returns the caller's recommendations, most recent first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]storage.RatedItem, error) {
	if userID == "" {
		return nil, apperr.ErrAuth
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	items, err := s.store.ListHistory(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return items, nil
}

// cleanTitles trims and de-duplicates case-insensitively, keeping order.
func cleanTitles(titles []string) []string {
	seen := make(map[string]bool, len(titles))
	out := make([]string, 0, len(titles))
	for _, t := range titles {
		t = strings.TrimSpace(t)
		k := strings.ToLower(t)
		if t == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	return out
}
