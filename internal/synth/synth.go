// Package synth turns preferences, retrieval candidates and rating patterns
// into exactly six recommendations. The model proposes; the validator in
// this package decides.
package synth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"watchwise/internal/apperr"
	"watchwise/internal/llm"
	"watchwise/internal/metrics"
	"watchwise/internal/patterns"
	"watchwise/internal/prefs"
	"watchwise/internal/retrieval"
)

// BatchSize is the number of records in a successful batch.
const BatchSize = 6

// Recommendation is one synthesized record.
type Recommendation struct {
	ID            string `json:"id,omitempty"`
	Title         string `json:"title"`
	Type          string `json:"type"`
	Genre         string `json:"genre"`
	Description   string `json:"description"`
	MatchReason   string `json:"matchReason"`
	Rating        string `json:"rating"`
	ContentRating string `json:"contentRating,omitempty"`
}

// Request is everything a batch is built from.
type Request struct {
	Preferences prefs.Set
	Watched     []string
	Region      string
	// Exclusions are titles previously recommended to or rated by the user.
	Exclusions []string
	Candidates []retrieval.Candidate
	Advisory   patterns.Advisory
}

type Options struct {
	// MaxRetries bounds attempts at getting parseable JSON per generation.
	MaxRetries int
	// RepairAttempts bounds follow-up generations that refill rejected slots.
	RepairAttempts int
}

func DefaultOptions() Options {
	return Options{MaxRetries: 3, RepairAttempts: 2}
}

type Synthesizer struct {
	client llm.Client
	hints  RegionHints
	opts   Options
}

func New(client llm.Client, hints RegionHints, opts Options) *Synthesizer {
	if hints == nil {
		hints = DefaultRegionHints()
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultOptions().MaxRetries
	}
	if opts.RepairAttempts < 0 {
		opts.RepairAttempts = 0
	}
	return &Synthesizer{client: client, hints: hints, opts: opts}
}

// Synthesize returns exactly BatchSize validated records.
// Provider failures wrap apperr.ErrUpstreamUnavailable; output that stays
// unparseable or cannot fill the batch wraps apperr.ErrMalformedResponse.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) ([]Recommendation, error) {
	req.Preferences = req.Preferences.Normalize()
	hint, _ := s.hints.For(req.Region)
	v := newValidator(req, hint)

	accepted := make([]Recommendation, 0, BatchSize)
	absorb := func(batch []Recommendation) {
		for _, r := range batch {
			if len(accepted) == BatchSize {
				return
			}
			if reason := v.check(&r); reason != "" {
				metrics.RecommendationRejected.WithLabelValues(reason).Inc()
				log.WithFields(log.Fields{"title": r.Title, "reason": reason}).Debug("dropped generated record")
				continue
			}
			v.accept(r)
			accepted = append(accepted, r)
		}
	}

	batch, err := s.generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: buildPrompt(req, hint)},
	})
	if err != nil {
		return nil, err
	}
	absorb(batch)

	for attempt := 1; len(accepted) < BatchSize && attempt <= s.opts.RepairAttempts; attempt++ {
		metrics.RecommendationRepairs.Inc()
		log.Printf("🔧 refilling %d recommendation slots (repair %d/%d)", BatchSize-len(accepted), attempt, s.opts.RepairAttempts)
		batch, err := s.generate(ctx, []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: buildPrompt(req, hint)},
			{Role: llm.RoleUser, Content: repairPrompt(BatchSize-len(accepted), accepted, v.fullGenres())},
		})
		if err != nil {
			return nil, err
		}
		absorb(batch)
	}

	if len(accepted) < BatchSize {
		return nil, fmt.Errorf("%w: only %d of %d records passed validation", apperr.ErrMalformedResponse, len(accepted), BatchSize)
	}
	return accepted, nil
}

// generate calls the model until the reply parses, up to MaxRetries times.
func (s *Synthesizer) generate(ctx context.Context, messages []llm.Message) ([]Recommendation, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		resp, err := s.client.Generate(ctx, messages)
		if err != nil {
			if !errors.Is(err, apperr.ErrUpstreamUnavailable) {
				err = fmt.Errorf("%w: %w", apperr.ErrUpstreamUnavailable, err)
			}
			return nil, fmt.Errorf("generate recommendations: %w", err)
		}
		recs, err := parseRecommendations(resp.Content)
		if err == nil {
			return recs, nil
		}
		lastErr = err
		log.WithField("attempt", attempt).Warnf("⚠️ recommendation reply did not parse: %v", err)
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: resp.Content},
			llm.Message{Role: llm.RoleUser, Content: "That reply was not valid JSON in the required shape. Reply again with only the JSON object."},
		)
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", s.opts.MaxRetries, lastErr)
}

// rawRecommendation tolerates numeric ratings.
type rawRecommendation struct {
	Title         string          `json:"title"`
	Type          string          `json:"type"`
	Genre         string          `json:"genre"`
	Description   string          `json:"description"`
	MatchReason   string          `json:"matchReason"`
	Rating        json.RawMessage `json:"rating"`
	ContentRating string          `json:"contentRating"`
}

func parseRecommendations(content string) ([]Recommendation, error) {
	raw := llm.ExtractJSON(content)
	var list []rawRecommendation
	if strings.HasPrefix(raw, "[") {
		if err := llm.DecodeJSON(raw, &list); err != nil {
			return nil, err
		}
	} else {
		var wrapped struct {
			Recommendations []rawRecommendation `json:"recommendations"`
		}
		if err := llm.DecodeJSON(raw, &wrapped); err != nil {
			return nil, err
		}
		list = wrapped.Recommendations
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: no recommendations in reply", apperr.ErrMalformedResponse)
	}
	out := make([]Recommendation, 0, len(list))
	for _, r := range list {
		out = append(out, Recommendation{
			Title:         r.Title,
			Type:          r.Type,
			Genre:         r.Genre,
			Description:   r.Description,
			MatchReason:   r.MatchReason,
			Rating:        ratingText(r.Rating),
			ContentRating: r.ContentRating,
		})
	}
	return out, nil
}

func ratingText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	if f, err := strconv.ParseFloat(string(raw), 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}
