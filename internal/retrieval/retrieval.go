// Package retrieval turns a user's most recent loved titles into similar
// candidates from the rest of that user's embedding index.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"watchwise/internal/storage"
)

// Options are the retrieval tunables.
type Options struct {
	Seeds     int     // N, most recent loved embeddings used as seeds
	PerSeed   int     // K, matches requested per seed
	Threshold float64 // τ, minimum similarity (exclusive)
	Limit     int     // M, cap on merged candidates
}

func DefaultOptions() Options {
	return Options{Seeds: 10, PerSeed: 20, Threshold: 0.70, Limit: 30}
}

// Candidate is a retrieved title and the seed that surfaced it.
type Candidate struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Similarity  float64 `json:"similarity"`
	Seed        string  `json:"seed"`
}

// Retriever is read-only over the store.
type Retriever struct {
	store storage.Store
	opts  Options
}

func New(store storage.Store, opts Options) *Retriever {
	d := DefaultOptions()
	if opts.Seeds <= 0 {
		opts.Seeds = d.Seeds
	}
	if opts.PerSeed <= 0 {
		opts.PerSeed = d.PerSeed
	}
	if opts.Limit <= 0 {
		opts.Limit = d.Limit
	}
	return &Retriever{store: store, opts: opts}
}

// Exclusions are titles that must never come back as candidates.
type Exclusions struct {
	Watched []string
	History []string
}

type hit struct {
	storage.TitleMatch
	seed int
	rank int
}

// Candidates returns up to Limit titles similar to the user's loved ones.
// A user without loved embeddings gets an empty result and no error.
func (r *Retriever) Candidates(ctx context.Context, userID string, ex Exclusions) ([]Candidate, error) {
	seeds, err := r.store.RecentLovedEmbeddings(ctx, userID, r.opts.Seeds)
	if err != nil {
		return nil, fmt.Errorf("load seed embeddings: %w", err)
	}
	if len(seeds) == 0 {
		return []Candidate{}, nil
	}

	results := make([][]storage.TitleMatch, len(seeds))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range seeds {
		i, s := i, s
		g.Go(func() error {
			matches, err := r.store.MatchTitles(gctx, userID, s.Embedding, r.opts.Threshold, r.opts.PerSeed)
			if err != nil {
				return fmt.Errorf("match titles for seed %q: %w", s.Title, err)
			}
			results[i] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var hits []hit
	for i, matches := range results {
		for rank, m := range matches {
			hits = append(hits, hit{TitleMatch: m, seed: i, rank: rank})
		}
	}
	// similarity first, then earliest seed, then the seed's own ranking, so
	// the merge does not depend on completion order
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Similarity != hits[b].Similarity {
			return hits[a].Similarity > hits[b].Similarity
		}
		if hits[a].seed != hits[b].seed {
			return hits[a].seed < hits[b].seed
		}
		return hits[a].rank < hits[b].rank
	})

	excluded := titleSet(ex.Watched, ex.History)
	for _, s := range seeds {
		excluded[key(s.Title)] = true
	}

	out := make([]Candidate, 0, r.opts.Limit)
	for _, h := range hits {
		k := key(h.Title)
		if k == "" || excluded[k] {
			continue
		}
		excluded[k] = true
		out = append(out, Candidate{
			Title:       h.Title,
			Description: h.Description,
			Similarity:  h.Similarity,
			Seed:        seeds[h.seed].Title,
		})
		if len(out) == r.opts.Limit {
			break
		}
	}
	log.WithFields(log.Fields{"user_id": userID, "seeds": len(seeds), "hits": len(hits), "candidates": len(out)}).Debug("retrieval done")
	return out, nil
}

func key(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

func titleSet(lists ...[]string) map[string]bool {
	out := make(map[string]bool)
	for _, l := range lists {
		for _, t := range l {
			if k := key(t); k != "" {
				out[k] = true
			}
		}
	}
	return out
}
