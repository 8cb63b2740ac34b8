// Package patterns reads a user's rating history into advisory guidance for
// the synthesizer. Nothing here filters; it only weights.
package patterns

import (
	"fmt"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"

	"watchwise/internal/storage"
)

// Thresholds.
const (
	HistoryLimit      = 30
	RecentCount       = 10
	LovedRating       = 4
	DislikedRating    = 2
	TopGenreAvg       = 4.0
	PoorGenreAvg      = 2.5
	TypePreferenceGap = 0.5
)

// Signal is a rated title with the reason it was recommended.
type Signal struct {
	Title       string `json:"title"`
	Type        string `json:"type"`
	Genre       string `json:"genre"`
	Rating      int    `json:"rating"`
	MatchReason string `json:"matchReason,omitempty"`
	Watched     bool   `json:"watched"`
}

// GenreStat is the average rating of one primary genre.
type GenreStat struct {
	Genre   string  `json:"genre"`
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// Advisory is the analyzer output.
type Advisory struct {
	Recent []Signal `json:"recent"`
	Older  []Signal `json:"older"`

	Loved    []Signal `json:"loved"`
	Disliked []Signal `json:"disliked"`

	Genres     []GenreStat `json:"genres"`
	TopGenres  []string    `json:"topGenres"`
	PoorGenres []string    `json:"poorGenres"`

	MovieAverage  float64 `json:"movieAverage"`
	SeriesAverage float64 `json:"seriesAverage"`
	// TypePreference is "Movie", "Series" or "" when the averages are within
	// TypePreferenceGap or one side has no ratings.
	TypePreference string `json:"typePreference,omitempty"`

	// StrongPositive: watched and rated 4+. SoftPositive: rated 4+ without
	// being watched. StrongNegative: watched and rated 2 or lower.
	StrongPositive []Signal `json:"strongPositive"`
	SoftPositive   []Signal `json:"softPositive"`
	StrongNegative []Signal `json:"strongNegative"`
}

// Empty reports whether there was no rating history to analyze.
func (a Advisory) Empty() bool {
	return len(a.Recent) == 0 && len(a.Older) == 0
}

// Analyze builds the advisory from items ordered most recent first. Only
// rated items count and at most HistoryLimit of them are used.
func Analyze(items []storage.RatedItem) Advisory {
	var signals []Signal
	for _, it := range items {
		if it.UserRating == nil {
			continue
		}
		signals = append(signals, Signal{
			Title:       it.Title,
			Type:        canonicalType(it.Type),
			Genre:       PrimaryGenre(it.Genre),
			Rating:      *it.UserRating,
			MatchReason: it.MatchReason,
			Watched:     it.Watched != nil && *it.Watched,
		})
		if len(signals) == HistoryLimit {
			break
		}
	}

	var a Advisory
	if len(signals) == 0 {
		return a
	}

	if len(signals) > RecentCount {
		a.Recent, a.Older = signals[:RecentCount], signals[RecentCount:]
	} else {
		a.Recent = signals
	}

	byGenre := make(map[string]stats.Float64Data)
	var genreOrder []string
	var movies, series stats.Float64Data
	for _, s := range signals {
		switch {
		case s.Rating >= LovedRating:
			a.Loved = append(a.Loved, s)
		case s.Rating <= DislikedRating:
			a.Disliked = append(a.Disliked, s)
		}

		switch {
		case s.Watched && s.Rating >= LovedRating:
			a.StrongPositive = append(a.StrongPositive, s)
		case !s.Watched && s.Rating >= LovedRating:
			a.SoftPositive = append(a.SoftPositive, s)
		case s.Watched && s.Rating <= DislikedRating:
			a.StrongNegative = append(a.StrongNegative, s)
		}

		if s.Genre != "" {
			if _, ok := byGenre[s.Genre]; !ok {
				genreOrder = append(genreOrder, s.Genre)
			}
			byGenre[s.Genre] = append(byGenre[s.Genre], float64(s.Rating))
		}
		switch s.Type {
		case "Movie":
			movies = append(movies, float64(s.Rating))
		case "Series":
			series = append(series, float64(s.Rating))
		}
	}

	for _, g := range genreOrder {
		avg := mean(byGenre[g])
		a.Genres = append(a.Genres, GenreStat{Genre: g, Average: avg, Count: len(byGenre[g])})
		switch {
		case avg >= TopGenreAvg:
			a.TopGenres = append(a.TopGenres, g)
		case avg <= PoorGenreAvg:
			a.PoorGenres = append(a.PoorGenres, g)
		}
	}
	sort.SliceStable(a.Genres, func(i, j int) bool { return a.Genres[i].Average > a.Genres[j].Average })

	a.MovieAverage = mean(movies)
	a.SeriesAverage = mean(series)
	if len(movies) > 0 && len(series) > 0 {
		switch diff := a.MovieAverage - a.SeriesAverage; {
		case diff > TypePreferenceGap:
			a.TypePreference = "Movie"
		case -diff > TypePreferenceGap:
			a.TypePreference = "Series"
		}
	}
	return a
}

func mean(data stats.Float64Data) float64 {
	if len(data) == 0 {
		return 0
	}
	m, err := stats.Mean(data)
	if err != nil {
		return 0
	}
	r, err := stats.Round(m, 2)
	if err != nil {
		return m
	}
	return r
}

// PrimaryGenre is the first genre of a "Drama, Thriller" or "Drama/Thriller"
// style genre string.
func PrimaryGenre(genre string) string {
	g := strings.TrimSpace(genre)
	if i := strings.IndexAny(g, ",/|;"); i >= 0 {
		g = g[:i]
	}
	return strings.TrimSpace(g)
}

func canonicalType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "movie", "film":
		return "Movie"
	case "series", "tv", "show", "tv series", "tv show":
		return "Series"
	default:
		return strings.TrimSpace(t)
	}
}

// Summary renders the advisory as prompt context. An empty advisory renders
// as "".
func (a Advisory) Summary() string {
	if a.Empty() {
		return ""
	}
	var b strings.Builder
	b.WriteString("Viewer history (advisory, weigh it but do not treat it as a filter):\n")

	if len(a.StrongPositive) > 0 {
		fmt.Fprintf(&b, "- Watched and loved (strongest signal): %s\n", describe(a.StrongPositive))
	}
	if len(a.SoftPositive) > 0 {
		fmt.Fprintf(&b, "- Rated highly but not watched yet (weaker signal): %s\n", describe(a.SoftPositive))
	}
	if len(a.StrongNegative) > 0 {
		fmt.Fprintf(&b, "- Watched and disliked (avoid similar): %s\n", describe(a.StrongNegative))
	}
	if rest := without(a.Disliked, a.StrongNegative); len(rest) > 0 {
		fmt.Fprintf(&b, "- Disliked: %s\n", describe(rest))
	}
	if len(a.TopGenres) > 0 {
		fmt.Fprintf(&b, "- Favourite genres (avg >= %.1f): %s\n", TopGenreAvg, strings.Join(a.TopGenres, ", "))
	}
	if len(a.PoorGenres) > 0 {
		fmt.Fprintf(&b, "- Genres that land poorly (avg <= %.1f): %s\n", PoorGenreAvg, strings.Join(a.PoorGenres, ", "))
	}
	switch a.TypePreference {
	case "Movie":
		fmt.Fprintf(&b, "- Clearly prefers movies (%.1f vs %.1f for series)\n", a.MovieAverage, a.SeriesAverage)
	case "Series":
		fmt.Fprintf(&b, "- Clearly prefers series (%.1f vs %.1f for movies)\n", a.SeriesAverage, a.MovieAverage)
	}
	if len(a.Older) > 0 {
		fmt.Fprintf(&b, "- %d recent ratings above carry more weight than %d older ones\n", len(a.Recent), len(a.Older))
	}
	return b.String()
}

func describe(signals []Signal) string {
	parts := make([]string, 0, len(signals))
	for _, s := range signals {
		p := fmt.Sprintf("%s (%d/5)", s.Title, s.Rating)
		if s.MatchReason != "" {
			p += " because: " + s.MatchReason
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, "; ")
}

func without(all, drop []Signal) []Signal {
	skip := make(map[string]bool, len(drop))
	for _, s := range drop {
		skip[s.Title] = true
	}
	var out []Signal
	for _, s := range all {
		if !skip[s.Title] {
			out = append(out, s)
		}
	}
	return out
}
