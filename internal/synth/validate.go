package synth

import (
	"sort"
	"strconv"
	"strings"

	"watchwise/internal/patterns"
	"watchwise/internal/prefs"
)

// Record types.
const (
	TypeMovie  = "Movie"
	TypeSeries = "Series"
)

// MaxPerGenre is the most records that may share a primary genre.
const MaxPerGenre = 2

// Rejection reasons, also used as metric labels.
const (
	RejectMissingField = "missing_field"
	RejectContentType  = "content_type"
	RejectMaturity     = "maturity"
	RejectExcluded     = "excluded"
	RejectUnavailable  = "unavailable"
	RejectDuplicate    = "duplicate"
	RejectGenreCap     = "genre_cap"
)

var (
	familyRatings = map[string]bool{"G": true, "PG": true, "TV-Y": true, "TV-Y7": true, "TV-Y7-FV": true, "TV-G": true, "TV-PG": true}
	teenRatings   = map[string]bool{"PG-13": true, "TV-14": true}
)

// NormalizeContentRating upper-cases and tidies a certification such as
// "tv-pg" or "Rated PG-13".
func NormalizeContentRating(r string) string {
	r = strings.ToUpper(strings.TrimSpace(r))
	r = strings.TrimPrefix(r, "RATED ")
	r = strings.ReplaceAll(r, " ", "-")
	return r
}

// AllowedRating reports whether a certification fits the maturity band.
// Family and teen bands reject certifications they do not recognize.
func AllowedRating(band prefs.AgeBand, contentRating string) bool {
	r := NormalizeContentRating(contentRating)
	switch band {
	case prefs.BandFamily:
		return familyRatings[r]
	case prefs.BandTeen:
		return familyRatings[r] || teenRatings[r]
	default:
		return true
	}
}

// CanonicalType maps a generated type to Movie or Series; ok is false for
// anything else.
func CanonicalType(t string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "movie", "film", "feature film":
		return TypeMovie, true
	case "series", "tv series", "tv show", "show", "tv", "miniseries", "limited series", "docuseries":
		return TypeSeries, true
	default:
		return "", false
	}
}

func titleKey(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// validator applies the batch constraints while accepted records
// accumulate across generations.
type validator struct {
	kind     prefs.ContentKind
	band     prefs.AgeBand
	excluded map[string]bool
	blocked  map[string]bool
	taken    map[string]bool
	genres   map[string]int
}

func newValidator(req Request, hint RegionHint) *validator {
	v := &validator{
		kind:     req.Preferences.Kind(),
		band:     req.Preferences.Band(),
		excluded: make(map[string]bool),
		blocked:  make(map[string]bool),
		taken:    make(map[string]bool),
		genres:   make(map[string]int),
	}
	for _, list := range [][]string{req.Exclusions, req.Watched} {
		for _, t := range list {
			if k := titleKey(t); k != "" {
				v.excluded[k] = true
			}
		}
	}
	for _, t := range hint.Unavailable {
		if k := titleKey(t); k != "" {
			v.blocked[k] = true
		}
	}
	return v
}

// check normalizes r and returns the rejection reason, or "" when r is
// acceptable. It does not record r.
func (v *validator) check(r *Recommendation) string {
	r.Title = strings.TrimSpace(r.Title)
	r.Genre = strings.TrimSpace(r.Genre)
	r.Description = strings.TrimSpace(r.Description)
	r.MatchReason = strings.TrimSpace(r.MatchReason)
	r.Rating = strings.TrimSpace(r.Rating)
	r.ContentRating = NormalizeContentRating(r.ContentRating)

	if r.Title == "" || r.Genre == "" || r.Description == "" || r.MatchReason == "" {
		return RejectMissingField
	}
	if _, err := strconv.ParseFloat(r.Rating, 64); err != nil {
		return RejectMissingField
	}
	typ, ok := CanonicalType(r.Type)
	if !ok {
		return RejectMissingField
	}
	r.Type = typ

	switch v.kind {
	case prefs.KindMovies:
		if r.Type != TypeMovie {
			return RejectContentType
		}
	case prefs.KindSeries:
		if r.Type != TypeSeries {
			return RejectContentType
		}
	}
	if !AllowedRating(v.band, r.ContentRating) {
		return RejectMaturity
	}

	k := titleKey(r.Title)
	switch {
	case v.excluded[k]:
		return RejectExcluded
	case v.blocked[k]:
		return RejectUnavailable
	case v.taken[k]:
		return RejectDuplicate
	}
	if v.genres[genreKey(r.Genre)] >= MaxPerGenre {
		return RejectGenreCap
	}
	return ""
}

func (v *validator) accept(r Recommendation) {
	v.taken[titleKey(r.Title)] = true
	v.genres[genreKey(r.Genre)]++
}

// fullGenres lists primary genres that already hit the cap.
func (v *validator) fullGenres() []string {
	var out []string
	for g, n := range v.genres {
		if n >= MaxPerGenre {
			out = append(out, g)
		}
	}
	sort.Strings(out)
	return out
}

func genreKey(genre string) string {
	return strings.ToLower(patterns.PrimaryGenre(genre))
}
