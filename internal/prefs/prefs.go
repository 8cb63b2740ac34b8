// Package prefs defines the canonical preference set extracted from a
// questionnaire and the answer shapes that feed it.
package prefs

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ContentKind is the normalized content-type preference.
type ContentKind string

const (
	KindBoth   ContentKind = "both"
	KindMovies ContentKind = "movies"
	KindSeries ContentKind = "series"
)

// AgeBand is the normalized maturity preference.
type AgeBand string

const (
	BandNone   AgeBand = "none"
	BandFamily AgeBand = "family"
	BandTeen   AgeBand = "teen"
	BandMature AgeBand = "mature"
)

// Canonical display values written back by Normalize.
const (
	ContentMoviesOnly = "Movies only"
	ContentSeriesOnly = "Series only"
	ContentBoth       = "Both"

	AgeFamily       = "Family-friendly"
	AgeTeen         = "Teen"
	AgeMature       = "Mature"
	AgeNoPreference = "No preference"
)

// Set is the preference set a recommendation request is built from.
// ContentType, Underrated and AgeRating are optional and default to
// "no preference".
type Set struct {
	Mood        string `json:"mood" validate:"required,max=500"`
	ContentType string `json:"contentType,omitempty" validate:"max=100"`
	WatchTime   string `json:"watchTime" validate:"required,max=500"`
	Genres      Genres `json:"genres" validate:"min=1,max=20,dive,max=100"`
	Company     string `json:"company" validate:"required,max=500"`
	WatchStyle  string `json:"watchStyle" validate:"required,max=500"`
	Language    string `json:"language" validate:"required,max=500"`
	Underrated  string `json:"underrated,omitempty" validate:"max=500"`
	AgeRating   string `json:"ageRating,omitempty" validate:"max=100"`
}

// Normalize trims every field, canonicalizes content type and age rating,
// and normalizes genres. It is idempotent.
func (s Set) Normalize() Set {
	out := Set{
		Mood:        strings.TrimSpace(s.Mood),
		WatchTime:   strings.TrimSpace(s.WatchTime),
		Genres:      NormalizeGenres(s.Genres),
		Company:     strings.TrimSpace(s.Company),
		WatchStyle:  strings.TrimSpace(s.WatchStyle),
		Language:    strings.TrimSpace(s.Language),
		Underrated:  strings.TrimSpace(s.Underrated),
		ContentType: ContentDisplay(ParseContentKind(s.ContentType)),
		AgeRating:   AgeDisplay(ParseAgeBand(s.AgeRating)),
	}
	return out
}

// Kind returns the normalized content-type preference.
func (s Set) Kind() ContentKind { return ParseContentKind(s.ContentType) }

// Band returns the normalized maturity preference.
func (s Set) Band() AgeBand { return ParseAgeBand(s.AgeRating) }

// WantsUnderrated reports whether the user asked for lesser-known titles.
func (s Set) WantsUnderrated() bool {
	u := strings.ToLower(s.Underrated)
	return strings.Contains(u, "yes") || strings.Contains(u, "hidden") || strings.Contains(u, "underrated")
}

// ParseContentKind maps a free-form content-type answer to a ContentKind.
func ParseContentKind(raw string) ContentKind {
	r := strings.ToLower(strings.TrimSpace(raw))
	hasMovie := strings.Contains(r, "movie") || strings.Contains(r, "film")
	hasSeries := strings.Contains(r, "series") || strings.Contains(r, "show") || strings.Contains(r, "tv")
	switch {
	case r == "", strings.Contains(r, "both"), strings.Contains(r, "either"), hasMovie && hasSeries:
		return KindBoth
	case hasMovie:
		return KindMovies
	case hasSeries:
		return KindSeries
	default:
		return KindBoth
	}
}

// ContentDisplay is the canonical answer text for k.
func ContentDisplay(k ContentKind) string {
	switch k {
	case KindMovies:
		return ContentMoviesOnly
	case KindSeries:
		return ContentSeriesOnly
	default:
		return ContentBoth
	}
}

// ParseAgeBand maps a free-form age-rating answer to an AgeBand.
func ParseAgeBand(raw string) AgeBand {
	r := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case r == "", strings.Contains(r, "no pref"), strings.Contains(r, "any"), strings.Contains(r, "doesn't matter"):
		return BandNone
	case strings.Contains(r, "family"), strings.Contains(r, "kid"), strings.Contains(r, "g/pg"), r == "g", r == "pg":
		return BandFamily
	case strings.Contains(r, "teen"), strings.Contains(r, "pg-13"), strings.Contains(r, "tv-14"):
		return BandTeen
	case strings.Contains(r, "mature"), strings.Contains(r, "adult"), strings.Contains(r, "r/"), r == "r", strings.Contains(r, "tv-ma"):
		return BandMature
	default:
		return BandNone
	}
}

// AgeDisplay is the canonical answer text for b.
func AgeDisplay(b AgeBand) string {
	switch b {
	case BandFamily:
		return AgeFamily
	case BandTeen:
		return AgeTeen
	case BandMature:
		return AgeMature
	default:
		return AgeNoPreference
	}
}

// Genres always holds trimmed, non-empty, de-duplicated genre names in the
// order they were first given. It decodes from a JSON array or from a
// single comma-joined string.
type Genres []string

func (g *Genres) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*g = Genres{}
		return nil
	}
	if strings.HasPrefix(trimmed, "\"") {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("genres: %w", err)
		}
		*g = NormalizeGenres([]string{s})
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("genres: expected string or array: %w", err)
	}
	*g = NormalizeGenres(list)
	return nil
}

func (g Genres) MarshalJSON() ([]byte, error) {
	if g == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(g))
}

// NormalizeGenres splits comma-joined entries, trims, drops empties and
// removes case-insensitive duplicates. The result is never nil.
func NormalizeGenres(in []string) Genres {
	out := Genres{}
	seen := make(map[string]bool)
	for _, raw := range in {
		for _, part := range strings.Split(raw, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			key := strings.ToLower(p)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, p)
		}
	}
	return out
}

// Answer is a questionnaire answer. Radio and free-text answers hold one
// value, checkbox answers hold several. It decodes from a JSON string or a
// JSON array of strings.
type Answer []string

func (a *Answer) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		*a = Answer{}
		return nil
	case strings.HasPrefix(trimmed, "\""):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("answer: %w", err)
		}
		*a = Answer{s}
		return nil
	default:
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("answer: expected string or array: %w", err)
		}
		*a = Answer(list)
		return nil
	}
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if len(a) == 1 {
		return json.Marshal(a[0])
	}
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(a))
}

// Text joins the answer values with ", ".
func (a Answer) Text() string {
	parts := make([]string, 0, len(a))
	for _, v := range a {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

// Missing lists required fields that are empty after normalization.
func (s Set) Missing() []string {
	var missing []string
	if s.Mood == "" {
		missing = append(missing, "mood")
	}
	if s.WatchTime == "" {
		missing = append(missing, "watchTime")
	}
	if len(s.Genres) == 0 {
		missing = append(missing, "genres")
	}
	if s.Company == "" {
		missing = append(missing, "company")
	}
	if s.WatchStyle == "" {
		missing = append(missing, "watchStyle")
	}
	if s.Language == "" {
		missing = append(missing, "language")
	}
	return missing
}
