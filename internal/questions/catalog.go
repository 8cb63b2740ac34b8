// Package questions is the static question catalog. Option lists adapt to
// earlier answers (calmer genres for a stressed mood, episode-sized time
// slots for series, and so on) but the set of questions is fixed.
package questions

import (
	"strings"

	"watchwise/internal/prefs"
)

// Kind is how a question is answered.
type Kind string

const (
	Radio    Kind = "radio"
	Checkbox Kind = "checkbox"
)

// Question ids. Every id except Fallback is also a preference category.
const (
	IDMood        = "mood"
	IDContentType = "contentType"
	IDWatchTime   = "watchTime"
	IDGenres      = "genres"
	IDCompany     = "company"
	IDWatchStyle  = "watchStyle"
	IDLanguage    = "language"
	IDAgeRating   = "ageRating"
	IDUnderrated  = "underrated"
	IDFallback    = "fallback"
)

// Required and Optional list the preference categories in asking order.
var (
	Required = []string{IDMood, IDContentType, IDWatchTime, IDGenres, IDCompany, IDWatchStyle, IDLanguage}
	Optional = []string{IDAgeRating, IDUnderrated}
)

// Question is a catalog question as issued to the user. It is a value and
// callers never share the Options backing array with the catalog.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Kind    Kind     `json:"type"`
	Options []string `json:"options"`
}

// Context is what option adaptation depends on.
type Context struct {
	Mood    Mood
	Content prefs.ContentKind
	Company string
}

type template struct {
	id       string
	prompt   string
	kind     Kind
	options  []string
	variants func(Context) []string
}

var (
	defaultGenres = []string{"Action", "Comedy", "Drama", "Thriller", "Sci-Fi", "Romance", "Horror", "Documentary", "Animation", "Fantasy", "Mystery", "Crime"}
	calmGenres    = []string{"Comedy", "Animation", "Romance", "Feel-good Drama", "Documentary", "Fantasy", "Family", "Musical"}
	upbeatGenres  = []string{"Action", "Adventure", "Sci-Fi", "Thriller", "Comedy", "Fantasy", "Crime", "Mystery"}
)

var catalog = []template{
	{
		id:      IDMood,
		prompt:  "How are you feeling right now?",
		kind:    Radio,
		options: []string{"Happy and upbeat", "Relaxed and calm", "Stressed or tired", "Sad or a bit down", "Excited and energetic", "Bored and curious"},
	},
	{
		id:      IDContentType,
		prompt:  "Are you in the mood for a movie or a series?",
		kind:    Radio,
		options: []string{prefs.ContentMoviesOnly, prefs.ContentSeriesOnly, prefs.ContentBoth},
	},
	{
		id:      IDWatchTime,
		prompt:  "How much time do you have to watch?",
		kind:    Radio,
		options: []string{"Under 30 minutes", "About 1-2 hours", "A whole evening", "A weekend binge"},
		variants: func(c Context) []string {
			switch c.Content {
			case prefs.KindSeries:
				return []string{"One or two episodes", "A few episodes", "A full season binge"}
			case prefs.KindMovies:
				return []string{"Under 90 minutes", "About 2 hours", "Happy with a long epic"}
			}
			return nil
		},
	},
	{
		id:      IDGenres,
		prompt:  "Which genres are you in the mood for? Pick at least two.",
		kind:    Checkbox,
		options: defaultGenres,
		variants: func(c Context) []string {
			switch c.Mood {
			case MoodStressed, MoodSad:
				return calmGenres
			case MoodExcited:
				return upbeatGenres
			}
			return nil
		},
	},
	{
		id:      IDCompany,
		prompt:  "Who are you watching with?",
		kind:    Radio,
		options: []string{"Just me", "My partner", "Friends", "Family with kids"},
	},
	{
		id:      IDWatchStyle,
		prompt:  "How do you like to watch?",
		kind:    Radio,
		options: []string{"Fully focused", "Casually, in the background", "Socially, chatting along"},
	},
	{
		id:      IDLanguage,
		prompt:  "Any language preference?",
		kind:    Radio,
		options: []string{"English only", "Happy with subtitles", "Any language"},
	},
	{
		id:      IDAgeRating,
		prompt:  "Any age-rating preference?",
		kind:    Radio,
		options: []string{"Family-friendly (G/PG)", "Teen (PG-13)", "Mature (R/TV-MA)", "No preference"},
		variants: func(c Context) []string {
			if HasKids(c.Company) {
				return []string{"Family-friendly (G/PG)", "Teen (PG-13)"}
			}
			return nil
		},
	},
	{
		id:      IDUnderrated,
		prompt:  "Would you like hidden gems rather than popular hits?",
		kind:    Radio,
		options: []string{"Yes, surprise me with hidden gems", "A mix of both", "Stick to popular hits"},
	},
	{
		id:      IDFallback,
		prompt:  "No worries! Want to start with something easy?",
		kind:    Radio,
		options: []string{FallbackClassics, FallbackLight, FallbackGems},
	},
}

// KeepGenres is offered when the machine questions a genre pick; choosing it
// keeps the earlier answer.
const KeepGenres = "Keep my original picks"

// Fallback answers.
const (
	FallbackClassics = "Popular classics everyone loves"
	FallbackLight    = "Something light and funny"
	FallbackGems     = "Surprise me with hidden gems"
)

// Get returns question id adapted to ctx. The second result is false for an
// unknown id.
func Get(id string, ctx Context) (Question, bool) {
	for _, t := range catalog {
		if t.id != id {
			continue
		}
		opts := t.options
		if t.variants != nil {
			if v := t.variants(ctx); len(v) > 0 {
				opts = v
			}
		}
		return Question{ID: t.id, Prompt: t.prompt, Kind: t.kind, Options: append([]string(nil), opts...)}, true
	}
	return Question{}, false
}

// Clarify returns the genres question offered after a mood/genre
// contradiction: the calm variant plus KeepGenres.
func Clarify() Question {
	q, _ := Get(IDGenres, Context{Mood: MoodStressed})
	q.Options = append(q.Options, KeepGenres)
	return q
}

// First is the fixed opening question.
func First() Question {
	q, _ := Get(IDMood, Context{})
	return q
}

// IsRequired reports whether id is a required category.
func IsRequired(id string) bool {
	for _, r := range Required {
		if r == id {
			return true
		}
	}
	return false
}

// IsOptional reports whether id is an optional category.
func IsOptional(id string) bool {
	for _, o := range Optional {
		if o == id {
			return true
		}
	}
	return false
}

// IsOption reports whether answer matches one of the question's options in
// any of its variants.
func IsOption(id, answer string) bool {
	a := strings.ToLower(strings.TrimSpace(answer))
	for _, t := range catalog {
		if t.id != id {
			continue
		}
		lists := [][]string{t.options}
		if t.variants != nil {
			for _, c := range variantContexts {
				lists = append(lists, t.variants(c))
			}
		}
		for _, l := range lists {
			for _, o := range l {
				if strings.ToLower(o) == a {
					return true
				}
			}
		}
	}
	return false
}

var variantContexts = []Context{
	{Mood: MoodStressed}, {Mood: MoodExcited},
	{Content: prefs.KindSeries}, {Content: prefs.KindMovies},
	{Company: "Family with kids"},
}

// keyword fallbacks for histories that carry only the prompt text.
var promptKeywords = []struct {
	id    string
	words []string
}{
	{IDFallback, []string{"something easy", "no worries"}},
	{IDMood, []string{"feeling", "mood are you", "how are you"}},
	{IDContentType, []string{"movie or a series", "movie or series", "movies or series", "content type"}},
	{IDWatchTime, []string{"how much time", "how long", "watch time"}},
	{IDGenres, []string{"genre"}},
	{IDCompany, []string{"who are you watching", "watching with", "company"}},
	{IDWatchStyle, []string{"how do you like to watch", "watch style", "watching style"}},
	{IDLanguage, []string{"language", "subtitles"}},
	{IDAgeRating, []string{"age-rating", "age rating", "maturity", "rated"}},
	{IDUnderrated, []string{"hidden gem", "underrated", "lesser-known"}},
}

// Resolve maps a history entry's question to a catalog id. An explicit id
// wins, then an exact prompt match, then prompt keywords. It returns "" for
// questions outside the catalog.
func Resolve(id, prompt string) string {
	if id != "" {
		for _, t := range catalog {
			if t.id == id {
				return id
			}
		}
	}
	p := strings.ToLower(strings.TrimSpace(prompt))
	if p == "" {
		return ""
	}
	for _, t := range catalog {
		if strings.ToLower(t.prompt) == p {
			return t.id
		}
	}
	for _, k := range promptKeywords {
		for _, w := range k.words {
			if strings.Contains(p, w) {
				return k.id
			}
		}
	}
	return ""
}

// HasKids reports whether a company answer includes children.
func HasKids(company string) bool {
	c := strings.ToLower(company)
	return strings.Contains(c, "kid") || strings.Contains(c, "child") || strings.Contains(c, "famil")
}

// FallbackChoice maps a fallback answer to the genres it stands for and
// whether it implies hidden gems.
func FallbackChoice(answer string) (prefs.Genres, bool) {
	a := strings.ToLower(answer)
	switch {
	case strings.Contains(a, "light"), strings.Contains(a, "funny"):
		return prefs.Genres{"Comedy", "Animation"}, false
	case strings.Contains(a, "gem"), strings.Contains(a, "surprise"):
		return prefs.Genres{"Drama", "Mystery"}, true
	default:
		return prefs.Genres{"Drama", "Adventure"}, false
	}
}
