package synth

import (
	"fmt"
	"strings"

	"watchwise/internal/prefs"
)

// maxPromptExclusions keeps long histories from flooding the prompt. The
// validator still checks the full list.
const maxPromptExclusions = 150

const systemPrompt = `You are a film and TV recommendation engine.
Reply with a single JSON object and nothing else:
{"recommendations": [{"title": string, "type": "Movie" | "Series", "genre": string,
  "description": string, "matchReason": string, "rating": string, "contentRating": string}]}
"rating" is the typical critic/audience score out of 10 as a number in a string, e.g. "8.1".
"contentRating" is the certification, e.g. "PG-13" or "TV-MA".
"genre" starts with the primary genre, e.g. "Drama, Thriller".
Every rule in the request is mandatory.`

func buildPrompt(req Request, hint RegionHint) string {
	p := req.Preferences
	var b strings.Builder

	fmt.Fprintf(&b, "Recommend exactly %d titles.\n\n", BatchSize)

	b.WriteString("Viewer preferences:\n")
	fmt.Fprintf(&b, "- Mood: %s\n", p.Mood)
	fmt.Fprintf(&b, "- Content type: %s\n", p.ContentType)
	fmt.Fprintf(&b, "- Time available: %s\n", p.WatchTime)
	fmt.Fprintf(&b, "- Genres: %s\n", strings.Join(p.Genres, ", "))
	fmt.Fprintf(&b, "- Watching with: %s\n", p.Company)
	fmt.Fprintf(&b, "- Watching style: %s\n", p.WatchStyle)
	fmt.Fprintf(&b, "- Language: %s\n", p.Language)
	fmt.Fprintf(&b, "- Age rating: %s\n", p.AgeRating)
	if p.Underrated != "" {
		fmt.Fprintf(&b, "- Hidden gems vs popular: %s\n", p.Underrated)
	}

	b.WriteString("\nRules:\n")
	switch p.Kind() {
	case prefs.KindMovies:
		b.WriteString("- Every title must be a Movie. No series.\n")
	case prefs.KindSeries:
		b.WriteString("- Every title must be a Series. No movies.\n")
	default:
		b.WriteString("- Mix movies and series.\n")
	}
	fmt.Fprintf(&b, "- At most %d titles may share the same primary genre. Spread the picks across the viewer's genres.\n", MaxPerGenre)
	switch p.Band() {
	case prefs.BandFamily:
		b.WriteString("- Family-friendly only: G, PG, TV-Y, TV-Y7, TV-G or TV-PG.\n")
	case prefs.BandTeen:
		b.WriteString("- Nothing above PG-13 / TV-14.\n")
	case prefs.BandMature:
		b.WriteString("- Mature titles are welcome.\n")
	}
	if p.WantsUnderrated() {
		b.WriteString("- Favour lesser-known, critically liked titles over blockbusters.\n")
	}

	region := strings.TrimSpace(req.Region)
	if region != "" {
		fmt.Fprintf(&b, "- The viewer is in %s. Prefer titles you are confident stream there; global originals of major services are safest.\n", region)
		if len(hint.Services) > 0 {
			fmt.Fprintf(&b, "- Services available in %s: %s.\n", region, strings.Join(hint.Services, ", "))
		}
		if len(hint.UnavailableServices) > 0 {
			fmt.Fprintf(&b, "- Not available in %s, avoid their exclusives: %s.\n", region, strings.Join(hint.UnavailableServices, ", "))
		}
		if len(hint.Unavailable) > 0 {
			fmt.Fprintf(&b, "- Known NOT to stream in %s: %s.\n", region, strings.Join(hint.Unavailable, "; "))
		}
	}

	excluded := append(append([]string(nil), req.Watched...), req.Exclusions...)
	if len(excluded) > 0 {
		if len(excluded) > maxPromptExclusions {
			excluded = excluded[:maxPromptExclusions]
		}
		fmt.Fprintf(&b, "- Never recommend these (already seen or suggested): %s.\n", strings.Join(excluded, "; "))
	}

	if len(req.Candidates) > 0 {
		b.WriteString("\nSimilar to titles the viewer loved. Evaluate these first, keep the ones that satisfy every rule, replace the rest from your own knowledge:\n")
		for _, c := range req.Candidates {
			fmt.Fprintf(&b, "- %s (%.2f similar to %s): %s\n", c.Title, c.Similarity, c.Seed, c.Description)
		}
	}

	if summary := req.Advisory.Summary(); summary != "" {
		b.WriteString("\n")
		b.WriteString(summary)
	}
	return b.String()
}

func repairPrompt(missing int, accepted []Recommendation, fullGenres []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Some titles broke the rules and were removed. Recommend %d more titles under the same rules.\n", missing)
	if len(accepted) > 0 {
		titles := make([]string, 0, len(accepted))
		for _, r := range accepted {
			titles = append(titles, r.Title)
		}
		fmt.Fprintf(&b, "Already chosen, do not repeat: %s.\n", strings.Join(titles, "; "))
	}
	if len(fullGenres) > 0 {
		fmt.Fprintf(&b, "These primary genres are full, do not use them: %s.\n", strings.Join(fullGenres, ", "))
	}
	return b.String()
}
