package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"watchwise/internal/apperr"
	"watchwise/internal/llm"
	"watchwise/internal/prefs"
)

const extractSystemPrompt = `You extract a viewer's preferences from a questionnaire transcript.
Reply with a single JSON object and nothing else, using exactly these keys:
{"mood": string, "contentType": "Movies only" | "Series only" | "Both",
 "watchTime": string, "genres": [string], "company": string,
 "watchStyle": string, "language": string,
 "underrated": string, "ageRating": "Family-friendly" | "Teen" | "Mature" | "No preference"}
Use the viewer's own words where possible. Use "" for anything the transcript does not answer.
"genres" must be a JSON array with at least two entries when the viewer gave two or more.`

// LLMExtractor asks the text provider for a structured preference set.
type LLMExtractor struct {
	client     llm.Client
	maxRetries int
}

func NewLLMExtractor(client llm.Client) *LLMExtractor {
	return &LLMExtractor{client: client, maxRetries: 3}
}

// Extract returns apperr.ErrMalformedResponse once every attempt came back
// unparseable. Provider errors are returned as they are.
func (x *LLMExtractor) Extract(ctx context.Context, history []Entry, base prefs.Set) (prefs.Set, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: extractSystemPrompt},
		{Role: llm.RoleUser, Content: transcript(history, base)},
	}

	var lastErr error
	for attempt := 1; attempt <= x.maxRetries; attempt++ {
		resp, err := x.client.Generate(ctx, messages)
		if err != nil {
			return prefs.Set{}, fmt.Errorf("preference extraction: %w", err)
		}
		var set prefs.Set
		if err := llm.DecodeJSON(resp.Content, &set); err != nil {
			lastErr = err
			log.WithField("attempt", attempt).Warnf("⚠️ preference extraction returned malformed JSON: %v", err)
			continue
		}
		return set, nil
	}
	if !errors.Is(lastErr, apperr.ErrMalformedResponse) {
		lastErr = fmt.Errorf("%w: %v", apperr.ErrMalformedResponse, lastErr)
	}
	return prefs.Set{}, fmt.Errorf("preference extraction failed after %d attempts: %w", x.maxRetries, lastErr)
}

func transcript(history []Entry, base prefs.Set) string {
	var b strings.Builder
	b.WriteString("Transcript:\n")
	for i, e := range history {
		fmt.Fprintf(&b, "%d. Q: %s\n   A: %s\n", i+1, e.Question, e.Answer.Text())
	}
	b.WriteString("\nRule-based reading of the same answers (correct it where it is wrong):\n")
	fmt.Fprintf(&b, "mood=%q contentType=%q watchTime=%q genres=%q company=%q watchStyle=%q language=%q underrated=%q ageRating=%q\n",
		base.Mood, base.ContentType, base.WatchTime, strings.Join(base.Genres, ", "), base.Company,
		base.WatchStyle, base.Language, base.Underrated, base.AgeRating)
	return b.String()
}
