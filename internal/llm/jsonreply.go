package llm

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"watchwise/internal/apperr"
)

// ExtractJSON pulls the JSON document out of a model reply: markdown fences
// are stripped and leading or trailing chatter around the outermost object
// or array is dropped.
func ExtractJSON(content string) string {
	content = strings.TrimSpace(content)

	if strings.Contains(content, "```json") {
		start := strings.Index(content, "```json") + 7
		if end := strings.Index(content[start:], "```"); end > 0 {
			content = strings.TrimSpace(content[start : start+end])
		}
	} else if strings.Contains(content, "```") {
		start := strings.Index(content, "```") + 3
		if end := strings.Index(content[start:], "```"); end > 0 {
			content = strings.TrimSpace(content[start : start+end])
		}
	}

	open := strings.IndexAny(content, "{[")
	if open < 0 {
		return content
	}
	closer := "}"
	if content[open] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(content, closer)
	if end < open {
		return content[open:]
	}
	return content[open : end+1]
}

// DecodeJSON extracts and decodes a model reply into v. Any failure wraps
// apperr.ErrMalformedResponse.
func DecodeJSON(content string, v interface{}) error {
	raw := ExtractJSON(content)
	if raw == "" {
		return fmt.Errorf("%w: empty reply", apperr.ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: failed to parse JSON: %v", apperr.ErrMalformedResponse, err)
	}
	return nil
}
