package synth

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// RegionHint is best-effort availability guidance for one region. It is a
// heuristic, not a catalog.
type RegionHint struct {
	// Services that are broadly available in the region.
	Services []string `json:"services"`
	// UnavailableServices are services that do not operate in the region.
	UnavailableServices []string `json:"unavailableServices"`
	// Unavailable titles are known not to stream in the region. They are
	// given to the model as negative examples and rejected by the validator.
	Unavailable []string `json:"unavailable"`
}

// RegionHints maps a normalized region name to its hint.
type RegionHints map[string]RegionHint

var regionAliases = map[string]string{
	"us":                       "united states",
	"usa":                      "united states",
	"u.s.":                     "united states",
	"united states of america": "united states",
	"america":                  "united states",
	"uk":                       "united kingdom",
	"gb":                       "united kingdom",
	"great britain":            "united kingdom",
	"england":                  "united kingdom",
	"ca":                       "canada",
	"au":                       "australia",
	"de":                       "germany",
	"in":                       "india",
}

// DefaultRegionHints is the built-in table.
func DefaultRegionHints() RegionHints {
	return RegionHints{
		"united states": {
			Services: []string{"Netflix", "Prime Video", "Disney+", "Hulu", "Max", "Peacock", "Apple TV+", "Paramount+"},
		},
		"canada": {
			Services:            []string{"Netflix", "Prime Video", "Disney+", "Crave", "Apple TV+", "Paramount+"},
			UnavailableServices: []string{"Hulu", "Peacock", "Max"},
		},
		"united kingdom": {
			Services:            []string{"Netflix", "Prime Video", "Disney+", "BBC iPlayer", "ITVX", "Channel 4", "Apple TV+", "NOW"},
			UnavailableServices: []string{"Hulu", "Peacock", "Max"},
		},
		"australia": {
			Services:            []string{"Netflix", "Prime Video", "Disney+", "Stan", "Binge", "Apple TV+", "Paramount+"},
			UnavailableServices: []string{"Hulu", "Peacock", "Max"},
		},
		"germany": {
			Services:            []string{"Netflix", "Prime Video", "Disney+", "WOW", "Apple TV+", "Paramount+"},
			UnavailableServices: []string{"Hulu", "Peacock", "Max"},
		},
		"india": {
			Services:            []string{"Netflix", "Prime Video", "JioHotstar", "SonyLIV", "ZEE5", "Apple TV+"},
			UnavailableServices: []string{"Hulu", "Peacock", "Max", "Paramount+"},
		},
	}
}

// LoadRegionHints reads a JSON object of region name to RegionHint and
// merges it over the built-in table. File entries replace built-in ones.
func LoadRegionHints(path string) (RegionHints, error) {
	hints := DefaultRegionHints()
	if path == "" {
		return hints, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read region hints: %w", err)
	}
	var fromFile map[string]RegionHint
	if err := json.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("parse region hints %s: %w", path, err)
	}
	for region, h := range fromFile {
		hints[NormalizeRegion(region)] = h
	}
	return hints, nil
}

// NormalizeRegion lowercases, trims and resolves common aliases.
func NormalizeRegion(region string) string {
	r := strings.ToLower(strings.TrimSpace(region))
	if alias, ok := regionAliases[r]; ok {
		return alias
	}
	return r
}

// For returns the hint for region.
func (h RegionHints) For(region string) (RegionHint, bool) {
	hint, ok := h[NormalizeRegion(region)]
	return hint, ok
}

// Regions lists the known region names, sorted.
func (h RegionHints) Regions() []string {
	out := make([]string, 0, len(h))
	for r := range h {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
