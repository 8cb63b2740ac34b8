package conversation

import "fmt"

// Policy holds the readiness thresholds. The numbers are configuration,
// not law: they are loaded from config and may be tuned per deployment.
type Policy struct {
	// RequiredWeight is the confidence added by each covered required category.
	RequiredWeight int
	// OptionalWeight is the confidence added by each covered optional category.
	OptionalWeight int
	// Threshold is the confidence at which a fully covered history is ready.
	Threshold int
	// MinQuestions is the fewest answers before readiness.
	MinQuestions int
	// MaxQuestions forces readiness once required categories are covered.
	MaxQuestions int
	// MinGenres is how many genres cover the genres category.
	MinGenres int
}

// DefaultPolicy is 7 required categories at 12 and 2 optional ones at 8, so
// readiness at 90 needs every required category plus one optional.
func DefaultPolicy() Policy {
	return Policy{
		RequiredWeight: 12,
		OptionalWeight: 8,
		Threshold:      90,
		MinQuestions:   7,
		MaxQuestions:   13,
		MinGenres:      2,
	}
}

func (p Policy) Validate() error {
	if p.RequiredWeight <= 0 || p.OptionalWeight < 0 {
		return fmt.Errorf("weights must be positive: required=%d optional=%d", p.RequiredWeight, p.OptionalWeight)
	}
	if p.Threshold <= 0 || p.Threshold > 100 {
		return fmt.Errorf("threshold must be in (0,100], got %d", p.Threshold)
	}
	if p.MinQuestions < 1 || p.MaxQuestions < p.MinQuestions {
		return fmt.Errorf("question bounds invalid: min=%d max=%d", p.MinQuestions, p.MaxQuestions)
	}
	if p.MinGenres < 1 {
		return fmt.Errorf("min genres must be at least 1, got %d", p.MinGenres)
	}
	return nil
}
