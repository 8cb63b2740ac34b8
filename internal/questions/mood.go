package questions

import "strings"

// Mood is a coarse classification of a free-form mood answer.
type Mood string

const (
	MoodNeutral  Mood = "neutral"
	MoodHappy    Mood = "happy"
	MoodRelaxed  Mood = "relaxed"
	MoodStressed Mood = "stressed"
	MoodSad      Mood = "sad"
	MoodExcited  Mood = "excited"
)

// checked in order, first hit wins
var moodWords = []struct {
	mood  Mood
	words []string
}{
	{MoodStressed, []string{"stress", "anxious", "anxiety", "tired", "exhausted", "overwhelm", "burned out", "burnt out", "tense", "worried"}},
	{MoodSad, []string{"sad", "down", "lonely", "blue", "upset", "heartbroken", "depress"}},
	{MoodExcited, []string{"excit", "energ", "productive", "pumped", "hyped", "adventur"}},
	{MoodRelaxed, []string{"relax", "calm", "chill", "cozy", "lazy"}},
	{MoodHappy, []string{"happy", "great", "good", "upbeat", "cheerful", "joy"}},
}

// ClassifyMood maps a mood answer to a Mood.
func ClassifyMood(answer string) Mood {
	a := strings.ToLower(answer)
	for _, m := range moodWords {
		for _, w := range m.words {
			if strings.Contains(a, w) {
				return m.mood
			}
		}
	}
	return MoodNeutral
}

var intenseGenres = []string{"thriller", "horror", "crime", "war", "psychological", "slasher"}

// IsIntenseGenre reports whether a genre is a poor fit for a stressed or sad
// viewer.
func IsIntenseGenre(genre string) bool {
	g := strings.ToLower(genre)
	for _, w := range intenseGenres {
		if strings.Contains(g, w) {
			return true
		}
	}
	return false
}
