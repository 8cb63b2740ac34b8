// Package conversation is the questionnaire state machine. It folds a
// history of answers into an explicit State that says whether to ask
// another question, ask for clarification, or hand over a preference set.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	log "github.com/sirupsen/logrus"

	"watchwise/internal/prefs"
	"watchwise/internal/questions"
)

// Phase is the machine's state.
type Phase string

const (
	Gathering          Phase = "gathering"
	NeedsClarification Phase = "needs_clarification"
	Ready              Phase = "ready"
)

// Entry is one answered question.
type Entry struct {
	Question   string       `json:"question" validate:"required,max=500"`
	QuestionID string       `json:"questionId,omitempty" validate:"max=100"`
	Answer     prefs.Answer `json:"answer" validate:"answer"`
}

// State is the whole conversation as a value. Callers persist it between
// turns; the machine keeps nothing.
type State struct {
	Phase       Phase                   `json:"phase"`
	History     []Entry                 `json:"history"`
	Answers     map[string]prefs.Answer `json:"answers"`
	Confidence  int                     `json:"confidence"`
	Question    *questions.Question     `json:"question,omitempty"`
	Message     string                  `json:"message,omitempty"`
	Preferences *prefs.Set              `json:"preferences,omitempty"`

	Answered        int  `json:"answered"`
	VagueStreak     int  `json:"vagueStreak"`
	FallbackOffered bool `json:"fallbackOffered"`
	Clarified       bool `json:"clarified"`
}

// Extractor turns a finished history into a preference set through
// structured generation. base is the rule-based extraction.
type Extractor interface {
	Extract(ctx context.Context, history []Entry, base prefs.Set) (prefs.Set, error)
}

// Machine applies answers to states under a Policy.
type Machine struct {
	policy    Policy
	extractor Extractor
}

// New returns a Machine. extractor may be nil, in which case preferences
// come from the rule-based extraction alone.
func New(policy Policy, extractor Extractor) (*Machine, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("conversation policy: %w", err)
	}
	return &Machine{policy: policy, extractor: extractor}, nil
}

// Start returns the initial state: gathering, asking for the mood.
func (m *Machine) Start() State {
	first := questions.First()
	return State{
		Phase:    Gathering,
		Answers:  map[string]prefs.Answer{},
		Question: &first,
	}
}

// Replay folds history from the initial state. The same history always
// yields the same state.
func (m *Machine) Replay(ctx context.Context, history []Entry) (State, error) {
	st := m.Start()
	for i, e := range history {
		next, err := m.Advance(ctx, st, e)
		if err != nil {
			return State{}, fmt.Errorf("entry %d: %w", i, err)
		}
		st = next
	}
	return st, nil
}

// Advance applies one answer. A ready state is returned unchanged.
func (m *Machine) Advance(ctx context.Context, st State, e Entry) (State, error) {
	if st.Phase == Ready {
		return st, nil
	}
	next := st.clone()
	next.History = append(next.History, e)
	next.Answered++
	next.Message = ""

	id := questions.Resolve(e.QuestionID, e.Question)
	if id == "" && st.Question != nil {
		id = st.Question.ID
	}

	if isVague(id, e.Answer) {
		next.VagueStreak++
	} else {
		next.VagueStreak = 0
		m.record(&next, id, e.Answer)
	}

	covered := m.covered(next.Answers)
	if score := m.score(covered); score > next.Confidence {
		next.Confidence = score
	}

	if mood, ok := m.contradiction(next, id); ok {
		q := questions.Clarify()
		next.Phase = NeedsClarification
		next.Clarified = true
		next.Question = &q
		next.Message = fmt.Sprintf("You mentioned feeling %s, but picked some pretty intense genres. "+
			"Want something lighter tonight, or keep your original picks?", moodWord(mood))
		log.WithFields(log.Fields{"reason": "contradiction", "answered": next.Answered}).Debug("conversation needs clarification")
		return next, nil
	}

	if m.readyFor(next, covered) {
		return m.finish(ctx, next)
	}

	if next.VagueStreak >= 2 && !next.FallbackOffered {
		q, _ := questions.Get(questions.IDFallback, questions.Context{})
		next.Phase = NeedsClarification
		next.FallbackOffered = true
		next.Question = &q
		next.Message = "It's totally fine not to be sure! Let's keep it simple."
		log.WithFields(log.Fields{"reason": "degenerate", "answered": next.Answered}).Debug("conversation needs clarification")
		return next, nil
	}

	nextID := m.nextCategory(covered)
	if nextID == "" {
		// everything asked; only reachable with a policy whose MinQuestions
		// exceeds the catalog
		return m.finish(ctx, next)
	}
	q, _ := questions.Get(nextID, adaptContext(next.Answers))
	next.Phase = Gathering
	next.Question = &q
	if nextID == questions.IDGenres && len(next.Answers[questions.IDGenres]) > 0 {
		next.Message = fmt.Sprintf("Pick at least %d genres so I can mix things up.", m.policy.MinGenres)
	}
	return next, nil
}

func (m *Machine) record(st *State, id string, a prefs.Answer) {
	switch id {
	case "":
		return
	case questions.IDFallback:
		genres, gems := questions.FallbackChoice(a.Text())
		// explicit picks win over the canned pair
		if len(st.Answers[questions.IDGenres]) < m.policy.MinGenres {
			st.Answers[questions.IDGenres] = prefs.Answer(genres)
		}
		if gems {
			if _, ok := st.Answers[questions.IDUnderrated]; !ok {
				st.Answers[questions.IDUnderrated] = prefs.Answer{"Yes, hidden gems"}
			}
		}
	case questions.IDGenres:
		for _, v := range a {
			if v == questions.KeepGenres {
				return
			}
		}
		st.Answers[id] = prefs.Answer(prefs.NormalizeGenres(a))
	default:
		st.Answers[id] = prefs.Answer{a.Text()}
	}
}

// covered returns the categories the answers satisfy.
func (m *Machine) covered(answers map[string]prefs.Answer) map[string]bool {
	out := make(map[string]bool, len(answers))
	for id, a := range answers {
		if id == questions.IDGenres {
			if len(a) >= m.policy.MinGenres {
				out[id] = true
			}
			continue
		}
		if strings.TrimSpace(a.Text()) != "" {
			out[id] = true
		}
	}
	return out
}

func (m *Machine) score(covered map[string]bool) int {
	total := 0
	for id := range covered {
		switch {
		case questions.IsRequired(id):
			total += m.policy.RequiredWeight
		case questions.IsOptional(id):
			total += m.policy.OptionalWeight
		}
	}
	if total > 100 {
		total = 100
	}
	return total
}

func (m *Machine) requiredCovered(covered map[string]bool) bool {
	for _, id := range questions.Required {
		if !covered[id] {
			return false
		}
	}
	return true
}

func (m *Machine) readyFor(st State, covered map[string]bool) bool {
	if !m.requiredCovered(covered) || st.Answered < m.policy.MinQuestions {
		return false
	}
	return st.Confidence >= m.policy.Threshold || st.Answered >= m.policy.MaxQuestions
}

// contradiction fires once per session, on a stressed or sad mood paired
// with intense genres.
func (m *Machine) contradiction(st State, id string) (questions.Mood, bool) {
	if st.Clarified || (id != questions.IDGenres && id != questions.IDMood) {
		return "", false
	}
	mood := questions.ClassifyMood(st.Answers[questions.IDMood].Text())
	if mood != questions.MoodStressed && mood != questions.MoodSad {
		return "", false
	}
	for _, g := range st.Answers[questions.IDGenres] {
		if questions.IsIntenseGenre(g) {
			return mood, true
		}
	}
	return "", false
}

func (m *Machine) nextCategory(covered map[string]bool) string {
	for _, id := range questions.Required {
		if !covered[id] {
			return id
		}
	}
	for _, id := range questions.Optional {
		if !covered[id] {
			return id
		}
	}
	return ""
}

func (m *Machine) finish(ctx context.Context, st State) (State, error) {
	base := Extract(st.Answers)
	set := base
	if m.extractor != nil {
		extracted, err := m.extractor.Extract(ctx, st.History, base)
		if err != nil {
			return State{}, fmt.Errorf("extract preferences: %w", err)
		}
		set = merge(extracted, base, m.policy.MinGenres)
	}
	set = set.Normalize()
	st.Phase = Ready
	st.Question = nil
	st.Preferences = &set
	st.Message = ""
	return st, nil
}

// Extract builds a preference set from recorded answers.
func Extract(answers map[string]prefs.Answer) prefs.Set {
	text := func(id string) string { return answers[id].Text() }
	return prefs.Set{
		Mood:        text(questions.IDMood),
		ContentType: text(questions.IDContentType),
		WatchTime:   text(questions.IDWatchTime),
		Genres:      prefs.NormalizeGenres(answers[questions.IDGenres]),
		Company:     text(questions.IDCompany),
		WatchStyle:  text(questions.IDWatchStyle),
		Language:    text(questions.IDLanguage),
		Underrated:  text(questions.IDUnderrated),
		AgeRating:   text(questions.IDAgeRating),
	}.Normalize()
}

// merge prefers extracted values and falls back to base for anything the
// extractor left empty, so a ready set never loses a required field.
func merge(extracted, base prefs.Set, minGenres int) prefs.Set {
	pick := func(a, b string) string {
		if strings.TrimSpace(a) != "" {
			return a
		}
		return b
	}
	out := prefs.Set{
		Mood:        pick(extracted.Mood, base.Mood),
		ContentType: pick(extracted.ContentType, base.ContentType),
		WatchTime:   pick(extracted.WatchTime, base.WatchTime),
		Company:     pick(extracted.Company, base.Company),
		WatchStyle:  pick(extracted.WatchStyle, base.WatchStyle),
		Language:    pick(extracted.Language, base.Language),
		Underrated:  pick(extracted.Underrated, base.Underrated),
		AgeRating:   pick(extracted.AgeRating, base.AgeRating),
		Genres:      prefs.NormalizeGenres(extracted.Genres),
	}
	if len(out.Genres) < minGenres {
		out.Genres = base.Genres
	}
	return out
}

func adaptContext(answers map[string]prefs.Answer) questions.Context {
	return questions.Context{
		Mood:    questions.ClassifyMood(answers[questions.IDMood].Text()),
		Content: prefs.ParseContentKind(answers[questions.IDContentType].Text()),
		Company: answers[questions.IDCompany].Text(),
	}
}

var vaguePhrases = []string{
	"i don't know", "i dont know", "don't know", "dont know", "idk", "whatever", "not sure",
	"no idea", "dunno", "no clue", "anything", "who cares", "i guess", "meh",
}

// fillerWords may surround a stock non-answer without making it a real one.
var fillerWords = map[string]bool{
	"i": true, "i'm": true, "im": true, "guess": true, "really": true, "honestly": true, "just": true, "maybe": true,
	"um": true, "uh": true, "hmm": true, "well": true, "so": true, "tbh": true, "lol": true,
	"idk": true, "whatever": true, "dunno": true, "meh": true, "anything": true,
}

// isVague reports a disengaged answer: a stock non-answer, possibly padded
// with filler words, or a very short free-text reply that is not one of the
// question's options.
func isVague(id string, a prefs.Answer) bool {
	if len(a) > 1 {
		for _, v := range a {
			if !isVague(id, prefs.Answer{v}) {
				return false
			}
		}
		return true
	}
	text := strings.ToLower(strings.TrimSpace(a.Text()))
	if text == "" {
		return true
	}
	if id != "" && questions.IsOption(id, text) {
		return false
	}
	if onlyFiller(text) {
		return true
	}
	letters := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters < 3
}

// onlyFiller reports whether text is nothing but stock phrases and filler.
func onlyFiller(text string) bool {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	if len(words) == 0 {
		return false
	}
	rest := " " + strings.Join(words, " ") + " "
	stock := false
	for _, p := range vaguePhrases {
		for strings.Contains(rest, " "+p+" ") {
			rest = strings.ReplaceAll(rest, " "+p+" ", " ")
			stock = true
		}
	}
	if !stock {
		return false
	}
	for _, w := range strings.Fields(rest) {
		if !fillerWords[w] {
			return false
		}
	}
	return true
}

func moodWord(m questions.Mood) string {
	if m == questions.MoodSad {
		return "a bit down"
	}
	return "stressed"
}

func (s State) clone() State {
	out := s
	out.History = append([]Entry(nil), s.History...)
	out.Answers = make(map[string]prefs.Answer, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = append(prefs.Answer(nil), v...)
	}
	if s.Question != nil {
		q := *s.Question
		q.Options = append([]string(nil), s.Question.Options...)
		out.Question = &q
	}
	if s.Preferences != nil {
		p := *s.Preferences
		out.Preferences = &p
	}
	return out
}
