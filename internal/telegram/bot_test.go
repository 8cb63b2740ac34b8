package telegram

import (
	"context"
	"fmt"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"watchwise/internal/apperr"
	"watchwise/internal/auth"
	"watchwise/internal/conversation"
	"watchwise/internal/prefs"
	"watchwise/internal/questions"
	"watchwise/internal/recommend"
	"watchwise/internal/storage"
	"watchwise/internal/synth"
)

type fakeSender struct {
	sent     []tgbotapi.MessageConfig
	requests []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) texts() []string {
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.Text)
	}
	return out
}

func (f *fakeSender) last() tgbotapi.MessageConfig {
	return f.sent[len(f.sent)-1]
}

// fakePipeline asks a radio question, then a checkbox question, then is ready.
type fakePipeline struct {
	entries  []conversation.Entry
	userIDs  []string
	requests []recommend.Request
	advErr   error
	recErr   error
}

var (
	moodQ  = questions.Question{ID: "mood", Prompt: "How are you feeling?", Kind: questions.Radio, Options: []string{"Happy", "Tired"}}
	genreQ = questions.Question{ID: "genres", Prompt: "Pick genres", Kind: questions.Checkbox, Options: []string{"Comedy", "Drama", "Horror"}}
)

func (p *fakePipeline) Start() conversation.State {
	q := moodQ
	return conversation.State{Phase: conversation.Gathering, Question: &q}
}

func (p *fakePipeline) Advance(ctx context.Context, userID string, st conversation.State, e conversation.Entry) (conversation.State, error) {
	if p.advErr != nil {
		return st, p.advErr
	}
	p.entries = append(p.entries, e)
	p.userIDs = append(p.userIDs, userID)
	next := st
	next.History = append(append([]conversation.Entry(nil), st.History...), e)
	if len(next.History) == 1 {
		q := genreQ
		next.Question = &q
		return next, nil
	}
	next.Phase = conversation.Ready
	next.Question = nil
	next.Preferences = &prefs.Set{Mood: "Happy", Genres: prefs.Genres(e.Answer)}
	return next, nil
}

func (p *fakePipeline) Recommend(ctx context.Context, userID string, req recommend.Request) (recommend.Response, error) {
	p.requests = append(p.requests, req)
	if p.recErr != nil {
		return recommend.Response{}, p.recErr
	}
	return recommend.Response{Recommendations: []synth.Recommendation{
		{ID: "rec-1", Title: "Paddington <2>", Type: "movie", Genre: "Comedy", Rating: "7.8/10"},
		{ID: "rec-2", Title: "Ted Lasso", Type: "series", Genre: "Comedy"},
	}}, nil
}

type fakeFeedback struct {
	rated   map[string]int
	watched map[string]bool
}

func (f *fakeFeedback) Rate(ctx context.Context, userID, recID string, rating int) (storage.RatedItem, error) {
	if recID == "missing" {
		return storage.RatedItem{}, fmt.Errorf("rec %s: %w", recID, apperr.ErrNotFound)
	}
	if f.rated == nil {
		f.rated = map[string]int{}
	}
	f.rated[userID+"/"+recID] = rating
	return storage.RatedItem{ID: recID, Title: "Paddington"}, nil
}

func (f *fakeFeedback) MarkWatched(ctx context.Context, userID, recID string, watched bool, liked *bool) (storage.RatedItem, error) {
	if f.watched == nil {
		f.watched = map[string]bool{}
	}
	f.watched[userID+"/"+recID] = *liked
	return storage.RatedItem{ID: recID, Title: "Paddington"}, nil
}

const (
	adminID = int64(999)
	userID  = int64(42)
)

func newTestBot(t *testing.T) (*Bot, *fakeSender, *fakePipeline, *fakeFeedback) {
	t.Helper()
	svc, err := auth.NewWithRepo(nil, []int64{userID, adminID})
	if err != nil {
		t.Fatalf("auth init: %v", err)
	}
	fs := &fakeSender{}
	p := &fakePipeline{}
	fb := &fakeFeedback{}
	b := newBot(fs, svc, p, fb, Options{AdminUserID: adminID, DefaultRegion: "Canada"})
	return b, fs, p, fb
}

func textMsg(from int64, text string) *tgbotapi.Message {
	m := &tgbotapi.Message{
		From: &tgbotapi.User{ID: from, UserName: "user"},
		Chat: &tgbotapi.Chat{ID: from},
		Text: text,
	}
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return m
}

func callback(from int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: from},
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: from}},
		Data:    data,
	}
}

func buttons(m tgbotapi.MessageConfig) []tgbotapi.InlineKeyboardButton {
	kb, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		return nil
	}
	var out []tgbotapi.InlineKeyboardButton
	for _, row := range kb.InlineKeyboard {
		out = append(out, row...)
	}
	return out
}

func TestUnauthorizedFlow_SendsPendingAndAdminNotify(t *testing.T) {
	b, fs, _, _ := newTestBot(t)
	ctx := context.Background()

	b.handleIncomingMessage(ctx, textMsg(123, "hi"))

	if len(fs.sent) != 2 {
		t.Fatalf("want reply + admin notify, got %v", fs.texts())
	}
	notify := fs.sent[1]
	if notify.ChatID != adminID || !strings.Contains(notify.Text, "wants to use the bot") {
		t.Fatalf("admin notify not sent: %+v", notify)
	}
	btns := buttons(notify)
	if len(btns) != 2 || *btns[0].CallbackData != "approve:123" || *btns[1].CallbackData != "deny:123" {
		t.Fatalf("unexpected admin buttons: %+v", btns)
	}

	// second attempt does not re-notify
	b.handleIncomingMessage(ctx, textMsg(123, "hello?"))
	if len(fs.sent) != 3 {
		t.Fatalf("expected only a waiting reply, got %v", fs.texts())
	}

	b.handleCallback(ctx, callback(adminID, "approve:123"))
	if !b.authSvc.IsAllowed(123) {
		t.Fatalf("user should be approved")
	}
	if _, ok := b.pending[123]; ok {
		t.Fatalf("pending request should be cleared")
	}
}

func TestApproveCallbackIgnoredForNonAdmin(t *testing.T) {
	b, _, _, _ := newTestBot(t)
	b.pending[55] = auth.Viewer{ID: 55}

	b.handleCallback(context.Background(), callback(userID, "approve:55"))

	if b.authSvc.IsAllowed(55) {
		t.Fatalf("non-admin must not approve")
	}
}

func TestQuestionnaireToRecommendations(t *testing.T) {
	b, fs, p, _ := newTestBot(t)
	ctx := context.Background()

	b.handleIncomingMessage(ctx, textMsg(userID, "/start"))
	q := fs.last()
	if !strings.Contains(q.Text, "How are you feeling?") {
		t.Fatalf("first question not asked: %q", q.Text)
	}
	if btns := buttons(q); len(btns) != 2 || *btns[0].CallbackData != "a:0" {
		t.Fatalf("unexpected radio keyboard: %+v", btns)
	}

	b.handleCallback(ctx, callback(userID, "a:0"))
	if len(p.entries) != 1 || p.entries[0].Answer.Text() != "Happy" || p.entries[0].QuestionID != "mood" {
		t.Fatalf("radio answer not applied: %+v", p.entries)
	}
	if p.userIDs[0] != "tg:42" {
		t.Fatalf("expected scoped user id, got %q", p.userIDs[0])
	}
	if btns := buttons(fs.last()); len(btns) != 4 || *btns[3].CallbackData != "done" {
		t.Fatalf("checkbox keyboard should end with Done: %+v", btns)
	}

	// Done with nothing selected is refused
	b.handleCallback(ctx, callback(userID, "done"))
	if len(p.entries) != 1 {
		t.Fatalf("empty selection must not advance")
	}

	b.handleCallback(ctx, callback(userID, "t:0"))
	b.handleCallback(ctx, callback(userID, "t:1"))
	b.handleCallback(ctx, callback(userID, "t:1"))
	b.handleCallback(ctx, callback(userID, "t:2"))
	s, _ := b.sessions.Get(userID)
	if len(s.Selected) != 2 || !s.IsSelected("Comedy") || !s.IsSelected("Horror") {
		t.Fatalf("unexpected selection: %v", s.Selected)
	}

	edits := 0
	for _, r := range fs.requests {
		if edit, ok := r.(tgbotapi.EditMessageReplyMarkupConfig); ok {
			edits++
			if edit.MessageID != 7 {
				t.Fatalf("edit targets wrong message: %+v", edit)
			}
		}
	}
	if edits != 4 {
		t.Fatalf("want 4 keyboard edits, got %d", edits)
	}

	b.handleCallback(ctx, callback(userID, "done"))
	if len(p.entries) != 2 || len(p.entries[1].Answer) != 2 {
		t.Fatalf("checkbox answer not applied: %+v", p.entries)
	}
	if len(p.requests) != 1 || p.requests[0].Region != "Canada" {
		t.Fatalf("expected recommend with default region, got %+v", p.requests)
	}

	var card *tgbotapi.MessageConfig
	for i := range fs.sent {
		if strings.Contains(fs.sent[i].Text, "Paddington") {
			card = &fs.sent[i]
		}
	}
	if card == nil {
		t.Fatalf("card not sent: %v", fs.texts())
	}
	if !strings.Contains(card.Text, "Paddington &lt;2&gt;") {
		t.Fatalf("card title should be escaped: %q", card.Text)
	}
	btns := buttons(*card)
	if len(btns) != 7 || *btns[4].CallbackData != "r:5:rec-1" || *btns[6].CallbackData != "w:0:rec-1" {
		t.Fatalf("unexpected card keyboard: %+v", btns)
	}
	s, _ = b.sessions.Get(userID)
	if s.State.Phase != conversation.Ready || len(s.Batch) != 2 {
		t.Fatalf("session should hold the batch: %+v", s)
	}
}

func TestTypedAnswerAndRegion(t *testing.T) {
	b, fs, p, _ := newTestBot(t)
	ctx := context.Background()

	b.handleIncomingMessage(ctx, textMsg(userID, "/region UK"))
	if !strings.Contains(fs.last().Text, "Region set to") {
		t.Fatalf("unexpected reply: %q", fs.last().Text)
	}
	if v, _ := b.authSvc.Get(userID); v.Region != "UK" {
		t.Fatalf("region not saved: %+v", v)
	}

	b.handleIncomingMessage(ctx, textMsg(userID, "/start"))
	b.handleIncomingMessage(ctx, textMsg(userID, "pretty tired tbh"))
	b.handleIncomingMessage(ctx, textMsg(userID, "Drama"))
	if len(p.entries) != 2 || p.entries[0].Answer.Text() != "pretty tired tbh" {
		t.Fatalf("typed answers not applied: %+v", p.entries)
	}
	if len(p.requests) != 1 || p.requests[0].Region != "UK" {
		t.Fatalf("expected viewer region, got %+v", p.requests)
	}

	b.handleIncomingMessage(ctx, textMsg(userID, "more"))
	if !strings.Contains(fs.last().Text, "/start") {
		t.Fatalf("ready session should suggest /start, got %q", fs.last().Text)
	}
}

func TestPipelineErrorsAreSanitized(t *testing.T) {
	b, fs, p, _ := newTestBot(t)
	ctx := context.Background()
	b.handleIncomingMessage(ctx, textMsg(userID, "/start"))

	p.advErr = fmt.Errorf("chat: %w: dial tcp 10.0.0.1:443", apperr.ErrUpstreamUnavailable)
	b.handleCallback(ctx, callback(userID, "a:1"))

	got := fs.last().Text
	if strings.Contains(got, "10.0.0.1") || !strings.Contains(got, "unavailable") {
		t.Fatalf("error should be client-safe: %q", got)
	}
}

func TestFailedDeliveryIsRetried(t *testing.T) {
	b, fs, p, _ := newTestBot(t)
	ctx := context.Background()
	b.handleIncomingMessage(ctx, textMsg(userID, "/start"))
	b.handleIncomingMessage(ctx, textMsg(userID, "Happy"))

	p.recErr = fmt.Errorf("synthesize: %w", apperr.ErrUpstreamUnavailable)
	b.handleIncomingMessage(ctx, textMsg(userID, "Comedy"))
	if got := fs.last().Text; !strings.Contains(got, "Send any message to try again") {
		t.Fatalf("expected retry hint, got %q", got)
	}
	if s, _ := b.sessions.Get(userID); s.Batch != nil {
		t.Fatalf("failed delivery stored a batch: %+v", s.Batch)
	}

	p.recErr = nil
	b.handleIncomingMessage(ctx, textMsg(userID, "again please"))
	if len(p.requests) != 2 {
		t.Fatalf("delivery not retried: %d requests", len(p.requests))
	}
	if len(p.entries) != 2 {
		t.Fatalf("retry must not advance the questionnaire: %+v", p.entries)
	}
	s, _ := b.sessions.Get(userID)
	if len(s.Batch) != 2 || s.Batch["rec-1"].Title != "Paddington <2>" {
		t.Fatalf("batch not stored: %+v", s.Batch)
	}

	b.handleIncomingMessage(ctx, textMsg(userID, "more"))
	if !strings.Contains(fs.last().Text, "/start") || len(p.requests) != 2 {
		t.Fatalf("delivered session should suggest /start, got %q", fs.last().Text)
	}
}

func TestCardFeedbackCallbacks(t *testing.T) {
	b, fs, _, fb := newTestBot(t)
	ctx := context.Background()

	b.handleCallback(ctx, callback(userID, "r:4:rec-1"))
	if fb.rated["tg:42/rec-1"] != 4 {
		t.Fatalf("rating not recorded: %+v", fb.rated)
	}
	b.handleCallback(ctx, callback(userID, "w:0:rec-1"))
	if liked, ok := fb.watched["tg:42/rec-1"]; !ok || liked {
		t.Fatalf("dislike not recorded: %+v", fb.watched)
	}
	b.handleCallback(ctx, callback(userID, "r:4:missing"))
	b.handleCallback(ctx, callback(userID, "r:x"))

	answers := 0
	for _, r := range fs.requests {
		if cfg, ok := r.(tgbotapi.CallbackConfig); ok {
			answers++
			if cfg.Text == "not found" && answers != 3 {
				t.Fatalf("unexpected not found toast at %d", answers)
			}
		}
	}
	if answers != 4 {
		t.Fatalf("every callback should be answered, got %d", answers)
	}
}

func TestAdminCommands(t *testing.T) {
	b, fs, _, _ := newTestBot(t)
	ctx := context.Background()

	b.handleIncomingMessage(ctx, textMsg(userID, "/allowlist"))
	if !strings.Contains(fs.last().Text, "only available to the admin") {
		t.Fatalf("non-admin should be refused: %q", fs.last().Text)
	}

	b.handleIncomingMessage(ctx, textMsg(adminID, "/allowlist"))
	if !strings.Contains(fs.last().Text, "id=42") {
		t.Fatalf("allowlist missing user: %q", fs.last().Text)
	}

	b.handleIncomingMessage(ctx, textMsg(adminID, "/remove 42"))
	if b.authSvc.IsAllowed(userID) {
		t.Fatalf("user should be removed")
	}

	b.handleIncomingMessage(ctx, textMsg(adminID, "/approve abc"))
	if fs.last().Text != "Invalid user_id" {
		t.Fatalf("unexpected reply: %q", fs.last().Text)
	}

	b.handleIncomingMessage(ctx, textMsg(adminID, "/report"))
	if !strings.Contains(fs.last().Text, "Report unavailable") {
		t.Fatalf("report without journal should say so: %q", fs.last().Text)
	}
}

type memRecorder struct{ events []storage.Event }

func (m *memRecorder) Append(ev storage.Event) error { m.events = append(m.events, ev); return nil }
func (m *memRecorder) Load() ([]storage.Event, error) { return m.events, nil }

func TestSendDailyReport(t *testing.T) {
	b, fs, _, _ := newTestBot(t)
	rec := &memRecorder{}
	b.recorder = rec
	storage.Record(rec, storage.Event{Kind: storage.EventRecommendation, UserID: "tg:42", Count: 6})

	if err := b.SendDailyReport(context.Background()); err != nil {
		t.Fatalf("SendDailyReport: %v", err)
	}
	m := fs.last()
	if m.ChatID != adminID || !strings.Contains(m.Text, "Watchwise usage for") {
		t.Fatalf("report not sent to admin: %+v", m)
	}
	// today's event is not part of yesterday's report
	if !strings.Contains(m.Text, "Recommendations served: 0") {
		t.Fatalf("unexpected report: %q", m.Text)
	}
}
