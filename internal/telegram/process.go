package telegram

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"watchwise/internal/apperr"
	"watchwise/internal/auth"
	"watchwise/internal/conversation"
	"watchwise/internal/history"
	"watchwise/internal/prefs"
	"watchwise/internal/questions"
	"watchwise/internal/recommend"
	"watchwise/internal/synth"
)

// callback data prefixes; telegram caps callback data at 64 bytes
const (
	cbAnswer  = "a:"
	cbToggle  = "t:"
	cbDone    = "done"
	cbRate    = "r:"
	cbWatched = "w:"
)

func (b *Bot) startSession(chatID, userID int64) {
	s := history.Session{State: b.pipeline.Start()}
	b.sessions.Put(userID, s)
	b.sendMessage(chatID, "Let's find something to watch! 🍿")
	b.askQuestion(chatID, s)
}

func (b *Bot) askQuestion(chatID int64, s history.Session) {
	q := s.State.Question
	if q == nil {
		return
	}
	text := html.EscapeString(q.Prompt)
	if s.State.Message != "" {
		text = html.EscapeString(s.State.Message) + "\n\n" + text
	}
	if q.Kind == questions.Checkbox {
		text += "\n<i>Pick any, then press Done.</i>"
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if len(q.Options) > 0 {
		msg.ReplyMarkup = questionKeyboard(*q, s)
	}
	if _, err := b.s.Send(msg); err != nil {
		log.Printf("failed to send question: %v", err)
	}
}

func questionKeyboard(q questions.Question, s history.Session) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, opt := range q.Options {
		idx := strconv.Itoa(i)
		if q.Kind == questions.Checkbox {
			label := opt
			if s.IsSelected(opt) {
				label = "✅ " + opt
			}
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, cbToggle+idx)))
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(opt, cbAnswer+idx)))
	}
	if q.Kind == questions.Checkbox {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Done", cbDone)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// option resolves "<prefix><idx>" against the session's current question.
func option(s history.Session, data, prefix string) (string, bool) {
	q := s.State.Question
	if q == nil {
		return "", false
	}
	i, err := strconv.Atoi(strings.TrimPrefix(data, prefix))
	if err != nil || i < 0 || i >= len(q.Options) {
		return "", false
	}
	return q.Options[i], true
}

func (b *Bot) handleOption(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	s, ok := b.sessions.Get(cb.From.ID)
	if !ok {
		b.answerCallback(cb, "Session expired, send /start")
		return
	}
	opt, ok := option(s, cb.Data, cbAnswer)
	if !ok {
		b.answerCallback(cb, "That question has moved on")
		return
	}
	b.answerCallback(cb, "")
	b.answer(ctx, cb.Message.Chat.ID, cb.From.ID, prefs.Answer{opt})
}

func (b *Bot) handleToggle(cb *tgbotapi.CallbackQuery) {
	s, ok := b.sessions.Get(cb.From.ID)
	if !ok {
		b.answerCallback(cb, "Session expired, send /start")
		return
	}
	opt, ok := option(s, cb.Data, cbToggle)
	if !ok {
		b.answerCallback(cb, "That question has moved on")
		return
	}
	s.Toggle(opt)
	b.sessions.Put(cb.From.ID, s)
	edit := tgbotapi.NewEditMessageReplyMarkup(cb.Message.Chat.ID, cb.Message.MessageID, questionKeyboard(*s.State.Question, s))
	if _, err := b.s.Request(edit); err != nil {
		log.Printf("failed to update keyboard: %v", err)
	}
	b.answerCallback(cb, "")
}

func (b *Bot) handleDone(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	s, ok := b.sessions.Get(cb.From.ID)
	if !ok {
		b.answerCallback(cb, "Session expired, send /start")
		return
	}
	if len(s.Selected) == 0 {
		b.answerCallback(cb, "Pick at least one option")
		return
	}
	b.answerCallback(cb, "")
	b.answer(ctx, cb.Message.Chat.ID, cb.From.ID, prefs.Answer(s.Selected))
}

// answer applies one answer to the user's session and either asks the next
// question or delivers recommendations.
func (b *Bot) answer(ctx context.Context, chatID, userID int64, a prefs.Answer) {
	s, ok := b.sessions.Get(userID)
	if !ok {
		s = history.Session{State: b.pipeline.Start()}
	}
	if s.State.Phase == conversation.Ready {
		// no batch means the last delivery failed
		if s.Batch == nil {
			b.deliver(ctx, chatID, userID, s)
			return
		}
		b.sendMessage(chatID, "Send /start for a new round of recommendations.")
		return
	}
	entry := conversation.Entry{Answer: a}
	if q := s.State.Question; q != nil {
		entry.Question = q.Prompt
		entry.QuestionID = q.ID
	}
	next, err := b.pipeline.Advance(ctx, auth.ScopedID(userID), s.State, entry)
	if err != nil {
		b.sendError(chatID, err, "Send your answer again or /start over.")
		return
	}
	s = history.Session{State: next}
	b.sessions.Put(userID, s)
	if next.Phase != conversation.Ready {
		b.askQuestion(chatID, s)
		return
	}
	b.deliver(ctx, chatID, userID, s)
}

func (b *Bot) deliver(ctx context.Context, chatID, userID int64, s history.Session) {
	if s.State.Preferences == nil {
		b.sendMessage(chatID, "Something went wrong, send /start to try again.")
		return
	}
	b.sendMessage(chatID, "Got it! Picking titles for you… 🎬")
	req := recommend.Request{Preferences: *s.State.Preferences, Region: b.regionFor(userID)}
	resp, err := b.pipeline.Recommend(ctx, auth.ScopedID(userID), req)
	if err != nil {
		b.sendError(chatID, err, "Send any message to try again or /start over.")
		return
	}
	s.Batch = make(map[string]synth.Recommendation, len(resp.Recommendations))
	for _, r := range resp.Recommendations {
		if r.ID != "" {
			s.Batch[r.ID] = r
		}
		b.sendCard(chatID, r)
	}
	b.sessions.Put(userID, s)
	b.sendMessage(chatID, "Rate what you've seen so the next picks fit better. /start for another round.")
}

func (b *Bot) sendCard(chatID int64, r synth.Recommendation) {
	var bld strings.Builder
	bld.WriteString(fmt.Sprintf("<b>%s</b>", html.EscapeString(r.Title)))
	meta := []string{r.Type, r.Genre, r.Rating, r.ContentRating}
	var parts []string
	for _, m := range meta {
		if m != "" {
			parts = append(parts, html.EscapeString(m))
		}
	}
	if len(parts) > 0 {
		bld.WriteString("\n<i>" + strings.Join(parts, " · ") + "</i>")
	}
	if r.Description != "" {
		bld.WriteString("\n\n" + html.EscapeString(r.Description))
	}
	if r.MatchReason != "" {
		bld.WriteString("\n\n💡 " + html.EscapeString(r.MatchReason))
	}
	msg := tgbotapi.NewMessage(chatID, bld.String())
	msg.ParseMode = tgbotapi.ModeHTML
	if r.ID != "" {
		msg.ReplyMarkup = cardKeyboard(r.ID)
	}
	if _, err := b.s.Send(msg); err != nil {
		log.Printf("failed to send card: %v", err)
	}
}

func cardKeyboard(recID string) tgbotapi.InlineKeyboardMarkup {
	var stars []tgbotapi.InlineKeyboardButton
	for n := 1; n <= 5; n++ {
		stars = append(stars, tgbotapi.NewInlineKeyboardButtonData(strconv.Itoa(n)+"⭐", fmt.Sprintf("%s%d:%s", cbRate, n, recID)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		stars,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👍 watched", cbWatched+"1:"+recID),
			tgbotapi.NewInlineKeyboardButtonData("👎 not for me", cbWatched+"0:"+recID),
		),
	)
}

// splitCard parses "<prefix><n>:<recID>".
func splitCard(data, prefix string) (int, string, bool) {
	n, id, ok := strings.Cut(strings.TrimPrefix(data, prefix), ":")
	if !ok || id == "" {
		return 0, "", false
	}
	v, err := strconv.Atoi(n)
	if err != nil {
		return 0, "", false
	}
	return v, id, true
}

func (b *Bot) handleRate(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	n, recID, ok := splitCard(cb.Data, cbRate)
	if !ok {
		b.answerCallback(cb, "bad request")
		return
	}
	item, err := b.feedback.Rate(ctx, auth.ScopedID(cb.From.ID), recID, n)
	if err != nil {
		_, text := apperr.Status(err)
		b.answerCallback(cb, text)
		return
	}
	b.answerCallback(cb, fmt.Sprintf("Rated %s %d⭐", item.Title, n))
}

func (b *Bot) handleWatched(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	flag, recID, ok := splitCard(cb.Data, cbWatched)
	if !ok {
		b.answerCallback(cb, "bad request")
		return
	}
	liked := flag == 1
	item, err := b.feedback.MarkWatched(ctx, auth.ScopedID(cb.From.ID), recID, true, &liked)
	if err != nil {
		_, text := apperr.Status(err)
		b.answerCallback(cb, text)
		return
	}
	if liked {
		b.answerCallback(cb, "Noted, glad you liked "+item.Title)
		return
	}
	b.answerCallback(cb, "Noted, fewer like "+item.Title)
}

// sendError replies with the client-safe text for err, plus retryHint when
// retrying can help.
func (b *Bot) sendError(chatID int64, err error, retryHint string) {
	status, text := apperr.Status(err)
	if status >= 500 {
		log.WithError(err).Error("telegram request failed")
	}
	if apperr.Retryable(err) {
		text += " " + retryHint
	}
	b.sendMessage(chatID, html.EscapeString(text))
}
