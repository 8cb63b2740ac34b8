package telegram

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"watchwise/internal/auth"
	"watchwise/internal/prefs"
	"watchwise/internal/synth"
)

const (
	approvePrefix = "approve:"
	denyPrefix    = "deny:"
)

const helpText = "I'll ask a few quick questions and then pick six movies or series for you.\n\n" +
	"/start begins a new round\n" +
	"/region &lt;name&gt; sets your streaming region, e.g. /region Canada"

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.startSession(msg.Chat.ID, msg.From.ID)
		return
	case "help":
		b.sendMessage(msg.Chat.ID, helpText)
		return
	case "region":
		b.handleRegion(msg)
		return
	}

	// admin-only commands
	if msg.From.ID != b.adminUserID {
		b.sendMessage(msg.Chat.ID, "This command is only available to the admin.")
		return
	}
	switch msg.Command() {
	case "allowlist":
		var bld strings.Builder
		bld.WriteString("Allowlist:\n")
		for _, v := range b.authSvc.List() {
			bld.WriteString(fmt.Sprintf("- id=%d, @%s %s %s %s\n", v.ID, html.EscapeString(v.Username),
				html.EscapeString(v.FirstName), html.EscapeString(v.LastName), html.EscapeString(v.Region)))
		}
		b.sendMessage(msg.Chat.ID, bld.String())
	case "pending":
		var bld strings.Builder
		bld.WriteString("Pending requests:\n")
		b.pendingMu.Lock()
		for _, v := range b.pending {
			bld.WriteString(fmt.Sprintf("- id=%d, @%s %s %s\n", v.ID, html.EscapeString(v.Username),
				html.EscapeString(v.FirstName), html.EscapeString(v.LastName)))
		}
		b.pendingMu.Unlock()
		b.sendMessage(msg.Chat.ID, bld.String())
	case "approve", "deny", "remove":
		args := strings.Fields(msg.CommandArguments())
		if len(args) != 1 {
			b.sendMessage(msg.Chat.ID, fmt.Sprintf("Usage: /%s &lt;user_id&gt;", msg.Command()))
			return
		}
		uid, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			b.sendMessage(msg.Chat.ID, "Invalid user_id")
			return
		}
		switch msg.Command() {
		case "approve":
			b.approveUser(uid)
		case "deny":
			b.denyUser(uid)
		default:
			if err := b.authSvc.Remove(uid); err != nil {
				b.sendMessage(msg.Chat.ID, fmt.Sprintf("Failed to remove: %v", html.EscapeString(err.Error())))
				return
			}
			b.sessions.Reset(uid)
			b.sendMessage(msg.Chat.ID, fmt.Sprintf("User %d removed from the allowlist", uid))
		}
	case "report":
		summary, err := b.dailySummary(time.Now().UTC())
		if err != nil {
			b.sendMessage(msg.Chat.ID, "Report unavailable: "+html.EscapeString(err.Error()))
			return
		}
		b.sendMessage(msg.Chat.ID, html.EscapeString(summary))
	default:
		b.sendMessage(msg.Chat.ID, "Unknown command")
	}
}

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if !b.authSvc.IsAllowed(msg.From.ID) {
		b.requestAccess(msg)
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	log.WithField("user_id", auth.ScopedID(msg.From.ID)).Debugf("incoming answer %q", text)
	b.answer(ctx, msg.Chat.ID, msg.From.ID, prefs.Answer{text})
}

func (b *Bot) requestAccess(msg *tgbotapi.Message) {
	log.Printf("Unauthorized access attempt by user ID: %d, username: @%s", msg.From.ID, msg.From.UserName)
	b.pendingMu.Lock()
	if _, ok := b.pending[msg.From.ID]; ok {
		b.pendingMu.Unlock()
		b.sendMessage(msg.Chat.ID, "Your access request is waiting for the admin. I'll let you know once it's approved.")
		return
	}
	v := auth.Viewer{ID: msg.From.ID, Username: msg.From.UserName, FirstName: msg.From.FirstName, LastName: msg.From.LastName}
	b.pending[msg.From.ID] = v
	b.pendingMu.Unlock()
	if b.pendingRepo != nil {
		if err := b.pendingRepo.Upsert(v); err != nil {
			log.Printf("failed to persist pending request: %v", err)
		}
	}
	b.sendMessage(msg.Chat.ID, "Access request sent to the admin. You'll get a message once it's approved.")
	b.notifyAdminRequest(msg.From.ID, msg.From.UserName)
}

func (b *Bot) notifyAdminRequest(userID int64, username string) {
	if b.adminUserID == 0 {
		return
	}
	text := fmt.Sprintf("User @%s with id %d wants to use the bot", html.EscapeString(username), userID)
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("approve", approvePrefix+strconv.FormatInt(userID, 10)),
			tgbotapi.NewInlineKeyboardButtonData("deny", denyPrefix+strconv.FormatInt(userID, 10)),
		),
	)
	msg := tgbotapi.NewMessage(b.adminUserID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = kb
	if _, err := b.s.Send(msg); err != nil {
		log.Printf("failed to notify admin: %v", err)
	}
}

func (b *Bot) takePending(userID int64) auth.Viewer {
	b.pendingMu.Lock()
	v, ok := b.pending[userID]
	delete(b.pending, userID)
	b.pendingMu.Unlock()
	if !ok {
		v = auth.Viewer{ID: userID}
	}
	if b.pendingRepo != nil {
		if err := b.pendingRepo.Remove(userID); err != nil {
			log.Printf("failed to remove pending request: %v", err)
		}
	}
	return v
}

func (b *Bot) approveUser(userID int64) {
	v := b.takePending(userID)
	if err := b.authSvc.Upsert(v); err != nil {
		log.Printf("failed to approve %d: %v", userID, err)
		return
	}
	b.sendMessage(userID, "Access granted! Send /start to get your first recommendations.")
	if b.adminUserID != 0 {
		b.sendMessage(b.adminUserID, fmt.Sprintf("User %d approved", userID))
	}
}

func (b *Bot) denyUser(userID int64) {
	b.takePending(userID)
	b.sendMessage(userID, "Sorry, access was not granted.")
	if b.adminUserID != 0 {
		b.sendMessage(b.adminUserID, fmt.Sprintf("User %d denied", userID))
	}
}

func (b *Bot) handleRegion(msg *tgbotapi.Message) {
	region := strings.TrimSpace(msg.CommandArguments())
	if region == "" {
		current := b.regionFor(msg.From.ID)
		if current == "" {
			current = "not set"
		}
		b.sendMessage(msg.Chat.ID, "Your region: "+html.EscapeString(current)+"\nUsage: /region &lt;name&gt;")
		return
	}
	if len([]rune(region)) > 100 {
		b.sendMessage(msg.Chat.ID, "Region name is too long.")
		return
	}
	if err := b.authSvc.SetRegion(msg.From.ID, region); err != nil {
		log.Printf("failed to save region: %v", err)
	}
	b.sendMessage(msg.Chat.ID, "Region set to "+html.EscapeString(synth.NormalizeRegion(region)))
}

func (b *Bot) regionFor(userID int64) string {
	if v, ok := b.authSvc.Get(userID); ok && v.Region != "" {
		return v.Region
	}
	return b.defaultRegion
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || cb.Message == nil {
		return
	}
	switch {
	case strings.HasPrefix(cb.Data, approvePrefix), strings.HasPrefix(cb.Data, denyPrefix):
		if cb.From.ID != b.adminUserID {
			b.answerCallback(cb, "")
			return
		}
		approve := strings.HasPrefix(cb.Data, approvePrefix)
		idStr := strings.TrimPrefix(strings.TrimPrefix(cb.Data, approvePrefix), denyPrefix)
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			b.answerCallback(cb, "bad request")
			return
		}
		if approve {
			b.approveUser(id)
		} else {
			b.denyUser(id)
		}
		b.answerCallback(cb, "")
		return
	}

	if !b.authSvc.IsAllowed(cb.From.ID) {
		b.answerCallback(cb, "")
		return
	}
	switch {
	case strings.HasPrefix(cb.Data, cbAnswer):
		b.handleOption(ctx, cb)
	case strings.HasPrefix(cb.Data, cbToggle):
		b.handleToggle(cb)
	case cb.Data == cbDone:
		b.handleDone(ctx, cb)
	case strings.HasPrefix(cb.Data, cbRate):
		b.handleRate(ctx, cb)
	case strings.HasPrefix(cb.Data, cbWatched):
		b.handleWatched(ctx, cb)
	default:
		b.answerCallback(cb, "")
	}
}
