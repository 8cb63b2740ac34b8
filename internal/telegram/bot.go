// Package telegram is a chat transport for the recommendation engine:
// questions become keyboards, recommendations become rateable cards.
package telegram

import (
	"context"
	"fmt"
	"html"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"watchwise/internal/analytics"
	"watchwise/internal/auth"
	"watchwise/internal/conversation"
	"watchwise/internal/history"
	"watchwise/internal/recommend"
	"watchwise/internal/storage"
)

// Pipeline is the engine surface the bot drives.
type Pipeline interface {
	Start() conversation.State
	Advance(ctx context.Context, userID string, st conversation.State, e conversation.Entry) (conversation.State, error)
	Recommend(ctx context.Context, userID string, req recommend.Request) (recommend.Response, error)
}

// Feedback records ratings and watched state from card buttons.
type Feedback interface {
	Rate(ctx context.Context, userID, recID string, rating int) (storage.RatedItem, error)
	MarkWatched(ctx context.Context, userID, recID string, watched bool, liked *bool) (storage.RatedItem, error)
}

type Options struct {
	AdminUserID   int64
	DefaultRegion string
	PendingRepo   auth.Repository
	Recorder      storage.Recorder
}

type Bot struct {
	api           *tgbotapi.BotAPI
	s             sender
	authSvc       *auth.Service
	pipeline      Pipeline
	feedback      Feedback
	sessions      *history.Manager
	recorder      storage.Recorder
	adminUserID   int64
	defaultRegion string

	pendingMu   sync.Mutex
	pending     map[int64]auth.Viewer
	pendingRepo auth.Repository
}

func New(botToken string, authSvc *auth.Service, pipeline Pipeline, fb Feedback, opts Options) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	b := newBot(botAPISender{api: api}, authSvc, pipeline, fb, opts)
	b.api = api
	log.Printf("🤖 Authorized on account @%s", api.Self.UserName)
	return b, nil
}

func newBot(s sender, authSvc *auth.Service, pipeline Pipeline, fb Feedback, opts Options) *Bot {
	b := &Bot{
		s:             s,
		authSvc:       authSvc,
		pipeline:      pipeline,
		feedback:      fb,
		sessions:      history.NewManager(),
		recorder:      opts.Recorder,
		adminUserID:   opts.AdminUserID,
		defaultRegion: opts.DefaultRegion,
		pending:       make(map[int64]auth.Viewer),
		pendingRepo:   opts.PendingRepo,
	}
	if b.pendingRepo != nil {
		viewers, err := b.pendingRepo.LoadAll()
		if err != nil {
			log.Printf("failed to load pending requests: %v", err)
		}
		for _, v := range viewers {
			b.pending[v.ID] = v
		}
	}
	return b
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	log.Println("🚀 Telegram bot is polling for updates")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			log.Println("🔌 Telegram bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				b.handleIncomingMessage(ctx, update.Message)
				continue
			}
			if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
			}
		}
	}
}

// SendDailyReport sends yesterday's usage report to the admin. The
// scheduler calls it once a day.
func (b *Bot) SendDailyReport(ctx context.Context) error {
	summary, err := b.dailySummary(time.Now().UTC().AddDate(0, 0, -1))
	if err != nil {
		return err
	}
	if b.adminUserID == 0 {
		log.Println(summary)
		return nil
	}
	b.sendMessage(b.adminUserID, html.EscapeString(summary))
	return nil
}

func (b *Bot) dailySummary(day time.Time) (string, error) {
	if b.recorder == nil {
		return "", fmt.Errorf("no event journal configured")
	}
	events, err := b.recorder.Load()
	if err != nil {
		return "", fmt.Errorf("load journal: %w", err)
	}
	return analytics.AnalyzeDailyEvents(events, day).GenerateReportSummary(), nil
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.s.Send(msg); err != nil {
		log.Printf("failed to send message: %v", err)
	}
}

// answerCallback clears the button spinner, optionally with a toast.
func (b *Bot) answerCallback(cb *tgbotapi.CallbackQuery, text string) {
	if _, err := b.s.Request(tgbotapi.NewCallback(cb.ID, text)); err != nil {
		log.Printf("failed to answer callback: %v", err)
	}
}
