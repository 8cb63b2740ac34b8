package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"watchwise/internal/app"
	"watchwise/internal/auth"
	"watchwise/internal/config"
	"watchwise/internal/scheduler"
	"watchwise/internal/telegram"
)

func main() {
	cfg := config.New()
	cfg.SetupLogging()
	if cfg.TelegramBotToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}
	engine.Start(ctx)

	allowRepo := fileRepo(cfg.AllowlistFilePath, "allowlist")
	authSvc, err := auth.NewWithRepo(allowRepo, cfg.AllowedUsers)
	if err != nil {
		log.Fatalf("failed to init auth: %v", err)
	}

	bot, err := telegram.New(cfg.TelegramBotToken, authSvc, engine.Recommender, engine.Feedback, telegram.Options{
		AdminUserID:   cfg.AdminUserID,
		DefaultRegion: cfg.DefaultRegion,
		PendingRepo:   fileRepo(cfg.PendingFilePath, "pending"),
		Recorder:      engine.Journal,
	})
	if err != nil {
		log.Fatalf("failed to create bot: %v", err)
	}

	sched := scheduler.New()
	if err := engine.Schedule(sched); err != nil {
		log.Fatalf("failed to schedule jobs: %v", err)
	}
	if err := sched.Add(app.JobReport, cfg.ReportSchedule, bot.SendDailyReport); err != nil {
		log.Fatalf("failed to schedule report: %v", err)
	}
	sched.Start()

	bot.Start(ctx)

	sched.Stop()
	if err := engine.Close(); err != nil {
		log.Printf("❌ failed to close engine: %v", err)
	}
}

// fileRepo returns nil when path is empty or unusable; the bot then keeps
// that list in memory only.
func fileRepo(path, what string) auth.Repository {
	if path == "" {
		return nil
	}
	repo, err := auth.NewFileRepository(path)
	if err != nil {
		log.Printf("failed to init %s repo: %v", what, err)
		return nil
	}
	return repo
}
