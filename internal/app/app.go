// Package app assembles the engine from configuration. Every binary in cmd/
// builds one Engine and exposes it through its own transport.
package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"watchwise/internal/auth"
	"watchwise/internal/config"
	"watchwise/internal/conversation"
	"watchwise/internal/feedback"
	"watchwise/internal/llm"
	"watchwise/internal/recommend"
	"watchwise/internal/retrieval"
	"watchwise/internal/scheduler"
	"watchwise/internal/storage"
	"watchwise/internal/synth"
)

// Version is reported by the MCP server and the startup log.
const Version = "1.0.0"

const (
	JobReconcile = "reconcile-embeddings"
	JobReport    = "daily-report"
)

// Engine is the wired pipeline.
type Engine struct {
	Config      *config.Config
	Store       storage.Store
	Journal     storage.Recorder
	Recommender *recommend.Service
	Feedback    *feedback.Service
	Indexer     *feedback.Indexer
	Reconciler  *feedback.Reconciler
	Verifier    *auth.Verifier
}

// Build wires storage, providers and services. The indexer is created but
// not started; it is nil when no embedding provider is configured.
func Build(ctx context.Context, cfg *config.Config) (*Engine, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var journal storage.Recorder
	if cfg.JournalPath != "" {
		fr, err := storage.NewFileRecorder(cfg.JournalPath)
		if err != nil {
			log.Printf("failed to init event journal: %v", err)
		} else {
			journal = fr
		}
	}

	client, embedder, err := providers(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var extractor conversation.Extractor
	if cfg.ExtractWithLLM {
		extractor = conversation.NewLLMExtractor(client)
	}
	machine, err := conversation.New(cfg.Policy(), extractor)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("conversation policy: %w", err)
	}

	hints := synth.DefaultRegionHints()
	if cfg.RegionHintsPath != "" {
		h, err := synth.LoadRegionHints(cfg.RegionHintsPath)
		if err != nil {
			log.Printf("failed to load region hints from %s, using defaults: %v", cfg.RegionHintsPath, err)
		} else {
			hints = h
		}
	}

	retriever := retrieval.New(store, retrieval.Options{
		Seeds:     cfg.SeedCount,
		PerSeed:   cfg.MatchCount,
		Threshold: cfg.MatchThreshold,
		Limit:     cfg.CandidateLimit,
	})
	synthesizer := synth.New(client, hints, synth.Options{
		MaxRetries:     cfg.SynthMaxRetries,
		RepairAttempts: cfg.SynthRepairAttempts,
	})

	e := &Engine{
		Config:      cfg,
		Store:       store,
		Journal:     journal,
		Recommender: recommend.New(machine, store, retriever, synthesizer, journal, cfg.HistoryLimit),
	}
	var queue feedback.Enqueuer
	if embedder != nil {
		e.Indexer = feedback.NewIndexer(store, embedder, journal, feedback.IndexerOptions{
			Workers:    cfg.IndexerWorkers,
			QueueSize:  cfg.IndexerQueueSize,
			JobTimeout: cfg.IndexerJobTimeout,
		})
		e.Reconciler = feedback.NewReconciler(store, e.Indexer, 0)
		queue = e.Indexer
	}
	e.Feedback = feedback.NewService(store, queue, embedder, journal)
	e.Verifier = auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET is not set, every request is anonymous")
	}
	log.WithFields(log.Fields{
		"version":  Version,
		"provider": cfg.LLMProvider,
		"storage":  cfg.StorageDriver,
	}).Info("🔧 engine assembled")
	return e, nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pg, err := storage.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return pg, nil
	default:
		log.Warn("using in-memory storage, data is lost on restart")
		return storage.NewMemory(), nil
	}
}

// providers returns breaker-guarded text and embedding providers. A missing
// embedder is not fatal: ratings still persist, only indexing stops.
func providers(cfg *config.Config) (llm.Client, llm.Embedder, error) {
	f := &llm.Factory{
		OpenaiAPIKey:       cfg.OpenAIAPIKey,
		OpenaiBaseURL:      cfg.OpenAIBaseURL,
		OpenRouterReferrer: cfg.OpenRouterReferrer,
		OpenRouterTitle:    cfg.OpenRouterTitle,
		EmbeddingModel:     cfg.EmbeddingModel,
		YandexOAuthToken:   cfg.YandexOAuthToken,
		YandexFolderID:     cfg.YandexFolderID,
		Temperature:        cfg.LLMTemperature,
	}
	client, err := f.CreateClient(string(cfg.LLMProvider), cfg.OpenAIModel)
	if err != nil {
		return nil, nil, fmt.Errorf("create llm client: %w", err)
	}
	embedder, err := f.CreateEmbedder()
	if err != nil {
		log.Printf("⚠️ embeddings disabled: %v", err)
		embedder = nil
	}
	b := llm.NewBreaker(string(cfg.LLMProvider), client, embedder, llm.BreakerSettings{
		Name:             string(cfg.LLMProvider),
		FailureThreshold: cfg.BreakerFailures,
		OpenTimeout:      cfg.BreakerOpenTimeout,
	})
	if embedder == nil {
		return b, nil, nil
	}
	return b, b, nil
}

// Schedule registers the embedding reconciliation job on s.
func (e *Engine) Schedule(s *scheduler.Scheduler) error {
	if e.Reconciler == nil {
		return nil
	}
	return s.Add(JobReconcile, e.Config.ReconcileSchedule, func(ctx context.Context) error {
		n, err := e.Reconciler.Run(ctx)
		if n > 0 {
			log.Printf("🔁 re-queued %d items without embeddings", n)
		}
		return err
	})
}

// Start launches the embedding workers when there are any.
func (e *Engine) Start(ctx context.Context) {
	if e.Indexer != nil {
		e.Indexer.Start(ctx)
	}
}

// Close drains the indexer and releases the store.
func (e *Engine) Close() error {
	if e.Indexer != nil {
		e.Indexer.Stop()
	}
	if e.Store == nil {
		return nil
	}
	return e.Store.Close()
}
