package feedback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"watchwise/internal/apperr"
	"watchwise/internal/llm"
	"watchwise/internal/metrics"
	"watchwise/internal/storage"
)

// Job asks for the embedding of one loved title.
type Job struct {
	UserID      string
	ItemID      string // empty for direct ingestion
	Title       string
	Description string
	Rating      int
}

// Enqueuer accepts embedding jobs without blocking.
type Enqueuer interface {
	Enqueue(job Job) bool
}

type IndexerOptions struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	// InitialInterval is the first retry delay; tests shorten it.
	InitialInterval time.Duration
}

func DefaultIndexerOptions() IndexerOptions {
	return IndexerOptions{Workers: 2, QueueSize: 256, JobTimeout: 2 * time.Minute, InitialInterval: 500 * time.Millisecond}
}

// Indexer is the embedding queue: a buffered channel drained by a worker
// pool. Each job retries with exponential backoff within JobTimeout.
type Indexer struct {
	store    storage.Store
	embedder llm.Embedder
	journal  storage.Recorder
	opts     IndexerOptions

	queue  chan Job
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewIndexer(store storage.Store, embedder llm.Embedder, journal storage.Recorder, opts IndexerOptions) *Indexer {
	d := DefaultIndexerOptions()
	if opts.Workers <= 0 {
		opts.Workers = d.Workers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = d.QueueSize
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = d.JobTimeout
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = d.InitialInterval
	}
	return &Indexer{
		store:    store,
		embedder: embedder,
		journal:  journal,
		opts:     opts,
		queue:    make(chan Job, opts.QueueSize),
	}
}

// Start launches the workers. They exit when Stop is called or ctx ends.
func (ix *Indexer) Start(ctx context.Context) {
	for i := 0; i < ix.opts.Workers; i++ {
		ix.wg.Add(1)
		go ix.worker(ctx, i)
	}
	log.Printf("🧮 embedding indexer started with %d workers", ix.opts.Workers)
}

// Stop closes the queue and waits for queued jobs to finish.
func (ix *Indexer) Stop() {
	ix.mu.Lock()
	if !ix.closed {
		ix.closed = true
		close(ix.queue)
	}
	ix.mu.Unlock()
	ix.wg.Wait()
	log.Println("🧮 embedding indexer stopped")
}

// Enqueue never blocks: a full or stopped queue drops the job.
func (ix *Indexer) Enqueue(job Job) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		metrics.EmbeddingJobs.WithLabelValues("dropped").Inc()
		return false
	}
	select {
	case ix.queue <- job:
		metrics.EmbeddingJobs.WithLabelValues("enqueued").Inc()
		metrics.EmbeddingQueueDepth.Set(float64(len(ix.queue)))
		return true
	default:
		metrics.EmbeddingJobs.WithLabelValues("dropped").Inc()
		log.WithFields(log.Fields{"user_id": job.UserID, "title": job.Title}).Warn("⚠️ embedding queue full, job dropped")
		return false
	}
}

func (ix *Indexer) worker(ctx context.Context, n int) {
	defer ix.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-ix.queue:
			if !ok {
				return
			}
			metrics.EmbeddingQueueDepth.Set(float64(len(ix.queue)))
			if err := ix.Process(ctx, job); err != nil {
				log.WithFields(log.Fields{"worker": n, "user_id": job.UserID, "title": job.Title}).
					WithError(err).Error("❌ embedding job failed")
			}
		}
	}
}

// errStale marks a job whose item was re-rated below the floor meanwhile.
var errStale = errors.New("item no longer qualifies")

// Process runs one job with retries.
func (ix *Indexer) Process(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, ix.opts.JobTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = ix.opts.InitialInterval
	b.MaxElapsedTime = ix.opts.JobTimeout

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := ix.index(ctx, job)
		if err == nil {
			return nil
		}
		if errors.Is(err, errStale) || errors.Is(err, apperr.ErrValidation) || errors.Is(err, apperr.ErrNotFound) {
			return backoff.Permanent(err)
		}
		log.WithFields(log.Fields{"title": job.Title, "attempt": attempts}).Debugf("embedding attempt failed: %v", err)
		return err
	}, backoff.WithContext(b, ctx))

	switch {
	case err == nil:
		metrics.EmbeddingJobs.WithLabelValues("stored").Inc()
		storage.Record(ix.journal, storage.Event{Kind: storage.EventEmbedding, UserID: job.UserID, Title: job.Title, Rating: job.Rating})
		return nil
	case errors.Is(err, errStale):
		metrics.EmbeddingJobs.WithLabelValues("skipped").Inc()
		return nil
	default:
		metrics.EmbeddingJobs.WithLabelValues("failed").Inc()
		storage.Record(ix.journal, storage.Event{Kind: storage.EventEmbedding, UserID: job.UserID, Title: job.Title, Rating: job.Rating, Failed: true})
		return fmt.Errorf("index %q after %d attempts: %w", job.Title, attempts, err)
	}
}

func (ix *Indexer) index(ctx context.Context, job Job) error {
	if job.ItemID != "" {
		it, err := ix.store.GetItem(ctx, job.UserID, job.ItemID)
		if err != nil {
			return err
		}
		if it.UserRating == nil || *it.UserRating < storage.MinEmbeddingRating {
			return errStale
		}
		job.Rating = *it.UserRating
	}
	return embedAndStore(ctx, ix.store, ix.embedder, job)
}

func embedAndStore(ctx context.Context, store storage.Store, embedder llm.Embedder, job Job) error {
	vec, err := embedder.Embed(ctx, EmbeddingText(job.Title, job.Description))
	if err != nil {
		return fmt.Errorf("embed %q: %w", job.Title, err)
	}
	return store.UpsertEmbedding(ctx, storage.ItemEmbedding{
		UserID:      job.UserID,
		Title:       job.Title,
		Description: job.Description,
		Embedding:   vec,
		UserRating:  job.Rating,
	})
}

// EmbeddingText is the text a title is embedded from.
func EmbeddingText(title, description string) string {
	if description == "" {
		return title
	}
	return title + ". " + description
}
