package feedback

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"watchwise/internal/storage"
)

// Reconciler re-queues loved items whose embedding never landed, e.g.
// because the queue was full or the job ran out of retries.
type Reconciler struct {
	store storage.Store
	queue Enqueuer
	batch int
}

func NewReconciler(store storage.Store, queue Enqueuer, batch int) *Reconciler {
	if batch <= 0 {
		batch = 100
	}
	return &Reconciler{store: store, queue: queue, batch: batch}
}

// Run queues one batch and reports how many jobs were accepted.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	items, err := r.store.ItemsMissingEmbeddings(ctx, r.batch)
	if err != nil {
		return 0, fmt.Errorf("find items missing embeddings: %w", err)
	}
	queued := 0
	for _, it := range items {
		if r.queue.Enqueue(Job{UserID: it.UserID, ItemID: it.ID, Title: it.Title, Description: it.Description, Rating: *it.UserRating}) {
			queued++
		}
	}
	if len(items) > 0 {
		log.Printf("🔁 reconciliation queued %d of %d missing embeddings", queued, len(items))
	}
	return queued, nil
}
