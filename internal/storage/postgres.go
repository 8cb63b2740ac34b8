package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"watchwise/internal/apperr"
)

// embeddingRow is the item_embeddings table.
type embeddingRow struct {
	ID          uint            `gorm:"primaryKey"`
	UserID      string          `gorm:"not null;uniqueIndex:idx_item_embeddings_user_title,priority:1"`
	Title       string          `gorm:"not null;uniqueIndex:idx_item_embeddings_user_title,priority:2"`
	Description string          `gorm:"type:text"`
	Embedding   pgvector.Vector `gorm:"type:vector(1536);not null"`
	UserRating  int             `gorm:"not null;check:user_rating >= 4 AND user_rating <= 5"`
	CreatedAt   time.Time       `gorm:"not null"`
	UpdatedAt   time.Time       `gorm:"not null;index"`
}

func (embeddingRow) TableName() string { return "item_embeddings" }

// Postgres is the production Store: rated items in a table and embeddings
// in a pgvector column queried by cosine distance.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the vector extension, the tables and the ANN index.
func (p *Postgres) Migrate(ctx context.Context) error {
	db := p.db.WithContext(ctx)
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	if err := db.AutoMigrate(&RatedItem{}, &embeddingRow{}); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_item_embeddings_hnsw ON item_embeddings USING hnsw (embedding vector_cosine_ops)").Error; err != nil {
		return fmt.Errorf("create vector index: %w", err)
	}
	log.Println("🗄️ postgres schema is up to date")
	return nil
}

func storageErr(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %v", op, apperr.ErrStorage, err)
}

func (p *Postgres) SaveRecommendations(ctx context.Context, userID string, items []RatedItem) ([]RatedItem, error) {
	if len(items) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	out := make([]RatedItem, len(items))
	for i, it := range items {
		it.ID = uuid.NewString()
		it.UserID = userID
		it.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		it.UpdatedAt = it.CreatedAt
		out[i] = it
	}
	if err := p.db.WithContext(ctx).Create(&out).Error; err != nil {
		return nil, storageErr("save recommendations", err)
	}
	return out, nil
}

func (p *Postgres) GetItem(ctx context.Context, userID, id string) (RatedItem, error) {
	if _, err := uuid.Parse(id); err != nil {
		return RatedItem{}, fmt.Errorf("item %s: %w", id, apperr.ErrNotFound)
	}
	var it RatedItem
	err := p.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&it).Error
	if err != nil {
		return RatedItem{}, storageErr("get item", err)
	}
	return it, nil
}

func (p *Postgres) update(ctx context.Context, userID, id string, values map[string]interface{}) (RatedItem, error) {
	if _, err := uuid.Parse(id); err != nil {
		return RatedItem{}, fmt.Errorf("item %s: %w", id, apperr.ErrNotFound)
	}
	values["updated_at"] = time.Now().UTC()
	res := p.db.WithContext(ctx).Model(&RatedItem{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(values)
	if res.Error != nil {
		return RatedItem{}, storageErr("update item", res.Error)
	}
	if res.RowsAffected == 0 {
		return RatedItem{}, fmt.Errorf("item %s: %w", id, apperr.ErrNotFound)
	}
	return p.GetItem(ctx, userID, id)
}

func (p *Postgres) SetRating(ctx context.Context, userID, id string, rating int) (RatedItem, error) {
	return p.update(ctx, userID, id, map[string]interface{}{"user_rating": rating})
}

func (p *Postgres) SetWatched(ctx context.Context, userID, id string, watched bool, rating *int) (RatedItem, error) {
	values := map[string]interface{}{"watched": watched}
	if rating != nil {
		values["user_rating"] = *rating
	}
	return p.update(ctx, userID, id, values)
}

func (p *Postgres) RecentRated(ctx context.Context, userID string, limit int) ([]RatedItem, error) {
	var out []RatedItem
	q := p.db.WithContext(ctx).
		Where("user_id = ? AND user_rating IS NOT NULL", userID).
		Order("updated_at DESC, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, storageErr("recent rated", err)
	}
	return out, nil
}

func (p *Postgres) ListHistory(ctx context.Context, userID string, limit int) ([]RatedItem, error) {
	var out []RatedItem
	q := p.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, storageErr("list history", err)
	}
	return out, nil
}

func (p *Postgres) HistoryTitles(ctx context.Context, userID string) ([]string, error) {
	var titles []string
	err := p.db.WithContext(ctx).Model(&RatedItem{}).
		Where("user_id = ?", userID).
		Distinct().Order("title").Pluck("title", &titles).Error
	if err != nil {
		return nil, storageErr("history titles", err)
	}
	return titles, nil
}

func (p *Postgres) WatchedTitles(ctx context.Context, userID string) ([]string, error) {
	var titles []string
	err := p.db.WithContext(ctx).Model(&RatedItem{}).
		Where("user_id = ? AND watched = ?", userID, true).
		Distinct().Order("title").Pluck("title", &titles).Error
	if err != nil {
		return nil, storageErr("watched titles", err)
	}
	return titles, nil
}

func (p *Postgres) RecentLovedEmbeddings(ctx context.Context, userID string, limit int) ([]ItemEmbedding, error) {
	var rows []embeddingRow
	q := p.db.WithContext(ctx).
		Where("user_id = ? AND user_rating >= ?", userID, MinEmbeddingRating).
		Order("updated_at DESC, title")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, storageErr("loved embeddings", err)
	}
	out := make([]ItemEmbedding, 0, len(rows))
	for _, r := range rows {
		out = append(out, ItemEmbedding{
			UserID:      r.UserID,
			Title:       r.Title,
			Description: r.Description,
			Embedding:   r.Embedding.Slice(),
			UserRating:  r.UserRating,
			CreatedAt:   r.CreatedAt,
			UpdatedAt:   r.UpdatedAt,
		})
	}
	return out, nil
}

const matchTitlesSQL = `
SELECT title, description, 1 - (embedding <=> ?) AS similarity
FROM item_embeddings
WHERE user_id = ? AND 1 - (embedding <=> ?) > ?
ORDER BY embedding <=> ?, title
LIMIT ?`

func (p *Postgres) MatchTitles(ctx context.Context, userID string, query []float32, threshold float64, count int) ([]TitleMatch, error) {
	vec := pgvector.NewVector(query)
	var out []TitleMatch
	err := p.db.WithContext(ctx).Raw(matchTitlesSQL, vec, userID, vec, threshold, vec, count).Scan(&out).Error
	if err != nil {
		return nil, storageErr("match titles", err)
	}
	return out, nil
}

func (p *Postgres) UpsertEmbedding(ctx context.Context, e ItemEmbedding) error {
	if e.UserRating < MinEmbeddingRating {
		return fmt.Errorf("embedding for rating %d: %w", e.UserRating, apperr.ErrValidation)
	}
	now := time.Now().UTC()
	row := embeddingRow{
		UserID:      e.UserID,
		Title:       e.Title,
		Description: e.Description,
		Embedding:   pgvector.NewVector(e.Embedding),
		UserRating:  e.UserRating,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "title"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "embedding", "user_rating", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return storageErr("upsert embedding", err)
	}
	return nil
}

func (p *Postgres) DeleteEmbedding(ctx context.Context, userID, title string) error {
	err := p.db.WithContext(ctx).
		Where("user_id = ? AND title = ?", userID, title).
		Delete(&embeddingRow{}).Error
	if err != nil {
		return storageErr("delete embedding", err)
	}
	return nil
}

func (p *Postgres) ItemsMissingEmbeddings(ctx context.Context, limit int) ([]RatedItem, error) {
	var out []RatedItem
	q := p.db.WithContext(ctx).
		Where("user_rating >= ?", MinEmbeddingRating).
		Where("NOT EXISTS (SELECT 1 FROM item_embeddings e WHERE e.user_id = rated_items.user_id AND e.title = rated_items.title)").
		Order("updated_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, storageErr("items missing embeddings", err)
	}
	return out, nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
