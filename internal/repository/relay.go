package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tush00nka/unzipbot/internal/model"
)

type RelayRepository interface {
	Save(ctx context.Context, record *model.RelayRecord) error
	ListByChat(ctx context.Context, chatID int64, limit int) ([]model.RelayRecord, error)
}

type relayRepository struct {
	db *gorm.DB
}

func NewRelayRepository(db *gorm.DB) RelayRepository {
	return &relayRepository{db: db}
}

// Save пишет итог запроса. Повторная запись для той же пары (chat, request)
// обновляет существующую строку.
func (r *relayRepository) Save(ctx context.Context, record *model.RelayRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "chat_id"}, {Name: "request_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"updated_at", "status", "entries_sent", "entries_failed", "error", "duration",
			}),
		}).
		Create(record).Error
}

func (r *relayRepository) ListByChat(ctx context.Context, chatID int64, limit int) ([]model.RelayRecord, error) {
	var records []model.RelayRecord
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}
