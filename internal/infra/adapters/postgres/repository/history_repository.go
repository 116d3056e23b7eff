package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/qrave1/RoomScribe/internal/domain/models"
)

// HistoryRepository общая история встреч пользователя
type HistoryRepository interface {
	Add(ctx context.Context, entry *models.HistoryEntry) error
}

type historyRepo struct {
	db *sqlx.DB
}

func NewHistoryRepo(db *sqlx.DB) HistoryRepository {
	return &historyRepo{db: db}
}

func (r *historyRepo) Add(ctx context.Context, entry *models.HistoryEntry) error {
	query := `INSERT INTO meeting_history (id, user_id, room_id, audio_url, source, duration_minutes, date)
		VALUES (:id, :user_id, :room_id, :audio_url, :source, :duration_minutes, :date)`

	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("add history entry: %w", err)
	}

	return nil
}
