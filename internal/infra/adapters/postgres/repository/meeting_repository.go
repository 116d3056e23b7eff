package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/qrave1/RoomScribe/internal/domain/models"
)

var ErrMeetingNotFound = errors.New("meeting not found")

// MeetingRepository - долговременная запись о встрече, room_id служит ключом идемпотентности
type MeetingRepository interface {
	// EnsureActive creates the row for a new room. An existing row keeps its status.
	EnsureActive(ctx context.Context, roomID string, hostUserID uuid.UUID) error
	// StartRecording moves the row to recording and resets counters of a previous session.
	StartRecording(ctx context.Context, roomID string) error
	Checkpoint(ctx context.Context, roomID string, chunkCount, durationSeconds int) error
	Complete(ctx context.Context, roomID, audioURL string, durationSeconds int) error
	MarkFailed(ctx context.Context, roomID, reason string) error

	GetByRoomID(ctx context.Context, roomID string) (*models.Meeting, error)
}

type meetingRepo struct {
	db *sqlx.DB
}

func NewMeetingRepo(db *sqlx.DB) MeetingRepository {
	return &meetingRepo{db: db}
}

func (r *meetingRepo) EnsureActive(ctx context.Context, roomID string, hostUserID uuid.UUID) error {
	query := `INSERT INTO meetings (room_id, host_user_id, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (room_id) DO UPDATE
		SET host_user_id = COALESCE(EXCLUDED.host_user_id, meetings.host_user_id),
		    updated_at   = now()`

	_, err := r.db.ExecContext(ctx, query, roomID, nullUUID(hostUserID), models.MeetingActive)
	if err != nil {
		return fmt.Errorf("ensure meeting: %w", err)
	}

	return nil
}

func (r *meetingRepo) StartRecording(ctx context.Context, roomID string) error {
	query := `INSERT INTO meetings (room_id, status)
		VALUES ($1, $2)
		ON CONFLICT (room_id) DO UPDATE
		SET status           = EXCLUDED.status,
		    chunk_count      = 0,
		    duration_seconds = 0,
		    audio_url        = NULL,
		    failure_reason   = NULL,
		    updated_at       = now()`

	_, err := r.db.ExecContext(ctx, query, roomID, models.MeetingRecording)
	if err != nil {
		return fmt.Errorf("start meeting recording: %w", err)
	}

	return nil
}

func (r *meetingRepo) Checkpoint(ctx context.Context, roomID string, chunkCount, durationSeconds int) error {
	query := `UPDATE meetings
		SET chunk_count = $1, duration_seconds = $2, updated_at = now()
		WHERE room_id = $3`

	return r.update(ctx, "checkpoint meeting", query, chunkCount, durationSeconds, roomID)
}

func (r *meetingRepo) Complete(ctx context.Context, roomID, audioURL string, durationSeconds int) error {
	query := `UPDATE meetings
		SET status = $1, audio_url = $2, duration_seconds = $3, failure_reason = NULL, updated_at = now()
		WHERE room_id = $4`

	return r.update(ctx, "complete meeting", query, models.MeetingCompleted, audioURL, durationSeconds, roomID)
}

func (r *meetingRepo) MarkFailed(ctx context.Context, roomID, reason string) error {
	query := `UPDATE meetings
		SET status = $1, failure_reason = $2, updated_at = now()
		WHERE room_id = $3`

	return r.update(ctx, "mark meeting failed", query, models.MeetingFailed, reason, roomID)
}

func (r *meetingRepo) GetByRoomID(ctx context.Context, roomID string) (*models.Meeting, error) {
	var meeting models.Meeting

	query := `SELECT room_id, host_user_id, status, chunk_count, duration_seconds,
		audio_url, failure_reason, created_at, updated_at
		FROM meetings WHERE room_id = $1`

	err := r.db.GetContext(ctx, &meeting, query, roomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMeetingNotFound
		}

		return nil, fmt.Errorf("get meeting: %w", err)
	}

	return &meeting, nil
}

func (r *meetingRepo) update(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if aff, err := res.RowsAffected(); err == nil && aff == 0 {
		return fmt.Errorf("%s: %w", op, ErrMeetingNotFound)
	}

	return nil
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}
