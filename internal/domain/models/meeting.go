package models

import (
	"time"

	"github.com/google/uuid"
)

type MeetingStatus string

const (
	MeetingActive    MeetingStatus = "active"
	MeetingRecording MeetingStatus = "recording"
	MeetingCompleted MeetingStatus = "completed"
	MeetingFailed    MeetingStatus = "failed"
)

// Meeting - строка таблицы meetings, room_id используется как ключ идемпотентности
type Meeting struct {
	RoomID          string        `json:"room_id" db:"room_id"`
	HostUserID      uuid.NullUUID `json:"host_user_id" db:"host_user_id"`
	Status          MeetingStatus `json:"status" db:"status"`
	ChunkCount      int           `json:"chunk_count" db:"chunk_count"`
	DurationSeconds int           `json:"duration_seconds" db:"duration_seconds"`
	AudioURL        *string       `json:"audio_url" db:"audio_url"`
	FailureReason   *string       `json:"failure_reason" db:"failure_reason"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// InProgress reports whether a restarted process should treat the room as resumable.
func (m *Meeting) InProgress() bool {
	return m.Status == MeetingActive || m.Status == MeetingRecording
}

const HistorySourceLiveMeeting = "live_meeting"

// HistoryEntry - запись в общей истории встреч пользователя
type HistoryEntry struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	UserID          uuid.NullUUID `json:"user_id" db:"user_id"`
	RoomID          string        `json:"room_id" db:"room_id"`
	AudioURL        string        `json:"audio_url" db:"audio_url"`
	Source          string        `json:"source" db:"source"`
	DurationMinutes int           `json:"duration_minutes" db:"duration_minutes"`
	Date            time.Time     `json:"date" db:"date"`
}

func NewHistoryEntry(userID uuid.UUID, roomID, audioURL string, durationMinutes int, date time.Time) *HistoryEntry {
	return &HistoryEntry{
		ID:              uuid.New(),
		UserID:          uuid.NullUUID{UUID: userID, Valid: userID != uuid.Nil},
		RoomID:          roomID,
		AudioURL:        audioURL,
		Source:          HistorySourceLiveMeeting,
		DurationMinutes: durationMinutes,
		Date:            date,
	}
}
