package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/qrave1/RoomScribe/internal/domain/models"
)

type MockMeetingRepository struct {
	mock.Mock
}

func (m *MockMeetingRepository) EnsureActive(ctx context.Context, roomID string, hostUserID uuid.UUID) error {
	args := m.Called(ctx, roomID, hostUserID)
	return args.Error(0)
}
func (m *MockMeetingRepository) StartRecording(ctx context.Context, roomID string) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}
func (m *MockMeetingRepository) Checkpoint(ctx context.Context, roomID string, chunkCount, durationSeconds int) error {
	args := m.Called(ctx, roomID, chunkCount, durationSeconds)
	return args.Error(0)
}
func (m *MockMeetingRepository) Complete(ctx context.Context, roomID, audioURL string, durationSeconds int) error {
	args := m.Called(ctx, roomID, audioURL, durationSeconds)
	return args.Error(0)
}
func (m *MockMeetingRepository) MarkFailed(ctx context.Context, roomID, reason string) error {
	args := m.Called(ctx, roomID, reason)
	return args.Error(0)
}
func (m *MockMeetingRepository) GetByRoomID(ctx context.Context, roomID string) (*models.Meeting, error) {
	args := m.Called(ctx, roomID)
	if meeting, ok := args.Get(0).(*models.Meeting); ok {
		return meeting, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockHistoryRepository struct {
	mock.Mock
}

func (m *MockHistoryRepository) Add(ctx context.Context, entry *models.HistoryEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}
