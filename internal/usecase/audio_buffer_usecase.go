package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/qrave1/RoomScribe/internal/application/background"
	"github.com/qrave1/RoomScribe/internal/application/constant"
	"github.com/qrave1/RoomScribe/internal/application/metric"
	"github.com/qrave1/RoomScribe/internal/domain"
	"github.com/qrave1/RoomScribe/internal/infra/adapters/memory"
	postrepo "github.com/qrave1/RoomScribe/internal/infra/adapters/postgres/repository"
)

type AppendResult struct {
	Stats domain.ChunkStats
	// Checkpointed - на этом чанке был запущен чекпоинт счетчиков
	Checkpointed bool
}

// AudioBufferUsecase держит в памяти аудио активных записей по комнатам
type AudioBufferUsecase interface {
	StartRecording(ctx context.Context, roomID string) error
	AppendChunk(ctx context.Context, roomID string, data []byte) (AppendResult, error)

	// BeginFinalize is the single guard against concurrent finalization of a room.
	BeginFinalize(roomID string) error
	DrainForFinalize(roomID string) ([]byte, error)
	Discard(roomID string)

	Snapshot(roomID string) (domain.SessionStats, bool)
}

type sessionEntry struct {
	session *domain.RecordingSession
	mu      sync.Mutex
}

type audioBufferUsecase struct {
	rooms       memory.RoomRegistry
	meetingRepo postrepo.MeetingRepository
	runner      *background.Runner

	limits          domain.RecordingLimits
	checkpointEvery int
	now             func() time.Time

	sessions map[string]*sessionEntry
	mu       sync.Mutex
}

func NewAudioBufferUsecase(
	rooms memory.RoomRegistry,
	meetingRepo postrepo.MeetingRepository,
	runner *background.Runner,
	limits domain.RecordingLimits,
	checkpointEvery int,
	now func() time.Time,
) AudioBufferUsecase {
	return &audioBufferUsecase{
		rooms:           rooms,
		meetingRepo:     meetingRepo,
		runner:          runner,
		limits:          limits,
		checkpointEvery: checkpointEvery,
		now:             now,
		sessions:        make(map[string]*sessionEntry),
	}
}

func (a *audioBufferUsecase) StartRecording(ctx context.Context, roomID string) error {
	if _, ok := a.rooms.Get(roomID); !ok {
		return domain.ErrRoomNotFound
	}

	entry := &sessionEntry{session: domain.NewRecordingSession(roomID, a.now())}

	a.mu.Lock()
	if _, exists := a.sessions[roomID]; exists {
		a.mu.Unlock()
		return domain.ErrAlreadyRecording
	}
	a.sessions[roomID] = entry
	a.mu.Unlock()

	if err := a.meetingRepo.StartRecording(ctx, roomID); err != nil {
		a.remove(roomID, entry)

		return fmt.Errorf("persist recording start: %w", err)
	}

	slog.Info("recording started", slog.String(constant.RoomID, roomID))

	return nil
}

func (a *audioBufferUsecase) AppendChunk(_ context.Context, roomID string, data []byte) (AppendResult, error) {
	entry, ok := a.get(roomID)
	if !ok {
		metric.IncrementRejectedChunks("not_recording")
		return AppendResult{}, domain.ErrNotRecording
	}

	now := a.now()

	entry.mu.Lock()
	stats, err := entry.session.Append(data, now, a.limits)
	durationSeconds := domain.CeilSeconds(now.Sub(entry.session.StartedAt))
	entry.mu.Unlock()

	if err != nil {
		metric.IncrementRejectedChunks(rejectReason(err))
		return AppendResult{Stats: stats}, err
	}

	metric.AddAudioBytes(len(data))

	result := AppendResult{Stats: stats}

	if stats.ChunkCount%a.checkpointEvery == 0 {
		result.Checkpointed = true

		a.runner.Submit(
			"checkpoint",
			func(ctx context.Context) error {
				return a.meetingRepo.Checkpoint(ctx, roomID, stats.ChunkCount, durationSeconds)
			},
			slog.String(constant.RoomID, roomID),
			slog.Int(constant.ChunkCount, stats.ChunkCount),
		)
	}

	return result, nil
}

func (a *audioBufferUsecase) BeginFinalize(roomID string) error {
	entry, ok := a.get(roomID)
	if !ok {
		return domain.ErrNotRecording
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return entry.session.BeginFinalize()
}

func (a *audioBufferUsecase) DrainForFinalize(roomID string) ([]byte, error) {
	entry, ok := a.get(roomID)
	if !ok {
		return nil, domain.ErrNotRecording
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return entry.session.Drain()
}

func (a *audioBufferUsecase) Discard(roomID string) {
	a.mu.Lock()
	entry, ok := a.sessions[roomID]
	delete(a.sessions, roomID)
	a.mu.Unlock()

	if !ok {
		return
	}

	entry.mu.Lock()
	entry.session.Release()
	entry.mu.Unlock()
}

func (a *audioBufferUsecase) Snapshot(roomID string) (domain.SessionStats, bool) {
	entry, ok := a.get(roomID)
	if !ok {
		return domain.SessionStats{}, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return entry.session.Stats(a.now()), true
}

func (a *audioBufferUsecase) get(roomID string) (*sessionEntry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.sessions[roomID]
	return entry, ok
}

func (a *audioBufferUsecase) remove(roomID string, entry *sessionEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sessions[roomID] == entry {
		delete(a.sessions, roomID)
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrBufferFull):
		return "buffer_full"
	case errors.Is(err, domain.ErrDurationExceeded):
		return "duration_exceeded"
	case errors.Is(err, domain.ErrSessionShuttingDown):
		return "shutting_down"
	default:
		return "other"
	}
}
