package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/qrave1/RoomScribe/internal/application/background"
	"github.com/qrave1/RoomScribe/internal/application/config"
	"github.com/qrave1/RoomScribe/internal/application/constant"
	"github.com/qrave1/RoomScribe/internal/application/metric"
	"github.com/qrave1/RoomScribe/internal/domain"
	"github.com/qrave1/RoomScribe/internal/domain/events"
	"github.com/qrave1/RoomScribe/internal/domain/models"
	"github.com/qrave1/RoomScribe/internal/infra/adapters/memory"
	postrepo "github.com/qrave1/RoomScribe/internal/infra/adapters/postgres/repository"
	"github.com/qrave1/RoomScribe/internal/infra/adapters/storage"
)

const (
	noAudioReason  = "no audio captured"
	maxRoomIDInKey = 64
)

// RecordingState - состояние записи комнаты. Stale означает, что данные
// восстановлены из последнего чекпоинта в БД, а не из памяти процесса.
type RecordingState struct {
	IsRecording       bool
	IsFinalizing      bool
	DurationSeconds   int
	ChunkCount        int
	BufferedSizeBytes int64
	ParticipantCount  int

	Stale     bool
	Status    models.MeetingStatus
	AudioURL  string
	LastError string
	Retryable bool
}

// RecordingUsecase управляет жизненным циклом записи: старт, остановка с загрузкой,
// ручной повтор неудачной загрузки.
type RecordingUsecase interface {
	// Authorize checks that userID may control recording of the room.
	Authorize(ctx context.Context, roomID string, userID uuid.UUID) error

	StartRecording(ctx context.Context, roomID string) error
	StopRecording(ctx context.Context, roomID string, elapsedSeconds int) (string, error)
	RetryUpload(ctx context.Context, roomID string) (string, error)
	GetRecordingState(ctx context.Context, roomID string) (RecordingState, error)

	// AbandonRoom releases recording state of a room whose host left.
	// Buffered audio is finalized in the background.
	AbandonRoom(room domain.Room)

	// Wait blocks until background finalizations complete.
	Wait()
}

// uploadJob - слитая запись, которая хранится до успешной загрузки
type uploadJob struct {
	roomID          string
	hostUserID      uuid.UUID
	filename        string
	payload         []byte
	durationSeconds int

	lastErr  error
	failedAt time.Time
	retrying bool
}

type recordingUsecase struct {
	audio         AudioBufferUsecase
	transcription TranscriptionUsecase
	rooms         memory.RoomRegistry
	wsRepo        memory.WebsocketConnectionRepository

	meetingRepo postrepo.MeetingRepository
	historyRepo postrepo.HistoryRepository
	uploader    storage.Uploader
	runner      *background.Runner

	cfg    config.RecordingConfig
	subdir string

	ctx   context.Context
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)

	failures map[string]*uploadJob
	mu       sync.Mutex

	inflight sync.WaitGroup
}

func NewRecordingUsecase(
	ctx context.Context,
	audio AudioBufferUsecase,
	transcription TranscriptionUsecase,
	rooms memory.RoomRegistry,
	wsRepo memory.WebsocketConnectionRepository,
	meetingRepo postrepo.MeetingRepository,
	historyRepo postrepo.HistoryRepository,
	uploader storage.Uploader,
	runner *background.Runner,
	cfg config.RecordingConfig,
	subdir string,
	now func() time.Time,
) RecordingUsecase {
	return &recordingUsecase{
		audio:         audio,
		transcription: transcription,
		rooms:         rooms,
		wsRepo:        wsRepo,
		meetingRepo:   meetingRepo,
		historyRepo:   historyRepo,
		uploader:      uploader,
		runner:        runner,
		cfg:           cfg,
		subdir:        subdir,
		ctx:           context.WithoutCancel(ctx),
		now:           now,
		sleep:         sleepContext,
		failures:      make(map[string]*uploadJob),
	}
}

func (r *recordingUsecase) Authorize(ctx context.Context, roomID string, userID uuid.UUID) error {
	if room, ok := r.rooms.Get(roomID); ok {
		return checkHostUser(room.HostUserID, userID)
	}

	meeting, err := r.meetingRepo.GetByRoomID(ctx, roomID)
	if err != nil {
		if errors.Is(err, postrepo.ErrMeetingNotFound) {
			return domain.ErrRoomNotFound
		}

		return fmt.Errorf("get meeting: %w", err)
	}

	return checkHostUser(meeting.HostUserID.UUID, userID)
}

func (r *recordingUsecase) StartRecording(ctx context.Context, roomID string) error {
	// новая запись вытесняет неудачную загрузку прошлой, иначе повтор затрет ее audio_url
	r.mu.Lock()
	previous, hasPrevious := r.failures[roomID]
	if hasPrevious && previous.retrying {
		r.mu.Unlock()
		return domain.ErrRetryInProgress
	}
	delete(r.failures, roomID)
	r.mu.Unlock()

	if err := r.audio.StartRecording(ctx, roomID); err != nil {
		if hasPrevious {
			r.mu.Lock()
			if _, exists := r.failures[roomID]; !exists {
				r.failures[roomID] = previous
			}
			r.mu.Unlock()
		}

		return err
	}

	if hasPrevious {
		slog.Warn(
			"failed upload discarded by new recording",
			slog.Any(constant.Error, previous.lastErr),
			slog.String(constant.RoomID, roomID),
		)
	}

	broadcast(r.wsRepo, r.rooms.Members(roomID), events.Out(events.RecordingStarted, nil))

	return nil
}

func (r *recordingUsecase) StopRecording(ctx context.Context, roomID string, elapsedSeconds int) (string, error) {
	if err := r.audio.BeginFinalize(roomID); err != nil {
		return "", err
	}

	var hostUserID uuid.UUID
	if room, ok := r.rooms.Get(roomID); ok {
		hostUserID = room.HostUserID
	}

	// загрузка не прерывается вместе с запросом клиента
	audioURL, err := r.finalize(context.WithoutCancel(ctx), roomID, hostUserID, elapsedSeconds)
	if err != nil {
		return "", err
	}

	broadcast(r.wsRepo, r.rooms.Members(roomID), events.Out(events.RecordingStopped, events.RecordingStoppedEvent{AudioURL: audioURL}))

	return audioURL, nil
}

func (r *recordingUsecase) RetryUpload(ctx context.Context, roomID string) (string, error) {
	r.mu.Lock()
	r.pruneFailuresLocked()
	job, ok := r.failures[roomID]
	if !ok {
		r.mu.Unlock()
		return "", domain.ErrNoFailedUpload
	}
	if job.retrying {
		r.mu.Unlock()
		return "", domain.ErrRetryInProgress
	}
	job.retrying = true
	r.mu.Unlock()

	slog.Info("retrying recording upload", slog.String(constant.RoomID, roomID))

	return r.deliver(context.WithoutCancel(ctx), job)
}

func (r *recordingUsecase) GetRecordingState(ctx context.Context, roomID string) (RecordingState, error) {
	var state RecordingState

	room, roomExists := r.rooms.Get(roomID)
	if roomExists {
		state.ParticipantCount = room.Count()
	}

	r.mu.Lock()
	r.pruneFailuresLocked()
	if job, ok := r.failures[roomID]; ok {
		state.Retryable = !job.retrying
		if job.lastErr != nil {
			state.LastError = job.lastErr.Error()
		}
	}
	r.mu.Unlock()

	if stats, ok := r.audio.Snapshot(roomID); ok {
		state.IsRecording = stats.State == domain.SessionRecording
		state.IsFinalizing = stats.State == domain.SessionStopping || stats.State == domain.SessionFinalizing
		state.DurationSeconds = stats.DurationSeconds
		state.ChunkCount = stats.ChunkCount
		state.BufferedSizeBytes = stats.TotalBytes
		state.Status = models.MeetingRecording

		return state, nil
	}

	meeting, err := r.meetingRepo.GetByRoomID(ctx, roomID)
	if err != nil {
		if !errors.Is(err, postrepo.ErrMeetingNotFound) && !roomExists {
			return RecordingState{}, fmt.Errorf("get meeting: %w", err)
		}

		if !roomExists && !state.Retryable && state.LastError == "" {
			return RecordingState{}, domain.ErrRoomNotFound
		}

		state.Status = models.MeetingActive

		return state, nil
	}

	state.Stale = true
	state.Status = meeting.Status
	state.IsRecording = meeting.Status == models.MeetingRecording
	state.DurationSeconds = meeting.DurationSeconds
	state.ChunkCount = meeting.ChunkCount

	if meeting.AudioURL != nil {
		state.AudioURL = *meeting.AudioURL
	}
	if state.LastError == "" && meeting.FailureReason != nil {
		state.LastError = *meeting.FailureReason
	}

	return state, nil
}

func (r *recordingUsecase) AbandonRoom(room domain.Room) {
	defer r.transcription.CloseRoom(room.ID)

	if err := r.audio.BeginFinalize(room.ID); err != nil {
		// записи нет, либо ее уже финализирует StopRecording
		return
	}

	slog.Info("host left during recording, finalizing in background", slog.String(constant.RoomID, room.ID))

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()

		if _, err := r.finalize(r.ctx, room.ID, room.HostUserID, 0); err != nil {
			slog.Error(
				"background finalize",
				slog.Any(constant.Error, err),
				slog.String(constant.RoomID, room.ID),
			)
		}
	}()
}

func (r *recordingUsecase) Wait() {
	r.inflight.Wait()
}

// finalize expects BeginFinalize to have succeeded. Buffered memory is released on every path.
func (r *recordingUsecase) finalize(ctx context.Context, roomID string, hostUserID uuid.UUID, elapsedSeconds int) (string, error) {
	stopped, _ := r.audio.Snapshot(roomID)

	// сессия в stopping, чанки в пути еще дописываются
	r.sleep(ctx, r.cfg.GracePeriod)

	payload, err := r.audio.DrainForFinalize(roomID)
	stats, _ := r.audio.Snapshot(roomID)
	r.audio.Discard(roomID)
	r.transcription.CloseRoom(roomID)

	if err != nil {
		if errors.Is(err, domain.ErrNotRecording) {
			return "", err
		}

		return "", fmt.Errorf("drain recording: %w", err)
	}

	durationSeconds := stopped.DurationSeconds
	if elapsedSeconds > 0 {
		durationSeconds = elapsedSeconds
	}

	if err = r.meetingRepo.Checkpoint(ctx, roomID, stats.ChunkCount, durationSeconds); err != nil {
		slog.Warn("final checkpoint", slog.Any(constant.Error, err), slog.String(constant.RoomID, roomID))
	}

	if len(payload) == 0 {
		if err = r.meetingRepo.MarkFailed(ctx, roomID, noAudioReason); err != nil {
			slog.Warn("mark meeting failed", slog.Any(constant.Error, err), slog.String(constant.RoomID, roomID))
		}
		metric.IncrementFinalize("no_audio")

		return "", domain.ErrNoAudioCaptured
	}

	job := &uploadJob{
		roomID:          roomID,
		hostUserID:      hostUserID,
		filename:        recordingFilename(roomID),
		payload:         payload,
		durationSeconds: durationSeconds,
	}

	return r.deliver(ctx, job)
}

// deliver uploads the payload and completes the meeting. On failure the job is kept for RetryUpload.
func (r *recordingUsecase) deliver(ctx context.Context, job *uploadJob) (string, error) {
	audioURL, err := r.upload(ctx, job)
	if err == nil {
		err = r.meetingRepo.Complete(ctx, job.roomID, audioURL, job.durationSeconds)
		if err != nil {
			err = fmt.Errorf("complete meeting: %w", err)
		}
	}

	if err != nil {
		ferr := &domain.FinalizeError{RoomID: job.roomID, Err: err}

		if _, live := r.audio.Snapshot(job.roomID); live {
			// в комнате уже идет новая запись, строка встречи принадлежит ей
			metric.IncrementFinalize("failed")
			slog.Error("finalize superseded recording", slog.Any(constant.Error, ferr), slog.String(constant.RoomID, job.roomID))

			return "", ferr
		}

		if markErr := r.meetingRepo.MarkFailed(ctx, job.roomID, err.Error()); markErr != nil {
			slog.Warn("mark meeting failed", slog.Any(constant.Error, markErr), slog.String(constant.RoomID, job.roomID))
		}

		r.mu.Lock()
		job.lastErr = err
		job.failedAt = r.now()
		job.retrying = false
		r.pruneFailuresLocked()
		r.failures[job.roomID] = job
		r.mu.Unlock()

		metric.IncrementFinalize("failed")
		slog.Error("finalize recording", slog.Any(constant.Error, ferr), slog.String(constant.RoomID, job.roomID))

		return "", ferr
	}

	r.mu.Lock()
	if r.failures[job.roomID] == job {
		delete(r.failures, job.roomID)
	}
	r.mu.Unlock()

	metric.IncrementFinalize("completed")
	slog.Info(
		"recording finalized",
		slog.String(constant.RoomID, job.roomID),
		slog.String(constant.AudioURL, audioURL),
		slog.Int(constant.Duration, job.durationSeconds),
	)

	entry := models.NewHistoryEntry(job.hostUserID, job.roomID, audioURL, domain.CeilMinutes(job.durationSeconds), r.now())
	r.runner.Submit(
		"history entry",
		func(ctx context.Context) error {
			return r.historyRepo.Add(ctx, entry)
		},
		slog.String(constant.RoomID, job.roomID),
	)

	return audioURL, nil
}

// pruneFailuresLocked drops payloads that waited longer than FailedUploadTTL. Caller holds r.mu.
func (r *recordingUsecase) pruneFailuresLocked() {
	if r.cfg.FailedUploadTTL <= 0 {
		return
	}

	now := r.now()

	for roomID, job := range r.failures {
		if job.retrying || now.Sub(job.failedAt) <= r.cfg.FailedUploadTTL {
			continue
		}

		delete(r.failures, roomID)
		slog.Warn(
			"failed upload expired",
			slog.String(constant.RoomID, roomID),
			slog.Int("size", len(job.payload)),
		)
	}
}

func (r *recordingUsecase) upload(ctx context.Context, job *uploadJob) (string, error) {
	retries := uint64(0)
	if r.cfg.UploadAttempts > 1 {
		retries = r.cfg.UploadAttempts - 1
	}
	backoff := retry.WithMaxRetries(retries, retry.NewExponential(r.cfg.UploadBackoff))

	start := time.Now()
	defer func() { metric.ObserveUpload(time.Since(start)) }()

	var audioURL string

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error

		audioURL, err = r.uploader.Upload(ctx, job.payload, job.filename, r.subdir)
		if err != nil {
			if errors.Is(err, storage.ErrInvalidPath) {
				return err
			}

			slog.Warn("upload recording", slog.Any(constant.Error, err), slog.String(constant.RoomID, job.roomID))

			return retry.RetryableError(err)
		}

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("upload recording: %w", err)
	}

	return audioURL, nil
}

// recordingFilename - уникальное имя файла, безопасное для пути
func recordingFilename(roomID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, roomID)

	if len(safe) > maxRoomIDInKey {
		safe = safe[:maxRoomIDInKey]
	}

	return fmt.Sprintf("meeting-%s-%s.webm", safe, uuid.NewString())
}

func checkHostUser(hostUserID, userID uuid.UUID) error {
	if hostUserID != uuid.Nil && hostUserID != userID {
		return domain.ErrNotHost
	}

	return nil
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
