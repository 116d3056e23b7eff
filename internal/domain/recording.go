package domain

import (
	"slices"
	"time"
)

// SessionState - состояние сессии записи комнаты
type SessionState uint8

const (
	SessionRecording SessionState = iota + 1
	// SessionStopping - остановка запрошена, чанки в пути еще принимаются до конца grace period
	SessionStopping
	SessionFinalizing
	SessionClosed
)

var sessionTransitions = map[SessionState][]SessionState{
	SessionRecording:  {SessionStopping, SessionFinalizing, SessionClosed},
	SessionStopping:   {SessionFinalizing, SessionClosed},
	SessionFinalizing: {SessionClosed},
}

func (s SessionState) CanTransition(to SessionState) bool {
	return slices.Contains(sessionTransitions[s], to)
}

func (s SessionState) String() string {
	switch s {
	case SessionRecording:
		return "recording"
	case SessionStopping:
		return "stopping"
	case SessionFinalizing:
		return "finalizing"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type RecordingLimits struct {
	MaxBytes    int64
	MaxDuration time.Duration
}

type ChunkStats struct {
	ChunkCount int   `json:"chunkCount"`
	TotalBytes int64 `json:"totalBytes"`
}

type SessionStats struct {
	ChunkStats
	StartedAt       time.Time
	DurationSeconds int
	State           SessionState
}

// RecordingSession буферизует аудио хоста в памяти. Не потокобезопасна,
// синхронизация лежит на владельце.
type RecordingSession struct {
	RoomID    string
	StartedAt time.Time

	state      SessionState
	chunks     [][]byte
	chunkCount int
	totalBytes int64
}

func NewRecordingSession(roomID string, startedAt time.Time) *RecordingSession {
	return &RecordingSession{
		RoomID:    roomID,
		StartedAt: startedAt,
		state:     SessionRecording,
	}
}

func (s *RecordingSession) State() SessionState {
	return s.state
}

// Append accepts the chunk while recording or stopping and only if both the byte and
// duration ceilings still hold after it.
func (s *RecordingSession) Append(data []byte, now time.Time, limits RecordingLimits) (ChunkStats, error) {
	if s.state != SessionRecording && s.state != SessionStopping {
		return s.chunkStats(), ErrSessionShuttingDown
	}

	if now.Sub(s.StartedAt) > limits.MaxDuration {
		return s.chunkStats(), ErrDurationExceeded
	}

	if s.totalBytes+int64(len(data)) > limits.MaxBytes {
		return s.chunkStats(), ErrBufferFull
	}

	s.chunks = append(s.chunks, data)
	s.chunkCount++
	s.totalBytes += int64(len(data))

	return s.chunkStats(), nil
}

// BeginFinalize переводит запись в остановку, повторный вызов отклоняется.
// Прием чанков закрывает только Drain.
func (s *RecordingSession) BeginFinalize() error {
	if s.state != SessionRecording {
		return ErrSessionShuttingDown
	}

	s.state = SessionStopping

	return nil
}

// Drain concatenates buffered chunks in arrival order into a new slice.
// The session is moved to finalizing and accepts no further chunks.
func (s *RecordingSession) Drain() ([]byte, error) {
	switch s.state {
	case SessionRecording, SessionStopping:
		s.state = SessionFinalizing
	case SessionClosed:
		return nil, ErrSessionShuttingDown
	}

	payload := make([]byte, 0, s.totalBytes)
	for _, chunk := range s.chunks {
		payload = append(payload, chunk...)
	}

	return payload, nil
}

// Release освобождает память буфера, счетчики сохраняются для отчета
func (s *RecordingSession) Release() {
	s.chunks = nil
	s.state = SessionClosed
}

func (s *RecordingSession) Stats(now time.Time) SessionStats {
	return SessionStats{
		ChunkStats:      s.chunkStats(),
		StartedAt:       s.StartedAt,
		DurationSeconds: CeilSeconds(now.Sub(s.StartedAt)),
		State:           s.state,
	}
}

func (s *RecordingSession) chunkStats() ChunkStats {
	return ChunkStats{ChunkCount: s.chunkCount, TotalBytes: s.totalBytes}
}

// CeilSeconds rounds a partial second up. Negative durations count as zero.
func CeilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}

	return int((d + time.Second - 1) / time.Second)
}

// CeilMinutes rounds a partial minute up.
func CeilMinutes(seconds int) int {
	if seconds <= 0 {
		return 0
	}

	return (seconds + 59) / 60
}
