package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrNotHost         = errors.New("connection is not the room host")
	ErrGuestNotPending = errors.New("guest is not awaiting approval")
	ErrAlreadyInRoom   = errors.New("connection already belongs to a room")

	ErrNotRecording        = errors.New("recording is not active")
	ErrAlreadyRecording    = errors.New("recording already active")
	ErrBufferFull          = errors.New("audio buffer is full")
	ErrDurationExceeded    = errors.New("maximum recording duration exceeded")
	ErrSessionShuttingDown = errors.New("recording session is shutting down")

	ErrNoAudioCaptured = errors.New("no audio captured")
	ErrNoFailedUpload  = errors.New("no failed upload to retry")
	ErrRetryInProgress = errors.New("upload retry already in progress")
)

// FinalizeError оборачивает ошибку хранилища при загрузке записи
type FinalizeError struct {
	RoomID string
	Err    error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("finalize room %s: %v", e.RoomID, e.Err)
}

func (e *FinalizeError) Unwrap() error {
	return e.Err
}

// IsCapacityError reports whether err is a policy violation on a live session.
func IsCapacityError(err error) bool {
	return errors.Is(err, ErrBufferFull) || errors.Is(err, ErrDurationExceeded)
}
