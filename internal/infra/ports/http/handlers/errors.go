package handlers

import (
	"errors"
	"net/http"

	"github.com/qrave1/RoomScribe/internal/domain"
	"github.com/qrave1/RoomScribe/internal/domain/events"
)

type errorCode struct {
	err    error
	code   string
	status int
}

var errorCodes = []errorCode{
	{domain.ErrRoomNotFound, "room_not_found", http.StatusNotFound},
	{domain.ErrNotHost, "not_host", http.StatusForbidden},
	{domain.ErrGuestNotPending, "guest_not_pending", http.StatusConflict},
	{domain.ErrAlreadyInRoom, "already_in_room", http.StatusConflict},
	{domain.ErrNotRecording, "not_recording", http.StatusConflict},
	{domain.ErrAlreadyRecording, "already_recording", http.StatusConflict},
	{domain.ErrBufferFull, "buffer_full", http.StatusRequestEntityTooLarge},
	{domain.ErrDurationExceeded, "duration_exceeded", http.StatusRequestEntityTooLarge},
	{domain.ErrSessionShuttingDown, "session_shutting_down", http.StatusConflict},
	{domain.ErrNoAudioCaptured, "no_audio_captured", http.StatusUnprocessableEntity},
	{domain.ErrNoFailedUpload, "no_failed_upload", http.StatusConflict},
	{domain.ErrRetryInProgress, "retry_in_progress", http.StatusConflict},
}

var errBadRequest = errors.New("bad request")

// classify сопоставляет ошибку usecase с кодом для клиента и HTTP статусом
func classify(err error) (string, int) {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code, c.status
		}
	}

	if errors.Is(err, errBadRequest) {
		return "bad_request", http.StatusBadRequest
	}

	var finalizeErr *domain.FinalizeError
	if errors.As(err, &finalizeErr) {
		return "finalize_failed", http.StatusBadGateway
	}

	return "internal", http.StatusInternalServerError
}

func errorEvent(err error) events.Outgoing {
	code, status := classify(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}

	return events.Out(events.ErrorEvent, events.ErrorPayload{Code: code, Message: message})
}

func httpError(err error) (int, map[string]string) {
	code, status := classify(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}

	return status, map[string]string{"error": message, "code": code}
}
