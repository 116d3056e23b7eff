package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/RoomScribe/internal/application/constant"
	"github.com/qrave1/RoomScribe/internal/infra/appctx"
	"github.com/qrave1/RoomScribe/internal/infra/ports/http/dto"
	"github.com/qrave1/RoomScribe/internal/usecase"
)

type RecordingHandler struct {
	recordingUsecase usecase.RecordingUsecase
}

func NewRecordingHandler(recordingUsecase usecase.RecordingUsecase) *RecordingHandler {
	return &RecordingHandler{recordingUsecase: recordingUsecase}
}

func (h *RecordingHandler) Start(c echo.Context) error {
	roomID, err := h.authorize(c)
	if err != nil {
		return h.fail(c, roomID, err)
	}

	if err = h.recordingUsecase.StartRecording(c.Request().Context(), roomID); err != nil {
		return h.fail(c, roomID, err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *RecordingHandler) Stop(c echo.Context) error {
	roomID, err := h.authorize(c)
	if err != nil {
		return h.fail(c, roomID, err)
	}

	var req dto.StopRecordingRequest
	if err = c.Bind(&req); err != nil {
		return h.fail(c, roomID, fmt.Errorf("%w: invalid body", errBadRequest))
	}
	if req.ElapsedSeconds < 0 {
		return h.fail(c, roomID, fmt.Errorf("%w: elapsed_seconds must not be negative", errBadRequest))
	}

	audioURL, err := h.recordingUsecase.StopRecording(c.Request().Context(), roomID, req.ElapsedSeconds)
	if err != nil {
		return h.fail(c, roomID, err)
	}

	return c.JSON(http.StatusOK, dto.AudioURLResponse{AudioURL: audioURL})
}

func (h *RecordingHandler) Retry(c echo.Context) error {
	roomID, err := h.authorize(c)
	if err != nil {
		return h.fail(c, roomID, err)
	}

	audioURL, err := h.recordingUsecase.RetryUpload(c.Request().Context(), roomID)
	if err != nil {
		return h.fail(c, roomID, err)
	}

	return c.JSON(http.StatusOK, dto.AudioURLResponse{AudioURL: audioURL})
}

func (h *RecordingHandler) State(c echo.Context) error {
	roomID, err := h.authorize(c)
	if err != nil {
		return h.fail(c, roomID, err)
	}

	state, err := h.recordingUsecase.GetRecordingState(c.Request().Context(), roomID)
	if err != nil {
		return h.fail(c, roomID, err)
	}

	return c.JSON(http.StatusOK, dto.RecordingStateResponse{
		IsRecording:       state.IsRecording,
		IsFinalizing:      state.IsFinalizing,
		DurationSeconds:   state.DurationSeconds,
		ChunkCount:        state.ChunkCount,
		BufferedSizeBytes: state.BufferedSizeBytes,
		ParticipantCount:  state.ParticipantCount,
		Stale:             state.Stale,
		Status:            state.Status,
		AudioURL:          state.AudioURL,
		LastError:         state.LastError,
		Retryable:         state.Retryable,
	})
}

func (h *RecordingHandler) authorize(c echo.Context) (string, error) {
	roomID := c.Param("id")
	if roomID == "" {
		return "", fmt.Errorf("%w: room id is required", errBadRequest)
	}

	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return roomID, fmt.Errorf("%w: missing user", errBadRequest)
	}

	if err := h.recordingUsecase.Authorize(c.Request().Context(), roomID, userID); err != nil {
		return roomID, err
	}

	return roomID, nil
}

func (h *RecordingHandler) fail(c echo.Context, roomID string, err error) error {
	status, body := httpError(err)

	if status >= http.StatusInternalServerError {
		slog.Error(
			"recording request failed",
			slog.Any(constant.Error, err),
			slog.String(constant.RoomID, roomID),
		)
	}

	return c.JSON(status, body)
}
