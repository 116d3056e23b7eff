package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/qrave1/RoomScribe/internal/application/config"
	"github.com/qrave1/RoomScribe/internal/application/constant"
	"github.com/qrave1/RoomScribe/internal/domain"
	"github.com/qrave1/RoomScribe/internal/domain/events"
	"github.com/qrave1/RoomScribe/internal/infra/adapters/memory"
	"github.com/qrave1/RoomScribe/internal/infra/appctx"
	"github.com/qrave1/RoomScribe/internal/usecase"
)

// чанк MediaRecorder укладывается с большим запасом
const maxMessageSize = 1 << 20

type WebSocketHandler struct {
	upgrader *websocket.Upgrader

	wsRepo memory.WebsocketConnectionRepository

	roomUsecase          usecase.RoomUsecase
	signalingUsecase     usecase.SignalingUsecase
	audioUsecase         usecase.AudioBufferUsecase
	transcriptionUsecase usecase.TranscriptionUsecase
	recordingUsecase     usecase.RecordingUsecase
}

func NewWebSocketHandler(
	cfg *config.Config,
	wsRepo memory.WebsocketConnectionRepository,
	roomUsecase usecase.RoomUsecase,
	signalingUsecase usecase.SignalingUsecase,
	audioUsecase usecase.AudioBufferUsecase,
	transcriptionUsecase usecase.TranscriptionUsecase,
	recordingUsecase usecase.RecordingUsecase,
) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.Debug {
					return true
				}

				return r.Header.Get("Origin") == cfg.Domain
			},
		},
		wsRepo:               wsRepo,
		roomUsecase:          roomUsecase,
		signalingUsecase:     signalingUsecase,
		audioUsecase:         audioUsecase,
		transcriptionUsecase: transcriptionUsecase,
		recordingUsecase:     recordingUsecase,
	}
}

func (h *WebSocketHandler) Handle(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"WebSocket upgrade error",
			slog.Any(constant.Error, err),
		)
		return err
	}
	defer ws.Close()

	ctx := c.Request().Context()

	connID := uuid.New()

	// анонимный пользователь получает uuid.Nil
	userID, _ := appctx.UserID(ctx)

	h.wsRepo.Add(connID, ws)
	defer func() {
		h.roomUsecase.RemoveConnection(ctx, connID)
		h.wsRepo.Remove(connID)
	}()

	log := slog.With(
		slog.String(constant.ConnectionID, connID.String()),
		slog.String(constant.UserID, userID.String()),
	)

	log.Debug("websocket connected")

	ws.SetReadLimit(maxMessageSize)

	if err = ws.SetReadDeadline(time.Now().Add(memory.PongWait)); err != nil {
		return nil
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(memory.PongWait))
	})

	for {
		messageType, msg, err := ws.ReadMessage()
		if err != nil {
			handleWebsocketError(log, err)

			return nil
		}

		switch messageType {
		case websocket.BinaryMessage:
			h.handleAudio(ctx, log, connID, msg)

		case websocket.TextMessage:
			message := new(events.Message)

			if err = json.Unmarshal(msg, message); err != nil {
				log.Warn("unmarshal websocket message", slog.Any(constant.Error, err))
				h.wsRepo.Write(connID, errorEvent(fmt.Errorf("%w: malformed message", errBadRequest)))

				continue
			}

			if err = h.handleMessage(ctx, connID, userID, message); err != nil {
				log.Warn(
					"handle message",
					slog.Any(constant.Error, err),
					slog.String(constant.EventType, message.Type),
				)
				h.wsRepo.Write(connID, errorEvent(err))
			}
		}
	}
}

func handleWebsocketError(log *slog.Logger, err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		log.Debug("websocket closed")
		return
	}

	if websocket.IsUnexpectedCloseError(err) {
		log.Warn("websocket closed unexpectedly", slog.Any(constant.Error, err))
		return
	}

	log.Debug("websocket read", slog.Any(constant.Error, err))
}

func (h *WebSocketHandler) handleMessage(
	ctx context.Context,
	connID, userID uuid.UUID,
	msg *events.Message,
) error {
	switch msg.Type {
	case events.HostJoinRoom:
		var event events.JoinRoomEvent

		if err := decode(msg.Data, &event); err != nil {
			return err
		}
		if event.RoomID == "" {
			return fmt.Errorf("%w: roomId is required", errBadRequest)
		}

		if err := h.roomUsecase.RegisterHost(ctx, connID, userID, event.RoomID); err != nil {
			return fmt.Errorf("register host: %w", err)
		}

	case events.GuestRequestJoin:
		var event events.GuestJoinEvent

		if err := decode(msg.Data, &event); err != nil {
			return err
		}

		if err := h.roomUsecase.RequestGuestJoin(ctx, connID, event); err != nil {
			return fmt.Errorf("request guest join: %w", err)
		}

	case events.HostApprove:
		var event events.GuestDecisionEvent

		if err := decode(msg.Data, &event); err != nil {
			return err
		}

		if err := h.roomUsecase.ApproveGuest(ctx, connID, event.GuestConnectionID); err != nil {
			return fmt.Errorf("approve guest: %w", err)
		}

	case events.HostReject:
		var event events.GuestDecisionEvent

		if err := decode(msg.Data, &event); err != nil {
			return err
		}

		if err := h.roomUsecase.RejectGuest(ctx, connID, event); err != nil {
			return fmt.Errorf("reject guest: %w", err)
		}

	case events.Signal:
		var event events.SignalInEvent

		if err := decode(msg.Data, &event); err != nil {
			return err
		}

		h.signalingUsecase.RelaySignal(connID, event.To, event.Data)

	case events.HostStartRecording:
		roomID, ok := h.roomUsecase.HostedRoom(connID)
		if !ok {
			return domain.ErrNotHost
		}

		if err := h.recordingUsecase.StartRecording(ctx, roomID); err != nil {
			return fmt.Errorf("start recording: %w", err)
		}

	case events.HostStopRecording:
		var event events.StopRecordingEvent

		if err := decode(msg.Data, &event); err != nil {
			return err
		}

		roomID, ok := h.roomUsecase.HostedRoom(connID)
		if !ok {
			return domain.ErrNotHost
		}

		// финализация ждет grace period и загрузку, чтение сокета не блокируем
		go h.stopRecording(ctx, connID, roomID, event.ElapsedSeconds)

	case events.Ping:
		h.wsRepo.Write(connID, events.Out(events.Pong, nil))

	default:
		return fmt.Errorf("%w: unknown message type %q", errBadRequest, msg.Type)
	}

	return nil
}

func (h *WebSocketHandler) handleAudio(ctx context.Context, log *slog.Logger, connID uuid.UUID, data []byte) {
	roomID, ok := h.roomUsecase.HostedRoom(connID)
	if !ok {
		h.wsRepo.Write(connID, errorEvent(domain.ErrNotHost))
		return
	}

	result, err := h.audioUsecase.AppendChunk(ctx, roomID, data)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrDurationExceeded):
		// потолок длительности завершает сессию
		h.wsRepo.Write(connID, errorEvent(err))

		go func() {
			_, err := h.recordingUsecase.StopRecording(ctx, roomID, 0)
			if err != nil && !errors.Is(err, domain.ErrSessionShuttingDown) && !errors.Is(err, domain.ErrNotRecording) {
				log.Warn("finalize expired recording", slog.Any(constant.Error, err), slog.String(constant.RoomID, roomID))
			}
		}()

		return
	case domain.IsCapacityError(err):
		log.Warn("audio chunk rejected", slog.Any(constant.Error, err), slog.String(constant.RoomID, roomID))
		h.wsRepo.Write(connID, errorEvent(err))
		return
	default:
		// остановка и отсутствие записи тоже возвращаются хосту, чтобы UI среагировал
		log.Debug("audio chunk rejected", slog.Any(constant.Error, err), slog.String(constant.RoomID, roomID))
		h.wsRepo.Write(connID, errorEvent(err))
		return
	}

	h.transcriptionUsecase.ForwardChunk(roomID, data)

	if result.Checkpointed {
		h.wsRepo.Write(connID, events.Out(events.RecordingChunkAck, result.Stats))
	}
}

func (h *WebSocketHandler) stopRecording(ctx context.Context, connID uuid.UUID, roomID string, elapsedSeconds int) {
	if _, err := h.recordingUsecase.StopRecording(ctx, roomID, elapsedSeconds); err != nil {
		if errors.Is(err, domain.ErrSessionShuttingDown) {
			return
		}

		slog.Warn(
			"stop recording",
			slog.Any(constant.Error, err),
			slog.String(constant.RoomID, roomID),
		)
		h.wsRepo.Write(connID, errorEvent(err))
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", errBadRequest)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}

	return nil
}
