package usecase

import (
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/qrave1/RoomScribe/internal/application/constant"
	"github.com/qrave1/RoomScribe/internal/domain/events"
	"github.com/qrave1/RoomScribe/internal/infra/adapters/memory"
)

// SignalingUsecase пересылает WebRTC payload между участниками одной комнаты без разбора содержимого
type SignalingUsecase interface {
	RelaySignal(from, to uuid.UUID, data json.RawMessage)
}

type signalingUsecase struct {
	rooms  memory.RoomRegistry
	wsRepo memory.WebsocketConnectionRepository
}

func NewSignalingUsecase(rooms memory.RoomRegistry, wsRepo memory.WebsocketConnectionRepository) SignalingUsecase {
	return &signalingUsecase{
		rooms:  rooms,
		wsRepo: wsRepo,
	}
}

// RelaySignal is best-effort. Порядок для пары соединений держит очередь отправки получателя.
func (s *signalingUsecase) RelaySignal(from, to uuid.UUID, data json.RawMessage) {
	if !s.rooms.SharesRoom(from, to) {
		slog.Debug(
			"signal dropped, connections do not share a room",
			slog.Any(constant.ConnectionID, from),
			slog.Any(constant.TargetID, to),
		)
		return
	}

	if !s.wsRepo.Write(to, events.Out(events.Signal, events.SignalOutEvent{From: from, Data: data})) {
		slog.Warn(
			"signal dropped, target unavailable",
			slog.Any(constant.ConnectionID, from),
			slog.Any(constant.TargetID, to),
		)
	}
}
