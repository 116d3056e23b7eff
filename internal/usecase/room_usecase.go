package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/qrave1/RoomScribe/internal/application/background"
	"github.com/qrave1/RoomScribe/internal/application/constant"
	"github.com/qrave1/RoomScribe/internal/domain"
	"github.com/qrave1/RoomScribe/internal/domain/events"
	"github.com/qrave1/RoomScribe/internal/infra/adapters/memory"
	postrepo "github.com/qrave1/RoomScribe/internal/infra/adapters/postgres/repository"
)

const defaultRejectReason = "rejected by host"

type RoomUsecase interface {
	RegisterHost(ctx context.Context, connID, userID uuid.UUID, roomID string) error

	RequestGuestJoin(ctx context.Context, connID uuid.UUID, event events.GuestJoinEvent) error
	ApproveGuest(ctx context.Context, hostConnID, guestConnID uuid.UUID) error
	RejectGuest(ctx context.Context, hostConnID uuid.UUID, event events.GuestDecisionEvent) error

	// RemoveConnection вызывается при отключении сокета
	RemoveConnection(ctx context.Context, connID uuid.UUID)

	ParticipantCount(roomID string) (int, error)
	// HostedRoom возвращает комнату, хостом которой является соединение
	HostedRoom(connID uuid.UUID) (string, bool)
}

type roomUsecase struct {
	rooms       memory.RoomRegistry
	wsRepo      memory.WebsocketConnectionRepository
	meetingRepo postrepo.MeetingRepository
	runner      *background.Runner

	recording RecordingUsecase
}

func NewRoomUsecase(
	rooms memory.RoomRegistry,
	wsRepo memory.WebsocketConnectionRepository,
	meetingRepo postrepo.MeetingRepository,
	runner *background.Runner,
	recording RecordingUsecase,
) RoomUsecase {
	return &roomUsecase{
		rooms:       rooms,
		wsRepo:      wsRepo,
		meetingRepo: meetingRepo,
		runner:      runner,
		recording:   recording,
	}
}

func (r *roomUsecase) RegisterHost(ctx context.Context, connID, userID uuid.UUID, roomID string) error {
	if roomID == "" {
		return domain.ErrRoomNotFound
	}

	resumed := false
	if _, exists := r.rooms.Get(roomID); !exists {
		resumed = r.resumable(ctx, roomID)
	}

	reg, err := r.rooms.RegisterHost(roomID, connID, userID, resumed)
	if err != nil {
		return err
	}

	switch {
	case reg.Created:
		slog.Info(
			"room created",
			slog.String(constant.RoomID, roomID),
			slog.Any(constant.ConnectionID, connID),
			slog.Bool("resumed", resumed),
		)

		r.runner.Submit(
			"ensure meeting",
			func(ctx context.Context) error {
				return r.meetingRepo.EnsureActive(ctx, roomID, userID)
			},
			slog.String(constant.RoomID, roomID),
		)
	case reg.Replaced:
		slog.Info(
			"room host replaced",
			slog.String(constant.RoomID, roomID),
			slog.Any(constant.ConnectionID, connID),
			slog.Any(constant.TargetID, reg.PreviousHost),
		)

		r.wsRepo.Write(reg.PreviousHost, events.Out(events.HostReplaced, nil))

		for guestID := range reg.Room.Participants {
			r.wsRepo.Write(guestID, events.Out(events.HostSocketID, events.HostIDEvent{HostID: connID}))
		}

		// новый хост должен увидеть ожидающих решения гостей
		for guestID, info := range reg.Room.Pending {
			r.wsRepo.Write(connID, events.Out(events.HostJoinRequest, events.JoinRequestEvent{
				ConnectionID: guestID,
				DeviceName:   info.DeviceName,
				DeviceLabel:  info.DeviceLabel,
			}))
		}
	}

	r.wsRepo.Write(connID, events.Out(events.RoomCount, events.CountEvent{Count: reg.Room.Count()}))

	return nil
}

func (r *roomUsecase) RequestGuestJoin(_ context.Context, connID uuid.UUID, event events.GuestJoinEvent) error {
	if event.RoomID == "" {
		return domain.ErrRoomNotFound
	}

	room, err := r.rooms.RequestGuestJoin(event.RoomID, connID, domain.ParticipantInfo{
		DeviceName:  event.DeviceName,
		DeviceLabel: event.DeviceLabel,
	})
	if err != nil {
		return err
	}

	r.wsRepo.Write(room.HostConnID, events.Out(events.HostJoinRequest, events.JoinRequestEvent{
		ConnectionID: connID,
		DeviceName:   event.DeviceName,
		DeviceLabel:  event.DeviceLabel,
	}))

	return nil
}

func (r *roomUsecase) ApproveGuest(_ context.Context, hostConnID, guestConnID uuid.UUID) error {
	room, err := r.rooms.ApproveGuest(hostConnID, guestConnID)
	if err != nil {
		return err
	}

	slog.Info(
		"guest approved",
		slog.String(constant.RoomID, room.ID),
		slog.Any(constant.TargetID, guestConnID),
	)

	r.wsRepo.Write(guestConnID, events.Out(events.GuestApproved, events.DecisionEvent{}))
	r.wsRepo.Write(guestConnID, events.Out(events.HostSocketID, events.HostIDEvent{HostID: room.HostConnID}))

	r.broadcastCount(room)

	return nil
}

func (r *roomUsecase) RejectGuest(_ context.Context, hostConnID uuid.UUID, event events.GuestDecisionEvent) error {
	room, err := r.rooms.RejectGuest(hostConnID, event.GuestConnectionID)
	if err != nil {
		return err
	}

	reason := event.Reason
	if reason == "" {
		reason = defaultRejectReason
	}

	r.wsRepo.Write(event.GuestConnectionID, events.Out(events.GuestDenied, events.DecisionEvent{Reason: reason}))

	r.broadcastCount(room)

	return nil
}

func (r *roomUsecase) RemoveConnection(_ context.Context, connID uuid.UUID) {
	removal := r.rooms.RemoveConnection(connID)
	room := removal.Room

	switch removal.Kind {
	case memory.RemovedPendingGuest:
		r.wsRepo.Write(room.HostConnID, events.Out(events.HostJoinCancelled, events.ConnectionEvent{ConnectionID: connID}))
	case memory.RemovedGuest:
		r.wsRepo.Write(room.HostConnID, events.Out(events.GuestLeft, events.ConnectionEvent{ConnectionID: connID}))
		r.broadcastCount(room)
	case memory.RemovedHost:
		slog.Info("room ended", slog.String(constant.RoomID, room.ID))

		broadcast(r.wsRepo, room.Guests(), events.Out(events.RoomEnded, nil))

		r.recording.AbandonRoom(room)
	}
}

func (r *roomUsecase) ParticipantCount(roomID string) (int, error) {
	return r.rooms.ParticipantCount(roomID)
}

func (r *roomUsecase) HostedRoom(connID uuid.UUID) (string, bool) {
	return r.rooms.RoomOfHost(connID)
}

// resumable - у комнаты осталась незавершенная запись в БД с прошлого запуска
func (r *roomUsecase) resumable(ctx context.Context, roomID string) bool {
	meeting, err := r.meetingRepo.GetByRoomID(ctx, roomID)
	if err != nil {
		if !errors.Is(err, postrepo.ErrMeetingNotFound) {
			slog.Warn(
				"load meeting for resume",
				slog.Any(constant.Error, err),
				slog.String(constant.RoomID, roomID),
			)
		}

		return false
	}

	return meeting.InProgress()
}

func (r *roomUsecase) broadcastCount(room domain.Room) {
	broadcast(r.wsRepo, room.Members(), events.Out(events.RoomCount, events.CountEvent{Count: room.Count()}))
}

func broadcast(wsRepo memory.WebsocketConnectionRepository, connIDs []uuid.UUID, msg events.Outgoing) {
	for _, connID := range connIDs {
		wsRepo.Write(connID, msg)
	}
}
