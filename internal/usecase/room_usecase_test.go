package usecase

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/RoomScribe/internal/domain"
	"github.com/qrave1/RoomScribe/internal/domain/events"
	"github.com/qrave1/RoomScribe/internal/domain/models"
)

func TestRoom_RegisterHost(t *testing.T) {
	ctx := context.Background()

	t.Run("creates room", func(t *testing.T) {
		h := newHarness(t, defaultHarnessOptions())
		h.allowMeetingWrites()
		userID := uuid.New()

		host := h.hostRoom(t, "room-1", userID)

		assert.Equal(t, []events.Outgoing{events.Out(events.RoomCount, events.CountEvent{Count: 1})}, h.ws.messages(host))

		h.runner.Wait()
		h.meetings.AssertCalled(t, "EnsureActive", mock.Anything, "room-1", userID)

		room, ok := h.rooms.Get("room-1")
		require.True(t, ok)
		assert.False(t, room.Resumed)
	})

	t.Run("empty room id", func(t *testing.T) {
		h := newHarness(t, defaultHarnessOptions())

		err := h.room.RegisterHost(ctx, uuid.New(), uuid.Nil, "")
		assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	})

	t.Run("resumes in-progress meeting", func(t *testing.T) {
		h := newHarness(t, defaultHarnessOptions())
		h.meetings.On("GetByRoomID", mock.Anything, "room-1").
			Return(&models.Meeting{RoomID: "room-1", Status: models.MeetingRecording}, nil)
		h.allowMeetingWrites()

		h.hostRoom(t, "room-1", uuid.Nil)

		room, ok := h.rooms.Get("room-1")
		require.True(t, ok)
		assert.True(t, room.Resumed)
	})

	t.Run("host migration", func(t *testing.T) {
		h := newHarness(t, defaultHarnessOptions())
		h.allowMeetingWrites()
		userID := uuid.New()

		oldHost := h.hostRoom(t, "room-1", userID)
		guest := h.joinGuest(t, "room-1", oldHost)
		pending := uuid.New()
		require.NoError(t, h.room.RequestGuestJoin(ctx, pending, events.GuestJoinEvent{RoomID: "room-1", DeviceName: "tablet"}))

		newHost := uuid.New()
		require.NoError(t, h.room.RegisterHost(ctx, newHost, userID, "room-1"))

		assert.Contains(t, h.ws.types(oldHost), events.HostReplaced)

		socketIDs := h.ws.ofType(guest, events.HostSocketID)
		require.Len(t, socketIDs, 2)
		assert.Equal(t, events.HostIDEvent{HostID: newHost}, socketIDs[1].Data)

		assert.Equal(t, []events.Outgoing{
			events.Out(events.HostJoinRequest, events.JoinRequestEvent{ConnectionID: pending, DeviceName: "tablet"}),
			events.Out(events.RoomCount, events.CountEvent{Count: 2}),
		}, h.ws.messages(newHost))
	})

	t.Run("takeover by another user is refused", func(t *testing.T) {
		h := newHarness(t, defaultHarnessOptions())
		h.allowMeetingWrites()
		oldHost := h.hostRoom(t, "room-1", uuid.New())

		err := h.room.RegisterHost(ctx, uuid.New(), uuid.New(), "room-1")
		assert.ErrorIs(t, err, domain.ErrNotHost)
		assert.NotContains(t, h.ws.types(oldHost), events.HostReplaced)
	})
}

func TestRoom_GuestFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultHarnessOptions())
	h.allowMeetingWrites()

	err := h.room.RequestGuestJoin(ctx, uuid.New(), events.GuestJoinEvent{RoomID: "missing"})
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	host := h.hostRoom(t, "room-1", uuid.Nil)
	guest := uuid.New()

	require.NoError(t, h.room.RequestGuestJoin(ctx, guest, events.GuestJoinEvent{
		RoomID:      "room-1",
		DeviceName:  "laptop",
		DeviceLabel: "Built-in Mic",
	}))

	requests := h.ws.ofType(host, events.HostJoinRequest)
	require.Len(t, requests, 1)
	assert.Equal(t, events.JoinRequestEvent{ConnectionID: guest, DeviceName: "laptop", DeviceLabel: "Built-in Mic"}, requests[0].Data)

	assert.ErrorIs(t, h.room.ApproveGuest(ctx, guest, guest), domain.ErrNotHost)

	require.NoError(t, h.room.ApproveGuest(ctx, host, guest))

	assert.Equal(t, []events.Outgoing{
		events.Out(events.GuestApproved, events.DecisionEvent{}),
		events.Out(events.HostSocketID, events.HostIDEvent{HostID: host}),
		events.Out(events.RoomCount, events.CountEvent{Count: 2}),
	}, h.ws.messages(guest))

	counts := h.ws.ofType(host, events.RoomCount)
	assert.Equal(t, events.CountEvent{Count: 2}, counts[len(counts)-1].Data)

	count, err := h.room.ParticipantCount("room-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRoom_RejectGuest(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultHarnessOptions())
	h.allowMeetingWrites()
	host := h.hostRoom(t, "room-1", uuid.Nil)

	guest := uuid.New()
	require.NoError(t, h.room.RequestGuestJoin(ctx, guest, events.GuestJoinEvent{RoomID: "room-1"}))

	require.NoError(t, h.room.RejectGuest(ctx, host, events.GuestDecisionEvent{GuestConnectionID: guest}))

	denied := h.ws.ofType(guest, events.GuestDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, events.DecisionEvent{Reason: "rejected by host"}, denied[0].Data)

	err := h.room.RejectGuest(ctx, host, events.GuestDecisionEvent{GuestConnectionID: guest, Reason: "again"})
	assert.ErrorIs(t, err, domain.ErrGuestNotPending)
}

func TestRoom_RemoveConnection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultHarnessOptions())
	h.allowMeetingWrites()

	host := h.hostRoom(t, "room-1", uuid.Nil)
	guest := h.joinGuest(t, "room-1", host)
	pending := uuid.New()
	require.NoError(t, h.room.RequestGuestJoin(ctx, pending, events.GuestJoinEvent{RoomID: "room-1"}))

	h.room.RemoveConnection(ctx, pending)
	cancelled := h.ws.ofType(host, events.HostJoinCancelled)
	require.Len(t, cancelled, 1)
	assert.Equal(t, events.ConnectionEvent{ConnectionID: pending}, cancelled[0].Data)

	other := h.joinGuest(t, "room-1", host)

	h.room.RemoveConnection(ctx, guest)
	left := h.ws.ofType(host, events.GuestLeft)
	require.Len(t, left, 1)
	assert.Equal(t, events.ConnectionEvent{ConnectionID: guest}, left[0].Data)

	counts := h.ws.ofType(other, events.RoomCount)
	assert.Equal(t, events.CountEvent{Count: 2}, counts[len(counts)-1].Data)

	h.room.RemoveConnection(ctx, host)

	assert.Contains(t, h.ws.types(other), events.RoomEnded)
	assert.NotContains(t, h.ws.types(guest), events.RoomEnded, "departed guest is not notified")

	_, err := h.room.ParticipantCount("room-1")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	h.room.RemoveConnection(ctx, uuid.New())
}
