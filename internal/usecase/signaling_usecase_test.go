package usecase

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/RoomScribe/internal/domain/events"
)

func TestSignaling_RelaySignal(t *testing.T) {
	h := newHarness(t, defaultHarnessOptions())
	h.allowMeetingWrites()

	host := h.hostRoom(t, "room-1", uuid.Nil)
	guest := h.joinGuest(t, "room-1", host)
	outsider := h.hostRoom(t, "room-2", uuid.Nil)

	pending := uuid.New()
	require.NoError(t, h.room.RequestGuestJoin(context.Background(), pending, events.GuestJoinEvent{RoomID: "room-1"}))

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	candidate := json.RawMessage(`{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host"}`)

	h.signaling.RelaySignal(host, guest, offer)
	h.signaling.RelaySignal(host, guest, candidate)
	h.signaling.RelaySignal(guest, host, json.RawMessage(`{"type":"answer"}`))

	assert.Equal(t, []events.Outgoing{
		events.Out(events.Signal, events.SignalOutEvent{From: host, Data: offer}),
		events.Out(events.Signal, events.SignalOutEvent{From: host, Data: candidate}),
	}, h.ws.ofType(guest, events.Signal), "payloads are relayed verbatim and in order")
	assert.Len(t, h.ws.ofType(host, events.Signal), 1)

	h.signaling.RelaySignal(outsider, guest, offer)
	h.signaling.RelaySignal(host, pending, offer)
	h.signaling.RelaySignal(host, uuid.New(), offer)

	assert.Len(t, h.ws.ofType(guest, events.Signal), 2)
	assert.Empty(t, h.ws.ofType(pending, events.Signal))
}
