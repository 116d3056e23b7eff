package events

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Message - общее событие client -> server
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// События client -> server
const (
	HostJoinRoom       = "host:join-room"
	GuestRequestJoin   = "guest:request-join"
	HostApprove        = "host:approve"
	HostReject         = "host:reject"
	Signal             = "signal"
	HostStartRecording = "host:start-recording"
	HostStopRecording  = "host:stop-recording"
	Ping               = "ping"
)

// События server -> client
const (
	RoomCount         = "room:count"
	HostJoinRequest   = "host:join-request"
	HostJoinCancelled = "host:join-cancelled"
	GuestApproved     = "guest:approved"
	GuestDenied       = "guest:denied"
	GuestLeft         = "guest:left"
	HostReplaced      = "host:replaced"
	HostSocketID      = "host:socket-id"
	CaptionEvent      = "caption"
	RoomEnded         = "room:ended"
	RecordingStarted  = "recording:started"
	RecordingStopped  = "recording:stopped"
	RecordingChunkAck = "recording:chunk-ack"
	ErrorEvent        = "error"
	Pong              = "pong"
)

// JoinRoomEvent - хост регистрирует или возобновляет комнату
type JoinRoomEvent struct {
	RoomID string `json:"roomId"`
}

// GuestJoinEvent - запрос гостя на вход в комнату
type GuestJoinEvent struct {
	RoomID      string `json:"roomId"`
	DeviceName  string `json:"deviceName"`
	DeviceLabel string `json:"deviceLabel"`
}

// GuestDecisionEvent - решение хоста по гостю
type GuestDecisionEvent struct {
	GuestConnectionID uuid.UUID `json:"guestConnectionId"`
	Reason            string    `json:"reason,omitempty"`
}

// SignalInEvent - непрозрачный WebRTC payload (offer/answer/ICE)
type SignalInEvent struct {
	To   uuid.UUID       `json:"to"`
	Data json.RawMessage `json:"data"`
}

type SignalOutEvent struct {
	From uuid.UUID       `json:"from"`
	Data json.RawMessage `json:"data"`
}

type StopRecordingEvent struct {
	ElapsedSeconds int `json:"elapsedSeconds"`
}

type CountEvent struct {
	Count int `json:"count"`
}

type JoinRequestEvent struct {
	ConnectionID uuid.UUID `json:"connectionId"`
	DeviceName   string    `json:"deviceName"`
	DeviceLabel  string    `json:"deviceLabel"`
}

type ConnectionEvent struct {
	ConnectionID uuid.UUID `json:"connectionId"`
}

type DecisionEvent struct {
	Reason string `json:"reason,omitempty"`
}

type HostIDEvent struct {
	HostID uuid.UUID `json:"hostId"`
}

type RecordingStoppedEvent struct {
	AudioURL string `json:"audioUrl"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Outgoing - событие server -> client, сериализуется при записи в соединение
type Outgoing struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func Out(eventType string, data any) Outgoing {
	return Outgoing{Type: eventType, Data: data}
}
