package domain

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// ParticipantInfo - устройство гостя комнаты
type ParticipantInfo struct {
	DeviceName  string    `json:"deviceName"`
	DeviceLabel string    `json:"deviceLabel"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Room - логическая сессия встречи с одним хостом и гостями
type Room struct {
	ID         string
	HostConnID uuid.UUID
	// HostUserID равен uuid.Nil для анонимного хоста
	HostUserID uuid.UUID

	Pending      map[uuid.UUID]ParticipantInfo
	Participants map[uuid.UUID]ParticipantInfo

	CreatedAt time.Time
	Resumed   bool
}

func NewRoom(id string, hostConnID, hostUserID uuid.UUID, now time.Time) *Room {
	return &Room{
		ID:           id,
		HostConnID:   hostConnID,
		HostUserID:   hostUserID,
		Pending:      make(map[uuid.UUID]ParticipantInfo),
		Participants: make(map[uuid.UUID]ParticipantInfo),
		CreatedAt:    now,
	}
}

// Count - хост плюс подтвержденные гости
func (r *Room) Count() int {
	return 1 + len(r.Participants)
}

// Members returns the host followed by every joined guest. Pending guests are excluded.
func (r *Room) Members() []uuid.UUID {
	members := make([]uuid.UUID, 0, len(r.Participants)+1)
	members = append(members, r.HostConnID)

	for connID := range r.Participants {
		members = append(members, connID)
	}

	return members
}

// Guests returns joined and pending guests.
func (r *Room) Guests() []uuid.UUID {
	guests := make([]uuid.UUID, 0, len(r.Participants)+len(r.Pending))

	for connID := range r.Participants {
		guests = append(guests, connID)
	}

	for connID := range r.Pending {
		guests = append(guests, connID)
	}

	return guests
}

func (r *Room) Clone() Room {
	c := *r
	c.Pending = maps.Clone(r.Pending)
	c.Participants = maps.Clone(r.Participants)

	return c
}
