package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qrave1/RoomScribe/internal/application/metric"
	"github.com/qrave1/RoomScribe/internal/domain"
)

type HostRegistration struct {
	Room         domain.Room
	Created      bool
	Replaced     bool
	PreviousHost uuid.UUID
}

type RemovalKind uint8

const (
	RemovedNothing RemovalKind = iota
	RemovedPendingGuest
	RemovedGuest
	RemovedHost
)

type Removal struct {
	Kind RemovalKind
	// Room - снимок комнаты после удаления гостя или перед удалением комнаты
	Room domain.Room
}

// RoomRegistry таблица активных комнат в памяти. Только учет, без I/O и уведомлений.
type RoomRegistry interface {
	// RegisterHost creates the room or transfers host authority to connID.
	RegisterHost(roomID string, connID, userID uuid.UUID, resumed bool) (HostRegistration, error)

	RequestGuestJoin(roomID string, connID uuid.UUID, info domain.ParticipantInfo) (domain.Room, error)
	ApproveGuest(hostConnID, guestConnID uuid.UUID) (domain.Room, error)
	RejectGuest(hostConnID, guestConnID uuid.UUID) (domain.Room, error)

	// RemoveConnection drops connID from whatever role it holds. Removing the host deletes the room.
	RemoveConnection(connID uuid.UUID) Removal

	Get(roomID string) (domain.Room, bool)
	RoomOfHost(connID uuid.UUID) (string, bool)
	Members(roomID string) []uuid.UUID
	SharesRoom(a, b uuid.UUID) bool
	ParticipantCount(roomID string) (int, error)
}

type roomRegistry struct {
	rooms map[string]*domain.Room
	// connRooms хранит map[connection_id]room_id для хоста и гостей
	connRooms map[uuid.UUID]string

	now func() time.Time
	mu  sync.Mutex
}

func NewRoomRegistry() RoomRegistry {
	return newRoomRegistry(time.Now)
}

func newRoomRegistry(now func() time.Time) *roomRegistry {
	return &roomRegistry{
		rooms:     make(map[string]*domain.Room),
		connRooms: make(map[uuid.UUID]string),
		now:       now,
	}
}

func (r *roomRegistry) RegisterHost(roomID string, connID, userID uuid.UUID, resumed bool) (HostRegistration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.connRooms[connID]; ok && current != roomID {
		return HostRegistration{}, domain.ErrAlreadyInRoom
	}

	room, exists := r.rooms[roomID]
	if !exists {
		room = domain.NewRoom(roomID, connID, userID, r.now())
		room.Resumed = resumed

		r.rooms[roomID] = room
		r.connRooms[connID] = roomID
		metric.SetActiveRooms(len(r.rooms))

		return HostRegistration{Room: room.Clone(), Created: true}, nil
	}

	if room.HostConnID == connID {
		return HostRegistration{Room: room.Clone()}, nil
	}

	if room.HostUserID != uuid.Nil && room.HostUserID != userID {
		return HostRegistration{}, domain.ErrNotHost
	}

	previous := room.HostConnID
	delete(r.connRooms, previous)

	// новый хост мог быть гостем этой же комнаты
	delete(room.Participants, connID)
	delete(room.Pending, connID)

	room.HostConnID = connID
	room.HostUserID = userID
	r.connRooms[connID] = roomID

	return HostRegistration{
		Room:         room.Clone(),
		Replaced:     true,
		PreviousHost: previous,
	}, nil
}

func (r *roomRegistry) RequestGuestJoin(roomID string, connID uuid.UUID, info domain.ParticipantInfo) (domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}

	if current, ok := r.connRooms[connID]; ok {
		if _, pending := room.Pending[connID]; current != roomID || !pending {
			return domain.Room{}, domain.ErrAlreadyInRoom
		}
	}

	room.Pending[connID] = info
	r.connRooms[connID] = roomID

	return room.Clone(), nil
}

func (r *roomRegistry) ApproveGuest(hostConnID, guestConnID uuid.UUID) (domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, err := r.hostedRoom(hostConnID)
	if err != nil {
		return domain.Room{}, err
	}

	info, ok := room.Pending[guestConnID]
	if !ok {
		return domain.Room{}, domain.ErrGuestNotPending
	}

	delete(room.Pending, guestConnID)
	info.JoinedAt = r.now()
	room.Participants[guestConnID] = info

	return room.Clone(), nil
}

// RejectGuest отклоняет ожидающего гостя или исключает уже подключенного
func (r *roomRegistry) RejectGuest(hostConnID, guestConnID uuid.UUID) (domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, err := r.hostedRoom(hostConnID)
	if err != nil {
		return domain.Room{}, err
	}

	_, pending := room.Pending[guestConnID]
	_, joined := room.Participants[guestConnID]
	if !pending && !joined {
		return domain.Room{}, domain.ErrGuestNotPending
	}

	delete(room.Pending, guestConnID)
	delete(room.Participants, guestConnID)
	delete(r.connRooms, guestConnID)

	return room.Clone(), nil
}

func (r *roomRegistry) RemoveConnection(connID uuid.UUID) Removal {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.connRooms[connID]
	if !ok {
		return Removal{Kind: RemovedNothing}
	}
	delete(r.connRooms, connID)

	room, ok := r.rooms[roomID]
	if !ok {
		return Removal{Kind: RemovedNothing}
	}

	if room.HostConnID == connID {
		snapshot := room.Clone()

		for _, guest := range room.Guests() {
			delete(r.connRooms, guest)
		}
		delete(r.rooms, roomID)
		metric.SetActiveRooms(len(r.rooms))

		return Removal{Kind: RemovedHost, Room: snapshot}
	}

	if _, pending := room.Pending[connID]; pending {
		delete(room.Pending, connID)
		return Removal{Kind: RemovedPendingGuest, Room: room.Clone()}
	}

	delete(room.Participants, connID)

	return Removal{Kind: RemovedGuest, Room: room.Clone()}
}

func (r *roomRegistry) Get(roomID string) (domain.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return domain.Room{}, false
	}

	return room.Clone(), true
}

func (r *roomRegistry) RoomOfHost(connID uuid.UUID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, err := r.hostedRoom(connID)
	if err != nil {
		return "", false
	}

	return room.ID, true
}

func (r *roomRegistry) Members(roomID string) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}

	return room.Members()
}

// SharesRoom - оба соединения являются хостом или подтвержденным гостем одной комнаты
func (r *roomRegistry) SharesRoom(a, b uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.connRooms[a]
	if !ok || r.connRooms[b] != roomID {
		return false
	}

	room := r.rooms[roomID]

	return room != nil && r.isMember(room, a) && r.isMember(room, b)
}

func (r *roomRegistry) ParticipantCount(roomID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return 0, domain.ErrRoomNotFound
	}

	return room.Count(), nil
}

func (r *roomRegistry) hostedRoom(hostConnID uuid.UUID) (*domain.Room, error) {
	roomID, ok := r.connRooms[hostConnID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}

	if room.HostConnID != hostConnID {
		return nil, domain.ErrNotHost
	}

	return room, nil
}

func (r *roomRegistry) isMember(room *domain.Room, connID uuid.UUID) bool {
	if room.HostConnID == connID {
		return true
	}

	_, ok := room.Participants[connID]

	return ok
}
