package constant

// Ключи атрибутов для slog
const (
	Error        = "error"
	UserID       = "user_id"
	RoomID       = "room_id"
	ConnectionID = "connection_id"
	TargetID     = "target_id"
	EventType    = "event_type"
	ChunkCount   = "chunk_count"
	Bytes        = "bytes"
	Duration     = "duration_seconds"
	AudioURL     = "audio_url"
	Task         = "task"
	State        = "state"
)
