package dto

import "github.com/qrave1/RoomScribe/internal/domain/models"

type StopRecordingRequest struct {
	ElapsedSeconds int `json:"elapsed_seconds"`
}

type AudioURLResponse struct {
	AudioURL string `json:"audio_url"`
}

type RecordingStateResponse struct {
	IsRecording       bool                 `json:"is_recording"`
	IsFinalizing      bool                 `json:"is_finalizing"`
	DurationSeconds   int                  `json:"duration_seconds"`
	ChunkCount        int                  `json:"chunk_count"`
	BufferedSizeBytes int64                `json:"buffered_size_bytes"`
	ParticipantCount  int                  `json:"participant_count"`
	Stale             bool                 `json:"stale"`
	Status            models.MeetingStatus `json:"status"`
	AudioURL          string               `json:"audio_url,omitempty"`
	LastError         string               `json:"last_error,omitempty"`
	Retryable         bool                 `json:"retryable"`
}
