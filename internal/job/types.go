package job

import (
	"context"
	"encoding/json"
	"time"
)

// JobType represents the kind of job
type JobType string

const (
	JobCorrect    JobType = "correct"
	JobTranscribe JobType = "transcribe"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Job represents a queued task (transcript correction or transcription)
type Job struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	Status      JobStatus       `json:"status"`
	Params      json.RawMessage `json:"params"`
	Progress    float64         `json:"progress"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// CorrectParams are parameters for a transcript correction job
type CorrectParams struct {
	TranscriptID string `json:"transcript_id"`
	// MaxParallel overrides the configured batch parallelism. Leave 0 for
	// the default; raise only for stateless correction backends.
	MaxParallel int `json:"max_parallel,omitempty"`
}

// CorrectResult is the output of a finished correction job
type CorrectResult struct {
	TranscriptID string  `json:"transcript_id"`
	Succeeded    int     `json:"succeeded"`
	Failed       int     `json:"failed"`
	Success      bool    `json:"success"`
	Duration     float64 `json:"duration"` // seconds
}

// TranscribeParams are parameters for a transcription job
type TranscribeParams struct {
	AudioPath string `json:"audio_path"`
	Language  string `json:"language"`
}

// ProgressFunc reports handler progress in [0, 1] with a status message.
type ProgressFunc func(progress float64, message string)

// JobHandler processes a job. Implementations are provided by the
// correction service and other surrounding packages.
type JobHandler func(ctx context.Context, job *Job, progress ProgressFunc) error

// Event is a progress notification pushed to subscribers (e.g. the
// WebSocket relay to the GUI shell).
type Event struct {
	JobID    string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	Progress float64   `json:"progress"`
	Message  string    `json:"message,omitempty"`
}
