package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voice-scribe/backend/internal/db"
	"github.com/voice-scribe/backend/internal/db/models"
	"github.com/voice-scribe/backend/internal/job"
)

// TranscriptsHandler manages stored transcripts and enqueues the jobs
// that produce and correct them.
type TranscriptsHandler struct {
	database *db.Database
	queue    *job.JobQueue
}

func NewTranscriptsHandler(database *db.Database, queue *job.JobQueue) *TranscriptsHandler {
	return &TranscriptsHandler{database: database, queue: queue}
}

type createTranscriptRequest struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Create stores a transcript supplied by the client, e.g. pasted text
// or a recording transcribed elsewhere.
func (h *TranscriptsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTranscriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		jsonError(w, "text is required", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		req.Name = "untitled"
	}

	transcript, err := h.database.CreateTranscript(uuid.New().String(), req.Name, req.Text)
	if err != nil {
		jsonError(w, "failed to create transcript", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, transcript, http.StatusCreated)
}

// List returns all transcripts without their text bodies.
func (h *TranscriptsHandler) List(w http.ResponseWriter, r *http.Request) {
	transcripts, err := h.database.ListTranscripts()
	if err != nil {
		jsonError(w, "failed to list transcripts", http.StatusInternalServerError)
		return
	}
	if transcripts == nil {
		transcripts = []*models.Transcript{}
	}
	jsonResponse(w, transcripts, http.StatusOK)
}

// Get returns a single transcript including text and corrected text.
func (h *TranscriptsHandler) Get(w http.ResponseWriter, r *http.Request) {
	transcript, err := h.database.GetTranscript(chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, "transcript not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, transcript, http.StatusOK)
}

type correctRequest struct {
	MaxParallel int `json:"max_parallel,omitempty"`
}

// Correct enqueues a correction job for the transcript.
func (h *TranscriptsHandler) Correct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.database.GetTranscript(id); err != nil {
		jsonError(w, "transcript not found", http.StatusNotFound)
		return
	}

	var req correctRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	j, err := h.queue.Enqueue(job.JobCorrect, job.CorrectParams{
		TranscriptID: id,
		MaxParallel:  req.MaxParallel,
	})
	if err != nil {
		jsonError(w, "failed to enqueue job: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, j, http.StatusAccepted)
}

type transcribeRequest struct {
	AudioPath string `json:"audio_path"`
	Language  string `json:"language,omitempty"`
}

// Transcribe enqueues a transcription job for a local audio file.
func (h *TranscriptsHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	var req transcribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AudioPath == "" {
		jsonError(w, "audio_path is required", http.StatusBadRequest)
		return
	}

	j, err := h.queue.Enqueue(job.JobTranscribe, job.TranscribeParams{
		AudioPath: req.AudioPath,
		Language:  req.Language,
	})
	if err != nil {
		jsonError(w, "failed to enqueue job: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, j, http.StatusAccepted)
}
