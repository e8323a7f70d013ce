// Package transcribe turns audio files into stored transcripts through
// the locally spawned speech recognition server.
package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voice-scribe/backend/internal/config"
	"github.com/voice-scribe/backend/internal/db"
	"github.com/voice-scribe/backend/internal/engine"
	"github.com/voice-scribe/backend/internal/job"
	"github.com/voice-scribe/backend/internal/recovery"
	"github.com/voice-scribe/backend/internal/resource"
)

// Service runs transcription jobs against the speech engine.
type Service struct {
	cfg      config.EngineConfig
	db       *db.Database
	sentinel *resource.Sentinel
	client   *engine.Client
	queue    *job.JobQueue
}

func NewService(cfg config.Config, database *db.Database, sentinel *resource.Sentinel, queue *job.JobQueue) *Service {
	s := &Service{
		cfg:      cfg.Engine,
		db:       database,
		sentinel: sentinel,
		client:   engine.NewClient(cfg.Engine.SpeechServerURL, time.Duration(cfg.Engine.InferTimeoutSec)*time.Second),
		queue:    queue,
	}
	queue.RegisterHandler(job.JobTranscribe, s.handleTranscribe)
	return s
}

func (s *Service) handleTranscribe(ctx context.Context, j *job.Job, progress job.ProgressFunc) error {
	var params job.TranscribeParams
	if err := json.Unmarshal(j.Params, &params); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	if _, err := os.Stat(params.AudioPath); err != nil {
		return fmt.Errorf("audio file: %w", err)
	}

	progress(0.02, "acquiring speech engine")
	if err := s.acquireEngine(ctx); err != nil {
		return err
	}

	language := params.Language
	if language == "" {
		language = s.db.GetSetting("speech_language", "auto")
	}

	progress(0.1, "transcribing")
	text, err := s.client.Transcribe(ctx, params.AudioPath, language)
	if err != nil {
		return recovery.InferenceFailure(err)
	}
	if strings.TrimSpace(text) == "" {
		return recovery.InferenceFailure(errors.New("empty transcription"))
	}

	progress(0.95, "saving transcript")
	name := strings.TrimSuffix(filepath.Base(params.AudioPath), filepath.Ext(params.AudioPath))
	transcript, err := s.db.CreateTranscript(uuid.New().String(), name, text)
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	log.Printf("[transcribe] transcript %s created from %s", transcript.ID, params.AudioPath)

	return s.queue.SetResult(j.ID, map[string]string{"transcript_id": transcript.ID})
}

// acquireEngine makes the speech engine resident, swapping out the
// correction model when it currently holds the slot.
func (s *Service) acquireEngine(ctx context.Context) error {
	if s.sentinel.Active(resource.KindSpeechEngine) {
		return nil
	}

	params := map[string]string{}
	if model := s.db.GetSetting("speech_model", ""); model != "" {
		params["model"] = model
	}

	return recovery.Do(ctx, 2, time.Second, func() error {
		if s.sentinel.Active(resource.KindCorrectionModel) {
			if s.sentinel.Swap(resource.KindCorrectionModel, resource.KindSpeechEngine, params) {
				return nil
			}
		} else if s.sentinel.Request(resource.KindSpeechEngine, params) {
			return nil
		}
		if safe, reason := s.sentinel.CheckThreshold(); !safe {
			return recovery.InsufficientMemory(errors.New(reason))
		}
		return recovery.ModelLoadFailure(errors.New("speech engine failed to start"))
	})
}
