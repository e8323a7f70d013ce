package correction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/voice-scribe/backend/internal/config"
	"github.com/voice-scribe/backend/internal/db"
	"github.com/voice-scribe/backend/internal/engine"
	"github.com/voice-scribe/backend/internal/job"
	"github.com/voice-scribe/backend/internal/recovery"
	"github.com/voice-scribe/backend/internal/resource"
)

const correctionPrompt = `Correct the grammar, punctuation and obvious transcription mistakes in the following text. Preserve the meaning and wording as much as possible. Reply with the corrected text only, no commentary.

Text:
%s

Corrected text:`

// Service runs transcript correction jobs. It asks the resource
// sentinel for the correction model, chunks the transcript, corrects
// the chunks through the local inference server and stores the merged
// result.
type Service struct {
	cfg      config.CorrectionConfig
	db       *db.Database
	sentinel *resource.Sentinel
	client   *engine.Client
	recovery *recovery.Manager
	queue    *job.JobQueue
}

func NewService(cfg config.Config, database *db.Database, sentinel *resource.Sentinel, queue *job.JobQueue) *Service {
	s := &Service{
		cfg:      cfg.Correction,
		db:       database,
		sentinel: sentinel,
		client:   engine.NewClient(cfg.Engine.CorrectionURL, time.Duration(cfg.Engine.InferTimeoutSec)*time.Second),
		recovery: recovery.NewManager(),
		queue:    queue,
	}
	queue.RegisterHandler(job.JobCorrect, s.handleCorrect)
	return s
}

// Recovery exposes the service's recovery manager for status reporting.
func (s *Service) Recovery() *recovery.Manager {
	return s.recovery
}

func (s *Service) handleCorrect(ctx context.Context, j *job.Job, progress job.ProgressFunc) error {
	var params job.CorrectParams
	if err := json.Unmarshal(j.Params, &params); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}

	transcript, err := s.db.GetTranscript(params.TranscriptID)
	if err != nil {
		return fmt.Errorf("load transcript %s: %w", params.TranscriptID, err)
	}
	if strings.TrimSpace(transcript.Text) == "" {
		return errors.New("transcript is empty")
	}

	progress(0.02, "acquiring correction model")
	if err := s.acquireModel(ctx); err != nil {
		return err
	}

	chunks := ChunkText(transcript.Text, s.cfg.MaxChunkChars, s.cfg.OverlapSentences)
	if len(chunks) == 0 {
		return recovery.ChunkingFailure(errors.New("no chunks produced"))
	}
	log.Printf("[correction] transcript %s split into %d chunks", transcript.ID, len(chunks))

	parallel := s.cfg.MaxParallel
	if params.MaxParallel > 0 {
		parallel = params.MaxParallel
	}
	proc := NewProcessor(ProcessorOptions{
		MaxParallel:  parallel,
		ChunkTimeout: time.Duration(s.cfg.ChunkTimeoutSec) * time.Second,
		RatePerSec:   s.cfg.RatePerSec,
		Recovery:     s.recovery,
	})

	prompt := s.db.GetSetting("correction_prompt", correctionPrompt)
	if !strings.Contains(prompt, "%s") {
		prompt = correctionPrompt
	}
	correct := func(ctx context.Context, text string) (string, error) {
		return s.correctChunk(ctx, prompt, text)
	}

	result := proc.ProcessAsync(ctx, chunks, correct, func(completed, total int, message string) {
		// Reserve the head and tail of the bar for setup and persistence.
		progress(0.05+0.9*float64(completed)/float64(total), message)
	})

	if err := ctx.Err(); err != nil {
		return err
	}

	progress(0.97, "saving corrected transcript")
	if err := s.db.SaveCorrectedText(transcript.ID, result.MergedText); err != nil {
		return fmt.Errorf("save corrected text: %w", err)
	}

	return s.queue.SetResult(j.ID, job.CorrectResult{
		TranscriptID: transcript.ID,
		Succeeded:    result.Succeeded,
		Failed:       result.Failed,
		Success:      result.Success,
		Duration:     result.Duration.Seconds(),
	})
}

// acquireModel makes the correction model resident, swapping out the
// speech engine when it currently holds the slot.
func (s *Service) acquireModel(ctx context.Context) error {
	if s.sentinel.Active(resource.KindCorrectionModel) {
		return nil
	}

	attempts := s.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return recovery.Do(ctx, attempts, time.Second, func() error {
		if s.sentinel.Active(resource.KindSpeechEngine) {
			if s.sentinel.Swap(resource.KindSpeechEngine, resource.KindCorrectionModel, nil) {
				return nil
			}
		} else if s.sentinel.Request(resource.KindCorrectionModel, nil) {
			return nil
		}
		if safe, reason := s.sentinel.CheckThreshold(); !safe {
			return recovery.InsufficientMemory(errors.New(reason))
		}
		return recovery.ModelLoadFailure(errors.New("correction model failed to load"))
	})
}

func (s *Service) correctChunk(ctx context.Context, prompt, text string) (string, error) {
	out, err := s.client.Complete(ctx, fmt.Sprintf(prompt, text))
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", recovery.InferenceFailure(errors.New("empty completion"))
	}
	return out, nil
}
