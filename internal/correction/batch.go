package correction

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/voice-scribe/backend/internal/recovery"
)

// CorrectFunc applies the loaded correction model to one chunk's text.
// Supplied by the caller; wraps whatever inference backend is loaded.
type CorrectFunc func(ctx context.Context, text string) (string, error)

// ProgressFunc is invoked after each chunk completes, in completion order.
type ProgressFunc func(completed, total int, message string)

// CorrectionOutcome is the per-chunk result. On failure Corrected holds the
// original chunk text; content is never dropped.
type CorrectionOutcome struct {
	Index     int    `json:"index"`
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
	Success   bool   `json:"success"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// BatchResult aggregates a whole batch run. Success is true iff zero
// chunks failed; partial success always reports precise counts.
type BatchResult struct {
	MergedText string              `json:"merged_text"`
	Succeeded  int                 `json:"succeeded"`
	Failed     int                 `json:"failed"`
	Success    bool                `json:"success"`
	Duration   time.Duration       `json:"duration"`
	Outcomes   []CorrectionOutcome `json:"outcomes"`
}

// ProcessorOptions configures a Processor.
type ProcessorOptions struct {
	// MaxParallel bounds async concurrency. Defaults to 1: a loaded model
	// handle is usually process-local and not re-entrant.
	MaxParallel int
	// ChunkTimeout bounds one correction call. 0 means no timeout.
	ChunkTimeout time.Duration
	// RatePerSec throttles correction calls. 0 disables throttling.
	RatePerSec float64
	// Recovery handles per-chunk failures. A fresh manager is used if nil.
	Recovery *recovery.Manager
}

// Processor drives a correction function over a chunk sequence.
type Processor struct {
	maxParallel  int
	chunkTimeout time.Duration
	limiter      *rate.Limiter
	recovery     *recovery.Manager
}

// NewProcessor creates a Processor from opts, applying defaults.
func NewProcessor(opts ProcessorOptions) *Processor {
	p := &Processor{
		maxParallel:  opts.MaxParallel,
		chunkTimeout: opts.ChunkTimeout,
		recovery:     opts.Recovery,
	}
	if p.maxParallel <= 0 {
		p.maxParallel = 1
	}
	if p.recovery == nil {
		p.recovery = recovery.NewManager()
	}
	if opts.RatePerSec > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}
	return p
}

// ProcessSync applies correct to each chunk in index order. A chunk
// failure never aborts the batch: the original chunk text is substituted
// and processing continues.
func (p *Processor) ProcessSync(ctx context.Context, chunks []TextChunk, correct CorrectFunc) BatchResult {
	start := time.Now()
	outcomes := make([]CorrectionOutcome, len(chunks))
	for i, chunk := range chunks {
		outcomes[i] = p.applyChunk(ctx, chunk, correct)
	}
	return p.finish(chunks, outcomes, start)
}

// ProcessAsync is ProcessSync with bounded concurrency. progress (may be
// nil) is invoked after each chunk completes, in completion order; the
// merged result is always ordered by chunk index. The call returns only
// when every chunk is accounted for.
func (p *Processor) ProcessAsync(ctx context.Context, chunks []TextChunk, correct CorrectFunc, progress ProgressFunc) BatchResult {
	start := time.Now()
	outcomes := make([]CorrectionOutcome, len(chunks))

	var completed int64
	done := make(chan int, len(chunks))

	g := new(errgroup.Group)
	g.SetLimit(p.maxParallel)
	for i := range chunks {
		chunk := chunks[i]
		g.Go(func() error {
			outcomes[chunk.Index] = p.applyChunk(ctx, chunk, correct)
			done <- chunk.Index
			return nil
		})
	}

	// Drain completions here so progress callbacks run on one goroutine.
	go func() {
		g.Wait()
		close(done)
	}()
	for idx := range done {
		completed++
		if progress != nil {
			msg := fmt.Sprintf("chunk %d/%d corrected", completed, len(chunks))
			if !outcomes[idx].Success {
				msg = fmt.Sprintf("chunk %d/%d failed, original text kept", completed, len(chunks))
			}
			progress(int(completed), len(chunks), msg)
		}
	}

	return p.finish(chunks, outcomes, start)
}

// applyChunk runs one correction call with rate limiting, timeout, and
// panic isolation, recovering failures into an original-text outcome.
func (p *Processor) applyChunk(ctx context.Context, chunk TextChunk, correct CorrectFunc) CorrectionOutcome {
	out := CorrectionOutcome{Index: chunk.Index, Original: chunk.Text}

	corrected, err := p.safeCorrect(ctx, chunk.Text, correct)
	if err == nil {
		out.Corrected = corrected
		out.Success = true
		return out
	}

	f, ok := recovery.AsFailure(err)
	if !ok {
		f = recovery.InferenceFailure(err)
		err = f
	}
	out.ErrorKind = string(f.Kind)

	val, rerr := p.recovery.Recover(err, "correct-chunk", chunk.Text)
	if rerr != nil {
		val = chunk.Text
	}
	log.Printf("[batch] chunk %d failed (%s), substituting original text", chunk.Index, f.Kind)
	out.Corrected = val
	return out
}

// safeCorrect invokes correct with the configured timeout, converting
// panics and timeouts into inference failures.
func (p *Processor) safeCorrect(ctx context.Context, text string, correct CorrectFunc) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", recovery.InferenceFailure(err)
		}
	}

	cctx := ctx
	if p.chunkTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, p.chunkTimeout)
		defer cancel()
	}

	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: recovery.InferenceFailure(fmt.Errorf("correction panic: %v", r))}
			}
		}()
		text, err := correct(cctx, text)
		ch <- result{text: text, err: err}
	}()

	select {
	case r := <-ch:
		return r.text, r.err
	case <-cctx.Done():
		// The inference call is abandoned; a timeout is just another
		// inference failure.
		return "", recovery.InferenceFailure(cctx.Err())
	}
}

func (p *Processor) finish(chunks []TextChunk, outcomes []CorrectionOutcome, start time.Time) BatchResult {
	res := BatchResult{
		Outcomes: outcomes,
		Duration: time.Since(start),
	}
	for _, out := range outcomes {
		if out.Success {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	res.Success = res.Failed == 0
	res.MergedText = mergeOutcomes(chunks, outcomes)
	return res
}

// mergeOutcomes concatenates per-chunk results in index order, trimming
// each chunk's declared overlap so shared sentences appear once. The
// overlap is stripped verbatim when the corrected text preserved it;
// otherwise by sentence count.
func mergeOutcomes(chunks []TextChunk, outcomes []CorrectionOutcome) string {
	ordered := make([]CorrectionOutcome, len(outcomes))
	copy(ordered, outcomes)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	var b strings.Builder
	for _, out := range ordered {
		chunk := chunks[out.Index]
		piece := out.Corrected

		prefixLen := chunk.StartPos - chunk.OverlapStart
		if prefixLen > 0 {
			prefix := chunk.Text[:prefixLen]
			if strings.HasPrefix(piece, prefix) {
				piece = piece[prefixLen:]
			} else {
				piece = dropLeadingSentences(piece, countSentences(prefix))
			}
		}

		suffixLen := chunk.OverlapEnd - chunk.EndPos
		if suffixLen > 0 {
			suffix := chunk.Text[len(chunk.Text)-suffixLen:]
			if strings.HasSuffix(piece, suffix) {
				piece = piece[:len(piece)-suffixLen]
			} else {
				piece = dropTrailingSentences(piece, countSentences(suffix))
			}
		}

		b.WriteString(piece)
	}
	return b.String()
}

func dropLeadingSentences(s string, n int) string {
	if n <= 0 {
		return s
	}
	spans := splitSentences(s)
	if n >= len(spans) {
		return ""
	}
	return s[spans[n].start:]
}

func dropTrailingSentences(s string, n int) string {
	if n <= 0 {
		return s
	}
	spans := splitSentences(s)
	if n >= len(spans) {
		return ""
	}
	return s[:spans[len(spans)-n].start]
}
