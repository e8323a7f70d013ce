package correction

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(_ context.Context, text string) (string, error) {
	return text, nil
}

func upper(_ context.Context, text string) (string, error) {
	return strings.ToUpper(text), nil
}

func TestProcessSyncIdentityRoundTrip(t *testing.T) {
	for _, overlap := range []int{0, 1, 2} {
		chunks := ChunkText(transcript, 60, overlap)
		require.NotEmpty(t, chunks)

		p := NewProcessor(ProcessorOptions{})
		res := p.ProcessSync(context.Background(), chunks, identity)

		assert.True(t, res.Success)
		assert.Equal(t, len(chunks), res.Succeeded)
		assert.Zero(t, res.Failed)
		assert.Equal(t, transcript, res.MergedText, "overlap=%d", overlap)
	}
}

func TestProcessSyncAppliesCorrection(t *testing.T) {
	chunks := ChunkText(transcript, 60, 1)
	p := NewProcessor(ProcessorOptions{})

	res := p.ProcessSync(context.Background(), chunks, upper)

	assert.True(t, res.Success)
	assert.Equal(t, strings.ToUpper(transcript), res.MergedText)
}

func TestProcessSyncPartialFailureContainment(t *testing.T) {
	chunks := ChunkText(transcript, 60, 0)
	require.Greater(t, len(chunks), 2)
	failIdx := 1

	var mu sync.Mutex
	calls := 0
	correct := func(_ context.Context, text string) (string, error) {
		mu.Lock()
		idx := calls
		calls++
		mu.Unlock()
		if idx == failIdx {
			return "", errors.New("inference blew up")
		}
		return strings.ToUpper(text), nil
	}

	p := NewProcessor(ProcessorOptions{})
	res := p.ProcessSync(context.Background(), chunks, correct)

	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, len(chunks)-1, res.Succeeded)

	failed := res.Outcomes[failIdx]
	assert.False(t, failed.Success)
	assert.Equal(t, failed.Original, failed.Corrected, "failed chunk keeps original text")
	assert.Equal(t, "inference_failure", failed.ErrorKind)

	// Merged output contains the failed chunk's original text verbatim at
	// its position.
	want := chunks[failIdx]
	assert.Contains(t, res.MergedText, transcript[want.StartPos:want.EndPos])
	prefix := strings.ToUpper(transcript[:want.StartPos])
	assert.True(t, strings.HasPrefix(res.MergedText, prefix))
}

func TestProcessSyncPanicIsolated(t *testing.T) {
	chunks := ChunkText("First one. Second one. Third one.", 12, 0)
	require.Len(t, chunks, 3)

	correct := func(_ context.Context, text string) (string, error) {
		if strings.Contains(text, "Second") {
			panic("corrector bug")
		}
		return text, nil
	}

	p := NewProcessor(ProcessorOptions{})
	res := p.ProcessSync(context.Background(), chunks, correct)

	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "First one. Second one. Third one.", res.MergedText)
}

func TestProcessAsyncMergesInIndexOrder(t *testing.T) {
	chunks := ChunkText(transcript, 50, 1)
	require.Greater(t, len(chunks), 2)

	// Reverse per-chunk latency so completion order differs from index order.
	correct := func(_ context.Context, text string) (string, error) {
		time.Sleep(time.Duration(100-len(text)%100) * time.Millisecond / 10)
		return strings.ToUpper(text), nil
	}

	p := NewProcessor(ProcessorOptions{MaxParallel: 4})
	res := p.ProcessAsync(context.Background(), chunks, correct, nil)

	assert.True(t, res.Success)
	assert.Equal(t, strings.ToUpper(transcript), res.MergedText)
	for i, out := range res.Outcomes {
		assert.Equal(t, i, out.Index)
	}
}

func TestProcessAsyncProgressCallbacks(t *testing.T) {
	chunks := ChunkText(transcript, 50, 0)
	total := len(chunks)

	var mu sync.Mutex
	var completions []int
	progress := func(completed, totalReported int, message string) {
		mu.Lock()
		defer mu.Unlock()
		completions = append(completions, completed)
		assert.Equal(t, total, totalReported)
		assert.NotEmpty(t, message)
	}

	p := NewProcessor(ProcessorOptions{MaxParallel: 3})
	res := p.ProcessAsync(context.Background(), chunks, identity, progress)

	require.True(t, res.Success)
	require.Len(t, completions, total)
	// Completed counts are monotonically increasing 1..total.
	for i, c := range completions {
		assert.Equal(t, i+1, c)
	}
}

func TestProcessAsyncDefaultsToSerial(t *testing.T) {
	chunks := ChunkText(transcript, 50, 0)

	var mu sync.Mutex
	inflight, maxInflight := 0, 0
	correct := func(_ context.Context, text string) (string, error) {
		mu.Lock()
		inflight++
		if inflight > maxInflight {
			maxInflight = inflight
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		inflight--
		mu.Unlock()
		return text, nil
	}

	p := NewProcessor(ProcessorOptions{})
	res := p.ProcessAsync(context.Background(), chunks, correct, nil)

	assert.True(t, res.Success)
	assert.Equal(t, 1, maxInflight, "default parallelism must be 1")
}

func TestChunkTimeoutTreatedAsInferenceFailure(t *testing.T) {
	chunks := ChunkText("Quick sentence.", 100, 0)
	require.Len(t, chunks, 1)

	correct := func(ctx context.Context, text string) (string, error) {
		select {
		case <-time.After(time.Second):
			return text, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	p := NewProcessor(ProcessorOptions{ChunkTimeout: 10 * time.Millisecond})
	res := p.ProcessSync(context.Background(), chunks, correct)

	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "inference_failure", res.Outcomes[0].ErrorKind)
	assert.Equal(t, "Quick sentence.", res.MergedText)
}

func TestProcessSyncEmptyChunks(t *testing.T) {
	p := NewProcessor(ProcessorOptions{})
	res := p.ProcessSync(context.Background(), nil, identity)
	assert.True(t, res.Success)
	assert.Empty(t, res.MergedText)
	assert.Empty(t, res.Outcomes)
}
