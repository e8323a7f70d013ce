// Package correction splits transcripts into bounded, context-preserving
// chunks and drives a caller-supplied correction function over them.
package correction

import "unicode/utf8"

// TextChunk is a bounded, overlap-aware slice of a larger text.
//
// StartPos/EndPos delimit the chunk's core span as byte offsets into the
// original text; core spans are strictly increasing and tile the input
// exactly. OverlapStart/OverlapEnd extend the span with the sentences
// shared with the neighboring chunks for context continuity, so
// OverlapStart <= StartPos < EndPos <= OverlapEnd and Text is the
// original[OverlapStart:OverlapEnd] slice. Immutable once produced.
type TextChunk struct {
	Text         string `json:"text"`
	Index        int    `json:"index"`
	StartPos     int    `json:"start_pos"`
	EndPos       int    `json:"end_pos"`
	OverlapStart int    `json:"overlap_start"`
	OverlapEnd   int    `json:"overlap_end"`
}

// sentSpan is a sentence's byte range in the original text, trailing
// whitespace included so spans tile the text exactly.
type sentSpan struct {
	start, end int
}

// ChunkText splits text on sentence boundaries into chunks whose core span
// does not exceed maxChunkChars, except that a single sentence longer than
// the limit still becomes its own chunk rather than being dropped or
// truncated. Each chunk after the first carries the last overlapSentences
// sentences of the previous chunk as leading context; each chunk before
// the last carries the same lookahead into the next chunk. Empty input
// yields an empty slice.
func ChunkText(text string, maxChunkChars, overlapSentences int) []TextChunk {
	if text == "" {
		return nil
	}
	if maxChunkChars <= 0 {
		maxChunkChars = 1
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}

	sents := splitSentences(text)

	// Greedily group sentences into core spans bounded by maxChunkChars.
	type group struct{ first, last int } // sentence index range, inclusive
	var groups []group
	cur := group{first: 0, last: -1}
	curStart := 0
	for i, s := range sents {
		if cur.last >= 0 && s.end-curStart > maxChunkChars {
			groups = append(groups, cur)
			cur = group{first: i, last: -1}
			curStart = s.start
		}
		cur.last = i
	}
	groups = append(groups, cur)

	chunks := make([]TextChunk, len(groups))
	for i, g := range groups {
		start := sents[g.first].start
		end := sents[g.last].end

		ovStart := start
		if i > 0 && overlapSentences > 0 {
			prev := groups[i-1]
			from := prev.last - overlapSentences + 1
			if from < prev.first {
				from = prev.first
			}
			ovStart = sents[from].start
		}

		ovEnd := end
		if i < len(groups)-1 && overlapSentences > 0 {
			next := groups[i+1]
			to := next.first + overlapSentences - 1
			if to > next.last {
				to = next.last
			}
			ovEnd = sents[to].end
		}

		chunks[i] = TextChunk{
			Text:         text[ovStart:ovEnd],
			Index:        i,
			StartPos:     start,
			EndPos:       end,
			OverlapStart: ovStart,
			OverlapEnd:   ovEnd,
		}
	}

	return chunks
}

// sentence terminators; closing quotes and brackets after a terminator
// stay attached to the sentence.
func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '」', '』':
		return true
	}
	return false
}

// splitSentences produces sentence spans that tile text exactly. A
// sentence ends after a terminator rune (plus any closing quote) and the
// whitespace run that follows it. Text without terminators is one span.
func splitSentences(text string) []sentSpan {
	var spans []sentSpan
	start := 0
	i := 0
	runes := []rune(text)
	// byte offset of each rune index
	byteOff := make([]int, len(runes)+1)
	off := 0
	for idx, r := range runes {
		byteOff[idx] = off
		off += utf8.RuneLen(r)
	}
	byteOff[len(runes)] = off

	for i < len(runes) {
		if !isTerminator(runes[i]) {
			i++
			continue
		}
		// absorb consecutive terminators ("...", "?!")
		for i < len(runes) && isTerminator(runes[i]) {
			i++
		}
		for i < len(runes) && isCloser(runes[i]) {
			i++
		}
		// a sentence break needs following whitespace or end of text
		if i < len(runes) && !isSpace(runes[i]) {
			continue
		}
		for i < len(runes) && isSpace(runes[i]) {
			i++
		}
		spans = append(spans, sentSpan{start: start, end: byteOff[i]})
		start = byteOff[i]
	}

	if start < len(text) {
		spans = append(spans, sentSpan{start: start, end: len(text)})
	}
	if len(spans) == 0 {
		spans = append(spans, sentSpan{start: 0, end: len(text)})
	}
	return spans
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f', ' ', '　':
		return true
	}
	return false
}

// countSentences reports how many sentence spans s contains. Used when
// merge must strip overlap from corrected text that no longer matches the
// original overlap verbatim.
func countSentences(s string) int {
	if s == "" {
		return 0
	}
	return len(splitSentences(s))
}
