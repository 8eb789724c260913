// Package chunker splits long recordings into overlapping pieces that fit
// transcription backend limits and merges the per-piece transcripts back into
// one text.
//
// Overlap intentionally re-transcribes a shared audio window at each seam,
// which surfaces as word duplication in naive concatenation. [Combine] trims
// the duplicated words at every seam, bounded so legitimately repeated words
// survive.
package chunker

import (
	"sort"
	"strings"
	"time"

	"github.com/voxkey/voxkey/pkg/audio"
)

const (
	// maxChunks is a hard ceiling on emitted chunks. When hit, trailing audio
	// is dropped; callers should log it as data loss.
	maxChunks = 10

	// minTail is the shortest remaining tail worth emitting as its own chunk.
	minTail = time.Second

	// seamWords bounds how many duplicated words are trimmed at a chunk seam.
	seamWords = 3
)

// Options is the splitting policy.
type Options struct {
	// MaxChunkBytes is the backend's payload limit. Buffers at or under this
	// size are never split for size reasons.
	MaxChunkBytes int

	// MaxChunkDuration is the backend's duration limit per request.
	MaxChunkDuration time.Duration

	// Overlap is the shared audio window between consecutive chunks.
	Overlap time.Duration
}

// DefaultOptions returns limits suitable for Whisper-style HTTP backends:
// 20 MiB payloads, 5-minute chunks, 2 seconds of seam overlap.
func DefaultOptions() Options {
	return Options{
		MaxChunkBytes:    20 << 20,
		MaxChunkDuration: 5 * time.Minute,
		Overlap:          2 * time.Second,
	}
}

// Chunk is an immutable slice of a recording. PCM aliases the source buffer;
// the source must not be mutated while chunks are in flight.
type Chunk struct {
	PCM   []byte
	Start time.Duration
	End   time.Duration
	Index int
}

// Result is one chunk's transcription together with its source timing, so
// results can be ordered by time regardless of completion order.
type Result struct {
	Text  string
	Start time.Duration
}

// NeedsChunking reports whether pcm exceeds either backend limit.
func NeedsChunking(pcm []byte, duration time.Duration, opts Options) bool {
	return len(pcm) > opts.MaxChunkBytes || duration > opts.MaxChunkDuration
}

// Split cuts pcm into overlapping chunks per opts. Buffers within limits come
// back as a single chunk covering the whole recording. Chunk indices are
// contiguous from 0 and Start is non-decreasing.
func Split(pcm []byte, format audio.Format, opts Options) []Chunk {
	duration := format.Duration(len(pcm))
	if !NeedsChunking(pcm, duration, opts) {
		return []Chunk{{PCM: pcm, Start: 0, End: duration, Index: 0}}
	}

	bps := format.BytesPerSecond()

	// Sample-aligned chunk and overlap sizes.
	chunkBytes := evenFloor(int(opts.MaxChunkDuration.Seconds() * float64(bps)))
	if chunkBytes > opts.MaxChunkBytes {
		chunkBytes = evenFloor(opts.MaxChunkBytes)
	}
	overlapBytes := evenFloor(int(opts.Overlap.Seconds() * float64(bps)))

	// Degenerate overlap would make zero or negative progress. Fall back to
	// one unsplit chunk rather than failing.
	if overlapBytes >= chunkBytes {
		return []Chunk{{PCM: pcm, Start: 0, End: duration, Index: 0}}
	}

	// Guarantee at least one second of forward progress per chunk.
	step := chunkBytes - overlapBytes
	if step < bps {
		step = bps
	}

	minTailBytes := int(minTail.Seconds() * float64(bps))

	var chunks []Chunk
	for off := 0; off < len(pcm) && len(chunks) < maxChunks; off += step {
		if off > 0 && len(pcm)-off < minTailBytes {
			// A sub-second tail transcribes as noise. Drop it.
			break
		}
		end := min(off+chunkBytes, len(pcm))
		chunks = append(chunks, Chunk{
			PCM:   pcm[off:end],
			Start: format.Duration(off),
			End:   format.Duration(end),
			Index: len(chunks),
		})
		if end == len(pcm) {
			break
		}
	}
	return chunks
}

// Combine merges per-chunk transcripts into one text. Results are sorted by
// Start, then at each seam up to seamWords duplicated words are dropped from
// the head of the later transcript when they repeat the tail of the earlier
// one (case-insensitive, punctuation-stripped).
func Combine(results []Result) string {
	sorted := make([]Result, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	var parts []string
	for _, r := range sorted {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		if len(parts) > 0 {
			text = trimSeam(parts[len(parts)-1], text)
			if text == "" {
				continue
			}
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}

// trimSeam drops leading words of cur that duplicate the trailing words of
// prev. The longest matching run up to seamWords wins.
func trimSeam(prev, cur string) string {
	prevWords := strings.Fields(prev)
	curWords := strings.Fields(cur)

	maxRun := min(seamWords, len(prevWords), len(curWords))
	for run := maxRun; run > 0; run-- {
		if wordsEqual(prevWords[len(prevWords)-run:], curWords[:run]) {
			return strings.Join(curWords[run:], " ")
		}
	}
	return strings.Join(curWords, " ")
}

// wordsEqual compares two word runs ignoring case and punctuation.
func wordsEqual(a, b []string) bool {
	for i := range a {
		if normalizeWord(a[i]) != normalizeWord(b[i]) {
			return false
		}
	}
	return true
}

// normalizeWord lowercases w and strips non-alphanumeric runes.
func normalizeWord(w string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(w) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// evenFloor rounds n down to an even number so cuts stay on 16-bit sample
// boundaries.
func evenFloor(n int) int { return n &^ 1 }
