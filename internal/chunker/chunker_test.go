package chunker

import (
	"testing"
	"time"

	"github.com/voxkey/voxkey/pkg/audio"
)

// pcmOf returns a zeroed buffer holding d of audio in the given format.
func pcmOf(t *testing.T, f audio.Format, d time.Duration) []byte {
	t.Helper()
	return make([]byte, f.Bytes(d))
}

func TestNeedsChunking(t *testing.T) {
	opts := Options{MaxChunkBytes: 1000, MaxChunkDuration: 10 * time.Second}

	tests := []struct {
		name     string
		size     int
		duration time.Duration
		want     bool
	}{
		{"within both limits", 1000, 10 * time.Second, false},
		{"over size limit", 1001, time.Second, true},
		{"over duration limit", 100, 11 * time.Second, true},
		{"empty", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsChunking(make([]byte, tt.size), tt.duration, opts); got != tt.want {
				t.Errorf("NeedsChunking() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSplitWithinLimitsReturnsSingleChunk(t *testing.T) {
	f := audio.DefaultFormat()
	pcm := pcmOf(t, f, 3*time.Second)

	chunks := Split(pcm, f, DefaultOptions())
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	c := chunks[0]
	if len(c.PCM) != len(pcm) || c.Index != 0 || c.Start != 0 || c.End != 3*time.Second {
		t.Errorf("chunk = {len=%d index=%d start=%v end=%v}", len(c.PCM), c.Index, c.Start, c.End)
	}
}

func TestSplitLongBuffer(t *testing.T) {
	f := audio.DefaultFormat()
	opts := Options{
		MaxChunkBytes:    100 << 20,
		MaxChunkDuration: 10 * time.Second,
		Overlap:          2 * time.Second,
	}
	pcm := pcmOf(t, f, 25*time.Second)

	chunks := Split(pcm, f, opts)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}

	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if len(c.PCM)%2 != 0 {
			t.Errorf("chunk %d is not sample-aligned: %d bytes", i, len(c.PCM))
		}
		if i > 0 && c.Start < chunks[i-1].Start {
			t.Errorf("chunk %d start %v before chunk %d start %v", i, c.Start, i-1, chunks[i-1].Start)
		}
	}

	// Consecutive chunks share the configured overlap window.
	if got := chunks[1].Start; got != 8*time.Second {
		t.Errorf("chunk 1 starts at %v, want 8s (10s chunk minus 2s overlap)", got)
	}
	// The chunks cover the recording end to end.
	if last := chunks[len(chunks)-1]; last.End != 25*time.Second {
		t.Errorf("last chunk ends at %v, want 25s", last.End)
	}
}

func TestSplitDegenerateOverlapFallsBackToSingleChunk(t *testing.T) {
	f := audio.DefaultFormat()
	opts := Options{
		MaxChunkBytes:    100 << 20,
		MaxChunkDuration: 5 * time.Second,
		Overlap:          5 * time.Second, // overlap >= chunk size
	}
	pcm := pcmOf(t, f, 30*time.Second)

	chunks := Split(pcm, f, opts)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1 (degenerate-overlap fallback)", len(chunks))
	}
	if len(chunks[0].PCM) != len(pcm) {
		t.Errorf("fallback chunk has %d bytes, want the whole buffer (%d)", len(chunks[0].PCM), len(pcm))
	}
}

func TestSplitCapsChunkCount(t *testing.T) {
	f := audio.DefaultFormat()
	opts := Options{
		MaxChunkBytes:    100 << 20,
		MaxChunkDuration: 2 * time.Second,
		Overlap:          time.Second,
	}
	// 1s stride over 60s would want 60 chunks; the cap truncates at 10.
	pcm := pcmOf(t, f, time.Minute)

	chunks := Split(pcm, f, opts)
	if len(chunks) != maxChunks {
		t.Fatalf("got %d chunks, want the cap of %d", len(chunks), maxChunks)
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
	}
}

func TestSplitDropsSubSecondTail(t *testing.T) {
	f := audio.DefaultFormat()
	opts := Options{
		MaxChunkBytes:    100 << 20,
		MaxChunkDuration: 2 * time.Second,
		Overlap:          0,
	}
	// 2s stride: chunks at 0s and 2s, then a 500ms tail at 4s that gets dropped.
	pcm := pcmOf(t, f, 4*time.Second+500*time.Millisecond)

	chunks := Split(pcm, f, opts)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2 (tail dropped)", len(chunks))
	}
	if last := chunks[1]; last.End != 4*time.Second {
		t.Errorf("last chunk ends at %v, want 4s", last.End)
	}
}

func TestCombineDropsSeamDuplicates(t *testing.T) {
	got := Combine([]Result{
		{Text: "the quick brown fox", Start: 0},
		{Text: "brown fox jumps", Start: 8 * time.Second},
	})
	want := "the quick brown fox jumps"
	if got != want {
		t.Errorf("Combine() = %q, want %q", got, want)
	}
}

func TestCombineSortsByStart(t *testing.T) {
	got := Combine([]Result{
		{Text: "brown fox jumps", Start: 8 * time.Second},
		{Text: "the quick brown fox", Start: 0},
	})
	want := "the quick brown fox jumps"
	if got != want {
		t.Errorf("Combine() = %q, want %q", got, want)
	}
}

func TestCombineIgnoresCaseAndPunctuationAtSeam(t *testing.T) {
	got := Combine([]Result{
		{Text: "see you tomorrow, John.", Start: 0},
		{Text: "Tomorrow John we leave early", Start: 8 * time.Second},
	})
	want := "see you tomorrow, John. we leave early"
	if got != want {
		t.Errorf("Combine() = %q, want %q", got, want)
	}
}

func TestCombineNoOverlapKeepsEverything(t *testing.T) {
	got := Combine([]Result{
		{Text: "first part", Start: 0},
		{Text: "second part", Start: 8 * time.Second},
	})
	want := "first part second part"
	if got != want {
		t.Errorf("Combine() = %q, want %q", got, want)
	}
}

func TestCombineSkipsEmptyResults(t *testing.T) {
	got := Combine([]Result{
		{Text: "hello", Start: 0},
		{Text: "   ", Start: 8 * time.Second},
		{Text: "world", Start: 16 * time.Second},
	})
	if got != "hello world" {
		t.Errorf("Combine() = %q, want %q", got, "hello world")
	}
}

func TestCombineSingleAndEmpty(t *testing.T) {
	if got := Combine(nil); got != "" {
		t.Errorf("Combine(nil) = %q, want empty", got)
	}
	if got := Combine([]Result{{Text: "only one"}}); got != "only one" {
		t.Errorf("Combine(single) = %q", got)
	}
}
