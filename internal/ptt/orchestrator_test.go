package ptt

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/voxkey/voxkey/internal/capture"
	"github.com/voxkey/voxkey/internal/classify"
	"github.com/voxkey/voxkey/internal/route"
	"github.com/voxkey/voxkey/pkg/audio"
	"github.com/voxkey/voxkey/pkg/llm"
	"github.com/voxkey/voxkey/pkg/stt"
	sttmock "github.com/voxkey/voxkey/pkg/stt/mock"
)

// fakeStream serves fixed PCM, then blocks until stopped.
type fakeStream struct {
	data    *bytes.Reader
	once    sync.Once
	unblock chan struct{}
}

func newFakeStream(pcm []byte) *fakeStream {
	return &fakeStream{data: bytes.NewReader(pcm), unblock: make(chan struct{})}
}

func (f *fakeStream) Read(p []byte) (int, error) {
	n, err := f.data.Read(p)
	if errors.Is(err, io.EOF) {
		<-f.unblock
		return 0, io.EOF
	}
	return n, err
}

func (f *fakeStream) Stop() error {
	f.once.Do(func() { close(f.unblock) })
	return nil
}

// fakeDevice returns a fresh fake stream per start.
type fakeDevice struct {
	pcm []byte
}

func (d *fakeDevice) Start(context.Context, audio.Format) (capture.Stream, error) {
	return newFakeStream(d.pcm), nil
}

// fakeDeliverer records deliveries.
type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []string
	err       error
}

func (d *fakeDeliverer) Deliver(_ context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delivered = append(d.delivered, text)
	return d.err
}

func (d *fakeDeliverer) texts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.delivered))
	copy(out, d.delivered)
	return out
}

// fakeRouter scripts the assistant path.
type fakeRouter struct {
	out route.Output
	err error

	mu    sync.Mutex
	calls int
}

func (r *fakeRouter) Route(context.Context, classify.Decision, string, []llm.Message) (route.Output, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.out, r.err
}

func (r *fakeRouter) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// secondOfAudio returns one second of PCM in the default format.
func secondOfAudio() []byte {
	return make([]byte, audio.DefaultFormat().Bytes(time.Second))
}

func newTestOrchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	if cfg.Device == nil {
		cfg.Device = &fakeDevice{pcm: secondOfAudio()}
	}
	if cfg.Transcriber == nil {
		cfg.Transcriber = &sttmock.Transcriber{FixedText: "hello world"}
	}
	if cfg.Classifier == nil {
		cfg.Classifier = classify.New([]string{"jarvis"})
	}
	if cfg.Router == nil {
		cfg.Router = &fakeRouter{}
	}
	if cfg.Deliverer == nil {
		cfg.Deliverer = &fakeDeliverer{}
	}
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

// waitIdle polls until the orchestrator returns to idle.
func waitIdle(t *testing.T, o *Orchestrator) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if o.State() == StateIdle {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("orchestrator stuck in state %v", o.State())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestDictationCycleDeliversTranscript(t *testing.T) {
	deliverer := &fakeDeliverer{}
	o := newTestOrchestrator(t, Config{Deliverer: deliverer})

	o.KeyDown()
	if got := o.State(); got != StateRecording {
		t.Fatalf("state after KeyDown = %v, want recording", got)
	}
	time.Sleep(30 * time.Millisecond)
	o.KeyUp()
	waitIdle(t, o)

	if got := deliverer.texts(); len(got) != 1 || got[0] != "hello world" {
		t.Errorf("delivered = %v, want the transcript", got)
	}
}

func TestKeyDownWhileActiveIsNoOp(t *testing.T) {
	blocker := make(chan struct{})
	transcriber := &sttmock.Transcriber{
		TranscribeFunc: func(ctx context.Context, _ []byte, _ audio.Format) (stt.Result, error) {
			select {
			case <-blocker:
			case <-ctx.Done():
			}
			return stt.Result{Text: "late"}, nil
		},
	}
	o := newTestOrchestrator(t, Config{Transcriber: transcriber})

	o.KeyDown()
	time.Sleep(30 * time.Millisecond)
	o.KeyUp()

	// A second key-down while transcribing must not start a new cycle.
	o.KeyDown()
	if got := o.State(); got != StateTranscribing {
		t.Errorf("state = %v, want transcribing unchanged", got)
	}

	close(blocker)
	waitIdle(t, o)
}

func TestShortRecordingAbortsQuietly(t *testing.T) {
	f := audio.DefaultFormat()
	transcriber := &sttmock.Transcriber{FixedText: "should never run"}
	deliverer := &fakeDeliverer{}
	o := newTestOrchestrator(t, Config{
		Device:      &fakeDevice{pcm: make([]byte, f.Bytes(50*time.Millisecond))},
		Transcriber: transcriber,
		Deliverer:   deliverer,
	})

	o.KeyDown()
	time.Sleep(30 * time.Millisecond)
	o.KeyUp()
	waitIdle(t, o)

	if n := len(transcriber.Calls()); n != 0 {
		t.Errorf("transcriber called %d times for a silent tap", n)
	}
	if n := len(deliverer.texts()); n != 0 {
		t.Errorf("delivered %d payloads for a silent tap", n)
	}
}

func TestTranscriptionFailureReturnsToIdle(t *testing.T) {
	transcriber := &sttmock.Transcriber{
		TranscribeFunc: func(context.Context, []byte, audio.Format) (stt.Result, error) {
			return stt.Result{}, errors.New("gateway down")
		},
	}
	deliverer := &fakeDeliverer{}
	o := newTestOrchestrator(t, Config{Transcriber: transcriber, Deliverer: deliverer})

	o.KeyDown()
	time.Sleep(30 * time.Millisecond)
	o.KeyUp()
	waitIdle(t, o)

	if n := len(deliverer.texts()); n != 0 {
		t.Errorf("delivered %d payloads after transcription failure", n)
	}
}

func TestCancelMidTranscribingSkipsDelivery(t *testing.T) {
	started := make(chan struct{})
	transcriber := &sttmock.Transcriber{
		TranscribeFunc: func(ctx context.Context, _ []byte, _ audio.Format) (stt.Result, error) {
			close(started)
			<-ctx.Done()
			return stt.Result{}, ctx.Err()
		},
	}
	deliverer := &fakeDeliverer{}
	o := newTestOrchestrator(t, Config{Transcriber: transcriber, Deliverer: deliverer})

	o.KeyDown()
	time.Sleep(30 * time.Millisecond)
	o.KeyUp()
	<-started

	o.Cancel()
	if got := o.State(); got != StateIdle {
		t.Fatalf("state after Cancel = %v, want idle immediately", got)
	}

	// Give the stale goroutine time to (incorrectly) deliver.
	time.Sleep(50 * time.Millisecond)
	if n := len(deliverer.texts()); n != 0 {
		t.Errorf("delivered %d payloads after cancel", n)
	}
}

func TestCommandCycleRoutesAndDeliversAnswer(t *testing.T) {
	transcriber := &sttmock.Transcriber{FixedText: "hey jarvis, open settings"}
	router := &fakeRouter{out: route.Output{Text: "Opening settings.", Response: "Opening settings."}}
	deliverer := &fakeDeliverer{}
	o := newTestOrchestrator(t, Config{
		Transcriber: transcriber,
		Router:      router,
		Deliverer:   deliverer,
	})

	o.KeyDown()
	time.Sleep(30 * time.Millisecond)
	o.KeyUp()
	waitIdle(t, o)

	if router.callCount() != 1 {
		t.Errorf("router called %d times, want 1", router.callCount())
	}
	if got := deliverer.texts(); len(got) != 1 || got[0] != "Opening settings." {
		t.Errorf("delivered = %v", got)
	}
}

func TestCommandToOverlayDeliversNothing(t *testing.T) {
	transcriber := &sttmock.Transcriber{FixedText: "hey jarvis, open settings"}
	router := &fakeRouter{out: route.Output{Response: "shown", ViaOverlay: true}}
	deliverer := &fakeDeliverer{}
	o := newTestOrchestrator(t, Config{
		Transcriber: transcriber,
		Router:      router,
		Deliverer:   deliverer,
	})

	o.KeyDown()
	time.Sleep(30 * time.Millisecond)
	o.KeyUp()
	waitIdle(t, o)

	if n := len(deliverer.texts()); n != 0 {
		t.Errorf("delivered %d payloads, want 0 when the overlay was used", n)
	}
}

func TestRoutingFailureFallsBackToRawTranscript(t *testing.T) {
	transcriber := &sttmock.Transcriber{FixedText: "hey jarvis, open settings"}
	router := &fakeRouter{err: errors.New("model down")}
	deliverer := &fakeDeliverer{}
	o := newTestOrchestrator(t, Config{
		Transcriber: transcriber,
		Router:      router,
		Deliverer:   deliverer,
	})

	o.KeyDown()
	time.Sleep(30 * time.Millisecond)
	o.KeyUp()
	waitIdle(t, o)

	if got := deliverer.texts(); len(got) != 1 || got[0] != "hey jarvis, open settings" {
		t.Errorf("delivered = %v, want the raw transcript fallback", got)
	}
}

func TestForceAssistantRoutesPlainTranscript(t *testing.T) {
	router := &fakeRouter{out: route.Output{Text: "done", Response: "done"}}
	o := newTestOrchestrator(t, Config{
		Transcriber: &sttmock.Transcriber{FixedText: "summarize this"},
		Router:      router,
	})
	o.SetForceAssistant(true)

	o.KeyDown()
	time.Sleep(30 * time.Millisecond)
	o.KeyUp()
	waitIdle(t, o)

	if router.callCount() != 1 {
		t.Errorf("router called %d times, want 1 with forceAssistant", router.callCount())
	}
}

// blockingDeliverer holds the cycle in the delivering state until released.
type blockingDeliverer struct {
	entered chan struct{}
	release chan struct{}
}

func (d *blockingDeliverer) Deliver(context.Context, string) error {
	close(d.entered)
	<-d.release
	return nil
}

func TestDictatingExposedDuringDictationCycle(t *testing.T) {
	deliverer := &blockingDeliverer{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	o := newTestOrchestrator(t, Config{
		Transcriber: &sttmock.Transcriber{FixedText: "plain words"},
		Deliverer:   deliverer,
	})

	if o.Dictating() {
		t.Fatal("Dictating() = true while idle")
	}

	o.KeyDown()
	time.Sleep(30 * time.Millisecond)
	o.KeyUp()

	select {
	case <-deliverer.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("never reached delivery, state=%v", o.State())
	}
	if !o.Dictating() {
		t.Error("Dictating() = false while delivering dictated text")
	}

	close(deliverer.release)
	waitIdle(t, o)

	if o.Dictating() {
		t.Error("Dictating() = true after cycle finished")
	}
}
