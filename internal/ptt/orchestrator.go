// Package ptt sequences one push-to-talk cycle: record while the hotkey is
// held, transcribe on release, classify, route, deliver, and always come
// back to idle.
//
// The state field is the mutual-exclusion mechanism: at most one cycle is
// active process-wide, and a key-down while any cycle is in flight is a
// no-op, not a queued retry. Every path out of a cycle, success, failure, or
// cancel, ends in [StateIdle]; a stuck non-idle state is the most severe
// defect class for this system and is logged as such if ever observed.
package ptt

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxkey/voxkey/internal/capture"
	"github.com/voxkey/voxkey/internal/chunker"
	"github.com/voxkey/voxkey/internal/classify"
	"github.com/voxkey/voxkey/internal/history"
	"github.com/voxkey/voxkey/internal/notify"
	"github.com/voxkey/voxkey/internal/observe"
	"github.com/voxkey/voxkey/internal/route"
	"github.com/voxkey/voxkey/pkg/audio"
	"github.com/voxkey/voxkey/pkg/llm"
	"github.com/voxkey/voxkey/pkg/stt"
)

// State is the orchestrator's cycle phase.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateTranscribing
	StateProcessing
	StateDelivering
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	case StateProcessing:
		return "processing"
	case StateDelivering:
		return "delivering"
	default:
		return "unknown"
	}
}

// Deliverer injects final text into the focused application.
type Deliverer interface {
	Deliver(ctx context.Context, text string) error
}

// Router handles classified assistant commands.
type Router interface {
	Route(ctx context.Context, decision classify.Decision, selection string, hist []llm.Message) (route.Output, error)
}

// HistorySink records finished cycles.
type HistorySink interface {
	Append(e history.Entry) error
}

// Config wires the orchestrator's collaborators. Device, Transcriber,
// Classifier, Router, and Deliverer are required; the rest are optional.
type Config struct {
	Device      capture.Device
	Transcriber stt.Transcriber
	Classifier  *classify.Classifier
	Router      Router
	Deliverer   Deliverer

	// Selection resolves the current foreign-application text selection.
	Selection func(ctx context.Context) string

	// Notifier surfaces transcription failures to the user.
	Notifier notify.Notifier

	// History records finished cycles locally.
	History HistorySink

	// Convo tracks the assistant conversation session.
	Convo *ConversationManager

	// Metrics records pipeline telemetry. May be nil.
	Metrics *observe.Metrics

	// OnLevel receives capture level updates for UI metering.
	OnLevel capture.LevelFunc

	// MinDuration is the shortest recording worth transcribing. Zero means
	// the capture default.
	MinDuration time.Duration

	// Format is the capture format. Zero value means 16 kHz mono.
	Format audio.Format

	// ChunkOpts is the transcription chunking policy. Zero value means
	// [chunker.DefaultOptions].
	ChunkOpts chunker.Options

	// TranscribeTimeout bounds each chunk's gateway call. Default: 30s.
	TranscribeTimeout time.Duration

	// RouteTimeout bounds the assistant call. Default: 30s.
	RouteTimeout time.Duration

	// AudioCue plays a sound on recording start and stop.
	AudioCue bool
}

// Orchestrator is the push-to-talk state machine.
type Orchestrator struct {
	cfg Config

	mu             sync.Mutex
	state          State
	gen            uint64
	dictating      bool
	forceAssistant bool
	session        *capture.Session
	cycleCtx       context.Context
	cycleCancel    context.CancelFunc
}

// New creates an Orchestrator in [StateIdle].
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Device == nil:
		return nil, errors.New("ptt: Device is required")
	case cfg.Transcriber == nil:
		return nil, errors.New("ptt: Transcriber is required")
	case cfg.Classifier == nil:
		return nil, errors.New("ptt: Classifier is required")
	case cfg.Router == nil:
		return nil, errors.New("ptt: Router is required")
	case cfg.Deliverer == nil:
		return nil, errors.New("ptt: Deliverer is required")
	}
	if cfg.Format == (audio.Format{}) {
		cfg.Format = audio.DefaultFormat()
	}
	if cfg.ChunkOpts == (chunker.Options{}) {
		cfg.ChunkOpts = chunker.DefaultOptions()
	}
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = 30 * time.Second
	}
	if cfg.RouteTimeout <= 0 {
		cfg.RouteTimeout = 30 * time.Second
	}
	return &Orchestrator{cfg: cfg}, nil
}

// State returns the current cycle phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Dictating reports whether a plain-dictation cycle is currently active.
// Consumers read this to suppress overlays mid-dictation; only the
// orchestrator writes it.
func (o *Orchestrator) Dictating() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state != StateIdle && o.dictating
}

// SetForceAssistant toggles routing every transcript to the assistant
// regardless of wording.
func (o *Orchestrator) SetForceAssistant(v bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.forceAssistant = v
}

// SetClassifier swaps the transcript classifier. Used for config hot-reload;
// a nil classifier is ignored. The active cycle keeps the classifier it
// started with.
func (o *Orchestrator) SetClassifier(c *classify.Classifier) {
	if c == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg.Classifier = c
}

// SetAudioCue toggles the recording start/stop sound.
func (o *Orchestrator) SetAudioCue(v bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg.AudioCue = v
}

// KeyDown starts a recording cycle. A no-op unless the state is idle.
func (o *Orchestrator) KeyDown() {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		slog.Debug("key-down ignored, cycle active", "state", o.state.String())
		return
	}

	o.gen++
	gen := o.gen
	ctx, cancel := context.WithCancel(context.Background())
	o.cycleCtx = ctx
	o.cycleCancel = cancel

	var opts []capture.SessionOption
	if o.cfg.OnLevel != nil {
		opts = append(opts, capture.WithLevelFunc(o.cfg.OnLevel))
	}
	if o.cfg.MinDuration > 0 {
		opts = append(opts, capture.WithMinDuration(o.cfg.MinDuration))
	}
	sess := capture.NewSession(o.cfg.Device, o.cfg.Format, opts...)
	o.session = sess
	o.state = StateRecording
	o.mu.Unlock()

	o.cfg.Metrics.CycleStarted(ctx)

	if err := sess.Start(ctx); err != nil {
		slog.Error("capture start failed", "error", err)
		o.finish(ctx, gen)
		return
	}
	o.cue(ctx)
}

// KeyUp ends recording and runs the rest of the cycle asynchronously. A
// no-op unless the state is recording.
func (o *Orchestrator) KeyUp() {
	o.mu.Lock()
	if o.state != StateRecording {
		o.mu.Unlock()
		return
	}
	o.state = StateTranscribing
	gen := o.gen
	sess := o.session
	ctx := o.cycleCtx
	o.mu.Unlock()

	o.cue(ctx)
	go o.runCycle(ctx, gen, sess)
}

// Cancel forces an immediate, synchronous return to idle from any state,
// discarding in-flight work. Stale goroutines notice the generation bump and
// never mutate state or deliver afterwards.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	if o.state == StateIdle {
		o.mu.Unlock()
		return
	}
	slog.Info("cycle cancelled", "state", o.state.String())

	recording := o.state == StateRecording
	sess := o.session
	cancel := o.cycleCancel

	o.gen++
	o.state = StateIdle
	o.dictating = false
	o.session = nil
	o.cycleCtx = nil
	o.cycleCancel = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if recording && sess != nil {
		sess.Abort()
	}
	o.cfg.Metrics.RecordCycle(context.Background(), "unknown", "cancelled")
	o.cfg.Metrics.CycleFinished(context.Background())
}

// runCycle drives one cycle from transcription through delivery.
func (o *Orchestrator) runCycle(ctx context.Context, gen uint64, sess *capture.Session) {
	ctx, span := observe.StartSpan(ctx, "ptt.cycle")
	defer span.End()
	defer o.finish(ctx, gen)

	// Stop capture and validate the buffer.
	start := time.Now()
	pcm, err := sess.Stop()
	o.cfg.Metrics.RecordStage(ctx, "capture", time.Since(start))
	if err != nil {
		if errors.Is(err, capture.ErrSilence) {
			// Accidental key tap; not worth a notification.
			slog.Debug("recording below minimum length, discarding")
			o.cfg.Metrics.RecordCycle(ctx, "silence", "ok")
		} else {
			slog.Error("capture failed", "error", err)
			o.cfg.Metrics.RecordCycle(ctx, "unknown", "error")
		}
		return
	}

	// Transcribe, chunked and concurrent.
	start = time.Now()
	tctx, tspan := observe.StartSpan(ctx, "ptt.transcribe")
	text, err := o.transcribe(tctx, pcm)
	tspan.End()
	o.cfg.Metrics.RecordStage(ctx, "transcribe", time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return // cancelled; stay quiet
		}
		slog.Error("transcription failed", "error", err)
		o.notify(ctx, "Transcription failed", "The recording could not be transcribed. Please try again.")
		o.cfg.Metrics.RecordCycle(ctx, "unknown", "error")
		return
	}
	if text == "" {
		o.cfg.Metrics.RecordCycle(ctx, "silence", "ok")
		return
	}

	// Classify and route.
	if !o.advance(gen, StateProcessing, false) {
		return
	}
	start = time.Now()
	selection := ""
	if o.cfg.Selection != nil {
		selection = o.cfg.Selection(ctx)
	}
	decision := o.classifierNow().Classify(classify.Input{
		Transcript:     text,
		ForceAssistant: o.forceAssistantNow(),
		SelectionLen:   len(selection),
	})
	o.cfg.Metrics.RecordStage(ctx, "classify", time.Since(start))
	observe.Logger(ctx).Info("transcript classified", "kind", decision.Kind.String(), "chars", len(text))

	if !o.advance(gen, StateProcessing, decision.Kind == classify.KindDictation) {
		return
	}

	deliverText := text
	recordText := text
	kind := decision.Kind

	if decision.Kind != classify.KindDictation {
		start = time.Now()
		rctx, rspan := observe.StartSpan(ctx, "ptt.route")
		out, routeErr := o.routeCommand(rctx, decision, selection)
		rspan.End()
		o.cfg.Metrics.RecordStage(ctx, "route", time.Since(start))
		if routeErr != nil {
			if ctx.Err() != nil {
				return
			}
			// Deliver the raw transcript rather than losing the utterance.
			slog.Warn("routing failed, falling back to dictation", "error", routeErr)
			kind = classify.KindDictation
		} else {
			deliverText = out.Text
			recordText = out.Response
		}
	}

	// Deliver.
	if !o.advance(gen, StateDelivering, kind == classify.KindDictation) {
		return
	}
	status := "ok"
	if deliverText != "" {
		start = time.Now()
		dctx, dspan := observe.StartSpan(ctx, "ptt.deliver")
		err := o.cfg.Deliverer.Deliver(dctx, deliverText)
		dspan.End()
		o.cfg.Metrics.RecordStage(ctx, "deliver", time.Since(start))
		if err != nil {
			observe.Logger(ctx).Error("delivery failed", "error", err)
			status = "error"
		}
	}
	o.cfg.Metrics.RecordCycle(ctx, kind.String(), status)
	o.record(recordText, kind)
}

// transcribe splits pcm per the chunking policy, transcribes every chunk
// concurrently, and merges the results in time order.
func (o *Orchestrator) transcribe(ctx context.Context, pcm []byte) (string, error) {
	chunks := chunker.Split(pcm, o.cfg.Format, o.cfg.ChunkOpts)
	if len(chunks) == 0 {
		return "", nil
	}
	if tail := chunks[len(chunks)-1]; tail.End < o.cfg.Format.Duration(len(pcm)) {
		slog.Warn("recording exceeds chunk budget, trailing audio dropped",
			"kept", tail.End, "total", o.cfg.Format.Duration(len(pcm)))
	}

	results := make([]chunker.Result, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range chunks {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, o.cfg.TranscribeTimeout)
			defer cancel()

			res, err := o.cfg.Transcriber.Transcribe(callCtx, c.PCM, o.cfg.Format)
			if err != nil {
				return err
			}
			results[i] = chunker.Result{Text: res.Text, Start: c.Start}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return chunker.Combine(results), nil
}

// routeCommand runs the assistant path with the conversation session.
func (o *Orchestrator) routeCommand(ctx context.Context, decision classify.Decision, selection string) (route.Output, error) {
	var hist []llm.Message
	if o.cfg.Convo != nil {
		o.cfg.Convo.Session()
		hist = o.cfg.Convo.History()
	}

	routeCtx, cancel := context.WithTimeout(ctx, o.cfg.RouteTimeout)
	defer cancel()

	out, err := o.cfg.Router.Route(routeCtx, decision, selection, hist)
	if err != nil {
		return route.Output{}, err
	}
	if o.cfg.Convo != nil && decision.Kind == classify.KindCommand && out.Response != "" {
		o.cfg.Convo.Record(decision.Query, out.Response)
	}
	return out, nil
}

// advance moves to the next state if this goroutine's cycle is still the
// active one. Returns false when the cycle was cancelled or superseded.
func (o *Orchestrator) advance(gen uint64, to State, dictating bool) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen {
		return false
	}
	o.state = to
	o.dictating = dictating
	return true
}

// finish returns the cycle to idle unless a cancel already did.
func (o *Orchestrator) finish(ctx context.Context, gen uint64) {
	o.mu.Lock()
	if o.gen == gen {
		o.state = StateIdle
		o.dictating = false
		o.session = nil
		if o.cycleCancel != nil {
			o.cycleCancel()
		}
		o.cycleCtx = nil
		o.cycleCancel = nil
		o.mu.Unlock()
		o.cfg.Metrics.CycleFinished(context.WithoutCancel(ctx))
		return
	}
	o.mu.Unlock()
}

// forceAssistantNow reads the toggle under the lock.
func (o *Orchestrator) forceAssistantNow() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.forceAssistant
}

// classifierNow reads the hot-swappable classifier under the lock.
func (o *Orchestrator) classifierNow() *classify.Classifier {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg.Classifier
}

// record persists the finished cycle to local history.
func (o *Orchestrator) record(text string, kind classify.Kind) {
	if o.cfg.History == nil || text == "" {
		return
	}
	if err := o.cfg.History.Append(history.Entry{Text: text, Kind: kind.String()}); err != nil {
		slog.Warn("history append failed", "error", err)
	}
}

// cue plays the audio feedback signal when enabled.
func (o *Orchestrator) cue(ctx context.Context) {
	o.mu.Lock()
	enabled := o.cfg.AudioCue
	o.mu.Unlock()
	if !enabled || o.cfg.Notifier == nil {
		return
	}
	if err := o.cfg.Notifier.Cue(ctx); err != nil {
		slog.Debug("audio cue failed", "error", err)
	}
}

// notify surfaces a failure to the user when a notifier is wired.
func (o *Orchestrator) notify(ctx context.Context, title, message string) {
	if o.cfg.Notifier == nil {
		return
	}
	if err := o.cfg.Notifier.Notify(ctx, title, message); err != nil {
		slog.Warn("notification failed", "error", err)
	}
}
