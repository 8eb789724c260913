// Package capture owns microphone input for one press-to-release cycle.
//
// A [Session] starts a [Device] stream on key-down, accumulates PCM in the
// background while reporting input levels, and hands the finished buffer to
// the caller on key-up. Recordings shorter than a minimum length are treated
// as silence (accidental key taps), not as errors worth telling the user
// about.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/voxkey/voxkey/pkg/audio"
)

// ErrSilence is returned by [Session.Stop] when the recording is below the
// minimum length. Callers abort the cycle quietly.
var ErrSilence = errors.New("capture: recording below minimum length")

// DefaultMinDuration is the shortest recording considered intentional.
const DefaultMinDuration = 300 * time.Millisecond

// Stream is a live PCM source. Read returns s16le frames in the format the
// stream was started with.
type Stream interface {
	io.Reader

	// Stop terminates capture and releases the device.
	Stop() error
}

// Device opens capture streams.
type Device interface {
	// Start begins capturing in the given format. The returned stream stays
	// open until Stop is called, independent of ctx, which only bounds the
	// startup itself.
	Start(ctx context.Context, format audio.Format) (Stream, error)
}

// LevelFunc receives the RMS level of each captured block, in [0, 1].
type LevelFunc func(level float64)

// SessionOption is a functional option for configuring a [Session].
type SessionOption func(*Session)

// WithMinDuration overrides [DefaultMinDuration].
func WithMinDuration(d time.Duration) SessionOption {
	return func(s *Session) { s.minDuration = d }
}

// WithLevelFunc registers a per-block level callback. The callback runs on
// the capture goroutine and must not block.
func WithLevelFunc(fn LevelFunc) SessionOption {
	return func(s *Session) { s.onLevel = fn }
}

// Session records one press-to-release cycle. Not reusable; create a new
// Session per cycle.
type Session struct {
	device      Device
	format      audio.Format
	minDuration time.Duration
	onLevel     LevelFunc

	mu      sync.Mutex
	stream  Stream
	buf     []byte
	readErr error
	done    chan struct{}
	started bool
}

// NewSession creates a Session capturing from device in format.
func NewSession(device Device, format audio.Format, opts ...SessionOption) *Session {
	s := &Session{
		device:      device,
		format:      format,
		minDuration: DefaultMinDuration,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start opens the device and begins accumulating audio in the background.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("capture: session already started")
	}
	stream, err := s.device.Start(ctx, s.format)
	if err != nil {
		return fmt.Errorf("capture: start device: %w", err)
	}
	s.stream = stream
	s.started = true
	s.done = make(chan struct{})

	go s.readLoop(stream)
	return nil
}

// readLoop drains the stream into the buffer until the stream ends.
func (s *Session) readLoop(stream Stream) {
	defer close(s.done)

	block := make([]byte, 4096)
	for {
		n, err := stream.Read(block)
		if n > 0 {
			if s.onLevel != nil {
				s.onLevel(audio.RMS(block[:n]))
			}
			s.mu.Lock()
			s.buf = append(s.buf, block[:n]...)
			s.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.mu.Lock()
				s.readErr = err
				s.mu.Unlock()
			}
			return
		}
	}
}

// Stop terminates capture and returns the recorded buffer. Returns
// [ErrSilence] when the recording is shorter than the minimum duration.
func (s *Session) Stop() ([]byte, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil, errors.New("capture: session not started")
	}
	stream := s.stream
	s.mu.Unlock()

	stopErr := stream.Stop()
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readErr != nil {
		return nil, fmt.Errorf("capture: read stream: %w", s.readErr)
	}
	if stopErr != nil {
		return nil, fmt.Errorf("capture: stop stream: %w", stopErr)
	}
	if s.format.Duration(len(s.buf)) < s.minDuration {
		return nil, ErrSilence
	}
	return s.buf, nil
}

// Abort terminates capture and discards everything recorded so far.
func (s *Session) Abort() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	stream := s.stream
	s.mu.Unlock()

	_ = stream.Stop()
	<-s.done
}
