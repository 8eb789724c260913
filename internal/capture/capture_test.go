package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/voxkey/voxkey/pkg/audio"
)

// fakeStream serves a fixed PCM buffer, then blocks until stopped.
type fakeStream struct {
	data *bytes.Reader

	mu      sync.Mutex
	stopped bool
	unblock chan struct{}
}

func newFakeStream(pcm []byte) *fakeStream {
	return &fakeStream{
		data:    bytes.NewReader(pcm),
		unblock: make(chan struct{}),
	}
}

func (f *fakeStream) Read(p []byte) (int, error) {
	n, err := f.data.Read(p)
	if errors.Is(err, io.EOF) {
		// Live devices do not EOF; block until Stop like a real stream.
		<-f.unblock
		return 0, io.EOF
	}
	return n, err
}

func (f *fakeStream) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped {
		f.stopped = true
		close(f.unblock)
	}
	return nil
}

// fakeDevice hands out a prepared stream.
type fakeDevice struct {
	stream   Stream
	startErr error
}

func (d *fakeDevice) Start(context.Context, audio.Format) (Stream, error) {
	if d.startErr != nil {
		return nil, d.startErr
	}
	return d.stream, nil
}

func TestSessionRecordsBuffer(t *testing.T) {
	f := audio.DefaultFormat()
	pcm := make([]byte, f.Bytes(time.Second))
	dev := &fakeDevice{stream: newFakeStream(pcm)}

	var levels []float64
	var mu sync.Mutex
	s := NewSession(dev, f, WithLevelFunc(func(l float64) {
		mu.Lock()
		levels = append(levels, l)
		mu.Unlock()
	}))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Let the read loop drain the fake stream.
	time.Sleep(50 * time.Millisecond)

	got, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(got) != len(pcm) {
		t.Errorf("recorded %d bytes, want %d", len(got), len(pcm))
	}
	mu.Lock()
	if len(levels) == 0 {
		t.Error("level callback never fired")
	}
	mu.Unlock()
}

func TestSessionShortRecordingIsSilence(t *testing.T) {
	f := audio.DefaultFormat()
	pcm := make([]byte, f.Bytes(100*time.Millisecond))
	dev := &fakeDevice{stream: newFakeStream(pcm)}

	s := NewSession(dev, f)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if _, err := s.Stop(); !errors.Is(err, ErrSilence) {
		t.Fatalf("Stop = %v, want ErrSilence", err)
	}
}

func TestSessionDeviceStartFailure(t *testing.T) {
	dev := &fakeDevice{startErr: errors.New("no microphone")}
	s := NewSession(dev, audio.DefaultFormat())

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded with a failing device")
	}
}

func TestSessionDoubleStart(t *testing.T) {
	f := audio.DefaultFormat()
	dev := &fakeDevice{stream: newFakeStream(nil)}
	s := NewSession(dev, f)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Abort()

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("second Start succeeded, want error")
	}
}

func TestSessionAbortDiscards(t *testing.T) {
	f := audio.DefaultFormat()
	pcm := make([]byte, f.Bytes(time.Second))
	dev := &fakeDevice{stream: newFakeStream(pcm)}

	s := NewSession(dev, f)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Abort()

	// After Abort the session is finished; Stop must not hang.
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop hung after Abort")
	}
}
