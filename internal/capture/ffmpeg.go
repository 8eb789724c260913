package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/voxkey/voxkey/pkg/audio"
)

// startupGrace is how long a just-launched ffmpeg gets to fail fast (bad
// device, missing permission) before the stream is handed to the caller.
const startupGrace = 250 * time.Millisecond

// Compile-time assertion that FFmpegDevice satisfies Device.
var _ Device = (*FFmpegDevice)(nil)

// FFmpegOption is a functional option for configuring an [FFmpegDevice].
type FFmpegOption func(*FFmpegDevice)

// WithBinary overrides the ffmpeg binary path.
func WithBinary(path string) FFmpegOption {
	return func(d *FFmpegDevice) { d.binary = path }
}

// WithInput sets the ffmpeg input format and device, e.g. ("avfoundation",
// ":0") for the default macOS microphone or ("pulse", "default") on Linux.
func WithInput(format, device string) FFmpegOption {
	return func(d *FFmpegDevice) {
		d.inputFormat = format
		d.inputDevice = device
	}
}

// FFmpegDevice captures microphone PCM by running ffmpeg with s16le output
// on stdout.
type FFmpegDevice struct {
	binary      string
	inputFormat string
	inputDevice string
}

// NewFFmpegDevice creates a device with the default macOS microphone input.
func NewFFmpegDevice(opts ...FFmpegOption) *FFmpegDevice {
	d := &FFmpegDevice{
		binary:      "ffmpeg",
		inputFormat: "avfoundation",
		inputDevice: ":0",
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Start implements [Device].
func (d *FFmpegDevice) Start(ctx context.Context, format audio.Format) (Stream, error) {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", d.inputFormat,
		"-i", d.inputDevice,
		"-ac", strconv.Itoa(format.Channels),
		"-ar", strconv.Itoa(format.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.Command(d.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// Give ffmpeg a moment to fail fast on a bad device before we commit.
	select {
	case err := <-waitErr:
		msg := strings.TrimSpace(stderr.String())
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited at startup: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("ffmpeg exited at startup: %s", msg)
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-waitErr
		return nil, ctx.Err()
	case <-time.After(startupGrace):
	}

	return &ffmpegStream{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

// ffmpegStream wraps the running ffmpeg process as a [Stream].
type ffmpegStream struct {
	stdout  interface {
		Read([]byte) (int, error)
		Close() error
	}
	stderr  *bytes.Buffer
	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

// Read implements [Stream].
func (s *ffmpegStream) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

// Stop implements [Stream]. Interrupt first so ffmpeg flushes its pipeline;
// kill if it does not exit promptly.
func (s *ffmpegStream) Stop() error {
	s.stopOnce.Do(func() {
		_ = s.process.Signal(os.Interrupt)

		select {
		case err := <-s.waitErr:
			s.stopErr = ignoreExitError(err)
		case <-time.After(1200 * time.Millisecond):
			_ = s.process.Kill()
			s.stopErr = ignoreExitError(<-s.waitErr)
		}

		_ = s.stdout.Close()

		if s.stopErr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, strings.TrimSpace(s.stderr.String()))
		}
	})
	return s.stopErr
}

// ignoreExitError drops the non-zero exit status ffmpeg reports when
// interrupted; that is the expected shutdown path.
func ignoreExitError(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
