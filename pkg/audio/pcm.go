// Package audio provides helpers for the raw PCM format used throughout
// voxkey: signed 16-bit little-endian samples, mono, 16 kHz by default.
//
// The capture device, the chunker, and every transcription backend agree on
// this format; all byte/duration arithmetic goes through [Format] so that the
// conversion factors live in exactly one place.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// BytesPerSample is fixed at 2 for signed 16-bit PCM.
const BytesPerSample = 2

// Format describes the sample rate and channel count of a PCM stream.
// The zero value is not valid; use [DefaultFormat] or fill both fields.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is the capture format used by the push-to-talk pipeline:
// mono 16-bit PCM at 16 kHz (32,000 bytes per second).
func DefaultFormat() Format {
	return Format{SampleRate: 16000, Channels: 1}
}

// BytesPerSecond returns the byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * BytesPerSample
}

// Duration returns the play time of n bytes of PCM in this format.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// Bytes returns the byte length of d worth of audio, rounded down to a whole
// number of frames so the result never splits a sample.
func (f Format) Bytes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	n := int(int64(f.BytesPerSecond()) * int64(d) / int64(time.Second))
	frame := f.Channels * BytesPerSample
	if frame <= 0 {
		frame = BytesPerSample
	}
	return n - n%frame
}

// StereoToMono downmixes interleaved stereo int16 PCM to mono by averaging
// each L+R pair. Input with an odd number of frames is truncated.
func StereoToMono(pcm []byte) []byte {
	out := make([]byte, 0, len(pcm)/2)
	for i := 0; i+3 < len(pcm); i += 4 {
		l := int16(binary.LittleEndian.Uint16(pcm[i:]))
		r := int16(binary.LittleEndian.Uint16(pcm[i+2:]))
		m := int16((int32(l) + int32(r)) / 2)
		out = binary.LittleEndian.AppendUint16(out, uint16(m))
	}
	return out
}

// ResampleMono16 converts mono int16 PCM between sample rates using
// nearest-sample selection. Quality is sufficient for speech recognition
// input; do not use it for playback material.
func ResampleMono16(pcm []byte, fromRate, toRate int) []byte {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return pcm
	}
	inSamples := len(pcm) / BytesPerSample
	outSamples := int(int64(inSamples) * int64(toRate) / int64(fromRate))
	out := make([]byte, 0, outSamples*BytesPerSample)
	for i := 0; i < outSamples; i++ {
		src := int(int64(i) * int64(fromRate) / int64(toRate))
		if src >= inSamples {
			src = inSamples - 1
		}
		out = append(out, pcm[src*BytesPerSample], pcm[src*BytesPerSample+1])
	}
	return out
}

// RMS returns the root-mean-square energy of int16 PCM in native units
// (0..32767). Silence sits near zero; conversational speech typically
// measures in the low thousands.
func RMS(pcm []byte) float64 {
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i+1 < len(pcm); i += BytesPerSample {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i:])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// ToFloat32Mono converts int16 PCM to normalized float32 samples in [-1, 1],
// downmixing multi-channel input by averaging. whisper.cpp consumes this
// layout directly.
func ToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	frame := channels * BytesPerSample
	frames := len(pcm) / frame
	out := make([]float32, 0, frames)
	for i := 0; i < frames; i++ {
		var acc int32
		for c := 0; c < channels; c++ {
			off := i*frame + c*BytesPerSample
			acc += int32(int16(binary.LittleEndian.Uint16(pcm[off:])))
		}
		out = append(out, float32(acc/int32(channels))/32768.0)
	}
	return out
}
