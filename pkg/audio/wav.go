package audio

import "encoding/binary"

// EncodeWAV wraps raw int16 PCM in a minimal RIFF/WAVE container so it can be
// uploaded to HTTP transcription endpoints that refuse headerless audio.
func EncodeWAV(pcm []byte, f Format) []byte {
	const headerSize = 44
	byteRate := f.BytesPerSecond()
	blockAlign := f.Channels * BytesPerSample

	out := make([]byte, 0, headerSize+len(pcm))
	out = append(out, "RIFF"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(36+len(pcm)))
	out = append(out, "WAVE"...)

	// fmt chunk: PCM, channel count, rates, 16 bits per sample.
	out = append(out, "fmt "...)
	out = binary.LittleEndian.AppendUint32(out, 16)
	out = binary.LittleEndian.AppendUint16(out, 1)
	out = binary.LittleEndian.AppendUint16(out, uint16(f.Channels))
	out = binary.LittleEndian.AppendUint32(out, uint32(f.SampleRate))
	out = binary.LittleEndian.AppendUint32(out, uint32(byteRate))
	out = binary.LittleEndian.AppendUint16(out, uint16(blockAlign))
	out = binary.LittleEndian.AppendUint16(out, 8*BytesPerSample)

	out = append(out, "data"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(pcm)))
	out = append(out, pcm...)
	return out
}
