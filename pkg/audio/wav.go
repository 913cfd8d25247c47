package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const wavHeaderLen = 44

// WrapPCM packages raw 16-bit mono PCM at 16 kHz into a minimal RIFF/WAVE
// container. The header is byte-exact canonical RIFF so that downstream
// players and browsers accept it without probing.
func WrapPCM(pcm []byte) []byte {
	return WrapPCMRate(pcm, SampleRate)
}

// WrapPCMRate is [WrapPCM] with an explicit sample rate.
func WrapPCMRate(pcm []byte, sampleRate int) []byte {
	byteRate := sampleRate * BytesPerSample
	out := make([]byte, wavHeaderLen+len(pcm))

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // audio format: PCM
	binary.LittleEndian.PutUint16(out[22:24], 1)  // channels: mono
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(BytesPerSample)) // block align
	binary.LittleEndian.PutUint16(out[34:36], 16)                     // bits per sample

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[44:], pcm)
	return out
}

// Sentinel errors returned by [ParseWAV].
var (
	ErrNotWAV            = errors.New("audio: not a RIFF/WAVE file")
	ErrUnsupportedFormat = errors.New("audio: unsupported WAV format (need 16-bit mono PCM)")
)

// IsWAV reports whether data starts with a RIFF/WAVE signature.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// ParseWAV extracts the PCM payload and sample rate from a WAV container.
// Only uncompressed 16-bit mono PCM is accepted; anything else returns
// [ErrUnsupportedFormat]. Chunks other than "fmt " and "data" are skipped.
func ParseWAV(data []byte) (pcm []byte, sampleRate int, err error) {
	if !IsWAV(data) {
		return nil, 0, ErrNotWAV
	}

	var (
		haveFmt bool
		rate    int
	)
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			return nil, 0, fmt.Errorf("audio: truncated %q chunk", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, ErrUnsupportedFormat
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			channels := binary.LittleEndian.Uint16(data[body+2 : body+4])
			rate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if format != 1 || channels != 1 || bits != 16 {
				return nil, 0, ErrUnsupportedFormat
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, 0, ErrUnsupportedFormat
			}
			return data[body : body+size], rate, nil
		}

		// Chunks are word-aligned.
		off = body + size
		if size%2 == 1 {
			off++
		}
	}
	return nil, 0, fmt.Errorf("audio: no data chunk found")
}
