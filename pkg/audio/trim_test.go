package audio

import (
	"bytes"
	"math"
	"testing"
)

// tone produces n samples of a constant-amplitude square-ish tone encoded as
// little-endian int16 PCM. amp is in [0, 1).
func tone(n int, amp float64) []byte {
	pcm := make([]byte, n*2)
	v := int16(amp * 32767)
	for i := range n {
		s := v
		if i%2 == 1 {
			s = -v
		}
		pcm[i*2] = byte(s)
		pcm[i*2+1] = byte(s >> 8)
	}
	return pcm
}

func silence(n int) []byte {
	return make([]byte, n*2)
}

func TestTrimSilenceShortInputUnchanged(t *testing.T) {
	in := tone(1000, 0.5) // 2000 bytes, below the 8000-byte floor
	got := TrimSilence(in, 0)
	if !bytes.Equal(got, in) {
		t.Fatalf("short input was modified: %d -> %d bytes", len(in), len(got))
	}
}

func TestTrimSilenceAllSilentUnchanged(t *testing.T) {
	in := silence(SampleRate) // 1 s of zeros
	got := TrimSilence(in, 0)
	if !bytes.Equal(got, in) {
		t.Fatal("all-silent input was modified")
	}
}

func TestTrimSilenceRemovesEdges(t *testing.T) {
	lead := silence(SampleRate / 2)  // 500 ms
	body := tone(SampleRate, 0.5)    // 1 s
	trail := silence(SampleRate / 2) // 500 ms
	in := append(append(append([]byte{}, lead...), body...), trail...)

	got := TrimSilence(in, 0)
	if len(got) >= len(in) {
		t.Fatalf("expected shorter output, got %d >= %d bytes", len(got), len(in))
	}
	// The kept region must be at least the body minus one frame on each side,
	// plus at most padding on each side.
	minLen := len(body) - 2*edgeFrameSamples*BytesPerSample
	maxLen := len(body) + 2*(edgePaddingSamples+edgeFrameSamples)*BytesPerSample
	if len(got) < minLen || len(got) > maxLen {
		t.Fatalf("trimmed length %d outside [%d, %d]", len(got), minLen, maxLen)
	}
}

func TestTrimSilenceShrinksLongMidGap(t *testing.T) {
	body := tone(SampleRate/2, 0.5) // 500 ms tone
	gap := silence(SampleRate)      // 1 s mid silence, above the 300 ms limit
	in := append(append(append([]byte{}, body...), gap...), body...)

	got := TrimSilence(in, 0)

	// Expect roughly: body + 50 ms + body.
	want := 2*len(body) + keepSilenceSamples*BytesPerSample
	tolerance := 2 * (edgePaddingSamples + midFrameSamples) * BytesPerSample
	if got := len(got); got < want-tolerance || got > want+tolerance {
		t.Fatalf("mid-gap output %d bytes, want ~%d", got, want)
	}
}

func TestTrimSilenceKeepsShortMidGap(t *testing.T) {
	body := tone(SampleRate/2, 0.5)
	gap := silence(SampleRate / 5) // 200 ms, below the 300 ms limit
	in := append(append(append([]byte{}, body...), gap...), body...)

	got := TrimSilence(in, 0)

	want := 2*len(body) + len(gap)
	tolerance := 2 * (edgePaddingSamples + midFrameSamples) * BytesPerSample
	if got := len(got); got < want-tolerance || got > want+tolerance {
		t.Fatalf("short-gap output %d bytes, want ~%d", got, want)
	}
}

func TestTrimSilenceIdempotent(t *testing.T) {
	lead := silence(SampleRate / 4)
	body := tone(2*SampleRate, 0.6)
	in := append(append(append([]byte{}, lead...), body...), lead...)

	once := TrimSilence(in, 0)
	if len(once) < minTrimBytes {
		t.Fatalf("test signal too short after first trim: %d bytes", len(once))
	}
	twice := TrimSilence(once, 0)
	if !bytes.Equal(once, twice) {
		t.Fatalf("second trim changed output: %d -> %d bytes", len(once), len(twice))
	}
}

func TestTrimSilenceOddLengthUnchanged(t *testing.T) {
	in := append(tone(8000, 0.5), 0x01) // odd byte count
	got := TrimSilence(in, 0)
	if !bytes.Equal(got, in) {
		t.Fatal("odd-length input was modified")
	}
}

func TestFrameRMS(t *testing.T) {
	samples := make([]float64, edgeFrameSamples*2)
	for i := range edgeFrameSamples {
		samples[edgeFrameSamples+i] = 0.5
	}
	rms := frameRMS(samples, edgeFrameSamples)
	if len(rms) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(rms))
	}
	if rms[0] != 0 {
		t.Errorf("silent frame RMS = %v, want 0", rms[0])
	}
	if math.Abs(rms[1]-0.5) > 1e-9 {
		t.Errorf("constant frame RMS = %v, want 0.5", rms[1])
	}
}
