// Package audio provides silence trimming and container helpers for the
// 16 kHz / 16-bit / mono PCM audio that flows through the answer pipeline.
//
// All functions operate on little-endian int16 PCM byte slices. The trimming
// routines are pure and never fail: on malformed input they return the input
// unchanged so that a degraded audio path never aborts a request.
package audio

import "math"

// Format constants for the pipeline's canonical audio format.
const (
	SampleRate     = 16000
	BytesPerSample = 2
)

const (
	// edgeFrameSamples is the frame size used for boundary detection.
	edgeFrameSamples = 512

	// midFrameSamples is the finer frame size used for mid-silence scanning.
	midFrameSamples = 256

	// minTrimBytes is the short-circuit threshold (~0.25 s at 16 kHz).
	minTrimBytes = 8000

	// DefaultSilenceThreshold is the fraction of the peak frame RMS below
	// which a frame counts as silent.
	DefaultSilenceThreshold = 0.05

	// edgePaddingSamples keeps 2 ms of audio on each refined boundary.
	edgePaddingSamples = SampleRate * 2 / 1000

	// maxSilenceSamples is the longest mid-phrase silent run kept verbatim (300 ms).
	maxSilenceSamples = SampleRate * 300 / 1000

	// keepSilenceSamples is what a long silent run is shrunk to (50 ms).
	keepSilenceSamples = SampleRate * 50 / 1000
)

// TrimSilence removes leading and trailing silence from pcm and shrinks
// mid-phrase silent runs longer than 300 ms down to 50 ms.
//
// pcm must be little-endian int16 mono samples at 16 kHz. threshold is the
// fraction of the peak frame RMS treated as the silence floor; values <= 0
// select [DefaultSilenceThreshold].
//
// Inputs shorter than ~0.25 s are returned unchanged, as is any input where
// no frame rises above the silence floor.
func TrimSilence(pcm []byte, threshold float64) []byte {
	if len(pcm) < minTrimBytes || len(pcm)%BytesPerSample != 0 {
		return pcm
	}
	if threshold <= 0 {
		threshold = DefaultSilenceThreshold
	}

	samples := decodeSamples(pcm)

	rms := frameRMS(samples, edgeFrameSamples)
	peak := 0.0
	for _, r := range rms {
		if r > peak {
			peak = r
		}
	}
	if peak == 0 {
		return pcm
	}
	floor := peak * threshold

	firstFrame, lastFrame := -1, -1
	for i, r := range rms {
		if r > floor {
			if firstFrame < 0 {
				firstFrame = i
			}
			lastFrame = i
		}
	}
	if firstFrame < 0 {
		return pcm
	}

	start := refineStart(samples, firstFrame*edgeFrameSamples, floor)
	end := refineEnd(samples, min((lastFrame+1)*edgeFrameSamples, len(samples)), floor)
	if start >= end {
		return pcm
	}

	trimmed := shrinkMidSilence(samples[start:end], floor)
	return encodeSamples(trimmed)
}

// decodeSamples converts little-endian int16 PCM bytes to normalized float64
// samples in [-1, 1).
func decodeSamples(pcm []byte) []float64 {
	samples := make([]float64, len(pcm)/BytesPerSample)
	for i := range samples {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		samples[i] = float64(s) / 32768
	}
	return samples
}

// encodeSamples converts normalized samples back to little-endian int16 PCM,
// clamping to the int16 range.
func encodeSamples(samples []float64) []byte {
	pcm := make([]byte, len(samples)*BytesPerSample)
	for i, f := range samples {
		v := f * 32768
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		s := int16(v)
		pcm[i*2] = byte(s)
		pcm[i*2+1] = byte(s >> 8)
	}
	return pcm
}

// frameRMS computes the RMS of each non-overlapping frame of frameLen samples.
// A trailing partial frame is included.
func frameRMS(samples []float64, frameLen int) []float64 {
	n := (len(samples) + frameLen - 1) / frameLen
	rms := make([]float64, 0, n)
	for off := 0; off < len(samples); off += frameLen {
		frame := samples[off:min(off+frameLen, len(samples))]
		sum := 0.0
		for _, s := range frame {
			sum += s * s
		}
		rms = append(rms, math.Sqrt(sum/float64(len(frame))))
	}
	return rms
}

// refineStart scans forward from the coarse frame boundary for the first
// sample above 0.3 of the silence floor, then backs off by the edge padding.
func refineStart(samples []float64, coarse int, floor float64) int {
	gate := floor * 0.3
	for i := coarse; i < len(samples); i++ {
		if math.Abs(samples[i]) > gate {
			return max(i-edgePaddingSamples, 0)
		}
	}
	return max(coarse-edgePaddingSamples, 0)
}

// refineEnd scans backward from the coarse frame boundary for the last sample
// above 0.3 of the silence floor, then extends by the edge padding.
func refineEnd(samples []float64, coarse int, floor float64) int {
	gate := floor * 0.3
	for i := coarse - 1; i >= 0; i-- {
		if math.Abs(samples[i]) > gate {
			return min(i+1+edgePaddingSamples, len(samples))
		}
	}
	return min(coarse+edgePaddingSamples, len(samples))
}

// shrinkMidSilence replaces every silent run longer than 300 ms with 50 ms of
// zeros. Runs at or below the limit are preserved verbatim. Silence is judged
// per 256-sample frame against the same floor as boundary trimming.
func shrinkMidSilence(samples []float64, floor float64) []float64 {
	rms := frameRMS(samples, midFrameSamples)

	out := make([]float64, 0, len(samples))
	runStart := -1 // frame index where the current silent run began

	flushRun := func(endFrame int) {
		if runStart < 0 {
			return
		}
		startSample := runStart * midFrameSamples
		endSample := min(endFrame*midFrameSamples, len(samples))
		if endSample-startSample > maxSilenceSamples {
			out = append(out, make([]float64, keepSilenceSamples)...)
		} else {
			out = append(out, samples[startSample:endSample]...)
		}
		runStart = -1
	}

	for i, r := range rms {
		if r <= floor {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		flushRun(i)
		startSample := i * midFrameSamples
		out = append(out, samples[startSample:min(startSample+midFrameSamples, len(samples))]...)
	}
	flushRun(len(rms))
	return out
}
