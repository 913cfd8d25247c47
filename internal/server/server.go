// Package server exposes the HTTP surface of the answer pipeline: the
// event-streamed answer endpoint, the audio trim endpoint, health probes,
// and the Prometheus metrics endpoint.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"

	"github.com/vocanta/vocanta/internal/bus"
	"github.com/vocanta/vocanta/internal/health"
	"github.com/vocanta/vocanta/internal/observe"
	"github.com/vocanta/vocanta/internal/orchestrator"
	"github.com/vocanta/vocanta/pkg/audio"
	"github.com/vocanta/vocanta/pkg/provider/validator"
)

// downloadLimit caps how much audio the trim endpoint will pull from a URL.
const downloadLimit = 32 << 20 // 32 MiB

// targetSampleRate is the pipeline's working audio rate.
const targetSampleRate = 16000

// Server routes HTTP traffic to the pipeline.
type Server struct {
	orch       *orchestrator.Orchestrator
	health     *health.Handler
	metrics    *observe.Metrics
	httpClient *http.Client
}

// Option is a functional option for [New].
type Option func(*Server)

// WithHTTPClient overrides the client used for trim-endpoint downloads.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Server) { s.httpClient = hc }
}

// New creates a Server around the orchestrator.
func New(orch *orchestrator.Orchestrator, h *health.Handler, metrics *observe.Metrics, opts ...Option) *Server {
	s := &Server{
		orch:       orch,
		health:     h,
		metrics:    metrics,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/answer", s.handleAnswer)
	mux.HandleFunc("POST /api/audio/trim", s.handleTrim)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)
	return observe.Middleware(s.metrics)(mux)
}

// answerRequest is the answer endpoint's request body.
type answerRequest struct {
	Transcript  string `json:"transcript"`
	Language    string `json:"language"`
	Base64Audio string `json:"base64_audio,omitempty"`

	OrgID    string `json:"org_id"`
	ConfigID string `json:"config_id"`

	ChatHistory []validator.Turn `json:"chat_history,omitempty"`

	// Keywords non-nil (including empty) skips validation.
	Keywords []string `json:"keywords,omitempty"`

	TranscriptConfidence *float64 `json:"transcript_confidence,omitempty"`

	// GenerateAnswer defaults to true when omitted.
	GenerateAnswer *bool `json:"generate_answer,omitempty"`
}

// handleAnswer runs the answer pipeline and streams its events as SSE.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.OrgID == "" {
		writeError(w, http.StatusBadRequest, "org_id is required")
		return
	}
	if req.Language == "" {
		writeError(w, http.StatusBadRequest, "language is required")
		return
	}
	if req.Transcript == "" && req.Base64Audio == "" {
		writeError(w, http.StatusBadRequest, "transcript or base64_audio is required")
		return
	}

	var utterance []byte
	if req.Base64Audio != "" {
		var err error
		utterance, err = base64.StdEncoding.DecodeString(req.Base64Audio)
		if err != nil {
			writeError(w, http.StatusBadRequest, "base64_audio is not valid base64")
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	generate := true
	if req.GenerateAnswer != nil {
		generate = *req.GenerateAnswer
	}

	ctx := r.Context()
	s.metrics.ActiveStreams.Add(ctx, 1)
	defer s.metrics.ActiveStreams.Add(ctx, -1)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	b := bus.New()
	// The producer must not die with the connection: a dropped client stops
	// the drain below, while the pipeline runs to natural completion under
	// its own watchdog timeout.
	go s.orch.Run(context.WithoutCancel(ctx), orchestrator.Request{
		TenantID:             req.OrgID,
		ConfigID:             req.ConfigID,
		Language:             req.Language,
		Transcript:           req.Transcript,
		Audio:                utterance,
		Keywords:             req.Keywords,
		ChatHistory:          req.ChatHistory,
		TranscriptConfidence: req.TranscriptConfidence,
		GenerateAnswer:       generate,
	}, b)

	for frame := range b.Stream(ctx) {
		if _, err := w.Write(frame); err != nil {
			// Client went away; the producer finishes on its own.
			observe.Logger(ctx).Info("server: answer stream closed early", "error", err)
			return
		}
		flusher.Flush()
	}
}

// trimRequest is the trim endpoint's request body.
type trimRequest struct {
	AudioURL string `json:"audio_url"`

	// SilenceThreshold of 0 uses the default.
	SilenceThreshold float64 `json:"silence_threshold,omitempty"`
}

// trimResponse reports the trim outcome with the trimmed audio inline.
type trimResponse struct {
	Status               string  `json:"status"`
	OriginalSizeBytes    int     `json:"original_size_bytes"`
	TrimmedSizeBytes     int     `json:"trimmed_size_bytes"`
	SizeReductionBytes   int     `json:"size_reduction_bytes"`
	SizeReductionPercent float64 `json:"size_reduction_percent"`
	TrimmedAudioBase64   string  `json:"trimmed_audio_base64"`
	AudioFormat          string  `json:"audio_format"`
}

// handleTrim downloads audio, trims silence, and returns the trimmed WAV.
// Accepts WAV (mono 16-bit, resampled to 16 kHz when needed) or raw PCM.
func (s *Server) handleTrim(w http.ResponseWriter, r *http.Request) {
	var req trimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.AudioURL == "" {
		writeError(w, http.StatusBadRequest, "audio_url is required")
		return
	}
	threshold := req.SilenceThreshold
	if threshold <= 0 {
		threshold = audio.DefaultSilenceThreshold
	}

	data, err := s.download(r, req.AudioURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("download audio: %v", err))
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "downloaded audio is empty")
		return
	}

	pcm := data
	if audio.IsWAV(data) {
		var rate int
		pcm, rate, err = audio.ParseWAV(data)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid wav: %v", err))
			return
		}
		if rate != targetSampleRate {
			pcm = audio.ResampleMono16(pcm, rate, targetSampleRate)
		}
	}
	if len(pcm)%2 != 0 {
		writeError(w, http.StatusBadRequest, "audio is not 16-bit pcm")
		return
	}

	start := time.Now()
	trimmed := audio.TrimSilence(pcm, threshold)
	s.metrics.TrimDuration.Record(r.Context(), time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("endpoint", "trim")))

	wav := audio.WrapPCM(trimmed)
	reduction := len(pcm) - len(trimmed)
	percent := 0.0
	if len(pcm) > 0 {
		percent = float64(reduction) / float64(len(pcm)) * 100
	}

	writeJSON(w, http.StatusOK, trimResponse{
		Status:               "ok",
		OriginalSizeBytes:    len(pcm),
		TrimmedSizeBytes:     len(trimmed),
		SizeReductionBytes:   reduction,
		SizeReductionPercent: percent,
		TrimmedAudioBase64:   base64.StdEncoding.EncodeToString(wav),
		AudioFormat:          "wav",
	})
}

// download fetches the audio behind url, bounded by downloadLimit.
func (s *Server) download(r *http.Request, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, downloadLimit))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
