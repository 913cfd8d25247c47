// Package orchestrator drives the answer pipeline for one request: tenant
// config, optional audio trim, validation, knowledge search, streamed answer
// generation, and speech synthesis, all published to the per-request event
// bus.
//
// The orchestrator runs synchronously in one goroutine per request; the HTTP
// handler drains the bus concurrently. TTS failures degrade the pipeline to
// text-only, while config, validator, search, and generator failures abort
// with an error event.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/vocanta/vocanta/internal/assets"
	"github.com/vocanta/vocanta/internal/bus"
	"github.com/vocanta/vocanta/internal/observe"
	"github.com/vocanta/vocanta/internal/parser"
	"github.com/vocanta/vocanta/internal/resilience"
	"github.com/vocanta/vocanta/internal/tenant"
	"github.com/vocanta/vocanta/internal/ttsstream"
	"github.com/vocanta/vocanta/pkg/audio"
	"github.com/vocanta/vocanta/pkg/blobcache"
	"github.com/vocanta/vocanta/pkg/kmsearch"
	"github.com/vocanta/vocanta/pkg/provider/generator"
	"github.com/vocanta/vocanta/pkg/provider/generator/groq"
	genopenai "github.com/vocanta/vocanta/pkg/provider/generator/openai"
	"github.com/vocanta/vocanta/pkg/provider/tts"
	"github.com/vocanta/vocanta/pkg/provider/tts/azure"
	"github.com/vocanta/vocanta/pkg/provider/tts/ssml"
	"github.com/vocanta/vocanta/pkg/provider/validator"
	"github.com/vocanta/vocanta/pkg/provider/validator/gemini"
)

// Completion registry component names.
const (
	componentTextGeneration = "text_generation"
	componentTTS            = "tts_processing"
)

// transcriptUnavailable replaces a transcript whose confidence falls below
// the tenant's gate, telling the validator to work from audio alone.
const transcriptUnavailable = "<transcript not available>"

// promptContextLimit caps how many search hits are interpolated into the
// generator's system prompt.
const promptContextLimit = 5

// DefaultTimeout is the hard watchdog on one pipeline run.
const DefaultTimeout = 300 * time.Second

// Validator prompt template placeholders.
const (
	transcriptPlaceholder = "{transcript}"
	historyPlaceholder    = "{chat_history}"
)

// builtinProcessingPrompts fills dead air for tenants that configure no
// processing pool, keyed by primary language subtag.
var builtinProcessingPrompts = map[string][]string{
	"en": {"One moment please.", "Let me check that for you."},
	"th": {"รอสักครู่นะคะ", "กำลังค้นหาข้อมูลให้ค่ะ"},
}

// Request is one immutable answer request.
type Request struct {
	TenantID string
	ConfigID string
	Language string

	// Transcript is the client-side speech recognition text.
	Transcript string

	// Audio is the decoded utterance, WAV or raw 16 kHz PCM. Optional.
	Audio []byte

	// Keywords, when non-nil, skip the validator entirely; the transcript is
	// taken as the corrected question.
	Keywords []string

	ChatHistory []validator.Turn

	// TranscriptConfidence gates low-confidence transcripts when the tenant
	// configures a threshold. Nil means unknown.
	TranscriptConfidence *float64

	// GenerateAnswer false stops the pipeline after the knowledge search.
	GenerateAnswer bool
}

// ConfigSource resolves tenant configuration.
type ConfigSource interface {
	Config(ctx context.Context, tenantID, configID string) (*tenant.Config, error)
}

// TextFetcher resolves prompt template URLs to their text. Satisfied by the
// cached fetch client.
type TextFetcher interface {
	Text(ctx context.Context, url string) (string, error)
}

// Deps wires the orchestrator's collaborators. Factory fields are optional;
// nil selects the production backend.
type Deps struct {
	Tenants  ConfigSource
	Fetcher  TextFetcher
	Search   kmsearch.Searcher
	Patterns *ssml.PatternCache

	// AudioCache is the shared TTS audio cache. Optional.
	AudioCache *blobcache.Cache

	Metrics *observe.Metrics

	// AzureRegion is the cloud-TTS region shared by all tenants.
	AzureRegion string

	// KMResultLimit truncates merged search results. 0 keeps everything.
	KMResultLimit int

	// Timeout is the pipeline watchdog. 0 means [DefaultTimeout].
	Timeout time.Duration

	// NewValidator, NewGenerator, and NewTTS build per-tenant providers.
	// Overridden in tests.
	NewValidator func(cfg *tenant.Config) (validator.Provider, error)
	NewGenerator func(cfg *tenant.Config, model string) (generator.Provider, error)
	NewTTS       func(cfg *tenant.Config) (tts.Provider, error)
}

// Orchestrator runs answer pipelines. Safe for concurrent use; all
// per-request state lives on the stack of [Orchestrator.Run].
type Orchestrator struct {
	deps Deps

	// ttsBreaker is shared by every per-request speech provider, so a down
	// speech backend trips once instead of once per session.
	ttsBreaker *resilience.CircuitBreaker

	now func() time.Time
}

// New creates an Orchestrator, filling in production provider factories for
// any left nil in deps.
func New(deps Deps) *Orchestrator {
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultTimeout
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	if deps.NewValidator == nil {
		deps.NewValidator = func(cfg *tenant.Config) (validator.Provider, error) {
			var opts []gemini.Option
			if cfg.Validator.Model != "" {
				opts = append(opts, gemini.WithModel(cfg.Validator.Model))
			}
			return gemini.New(cfg.Validator.Key, opts...)
		}
	}
	if deps.NewGenerator == nil {
		deps.NewGenerator = func(cfg *tenant.Config, model string) (generator.Provider, error) {
			backend, name := generator.ParseModel(model)
			if backend == generator.BackendGroq {
				return groq.New(cfg.Groq.APIKey, name)
			}
			return genopenai.New(cfg.OpenAI.APIKey, name)
		}
	}
	if deps.NewTTS == nil {
		region := deps.AzureRegion
		deps.NewTTS = func(cfg *tenant.Config) (tts.Provider, error) {
			return azure.New(cfg.TTS.Azure.SubscriptionKey, region)
		}
	}
	return &Orchestrator{
		deps:       deps,
		ttsBreaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "tts"}),
		now:        time.Now,
	}
}

// Run executes the pipeline for req, publishing every client event to b. It
// returns when the pipeline finishes or fails; the caller drains b
// concurrently.
func (o *Orchestrator) Run(ctx context.Context, req Request, b *bus.Bus) {
	ctx, cancel := context.WithTimeout(ctx, o.deps.Timeout)
	defer cancel()

	log := observe.Logger(ctx).With("tenant", req.TenantID, "config", req.ConfigID)

	b.SendStatus(bus.StatusStarting, "")

	cfg, err := o.deps.Tenants.Config(ctx, req.TenantID, req.ConfigID)
	if err != nil {
		o.fail(ctx, b, log, "load tenant config", err)
		return
	}
	loc, err := cfg.LocalizationFor(req.Language)
	if err != nil {
		o.fail(ctx, b, log, "resolve localization", err)
		return
	}

	utterance := req.Audio
	if cfg.Audio.AutoTrimSilent && len(utterance) > 0 {
		utterance = o.trimUtterance(ctx, utterance)
	}

	b.RegisterComponent(componentTextGeneration)
	streamer := o.newStreamer(b, cfg, req.Language)
	if streamer != nil {
		b.RegisterComponent(componentTTS)
	}

	result, err := o.validate(ctx, b, streamer, cfg, loc, req, utterance)
	if err != nil {
		o.fail(ctx, b, log, "validate", err)
		return
	}

	docs, err := o.search(ctx, b, cfg, loc, result)
	if err != nil {
		o.fail(ctx, b, log, "knowledge search", err)
		return
	}

	if !req.GenerateAnswer {
		b.SendStatus(bus.StatusComplete, "")
		b.MarkAllComplete()
		o.deps.Metrics.RecordSession(ctx, "km_only")
		return
	}

	if err := o.generate(ctx, b, streamer, cfg, result, docs, req.ChatHistory); err != nil {
		o.fail(ctx, b, log, "generate answer", err)
		return
	}

	if streamer != nil {
		streamer.Flush(ctx)
		b.MarkComponentComplete(componentTTS)
	}
	b.SendStatus(bus.StatusComplete, "")
	b.MarkComponentComplete(componentTextGeneration)
	o.deps.Metrics.RecordSession(ctx, "complete")
}

// validate resolves the corrected question and search keywords: pre-supplied
// keywords skip the validator, otherwise the external validator runs against
// the (possibly confidence-gated) transcript plus utterance audio.
func (o *Orchestrator) validate(ctx context.Context, b *bus.Bus, streamer *ttsstream.Streamer,
	cfg *tenant.Config, loc *tenant.Localization, req Request, utterance []byte) (*validator.Result, error) {

	if req.Keywords != nil {
		result := &validator.Result{
			Correction:  req.Transcript,
			ChatHistory: req.ChatHistory,
			Keywords:    req.Keywords,
		}
		b.Send(bus.EventValidationResult, map[string]any{
			"correction": result.Correction,
			"keywords":   result.Keywords,
		})
		return result, nil
	}

	b.SendStatus(bus.StatusValidating, "")
	if streamer != nil {
		if prompt := o.processingPrompt(cfg, req.Language); prompt != "" {
			streamer.Say(ctx, prompt)
		}
	}

	transcript := req.Transcript
	if threshold, ok := cfg.ConfidenceThreshold(loc); ok &&
		req.TranscriptConfidence != nil && *req.TranscriptConfidence < threshold {
		transcript = transcriptUnavailable
	}

	systemURL, transcriptURL := cfg.ValidatorPromptURLs(loc)
	systemPrompt, err := o.deps.Fetcher.Text(ctx, systemURL)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: fetch validator system prompt: %w", err)
	}
	userTemplate, err := o.deps.Fetcher.Text(ctx, transcriptURL)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: fetch validator transcript prompt: %w", err)
	}

	provider, err := o.deps.NewValidator(cfg)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build validator: %w", err)
	}

	start := o.now()
	result, err := provider.Validate(ctx, validator.Request{
		AudioWAV:     asWAV(utterance),
		SystemPrompt: systemPrompt,
		UserPrompt:   renderValidatorPrompt(userTemplate, transcript, req.ChatHistory),
	})
	o.deps.Metrics.ValidatorDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		o.deps.Metrics.RecordProviderError(ctx, "gemini", "validator")
		return nil, err
	}
	o.deps.Metrics.RecordProviderRequest(ctx, "gemini", "validator", "ok")

	b.Send(bus.EventValidationResult, map[string]any{
		"correction": result.Correction,
		"keywords":   result.Keywords,
	})
	b.PlayAudio(assets.Checkpoint(), "wav")
	return result, nil
}

// search fans out the corrected question and every keyword, merges the hits,
// and publishes the km_result event.
func (o *Orchestrator) search(ctx context.Context, b *bus.Bus, cfg *tenant.Config,
	loc *tenant.Localization, result *validator.Result) ([]kmsearch.Item, error) {

	b.SendStatus(bus.StatusSearchingKM, "")

	kmID, err := strconv.Atoi(cfg.KMID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: tenant km id %q: %w", cfg.KMID, err)
	}
	queries := append([]string{result.Correction}, result.Keywords...)

	start := o.now()
	docs, err := kmsearch.FanOut(ctx, o.deps.Search, kmsearch.Query{
		KnowledgeID:  kmID,
		Language:     loc.Language,
		AssistantKey: loc.AssistantKey,
	}, queries, o.deps.KMResultLimit)
	o.deps.Metrics.SearchDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		o.deps.Metrics.RecordProviderError(ctx, "km", "search")
		return nil, err
	}
	o.deps.Metrics.RecordProviderRequest(ctx, "km", "search", "ok")

	// Direct answers only exist per query; after the fan-out merge everything
	// lands in data, so answers is always empty here.
	b.Send(bus.EventKMResult, map[string]any{
		"total":   len(docs),
		"source":  "km",
		"answers": []any{},
		"data":    docs,
	})
	return docs, nil
}

// generate streams the answer model through the response parser, routing
// regions to the bus and the TTS streamer.
func (o *Orchestrator) generate(ctx context.Context, b *bus.Bus, streamer *ttsstream.Streamer,
	cfg *tenant.Config, result *validator.Result, docs []kmsearch.Item,
	history []validator.Turn) error {

	b.SendStatus(bus.StatusGeneratingAnswer, "")

	systemPrompts, userPrompt, err := o.buildPrompts(ctx, cfg, result, docs, history)
	if err != nil {
		return err
	}

	model := cfg.GeneratorModel()
	provider, err := o.deps.NewGenerator(cfg, model)
	if err != nil {
		return fmt.Errorf("orchestrator: build generator %q: %w", model, err)
	}

	var p *parser.Parser
	p = parser.New(parser.Sinks{
		Thinking: func(content string) {
			b.Send(bus.EventThinking, map[string]any{"content": content})
		},
		Answer: func(content string) {
			b.Send(bus.EventAnswerChunk, map[string]any{"content": content})
			// Formatted responses voice Section A separately; unformatted
			// answers are spoken as they stream.
			if streamer != nil && !p.Formatted() {
				streamer.Feed(ctx, content)
			}
		},
		Voice: func(content string) {
			if streamer != nil {
				streamer.Feed(ctx, content)
			}
		},
		Metadata: func(raw string) {
			o.emitMetadata(b, raw, docs)
		},
		SessionEnd: func() {
			b.SendStatus(bus.StatusSessionEnded, "")
		},
	})

	start := o.now()
	chunks, err := provider.Stream(ctx, generator.Request{
		SystemPrompts: systemPrompts,
		UserPrompt:    userPrompt,
	})
	if err != nil {
		o.deps.Metrics.RecordProviderError(ctx, model, "generator")
		return fmt.Errorf("orchestrator: start generation: %w", err)
	}

	var streamErr error
	for chunk := range chunks {
		if chunk.FinishReason == "error" {
			streamErr = fmt.Errorf("orchestrator: generation stream: %s", chunk.Text)
			continue // drain the channel
		}
		if chunk.Text != "" {
			p.Feed(chunk.Text)
		}
	}
	o.deps.Metrics.GeneratorDuration.Record(ctx, time.Since(start).Seconds())
	if streamErr != nil {
		o.deps.Metrics.RecordProviderError(ctx, model, "generator")
		return streamErr
	}
	o.deps.Metrics.RecordProviderRequest(ctx, model, "generator", "ok")

	p.Finalize()
	return nil
}

// buildPrompts resolves and renders the generator prompt templates.
func (o *Orchestrator) buildPrompts(ctx context.Context, cfg *tenant.Config,
	result *validator.Result, docs []kmsearch.Item,
	history []validator.Turn) (systemPrompts []string, userPrompt string, err error) {

	contextDocs := docs
	if len(contextDocs) > promptContextLimit {
		contextDocs = contextDocs[:promptContextLimit]
	}

	systemTemplate, err := o.deps.Fetcher.Text(ctx, cfg.Generator.SystemPromptTemplateURL)
	if err != nil {
		return nil, "", fmt.Errorf("orchestrator: fetch generator system prompt: %w", err)
	}
	systemPrompts = []string{generator.RenderSystemPrompt(systemTemplate, contextDocs, o.now())}

	if cfg.Generator.FormatTextPromptURL != "" {
		formatPrompt, err := o.deps.Fetcher.Text(ctx, cfg.Generator.FormatTextPromptURL)
		if err != nil {
			return nil, "", fmt.Errorf("orchestrator: fetch format prompt: %w", err)
		}
		systemPrompts = append(systemPrompts, formatPrompt)
	}

	userTemplate := ""
	if cfg.Generator.UserPromptTemplateURL != "" {
		userTemplate, err = o.deps.Fetcher.Text(ctx, cfg.Generator.UserPromptTemplateURL)
		if err != nil {
			return nil, "", fmt.Errorf("orchestrator: fetch generator user prompt: %w", err)
		}
	}
	userPrompt = generator.RenderUserPrompt(userTemplate, result.Correction)
	if len(history) > 0 {
		userPrompt = "Previous conversation:\n" + generator.FormatHistory(history) + "\n\n" + userPrompt
	}
	return systemPrompts, userPrompt, nil
}

// emitMetadata finalizes the parser's raw metadata buffer into a structured
// metadata event: declared doc-ids first, then ids recognized in the raw
// text, then a raw fallback. Ids absent from the search results are dropped,
// never fabricated.
func (o *Orchestrator) emitMetadata(b *bus.Bus, raw string, docs []kmsearch.Item) {
	ids := parseDocIDs(raw)
	if len(ids) == 0 {
		ids = knownIDsIn(raw, docs)
	}
	if len(ids) == 0 {
		b.Send(bus.EventMetadata, map[string]any{"raw": raw})
		return
	}
	b.Send(bus.EventMetadata, map[string]any{"items": kmsearch.Join(ids, docs)})
}

// parseDocIDs extracts the comma-separated doc-ids from the first JSON object
// in the metadata buffer.
func parseDocIDs(raw string) []string {
	start := strings.Index(raw, "{")
	if start < 0 {
		return nil
	}
	end := strings.Index(raw[start:], "}")
	if end < 0 {
		return nil
	}
	var payload struct {
		DocIDs string `json:"doc-ids"`
	}
	if err := json.Unmarshal([]byte(raw[start:start+end+1]), &payload); err != nil {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(payload.DocIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// knownIDsIn recovers document references from an unparseable metadata buffer
// by scanning for public ids that appeared in this session's search results.
func knownIDsIn(raw string, docs []kmsearch.Item) []string {
	var ids []string
	for _, it := range docs {
		if id := it.Document.PublicID; id != "" && strings.Contains(raw, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// newStreamer builds the per-request TTS streamer. Any failure degrades the
// pipeline to text-only.
func (o *Orchestrator) newStreamer(b *bus.Bus, cfg *tenant.Config, language string) *ttsstream.Streamer {
	voice, ok := cfg.VoiceFor(language)
	if !ok {
		slog.Info("orchestrator: no voice configured, answering text-only", "language", language)
		return nil
	}
	provider, err := o.deps.NewTTS(cfg)
	if err != nil {
		slog.Warn("orchestrator: tts init failed, answering text-only", "error", err)
		return nil
	}
	provider = resilience.WrapSynth(provider, o.ttsBreaker)

	var opts []tts.SynthOption
	if o.deps.AudioCache != nil {
		opts = append(opts, tts.WithCache(o.deps.AudioCache))
	}
	synth := tts.NewSynthesizer(provider, o.deps.Patterns, opts...)

	return ttsstream.New(synth, b, ttsstream.Config{
		Voice: tts.Voice{
			Language:   voice.Language,
			Name:       voice.Name,
			Pitch:      voice.Pitch,
			Rate:       voice.Rate,
			PhonemeURL: voice.PhonemeURL,
		},
		GlobalPhonemeURL: cfg.TTS.Azure.PhonemeURL,
		LexiconURL:       cfg.TTS.Azure.LexiconURL,
		Trim:             true,
	})
}

// processingPrompt picks a random "please wait" utterance for the language.
func (o *Orchestrator) processingPrompt(cfg *tenant.Config, language string) string {
	pool := cfg.ProcessingPrompts(language)
	if len(pool) == 0 {
		pool = builtinProcessingPrompts[primarySubtag(language)]
	}
	if len(pool) == 0 {
		return ""
	}
	return pool[rand.Intn(len(pool))]
}

// trimUtterance trims silence from the request audio, accepting WAV or raw
// PCM and preserving the container. Trim failures keep the original bytes.
func (o *Orchestrator) trimUtterance(ctx context.Context, data []byte) []byte {
	start := o.now()
	defer func() {
		o.deps.Metrics.TrimDuration.Record(ctx, time.Since(start).Seconds())
	}()

	if audio.IsWAV(data) {
		pcm, rate, err := audio.ParseWAV(data)
		if err != nil {
			return data
		}
		return audio.WrapPCMRate(audio.TrimSilence(pcm, audio.DefaultSilenceThreshold), rate)
	}
	return audio.TrimSilence(data, audio.DefaultSilenceThreshold)
}

// fail aborts the pipeline: error status plus error event, then every
// component force-completed so the consumer's stream terminates.
func (o *Orchestrator) fail(ctx context.Context, b *bus.Bus, log *slog.Logger, stage string, err error) {
	log.Error("orchestrator: pipeline failed", "stage", stage, "error", err)
	b.SendStatus(bus.StatusError, stage+" failed")
	b.SendError(fmt.Sprintf("%s: %v", stage, err))
	b.MarkAllComplete()
	o.deps.Metrics.RecordSession(ctx, "error")
}

// renderValidatorPrompt fills the transcript prompt template. Templates
// without the transcript placeholder get it appended so the utterance is
// never lost.
func renderValidatorPrompt(template, transcript string, history []validator.Turn) string {
	out := template
	if strings.Contains(out, historyPlaceholder) {
		out = strings.ReplaceAll(out, historyPlaceholder, generator.FormatHistory(history))
	}
	if !strings.Contains(out, transcriptPlaceholder) {
		if out == "" {
			return transcript
		}
		return out + "\n\n" + transcript
	}
	return strings.ReplaceAll(out, transcriptPlaceholder, transcript)
}

// asWAV ensures the validator receives a WAV container.
func asWAV(data []byte) []byte {
	if len(data) == 0 || audio.IsWAV(data) {
		return data
	}
	return audio.WrapPCM(data)
}

// primarySubtag returns the language-family part of a BCP-47 tag.
func primarySubtag(language string) string {
	if i := strings.IndexAny(language, "-_"); i >= 0 {
		return strings.ToLower(language[:i])
	}
	return strings.ToLower(language)
}
