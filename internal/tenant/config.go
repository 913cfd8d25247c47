// Package tenant loads and caches per-tenant pipeline configuration.
//
// A tenant record lives in DynamoDB keyed by tenant id; its configValue field
// holds a JSON array of configurations, one per config id. Records are cached
// process-wide with the same 15-minute TTL / 3-minute early-refresh policy as
// the URL-text cache, so the request hot path rarely touches DynamoDB.
package tenant

import (
	"errors"
	"fmt"
	"strings"
)

// Errors surfaced by config lookup.
var (
	ErrTenantNotFound = errors.New("tenant: tenant record not found")
	ErrConfigNotFound = errors.New("tenant: config id not found in tenant record")
)

// Localization is one language's assistant binding and validator overrides.
type Localization struct {
	DisplayName string `json:"displayName"`
	Language    string `json:"language"`

	// AssistantID and AssistantKey authenticate knowledge search for this
	// language.
	AssistantID  string `json:"assistantId"`
	AssistantKey string `json:"assistantKey"`

	// Per-language validator prompt overrides; empty falls back to the
	// tenant-level validator URLs.
	ValidatorTranscriptPromptTemplateURL string `json:"validatorTranscriptPromptTemplateUrl,omitempty"`
	ValidatorSystemPromptTemplateURL     string `json:"validatorSystemPromptTemplateUrl,omitempty"`

	// TranscriptConfidenceThreshold gates low-confidence transcripts before
	// validation. Nil means no per-language threshold.
	TranscriptConfidenceThreshold *float64 `json:"transcriptConfidenceThreshold,omitempty"`
}

// ValidatorConfig is the tenant-level validator (Gemini-style) setup.
type ValidatorConfig struct {
	Key     string `json:"key"`
	Enabled bool   `json:"validatorEnabled"`
	Model   string `json:"model,omitempty"`

	TranscriptPromptTemplateURL string `json:"validatorTranscriptPromptTemplateUrl,omitempty"`
	SystemPromptTemplateURL     string `json:"validatorSystemPromptTemplateUrl,omitempty"`

	// TranscriptConfidenceThreshold is the tenant-wide default gate; a
	// localization-level threshold wins when present.
	TranscriptConfidenceThreshold *float64 `json:"transcriptConfidenceThreshold,omitempty"`
}

// OpenAIConfig carries the generator API key.
type OpenAIConfig struct {
	APIKey string `json:"apiKey"`
}

// GroqConfig carries the alternate-provider API key used for "groq/" models.
type GroqConfig struct {
	APIKey string `json:"apiKey"`
}

// GeneratorConfig selects the answer model and its prompt templates.
type GeneratorConfig struct {
	Model                   string `json:"model,omitempty"`
	SystemPromptTemplateURL string `json:"generatorSystemPromptTemplateUrl,omitempty"`
	UserPromptTemplateURL   string `json:"generatorUserPromptTemplateUrl,omitempty"`

	// FormatTextPromptURL, when set, selects the formatted (sectioned)
	// response shape with a single combined system message.
	FormatTextPromptURL string `json:"generatorFormatTextPromptUrl,omitempty"`
}

// DefaultGeneratorModel is used when a tenant does not pin a model.
const DefaultGeneratorModel = "gpt-4.1-mini"

// VoiceModel is one language's cloud-TTS voice.
type VoiceModel struct {
	Language   string `json:"language"`
	Name       string `json:"name"`
	Pitch      string `json:"pitch,omitempty"`
	Rate       string `json:"rate,omitempty"`
	PhonemeURL string `json:"phonemeUrl,omitempty"`
}

// AzureTTSConfig is the cloud-TTS binding for a tenant.
type AzureTTSConfig struct {
	SubscriptionKey string       `json:"subscriptionKey"`
	LexiconURL      string       `json:"lexiconURL,omitempty"`
	PhonemeURL      string       `json:"phonemeUrl,omitempty"`
	Models          []VoiceModel `json:"models,omitempty"`
}

// TTSConfig wraps the provider-specific TTS configuration.
type TTSConfig struct {
	Azure AzureTTSConfig `json:"azure"`
}

// AudioConfig is the tenant's audio-handling policy.
type AudioConfig struct {
	AutoTrimSilent bool `json:"autoTrimSilent"`
}

// AvatarResources carries the avatar-level processing prompt pools.
type AvatarResources struct {
	// Processing maps a language code to "please wait" utterances voiced
	// while validation runs.
	Processing map[string][]string `json:"processing,omitempty"`
}

// Resources groups presentation assets the core consumes.
type Resources struct {
	Avatar AvatarResources `json:"avatar,omitempty"`
}

// ProcessingState is the fallback processing prompt pool.
type ProcessingState struct {
	Message map[string][]string `json:"message,omitempty"`
}

// State groups per-stage client state the core consumes.
type State struct {
	Processing ProcessingState `json:"processing,omitempty"`
}

// Config is one tenant configuration as stored in the tenant record.
type Config struct {
	ConfigID    string `json:"configId"`
	KMID        string `json:"kmId"`
	DisplayName string `json:"displayName,omitempty"`

	DefaultPrimaryLanguage string `json:"defaultPrimaryLanguage"`

	Localization []Localization  `json:"localization"`
	Validator    ValidatorConfig `json:"gemini"`
	OpenAI       OpenAIConfig    `json:"openai"`
	Groq         GroqConfig      `json:"groq,omitempty"`
	Generator    GeneratorConfig `json:"generator"`
	TTS          TTSConfig       `json:"tts"`
	Audio        AudioConfig     `json:"audio,omitempty"`
	Resources    Resources       `json:"resources,omitempty"`
	State        State           `json:"state,omitempty"`
}

// LocalizationFor returns the localization matching language exactly, falling
// back to the tenant's default primary language. An error means the tenant is
// not usable for this request.
func (c *Config) LocalizationFor(language string) (*Localization, error) {
	if loc := c.findLocalization(language); loc != nil {
		return loc, nil
	}
	if loc := c.findLocalization(c.DefaultPrimaryLanguage); loc != nil {
		return loc, nil
	}
	return nil, fmt.Errorf("tenant: no localization for language %q or default %q",
		language, c.DefaultPrimaryLanguage)
}

func (c *Config) findLocalization(language string) *Localization {
	for i := range c.Localization {
		if strings.EqualFold(c.Localization[i].Language, language) {
			return &c.Localization[i]
		}
	}
	return nil
}

// ValidatorPromptURLs resolves the validator prompt URLs for a localization,
// per-language overrides first, tenant defaults second.
func (c *Config) ValidatorPromptURLs(loc *Localization) (systemURL, transcriptURL string) {
	systemURL = c.Validator.SystemPromptTemplateURL
	transcriptURL = c.Validator.TranscriptPromptTemplateURL
	if loc != nil {
		if loc.ValidatorSystemPromptTemplateURL != "" {
			systemURL = loc.ValidatorSystemPromptTemplateURL
		}
		if loc.ValidatorTranscriptPromptTemplateURL != "" {
			transcriptURL = loc.ValidatorTranscriptPromptTemplateURL
		}
	}
	return systemURL, transcriptURL
}

// ConfidenceThreshold resolves the transcript-confidence gate for a
// localization: per-language first, tenant default second. ok is false when
// no threshold is configured.
func (c *Config) ConfidenceThreshold(loc *Localization) (threshold float64, ok bool) {
	if loc != nil && loc.TranscriptConfidenceThreshold != nil {
		return *loc.TranscriptConfidenceThreshold, true
	}
	if c.Validator.TranscriptConfidenceThreshold != nil {
		return *c.Validator.TranscriptConfidenceThreshold, true
	}
	return 0, false
}

// GeneratorModel returns the tenant's pinned model or the default.
func (c *Config) GeneratorModel() string {
	if c.Generator.Model != "" {
		return c.Generator.Model
	}
	return DefaultGeneratorModel
}

// VoiceFor returns the voice model for language. Partially configured
// tenants fall back to a language-family match (same primary subtag), then to
// the first declared voice, so a missing voice never hard-fails a request.
func (c *Config) VoiceFor(language string) (VoiceModel, bool) {
	models := c.TTS.Azure.Models
	if len(models) == 0 {
		return VoiceModel{}, false
	}
	for _, m := range models {
		if strings.EqualFold(m.Language, language) {
			return m, true
		}
	}
	family := primarySubtag(language)
	for _, m := range models {
		if strings.EqualFold(primarySubtag(m.Language), family) {
			return m, true
		}
	}
	return models[0], true
}

// ProcessingPrompts returns the "please wait" utterance pool for language:
// avatar resources first, processing state second. Empty when the tenant
// configures neither.
func (c *Config) ProcessingPrompts(language string) []string {
	if prompts := lookupPrompts(c.Resources.Avatar.Processing, language); len(prompts) > 0 {
		return prompts
	}
	return lookupPrompts(c.State.Processing.Message, language)
}

func lookupPrompts(pool map[string][]string, language string) []string {
	if pool == nil {
		return nil
	}
	for lang, prompts := range pool {
		if strings.EqualFold(lang, language) {
			return prompts
		}
	}
	return nil
}

// primarySubtag returns the language-family part of a BCP-47 tag ("th-TH" -> "th").
func primarySubtag(language string) string {
	if i := strings.IndexAny(language, "-_"); i >= 0 {
		return language[:i]
	}
	return language
}
