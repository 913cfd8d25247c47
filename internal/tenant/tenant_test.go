package tenant_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vocanta/vocanta/internal/tenant"
	"github.com/vocanta/vocanta/internal/tenant/mock"
)

func floatPtr(v float64) *float64 { return &v }

func sampleConfig() tenant.Config {
	return tenant.Config{
		ConfigID:               "cfg-1",
		KMID:                   "42",
		DefaultPrimaryLanguage: "th-TH",
		Localization: []tenant.Localization{
			{
				Language:     "th-TH",
				AssistantID:  "asst-th",
				AssistantKey: "key-th",
			},
			{
				Language:                             "en-US",
				AssistantID:                          "asst-en",
				AssistantKey:                         "key-en",
				ValidatorSystemPromptTemplateURL:     "https://cdn.example/en-system.txt",
				TranscriptConfidenceThreshold:        floatPtr(0.6),
				ValidatorTranscriptPromptTemplateURL: "",
			},
		},
		Validator: tenant.ValidatorConfig{
			Key:                           "gm-key",
			Enabled:                       true,
			SystemPromptTemplateURL:       "https://cdn.example/system.txt",
			TranscriptPromptTemplateURL:   "https://cdn.example/transcript.txt",
			TranscriptConfidenceThreshold: floatPtr(0.4),
		},
		TTS: tenant.TTSConfig{
			Azure: tenant.AzureTTSConfig{
				SubscriptionKey: "azure-key",
				Models: []tenant.VoiceModel{
					{Language: "th-TH", Name: "th-TH-PremwadeeNeural"},
					{Language: "en-US", Name: "en-US-JennyNeural"},
				},
			},
		},
		Resources: tenant.Resources{
			Avatar: tenant.AvatarResources{
				Processing: map[string][]string{
					"th-TH": {"รอสักครู่"},
				},
			},
		},
		State: tenant.State{
			Processing: tenant.ProcessingState{
				Message: map[string][]string{
					"en-US": {"one moment"},
				},
			},
		},
	}
}

func TestLocalizationFor(t *testing.T) {
	cfg := sampleConfig()

	loc, err := cfg.LocalizationFor("en-US")
	if err != nil {
		t.Fatal(err)
	}
	if loc.AssistantID != "asst-en" {
		t.Errorf("AssistantID = %q", loc.AssistantID)
	}

	// Unknown language falls back to the default primary language.
	loc, err = cfg.LocalizationFor("fr-FR")
	if err != nil {
		t.Fatal(err)
	}
	if loc.Language != "th-TH" {
		t.Errorf("fallback language = %q", loc.Language)
	}

	cfg.DefaultPrimaryLanguage = "ja-JP"
	if _, err := cfg.LocalizationFor("fr-FR"); err == nil {
		t.Error("expected error when neither language nor default matches")
	}
}

func TestValidatorPromptURLOverrides(t *testing.T) {
	cfg := sampleConfig()

	en, _ := cfg.LocalizationFor("en-US")
	systemURL, transcriptURL := cfg.ValidatorPromptURLs(en)
	if systemURL != "https://cdn.example/en-system.txt" {
		t.Errorf("system URL = %q, want per-language override", systemURL)
	}
	if transcriptURL != "https://cdn.example/transcript.txt" {
		t.Errorf("transcript URL = %q, want tenant default", transcriptURL)
	}

	th, _ := cfg.LocalizationFor("th-TH")
	systemURL, _ = cfg.ValidatorPromptURLs(th)
	if systemURL != "https://cdn.example/system.txt" {
		t.Errorf("system URL = %q, want tenant default", systemURL)
	}
}

func TestConfidenceThreshold(t *testing.T) {
	cfg := sampleConfig()

	en, _ := cfg.LocalizationFor("en-US")
	if got, ok := cfg.ConfidenceThreshold(en); !ok || got != 0.6 {
		t.Errorf("en threshold = %v, %v", got, ok)
	}

	th, _ := cfg.LocalizationFor("th-TH")
	if got, ok := cfg.ConfidenceThreshold(th); !ok || got != 0.4 {
		t.Errorf("th threshold = %v, %v (want tenant default)", got, ok)
	}

	cfg.Validator.TranscriptConfidenceThreshold = nil
	if _, ok := cfg.ConfidenceThreshold(th); ok {
		t.Error("expected no threshold when neither level configures one")
	}
}

func TestVoiceForFallbacks(t *testing.T) {
	cfg := sampleConfig()

	if v, ok := cfg.VoiceFor("en-US"); !ok || v.Name != "en-US-JennyNeural" {
		t.Errorf("exact match = %+v, %v", v, ok)
	}
	// Same language family.
	if v, ok := cfg.VoiceFor("en-GB"); !ok || v.Name != "en-US-JennyNeural" {
		t.Errorf("family match = %+v, %v", v, ok)
	}
	// No family match falls back to the first declared voice.
	if v, ok := cfg.VoiceFor("ja-JP"); !ok || v.Name != "th-TH-PremwadeeNeural" {
		t.Errorf("first-voice fallback = %+v, %v", v, ok)
	}

	cfg.TTS.Azure.Models = nil
	if _, ok := cfg.VoiceFor("en-US"); ok {
		t.Error("expected no voice when none are configured")
	}
}

func TestProcessingPrompts(t *testing.T) {
	cfg := sampleConfig()

	if got := cfg.ProcessingPrompts("th-TH"); len(got) != 1 || got[0] != "รอสักครู่" {
		t.Errorf("th prompts = %v", got)
	}
	// Avatar pool has no en entry, falls through to processing state.
	if got := cfg.ProcessingPrompts("en-US"); len(got) != 1 || got[0] != "one moment" {
		t.Errorf("en prompts = %v", got)
	}
	if got := cfg.ProcessingPrompts("fr-FR"); got != nil {
		t.Errorf("fr prompts = %v, want none", got)
	}
}

func TestGeneratorModelDefault(t *testing.T) {
	cfg := sampleConfig()
	if got := cfg.GeneratorModel(); got != tenant.DefaultGeneratorModel {
		t.Errorf("model = %q", got)
	}
	cfg.Generator.Model = "groq/llama-3.3-70b"
	if got := cfg.GeneratorModel(); got != "groq/llama-3.3-70b" {
		t.Errorf("model = %q", got)
	}
}

func TestParseConfigValueShapes(t *testing.T) {
	array := []byte(`[{"configId":"a","kmId":"1"},{"configId":"b","kmId":"2"}]`)
	configs, err := tenant.ParseConfigValue(array)
	if err != nil {
		t.Fatal(err)
	}
	if len(configs) != 2 || configs[1].ConfigID != "b" {
		t.Errorf("array decode = %+v", configs)
	}

	single := []byte(`{"configId":"only","kmId":"3"}`)
	configs, err = tenant.ParseConfigValue(single)
	if err != nil {
		t.Fatal(err)
	}
	if len(configs) != 1 || configs[0].ConfigID != "only" {
		t.Errorf("single decode = %+v", configs)
	}

	if _, err := tenant.ParseConfigValue([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestCacheServesFromMemory(t *testing.T) {
	store := mock.New()
	store.Set("acme", []tenant.Config{sampleConfig()})
	cache := tenant.NewCache(store)

	for i := 0; i < 3; i++ {
		cfg, err := cache.Config(context.Background(), "acme", "cfg-1")
		if err != nil {
			t.Fatal(err)
		}
		if cfg.KMID != "42" {
			t.Errorf("KMID = %q", cfg.KMID)
		}
	}
	if store.Loads() != 1 {
		t.Errorf("store loads = %d, want 1", store.Loads())
	}
}

func TestCacheConfigSelection(t *testing.T) {
	a := sampleConfig()
	b := sampleConfig()
	b.ConfigID = "cfg-2"
	b.KMID = "43"

	store := mock.New()
	store.Set("acme", []tenant.Config{a, b})
	cache := tenant.NewCache(store)

	cfg, err := cache.Config(context.Background(), "acme", "cfg-2")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.KMID != "43" {
		t.Errorf("KMID = %q", cfg.KMID)
	}

	// Empty config id selects the first config.
	cfg, err = cache.Config(context.Background(), "acme", "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ConfigID != "cfg-1" {
		t.Errorf("ConfigID = %q", cfg.ConfigID)
	}

	if _, err := cache.Config(context.Background(), "acme", "missing"); !errors.Is(err, tenant.ErrConfigNotFound) {
		t.Errorf("err = %v, want ErrConfigNotFound", err)
	}
}

func TestCacheExpiry(t *testing.T) {
	store := mock.New()
	store.Set("acme", []tenant.Config{sampleConfig()})
	cache := tenant.NewCache(store, tenant.WithTTL(10*time.Millisecond, 5*time.Millisecond))

	if _, err := cache.Config(context.Background(), "acme", "cfg-1"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := cache.Config(context.Background(), "acme", "cfg-1"); err != nil {
		t.Fatal(err)
	}
	if store.Loads() < 2 {
		t.Errorf("store loads = %d, want reload after expiry", store.Loads())
	}
}

func TestCacheUnknownTenant(t *testing.T) {
	cache := tenant.NewCache(mock.New())
	if _, err := cache.Config(context.Background(), "ghost", ""); !errors.Is(err, tenant.ErrTenantNotFound) {
		t.Errorf("err = %v, want ErrTenantNotFound", err)
	}
}
