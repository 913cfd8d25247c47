package ssml_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/vocanta/vocanta/pkg/provider/tts/ssml"
)

func TestParseDictionaryShapes(t *testing.T) {
	data := []byte(`{
		"Vocanta": "voʊˈkɑːntə",
		"FAQ": {"alias": "F A Q"},
		"cache": {"ipa": "kæʃ"},
		"": "ignored",
		"empty": {}
	}`)
	replacements, err := ssml.ParseDictionary(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(replacements) != 3 {
		t.Fatalf("got %d replacements, want 3: %+v", len(replacements), replacements)
	}
	byTerm := map[string]ssml.Replacement{}
	for _, r := range replacements {
		byTerm[r.Term] = r
	}
	if byTerm["Vocanta"].IPA != "voʊˈkɑːntə" {
		t.Errorf("bare string entry = %+v", byTerm["Vocanta"])
	}
	if byTerm["FAQ"].Alias != "F A Q" {
		t.Errorf("alias entry = %+v", byTerm["FAQ"])
	}
}

func TestApplyWholeWordOnly(t *testing.T) {
	rs := ssml.Compile([]ssml.Replacement{{Term: "cache", IPA: "kæʃ"}})

	got, applied := rs.Apply("the cache is cached")
	if !applied {
		t.Fatal("expected a substitution")
	}
	if !strings.Contains(got, `<phoneme alphabet="ipa" ph="kæʃ">cache</phoneme> is cached`) {
		t.Errorf("got %q", got)
	}
	if strings.Contains(got, `>cached</phoneme>`) {
		t.Errorf("substring matched inside a longer word: %q", got)
	}
}

func TestApplyThaiTerms(t *testing.T) {
	rs := ssml.Compile([]ssml.Replacement{{Term: "ไทย", IPA: "tʰāj"}})

	got, applied := rs.Apply("สวัสดี ไทย ครับ")
	if !applied {
		t.Fatalf("thai term not substituted: %q", got)
	}
	if !strings.Contains(got, `<phoneme alphabet="ipa" ph="tʰāj">ไทย</phoneme>`) {
		t.Errorf("got %q", got)
	}

	// Embedded in a longer run of Thai letters the term stays untouched.
	got, applied = rs.Apply("คนไทยครับ")
	if applied || got != "คนไทยครับ" {
		t.Errorf("embedded term substituted: %q", got)
	}
}

func TestApplyPreservesCasing(t *testing.T) {
	rs := ssml.Compile([]ssml.Replacement{{Term: "vocanta", IPA: "voʊˈkɑːntə"}})
	got, _ := rs.Apply("Vocanta answers")
	if !strings.Contains(got, ">Vocanta</phoneme>") {
		t.Errorf("matched casing lost: %q", got)
	}
}

func TestApplySkipsExistingTags(t *testing.T) {
	rs := ssml.Compile([]ssml.Replacement{{Term: "cache", IPA: "kæʃ"}})
	in := `<phoneme alphabet="ipa" ph="kæʃ">cache</phoneme> and cache`
	got, _ := rs.Apply(in)
	if strings.Count(got, "<phoneme") != 2 {
		t.Errorf("got %q, want the tagged span untouched and the bare term wrapped", got)
	}
	if strings.Contains(got, "<phoneme alphabet=\"ipa\" ph=\"kæʃ\"><phoneme") {
		t.Errorf("nested substitution: %q", got)
	}
}

func TestApplyLongestTermFirst(t *testing.T) {
	rs := ssml.Compile([]ssml.Replacement{
		{Term: "knowledge", Alias: "short"},
		{Term: "knowledge base", Alias: "K B"},
	})
	got, _ := rs.Apply("the knowledge base")
	if !strings.Contains(got, `<sub alias="K B">knowledge base</sub>`) {
		t.Errorf("longer term did not win: %q", got)
	}
}

func TestBuildDocumentShape(t *testing.T) {
	doc, substituted := ssml.Build(ssml.Document{
		Text:      "hello <world> & co",
		Language:  "en-us",
		VoiceName: "en-US-JennyNeural",
	})
	if !strings.HasPrefix(doc, `<speak version="1.0"`) || !strings.HasSuffix(doc, "</speak>") {
		t.Errorf("document shape: %q", doc)
	}
	if !strings.Contains(doc, `xml:lang="en-US"`) {
		t.Errorf("locale not normalized: %q", doc)
	}
	if !strings.Contains(doc, `<voice name="en-US-JennyNeural">`) {
		t.Errorf("voice element: %q", doc)
	}
	if !strings.Contains(doc, `<prosody pitch="medium" rate="1.0">`) {
		t.Errorf("default prosody: %q", doc)
	}
	if !strings.Contains(doc, "hello &lt;world&gt; &amp; co") {
		t.Errorf("text not escaped: %q", doc)
	}
	if substituted != "hello &lt;world&gt; &amp; co" {
		t.Errorf("substituted = %q", substituted)
	}
}

func TestBuildLexiconOnlyWithoutSubstitution(t *testing.T) {
	rules := ssml.Compile([]ssml.Replacement{{Term: "cache", IPA: "kæʃ"}})

	// Substitution applied: lexicon must be suppressed.
	doc, _ := ssml.Build(ssml.Document{
		Text:       "flush the cache",
		Language:   "en-US",
		VoiceName:  "v",
		LexiconURI: "https://cdn.example/lexicon.xml",
		Rules:      rules,
	})
	if strings.Contains(doc, "<lexicon") {
		t.Errorf("lexicon emitted alongside phoneme tags: %q", doc)
	}

	// No substitution: lexicon is referenced.
	doc, _ = ssml.Build(ssml.Document{
		Text:       "plain text",
		Language:   "en-US",
		VoiceName:  "v",
		LexiconURI: "https://cdn.example/lexicon.xml",
		Rules:      rules,
	})
	if !strings.Contains(doc, `<lexicon uri="https://cdn.example/lexicon.xml"/>`) {
		t.Errorf("lexicon missing: %q", doc)
	}
}

func TestNormalizeLocale(t *testing.T) {
	cases := map[string]string{
		"en-us":    "en-US",
		"TH-th":    "th-TH",
		"th_TH":    "th-TH",
		"en":       "en",
		"zh-hans-CN": "zh-hans-CN",
	}
	for in, want := range cases {
		if got := ssml.NormalizeLocale(in); got != want {
			t.Errorf("NormalizeLocale(%q) = %q, want %q", in, got, want)
		}
	}
}

// fetcher is a scripted TextFetcher.
type fetcher struct {
	mu    sync.Mutex
	docs  map[string]string
	calls map[string]int
}

func (f *fetcher) Text(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[url]++
	doc, ok := f.docs[url]
	if !ok {
		return "", errors.New("not found")
	}
	return doc, nil
}

func TestPatternCacheMergesAndCaches(t *testing.T) {
	f := &fetcher{docs: map[string]string{
		"https://cdn.example/global.json": `{"cache": "kæʃ", "FAQ": {"alias": "global"}}`,
		"https://cdn.example/th.json":     `{"FAQ": {"alias": "voice"}}`,
	}}
	c := ssml.NewPatternCache(f)
	src := ssml.Sources{
		GlobalURL: "https://cdn.example/global.json",
		VoiceURL:  "https://cdn.example/th.json",
		Language:  "th-TH",
	}

	rs := c.Rules(context.Background(), src)
	if rs.Len() != 2 {
		t.Fatalf("rules = %d, want 2 (merged by term)", rs.Len())
	}
	got, _ := rs.Apply("FAQ")
	if !strings.Contains(got, `alias="voice"`) {
		t.Errorf("voice dictionary did not override global: %q", got)
	}

	c.Rules(context.Background(), src)
	if f.calls["https://cdn.example/global.json"] != 1 {
		t.Errorf("global fetched %d times, want 1", f.calls["https://cdn.example/global.json"])
	}
}

func TestPatternCacheDefaultLanguageSkipsVoice(t *testing.T) {
	f := &fetcher{docs: map[string]string{
		"https://cdn.example/global.json": `{"cache": "kæʃ"}`,
		"https://cdn.example/voice.json":  `{"extra": "x"}`,
	}}
	c := ssml.NewPatternCache(f)

	rs := c.Rules(context.Background(), ssml.Sources{
		GlobalURL: "https://cdn.example/global.json",
		VoiceURL:  "https://cdn.example/voice.json",
		Language:  ssml.DefaultLanguage,
	})
	if rs.Len() != 1 {
		t.Errorf("rules = %d, want global only", rs.Len())
	}
	if f.calls["https://cdn.example/voice.json"] != 0 {
		t.Errorf("voice dictionary fetched for default language")
	}
}

func TestPatternCacheToleratesFetchFailure(t *testing.T) {
	f := &fetcher{docs: map[string]string{}}
	c := ssml.NewPatternCache(f)
	rs := c.Rules(context.Background(), ssml.Sources{
		GlobalURL: "https://cdn.example/missing.json",
		Language:  "en-US",
	})
	if rs == nil || rs.Len() != 0 {
		t.Errorf("expected empty ruleset on fetch failure, got %v", rs)
	}
	if got, applied := rs.Apply("text"); got != "text" || applied {
		t.Errorf("empty ruleset mutated text: %q %v", got, applied)
	}
}
