// Package ssml builds Speech Synthesis Markup Language documents for cloud
// TTS, including per-tenant pronunciation handling: phoneme/alias
// substitution from remote dictionaries and an optional lexicon reference.
package ssml

import (
	"fmt"
	"strings"
)

// Prosody defaults applied when the voice model leaves them unset.
const (
	DefaultPitch = "medium"
	DefaultRate  = "1.0"
)

// Document describes one SSML synthesis request.
type Document struct {
	// Text is the raw phrase to speak. It is XML-escaped by Build.
	Text string

	// Language is the BCP-47 tag for xml:lang; it is normalized by Build.
	Language string

	// VoiceName is the cloud voice, e.g. "th-TH-PremwadeeNeural".
	VoiceName string

	Pitch string
	Rate  string

	// LexiconURI references a remote pronunciation lexicon. It is emitted
	// only when no inline phoneme substitution applied, because cloud TTS
	// ignores inline phoneme tags in the presence of a lexicon element.
	LexiconURI string

	// Rules is the compiled phoneme ruleset for this voice; nil disables
	// substitution.
	Rules *Ruleset
}

// Build renders the SSML document and returns it together with the
// substituted inner text. The substituted text, not the raw text, is the
// audio-cache identity: two phrases that substitute identically sound
// identical.
func Build(doc Document) (ssml, substituted string) {
	substituted = escapeText(doc.Text)
	var applied bool
	substituted, applied = doc.Rules.Apply(substituted)

	pitch := doc.Pitch
	if pitch == "" {
		pitch = DefaultPitch
	}
	rate := doc.Rate
	if rate == "" {
		rate = DefaultRate
	}
	lang := NormalizeLocale(doc.Language)

	var b strings.Builder
	fmt.Fprintf(&b, `<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="%s">`,
		escapeAttr(lang))
	fmt.Fprintf(&b, `<voice name="%s">`, escapeAttr(doc.VoiceName))
	if doc.LexiconURI != "" && !applied {
		fmt.Fprintf(&b, `<lexicon uri="%s"/>`, escapeAttr(doc.LexiconURI))
	}
	fmt.Fprintf(&b, `<prosody pitch="%s" rate="%s">`, escapeAttr(pitch), escapeAttr(rate))
	b.WriteString(substituted)
	b.WriteString(`</prosody></voice></speak>`)
	return b.String(), substituted
}

// NormalizeLocale canonicalizes a BCP-47 tag: lowercase language subtag,
// uppercase region ("TH-th" -> "th-TH"). Unrecognized shapes pass through.
func NormalizeLocale(tag string) string {
	parts := strings.Split(strings.ReplaceAll(tag, "_", "-"), "-")
	switch len(parts) {
	case 1:
		return strings.ToLower(parts[0])
	case 2:
		return strings.ToLower(parts[0]) + "-" + strings.ToUpper(parts[1])
	default:
		return tag
	}
}

func escapeText(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

func escapeAttr(s string) string {
	s = escapeText(s)
	s = strings.ReplaceAll(s, `"`, "&quot;")
	return s
}
