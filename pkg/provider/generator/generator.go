// Package generator defines the Provider interface for streaming answer
// generation and the prompt assembly shared by its backends.
//
// Answer models are addressed by a routed model name: a bare name selects the
// OpenAI backend, a "groq/" prefix selects the Groq backend with the prefix
// stripped.
package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vocanta/vocanta/pkg/kmsearch"
	"github.com/vocanta/vocanta/pkg/provider/validator"
)

// Defaults for answer generation. The near-zero temperature keeps answers
// grounded in the supplied context without being fully greedy.
const (
	DefaultTemperature = 0.01
	DefaultMaxTokens   = 2048
)

// Request carries everything a backend needs to stream one answer.
type Request struct {
	// SystemPrompts are the resolved instruction prompts, in order. Backends
	// that support only a single system message merge them.
	SystemPrompts []string

	// UserPrompt is the resolved question prompt.
	UserPrompt string

	// Temperature of 0 means DefaultTemperature.
	Temperature float64

	// MaxTokens of 0 means DefaultMaxTokens.
	MaxTokens int
}

// Chunk is one fragment of a streamed answer.
type Chunk struct {
	// Text is the incremental answer content.
	Text string

	// FinishReason is set on the final chunk: "stop", "length", or "error"
	// (with Text carrying the error message).
	FinishReason string
}

// Provider is the abstraction over an answer-generation backend.
//
// The returned channel is closed by the implementation when generation
// finishes or ctx is cancelled; callers must drain it. Errors after the
// stream starts surface as a Chunk with FinishReason "error".
type Provider interface {
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}

// Backend names returned by [ParseModel].
const (
	BackendOpenAI = "openai"
	BackendGroq   = "groq"
)

const groqPrefix = "groq/"

// ParseModel splits a routed model name into backend and bare model name.
func ParseModel(model string) (backend, name string) {
	if strings.HasPrefix(model, groqPrefix) {
		return BackendGroq, strings.TrimPrefix(model, groqPrefix)
	}
	return BackendOpenAI, model
}

// Placeholders substituted into prompt templates.
const (
	contextPlaceholder     = "{context}"
	currentTimePlaceholder = "{current_time}"
	questionPlaceholder    = "{question}"
)

// RenderSystemPrompt fills a system prompt template with the search context
// and the current time.
func RenderSystemPrompt(template string, docs []kmsearch.Item, now time.Time) string {
	out := strings.ReplaceAll(template, contextPlaceholder, FormatContext(docs))
	return strings.ReplaceAll(out, currentTimePlaceholder, now.Format("2006-01-02 15:04:05 MST"))
}

// RenderUserPrompt fills a user prompt template with the corrected question.
// A template without the placeholder gets the question appended so it is
// never lost.
func RenderUserPrompt(template, question string) string {
	if template == "" {
		return question
	}
	if !strings.Contains(template, questionPlaceholder) {
		return template + "\n\n" + question
	}
	return strings.ReplaceAll(template, questionPlaceholder, question)
}

// FormatContext renders search hits as the generator's grounding context.
func FormatContext(docs []kmsearch.Item) string {
	if len(docs) == 0 {
		return "No relevant documents found."
	}
	var b strings.Builder
	for i, it := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Document %d: %s]\n%s", i+1, it.Document.Title, it.Document.Content)
	}
	return b.String()
}

// FormatHistory renders prior turns as plain dialog lines for inclusion in a
// prompt.
func FormatHistory(turns []validator.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		role := "User"
		if strings.EqualFold(t.Role, "assistant") {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, t.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
