// Package groq provides an answer generator backed by Groq through
// github.com/mozilla-ai/any-llm-go.
package groq

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	groqlib "github.com/mozilla-ai/any-llm-go/providers/groq"

	"github.com/vocanta/vocanta/pkg/provider/generator"
)

// Provider implements generator.Provider backed by Groq.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

var _ generator.Provider = (*Provider)(nil)

// New constructs a Groq answer generator. model is the bare model name, with
// the "groq/" routing prefix already stripped.
func New(apiKey, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("groq: model must not be empty")
	}
	if apiKey != "" {
		opts = append([]anyllmlib.Option{anyllmlib.WithAPIKey(apiKey)}, opts...)
	}
	backend, err := groqlib.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("groq: create backend: %w", err)
	}
	return &Provider{backend: backend, model: model}, nil
}

// Stream implements generator.Provider. Groq models accept a single system
// message, so the instruction prompts are merged into one.
func (p *Provider) Stream(ctx context.Context, req generator.Request) (<-chan generator.Chunk, error) {
	var messages []anyllmlib.Message
	if system := mergeSystemPrompts(req.SystemPrompts); system != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: system,
		})
	}
	messages = append(messages, anyllmlib.Message{
		Role:    anyllmlib.RoleUser,
		Content: req.UserPrompt,
	})

	temperature := req.Temperature
	if temperature == 0 {
		temperature = generator.DefaultTemperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = generator.DefaultMaxTokens
	}

	params := anyllmlib.CompletionParams{
		Model:       p.model,
		Messages:    messages,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}

	backendChunks, backendErrs := p.backend.CompletionStream(ctx, params)

	ch := make(chan generator.Chunk, 32)
	go func() {
		defer close(ch)

		for chunk := range backendChunks {
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			out := generator.Chunk{
				Text:         choice.Delta.Content,
				FinishReason: choice.FinishReason,
			}
			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
		}

		if err := <-backendErrs; err != nil {
			select {
			case ch <- generator.Chunk{FinishReason: "error", Text: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// mergeSystemPrompts joins the instruction prompts into one system message.
func mergeSystemPrompts(prompts []string) string {
	kept := make([]string, 0, len(prompts))
	for _, p := range prompts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
