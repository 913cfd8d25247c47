// Package validator defines the Provider interface for speech validation
// backends.
//
// A validator receives the user's utterance audio together with prompt
// templates and returns the corrected question, the running chat history,
// and search keywords extracted from the utterance.
package validator

import "context"

// Turn is one prior exchange in the conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one validation call.
type Request struct {
	// AudioWAV is the user's utterance as a WAV container.
	AudioWAV []byte

	// SystemPrompt is the resolved system instruction template.
	SystemPrompt string

	// UserPrompt is the resolved transcript prompt template.
	UserPrompt string
}

// Result is the validator's structured verdict.
type Result struct {
	// Correction is the cleaned-up question to answer. Empty means the
	// utterance was unintelligible.
	Correction string `json:"correction"`

	// ChatHistory is the conversation including this utterance.
	ChatHistory []Turn `json:"chat_history"`

	// Keywords are standalone search terms extracted from the utterance.
	Keywords []string `json:"keywords"`
}

// Provider is the abstraction over a validation backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	Validate(ctx context.Context, req Request) (*Result, error)
}
