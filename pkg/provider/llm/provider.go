// Package llm defines the Provider interface for text-generation backends.
//
// A provider wraps a remote or local model API (e.g., OpenAI, Anthropic, or a
// local Ollama instance) and exposes a uniform "messages in, text out"
// interface for the turn engine. The engine never inspects provider-specific
// response shapes: a completion either yields text or fails with a
// [*ProviderError] carrying an opaque failure class used only for user-facing
// messaging.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind is the opaque classification of a provider failure. The engine
// does not branch on anything finer-grained than this.
type ErrorKind string

const (
	// ErrorKindAuth indicates invalid or missing credentials.
	ErrorKindAuth ErrorKind = "auth"

	// ErrorKindNetwork indicates a transport-level failure (timeouts, DNS,
	// connection resets) or upstream rate limiting.
	ErrorKindNetwork ErrorKind = "network"

	// ErrorKindOther covers everything else, including malformed responses.
	ErrorKindOther ErrorKind = "other"
)

// ProviderError wraps any failure from an LLM backend. All transport, auth,
// and rate-limit issues surface as this one type.
type ProviderError struct {
	// Provider is the backend name (e.g. "openai", "anthropic").
	Provider string

	// Kind classifies the failure for user-facing messaging.
	Kind ErrorKind

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm provider %s (%s): %v", e.Provider, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error { return e.Err }

// IsProviderError reports whether err is (or wraps) a [*ProviderError].
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is typically from
	// the "user" role and drives the response.
	Messages []Message

	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation. Providers without a dedicated system slot prepend it
	// as a "system"-role message.
	SystemPrompt string

	// Temperature controls output randomness in [0.0, 2.0]. Zero means use
	// the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider
	// default.
	MaxTokens int
}

// CompletionResponse is the full model reply.
type CompletionResponse struct {
	// Content is the text of the reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any text-generation backend.
//
// Implementations must be safe for concurrent use from multiple goroutines.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Failures are returned as a [*ProviderError].
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates how many tokens messages would consume in the
	// model's context window. The result need not be exact but should not
	// undercount.
	CountTokens(messages []Message) (int, error)

	// ModelID returns the backend model identifier, used for logging and
	// metrics attributes.
	ModelID() string
}
