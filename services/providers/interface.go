package providers

import (
	"context"
	"time"
)

// Provider is the capability set shared by every generation backend.
// Implementations translate the canonical message list into their own
// wire shape and normalize responses back into plain text.
type Provider interface {
	// Name returns the provider name (e.g., "azure", "anthropic", "gemini")
	Name() string

	// Generate performs a blocking call and returns the complete text
	Generate(ctx context.Context, messages []Message, opts GenerateOptions) (string, error)

	// Stream returns a lazy, single-use sequence of text fragments.
	// No network I/O happens until the first call to Next on the result.
	Stream(ctx context.Context, messages []Message, opts GenerateOptions) (FragmentStream, error)
}

// Role identifies the author of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three canonical roles
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message represents a single turn in a conversation
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role Role `json:"role"`

	// Content is the message text
	Content string `json:"content"`
}

// GenerateOptions carries the sampling parameters of one call
type GenerateOptions struct {
	// Temperature controls randomness (0.0 to 2.0)
	Temperature float64 `json:"temperature"`

	// MaxTokens limits the response length
	MaxTokens int `json:"max_tokens"`
}

// DefaultGenerateOptions mirrors the defaults of the interactive chat
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Temperature: 0.7,
		MaxTokens:   1024,
	}
}

// FragmentStream is a finite, single-use iterator over generated text.
//
// Fragments must be consumed in the order Next produces them. Close
// cancels the underlying request and releases its resources; it is safe
// to call more than once and after the stream has been fully drained.
type FragmentStream interface {
	// Next advances to the next fragment, performing I/O as needed
	Next() bool

	// Current returns the fragment produced by the last successful Next
	Current() string

	// Err returns the error that stopped iteration, if any
	Err() error

	// Close aborts the stream
	Close() error
}

// ProviderConfig holds common configuration for providers
type ProviderConfig struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// Model or deployment name
	Model string

	// APIVersion for backends that version via query string
	APIVersion string

	// Timeout for requests
	Timeout time.Duration

	// Additional headers
	Headers map[string]string
}

// DefaultProviderConfig returns a sensible default configuration
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout: 60 * time.Second,
		Headers: make(map[string]string),
	}
}
