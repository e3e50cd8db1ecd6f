package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/chat-gateway/services/providers"
)

const (
	providerName     = "anthropic"
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-3-7-sonnet-latest"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 1024

	eventContentBlockDelta = "content_block_delta"
	eventError             = "error"
)

// Adapter implements the Provider interface for the Anthropic Messages API
type Adapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
}

// NewAdapter creates a new Anthropic adapter
func NewAdapter(config providers.ProviderConfig) (*Adapter, error) {
	if config.APIKey == "" {
		return nil, providers.MissingCredential(providerName, "api key")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &Adapter{
		config:     config,
		httpClient: providers.NewHTTPClient(config.Timeout),
	}, nil
}

// Builder adapts NewAdapter to providers.ProviderBuilder
func Builder(config providers.ProviderConfig) (providers.Provider, error) {
	return NewAdapter(config)
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return providerName
}

// Generate performs a blocking Messages API call
func (a *Adapter) Generate(ctx context.Context, messages []providers.Message, opts providers.GenerateOptions) (string, error) {
	body, err := a.buildBody(messages, opts, false)
	if err != nil {
		return "", err
	}
	httpReq, err := a.newHTTPRequest(ctx, body)
	if err != nil {
		return "", err
	}

	httpResp, err := providers.Send(a.httpClient, providerName, httpReq, a.handleErrorResponse)
	if err != nil {
		return "", err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", providers.NewProviderError(providerName, providers.KindForTransport(err), "READ_ERROR", "Failed to read response", httpResp.StatusCode, err)
	}

	var resp messagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", providers.NewProviderError(providerName, providers.KindMalformed, "UNMARSHAL_ERROR", "Failed to unmarshal response", httpResp.StatusCode, err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// Stream returns a lazy stream of content_block_delta text
func (a *Adapter) Stream(ctx context.Context, messages []providers.Message, opts providers.GenerateOptions) (providers.FragmentStream, error) {
	body, err := a.buildBody(messages, opts, true)
	if err != nil {
		return nil, err
	}

	open := func(ctx context.Context) (*http.Response, error) {
		httpReq, err := a.newHTTPRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Accept", "text/event-stream")
		return providers.Send(a.httpClient, providerName, httpReq, a.handleErrorResponse)
	}

	return providers.NewSSEStream(ctx, providerName, open, extractDelta), nil
}

// SplitSystem separates system messages from the turn list. The backend
// only accepts user and assistant turns: system content is joined with
// newlines into the returned instruction, and unknown roles become user.
func SplitSystem(messages []providers.Message) (string, []Message) {
	var systemParts []string
	out := make([]Message, 0, len(messages))

	for _, m := range messages {
		if m.Content == "" {
			continue
		}

		switch m.Role {
		case providers.RoleSystem:
			systemParts = append(systemParts, m.Content)
		case providers.RoleUser, providers.RoleAssistant:
			out = append(out, Message{Role: string(m.Role), Content: m.Content})
		default:
			out = append(out, Message{Role: string(providers.RoleUser), Content: m.Content})
		}
	}

	return strings.TrimSpace(strings.Join(systemParts, "\n")), out
}

func (a *Adapter) buildBody(messages []providers.Message, opts providers.GenerateOptions, stream bool) ([]byte, error) {
	system, turns := SplitSystem(messages)
	if len(turns) == 0 {
		return nil, providers.NewProviderError(providerName, providers.KindMalformed, "EMPTY_INPUT", "no user or assistant turns", 0, providers.ErrNoMessages)
	}

	req := messagesRequest{
		Model:       a.config.Model,
		System:      system,
		Messages:    turns,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      stream,
	}
	// max_tokens is mandatory for this backend
	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultMaxTokens
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, providers.NewProviderError(providerName, providers.KindMalformed, "MARSHAL_ERROR", "Failed to marshal request", 0, err)
	}
	return body, nil
}

func (a *Adapter) newHTTPRequest(ctx context.Context, body []byte) (*http.Request, error) {
	url := strings.TrimRight(a.config.BaseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewProviderError(providerName, providers.KindMalformed, "REQUEST_ERROR", "Failed to create request", 0, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.config.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// handleErrorResponse handles Anthropic error responses
func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(providerName, providers.KindForStatus(statusCode), "UNKNOWN_ERROR", strings.TrimSpace(string(body)), statusCode, nil)
	}

	return providers.NewProviderError(
		providerName,
		providers.KindForStatus(statusCode),
		errResp.Error.Type,
		errResp.Error.Message,
		statusCode,
		nil,
	)
}

func extractDelta(ev providers.Event) (string, error) {
	data := bytes.TrimSpace(ev.Data)
	if len(data) == 0 {
		return "", nil
	}

	var event streamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return "", providers.NewProviderError(providerName, providers.KindMalformed, "UNMARSHAL_ERROR", "Failed to decode stream event", 0, err)
	}

	switch event.Type {
	case eventContentBlockDelta:
		if event.Delta == nil {
			return "", nil
		}
		return event.Delta.Text, nil
	case eventError:
		if event.Error == nil {
			return "", providers.NewProviderError(providerName, providers.KindUnknown, "", "stream error", 0, nil)
		}
		return "", providers.NewProviderError(providerName, kindForType(event.Error.Type), event.Error.Type, event.Error.Message, 0, nil)
	}
	return "", nil
}

// kindForType maps the error types carried by in-stream error events
func kindForType(t string) providers.ErrorKind {
	switch t {
	case "rate_limit_error":
		return providers.KindRateLimited
	case "overloaded_error", "api_error":
		return providers.KindServerError
	case "authentication_error", "permission_error":
		return providers.KindAuthError
	case "invalid_request_error", "not_found_error", "request_too_large":
		return providers.KindMalformed
	case "timeout_error":
		return providers.KindTimeout
	}
	return providers.KindUnknown
}

// Anthropic-specific request/response types

// Message is one entry of the messages array
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream,omitempty"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Content    []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type streamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"delta,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

type errorResponse struct {
	Type  string   `json:"type"`
	Error apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
