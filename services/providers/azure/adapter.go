package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/upb/chat-gateway/services/providers"
)

const (
	providerName      = "azure"
	defaultAPIVersion = "2025-04-01-preview"

	eventOutputTextDelta = "response.output_text.delta"
	eventError           = "error"
	eventResponseFailed  = "response.failed"
)

// Adapter implements the Provider interface for Azure OpenAI's Responses
// API. The backend only accepts a single input string, so the whole
// conversation is flattened into role-labeled lines.
type Adapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	endpoint   string
}

// NewAdapter creates a new Azure OpenAI adapter. APIKey, BaseURL (the
// resource endpoint) and Model (the deployment name) are required.
func NewAdapter(config providers.ProviderConfig) (*Adapter, error) {
	if config.APIKey == "" {
		return nil, providers.MissingCredential(providerName, "api key")
	}
	if config.BaseURL == "" {
		return nil, &providers.ConfigError{Provider: providerName, Field: "endpoint", Err: errors.New("required")}
	}
	if config.Model == "" {
		return nil, &providers.ConfigError{Provider: providerName, Field: "deployment name", Err: errors.New("required")}
	}
	if config.APIVersion == "" {
		config.APIVersion = defaultAPIVersion
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	endpoint := strings.TrimRight(config.BaseURL, "/") + "/openai/responses?api-version=" + url.QueryEscape(config.APIVersion)

	return &Adapter{
		config:     config,
		httpClient: providers.NewHTTPClient(config.Timeout),
		endpoint:   endpoint,
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

// Generate performs a blocking Responses API call
func (a *Adapter) Generate(ctx context.Context, messages []providers.Message, opts providers.GenerateOptions) (string, error) {
	httpReq, err := a.newRequest(ctx, messages, opts, false)
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

	var resp responsesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", providers.NewProviderError(providerName, providers.KindMalformed, "UNMARSHAL_ERROR", "Failed to unmarshal response", httpResp.StatusCode, err)
	}

	return resp.outputText(), nil
}

// Stream returns a lazy stream of output_text deltas
func (a *Adapter) Stream(ctx context.Context, messages []providers.Message, opts providers.GenerateOptions) (providers.FragmentStream, error) {
	// Build eagerly so malformed requests fail at handle acquisition
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

// BuildPrompt flattens messages into "Role: content" lines joined by newlines.
// Empty messages and roles other than system, user and assistant are omitted.
func BuildPrompt(messages []providers.Message) string {
	parts := make([]string, 0, len(messages))

	for _, m := range messages {
		if m.Content == "" {
			continue
		}

		switch m.Role {
		case providers.RoleSystem:
			parts = append(parts, "System: "+m.Content)
		case providers.RoleUser:
			parts = append(parts, "User: "+m.Content)
		case providers.RoleAssistant:
			parts = append(parts, "Assistant: "+m.Content)
		}
	}

	return strings.Join(parts, "\n")
}

func (a *Adapter) newRequest(ctx context.Context, messages []providers.Message, opts providers.GenerateOptions, stream bool) (*http.Request, error) {
	body, err := a.buildBody(messages, opts, stream)
	if err != nil {
		return nil, err
	}
	return a.newHTTPRequest(ctx, body)
}

func (a *Adapter) buildBody(messages []providers.Message, opts providers.GenerateOptions, stream bool) ([]byte, error) {
	prompt := BuildPrompt(messages)
	if prompt == "" {
		return nil, providers.NewProviderError(providerName, providers.KindMalformed, "EMPTY_INPUT", "nothing to send", 0, providers.ErrNoMessages)
	}

	req := responsesRequest{
		Model:       a.config.Model,
		Input:       prompt,
		Temperature: opts.Temperature,
		Stream:      stream,
	}
	if opts.MaxTokens > 0 {
		req.MaxOutputTokens = &opts.MaxTokens
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, providers.NewProviderError(providerName, providers.KindMalformed, "MARSHAL_ERROR", "Failed to marshal request", 0, err)
	}
	return body, nil
}

func (a *Adapter) newHTTPRequest(ctx context.Context, body []byte) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewProviderError(providerName, providers.KindMalformed, "REQUEST_ERROR", "Failed to create request", 0, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", a.config.APIKey)
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// handleErrorResponse handles Azure OpenAI error responses
func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(providerName, providers.KindForStatus(statusCode), "UNKNOWN_ERROR", strings.TrimSpace(string(body)), statusCode, nil)
	}

	return providers.NewProviderError(
		providerName,
		providers.KindForStatus(statusCode),
		errResp.Error.code(),
		errResp.Error.Message,
		statusCode,
		nil,
	)
}

// extractDelta keeps only output_text deltas and turns error events into errors
func extractDelta(ev providers.Event) (string, error) {
	data := bytes.TrimSpace(ev.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("[DONE]")) {
		return "", nil
	}

	var event streamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return "", providers.NewProviderError(providerName, providers.KindMalformed, "UNMARSHAL_ERROR", "Failed to decode stream event", 0, err)
	}

	switch event.Type {
	case eventOutputTextDelta:
		var delta string
		if err := json.Unmarshal(event.Delta, &delta); err != nil {
			return "", nil
		}
		return delta, nil
	case eventError:
		return "", providers.NewProviderError(providerName, kindForCode(event.code()), event.code(), event.Message, 0, nil)
	case eventResponseFailed:
		msg := "response failed"
		var code string
		if event.Response != nil && event.Response.Error != nil {
			msg = event.Response.Error.Message
			code = event.Response.Error.code()
		}
		return "", providers.NewProviderError(providerName, kindForCode(code), code, msg, 0, nil)
	}
	return "", nil
}

// kindForCode maps the error codes carried by stream events
func kindForCode(code string) providers.ErrorKind {
	switch code {
	case "rate_limit_exceeded", "429":
		return providers.KindRateLimited
	case "server_error", "500", "503":
		return providers.KindServerError
	case "timeout", "408":
		return providers.KindTimeout
	}
	return providers.KindUnknown
}

// Azure-specific request/response types

type responsesRequest struct {
	Model           string  `json:"model"`
	Input           string  `json:"input"`
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens *int    `json:"max_output_tokens,omitempty"`
	Stream          bool    `json:"stream,omitempty"`
}

type responsesResponse struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Output []outputItem `json:"output"`
}

type outputItem struct {
	Type    string          `json:"type"`
	Role    string          `json:"role"`
	Content []outputContent `json:"content"`
}

type outputContent struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Refusal string `json:"refusal,omitempty"`
}

// outputText concatenates every output_text part of message items.
// Refusals carry no output_text and therefore produce "".
func (r *responsesResponse) outputText() string {
	var sb strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" {
			continue
		}
		for _, c := range item.Content {
			if c.Type == "output_text" {
				sb.WriteString(c.Text)
			}
		}
	}
	return sb.String()
}

type streamEvent struct {
	Type     string          `json:"type"`
	Delta    json.RawMessage `json:"delta,omitempty"`
	Code     any             `json:"code,omitempty"`
	Message  string          `json:"message,omitempty"`
	Response *struct {
		Error *apiError `json:"error,omitempty"`
	} `json:"response,omitempty"`
}

func (e streamEvent) code() string {
	return codeString(e.Code)
}

type errorResponse struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func (e apiError) code() string {
	if c := codeString(e.Code); c != "" {
		return c
	}
	return e.Type
}

// codeString renders a code that may arrive as a JSON string or number
func codeString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		return fmt.Sprintf("%.0f", c)
	default:
		return fmt.Sprint(c)
	}
}
