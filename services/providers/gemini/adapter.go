package gemini

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/upb/chat-gateway/services/providers"
)

const (
	providerName = "gemini"
	defaultModel = "gemini-2.5-flash"

	roleUser  = "user"
	roleModel = "model"
)

// modelsAPI is the subset of *genai.Models used by the adapter
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Adapter implements the Provider interface for Google Gemini
type Adapter struct {
	models modelsAPI
	model  string
}

// NewAdapter creates a new Gemini adapter backed by the genai client
func NewAdapter(ctx context.Context, config providers.ProviderConfig) (*Adapter, error) {
	if config.APIKey == "" {
		return nil, providers.MissingCredential(providerName, "api key")
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	cc := &genai.ClientConfig{
		APIKey:     config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: providers.NewHTTPClient(config.Timeout),
	}
	if config.BaseURL != "" {
		cc.HTTPOptions.BaseURL = config.BaseURL
	}
	if len(config.Headers) > 0 {
		cc.HTTPOptions.Headers = http.Header{}
		for k, v := range config.Headers {
			cc.HTTPOptions.Headers.Set(k, v)
		}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, &providers.ConfigError{Provider: providerName, Field: "client", Err: err}
	}

	return newAdapter(client.Models, config.Model), nil
}

func newAdapter(models modelsAPI, model string) *Adapter {
	return &Adapter{models: models, model: model}
}

// Builder adapts NewAdapter to providers.ProviderBuilder
func Builder(config providers.ProviderConfig) (providers.Provider, error) {
	return NewAdapter(context.Background(), config)
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return providerName
}

// Generate performs a blocking GenerateContent call
func (a *Adapter) Generate(ctx context.Context, messages []providers.Message, opts providers.GenerateOptions) (string, error) {
	cfg, contents, err := a.buildRequest(messages, opts)
	if err != nil {
		return "", err
	}

	resp, err := a.models.GenerateContent(ctx, a.model, contents, cfg)
	if err != nil {
		return "", convertError(err)
	}
	if resp == nil {
		return "", nil
	}
	return resp.Text(), nil
}

// Stream returns a lazy stream over GenerateContentStream chunks
func (a *Adapter) Stream(ctx context.Context, messages []providers.Message, opts providers.GenerateOptions) (providers.FragmentStream, error) {
	cfg, contents, err := a.buildRequest(messages, opts)
	if err != nil {
		return nil, err
	}

	return providers.NewSeqStream(ctx, func(ctx context.Context) iter.Seq2[string, error] {
		chunks := a.models.GenerateContentStream(ctx, a.model, contents, cfg)
		return func(yield func(string, error) bool) {
			for chunk, err := range chunks {
				if err != nil {
					yield("", convertError(err))
					return
				}
				if chunk == nil {
					continue
				}
				if !yield(chunk.Text(), nil) {
					return
				}
			}
		}
	}), nil
}

// SplitContents separates system messages into a system instruction and
// maps the remaining turns onto Gemini contents: assistant becomes model,
// unknown roles become user.
func SplitContents(messages []providers.Message) (string, []*genai.Content) {
	var systemParts []string
	contents := make([]*genai.Content, 0, len(messages))

	for _, m := range messages {
		if m.Content == "" {
			continue
		}

		switch m.Role {
		case providers.RoleSystem:
			systemParts = append(systemParts, m.Content)
		case providers.RoleAssistant:
			contents = append(contents, newContent(roleModel, m.Content))
		default:
			contents = append(contents, newContent(roleUser, m.Content))
		}
	}

	return strings.TrimSpace(strings.Join(systemParts, "\n")), contents
}

func newContent(role, text string) *genai.Content {
	return &genai.Content{
		Role:  role,
		Parts: []*genai.Part{genai.NewPartFromText(text)},
	}
}

func (a *Adapter) buildRequest(messages []providers.Message, opts providers.GenerateOptions) (*genai.GenerateContentConfig, []*genai.Content, error) {
	system, contents := SplitContents(messages)
	if len(contents) == 0 {
		return nil, nil, providers.NewProviderError(providerName, providers.KindMalformed, "EMPTY_INPUT", "no contents", 0, providers.ErrNoMessages)
	}

	temperature := float32(opts.Temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(system)},
		}
	}
	return cfg, contents, nil
}

// convertError tags genai failures with an ErrorKind
func convertError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return providers.NewProviderError(providerName, providers.KindForStatus(apiErr.Code), apiErr.Status, apiErr.Message, apiErr.Code, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return providers.NewProviderError(providerName, providers.KindForStatus(apiErrPtr.Code), apiErrPtr.Status, apiErrPtr.Message, apiErrPtr.Code, err)
	}
	if errors.Is(err, context.Canceled) {
		return providers.NewProviderError(providerName, providers.KindConnection, "CANCELED", "request canceled", 0, err)
	}
	return providers.NewProviderError(providerName, providers.KindForTransport(err), "HTTP_ERROR", "request failed", 0, err)
}
