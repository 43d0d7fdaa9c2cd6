package clients

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/aretw0/arbor/pkg/ports"
)

// Chat adapts a langchaingo model to ports.ModelClient.
type Chat struct {
	name  string
	model llms.Model
}

// NewChat wraps model under name.
func NewChat(name string, model llms.Model) *Chat {
	return &Chat{name: name, model: model}
}

func (c *Chat) Name() string { return c.name }

// Generate sends messages and returns the first choice. Known node kwargs
// (temperature, max_tokens, top_p, stop, seed, json) become call options;
// the rest are ignored.
func (c *Chat) Generate(ctx context.Context, messages []ports.Message, opts ports.GenerateOptions) (string, error) {
	resp, err := c.model.GenerateContent(ctx, toMessageContent(messages), callOptions(opts.Kwargs)...)
	if err != nil {
		return "", fmt.Errorf("model %s: %w", c.name, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("model %s: response has no choices", c.name)
	}
	return resp.Choices[0].Content, nil
}

func toMessageContent(messages []ports.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		var role llms.ChatMessageType
		switch m.Role {
		case "system":
			role = llms.ChatMessageTypeSystem
		case "assistant":
			role = llms.ChatMessageTypeAI
		default:
			role = llms.ChatMessageTypeHuman
		}
		parts := []llms.ContentPart{llms.TextPart(m.Content)}
		for _, img := range m.Images {
			parts = append(parts, llms.ImageURLPart(img))
		}
		out = append(out, llms.MessageContent{Role: role, Parts: parts})
	}
	return out
}

func callOptions(kwargs map[string]any) []llms.CallOption {
	var opts []llms.CallOption
	if v, ok := number(kwargs["temperature"]); ok {
		opts = append(opts, llms.WithTemperature(v))
	}
	if v, ok := number(kwargs["top_p"]); ok {
		opts = append(opts, llms.WithTopP(v))
	}
	if v, ok := number(kwargs["max_tokens"]); ok {
		opts = append(opts, llms.WithMaxTokens(int(v)))
	}
	if v, ok := number(kwargs["seed"]); ok {
		opts = append(opts, llms.WithSeed(int(v)))
	}
	if words := stopWords(kwargs["stop"]); len(words) > 0 {
		opts = append(opts, llms.WithStopWords(words))
	}
	if v, _ := kwargs["json"].(bool); v {
		opts = append(opts, llms.WithJSONMode())
	}
	return opts
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func stopWords(v any) []string {
	switch s := v.(type) {
	case string:
		return []string{s}
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if w, ok := e.(string); ok {
				out = append(out, w)
			}
		}
		return out
	}
	return nil
}

// RemoteConfig locates the hosted models. Empty fields fall back to the
// providers' own environment variables (OPENAI_API_KEY, OPENAI_BASE_URL,
// ANTHROPIC_API_KEY).
type RemoteConfig struct {
	// BaseURL of an OpenAI compatible endpoint, e.g. "http://localhost:8000/v1".
	BaseURL string
	APIKey  string
	// OllamaURL of the Ollama server. Defaults to http://localhost:11434.
	OllamaURL  string
	HTTPClient *http.Client
}

// Remote returns a Constructor for model names of the form
// [provider/]model: "ollama/llama3", "anthropic/claude-3-5-haiku-latest",
// "openai/gpt-4o", or a bare name served by the OpenAI compatible endpoint.
// Use it as the Factory fallback.
func Remote(cfg RemoteConfig) Constructor {
	return func(name string) (ports.ModelClient, error) {
		provider, model, found := strings.Cut(name, "/")
		if !found {
			provider, model = "openai", name
		}
		var (
			llm llms.Model
			err error
		)
		switch provider {
		case "openai":
			llm, err = newOpenAI(cfg, model)
		case "ollama":
			llm, err = newOllama(cfg, model)
		case "anthropic":
			llm, err = newAnthropic(cfg, model)
		default:
			// Names like "org/model" on an OpenAI compatible server.
			llm, err = newOpenAI(cfg, name)
		}
		if err != nil {
			return nil, fmt.Errorf("%s client for %q: %w", provider, model, err)
		}
		return NewChat(name, llm), nil
	}
}

func newOpenAI(cfg RemoteConfig, model string) (llms.Model, error) {
	opts := []openai.Option{openai.WithModel(model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, openai.WithHTTPClient(cfg.HTTPClient))
	}
	return openai.New(opts...)
}

func newOllama(cfg RemoteConfig, model string) (llms.Model, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if cfg.OllamaURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.OllamaURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, ollama.WithHTTPClient(cfg.HTTPClient))
	}
	return ollama.New(opts...)
}

func newAnthropic(_ RemoteConfig, model string) (llms.Model, error) {
	return anthropic.New(anthropic.WithModel(model))
}
