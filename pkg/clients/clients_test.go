package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/tmc/langchaingo/llms"

	"github.com/aretw0/arbor/pkg/ports"
)

func TestMock(t *testing.T) {
	ctx := context.Background()
	m := NewMock("first")
	msgs := []ports.Message{{Role: "user", Content: "echo me"}}

	out, err := m.Generate(ctx, msgs, ports.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "first", out)

	out, err = m.Generate(ctx, msgs, ports.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "echo me", out)
	assert.Len(t, m.Calls(), 2)
}

func TestFactory(t *testing.T) {
	f := NewFactory()
	assert.Equal(t, []string{MockName}, f.Names())

	mock := f.Client(MockName)
	assert.Same(t, mock, f.Client(MockName), "clients are cached per name")

	missing := f.Client("gpt-4o")
	assert.Equal(t, "gpt-4o", missing.Name())
	_, err := missing.Generate(context.Background(), nil, ports.GenerateOptions{})
	assert.Error(t, err)

	boom := errors.New("boom")
	f.Register("broken", func(string) (ports.ModelClient, error) { return nil, boom })
	_, err = f.Client("broken").Generate(context.Background(), nil, ports.GenerateOptions{})
	assert.ErrorIs(t, err, boom)

	custom := NewMock("x")
	f.Set("custom", custom)
	assert.Same(t, custom, f.Client("custom"))

	f.Fallback(func(model string) (ports.ModelClient, error) { return NewMock(model), nil })
	out, err := f.Client("anything").Generate(context.Background(), nil, ports.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "anything", out)
}

// scriptedModel records the last call and answers with reply.
type scriptedModel struct {
	reply    string
	err      error
	messages []llms.MessageContent
	options  llms.CallOptions
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	m.options = llms.CallOptions{}
	for _, opt := range options {
		opt(&m.options)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestChat(t *testing.T) {
	model := &scriptedModel{reply: "hi there"}
	c := NewChat("tiny", model)
	assert.Equal(t, "tiny", c.Name())

	out, err := c.Generate(context.Background(), []ports.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "look", Images: []string{"data:image/png;base64,AA"}},
		{Role: "assistant", Content: "ok"},
	}, ports.GenerateOptions{Kwargs: map[string]any{
		"temperature": 0.2,
		"max_tokens":  64,
		"stop":        []any{"END"},
		"json":        true,
		"topic":       "ignored",
	}})
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)

	require.Len(t, model.messages, 3)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, model.messages[2].Role)
	require.Len(t, model.messages[1].Parts, 2)
	assert.Equal(t, llms.TextPart("look"), model.messages[1].Parts[0])
	assert.Equal(t, llms.ImageURLPart("data:image/png;base64,AA"), model.messages[1].Parts[1])

	assert.Equal(t, 0.2, model.options.Temperature)
	assert.Equal(t, 64, model.options.MaxTokens)
	assert.Equal(t, []string{"END"}, model.options.StopWords)
	assert.True(t, model.options.JSONMode)
}

func TestChatError(t *testing.T) {
	boom := errors.New("slow down")
	_, err := NewChat("tiny", &scriptedModel{err: boom}).Generate(context.Background(), nil, ports.GenerateOptions{})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "tiny")
}

func TestRemoteOpenAICompatible(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var decoded map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&decoded))
		body, _ = json.Marshal(decoded)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"tiny",` +
			`"choices":[{"index":0,"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	f := NewFactory()
	f.Fallback(Remote(RemoteConfig{BaseURL: srv.URL + "/v1", APIKey: "secret", HTTPClient: srv.Client()}))

	c := f.Client("tiny")
	assert.Equal(t, "tiny", c.Name())
	out, err := c.Generate(context.Background(), []ports.Message{{Role: "user", Content: "hello"}}, ports.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
	assert.Equal(t, "tiny", gjson.GetBytes(body, "model").String())
	assert.Equal(t, "user", gjson.GetBytes(body, "messages.0.role").String())
}

func TestRemoteMissingCredentials(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := Remote(RemoteConfig{})("anthropic/claude-3-5-haiku-latest")
	assert.Error(t, err)

	f := NewFactory()
	f.Fallback(Remote(RemoteConfig{}))
	_, err = f.Client("anthropic/claude-3-5-haiku-latest").Generate(context.Background(), nil, ports.GenerateOptions{})
	assert.Error(t, err)
}
