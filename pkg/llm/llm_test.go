package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaudeChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-test", body["model"])

		_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "{\"steps\": []}"}]}`))
	}))
	defer srv.Close()

	c := NewClaude("test-key", WithModel("claude-test"), WithBaseURL(srv.URL+"/"))
	out, err := c.Chat(context.Background(), "plan please")
	require.NoError(t, err)
	assert.Equal(t, `{"steps": []}`, out)
	assert.Equal(t, "claude-test", c.GetModel())
}

func TestClaudeChatErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limited"}}`))
	}))
	defer srv.Close()

	_, err := NewClaude("k", WithBaseURL(srv.URL), WithMaxRetries(0)).Chat(context.Background(), "x")
	require.Error(t, err)
	assert.EqualError(t, err, "Claude API error (status 429): rate limited")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Retryable())
}

func TestClaudeChatJoinsTextBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body claudeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 512, body.MaxTokens)
		_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "a"}, {"type": "tool_use"}, {"type": "text", "text": "b"}]}`))
	}))
	defer srv.Close()

	out, err := NewClaude("k", WithBaseURL(srv.URL), WithMaxTokens(512)).Chat(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "ab", out)
}

func TestChatRetriesRetryableErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error": {"message": "overloaded"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "done"}]}`))
	}))
	defer srv.Close()

	c := NewClaude("k", WithBaseURL(srv.URL), WithMaxRetries(2))
	c.retryInitial = time.Millisecond

	out, err := c.Chat(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestChatGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	o := NewOpenAI("sk", WithBaseURL(srv.URL), WithMaxRetries(1))
	o.retryInitial = time.Millisecond

	_, err := o.Chat(context.Background(), "x")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIChatPlainErrorBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad request\n"))
	}))
	defer srv.Close()

	_, err := NewOpenAI("sk", WithBaseURL(srv.URL)).Chat(context.Background(), "x")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "bad request", apiErr.Message)
	assert.False(t, apiErr.Retryable())
}

func TestClaudeChatEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content": []}`))
	}))
	defer srv.Close()

	_, err := NewClaude("k", WithBaseURL(srv.URL)).Chat(context.Background(), "x")
	assert.EqualError(t, err, "empty response from Claude")
}

func TestOpenAIChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "hello"}}]}`))
	}))
	defer srv.Close()

	out, err := NewOpenAI("sk-test", WithBaseURL(srv.URL)).Chat(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestOpenAIChatHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewOpenAI("sk-test", WithBaseURL(srv.URL)).Chat(ctx, "hi")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCreateFromEnv(t *testing.T) {
	t.Run("defaults to claude", func(t *testing.T) {
		t.Setenv("LLM_PROVIDER", "")
		t.Setenv("ANTHROPIC_API_KEY", "a-key")
		t.Setenv("CLAUDE_MODEL", "")

		l, err := CreateFromEnv("", "", "")
		require.NoError(t, err)
		c, ok := l.(*Claude)
		require.True(t, ok)
		assert.Equal(t, defaultClaudeModel, c.GetModel())
	})

	t.Run("explicit provider and model", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "o-key")

		l, err := CreateFromEnv("OpenAI", "gpt-test", "")
		require.NoError(t, err)
		o, ok := l.(*OpenAI)
		require.True(t, ok)
		assert.Equal(t, "gpt-test", o.GetModel())
	})

	t.Run("missing key", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")

		_, err := CreateFromEnv("openai", "", "")
		assert.EqualError(t, err, "OPENAI_API_KEY environment variable not set")
	})

	t.Run("ollama needs no key", func(t *testing.T) {
		t.Setenv("OLLAMA_MODEL", "")
		l, err := CreateFromEnv("ollama", "mistral", "http://127.0.0.1:11434")
		require.NoError(t, err)
		o, ok := l.(*Ollama)
		require.True(t, ok)
		assert.Equal(t, "mistral", o.GetModel())
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := CreateFromEnv("bard", "", "")
		assert.Error(t, err)
	})
}

func TestWithTimeout(t *testing.T) {
	c := NewClaude("k", WithTimeout(5*time.Second))
	assert.Equal(t, 5*time.Second, c.client.Timeout)
	assert.Equal(t, defaultHTTPTimeout, NewClaude("k", WithTimeout(0)).client.Timeout)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(Settings{Provider: ProviderClaude})
	assert.EqualError(t, err, "Claude API key is required")

	l, err := New(Settings{Provider: ProviderOpenAI, APIKey: "k", Model: "gpt-x"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-x", l.(*OpenAI).GetModel())
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported(""))
	assert.True(t, IsSupported("Ollama"))
	assert.False(t, IsSupported("bard"))
}

func TestFuncAdapter(t *testing.T) {
	var l LLM = Func(func(_ context.Context, p string) (string, error) { return "echo: " + p, nil })
	out, err := l.Chat(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "echo: x", out)
}
