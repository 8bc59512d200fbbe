package openaicompat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/modguard/llm"
	"github.com/BaSui01/modguard/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestProvider(t *testing.T, baseURL string, maxRetries int) *Provider {
	t.Helper()
	p, err := New(Config{
		APIKey:       "sk-test",
		BaseURL:      baseURL,
		DefaultModel: "gpt-4o-mini",
		Timeout:      5 * time.Second,
		MaxRetries:   maxRetries,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	return p
}

func completionJSON(content string) string {
	return `{"id":"chatcmpl-1","model":"gpt-4o-mini","created":1700000000,` +
		`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"` + content + `"}}],` +
		`"usage":{"prompt_tokens":12,"completion_tokens":1,"total_tokens":13}}`
}

// ---------------------------------------------------------------------------
// New() constructor
// ---------------------------------------------------------------------------

func TestNew_Defaults(t *testing.T) {
	p, err := New(Config{APIKey: "sk"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, DefaultBaseURL, p.Cfg.BaseURL)
	assert.Equal(t, "/v1/chat/completions", p.Cfg.EndpointPath)
	assert.Equal(t, "/v1/models", p.Cfg.ModelsEndpoint)
	assert.Equal(t, 30*time.Second, p.Client.Timeout)
	assert.NotNil(t, p.Logger)
}

func TestNew_MissingAPIKey(t *testing.T) {
	for _, key := range []string{"", "   "} {
		_, err := New(Config{APIKey: key}, nil)
		require.Error(t, err)
		assert.True(t, types.IsErrorCode(err, types.ErrConfiguration))
	}
}

// ---------------------------------------------------------------------------
// Completion
// ---------------------------------------------------------------------------

func TestCompletion_TextRequest(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "trace-1", r.Header.Get("X-Request-ID"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON("rejected"))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL, 0)
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		TraceID:     "trace-1",
		Messages:    []llm.Message{llm.NewSystemMessage("sys"), llm.NewUserMessage("hello")},
		MaxTokens:   512,
		Temperature: 0,
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "rejected", resp.Choices[0].Message.Content)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, 13, resp.Usage.TotalTokens)
	assert.Equal(t, int64(1700000000), resp.CreatedAt.Unix())

	// temperature 0 must be on the wire
	temp, ok := body["temperature"]
	require.True(t, ok, "temperature missing from request body")
	assert.Equal(t, float64(0), temp)
	assert.Equal(t, float64(512), body["max_tokens"])
	assert.Equal(t, "gpt-4o-mini", body["model"])

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "hello", msgs[1].(map[string]any)["content"])
}

func TestCompletion_ImageParts(t *testing.T) {
	var body struct {
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = io.WriteString(w, completionJSON("a cat"))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL, 0)
	_, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{
			llm.NewSystemMessage("You are an Image Analyzer. Be concise and neutral."),
			llm.NewUserMessageWithParts(
				llm.TextPart("Analyze the following image."),
				llm.ImageDataPart("image/jpeg", []byte("jpg")),
			),
		},
	})
	require.NoError(t, err)
	require.Len(t, body.Messages, 2)

	var parts []map[string]any
	require.NoError(t, json.Unmarshal(body.Messages[1].Content, &parts))
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0]["type"])
	assert.Equal(t, "Analyze the following image.", parts[0]["text"])
	assert.Equal(t, "image_url", parts[1]["type"])
	assert.Equal(t, "data:image/jpeg;base64,anBn", parts[1]["image_url"].(map[string]any)["url"])
}

func TestCompletion_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCode  llm.ErrorCode
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`, llm.ErrUnauthorized, false},
		{"quota", http.StatusBadRequest, `{"error":{"message":"You exceeded your current quota"}}`, llm.ErrQuotaExceeded, false},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"invalid image"}}`, llm.ErrInvalidRequest, false},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, llm.ErrRateLimited, true},
		{"server error", http.StatusInternalServerError, `oops`, llm.ErrUpstreamError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			p := newTestProvider(t, srv.URL, 0)
			_, err := p.Completion(context.Background(), &llm.ChatRequest{Messages: []llm.Message{llm.NewUserMessage("x")}})
			require.Error(t, err)
			llmErr, ok := err.(*llm.Error)
			require.True(t, ok, "expected *llm.Error, got %T", err)
			assert.Equal(t, tt.wantCode, llmErr.Code)
			assert.Equal(t, tt.retryable, llmErr.Retryable)
			assert.Equal(t, tt.status, llmErr.HTTPStatus)
			assert.Equal(t, "openai", llmErr.Provider)
		})
	}
}

func TestCompletion_RetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, completionJSON("approved"))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL, 3)
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{Messages: []llm.Message{llm.NewUserMessage("x")}})
	require.NoError(t, err)
	assert.Equal(t, "approved", resp.Choices[0].Message.Content)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCompletion_RetriesExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL, 1)
	_, err := p.Completion(context.Background(), &llm.ChatRequest{Messages: []llm.Message{llm.NewUserMessage("x")}})
	require.Error(t, err)
	assert.Equal(t, llm.ErrUpstreamError, err.(*llm.Error).Code)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCompletion_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "{not json")
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL, 0)
	_, err := p.Completion(context.Background(), &llm.ChatRequest{Messages: []llm.Message{llm.NewUserMessage("x")}})
	require.Error(t, err)
	assert.Equal(t, llm.ErrUpstreamError, err.(*llm.Error).Code)
}

func TestCompletion_EmptyMessages(t *testing.T) {
	p := newTestProvider(t, "http://127.0.0.1:1", 0)
	_, err := p.Completion(context.Background(), &llm.ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, llm.ErrInvalidRequest, err.(*llm.Error).Code)
}

func TestCompletion_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Completion(ctx, &llm.ChatRequest{Messages: []llm.Message{llm.NewUserMessage("x")}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"object":"list","data":[]}`)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL, 0)
	status, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
}
