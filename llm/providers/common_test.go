package providers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/BaSui01/modguard/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		msg       string
		wantCode  llm.ErrorCode
		retryable bool
	}{
		{"401", http.StatusUnauthorized, "Invalid API key", llm.ErrUnauthorized, false},
		{"403", http.StatusForbidden, "denied", llm.ErrForbidden, false},
		{"429", http.StatusTooManyRequests, "rate limit", llm.ErrRateLimited, true},
		{"400 quota", http.StatusBadRequest, "insufficient QUOTA", llm.ErrQuotaExceeded, false},
		{"400 credit", http.StatusBadRequest, "no credit left", llm.ErrQuotaExceeded, false},
		{"400 content policy", http.StatusBadRequest, "rejected by content_policy", llm.ErrContentFiltered, false},
		{"400 plain", http.StatusBadRequest, "bad image", llm.ErrInvalidRequest, false},
		{"408", http.StatusRequestTimeout, "", llm.ErrUpstreamTimeout, true},
		{"502", http.StatusBadGateway, "", llm.ErrUpstreamError, true},
		{"503", http.StatusServiceUnavailable, "", llm.ErrUpstreamError, true},
		{"504", http.StatusGatewayTimeout, "", llm.ErrUpstreamTimeout, true},
		{"529", 529, "overloaded", llm.ErrModelOverloaded, true},
		{"418", http.StatusTeapot, "", llm.ErrUpstreamError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapHTTPError(tt.status, tt.msg, "openai")
			assert.Equal(t, tt.wantCode, err.Code)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, tt.status, err.HTTPStatus)
			assert.Equal(t, tt.msg, err.Message)
			assert.Equal(t, "openai", err.Provider)
		})
	}
}

func TestMapHTTPError_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		status := rapid.IntRange(400, 599).Draw(t, "status")
		msg := rapid.String().Draw(t, "msg")
		err := MapHTTPError(status, msg, "p")

		if err.Code == "" {
			t.Fatalf("empty code for status %d", status)
		}
		if status >= 500 && !err.Retryable {
			t.Fatalf("5xx status %d must be retryable", status)
		}
		if err.HTTPStatus != status || err.Message != msg {
			t.Fatalf("status/message not preserved")
		}
	})
}

func TestReadErrorMessage(t *testing.T) {
	assert.Equal(t, "bad key (type: invalid_request_error)",
		ReadErrorMessage(strings.NewReader(`{"error":{"message":"bad key","type":"invalid_request_error"}}`)))
	assert.Equal(t, "plain", ReadErrorMessage(strings.NewReader(`{"error":{"message":"plain"}}`)))
	assert.Equal(t, "upstream exploded", ReadErrorMessage(strings.NewReader("upstream exploded\n")))
}

func TestConvertMessagesToOpenAI(t *testing.T) {
	out := ConvertMessagesToOpenAI([]llm.Message{
		llm.NewSystemMessage("sys"),
		llm.NewUserMessageWithParts(llm.TextPart("look"), llm.ImageDataPart("image/png", []byte{1})),
	})
	require.Len(t, out, 2)
	assert.Equal(t, "system", out[0].Role)
	assert.Equal(t, "sys", out[0].Content)

	parts, ok := out[1].Content.([]OpenAICompatContentPart)
	require.True(t, ok)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].Type)
	assert.Nil(t, parts[0].ImageURL)
	assert.Equal(t, "image_url", parts[1].Type)
	assert.Equal(t, "data:image/png;base64,AQ==", parts[1].ImageURL.URL)
}

func TestNewOpenAICompatRequest_KeepsZeroTemperature(t *testing.T) {
	body := NewOpenAICompatRequest(&llm.ChatRequest{
		Messages:    []llm.Message{llm.NewUserMessage("x")},
		Temperature: 0,
		MaxTokens:   512,
	}, "gpt-4o-mini")
	require.NotNil(t, body.Temperature)
	assert.Equal(t, float32(0), *body.Temperature)
	assert.Equal(t, 512, body.MaxTokens)
}

func TestToLLMChatResponse(t *testing.T) {
	resp := ToLLMChatResponse(OpenAICompatResponse{
		ID:    "id-1",
		Model: "gpt-4o-mini",
		Choices: []OpenAICompatChoice{
			{Index: 0, FinishReason: "stop", Message: OpenAICompatResponseMessage{Role: "assistant", Refusal: "I can't help with that."}},
		},
		Usage: &OpenAICompatUsage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7},
	}, "openai")

	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "I can't help with that.", resp.Choices[0].Message.Content)
	assert.Equal(t, llm.RoleAssistant, resp.Choices[0].Message.Role)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
	assert.Equal(t, "openai", resp.Provider)
}

func TestChooseModel(t *testing.T) {
	assert.Equal(t, "req", ChooseModel(&llm.ChatRequest{Model: "req"}, "def", "fb"))
	assert.Equal(t, "def", ChooseModel(&llm.ChatRequest{}, "def", "fb"))
	assert.Equal(t, "fb", ChooseModel(nil, "", "fb"))
}
