package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/modguard/types"
	"go.uber.org/zap"
)

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0
	DefaultMaxTokens   = 512
)

// ChatModelOptions 固定的生成参数，每次调用都会携带。
type ChatModelOptions struct {
	Model       string
	Temperature float32
	MaxTokens   int
	// Timeout 单次调用超时，0 表示只受调用方 ctx 约束
	Timeout time.Duration
}

// DefaultChatModelOptions 返回 gpt-4o-mini / temperature 0 / 512 tokens。
func DefaultChatModelOptions() ChatModelOptions {
	return ChatModelOptions{
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// CallRecord 描述一次模型调用，供指标采集使用。
type CallRecord struct {
	Provider string
	Model    string
	Status   string
	Duration time.Duration
	Usage    ChatUsage
}

// ChatModel 把 Provider 包装成 "消息列表 -> 文本" 的单次调用能力。
// 它不持有会话状态，可以被多个流水线并发调用。
type ChatModel struct {
	provider Provider
	opts     ChatModelOptions
	onCall   func(CallRecord)
	logger   *zap.Logger
}

// ChatModelOption 可选配置
type ChatModelOption func(*ChatModel)

// WithCallObserver 注册调用回调（通常连接到 metrics.Collector）。
func WithCallObserver(fn func(CallRecord)) ChatModelOption {
	return func(m *ChatModel) { m.onCall = fn }
}

// WithChatModelLogger 设置日志
func WithChatModelLogger(logger *zap.Logger) ChatModelOption {
	return func(m *ChatModel) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewChatModel 创建 ChatModel。provider 为空视为配置错误。
func NewChatModel(provider Provider, opts ChatModelOptions, options ...ChatModelOption) (*ChatModel, error) {
	if provider == nil {
		return nil, types.NewConfigurationError("llm provider is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = DefaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	m := &ChatModel{
		provider: provider,
		opts:     opts,
		logger:   zap.NewNop(),
	}
	for _, o := range options {
		o(m)
	}
	m.logger = m.logger.With(zap.String("component", "chat_model"), zap.String("provider", provider.Name()))
	return m, nil
}

// Options 返回当前生成参数。
func (m *ChatModel) Options() ChatModelOptions { return m.opts }

// Invoke 发送消息并返回第一个 choice 的文本内容。
func (m *ChatModel) Invoke(ctx context.Context, messages []Message) (string, error) {
	if m.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()
	}

	req := &ChatRequest{
		Model:       m.opts.Model,
		Messages:    messages,
		MaxTokens:   m.opts.MaxTokens,
		Temperature: m.opts.Temperature,
		Timeout:     m.opts.Timeout,
	}
	if traceID, ok := types.TraceID(ctx); ok {
		req.TraceID = traceID
	}

	start := time.Now()
	resp, err := m.provider.Completion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		m.observe(CallRecord{Provider: m.provider.Name(), Model: m.opts.Model, Status: "error", Duration: duration})
		m.logger.Debug("completion failed", zap.Duration("duration", duration), zap.Error(err))
		return "", normalizeCallError(err, m.provider.Name())
	}

	m.observe(CallRecord{
		Provider: m.provider.Name(),
		Model:    firstNonEmpty(resp.Model, m.opts.Model),
		Status:   "success",
		Duration: duration,
		Usage:    resp.Usage,
	})

	if len(resp.Choices) == 0 {
		return "", &Error{
			Code:       ErrEmptyCompletion,
			Message:    "completion returned no choices",
			HTTPStatus: http.StatusBadGateway,
			Provider:   m.provider.Name(),
		}
	}
	return resp.Choices[0].Message.Text(), nil
}

func (m *ChatModel) observe(rec CallRecord) {
	if m.onCall != nil {
		m.onCall(rec)
	}
}

// normalizeCallError 把 ctx 取消/超时映射成 llm.Error，其余错误原样返回。
func normalizeCallError(err error, provider string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: ErrUpstreamTimeout, Message: err.Error(), HTTPStatus: http.StatusGatewayTimeout, Retryable: true, Provider: provider}
	case errors.Is(err, context.Canceled):
		return &Error{Code: ErrUpstreamError, Message: err.Error(), Provider: provider}
	default:
		return err
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
