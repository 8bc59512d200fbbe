package providers

import (
	"net/http"
	"time"

	"github.com/BaSui01/modguard/internal/tlsutil"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// HTTPClientConfig 模型 HTTP 客户端配置
type HTTPClientConfig struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// DefaultHTTPClientConfig 返回默认配置
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:      30 * time.Second,
		MaxRetries:   2,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
	}
}

// NewHTTPClient 返回带重试的标准 http.Client。
// 连接错误、429 与 5xx（501 除外）会按指数退避重试，并尊重 Retry-After。
func NewHTTPClient(cfg HTTPClientConfig, logger *zap.Logger) *http.Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	rc := retryablehttp.NewClient()
	rc.HTTPClient = tlsutil.SecureHTTPClient(cfg.Timeout)
	rc.RetryMax = cfg.MaxRetries
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	rc.Logger = retryablehttp.LeveledLogger(leveledZap{logger.With(zap.String("component", "llm_http")).Sugar()})
	// 最后一次失败时返回原始响应，交给 MapHTTPError 处理
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := rc.StandardClient()
	client.Timeout = cfg.Timeout
	return client
}

// leveledZap 将重试日志接入 zap，中间失败降级为 warn
type leveledZap struct {
	inner *zap.SugaredLogger
}

func (l leveledZap) Error(msg string, keysAndValues ...interface{}) {
	l.inner.Warnw(msg, keysAndValues...)
}

func (l leveledZap) Warn(msg string, keysAndValues ...interface{}) {
	l.inner.Warnw(msg, keysAndValues...)
}

func (l leveledZap) Info(msg string, keysAndValues ...interface{}) {
	l.inner.Infow(msg, keysAndValues...)
}

func (l leveledZap) Debug(msg string, keysAndValues ...interface{}) {
	l.inner.Debugw(msg, keysAndValues...)
}
