package verdict

import (
	"context"
	"fmt"
	"time"

	"kb-auditor/internal/config"
	"kb-auditor/pkg/logging"
)

// DefaultTimeout 单次模型调用的默认超时
const DefaultTimeout = 30 * time.Second

// Provider 模型调用边界：给定提示词返回文本
//
// 重试与熔断由具体实现自行负责
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Evaluator 审核器依赖的结论接口
type Evaluator interface {
	Evaluate(ctx context.Context, query, response string) (*Result, error)
}

// Engine 组合提示词、模型调用和解析
type Engine struct {
	provider Provider
	timeout  time.Duration
	logger   *logging.Logger
}

// NewEngine 创建结论引擎，timeout<=0 使用默认值
func NewEngine(p Provider, timeout time.Duration, logger *logging.Logger) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{provider: p, timeout: timeout, logger: logger.Named("verdict")}
}

// Evaluate 请求模型判断回答是否错误
//
// 返回的错误均可用 errors.Is 匹配包内的哨兵错误；任何错误都意味着没有结论
func (e *Engine) Evaluate(ctx context.Context, query, response string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	text, err := e.provider.Complete(ctx, BuildPrompt(query, response))
	if err != nil {
		e.logger.WithError(err).Warn("model call failed",
			"provider", e.provider.Name(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	r, err := Parse(text)
	if err != nil {
		e.logger.WithError(err).Warn("unusable verdict", "provider", e.provider.Name(), "kind", Kind(err))
		return nil, err
	}
	return r, nil
}

// NewProvider 按配置创建模型提供方
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIProvider(cfg), nil
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
