package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"time"
)

// RetryConfig 重试配置
//
// **注意**：
// - 生命周期核心不做自动重试；该配置只供调用方显式组合使用
// - 写路径在提交之后绝不能盲目重试（可能导致重复调用），重试必须从 BUILT 重新开始
type RetryConfig struct {
	// MaxRetries 最大重试次数
	MaxRetries int
	// InitialDelay 第一次重试前的等待
	InitialDelay time.Duration
	// MaxDelay 单次等待上限
	MaxDelay time.Duration
	// BackoffMultiplier 退避倍数（<1 时按 1 处理）
	BackoffMultiplier float64
	// Retryable 判断错误是否可重试的函数
	Retryable func(error) bool
	// OnRetry 重试前的回调函数
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig 返回默认重试配置
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
		Retryable:         IsRetryableError,
	}
}

// IsRetryableError 判断传输层错误是否可重试
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if cErr, ok := IsClientError(err); ok {
		switch cErr.Code {
		case ErrCodeNetwork, ErrCodeTimeout:
			return true
		case ErrCodeRPCError, ErrCodeNotFound, ErrCodeInvalidParams, ErrCodeInvalidResponse:
			return false
		}
	}

	// sendTransaction 明确要求稍后再试
	if sErr, ok := IsSubmitError(err); ok {
		return sErr.Status == SendStatusTryAgainLater
	}

	// 网络错误（连接失败、超时等）
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// DNS 错误
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	errMsg := err.Error()
	for _, substr := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"timeout",
	} {
		if strings.Contains(errMsg, substr) {
			return true
		}
	}

	return false
}

// isRetryableHTTPStatus 判断 HTTP 状态码是否可重试
func isRetryableHTTPStatus(statusCode int) bool {
	// HTTP 5xx 错误（服务器错误）
	if statusCode >= 500 && statusCode < 600 {
		return true
	}
	// HTTP 429 错误（请求过多）
	return statusCode == 429
}

// calculateBackoffDelay 第 attempt 次（从 0 开始）重试前的等待
func calculateBackoffDelay(attempt int, config *RetryConfig) time.Duration {
	multiplier := math.Max(config.BackoffMultiplier, 1)
	delay := time.Duration(float64(config.InitialDelay) * math.Pow(multiplier, float64(attempt)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		return config.MaxDelay
	}
	return delay
}

// idempotentMethod 传输层可以安全重发的方法
//
// sendTransaction 不在其中：响应丢失时重发可能让同一笔交易进入两次提交流程，
// 结果未知时应通过 getTransaction 查询哈希。
func idempotentMethod(method string) bool {
	return method != "sendTransaction"
}

// WithRetry 带重试的函数执行器
func WithRetry(ctx context.Context, fn func() error, config *RetryConfig) error {
	if config == nil {
		return fn()
	}

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		// 如果是最后一次尝试，直接返回错误
		if attempt >= config.MaxRetries {
			break
		}

		// 判断是否可重试
		retryable := config.Retryable
		if retryable == nil {
			retryable = IsRetryableError
		}
		if !retryable(err) {
			return err
		}

		delay := calculateBackoffDelay(attempt, config)

		if config.OnRetry != nil {
			config.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	// 所有重试都失败，返回最后一个错误
	return fmt.Errorf("retry failed after %d attempts: %w", config.MaxRetries+1, lastErr)
}
