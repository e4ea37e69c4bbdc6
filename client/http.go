package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// httpTransport JSON-RPC over HTTP 传输
type httpTransport struct {
	endpoint string
	client   *http.Client
	logger   Logger
	debug    bool
	nextID   atomic.Uint64
	retry    *RetryConfig
}

// newHTTPTransport 创建 HTTP 传输
func newHTTPTransport(config *Config) *httpTransport {
	httpCli := config.HTTPClient
	if httpCli == nil {
		timeout := time.Duration(config.Timeout) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpCli = &http.Client{Timeout: timeout}
	}

	retryConfig := config.Retry
	if retryConfig != nil && retryConfig.OnRetry == nil && config.Logger != nil {
		logger := config.Logger
		retryConfig.OnRetry = func(attempt int, err error) {
			logger.Warn("Retrying request", "attempt", attempt, "error", err)
		}
	}

	return &httpTransport{
		endpoint: config.Endpoint,
		client:   httpCli,
		logger:   config.Logger,
		debug:    config.Debug,
		retry:    retryConfig,
	}
}

// call 调用 JSON-RPC 方法并将 result 解码到 out
func (c *httpTransport) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	req := &jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return NewInvalidParamsError("marshal request failed", err)
	}

	if c.debug && c.logger != nil {
		c.logger.Debug("JSON-RPC request", "method", method, "body", string(reqBody))
	}

	var respBody []byte
	send := func() error {
		// 每次发送都创建新的请求（Body 只能读取一次）
		httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
		if reqErr != nil {
			return NewInvalidParamsError("create request failed", reqErr)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")

		httpResp, reqErr := c.client.Do(httpReq)
		if reqErr != nil {
			if errors.Is(reqErr, context.DeadlineExceeded) {
				return NewTimeoutError(reqErr)
			}
			return NewNetworkError(reqErr)
		}
		defer func() {
			if err := httpResp.Body.Close(); err != nil && c.logger != nil {
				c.logger.Warn("Failed to close response body", "error", err)
			}
		}()

		body, readErr := io.ReadAll(httpResp.Body)
		if readErr != nil {
			return NewNetworkError(fmt.Errorf("read response failed: %w", readErr))
		}

		if c.debug && c.logger != nil {
			c.logger.Debug("JSON-RPC response", "method", method, "status", httpResp.StatusCode, "body", string(body))
		}

		if httpResp.StatusCode != http.StatusOK {
			httpErr := fmt.Errorf("HTTP error: %d, body: %s", httpResp.StatusCode, string(body))
			if isRetryableHTTPStatus(httpResp.StatusCode) {
				return NewNetworkError(httpErr)
			}
			return &Error{Code: ErrCodeInvalidResponse, Message: "unexpected HTTP status", Err: httpErr}
		}

		respBody = body
		return nil
	}

	if c.retry != nil && idempotentMethod(method) {
		err = WithRetry(ctx, send, c.retry)
	} else {
		err = send()
	}
	if err != nil {
		return err
	}

	var jsonResp jsonRPCResponse
	if err := json.Unmarshal(respBody, &jsonResp); err != nil {
		return &Error{Code: ErrCodeInvalidResponse, Message: "unmarshal response failed", Err: err}
	}

	if jsonResp.Error != nil {
		return NewRPCError(jsonResp.Error.Code, jsonResp.Error.Message, jsonResp.Error.Data)
	}

	if out == nil {
		return nil
	}
	if len(jsonResp.Result) == 0 || string(jsonResp.Result) == "null" {
		return NewInvalidResponseError(fmt.Sprintf("%s: empty result", method))
	}
	if err := json.Unmarshal(jsonResp.Result, out); err != nil {
		return &Error{Code: ErrCodeInvalidResponse, Message: fmt.Sprintf("%s: decode result failed", method), Err: err}
	}
	return nil
}

// close 释放空闲连接
func (c *httpTransport) close() {
	c.client.CloseIdleConnections()
}

// jsonRPCRequest JSON-RPC请求结构
type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      uint64      `json:"id"`
}

// jsonRPCResponse JSON-RPC响应结构
type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
	ID      uint64          `json:"id"`
}

// jsonRPCError JSON-RPC错误结构
type jsonRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
