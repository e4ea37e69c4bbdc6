package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client 调用已部署的发放函数（应用侧）
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient 创建发放函数客户端，apiKey 可为空
func NewClient(endpoint, apiKey string) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("payout endpoint is required")
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// RequestReward 请求发放奖励
//
// 函数返回 {success:false, error} 时转换为 error。
func (c *Client) RequestReward(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("apikey", c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payout request failed: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxRequestBytes))
	if err != nil {
		return nil, fmt.Errorf("read payout response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode payout response (HTTP %d): %w", httpResp.StatusCode, err)
	}
	if !resp.Success {
		if resp.Error == "" {
			resp.Error = fmt.Sprintf("payout failed with HTTP %d", httpResp.StatusCode)
		}
		return &resp, errors.New(resp.Error)
	}
	return &resp, nil
}
