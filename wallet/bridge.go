package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// BridgeSignMethod 桥接页面实现的 JSON-RPC 方法名
const BridgeSignMethod = "signTransaction"

// BridgeConfig 桥接签名者配置
type BridgeConfig struct {
	// Endpoint 桥接服务地址（ws:// 或 wss://，http(s):// 会自动转换）
	Endpoint string
	// HandshakeTimeout 握手超时（默认 10 秒）
	HandshakeTimeout time.Duration
	// RequestTimeout 单次签名请求超时（0 表示只受 ctx 控制，签名可能等待人工确认）
	RequestTimeout time.Duration
}

// BridgeSigner 通过 websocket JSON-RPC 连接浏览器页面，由页面转发给扩展钱包签名
type BridgeSigner struct {
	endpoint       string
	conn           *websocket.Conn
	requestTimeout time.Duration

	writeMu   sync.Mutex
	closed    int32
	closeOnce sync.Once
	nextID    uint64
	requests  map[uint64]chan *bridgeResponse
	muReq     sync.Mutex
}

// bridgeRequest JSON-RPC 请求
type bridgeRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      uint64      `json:"id"`
}

// bridgeResponse JSON-RPC 响应
type bridgeResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *bridgeError    `json:"error,omitempty"`
	ID      uint64          `json:"id"`
}

// bridgeError JSON-RPC 错误
type bridgeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// signParams signTransaction 参数
type signParams struct {
	XDR               string `json:"xdr"`
	NetworkPassphrase string `json:"networkPassphrase"`
	Address           string `json:"address"`
}

// signReply signTransaction 结果
type signReply struct {
	SignedTxXDR string `json:"signedTxXdr,omitempty"`
	Declined    bool   `json:"declined,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NewBridgeSigner 连接桥接服务
func NewBridgeSigner(ctx context.Context, config BridgeConfig) (*BridgeSigner, error) {
	endpoint := normalizeWSEndpoint(config.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("bridge endpoint is required")
	}

	handshake := config.HandshakeTimeout
	if handshake <= 0 {
		handshake = 10 * time.Second
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: handshake,
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signer bridge: %w", err)
	}

	s := &BridgeSigner{
		endpoint:       endpoint,
		conn:           conn,
		requestTimeout: config.RequestTimeout,
		requests:       make(map[uint64]chan *bridgeResponse),
	}

	// 启动消息读取循环
	go s.readLoop()

	return s, nil
}

// normalizeWSEndpoint 将 http:// 或 https:// 转换为 ws:// 或 wss://
func normalizeWSEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	switch {
	case endpoint == "":
		return ""
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "ws://"), strings.HasPrefix(endpoint, "wss://"):
		return endpoint
	default:
		return "ws://" + endpoint
	}
}

// readLoop 消息读取循环，按请求 ID 分发响应
func (s *BridgeSigner) readLoop() {
	for {
		var resp bridgeResponse
		if err := s.conn.ReadJSON(&resp); err != nil {
			// 连接关闭或错误：先标记关闭再通知等待中的请求，之后不再接受注册
			s.muReq.Lock()
			atomic.StoreInt32(&s.closed, 1)
			for id, ch := range s.requests {
				select {
				case ch <- &bridgeResponse{
					ID:    id,
					Error: &bridgeError{Code: -1, Message: fmt.Sprintf("bridge read error: %v", err)},
				}:
				default:
				}
			}
			s.requests = make(map[uint64]chan *bridgeResponse)
			s.muReq.Unlock()
			return
		}

		s.muReq.Lock()
		ch, exists := s.requests[resp.ID]
		if exists {
			delete(s.requests, resp.ID)
		}
		s.muReq.Unlock()

		if exists {
			select {
			case ch <- &resp:
			default:
			}
		}
	}
}

// RequestSignature 请求桥接页面签名
func (s *BridgeSigner) RequestSignature(ctx context.Context, unsignedTxXDR, networkPassphrase, signerAddress string) (*SignResult, error) {
	if atomic.LoadInt32(&s.closed) == 1 {
		return nil, &SignError{Message: "signer bridge is closed"}
	}

	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	reqID := atomic.AddUint64(&s.nextID, 1)
	req := bridgeRequest{
		JSONRPC: "2.0",
		Method:  BridgeSignMethod,
		Params: signParams{
			XDR:               unsignedTxXDR,
			NetworkPassphrase: networkPassphrase,
			Address:           signerAddress,
		},
		ID: reqID,
	}

	respCh := make(chan *bridgeResponse, 1)
	s.muReq.Lock()
	if atomic.LoadInt32(&s.closed) == 1 {
		s.muReq.Unlock()
		return nil, &SignError{Message: "signer bridge is closed"}
	}
	s.requests[reqID] = respCh
	s.muReq.Unlock()

	s.writeMu.Lock()
	err := s.conn.WriteJSON(req)
	s.writeMu.Unlock()
	if err != nil {
		s.forget(reqID)
		return nil, &SignError{Message: "write sign request", Err: err}
	}

	// 等待响应（可能需要用户在钱包中确认）
	select {
	case resp := <-respCh:
		return decodeSignReply(resp)
	case <-ctx.Done():
		s.forget(reqID)
		return nil, ctx.Err()
	}
}

func (s *BridgeSigner) forget(id uint64) {
	s.muReq.Lock()
	delete(s.requests, id)
	s.muReq.Unlock()
}

// decodeSignReply 解析签名响应
func decodeSignReply(resp *bridgeResponse) (*SignResult, error) {
	if resp.Error != nil {
		return nil, &SignError{Message: resp.Error.Message}
	}

	var reply signReply
	if err := json.Unmarshal(resp.Result, &reply); err != nil {
		return nil, &SignError{Message: "decode sign reply", Err: err}
	}
	switch {
	case reply.Declined:
		return &SignResult{Declined: true}, nil
	case reply.Error != "":
		return nil, &SignError{Message: reply.Error}
	case reply.SignedTxXDR == "":
		return nil, &SignError{Message: "bridge returned an empty signed transaction"}
	default:
		return &SignResult{SignedTxXDR: reply.SignedTxXDR}, nil
	}
}

// Close 关闭连接
func (s *BridgeSigner) Close() error {
	var err error
	s.closeOnce.Do(func() {
		atomic.StoreInt32(&s.closed, 1)
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if cErr := s.conn.Close(); cErr != nil && !errors.Is(cErr, websocket.ErrCloseSent) {
			err = cErr
		}
	})
	return err
}

var _ Signer = (*BridgeSigner)(nil)
