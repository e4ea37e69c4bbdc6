package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stellar/go/xdr"

	"github.com/quizchain/client-sdk-go/services/contract"
)

// DefaultPollInterval 订阅时的 getEvents 查询间隔（约一个账本周期）
const DefaultPollInterval = 5 * time.Second

// Caller JSON-RPC 调用能力（client.Client 满足该接口）
type Caller interface {
	Call(ctx context.Context, method string, params interface{}, result interface{}) error
}

// Service Event 业务服务接口
type Service interface {
	// GetEvents 获取一页合约事件
	GetEvents(ctx context.Context, filters *EventFilters) (*EventPage, error)

	// SubscribeEvents 订阅事件（按游标轮询 getEvents，ctx 取消时关闭通道）
	SubscribeEvents(ctx context.Context, filters *EventFilters) (<-chan *EventInfo, error)
}

// eventService Event 服务实现
type eventService struct {
	rpc      Caller
	interval time.Duration
}

// NewService 创建 Event 服务
func NewService(rpc Caller) Service {
	return NewServiceWithInterval(rpc, DefaultPollInterval)
}

// NewServiceWithInterval 创建指定订阅轮询间隔的 Event 服务
func NewServiceWithInterval(rpc Caller, interval time.Duration) Service {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &eventService{rpc: rpc, interval: interval}
}

// EventFilters 事件查询过滤器
//
// **说明**：
// - Cursor 非空时忽略 StartLedger（RPC 不允许同时指定）
// - Topics 每一项是一个按位置匹配的主题模式，"*" 匹配任意值
type EventFilters struct {
	ContractIDs []string
	Topics      [][]string
	StartLedger uint32
	Cursor      string
	Limit       int
}

// EventInfo 合约事件
type EventInfo struct {
	ID             string
	Type           string
	Ledger         uint32
	LedgerClosedAt string
	ContractID     string
	TxHash         string
	Topics         []interface{}
	Value          interface{}
	// Successful 事件是否来自成功的合约调用
	Successful bool
}

// EventPage 一页事件
type EventPage struct {
	Events       []*EventInfo
	LatestLedger uint32
	Cursor       string
}

type getEventsFilter struct {
	Type        string     `json:"type"`
	ContractIDs []string   `json:"contractIds,omitempty"`
	Topics      [][]string `json:"topics,omitempty"`
}

type getEventsPagination struct {
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type getEventsRequest struct {
	StartLedger uint32               `json:"startLedger,omitempty"`
	Filters     []getEventsFilter    `json:"filters"`
	Pagination  *getEventsPagination `json:"pagination,omitempty"`
}

type rawEvent struct {
	Type                     string   `json:"type"`
	Ledger                   uint32   `json:"ledger"`
	LedgerClosedAt           string   `json:"ledgerClosedAt"`
	ContractID               string   `json:"contractId"`
	ID                       string   `json:"id"`
	TxHash                   string   `json:"txHash"`
	Topic                    []string `json:"topic"`
	Value                    string   `json:"value"`
	InSuccessfulContractCall bool     `json:"inSuccessfulContractCall"`
}

type getEventsResponse struct {
	Events       []rawEvent `json:"events"`
	LatestLedger uint32     `json:"latestLedger"`
	Cursor       string     `json:"cursor"`
}

func (f *EventFilters) request() (getEventsRequest, error) {
	req := getEventsRequest{Filters: []getEventsFilter{{Type: "contract"}}}
	if f == nil {
		return req, errors.New("event filters are required (startLedger or cursor)")
	}
	for _, id := range f.ContractIDs {
		if !contract.IsContractAddress(id) {
			return req, fmt.Errorf("invalid contract id %q", id)
		}
	}
	req.Filters[0].ContractIDs = f.ContractIDs
	req.Filters[0].Topics = f.Topics

	if f.Cursor == "" && f.StartLedger == 0 {
		return req, errors.New("startLedger or cursor is required")
	}
	if f.Cursor != "" || f.Limit > 0 {
		req.Pagination = &getEventsPagination{Cursor: f.Cursor, Limit: f.Limit}
	}
	if f.Cursor == "" {
		req.StartLedger = f.StartLedger
	}
	return req, nil
}

// GetEvents 获取事件列表
func (s *eventService) GetEvents(ctx context.Context, filters *EventFilters) (*EventPage, error) {
	req, err := filters.request()
	if err != nil {
		return nil, err
	}

	var resp getEventsResponse
	if err := s.rpc.Call(ctx, "getEvents", req, &resp); err != nil {
		return nil, fmt.Errorf("get events failed: %w", err)
	}

	page := &EventPage{LatestLedger: resp.LatestLedger, Cursor: resp.Cursor}
	for _, raw := range resp.Events {
		info, err := decodeEvent(raw)
		if err != nil {
			return nil, fmt.Errorf("decode event %s: %w", raw.ID, err)
		}
		page.Events = append(page.Events, info)
	}
	if page.Cursor == "" && len(resp.Events) > 0 {
		page.Cursor = resp.Events[len(resp.Events)-1].ID
	}
	return page, nil
}

// SubscribeEvents 订阅事件
//
// **流程**：
// 1. 用 filters 查询第一页（必须给出 StartLedger 或 Cursor）
// 2. 之后每个间隔用上一页返回的游标继续查询
// 3. 查询失败时保留游标，下个间隔重试
func (s *eventService) SubscribeEvents(ctx context.Context, filters *EventFilters) (<-chan *EventInfo, error) {
	if _, err := filters.request(); err != nil {
		return nil, err
	}
	next := *filters

	infoChan := make(chan *EventInfo, 10)
	go func() {
		defer close(infoChan)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			page, err := s.GetEvents(ctx, &next)
			if err == nil {
				for _, ev := range page.Events {
					select {
					case infoChan <- ev:
					case <-ctx.Done():
						return
					}
				}
				if page.Cursor != "" {
					next.Cursor = page.Cursor
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return infoChan, nil
}

// decodeEvent 解码主题和值（base64 ScVal）
func decodeEvent(raw rawEvent) (*EventInfo, error) {
	info := &EventInfo{
		ID:             raw.ID,
		Type:           raw.Type,
		Ledger:         raw.Ledger,
		LedgerClosedAt: raw.LedgerClosedAt,
		ContractID:     raw.ContractID,
		TxHash:         raw.TxHash,
		Successful:     raw.InSuccessfulContractCall,
		Topics:         make([]interface{}, 0, len(raw.Topic)),
	}
	for i, t := range raw.Topic {
		v, err := decodeScVal(t)
		if err != nil {
			return nil, fmt.Errorf("topic[%d]: %w", i, err)
		}
		info.Topics = append(info.Topics, v)
	}
	if raw.Value != "" {
		v, err := decodeScVal(raw.Value)
		if err != nil {
			return nil, fmt.Errorf("value: %w", err)
		}
		info.Value = v
	}
	return info, nil
}

func decodeScVal(b64 string) (interface{}, error) {
	var val xdr.ScVal
	if err := xdr.SafeUnmarshalBase64(b64, &val); err != nil {
		return nil, err
	}
	return contract.ScValToNative(val)
}
