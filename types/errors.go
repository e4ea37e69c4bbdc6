package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrorKind 生命周期错误分类（封闭集合）
//
// 应用层只依赖这里的分类，不依赖底层 RPC / 钱包的错误文本。
type ErrorKind string

const (
	KindInvalidInput       ErrorKind = "INVALID_INPUT"
	KindAccountFetchFailed ErrorKind = "ACCOUNT_FETCH_FAILED"
	KindSimulationFailed   ErrorKind = "SIMULATION_FAILED"
	KindNoResult           ErrorKind = "NO_RESULT"
	KindUserCancelled      ErrorKind = "USER_CANCELLED"
	KindSigningFailed      ErrorKind = "SIGNING_FAILED"
	KindInsufficientFunds  ErrorKind = "INSUFFICIENT_FUNDS"
	KindRejected           ErrorKind = "REJECTED"
	KindTransactionFailed  ErrorKind = "TRANSACTION_FAILED"
	KindPollingTimeout     ErrorKind = "POLLING_TIMEOUT"
	KindNetworkError       ErrorKind = "NETWORK_ERROR"
	KindUnknownFailure     ErrorKind = "UNKNOWN_FAILURE"
)

// userMessages 默认的用户提示文案
var userMessages = map[ErrorKind]string{
	KindInvalidInput:       "invalid contract invocation input",
	KindAccountFetchFailed: "could not load the source account; make sure it exists and is funded",
	KindSimulationFailed:   "transaction simulation failed",
	KindNoResult:           "no result from simulation",
	KindUserCancelled:      "transaction cancelled by user",
	KindSigningFailed:      "wallet failed to sign the transaction",
	KindInsufficientFunds:  "insufficient XLM balance",
	KindRejected:           "transaction rejected by the network",
	KindTransactionFailed:  "transaction failed on ledger",
	KindPollingTimeout:     "transaction outcome unknown: status polling timed out, query the hash again later",
	KindNetworkError:       "network error talking to the ledger",
	KindUnknownFailure:     "transaction failed",
}

// Retryable 是否允许调用方从 BUILT 重新开始（重新获取账户）
func (k ErrorKind) Retryable() bool {
	return k == KindNetworkError
}

// Ambiguous 结果是否不确定（交易可能已经成功，调用方必须先查询状态再决定是否重提）
func (k ErrorKind) Ambiguous() bool {
	return k == KindPollingTimeout
}

// Alarming 是否应当作为系统错误展示（用户取消不属于系统错误）
func (k ErrorKind) Alarming() bool {
	return k != KindUserCancelled
}

// TxError 生命周期统一错误类型
type TxError struct {
	Kind        ErrorKind
	UserMessage string
	Detail      string // 原始诊断信息，永远不丢弃
	TxHash      string // 已提交时的交易哈希（PollingTimeout 时用于后续查询）
	TraceID     string
	Timestamp   string
	Cause       error
}

func (e *TxError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.UserMessage)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.TxHash != "" {
		msg += " (tx=" + e.TxHash + ")"
	}
	return msg
}

func (e *TxError) Unwrap() error {
	return e.Cause
}

// Is 支持 errors.Is(err, types.ErrPollingTimeout) 这类按分类比较
func (e *TxError) Is(target error) bool {
	t, ok := target.(*TxError)
	if !ok {
		return false
	}
	return t.TraceID == "" && t.Kind == e.Kind
}

// Retryable 调用方能否从 BUILT 重新开始；已拿到交易哈希的错误一律不可重提
func (e *TxError) Retryable() bool {
	return e.TxHash == "" && e.Kind.Retryable()
}

// WithTxHash 返回带交易哈希的副本
func (e *TxError) WithTxHash(hash string) *TxError {
	cp := *e
	cp.TxHash = hash
	return &cp
}

// 分类哨兵，仅用于 errors.Is 比较
var (
	ErrInvalidInput       = &TxError{Kind: KindInvalidInput}
	ErrAccountFetchFailed = &TxError{Kind: KindAccountFetchFailed}
	ErrSimulationFailed   = &TxError{Kind: KindSimulationFailed}
	ErrNoResult           = &TxError{Kind: KindNoResult}
	ErrUserCancelled      = &TxError{Kind: KindUserCancelled}
	ErrSigningFailed      = &TxError{Kind: KindSigningFailed}
	ErrInsufficientFunds  = &TxError{Kind: KindInsufficientFunds}
	ErrRejected           = &TxError{Kind: KindRejected}
	ErrTransactionFailed  = &TxError{Kind: KindTransactionFailed}
	ErrPollingTimeout     = &TxError{Kind: KindPollingTimeout}
	ErrNetworkError       = &TxError{Kind: KindNetworkError}
	ErrUnknownFailure     = &TxError{Kind: KindUnknownFailure}
)

// NewTxError 创建 TxError
func NewTxError(kind ErrorKind, detail string, cause error) *TxError {
	userMessage, ok := userMessages[kind]
	if !ok {
		userMessage = userMessages[KindUnknownFailure]
	}
	return &TxError{
		Kind:        kind,
		UserMessage: userMessage,
		Detail:      detail,
		TraceID:     uuid.New().String(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Cause:       cause,
	}
}

// Errorf 创建带格式化详情的 TxError
func Errorf(kind ErrorKind, format string, args ...interface{}) *TxError {
	return NewTxError(kind, fmt.Sprintf(format, args...), nil)
}

// IsTxError 检查错误链中是否含 TxError
func IsTxError(err error) (*TxError, bool) {
	var txErr *TxError
	if errors.As(err, &txErr) {
		return txErr, true
	}
	return nil, false
}

// KindOf 返回错误分类，非 TxError 返回 KindUnknownFailure，nil 返回空
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if txErr, ok := IsTxError(err); ok {
		return txErr.Kind
	}
	return KindUnknownFailure
}
