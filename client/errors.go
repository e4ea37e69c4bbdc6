package client

import (
	"errors"
	"fmt"

	"github.com/stellar/go/xdr"
)

// Error 客户端错误
type Error struct {
	Code    int
	Message string
	Err     error

	// RPCCode / RPCData 仅在 Code == ErrCodeRPCError 时有值
	RPCCode int
	RPCData interface{}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("client error [%d]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("client error [%d]: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// 错误码定义
const (
	ErrCodeNetwork         = 1000 // 网络错误
	ErrCodeTimeout         = 1001 // 超时错误
	ErrCodeInvalidResponse = 1002 // 无效响应
	ErrCodeRPCError        = 1003 // JSON-RPC错误
	ErrCodeNotFound        = 1004 // 账户 / 账本条目不存在
	ErrCodeInvalidParams   = 1005 // 参数错误
)

// NewNetworkError 创建网络错误
func NewNetworkError(err error) *Error {
	return &Error{
		Code:    ErrCodeNetwork,
		Message: "network error",
		Err:     err,
	}
}

// NewTimeoutError 创建超时错误
func NewTimeoutError(err error) *Error {
	return &Error{
		Code:    ErrCodeTimeout,
		Message: "request timeout",
		Err:     err,
	}
}

// NewInvalidResponseError 创建无效响应错误
func NewInvalidResponseError(message string) *Error {
	return &Error{
		Code:    ErrCodeInvalidResponse,
		Message: message,
	}
}

// NewRPCError 创建JSON-RPC错误
func NewRPCError(code int, message string, data interface{}) *Error {
	return &Error{
		Code:    ErrCodeRPCError,
		Message: fmt.Sprintf("RPC error [%d]: %s", code, message),
		RPCCode: code,
		RPCData: data,
	}
}

// NewNotFoundError 创建不存在错误
func NewNotFoundError(what string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", what),
	}
}

// NewInvalidParamsError 创建参数错误
func NewInvalidParamsError(message string, err error) *Error {
	return &Error{
		Code:    ErrCodeInvalidParams,
		Message: message,
		Err:     err,
	}
}

// IsClientError 检查错误链中的 client.Error
func IsClientError(err error) (*Error, bool) {
	var cErr *Error
	if errors.As(err, &cErr) {
		return cErr, true
	}
	return nil, false
}

// sendTransaction 状态
const (
	SendStatusPending       = "PENDING"
	SendStatusDuplicate     = "DUPLICATE"
	SendStatusTryAgainLater = "TRY_AGAIN_LATER"
	SendStatusError         = "ERROR"
)

// SubmitError sendTransaction 未被接收
type SubmitError struct {
	Status         string
	TxHash         string
	ErrorResultXDR string

	// ResultCode 从 errorResultXdr 解码出的结果码（HasResultCode 为 false 时无效）
	ResultCode    xdr.TransactionResultCode
	HasResultCode bool
}

func (e *SubmitError) Error() string {
	if e.HasResultCode {
		return fmt.Sprintf("transaction %s not accepted: status=%s result=%s", e.TxHash, e.Status, e.ResultCode.String())
	}
	return fmt.Sprintf("transaction %s not accepted: status=%s", e.TxHash, e.Status)
}

// BadSequence 序列号过期（已被使用）
func (e *SubmitError) BadSequence() bool {
	return e.HasResultCode && e.ResultCode == xdr.TransactionResultCodeTxBadSeq
}

// InsufficientBalance 余额不足
func (e *SubmitError) InsufficientBalance() bool {
	return e.HasResultCode && e.ResultCode == xdr.TransactionResultCodeTxInsufficientBalance
}

// IsSubmitError 检查错误链中的 SubmitError
func IsSubmitError(err error) (*SubmitError, bool) {
	var sErr *SubmitError
	if errors.As(err, &sErr) {
		return sErr, true
	}
	return nil, false
}
