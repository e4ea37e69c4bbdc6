package wallet

import (
	"context"
	"errors"
	"fmt"
)

// Signer 外部签名者边界
//
// **说明**：
// - 调用方传入序列化的未签名交易（base64 XDR）、目标网络口令和签名账户地址
// - 调用可能等待人工确认，实现必须响应 ctx 取消
// - 返回三种结果之一：已签名交易、拒绝签名（Declined）、错误（*SignError）
type Signer interface {
	RequestSignature(ctx context.Context, unsignedTxXDR, networkPassphrase, signerAddress string) (*SignResult, error)
}

// SignResult 签名结果
type SignResult struct {
	// SignedTxXDR 已签名交易（base64 XDR）
	SignedTxXDR string
	// Declined 用户拒绝签名
	Declined bool
}

// ErrDeclined 用户拒绝签名
//
// 签名者也可以直接返回该错误（而不是 SignResult{Declined: true}），两者等价。
var ErrDeclined = errors.New("signature request declined by user")

// SignError 签名失败（非用户拒绝）
type SignError struct {
	Message string
	Err     error
}

func (e *SignError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("signing failed: %s: %v", e.Message, e.Err)
	}
	return "signing failed: " + e.Message
}

func (e *SignError) Unwrap() error {
	return e.Err
}

// IsSignError 检查错误链中的 SignError
func IsSignError(err error) (*SignError, bool) {
	var sErr *SignError
	if errors.As(err, &sErr) {
		return sErr, true
	}
	return nil, false
}

// SignerFunc 函数适配器
type SignerFunc func(ctx context.Context, unsignedTxXDR, networkPassphrase, signerAddress string) (*SignResult, error)

// RequestSignature 实现 Signer
func (f SignerFunc) RequestSignature(ctx context.Context, unsignedTxXDR, networkPassphrase, signerAddress string) (*SignResult, error) {
	return f(ctx, unsignedTxXDR, networkPassphrase, signerAddress)
}
