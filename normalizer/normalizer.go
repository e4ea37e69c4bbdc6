// Package normalizer 将底层失败归类为固定的生命周期错误分类。
//
// 分类顺序：
//  1. 已经是 *types.TxError 的错误原样返回
//  2. 结构化错误（钱包拒签、SubmitError 结果码、client.Error 错误码、net.Error、context）
//  3. 错误文本模式匹配（只在这里出现，作为最后手段）
//  4. 其余全部归为 UnknownFailure，并保留原始错误文本
package normalizer

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/quizchain/client-sdk-go/client"
	"github.com/quizchain/client-sdk-go/types"
	"github.com/quizchain/client-sdk-go/wallet"
)

// Stage 失败发生的生命周期步骤
type Stage string

const (
	StageBuild    Stage = "build"
	StageAccount  Stage = "account"
	StageSimulate Stage = "simulate"
	StageSign     Stage = "sign"
	StageSubmit   Stage = "submit"
	StagePoll     Stage = "poll"
)

// Normalize 归类错误（全映射：任何非 nil 错误都得到一个 TxError）
func Normalize(err error) *types.TxError {
	if err == nil {
		return nil
	}
	if txErr, ok := types.IsTxError(err); ok {
		return txErr
	}
	if txErr := classifyTyped(err); txErr != nil {
		return txErr
	}
	if kind, ok := classifyMessage(err.Error()); ok {
		return types.NewTxError(kind, err.Error(), err)
	}
	return types.NewTxError(types.KindUnknownFailure, err.Error(), err)
}

// NormalizeStage 按发生步骤归类错误
//
// **说明**：
// - 账户、模拟、签名步骤中无法识别的失败归为对应的提前退出分类
// - 签名步骤中的 ctx 取消视为用户取消，超时视为签名失败（超时不是拒签）
// - 轮询步骤中的 ctx 取消视为结果不确定（PollingTimeout），交易可能已经成功
func NormalizeStage(stage Stage, err error) *types.TxError {
	if err == nil {
		return nil
	}
	if txErr, ok := types.IsTxError(err); ok {
		return txErr
	}

	switch stage {
	case StageSign:
		if errors.Is(err, context.Canceled) {
			return types.NewTxError(types.KindUserCancelled, err.Error(), err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return types.NewTxError(types.KindSigningFailed, "signature request timed out: "+err.Error(), err)
		}
	case StagePoll:
		if errors.Is(err, context.Canceled) {
			return types.NewTxError(types.KindPollingTimeout, "status polling cancelled: "+err.Error(), err)
		}
	}

	txErr := Normalize(err)
	if txErr.Kind != types.KindUnknownFailure {
		return txErr
	}

	switch stage {
	case StageAccount, StageBuild:
		return types.NewTxError(types.KindAccountFetchFailed, txErr.Detail, err)
	case StageSimulate:
		return types.NewTxError(types.KindSimulationFailed, txErr.Detail, err)
	case StageSign:
		return types.NewTxError(types.KindSigningFailed, txErr.Detail, err)
	}
	return txErr
}

// classifyTyped 结构化错误分类
func classifyTyped(err error) *types.TxError {
	// 钱包拒签
	if errors.Is(err, wallet.ErrDeclined) {
		return types.NewTxError(types.KindUserCancelled, err.Error(), err)
	}

	// 提交被拒
	if sErr, ok := client.IsSubmitError(err); ok {
		var kind types.ErrorKind
		switch {
		case sErr.InsufficientBalance():
			kind = types.KindInsufficientFunds
		case sErr.BadSequence():
			kind = types.KindRejected
		case sErr.Status == client.SendStatusTryAgainLater:
			kind = types.KindNetworkError
		default:
			kind = types.KindRejected
		}
		return types.NewTxError(kind, sErr.Error(), err).WithTxHash(sErr.TxHash)
	}

	// 签名失败：钱包扩展只给出文本，这里允许文本识别拒签和余额不足
	if signErr, ok := wallet.IsSignError(err); ok {
		if kind, ok := classifyMessage(signErr.Message); ok &&
			(kind == types.KindUserCancelled || kind == types.KindInsufficientFunds) {
			return types.NewTxError(kind, signErr.Error(), err)
		}
		return types.NewTxError(types.KindSigningFailed, signErr.Error(), err)
	}

	// 传输层错误
	if cErr, ok := client.IsClientError(err); ok {
		switch cErr.Code {
		case client.ErrCodeNetwork, client.ErrCodeTimeout:
			return types.NewTxError(types.KindNetworkError, cErr.Error(), err)
		case client.ErrCodeNotFound:
			return types.NewTxError(types.KindAccountFetchFailed, cErr.Error(), err)
		case client.ErrCodeInvalidParams:
			return types.NewTxError(types.KindInvalidInput, cErr.Error(), err)
		case client.ErrCodeRPCError, client.ErrCodeInvalidResponse:
			if kind, ok := classifyMessage(cErr.Error()); ok {
				return types.NewTxError(kind, cErr.Error(), err)
			}
			return types.NewTxError(types.KindUnknownFailure, cErr.Error(), err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewTxError(types.KindNetworkError, err.Error(), err)
	}
	if errors.Is(err, context.Canceled) {
		return types.NewTxError(types.KindUserCancelled, err.Error(), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return types.NewTxError(types.KindNetworkError, err.Error(), err)
	}
	return nil
}

// messagePatterns 文本模式（按顺序匹配，全部小写）
//
// 文本不是稳定契约；这里只作为结构化分类之后的兜底。
var messagePatterns = []struct {
	substr string
	kind   types.ErrorKind
}{
	{"user declined", types.KindUserCancelled},
	{"user rejected", types.KindUserCancelled},
	{"rejected by user", types.KindUserCancelled},
	{"request declined", types.KindUserCancelled},
	{"cancelled by user", types.KindUserCancelled},
	{"insufficient", types.KindInsufficientFunds},
	{"underfunded", types.KindInsufficientFunds},
	{"txbad_seq", types.KindRejected},
	{"tx_bad_seq", types.KindRejected},
	{"bad sequence", types.KindRejected},
	{"simulation failed", types.KindSimulationFailed},
	{"hosterror", types.KindSimulationFailed},
	{"account not found", types.KindAccountFetchFailed},
	{"polling timeout", types.KindPollingTimeout},
	{"connection refused", types.KindNetworkError},
	{"connection reset", types.KindNetworkError},
	{"no such host", types.KindNetworkError},
	{"network is unreachable", types.KindNetworkError},
	{"i/o timeout", types.KindNetworkError},
}

// classifyMessage 错误文本兜底分类
func classifyMessage(msg string) (types.ErrorKind, bool) {
	lower := strings.ToLower(msg)
	for _, p := range messagePatterns {
		if strings.Contains(lower, p.substr) {
			return p.kind, true
		}
	}
	return "", false
}
