package transaction

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"

	"github.com/quizchain/client-sdk-go/client"
	"github.com/quizchain/client-sdk-go/normalizer"
	"github.com/quizchain/client-sdk-go/types"
)

// RPC 提交/轮询依赖的 RPC 能力（client.Client 满足该接口）
type RPC interface {
	Submit(ctx context.Context, env types.Envelope) (string, error)
	GetStatus(ctx context.Context, hash string) (*types.SubmissionResult, error)
}

// Service Transaction 业务服务接口
type Service interface {
	// Submit 校验并提交已签名信封，返回 submitted 阶段的新信封（哈希仅表示网络已接收）
	Submit(ctx context.Context, prepared, signed types.Envelope) (types.Envelope, error)

	// WaitForTransaction 轮询交易状态直到终态或超过次数上限
	WaitForTransaction(ctx context.Context, hash string) (*types.SubmissionResult, error)

	// SubmitAndWait 提交并等待终态
	SubmitAndWait(ctx context.Context, prepared, signed types.Envelope) (*types.SubmissionResult, error)

	// GetTransaction 查询一次交易状态（不轮询）
	GetTransaction(ctx context.Context, hash string) (*types.SubmissionResult, error)
}

// PollConfig 轮询配置
type PollConfig struct {
	// Interval 轮询间隔（默认 1 秒）
	Interval time.Duration
	// MaxAttempts 最大查询次数（默认 30）
	MaxAttempts int
	// OnPoll 每次查询后的回调（用于进度展示）
	OnPoll func(attempt int, status types.TxStatus)
}

const (
	DefaultPollInterval    = time.Second
	DefaultPollMaxAttempts = 30
)

// DefaultPollConfig 返回默认轮询配置（1 秒间隔，最多 30 次）
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:    DefaultPollInterval,
		MaxAttempts: DefaultPollMaxAttempts,
	}
}

func (c PollConfig) withDefaults() PollConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultPollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultPollMaxAttempts
	}
	return c
}

// transactionService Transaction 服务实现
type transactionService struct {
	rpc    RPC
	poll   PollConfig
	logger client.Logger
}

// NewService 创建 Transaction 服务
func NewService(rpc RPC) Service {
	return NewServiceWithConfig(rpc, DefaultPollConfig(), nil)
}

// NewServiceWithConfig 使用自定义轮询配置创建 Transaction 服务
func NewServiceWithConfig(rpc RPC, poll PollConfig, logger client.Logger) Service {
	return &transactionService{
		rpc:    rpc,
		poll:   poll.withDefaults(),
		logger: logger,
	}
}

// Submit 提交交易
func (s *transactionService) Submit(ctx context.Context, prepared, signed types.Envelope) (types.Envelope, error) {
	// 1. 校验签名信封，并在本地算出交易哈希
	localHash, err := validateSigned(prepared, signed)
	if err != nil {
		return types.Envelope{}, err
	}

	// 2. 提交
	hash, err := s.rpc.Submit(ctx, signed)
	if err != nil {
		if submitAmbiguous(err) {
			// 请求可能已经到达网络，不能从 BUILT 重新开始，只能按哈希查询
			return types.Envelope{}, types.NewTxError(types.KindPollingTimeout,
				fmt.Sprintf("sendTransaction outcome unknown: %v", err), err).WithTxHash(localHash)
		}
		return types.Envelope{}, normalizer.NormalizeStage(normalizer.StageSubmit, err)
	}

	// 3. 进入 submitted 阶段
	submitted, err := signed.Submitted(hash)
	if err != nil {
		return types.Envelope{}, err
	}
	if s.logger != nil {
		s.logger.Info("Transaction accepted", "hash", hash, "source", signed.Source(), "sequence", signed.Sequence())
	}
	return submitted, nil
}

// WaitForTransaction 轮询交易状态
//
// **说明**：
// - PENDING 和 NOT_FOUND 都继续轮询（刚提交的交易可能尚未被 RPC 索引）
// - 最后一次查询之后不再等待
// - 超过次数上限返回 PollingTimeout（带交易哈希），结果不确定，调用方应稍后重新查询而不是重提
// - 查询失败（网络错误等）不中断轮询；次数耗尽时仍返回 PollingTimeout，不会返回可重试的 NetworkError
func (s *transactionService) WaitForTransaction(ctx context.Context, hash string) (*types.SubmissionResult, error) {
	if strings.TrimSpace(hash) == "" {
		return nil, types.Errorf(types.KindInvalidInput, "transaction hash is required")
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	var (
		last    types.TxStatus
		lastErr error
	)
	for attempt := 1; attempt <= s.poll.MaxAttempts; attempt++ {
		result, err := s.rpc.GetStatus(ctx, hash)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, normalizer.NormalizeStage(normalizer.StagePoll, ctx.Err()).WithTxHash(hash)
			}
			// 交易已被网络接收，查询失败不能当作可重提的网络错误，继续轮询
			lastErr = err
			if s.logger != nil {
				s.logger.Warn("Status lookup failed", "hash", hash, "attempt", attempt, "error", err)
			}
		default:
			last = result.Status
			lastErr = nil

			if s.poll.OnPoll != nil {
				s.poll.OnPoll(attempt, result.Status)
			}

			switch result.Status {
			case types.TxStatusSuccess:
				return result, nil
			case types.TxStatusFailed:
				return result, types.NewTxError(types.KindTransactionFailed,
					fmt.Sprintf("transaction failed in ledger %d", result.Ledger), nil).WithTxHash(hash)
			}
		}

		if attempt == s.poll.MaxAttempts {
			break
		}

		if timer == nil {
			timer = time.NewTimer(s.poll.Interval)
		} else {
			timer.Reset(s.poll.Interval)
		}
		select {
		case <-ctx.Done():
			return nil, normalizer.NormalizeStage(normalizer.StagePoll, ctx.Err()).WithTxHash(hash)
		case <-timer.C:
		}
	}

	if lastErr != nil {
		return nil, types.NewTxError(types.KindPollingTimeout,
			fmt.Sprintf("status lookup failed after %d attempts: %v", s.poll.MaxAttempts, lastErr), lastErr).WithTxHash(hash)
	}
	return nil, types.NewTxError(types.KindPollingTimeout,
		fmt.Sprintf("status still %s after %d attempts", last, s.poll.MaxAttempts), nil).WithTxHash(hash)
}

// SubmitAndWait 提交并等待终态
func (s *transactionService) SubmitAndWait(ctx context.Context, prepared, signed types.Envelope) (*types.SubmissionResult, error) {
	submitted, err := s.Submit(ctx, prepared, signed)
	if err != nil {
		return nil, err
	}
	return s.WaitForTransaction(ctx, submitted.Hash())
}

// GetTransaction 查询交易状态
func (s *transactionService) GetTransaction(ctx context.Context, hash string) (*types.SubmissionResult, error) {
	result, err := s.rpc.GetStatus(ctx, hash)
	if err != nil {
		return nil, normalizer.Normalize(err).WithTxHash(hash)
	}
	return result, nil
}

// ValidateSigned 校验签名信封
//
// 1. 阶段正确（prepared → signed）
// 2. 可以解码，且来源账户、序列号与 prepared 一致
// 3. 至少一个签名能在预期网络口令下通过来源账户公钥验证（否则视为网络不匹配或签名错误）
func ValidateSigned(prepared, signed types.Envelope) error {
	_, err := validateSigned(prepared, signed)
	return err
}

// validateSigned 校验签名信封并返回十六进制交易哈希
func validateSigned(prepared, signed types.Envelope) (string, error) {
	if prepared.Stage() != types.StagePrepared {
		return "", types.Errorf(types.KindInvalidInput, "expected a prepared envelope, got %s", prepared.Stage())
	}
	if signed.Stage() != types.StageSigned {
		return "", types.Errorf(types.KindInvalidInput, "expected a signed envelope, got %s", signed.Stage())
	}

	generic, err := txnbuild.TransactionFromXDR(signed.XDR())
	if err != nil {
		return "", types.NewTxError(types.KindSigningFailed, fmt.Sprintf("decode signed transaction: %v", err), err)
	}
	tx, ok := generic.Transaction()
	if !ok {
		return "", types.Errorf(types.KindInvalidInput, "fee bump transactions are not supported")
	}

	source := tx.SourceAccount().AccountID
	if source != prepared.Source() {
		return "", types.Errorf(types.KindInvalidInput, "signed transaction source %s does not match %s", source, prepared.Source())
	}
	if tx.SequenceNumber() != prepared.Sequence() {
		return "", types.Errorf(types.KindInvalidInput, "signed transaction sequence %d does not match %d", tx.SequenceNumber(), prepared.Sequence())
	}

	signatures := tx.Signatures()
	if len(signatures) == 0 {
		return "", types.Errorf(types.KindSigningFailed, "signed transaction carries no signatures")
	}

	hash, err := tx.Hash(prepared.NetworkPassphrase())
	if err != nil {
		return "", types.NewTxError(types.KindInvalidInput, fmt.Sprintf("hash signed transaction: %v", err), err)
	}
	kp, err := keypair.ParseAddress(source)
	if err != nil {
		return "", types.NewTxError(types.KindInvalidInput, fmt.Sprintf("parse source address: %v", err), err)
	}
	for _, sig := range signatures {
		if kp.Verify(hash[:], sig.Signature) == nil {
			return hex.EncodeToString(hash[:]), nil
		}
	}
	return "", types.Errorf(types.KindInvalidInput, "network mismatch: no signature verifies under %q", prepared.NetworkPassphrase())
}

// submitAmbiguous sendTransaction 失败时请求是否可能已经送达
//
// 连接失败（ErrCodeNetwork）说明请求没有发出，可以重建重试；
// 超时、ctx 截止或取消时请求可能已被 RPC 接收，结果不确定。
func submitAmbiguous(err error) bool {
	if cErr, ok := client.IsClientError(err); ok && cErr.Code == client.ErrCodeTimeout {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
