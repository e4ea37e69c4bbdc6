package contract

import (
	"context"
	"fmt"

	"github.com/stellar/go/xdr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/quizchain/client-sdk-go/client"
	"github.com/quizchain/client-sdk-go/normalizer"
	"github.com/quizchain/client-sdk-go/services/transaction"
	"github.com/quizchain/client-sdk-go/types"
	"github.com/quizchain/client-sdk-go/utils"
	"github.com/quizchain/client-sdk-go/wallet"
)

const tracerName = "github.com/quizchain/client-sdk-go/services/contract"

// LedgerRPC 合约服务依赖的 RPC 能力（client.Client 满足该接口）
type LedgerRPC interface {
	AccountFetcher
	Simulating
	transaction.RPC
	Prepare(ctx context.Context, env types.Envelope) (types.Envelope, error)
	NetworkPassphrase() string
}

// Service Contract 业务服务接口
type Service interface {
	// Query 只读调用：构建 → 模拟 → 解码返回值，永远不会提交
	Query(ctx context.Context, req *QueryRequest) (*QueryResult, error)

	// QueryFromAccount 使用已获取的账户做只读调用（并发查询多个视图时共享一次账户读取）
	QueryFromAccount(ctx context.Context, account types.Account, req *QueryRequest) (*QueryResult, error)

	// Invoke 写调用：构建 → 准备 → 签名 → 提交 → 轮询
	Invoke(ctx context.Context, req *InvokeRequest, signers ...wallet.Signer) (*InvokeResult, error)
}

// QueryRequest 只读调用请求
type QueryRequest struct {
	ContractID string      // 合约地址（C...）
	Method     string      // 方法名
	Args       []xdr.ScVal // 方法参数
	Source     string      // 模拟使用的来源账户（G...，必须已存在）
	Fee        int64       // 可选：基础手续费
}

// QueryResult 只读调用结果
type QueryResult struct {
	Value      interface{} // 解码后的返回值
	Raw        xdr.ScVal   // 原始返回值
	Simulation *types.SimulationResult
}

// InvokeRequest 写调用请求
type InvokeRequest struct {
	ContractID     string      // 合约地址（C...）
	Method         string      // 方法名
	Args           []xdr.ScVal // 方法参数
	Source         string      // 来源账户，同时也是签名账户（G...）
	Fee            int64       // 可选：基础手续费（默认 100000 stroops）
	TimeoutSeconds int64       // 可选：交易有效期（默认 180 秒）
}

// InvokeResult 写调用结果
type InvokeResult struct {
	Success     bool
	TxHash      string
	Status      types.TxStatus
	Ledger      uint32
	ReturnValue interface{}   // 交易元数据中的返回值（可能为空）
	States      []types.State // 经历的状态
}

// ServiceConfig 服务配置
type ServiceConfig struct {
	// Poll 状态轮询配置
	Poll transaction.PollConfig
	// OnStateChange 状态迁移回调
	OnStateChange func(from, to types.State)
	// Logger 日志器（可选）
	Logger client.Logger
	// Tracer 可选，默认使用全局 TracerProvider
	Tracer trace.Tracer
}

// contractService Contract 服务实现
type contractService struct {
	rpc    LedgerRPC
	txs    transaction.Service
	signer wallet.Signer // 可选：默认签名者
	config ServiceConfig
	tracer trace.Tracer
}

// NewService 创建 Contract 服务（不带签名者）
func NewService(rpc LedgerRPC) Service {
	return NewServiceWithConfig(rpc, nil, ServiceConfig{Poll: transaction.DefaultPollConfig()})
}

// NewServiceWithSigner 创建带默认签名者的 Contract 服务
func NewServiceWithSigner(rpc LedgerRPC, signer wallet.Signer) Service {
	return NewServiceWithConfig(rpc, signer, ServiceConfig{Poll: transaction.DefaultPollConfig()})
}

// NewServiceWithConfig 使用完整配置创建 Contract 服务
func NewServiceWithConfig(rpc LedgerRPC, signer wallet.Signer, config ServiceConfig) Service {
	tracer := config.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &contractService{
		rpc:    rpc,
		txs:    transaction.NewServiceWithConfig(rpc, config.Poll, config.Logger),
		signer: signer,
		config: config,
		tracer: tracer,
	}
}

// getSigner 获取签名者（优先使用参数，其次使用默认签名者）
func (s *contractService) getSigner(signers ...wallet.Signer) wallet.Signer {
	if len(signers) > 0 && signers[0] != nil {
		return signers[0]
	}
	return s.signer
}

// Query 只读调用
func (s *contractService) Query(ctx context.Context, req *QueryRequest) (*QueryResult, error) {
	if req == nil {
		return nil, types.Errorf(types.KindInvalidInput, "query request is required")
	}
	ctx, span := s.tracer.Start(ctx, "contract.Query", trace.WithAttributes(
		attribute.String("contract.id", req.ContractID),
		attribute.String("contract.method", req.Method),
	))
	defer span.End()

	// 1. 构建（短有效期）
	inv := types.NewContractInvocation(req.ContractID, req.Method, req.Args...)
	env, err := Build(ctx, s.rpc, inv, s.queryOptions(req))
	if err != nil {
		return nil, endSpan(span, err)
	}

	// 2. 模拟
	return s.simulate(ctx, span, env)
}

// QueryFromAccount 使用已获取账户的只读调用
func (s *contractService) QueryFromAccount(ctx context.Context, account types.Account, req *QueryRequest) (*QueryResult, error) {
	if req == nil {
		return nil, types.Errorf(types.KindInvalidInput, "query request is required")
	}
	ctx, span := s.tracer.Start(ctx, "contract.Query", trace.WithAttributes(
		attribute.String("contract.id", req.ContractID),
		attribute.String("contract.method", req.Method),
	))
	defer span.End()

	q := *req
	if q.Source == "" {
		q.Source = account.Address
	}
	inv := types.NewContractInvocation(q.ContractID, q.Method, q.Args...)
	env, err := BuildFromAccount(account, inv, s.queryOptions(&q))
	if err != nil {
		return nil, endSpan(span, err)
	}
	return s.simulate(ctx, span, env)
}

func (s *contractService) queryOptions(req *QueryRequest) BuildOptions {
	return BuildOptions{
		Source:            req.Source,
		Fee:               req.Fee,
		TimeoutSeconds:    ReadTimeoutSeconds,
		NetworkPassphrase: s.rpc.NetworkPassphrase(),
	}
}

func (s *contractService) simulate(ctx context.Context, span trace.Span, env types.Envelope) (*QueryResult, error) {
	sim, raw, err := Simulate(ctx, s.rpc, env)
	if err != nil {
		return nil, endSpan(span, err)
	}
	return &QueryResult{
		Value:      sim.ReturnValue,
		Raw:        raw,
		Simulation: sim,
	}, nil
}

// Invoke 写调用
//
// **状态机**：
// BUILT → SIMULATING → PREPARED → AWAITING_SIGNATURE → SIGNED → SUBMITTED → POLLING → SUCCESS | FAILED | TIMEOUT
//
// **注意**：
// - 任何一步失败都返回 *types.TxError，不做自动重试
// - PollingTimeout 表示结果不确定，错误中带有交易哈希，调用方应稍后查询而不是重新提交
func (s *contractService) Invoke(ctx context.Context, req *InvokeRequest, signers ...wallet.Signer) (*InvokeResult, error) {
	if req == nil {
		return nil, types.Errorf(types.KindInvalidInput, "invoke request is required")
	}
	ctx, span := s.tracer.Start(ctx, "contract.Invoke", trace.WithAttributes(
		attribute.String("contract.id", req.ContractID),
		attribute.String("contract.method", req.Method),
		attribute.String("tx.source", req.Source),
	))
	defer span.End()

	sm := types.NewStateMachine(func(from, to types.State) {
		span.AddEvent(string(to), trace.WithAttributes(attribute.String("from", string(from))))
		if s.config.OnStateChange != nil {
			s.config.OnStateChange(from, to)
		}
	})
	fail := func(state types.State, err error) (*InvokeResult, error) {
		if state != "" {
			if tErr := sm.Transition(state); tErr != nil {
				return nil, endSpan(span, types.NewTxError(types.KindUnknownFailure,
					fmt.Sprintf("%v (while handling: %v)", tErr, err), err))
			}
		}
		return nil, endSpan(span, err)
	}
	// advance 依次迁移状态；非法迁移说明调用被重入，直接终止
	advance := func(states ...types.State) *types.TxError {
		for _, st := range states {
			if err := sm.Transition(st); err != nil {
				return types.NewTxError(types.KindUnknownFailure, err.Error(), err)
			}
		}
		return nil
	}

	// 1. 获取签名者
	signer := s.getSigner(signers...)
	if signer == nil {
		return fail("", types.Errorf(types.KindInvalidInput, "signer is required for contract invocation"))
	}

	// 2. 构建
	timeout := req.TimeoutSeconds
	if timeout == 0 {
		timeout = WriteTimeoutSeconds
	}
	inv := types.NewContractInvocation(req.ContractID, req.Method, req.Args...)
	built, err := Build(ctx, s.rpc, inv, BuildOptions{
		Source:            req.Source,
		Fee:               req.Fee,
		TimeoutSeconds:    timeout,
		NetworkPassphrase: s.rpc.NetworkPassphrase(),
	})
	if err != nil {
		if types.KindOf(err) == types.KindAccountFetchFailed {
			return fail(types.StateAccountFetchFailed, err)
		}
		return fail("", err)
	}
	if err := advance(types.StateBuilt, types.StateSimulating); err != nil {
		return nil, endSpan(span, err)
	}

	// 3. 模拟并准备
	prepared, err := s.rpc.Prepare(ctx, built)
	if err != nil {
		txErr := normalizer.NormalizeStage(normalizer.StageSimulate, err)
		if txErr.Kind == types.KindSimulationFailed {
			return fail(types.StateSimulationFailed, txErr)
		}
		return fail(types.StateFailed, txErr)
	}
	if err := advance(types.StatePrepared, types.StateAwaitingSignature); err != nil {
		return nil, endSpan(span, err)
	}

	// 4. 请求签名（可能等待用户操作）
	signed, err := s.sign(ctx, signer, prepared)
	if err != nil {
		if types.KindOf(err) == types.KindUserCancelled {
			return fail(types.StateUserCancelled, err)
		}
		return fail(types.StateSigningFailed, err)
	}
	if err := advance(types.StateSigned); err != nil {
		return nil, endSpan(span, err)
	}

	// 5. 提交
	submitted, err := s.txs.Submit(ctx, prepared, signed)
	if err != nil {
		if types.KindOf(err) == types.KindPollingTimeout {
			return fail(types.StateTimeout, err)
		}
		return fail(types.StateFailed, err)
	}
	hash := submitted.Hash()
	span.SetAttributes(attribute.String("tx.hash", hash))
	if err := advance(types.StateSubmitted, types.StatePolling); err != nil {
		return nil, endSpan(span, err.WithTxHash(hash))
	}

	// 6. 轮询
	result, err := s.txs.WaitForTransaction(ctx, hash)
	if err != nil {
		if types.KindOf(err) == types.KindPollingTimeout {
			return fail(types.StateTimeout, err)
		}
		return fail(types.StateFailed, err)
	}
	if err := advance(types.StateSuccess); err != nil {
		return nil, endSpan(span, err.WithTxHash(hash))
	}

	if s.config.Logger != nil {
		s.config.Logger.Info("Contract invocation succeeded",
			"contract", req.ContractID, "method", req.Method, "hash", hash, "ledger", result.Ledger)
	}

	out := &InvokeResult{
		Success: true,
		TxHash:  hash,
		Status:  result.Status,
		Ledger:  result.Ledger,
		States:  sm.History(),
	}
	if rv, ok := ReturnValueFromMeta(result.ResultMetaXDR); ok {
		out.ReturnValue = rv
	}
	return out, nil
}

// sign 请求签名并生成 signed 阶段信封
func (s *contractService) sign(ctx context.Context, signer wallet.Signer, prepared types.Envelope) (types.Envelope, error) {
	res, err := signer.RequestSignature(ctx, prepared.XDR(), prepared.NetworkPassphrase(), prepared.Source())
	if err != nil {
		return types.Envelope{}, normalizer.NormalizeStage(normalizer.StageSign, err)
	}
	if res == nil {
		return types.Envelope{}, types.Errorf(types.KindSigningFailed, "signer returned no result")
	}
	if res.Declined {
		return types.Envelope{}, types.NewTxError(types.KindUserCancelled, wallet.ErrDeclined.Error(), wallet.ErrDeclined)
	}
	return prepared.Signed(res.SignedTxXDR)
}

// endSpan 归类错误并记录到 span
func endSpan(span trace.Span, err error) *types.TxError {
	txErr := normalizer.Normalize(err)
	span.RecordError(txErr)
	span.SetStatus(codes.Error, string(txErr.Kind))
	if txErr.TxHash != "" {
		span.SetAttributes(attribute.String("tx.hash", txErr.TxHash))
	}
	return txErr
}

// ReturnValueFromMeta 从交易元数据中解码合约返回值
func ReturnValueFromMeta(metaXDR string) (interface{}, bool) {
	raw, ok := utils.ReturnValueFromMeta(metaXDR)
	if !ok {
		return nil, false
	}
	native, err := ScValToNative(*raw)
	if err != nil {
		return nil, false
	}
	return native, true
}

// String 用于日志
func (r *InvokeResult) String() string {
	return fmt.Sprintf("success=%t hash=%s status=%s ledger=%d", r.Success, r.TxHash, r.Status, r.Ledger)
}
