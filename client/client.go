package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"

	"github.com/quizchain/client-sdk-go/types"
)

// Client Stellar RPC 客户端接口
//
// **说明**：
// - 所有方法都是一次远程调用，不做隐式重试，由调用方组合重试策略
// - 实例无状态，可在并发调用间安全共享（每个目标网络构建一次）
type Client interface {
	// GetAccount 获取账户最新序列号
	GetAccount(ctx context.Context, address string) (types.Account, error)

	// Simulate 模拟交易（不改变账本状态）
	Simulate(ctx context.Context, env types.Envelope) (*types.SimulationResult, error)

	// Prepare 模拟并附加资源估算，返回 prepared 阶段的新信封
	Prepare(ctx context.Context, env types.Envelope) (types.Envelope, error)

	// Submit 提交已签名交易，返回交易哈希（仅表示网络已接收）
	Submit(ctx context.Context, env types.Envelope) (string, error)

	// GetStatus 查询交易状态
	GetStatus(ctx context.Context, hash string) (*types.SubmissionResult, error)

	// 网络信息
	GetNetwork(ctx context.Context) (*NetworkInfo, error)
	GetLatestLedger(ctx context.Context) (*LatestLedger, error)
	GetHealth(ctx context.Context) (*HealthInfo, error)
	GetVersionInfo(ctx context.Context) (*VersionInfo, error)

	// NetworkPassphrase 客户端绑定的网络口令
	NetworkPassphrase() string

	// Call 底层通道（不推荐上层直接使用）
	Call(ctx context.Context, method string, params interface{}, result interface{}) error

	// Close 关闭连接
	Close() error
}

// rpcClient Client 实现
type rpcClient struct {
	transport         *httpTransport
	networkPassphrase string
	logger            Logger
}

// NewClient 创建新的客户端
func NewClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if strings.TrimSpace(config.Endpoint) == "" {
		return nil, fmt.Errorf("rpc endpoint is required")
	}
	if strings.TrimSpace(config.NetworkPassphrase) == "" {
		return nil, fmt.Errorf("network passphrase is required")
	}

	return &rpcClient{
		transport:         newHTTPTransport(config),
		networkPassphrase: config.NetworkPassphrase,
		logger:            config.Logger,
	}, nil
}

func (c *rpcClient) NetworkPassphrase() string {
	return c.networkPassphrase
}

func (c *rpcClient) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	return c.transport.call(ctx, method, params, result)
}

func (c *rpcClient) Close() error {
	c.transport.close()
	return nil
}

// GetAccount 通过 getLedgerEntries 读取 ACCOUNT 条目
func (c *rpcClient) GetAccount(ctx context.Context, address string) (types.Account, error) {
	if !strkey.IsValidEd25519PublicKey(address) {
		return types.Account{}, NewInvalidParamsError(fmt.Sprintf("invalid account address %q", address), nil)
	}

	accountID, err := xdr.AddressToAccountId(address)
	if err != nil {
		return types.Account{}, NewInvalidParamsError("convert account address failed", err)
	}
	key := xdr.LedgerKey{
		Type:    xdr.LedgerEntryTypeAccount,
		Account: &xdr.LedgerKeyAccount{AccountId: accountID},
	}
	keyB64, err := xdr.MarshalBase64(key)
	if err != nil {
		return types.Account{}, NewInvalidParamsError("encode ledger key failed", err)
	}

	var resp getLedgerEntriesResponse
	if err := c.Call(ctx, "getLedgerEntries", getLedgerEntriesRequest{Keys: []string{keyB64}}, &resp); err != nil {
		return types.Account{}, err
	}
	if len(resp.Entries) == 0 {
		return types.Account{}, NewNotFoundError(fmt.Sprintf("account %s", address))
	}

	var data xdr.LedgerEntryData
	if err := xdr.SafeUnmarshalBase64(resp.Entries[0].XDR, &data); err != nil {
		return types.Account{}, &Error{Code: ErrCodeInvalidResponse, Message: "decode account entry failed", Err: err}
	}
	if data.Type != xdr.LedgerEntryTypeAccount || data.Account == nil {
		return types.Account{}, NewInvalidResponseError(fmt.Sprintf("unexpected ledger entry type %s", data.Type))
	}

	return types.Account{
		Address:  address,
		Sequence: int64(data.Account.SeqNum),
		Balance:  int64(data.Account.Balance),
	}, nil
}

// Simulate 调用 simulateTransaction
func (c *rpcClient) Simulate(ctx context.Context, env types.Envelope) (*types.SimulationResult, error) {
	if env.XDR() == "" {
		return nil, NewInvalidParamsError("envelope has no transaction XDR", nil)
	}

	var resp simulateTransactionResponse
	if err := c.Call(ctx, "simulateTransaction", simulateTransactionRequest{Transaction: env.XDR()}, &resp); err != nil {
		return nil, err
	}

	result := &types.SimulationResult{
		Error:        resp.Error,
		LatestLedger: resp.LatestLedger,
		Resources: types.ResourceEstimate{
			MinResourceFee:  int64(resp.MinResourceFee),
			TransactionData: resp.TransactionData,
		},
	}
	if resp.Cost != nil {
		result.Resources.CPUInstructions = uint64(resp.Cost.CPUInstructions)
		result.Resources.MemoryBytes = uint64(resp.Cost.MemoryBytes)
	}
	for _, r := range resp.Results {
		result.Results = append(result.Results, types.SimulationEntry{
			Auth: r.Auth,
			XDR:  r.XDR,
		})
	}

	if c.logger != nil {
		c.logger.Debug("Simulated transaction",
			"source", env.Source(),
			"method", env.Invocation().Method(),
			"min_resource_fee", result.Resources.MinResourceFee,
			"error", result.Error)
	}
	return result, nil
}

// Prepare 模拟交易并将 soroban 资源数据、授权条目、资源费写回交易
//
// **说明**：
// - 保持原交易的序列号和时间边界不变，只替换资源相关字段
// - 同一个 built 信封在账本状态不变时多次 Prepare 得到相同的估算
func (c *rpcClient) Prepare(ctx context.Context, env types.Envelope) (types.Envelope, error) {
	if env.Stage() != types.StageBuilt {
		return types.Envelope{}, types.Errorf(types.KindInvalidInput, "prepare requires a built envelope, got %s", env.Stage())
	}

	// 1. 模拟
	sim, err := c.Simulate(ctx, env)
	if err != nil {
		return types.Envelope{}, err
	}
	if sim.Error != "" {
		return types.Envelope{}, types.NewTxError(types.KindSimulationFailed, sim.Error, nil)
	}
	if sim.Resources.TransactionData == "" {
		return types.Envelope{}, types.NewTxError(types.KindSimulationFailed, "simulation returned no transaction data", nil)
	}

	// 2. 解析原交易
	tx, err := parseTransaction(env.XDR())
	if err != nil {
		return types.Envelope{}, err
	}
	ops := tx.Operations()
	if len(ops) != 1 {
		return types.Envelope{}, types.Errorf(types.KindInvalidInput, "expected exactly one operation, got %d", len(ops))
	}
	invoke, ok := ops[0].(*txnbuild.InvokeHostFunction)
	if !ok {
		return types.Envelope{}, types.Errorf(types.KindInvalidInput, "operation is not a contract invocation")
	}

	// 3. 解码资源数据和授权条目
	var sorobanData xdr.SorobanTransactionData
	if err := xdr.SafeUnmarshalBase64(sim.Resources.TransactionData, &sorobanData); err != nil {
		return types.Envelope{}, &Error{Code: ErrCodeInvalidResponse, Message: "decode transaction data failed", Err: err}
	}

	prepared := *invoke
	prepared.Ext = xdr.TransactionExt{V: 1, SorobanData: &sorobanData}
	if len(prepared.Auth) == 0 && len(sim.Results) > 0 {
		auth := make([]xdr.SorobanAuthorizationEntry, 0, len(sim.Results[0].Auth))
		for _, a := range sim.Results[0].Auth {
			var entry xdr.SorobanAuthorizationEntry
			if err := xdr.SafeUnmarshalBase64(a, &entry); err != nil {
				return types.Envelope{}, &Error{Code: ErrCodeInvalidResponse, Message: "decode auth entry failed", Err: err}
			}
			auth = append(auth, entry)
		}
		prepared.Auth = auth
	}

	// 4. 重新组装（序列号不再递增，时间边界保持不变）
	// txnbuild 会把 SorobanData.ResourceFee 加到 BaseFee 之上，这里只传基础费用
	tb := tx.Timebounds()
	rebuilt, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount: &txnbuild.SimpleAccount{
			AccountID: env.Source(),
			Sequence:  tx.SequenceNumber(),
		},
		IncrementSequenceNum: false,
		BaseFee:              env.Fee(),
		Operations:           []txnbuild.Operation{&prepared},
		Memo:                 tx.Memo(),
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimebounds(tb.MinTime, tb.MaxTime),
		},
	})
	if err != nil {
		return types.Envelope{}, types.NewTxError(types.KindInvalidInput, fmt.Sprintf("assemble prepared transaction: %v", err), err)
	}
	preparedXDR, err := rebuilt.Base64()
	if err != nil {
		return types.Envelope{}, types.NewTxError(types.KindInvalidInput, fmt.Sprintf("encode prepared transaction: %v", err), err)
	}

	return env.Prepared(preparedXDR, rebuilt.MaxFee(), sim.Resources)
}

// Submit 调用 sendTransaction
func (c *rpcClient) Submit(ctx context.Context, env types.Envelope) (string, error) {
	if env.Stage() != types.StageSigned {
		return "", types.Errorf(types.KindInvalidInput, "submit requires a signed envelope, got %s", env.Stage())
	}

	var resp sendTransactionResponse
	if err := c.Call(ctx, "sendTransaction", sendTransactionRequest{Transaction: env.XDR()}, &resp); err != nil {
		return "", err
	}

	switch resp.Status {
	case SendStatusPending:
		if resp.Hash == "" {
			return "", NewInvalidResponseError("sendTransaction returned no hash")
		}
		if c.logger != nil {
			c.logger.Info("Transaction submitted", "hash", resp.Hash, "source", env.Source(), "sequence", env.Sequence())
		}
		return resp.Hash, nil
	case SendStatusDuplicate, SendStatusTryAgainLater:
		return "", &SubmitError{Status: resp.Status, TxHash: resp.Hash}
	case SendStatusError:
		sErr := &SubmitError{Status: resp.Status, TxHash: resp.Hash, ErrorResultXDR: resp.ErrorResultXDR}
		if resp.ErrorResultXDR != "" {
			var result xdr.TransactionResult
			if err := xdr.SafeUnmarshalBase64(resp.ErrorResultXDR, &result); err == nil {
				sErr.ResultCode = result.Result.Code
				sErr.HasResultCode = true
			}
		}
		return "", sErr
	default:
		return "", NewInvalidResponseError(fmt.Sprintf("unknown sendTransaction status %q", resp.Status))
	}
}

// GetStatus 调用 getTransaction
func (c *rpcClient) GetStatus(ctx context.Context, hash string) (*types.SubmissionResult, error) {
	if strings.TrimSpace(hash) == "" {
		return nil, NewInvalidParamsError("transaction hash is required", nil)
	}

	var resp getTransactionResponse
	if err := c.Call(ctx, "getTransaction", getTransactionRequest{Hash: hash}, &resp); err != nil {
		return nil, err
	}

	status := types.TxStatus(resp.Status)
	switch status {
	case types.TxStatusSuccess, types.TxStatusFailed, types.TxStatusNotFound, types.TxStatusPending:
	default:
		return nil, NewInvalidResponseError(fmt.Sprintf("unknown getTransaction status %q", resp.Status))
	}

	return &types.SubmissionResult{
		TxHash:        hash,
		Status:        status,
		Ledger:        resp.Ledger,
		ResultXDR:     resp.ResultXDR,
		ResultMetaXDR: resp.ResultMetaXDR,
		LatestLedger:  resp.LatestLedger,
	}, nil
}

func (c *rpcClient) GetNetwork(ctx context.Context) (*NetworkInfo, error) {
	var info NetworkInfo
	if err := c.Call(ctx, "getNetwork", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *rpcClient) GetLatestLedger(ctx context.Context) (*LatestLedger, error) {
	var ledger LatestLedger
	if err := c.Call(ctx, "getLatestLedger", nil, &ledger); err != nil {
		return nil, err
	}
	return &ledger, nil
}

func (c *rpcClient) GetHealth(ctx context.Context) (*HealthInfo, error) {
	var health HealthInfo
	if err := c.Call(ctx, "getHealth", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

func (c *rpcClient) GetVersionInfo(ctx context.Context) (*VersionInfo, error) {
	var info VersionInfo
	if err := c.Call(ctx, "getVersionInfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// parseTransaction 解码 base64 交易信封
func parseTransaction(envelopeXDR string) (*txnbuild.Transaction, error) {
	generic, err := txnbuild.TransactionFromXDR(envelopeXDR)
	if err != nil {
		return nil, types.NewTxError(types.KindInvalidInput, fmt.Sprintf("decode transaction envelope: %v", err), err)
	}
	tx, ok := generic.Transaction()
	if !ok {
		return nil, types.Errorf(types.KindInvalidInput, "fee bump transactions are not supported")
	}
	return tx, nil
}
