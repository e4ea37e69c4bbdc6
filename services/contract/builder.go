package contract

import (
	"context"
	"fmt"
	"regexp"

	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"

	"github.com/quizchain/client-sdk-go/types"
)

const (
	// DefaultFee 默认基础手续费（stroops）
	DefaultFee int64 = 100000
	// ReadTimeoutSeconds 只读/模拟路径的交易有效期（短有效期避免持有过期序列号）
	ReadTimeoutSeconds int64 = 30
	// WriteTimeoutSeconds 状态变更路径的交易有效期
	WriteTimeoutSeconds int64 = 180
	// maxSymbolLength Soroban 符号最大长度
	maxSymbolLength = 32
)

var symbolPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// AccountFetcher 读取账户序列号（client.Client 满足该接口）
type AccountFetcher interface {
	GetAccount(ctx context.Context, address string) (types.Account, error)
}

// BuildOptions 构建参数
type BuildOptions struct {
	// Source 交易来源账户（G... 地址）
	Source string
	// Fee 基础手续费（stroops，0 使用 DefaultFee）
	Fee int64
	// TimeoutSeconds 交易有效期（秒，0 使用 WriteTimeoutSeconds）
	TimeoutSeconds int64
	// NetworkPassphrase 网络口令
	NetworkPassphrase string
}

func (o BuildOptions) withDefaults() BuildOptions {
	if o.Fee == 0 {
		o.Fee = DefaultFee
	}
	if o.TimeoutSeconds == 0 {
		o.TimeoutSeconds = WriteTimeoutSeconds
	}
	return o
}

// ValidateInvocation 校验合约调用（不发起网络请求）
func ValidateInvocation(inv types.ContractInvocation) error {
	if inv.ContractID() == "" {
		return types.Errorf(types.KindInvalidInput, "contract id is required")
	}
	if !IsContractAddress(inv.ContractID()) {
		return types.Errorf(types.KindInvalidInput, "invalid contract id %q", inv.ContractID())
	}
	method := inv.Method()
	if method == "" {
		return types.Errorf(types.KindInvalidInput, "method name is required")
	}
	if len(method) > maxSymbolLength || !symbolPattern.MatchString(method) {
		return types.Errorf(types.KindInvalidInput, "invalid method name %q", method)
	}
	return nil
}

func validateOptions(opts BuildOptions) error {
	if !strkey.IsValidEd25519PublicKey(opts.Source) {
		return types.Errorf(types.KindInvalidInput, "invalid source account %q", opts.Source)
	}
	if opts.Fee <= 0 {
		return types.Errorf(types.KindInvalidInput, "fee must be positive, got %d", opts.Fee)
	}
	if opts.TimeoutSeconds <= 0 {
		return types.Errorf(types.KindInvalidInput, "timeout must be positive, got %d", opts.TimeoutSeconds)
	}
	if opts.NetworkPassphrase == "" {
		return types.Errorf(types.KindInvalidInput, "network passphrase is required")
	}
	return nil
}

// Build 构建未签名交易信封
//
// **流程**：
// 1. 校验调用和参数（失败返回 InvalidInput，不发起网络请求）
// 2. 重新获取来源账户（失败返回 AccountFetchFailed）
// 3. 构建只含一个合约调用操作的交易，序列号为账户序列号 + 1
func Build(ctx context.Context, accounts AccountFetcher, inv types.ContractInvocation, opts BuildOptions) (types.Envelope, error) {
	// 1. 参数验证
	opts = opts.withDefaults()
	if err := ValidateInvocation(inv); err != nil {
		return types.Envelope{}, err
	}
	if err := validateOptions(opts); err != nil {
		return types.Envelope{}, err
	}

	// 2. 获取账户
	account, err := accounts.GetAccount(ctx, opts.Source)
	if err != nil {
		return types.Envelope{}, types.NewTxError(types.KindAccountFetchFailed, err.Error(), err)
	}

	// 3. 构建交易
	return BuildFromAccount(account, inv, opts)
}

// BuildFromAccount 使用已获取的账户构建交易（同一账户的多个只读查询可以共享一次账户读取）
func BuildFromAccount(account types.Account, inv types.ContractInvocation, opts BuildOptions) (types.Envelope, error) {
	opts = opts.withDefaults()
	if err := ValidateInvocation(inv); err != nil {
		return types.Envelope{}, err
	}
	if opts.Source == "" {
		opts.Source = account.Address
	}
	if err := validateOptions(opts); err != nil {
		return types.Envelope{}, err
	}
	if account.Address != opts.Source {
		return types.Envelope{}, types.Errorf(types.KindInvalidInput, "account %s does not match source %s", account.Address, opts.Source)
	}

	contractAddr, err := ParseAddress(inv.ContractID())
	if err != nil {
		return types.Envelope{}, types.NewTxError(types.KindInvalidInput, err.Error(), err)
	}

	op := &txnbuild.InvokeHostFunction{
		HostFunction: xdr.HostFunction{
			Type: xdr.HostFunctionTypeHostFunctionTypeInvokeContract,
			InvokeContract: &xdr.InvokeContractArgs{
				ContractAddress: contractAddr,
				FunctionName:    xdr.ScSymbol(inv.Method()),
				Args:            xdr.ScVec(inv.Args()),
			},
		},
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount: &txnbuild.SimpleAccount{
			AccountID: account.Address,
			Sequence:  account.Sequence,
		},
		IncrementSequenceNum: true,
		BaseFee:              opts.Fee,
		Operations:           []txnbuild.Operation{op},
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(opts.TimeoutSeconds),
		},
	})
	if err != nil {
		return types.Envelope{}, types.NewTxError(types.KindInvalidInput, fmt.Sprintf("build transaction: %v", err), err)
	}

	b64, err := tx.Base64()
	if err != nil {
		return types.Envelope{}, types.NewTxError(types.KindInvalidInput, fmt.Sprintf("encode transaction: %v", err), err)
	}

	return types.NewBuiltEnvelope(b64, account.Address, tx.SequenceNumber(), opts.NetworkPassphrase, inv, opts.Fee), nil
}
