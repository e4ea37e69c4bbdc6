package types

import (
	"github.com/stellar/go/xdr"
)

// Account 链上账户快照
//
// **说明**：
// - 每次构建交易前重新获取，不跨调用缓存（序列号必须是最新的）
type Account struct {
	Address  string // G... 公钥地址
	Sequence int64  // 账户当前序列号（下一笔交易使用 Sequence+1）
	Balance  int64  // 余额（stroops，仅展示用）
}

// ContractInvocation 合约调用描述（构造后不可变）
type ContractInvocation struct {
	contractID string
	method     string
	args       []xdr.ScVal
}

// NewContractInvocation 创建合约调用，参数切片会被复制
func NewContractInvocation(contractID, method string, args ...xdr.ScVal) ContractInvocation {
	cp := make([]xdr.ScVal, len(args))
	copy(cp, args)
	return ContractInvocation{
		contractID: contractID,
		method:     method,
		args:       cp,
	}
}

// ContractID 合约地址（C... strkey）
func (c ContractInvocation) ContractID() string { return c.contractID }

// Method 方法名
func (c ContractInvocation) Method() string { return c.method }

// Args 参数副本
func (c ContractInvocation) Args() []xdr.ScVal {
	cp := make([]xdr.ScVal, len(c.args))
	copy(cp, c.args)
	return cp
}

// TxStatus 交易状态（与 getTransaction 返回值一致）
type TxStatus string

const (
	TxStatusPending  TxStatus = "PENDING"
	TxStatusSuccess  TxStatus = "SUCCESS"
	TxStatusFailed   TxStatus = "FAILED"
	TxStatusNotFound TxStatus = "NOT_FOUND"
)

// Terminal 是否为终态
func (s TxStatus) Terminal() bool {
	return s == TxStatusSuccess || s == TxStatusFailed
}

// ResourceEstimate 模拟得出的资源估算
type ResourceEstimate struct {
	MinResourceFee  int64
	CPUInstructions uint64
	MemoryBytes     uint64
	TransactionData string // base64 SorobanTransactionData
}

// SimulationEntry 模拟结果项
type SimulationEntry struct {
	Auth []string // base64 SorobanAuthorizationEntry
	XDR  string   // base64 ScVal 返回值
}

// SimulationResult 模拟结果（不持久化）
type SimulationResult struct {
	Error        string
	Results      []SimulationEntry
	Resources    ResourceEstimate
	LatestLedger uint32
	// ReturnValue 解码后的原生返回值（由 Simulator 填充）
	ReturnValue interface{}
}

// FirstReturnValue 第一个可解码的返回值
func (r *SimulationResult) FirstReturnValue() (xdr.ScVal, bool) {
	if r == nil {
		return xdr.ScVal{}, false
	}
	for _, entry := range r.Results {
		if entry.XDR == "" {
			continue
		}
		var val xdr.ScVal
		if err := xdr.SafeUnmarshalBase64(entry.XDR, &val); err != nil {
			continue
		}
		return val, true
	}
	return xdr.ScVal{}, false
}

// SubmissionResult 提交/查询结果
type SubmissionResult struct {
	TxHash        string
	Status        TxStatus
	Ledger        uint32
	ResultXDR     string
	ResultMetaXDR string
	LatestLedger  uint32
}
