package utils

import (
	"context"
	"fmt"
	"strings"

	"github.com/stellar/go/xdr"

	"github.com/quizchain/client-sdk-go/types"
)

// ParsedTx 解析后的交易结果
type ParsedTx struct {
	Hash       string
	Status     types.TxStatus
	Ledger     uint32
	FeeCharged int64  // 实际扣除的手续费（stroops）
	ResultCode string // TransactionResultCode 名称
	Successful bool
	Operations []ParsedOperation
	// ReturnValue 合约返回值（仅 Soroban 调用成功时存在）
	ReturnValue *xdr.ScVal
	// EventCount 合约事件数量
	EventCount int
}

// ParsedOperation 解析后的操作结果
type ParsedOperation struct {
	Index int
	Code  string // OperationResultCode 名称
	// InvokeCode InvokeHostFunction 的结果码（其他操作为空）
	InvokeCode string
}

// StatusLookup 按哈希查询交易状态（client.Client 满足该接口）
type StatusLookup interface {
	GetStatus(ctx context.Context, hash string) (*types.SubmissionResult, error)
}

// FetchAndParseTx 获取并解析交易结果
//
// **流程**：
// 1. 调用 getTransaction 查询状态
// 2. 未上链（PENDING / NOT_FOUND）时只返回状态，不解析 XDR
// 3. 已上链时解析 ResultXDR 与 ResultMetaXDR
func FetchAndParseTx(ctx context.Context, lookup StatusLookup, txHash string) (*ParsedTx, error) {
	// 1. 规范化哈希
	txHashClean := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(txHash), "0x"))
	if len(txHashClean) != 64 {
		return nil, fmt.Errorf("invalid transaction hash %q", txHash)
	}

	// 2. 查询
	result, err := lookup.GetStatus(ctx, txHashClean)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("transaction not found")
	}

	// 3. 解析
	return ParseSubmissionResult(result)
}

// ParseSubmissionResult 解析 getTransaction 结果中的 XDR 字段
func ParseSubmissionResult(result *types.SubmissionResult) (*ParsedTx, error) {
	parsed := &ParsedTx{
		Hash:   result.TxHash,
		Status: result.Status,
		Ledger: result.Ledger,
	}
	if !result.Status.Terminal() {
		return parsed, nil
	}

	if result.ResultXDR != "" {
		var tr xdr.TransactionResult
		if err := xdr.SafeUnmarshalBase64(result.ResultXDR, &tr); err != nil {
			return nil, fmt.Errorf("invalid result XDR: %w", err)
		}
		parsed.FeeCharged = int64(tr.FeeCharged)
		parsed.ResultCode = tr.Result.Code.String()
		parsed.Successful = tr.Successful()
		if ops, ok := tr.OperationResults(); ok {
			for i, op := range ops {
				parsed.Operations = append(parsed.Operations, parseOperation(i, op))
			}
		}
	}

	if result.ResultMetaXDR != "" {
		rv, events, err := parseMeta(result.ResultMetaXDR)
		if err != nil {
			return nil, err
		}
		parsed.ReturnValue = rv
		parsed.EventCount = events
	}
	return parsed, nil
}

// ReturnValueFromMeta 从 TransactionMeta（base64）中取出合约返回值
func ReturnValueFromMeta(metaXDR string) (*xdr.ScVal, bool) {
	if metaXDR == "" {
		return nil, false
	}
	rv, _, err := parseMeta(metaXDR)
	if err != nil || rv == nil {
		return nil, false
	}
	return rv, true
}

// parseMeta 支持 V3 与 V4 元数据，其他版本没有 Soroban 返回值
func parseMeta(metaXDR string) (*xdr.ScVal, int, error) {
	var meta xdr.TransactionMeta
	if err := xdr.SafeUnmarshalBase64(metaXDR, &meta); err != nil {
		return nil, 0, fmt.Errorf("invalid result meta XDR: %w", err)
	}

	switch meta.V {
	case 3:
		if meta.V3 == nil || meta.V3.SorobanMeta == nil {
			return nil, 0, nil
		}
		rv := meta.V3.SorobanMeta.ReturnValue
		return &rv, len(meta.V3.SorobanMeta.Events), nil
	case 4:
		if meta.V4 == nil {
			return nil, 0, nil
		}
		events := 0
		for _, op := range meta.V4.Operations {
			events += len(op.Events)
		}
		var rv *xdr.ScVal
		if meta.V4.SorobanMeta != nil {
			rv = meta.V4.SorobanMeta.ReturnValue
		}
		return rv, events, nil
	}
	return nil, 0, nil
}

func parseOperation(index int, op xdr.OperationResult) ParsedOperation {
	out := ParsedOperation{Index: index, Code: op.Code.String()}
	if op.Tr == nil {
		return out
	}
	if res, ok := op.Tr.GetInvokeHostFunctionResult(); ok {
		out.InvokeCode = res.Code.String()
	}
	return out
}

// FindFailedOperations 查找未成功的操作
func FindFailedOperations(ops []ParsedOperation) []ParsedOperation {
	var result []ParsedOperation
	for _, op := range ops {
		if op.Code != xdr.OperationResultCodeOpInner.String() {
			result = append(result, op)
			continue
		}
		if op.InvokeCode != "" && op.InvokeCode != xdr.InvokeHostFunctionResultCodeInvokeHostFunctionSuccess.String() {
			result = append(result, op)
		}
	}
	return result
}
