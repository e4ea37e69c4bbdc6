package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stellar/go/clients/horizonclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizchain/client-sdk-go/client"
	"github.com/quizchain/client-sdk-go/types"
	"github.com/quizchain/client-sdk-go/utils"
)

// FundTestAccount 通过 friendbot 为测试账户充值，并等待 RPC 可读到该账户
func FundTestAccount(t *testing.T, c client.Client, address string) {
	t.Helper()
	// 只有 DefaultTestNetClient 允许调用 friendbot
	_, err := horizonclient.DefaultTestNetClient.Fund(address)
	require.NoError(t, err, "friendbot 充值失败: %s", address)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		if _, err := c.GetAccount(ctx, address); err == nil {
			t.Logf("已为账户充值: %s", address)
			return
		}
		select {
		case <-ctx.Done():
			t.Fatalf("充值后账户仍不可见: %s", address)
		case <-ticker.C:
		}
	}
}

// waitForTransaction 轮询直到交易进入终态
func waitForTransaction(ctx context.Context, c client.Client, txHash string, timeout time.Duration) (*utils.ParsedTx, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			parsedTx, err := utils.FetchAndParseTx(ctx, c, txHash)
			if err == nil && parsedTx.Status.Terminal() {
				return parsedTx, nil
			}

			if time.Now().After(deadline) {
				return nil, fmt.Errorf("交易确认超时: %s (超时时间: %v)", txHash, timeout)
			}
		}
	}
}

// WaitForTransaction 等待交易终态
func WaitForTransaction(t *testing.T, c client.Client, txHash string) *utils.ParsedTx {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), TransactionConfirmTimeout)
	defer cancel()

	parsedTx, err := waitForTransaction(ctx, c, txHash, TransactionConfirmTimeout)
	require.NoError(t, err, "等待交易确认失败: %s", txHash)
	return parsedTx
}

// VerifyTransactionSuccess 验证交易成功
func VerifyTransactionSuccess(t *testing.T, parsedTx *utils.ParsedTx) {
	t.Helper()
	require.NotNil(t, parsedTx, "交易解析结果为空")
	assert.NotEmpty(t, parsedTx.Hash, "交易哈希为空")
	assert.Equal(t, types.TxStatusSuccess, parsedTx.Status, "交易未成功")
	assert.True(t, parsedTx.Successful, "结果码: %s", parsedTx.ResultCode)
	assert.Empty(t, utils.FindFailedOperations(parsedTx.Operations), "存在失败的操作")
	assert.Greater(t, parsedTx.Ledger, uint32(0), "交易未上链")
}
