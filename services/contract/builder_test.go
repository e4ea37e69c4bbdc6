package contract

import (
	"context"
	"testing"
	"time"

	"github.com/stellar/go/network"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizchain/client-sdk-go/types"
)

func TestBuild_SequenceAndOperation(t *testing.T) {
	source := testSigner(t).Address()
	ledger := &fakeLedger{account: types.Account{Sequence: 41}}
	inv := types.NewContractInvocation(testContractID(t), "mint", Symbol("quiz-1"), U32(90))

	env, err := Build(context.Background(), ledger, inv, BuildOptions{
		Source:            source,
		NetworkPassphrase: network.TestNetworkPassphrase,
	})
	require.NoError(t, err)
	assert.Equal(t, types.StageBuilt, env.Stage())
	assert.Equal(t, int64(42), env.Sequence())
	assert.Equal(t, source, env.Source())
	assert.Equal(t, DefaultFee, env.Fee())
	assert.Equal(t, 1, ledger.accountCalls)

	gtx, err := txnbuild.TransactionFromXDR(env.XDR())
	require.NoError(t, err)
	tx, ok := gtx.Transaction()
	require.True(t, ok)
	require.Len(t, tx.Operations(), 1)
	op, ok := tx.Operations()[0].(*txnbuild.InvokeHostFunction)
	require.True(t, ok)
	assert.Equal(t, xdr.ScSymbol("mint"), op.HostFunction.InvokeContract.FunctionName)
	assert.Len(t, op.HostFunction.InvokeContract.Args, 2)

	tb := tx.Timebounds()
	assert.InDelta(t, time.Now().Unix()+WriteTimeoutSeconds, tb.MaxTime, 5)
}

func TestBuild_ReadTimeout(t *testing.T) {
	ledger := &fakeLedger{account: types.Account{Sequence: 1}}
	inv := types.NewContractInvocation(testContractID(t), "name")
	env, err := Build(context.Background(), ledger, inv, BuildOptions{
		Source:            testSigner(t).Address(),
		TimeoutSeconds:    ReadTimeoutSeconds,
		NetworkPassphrase: network.TestNetworkPassphrase,
	})
	require.NoError(t, err)

	gtx, err := txnbuild.TransactionFromXDR(env.XDR())
	require.NoError(t, err)
	tx, _ := gtx.Transaction()
	tb := tx.Timebounds()
	assert.InDelta(t, time.Now().Unix()+ReadTimeoutSeconds, tb.MaxTime, 5)
}

func TestValidateInvocation(t *testing.T) {
	contractID := testContractID(t)
	tests := []struct {
		name    string
		inv     types.ContractInvocation
		wantErr bool
	}{
		{"valid", types.NewContractInvocation(contractID, "should_mint"), false},
		{"empty contract", types.NewContractInvocation("", "mint"), true},
		{"garbage contract", types.NewContractInvocation("CABC", "mint"), true},
		{"empty method", types.NewContractInvocation(contractID, ""), true},
		{"too long method", types.NewContractInvocation(contractID, "abcdefghijklmnopqrstuvwxyz0123456"), true},
		{"bad chars", types.NewContractInvocation(contractID, "mint-reward"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInvocation(tt.inv)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBuildFromAccount_SourceMismatch(t *testing.T) {
	account := types.Account{Address: testSigner(t).Address(), Sequence: 3}
	inv := types.NewContractInvocation(testContractID(t), "name")
	_, err := BuildFromAccount(account, inv, BuildOptions{
		Source:            testSigner(t).Address(),
		NetworkPassphrase: network.TestNetworkPassphrase,
	})
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestBuild_MissingPassphrase(t *testing.T) {
	ledger := &fakeLedger{}
	inv := types.NewContractInvocation(testContractID(t), "name")
	_, err := Build(context.Background(), ledger, inv, BuildOptions{Source: testSigner(t).Address()})
	assert.ErrorIs(t, err, types.ErrInvalidInput)
	assert.Equal(t, 0, ledger.accountCalls)
}
