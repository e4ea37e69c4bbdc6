package contract

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stellar/go/network"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizchain/client-sdk-go/client"
	"github.com/quizchain/client-sdk-go/services/transaction"
	"github.com/quizchain/client-sdk-go/types"
	"github.com/quizchain/client-sdk-go/wallet"
)

// fakeLedger 记录调用次数的 LedgerRPC
type fakeLedger struct {
	mu sync.Mutex

	account    types.Account
	accountErr error
	simValue   *xdr.ScVal
	simError   string
	prepareErr error
	submitHash string
	submitErr  error
	statuses   []types.TxStatus
	metaXDR    string

	accountCalls  int
	simulateCalls int
	prepareCalls  int
	submitCalls   int
	statusCalls   int
}

func (f *fakeLedger) GetAccount(ctx context.Context, address string) (types.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accountCalls++
	if f.accountErr != nil {
		return types.Account{}, f.accountErr
	}
	acct := f.account
	acct.Address = address
	return acct, nil
}

func (f *fakeLedger) simulation() (*types.SimulationResult, error) {
	if f.simError != "" {
		return &types.SimulationResult{Error: f.simError}, nil
	}
	sim := &types.SimulationResult{Resources: types.ResourceEstimate{MinResourceFee: 5000}}
	if f.simValue != nil {
		b64, err := xdr.MarshalBase64(*f.simValue)
		if err != nil {
			return nil, err
		}
		sim.Results = []types.SimulationEntry{{XDR: b64}}
	}
	return sim, nil
}

func (f *fakeLedger) Simulate(ctx context.Context, env types.Envelope) (*types.SimulationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulateCalls++
	return f.simulation()
}

func (f *fakeLedger) Prepare(ctx context.Context, env types.Envelope) (types.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepareCalls++
	if f.prepareErr != nil {
		return types.Envelope{}, f.prepareErr
	}
	sim, err := f.simulation()
	if err != nil {
		return types.Envelope{}, err
	}
	if sim.Error != "" {
		return types.Envelope{}, types.NewTxError(types.KindSimulationFailed, sim.Error, nil)
	}
	return env.Prepared(env.XDR(), env.Fee()+sim.Resources.MinResourceFee, sim.Resources)
}

func (f *fakeLedger) Submit(ctx context.Context, env types.Envelope) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	return f.submitHash, f.submitErr
}

func (f *fakeLedger) GetStatus(ctx context.Context, hash string) (*types.SubmissionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	idx := f.statusCalls - 1
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	res := &types.SubmissionResult{TxHash: hash, Status: f.statuses[idx], Ledger: 77}
	if res.Status == types.TxStatusSuccess {
		res.ResultMetaXDR = f.metaXDR
	}
	return res, nil
}

func (f *fakeLedger) NetworkPassphrase() string { return network.TestNetworkPassphrase }

func testContractID(t *testing.T) string {
	t.Helper()
	id, err := strkey.Encode(strkey.VersionByteContract, make([]byte, 32))
	require.NoError(t, err)
	return id
}

func testSigner(t *testing.T) *wallet.KeypairSigner {
	t.Helper()
	s, err := wallet.NewRandomKeypairSigner()
	require.NoError(t, err)
	return s
}

func fastConfig(onChange func(from, to types.State)) ServiceConfig {
	return ServiceConfig{
		Poll:          transaction.PollConfig{Interval: time.Millisecond, MaxAttempts: 30},
		OnStateChange: onChange,
	}
}

func TestInvoke_MintSucceedsAfterPending(t *testing.T) {
	signer := testSigner(t)
	ledger := &fakeLedger{
		account:    types.Account{Sequence: 41},
		submitHash: "h1",
		statuses:   []types.TxStatus{types.TxStatusPending, types.TxStatusPending, types.TxStatusSuccess},
	}
	var seen []types.State
	svc := NewServiceWithConfig(ledger, signer, fastConfig(func(from, to types.State) { seen = append(seen, to) }))
	recipient, err := Address(signer.Address())
	require.NoError(t, err)

	result, err := svc.Invoke(context.Background(), &InvokeRequest{
		ContractID: testContractID(t),
		Method:     "mint",
		Args:       []xdr.ScVal{recipient},
		Source:     signer.Address(),
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "h1", result.TxHash)
	assert.Equal(t, types.TxStatusSuccess, result.Status)
	assert.Equal(t, uint32(77), result.Ledger)
	assert.Equal(t, 3, ledger.statusCalls)
	assert.Equal(t, 1, ledger.submitCalls)

	want := []types.State{
		types.StateBuilt, types.StateSimulating, types.StatePrepared, types.StateAwaitingSignature,
		types.StateSigned, types.StateSubmitted, types.StatePolling, types.StateSuccess,
	}
	assert.Equal(t, want, seen)
	assert.Equal(t, want, result.States)
}

func TestInvoke_DeclineNeverSubmits(t *testing.T) {
	ledger := &fakeLedger{submitHash: "h2", statuses: []types.TxStatus{types.TxStatusSuccess}}
	source := testSigner(t).Address()

	cases := []struct {
		name   string
		signer wallet.Signer
	}{
		{"declined result", wallet.SignerFunc(func(ctx context.Context, txXDR, passphrase, addr string) (*wallet.SignResult, error) {
			return &wallet.SignResult{Declined: true}, nil
		})},
		{"declined error", wallet.SignerFunc(func(ctx context.Context, txXDR, passphrase, addr string) (*wallet.SignResult, error) {
			return nil, wallet.ErrDeclined
		})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var last types.State
			svc := NewServiceWithConfig(ledger, tc.signer, fastConfig(func(from, to types.State) { last = to }))
			_, err := svc.Invoke(context.Background(), &InvokeRequest{
				ContractID: testContractID(t),
				Method:     "mint",
				Source:     source,
			})
			assert.ErrorIs(t, err, types.ErrUserCancelled)
			assert.Equal(t, types.StateUserCancelled, last)
		})
	}
	assert.Equal(t, 0, ledger.submitCalls)
	assert.Equal(t, 0, ledger.statusCalls)
}

func TestInvoke_SignerFailure(t *testing.T) {
	ledger := &fakeLedger{}
	signer := wallet.SignerFunc(func(ctx context.Context, txXDR, passphrase, addr string) (*wallet.SignResult, error) {
		return nil, &wallet.SignError{Message: "extension crashed"}
	})
	var last types.State
	svc := NewServiceWithConfig(ledger, signer, fastConfig(func(from, to types.State) { last = to }))

	_, err := svc.Invoke(context.Background(), &InvokeRequest{
		ContractID: testContractID(t),
		Method:     "mint",
		Source:     testSigner(t).Address(),
	})
	assert.ErrorIs(t, err, types.ErrSigningFailed)
	assert.Equal(t, types.StateSigningFailed, last)
	assert.Equal(t, 0, ledger.submitCalls)
}

func TestInvoke_PollingTimeoutCarriesHash(t *testing.T) {
	signer := testSigner(t)
	ledger := &fakeLedger{submitHash: "h3", statuses: []types.TxStatus{types.TxStatusPending}}
	var last types.State
	svc := NewServiceWithConfig(ledger, signer, fastConfig(func(from, to types.State) { last = to }))

	_, err := svc.Invoke(context.Background(), &InvokeRequest{
		ContractID: testContractID(t),
		Method:     "mint",
		Source:     signer.Address(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrPollingTimeout)
	txErr, ok := types.IsTxError(err)
	require.True(t, ok)
	assert.Equal(t, "h3", txErr.TxHash)
	assert.Equal(t, 30, ledger.statusCalls)
	assert.Equal(t, types.StateTimeout, last)
}

func TestInvoke_SubmitTimeoutIsAmbiguous(t *testing.T) {
	signer := testSigner(t)
	ledger := &fakeLedger{submitErr: client.NewTimeoutError(context.DeadlineExceeded)}
	var last types.State
	svc := NewServiceWithConfig(ledger, signer, fastConfig(func(from, to types.State) { last = to }))

	_, err := svc.Invoke(context.Background(), &InvokeRequest{
		ContractID: testContractID(t),
		Method:     "mint",
		Source:     signer.Address(),
	})
	assert.ErrorIs(t, err, types.ErrPollingTimeout)
	txErr, ok := types.IsTxError(err)
	require.True(t, ok)
	assert.Len(t, txErr.TxHash, 64)
	assert.False(t, txErr.Retryable())
	assert.Equal(t, types.StateTimeout, last)
	assert.Equal(t, 1, ledger.submitCalls)
	assert.Equal(t, 0, ledger.statusCalls)
}

func TestInvoke_TransactionFailed(t *testing.T) {
	signer := testSigner(t)
	ledger := &fakeLedger{submitHash: "h4", statuses: []types.TxStatus{types.TxStatusFailed}}
	var last types.State
	svc := NewServiceWithConfig(ledger, signer, fastConfig(func(from, to types.State) { last = to }))

	_, err := svc.Invoke(context.Background(), &InvokeRequest{
		ContractID: testContractID(t),
		Method:     "mint",
		Source:     signer.Address(),
	})
	assert.ErrorIs(t, err, types.ErrTransactionFailed)
	assert.Equal(t, types.StateFailed, last)
}

func TestInvoke_SimulationFailed(t *testing.T) {
	signer := testSigner(t)
	ledger := &fakeLedger{simError: "HostError: Error(Contract, #3)"}
	var last types.State
	svc := NewServiceWithConfig(ledger, signer, fastConfig(func(from, to types.State) { last = to }))

	_, err := svc.Invoke(context.Background(), &InvokeRequest{
		ContractID: testContractID(t),
		Method:     "mint",
		Source:     signer.Address(),
	})
	assert.ErrorIs(t, err, types.ErrSimulationFailed)
	assert.Contains(t, err.Error(), "Error(Contract, #3)")
	assert.Equal(t, types.StateSimulationFailed, last)
	assert.Equal(t, 0, ledger.submitCalls)
}

func TestInvoke_AccountFetchFailed(t *testing.T) {
	signer := testSigner(t)
	ledger := &fakeLedger{accountErr: client.NewNotFoundError("account not found")}
	var last types.State
	svc := NewServiceWithConfig(ledger, signer, fastConfig(func(from, to types.State) { last = to }))

	_, err := svc.Invoke(context.Background(), &InvokeRequest{
		ContractID: testContractID(t),
		Method:     "mint",
		Source:     signer.Address(),
	})
	assert.ErrorIs(t, err, types.ErrAccountFetchFailed)
	assert.Equal(t, types.StateAccountFetchFailed, last)
	assert.Equal(t, 0, ledger.prepareCalls)
}

func TestInvoke_InvalidInputMakesNoNetworkCall(t *testing.T) {
	signer := testSigner(t)
	contractID := testContractID(t)

	cases := []struct {
		name string
		req  *InvokeRequest
	}{
		{"nil request", nil},
		{"bad contract id", &InvokeRequest{ContractID: "not-a-contract", Method: "mint", Source: signer.Address()}},
		{"contract id is an account", &InvokeRequest{ContractID: signer.Address(), Method: "mint", Source: signer.Address()}},
		{"empty method", &InvokeRequest{ContractID: contractID, Source: signer.Address()}},
		{"bad method", &InvokeRequest{ContractID: contractID, Method: "mint reward", Source: signer.Address()}},
		{"bad source", &InvokeRequest{ContractID: contractID, Method: "mint", Source: "GBAD"}},
		{"negative fee", &InvokeRequest{ContractID: contractID, Method: "mint", Source: signer.Address(), Fee: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ledger := &fakeLedger{}
			svc := NewServiceWithConfig(ledger, signer, fastConfig(nil))
			_, err := svc.Invoke(context.Background(), tc.req)
			assert.ErrorIs(t, err, types.ErrInvalidInput)
			assert.Equal(t, 0, ledger.accountCalls)
			assert.Equal(t, 0, ledger.prepareCalls)
			assert.Equal(t, 0, ledger.submitCalls)
		})
	}
}

func TestInvoke_RequiresSigner(t *testing.T) {
	ledger := &fakeLedger{}
	svc := NewService(ledger)
	_, err := svc.Invoke(context.Background(), &InvokeRequest{
		ContractID: testContractID(t),
		Method:     "mint",
		Source:     testSigner(t).Address(),
	})
	assert.ErrorIs(t, err, types.ErrInvalidInput)
	assert.Equal(t, 0, ledger.accountCalls)
}

func TestInvoke_ReturnValueFromMeta(t *testing.T) {
	signer := testSigner(t)
	ret := U64(12)
	meta := xdr.TransactionMeta{
		V: 3,
		V3: &xdr.TransactionMetaV3{
			SorobanMeta: &xdr.SorobanTransactionMeta{ReturnValue: ret},
		},
	}
	metaXDR, err := xdr.MarshalBase64(meta)
	require.NoError(t, err)

	ledger := &fakeLedger{submitHash: "h5", statuses: []types.TxStatus{types.TxStatusSuccess}, metaXDR: metaXDR}
	svc := NewServiceWithConfig(ledger, signer, fastConfig(nil))
	result, err := svc.Invoke(context.Background(), &InvokeRequest{
		ContractID: testContractID(t),
		Method:     "mint",
		Source:     signer.Address(),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(12), result.ReturnValue)
}

func TestQuery_ReadPathNeverSubmits(t *testing.T) {
	val := String("Quiz Champion")
	ledger := &fakeLedger{simValue: &val}
	svc := NewService(ledger)

	result, err := svc.Query(context.Background(), &QueryRequest{
		ContractID: testContractID(t),
		Method:     "name",
		Source:     testSigner(t).Address(),
	})
	require.NoError(t, err)
	assert.Equal(t, "Quiz Champion", result.Value)
	assert.Equal(t, 1, ledger.simulateCalls)
	assert.Equal(t, 0, ledger.prepareCalls)
	assert.Equal(t, 0, ledger.submitCalls)
	assert.Equal(t, 0, ledger.statusCalls)
}

func TestQuery_NoResult(t *testing.T) {
	ledger := &fakeLedger{}
	svc := NewService(ledger)
	_, err := svc.Query(context.Background(), &QueryRequest{
		ContractID: testContractID(t),
		Method:     "name",
		Source:     testSigner(t).Address(),
	})
	assert.ErrorIs(t, err, types.ErrNoResult)
}

func TestQuery_SimulationError(t *testing.T) {
	ledger := &fakeLedger{simError: "HostError: Error(Contract, #1)"}
	svc := NewService(ledger)
	_, err := svc.Query(context.Background(), &QueryRequest{
		ContractID: testContractID(t),
		Method:     "owner_of",
		Args:       []xdr.ScVal{U64(1)},
		Source:     testSigner(t).Address(),
	})
	assert.ErrorIs(t, err, types.ErrSimulationFailed)
}

func TestQueryFromAccount_SharesAccount(t *testing.T) {
	val := U32(7)
	ledger := &fakeLedger{simValue: &val}
	svc := NewService(ledger)
	account := types.Account{Address: testSigner(t).Address(), Sequence: 10}

	for _, method := range []string{"total_supply", "decimals"} {
		req := &QueryRequest{
			ContractID: testContractID(t),
			Method:     method,
		}
		result, err := svc.QueryFromAccount(context.Background(), account, req)
		require.NoError(t, err)
		assert.Equal(t, uint32(7), result.Value)
		assert.Empty(t, req.Source)
	}
	assert.Equal(t, 0, ledger.accountCalls)
	assert.Equal(t, 2, ledger.simulateCalls)
}

func TestQuery_NetworkErrorIsNormalized(t *testing.T) {
	ledger := &fakeLedger{accountErr: client.NewNetworkError(errors.New("dial tcp: connection refused"))}
	svc := NewService(ledger)
	_, err := svc.Query(context.Background(), &QueryRequest{
		ContractID: testContractID(t),
		Method:     "name",
		Source:     testSigner(t).Address(),
	})
	assert.ErrorIs(t, err, types.ErrAccountFetchFailed)
}

func TestReturnValueFromMeta_Invalid(t *testing.T) {
	_, ok := ReturnValueFromMeta("")
	assert.False(t, ok)
	_, ok = ReturnValueFromMeta("not-base64")
	assert.False(t, ok)
}
