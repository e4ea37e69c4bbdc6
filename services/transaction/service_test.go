package transaction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stellar/go/network"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizchain/client-sdk-go/client"
	"github.com/quizchain/client-sdk-go/types"
	"github.com/quizchain/client-sdk-go/wallet"
)

// fakeRPC 按脚本返回状态的 RPC
type fakeRPC struct {
	mu          sync.Mutex
	submitHash  string
	submitErr   error
	statuses    []types.TxStatus
	statusErr   error
	statusErrAt map[int]error
	submitCalls int
	statusCalls int
}

func (f *fakeRPC) Submit(ctx context.Context, env types.Envelope) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	return f.submitHash, f.submitErr
}

func (f *fakeRPC) GetStatus(ctx context.Context, hash string) (*types.SubmissionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if err, ok := f.statusErrAt[f.statusCalls]; ok {
		return nil, err
	}
	idx := f.statusCalls - 1
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	return &types.SubmissionResult{TxHash: hash, Status: f.statuses[idx], Ledger: 12}, nil
}

func fastPoll() PollConfig {
	return PollConfig{Interval: time.Millisecond, MaxAttempts: 30}
}

// preparedAndSigned 构建 prepared 信封并用给定签名者签名
func preparedAndSigned(t *testing.T, signer *wallet.KeypairSigner, signPassphrase string) (types.Envelope, types.Envelope) {
	t.Helper()
	source := signer.Address()
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &txnbuild.SimpleAccount{AccountID: source, Sequence: 99},
		IncrementSequenceNum: true,
		BaseFee:              txnbuild.MinBaseFee,
		Operations:           []txnbuild.Operation{&txnbuild.BumpSequence{BumpTo: 0}},
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(180)},
	})
	require.NoError(t, err)
	b64, err := tx.Base64()
	require.NoError(t, err)

	inv := types.NewContractInvocation("CDM5IGFRIHE5ZW6YDXKG3JTJUAOXI2DHT3AQNHAVRFUCW3STVWEQVE4N", "mint")
	built := types.NewBuiltEnvelope(b64, source, 100, network.TestNetworkPassphrase, inv, txnbuild.MinBaseFee)
	prepared, err := built.Prepared(b64, txnbuild.MinBaseFee, types.ResourceEstimate{})
	require.NoError(t, err)

	res, err := signer.RequestSignature(context.Background(), prepared.XDR(), signPassphrase, source)
	require.NoError(t, err)
	signed, err := prepared.Signed(res.SignedTxXDR)
	require.NoError(t, err)
	return prepared, signed
}

func newSigner(t *testing.T) *wallet.KeypairSigner {
	t.Helper()
	s, err := wallet.NewRandomKeypairSigner()
	require.NoError(t, err)
	return s
}

func TestSubmitAndWait_SuccessAfterPending(t *testing.T) {
	rpc := &fakeRPC{
		submitHash: "h1",
		statuses:   []types.TxStatus{types.TxStatusPending, types.TxStatusPending, types.TxStatusSuccess},
	}
	var polled []types.TxStatus
	poll := fastPoll()
	poll.OnPoll = func(attempt int, status types.TxStatus) { polled = append(polled, status) }
	svc := NewServiceWithConfig(rpc, poll, nil)

	prepared, signed := preparedAndSigned(t, newSigner(t), network.TestNetworkPassphrase)
	result, err := svc.SubmitAndWait(context.Background(), prepared, signed)
	require.NoError(t, err)
	assert.Equal(t, "h1", result.TxHash)
	assert.Equal(t, types.TxStatusSuccess, result.Status)
	assert.Equal(t, 3, rpc.statusCalls)
	assert.Equal(t, []types.TxStatus{types.TxStatusPending, types.TxStatusPending, types.TxStatusSuccess}, polled)
}

func TestWaitForTransaction_NotFoundKeepsPolling(t *testing.T) {
	rpc := &fakeRPC{statuses: []types.TxStatus{types.TxStatusNotFound, types.TxStatusNotFound, types.TxStatusSuccess}}
	svc := NewServiceWithConfig(rpc, fastPoll(), nil)

	result, err := svc.WaitForTransaction(context.Background(), "h2")
	require.NoError(t, err)
	assert.Equal(t, types.TxStatusSuccess, result.Status)
	assert.Equal(t, 3, rpc.statusCalls)
}

func TestWaitForTransaction_TimeoutAfterMaxAttempts(t *testing.T) {
	rpc := &fakeRPC{statuses: []types.TxStatus{types.TxStatusPending}}
	svc := NewServiceWithConfig(rpc, fastPoll(), nil)

	_, err := svc.WaitForTransaction(context.Background(), "h3")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrPollingTimeout)
	txErr, ok := types.IsTxError(err)
	require.True(t, ok)
	assert.Equal(t, "h3", txErr.TxHash)
	assert.True(t, txErr.Kind.Ambiguous())
	assert.Equal(t, 30, rpc.statusCalls)
}

func TestWaitForTransaction_NoSleepAfterLastAttempt(t *testing.T) {
	rpc := &fakeRPC{statuses: []types.TxStatus{types.TxStatusPending}}
	svc := NewServiceWithConfig(rpc, PollConfig{Interval: 200 * time.Millisecond, MaxAttempts: 1}, nil)

	start := time.Now()
	_, err := svc.WaitForTransaction(context.Background(), "h4")
	assert.ErrorIs(t, err, types.ErrPollingTimeout)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestWaitForTransaction_Failed(t *testing.T) {
	rpc := &fakeRPC{statuses: []types.TxStatus{types.TxStatusPending, types.TxStatusFailed}}
	svc := NewServiceWithConfig(rpc, fastPoll(), nil)

	result, err := svc.WaitForTransaction(context.Background(), "h5")
	assert.ErrorIs(t, err, types.ErrTransactionFailed)
	require.NotNil(t, result)
	assert.Equal(t, types.TxStatusFailed, result.Status)
	txErr, _ := types.IsTxError(err)
	assert.Equal(t, "h5", txErr.TxHash)
}

func TestWaitForTransaction_LookupErrorKeepsPolling(t *testing.T) {
	rpc := &fakeRPC{
		statuses:    []types.TxStatus{types.TxStatusPending, types.TxStatusPending, types.TxStatusSuccess},
		statusErrAt: map[int]error{2: client.NewNetworkError(errors.New("connection reset"))},
	}
	svc := NewServiceWithConfig(rpc, fastPoll(), nil)

	result, err := svc.WaitForTransaction(context.Background(), "h6")
	require.NoError(t, err)
	assert.Equal(t, types.TxStatusSuccess, result.Status)
	assert.Equal(t, 3, rpc.statusCalls)
}

func TestWaitForTransaction_LookupErrorsNeverRetryable(t *testing.T) {
	rpc := &fakeRPC{statusErr: client.NewNetworkError(errors.New("connection reset"))}
	svc := NewServiceWithConfig(rpc, fastPoll(), nil)

	_, err := svc.WaitForTransaction(context.Background(), "h6")
	assert.ErrorIs(t, err, types.ErrPollingTimeout)
	txErr, ok := types.IsTxError(err)
	require.True(t, ok)
	assert.Equal(t, "h6", txErr.TxHash)
	assert.False(t, txErr.Retryable())
	assert.Contains(t, txErr.Detail, "connection reset")
	assert.Equal(t, 30, rpc.statusCalls)
}

func TestWaitForTransaction_Cancellable(t *testing.T) {
	rpc := &fakeRPC{statuses: []types.TxStatus{types.TxStatusPending}}
	svc := NewServiceWithConfig(rpc, PollConfig{Interval: time.Hour, MaxAttempts: 30}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		_, err := svc.WaitForTransaction(ctx, "h7")
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, types.ErrPollingTimeout)
		txErr, _ := types.IsTxError(err)
		assert.Equal(t, "h7", txErr.TxHash)
	case <-time.After(2 * time.Second):
		t.Fatal("polling did not stop after cancellation")
	}
}

func TestSubmit_Rejections(t *testing.T) {
	signer := newSigner(t)

	t.Run("stale sequence is a rejection", func(t *testing.T) {
		rpc := &fakeRPC{submitErr: &client.SubmitError{Status: client.SendStatusError, TxHash: "h8", HasResultCode: true, ResultCode: xdr.TransactionResultCodeTxBadSeq}}
		svc := NewServiceWithConfig(rpc, fastPoll(), nil)
		prepared, signed := preparedAndSigned(t, signer, network.TestNetworkPassphrase)

		_, err := svc.Submit(context.Background(), prepared, signed)
		assert.ErrorIs(t, err, types.ErrRejected)
		assert.Equal(t, 0, rpc.statusCalls)
	})

	t.Run("wrong network passphrase", func(t *testing.T) {
		rpc := &fakeRPC{submitHash: "h9"}
		svc := NewServiceWithConfig(rpc, fastPoll(), nil)
		prepared, signed := preparedAndSigned(t, signer, network.PublicNetworkPassphrase)

		_, err := svc.Submit(context.Background(), prepared, signed)
		assert.ErrorIs(t, err, types.ErrInvalidInput)
		assert.Contains(t, err.Error(), "network mismatch")
		assert.Equal(t, 0, rpc.submitCalls)
	})

	t.Run("signed by another key", func(t *testing.T) {
		rpc := &fakeRPC{submitHash: "h10"}
		svc := NewServiceWithConfig(rpc, fastPoll(), nil)
		prepared, _ := preparedAndSigned(t, signer, network.TestNetworkPassphrase)

		other := newSigner(t)
		res, err := other.RequestSignature(context.Background(), prepared.XDR(), network.TestNetworkPassphrase, "")
		require.NoError(t, err)
		signed, err := prepared.Signed(res.SignedTxXDR)
		require.NoError(t, err)

		_, err = svc.Submit(context.Background(), prepared, signed)
		assert.ErrorIs(t, err, types.ErrInvalidInput)
		assert.Equal(t, 0, rpc.submitCalls)
	})
}

func TestSubmit_AmbiguousSendCarriesLocalHash(t *testing.T) {
	signer := newSigner(t)

	tests := []struct {
		name string
		err  error
	}{
		{"transport timeout", client.NewTimeoutError(context.DeadlineExceeded)},
		{"context deadline", context.DeadlineExceeded},
		{"context cancelled", context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpc := &fakeRPC{submitErr: tt.err}
			svc := NewServiceWithConfig(rpc, fastPoll(), nil)
			prepared, signed := preparedAndSigned(t, signer, network.TestNetworkPassphrase)

			generic, err := txnbuild.TransactionFromXDR(signed.XDR())
			require.NoError(t, err)
			tx, _ := generic.Transaction()
			want, err := tx.HashHex(network.TestNetworkPassphrase)
			require.NoError(t, err)

			_, err = svc.Submit(context.Background(), prepared, signed)
			assert.ErrorIs(t, err, types.ErrPollingTimeout)
			txErr, ok := types.IsTxError(err)
			require.True(t, ok)
			assert.Equal(t, want, txErr.TxHash)
			assert.True(t, txErr.Kind.Ambiguous())
			assert.False(t, txErr.Retryable())
			assert.Equal(t, 1, rpc.submitCalls)
		})
	}
}

func TestSubmit_ConnectionFailureIsRetryable(t *testing.T) {
	rpc := &fakeRPC{submitErr: client.NewNetworkError(errors.New("dial tcp: connection refused"))}
	svc := NewServiceWithConfig(rpc, fastPoll(), nil)
	prepared, signed := preparedAndSigned(t, newSigner(t), network.TestNetworkPassphrase)

	_, err := svc.Submit(context.Background(), prepared, signed)
	assert.ErrorIs(t, err, types.ErrNetworkError)
	txErr, ok := types.IsTxError(err)
	require.True(t, ok)
	assert.Empty(t, txErr.TxHash)
	assert.True(t, txErr.Retryable())
}

func TestSubmit_ReturnsSubmittedEnvelope(t *testing.T) {
	rpc := &fakeRPC{submitHash: "abc"}
	svc := NewServiceWithConfig(rpc, fastPoll(), nil)
	prepared, signed := preparedAndSigned(t, newSigner(t), network.TestNetworkPassphrase)

	submitted, err := svc.Submit(context.Background(), prepared, signed)
	require.NoError(t, err)
	assert.Equal(t, types.StageSubmitted, submitted.Stage())
	assert.Equal(t, "abc", submitted.Hash())
	assert.Equal(t, types.StageSigned, signed.Stage())
}

func TestValidateSigned_Stages(t *testing.T) {
	prepared, signed := preparedAndSigned(t, newSigner(t), network.TestNetworkPassphrase)
	assert.NoError(t, ValidateSigned(prepared, signed))
	assert.ErrorIs(t, ValidateSigned(signed, signed), types.ErrInvalidInput)
	assert.ErrorIs(t, ValidateSigned(prepared, prepared), types.ErrInvalidInput)
}

func TestGetTransaction(t *testing.T) {
	rpc := &fakeRPC{statuses: []types.TxStatus{types.TxStatusNotFound}}
	svc := NewService(rpc)
	result, err := svc.GetTransaction(context.Background(), "h11")
	require.NoError(t, err)
	assert.Equal(t, types.TxStatusNotFound, result.Status)
}
