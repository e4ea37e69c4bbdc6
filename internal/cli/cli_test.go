package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizchain/client-sdk-go/config"
	"github.com/quizchain/client-sdk-go/journal"
	"github.com/quizchain/client-sdk-go/types"
)

type rpcHandler func(params json.RawMessage) (interface{}, *rpcError)

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcServer 最小 JSON-RPC 假节点，记录每个方法的调用次数
type rpcServer struct {
	*httptest.Server
	mu    sync.Mutex
	calls map[string]int
}

func newRPCServer(t *testing.T, handlers map[string]rpcHandler) *rpcServer {
	t.Helper()
	s := &rpcServer{calls: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64          `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.calls[req.Method]++
		s.mu.Unlock()

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if handler, ok := handlers[req.Method]; ok {
			result, rpcErr := handler(req.Params)
			if rpcErr != nil {
				resp["error"] = rpcErr
			} else {
				resp["result"] = result
			}
		} else {
			resp["error"] = &rpcError{Code: -32601, Message: "method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *rpcServer) count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *rpcServer) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func testEnv(t *testing.T, rpcURL string) config.EnvMap {
	t.Helper()
	return config.EnvMap{
		"STELLAR_RPC_URL":   rpcURL,
		"JOURNAL_PATH":      filepath.Join(t.TempDir(), "journal.db"),
		"LOG_LEVEL":         "error",
		"POLL_INTERVAL":     "1ms",
		"POLL_MAX_ATTEMPTS": "3",
	}
}

func runCLI(t *testing.T, env config.EnvSource, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand(env, &stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func successMetaXDR(t *testing.T) string {
	t.Helper()
	v := xdr.Uint32(7)
	meta := xdr.TransactionMeta{
		V: 3,
		V3: &xdr.TransactionMetaV3{
			SorobanMeta: &xdr.SorobanTransactionMeta{ReturnValue: xdr.ScVal{Type: xdr.ScValTypeScvU32, U32: &v}},
		},
	}
	s, err := xdr.MarshalBase64(meta)
	require.NoError(t, err)
	return s
}

func TestRootCommand_ListsCommands(t *testing.T) {
	out, err := runCLI(t, config.EnvMap{}, "--help")
	require.NoError(t, err)
	for _, name := range []string{"simulate", "invoke", "status", "pending", "mint", "metadata", "owner", "network"} {
		assert.Contains(t, out, name)
	}
}

func TestRootCommand_InvalidConfig(t *testing.T) {
	_, err := runCLI(t, config.EnvMap{"STELLAR_NETWORK": "mars"}, "network")
	assert.ErrorContains(t, err, "STELLAR_NETWORK")
}

func TestStatusCommand(t *testing.T) {
	hash := strings.Repeat("ab", 32)
	server := newRPCServer(t, map[string]rpcHandler{
		"getTransaction": func(params json.RawMessage) (interface{}, *rpcError) {
			return map[string]interface{}{
				"status":        "SUCCESS",
				"latestLedger":  120,
				"ledger":        118,
				"resultMetaXdr": successMetaXDR(t),
			}, nil
		},
	})

	out, err := runCLI(t, testEnv(t, server.URL), "status", hash, "--json")
	require.NoError(t, err)

	var got statusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, hash, got.Hash)
	assert.Equal(t, "SUCCESS", got.Status)
	assert.Equal(t, uint32(118), got.Ledger)
	assert.EqualValues(t, 7, got.ReturnValue)
	assert.Equal(t, 1, server.count("getTransaction"))
}

func TestStatusCommand_NotFoundIsNotAnError(t *testing.T) {
	server := newRPCServer(t, map[string]rpcHandler{
		"getTransaction": func(json.RawMessage) (interface{}, *rpcError) {
			return map[string]interface{}{"status": "NOT_FOUND", "latestLedger": 5}, nil
		},
	})
	out, err := runCLI(t, testEnv(t, server.URL), "status", strings.Repeat("0", 64))
	require.NoError(t, err)
	assert.Contains(t, out, "NOT_FOUND")
}

func TestStatusCommand_BadHash(t *testing.T) {
	server := newRPCServer(t, nil)
	_, err := runCLI(t, testEnv(t, server.URL), "status", "xyz")
	assert.Error(t, err)
	assert.Equal(t, 0, server.count("getTransaction"))
}

func TestPendingCommand_ReconcilesJournal(t *testing.T) {
	hash := strings.Repeat("cd", 32)
	server := newRPCServer(t, map[string]rpcHandler{
		"getTransaction": func(json.RawMessage) (interface{}, *rpcError) {
			return map[string]interface{}{"status": "SUCCESS", "latestLedger": 12, "ledger": 9}, nil
		},
	})
	env := testEnv(t, server.URL)

	j, err := journal.Open(env["JOURNAL_PATH"])
	require.NoError(t, err)
	inv := types.NewContractInvocation(config.DefaultNFTContractID, "mint")
	require.NoError(t, j.Record(context.Background(), hash, inv, keypair.MustRandom().Address()))
	require.NoError(t, j.UpdateStatus(context.Background(), hash, journal.StatusTimeout, 0))
	require.NoError(t, j.Close())

	out, err := runCLI(t, env, "pending", "--json")
	require.NoError(t, err)

	var got []pendingOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, hash, got[0].Hash)
	assert.Equal(t, "SUCCESS", got[0].Status)
	assert.Equal(t, uint32(9), got[0].Ledger)

	// 终态记录不再重查
	out, err = runCLI(t, env, "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "no pending submissions")
	assert.Equal(t, 1, server.count("getTransaction"))
}

func TestPendingCommand_JournalDisabled(t *testing.T) {
	env := testEnv(t, "http://127.0.0.1:1")
	env["JOURNAL_PATH"] = journalDisabled
	_, err := runCLI(t, env, "pending")
	assert.ErrorContains(t, err, "journal is disabled")
}

func TestNetworkCommand(t *testing.T) {
	server := newRPCServer(t, map[string]rpcHandler{
		"getNetwork": func(json.RawMessage) (interface{}, *rpcError) {
			return map[string]interface{}{"passphrase": network.TestNetworkPassphrase, "protocolVersion": 22}, nil
		},
		"getLatestLedger": func(json.RawMessage) (interface{}, *rpcError) {
			return map[string]interface{}{"id": "abc", "protocolVersion": 22, "sequence": 1000}, nil
		},
		"getHealth": func(json.RawMessage) (interface{}, *rpcError) {
			return map[string]interface{}{"status": "healthy", "latestLedger": 1000, "oldestLedger": 880, "ledgerRetentionWindow": 120}, nil
		},
		"getVersionInfo": func(json.RawMessage) (interface{}, *rpcError) {
			return map[string]interface{}{"version": "v20.1.0", "protocolVersion": 22}, nil
		},
	})

	out, err := runCLI(t, testEnv(t, server.URL), "network", "--json")
	require.NoError(t, err)

	var got networkOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, uint32(1000), got.Latest.Sequence)
	assert.Equal(t, "healthy", got.Health.Status)
	assert.False(t, got.VersionCompatible)
	assert.NotEmpty(t, got.VersionError)

	out, err = runCLI(t, testEnv(t, server.URL), "network", "--json", "--require-version", ">= 20.0.0")
	require.NoError(t, err)
	got = networkOutput{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.VersionCompatible)
}

func TestMintCommand_BelowThresholdSkipsNetwork(t *testing.T) {
	server := newRPCServer(t, nil)
	out, err := runCLI(t, testEnv(t, server.URL), "mint", "--score", "40", "--json")
	require.NoError(t, err)

	var got mintOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.False(t, got.Minted)
	assert.Equal(t, "score below threshold", got.Reason)
	assert.Equal(t, 0, server.total())
}

func TestInvokeCommand_RequiresSigner(t *testing.T) {
	server := newRPCServer(t, nil)
	_, err := runCLI(t, testEnv(t, server.URL), "invoke", "mint")
	assert.ErrorContains(t, err, "no signer configured")
	assert.Equal(t, 0, server.total())
}

func TestInvokeCommand_SourceMustMatchKey(t *testing.T) {
	server := newRPCServer(t, nil)
	env := testEnv(t, server.URL)
	env["STELLAR_SECRET_KEY"] = keypair.MustRandom().Seed()
	_, err := runCLI(t, env, "invoke", "mint", "--source", keypair.MustRandom().Address())
	assert.ErrorContains(t, err, "does not match")
}

func TestSimulateCommand_RequiresSource(t *testing.T) {
	server := newRPCServer(t, nil)
	_, err := runCLI(t, testEnv(t, server.URL), "simulate", "name")
	assert.ErrorContains(t, err, "--source is required")
}

func TestSimulateCommand_InvalidArg(t *testing.T) {
	server := newRPCServer(t, nil)
	_, err := runCLI(t, testEnv(t, server.URL), "simulate", "owner_of", "i128:nope", "--source", keypair.MustRandom().Address())
	assert.ErrorContains(t, err, "invalid argument")
}

func TestEventsCommand(t *testing.T) {
	topic, err := xdr.MarshalBase64(xdr.ScVal{Type: xdr.ScValTypeScvSymbol, Sym: func() *xdr.ScSymbol { s := xdr.ScSymbol("mint"); return &s }()})
	require.NoError(t, err)

	var gotStart float64
	server := newRPCServer(t, map[string]rpcHandler{
		"getLatestLedger": func(json.RawMessage) (interface{}, *rpcError) {
			return map[string]interface{}{"id": "x", "protocolVersion": 22, "sequence": 500}, nil
		},
		"getEvents": func(params json.RawMessage) (interface{}, *rpcError) {
			var req map[string]interface{}
			_ = json.Unmarshal(params, &req)
			gotStart, _ = req["startLedger"].(float64)
			return map[string]interface{}{
				"latestLedger": 500,
				"cursor":       "0000-1",
				"events": []map[string]interface{}{{
					"type": "contract", "ledger": 450, "id": "0000-1", "txHash": "abc",
					"contractId": config.DefaultNFTContractID, "topic": []string{topic},
					"inSuccessfulContractCall": true,
				}},
			}, nil
		},
	})

	out, err := runCLI(t, testEnv(t, server.URL), "events", "--json")
	require.NoError(t, err)

	var got []eventOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, []interface{}{"mint"}, got[0].Topics)
	assert.Equal(t, uint32(450), got[0].Ledger)
	assert.Equal(t, float64(400), gotStart)
}
