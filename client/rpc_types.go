package client

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// flexInt64 兼容字符串和数字两种编码（RPC 对 int64 使用字符串）
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" {
		*f = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	if raw == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %q: %w", raw, err)
	}
	*f = flexInt64(v)
	return nil
}

// getLedgerEntries

type getLedgerEntriesRequest struct {
	Keys []string `json:"keys"`
}

type ledgerEntryResult struct {
	Key                   string `json:"key"`
	XDR                   string `json:"xdr"`
	LastModifiedLedgerSeq uint32 `json:"lastModifiedLedgerSeq"`
}

type getLedgerEntriesResponse struct {
	Entries      []ledgerEntryResult `json:"entries"`
	LatestLedger uint32              `json:"latestLedger"`
}

// simulateTransaction

type simulateTransactionRequest struct {
	Transaction string `json:"transaction"`
}

type simulateHostFunctionResult struct {
	Auth []string `json:"auth"`
	XDR  string   `json:"xdr"`
}

type simulateCost struct {
	CPUInstructions flexInt64 `json:"cpuInsns"`
	MemoryBytes     flexInt64 `json:"memBytes"`
}

type simulateTransactionResponse struct {
	Error           string                       `json:"error,omitempty"`
	TransactionData string                       `json:"transactionData,omitempty"`
	MinResourceFee  flexInt64                    `json:"minResourceFee,omitempty"`
	Results         []simulateHostFunctionResult `json:"results,omitempty"`
	Cost            *simulateCost                `json:"cost,omitempty"`
	Events          []string                     `json:"events,omitempty"`
	LatestLedger    uint32                       `json:"latestLedger"`
}

// sendTransaction

type sendTransactionRequest struct {
	Transaction string `json:"transaction"`
}

type sendTransactionResponse struct {
	Status                string   `json:"status"`
	Hash                  string   `json:"hash"`
	ErrorResultXDR        string   `json:"errorResultXdr,omitempty"`
	DiagnosticEventsXDR   []string `json:"diagnosticEventsXdr,omitempty"`
	LatestLedger          uint32   `json:"latestLedger"`
	LatestLedgerCloseTime flexInt64 `json:"latestLedgerCloseTime"`
}

// getTransaction

type getTransactionRequest struct {
	Hash string `json:"hash"`
}

type getTransactionResponse struct {
	Status        string `json:"status"`
	TxHash        string `json:"txHash,omitempty"`
	LatestLedger  uint32 `json:"latestLedger"`
	Ledger        uint32 `json:"ledger,omitempty"`
	EnvelopeXDR   string `json:"envelopeXdr,omitempty"`
	ResultXDR     string `json:"resultXdr,omitempty"`
	ResultMetaXDR string `json:"resultMetaXdr,omitempty"`
}

// NetworkInfo getNetwork 结果
type NetworkInfo struct {
	FriendbotURL    string `json:"friendbotUrl,omitempty"`
	Passphrase      string `json:"passphrase"`
	ProtocolVersion int    `json:"protocolVersion"`
}

// LatestLedger getLatestLedger 结果
type LatestLedger struct {
	ID              string `json:"id"`
	ProtocolVersion int    `json:"protocolVersion"`
	Sequence        uint32 `json:"sequence"`
}

// HealthInfo getHealth 结果
type HealthInfo struct {
	Status                string `json:"status"`
	LatestLedger          uint32 `json:"latestLedger"`
	OldestLedger          uint32 `json:"oldestLedger"`
	LedgerRetentionWindow uint32 `json:"ledgerRetentionWindow"`
}

// VersionInfo getVersionInfo 结果
type VersionInfo struct {
	Version            string `json:"version"`
	CommitHash         string `json:"commitHash"`
	BuildTimestamp     string `json:"buildTimestamp"`
	CaptiveCoreVersion string `json:"captiveCoreVersion"`
	ProtocolVersion    int    `json:"protocolVersion"`
}

var _ json.Unmarshaler = (*flexInt64)(nil)
