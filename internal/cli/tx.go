package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/quizchain/client-sdk-go/journal"
	"github.com/quizchain/client-sdk-go/utils"
)

type statusOutput struct {
	Hash        string      `json:"hash"`
	Status      string      `json:"status"`
	Ledger      uint32      `json:"ledger,omitempty"`
	FeeCharged  int64       `json:"feeCharged,omitempty"`
	ResultCode  string      `json:"resultCode,omitempty"`
	ReturnValue interface{} `json:"returnValue,omitempty"`
	Events      int         `json:"events,omitempty"`
	Failed      []string    `json:"failedOperations,omitempty"`
}

func newStatusCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status HASH",
		Short: "Query a submitted transaction by hash (safe to repeat after a polling timeout)",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rpc, err := a.client()
		if err != nil {
			return err
		}
		parsed, err := utils.FetchAndParseTx(ctx, rpc, args[0])
		if err != nil {
			return err
		}

		// 已记录的提交同步最新状态
		if parsed.Status.Terminal() {
			if j, err := a.journal(); err == nil && j != nil {
				if err := j.UpdateStatus(ctx, parsed.Hash, parsed.Status, parsed.Ledger); err != nil && !errors.Is(err, journal.ErrNotFound) {
					a.logger.Warn("journal update failed", "hash", parsed.Hash, "error", err)
				}
			}
		}

		out := statusOutput{
			Hash:        parsed.Hash,
			Status:      string(parsed.Status),
			Ledger:      parsed.Ledger,
			FeeCharged:  parsed.FeeCharged,
			ResultCode:  parsed.ResultCode,
			ReturnValue: scValString(parsed.ReturnValue),
			Events:      parsed.EventCount,
		}
		for _, op := range utils.FindFailedOperations(parsed.Operations) {
			code := op.Code
			if op.InvokeCode != "" {
				code = op.InvokeCode
			}
			out.Failed = append(out.Failed, fmt.Sprintf("#%d %s", op.Index, code))
		}
		return a.print(out, func(w io.Writer) {
			fmt.Fprintf(w, "%s %s\n", out.Hash, out.Status)
			if out.Ledger > 0 {
				fmt.Fprintf(w, "ledger: %d  fee charged: %d stroops  result: %s\n", out.Ledger, out.FeeCharged, out.ResultCode)
			}
			if out.ReturnValue != nil {
				fmt.Fprintf(w, "returned: %v\n", out.ReturnValue)
			}
			for _, f := range out.Failed {
				fmt.Fprintf(w, "failed operation %s\n", f)
			}
		})
	})
	return cmd
}

type pendingOutput struct {
	Hash      string `json:"hash"`
	Method    string `json:"method"`
	Status    string `json:"status"`
	Ledger    uint32 `json:"ledger,omitempty"`
	CreatedAt string `json:"createdAt"`
	Error     string `json:"error,omitempty"`
}

func newPendingCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Re-query journaled submissions whose outcome is not yet known",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		j, err := a.journal()
		if err != nil {
			return err
		}
		if j == nil {
			return errors.New("journal is disabled (JOURNAL_PATH=-)")
		}
		rpc, err := a.client()
		if err != nil {
			return err
		}

		updated, failures, err := j.Reconcile(ctx, rpc)
		if err != nil {
			return err
		}

		out := make([]pendingOutput, 0, len(updated)+len(failures))
		for _, e := range updated {
			out = append(out, pendingOutput{
				Hash:      e.Hash,
				Method:    e.Method,
				Status:    string(e.Status),
				Ledger:    e.Ledger,
				CreatedAt: e.CreatedAt.Format(time.RFC3339),
			})
		}
		for hash, ferr := range failures {
			out = append(out, pendingOutput{Hash: hash, Error: ferr.Error()})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })

		return a.print(out, func(w io.Writer) {
			if len(out) == 0 {
				fmt.Fprintln(w, "no pending submissions")
				return
			}
			for _, e := range out {
				if e.Error != "" {
					fmt.Fprintf(w, "%s  query failed: %s\n", e.Hash, e.Error)
					continue
				}
				fmt.Fprintf(w, "%s  %-9s %-10s ledger=%d  since %s\n", e.Hash, e.Status, e.Method, e.Ledger, e.CreatedAt)
			}
		})
	})
	return cmd
}
