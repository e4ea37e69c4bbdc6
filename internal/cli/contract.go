package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/stellar/go/xdr"

	"github.com/quizchain/client-sdk-go/services/contract"
	"github.com/quizchain/client-sdk-go/types"
)

type simulateOutput struct {
	Contract     string      `json:"contract"`
	Method       string      `json:"method"`
	Value        interface{} `json:"value"`
	MinFee       int64       `json:"minResourceFee"`
	CPU          uint64      `json:"cpuInstructions"`
	Memory       uint64      `json:"memoryBytes"`
	LatestLedger uint32      `json:"latestLedger"`
}

func newSimulateCommand(a *app) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "simulate METHOD [ARG...]",
		Short: "Simulate a read-only contract call (never submits)",
		Long: "Simulate a contract method against the configured contract.\n" +
			"Arguments take a type prefix: u32: i32: u64: i64: u128: i128: bool: sym: str: addr: bytes:",
		Args: cobra.MinimumNArgs(1),
	}
	cmd.Flags().StringVar(&source, "source", "", "source account G... (default: signing key address)")
	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		callArgs, err := parseArgs(args[1:])
		if err != nil {
			return err
		}
		from, err := a.sourceAddress(source)
		if err != nil {
			return err
		}
		svc, _, err := a.contracts()
		if err != nil {
			return err
		}

		res, err := svc.Query(cmd.Context(), &contract.QueryRequest{
			ContractID: a.cfg.NFTContractID,
			Method:     args[0],
			Args:       callArgs,
			Source:     from,
			Fee:        a.cfg.BaseFee,
		})
		if err != nil {
			return err
		}

		out := simulateOutput{
			Contract: a.cfg.NFTContractID,
			Method:   args[0],
			Value:    printable(res.Value),
		}
		if sim := res.Simulation; sim != nil {
			out.MinFee = sim.Resources.MinResourceFee
			out.CPU = sim.Resources.CPUInstructions
			out.Memory = sim.Resources.MemoryBytes
			out.LatestLedger = sim.LatestLedger
		}
		return a.print(out, func(w io.Writer) {
			fmt.Fprintf(w, "%s.%s => %v\n", shortID(out.Contract), out.Method, out.Value)
			fmt.Fprintf(w, "resource fee: %d stroops  cpu: %d  mem: %d  ledger: %d\n",
				out.MinFee, out.CPU, out.Memory, out.LatestLedger)
		})
	})
	return cmd
}

type invokeOutput struct {
	Success     bool          `json:"success"`
	TxHash      string        `json:"txHash"`
	Status      string        `json:"status"`
	Ledger      uint32        `json:"ledger"`
	ReturnValue interface{}   `json:"returnValue,omitempty"`
	States      []types.State `json:"states"`
}

func newInvokeCommand(a *app) *cobra.Command {
	var (
		source  string
		timeout int64
	)
	cmd := &cobra.Command{
		Use:   "invoke METHOD [ARG...]",
		Short: "Build, sign, submit and wait for a contract call",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.Flags().StringVar(&source, "source", "", "source account G... (required with --bridge)")
	cmd.Flags().Int64Var(&timeout, "timeout", contract.WriteTimeoutSeconds, "transaction validity window in seconds")
	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		callArgs, err := parseArgs(args[1:])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		signer, from, err := a.signer(ctx, source)
		if err != nil {
			return err
		}
		svc, finish, err := a.contracts()
		if err != nil {
			return err
		}

		res, err := svc.Invoke(ctx, &contract.InvokeRequest{
			ContractID:     a.cfg.NFTContractID,
			Method:         args[0],
			Args:           callArgs,
			Source:         from,
			Fee:            a.cfg.BaseFee,
			TimeoutSeconds: timeout,
		}, signer)
		finish()
		a.recordOutcome(ctx, types.NewContractInvocation(a.cfg.NFTContractID, args[0], callArgs...), from, res, err)
		if err != nil {
			return err
		}

		out := invokeOutput{
			Success:     res.Success,
			TxHash:      res.TxHash,
			Status:      string(res.Status),
			Ledger:      res.Ledger,
			ReturnValue: printable(res.ReturnValue),
			States:      res.States,
		}
		return a.print(out, func(w io.Writer) {
			fmt.Fprintf(w, "%s in ledger %d\n", out.Status, out.Ledger)
			fmt.Fprintf(w, "hash: %s\n", out.TxHash)
			if out.ReturnValue != nil {
				fmt.Fprintf(w, "returned: %v\n", out.ReturnValue)
			}
		})
	})
	return cmd
}

// printable 把合约返回值转换成可直接打印 / JSON 编码的形式
func printable(v interface{}) interface{} {
	switch val := v.(type) {
	case []contract.MapEntry:
		out := make([]map[string]interface{}, 0, len(val))
		for _, e := range val {
			out = append(out, map[string]interface{}{"key": printable(e.Key), "value": printable(e.Value)})
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = printable(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = printable(item)
		}
		return out
	case []byte:
		return fmt.Sprintf("%x", val)
	case fmt.Stringer:
		return val.String()
	}
	return v
}

// scValString 原始 ScVal 的可读形式
func scValString(v *xdr.ScVal) interface{} {
	if v == nil {
		return nil
	}
	native, err := contract.ScValToNative(*v)
	if err != nil {
		return v.Type.String()
	}
	return printable(native)
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:6] + "…" + id[len(id)-4:]
}
