package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/quizchain/client-sdk-go/services/event"
)

type eventOutput struct {
	ID         string        `json:"id"`
	Ledger     uint32        `json:"ledger"`
	TxHash     string        `json:"txHash"`
	Topics     []interface{} `json:"topics"`
	Value      interface{}   `json:"value"`
	Successful bool          `json:"successful"`
}

func toEventOutput(ev *event.EventInfo) eventOutput {
	topics := make([]interface{}, len(ev.Topics))
	for i, t := range ev.Topics {
		topics[i] = printable(t)
	}
	return eventOutput{
		ID:         ev.ID,
		Ledger:     ev.Ledger,
		TxHash:     ev.TxHash,
		Topics:     topics,
		Value:      printable(ev.Value),
		Successful: ev.Successful,
	}
}

func newEventsCommand(a *app) *cobra.Command {
	var (
		startLedger uint32
		cursor      string
		limit       int
		follow      bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List contract events emitted by the reward contract",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().Uint32Var(&startLedger, "start-ledger", 0, "first ledger to scan (default: latest - 100)")
	cmd.Flags().StringVar(&cursor, "cursor", "", "resume from a paging cursor")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	cmd.Flags().BoolVar(&follow, "follow", false, "keep polling for new events until interrupted")
	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rpc, err := a.client()
		if err != nil {
			return err
		}
		if startLedger == 0 && cursor == "" {
			latest, err := rpc.GetLatestLedger(ctx)
			if err != nil {
				return err
			}
			if latest.Sequence > 100 {
				startLedger = latest.Sequence - 100
			} else {
				startLedger = 1
			}
		}

		svc := event.NewService(rpc)
		filters := &event.EventFilters{
			ContractIDs: []string{a.cfg.NFTContractID},
			StartLedger: startLedger,
			Cursor:      cursor,
			Limit:       limit,
		}

		if follow {
			ch, err := svc.SubscribeEvents(ctx, filters)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(a.out)
			for ev := range ch {
				out := toEventOutput(ev)
				if a.opts.jsonOutput {
					if err := enc.Encode(out); err != nil {
						return err
					}
					continue
				}
				printEvent(a.out, out)
			}
			return nil
		}

		page, err := svc.GetEvents(ctx, filters)
		if err != nil {
			return err
		}
		out := make([]eventOutput, 0, len(page.Events))
		for _, ev := range page.Events {
			out = append(out, toEventOutput(ev))
		}
		return a.print(out, func(w io.Writer) {
			for _, ev := range out {
				printEvent(w, ev)
			}
			if page.Cursor != "" {
				fmt.Fprintf(w, "next cursor: %s\n", page.Cursor)
			}
		})
	})
	return cmd
}

func printEvent(w io.Writer, ev eventOutput) {
	fmt.Fprintf(w, "ledger %d  %v => %v  tx=%s\n", ev.Ledger, ev.Topics, ev.Value, ev.TxHash)
}
