package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/quizchain/client-sdk-go/services/contract"
	"github.com/quizchain/client-sdk-go/services/reward"
	"github.com/quizchain/client-sdk-go/types"
	"github.com/quizchain/client-sdk-go/utils"
)

type mintOutput struct {
	Minted      bool   `json:"minted"`
	Reason      string `json:"reason,omitempty"`
	TxHash      string `json:"txHash,omitempty"`
	Ledger      uint32 `json:"ledger,omitempty"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
	ContractURL string `json:"contractUrl,omitempty"`
}

func newMintCommand(a *app) *cobra.Command {
	var (
		source string
		score  int
	)
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a reward NFT to the signing account",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&source, "source", "", "recipient and source account G... (required with --bridge)")
	cmd.Flags().IntVar(&score, "score", -1, "quiz score 0-100; skips minting below REWARD_THRESHOLD")
	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		if score >= 0 && !reward.ShouldMintRewardWithThreshold(score, a.cfg.RewardThreshold) {
			return a.print(mintOutput{Reason: "score below threshold"}, func(w io.Writer) {
				fmt.Fprintf(w, "score %d is below the reward threshold %d, nothing minted\n", score, a.cfg.RewardThreshold)
			})
		}

		ctx := cmd.Context()
		signer, from, err := a.signer(ctx, source)
		if err != nil {
			return err
		}
		rewards, finish, err := a.rewards()
		if err != nil {
			return err
		}

		res, err := rewards.MintReward(ctx, from, signer)
		finish()
		var result *contract.InvokeResult
		if res != nil {
			result = &contract.InvokeResult{Success: res.Success, TxHash: res.TxHash, Ledger: res.Ledger}
		}
		recipient, _ := contract.Address(from)
		a.recordOutcome(ctx, types.NewContractInvocation(rewards.ContractID(), "mint", recipient), from, result, err)
		if err != nil {
			return err
		}

		out := mintOutput{
			Minted:      res.Success,
			TxHash:      res.TxHash,
			Ledger:      res.Ledger,
			ExplorerURL: res.ExplorerURL,
			ContractURL: res.ContractURL,
		}
		return a.print(out, func(w io.Writer) {
			fmt.Fprintf(w, "minted in ledger %d\n", out.Ledger)
			fmt.Fprintf(w, "tx: %s\n", out.ExplorerURL)
			fmt.Fprintf(w, "contract: %s\n", out.ContractURL)
		})
	})
	return cmd
}

func newMetadataCommand(a *app) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Show the reward NFT contract metadata",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&source, "source", "", "account used for simulation G... (default: signing key address)")
	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		from, err := a.sourceAddress(source)
		if err != nil {
			return err
		}
		rewards, _, err := a.rewards()
		if err != nil {
			return err
		}

		md := rewards.GetMetadata(cmd.Context(), from)
		return a.print(md, func(w io.Writer) {
			fmt.Fprintf(w, "name:     %s\n", md.Name)
			fmt.Fprintf(w, "symbol:   %s\n", md.Symbol)
			fmt.Fprintf(w, "metadata: %s\n", md.MetadataURI)
			fmt.Fprintf(w, "image:    %s\n", md.ImageURI)
			if md.Fallback {
				fmt.Fprintln(w, "(defaults: contract views were unavailable)")
			}
		})
	})
	return cmd
}

type ownerOutput struct {
	TokenID int64  `json:"tokenId"`
	Owner   string `json:"owner,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newOwnerCommand(a *app) *cobra.Command {
	var (
		source      string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "owner TOKEN_ID...",
		Short: "Look up the owner of one or more reward tokens",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.Flags().StringVar(&source, "source", "", "account used for simulation G... (default: signing key address)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 5, "parallel simulations")
	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, raw := range args {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid token id %q: %w", raw, err)
			}
			ids = append(ids, id)
		}
		from, err := a.sourceAddress(source)
		if err != nil {
			return err
		}
		rewards, _, err := a.rewards()
		if err != nil {
			return err
		}

		cfg := utils.DefaultBatchConfig()
		cfg.Concurrency = concurrency
		owners, failures, err := rewards.GetTokenOwners(cmd.Context(), from, ids, cfg)
		if err != nil {
			return err
		}

		out := make([]ownerOutput, 0, len(ids))
		for _, id := range ids {
			if owner, ok := owners[id]; ok {
				out = append(out, ownerOutput{TokenID: id, Owner: owner})
			} else if ferr, ok := failures[id]; ok {
				out = append(out, ownerOutput{TokenID: id, Error: ferr.Error()})
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })

		return a.print(out, func(w io.Writer) {
			for _, o := range out {
				if o.Error != "" {
					fmt.Fprintf(w, "#%d  error: %s\n", o.TokenID, o.Error)
					continue
				}
				fmt.Fprintf(w, "#%d  %s\n", o.TokenID, o.Owner)
			}
		})
	})
	return cmd
}
