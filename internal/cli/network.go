package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/quizchain/client-sdk-go/client"
)

type networkOutput struct {
	RPC               string               `json:"rpc"`
	Network           *client.NetworkInfo  `json:"network"`
	Latest            *client.LatestLedger `json:"latestLedger"`
	Health            *client.HealthInfo   `json:"health"`
	Version           *client.VersionInfo  `json:"version,omitempty"`
	VersionCompatible bool                 `json:"versionCompatible"`
	VersionError      string               `json:"versionError,omitempty"`
}

func newNetworkCommand(a *app) *cobra.Command {
	var constraint string
	cmd := &cobra.Command{
		Use:   "network",
		Short: "Show RPC network, health and version compatibility",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&constraint, "require-version", "", "RPC version constraint (default \">= "+client.MinimumRPCVersion+"\")")
	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rpc, err := a.client()
		if err != nil {
			return err
		}

		out := networkOutput{RPC: a.cfg.RPCURL}
		if out.Network, err = rpc.GetNetwork(ctx); err != nil {
			return err
		}
		if out.Network.Passphrase != a.cfg.NetworkPassphrase {
			a.logger.Warn("rpc network passphrase differs from configuration",
				"rpc", out.Network.Passphrase, "configured", a.cfg.NetworkPassphrase)
		}
		if out.Latest, err = rpc.GetLatestLedger(ctx); err != nil {
			return err
		}
		if out.Health, err = rpc.GetHealth(ctx); err != nil {
			return err
		}
		out.Version, err = client.CheckVersion(ctx, rpc, constraint)
		if err != nil {
			out.VersionError = err.Error()
		} else {
			out.VersionCompatible = true
		}

		return a.print(out, func(w io.Writer) {
			fmt.Fprintf(w, "rpc:        %s\n", out.RPC)
			fmt.Fprintf(w, "passphrase: %s\n", out.Network.Passphrase)
			fmt.Fprintf(w, "protocol:   %d\n", out.Network.ProtocolVersion)
			fmt.Fprintf(w, "ledger:     %d\n", out.Latest.Sequence)
			fmt.Fprintf(w, "health:     %s (retention %d ledgers)\n", out.Health.Status, out.Health.LedgerRetentionWindow)
			if out.Version != nil {
				fmt.Fprintf(w, "version:    %s\n", out.Version.Version)
			}
			if !out.VersionCompatible {
				fmt.Fprintf(w, "warning:    %s\n", out.VersionError)
			}
		})
	})
	return cmd
}
