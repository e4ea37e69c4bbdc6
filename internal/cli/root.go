// Package cli quizchain 命令行工具
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/quizchain/client-sdk-go/config"
	"github.com/quizchain/client-sdk-go/logging"
	"github.com/quizchain/client-sdk-go/telemetry"
)

// options 全局参数（非空时覆盖对应环境变量）
type options struct {
	network    string
	rpcURL     string
	contractID string
	secret     string
	bridgeURL  string
	journal    string
	logLevel   string
	jsonOutput bool
}

func (o *options) overrides() config.EnvMap {
	return config.EnvMap{
		"STELLAR_NETWORK":    o.network,
		"STELLAR_RPC_URL":    o.rpcURL,
		"NFT_CONTRACT_ID":    o.contractID,
		"STELLAR_SECRET_KEY": o.secret,
		"SIGNER_BRIDGE_URL":  o.bridgeURL,
		"JOURNAL_PATH":       o.journal,
		"LOG_LEVEL":          o.logLevel,
	}
}

// Execute 运行根命令
func Execute() error {
	return NewRootCommand(nil, os.Stdout, os.Stderr).ExecuteContext(context.Background())
}

// NewRootCommand 构建命令树
//
// env 为 nil 时读取 .env 与进程环境变量；测试传入 config.EnvMap。
func NewRootCommand(env config.EnvSource, stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	a := &app{opts: opts, out: stdout, errOut: stderr}

	root := &cobra.Command{
		Use:          "quizchain",
		Short:        "Soroban contract invocation client for QuizChain rewards",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			base := env
			if base == nil {
				if err := config.LoadDotEnv(".env"); err != nil {
					return err
				}
				base = config.FromEnviron()
			}
			cfg, err := config.Load(config.Overlay(base, opts.overrides()))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			a.logger = logging.Init(logging.Config{Level: cfg.LogLevel, Output: stderr})

			shutdown, err := telemetry.InitTracer(cmd.Context(), "quizchain-cli", cfg.OtelEndpoint)
			if err != nil {
				return fmt.Errorf("init tracer: %w", err)
			}
			a.shutdown = shutdown
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.network, "network", "", "network: testnet | public (env STELLAR_NETWORK)")
	flags.StringVar(&opts.rpcURL, "rpc", "", "Stellar RPC endpoint (env STELLAR_RPC_URL)")
	flags.StringVar(&opts.contractID, "contract", "", "NFT contract id C... (env NFT_CONTRACT_ID)")
	flags.StringVar(&opts.secret, "secret", "", "local signing secret S... (env STELLAR_SECRET_KEY)")
	flags.StringVar(&opts.bridgeURL, "bridge", "", "wallet bridge websocket url (env SIGNER_BRIDGE_URL)")
	flags.StringVar(&opts.journal, "journal", "", "submission journal sqlite path (env JOURNAL_PATH)")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug | info | warn | error (env LOG_LEVEL)")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print results as JSON")

	root.AddCommand(
		newSimulateCommand(a),
		newInvokeCommand(a),
		newStatusCommand(a),
		newPendingCommand(a),
		newMintCommand(a),
		newMetadataCommand(a),
		newOwnerCommand(a),
		newNetworkCommand(a),
		newEventsCommand(a),
	)
	return root
}
