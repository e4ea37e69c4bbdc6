package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/quizchain/client-sdk-go/cache"
	"github.com/quizchain/client-sdk-go/client"
	"github.com/quizchain/client-sdk-go/config"
	"github.com/quizchain/client-sdk-go/journal"
	"github.com/quizchain/client-sdk-go/services/contract"
	"github.com/quizchain/client-sdk-go/services/reward"
	"github.com/quizchain/client-sdk-go/telemetry"
	"github.com/quizchain/client-sdk-go/types"
	"github.com/quizchain/client-sdk-go/wallet"
)

// journalDisabled JOURNAL_PATH 取该值时不记录提交
const journalDisabled = "-"

// app 命令共享的依赖（按需懒加载，命令结束时统一关闭）
type app struct {
	opts   *options
	cfg    config.Config
	logger *slog.Logger
	out    io.Writer
	errOut io.Writer

	shutdown telemetry.ShutdownFunc
	rpc      client.Client
	jrnl     *journal.Journal
	meta     *cache.MetadataCache
	bridge   *wallet.BridgeSigner
}

// run 包装命令函数，保证依赖在命令返回后关闭（RunE 出错时 PersistentPostRun 不会执行）
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if cerr := a.close(cmd.Context()); cerr != nil && err == nil {
			err = cerr
		}
		return err
	}
}

func (a *app) client() (client.Client, error) {
	if a.rpc != nil {
		return a.rpc, nil
	}
	rpc, err := client.NewClient(a.cfg.ClientConfig(a.logger))
	if err != nil {
		return nil, fmt.Errorf("create rpc client: %w", err)
	}
	a.rpc = rpc
	return rpc, nil
}

// contracts 创建合约服务，写路径轮询时在终端显示进度
func (a *app) contracts() (contract.Service, func(), error) {
	rpc, err := a.client()
	if err != nil {
		return nil, nil, err
	}

	poll := a.cfg.PollConfig()
	onPoll, finish := newPollProgress(a.errOut, poll.MaxAttempts)
	poll.OnPoll = onPoll

	svc := contract.NewServiceWithConfig(rpc, nil, contract.ServiceConfig{
		Poll:   poll,
		Logger: a.logger,
		OnStateChange: func(from, to types.State) {
			a.logger.Debug("state transition", "from", string(from), "to", string(to))
		},
	})
	return svc, finish, nil
}

// signer 解析签名者：本地密钥优先，其次钱包桥接
//
// 返回的地址是交易来源账户（桥接模式下来自 --source）。
func (a *app) signer(ctx context.Context, source string) (wallet.Signer, string, error) {
	if a.cfg.SecretKey != "" {
		kp, err := wallet.NewKeypairSigner(a.cfg.SecretKey)
		if err != nil {
			return nil, "", fmt.Errorf("load signing key: %w", err)
		}
		if source != "" && source != kp.Address() {
			return nil, "", fmt.Errorf("--source %s does not match signing key %s", source, kp.Address())
		}
		return kp, kp.Address(), nil
	}
	if a.cfg.SignerBridgeURL != "" {
		if source == "" {
			return nil, "", errors.New("--source is required when signing through the wallet bridge")
		}
		if a.bridge == nil {
			bridge, err := wallet.NewBridgeSigner(ctx, wallet.BridgeConfig{Endpoint: a.cfg.SignerBridgeURL})
			if err != nil {
				return nil, "", fmt.Errorf("connect wallet bridge: %w", err)
			}
			a.bridge = bridge
		}
		return a.bridge, source, nil
	}
	return nil, "", errors.New("no signer configured: set STELLAR_SECRET_KEY or SIGNER_BRIDGE_URL")
}

// sourceAddress 只读调用的来源账户：--source，否则使用本地密钥地址
func (a *app) sourceAddress(source string) (string, error) {
	if source != "" {
		return source, nil
	}
	if a.cfg.SecretKey != "" {
		kp, err := wallet.NewKeypairSigner(a.cfg.SecretKey)
		if err != nil {
			return "", fmt.Errorf("load signing key: %w", err)
		}
		return kp.Address(), nil
	}
	return "", errors.New("--source is required (or set STELLAR_SECRET_KEY)")
}

// journal 打开提交日志，禁用时返回 nil
func (a *app) journal() (*journal.Journal, error) {
	if a.jrnl != nil || a.cfg.JournalPath == journalDisabled || a.cfg.JournalPath == "" {
		return a.jrnl, nil
	}
	j, err := journal.Open(a.cfg.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	a.jrnl = j
	return j, nil
}

// rewards 创建奖励服务（REDIS_ADDR 配置时启用元数据缓存）
func (a *app) rewards() (*reward.Service, func(), error) {
	contracts, finish, err := a.contracts()
	if err != nil {
		return nil, nil, err
	}
	if a.meta == nil {
		meta, err := cache.NewMetadataCache(cache.Config{Addr: a.cfg.RedisAddr})
		if err != nil {
			// 缓存不可用不影响业务
			a.logger.Warn("metadata cache unavailable", "addr", a.cfg.RedisAddr, "error", err)
			meta, _ = cache.NewMetadataCache(cache.Config{})
		}
		a.meta = meta
	}

	svc, err := reward.NewService(contracts, a.rpc, reward.Config{
		ContractID:        a.cfg.NFTContractID,
		NetworkPassphrase: a.cfg.NetworkPassphrase,
		Fee:               a.cfg.BaseFee,
		Cache:             a.meta,
		Logger:            a.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return svc, finish, nil
}

// recordOutcome 把写调用结果写入提交日志（没有哈希的失败不记录）
func (a *app) recordOutcome(ctx context.Context, inv types.ContractInvocation, source string, result *contract.InvokeResult, err error) {
	j, jerr := a.journal()
	if jerr != nil {
		a.logger.Warn("journal unavailable", "error", jerr)
		return
	}
	if j == nil {
		return
	}

	var (
		hash   string
		status types.TxStatus
		ledger uint32
	)
	switch {
	case err == nil && result != nil:
		hash, status, ledger = result.TxHash, types.TxStatusSuccess, result.Ledger
	default:
		var txErr *types.TxError
		if !errors.As(err, &txErr) || txErr.TxHash == "" {
			return
		}
		hash = txErr.TxHash
		switch txErr.Kind {
		case types.KindPollingTimeout:
			status = journal.StatusTimeout
		case types.KindTransactionFailed:
			status = types.TxStatusFailed
		default:
			status = types.TxStatusPending
		}
	}

	if err := j.Record(ctx, hash, inv, source); err != nil {
		a.logger.Warn("journal record failed", "hash", hash, "error", err)
		return
	}
	if status != types.TxStatusPending {
		if err := j.UpdateStatus(ctx, hash, status, ledger); err != nil {
			a.logger.Warn("journal update failed", "hash", hash, "error", err)
		}
	}
}

// print 输出结果：--json 时输出 JSON，否则调用 text
func (a *app) print(v interface{}, text func(w io.Writer)) error {
	if a.opts.jsonOutput {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(a.out)
	return nil
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.bridge != nil {
		errs = append(errs, a.bridge.Close())
		a.bridge = nil
	}
	if a.meta != nil {
		errs = append(errs, a.meta.Close())
		a.meta = nil
	}
	if a.jrnl != nil {
		errs = append(errs, a.jrnl.Close())
		a.jrnl = nil
	}
	if a.rpc != nil {
		errs = append(errs, a.rpc.Close())
		a.rpc = nil
	}
	if a.shutdown != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		errs = append(errs, a.shutdown(ctx))
		a.shutdown = nil
	}
	return errors.Join(errs...)
}
