package reward

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stellar/go/network"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"

	"github.com/quizchain/client-sdk-go/client"
	"github.com/quizchain/client-sdk-go/services/contract"
	"github.com/quizchain/client-sdk-go/types"
	"github.com/quizchain/client-sdk-go/utils"
	"github.com/quizchain/client-sdk-go/wallet"
)

const (
	// DefaultThreshold 默认获奖分数线（0-100）
	DefaultThreshold = 80

	// supplyLimitMessage 合约在达到最大供应量时返回的错误文本
	supplyLimitMessage = "Maximum token supply reached"

	// metadataConcurrency 元数据视图的并发数
	metadataConcurrency = 4
)

// ErrSupplyLimitReached NFT 已达到最大供应量
var ErrSupplyLimitReached = errors.New("NFT supply limit reached")

// 元数据视图全部失败时的默认值
const (
	DefaultName        = "SorobanNFT"
	DefaultSymbol      = "SBN"
	DefaultMetadataURI = "https://ipfs.io/ipfs/QmegWR31kiQcD9S2katTXKxracbAgLs2QLBRGruFW3NhXC"
	DefaultImageURI    = "https://ipfs.io/ipfs/QmeRHSYkR4aGRLQXaLmZiccwHw7cvctrB211DzxzuRiqW6"
)

// Metadata NFT 合约元数据
type Metadata struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	MetadataURI string `json:"metadataUri"`
	ImageURI    string `json:"imageUri"`
	// Fallback 是否为查询失败后的默认值（默认值不写入缓存）
	Fallback bool `json:"-"`
}

// MintResult 铸造结果
type MintResult struct {
	Success     bool
	TxHash      string
	Ledger      uint32
	ExplorerURL string
	ContractURL string
}

// MetadataCache 元数据缓存（合约元数据不可变，按合约地址缓存）
type MetadataCache interface {
	Get(ctx context.Context, contractID string) (*Metadata, bool)
	Set(ctx context.Context, contractID string, metadata *Metadata) error
}

// AccountFetcher 读取账户（元数据查询共享一次账户读取）
type AccountFetcher interface {
	GetAccount(ctx context.Context, address string) (types.Account, error)
}

// Config 奖励服务配置
type Config struct {
	// ContractID NFT 合约地址（C...）
	ContractID string
	// NetworkPassphrase 网络口令（用于生成浏览器链接）
	NetworkPassphrase string
	// Fee 基础手续费（0 使用默认值）
	Fee int64
	// Cache 元数据缓存（可选）
	Cache MetadataCache
	// Logger 日志器（可选）
	Logger client.Logger
}

// Service 奖励业务服务
type Service struct {
	contracts contract.Service
	accounts  AccountFetcher
	config    Config
}

// NewService 创建奖励服务
func NewService(contracts contract.Service, accounts AccountFetcher, config Config) (*Service, error) {
	if contracts == nil || accounts == nil {
		return nil, fmt.Errorf("contract service and account fetcher are required")
	}
	if !contract.IsContractAddress(config.ContractID) {
		return nil, fmt.Errorf("invalid NFT contract id %q", config.ContractID)
	}
	return &Service{contracts: contracts, accounts: accounts, config: config}, nil
}

// ShouldMintReward 分数是否达到默认获奖分数线
func ShouldMintReward(score int) bool {
	return ShouldMintRewardWithThreshold(score, DefaultThreshold)
}

// ShouldMintRewardWithThreshold 分数是否达到指定分数线
func ShouldMintRewardWithThreshold(score, threshold int) bool {
	return score >= threshold
}

// ContractID 当前 NFT 合约地址
func (s *Service) ContractID() string { return s.config.ContractID }

// MintReward 为钱包铸造一枚奖励 NFT（调用者同时也是接收者）
//
// **流程**：
// 1. 校验地址（失败返回 InvalidInput，不发起网络请求）
// 2. 完整写路径：构建 → 准备 → 签名 → 提交 → 轮询
//
// **错误**：
// - 合约报告最大供应量：返回包装了 TxError 的 ErrSupplyLimitReached
// - 其他情况：返回 *types.TxError
func (s *Service) MintReward(ctx context.Context, publicKey string, signer wallet.Signer) (*MintResult, error) {
	if !strkey.IsValidEd25519PublicKey(publicKey) {
		return nil, types.Errorf(types.KindInvalidInput, "public key is required and must be a G... address, got %q", publicKey)
	}
	recipient, err := contract.Address(publicKey)
	if err != nil {
		return nil, types.NewTxError(types.KindInvalidInput, err.Error(), err)
	}

	if s.config.Logger != nil {
		s.config.Logger.Info("Minting reward NFT", "recipient", publicKey, "contract", s.config.ContractID)
	}

	result, err := s.contracts.Invoke(ctx, &contract.InvokeRequest{
		ContractID: s.config.ContractID,
		Method:     "mint",
		Args:       []xdr.ScVal{recipient},
		Source:     publicKey,
		Fee:        s.config.Fee,
	}, signer)
	if err != nil {
		if strings.Contains(err.Error(), supplyLimitMessage) {
			return nil, fmt.Errorf("%w: %w", ErrSupplyLimitReached, err)
		}
		return nil, err
	}

	return &MintResult{
		Success:     result.Success,
		TxHash:      result.TxHash,
		Ledger:      result.Ledger,
		ExplorerURL: TxExplorerURL(s.config.NetworkPassphrase, result.TxHash),
		ContractURL: ContractExplorerURL(s.config.NetworkPassphrase, s.config.ContractID),
	}, nil
}

// GetMetadata 读取 NFT 合约元数据
//
// **说明**：
// - name / symbol / token_uri / token_image 四个视图并发模拟（只读、无副作用）
// - 任意一步失败返回默认元数据（Fallback=true），不返回错误
// - 单个视图返回空值时该字段使用默认值
func (s *Service) GetMetadata(ctx context.Context, publicKey string) *Metadata {
	if s.config.Cache != nil {
		if cached, ok := s.config.Cache.Get(ctx, s.config.ContractID); ok {
			return cached
		}
	}

	metadata, err := s.fetchMetadata(ctx, publicKey)
	if err != nil {
		if s.config.Logger != nil {
			s.config.Logger.Warn("Falling back to default NFT metadata", "contract", s.config.ContractID, "error", err)
		}
		return defaultMetadata()
	}

	if s.config.Cache != nil {
		if err := s.config.Cache.Set(ctx, s.config.ContractID, metadata); err != nil && s.config.Logger != nil {
			s.config.Logger.Warn("Failed to cache NFT metadata", "contract", s.config.ContractID, "error", err)
		}
	}
	return metadata
}

func (s *Service) fetchMetadata(ctx context.Context, publicKey string) (*Metadata, error) {
	account, err := s.accounts.GetAccount(ctx, publicKey)
	if err != nil {
		return nil, err
	}

	views := []string{"name", "symbol", "token_uri", "token_image"}
	values, err := utils.ParallelExecute(ctx, views, func(ctx context.Context, method string) (string, error) {
		res, err := s.contracts.QueryFromAccount(ctx, account, &contract.QueryRequest{
			ContractID: s.config.ContractID,
			Method:     method,
			Fee:        s.config.Fee,
		})
		if err != nil {
			return "", err
		}
		return stringValue(res.Value), nil
	}, metadataConcurrency)
	if err != nil {
		return nil, err
	}

	return &Metadata{
		Name:        orDefault(values[0], DefaultName),
		Symbol:      orDefault(values[1], DefaultSymbol),
		MetadataURI: values[2],
		ImageURI:    values[3],
	}, nil
}

// GetTokenOwner 查询 token 持有者地址（owner_of(i128)）
func (s *Service) GetTokenOwner(ctx context.Context, publicKey string, tokenID int64) (string, error) {
	res, err := s.contracts.Query(ctx, &contract.QueryRequest{
		ContractID: s.config.ContractID,
		Method:     "owner_of",
		Args:       []xdr.ScVal{contract.I128FromInt64(tokenID)},
		Source:     publicKey,
		Fee:        s.config.Fee,
	})
	if err != nil {
		return "", err
	}
	owner, ok := res.Value.(string)
	if !ok || owner == "" {
		return "", types.Errorf(types.KindNoResult, "could not retrieve owner of token %d", tokenID)
	}
	return owner, nil
}

// GetTokenOwners 批量查询多个 token 的持有者（只读，并发执行，单项失败不影响其他项）
func (s *Service) GetTokenOwners(ctx context.Context, publicKey string, tokenIDs []int64, config *utils.BatchConfig) (map[int64]string, map[int64]error, error) {
	res, err := utils.BatchQuery(ctx, tokenIDs, func(ctx context.Context, id int64, _ int) (string, error) {
		return s.GetTokenOwner(ctx, publicKey, id)
	}, config)
	if err != nil {
		return nil, nil, err
	}

	owners := make(map[int64]string, len(res.Results))
	for _, item := range res.Results {
		owners[tokenIDs[item.Index]] = item.Value
	}
	failures := make(map[int64]error, len(res.Errors))
	for _, e := range res.Errors {
		failures[tokenIDs[e.Index]] = e.Error
	}
	return owners, failures, nil
}

// explorerNetwork 浏览器中的网络名
func explorerNetwork(passphrase string) string {
	if passphrase == network.PublicNetworkPassphrase {
		return "public"
	}
	return "testnet"
}

// TxExplorerURL 交易浏览器链接
func TxExplorerURL(passphrase, hash string) string {
	return fmt.Sprintf("https://stellar.expert/explorer/%s/tx/%s", explorerNetwork(passphrase), hash)
}

// ContractExplorerURL 合约浏览器链接
func ContractExplorerURL(passphrase, contractID string) string {
	return fmt.Sprintf("https://stellar.expert/explorer/%s/contract/%s", explorerNetwork(passphrase), contractID)
}

func defaultMetadata() *Metadata {
	return &Metadata{
		Name:        DefaultName,
		Symbol:      DefaultSymbol,
		MetadataURI: DefaultMetadataURI,
		ImageURI:    DefaultImageURI,
		Fallback:    true,
	}
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
