// Package config 从环境变量（以及可选的 .env 文件）加载运行配置
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/stellar/go/network"

	"github.com/quizchain/client-sdk-go/client"
	"github.com/quizchain/client-sdk-go/services/transaction"
)

const (
	NetworkTestnet = "testnet"
	NetworkPublic  = "public"

	// DefaultNFTContractID 测试网上的奖励 NFT 合约
	DefaultNFTContractID = "CDM5IGFRIHE5ZW6YDXKG3JTJUAOXI2DHT3AQNHAVRFUCW3STVWEQVE4N"

	testnetHorizonURL = "https://horizon-testnet.stellar.org"
	publicHorizonURL  = "https://horizon.stellar.org"
)

// Config 运行配置
type Config struct {
	RPCURL            string
	Network           string
	NetworkPassphrase string
	NFTContractID     string
	BaseFee           int64
	PollInterval      time.Duration
	PollMaxAttempts   int
	RewardThreshold   int
	HorizonURL        string
	SecretKey         string
	SignerBridgeURL   string
	RedisAddr         string
	JournalPath       string
	HTTPAddr          string
	LogLevel          string
	OtelEndpoint      string
}

// EnvSource 环境变量来源
type EnvSource interface {
	Lookup(key string) (string, bool)
}

// EnvMap 基于 map 的环境变量来源（测试使用）
type EnvMap map[string]string

func (e EnvMap) Lookup(key string) (string, bool) {
	value, ok := e[key]
	return value, ok
}

type osEnv struct{}

func (osEnv) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// FromEnviron 进程环境变量
func FromEnviron() EnvSource {
	return osEnv{}
}

// Overlay 用 overrides 中的非空值覆盖 base（命令行参数优先于环境变量）
func Overlay(base EnvSource, overrides EnvMap) EnvSource {
	return overlayEnv{base: base, overrides: overrides}
}

type overlayEnv struct {
	base      EnvSource
	overrides EnvMap
}

func (o overlayEnv) Lookup(key string) (string, bool) {
	if v, ok := o.overrides[key]; ok && v != "" {
		return v, true
	}
	if o.base == nil {
		return "", false
	}
	return o.base.Lookup(key)
}

// LoadFromEnv 加载 .env（存在时，不覆盖已设置的变量）后读取进程环境变量
func LoadFromEnv() (Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return Load(FromEnviron())
}

// LoadDotEnv 加载 .env 文件（不存在时忽略）
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// Load 从给定来源读取配置
func Load(source EnvSource) (Config, error) {
	if source == nil {
		return Config{}, errors.New("env source is required")
	}

	networkName := strings.ToLower(lookupDefault(source, "STELLAR_NETWORK", NetworkTestnet))
	var (
		defaultRPC        string
		defaultPassphrase string
		defaultHorizon    string
	)
	switch networkName {
	case NetworkTestnet:
		defaultRPC, defaultPassphrase, defaultHorizon = client.TestnetEndpoint, network.TestNetworkPassphrase, testnetHorizonURL
	case NetworkPublic:
		defaultRPC, defaultPassphrase, defaultHorizon = client.MainnetEndpoint, network.PublicNetworkPassphrase, publicHorizonURL
	default:
		return Config{}, fmt.Errorf("invalid STELLAR_NETWORK %q (want testnet or public)", networkName)
	}

	baseFee, err := parseIntEnv(source, "BASE_FEE", 100000)
	if err != nil {
		return Config{}, err
	}
	if baseFee <= 0 {
		return Config{}, fmt.Errorf("invalid BASE_FEE: must be positive, got %d", baseFee)
	}

	pollInterval := transaction.DefaultPollInterval
	if raw, ok := source.Lookup("POLL_INTERVAL"); ok && raw != "" {
		pollInterval, err = time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid POLL_INTERVAL: %w", err)
		}
	}
	pollMaxAttempts, err := parseIntEnv(source, "POLL_MAX_ATTEMPTS", int64(transaction.DefaultPollMaxAttempts))
	if err != nil {
		return Config{}, err
	}
	if pollMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("invalid POLL_MAX_ATTEMPTS: must be positive, got %d", pollMaxAttempts)
	}

	threshold, err := parseIntEnv(source, "REWARD_THRESHOLD", 80)
	if err != nil {
		return Config{}, err
	}
	if threshold < 0 || threshold > 100 {
		return Config{}, fmt.Errorf("invalid REWARD_THRESHOLD: must be within 0..100, got %d", threshold)
	}

	otelEndpoint, _ := source.Lookup("OTEL_EXPORTER_OTLP_ENDPOINT")
	secretKey, _ := source.Lookup("STELLAR_SECRET_KEY")
	bridgeURL, _ := source.Lookup("SIGNER_BRIDGE_URL")
	redisAddr, _ := source.Lookup("REDIS_ADDR")

	return Config{
		RPCURL:            lookupDefault(source, "STELLAR_RPC_URL", defaultRPC),
		Network:           networkName,
		NetworkPassphrase: lookupDefault(source, "STELLAR_NETWORK_PASSPHRASE", defaultPassphrase),
		NFTContractID:     lookupDefault(source, "NFT_CONTRACT_ID", DefaultNFTContractID),
		BaseFee:           baseFee,
		PollInterval:      pollInterval,
		PollMaxAttempts:   int(pollMaxAttempts),
		RewardThreshold:   int(threshold),
		HorizonURL:        lookupDefault(source, "HORIZON_URL", defaultHorizon),
		SecretKey:         strings.TrimSpace(secretKey),
		SignerBridgeURL:   strings.TrimSpace(bridgeURL),
		RedisAddr:         strings.TrimSpace(redisAddr),
		JournalPath:       lookupDefault(source, "JOURNAL_PATH", "quizchain-journal.db"),
		HTTPAddr:          lookupDefault(source, "HTTP_ADDR", ":8080"),
		LogLevel:          lookupDefault(source, "LOG_LEVEL", "info"),
		OtelEndpoint:      strings.TrimSpace(otelEndpoint),
	}, nil
}

// ClientConfig RPC 客户端配置
func (c Config) ClientConfig(logger client.Logger) *client.Config {
	cfg := client.DefaultConfig()
	cfg.Endpoint = c.RPCURL
	cfg.NetworkPassphrase = c.NetworkPassphrase
	cfg.Logger = logger
	return cfg
}

// PollConfig 轮询配置
func (c Config) PollConfig() transaction.PollConfig {
	return transaction.PollConfig{
		Interval:    c.PollInterval,
		MaxAttempts: c.PollMaxAttempts,
	}
}

func lookupDefault(source EnvSource, key, defaultValue string) string {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue
	}
	return strings.TrimSpace(raw)
}

func parseIntEnv(source EnvSource, key string, defaultValue int64) (int64, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
