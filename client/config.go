package client

import (
	"net/http"

	"github.com/stellar/go/network"
)

// Config 客户端配置
type Config struct {
	// Endpoint Stellar RPC 端点地址
	Endpoint string

	// NetworkPassphrase 目标网络口令（决定交易哈希与签名域）
	NetworkPassphrase string

	// Timeout 单次请求超时时间（秒）
	Timeout int

	// Retry 传输层重试配置（默认 nil：核心流程不做任何隐式重试）
	Retry *RetryConfig

	// HTTPClient 自定义 HTTP 客户端（可选）
	HTTPClient *http.Client

	// 调试模式
	Debug bool

	// 日志器（可选）
	Logger Logger
}

// Logger 日志接口（*slog.Logger 满足该接口）
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

const (
	// TestnetEndpoint 测试网 RPC
	TestnetEndpoint = "https://soroban-testnet.stellar.org"
	// MainnetEndpoint 主网 RPC（需替换为实际服务商地址）
	MainnetEndpoint = "https://mainnet.sorobanrpc.com"
)

// DefaultConfig 返回默认配置（测试网）
func DefaultConfig() *Config {
	return TestnetConfig()
}

// TestnetConfig 测试网配置
func TestnetConfig() *Config {
	return &Config{
		Endpoint:          TestnetEndpoint,
		NetworkPassphrase: network.TestNetworkPassphrase,
		Timeout:           30,
		Debug:             false,
	}
}

// MainnetConfig 主网配置
func MainnetConfig() *Config {
	return &Config{
		Endpoint:          MainnetEndpoint,
		NetworkPassphrase: network.PublicNetworkPassphrase,
		Timeout:           30,
		Debug:             false,
	}
}
