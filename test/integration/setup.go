package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quizchain/client-sdk-go/client"
	"github.com/quizchain/client-sdk-go/config"
	"github.com/quizchain/client-sdk-go/wallet"
)

const (
	// EnableEnv 设置为 1 时运行测试网集成测试
	EnableEnv = "QUIZCHAIN_INTEGRATION"
	// DefaultTimeout 默认超时时间
	DefaultTimeout = 30 * time.Second
	// TransactionConfirmTimeout 交易确认超时时间
	TransactionConfirmTimeout = 60 * time.Second
)

// LoadTestConfig 读取测试配置（与 CLI 相同的环境变量，默认测试网）
func LoadTestConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load(config.FromEnviron())
	require.NoError(t, err, "加载配置失败")
	require.Equal(t, config.NetworkTestnet, cfg.Network, "集成测试只允许在测试网运行")
	return cfg
}

// EnsureNodeRunning 未启用集成测试或 RPC 不可用时跳过
func EnsureNodeRunning(t *testing.T) {
	t.Helper()
	if os.Getenv(EnableEnv) != "1" {
		t.Skipf("set %s=1 to run testnet integration tests", EnableEnv)
	}
	c := SetupTestClient(t)
	defer TeardownTestClient(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := c.GetHealth(ctx)
	if err != nil {
		t.Skipf("RPC 不可用: %v", err)
	}
	if health.Status != "healthy" {
		t.Skipf("RPC 状态异常: %s", health.Status)
	}
}

// SetupTestClient 创建连接测试网 RPC 的客户端
func SetupTestClient(t *testing.T) client.Client {
	t.Helper()
	cfg := LoadTestConfig(t)

	c, err := client.NewClient(cfg.ClientConfig(nil))
	require.NoError(t, err, "创建客户端失败")
	return c
}

// TeardownTestClient 清理测试客户端
func TeardownTestClient(t *testing.T, c client.Client) {
	if c != nil {
		if err := c.Close(); err != nil {
			t.Logf("关闭客户端时出现警告: %v", err)
		}
	}
}

// CreateTestSigner 创建随机本地签名者
func CreateTestSigner(t *testing.T) *wallet.KeypairSigner {
	t.Helper()
	s, err := wallet.NewRandomKeypairSigner()
	require.NoError(t, err, "创建测试签名者失败")
	return s
}
