package client

import (
	"context"
	"fmt"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// MinimumRPCVersion 生命周期依赖的最低 RPC 版本（simulateTransaction 返回 results/transactionData）
const MinimumRPCVersion = "21.0.0"

// CheckVersion 检查 RPC 节点版本是否满足约束
//
// **说明**：
// - constraint 使用 go-version 约束语法，例如 ">= 21.0.0"
// - 空约束使用 MinimumRPCVersion
func CheckVersion(ctx context.Context, c Client, constraint string) (*VersionInfo, error) {
	if strings.TrimSpace(constraint) == "" {
		constraint = ">= " + MinimumRPCVersion
	}

	constraints, err := goversion.NewConstraint(constraint)
	if err != nil {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid version constraint %q", constraint), err)
	}

	info, err := c.GetVersionInfo(ctx)
	if err != nil {
		return nil, err
	}

	// 节点版本可能带有 "v" 前缀或构建后缀（如 "22.1.0-dev"）
	raw := strings.TrimPrefix(strings.TrimSpace(info.Version), "v")
	nodeVersion, err := goversion.NewVersion(raw)
	if err != nil {
		return info, NewInvalidResponseError(fmt.Sprintf("unparseable rpc version %q", info.Version))
	}
	if !constraints.Check(nodeVersion.Core()) {
		return info, fmt.Errorf("rpc version %s does not satisfy %s", nodeVersion, constraints)
	}
	return info, nil
}
