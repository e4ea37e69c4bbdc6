package contract

import (
	"context"
	"fmt"

	"github.com/stellar/go/xdr"

	"github.com/quizchain/client-sdk-go/normalizer"
	"github.com/quizchain/client-sdk-go/types"
)

// Simulating 模拟能力（client.Client 满足该接口）
type Simulating interface {
	Simulate(ctx context.Context, env types.Envelope) (*types.SimulationResult, error)
}

// Simulate 模拟交易并解码返回值
//
// 判定规则：
// - 响应带 error 字段：SimulationFailed（保留原始详情）
// - 存在可解码的返回值：解码为原生值写入 ReturnValue
// - 否则：NoResult
func Simulate(ctx context.Context, rpc Simulating, env types.Envelope) (*types.SimulationResult, xdr.ScVal, error) {
	if env.Stage() != types.StageBuilt {
		return nil, xdr.ScVal{}, types.Errorf(types.KindInvalidInput, "simulate requires a built envelope, got %s", env.Stage())
	}

	sim, err := rpc.Simulate(ctx, env)
	if err != nil {
		return nil, xdr.ScVal{}, normalizer.NormalizeStage(normalizer.StageSimulate, err)
	}
	if sim.Error != "" {
		return sim, xdr.ScVal{}, types.NewTxError(types.KindSimulationFailed, sim.Error, nil)
	}

	raw, ok := sim.FirstReturnValue()
	if !ok {
		return sim, xdr.ScVal{}, types.Errorf(types.KindNoResult, "%s returned no value", env.Invocation().Method())
	}
	native, err := ScValToNative(raw)
	if err != nil {
		return sim, raw, types.NewTxError(types.KindNoResult, fmt.Sprintf("decode return value: %v", err), err)
	}
	sim.ReturnValue = native
	return sim, raw, nil
}
