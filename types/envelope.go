package types

import (
	"fmt"
)

// Stage 交易信封所处阶段
type Stage int

const (
	StageBuilt Stage = iota + 1
	StagePrepared
	StageSigned
	StageSubmitted
)

func (s Stage) String() string {
	switch s {
	case StageBuilt:
		return "built"
	case StagePrepared:
		return "prepared"
	case StageSigned:
		return "signed"
	case StageSubmitted:
		return "submitted"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Envelope 交易信封（不可变值）
//
// **说明**：
// - 每次阶段迁移都返回新的 Envelope，旧值保持不变
// - 一个 Envelope 只绑定一个账户序列号；任何不确定的失败之后必须重新 Build
type Envelope struct {
	stage             Stage
	xdr               string
	source            string
	sequence          int64
	networkPassphrase string
	invocation        ContractInvocation
	fee               int64
	resources         *ResourceEstimate
	hash              string
}

// NewBuiltEnvelope 创建 built 阶段信封（由 Builder 调用）
func NewBuiltEnvelope(xdrB64, source string, sequence int64, networkPassphrase string, invocation ContractInvocation, fee int64) Envelope {
	return Envelope{
		stage:             StageBuilt,
		xdr:               xdrB64,
		source:            source,
		sequence:          sequence,
		networkPassphrase: networkPassphrase,
		invocation:        invocation,
		fee:               fee,
	}
}

func (e Envelope) Stage() Stage                   { return e.stage }
func (e Envelope) XDR() string                    { return e.xdr }
func (e Envelope) Source() string                 { return e.source }
func (e Envelope) Sequence() int64                { return e.sequence }
func (e Envelope) NetworkPassphrase() string      { return e.networkPassphrase }
func (e Envelope) Invocation() ContractInvocation { return e.invocation }
func (e Envelope) Fee() int64                     { return e.fee }
func (e Envelope) Hash() string                   { return e.hash }

// Resources 资源估算（prepared 之后才有）
func (e Envelope) Resources() (ResourceEstimate, bool) {
	if e.resources == nil {
		return ResourceEstimate{}, false
	}
	return *e.resources, true
}

// IsZero 是否为零值
func (e Envelope) IsZero() bool {
	return e.stage == 0
}

func (e Envelope) requireStage(want Stage) error {
	if e.stage != want {
		return Errorf(KindInvalidInput, "envelope is %s, expected %s", e.stage, want)
	}
	return nil
}

// Prepared 附加资源估算后的新信封
func (e Envelope) Prepared(xdrB64 string, fee int64, resources ResourceEstimate) (Envelope, error) {
	if err := e.requireStage(StageBuilt); err != nil {
		return Envelope{}, err
	}
	next := e
	next.stage = StagePrepared
	next.xdr = xdrB64
	next.fee = fee
	r := resources
	next.resources = &r
	return next, nil
}

// Signed 签名后的新信封
func (e Envelope) Signed(signedXDR string) (Envelope, error) {
	if err := e.requireStage(StagePrepared); err != nil {
		return Envelope{}, err
	}
	if signedXDR == "" {
		return Envelope{}, Errorf(KindSigningFailed, "signer returned an empty transaction")
	}
	next := e
	next.stage = StageSigned
	next.xdr = signedXDR
	return next, nil
}

// Submitted 已提交的新信封（哈希由网络确认接收）
func (e Envelope) Submitted(hash string) (Envelope, error) {
	if err := e.requireStage(StageSigned); err != nil {
		return Envelope{}, err
	}
	next := e
	next.stage = StageSubmitted
	next.hash = hash
	return next, nil
}
