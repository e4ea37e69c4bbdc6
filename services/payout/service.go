// Package payout 服务端奖励发放：发行账户签名的原生资产支付 + 可选成就资产
package payout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/stellar/go/amount"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"

	"github.com/quizchain/client-sdk-go/client"
)

const (
	// DefaultBaseFee 每个操作的基础手续费（stroops）
	DefaultBaseFee int64 = 100000
	// TimeoutSeconds 交易有效期
	TimeoutSeconds int64 = 180
	// AchievementRatio 发放成就资产的正确率下限
	AchievementRatio = 0.7
)

// Horizon 发放所需的 Horizon 能力（*horizonclient.Client 满足该接口）
type Horizon interface {
	AccountDetail(request horizonclient.AccountRequest) (horizon.Account, error)
	SubmitTransaction(transaction *txnbuild.Transaction) (horizon.Transaction, error)
}

// Request 发放请求
type Request struct {
	Wallet         string      `json:"wallet"`
	Amount         json.Number `json:"amount"`
	Score          int         `json:"score"`
	TotalQuestions int         `json:"totalQuestions"`
}

// Response 发放结果
type Response struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash,omitempty"`
	Amount          string `json:"amount,omitempty"`
	NFTIssued       bool   `json:"nftIssued"`
	NFTHash         string `json:"nftHash,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Config 发放服务配置
type Config struct {
	// IssuerSecret 发行账户私钥（S...，仅服务端持有）
	IssuerSecret string
	// NetworkPassphrase 网络口令
	NetworkPassphrase string
	// BaseFee 基础手续费（0 使用默认值）
	BaseFee int64
	// Logger 日志器（可选）
	Logger client.Logger
}

// Service 奖励发放服务
type Service struct {
	horizon Horizon
	issuer  *keypair.Full
	config  Config
	now     func() time.Time
}

// NewService 创建发放服务
func NewService(h Horizon, config Config) (*Service, error) {
	if h == nil {
		return nil, errors.New("horizon client is required")
	}
	if config.IssuerSecret == "" {
		return nil, errors.New("STELLAR_SECRET_KEY not configured")
	}
	issuer, err := keypair.ParseFull(config.IssuerSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid issuer secret: %w", err)
	}
	if config.NetworkPassphrase == "" {
		return nil, errors.New("network passphrase is required")
	}
	if config.BaseFee == 0 {
		config.BaseFee = DefaultBaseFee
	}
	return &Service{horizon: h, issuer: issuer, config: config, now: time.Now}, nil
}

// IssuerAddress 发行账户地址
func (s *Service) IssuerAddress() string {
	return s.issuer.Address()
}

// Validate 校验请求（不发起网络请求）
func (r *Request) Validate() error {
	if !strkey.IsValidEd25519PublicKey(r.Wallet) {
		return fmt.Errorf("invalid wallet address %q", r.Wallet)
	}
	if _, err := amount.Parse(r.Amount.String()); err != nil {
		return fmt.Errorf("invalid amount %q: %w", r.Amount.String(), err)
	}
	if amt, _ := amount.ParseInt64(r.Amount.String()); amt <= 0 {
		return fmt.Errorf("amount must be positive, got %s", r.Amount.String())
	}
	if r.TotalQuestions <= 0 {
		return fmt.Errorf("totalQuestions must be positive, got %d", r.TotalQuestions)
	}
	if r.Score < 0 || r.Score > r.TotalQuestions {
		return fmt.Errorf("score %d out of range 0..%d", r.Score, r.TotalQuestions)
	}
	return nil
}

// QualifiesForAchievement 正确率是否达到成就资产发放线
func (r *Request) QualifiesForAchievement() bool {
	return float64(r.Score)/float64(r.TotalQuestions) >= AchievementRatio
}

// Pay 发放奖励
//
// **流程**：
// 1. 加载发行账户并构建原生资产支付（备注 "Quiz Score: s/t"）
// 2. 发行账户签名并通过 Horizon 同步提交
// 3. 正确率 >= 70% 时尝试发放 1 个成就资产（失败不影响主支付结果）
func (s *Service) Pay(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, errors.New("request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.config.Logger != nil {
		s.config.Logger.Info("Processing reward request",
			"wallet", req.Wallet, "amount", req.Amount.String(), "score", req.Score, "total", req.TotalQuestions)
	}

	// 1. 原生资产支付
	payment := &txnbuild.Payment{
		Destination: req.Wallet,
		Amount:      req.Amount.String(),
		Asset:       txnbuild.NativeAsset{},
	}
	memo := txnbuild.MemoText(fmt.Sprintf("Quiz Score: %d/%d", req.Score, req.TotalQuestions))
	result, err := s.submit(memo, payment)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Success:         true,
		TransactionHash: result.Hash,
		Amount:          req.Amount.String(),
	}
	if s.config.Logger != nil {
		s.config.Logger.Info("Reward payment successful", "hash", result.Hash)
	}

	// 2. 成就资产（非关键）
	if req.QualifiesForAchievement() && ctx.Err() == nil {
		nft, err := s.issueAchievement(req)
		if err != nil {
			if s.config.Logger != nil {
				s.config.Logger.Warn("Achievement issuance failed (non-critical)", "wallet", req.Wallet, "error", err)
			}
		} else {
			resp.NFTIssued = true
			resp.NFTHash = nft.Hash
		}
	}
	return resp, nil
}

// AchievementCode 成就资产代码（QUIZ + 时间戳毫秒后 6 位）
func (s *Service) AchievementCode() string {
	ms := strconv.FormatInt(s.now().UnixMilli(), 10)
	if len(ms) > 6 {
		ms = ms[len(ms)-6:]
	}
	return "QUIZ" + ms
}

// issueAchievement 发放成就资产：钱包建立信任线 + 发行账户支付 1 个单位
//
// 信任线操作的来源是钱包账户，钱包未共同签名时 Horizon 会拒绝该交易。
func (s *Service) issueAchievement(req *Request) (horizon.Transaction, error) {
	asset := txnbuild.CreditAsset{Code: s.AchievementCode(), Issuer: s.issuer.Address()}
	line, err := asset.ToChangeTrustAsset()
	if err != nil {
		return horizon.Transaction{}, err
	}

	memo := txnbuild.MemoText(fmt.Sprintf("Achievement: %d/%d correct", req.Score, req.TotalQuestions))
	return s.submit(memo,
		&txnbuild.ChangeTrust{
			Line:          line,
			Limit:         txnbuild.MaxTrustlineLimit,
			SourceAccount: req.Wallet,
		},
		&txnbuild.Payment{
			Destination: req.Wallet,
			Amount:      "1",
			Asset:       asset,
		},
	)
}

// submit 加载发行账户、构建、签名并提交
func (s *Service) submit(memo txnbuild.Memo, ops ...txnbuild.Operation) (horizon.Transaction, error) {
	account, err := s.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: s.issuer.Address()})
	if err != nil {
		return horizon.Transaction{}, fmt.Errorf("load issuer account: %w", err)
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &account,
		IncrementSequenceNum: true,
		BaseFee:              s.config.BaseFee,
		Operations:           ops,
		Memo:                 memo,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(TimeoutSeconds),
		},
	})
	if err != nil {
		return horizon.Transaction{}, fmt.Errorf("build transaction: %w", err)
	}

	tx, err = tx.Sign(s.config.NetworkPassphrase, s.issuer)
	if err != nil {
		return horizon.Transaction{}, fmt.Errorf("sign transaction: %w", err)
	}

	result, err := s.horizon.SubmitTransaction(tx)
	if err != nil {
		return horizon.Transaction{}, describeHorizonError(err)
	}
	return result, nil
}

// describeHorizonError 展开 Horizon 的 result codes
func describeHorizonError(err error) error {
	var herr *horizonclient.Error
	if errors.As(err, &herr) {
		if codes, cerr := herr.ResultCodes(); cerr == nil && codes != nil {
			return fmt.Errorf("submit transaction: %s (tx=%s ops=%v): %w", herr.Problem.Title, codes.TransactionCode, codes.OperationCodes, err)
		}
	}
	return fmt.Errorf("submit transaction: %w", err)
}
