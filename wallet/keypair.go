package wallet

import (
	"context"
	"fmt"
	"strings"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
)

// KeypairSigner 本地 ed25519 签名者（用于服务端发奖账户和测试）
//
// **注意**：
// - 私钥只保存在内存中，不做任何持久化
// - 浏览器钱包场景请使用 BridgeSigner
type KeypairSigner struct {
	kp *keypair.Full
}

// NewKeypairSigner 从 S... 私钥创建签名者
func NewKeypairSigner(secret string) (*KeypairSigner, error) {
	kp, err := keypair.ParseFull(strings.TrimSpace(secret))
	if err != nil {
		return nil, fmt.Errorf("parse secret key: %w", err)
	}
	return &KeypairSigner{kp: kp}, nil
}

// NewRandomKeypairSigner 生成随机密钥的签名者
func NewRandomKeypairSigner() (*KeypairSigner, error) {
	kp, err := keypair.Random()
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &KeypairSigner{kp: kp}, nil
}

// Address 签名者的 G... 地址
func (s *KeypairSigner) Address() string {
	return s.kp.Address()
}

// Keypair 底层密钥对
func (s *KeypairSigner) Keypair() *keypair.Full {
	return s.kp
}

// RequestSignature 签名交易
func (s *KeypairSigner) RequestSignature(ctx context.Context, unsignedTxXDR, networkPassphrase, signerAddress string) (*SignResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 1. 参数验证
	if signerAddress != "" && signerAddress != s.kp.Address() {
		return nil, &SignError{Message: fmt.Sprintf("signer %s cannot sign for %s", s.kp.Address(), signerAddress)}
	}
	if networkPassphrase == "" {
		return nil, &SignError{Message: "network passphrase is required"}
	}

	// 2. 解码交易
	generic, err := txnbuild.TransactionFromXDR(unsignedTxXDR)
	if err != nil {
		return nil, &SignError{Message: "decode transaction", Err: err}
	}
	tx, ok := generic.Transaction()
	if !ok {
		return nil, &SignError{Message: "fee bump transactions are not supported"}
	}

	// 3. 签名并重新编码
	signed, err := tx.Sign(networkPassphrase, s.kp)
	if err != nil {
		return nil, &SignError{Message: "sign transaction", Err: err}
	}
	signedXDR, err := signed.Base64()
	if err != nil {
		return nil, &SignError{Message: "encode signed transaction", Err: err}
	}

	return &SignResult{SignedTxXDR: signedXDR}, nil
}

var _ Signer = (*KeypairSigner)(nil)
