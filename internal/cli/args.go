package cli

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/stellar/go/xdr"

	"github.com/quizchain/client-sdk-go/services/contract"
)

// parseArg 解析类型前缀参数
//
// 支持：u32: i32: u64: i64: u128: i128: bool: sym: str: addr: bytes:(hex)
// 没有前缀时：G/C 地址按 addr，整数按 u32，其余按 sym。
func parseArg(raw string) (xdr.ScVal, error) {
	kind, value, ok := strings.Cut(raw, ":")
	if !ok {
		return inferArg(raw)
	}

	switch kind {
	case "u32":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return xdr.ScVal{}, argError(raw, err)
		}
		return contract.U32(uint32(n)), nil
	case "i32":
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return xdr.ScVal{}, argError(raw, err)
		}
		return contract.I32(int32(n)), nil
	case "u64":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return xdr.ScVal{}, argError(raw, err)
		}
		return contract.U64(n), nil
	case "i64":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return xdr.ScVal{}, argError(raw, err)
		}
		return contract.I64(n), nil
	case "u128", "i128":
		n, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return xdr.ScVal{}, argError(raw, errors.New("not an integer"))
		}
		if kind == "u128" {
			return contract.U128(n)
		}
		return contract.I128(n)
	case "bool":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return xdr.ScVal{}, argError(raw, err)
		}
		return contract.Bool(b), nil
	case "sym":
		return contract.Symbol(value), nil
	case "str":
		return contract.String(value), nil
	case "addr":
		return contract.Address(value)
	case "bytes":
		b, err := decodeHex(value)
		if err != nil {
			return xdr.ScVal{}, argError(raw, err)
		}
		return contract.Bytes(b), nil
	}
	return inferArg(raw)
}

func inferArg(raw string) (xdr.ScVal, error) {
	if addr, err := contract.Address(raw); err == nil {
		return addr, nil
	}
	if n, err := strconv.ParseUint(raw, 10, 32); err == nil {
		return contract.U32(uint32(n)), nil
	}
	return contract.Symbol(raw), nil
}

func parseArgs(raw []string) ([]xdr.ScVal, error) {
	out := make([]xdr.ScVal, 0, len(raw))
	for _, r := range raw {
		v, err := parseArg(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

func argError(raw string, err error) error {
	return fmt.Errorf("invalid argument %q: %w", raw, err)
}
