package contract

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"
)

// MapEntry 非字符串键的 map 条目（保持合约返回的顺序）
type MapEntry struct {
	Key   interface{}
	Value interface{}
}

var (
	two64   = new(big.Int).Lsh(big.NewInt(1), 64)
	two128  = new(big.Int).Lsh(big.NewInt(1), 128)
	maxI128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minI128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	mask64  = new(big.Int).Sub(two64, big.NewInt(1))
)

// ScValToNative 将合约值解码为 Go 原生值
//
// **说明**：
// - void → nil，bool → bool，u32/i32/u64/i64 → 对应整数类型
// - u128/i128/u256/i256 → *big.Int
// - string/symbol → string，bytes → []byte，address → G.../C... strkey
// - vec → []interface{}，map → map[string]interface{}（键均为字符串时）或 []MapEntry
// - timepoint/duration → uint64
func ScValToNative(v xdr.ScVal) (interface{}, error) {
	switch v.Type {
	case xdr.ScValTypeScvVoid:
		return nil, nil
	case xdr.ScValTypeScvBool:
		return *v.B, nil
	case xdr.ScValTypeScvU32:
		return uint32(*v.U32), nil
	case xdr.ScValTypeScvI32:
		return int32(*v.I32), nil
	case xdr.ScValTypeScvU64:
		return uint64(*v.U64), nil
	case xdr.ScValTypeScvI64:
		return int64(*v.I64), nil
	case xdr.ScValTypeScvTimepoint:
		return uint64(*v.Timepoint), nil
	case xdr.ScValTypeScvDuration:
		return uint64(*v.Duration), nil
	case xdr.ScValTypeScvU128:
		return joinWords(false, uint64(v.U128.Hi), uint64(v.U128.Lo)), nil
	case xdr.ScValTypeScvI128:
		return joinWords(true, uint64(v.I128.Hi), uint64(v.I128.Lo)), nil
	case xdr.ScValTypeScvU256:
		p := v.U256
		return joinWords(false, uint64(p.HiHi), uint64(p.HiLo), uint64(p.LoHi), uint64(p.LoLo)), nil
	case xdr.ScValTypeScvI256:
		p := v.I256
		return joinWords(true, uint64(p.HiHi), uint64(p.HiLo), uint64(p.LoHi), uint64(p.LoLo)), nil
	case xdr.ScValTypeScvBytes:
		b := make([]byte, len(*v.Bytes))
		copy(b, *v.Bytes)
		return b, nil
	case xdr.ScValTypeScvString:
		return string(*v.Str), nil
	case xdr.ScValTypeScvSymbol:
		return string(*v.Sym), nil
	case xdr.ScValTypeScvAddress:
		return AddressToString(*v.Address)
	case xdr.ScValTypeScvVec:
		if v.Vec == nil || *v.Vec == nil {
			return []interface{}{}, nil
		}
		items := **v.Vec
		out := make([]interface{}, 0, len(items))
		for i, item := range items {
			native, err := ScValToNative(item)
			if err != nil {
				return nil, fmt.Errorf("vec[%d]: %w", i, err)
			}
			out = append(out, native)
		}
		return out, nil
	case xdr.ScValTypeScvMap:
		if v.Map == nil || *v.Map == nil {
			return map[string]interface{}{}, nil
		}
		return mapToNative(**v.Map)
	default:
		return nil, fmt.Errorf("unsupported contract value type %s", v.Type)
	}
}

func mapToNative(m xdr.ScMap) (interface{}, error) {
	entries := make([]MapEntry, 0, len(m))
	stringKeys := true
	for _, e := range m {
		k, err := ScValToNative(e.Key)
		if err != nil {
			return nil, fmt.Errorf("map key: %w", err)
		}
		val, err := ScValToNative(e.Val)
		if err != nil {
			return nil, fmt.Errorf("map value: %w", err)
		}
		if _, ok := k.(string); !ok {
			stringKeys = false
		}
		entries = append(entries, MapEntry{Key: k, Value: val})
	}
	if !stringKeys {
		return entries, nil
	}
	out := make(map[string]interface{}, len(entries))
	for _, e := range entries {
		out[e.Key.(string)] = e.Value
	}
	return out, nil
}

// joinWords 将高位在前的 64 位字拼接为整数（signed 时最高字按有符号解释）
func joinWords(signed bool, words ...uint64) *big.Int {
	out := new(big.Int)
	for _, w := range words {
		out.Lsh(out, 64)
		out.Or(out, new(big.Int).SetUint64(w))
	}
	if signed && len(words) > 0 && words[0]&(1<<63) != 0 {
		out.Sub(out, new(big.Int).Lsh(big.NewInt(1), uint(64*len(words))))
	}
	return out
}

// AddressToString 合约地址值转 strkey
func AddressToString(addr xdr.ScAddress) (string, error) {
	switch addr.Type {
	case xdr.ScAddressTypeScAddressTypeAccount:
		if addr.AccountId == nil {
			return "", fmt.Errorf("account address is empty")
		}
		return addr.AccountId.Address(), nil
	case xdr.ScAddressTypeScAddressTypeContract:
		if addr.ContractId == nil {
			return "", fmt.Errorf("contract address is empty")
		}
		id := *addr.ContractId
		return strkey.Encode(strkey.VersionByteContract, id[:])
	default:
		return "", fmt.Errorf("unsupported address type %s", addr.Type)
	}
}

// ParseAddress 解析 G...（账户）或 C...（合约）地址
func ParseAddress(address string) (xdr.ScAddress, error) {
	switch {
	case strkey.IsValidEd25519PublicKey(address):
		accountID, err := xdr.AddressToAccountId(address)
		if err != nil {
			return xdr.ScAddress{}, err
		}
		return xdr.ScAddress{
			Type:      xdr.ScAddressTypeScAddressTypeAccount,
			AccountId: &accountID,
		}, nil
	case IsContractAddress(address):
		raw, err := strkey.Decode(strkey.VersionByteContract, address)
		if err != nil {
			return xdr.ScAddress{}, err
		}
		var id xdr.ContractId
		copy(id[:], raw)
		return xdr.ScAddress{
			Type:       xdr.ScAddressTypeScAddressTypeContract,
			ContractId: &id,
		}, nil
	default:
		return xdr.ScAddress{}, fmt.Errorf("invalid address %q", address)
	}
}

// IsContractAddress 是否为合法的 C... 合约地址
func IsContractAddress(address string) bool {
	_, err := strkey.Decode(strkey.VersionByteContract, address)
	return err == nil
}

// Address 地址参数
func Address(address string) (xdr.ScVal, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return xdr.ScVal{}, err
	}
	return xdr.ScVal{Type: xdr.ScValTypeScvAddress, Address: &addr}, nil
}

// Symbol 符号参数
func Symbol(s string) xdr.ScVal {
	sym := xdr.ScSymbol(s)
	return xdr.ScVal{Type: xdr.ScValTypeScvSymbol, Sym: &sym}
}

// String 字符串参数
func String(s string) xdr.ScVal {
	str := xdr.ScString(s)
	return xdr.ScVal{Type: xdr.ScValTypeScvString, Str: &str}
}

func U32(v uint32) xdr.ScVal {
	u := xdr.Uint32(v)
	return xdr.ScVal{Type: xdr.ScValTypeScvU32, U32: &u}
}

func I32(v int32) xdr.ScVal {
	i := xdr.Int32(v)
	return xdr.ScVal{Type: xdr.ScValTypeScvI32, I32: &i}
}

func U64(v uint64) xdr.ScVal {
	u := xdr.Uint64(v)
	return xdr.ScVal{Type: xdr.ScValTypeScvU64, U64: &u}
}

func I64(v int64) xdr.ScVal {
	i := xdr.Int64(v)
	return xdr.ScVal{Type: xdr.ScValTypeScvI64, I64: &i}
}

func Bool(v bool) xdr.ScVal {
	return xdr.ScVal{Type: xdr.ScValTypeScvBool, B: &v}
}

// Bytes 字节参数（会复制输入）
func Bytes(b []byte) xdr.ScVal {
	cp := make(xdr.ScBytes, len(b))
	copy(cp, b)
	return xdr.ScVal{Type: xdr.ScValTypeScvBytes, Bytes: &cp}
}

// Void 空值
func Void() xdr.ScVal {
	return xdr.ScVal{Type: xdr.ScValTypeScvVoid}
}

// I128 有符号 128 位整数参数（超出范围返回错误）
func I128(v *big.Int) (xdr.ScVal, error) {
	if v == nil {
		return xdr.ScVal{}, fmt.Errorf("i128 value is nil")
	}
	if v.Cmp(minI128) < 0 || v.Cmp(maxI128) > 0 {
		return xdr.ScVal{}, fmt.Errorf("value %s out of i128 range", v)
	}
	u := new(big.Int).Set(v)
	if u.Sign() < 0 {
		u.Add(u, two128)
	}
	hi := new(big.Int).Rsh(u, 64).Uint64()
	lo := new(big.Int).And(u, mask64).Uint64()
	parts := xdr.Int128Parts{Hi: xdr.Int64(int64(hi)), Lo: xdr.Uint64(lo)}
	return xdr.ScVal{Type: xdr.ScValTypeScvI128, I128: &parts}, nil
}

// I128FromInt64 小整数的 i128 参数（如 token id）
func I128FromInt64(v int64) xdr.ScVal {
	val, _ := I128(big.NewInt(v))
	return val
}

// U128 无符号 128 位整数参数
func U128(v *big.Int) (xdr.ScVal, error) {
	if v == nil {
		return xdr.ScVal{}, fmt.Errorf("u128 value is nil")
	}
	if v.Sign() < 0 || v.Cmp(two128) >= 0 {
		return xdr.ScVal{}, fmt.Errorf("value %s out of u128 range", v)
	}
	hi := new(big.Int).Rsh(v, 64).Uint64()
	lo := new(big.Int).And(v, mask64).Uint64()
	parts := xdr.UInt128Parts{Hi: xdr.Uint64(hi), Lo: xdr.Uint64(lo)}
	return xdr.ScVal{Type: xdr.ScValTypeScvU128, U128: &parts}, nil
}

// Vec 列表参数
func Vec(items ...xdr.ScVal) xdr.ScVal {
	vec := make(xdr.ScVec, len(items))
	copy(vec, items)
	pv := &vec
	return xdr.ScVal{Type: xdr.ScValTypeScvVec, Vec: &pv}
}

// NativeToScVal 将常见 Go 值编码为合约值
//
// 整数默认编码：int/int64 → i64，int32 → i32，uint32 → u32，uint/uint64 → u64，*big.Int → i128。
// 字符串编码为 string；需要 symbol 或 address 时请显式使用 Symbol / Address。
func NativeToScVal(v interface{}) (xdr.ScVal, error) {
	switch val := v.(type) {
	case nil:
		return Void(), nil
	case xdr.ScVal:
		return val, nil
	case bool:
		return Bool(val), nil
	case int:
		return I64(int64(val)), nil
	case int64:
		return I64(val), nil
	case int32:
		return I32(val), nil
	case uint32:
		return U32(val), nil
	case uint:
		return U64(uint64(val)), nil
	case uint64:
		return U64(val), nil
	case *big.Int:
		return I128(val)
	case string:
		return String(val), nil
	case []byte:
		return Bytes(val), nil
	case []interface{}:
		items := make([]xdr.ScVal, 0, len(val))
		for i, item := range val {
			sv, err := NativeToScVal(item)
			if err != nil {
				return xdr.ScVal{}, fmt.Errorf("vec[%d]: %w", i, err)
			}
			items = append(items, sv)
		}
		return Vec(items...), nil
	case map[string]interface{}:
		// 合约 map 要求键有序
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		entries := make(xdr.ScMap, 0, len(keys))
		for _, k := range keys {
			sv, err := NativeToScVal(val[k])
			if err != nil {
				return xdr.ScVal{}, fmt.Errorf("map[%s]: %w", k, err)
			}
			entries = append(entries, xdr.ScMapEntry{Key: Symbol(k), Val: sv})
		}
		pm := &entries
		return xdr.ScVal{Type: xdr.ScValTypeScvMap, Map: &pm}, nil
	default:
		return xdr.ScVal{}, fmt.Errorf("unsupported native type %T", v)
	}
}
