package cli

import (
	"math/big"
	"testing"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizchain/client-sdk-go/services/contract"
)

func TestParseArg(t *testing.T) {
	account := keypair.MustRandom().Address()

	tests := []struct {
		raw      string
		wantType xdr.ScValType
		want     interface{}
	}{
		{"u32:5", xdr.ScValTypeScvU32, uint32(5)},
		{"i32:-5", xdr.ScValTypeScvI32, int32(-5)},
		{"u64:18446744073709551615", xdr.ScValTypeScvU64, uint64(18446744073709551615)},
		{"i64:-9", xdr.ScValTypeScvI64, int64(-9)},
		{"i128:-170141183460469231731687303715884105728", xdr.ScValTypeScvI128, nil},
		{"u128:42", xdr.ScValTypeScvU128, nil},
		{"bool:true", xdr.ScValTypeScvBool, true},
		{"sym:mint", xdr.ScValTypeScvSymbol, "mint"},
		{"str:hello: world", xdr.ScValTypeScvString, "hello: world"},
		{"addr:" + account, xdr.ScValTypeScvAddress, account},
		{"bytes:0xcafe", xdr.ScValTypeScvBytes, nil},
		{account, xdr.ScValTypeScvAddress, account},
		{"7", xdr.ScValTypeScvU32, uint32(7)},
		{"owner_of", xdr.ScValTypeScvSymbol, "owner_of"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			v, err := parseArg(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, v.Type)
			if tt.want != nil {
				native, err := contract.ScValToNative(v)
				require.NoError(t, err)
				assert.Equal(t, tt.want, native)
			}
		})
	}
}

func TestParseArg_BigInt(t *testing.T) {
	v, err := parseArg("i128:-170141183460469231731687303715884105728")
	require.NoError(t, err)
	native, err := contract.ScValToNative(v)
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("-170141183460469231731687303715884105728", 10)
	assert.Equal(t, 0, want.Cmp(native.(*big.Int)))
}

func TestParseArg_Invalid(t *testing.T) {
	for _, raw := range []string{
		"u32:-1",
		"u32:4294967296",
		"i64:abc",
		"u128:-1",
		"i128:1.5",
		"bool:maybe",
		"addr:GNOTANADDRESS",
		"bytes:zz",
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := parseArg(raw)
			assert.Error(t, err)
		})
	}
}

func TestParseArgs_StopsAtFirstError(t *testing.T) {
	_, err := parseArgs([]string{"u32:1", "u32:x", "sym:ok"})
	assert.ErrorContains(t, err, `"u32:x"`)

	vals, err := parseArgs(nil)
	require.NoError(t, err)
	assert.Empty(t, vals)
}

func TestPrintable(t *testing.T) {
	v := printable([]contract.MapEntry{{Key: uint32(1), Value: []byte{0xab}}})
	assert.Equal(t, []map[string]interface{}{{"key": uint32(1), "value": "ab"}}, v)

	assert.Equal(t, "12", printable(big.NewInt(12)))
	assert.Nil(t, printable(nil))
}
