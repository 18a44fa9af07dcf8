package blockchain

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
)

const encoderABI = `[
  {"type":"constructor","inputs":[{"name":"controller","type":"address"},{"name":"vault","type":"address"}]},
  {"type":"function","name":"setTank","inputs":[{"name":"tank","type":"address"}],"outputs":[]},
  {"type":"function","name":"setRewards","inputs":[{"name":"ppm","type":"uint32"},{"name":"amount","type":"uint256"},{"name":"enabled","type":"bool"}],"outputs":[]},
  {"type":"function","name":"setDelta","inputs":[{"name":"delta","type":"int8"}],"outputs":[]},
  {"type":"function","name":"setPair","inputs":[{"name":"tokens","type":"address[2]"},{"name":"fees","type":"uint24[]"}],"outputs":[]},
  {"type":"function","name":"grantRole","inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[]},
  {"type":"function","name":"postUpgrade","inputs":[{"name":"data","type":"bytes"},{"name":"label","type":"string"}],"outputs":[]}
]`

var (
	controllerAddr = common.HexToAddress("0xC537e898CD774e2dCBa3B14Ea6f34C93d5eA45e1")
	vaultAddr      = common.HexToAddress("0x60917e542aDdd13bfd1a7f81cD654758052dAdC4")
)

func parseTestABI(t *testing.T) *abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(encoderABI))
	require.NoError(t, err)
	return &parsed
}

func TestEncoderEncodeConstructor(t *testing.T) {
	contractABI := parseTestABI(t)
	enc := NewEncoder()

	got, err := enc.EncodeConstructor(contractABI, []any{controllerAddr.Hex(), vaultAddr})
	require.NoError(t, err)

	want, err := contractABI.Pack("", controllerAddr, vaultAddr)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEncoderEncodeCall(t *testing.T) {
	contractABI := parseTestABI(t)
	enc := NewEncoder()

	t.Run("integers from text", func(t *testing.T) {
		got, err := enc.EncodeCall(contractABI, "setRewards", []any{"10000", "115792089237316195423570985008687907853269984665640564039457584007913129639935", "true"})
		require.NoError(t, err)

		max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
		want, err := contractABI.Pack("setRewards", uint32(10000), max, true)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("hex integer", func(t *testing.T) {
		got, err := enc.EncodeCall(contractABI, "setRewards", []any{"0x10", 5, false})
		require.NoError(t, err)
		want, err := contractABI.Pack("setRewards", uint32(16), big.NewInt(5), false)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("signed integer", func(t *testing.T) {
		got, err := enc.EncodeCall(contractABI, "setDelta", []any{"-128"})
		require.NoError(t, err)
		want, err := contractABI.Pack("setDelta", int8(-128))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("fixed array and slice", func(t *testing.T) {
		got, err := enc.EncodeCall(contractABI, "setPair", []any{
			[]any{controllerAddr.Hex(), vaultAddr.Hex()},
			[]any{"100", "3000"},
		})
		require.NoError(t, err)
		want, err := contractABI.Pack("setPair", [2]common.Address{controllerAddr, vaultAddr}, []*big.Int{big.NewInt(100), big.NewInt(3000)})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("bytes32 from hash and hex", func(t *testing.T) {
		role := common.HexToHash("0x01")
		fromHash, err := enc.EncodeCall(contractABI, "grantRole", []any{role, vaultAddr})
		require.NoError(t, err)
		fromHex, err := enc.EncodeCall(contractABI, "grantRole", []any{role.Hex(), vaultAddr.Hex()})
		require.NoError(t, err)
		assert.Equal(t, fromHash, fromHex)
	})

	t.Run("dynamic bytes and string", func(t *testing.T) {
		got, err := enc.EncodeCall(contractABI, "postUpgrade", []any{"0x", "v2"})
		require.NoError(t, err)
		want, err := contractABI.Pack("postUpgrade", []byte{}, "v2")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})
}

func TestEncoderErrors(t *testing.T) {
	contractABI := parseTestABI(t)
	enc := NewEncoder()

	tests := []struct {
		name    string
		method  string
		args    []any
		wantErr string
	}{
		{"unknown method", "burn", nil, "method burn not found"},
		{"wrong arity", "setTank", []any{}, "expects 1 arguments, got 0"},
		{"bad address", "setTank", []any{"0x1234"}, "invalid address"},
		{"uint overflow", "setRewards", []any{"4294967296", "1", true}, "out of range for uint32"},
		{"negative uint", "setRewards", []any{"-1", "1", true}, "out of range for uint32"},
		{"int underflow", "setDelta", []any{"-129"}, "out of range for int8"},
		{"not an integer", "setDelta", []any{"ten"}, "is not an integer"},
		{"not a bool", "setRewards", []any{"1", "1", "yes"}, "expected a bool"},
		{"short bytes32", "grantRole", []any{"0x01", vaultAddr}, "expected 32 bytes"},
		{"array length", "setPair", []any{[]any{vaultAddr.Hex()}, []any{}}, "expected 2 elements"},
		{"list expected", "setPair", []any{"x", []any{}}, "expected a list"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.EncodeCall(contractABI, tt.method, tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("invalid address is typed", func(t *testing.T) {
		_, err := enc.EncodeCall(contractABI, "setTank", []any{"@Unresolved"})
		assert.ErrorIs(t, err, domain.ErrInvalidAddress)
	})
}
