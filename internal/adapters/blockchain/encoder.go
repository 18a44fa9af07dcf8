package blockchain

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

var bigIntType = reflect.TypeOf(&big.Int{})

// Encoder packs step arguments against a contract ABI. Arguments come from
// YAML and ledger lookups, so each value is coerced to the Go type the ABI
// packer expects for its input.
type Encoder struct{}

// NewEncoder creates an ABI encoder
func NewEncoder() *Encoder {
	return &Encoder{}
}

// EncodeConstructor packs constructor arguments. The result is appended to
// the creation bytecode.
func (e *Encoder) EncodeConstructor(contractABI *abi.ABI, args []any) ([]byte, error) {
	values, err := coerceArgs("constructor", contractABI.Constructor.Inputs, args)
	if err != nil {
		return nil, err
	}
	return contractABI.Pack("", values...)
}

// EncodeCall packs a method call with its selector
func (e *Encoder) EncodeCall(contractABI *abi.ABI, method string, args []any) ([]byte, error) {
	m, ok := contractABI.Methods[method]
	if !ok {
		return nil, fmt.Errorf("method %s not found in ABI", method)
	}
	values, err := coerceArgs(method, m.Inputs, args)
	if err != nil {
		return nil, err
	}
	return contractABI.Pack(method, values...)
}

func coerceArgs(name string, inputs abi.Arguments, args []any) ([]any, error) {
	if len(args) != len(inputs) {
		return nil, fmt.Errorf("%s expects %d arguments, got %d", name, len(inputs), len(args))
	}
	out := make([]any, len(args))
	for i, input := range inputs {
		v, err := coerce(input.Type, args[i])
		if err != nil {
			label := input.Name
			if label == "" {
				label = fmt.Sprintf("#%d", i)
			}
			return nil, fmt.Errorf("%s argument %s (%s): %w", name, label, input.Type.String(), err)
		}
		out[i] = v
	}
	return out, nil
}

func coerce(t abi.Type, v any) (any, error) {
	switch t.T {
	case abi.AddressTy:
		return toAddress(v)
	case abi.BoolTy:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			switch strings.ToLower(b) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}
		return nil, fmt.Errorf("expected a bool, got %v", v)
	case abi.StringTy:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", v)
		}
		return s, nil
	case abi.IntTy, abi.UintTy:
		return toInteger(t, v)
	case abi.BytesTy:
		return toBytes(v)
	case abi.FixedBytesTy:
		return toFixedBytes(t, v)
	case abi.SliceTy, abi.ArrayTy:
		return toList(t, v)
	default:
		return nil, fmt.Errorf("unsupported ABI type %s", t.String())
	}
}

func toAddress(v any) (common.Address, error) {
	switch a := v.(type) {
	case common.Address:
		return a, nil
	case string:
		if !common.IsHexAddress(a) {
			return common.Address{}, fmt.Errorf("%q: %w", a, domain.ErrInvalidAddress)
		}
		return common.HexToAddress(a), nil
	}
	return common.Address{}, fmt.Errorf("%v: %w", v, domain.ErrInvalidAddress)
}

func toBigInt(v any) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		return new(big.Int).Set(n), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case string:
		s := strings.ReplaceAll(n, "_", "")
		out, ok := new(big.Int).SetString(s, 0)
		if !ok {
			return nil, fmt.Errorf("%q is not an integer", n)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected an integer, got %T", v)
}

func toInteger(t abi.Type, v any) (any, error) {
	n, err := toBigInt(v)
	if err != nil {
		return nil, err
	}
	if t.T == abi.UintTy {
		if n.Sign() < 0 || n.BitLen() > t.Size {
			return nil, fmt.Errorf("%s out of range for uint%d", n, t.Size)
		}
	} else {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
			return nil, fmt.Errorf("%s out of range for int%d", n, t.Size)
		}
	}

	// sized Go integers for 8, 16, 32 and 64 bits, *big.Int otherwise
	goType := t.GetType()
	if goType == bigIntType {
		return n, nil
	}
	if t.T == abi.UintTy {
		return reflect.ValueOf(n.Uint64()).Convert(goType).Interface(), nil
	}
	return reflect.ValueOf(n.Int64()).Convert(goType).Interface(), nil
}

func toBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		out, err := hexutil.Decode(b)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", b, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected hex bytes, got %T", v)
}

func toFixedBytes(t abi.Type, v any) (any, error) {
	var raw []byte
	switch b := v.(type) {
	case common.Hash:
		raw = b.Bytes()
	default:
		decoded, err := toBytes(v)
		if err != nil {
			return nil, err
		}
		raw = decoded
	}
	if len(raw) != t.Size {
		return nil, fmt.Errorf("expected %d bytes, got %d", t.Size, len(raw))
	}
	out := reflect.New(t.GetType()).Elem()
	reflect.Copy(out, reflect.ValueOf(raw))
	return out.Interface(), nil
}

func toList(t abi.Type, v any) (any, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}

	var out reflect.Value
	if t.T == abi.ArrayTy {
		if len(items) != t.Size {
			return nil, fmt.Errorf("expected %d elements, got %d", t.Size, len(items))
		}
		out = reflect.New(t.GetType()).Elem()
	} else {
		out = reflect.MakeSlice(t.GetType(), len(items), len(items))
	}
	for i, item := range items {
		elem, err := coerce(*t.Elem, item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out.Index(i).Set(reflect.ValueOf(elem))
	}
	return out.Interface(), nil
}

var _ usecase.ABIEncoder = (*Encoder)(nil)
