package deployments

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EncodeConstructorArgs coerces loosely typed Go values to the constructor's
// ABI input types and packs them. It returns the packed bytes together with
// the coerced values.
func EncodeConstructorArgs(parsed abi.ABI, args []interface{}) ([]byte, []interface{}, error) {
	inputs := parsed.Constructor.Inputs
	if len(inputs) != len(args) {
		return nil, nil, fmt.Errorf("%w: constructor takes %d, got %d", ErrArgCount, len(inputs), len(args))
	}

	coerced := make([]interface{}, len(args))
	for i, input := range inputs {
		v, err := coerceArg(input.Type, args[i])
		if err != nil {
			name := input.Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			return nil, nil, fmt.Errorf("%w: arg %s (%s): %v", ErrInvalidArgument, name, input.Type.String(), err)
		}
		coerced[i] = v
	}

	packed, err := parsed.Pack("", coerced...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return packed, coerced, nil
}

func coerceArg(t abi.Type, v interface{}) (interface{}, error) {
	switch t.T {
	case abi.AddressTy:
		return toAddress(v)
	case abi.UintTy, abi.IntTy:
		return toInteger(t, v)
	case abi.BoolTy:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			return strconv.ParseBool(b)
		}
		return nil, fmt.Errorf("cannot use %T as bool", v)
	case abi.StringTy:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("cannot use %T as string", v)
	case abi.BytesTy:
		return toBytes(v)
	case abi.FixedBytesTy:
		return toFixedBytes(t, v)
	default:
		// Arrays, slices and tuples must already have the exact Go type.
		return v, nil
	}
}

// ParseAddress validates a hex address string. Mixed-case input must carry a
// valid EIP-55 checksum; all-lower or all-upper input is accepted as is.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q is not a hex address", s)
	}
	addr := common.HexToAddress(s)

	body := s
	if len(body) >= 2 && (body[:2] == "0x" || body[:2] == "0X") {
		body = body[2:]
	}
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && addr.Hex()[2:] != body {
		return common.Address{}, fmt.Errorf("bad address checksum %q", s)
	}
	return addr, nil
}

func toAddress(v interface{}) (common.Address, error) {
	switch a := v.(type) {
	case common.Address:
		return a, nil
	case *common.Address:
		if a == nil {
			return common.Address{}, fmt.Errorf("nil address")
		}
		return *a, nil
	case string:
		return ParseAddress(a)
	}
	return common.Address{}, fmt.Errorf("cannot use %T as address", v)
}

func toBigInt(v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, fmt.Errorf("nil integer")
		}
		return new(big.Int).Set(n), nil
	case big.Int:
		return new(big.Int).Set(&n), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int8:
		return big.NewInt(int64(n)), nil
	case int16:
		return big.NewInt(int64(n)), nil
	case int32:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case string:
		s := strings.TrimSpace(n)
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			return hexutil.DecodeBig(s)
		}
		b, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("%q is not an integer", n)
		}
		return b, nil
	}
	return nil, fmt.Errorf("cannot use %T as integer", v)
}

var bigIntType = reflect.TypeOf(&big.Int{})

func toInteger(t abi.Type, v interface{}) (interface{}, error) {
	n, err := toBigInt(v)
	if err != nil {
		return nil, err
	}

	if t.T == abi.UintTy {
		if n.Sign() < 0 {
			return nil, fmt.Errorf("negative value %s", n)
		}
		if n.BitLen() > t.Size {
			return nil, fmt.Errorf("value %s overflows uint%d", n, t.Size)
		}
	} else {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
			return nil, fmt.Errorf("value %s overflows int%d", n, t.Size)
		}
	}

	goType := t.GetType()
	if goType == bigIntType {
		return n, nil
	}
	out := reflect.New(goType).Elem()
	if t.T == abi.UintTy {
		out.SetUint(n.Uint64())
	} else {
		out.SetInt(n.Int64())
	}
	return out.Interface(), nil
}

func toBytes(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return hexutil.Decode(b)
	}
	return nil, fmt.Errorf("cannot use %T as bytes", v)
}

func toFixedBytes(t abi.Type, v interface{}) (interface{}, error) {
	var raw []byte
	switch b := v.(type) {
	case common.Hash:
		raw = b.Bytes()
	case []byte:
		raw = b
	case string:
		decoded, err := hexutil.Decode(b)
		if err != nil {
			return nil, err
		}
		raw = decoded
	default:
		if reflect.TypeOf(v) == t.GetType() {
			return v, nil
		}
		return nil, fmt.Errorf("cannot use %T as bytes%d", v, t.Size)
	}
	if len(raw) != t.Size {
		return nil, fmt.Errorf("expected %d bytes, got %d", t.Size, len(raw))
	}
	out := reflect.New(t.GetType()).Elem()
	reflect.Copy(out, reflect.ValueOf(raw))
	return out.Interface(), nil
}

// formatArg renders a coerced argument for deployment records.
func formatArg(v interface{}) string {
	switch a := v.(type) {
	case common.Address:
		return a.Hex()
	case *big.Int:
		return a.String()
	case []byte:
		return hexutil.Encode(a)
	case fmt.Stringer:
		return a.String()
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
		b := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(b), rv)
		return hexutil.Encode(b)
	}
	return fmt.Sprint(v)
}
