package contract

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/mintdeploy/internal/chains/evm"
)

var bigIntType = reflect.TypeOf((*big.Int)(nil))

// convert maps a configuration value (as decoded from TOML, YAML or JSON) onto
// the Go representation of t.
func convert(t abi.Type, v any) (any, error) {
	if v == nil {
		return nil, errors.New("value is null")
	}

	switch t.T {
	case abi.StringTy:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil

	case abi.BoolTy:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, fmt.Errorf("expected bool, got %q", b)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("expected bool, got %T", v)

	case abi.AddressTy:
		switch a := v.(type) {
		case common.Address:
			return a, nil
		case string:
			if !common.IsHexAddress(a) {
				return nil, fmt.Errorf("invalid address %q", a)
			}
			return common.HexToAddress(a), nil
		}
		return nil, fmt.Errorf("expected address string, got %T", v)

	case abi.IntTy, abi.UintTy:
		return convertInt(t, v)

	case abi.BytesTy:
		return toBytes(v)

	case abi.FixedBytesTy:
		b, err := toBytes(v)
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", t.Size, len(b))
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil

	case abi.SliceTy, abi.ArrayTy:
		return convertList(t, v)

	default:
		return nil, fmt.Errorf("parameter type %s is not supported", t.String())
	}
}

func convertList(t abi.Type, v any) (any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected list, got %T", v)
	}
	if t.T == abi.ArrayTy && rv.Len() != t.Size {
		return nil, fmt.Errorf("expected %d elements, got %d", t.Size, rv.Len())
	}

	var out reflect.Value
	if t.T == abi.SliceTy {
		out = reflect.MakeSlice(t.GetType(), rv.Len(), rv.Len())
	} else {
		out = reflect.New(t.GetType()).Elem()
	}
	for i := 0; i < rv.Len(); i++ {
		elem, err := convert(*t.Elem, rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out.Index(i).Set(reflect.ValueOf(elem))
	}
	return out.Interface(), nil
}

func convertInt(t abi.Type, v any) (any, error) {
	n, err := toBigInt(v)
	if err != nil {
		return nil, err
	}

	var lo, hi *big.Int
	if t.T == abi.UintTy {
		lo = big.NewInt(0)
		hi = new(big.Int).Lsh(big.NewInt(1), uint(t.Size))
	} else {
		hi = new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		lo = new(big.Int).Neg(hi)
	}
	if n.Cmp(lo) < 0 || n.Cmp(hi) >= 0 {
		return nil, fmt.Errorf("%s out of range for %s", n.String(), t.String())
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

func toBigInt(v any) (*big.Int, error) {
	switch n := v.(type) {
	case int:
		return big.NewInt(int64(n)), nil
	case int32:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("expected integer, got %v", n)
		}
		if math.Abs(n) > 1<<53 {
			return nil, fmt.Errorf("%v loses precision as a float; quote it as a string", n)
		}
		return big.NewInt(int64(n)), nil
	case *big.Int:
		return new(big.Int).Set(n), nil
	case string:
		s := strings.TrimSpace(n)
		parsed, ok := new(big.Int).SetString(s, 0)
		if !ok {
			return nil, fmt.Errorf("expected integer, got %q", n)
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("expected integer, got %T", v)
}

func toBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		if !strings.HasPrefix(b, "0x") {
			return nil, fmt.Errorf("expected 0x-prefixed hex, got %q", b)
		}
		return evm.DecodeHex(b)
	}
	return nil, fmt.Errorf("expected hex string, got %T", v)
}
