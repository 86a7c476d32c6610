package dex

import (
	"fmt"
	"math/big"
)

// UnpackReserves extracts reserve0 and reserve1 from getReserves return values.
func UnpackReserves(values []interface{}) (*big.Int, *big.Int, error) {
	if len(values) < 2 {
		return nil, nil, fmt.Errorf("getReserves return size %d", len(values))
	}
	reserve0, err := asBigInt(values[0])
	if err != nil {
		return nil, nil, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := asBigInt(values[1])
	if err != nil {
		return nil, nil, fmt.Errorf("reserve1: %w", err)
	}
	return reserve0, reserve1, nil
}

// UnpackSupply extracts the LP token supply from totalSupply return values.
func UnpackSupply(values []interface{}) (*big.Int, error) {
	if len(values) != 1 {
		return nil, fmt.Errorf("totalSupply return size %d", len(values))
	}
	supply, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("totalSupply: %w", err)
	}
	return supply, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("nil int")
		}
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
