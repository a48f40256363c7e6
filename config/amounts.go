package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var unitScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// ParseUnits converts a non-negative decimal string such as "12.5" into base
// units with 18 decimals. More than 18 fractional digits is an error.
func ParseUnits(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, value)
	}
	scaled := rat.Mul(rat, new(big.Rat).SetInt(unitScale))
	if !scaled.IsInt() {
		return nil, fmt.Errorf("%w: %q has more than 18 decimals", ErrInvalidAmount, value)
	}
	return new(big.Int).Set(scaled.Num()), nil
}

// ParseAddress decodes a 0x-prefixed 20-byte hex address.
func ParseAddress(value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "0x") || !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("%w: %q", ErrInvalidAddress, value)
	}
	addr := common.HexToAddress(trimmed)
	if addr == (common.Address{}) {
		return [20]byte{}, fmt.Errorf("%w: zero address", ErrInvalidAddress)
	}
	return [20]byte(addr), nil
}
