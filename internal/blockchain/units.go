package blockchain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ToDecimal converts a base-10 integer amount in token base units into whole tokens.
func ToDecimal(raw string, decimals int32) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return decimal.Zero, fmt.Errorf("invalid token amount %q", raw)
	}
	return decimal.NewFromBigInt(v, -decimals), nil
}

// HexToBigInt parses a 0x-prefixed quantity as returned by JSON-RPC.
func HexToBigInt(h string) (*big.Int, error) {
	h = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(h), "0x"), "0X")
	if h == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(h, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", h)
	}
	return v, nil
}
