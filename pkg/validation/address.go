package validation

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// base58Alphabet is the Bitcoin alphabet used by TRON addresses.
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// ValidateEVMAddress validates an Ethereum/BSC address (0x + 40 hex characters).
func ValidateEVMAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return fmt.Errorf("address must start with 0x")
	}
	normalized := addr[2:]
	if len(normalized) != 40 {
		return fmt.Errorf("invalid address length: expected 40 characters (without 0x), got %d", len(normalized))
	}
	if _, err := hex.DecodeString(normalized); err != nil {
		return fmt.Errorf("invalid hex address: %w", err)
	}
	return nil
}

// ValidateTronAddress validates the shape of a base58 TRON address (T..., 34 characters).
// The checksum is not verified; explorers reject unknown addresses anyway.
func ValidateTronAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if len(addr) != 34 {
		return fmt.Errorf("invalid address length: expected 34 characters, got %d", len(addr))
	}
	if addr[0] != 'T' {
		return fmt.Errorf("TRON address must start with T")
	}
	for i, r := range addr {
		if !strings.ContainsRune(base58Alphabet, r) {
			return fmt.Errorf("invalid base58 character %q at position %d", r, i)
		}
	}
	return nil
}

// NormalizeEVMAddress converts an address to lowercase with a 0x prefix.
func NormalizeEVMAddress(addr string) string {
	addr = strings.TrimPrefix(addr, "0x")
	addr = strings.TrimPrefix(addr, "0X")
	return "0x" + strings.ToLower(addr)
}

// EqualEVMAddress compares two EVM addresses case-insensitively.
func EqualEVMAddress(a, b string) bool {
	return NormalizeEVMAddress(a) == NormalizeEVMAddress(b)
}
