package models

import (
	"fmt"
	"strings"
)

// Network is a supported USDT transfer standard.
type Network string

const (
	NetworkTRC20 Network = "trc20"
	NetworkERC20 Network = "erc20"
	NetworkBEP20 Network = "bep20"
)

// Networks lists every supported network in a stable order.
var Networks = []Network{NetworkTRC20, NetworkERC20, NetworkBEP20}

// ParseNetwork maps a case-insensitive tag onto a Network.
func ParseNetwork(tag string) (Network, error) {
	n := Network(strings.ToLower(strings.TrimSpace(tag)))
	if !n.Valid() {
		return "", fmt.Errorf("unsupported network %q", tag)
	}
	return n, nil
}

func (n Network) Valid() bool {
	switch n {
	case NetworkTRC20, NetworkERC20, NetworkBEP20:
		return true
	}
	return false
}

// IsEVM reports whether addresses on the network are hex and compared case-insensitively.
func (n Network) IsEVM() bool {
	return n == NetworkERC20 || n == NetworkBEP20
}

func (n Network) String() string {
	return string(n)
}

// PaymentKey builds the network-qualified idempotency key for a transaction hash.
// Hex hashes are case-insensitive on every supported chain, so the hash is lowercased.
func PaymentKey(network Network, txHash string) string {
	h := strings.ToLower(strings.TrimSpace(txHash))
	return string(network) + ":" + h
}
