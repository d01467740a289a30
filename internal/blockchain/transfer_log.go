package blockchain

import (
	"fmt"
	"math/big"
	"strings"
)

// TransferTopic is keccak256("Transfer(address,address,uint256)").
const TransferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// Log is an event log as returned inside an eth_getTransactionReceipt result.
type Log struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// Transfer is a decoded ERC-20 style Transfer event.
type Transfer struct {
	Contract string
	From     string
	To       string
	Value    *big.Int
}

// DecodeTransferLog decodes l if it is a Transfer event. It returns nil for other events.
// Addresses are returned lowercased with a 0x prefix.
func DecodeTransferLog(l Log) (*Transfer, error) {
	if len(l.Topics) != 3 || !strings.EqualFold(l.Topics[0], TransferTopic) {
		return nil, nil
	}

	from, err := topicAddress(l.Topics[1])
	if err != nil {
		return nil, fmt.Errorf("failed to decode sender: %w", err)
	}
	to, err := topicAddress(l.Topics[2])
	if err != nil {
		return nil, fmt.Errorf("failed to decode receiver: %w", err)
	}
	value, err := HexToBigInt(l.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}

	return &Transfer{
		Contract: strings.ToLower(l.Address),
		From:     from,
		To:       to,
		Value:    value,
	}, nil
}

// topicAddress takes the last 20 bytes of a 32 byte indexed topic.
func topicAddress(topic string) (string, error) {
	t := strings.TrimPrefix(strings.ToLower(topic), "0x")
	if len(t) != 64 {
		return "", fmt.Errorf("topic has %d hex characters, expected 64", len(t))
	}
	return "0x" + t[24:], nil
}
