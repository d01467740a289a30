package blockchain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDecimal(t *testing.T) {
	tests := []struct {
		raw      string
		decimals int32
		want     string
	}{
		{"100000000", 6, "100"},
		{"99990000", 6, "99.99"},
		{"100000000000000000000", 18, "100"},
		{"1", 18, "0.000000000000000001"},
		{"0", 6, "0"},
	}
	for _, tt := range tests {
		got, err := ToDecimal(tt.raw, tt.decimals)
		require.NoError(t, err, tt.raw)
		assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "%s/%d = %s", tt.raw, tt.decimals, got)
	}

	_, err := ToDecimal("12abc", 6)
	assert.Error(t, err)
}

func TestHexToBigInt(t *testing.T) {
	v, err := HexToBigInt("0x5f5e100")
	require.NoError(t, err)
	assert.Equal(t, int64(100000000), v.Int64())

	v, err = HexToBigInt("0x")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v.Int64())

	_, err = HexToBigInt("0xzz")
	assert.Error(t, err)
}

func TestDecodeTransferLog(t *testing.T) {
	l := Log{
		Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7",
		Topics: []string{
			TransferTopic,
			"0x000000000000000000000000111111111111111111111111111111111111aaaa",
			"0x000000000000000000000000ABCDEF000000000000000000000000000000BBBB",
		},
		Data: "0x0000000000000000000000000000000000000000000000000000000005f5e100",
	}

	tr, err := DecodeTransferLog(l)
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, "0xdac17f958d2ee523a2206206994597c13d831ec7", tr.Contract)
	assert.Equal(t, "0x111111111111111111111111111111111111aaaa", tr.From)
	assert.Equal(t, "0xabcdef000000000000000000000000000000bbbb", tr.To)
	assert.Equal(t, int64(100000000), tr.Value.Int64())
}

func TestDecodeTransferLogIgnoresOtherEvents(t *testing.T) {
	tr, err := DecodeTransferLog(Log{Topics: []string{"0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925", "0x1", "0x2"}})
	assert.NoError(t, err)
	assert.Nil(t, tr)

	_, err = DecodeTransferLog(Log{Topics: []string{TransferTopic, "0x01", "0x02"}})
	assert.Error(t, err)
}
