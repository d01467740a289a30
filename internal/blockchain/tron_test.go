package blockchain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/pactum/internal/explorer"
	"github.com/core-coin/pactum/internal/models"
	"github.com/core-coin/pactum/pkg/logger"
)

const (
	tronDeposit  = "TNPeeaaFB7K9cmo4uQpcU32zGK8G1NYqeL"
	tronContract = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTronVerifier(t *testing.T, handler http.HandlerFunc) *TronVerifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := explorer.NewClient(explorer.Config{Name: "tronscan", BaseURL: srv.URL, Timeout: time.Second}, logger.NewNop())
	v := NewTronVerifier(client, TokenConfig{
		Contract:         tronContract,
		Decimals:         6,
		MinConfirmations: 1,
		FreshnessWindow:  10 * time.Minute,
		PageSize:         50,
	}, logger.NewNop())
	v.now = func() time.Time { return testNow }
	return v
}

func tronTxJSON(to, amount, contractRet string, confirmed bool) string {
	return fmt.Sprintf(`{
		"hash": "abc123",
		"timestamp": %d,
		"confirmed": %t,
		"contractRet": %q,
		"confirmations": 25,
		"trc20TransferInfo": [{
			"from_address": "TPayer1111111111111111111111111111",
			"to_address": %q,
			"amount_str": %q,
			"decimals": 6,
			"contract_address": %q
		}]
	}`, testNow.Add(-time.Hour).UnixMilli(), confirmed, contractRet, to, amount, tronContract)
}

func TestTronVerifyTransactionAmountBoundary(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		ok     bool
	}{
		{"exact amount", "100000000", true},
		{"more than expected", "150000000", true},
		{"one cent short", "99990000", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTronVerifier(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/transaction-info", r.URL.Path)
				assert.Equal(t, "abc123", r.URL.Query().Get("hash"))
				_, _ = w.Write([]byte(tronTxJSON(tronDeposit, tt.amount, "SUCCESS", true)))
			})

			res := v.Verify(context.Background(), tronDeposit, decimal.NewFromInt(100), strPtr("abc123"))
			assert.Equal(t, tt.ok, res.Success)
			if tt.ok {
				assert.Equal(t, "abc123", res.TransactionHash)
				assert.Equal(t, int64(25), res.Confirmations)
				assert.Equal(t, models.MethodTransactionID, res.Method)
				assert.NotEmpty(t, res.Raw)
			} else {
				assert.True(t, errors.Is(res.Error, &models.Error{Code: models.CodeVerificationNotFound, Reason: models.ReasonInsufficientAmount}))
			}
		})
	}
}

func TestTronVerifyTransactionFailures(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   models.ErrorCode
		reason models.Reason
	}{
		{"unknown hash", `{}`, http.StatusOK, models.CodeVerificationNotFound, models.ReasonNotFound},
		{"wrong destination", tronTxJSON("TOther111111111111111111111111111", "100000000", "SUCCESS", true), http.StatusOK, models.CodeVerificationNotFound, models.ReasonWrongDestination},
		{"reverted", tronTxJSON(tronDeposit, "100000000", "REVERT", true), http.StatusOK, models.CodeVerificationFailed, models.ReasonTxFailed},
		{"rate limited", ``, http.StatusTooManyRequests, models.CodeAPIError, models.ReasonRateLimited},
		{"explorer down", ``, http.StatusServiceUnavailable, models.CodeAPIError, models.ReasonUnavailable},
		{"garbage", `not json`, http.StatusOK, models.CodeAPIError, models.ReasonMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTronVerifier(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			res := v.Verify(context.Background(), tronDeposit, decimal.NewFromInt(100), strPtr("abc123"))
			assert.False(t, res.Success)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.code, res.Error.Code)
			assert.Equal(t, tt.reason, res.Error.Reason)
		})
	}
}

func TestTronVerifyTransactionWrongAsset(t *testing.T) {
	v := newTronVerifier(t, func(w http.ResponseWriter, r *http.Request) {
		body := fmt.Sprintf(`{"hash":"abc123","timestamp":%d,"confirmed":true,"contractRet":"SUCCESS",
			"trc20TransferInfo":[{"to_address":%q,"amount_str":"100000000","decimals":6,"contract_address":"TFakeUSDT11111111111111111111111111"}]}`,
			testNow.UnixMilli(), tronDeposit)
		_, _ = w.Write([]byte(body))
	})

	res := v.Verify(context.Background(), tronDeposit, decimal.NewFromInt(100), strPtr("abc123"))
	assert.False(t, res.Success)
	assert.Equal(t, models.ReasonWrongAsset, res.Error.Reason)
}

func TestTronVerifyTransactionUnconfirmed(t *testing.T) {
	v := newTronVerifier(t, func(w http.ResponseWriter, r *http.Request) {
		body := fmt.Sprintf(`{"hash":"abc123","timestamp":%d,"confirmed":false,"contractRet":"SUCCESS","confirmations":0,
			"trc20TransferInfo":[{"to_address":%q,"amount_str":"100000000","decimals":6,"contract_address":%q}]}`,
			testNow.UnixMilli(), tronDeposit, tronContract)
		_, _ = w.Write([]byte(body))
	})

	res := v.Verify(context.Background(), tronDeposit, decimal.NewFromInt(100), strPtr("abc123"))
	assert.False(t, res.Success)
	assert.Equal(t, models.CodeVerificationFailed, res.Error.Code)
	assert.Equal(t, models.ReasonUnconfirmed, res.Error.Reason)
}

func tronScanJSON(entries ...string) string {
	body := `{"total":` + fmt.Sprint(len(entries)) + `,"token_transfers":[`
	for i, e := range entries {
		if i > 0 {
			body += ","
		}
		body += e
	}
	return body + "]}"
}

func tronScanEntry(hash string, age time.Duration, quant string) string {
	return fmt.Sprintf(`{"transaction_id":%q,"block_ts":%d,"from_address":"TPayer","to_address":%q,"quant":%q,"contract_address":%q,"confirmed":true,"finalResult":"SUCCESS"}`,
		hash, testNow.Add(-age).UnixMilli(), tronDeposit, quant, tronContract)
}

func TestTronScanFreshnessWindow(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		ok   bool
	}{
		{"nine minutes ago", 9 * time.Minute, true},
		{"eleven minutes ago", 11 * time.Minute, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTronVerifier(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/token_trc20/transfers", r.URL.Path)
				assert.Equal(t, tronDeposit, r.URL.Query().Get("toAddress"))
				assert.Equal(t, "50", r.URL.Query().Get("limit"))
				_, _ = w.Write([]byte(tronScanJSON(tronScanEntry("h1", tt.age, "100000000"))))
			})

			res := v.Verify(context.Background(), tronDeposit, decimal.NewFromInt(100), nil)
			assert.Equal(t, tt.ok, res.Success)
			assert.Equal(t, models.MethodAddressScan, res.Method)
			if !tt.ok {
				assert.Equal(t, models.ReasonStale, res.Error.Reason)
			}
		})
	}
}

func TestTronScanPicksMostRecentQualifying(t *testing.T) {
	v := newTronVerifier(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(tronScanJSON(
			tronScanEntry("too-small", time.Minute, "10000000"),
			tronScanEntry("newer", 2*time.Minute, "100000000"),
			tronScanEntry("older", 5*time.Minute, "200000000"),
			tronScanEntry("stale", 30*time.Minute, "500000000"),
		)))
	})

	res := v.Verify(context.Background(), tronDeposit, decimal.NewFromInt(100), nil)
	require.True(t, res.Success)
	assert.Equal(t, "newer", res.TransactionHash)
	assert.True(t, decimal.NewFromInt(100).Equal(res.Amount))
	assert.Equal(t, testNow.Add(-2*time.Minute), res.Timestamp)
}

func TestTronScanEmpty(t *testing.T) {
	v := newTronVerifier(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(tronScanJSON()))
	})

	res := v.Verify(context.Background(), tronDeposit, decimal.NewFromInt(100), nil)
	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Error, models.ErrVerificationNotFound))
	assert.Equal(t, models.ReasonNotFound, res.Error.Reason)
}
