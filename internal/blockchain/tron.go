package blockchain

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/core-coin/pactum/internal/explorer"
	"github.com/core-coin/pactum/internal/models"
	"github.com/core-coin/pactum/pkg/logger"
)

// tronSolidBlocks is how many blocks TRON needs before Tronscan reports a transfer as confirmed.
const tronSolidBlocks = 19

// TokenConfig describes the token and acceptance rules for one network.
type TokenConfig struct {
	Contract         string
	Decimals         int32
	MinConfirmations int64
	FreshnessWindow  time.Duration
	PageSize         int
}

type tronTransactionInfo struct {
	Hash          string              `json:"hash"`
	Timestamp     int64               `json:"timestamp"`
	Confirmed     bool                `json:"confirmed"`
	ContractRet   string              `json:"contractRet"`
	Confirmations int64               `json:"confirmations"`
	Transfers     []tronTransferEntry `json:"trc20TransferInfo"`
}

type tronTransferEntry struct {
	From     string `json:"from_address"`
	To       string `json:"to_address"`
	Amount   string `json:"amount_str"`
	Decimals int32  `json:"decimals"`
	Contract string `json:"contract_address"`
}

type tronTransferList struct {
	Total     int64               `json:"total"`
	Transfers []tronTokenTransfer `json:"token_transfers"`
}

type tronTokenTransfer struct {
	TransactionID string `json:"transaction_id"`
	BlockTs       int64  `json:"block_ts"`
	From          string `json:"from_address"`
	To            string `json:"to_address"`
	Quant         string `json:"quant"`
	Contract      string `json:"contract_address"`
	Confirmed     bool   `json:"confirmed"`
	FinalResult   string `json:"finalResult"`
}

// TronVerifier verifies TRC20 transfers through the Tronscan API.
type TronVerifier struct {
	client *explorer.Client
	token  TokenConfig
	logger *logger.Logger
	now    func() time.Time
}

func NewTronVerifier(client *explorer.Client, token TokenConfig, log *logger.Logger) *TronVerifier {
	return &TronVerifier{
		client: client,
		token:  token,
		logger: log.Named("trc20"),
		now:    time.Now,
	}
}

func (v *TronVerifier) Network() models.Network {
	return models.NetworkTRC20
}

func (v *TronVerifier) Verify(ctx context.Context, address string, minAmount decimal.Decimal, txID *string) *models.VerificationResult {
	m := matcher{
		network:          models.NetworkTRC20,
		address:          address,
		contract:         v.token.Contract,
		minAmount:        minAmount,
		minConfirmations: v.token.MinConfirmations,
		now:              v.now(),
	}
	if txID != nil {
		return v.verifyTransaction(ctx, m, strings.TrimSpace(*txID))
	}
	m.window = v.token.FreshnessWindow
	return v.scanAddress(ctx, m)
}

func (v *TronVerifier) verifyTransaction(ctx context.Context, m matcher, txID string) *models.VerificationResult {
	const method = models.MethodTransactionID

	var info tronTransactionInfo
	if err := v.client.GetJSON(ctx, "/api/transaction-info", url.Values{"hash": {txID}}, &info); err != nil {
		v.logger.Warnw("Failed to fetch transaction", "tx", txID, "error", err)
		return apiFailure(m.network, method, err)
	}
	if info.Hash == "" {
		return m.pick(nil, method)
	}

	confirmations := info.Confirmations
	if info.Confirmed && confirmations < tronSolidBlocks {
		confirmations = tronSolidBlocks
	}

	cands := make([]candidate, 0, len(info.Transfers))
	for _, t := range info.Transfers {
		decimals := v.token.Decimals
		if t.Decimals > 0 {
			decimals = t.Decimals
		}
		amount, err := ToDecimal(t.Amount, decimals)
		if err != nil {
			return malformed(m.network, method, "transaction %s: %v", txID, err)
		}
		cands = append(cands, candidate{
			Hash:          info.Hash,
			From:          t.From,
			To:            t.To,
			Contract:      t.Contract,
			Amount:        amount,
			Timestamp:     time.UnixMilli(info.Timestamp).UTC(),
			Confirmations: confirmations,
			Succeeded:     info.ContractRet == "" || info.ContractRet == "SUCCESS",
			Raw:           t,
		})
	}
	return m.pick(cands, method)
}

func (v *TronVerifier) scanAddress(ctx context.Context, m matcher) *models.VerificationResult {
	const method = models.MethodAddressScan

	query := url.Values{
		"toAddress":        {m.address},
		"contract_address": {v.token.Contract},
		"limit":            {strconv.Itoa(v.token.PageSize)},
		"start":            {"0"},
		"sort":             {"-timestamp"},
	}
	var list tronTransferList
	if err := v.client.GetJSON(ctx, "/api/token_trc20/transfers", query, &list); err != nil {
		v.logger.Warnw("Failed to scan deposit address", "address", m.address, "error", err)
		return apiFailure(m.network, method, err)
	}

	cands := make([]candidate, 0, len(list.Transfers))
	for _, t := range list.Transfers {
		amount, err := ToDecimal(t.Quant, v.token.Decimals)
		if err != nil {
			return malformed(m.network, method, "transfer %s: %v", t.TransactionID, err)
		}
		var confirmations int64
		if t.Confirmed {
			confirmations = tronSolidBlocks
		}
		cands = append(cands, candidate{
			Hash:          t.TransactionID,
			From:          t.From,
			To:            t.To,
			Contract:      t.Contract,
			Amount:        amount,
			Timestamp:     time.UnixMilli(t.BlockTs).UTC(),
			Confirmations: confirmations,
			Succeeded:     t.FinalResult == "" || t.FinalResult == "SUCCESS",
			Raw:           t,
		})
	}
	return m.pick(cands, method)
}
