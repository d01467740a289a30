package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/core-coin/pactum/internal/explorer"
	"github.com/core-coin/pactum/internal/models"
	"github.com/core-coin/pactum/pkg/logger"
)

const noTransactionsFound = "No transactions found"

// etherscanEnvelope covers both the account module and the proxy (JSON-RPC) module.
type etherscanEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// err reports an API level failure. Etherscan answers 200 for most of them.
func (e *etherscanEnvelope) err() error {
	if e.Error != nil {
		return classify(e.Error.Message)
	}
	if e.Status != "0" || e.Message == noTransactionsFound {
		return nil
	}
	var text string
	if err := json.Unmarshal(e.Result, &text); err != nil {
		text = string(e.Result)
	}
	return classify(strings.TrimSpace(e.Message + " " + text))
}

func (e *etherscanEnvelope) empty() bool {
	r := bytes.TrimSpace(e.Result)
	return len(r) == 0 || bytes.Equal(r, []byte("null")) || e.Message == noTransactionsFound
}

func classify(text string) error {
	if strings.Contains(strings.ToLower(text), "rate limit") {
		return fmt.Errorf("%w: %s", explorer.ErrRateLimited, text)
	}
	return fmt.Errorf("%w: %s", explorer.ErrUnavailable, text)
}

type etherscanTokenTx struct {
	Hash            string `json:"hash"`
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ContractAddress string `json:"contractAddress"`
	TokenDecimal    string `json:"tokenDecimal"`
	Confirmations   string `json:"confirmations"`
}

type evmReceipt struct {
	TransactionHash string  `json:"transactionHash"`
	BlockNumber     *string `json:"blockNumber"`
	Status          string  `json:"status"`
	From            string  `json:"from"`
	Logs            []Log   `json:"logs"`
}

type evmBlock struct {
	Number    string `json:"number"`
	Timestamp string `json:"timestamp"`
}

type evmTransfer struct {
	Hash     string `json:"hash"`
	Block    string `json:"block_number"`
	Contract string `json:"contract"`
	From     string `json:"from"`
	To       string `json:"to"`
	Value    string `json:"value"`
}

// EVMVerifier verifies ERC20 and BEP20 transfers through an Etherscan compatible API.
type EVMVerifier struct {
	network models.Network
	client  *explorer.Client
	path    string
	apiKey  string
	token   TokenConfig
	logger  *logger.Logger
	now     func() time.Time
}

// NewEVMVerifier builds a verifier for network. path is the API path on the explorer host, usually /api.
func NewEVMVerifier(network models.Network, client *explorer.Client, path, apiKey string, token TokenConfig, log *logger.Logger) *EVMVerifier {
	return &EVMVerifier{
		network: network,
		client:  client,
		path:    path,
		apiKey:  apiKey,
		token:   token,
		logger:  log.Named(string(network)),
		now:     time.Now,
	}
}

func (v *EVMVerifier) Network() models.Network {
	return v.network
}

func (v *EVMVerifier) Verify(ctx context.Context, address string, minAmount decimal.Decimal, txID *string) *models.VerificationResult {
	m := matcher{
		network:          v.network,
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

func (v *EVMVerifier) call(ctx context.Context, query url.Values, out interface{}) (bool, error) {
	if v.apiKey != "" {
		query.Set("apikey", v.apiKey)
	}
	var env etherscanEnvelope
	if err := v.client.GetJSON(ctx, v.path, query, &env); err != nil {
		return false, err
	}
	if err := env.err(); err != nil {
		return false, err
	}
	if env.empty() {
		return false, nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return false, fmt.Errorf("%w: %v", explorer.ErrMalformedResponse, err)
	}
	return true, nil
}

func (v *EVMVerifier) verifyTransaction(ctx context.Context, m matcher, txID string) *models.VerificationResult {
	const method = models.MethodTransactionID

	var receipt evmReceipt
	found, err := v.call(ctx, url.Values{
		"module": {"proxy"},
		"action": {"eth_getTransactionReceipt"},
		"txhash": {txID},
	}, &receipt)
	if err != nil {
		v.logger.Warnw("Failed to fetch receipt", "tx", txID, "error", err)
		return apiFailure(m.network, method, err)
	}
	if !found {
		return m.pick(nil, method)
	}
	if receipt.Status == "0x0" {
		return m.pick([]candidate{{Hash: receipt.TransactionHash}}, method)
	}

	var cands []candidate
	for _, l := range receipt.Logs {
		t, err := DecodeTransferLog(l)
		if err != nil {
			return malformed(m.network, method, "transaction %s: %v", txID, err)
		}
		if t == nil {
			continue
		}
		c := candidate{
			Hash:      receipt.TransactionHash,
			From:      t.From,
			To:        t.To,
			Contract:  t.Contract,
			Amount:    decimal.NewFromBigInt(t.Value, -v.token.Decimals),
			Succeeded: true,
		}
		c.Raw = evmTransfer{Hash: c.Hash, Contract: t.Contract, From: t.From, To: t.To, Value: t.Value.String()}
		cands = append(cands, c)
	}

	// Only spend block lookups on a transfer that can still qualify.
	pre := m
	pre.minConfirmations = 0
	if res := pre.pick(cands, method); !res.Success || receipt.BlockNumber == nil {
		if res.Success {
			return m.pick(cands, method)
		}
		return res
	}

	blockNumber, err := HexToBigInt(*receipt.BlockNumber)
	if err != nil {
		return malformed(m.network, method, "block number: %v", err)
	}
	var block evmBlock
	found, err = v.call(ctx, url.Values{
		"module":  {"proxy"},
		"action":  {"eth_getBlockByNumber"},
		"tag":     {*receipt.BlockNumber},
		"boolean": {"false"},
	}, &block)
	if err != nil {
		return apiFailure(m.network, method, err)
	}
	if !found {
		return malformed(m.network, method, "block %s not found", *receipt.BlockNumber)
	}
	ts, err := HexToBigInt(block.Timestamp)
	if err != nil {
		return malformed(m.network, method, "block timestamp: %v", err)
	}

	var head string
	if _, err := v.call(ctx, url.Values{"module": {"proxy"}, "action": {"eth_blockNumber"}}, &head); err != nil {
		return apiFailure(m.network, method, err)
	}
	headNumber, err := HexToBigInt(head)
	if err != nil {
		return malformed(m.network, method, "head block: %v", err)
	}
	confirmations := headNumber.Int64() - blockNumber.Int64() + 1
	if confirmations < 0 {
		confirmations = 0
	}

	for i := range cands {
		cands[i].Timestamp = time.Unix(ts.Int64(), 0).UTC()
		cands[i].Confirmations = confirmations
		if raw, ok := cands[i].Raw.(evmTransfer); ok {
			raw.Block = blockNumber.String()
			cands[i].Raw = raw
		}
	}
	return m.pick(cands, method)
}

func (v *EVMVerifier) scanAddress(ctx context.Context, m matcher) *models.VerificationResult {
	const method = models.MethodAddressScan

	var txs []etherscanTokenTx
	_, err := v.call(ctx, url.Values{
		"module":          {"account"},
		"action":          {"tokentx"},
		"contractaddress": {v.token.Contract},
		"address":         {m.address},
		"page":            {"1"},
		"offset":          {strconv.Itoa(v.token.PageSize)},
		"sort":            {"desc"},
	}, &txs)
	if err != nil {
		v.logger.Warnw("Failed to scan deposit address", "address", m.address, "error", err)
		return apiFailure(m.network, method, err)
	}

	cands := make([]candidate, 0, len(txs))
	for _, tx := range txs {
		// tokentx lists outgoing transfers too
		if !strings.EqualFold(tx.To, m.address) {
			continue
		}
		decimals := v.token.Decimals
		if d, err := strconv.ParseInt(tx.TokenDecimal, 10, 32); err == nil && tx.TokenDecimal != "" {
			decimals = int32(d)
		}
		amount, err := ToDecimal(tx.Value, decimals)
		if err != nil {
			return malformed(m.network, method, "transfer %s: %v", tx.Hash, err)
		}
		ts, err := strconv.ParseInt(tx.TimeStamp, 10, 64)
		if err != nil {
			return malformed(m.network, method, "transfer %s timestamp: %v", tx.Hash, err)
		}
		confirmations, _ := strconv.ParseInt(tx.Confirmations, 10, 64)
		cands = append(cands, candidate{
			Hash:          tx.Hash,
			From:          tx.From,
			To:            tx.To,
			Contract:      tx.ContractAddress,
			Amount:        amount,
			Timestamp:     time.Unix(ts, 0).UTC(),
			Confirmations: confirmations,
			Succeeded:     true,
			Raw:           tx,
		})
	}
	return m.pick(cands, method)
}
