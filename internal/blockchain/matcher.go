package blockchain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/core-coin/pactum/internal/explorer"
	"github.com/core-coin/pactum/internal/models"
)

// candidate is one transfer reported by an explorer, already normalized.
type candidate struct {
	Hash          string
	From          string
	To            string
	Contract      string
	Amount        decimal.Decimal
	Timestamp     time.Time
	Confirmations int64
	Succeeded     bool
	Raw           interface{}
}

// matcher decides whether a candidate pays the deposit address.
type matcher struct {
	network          models.Network
	address          string
	contract         string
	minAmount        decimal.Decimal
	minConfirmations int64
	// window is the freshness window. Zero means any age is accepted.
	window time.Duration
	now    time.Time
}

func (m matcher) sameAddress(a, b string) bool {
	if m.network.IsEVM() {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// check returns the reason c does not qualify, or "" when it does.
func (m matcher) check(c candidate) models.Reason {
	switch {
	case !c.Succeeded:
		return models.ReasonTxFailed
	case !m.sameAddress(c.Contract, m.contract):
		return models.ReasonWrongAsset
	case !m.sameAddress(c.To, m.address):
		return models.ReasonWrongDestination
	case c.Amount.LessThan(m.minAmount):
		return models.ReasonInsufficientAmount
	case m.window > 0 && m.now.Sub(c.Timestamp) > m.window:
		return models.ReasonStale
	case c.Confirmations < m.minConfirmations:
		return models.ReasonUnconfirmed
	}
	return ""
}

// reasonRank orders failures by how close the transfer came to qualifying.
var reasonRank = map[models.Reason]int{
	models.ReasonNotFound:           0,
	models.ReasonWrongAsset:         1,
	models.ReasonTxFailed:           2,
	models.ReasonWrongDestination:   3,
	models.ReasonInsufficientAmount: 4,
	models.ReasonStale:              5,
	models.ReasonUnconfirmed:        6,
}

var reasonMessages = map[models.Reason]string{
	models.ReasonNotFound:           "no matching transfer found",
	models.ReasonWrongAsset:         "transfer is not for the expected token",
	models.ReasonTxFailed:           "transaction failed on chain",
	models.ReasonWrongDestination:   "transfer was not sent to the deposit address",
	models.ReasonInsufficientAmount: "transfer amount is below the expected amount",
	models.ReasonStale:              "transfer is older than the freshness window",
	models.ReasonUnconfirmed:        "transfer does not have enough confirmations yet",
}

// pick selects the most recent qualifying candidate. When none qualifies it
// reports the failure of the candidate that came closest.
func (m matcher) pick(cands []candidate, method models.VerificationMethod) *models.VerificationResult {
	var (
		best    *candidate
		failure = models.ReasonNotFound
	)
	for i := range cands {
		c := cands[i]
		reason := m.check(c)
		if reason == "" {
			if best == nil || c.Timestamp.After(best.Timestamp) {
				best = &c
			}
			continue
		}
		if reasonRank[reason] > reasonRank[failure] {
			failure = reason
		}
	}

	if best == nil {
		err := models.NotFoundError(failure, reasonMessages[failure])
		// the transaction exists, it just cannot be credited
		if failure == models.ReasonUnconfirmed || failure == models.ReasonTxFailed {
			err.Code = models.CodeVerificationFailed
		}
		return models.Failed(m.network, method, err)
	}

	raw, _ := json.Marshal(best.Raw)
	return &models.VerificationResult{
		Success:         true,
		TransactionHash: best.Hash,
		Amount:          best.Amount,
		Confirmations:   best.Confirmations,
		Timestamp:       best.Timestamp,
		Network:         m.network,
		Method:          method,
		From:            best.From,
		To:              best.To,
		Raw:             raw,
	}
}

// apiFailure maps an explorer client error onto the API_ERROR taxonomy.
func apiFailure(network models.Network, method models.VerificationMethod, err error) *models.VerificationResult {
	reason := models.ReasonUnavailable
	switch {
	case errors.Is(err, explorer.ErrRateLimited):
		reason = models.ReasonRateLimited
	case errors.Is(err, explorer.ErrMalformedResponse):
		reason = models.ReasonMalformedResponse
	}
	return models.Failed(network, method, models.APIError(reason, fmt.Sprintf("%s explorer request failed", network), err))
}

func malformed(network models.Network, method models.VerificationMethod, format string, args ...interface{}) *models.VerificationResult {
	err := fmt.Errorf(format, args...)
	return models.Failed(network, method, models.APIError(models.ReasonMalformedResponse, err.Error(), explorer.ErrMalformedResponse))
}
