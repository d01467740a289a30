package blockchain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/core-coin/pactum/internal/metrics"
	"github.com/core-coin/pactum/internal/models"
	"github.com/core-coin/pactum/pkg/logger"
)

// sharedCallTimeout bounds a verification that outlives the caller which started it.
const sharedCallTimeout = time.Minute

// Dispatcher routes verification requests to the verifier of the requested network.
type Dispatcher struct {
	verifiers map[models.Network]models.NetworkVerifier
	group     singleflight.Group
	logger    *logger.Logger
}

func NewDispatcher(log *logger.Logger, verifiers ...models.NetworkVerifier) *Dispatcher {
	d := &Dispatcher{
		verifiers: make(map[models.Network]models.NetworkVerifier, len(verifiers)),
		logger:    log.Named("dispatcher"),
	}
	for _, v := range verifiers {
		d.verifiers[v.Network()] = v
	}
	return d
}

// Networks returns the networks a verifier is registered for.
func (d *Dispatcher) Networks() []models.Network {
	var out []models.Network
	for _, n := range models.Networks {
		if _, ok := d.verifiers[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// VerifyPayment validates req, then asks the matching verifier. Identical concurrent
// requests share one explorer round trip. It never returns nil.
func (d *Dispatcher) VerifyPayment(ctx context.Context, req models.VerificationRequest) *models.VerificationResult {
	method := models.MethodAddressScan
	if req.TxID != nil {
		method = models.MethodTransactionID
	}

	if res := d.validate(req, method); res != nil {
		metrics.VerificationsTotal.WithLabelValues(string(req.Network), string(res.Error.Code)).Inc()
		return res
	}

	verifier, ok := d.verifiers[req.Network]
	if !ok {
		res := models.Failed(req.Network, method, models.NewError(models.CodeNetworkUnsupported, "",
			fmt.Sprintf("network %s is not configured", req.Network), nil))
		metrics.VerificationsTotal.WithLabelValues(string(req.Network), string(res.Error.Code)).Inc()
		return res
	}

	var txID *string
	key := fmt.Sprintf("%s|%s|%s|", req.Network, req.Address, req.MinAmount.String())
	if req.TxID != nil {
		id := strings.TrimSpace(*req.TxID)
		txID = &id
		key += strings.ToLower(id)
	}

	// The shared call must not die with whichever caller happened to start it.
	ch := d.group.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedCallTimeout)
		defer cancel()
		return d.call(callCtx, verifier, req, txID, method), nil
	})

	var res *models.VerificationResult
	select {
	case r := <-ch:
		res = copyResult(r.Val.(*models.VerificationResult))
	case <-ctx.Done():
		res = models.Failed(req.Network, method, models.APIError(models.ReasonUnavailable,
			"verification abandoned by caller", ctx.Err()))
	}

	outcome := "success"
	if !res.Success {
		outcome = string(res.Error.Code)
		d.logger.Infow("Verification did not succeed", "network", req.Network, "method", method,
			"code", res.Error.Code, "reason", res.Error.Reason)
	}
	metrics.VerificationsTotal.WithLabelValues(string(req.Network), outcome).Inc()
	return res
}

func (d *Dispatcher) validate(req models.VerificationRequest, method models.VerificationMethod) *models.VerificationResult {
	switch {
	case req.Network == "":
		return models.Failed(req.Network, method, models.ValidationError("network is required"))
	case !req.Network.Valid():
		return models.Failed(req.Network, method, models.NewError(models.CodeNetworkUnsupported, "",
			fmt.Sprintf("unsupported network %q", req.Network), nil))
	case strings.TrimSpace(req.Address) == "":
		return models.Failed(req.Network, method, models.ValidationError("deposit address is required"))
	case req.MinAmount.IsNegative():
		return models.Failed(req.Network, method, models.ValidationError("expected amount must not be negative"))
	case req.TxID != nil && strings.TrimSpace(*req.TxID) == "":
		return models.Failed(req.Network, method, models.ValidationError("transaction id must not be blank"))
	}
	return nil
}

// call runs the verifier and normalizes whatever it returns.
func (d *Dispatcher) call(ctx context.Context, v models.NetworkVerifier, req models.VerificationRequest, txID *string, method models.VerificationMethod) (res *models.VerificationResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorw("Verifier panicked", "network", req.Network, "panic", r)
			res = models.Failed(req.Network, method, models.NewError(models.CodeVerificationFailed, "",
				"verifier failed unexpectedly", fmt.Errorf("panic: %v", r)))
		}
	}()

	res = v.Verify(ctx, req.Address, req.MinAmount, txID)
	if res == nil {
		return models.Failed(req.Network, method, models.NewError(models.CodeVerificationFailed, "",
			"verifier returned no result", nil))
	}
	res.Network = req.Network
	if res.Method == "" {
		res.Method = method
	}
	if !res.Success && res.Error == nil {
		res.Error = models.NotFoundError(models.ReasonNotFound, "no matching transfer found")
	}
	if res.Success {
		res.Error = nil
	}
	return res
}

// copyResult gives every caller of a shared flight its own result.
func copyResult(v *models.VerificationResult) *models.VerificationResult {
	out := *v
	if v.Raw != nil {
		out.Raw = append([]byte(nil), v.Raw...)
	}
	if v.Error != nil {
		e := *v.Error
		out.Error = &e
	}
	return &out
}
