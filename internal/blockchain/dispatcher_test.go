package blockchain

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/pactum/internal/models"
	"github.com/core-coin/pactum/pkg/logger"
)

type fakeVerifier struct {
	network models.Network
	calls   int32
	delay   time.Duration
	result  func(txID *string) *models.VerificationResult
}

func (f *fakeVerifier) Network() models.Network {
	return f.network
}

func (f *fakeVerifier) Verify(ctx context.Context, address string, minAmount decimal.Decimal, txID *string) *models.VerificationResult {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.result(txID)
}

func successResult(txID *string) *models.VerificationResult {
	return &models.VerificationResult{
		Success:         true,
		TransactionHash: *txID,
		Amount:          decimal.NewFromInt(100),
	}
}

func strPtr(s string) *string {
	return &s
}

func request(network models.Network, txID *string) models.VerificationRequest {
	return models.VerificationRequest{
		Network:   network,
		Address:   "TNPeeaaFB7K9cmo4uQpcU32zGK8G1NYqeL",
		MinAmount: decimal.NewFromInt(100),
		TxID:      txID,
	}
}

func TestDispatcherBlankTxIDMakesNoCall(t *testing.T) {
	v := &fakeVerifier{network: models.NetworkTRC20, result: successResult}
	d := NewDispatcher(logger.NewNop(), v)

	for _, id := range []string{"", "   ", "\t"} {
		res := d.VerifyPayment(context.Background(), request(models.NetworkTRC20, strPtr(id)))
		assert.False(t, res.Success)
		require.NotNil(t, res.Error)
		assert.True(t, errors.Is(res.Error, models.ErrValidation))
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&v.calls))
}

func TestDispatcherRejectsUnknownNetwork(t *testing.T) {
	v := &fakeVerifier{network: models.NetworkTRC20, result: successResult}
	d := NewDispatcher(logger.NewNop(), v)

	res := d.VerifyPayment(context.Background(), request("solana", strPtr("abc")))
	assert.True(t, errors.Is(res.Error, models.ErrNetworkUnsupported))

	res = d.VerifyPayment(context.Background(), request(models.NetworkERC20, strPtr("abc")))
	assert.True(t, errors.Is(res.Error, models.ErrNetworkUnsupported))

	res = d.VerifyPayment(context.Background(), request("", strPtr("abc")))
	assert.True(t, errors.Is(res.Error, models.ErrValidation))
	assert.Equal(t, int32(0), atomic.LoadInt32(&v.calls))
}

func TestDispatcherRoutesAndTrims(t *testing.T) {
	trc := &fakeVerifier{network: models.NetworkTRC20, result: successResult}
	bep := &fakeVerifier{network: models.NetworkBEP20, result: successResult}
	d := NewDispatcher(logger.NewNop(), trc, bep)

	res := d.VerifyPayment(context.Background(), request(models.NetworkBEP20, strPtr("  0xabc ")))
	require.True(t, res.Success)
	assert.Equal(t, "0xabc", res.TransactionHash)
	assert.Equal(t, models.NetworkBEP20, res.Network)
	assert.Equal(t, models.MethodTransactionID, res.Method)
	assert.Nil(t, res.Error)
	assert.Equal(t, int32(1), atomic.LoadInt32(&bep.calls))
	assert.Equal(t, int32(0), atomic.LoadInt32(&trc.calls))
	assert.Equal(t, []models.Network{models.NetworkTRC20, models.NetworkBEP20}, d.Networks())
}

func TestDispatcherRecoversPanics(t *testing.T) {
	v := &fakeVerifier{network: models.NetworkERC20, result: func(*string) *models.VerificationResult {
		panic("boom")
	}}
	d := NewDispatcher(logger.NewNop(), v)

	res := d.VerifyPayment(context.Background(), request(models.NetworkERC20, strPtr("0x1")))
	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Error, models.ErrVerificationFailed))
}

func TestDispatcherFillsMissingError(t *testing.T) {
	v := &fakeVerifier{network: models.NetworkERC20, result: func(*string) *models.VerificationResult {
		return &models.VerificationResult{}
	}}
	d := NewDispatcher(logger.NewNop(), v)

	res := d.VerifyPayment(context.Background(), request(models.NetworkERC20, nil))
	assert.True(t, errors.Is(res.Error, models.ErrVerificationNotFound))
	assert.Equal(t, models.MethodAddressScan, res.Method)
}

func TestDispatcherCollapsesIdenticalRequests(t *testing.T) {
	v := &fakeVerifier{network: models.NetworkTRC20, delay: 100 * time.Millisecond, result: successResult}
	d := NewDispatcher(logger.NewNop(), v)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := d.VerifyPayment(context.Background(), request(models.NetworkTRC20, strPtr("abc123")))
			assert.True(t, res.Success)
		}()
	}
	wg.Wait()

	assert.Less(t, atomic.LoadInt32(&v.calls), int32(5))
}

// slowVerifier honours its context, like the explorer-backed verifiers do.
type slowVerifier struct {
	calls int32
	delay time.Duration
}

func (s *slowVerifier) Network() models.Network {
	return models.NetworkTRC20
}

func (s *slowVerifier) Verify(ctx context.Context, _ string, _ decimal.Decimal, txID *string) *models.VerificationResult {
	atomic.AddInt32(&s.calls, 1)
	select {
	case <-time.After(s.delay):
		res := successResult(txID)
		res.Raw = []byte(`{"hash":"abc123"}`)
		return res
	case <-ctx.Done():
		return models.Failed(models.NetworkTRC20, models.MethodTransactionID,
			models.APIError(models.ReasonUnavailable, "cancelled", ctx.Err()))
	}
}

func TestDispatcherSharedCallSurvivesAbandonedCaller(t *testing.T) {
	v := &slowVerifier{delay: 200 * time.Millisecond}
	d := NewDispatcher(logger.NewNop(), v)

	firstCtx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	var first, follower *models.VerificationResult
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		first = d.VerifyPayment(firstCtx, request(models.NetworkTRC20, strPtr("abc123")))
	}()
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		follower = d.VerifyPayment(context.Background(), request(models.NetworkTRC20, strPtr("abc123")))
	}()
	wg.Wait()

	require.NotNil(t, first)
	assert.False(t, first.Success)
	assert.True(t, errors.Is(first.Error, models.ErrAPI))

	require.NotNil(t, follower)
	assert.True(t, follower.Success)
	assert.Nil(t, follower.Error)
	assert.Equal(t, int32(1), atomic.LoadInt32(&v.calls))
}

func TestDispatcherCallersOwnTheirResults(t *testing.T) {
	v := &slowVerifier{delay: 100 * time.Millisecond}
	d := NewDispatcher(logger.NewNop(), v)

	results := make([]*models.VerificationResult, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.VerifyPayment(context.Background(), request(models.NetworkTRC20, strPtr("abc123")))
		}(i)
	}
	wg.Wait()

	require.True(t, results[0].Success)
	require.True(t, results[1].Success)
	results[0].Raw[2] = 'X'
	assert.Equal(t, `{"hash":"abc123"}`, string(results[1].Raw))
}

func TestCopyResultDetachesError(t *testing.T) {
	orig := models.Failed(models.NetworkERC20, models.MethodAddressScan,
		models.NotFoundError(models.ReasonStale, "too old"))
	orig.Raw = []byte(`[]`)

	cp := copyResult(orig)
	cp.Error.Message = "changed"
	cp.Raw[0] = '{'

	assert.Equal(t, "too old", orig.Error.Message)
	assert.Equal(t, `[]`, string(orig.Raw))
}
