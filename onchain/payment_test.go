package onchain_test

import (
	"context"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/elementsproject/electrumpay/electrum"
	"github.com/elementsproject/electrumpay/metrics"
	"github.com/elementsproject/electrumpay/onchain"
	"github.com/elementsproject/electrumpay/onchain/mock"
	"github.com/elementsproject/electrumpay/txbuilder"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSendTransaction_WithChange(t *testing.T) {
	t.Parallel()
	account := testAccount(t, 0)
	chain := newFakeChain(t, account)
	chain.addUtxo(200000)
	// 0.0001 BTC/kB is 10 sat/vB
	chain.estimate = 0.0001

	engine := newTestEngine(t, chain, account)
	res, err := engine.SendTransaction(context.Background(), recipientAddr, 50000)
	require.NoError(t, err)

	tx := mustDecodeTx(t, res.RawHex)
	assert.Equal(t, tx.TxHash().String(), res.TxID)
	require.Len(t, tx.TxOut, 2)
	assert.Equal(t, int64(50000), tx.TxOut[0].Value)
	assert.Equal(t, chain.pkScript, tx.TxOut[1].PkScript)
	assert.Equal(t, res.Change, uint64(tx.TxOut[1].Value))

	assert.GreaterOrEqual(t, res.Fee, uint64(10*res.VirtualSize))
	assert.LessOrEqual(t, res.Fee, uint64(10*(res.VirtualSize+1)))
	assert.Equal(t, uint64(200000), outputSum(tx)+res.Fee)

	_, _, _, broadcasts := chain.counts()
	assert.Equal(t, 1, broadcasts)
	assert.Equal(t, []string{res.RawHex}, chain.broadcasted())
}

func TestSendTransaction_DustChangeIsFoldedIntoFee(t *testing.T) {
	t.Parallel()
	account := testAccount(t, 0)
	chain := newFakeChain(t, account)
	chain.addUtxo(100000)
	chain.estimate = 0.00001

	engine := newTestEngine(t, chain, account)
	res, err := engine.SendTransaction(context.Background(), recipientAddr, 99500)
	require.NoError(t, err)

	tx := mustDecodeTx(t, res.RawHex)
	require.Len(t, tx.TxOut, 1)
	assert.Equal(t, int64(99500), tx.TxOut[0].Value)
	assert.Equal(t, uint64(500), res.Fee)
	assert.Zero(t, res.Change)
}

func TestSendTransaction_ChangeAtDustLimitIsOmitted(t *testing.T) {
	t.Parallel()
	account := testAccount(t, 0)
	chain := newFakeChain(t, account)
	// fee is the 141 sat floor, leaving exactly 546 sat of change
	chain.addUtxo(50000 + 141 + onchain.DustLimit)
	chain.estimate = 0.000001

	engine := newTestEngine(t, chain, account)
	res, err := engine.SendTransaction(context.Background(), recipientAddr, 50000)
	require.NoError(t, err)

	tx := mustDecodeTx(t, res.RawHex)
	require.Len(t, tx.TxOut, 1)
	assert.Equal(t, 141+onchain.DustLimit, res.Fee)
}

func TestSendTransaction_FeeFloor(t *testing.T) {
	t.Parallel()
	tests := map[string]struct {
		estimate float64
	}{
		"tiny estimate":     {estimate: 0.000001},
		"smallest estimate": {estimate: 0.00000001},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			account := testAccount(t, 0)
			chain := newFakeChain(t, account)
			chain.addUtxo(200000)
			chain.estimate = tt.estimate

			engine := newTestEngine(t, chain, account)
			res, err := engine.SendTransaction(context.Background(), recipientAddr, 50000)
			require.NoError(t, err)
			assert.Equal(t, onchain.MinRelayFee, res.Fee)

			tx := mustDecodeTx(t, res.RawHex)
			assert.Equal(t, uint64(200000), outputSum(tx)+res.Fee)
		})
	}
}

func TestSendTransaction_FirstFitSelection(t *testing.T) {
	t.Parallel()
	account := testAccount(t, 0)
	chain := newFakeChain(t, account)
	first := chain.addUtxo(30000)
	second := chain.addUtxo(40000)
	chain.addUtxo(500000)

	engine := newTestEngine(t, chain, account)
	res, err := engine.SendTransaction(context.Background(), recipientAddr, 60000)
	require.NoError(t, err)

	require.Len(t, res.Inputs, 2)
	assert.Equal(t, first.Hash, res.Inputs[0].TxHash)
	assert.Equal(t, second.Hash, res.Inputs[1].TxHash)

	// parents are only fetched up to the first sufficient prefix
	_, getTx, _, _ := chain.counts()
	assert.Equal(t, 2, getTx)

	tx := mustDecodeTx(t, res.RawHex)
	require.Len(t, tx.TxIn, 2)
	assert.Equal(t, first.Hash, tx.TxIn[0].PreviousOutPoint.Hash.String())
	assert.Equal(t, second.Hash, tx.TxIn[1].PreviousOutPoint.Hash.String())
	assert.Equal(t, uint64(70000), outputSum(tx)+res.Fee)
}

func TestSendTransaction_InsufficientFunds(t *testing.T) {
	t.Parallel()
	tests := map[string]struct {
		utxos  []uint64
		amount uint64
	}{
		"amount above balance": {
			utxos:  []uint64{30000, 20000},
			amount: 60000,
		},
		"fee not covered": {
			utxos:  []uint64{30000, 20000},
			amount: 49990,
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			account := testAccount(t, 0)
			chain := newFakeChain(t, account)
			for _, v := range tt.utxos {
				chain.addUtxo(v)
			}

			engine := newTestEngine(t, chain, account)
			_, err := engine.SendTransaction(context.Background(), recipientAddr, tt.amount)
			require.ErrorIs(t, err, onchain.ErrInsufficientFunds)

			_, _, _, broadcasts := chain.counts()
			assert.Zero(t, broadcasts)
		})
	}
}

func TestSendTransaction_NoOutputs(t *testing.T) {
	t.Parallel()
	account := testAccount(t, 0)
	chain := newFakeChain(t, account)

	engine := newTestEngine(t, chain, account)
	_, err := engine.SendTransaction(context.Background(), recipientAddr, 10000)
	require.ErrorIs(t, err, onchain.ErrNoOutputs)

	_, getTx, _, broadcasts := chain.counts()
	assert.Zero(t, getTx)
	assert.Zero(t, broadcasts)
}

func TestSendTransaction_ValidationBeforeNetwork(t *testing.T) {
	t.Parallel()
	tests := map[string]struct {
		recipient string
		amount    uint64
	}{
		"amount at dust limit": {
			recipient: recipientAddr,
			amount:    onchain.DustLimit,
		},
		"zero amount": {
			recipient: recipientAddr,
			amount:    0,
		},
		"malformed recipient": {
			recipient: "bc1qnotanaddress",
			amount:    10000,
		},
		"testnet recipient": {
			recipient: "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx",
			amount:    10000,
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			// no expectations: any call into the chain fails the test
			chain := mock.NewMockChainSource(gomock.NewController(t))
			engine := newTestEngine(t, chain, testAccount(t, 0))

			_, err := engine.SendTransaction(context.Background(), tt.recipient, tt.amount)
			require.ErrorIs(t, err, onchain.ErrValidation)
		})
	}
}

func TestSendTransaction_FeeEstimateFailure(t *testing.T) {
	t.Parallel()
	tests := map[string]struct {
		estimate float64
		err      error
		cause    error
	}{
		"server timeout": {
			err:   errors.Wrap(electrum.ErrTimeout, "blockchain.estimatefee (id 3)"),
			cause: electrum.ErrTimeout,
		},
		"no estimate": {
			estimate: -1,
		},
		"zero estimate": {
			estimate: 0,
		},
		"absurd estimate": {
			estimate: 1e9,
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			chain := mock.NewMockChainSource(gomock.NewController(t))
			chain.EXPECT().EstimateFee(gomock.Any(), onchain.DefaultFeeTargetBlocks).
				Return(tt.estimate, tt.err)

			engine := newTestEngine(t, chain, testAccount(t, 0))
			_, err := engine.SendTransaction(context.Background(), recipientAddr, 10000)
			require.ErrorIs(t, err, onchain.ErrFeeEstimate)
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
			}
		})
	}
}

func TestSendTransaction_BroadcastErrorKeepsCause(t *testing.T) {
	t.Parallel()
	account := testAccount(t, 0)
	chain := newFakeChain(t, account)
	chain.addUtxo(200000)
	rejection := &electrum.RPCError{Code: 1, Message: "bad-txns-inputs-missingorspent"}
	chain.broadcastFn = func(rawTx string) (string, error) {
		return "", errors.Wrap(rejection, "blockchain.transaction.broadcast")
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewPayments(reg)
	engine := newTestEngine(t, chain, account).WithMetrics(m)

	_, err := engine.SendTransaction(context.Background(), recipientAddr, 50000)
	require.ErrorIs(t, err, onchain.ErrBroadcast)
	assert.ErrorIs(t, err, electrum.ErrProtocol)

	var broadcastErr *onchain.BroadcastError
	require.True(t, errors.As(err, &broadcastErr))
	assert.Equal(t, mustDecodeTx(t, chain.broadcasted()[0]).TxHash().String(), broadcastErr.TxID)

	var rpcErr *electrum.RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "bad-txns-inputs-missingorspent", rpcErr.Message)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sends().WithLabelValues("broadcast_failed")))
}

func TestSendTransaction_RecordsMetrics(t *testing.T) {
	t.Parallel()
	account := testAccount(t, 0)
	chain := newFakeChain(t, account)
	chain.addUtxo(200000)

	reg := prometheus.NewRegistry()
	m := metrics.NewPayments(reg)
	engine := newTestEngine(t, chain, account).WithMetrics(m)

	_, err := engine.SendTransaction(context.Background(), recipientAddr, 50000)
	require.NoError(t, err)
	_, err = engine.SendTransaction(context.Background(), recipientAddr, 100)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sends().WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sends().WithLabelValues("invalid")))
}

// racingBroadcaster lets the first broadcast of an outpoint hang until
// release is closed and rejects later broadcasts spending it.
type racingBroadcaster struct {
	mu      sync.Mutex
	spent   map[wire.OutPoint]bool
	started chan struct{}
	release chan struct{}
}

func newRacingBroadcaster() *racingBroadcaster {
	return &racingBroadcaster{
		spent:   make(map[wire.OutPoint]bool),
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (r *racingBroadcaster) broadcast(rawTx string) (string, error) {
	tx, err := decodeTx(rawTx)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	conflict := false
	for _, in := range tx.TxIn {
		if r.spent[in.PreviousOutPoint] {
			conflict = true
		}
		r.spent[in.PreviousOutPoint] = true
	}
	r.mu.Unlock()
	r.started <- struct{}{}
	if conflict {
		return "", &electrum.RPCError{Code: -26, Message: "txn-mempool-conflict"}
	}
	<-r.release
	return tx.TxHash().String(), nil
}

func TestSendTransaction_ConcurrentSendsShareOutputs(t *testing.T) {
	t.Parallel()
	account := testAccount(t, 0)
	chain := newFakeChain(t, account)
	chain.addUtxo(100000)
	racer := newRacingBroadcaster()
	chain.broadcastFn = racer.broadcast

	engine := newTestEngine(t, chain, account)

	var (
		wg       sync.WaitGroup
		firstErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = engine.SendTransaction(context.Background(), recipientAddr, 50000)
	}()
	<-racer.started

	_, err := engine.SendTransaction(context.Background(), recipientAddr, 40000)
	require.ErrorIs(t, err, onchain.ErrBroadcast)

	close(racer.release)
	wg.Wait()
	require.NoError(t, firstErr)

	broadcasts := chain.broadcasted()
	require.Len(t, broadcasts, 2)
	a := mustDecodeTx(t, broadcasts[0])
	b := mustDecodeTx(t, broadcasts[1])
	assert.Equal(t, a.TxIn[0].PreviousOutPoint, b.TxIn[0].PreviousOutPoint)
}

func TestSendTransaction_OutputReservation(t *testing.T) {
	t.Parallel()
	account := testAccount(t, 0)
	chain := newFakeChain(t, account)
	chain.addUtxo(100000)
	racer := newRacingBroadcaster()
	chain.broadcastFn = racer.broadcast

	engine := newTestEngine(t, chain, account).WithOutputReservation(true)

	var (
		wg       sync.WaitGroup
		firstErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = engine.SendTransaction(context.Background(), recipientAddr, 50000)
	}()
	<-racer.started

	_, err := engine.SendTransaction(context.Background(), recipientAddr, 40000)
	require.ErrorIs(t, err, onchain.ErrNoOutputs)
	assert.Len(t, chain.broadcasted(), 1)

	close(racer.release)
	wg.Wait()
	require.NoError(t, firstErr)

	// the reservation ends with the first payment, so the output is
	// selected again and the server rejects the double spend
	_, err = engine.SendTransaction(context.Background(), recipientAddr, 40000)
	require.ErrorIs(t, err, onchain.ErrBroadcast)
}

func TestSendTransaction_UnknownParent(t *testing.T) {
	t.Parallel()
	account := testAccount(t, 0)
	chain := newFakeChain(t, account)
	utxo := chain.addUtxo(100000)
	chain.mu.Lock()
	delete(chain.txs, utxo.Hash)
	chain.mu.Unlock()

	engine := newTestEngine(t, chain, account)
	_, err := engine.SendTransaction(context.Background(), recipientAddr, 50000)
	require.ErrorIs(t, err, electrum.ErrProtocol)
	assert.NotErrorIs(t, err, onchain.ErrBroadcast)
}

func TestSendTransaction_CustomSelector(t *testing.T) {
	t.Parallel()
	account := testAccount(t, 0)
	chain := newFakeChain(t, account)
	chain.addUtxo(30000)
	large := chain.addUtxo(90000)

	engine := onchain.NewPaymentEngine(
		chain,
		txbuilder.NewPSBTCodec(&chaincfg.MainNetParams),
		account,
		&chaincfg.MainNetParams,
	).WithCoinSelector(lastOnly{})

	res, err := engine.SendTransaction(context.Background(), recipientAddr, 50000)
	require.NoError(t, err)
	require.Len(t, res.Inputs, 1)
	assert.Equal(t, large.Hash, res.Inputs[0].TxHash)
}

// lastOnly spends only the last listed output.
type lastOnly struct{}

func (lastOnly) Select(ctx context.Context, resolver onchain.PrevOutResolver, candidates []*electrum.ListUnspentResult, amount uint64) ([]*onchain.UnspentOutput, error) {
	utxo, err := resolver.Resolve(ctx, candidates[len(candidates)-1])
	if err != nil {
		return nil, err
	}
	return []*onchain.UnspentOutput{utxo}, nil
}

func TestMessageSignVerify(t *testing.T) {
	t.Parallel()
	account := testAccount(t, 0)
	engine := newTestEngine(t, mock.NewMockChainSource(gomock.NewController(t)), account)
	other := newTestEngine(t, mock.NewMockChainSource(gomock.NewController(t)), testAccount(t, 1))

	sig, err := engine.SignMessage("hello world")
	require.NoError(t, err)

	assert.True(t, engine.VerifyMessage("hello world", sig))
	assert.False(t, engine.VerifyMessage("hello world!", sig))
	assert.False(t, other.VerifyMessage("hello world", sig))

	tests := map[string]string{
		"not base64":    "%%%",
		"empty":         "",
		"not der":       "AAECAw==",
		"truncated sig": sig[:len(sig)/2],
	}
	for name, bad := range tests {
		bad := bad
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, engine.VerifyMessage("hello world", bad))
			})
		})
	}
}
