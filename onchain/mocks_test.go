package onchain_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/elementsproject/electrumpay/electrum"
	"github.com/elementsproject/electrumpay/onchain"
	"github.com/elementsproject/electrumpay/txbuilder"
	"github.com/elementsproject/electrumpay/wallet"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const (
	testMnemonic  = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	recipientAddr = "bc1qnjg0jd8228aq7egyzacy8cys3knf9xvrerkf9g"
)

// fakeChain is an in memory ChainSource. Parent transactions pay to the
// funding account so the engine can sign for them.
type fakeChain struct {
	t        *testing.T
	pkScript []byte

	mu          sync.Mutex
	unspent     []*electrum.ListUnspentResult
	txs         map[string]string
	nextParent  uint32
	estimate    float64
	estimateErr error
	broadcastFn func(rawTx string) (string, error)

	listCalls      int
	getTxCalls     int
	estimateCalls  int
	broadcastCalls int
	broadcasts     []string
}

func newFakeChain(t *testing.T, account onchain.Account) *fakeChain {
	t.Helper()
	addr, err := btcutil.DecodeAddress(account.Address(), &chaincfg.MainNetParams)
	require.NoError(t, err)
	pkScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	return &fakeChain{
		t:        t,
		pkScript: pkScript,
		txs:      make(map[string]string),
		estimate: 0.0001,
	}
}

// addUtxo creates a parent transaction paying value to the funding account
// and lists its output as unspent.
func (f *fakeChain) addUtxo(value uint64) *electrum.ListUnspentResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextParent++

	var prevHash chainhash.Hash
	prevHash[0] = 0xaa
	parent := wire.NewMsgTx(2)
	parent.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prevHash, f.nextParent), nil, nil))
	parent.AddTxOut(wire.NewTxOut(int64(value), f.pkScript))

	var buf bytes.Buffer
	require.NoError(f.t, parent.Serialize(&buf))
	txid := parent.TxHash().String()
	f.txs[txid] = hex.EncodeToString(buf.Bytes())

	utxo := &electrum.ListUnspentResult{Hash: txid, Position: 0, Value: value, Height: 800000}
	f.unspent = append(f.unspent, utxo)
	return utxo
}

func (f *fakeChain) ListUnspent(ctx context.Context, address string) ([]*electrum.ListUnspentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	out := make([]*electrum.ListUnspentResult, len(f.unspent))
	copy(out, f.unspent)
	return out, nil
}

func (f *fakeChain) GetTransaction(ctx context.Context, txHash string) (*electrum.GetTransactionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getTxCalls++
	txHex, ok := f.txs[txHash]
	if !ok {
		return nil, &electrum.RPCError{Code: 2, Message: "No such mempool or blockchain transaction"}
	}
	return &electrum.GetTransactionResult{TxID: txHash, Hash: txHash, Hex: txHex}, nil
}

func (f *fakeChain) EstimateFee(ctx context.Context, targetBlocks uint32) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.estimateCalls++
	return f.estimate, f.estimateErr
}

func (f *fakeChain) BroadcastTransaction(ctx context.Context, rawTx string) (string, error) {
	f.mu.Lock()
	f.broadcastCalls++
	f.broadcasts = append(f.broadcasts, rawTx)
	fn := f.broadcastFn
	f.mu.Unlock()
	if fn != nil {
		return fn(rawTx)
	}
	tx, err := decodeTx(rawTx)
	if err != nil {
		return "", errors.Wrap(electrum.ErrProtocol, err.Error())
	}
	return tx.TxHash().String(), nil
}

func (f *fakeChain) counts() (list, getTx, estimate, broadcast int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.getTxCalls, f.estimateCalls, f.broadcastCalls
}

func (f *fakeChain) broadcasted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.broadcasts))
	copy(out, f.broadcasts)
	return out
}

func decodeTx(rawHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return tx, nil
}

func mustDecodeTx(t *testing.T, rawHex string) *wire.MsgTx {
	t.Helper()
	tx, err := decodeTx(rawHex)
	require.NoError(t, err)
	return tx
}

func testAccount(t *testing.T, index uint32) *wallet.Account {
	t.Helper()
	deriver, err := wallet.NewAccountDeriver(testMnemonic, "", &chaincfg.MainNetParams)
	require.NoError(t, err)
	account, err := deriver.Account(index)
	require.NoError(t, err)
	return account
}

func newTestEngine(t *testing.T, chain onchain.ChainSource, account onchain.Account) *onchain.PaymentEngine {
	t.Helper()
	return onchain.NewPaymentEngine(
		chain,
		txbuilder.NewPSBTCodec(&chaincfg.MainNetParams),
		account,
		&chaincfg.MainNetParams,
	)
}

func outputSum(tx *wire.MsgTx) uint64 {
	var sum uint64
	for _, out := range tx.TxOut {
		sum += uint64(out.Value)
	}
	return sum
}
