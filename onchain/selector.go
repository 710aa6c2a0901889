package onchain

import (
	"bytes"
	"context"
	"encoding/hex"

	"github.com/btcsuite/btcd/wire"
	"github.com/elementsproject/electrumpay/electrum"
	"github.com/elementsproject/electrumpay/log"
	"github.com/pkg/errors"
)

// PrevOutResolver turns an unspent output listed by the server into an
// UnspentOutput with value and script read from its parent transaction.
type PrevOutResolver interface {
	Resolve(ctx context.Context, candidate *electrum.ListUnspentResult) (*UnspentOutput, error)
}

// CoinSelector picks the inputs that fund amount from candidates.
// Candidates that resolve to ErrOutputReserved must be skipped.
type CoinSelector interface {
	Select(ctx context.Context, resolver PrevOutResolver, candidates []*electrum.ListUnspentResult, amount uint64) ([]*UnspentOutput, error)
}

// FirstFit walks the candidates in the order the server returned them and
// stops at the first prefix whose value reaches amount. Parent transactions
// are fetched one at a time. If no prefix reaches amount all usable
// candidates are returned.
type FirstFit struct{}

var _ CoinSelector = FirstFit{}

func (FirstFit) Select(ctx context.Context, resolver PrevOutResolver, candidates []*electrum.ListUnspentResult, amount uint64) ([]*UnspentOutput, error) {
	var (
		selected []*UnspentOutput
		total    uint64
	)
	for _, candidate := range candidates {
		if total >= amount {
			break
		}
		utxo, err := resolver.Resolve(ctx, candidate)
		if errors.Is(err, ErrOutputReserved) {
			log.Debugf("skipping reserved output %s", outPoint(candidate.Hash, candidate.Position))
			continue
		}
		if err != nil {
			return nil, err
		}
		selected = append(selected, utxo)
		total += utxo.Value
	}
	return selected, nil
}

// chainResolver fetches the verbose parent transaction and reads the output
// from its serialization.
type chainResolver struct {
	chain ChainSource
}

func (r *chainResolver) Resolve(ctx context.Context, candidate *electrum.ListUnspentResult) (*UnspentOutput, error) {
	tx, err := r.chain.GetTransaction(ctx, candidate.Hash)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch parent of %s", outPoint(candidate.Hash, candidate.Position))
	}
	msgTx, err := decodeTx(tx.Hex)
	if err != nil {
		return nil, errors.Wrapf(err, "decode parent %s", candidate.Hash)
	}
	if got := msgTx.TxHash().String(); got != candidate.Hash {
		return nil, errors.Errorf("parent transaction hash mismatch: asked for %s, got %s", candidate.Hash, got)
	}
	if int(candidate.Position) >= len(msgTx.TxOut) {
		return nil, errors.Errorf("transaction %s has no output %d", candidate.Hash, candidate.Position)
	}
	out := msgTx.TxOut[candidate.Position]
	return &UnspentOutput{
		TxHash:      candidate.Hash,
		OutputIndex: candidate.Position,
		Value:       uint64(out.Value),
		BlockHeight: candidate.Height,
		PkScript:    out.PkScript,
	}, nil
}

func decodeTx(txHex string) (*wire.MsgTx, error) {
	txBytes, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, err
	}
	msgTx := wire.NewMsgTx(2)
	if err := msgTx.Deserialize(bytes.NewReader(txBytes)); err != nil {
		return nil, err
	}
	return msgTx, nil
}
