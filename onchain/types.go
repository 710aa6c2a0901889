// Package onchain builds, signs and broadcasts single recipient payments
// from one BIP84 account.
package onchain

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/elementsproject/electrumpay/electrum"
)

const (
	// DustLimit is the smallest output value in sats that is created. Send
	// amounts must exceed it and smaller change is folded into the fee.
	DustLimit uint64 = 546

	// MinRelayFee is the absolute fee floor in sats.
	MinRelayFee uint64 = 141

	// DefaultFeeTargetBlocks is the confirmation target used for the fee
	// estimate.
	DefaultFeeTargetBlocks uint32 = 1
)

// UnspentOutput is a spendable output of the funding address with value and
// script read from its parent transaction.
type UnspentOutput struct {
	TxHash      string
	OutputIndex uint32
	Value       uint64
	BlockHeight int32
	PkScript    []byte
}

func (u *UnspentOutput) OutPoint() string {
	return outPoint(u.TxHash, u.OutputIndex)
}

func outPoint(txHash string, index uint32) string {
	return fmt.Sprintf("%s:%d", txHash, index)
}

// Output pays Value sats to Address.
type Output struct {
	Address string
	Value   uint64
}

// FinalTransaction is a fully signed transaction ready for broadcast.
type FinalTransaction struct {
	RawHex      string
	VirtualSize int64
	TxID        string
}

// TransactionResult describes a broadcast payment.
type TransactionResult struct {
	TxID        string
	RawHex      string
	Fee         uint64
	VirtualSize int64
	Change      uint64
	Inputs      []*UnspentOutput
}

// ChainSource is the part of the electrum client the engine depends on.
type ChainSource interface {
	ListUnspent(ctx context.Context, address string) ([]*electrum.ListUnspentResult, error)
	GetTransaction(ctx context.Context, txHash string) (*electrum.GetTransactionResult, error)
	EstimateFee(ctx context.Context, targetBlocks uint32) (float64, error)
	BroadcastTransaction(ctx context.Context, rawTx string) (string, error)
}

//go:generate go run go.uber.org/mock/mockgen -destination=mock/mock_chain_source.go -package=mock github.com/elementsproject/electrumpay/onchain ChainSource

var _ ChainSource = (*electrum.Client)(nil)

// Signer signs sighashes for the inputs of the funding address.
type Signer interface {
	// PublicKey returns the compressed public key.
	PublicKey() []byte
	// Sign returns a DER encoded signature over a 32 byte hash.
	Sign(hash []byte) ([]byte, error)
}

// Account is the funding account payments are made from.
type Account interface {
	Signer
	Address() string
	Verify(hash, sig []byte) bool
}

// TransactionCodec assembles drafts and turns them into final transactions.
type TransactionCodec interface {
	NewDraft(inputs []*UnspentOutput, outputs []*Output) (*psbt.Packet, error)
	SignInput(draft *psbt.Packet, idx int, signer Signer) error
	Finalize(draft *psbt.Packet) (*FinalTransaction, error)
}

func sumValues(utxos []*UnspentOutput) uint64 {
	var total uint64
	for _, u := range utxos {
		total += u.Value
	}
	return total
}
