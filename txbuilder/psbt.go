// Package txbuilder turns selected outputs into signed P2WPKH transactions
// using PSBT packets as drafts.
package txbuilder

import (
	"bytes"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/mempool"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/elementsproject/electrumpay/onchain"
	"github.com/pkg/errors"
)

const txVersion = 2

// PSBTCodec builds version 2 transactions spending P2WPKH outputs with
// SIGHASH_ALL.
type PSBTCodec struct {
	params *chaincfg.Params
}

var _ onchain.TransactionCodec = (*PSBTCodec)(nil)

func NewPSBTCodec(params *chaincfg.Params) *PSBTCodec {
	return &PSBTCodec{params: params}
}

func (c *PSBTCodec) NewDraft(inputs []*onchain.UnspentOutput, outputs []*onchain.Output) (*psbt.Packet, error) {
	if len(inputs) == 0 {
		return nil, errors.New("draft needs at least one input")
	}
	if len(outputs) == 0 {
		return nil, errors.New("draft needs at least one output")
	}

	outPoints := make([]*wire.OutPoint, 0, len(inputs))
	for _, in := range inputs {
		hash, err := chainhash.NewHashFromStr(in.TxHash)
		if err != nil {
			return nil, errors.Wrapf(err, "input %s", in.OutPoint())
		}
		outPoints = append(outPoints, wire.NewOutPoint(hash, in.OutputIndex))
	}

	txOuts := make([]*wire.TxOut, 0, len(outputs))
	for _, out := range outputs {
		pkScript, err := c.outputScript(out.Address)
		if err != nil {
			return nil, err
		}
		txOuts = append(txOuts, wire.NewTxOut(int64(out.Value), pkScript))
	}

	sequences := make([]uint32, len(inputs))
	for i := range sequences {
		sequences[i] = wire.MaxTxInSequenceNum
	}
	packet, err := psbt.New(outPoints, txOuts, txVersion, 0, sequences)
	if err != nil {
		return nil, errors.Wrap(err, "create psbt")
	}

	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return nil, errors.Wrap(err, "create psbt updater")
	}
	for i, in := range inputs {
		if !txscript.IsPayToWitnessPubKeyHash(in.PkScript) {
			return nil, errors.Errorf("input %s is not a p2wpkh output", in.OutPoint())
		}
		if err := updater.AddInWitnessUtxo(wire.NewTxOut(int64(in.Value), in.PkScript), i); err != nil {
			return nil, errors.Wrapf(err, "add witness utxo to input %d", i)
		}
		if err := updater.AddInSighashType(txscript.SigHashAll, i); err != nil {
			return nil, errors.Wrapf(err, "add sighash type to input %d", i)
		}
	}
	return packet, nil
}

// SignInput computes the segwit v0 sighash of input idx and adds the
// signer's signature to the draft.
func (c *PSBTCodec) SignInput(draft *psbt.Packet, idx int, signer onchain.Signer) error {
	if idx < 0 || idx >= len(draft.Inputs) {
		return errors.Errorf("input index %d out of range", idx)
	}
	witnessUtxo := draft.Inputs[idx].WitnessUtxo
	if witnessUtxo == nil {
		return errors.Errorf("input %d has no witness utxo", idx)
	}

	sigHashes := txscript.NewTxSigHashes(draft.UnsignedTx, prevOutFetcher(draft))
	sigHash, err := txscript.CalcWitnessSigHash(
		witnessUtxo.PkScript, sigHashes, txscript.SigHashAll,
		draft.UnsignedTx, idx, witnessUtxo.Value,
	)
	if err != nil {
		return errors.Wrapf(err, "sighash of input %d", idx)
	}

	sig, err := signer.Sign(sigHash)
	if err != nil {
		return err
	}
	sig = append(sig, byte(txscript.SigHashAll))

	updater, err := psbt.NewUpdater(draft)
	if err != nil {
		return errors.Wrap(err, "create psbt updater")
	}
	outcome, err := updater.Sign(idx, sig, signer.PublicKey(), nil, nil)
	if err != nil {
		return errors.Wrapf(err, "add signature to input %d", idx)
	}
	if outcome != psbt.SignSuccesful {
		return errors.Errorf("signing input %d finished with outcome %d", idx, outcome)
	}
	return nil
}

// Finalize finalizes every input and extracts the network serialization.
func (c *PSBTCodec) Finalize(draft *psbt.Packet) (*onchain.FinalTransaction, error) {
	if err := psbt.MaybeFinalizeAll(draft); err != nil {
		return nil, errors.Wrap(err, "finalize psbt")
	}
	tx, err := psbt.Extract(draft)
	if err != nil {
		return nil, errors.Wrap(err, "extract transaction")
	}
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, errors.Wrap(err, "serialize transaction")
	}
	return &onchain.FinalTransaction{
		RawHex:      hex.EncodeToString(buf.Bytes()),
		VirtualSize: mempool.GetTxVirtualSize(btcutil.NewTx(tx)),
		TxID:        tx.TxHash().String(),
	}, nil
}

func (c *PSBTCodec) outputScript(address string) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, c.params)
	if err != nil {
		return nil, errors.Wrapf(err, "decode output address %q", address)
	}
	if !addr.IsForNet(c.params) {
		return nil, errors.Errorf("output address %s is not a %s address", address, c.params.Name)
	}
	return txscript.PayToAddrScript(addr)
}

func prevOutFetcher(draft *psbt.Packet) txscript.PrevOutputFetcher {
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(draft.Inputs))
	for i, in := range draft.UnsignedTx.TxIn {
		prevOuts[in.PreviousOutPoint] = draft.Inputs[i].WitnessUtxo
	}
	return txscript.NewMultiPrevOutFetcher(prevOuts)
}
