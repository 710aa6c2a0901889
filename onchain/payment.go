package onchain

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/elementsproject/electrumpay/log"
	"github.com/elementsproject/electrumpay/metrics"
	"github.com/pkg/errors"
)

// maxSizingRounds bounds how often the transaction is rebuilt when the
// signed size grew past the size the fee was computed for.
const maxSizingRounds = 3

// PaymentEngine sends payments from one account. It holds no per payment
// state; concurrent SendTransaction calls may select the same outputs unless
// output reservation is enabled.
type PaymentEngine struct {
	chain     ChainSource
	codec     TransactionCodec
	account   Account
	params    *chaincfg.Params
	selector  CoinSelector
	estimator Estimator

	feeTargetBlocks uint32
	reserved        *reservations
	metrics         *metrics.Payments
}

func NewPaymentEngine(chain ChainSource, codec TransactionCodec, account Account, params *chaincfg.Params) *PaymentEngine {
	return &PaymentEngine{
		chain:           chain,
		codec:           codec,
		account:         account,
		params:          params,
		selector:        FirstFit{},
		estimator:       NewElectrumEstimator(chain),
		feeTargetBlocks: DefaultFeeTargetBlocks,
	}
}

func (e *PaymentEngine) WithCoinSelector(selector CoinSelector) *PaymentEngine {
	e.selector = selector
	return e
}

func (e *PaymentEngine) WithEstimator(estimator Estimator) *PaymentEngine {
	e.estimator = estimator
	return e
}

func (e *PaymentEngine) WithFeeTargetBlocks(blocks uint32) *PaymentEngine {
	e.feeTargetBlocks = blocks
	return e
}

// WithOutputReservation makes concurrent payments skip outputs that another
// running payment selected. Reservations are released when SendTransaction
// returns.
func (e *PaymentEngine) WithOutputReservation(enabled bool) *PaymentEngine {
	if enabled {
		e.reserved = newReservations()
	} else {
		e.reserved = nil
	}
	return e
}

func (e *PaymentEngine) WithMetrics(m *metrics.Payments) *PaymentEngine {
	e.metrics = m
	return e
}

func (e *PaymentEngine) Account() Account {
	return e.account
}

// SendTransaction pays amount sats to recipient, sends change back to the
// funding address and broadcasts the result.
func (e *PaymentEngine) SendTransaction(ctx context.Context, recipient string, amount uint64) (res *TransactionResult, err error) {
	defer func() {
		e.metrics.ObserveSend(sendOutcome(err))
	}()

	if err := e.validate(recipient, amount); err != nil {
		return nil, err
	}

	feeRate, err := e.estimator.EstimateFeeRate(ctx, e.feeTargetBlocks)
	if err != nil {
		return nil, err
	}

	resolver := PrevOutResolver(&chainResolver{chain: e.chain})
	if e.reserved != nil {
		c := &claim{set: e.reserved}
		defer c.release()
		resolver = &reservingResolver{next: resolver, claim: c}
	}

	inputs, err := e.selectInputs(ctx, resolver, amount)
	if err != nil {
		return nil, err
	}

	tx, fee, change, err := e.assemble(inputs, recipient, amount, feeRate)
	if err != nil {
		return nil, err
	}

	txid, err := e.chain.BroadcastTransaction(ctx, tx.RawHex)
	if err != nil {
		log.Errorf("broadcast of transaction %s failed: %v, raw transaction: %s", tx.TxID, err, tx.RawHex)
		return nil, &BroadcastError{TxID: tx.TxID, cause: err}
	}
	if txid != tx.TxID {
		log.Infof("server reported txid %s for transaction %s", txid, tx.TxID)
	}
	log.Infof("broadcast transaction %s paying %d sat to %s, fee %d sat, %d vbytes",
		tx.TxID, amount, recipient, fee, tx.VirtualSize)
	e.metrics.ObserveFee(fee)

	return &TransactionResult{
		TxID:        tx.TxID,
		RawHex:      tx.RawHex,
		Fee:         fee,
		VirtualSize: tx.VirtualSize,
		Change:      change,
		Inputs:      inputs,
	}, nil
}

func (e *PaymentEngine) validate(recipient string, amount uint64) error {
	if amount <= DustLimit {
		return errors.Wrapf(ErrValidation, "amount %d sat is not above the dust limit of %d sat", amount, DustLimit)
	}
	addr, err := btcutil.DecodeAddress(recipient, e.params)
	if err != nil {
		return errors.Wrapf(ErrValidation, "recipient %q: %v", recipient, err)
	}
	if !addr.IsForNet(e.params) {
		return errors.Wrapf(ErrValidation, "recipient %s is not a %s address", recipient, e.params.Name)
	}
	return nil
}

func (e *PaymentEngine) selectInputs(ctx context.Context, resolver PrevOutResolver, amount uint64) ([]*UnspentOutput, error) {
	address := e.account.Address()
	candidates, err := e.chain.ListUnspent(ctx, address)
	if err != nil {
		return nil, errors.Wrapf(err, "list unspent outputs of %s", address)
	}
	if len(candidates) == 0 {
		return nil, errors.Wrapf(ErrNoOutputs, "address %s", address)
	}

	inputs, err := e.selector.Select(ctx, resolver, candidates, amount)
	if err != nil {
		return nil, errors.Wrap(err, "select inputs")
	}
	if len(inputs) == 0 {
		return nil, errors.Wrapf(ErrNoOutputs, "all %d outputs of %s are reserved", len(candidates), address)
	}
	if total := sumValues(inputs); total < amount {
		return nil, errors.Wrapf(ErrInsufficientFunds, "have %d sat, need %d sat", total, amount)
	}
	log.Debugf("selected %d of %d outputs worth %d sat", len(inputs), len(candidates), sumValues(inputs))
	return inputs, nil
}

// assemble builds the signed transaction in two passes. A zero fee draft is
// signed to measure its virtual size, then the transaction is rebuilt with
// the fee for that size. Change at or below the dust limit is added to the
// fee.
func (e *PaymentEngine) assemble(inputs []*UnspentOutput, recipient string, amount uint64, feeRate SatPerKVByte) (tx *FinalTransaction, fee, change uint64, err error) {
	total := sumValues(inputs)

	draftChange := total - amount
	if draftChange <= DustLimit {
		draftChange = 0
	}
	sizing, err := e.build(inputs, recipient, amount, draftChange)
	if err != nil {
		return nil, 0, 0, errors.Wrap(err, "build sizing draft")
	}
	vsize := sizing.VirtualSize

	for round := 0; round < maxSizingRounds; round++ {
		fee = feeRate.FeeForVSize(vsize)
		if fee > total || total-fee < amount {
			return nil, 0, 0, errors.Wrapf(ErrInsufficientFunds,
				"have %d sat, need %d sat plus %d sat fee", total, amount, fee)
		}
		change = total - amount - fee
		if change <= DustLimit {
			fee += change
			change = 0
		}

		tx, err = e.build(inputs, recipient, amount, change)
		if err != nil {
			return nil, 0, 0, errors.Wrap(err, "build transaction")
		}
		if tx.VirtualSize <= vsize {
			return tx, fee, change, nil
		}
		// the final signatures came out longer than the sizing ones
		vsize = tx.VirtualSize
	}
	return nil, 0, 0, errors.Errorf("transaction size did not settle after %d rounds", maxSizingRounds)
}

func (e *PaymentEngine) build(inputs []*UnspentOutput, recipient string, amount, change uint64) (*FinalTransaction, error) {
	outputs := []*Output{{Address: recipient, Value: amount}}
	if change > 0 {
		outputs = append(outputs, &Output{Address: e.account.Address(), Value: change})
	}
	draft, err := e.codec.NewDraft(inputs, outputs)
	if err != nil {
		return nil, err
	}
	for i := range inputs {
		if err := e.codec.SignInput(draft, i, e.account); err != nil {
			return nil, errors.Wrapf(err, "sign input %d", i)
		}
	}
	return e.codec.Finalize(draft)
}

func sendOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrFeeEstimate):
		return "fee_estimate_failed"
	case errors.Is(err, ErrNoOutputs), errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrBroadcast):
		return "broadcast_failed"
	default:
		return "error"
	}
}
