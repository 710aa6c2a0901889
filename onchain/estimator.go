package onchain

import (
	"context"
	"math"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/elementsproject/electrumpay/log"
	"github.com/pkg/errors"
)

// Estimator is used to estimate on-chain fees for transactions.
type Estimator interface {
	// EstimateFeeRate returns the fee rate for a transaction that should be
	// confirmed within targetBlocks.
	EstimateFeeRate(ctx context.Context, targetBlocks uint32) (SatPerKVByte, error)
}

// FeeSource returns fee estimates in BTC/kB.
type FeeSource interface {
	EstimateFee(ctx context.Context, targetBlocks uint32) (float64, error)
}

// ElectrumEstimator asks the electrum server for a fee estimate. There is no
// fallback: a failed or missing estimate is an error.
type ElectrumEstimator struct {
	source FeeSource
}

var _ Estimator = (*ElectrumEstimator)(nil)

func NewElectrumEstimator(source FeeSource) *ElectrumEstimator {
	return &ElectrumEstimator{source: source}
}

func (e *ElectrumEstimator) EstimateFeeRate(ctx context.Context, targetBlocks uint32) (SatPerKVByte, error) {
	btcPerKB, err := e.source.EstimateFee(ctx, targetBlocks)
	if err != nil {
		return 0, withKind(ErrFeeEstimate, err, "estimate for %d blocks", targetBlocks)
	}
	rate, err := FeeRateFromBTCPerKB(btcPerKB)
	if err != nil {
		return 0, err
	}
	log.Debugf("fee estimate for %d blocks: %v BTC/kB (%.3f sat/vB)", targetBlocks, btcPerKB, rate.SatPerVByte())
	return rate, nil
}

// FeeRateFromBTCPerKB converts an electrum estimate in BTC/kB. Non positive
// estimates, which servers return when they have no data, are rejected, as
// are estimates above MaxFeeRate.
func FeeRateFromBTCPerKB(btcPerKB float64) (SatPerKVByte, error) {
	if math.IsNaN(btcPerKB) || math.IsInf(btcPerKB, 0) || btcPerKB <= 0 {
		return 0, errors.Wrapf(ErrFeeEstimate, "unusable estimate %v BTC/kB", btcPerKB)
	}
	satPerKB, err := btcutil.NewAmount(btcPerKB)
	if err != nil {
		return 0, withKind(ErrFeeEstimate, err, "convert %v BTC/kB", btcPerKB)
	}
	if satPerKB <= 0 {
		return 0, errors.Wrapf(ErrFeeEstimate, "estimate %v BTC/kB rounds to zero", btcPerKB)
	}
	if SatPerKVByte(satPerKB) > MaxFeeRate {
		return 0, errors.Wrapf(ErrFeeEstimate, "estimate %v BTC/kB is above the maximum of %d sat/kvB", btcPerKB, MaxFeeRate)
	}
	return SatPerKVByte(satPerKB), nil
}
