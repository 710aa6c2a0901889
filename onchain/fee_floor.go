package onchain

import (
	"math"
	"math/bits"

	"github.com/elementsproject/electrumpay/log"
)

// SatPerKVByte is a fee rate in sats per 1000 virtual bytes. One BTC/kB
// equals 100000 sat/vB.
type SatPerKVByte uint64

// MaxFeeRate is the highest estimate accepted, 1 BTC/kB.
const MaxFeeRate SatPerKVByte = 100_000_000

func (r SatPerKVByte) SatPerVByte() float64 {
	return float64(r) / 1000
}

// FeeForVSize returns the fee for a transaction of vsize virtual bytes,
// rounded up to the next sat and never below MinRelayFee. A product that
// does not fit saturates at math.MaxUint64.
func (r SatPerKVByte) FeeForVSize(vsize int64) uint64 {
	if vsize < 0 {
		vsize = 0
	}
	hi, lo := bits.Mul64(uint64(r), uint64(vsize))
	if hi != 0 || lo > math.MaxUint64-999 {
		return math.MaxUint64
	}
	fee := (lo + 999) / 1000
	if fee < MinRelayFee {
		log.Debugf("fee of %d sat for %d vbytes is below floor, take %d sat instead",
			fee, vsize, MinRelayFee)
		return MinRelayFee
	}
	return fee
}
