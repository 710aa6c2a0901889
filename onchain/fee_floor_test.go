package onchain

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSatPerKVByte_FeeForVSize(t *testing.T) {
	tcs := []struct {
		name    string
		rate    SatPerKVByte
		vsize   int64
		wantFee uint64
	}{
		{
			name:    "10 sat/vB",
			rate:    10000,
			vsize:   141,
			wantFee: 1410,
		},
		{
			name:    "rounds up",
			rate:    1500,
			vsize:   141,
			wantFee: 212,
		},
		{
			name:    "below floor",
			rate:    1000,
			vsize:   110,
			wantFee: MinRelayFee,
		},
		{
			name:    "zero size",
			rate:    50000,
			vsize:   0,
			wantFee: MinRelayFee,
		},
		{
			name:    "exactly at floor",
			rate:    1000,
			vsize:   141,
			wantFee: 141,
		},
		{
			name:    "highest accepted rate",
			rate:    MaxFeeRate,
			vsize:   200,
			wantFee: 20_000_000,
		},
		{
			name:    "product overflows",
			rate:    SatPerKVByte(math.MaxUint64 / 100),
			vsize:   200,
			wantFee: math.MaxUint64,
		},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := tc.rate.FeeForVSize(tc.vsize)
			if diff := cmp.Diff(tc.wantFee, got); diff != "" {
				t.Errorf("fee mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFeeRateFromBTCPerKB(t *testing.T) {
	tcs := []struct {
		name     string
		btcPerKB float64
		wantRate SatPerKVByte
		wantErr  bool
	}{
		{
			name:     "one sat per vbyte",
			btcPerKB: 0.00001,
			wantRate: 1000,
		},
		{
			name:     "ten sat per vbyte",
			btcPerKB: 0.0001,
			wantRate: 10000,
		},
		{
			name:     "sub sat rate",
			btcPerKB: 0.000001,
			wantRate: 100,
		},
		{
			name:     "no estimate",
			btcPerKB: -1,
			wantErr:  true,
		},
		{
			name:     "zero",
			btcPerKB: 0,
			wantErr:  true,
		},
		{
			name:     "one btc per kB",
			btcPerKB: 1,
			wantRate: MaxFeeRate,
		},
		{
			name:     "absurd estimate",
			btcPerKB: 1e9,
			wantErr:  true,
		},
		{
			name:     "rounds to zero",
			btcPerKB: 0.000000001,
			wantErr:  true,
		},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := FeeRateFromBTCPerKB(tc.btcPerKB)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %v BTC/kB", tc.btcPerKB)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tc.wantRate, got); diff != "" {
				t.Errorf("fee rate mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
