package onchain

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestElectrumEstimator(t *testing.T) {
	source := &FeeSourceMock{}
	estimator := NewElectrumEstimator(source)

	// 0.00023 BTC/kB is 23 sat/vB
	source.EstimateFeeReturn = 0.00023
	rate, err := estimator.EstimateFeeRate(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, SatPerKVByte(23000), rate)
	require.Equal(t, 23.0, rate.SatPerVByte())
	require.Equal(t, uint32(1), source.EstimateFeeTarget)

	// Errors are not replaced by a fallback rate.
	efe := fmt.Errorf("some error")
	source.EstimateFeeError = &efe
	_, err = estimator.EstimateFeeRate(context.Background(), 1)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrFeeEstimate))
	require.True(t, errors.Is(err, efe))

	// Servers answer -1 when they have no estimate.
	source.EstimateFeeError = nil
	source.EstimateFeeReturn = -1
	_, err = estimator.EstimateFeeRate(context.Background(), 1)
	require.True(t, errors.Is(err, ErrFeeEstimate))

	require.Equal(t, 3, source.EstimateFeeCalled)
}

// FeeSourceMock is a mock for the FeeSource interface.
type FeeSourceMock struct {
	EstimateFeeCalled int
	EstimateFeeTarget uint32
	EstimateFeeReturn float64
	EstimateFeeError  *error
}

func (m *FeeSourceMock) EstimateFee(ctx context.Context, targetBlocks uint32) (float64, error) {
	m.EstimateFeeCalled++
	m.EstimateFeeTarget = targetBlocks
	if m.EstimateFeeError != nil {
		return m.EstimateFeeReturn, *m.EstimateFeeError
	}
	return m.EstimateFeeReturn, nil
}
