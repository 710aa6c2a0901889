package main

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elementsproject/electrumpay/log"
	"github.com/elementsproject/electrumpay/onchain"
	"github.com/pkg/errors"
)

type sendFunc func(ctx context.Context) (*onchain.TransactionResult, error)

// sendWithRetry runs send and repeats it with exponential backoff while the
// server rejects the broadcast, at most retries more times. Every other
// failure is returned at once.
func sendWithRetry(ctx context.Context, send sendFunc, retries uint64, initialInterval time.Duration) (*onchain.TransactionResult, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initialInterval
	policy.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx)

	op := func() (*onchain.TransactionResult, error) {
		res, err := send(ctx)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, onchain.ErrBroadcast) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		log.Infof("send failed: %v, retrying in %s", err, wait)
	}
	return backoff.RetryNotifyWithData(op, b, notify)
}
