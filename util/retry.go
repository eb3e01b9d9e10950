package util

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// Retrier is a wrapper around "github.com/cenkalti/backoff".ExponentialBackOff
type Retrier struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
	MaxElapsedTime      time.Duration
	MaxTries            int
	ShouldRetry         func(err error) bool
	Notify              func(err error, d time.Duration)
	backoff             backoff.BackOff
}

// NewRetrier creates a new Retrier instance using default values.
func NewRetrier() *Retrier {
	// based on https://github.com/cenkalti/backoff/blob/master/exponential.go#L74
	return &Retrier{
		InitialInterval:     time.Millisecond * 500,
		MaxInterval:         time.Second * 60,
		Multiplier:          1.5,
		RandomizationFactor: 0.5,
		MaxElapsedTime:      time.Minute * 15,
		MaxTries:            10,
		ShouldRetry:         nil,
	}
}

// NewFixedRetrier returns a Retrier which waits the same interval between
// attempts and gives up once the budget has elapsed. MaxTries is zero,
// meaning the number of attempts is bounded only by the budget.
func NewFixedRetrier(interval, budget time.Duration) *Retrier {
	return &Retrier{
		InitialInterval:     interval,
		MaxInterval:         interval,
		Multiplier:          1,
		RandomizationFactor: 0,
		MaxElapsedTime:      budget,
	}
}

// Retry the function f until it does not return error or BackOff stops.
func (r *Retrier) Retry(ctx context.Context, f func() error) error {
	b := backoff.WithContext(r.withTries(), ctx)
	return backoff.RetryNotify(func() error { return r.checkErr(f()) }, b, r.notify)
}

func (r *Retrier) notify(err error, d time.Duration) {
	if r.Notify != nil {
		r.Notify(err, d)
	}
}

func (r *Retrier) checkErr(err error) error {
	switch {
	case err != nil && r.ShouldRetry != nil && !r.ShouldRetry(err):
		return &backoff.PermanentError{Err: err}
	case err != nil:
		return err
	default:
		return nil
	}
}

func (r *Retrier) withTries() backoff.BackOff {
	eb := &backoff.ExponentialBackOff{
		InitialInterval:     r.InitialInterval,
		MaxInterval:         r.MaxInterval,
		Multiplier:          r.Multiplier,
		RandomizationFactor: r.RandomizationFactor,
		MaxElapsedTime:      r.MaxElapsedTime,
		Clock:               backoff.SystemClock,
	}
	eb.Reset()
	r.backoff = eb

	if r.MaxTries <= 0 {
		return r.backoff
	}

	// Cap the number of retry attempts.
	return backoff.WithMaxRetries(r.backoff, uint64(r.MaxTries-1))
}
