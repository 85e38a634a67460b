package source

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Retrying wraps a Source so a transient Read failure (a device hiccup, a
// dropped gigabit link) is retried with exponential backoff instead of
// propagating straight to the circular buffer's writer, which would
// otherwise treat every blip as a permanent shutdown. Reset clears the
// backoff state along with the inner source's own resync state, so a
// successful read after a gap returns the retry delay to its initial
// value.
type Retrying struct {
	inner Source
	b     backoff.ExponentialBackOff
}

// NewRetrying wraps inner with the given maximum retry interval.
func NewRetrying(inner Source, maxInterval time.Duration) *Retrying {
	r := &Retrying{
		inner: inner,
		b: backoff.ExponentialBackOff{
			InitialInterval:     backoff.DefaultInitialInterval,
			RandomizationFactor: backoff.DefaultRandomizationFactor,
			Multiplier:          backoff.DefaultMultiplier,
			MaxInterval:         maxInterval,
		},
	}
	r.b.Reset()
	return r
}

func (r *Retrying) Initialise() error { return r.inner.Initialise() }
func (r *Retrying) Status() Status    { return r.inner.Status() }
func (r *Retrying) Interrupt()        { r.inner.Interrupt() }

func (r *Retrying) Reset() error {
	r.b.Reset()
	return r.inner.Reset()
}

// Read retries the inner source until it succeeds or ctx is cancelled,
// sleeping for the backoff's next interval between attempts (spec §2 item
// 1's pull interface, retried uniformly regardless of which source variant
// is attached).
func (r *Retrying) Read(ctx context.Context, buf []byte) (int, error) {
	for {
		n, err := r.inner.Read(buf)
		if err == nil {
			r.b.Reset()
			return n, nil
		}

		delay := r.b.NextBackOff()
		if delay == backoff.Stop {
			return 0, err
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(delay):
		}
	}
}
