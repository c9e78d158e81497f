// Package try retries operations.
package try

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Do calls fn until it succeeds, at most tries times, sleeping delay between
// calls.
func Do(
	ctx context.Context,
	tries int,
	delay time.Duration,
	fn func(ctx context.Context) error,
) error {
	return DoExponentialBackoff(ctx, tries, delay, 1, delay, fn)
}

// DoExponentialBackoff is like Do but multiplies the delay after each failure,
// up to maxBackoff.
func DoExponentialBackoff(
	ctx context.Context,
	tries int,
	delay time.Duration,
	multiplier time.Duration,
	maxBackoff time.Duration,
	fn func(ctx context.Context) error,
) (err error) {
	if tries <= 0 {
		log.Panic().Int("tries", tries).Msg("tries is 0 or negative")
	}
	for try := 0; try < tries; try++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		log.Warn().Err(err).Int("try", try).Int("maxTries", tries).Msg("try failed")
		if try == tries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = delay * multiplier
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
	log.Warn().Err(err).Msg("failed all tries")
	return err
}

// DoWithContextTimeout is like Do but bounds each call with timeout.
func DoWithContextTimeout(
	parent context.Context,
	tries int,
	delay time.Duration,
	timeout time.Duration,
	fn func(ctx context.Context, try int) error,
) error {
	try := 0
	return Do(parent, tries, delay, func(parent context.Context) error {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		defer func() { try++ }()
		return fn(ctx, try)
	})
}
