package redis

import (
	"context"
	"time"
)

// Retry calls connect until it succeeds or ctx is done. The wait between
// attempts starts at minWait and doubles up to maxWait. onFail, if set, sees
// every failed attempt numbered from 1. The returned error is ctx.Err().
func Retry(ctx context.Context, minWait, maxWait time.Duration, connect func() error, onFail func(attempt int, err error)) error {
	wait := minWait
	for attempt := 1; ; attempt++ {
		err := connect()
		if err == nil {
			return nil
		}
		if onFail != nil {
			onFail(attempt, err)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		if wait *= 2; wait > maxWait {
			wait = maxWait
		}
	}
}
