package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_ConnectsAfterFailures(t *testing.T) {
	calls := 0
	var failed []int
	err := Retry(context.Background(), time.Millisecond, 4*time.Millisecond,
		func() error {
			calls++
			if calls < 4 {
				return errFail
			}
			return nil
		},
		func(attempt int, err error) {
			assert.ErrorIs(t, err, errFail)
			failed = append(failed, attempt)
		})

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []int{1, 2, 3}, failed)
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, time.Hour, time.Hour,
		func() error { calls++; return errFail },
		func(int, error) { cancel() })

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
}
