package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShutdown_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	boom := errors.New("deadline exceeded")

	var order []string
	stop := func(name string, err error) stopper {
		return stopper{name, func(context.Context) error {
			order = append(order, name)
			return err
		}}
	}

	err := shutdown(context.Background(), log,
		stop("gateway", boom),
		stop("metrics", nil),
	)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"gateway", "metrics"}, order, "a failure does not skip later servers")
	assert.Contains(t, buf.String(), "server=gateway")
	assert.Contains(t, buf.String(), "deadline exceeded")
	assert.NotContains(t, buf.String(), "server=metrics")
}

func TestShutdown_Clean(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	err := shutdown(context.Background(), log, stopper{"gateway", func(context.Context) error { return nil }})
	assert.NoError(t, err)
	assert.Empty(t, buf.String())
}
