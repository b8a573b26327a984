package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"marketcal/internal/markethours"
)

// RulesAudit checks that the rule set covers the years around now. A gap
// is reported through OnGap so it surfaces before dates fall into it.
type RulesAudit struct {
	Cal   *markethours.Calendar
	Back  int
	Ahead int
	OnGap func(ctx context.Context, err error)
}

func (j *RulesAudit) Name() string { return "rules-audit" }

func (j *RulesAudit) Run(ctx context.Context) error {
	year := j.Cal.Now().Year()
	err := j.Cal.Rules().Validate(year, j.Back, j.Ahead)
	if err != nil && j.OnGap != nil {
		j.OnGap(ctx, err)
	}
	return err
}

// EventPruner is the journal side of JournalPrune.
type EventPruner interface {
	PruneEvents(ctx context.Context, cutoff time.Time) (int64, error)
}

// JournalPrune removes journaled heartbeats older than Retention.
type JournalPrune struct {
	Store     EventPruner
	Retention time.Duration
	Now       func() time.Time
}

func (j *JournalPrune) Name() string { return "journal-prune" }

func (j *JournalPrune) Run(ctx context.Context) error {
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	n, err := j.Store.PruneEvents(ctx, now().Add(-j.Retention))
	if err != nil {
		return fmt.Errorf("prune journal: %w", err)
	}
	if n > 0 {
		slog.Info("pruned heartbeats", "component", "scheduler", "rows", n)
	}
	return nil
}
