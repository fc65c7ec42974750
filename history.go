package lhm

import (
	"context"

	"github.com/loykin/lhm/internal/invoker"
	"github.com/loykin/lhm/internal/store"
)

// historyJournal records invoker runs in a store.
type historyJournal struct {
	store *store.Store
}

func (h historyJournal) RunStarted(ctx context.Context, run invoker.RunInfo) (int64, error) {
	return h.store.Begin(ctx, store.Run{
		Origin:      run.Origin,
		Destination: run.Destination,
		Archive:     run.Archive,
		Strategy:    run.Strategy,
		StartedAt:   run.StartedAt,
	})
}

func (h historyJournal) RunFinished(ctx context.Context, id int64, result invoker.RunResult) error {
	return h.store.Finish(ctx, id, result.Chunks, result.Rows, result.Err, result.FinishedAt)
}
