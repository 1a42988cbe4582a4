package pipeline

import (
	"context"

	"dealdesk/internal"
	"dealdesk/internal/logger"
)

// Journal records one entry per pipeline run. *storage.DB implements it.
type Journal interface {
	StartRun(kind internal.RunKind) (internal.RunRecord, error)
	FinishRun(run internal.RunRecord) error
}

// beginRun opens a journal entry and scopes ctx logging to its ID. A nil
// journal yields an unrecorded run.
func beginRun(ctx context.Context, j Journal, log *logger.Logger, kind internal.RunKind) (internal.RunRecord, context.Context) {
	run := internal.RunRecord{Kind: kind, Status: internal.RunRunning}
	if j == nil {
		return run, ctx
	}
	started, err := j.StartRun(kind)
	if err != nil {
		log.Warn(ctx, "run journal unavailable", map[string]any{"kind": string(kind), "error": err.Error()})
		return run, ctx
	}
	return started, log.WithRunID(ctx, started.ID)
}

func finishRun(ctx context.Context, j Journal, log *logger.Logger, run internal.RunRecord, runErr error) {
	run.Status = internal.RunSucceeded
	if runErr != nil {
		run.Status = internal.RunFailed
		run.Error = runErr.Error()
	}
	if j == nil || run.ID == "" {
		return
	}
	if err := j.FinishRun(run); err != nil {
		log.Error(ctx, "record run", err)
	}
}

func orNop(log *logger.Logger) *logger.Logger {
	if log == nil {
		return logger.Nop()
	}
	return log
}
