package watcher

import (
	"context"
	"strings"
	"time"

	"dealdesk/internal"
	"dealdesk/internal/app"
	"dealdesk/internal/pipeline"
	"dealdesk/internal/reference"
	"dealdesk/internal/sheet"
	"dealdesk/internal/util"
)

// Service polls the intake table. Every cycle expands new composite strings;
// when the trigger cell reads Processing it runs a guarded transfer.
type Service struct {
	app      *app.App
	interval time.Duration
	autoJoin bool
	now      func() time.Time
}

func NewService(a *app.App) *Service {
	interval := time.Duration(a.Cfg.WatchIntervalSec) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Service{app: a, interval: interval, autoJoin: a.Cfg.WatchAutoJoin, now: time.Now}
}

type CycleResult struct {
	Expand    pipeline.ExpandResult    `json:"expand"`
	Triggered bool                     `json:"triggered"`
	Transfer  *pipeline.TransferResult `json:"transfer,omitempty"`
	Join      *reference.JoinResult    `json:"join,omitempty"`
	State     pipeline.TriggerState    `json:"state"`
}

func (s *Service) Run(ctx context.Context) error {
	log := s.app.Log
	log.Info(ctx, "watcher started", map[string]any{"interval": s.interval.String(), "autoJoin": s.autoJoin})
	for {
		if _, err := s.RunCycle(ctx); err != nil {
			log.Error(ctx, "watcher cycle", err)
		}

		select {
		case <-ctx.Done():
			log.Info(ctx, "watcher stopped", nil)
			return nil
		case <-time.After(s.interval):
		}
	}
}

func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult
	log := s.app.Log

	exp, err := s.app.Expander()
	if err != nil {
		return res, err
	}
	// Polled expansion is not journaled.
	exp.Journal = nil
	if res.Expand, err = exp.Run(ctx); err != nil {
		return res, err
	}
	for _, issue := range res.Expand.Issues {
		log.Warn(ctx, "intake row not decoded", map[string]any{"row": issue.Row, "code": string(issue.Code)})
	}

	trig, err := s.app.Trigger()
	if err != nil {
		return res, err
	}
	res.State = trig.State()

	requested, err := s.requested(ctx)
	if err != nil {
		return res, err
	}
	if !requested {
		return res, nil
	}
	res.Triggered = true

	runErr := s.process(ctx, trig, &res)
	res.State = trig.State()
	if err := s.render(ctx, res.State); err != nil {
		log.Error(ctx, "render trigger cell", err)
	}
	if runErr != nil {
		return res, runErr
	}

	log.Info(ctx, "watcher cycle done", map[string]any{
		"expanded":    res.Expand.Expanded,
		"transferred": res.Transfer.Transferred,
	})
	return res, nil
}

func (s *Service) process(ctx context.Context, trig *pipeline.Trigger, res *CycleResult) error {
	transfer, err := s.app.Transfer()
	if err != nil {
		return err
	}
	if err := trig.Start(); err != nil {
		return err
	}

	out, err := transfer.Run(ctx, s.now())
	res.Transfer = &out
	if err == nil && s.autoJoin {
		var join *reference.Service
		if join, err = s.app.Join(); err == nil {
			var joined reference.JoinResult
			joined, err = join.Run(ctx)
			res.Join = &joined
		}
	}
	if err != nil {
		if ferr := trig.Fail(); ferr != nil {
			s.app.Log.Error(ctx, "mark trigger failed", ferr)
		}
		return err
	}
	return trig.Finish()
}

func (s *Service) requested(ctx context.Context) (bool, error) {
	table, cell, err := s.app.TriggerCell()
	if err != nil {
		return false, err
	}
	rows, err := table.Read(ctx, cell)
	if err != nil {
		return false, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return false, nil
	}
	value := strings.TrimSpace(util.CellString(rows[0][0]))
	return strings.EqualFold(value, internal.TriggerProcessing), nil
}

func (s *Service) render(ctx context.Context, state pipeline.TriggerState) error {
	table, cell, err := s.app.TriggerCell()
	if err != nil {
		return err
	}
	return table.Write(ctx, cell, []sheet.Row{{state.Label()}})
}
