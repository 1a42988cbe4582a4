package pipeline

import (
	"sync"

	"dealdesk/internal"
	dealerrors "dealdesk/internal/errors"
)

type TriggerState string

const (
	TriggerIdle    TriggerState = "idle"
	TriggerRunning TriggerState = "running"
	TriggerFailed  TriggerState = "failed"
)

const triggerStateKey = "trigger.state"

// StateStore persists the trigger state so separate processes agree on it.
// *storage.DB implements it.
type StateStore interface {
	SetMetadata(key, value string) error
	GetMetadata(key string) (*string, error)
}

// Trigger guards the transfer against overlapping runs.
//
//	Idle --Start--> Running --Finish--> Idle
//	                Running --Fail----> Failed --Reset--> Idle
type Trigger struct {
	mu    sync.Mutex
	state TriggerState
	store StateStore
}

// NewTrigger loads the persisted state from store when one is given.
func NewTrigger(store StateStore) (*Trigger, error) {
	t := &Trigger{state: TriggerIdle, store: store}
	if store == nil {
		return t, nil
	}
	value, err := store.GetMetadata(triggerStateKey)
	if err != nil {
		return nil, dealerrors.Wrap(dealerrors.CodeStorage, err, "load trigger state")
	}
	if value != nil {
		switch s := TriggerState(*value); s {
		case TriggerIdle, TriggerRunning, TriggerFailed:
			t.state = s
		}
	}
	return t, nil
}

func (t *Trigger) State() TriggerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start moves Idle to Running. Any other state is a StateConflict.
func (t *Trigger) Start() error {
	return t.move(TriggerRunning, TriggerIdle)
}

func (t *Trigger) Finish() error {
	return t.move(TriggerIdle, TriggerRunning)
}

func (t *Trigger) Fail() error {
	return t.move(TriggerFailed, TriggerRunning)
}

// Reset returns to Idle from Failed, or from Running left over by a crashed process.
func (t *Trigger) Reset() error {
	return t.move(TriggerIdle, TriggerFailed, TriggerRunning, TriggerIdle)
}

// Label is the value rendered into the trigger cell.
func (s TriggerState) Label() string {
	if s == TriggerRunning {
		return internal.TriggerProcessing
	}
	return internal.TriggerReady
}

func (t *Trigger) move(to TriggerState, from ...TriggerState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := false
	for _, f := range from {
		if t.state == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return dealerrors.Newf(dealerrors.CodeStateConflict, "trigger is %s, cannot move to %s", t.state, to).
			WithDetails(map[string]any{"state": string(t.state), "target": string(to)})
	}

	if t.store != nil {
		if err := t.store.SetMetadata(triggerStateKey, string(to)); err != nil {
			return dealerrors.Wrap(dealerrors.CodeStorage, err, "persist trigger state")
		}
	}
	t.state = to
	return nil
}
