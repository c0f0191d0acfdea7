package poller

import (
	"time"

	"github.com/maauso/vidgen/internal/generator"
)

// Task is the canonical record of one provider task. It is created when the
// provider accepts a submission and is mutated only by the Poller driving it.
// Once State is terminal the task no longer changes.
type Task struct {
	// ID is the provider-assigned task identifier.
	ID string
	// Model is the model the task was submitted for.
	Model generator.Model
	// State is the last observed canonical state.
	State generator.State
	// CreatedAt is when the submission was accepted.
	CreatedAt time.Time
	// UpdatedAt is when State last changed.
	UpdatedAt time.Time
	// ResultURL is set on success.
	ResultURL string
	// FailureReason is set on fail.
	FailureReason string
}

// NewTask creates a task in the queueing state.
func NewTask(id string, model generator.Model) *Task {
	now := time.Now()
	return &Task{
		ID:        id,
		Model:     model,
		State:     generator.StateQueueing,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsTerminal returns true if the task has reached success or fail.
func (t *Task) IsTerminal() bool {
	return t.State.IsTerminal()
}

// observe applies one observation. It reports false, leaving the task
// untouched, when the task is already terminal.
func (t *Task) observe(obs generator.Observation) bool {
	if t.IsTerminal() {
		return false
	}
	if obs.State != t.State {
		t.State = obs.State
		t.UpdatedAt = time.Now()
	}
	switch obs.State {
	case generator.StateSuccess:
		t.ResultURL = obs.ResultURL
	case generator.StateFail:
		t.FailureReason = obs.FailureReason
	}
	return true
}

// fail moves a non-terminal task to fail with reason.
func (t *Task) fail(reason string) {
	t.observe(generator.Observation{State: generator.StateFail, FailureReason: reason})
}

// Snapshot returns a copy of the task.
func (t *Task) Snapshot() Task {
	return *t
}
