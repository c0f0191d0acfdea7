// Package job manages generation records: one record per accepted request,
// owned by the caller that submitted it and advanced through the canonical
// lifecycle by a background pipeline run.
package job

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/maauso/vidgen/internal/fault"
	"github.com/maauso/vidgen/internal/generator"
	"github.com/maauso/vidgen/internal/job/id"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[generator.State][]generator.State{
	generator.StateIdle:       {generator.StateSubmitting, generator.StateFail},
	generator.StateSubmitting: {generator.StateQueueing, generator.StateFail},
	generator.StateQueueing:   {generator.StateGenerating, generator.StateSuccess, generator.StateFail},
	generator.StateGenerating: {generator.StateSuccess, generator.StateFail},
	generator.StateSuccess:    {},
	generator.StateFail:       {},
}

// canTransition checks if a transition from one state to another is valid.
func canTransition(from, to generator.State) bool {
	return slices.Contains(validTransitions[from], to)
}

// Generation is one generation request and its outcome.
type Generation struct {
	mu sync.RWMutex

	// ID is the unique identifier for this record.
	ID string `json:"id"`
	// OwnerID identifies the caller that created the record.
	OwnerID string `json:"owner_id"`

	Prompt      string                `json:"prompt,omitempty"`
	Model       generator.Model       `json:"model"`
	ImageURLs   []string              `json:"image_urls,omitempty"`
	VideoURL    string                `json:"video_url,omitempty"`
	AspectRatio generator.AspectRatio `json:"aspect_ratio,omitempty"`
	Duration    generator.Duration    `json:"duration,omitempty"`
	CallbackURL string                `json:"callback_url,omitempty"`

	// State is the current canonical state.
	State generator.State `json:"state"`
	// TaskID is the provider task, once submitted.
	TaskID string `json:"task_id,omitempty"`
	// ResultURL is the playable media URL on success.
	ResultURL string `json:"result_url,omitempty"`
	// Error is the user-facing failure message.
	Error string `json:"error,omitempty"`
	// ErrorKind classifies the failure.
	ErrorKind fault.Kind `json:"error_kind,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

// New creates an idle record for req owned by ownerID.
func New(ownerID string, req generator.Request) *Generation {
	now := time.Now()
	return &Generation{
		ID:          id.Generate(),
		OwnerID:     ownerID,
		Prompt:      req.Prompt,
		Model:       req.Model,
		ImageURLs:   slices.Clone(req.ImageURLs),
		VideoURL:    req.VideoURL,
		AspectRatio: req.AspectRatio,
		Duration:    req.Duration,
		CallbackURL: req.CallbackURL,
		State:       generator.StateIdle,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Request rebuilds the generation request.
func (g *Generation) Request() generator.Request {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return generator.Request{
		Prompt:      g.Prompt,
		Model:       g.Model,
		ImageURLs:   slices.Clone(g.ImageURLs),
		VideoURL:    g.VideoURL,
		AspectRatio: g.AspectRatio,
		Duration:    g.Duration,
		CallbackURL: g.CallbackURL,
	}
}

// TransitionTo moves the record to state. Re-entering the current
// non-terminal state is a no-op. Returns ErrInvalidTransition otherwise.
func (g *Generation) TransitionTo(state generator.State) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.transitionLocked(state)
}

func (g *Generation) transitionLocked(state generator.State) error {
	if g.State == state && !state.IsTerminal() {
		return nil
	}
	if !canTransition(g.State, state) {
		return ErrInvalidTransition
	}

	g.State = state
	g.UpdatedAt = time.Now()
	if state.IsTerminal() {
		g.CompletedAt = g.UpdatedAt
	}
	return nil
}

// SetTaskID records the provider task ID.
func (g *Generation) SetTaskID(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.TaskID = taskID
	g.UpdatedAt = time.Now()
}

// Complete transitions the record to success with its result URL.
func (g *Generation) Complete(resultURL string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.transitionLocked(generator.StateSuccess); err != nil {
		return err
	}
	g.ResultURL = resultURL
	return nil
}

// Fail transitions the record to fail, keeping the error's message and kind.
func (g *Generation) Fail(err error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if terr := g.transitionLocked(generator.StateFail); terr != nil {
		return terr
	}
	g.Error = fault.Message(err)
	g.ErrorKind = fault.KindOf(err)
	return nil
}

// GetState returns the current state (thread-safe).
func (g *Generation) GetState() generator.State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.State
}

// IsTerminal returns true if the record reached success or fail.
func (g *Generation) IsTerminal() bool {
	return g.GetState().IsTerminal()
}

// Clone creates a deep copy of the record for safe reads.
func (g *Generation) Clone() *Generation {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return &Generation{
		ID:          g.ID,
		OwnerID:     g.OwnerID,
		Prompt:      g.Prompt,
		Model:       g.Model,
		ImageURLs:   slices.Clone(g.ImageURLs),
		VideoURL:    g.VideoURL,
		AspectRatio: g.AspectRatio,
		Duration:    g.Duration,
		CallbackURL: g.CallbackURL,
		State:       g.State,
		TaskID:      g.TaskID,
		ResultURL:   g.ResultURL,
		Error:       g.Error,
		ErrorKind:   g.ErrorKind,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
		CompletedAt: g.CompletedAt,
	}
}
